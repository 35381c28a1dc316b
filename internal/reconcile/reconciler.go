// Package reconcile computes field-level deltas between copies of a lead held
// in different stores. It performs no I/O.
//
// Precedence rules:
//   - contact status only moves forward through the funnel; a terminal
//     current status always wins
//   - a booking sets CALL_BOOKED and the booking time unless the lead is
//     terminal or archived
//   - free-text fields are merged append-only
//   - flags edited by humans in the sheet are last-write-wins
//   - message-sent timestamps are never cleared
package reconcile

import (
	"fmt"
	"strings"
	"time"

	"github.com/xavierca1/leadsync/internal/entity"
	"github.com/xavierca1/leadsync/internal/identity"
)

type Action int

const (
	ActionNoop Action = iota
	ActionCreate
	ActionUpdate
)

func (a Action) String() string {
	switch a {
	case ActionCreate:
		return "create"
	case ActionUpdate:
		return "update"
	}
	return "noop"
}

// Decision is what the orchestrator should do to the target store.
type Decision struct {
	Action Action
	Patch  entity.LeadPatch
	Reason string
}

// ResolveStatus returns the status the target should hold after seeing
// incoming. It never regresses current.
func ResolveStatus(current, incoming entity.ContactStatus) entity.ContactStatus {
	if current.IsTerminal() {
		return current
	}
	if incoming.Ordinal() > current.Ordinal() {
		return incoming
	}
	return current
}

// ApplyBooking computes the delta a booking implies for target. A nil target
// yields a create decision.
func ApplyBooking(target *entity.Lead, b *entity.Booking, now time.Time) Decision {
	start := b.StartTime.UTC()
	note := bookingNote(b)

	if target == nil {
		status := entity.StatusCallBooked
		patch := entity.LeadPatch{
			Status:      &status,
			BookingTime: &start,
			Notes:       &note,
		}
		if b.ExternalRef != "" {
			patch.BookingRef = strPtr(b.ExternalRef)
		}
		if b.AttendeeName != "" {
			patch.Name = strPtr(b.AttendeeName)
		}
		if email := identity.NormalizeEmail(b.AttendeeEmail); email != "" {
			patch.Email = &email
		}
		return Decision{Action: ActionCreate, Patch: patch, Reason: "no matching lead"}
	}

	if target.Status.IsTerminal() {
		return Decision{Action: ActionNoop, Reason: "terminal status " + target.Status.String()}
	}
	if target.Archived {
		return Decision{Action: ActionNoop, Reason: "archived"}
	}

	var patch entity.LeadPatch
	if target.Status != entity.StatusCallBooked {
		status := ResolveStatus(target.Status, entity.StatusCallBooked)
		patch.Status = &status
	}
	if !sameInstant(target.BookingTime, &start) {
		patch.BookingTime = &start
	}
	if b.ExternalRef != "" && target.BookingRef != b.ExternalRef {
		patch.BookingRef = strPtr(b.ExternalRef)
	}
	if !strings.Contains(target.Notes, note) {
		merged := AppendEntry(target.Notes, note, now)
		patch.Notes = &merged
	}
	if patch.IsEmpty() {
		return Decision{Action: ActionNoop, Reason: "booking already applied"}
	}
	return Decision{Action: ActionUpdate, Patch: patch}
}

// Diff computes the delta that brings target in line with source. It is used
// for spreadsheet -> document store ingestion, so human-edited flags on the
// source win.
func Diff(target, source *entity.Lead, now time.Time) Decision {
	if target == nil {
		return Decision{Action: ActionCreate, Patch: FullPatch(source), Reason: "no matching lead"}
	}

	var patch entity.LeadPatch

	if source.Name != "" && source.Name != target.Name {
		patch.Name = strPtr(source.Name)
	}
	if email := identity.NormalizeEmail(source.Email); email != "" && email != target.Email {
		patch.Email = &email
	}
	if status := ResolveStatus(target.Status, source.Status); status != target.Status {
		patch.Status = &status
	}
	if source.BookingTime != nil && !sameInstant(target.BookingTime, source.BookingTime) {
		t := source.BookingTime.UTC()
		patch.BookingTime = &t
	}
	if source.BookingRef != "" && source.BookingRef != target.BookingRef {
		patch.BookingRef = strPtr(source.BookingRef)
	}
	if merged := MergeNotes(target.Notes, source.Notes, now); merged != target.Notes {
		patch.Notes = &merged
	}
	if merged := MergeNotes(target.ConversationLog, source.ConversationLog, now); merged != target.ConversationLog {
		patch.ConversationLog = &merged
	}
	if source.ManualOverride != target.ManualOverride {
		patch.ManualOverride = boolPtr(source.ManualOverride)
	}
	if source.Starred != target.Starred {
		patch.Starred = boolPtr(source.Starred)
	}
	if source.Archived != target.Archived {
		patch.Archived = boolPtr(source.Archived)
	}
	if source.Archived {
		switch {
		case source.ArchivedAt != nil && !sameInstant(target.ArchivedAt, source.ArchivedAt):
			t := source.ArchivedAt.UTC()
			patch.ArchivedAt = &t
		case source.ArchivedAt == nil && target.ArchivedAt == nil:
			t := now.UTC()
			patch.ArchivedAt = &t
		}
	}
	for step := 1; step <= 3; step++ {
		if later := laterTime(target.MessageSentAt(step), source.MessageSentAt(step)); later != nil {
			patch.SetMessageSentAt(step, *later)
		}
	}

	if patch.IsEmpty() {
		return Decision{Action: ActionNoop, Reason: "in sync"}
	}
	return Decision{Action: ActionUpdate, Patch: patch}
}

// FullPatch describes every populated field of l, for the create path.
func FullPatch(l *entity.Lead) entity.LeadPatch {
	var p entity.LeadPatch
	if l.Name != "" {
		p.Name = strPtr(l.Name)
	}
	if email := identity.NormalizeEmail(l.Email); email != "" {
		p.Email = &email
	}
	status := l.Status
	if status == entity.StatusUnknown {
		status = entity.StatusNotContacted
	}
	p.Status = &status
	if l.BookingTime != nil {
		t := l.BookingTime.UTC()
		p.BookingTime = &t
	}
	if l.BookingRef != "" {
		p.BookingRef = strPtr(l.BookingRef)
	}
	if l.Notes != "" {
		p.Notes = strPtr(l.Notes)
	}
	if l.ConversationLog != "" {
		p.ConversationLog = strPtr(l.ConversationLog)
	}
	p.ManualOverride = boolPtr(l.ManualOverride)
	p.Starred = boolPtr(l.Starred)
	p.Archived = boolPtr(l.Archived)
	if l.ArchivedAt != nil {
		t := l.ArchivedAt.UTC()
		p.ArchivedAt = &t
	}
	for step := 1; step <= 3; step++ {
		if t := l.MessageSentAt(step); t != nil {
			p.SetMessageSentAt(step, t.UTC())
		}
	}
	return p
}

// MessageSent computes the record-keeping delta after message step was sent.
func MessageSent(target *entity.Lead, step int, entry string, at time.Time) entity.LeadPatch {
	var patch entity.LeadPatch
	patch.SetMessageSentAt(step, at.UTC())
	if next, ok := entity.MessageSentStatus(step); ok {
		if status := ResolveStatus(target.Status, next); status != target.Status {
			patch.Status = &status
		}
	}
	log := AppendEntry(target.ConversationLog, entry, at)
	patch.ConversationLog = &log
	return patch
}

func bookingNote(b *entity.Booking) string {
	note := fmt.Sprintf("Call booked for %s", b.StartTime.UTC().Format(time.RFC3339))
	if b.ExternalRef != "" {
		note += fmt.Sprintf(" (ref %s)", b.ExternalRef)
	}
	return note
}

// sameInstant compares at second precision; the sheet does not keep more.
func sameInstant(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Truncate(time.Second).Equal(b.Truncate(time.Second))
}

// laterTime returns incoming when it should replace current, nil otherwise.
func laterTime(current, incoming *time.Time) *time.Time {
	if incoming == nil {
		return nil
	}
	if current == nil || incoming.Truncate(time.Second).After(current.Truncate(time.Second)) {
		t := incoming.UTC()
		return &t
	}
	return nil
}

func strPtr(s string) *string { return &s }

func boolPtr(b bool) *bool { return &b }
