package entity

import (
	"context"
	"errors"
	"time"

	"github.com/xavierca1/leadsync/internal/identity"
)

// Lead is the reconciled view of a sales contact. It has no key shared across
// stores: identity is derived from the normalized phone (primary) or email.
type Lead struct {
	ID              string        `json:"id"`
	Name            string        `json:"name,omitempty"`
	Phone           string        `json:"phone"`
	Email           string        `json:"email,omitempty"`
	Status          ContactStatus `json:"status"`
	BookingTime     *time.Time    `json:"booking_time,omitempty"`
	BookingRef      string        `json:"booking_ref,omitempty"`
	Notes           string        `json:"notes,omitempty"`
	ConversationLog string        `json:"conversation_log,omitempty"`
	ManualOverride  bool          `json:"manual_override"`
	Starred         bool          `json:"starred"`
	Archived        bool          `json:"archived"`
	ArchivedAt      *time.Time    `json:"archived_at,omitempty"`
	Message1SentAt  *time.Time    `json:"message_1_sent_at,omitempty"`
	Message2SentAt  *time.Time    `json:"message_2_sent_at,omitempty"`
	Message3SentAt  *time.Time    `json:"message_3_sent_at,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`

	// SheetRow is the 1-based spreadsheet row the lead was read from (0 when
	// the lead did not come from the sheet).
	SheetRow int `json:"-"`
}

var ErrBookingTimeRequired = errors.New("call-booked lead must carry a booking time")

// Identity returns the normalized identity of the lead.
func (l *Lead) Identity() identity.Identity {
	return identity.New(l.Phone, l.Email)
}

// IsProtected reports whether automated transitions must leave the lead
// alone: terminal statuses and archived leads.
func (l *Lead) IsProtected() bool {
	return l.Status.IsTerminal() || l.Archived
}

// MessageSentAt returns the timestamp for message step 1..3.
func (l *Lead) MessageSentAt(step int) *time.Time {
	switch step {
	case 1:
		return l.Message1SentAt
	case 2:
		return l.Message2SentAt
	case 3:
		return l.Message3SentAt
	}
	return nil
}

func (l *Lead) Validate() error {
	if l.Status == StatusCallBooked && l.BookingTime == nil {
		return ErrBookingTimeRequired
	}
	return nil
}

// LeadPatch is a field-level delta. Nil fields are left untouched.
type LeadPatch struct {
	Name            *string
	Email           *string
	Status          *ContactStatus
	BookingTime     *time.Time
	BookingRef      *string
	Notes           *string
	ConversationLog *string
	ManualOverride  *bool
	Starred         *bool
	Archived        *bool
	ArchivedAt      *time.Time
	Message1SentAt  *time.Time
	Message2SentAt  *time.Time
	Message3SentAt  *time.Time
}

// IsEmpty reports whether the patch changes nothing.
func (p LeadPatch) IsEmpty() bool {
	return p.Name == nil && p.Email == nil && p.Status == nil && p.BookingTime == nil &&
		p.BookingRef == nil && p.Notes == nil && p.ConversationLog == nil &&
		p.ManualOverride == nil && p.Starred == nil && p.Archived == nil &&
		p.ArchivedAt == nil && p.Message1SentAt == nil && p.Message2SentAt == nil &&
		p.Message3SentAt == nil
}

// Apply writes the patch onto l (last-write-wins per field).
func (p LeadPatch) Apply(l *Lead) {
	if p.Name != nil {
		l.Name = *p.Name
	}
	if p.Email != nil {
		l.Email = *p.Email
	}
	if p.Status != nil {
		l.Status = *p.Status
	}
	if p.BookingTime != nil {
		t := *p.BookingTime
		l.BookingTime = &t
	}
	if p.BookingRef != nil {
		l.BookingRef = *p.BookingRef
	}
	if p.Notes != nil {
		l.Notes = *p.Notes
	}
	if p.ConversationLog != nil {
		l.ConversationLog = *p.ConversationLog
	}
	if p.ManualOverride != nil {
		l.ManualOverride = *p.ManualOverride
	}
	if p.Starred != nil {
		l.Starred = *p.Starred
	}
	if p.Archived != nil {
		l.Archived = *p.Archived
	}
	if p.ArchivedAt != nil {
		t := *p.ArchivedAt
		l.ArchivedAt = &t
	}
	if p.Message1SentAt != nil {
		t := *p.Message1SentAt
		l.Message1SentAt = &t
	}
	if p.Message2SentAt != nil {
		t := *p.Message2SentAt
		l.Message2SentAt = &t
	}
	if p.Message3SentAt != nil {
		t := *p.Message3SentAt
		l.Message3SentAt = &t
	}
}

// SetMessageSentAt sets the timestamp field for message step 1..3.
func (p *LeadPatch) SetMessageSentAt(step int, at time.Time) {
	switch step {
	case 1:
		p.Message1SentAt = &at
	case 2:
		p.Message2SentAt = &at
	case 3:
		p.Message3SentAt = &at
	}
}

// LeadFilter narrows FetchAll results. Zero value returns everything.
type LeadFilter struct {
	IncludeArchived bool
	Statuses        []ContactStatus
}

// Match reports whether l passes the filter.
func (f LeadFilter) Match(l *Lead) bool {
	if l.Archived && !f.IncludeArchived {
		return false
	}
	if len(f.Statuses) == 0 {
		return true
	}
	for _, s := range f.Statuses {
		if l.Status == s {
			return true
		}
	}
	return false
}

// LeadStore is the uniform contract of the spreadsheet and document-store
// adapters. FetchByIdentity returns ErrNotFound on an identity miss.
type LeadStore interface {
	FetchAll(ctx context.Context, filter LeadFilter) ([]*Lead, error)
	FetchByIdentity(ctx context.Context, id identity.Identity) (*Lead, error)
	Upsert(ctx context.Context, id identity.Identity, patch LeadPatch) (UpsertResult, error)
	Delete(ctx context.Context, id identity.Identity) error
}

// UpsertResult tells the caller whether the upsert created a record.
type UpsertResult struct {
	Created bool
	ID      string
}
