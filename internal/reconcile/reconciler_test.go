package reconcile

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xavierca1/leadsync/internal/entity"
)

var now = time.Date(2025, 1, 5, 9, 0, 0, 0, time.UTC)

func TestResolveStatusNeverRegresses(t *testing.T) {
	all := []entity.ContactStatus{
		entity.StatusUnknown, entity.StatusNotContacted, entity.StatusMessage1Sent,
		entity.StatusMessage2Sent, entity.StatusMessage3Sent, entity.StatusReplied,
		entity.StatusHot, entity.StatusCallBooked, entity.StatusConverted,
		entity.StatusRemoved, entity.StatusArchived,
	}
	for _, current := range all {
		for _, incoming := range all {
			got := ResolveStatus(current, incoming)
			if current.IsTerminal() {
				assert.Equal(t, current, got, "terminal %s overwritten by %s", current, incoming)
				continue
			}
			assert.GreaterOrEqual(t, got.Ordinal(), current.Ordinal(), "%s regressed to %s", current, got)
		}
	}

	assert.Equal(t, entity.StatusHot, ResolveStatus(entity.StatusHot, entity.StatusNotContacted))
	assert.Equal(t, entity.StatusArchived, ResolveStatus(entity.StatusArchived, entity.StatusCallBooked))
}

func TestApplyBooking(t *testing.T) {
	start := time.Date(2025, 1, 10, 10, 0, 0, 0, time.UTC)
	booking := &entity.Booking{
		ExternalRef:   "bk_123",
		AttendeeName:  "Jane Doe",
		AttendeeEmail: "Jane@Example.com",
		AttendeePhone: "+447700900123",
		StartTime:     start,
	}

	t.Run("moves a ready lead to call booked", func(t *testing.T) {
		lead := &entity.Lead{Phone: "07700 900123", Status: entity.StatusNotContacted, Notes: "met at expo"}

		d := ApplyBooking(lead, booking, now)
		require.Equal(t, ActionUpdate, d.Action)
		require.NotNil(t, d.Patch.Status)
		assert.Equal(t, entity.StatusCallBooked, *d.Patch.Status)
		require.NotNil(t, d.Patch.BookingTime)
		assert.True(t, start.Equal(*d.Patch.BookingTime))
		require.NotNil(t, d.Patch.Notes)
		assert.True(t, strings.HasPrefix(*d.Patch.Notes, "met at expo"))
		assert.Contains(t, *d.Patch.Notes, "ref bk_123")
	})

	t.Run("applying twice is a no-op", func(t *testing.T) {
		lead := &entity.Lead{Phone: "07700 900123", Status: entity.StatusNotContacted}
		d := ApplyBooking(lead, booking, now)
		d.Patch.Apply(lead)

		again := ApplyBooking(lead, booking, now.Add(time.Hour))
		assert.Equal(t, ActionNoop, again.Action)
	})

	t.Run("never revives terminal or archived leads", func(t *testing.T) {
		for _, status := range []entity.ContactStatus{entity.StatusArchived, entity.StatusConverted, entity.StatusRemoved} {
			d := ApplyBooking(&entity.Lead{Status: status}, booking, now)
			assert.Equal(t, ActionNoop, d.Action, status.String())
		}
		d := ApplyBooking(&entity.Lead{Status: entity.StatusHot, Archived: true}, booking, now)
		assert.Equal(t, ActionNoop, d.Action)
		assert.Equal(t, "archived", d.Reason)
	})

	t.Run("signals create on identity miss", func(t *testing.T) {
		d := ApplyBooking(nil, booking, now)
		require.Equal(t, ActionCreate, d.Action)
		assert.Equal(t, "jane@example.com", *d.Patch.Email)
		assert.Equal(t, entity.StatusCallBooked, *d.Patch.Status)
	})
}

func TestMergeNotesIsAppendOnly(t *testing.T) {
	merged := MergeNotes("A", "B", now)
	assert.Contains(t, merged, "A")
	assert.Contains(t, merged, "B")
	assert.Less(t, strings.Index(merged, "A"), strings.Index(merged, "B"))
	assert.Contains(t, merged, "2025-01-05T09:00:00Z")

	assert.Equal(t, merged, MergeNotes(merged, "B", now.Add(time.Hour)), "duplicate entry must converge")
	assert.Equal(t, "A", MergeNotes("A", "", now))
	assert.Equal(t, "B", MergeNotes("", "B", now))
	assert.Equal(t, "A then more", MergeNotes("A", "A then more", now))

	// a target created from the later entry converges on the fuller history
	history := "intro" + delimiter(now) + "Call booked"
	assert.Equal(t, history, MergeNotes("Call booked", history, now.Add(time.Hour)))
}

func TestDiff(t *testing.T) {
	booked := time.Date(2025, 1, 10, 10, 0, 0, 0, time.UTC)
	sheet := &entity.Lead{
		Name:        "Jane Doe",
		Phone:       "07700 900123",
		Email:       "JANE@example.com",
		Status:      entity.StatusCallBooked,
		BookingTime: &booked,
		Notes:       "first note",
		Starred:     true,
	}

	t.Run("create when the target is missing", func(t *testing.T) {
		d := Diff(nil, sheet, now)
		require.Equal(t, ActionCreate, d.Action)
		assert.Equal(t, entity.StatusCallBooked, *d.Patch.Status)
		assert.Equal(t, "jane@example.com", *d.Patch.Email)
		assert.True(t, *d.Patch.Starred)
	})

	t.Run("second pass is a no-op", func(t *testing.T) {
		doc := &entity.Lead{Phone: "+447700900123"}
		d := Diff(nil, sheet, now)
		d.Patch.Apply(doc)

		again := Diff(doc, sheet, now.Add(time.Minute))
		assert.Equal(t, ActionNoop, again.Action, "%+v", again.Patch)
	})

	t.Run("stale sheet status does not regress the document", func(t *testing.T) {
		doc := &entity.Lead{Phone: "+447700900123", Status: entity.StatusCallBooked, BookingTime: &booked}
		stale := &entity.Lead{Phone: "07700 900123", Status: entity.StatusNotContacted}

		d := Diff(doc, stale, now)
		assert.Nil(t, d.Patch.Status)
	})

	t.Run("archive flag from the sheet wins and stamps archived_at", func(t *testing.T) {
		doc := &entity.Lead{Phone: "+447700900123", Status: entity.StatusHot}
		archived := &entity.Lead{Phone: "07700 900123", Status: entity.StatusHot, Archived: true}

		d := Diff(doc, archived, now)
		require.Equal(t, ActionUpdate, d.Action)
		assert.True(t, *d.Patch.Archived)
		assert.True(t, now.Equal(*d.Patch.ArchivedAt))
	})

	t.Run("message timestamps are never cleared", func(t *testing.T) {
		sent := now.Add(-time.Hour)
		doc := &entity.Lead{Phone: "+447700900123", Status: entity.StatusMessage1Sent, Message1SentAt: &sent}
		src := &entity.Lead{Phone: "07700 900123", Status: entity.StatusMessage1Sent}

		d := Diff(doc, src, now)
		assert.Nil(t, d.Patch.Message1SentAt)
	})
}

func TestMessageSent(t *testing.T) {
	lead := &entity.Lead{Status: entity.StatusNotContacted, ConversationLog: "hello"}
	patch := MessageSent(lead, 1, "out: hi there", now)

	require.NotNil(t, patch.Status)
	assert.Equal(t, entity.StatusMessage1Sent, *patch.Status)
	assert.True(t, now.Equal(*patch.Message1SentAt))
	assert.True(t, strings.HasPrefix(*patch.ConversationLog, "hello"))
	assert.Contains(t, *patch.ConversationLog, "out: hi there")

	hot := &entity.Lead{Status: entity.StatusHot}
	assert.Nil(t, MessageSent(hot, 2, "x", now).Status)
}
