package entity

import (
	"context"
	"time"

	"github.com/xavierca1/leadsync/internal/identity"
)

// Booking is a call scheduled through the scheduling service. Only creation
// is reconciled; cancellations are ignored.
type Booking struct {
	ExternalRef   string    `json:"external_ref"`
	EventTypeID   string    `json:"event_type_id,omitempty"`
	AttendeeName  string    `json:"attendee_name"`
	AttendeeEmail string    `json:"attendee_email"`
	AttendeePhone string    `json:"attendee_phone"`
	StartTime     time.Time `json:"start_time"`
}

func (b *Booking) Identity() identity.Identity {
	return identity.New(b.AttendeePhone, b.AttendeeEmail)
}

// BookingSource lists bookings from the scheduling service.
type BookingSource interface {
	FetchUpcoming(ctx context.Context, eventTypeID string) ([]*Booking, error)
	FetchByIdentity(ctx context.Context, eventTypeID string, id identity.Identity) (*Booking, error)
}
