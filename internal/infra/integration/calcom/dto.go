package calcom

import "time"

type Attendee struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	TimeZone    string `json:"timeZone"`
	PhoneNumber string `json:"phoneNumber"`
}

type BookingDTO struct {
	ID                     int                    `json:"id"`
	UID                    string                 `json:"uid"`
	Title                  string                 `json:"title"`
	Status                 string                 `json:"status"`
	Start                  time.Time              `json:"start"`
	End                    time.Time              `json:"end"`
	EventTypeID            int                    `json:"eventTypeId"`
	Attendees              []Attendee             `json:"attendees"`
	BookingFieldsResponses map[string]interface{} `json:"bookingFieldsResponses"`
}

type listBookingsResponse struct {
	Status     string       `json:"status"`
	Data       []BookingDTO `json:"data"`
	Pagination *Pagination  `json:"pagination,omitempty"`
}

type Pagination struct {
	TotalItems  int  `json:"totalItems"`
	HasNextPage bool `json:"hasNextPage"`
}

// hasMore trusts the pagination block when present, otherwise a full page
// means there may be another.
func (r *listBookingsResponse) hasMore(returned int) bool {
	if r.Pagination != nil {
		return r.Pagination.HasNextPage
	}
	return returned >= pageSize
}

// WebhookEvent is the envelope Cal.com posts to subscriber URLs.
type WebhookEvent struct {
	TriggerEvent string         `json:"triggerEvent"`
	CreatedAt    time.Time      `json:"createdAt"`
	Payload      WebhookPayload `json:"payload"`
}

type WebhookPayload struct {
	UID         string                 `json:"uid"`
	BookingID   int                    `json:"bookingId"`
	EventTypeID int                    `json:"eventTypeId"`
	Title       string                 `json:"title"`
	StartTime   time.Time              `json:"startTime"`
	EndTime     time.Time              `json:"endTime"`
	Attendees   []Attendee             `json:"attendees"`
	Responses   map[string]interface{} `json:"responses"`
}
