package calcom

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/xavierca1/leadsync/internal/entity"
	"github.com/xavierca1/leadsync/internal/identity"
)

const (
	DefaultBaseURL = "https://api.cal.com/v2"
	apiVersion     = "2024-08-13"

	pageSize = 100
	maxPages = 50
)

// phone answers live either on the attendee or in the booking form responses
var phoneFields = []string{"attendeePhoneNumber", "phone", "phoneNumber", "location"}

type Client struct {
	HTTPClient *http.Client
	apiKey     string
	baseURL    string
	logger     logrus.FieldLogger
}

func NewClient(apiKey, baseURL string, logger logrus.FieldLogger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		logger:     logger.WithField("integration", "calcom"),
	}
}

// FetchUpcoming lists accepted upcoming bookings, optionally narrowed to one
// event type, following pagination to the end. Bookings with no usable
// identity or no start time are dropped.
func (c *Client) FetchUpcoming(ctx context.Context, eventTypeID string) ([]*entity.Booking, error) {
	if c.apiKey == "" {
		return nil, entity.NewFatal("calcom.bookings", fmt.Errorf("CALCOM_API_KEY not configured"))
	}

	var bookings []*entity.Booking
	for page := 0; page < maxPages; page++ {
		result, err := c.fetchPage(ctx, eventTypeID, page*pageSize)
		if err != nil {
			return nil, err
		}
		for _, dto := range result.Data {
			if b, ok := c.accept(dto); ok {
				bookings = append(bookings, b)
			}
		}
		if !result.hasMore(len(result.Data)) {
			return bookings, nil
		}
	}
	c.logger.WithField("pages", maxPages).Warn("⚠️ booking list truncated")
	return bookings, nil
}

func (c *Client) fetchPage(ctx context.Context, eventTypeID string, skip int) (*listBookingsResponse, error) {
	q := url.Values{}
	q.Set("status", "upcoming")
	q.Set("take", strconv.Itoa(pageSize))
	q.Set("skip", strconv.Itoa(skip))
	if eventTypeID != "" {
		q.Set("eventTypeId", eventTypeID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/bookings?"+q.Encode(), nil)
	if err != nil {
		return nil, entity.NewFatal("calcom.bookings", err)
	}
	c.setHeaders(req)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, entity.NewTransient("calcom.bookings", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, entity.NewTransient("calcom.bookings", err)
	}
	if resp.StatusCode != http.StatusOK {
		c.logger.WithField("status", resp.StatusCode).Warn("bookings request rejected")
		return nil, entity.ClassifyHTTPStatus("calcom.bookings", resp.StatusCode, string(body))
	}

	var result listBookingsResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, entity.NewFatal("calcom.bookings", fmt.Errorf("decode: %w", err))
	}
	return &result, nil
}

func (c *Client) accept(dto BookingDTO) (*entity.Booking, bool) {
	if strings.EqualFold(dto.Status, "cancelled") || strings.EqualFold(dto.Status, "rejected") {
		return nil, false
	}
	b := ToBooking(dto)
	if b.Identity().IsZero() {
		c.logger.WithField("booking_uid", dto.UID).Warn("booking without phone or email skipped")
		return nil, false
	}
	if b.StartTime.IsZero() {
		c.logger.WithField("booking_uid", dto.UID).Warn("booking without start time skipped")
		return nil, false
	}
	return b, true
}

// FetchByIdentity returns the upcoming booking matching id, preferring a phone
// match. ErrNotFound when none matches.
func (c *Client) FetchByIdentity(ctx context.Context, eventTypeID string, id identity.Identity) (*entity.Booking, error) {
	bookings, err := c.FetchUpcoming(ctx, eventTypeID)
	if err != nil {
		return nil, err
	}
	b, _, ok := identity.Best(id, bookings, (*entity.Booking).Identity)
	if !ok {
		return nil, entity.ErrNotFound
	}
	return b, nil
}

// Ping checks the API key against a cheap authenticated endpoint.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/me", nil)
	if err != nil {
		return err
	}
	c.setHeaders(req)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return entity.NewTransient("calcom.ping", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return entity.ClassifyHTTPStatus("calcom.ping", resp.StatusCode, "")
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("cal-api-version", apiVersion)
	req.Header.Set("Accept", "application/json")
}

func ToBooking(dto BookingDTO) *entity.Booking {
	b := &entity.Booking{
		ExternalRef: dto.UID,
		StartTime:   dto.Start.UTC(),
	}
	if b.ExternalRef == "" && dto.ID != 0 {
		b.ExternalRef = strconv.Itoa(dto.ID)
	}
	if dto.EventTypeID != 0 {
		b.EventTypeID = strconv.Itoa(dto.EventTypeID)
	}
	fillAttendee(b, dto.Attendees, dto.BookingFieldsResponses)
	return b
}

// ToBookingFromWebhook converts a BOOKING_CREATED payload.
func ToBookingFromWebhook(p WebhookPayload) *entity.Booking {
	b := &entity.Booking{
		ExternalRef: p.UID,
		StartTime:   p.StartTime.UTC(),
	}
	if b.ExternalRef == "" && p.BookingID != 0 {
		b.ExternalRef = strconv.Itoa(p.BookingID)
	}
	if p.EventTypeID != 0 {
		b.EventTypeID = strconv.Itoa(p.EventTypeID)
	}
	fillAttendee(b, p.Attendees, p.Responses)
	return b
}

func fillAttendee(b *entity.Booking, attendees []Attendee, responses map[string]interface{}) {
	if len(attendees) > 0 {
		b.AttendeeName = attendees[0].Name
		b.AttendeeEmail = attendees[0].Email
		b.AttendeePhone = attendees[0].PhoneNumber
	}
	if b.AttendeePhone != "" {
		return
	}
	for _, field := range phoneFields {
		if phone := responseString(responses[field]); identity.NormalizePhone(phone) != "" {
			b.AttendeePhone = phone
			return
		}
	}
}

// responses are either plain strings or {"value": "..."} objects
func responseString(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case map[string]interface{}:
		if inner, ok := val["value"].(string); ok {
			return inner
		}
	}
	return ""
}
