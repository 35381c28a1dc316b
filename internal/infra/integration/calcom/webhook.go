package calcom

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
)

const (
	SignatureHeader = "X-Cal-Signature-256"

	TriggerBookingCreated     = "BOOKING_CREATED"
	TriggerBookingRescheduled = "BOOKING_RESCHEDULED"
)

var ErrInvalidSignature = errors.New("calcom: invalid webhook signature")

// VerifySignature checks the hex HMAC-SHA256 of body against the header value.
// An empty secret disables verification.
func VerifySignature(secret string, body []byte, signature string) error {
	if secret == "" {
		return nil
	}
	got, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil || len(got) == 0 {
		return ErrInvalidSignature
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	if !hmac.Equal(got, mac.Sum(nil)) {
		return ErrInvalidSignature
	}
	return nil
}

func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func ParseWebhook(body []byte) (*WebhookEvent, error) {
	var event WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, err
	}
	return &event, nil
}

// CreatesBooking reports whether the event carries a booking worth reconciling.
func (e *WebhookEvent) CreatesBooking() bool {
	return e.TriggerEvent == TriggerBookingCreated || e.TriggerEvent == TriggerBookingRescheduled
}
