package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/xavierca1/leadsync/internal/entity"
	"github.com/xavierca1/leadsync/internal/infra/integration/calcom"
	"github.com/xavierca1/leadsync/internal/usecase"
)

const maxWebhookBody = 1 << 20

type BookingReconciler interface {
	ReconcileBooking(ctx context.Context, b *entity.Booking) (*usecase.BookingResult, error)
}

type WebhookHandler struct {
	Bookings BookingReconciler
	Secret   string
	Logger   logrus.FieldLogger
}

func NewWebhookHandler(bookings BookingReconciler, secret string, logger logrus.FieldLogger) *WebhookHandler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &WebhookHandler{Bookings: bookings, Secret: secret, Logger: logger.WithField("component", "booking-webhook")}
}

type WebhookResponse struct {
	Success bool                   `json:"success"`
	Ignored string                 `json:"ignored,omitempty"`
	Result  *usecase.BookingResult `json:"result,omitempty"`
}

// Handle applies a booking-created event from the scheduling service. Events
// that do not create a booking are acknowledged and ignored.
func (h *WebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeMessage(w, http.StatusBadRequest, usecase.CodeInvalidInput, "could not read body")
		return
	}

	if err := calcom.VerifySignature(h.Secret, body, r.Header.Get(calcom.SignatureHeader)); err != nil {
		h.Logger.Warn("❌ webhook signature rejected")
		writeMessage(w, http.StatusUnauthorized, "INVALID_SIGNATURE", "invalid signature")
		return
	}

	event, err := calcom.ParseWebhook(body)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, usecase.CodeInvalidInput, "bad JSON")
		return
	}
	if !event.CreatesBooking() {
		writeJSON(w, http.StatusOK, WebhookResponse{Success: true, Ignored: event.TriggerEvent})
		return
	}

	booking := calcom.ToBookingFromWebhook(event.Payload)
	result, err := h.Bookings.ReconcileBooking(context.WithoutCancel(r.Context()), booking)
	if err != nil {
		log := h.Logger.WithField("booking", booking.ExternalRef).WithError(err)
		var domainErr *usecase.DomainError
		if errors.As(err, &domainErr) {
			// nothing a retry from the sender would fix
			log.Warn("⚠️ booking webhook skipped")
			writeJSON(w, http.StatusOK, WebhookResponse{Success: true, Ignored: domainErr.Message})
			return
		}
		log.Error("❌ booking webhook failed")
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, WebhookResponse{Success: true, Result: result})
}
