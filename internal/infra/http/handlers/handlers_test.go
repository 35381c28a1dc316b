package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/xavierca1/leadsync/internal/entity"
	"github.com/xavierca1/leadsync/internal/infra/integration/calcom"
	"github.com/xavierca1/leadsync/internal/usecase"
)

type MockSyncRunner struct{ mock.Mock }

func (m *MockSyncRunner) Execute(ctx context.Context, trigger string) (*entity.SyncRun, error) {
	args := m.Called(ctx, trigger)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.SyncRun), args.Error(1)
}

type MockSyncQueue struct{ mock.Mock }

func (m *MockSyncQueue) PublishSyncRequest(ctx context.Context, trigger string) (string, error) {
	args := m.Called(ctx, trigger)
	return args.String(0), args.Error(1)
}

type MockMessageSender struct{ mock.Mock }

func (m *MockMessageSender) Execute(ctx context.Context, input usecase.SendMessageInput) (*usecase.SendMessageOutput, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*usecase.SendMessageOutput), args.Error(1)
}

type MockLeadDeleter struct{ mock.Mock }

func (m *MockLeadDeleter) Execute(ctx context.Context, phone string) (*usecase.DeleteLeadOutput, error) {
	args := m.Called(ctx, phone)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*usecase.DeleteLeadOutput), args.Error(1)
}

type MockBookingReconciler struct{ mock.Mock }

func (m *MockBookingReconciler) ReconcileBooking(ctx context.Context, b *entity.Booking) (*usecase.BookingResult, error) {
	args := m.Called(ctx, b)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*usecase.BookingResult), args.Error(1)
}

type stubMetadata struct {
	latest *entity.SyncMetadata
	runs   []*entity.SyncRun
	limit  int
}

func (s *stubMetadata) SaveRun(ctx context.Context, run *entity.SyncRun) error { return nil }
func (s *stubMetadata) Latest(ctx context.Context) (*entity.SyncMetadata, error) {
	if s.latest == nil {
		return nil, entity.ErrNotFound
	}
	return s.latest, nil
}
func (s *stubMetadata) RecentRuns(ctx context.Context, limit int) ([]*entity.SyncRun, error) {
	s.limit = limit
	return s.runs, nil
}
func (s *stubMetadata) Ping(ctx context.Context) error { return nil }

type stubHealth struct {
	report *entity.HealthReport
	fresh  bool
}

func (s *stubHealth) Report(ctx context.Context, fresh bool) *entity.HealthReport {
	s.fresh = fresh
	return s.report
}

type stubErrors struct {
	entries []*entity.SystemError
}

func (s *stubErrors) Record(ctx context.Context, e *entity.SystemError) error { return nil }
func (s *stubErrors) CountUnresolvedSince(ctx context.Context, since time.Time) (int, error) {
	return len(s.entries), nil
}
func (s *stubErrors) ListUnresolved(ctx context.Context, limit int) ([]*entity.SystemError, error) {
	return s.entries, nil
}
func (s *stubErrors) Resolve(ctx context.Context, id string) error {
	for _, e := range s.entries {
		if e.ID == id {
			e.Resolved = true
			return nil
		}
	}
	return entity.ErrNotFound
}
func (s *stubErrors) ResolveByType(ctx context.Context, errType string) (int, error) { return 0, nil }

func serve(r chi.Router, method, target string, body []byte, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestSyncHandler_Trigger(t *testing.T) {
	logger, _ := test.NewNullLogger()

	t.Run("runs inline", func(t *testing.T) {
		sync := new(MockSyncRunner)
		sync.On("Execute", mock.Anything, "api").Return(&entity.SyncRun{ID: "run-1", Status: entity.RunPartial}, nil).Once()
		r := chi.NewRouter()
		r.Post("/sync", NewSyncHandler(sync, nil, &stubMetadata{}, logger).Trigger)

		rec := serve(r, http.MethodPost, "/sync", nil, nil)

		assert.Equal(t, http.StatusOK, rec.Code)
		var run entity.SyncRun
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
		assert.Equal(t, "run-1", run.ID)
		assert.Equal(t, entity.RunPartial, run.Status)
	})

	t.Run("async enqueues", func(t *testing.T) {
		sync := new(MockSyncRunner)
		q := new(MockSyncQueue)
		q.On("PublishSyncRequest", mock.Anything, "api:async").Return("req-1", nil).Once()
		r := chi.NewRouter()
		r.Post("/sync", NewSyncHandler(sync, q, &stubMetadata{}, logger).Trigger)

		rec := serve(r, http.MethodPost, "/sync?async=true", nil, nil)

		assert.Equal(t, http.StatusAccepted, rec.Code)
		assert.Contains(t, rec.Body.String(), `"request_id":"req-1"`)
		sync.AssertNotCalled(t, "Execute", mock.Anything, mock.Anything)
	})

	t.Run("async without broker", func(t *testing.T) {
		r := chi.NewRouter()
		r.Post("/sync", NewSyncHandler(new(MockSyncRunner), nil, &stubMetadata{}, logger).Trigger)

		rec := serve(r, http.MethodPost, "/sync?async=true", nil, nil)

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("unrecorded run", func(t *testing.T) {
		sync := new(MockSyncRunner)
		sync.On("Execute", mock.Anything, "api").Return(&entity.SyncRun{ID: "run-2", Status: entity.RunSuccess}, errors.New("persist run")).Once()
		r := chi.NewRouter()
		r.Post("/sync", NewSyncHandler(sync, nil, &stubMetadata{}, logger).Trigger)

		rec := serve(r, http.MethodPost, "/sync", nil, nil)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Contains(t, rec.Body.String(), "run-2")
	})
}

func TestSyncHandler_RunsAndLatest(t *testing.T) {
	logger, _ := test.NewNullLogger()
	meta := &stubMetadata{runs: []*entity.SyncRun{{ID: "run-9", Status: entity.RunSuccess}}}
	h := NewSyncHandler(new(MockSyncRunner), nil, meta, logger)
	r := chi.NewRouter()
	r.Get("/sync/runs", h.ListRuns)
	r.Get("/sync/latest", h.Latest)

	rec := serve(r, http.MethodGet, "/sync/runs?limit=500", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 100, meta.limit)
	assert.Contains(t, rec.Body.String(), "run-9")

	rec = serve(r, http.MethodGet, "/sync/latest", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	meta.latest = &entity.SyncMetadata{LastRunID: "run-9", LastStatus: entity.RunSuccess}
	rec = serve(r, http.MethodGet, "/sync/latest", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"last_run_id":"run-9"`)
}

func TestHealthHandler(t *testing.T) {
	health := &stubHealth{report: &entity.HealthReport{Overall: entity.Degraded, LeadCount: 3}}
	r := chi.NewRouter()
	r.Get("/health", NewHealthHandler(health, "test").Handle)

	rec := serve(r, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, health.fresh)
	assert.Contains(t, rec.Body.String(), `"overall":"degraded"`)
	assert.Contains(t, rec.Body.String(), `"version":"test"`)

	health.report = &entity.HealthReport{Overall: entity.Unhealthy}
	rec = serve(r, http.MethodGet, "/health?fresh=true", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.True(t, health.fresh)
}

func TestLeadHandler_SendMessage(t *testing.T) {
	send := new(MockMessageSender)
	send.On("Execute", mock.Anything, usecase.SendMessageInput{Phone: "+447700900123", Step: 1, Body: "hi"}).
		Return(&usecase.SendMessageOutput{Phone: "+447700900123", Step: 1, MessageID: "SM1", Status: entity.StatusMessage1Sent}, nil).Once()
	send.On("Execute", mock.Anything, usecase.SendMessageInput{Phone: "+447700900999", Step: 1, Body: "hi"}).
		Return(nil, &usecase.DomainError{Code: usecase.CodeLeadProtected, Message: "lead is CONVERTED"}).Once()
	r := chi.NewRouter()
	r.Post("/leads/{phone}/messages", NewLeadHandler(send, new(MockLeadDeleter)).SendMessage)

	rec := serve(r, http.MethodPost, "/leads/%2B447700900123/messages", []byte(`{"step":1,"body":"hi"}`), nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"MESSAGE_1_SENT"`)

	rec = serve(r, http.MethodPost, "/leads/+447700900999/messages", []byte(`{"step":1,"body":"hi"}`), nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), usecase.CodeLeadProtected)

	rec = serve(r, http.MethodPost, "/leads/+447700900123/messages", []byte(`{`), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	send.AssertExpectations(t)
}

func TestLeadHandler_RateLimit(t *testing.T) {
	send := new(MockMessageSender)
	send.On("Execute", mock.Anything, mock.Anything).Return(&usecase.SendMessageOutput{}, nil)
	h := NewLeadHandler(send, new(MockLeadDeleter))
	h.rateLimiter = NewRateLimiter(2, time.Minute)
	r := chi.NewRouter()
	r.Post("/leads/{phone}/messages", h.SendMessage)

	var codes []int
	for i := 0; i < 3; i++ {
		rec := serve(r, http.MethodPost, "/leads/+447700900123/messages", []byte(`{"step":1,"body":"hi"}`), http.Header{"X-Forwarded-For": {"10.0.0.1, 10.0.0.2"}})
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestLeadHandler_Delete(t *testing.T) {
	del := new(MockLeadDeleter)
	del.On("Execute", mock.Anything, "+447700900123").Return(&usecase.DeleteLeadOutput{Phone: "+447700900123", DeletedDocument: true, ClearedRow: true}, nil).Once()
	del.On("Execute", mock.Anything, "07700900000").Return(nil, &usecase.DomainError{Code: usecase.CodeLeadNotFound, Message: "no lead"}).Once()
	r := chi.NewRouter()
	r.Delete("/leads/{phone}", NewLeadHandler(new(MockMessageSender), del).DeleteLead)

	rec := serve(r, http.MethodDelete, "/leads/%2B447700900123", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serve(r, http.MethodDelete, "/leads/07700900000", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	del.AssertExpectations(t)
}

func webhookBody(t *testing.T, trigger string) []byte {
	body, err := json.Marshal(map[string]interface{}{
		"triggerEvent": trigger,
		"createdAt":    "2025-01-09T12:00:00Z",
		"payload": map[string]interface{}{
			"uid":       "bk_uid_1",
			"startTime": "2025-01-10T10:00:00Z",
			"endTime":   "2025-01-10T10:30:00Z",
			"attendees": []map[string]interface{}{{"name": "Ada", "email": "ada@example.com", "phoneNumber": "+447700900123"}},
		},
	})
	require.NoError(t, err)
	return body
}

func TestWebhookHandler(t *testing.T) {
	logger, _ := test.NewNullLogger()
	const secret = "whsec"

	t.Run("valid booking", func(t *testing.T) {
		rec := new(MockBookingReconciler)
		rec.On("ReconcileBooking", mock.Anything, mock.MatchedBy(func(b *entity.Booking) bool {
			return b.StartTime.Equal(time.Date(2025, 1, 10, 10, 0, 0, 0, time.UTC))
		})).Return(&usecase.BookingResult{Spreadsheet: "update", Document: "update"}, nil).Once()
		r := chi.NewRouter()
		r.Post("/webhooks/bookings", NewWebhookHandler(rec, secret, logger).Handle)
		body := webhookBody(t, calcom.TriggerBookingCreated)

		res := serve(r, http.MethodPost, "/webhooks/bookings", body, http.Header{calcom.SignatureHeader: {calcom.Sign(secret, body)}})

		assert.Equal(t, http.StatusOK, res.Code)
		assert.Contains(t, res.Body.String(), `"spreadsheet":"update"`)
		rec.AssertExpectations(t)
	})

	t.Run("bad signature", func(t *testing.T) {
		rec := new(MockBookingReconciler)
		r := chi.NewRouter()
		r.Post("/webhooks/bookings", NewWebhookHandler(rec, secret, logger).Handle)
		body := webhookBody(t, calcom.TriggerBookingCreated)

		res := serve(r, http.MethodPost, "/webhooks/bookings", body, http.Header{calcom.SignatureHeader: {calcom.Sign("other", body)}})

		assert.Equal(t, http.StatusUnauthorized, res.Code)
		rec.AssertNotCalled(t, "ReconcileBooking", mock.Anything, mock.Anything)
	})

	t.Run("cancellation ignored", func(t *testing.T) {
		rec := new(MockBookingReconciler)
		r := chi.NewRouter()
		r.Post("/webhooks/bookings", NewWebhookHandler(rec, "", logger).Handle)

		res := serve(r, http.MethodPost, "/webhooks/bookings", webhookBody(t, "BOOKING_CANCELLED"), nil)

		assert.Equal(t, http.StatusOK, res.Code)
		assert.Contains(t, res.Body.String(), `"ignored":"BOOKING_CANCELLED"`)
		rec.AssertNotCalled(t, "ReconcileBooking", mock.Anything, mock.Anything)
	})

	t.Run("booking without start time acknowledged", func(t *testing.T) {
		rec := new(MockBookingReconciler)
		rec.On("ReconcileBooking", mock.Anything, mock.MatchedBy(func(b *entity.Booking) bool { return b.StartTime.IsZero() })).
			Return(nil, &usecase.DomainError{Code: usecase.CodeInvalidInput, Message: "booking carries no start time"}).Once()
		r := chi.NewRouter()
		r.Post("/webhooks/bookings", NewWebhookHandler(rec, "", logger).Handle)
		body := []byte(`{"triggerEvent":"BOOKING_CREATED","payload":{"uid":"bk_uid_2","attendees":[{"phoneNumber":"+447700900123"}]}}`)

		res := serve(r, http.MethodPost, "/webhooks/bookings", body, nil)

		assert.Equal(t, http.StatusOK, res.Code)
		assert.Contains(t, res.Body.String(), `"ignored":"booking carries no start time"`)
		rec.AssertExpectations(t)
	})

	t.Run("store failure", func(t *testing.T) {
		rec := new(MockBookingReconciler)
		rec.On("ReconcileBooking", mock.Anything, mock.Anything).
			Return(nil, &usecase.TechnicalError{Code: usecase.CodeStoreFailure, Message: "spreadsheet update failed"}).Once()
		r := chi.NewRouter()
		r.Post("/webhooks/bookings", NewWebhookHandler(rec, "", logger).Handle)

		res := serve(r, http.MethodPost, "/webhooks/bookings", webhookBody(t, calcom.TriggerBookingCreated), nil)

		assert.Equal(t, http.StatusServiceUnavailable, res.Code)
	})
}

func TestErrorsHandler(t *testing.T) {
	store := &stubErrors{entries: []*entity.SystemError{{ID: "e-1", Type: entity.ErrorTypeEmptyStore, Message: "empty"}}}
	h := NewErrorsHandler(store)
	r := chi.NewRouter()
	r.Get("/errors", h.ListUnresolved)
	r.Post("/errors/{id}/resolve", h.Resolve)

	rec := serve(r, http.MethodGet, "/errors", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"id":"e-1"`)

	rec = serve(r, http.MethodPost, "/errors/e-1/resolve", nil, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.True(t, store.entries[0].Resolved)

	rec = serve(r, http.MethodPost, "/errors/nope/resolve", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWatchdogHandler(t *testing.T) {
	r := chi.NewRouter()
	r.Post("/watchdog/tick", NewWatchdogHandler(tickerFunc(func(ctx context.Context) *usecase.WatchdogReport {
		return &usecase.WatchdogReport{Overall: usecase.WatchdogRecovering, Trigger: usecase.TriggerStale}
	})).Tick)

	rec := serve(r, http.MethodPost, "/watchdog/tick", nil, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"overall":"recovering"`)
	assert.Contains(t, rec.Body.String(), `"trigger":"stale"`)
}

type tickerFunc func(ctx context.Context) *usecase.WatchdogReport

func (f tickerFunc) Tick(ctx context.Context) *usecase.WatchdogReport { return f(ctx) }
