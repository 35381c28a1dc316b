package usecase_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/mock"

	"github.com/xavierca1/leadsync/internal/entity"
	"github.com/xavierca1/leadsync/internal/identity"
	"github.com/xavierca1/leadsync/internal/infra/integration/twilio"
	"github.com/xavierca1/leadsync/internal/retry"
	"github.com/xavierca1/leadsync/internal/usecase"
)

func nullLogger() logrus.FieldLogger {
	logger, _ := test.NewNullLogger()
	return logger
}

func fastRetry() *retry.Engine {
	return retry.NewEngine(retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, CallTimeout: time.Second}, nullLogger(), nil)
}

// memStore is an in-memory LeadStore standing in for both the sheet and the
// document store.
type memStore struct {
	mu       sync.Mutex
	leads    []*entity.Lead
	rejected []*entity.RecordError

	fetchErr  error
	upsertErr error
	deleteErr error
	pingErr   error
	upserts   int
	restored  []*entity.Lead
}

func (m *memStore) FetchRows(ctx context.Context) ([]*entity.Lead, []*entity.RecordError, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fetchErr != nil {
		return nil, nil, m.fetchErr
	}
	return m.snapshot(true), m.rejected, nil
}

func (m *memStore) FetchAll(ctx context.Context, filter entity.LeadFilter) ([]*entity.Lead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fetchErr != nil {
		return nil, m.fetchErr
	}
	var out []*entity.Lead
	for _, l := range m.snapshot(true) {
		if filter.Match(l) {
			out = append(out, l)
		}
	}
	return out, nil
}

func (m *memStore) FetchByIdentity(ctx context.Context, id identity.Identity) (*entity.Lead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fetchErr != nil {
		return nil, m.fetchErr
	}
	l, _, ok := identity.Best(id, m.leads, (*entity.Lead).Identity)
	if !ok {
		return nil, entity.ErrNotFound
	}
	cp := *l
	return &cp, nil
}

func (m *memStore) Upsert(ctx context.Context, id identity.Identity, patch entity.LeadPatch) (entity.UpsertResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.upsertErr != nil {
		return entity.UpsertResult{}, m.upsertErr
	}
	m.upserts++
	if l, _, ok := identity.Best(id, m.leads, (*entity.Lead).Identity); ok {
		patch.Apply(l)
		return entity.UpsertResult{ID: l.ID}, nil
	}
	l := &entity.Lead{ID: id.DocumentID(), Phone: id.Phone, Email: id.Email, Status: entity.StatusNotContacted}
	patch.Apply(l)
	m.leads = append(m.leads, l)
	return entity.UpsertResult{Created: true, ID: l.ID}, nil
}

func (m *memStore) Delete(ctx context.Context, id identity.Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return m.deleteErr
	}
	for i, l := range m.leads {
		if id.Matches(l.Identity()) {
			m.leads = append(m.leads[:i], m.leads[i+1:]...)
			return nil
		}
	}
	return entity.ErrNotFound
}

func (m *memStore) Restore(ctx context.Context, lead *entity.Lead) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.restored = append(m.restored, lead)
	m.leads = append(m.leads, lead)
	return nil
}

func (m *memStore) Count(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fetchErr != nil {
		return 0, m.fetchErr
	}
	return int64(len(m.leads)), nil
}

func (m *memStore) Ping(ctx context.Context) error { return m.pingErr }

func (m *memStore) snapshot(includeArchived bool) []*entity.Lead {
	out := make([]*entity.Lead, 0, len(m.leads))
	for _, l := range m.leads {
		cp := *l
		out = append(out, &cp)
	}
	return out
}

func (m *memStore) only() *entity.Lead {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.leads) != 1 {
		return nil
	}
	return m.leads[0]
}

type fakeBookings struct {
	bookings []*entity.Booking
	err      error
	calls    int
}

func (f *fakeBookings) FetchUpcoming(ctx context.Context, eventTypeID string) ([]*entity.Booking, error) {
	f.calls++
	return f.bookings, f.err
}

func (f *fakeBookings) FetchByIdentity(ctx context.Context, eventTypeID string, id identity.Identity) (*entity.Booking, error) {
	b, _, ok := identity.Best(id, f.bookings, (*entity.Booking).Identity)
	if !ok {
		return nil, entity.ErrNotFound
	}
	return b, nil
}

func (f *fakeBookings) Ping(ctx context.Context) error { return nil }

type fakeMetadata struct {
	mu      sync.Mutex
	runs    []*entity.SyncRun
	latest  *entity.SyncMetadata
	saveErr error
}

func (f *fakeMetadata) SaveRun(ctx context.Context, run *entity.SyncRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.runs = append(f.runs, run)
	meta := &entity.SyncMetadata{LastRunID: run.ID, LastRunAt: run.FinishedAt, LastStatus: run.Status, LastReport: run}
	if f.latest != nil {
		meta.LastSuccessAt = f.latest.LastSuccessAt
	}
	if run.Succeeded() {
		t := run.FinishedAt
		meta.LastSuccessAt = &t
	}
	f.latest = meta
	return nil
}

func (f *fakeMetadata) Latest(ctx context.Context) (*entity.SyncMetadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.latest == nil {
		return nil, entity.ErrNotFound
	}
	return f.latest, nil
}

func (f *fakeMetadata) RecentRuns(ctx context.Context, limit int) ([]*entity.SyncRun, error) {
	return f.runs, nil
}

func (f *fakeMetadata) Ping(ctx context.Context) error { return nil }

type fakeErrors struct {
	mu      sync.Mutex
	entries []*entity.SystemError
}

func (f *fakeErrors) Record(ctx context.Context, e *entity.SystemError) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, e)
	return nil
}

func (f *fakeErrors) CountUnresolvedSince(ctx context.Context, since time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, e := range f.entries {
		if !e.Resolved && !e.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (f *fakeErrors) ListUnresolved(ctx context.Context, limit int) ([]*entity.SystemError, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*entity.SystemError
	for _, e := range f.entries {
		if !e.Resolved {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeErrors) Resolve(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.entries {
		if e.ID == id && !e.Resolved {
			e.Resolved = true
			return nil
		}
	}
	return entity.ErrNotFound
}

func (f *fakeErrors) ResolveByType(ctx context.Context, errType string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, e := range f.entries {
		if e.Type == errType && !e.Resolved {
			e.Resolved = true
			n++
		}
	}
	return n, nil
}

func (f *fakeErrors) ofType(errType string) []*entity.SystemError {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*entity.SystemError
	for _, e := range f.entries {
		if e.Type == errType {
			out = append(out, e)
		}
	}
	return out
}

type staticHealth struct {
	report *entity.HealthReport
}

func (s staticHealth) Check(ctx context.Context) *entity.HealthReport { return s.report }

func healthyReport() *entity.HealthReport {
	return &entity.HealthReport{
		Overall: entity.Healthy,
		Dependencies: []entity.DependencyCheck{
			{Name: usecase.ProbeSpreadsheet, Status: entity.Healthy},
			{Name: usecase.ProbeDocumentStore, Status: entity.Healthy},
		},
	}
}

// MockSyncRunner
type MockSyncRunner struct {
	mock.Mock
}

func (m *MockSyncRunner) Execute(ctx context.Context, trigger string) (*entity.SyncRun, error) {
	args := m.Called(ctx, trigger)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.SyncRun), args.Error(1)
}

// MockSMSSender
type MockSMSSender struct {
	mock.Mock
}

func (m *MockSMSSender) SendSMS(ctx context.Context, input twilio.SendMessageInput) (*twilio.SendResult, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*twilio.SendResult), args.Error(1)
}

type recordingAlerter struct {
	mu     sync.Mutex
	alerts []usecase.Alert
}

func (r *recordingAlerter) Alert(ctx context.Context, a usecase.Alert) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, a)
}

var errUnavailable = errors.New("503 service unavailable")
