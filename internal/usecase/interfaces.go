package usecase

import (
	"context"
	"time"

	"github.com/xavierca1/leadsync/internal/entity"
	"github.com/xavierca1/leadsync/internal/infra/integration/twilio"
)

// LedgerStore is the spreadsheet: a LeadStore that can also report rows it
// rejected while reading.
type LedgerStore interface {
	entity.LeadStore
	FetchRows(ctx context.Context) ([]*entity.Lead, []*entity.RecordError, error)
	Ping(ctx context.Context) error
}

// LeadRepository is the dashboard's document store.
type LeadRepository interface {
	entity.LeadStore
	Count(ctx context.Context) (int64, error)
	Restore(ctx context.Context, lead *entity.Lead) error
	Ping(ctx context.Context) error
}

type BookingSource interface {
	entity.BookingSource
	Ping(ctx context.Context) error
}

type SMSSender interface {
	SendSMS(ctx context.Context, input twilio.SendMessageInput) (*twilio.SendResult, error)
}

// SyncRunner runs one full sync. Implemented by SyncLeadsUseCase.
type SyncRunner interface {
	Execute(ctx context.Context, trigger string) (*entity.SyncRun, error)
}

// HealthChecker produces a fresh health report.
type HealthChecker interface {
	Check(ctx context.Context) *entity.HealthReport
}

type HealthCache interface {
	Get(ctx context.Context) (*entity.HealthReport, bool)
	Set(ctx context.Context, report *entity.HealthReport, ttl time.Duration)
}

// Alerter delivers operator alerts. Implementations must not block the caller
// on delivery failures.
type Alerter interface {
	Alert(ctx context.Context, alert Alert)
}

type MetricsRecorder interface {
	RecordSyncRun(status string, seconds float64)
	RecordStageFailure(stage string)
	RecordRecords(store, outcome string, n int)
	RecordWatchdogTick(overall string)
}

type noopMetrics struct{}

func (noopMetrics) RecordSyncRun(string, float64)     {}
func (noopMetrics) RecordStageFailure(string)         {}
func (noopMetrics) RecordRecords(string, string, int) {}
func (noopMetrics) RecordWatchdogTick(string)         {}

type noopAlerter struct{}

func (noopAlerter) Alert(context.Context, Alert) {}
