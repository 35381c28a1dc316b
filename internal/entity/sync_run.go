package entity

import (
	"context"
	"time"
)

type RunStatus string

const (
	RunSuccess RunStatus = "success"
	RunPartial RunStatus = "partial"
	RunFailed  RunStatus = "failed"
)

type StageName string

const (
	StageBookings     StageName = "bookings"
	StageIngestion    StageName = "ingestion"
	StageVerification StageName = "verification"
)

// StoreCounts are the per-store record tallies of a stage.
type StoreCounts struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
	Errored int `json:"errored"`
}

// StageOutcome is the result of one orchestrator stage after retries.
type StageOutcome struct {
	Name     StageName              `json:"name"`
	OK       bool                   `json:"ok"`
	Attempts int                    `json:"attempts"`
	Error    string                 `json:"error,omitempty"`
	Counts   map[string]StoreCounts `json:"counts,omitempty"`
	Warnings []string               `json:"warnings,omitempty"`
	Duration time.Duration          `json:"duration_ns"`
}

// SyncRun is the persisted report of one sync run.
type SyncRun struct {
	ID         string         `json:"id"`
	Trigger    string         `json:"trigger"`
	Status     RunStatus      `json:"status"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Duration   time.Duration  `json:"duration_ns"`
	Stages     []StageOutcome `json:"stages"`
	Health     *HealthReport  `json:"health,omitempty"`
}

// Stage returns the outcome of the named stage, if it ran.
func (r *SyncRun) Stage(name StageName) (StageOutcome, bool) {
	for _, s := range r.Stages {
		if s.Name == name {
			return s, true
		}
	}
	return StageOutcome{}, false
}

// Succeeded reports whether the run refreshed the dashboard's state, which
// is what the heartbeat tracks.
func (r *SyncRun) Succeeded() bool {
	return r.Status == RunSuccess || r.Status == RunPartial
}

// SyncMetadata is the single "latest" heartbeat record, overwritten on
// every run.
type SyncMetadata struct {
	LastRunID     string     `json:"last_run_id"`
	LastRunAt     time.Time  `json:"last_run_at"`
	LastStatus    RunStatus  `json:"last_status"`
	LastSuccessAt *time.Time `json:"last_success_at,omitempty"`
	LastReport    *SyncRun   `json:"last_report,omitempty"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// SyncMetadataStore persists run reports and the heartbeat. Latest returns
// ErrNotFound when no run has ever completed.
type SyncMetadataStore interface {
	SaveRun(ctx context.Context, run *SyncRun) error
	Latest(ctx context.Context) (*SyncMetadata, error)
	RecentRuns(ctx context.Context, limit int) ([]*SyncRun, error)
	Ping(ctx context.Context) error
}
