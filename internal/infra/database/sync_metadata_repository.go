package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/lib/pq"

	"github.com/xavierca1/leadsync/internal/entity"
)

const latestMetadataID = "latest"

type SyncMetadataRepository struct {
	DB *sql.DB
}

func NewSyncMetadataRepository(db *sql.DB) *SyncMetadataRepository {
	return &SyncMetadataRepository{DB: db}
}

// SaveRun appends the run report and overwrites the heartbeat in one
// transaction. last_success_at only advances for runs that refreshed the
// document store.
func (r *SyncMetadataRepository) SaveRun(ctx context.Context, run *entity.SyncRun) error {
	report, err := json.Marshal(run)
	if err != nil {
		return entity.NewFatal("metadata.save", err)
	}

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return pgErr("metadata.save", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sync_runs (id, trigger, status, started_at, finished_at, report)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			finished_at = EXCLUDED.finished_at,
			report = EXCLUDED.report
	`, run.ID, run.Trigger, string(run.Status), run.StartedAt, run.FinishedAt, report)
	if err != nil {
		return pgErr("metadata.save", err)
	}

	var successAt *time.Time
	if run.Succeeded() {
		t := run.FinishedAt
		successAt = &t
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sync_metadata (id, last_run_id, last_run_at, last_status, last_success_at, last_report, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (id) DO UPDATE SET
			last_run_id = EXCLUDED.last_run_id,
			last_run_at = EXCLUDED.last_run_at,
			last_status = EXCLUDED.last_status,
			last_success_at = COALESCE(EXCLUDED.last_success_at, sync_metadata.last_success_at),
			last_report = EXCLUDED.last_report,
			updated_at = NOW()
	`, latestMetadataID, run.ID, run.FinishedAt, string(run.Status), successAt, report)
	if err != nil {
		return pgErr("metadata.save", err)
	}

	return pgErr("metadata.save", tx.Commit())
}

func (r *SyncMetadataRepository) Latest(ctx context.Context) (*entity.SyncMetadata, error) {
	var (
		meta      entity.SyncMetadata
		status    string
		successAt sql.NullTime
		report    []byte
	)
	err := r.DB.QueryRowContext(ctx, `
		SELECT last_run_id, last_run_at, last_status, last_success_at, last_report, updated_at
		FROM sync_metadata WHERE id = $1
	`, latestMetadataID).Scan(&meta.LastRunID, &meta.LastRunAt, &status, &successAt, &report, &meta.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, entity.ErrNotFound
	}
	if err != nil {
		return nil, pgErr("metadata.latest", err)
	}

	meta.LastStatus = entity.RunStatus(status)
	if successAt.Valid {
		t := successAt.Time.UTC()
		meta.LastSuccessAt = &t
	}
	if len(report) > 0 {
		var run entity.SyncRun
		if err := json.Unmarshal(report, &run); err == nil {
			meta.LastReport = &run
		}
	}
	return &meta, nil
}

func (r *SyncMetadataRepository) RecentRuns(ctx context.Context, limit int) ([]*entity.SyncRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.DB.QueryContext(ctx, `
		SELECT report FROM sync_runs ORDER BY started_at DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, pgErr("metadata.runs", err)
	}
	defer rows.Close()

	var runs []*entity.SyncRun
	for rows.Next() {
		var report []byte
		if err := rows.Scan(&report); err != nil {
			return nil, pgErr("metadata.runs", err)
		}
		var run entity.SyncRun
		if err := json.Unmarshal(report, &run); err != nil {
			continue
		}
		runs = append(runs, &run)
	}
	return runs, pgErr("metadata.runs", rows.Err())
}

func (r *SyncMetadataRepository) Ping(ctx context.Context) error {
	return pgErr("metadata.ping", r.DB.PingContext(ctx))
}

// pgErr labels database errors for the retry engine. Connection-class
// (08xxx), serialization and lock failures are transient.
func pgErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch {
		case pqErr.Code.Class() == "08",
			pqErr.Code == "40001", pqErr.Code == "40P01",
			pqErr.Code == "57P01", pqErr.Code == "53300":
			return entity.NewTransient(op, err)
		}
		return entity.NewFatal(op, err)
	}
	return entity.NewTransient(op, err)
}
