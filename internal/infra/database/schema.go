package database

import (
	"context"
	"database/sql"
	"fmt"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS sync_runs (
		id          TEXT PRIMARY KEY,
		trigger     TEXT NOT NULL,
		status      TEXT NOT NULL,
		started_at  TIMESTAMPTZ NOT NULL,
		finished_at TIMESTAMPTZ NOT NULL,
		report      JSONB NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS sync_runs_started_at_idx ON sync_runs (started_at DESC)`,
	`CREATE TABLE IF NOT EXISTS sync_metadata (
		id              TEXT PRIMARY KEY,
		last_run_id     TEXT NOT NULL,
		last_run_at     TIMESTAMPTZ NOT NULL,
		last_status     TEXT NOT NULL,
		last_success_at TIMESTAMPTZ,
		last_report     JSONB,
		updated_at      TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS system_errors (
		id          TEXT PRIMARY KEY,
		type        TEXT NOT NULL,
		message     TEXT NOT NULL,
		context     JSONB,
		created_at  TIMESTAMPTZ NOT NULL,
		resolved    BOOLEAN NOT NULL DEFAULT FALSE,
		resolved_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS system_errors_unresolved_idx ON system_errors (created_at) WHERE NOT resolved`,
}

// EnsureSchema creates the metadata tables if they do not exist.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
