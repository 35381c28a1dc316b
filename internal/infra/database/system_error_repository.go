package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/xavierca1/leadsync/internal/entity"
)

type SystemErrorRepository struct {
	DB *sql.DB
}

func NewSystemErrorRepository(db *sql.DB) *SystemErrorRepository {
	return &SystemErrorRepository{DB: db}
}

func (r *SystemErrorRepository) Record(ctx context.Context, e *entity.SystemError) error {
	var contextJSON interface{}
	if len(e.Context) > 0 {
		b, err := json.Marshal(e.Context)
		if err != nil {
			return entity.NewFatal("errors.record", err)
		}
		contextJSON = string(b)
	}
	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO system_errors (id, type, message, context, created_at, resolved)
		VALUES ($1, $2, $3, $4, $5, FALSE)
		ON CONFLICT (id) DO NOTHING
	`, e.ID, e.Type, e.Message, contextJSON, e.CreatedAt)
	return pgErr("errors.record", err)
}

func (r *SystemErrorRepository) CountUnresolvedSince(ctx context.Context, since time.Time) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM system_errors WHERE NOT resolved AND created_at >= $1
	`, since).Scan(&n)
	return n, pgErr("errors.count", err)
}

func (r *SystemErrorRepository) ListUnresolved(ctx context.Context, limit int) ([]*entity.SystemError, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.DB.QueryContext(ctx, `
		SELECT id, type, message, context, created_at
		FROM system_errors
		WHERE NOT resolved
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, pgErr("errors.list", err)
	}
	defer rows.Close()

	var out []*entity.SystemError
	for rows.Next() {
		var (
			e           entity.SystemError
			contextJSON []byte
		)
		if err := rows.Scan(&e.ID, &e.Type, &e.Message, &contextJSON, &e.CreatedAt); err != nil {
			return nil, pgErr("errors.list", err)
		}
		if len(contextJSON) > 0 {
			json.Unmarshal(contextJSON, &e.Context)
		}
		out = append(out, &e)
	}
	return out, pgErr("errors.list", rows.Err())
}

func (r *SystemErrorRepository) Resolve(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE system_errors SET resolved = TRUE, resolved_at = NOW()
		WHERE id = $1 AND NOT resolved
	`, id)
	if err != nil {
		return pgErr("errors.resolve", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return entity.ErrNotFound
	}
	return nil
}

// ResolveByType closes every open entry of errType and returns how many.
func (r *SystemErrorRepository) ResolveByType(ctx context.Context, errType string) (int, error) {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE system_errors SET resolved = TRUE, resolved_at = NOW()
		WHERE type = $1 AND NOT resolved
	`, errType)
	if err != nil {
		return 0, pgErr("errors.resolve", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
