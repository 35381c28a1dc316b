package entity

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const (
	ErrorTypeStaleHeartbeat = "stale_heartbeat"
	ErrorTypeEmptyStore     = "empty_store"
	ErrorTypeErrorRate      = "error_rate"
	ErrorTypeTriggerFailed  = "sync_trigger_failed"
	ErrorTypeStageFailed    = "sync_stage_failed"
	ErrorTypeRecordRejected = "record_rejected"
	ErrorTypeMessageFailed  = "message_send_failed"
)

// SystemError is an append-only anomaly log entry. Only Resolved changes
// after creation.
type SystemError struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	Message    string            `json:"message"`
	Context    map[string]string `json:"context,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	Resolved   bool              `json:"resolved"`
	ResolvedAt *time.Time        `json:"resolved_at,omitempty"`
}

func NewSystemError(errType, message string, ctx map[string]string) *SystemError {
	return &SystemError{
		ID:        uuid.New().String(),
		Type:      errType,
		Message:   message,
		Context:   ctx,
		CreatedAt: time.Now().UTC(),
	}
}

type SystemErrorStore interface {
	Record(ctx context.Context, e *SystemError) error
	CountUnresolvedSince(ctx context.Context, since time.Time) (int, error)
	ListUnresolved(ctx context.Context, limit int) ([]*SystemError, error)
	Resolve(ctx context.Context, id string) error
	ResolveByType(ctx context.Context, errType string) (int, error)
}
