package usecase

import (
	"time"

	"github.com/xavierca1/leadsync/internal/entity"
)

type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Alert is an operator notification raised by the watchdog or a failed run.
type Alert struct {
	Severity Severity          `json:"severity"`
	Type     string            `json:"type"`
	Message  string            `json:"message"`
	Context  map[string]string `json:"context,omitempty"`
	RaisedAt time.Time         `json:"raised_at"`
	ErrorID  string            `json:"error_id,omitempty"`
	Overall  WatchdogStatus    `json:"overall,omitempty"`
}

type SendMessageInput struct {
	Phone string `json:"phone" validate:"required"`
	Step  int    `json:"step" validate:"required,min=1,max=3"`
	Body  string `json:"body" validate:"required,max=1600"`
}

type SendMessageOutput struct {
	Phone     string               `json:"phone"`
	Step      int                  `json:"step"`
	MessageID string               `json:"message_id"`
	Status    entity.ContactStatus `json:"status"`
	// Warnings lists stores whose record-keeping failed after the SMS went out.
	Warnings []string `json:"warnings,omitempty"`
}

type DeleteLeadOutput struct {
	Phone           string `json:"phone"`
	DeletedDocument bool   `json:"deleted_document"`
	ClearedRow      bool   `json:"cleared_row"`
}
