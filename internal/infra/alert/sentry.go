package alert

import (
	"context"
	"errors"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/xavierca1/leadsync/internal/usecase"
)

// SentryReporter captures alerts on a sentry hub.
type SentryReporter struct {
	Hub *sentry.Hub
}

func InitSentry(dsn, environment string) (*SentryReporter, error) {
	client, err := sentry.NewClient(sentry.ClientOptions{
		Dsn:         dsn,
		Environment: environment,
	})
	if err != nil {
		return nil, err
	}
	return &SentryReporter{Hub: sentry.NewHub(client, sentry.NewScope())}, nil
}

func (r *SentryReporter) Deliver(ctx context.Context, a usecase.Alert) error {
	r.Hub.WithScope(func(scope *sentry.Scope) {
		scope.SetLevel(level(a.Severity))
		scope.SetTag("alert_type", a.Type)
		if a.Overall != "" {
			scope.SetTag("watchdog", string(a.Overall))
		}
		if a.ErrorID != "" {
			scope.SetTag("error_id", a.ErrorID)
		}
		extra := sentry.Context{"raised_at": a.RaisedAt.Format(time.RFC3339)}
		for k, v := range a.Context {
			extra[k] = v
		}
		scope.SetContext("alert", extra)

		if a.Severity == usecase.SeverityCritical {
			r.Hub.CaptureException(errors.New(a.Message))
			return
		}
		r.Hub.CaptureMessage(a.Message)
	})
	return nil
}

func (r *SentryReporter) Flush(timeout time.Duration) bool {
	return r.Hub.Flush(timeout)
}

func level(s usecase.Severity) sentry.Level {
	switch s {
	case usecase.SeverityCritical:
		return sentry.LevelError
	case usecase.SeverityWarning:
		return sentry.LevelWarning
	}
	return sentry.LevelInfo
}
