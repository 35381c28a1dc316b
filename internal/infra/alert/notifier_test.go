package alert

import (
	"context"
	"errors"
	"testing"

	"github.com/getsentry/sentry-go"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xavierca1/leadsync/internal/usecase"
)

type recordingSink struct {
	got []usecase.Alert
	err error
}

func (s *recordingSink) Deliver(ctx context.Context, a usecase.Alert) error {
	s.got = append(s.got, a)
	return s.err
}

func TestNotifier_RoutesBySeverity(t *testing.T) {
	logger, _ := test.NewNullLogger()
	mail := &recordingSink{}
	queue := &recordingSink{}
	n := NewNotifier(logger).
		Add("mail", mail, usecase.SeverityWarning).
		Add("queue", queue, usecase.SeverityInfo)

	n.Alert(context.Background(), usecase.Alert{Severity: usecase.SeverityInfo, Type: "note"})
	n.Alert(context.Background(), usecase.Alert{Severity: usecase.SeverityCritical, Type: "empty_store"})

	assert.Len(t, queue.got, 2)
	require.Len(t, mail.got, 1)
	assert.Equal(t, "empty_store", mail.got[0].Type)
}

func TestNotifier_FailingSinkDoesNotStopOthers(t *testing.T) {
	logger, hook := test.NewNullLogger()
	broken := &recordingSink{err: errors.New("smtp down")}
	queue := &recordingSink{}
	n := NewNotifier(logger).
		Add("mail", broken, usecase.SeverityInfo).
		Add("queue", queue, usecase.SeverityInfo)

	n.Alert(context.Background(), usecase.Alert{Severity: usecase.SeverityWarning, Type: "stale_heartbeat", Message: "stale"})

	assert.Len(t, queue.got, 1)
	last := hook.LastEntry()
	require.NotNil(t, last)
	assert.Equal(t, logrus.WarnLevel, last.Level)
	assert.Equal(t, "mail", last.Data["sink"])
}

func TestNotifier_DeliversAfterCallerCancel(t *testing.T) {
	logger, _ := test.NewNullLogger()
	var sawErr error
	n := NewNotifier(logger).Add("probe", SinkFunc(func(ctx context.Context, a usecase.Alert) error {
		sawErr = ctx.Err()
		return nil
	}), usecase.SeverityInfo)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	n.Alert(ctx, usecase.Alert{Severity: usecase.SeverityCritical})

	assert.NoError(t, sawErr)
}

func TestSentryReporter_Deliver(t *testing.T) {
	var events []*sentry.Event
	client, err := sentry.NewClient(sentry.ClientOptions{
		BeforeSend: func(event *sentry.Event, hint *sentry.EventHint) *sentry.Event {
			events = append(events, event)
			return nil
		},
	})
	require.NoError(t, err)
	r := &SentryReporter{Hub: sentry.NewHub(client, sentry.NewScope())}

	require.NoError(t, r.Deliver(context.Background(), usecase.Alert{
		Severity: usecase.SeverityCritical,
		Type:     "sync_trigger_failed",
		Message:  "watchdog stale sync failed",
		ErrorID:  "err-7",
		Context:  map[string]string{"trigger": "stale"},
	}))
	require.NoError(t, r.Deliver(context.Background(), usecase.Alert{Severity: usecase.SeverityWarning, Type: "watchdog_degraded", Message: "degraded"}))

	require.Len(t, events, 2)
	assert.Equal(t, sentry.LevelError, events[0].Level)
	assert.Equal(t, "sync_trigger_failed", events[0].Tags["alert_type"])
	assert.Equal(t, "err-7", events[0].Tags["error_id"])
	require.NotEmpty(t, events[0].Exception)
	assert.Equal(t, "watchdog stale sync failed", events[0].Exception[0].Value)
	assert.Equal(t, "stale", events[0].Contexts["alert"]["trigger"])

	assert.Equal(t, sentry.LevelWarning, events[1].Level)
	assert.Equal(t, "degraded", events[1].Message)
}
