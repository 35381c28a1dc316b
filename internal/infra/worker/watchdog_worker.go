package worker

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/xavierca1/leadsync/internal/usecase"
)

type Ticker interface {
	Tick(ctx context.Context) *usecase.WatchdogReport
}

// WatchdogWorker ticks the watchdog in-process. Deployments that drive the
// watchdog from an external scheduler leave it disabled.
type WatchdogWorker struct {
	watchdog     Ticker
	tickInterval time.Duration
	logger       logrus.FieldLogger
}

func NewWatchdogWorker(watchdog Ticker, interval time.Duration, logger logrus.FieldLogger) *WatchdogWorker {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &WatchdogWorker{
		watchdog:     watchdog,
		tickInterval: interval,
		logger:       logger.WithField("component", "watchdog-worker"),
	}
}

func (w *WatchdogWorker) Start(ctx context.Context) {
	w.logger.Infof("🐕 watchdog worker started (every %s)", w.tickInterval)

	ticker := time.NewTicker(w.tickInterval)
	defer ticker.Stop()

	w.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("⚠️ watchdog worker stopped")
			return
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *WatchdogWorker) tick(ctx context.Context) {
	report := w.watchdog.Tick(ctx)
	if report.Overall != usecase.WatchdogHealthy {
		w.logger.WithFields(logrus.Fields{
			"overall": report.Overall,
			"trigger": report.Trigger,
			"actions": report.Actions,
		}).Warn("⏱️ watchdog tick needs attention")
	}
}
