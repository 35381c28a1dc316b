package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/xavierca1/leadsync/internal/app"
	"github.com/xavierca1/leadsync/internal/config"
	"github.com/xavierca1/leadsync/internal/infra/queue"
	"github.com/xavierca1/leadsync/internal/infra/worker"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("❌ configuration")
	}
	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("❌ startup failed")
	}
	defer a.Close()

	// 1. Workers
	if a.RabbitMQ != nil {
		w := queue.NewWorker(a.RabbitMQ.Ch, a.Sync, logger)
		go func() {
			if err := w.Start(ctx, queue.SyncQueueName); err != nil {
				logger.WithError(err).Error("❌ sync queue consumer stopped")
			}
		}()
	}
	if cfg.Watchdog.Interval > 0 {
		go worker.NewWatchdogWorker(a.Watchdog, cfg.Watchdog.Interval, logger).Start(ctx)
	}

	// 2. Server
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           newRouter(a, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Infof("🔥 leadsync %s listening on %s", version, srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("❌ server failed")
		}
	}()

	<-ctx.Done()
	logger.Info("🛑 shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("⚠️ forced shutdown")
	}
}

func newLogger(cfg *config.Config) *logrus.Logger {
	logger := logrus.New()
	if cfg.LogFormat == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	}
	return logger
}
