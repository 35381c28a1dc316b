package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/xavierca1/leadsync/internal/app"
	"github.com/xavierca1/leadsync/internal/infra/http/handlers"
	metricsmw "github.com/xavierca1/leadsync/internal/infra/http/middleware"
)

func newRouter(a *app.App, logger *logrus.Logger) http.Handler {
	var syncQueue handlers.SyncQueue
	if a.Producer != nil {
		syncQueue = a.Producer
	}

	syncHandler := handlers.NewSyncHandler(a.Sync, syncQueue, a.Metadata, logger)
	healthHandler := handlers.NewHealthHandler(a.Health, version)
	watchdogHandler := handlers.NewWatchdogHandler(a.Watchdog)
	webhookHandler := handlers.NewWebhookHandler(a.Sync, a.Config.Calcom.WebhookSecret, logger)
	errorsHandler := handlers.NewErrorsHandler(a.Errors)

	var sender handlers.MessageSender
	if a.Send != nil {
		sender = a.Send
	}
	leadHandler := handlers.NewLeadHandler(sender, a.Delete)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(metricsmw.Metrics)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	}))

	r.Get("/health", healthHandler.Handle)
	r.Get("/health/live", healthHandler.Live)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/sync", func(r chi.Router) {
		r.Post("/", syncHandler.Trigger)
		r.Get("/runs", syncHandler.ListRuns)
		r.Get("/latest", syncHandler.Latest)
	})
	r.Post("/watchdog/tick", watchdogHandler.Tick)

	if a.Send != nil {
		r.Post("/leads/{phone}/messages", leadHandler.SendMessage)
	}
	r.Delete("/leads/{phone}", leadHandler.DeleteLead)

	r.Post("/webhooks/bookings", webhookHandler.Handle)

	r.Get("/errors", errorsHandler.ListUnresolved)
	r.Post("/errors/{id}/resolve", errorsHandler.Resolve)

	return r
}
