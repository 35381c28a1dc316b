// Package app wires the stores, integrations and use cases from a Config.
// Both the HTTP server and the one-shot tick command build on it.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/xavierca1/leadsync/internal/config"
	"github.com/xavierca1/leadsync/internal/identity"
	"github.com/xavierca1/leadsync/internal/infra/alert"
	"github.com/xavierca1/leadsync/internal/infra/cache"
	"github.com/xavierca1/leadsync/internal/infra/database"
	"github.com/xavierca1/leadsync/internal/infra/integration/calcom"
	"github.com/xavierca1/leadsync/internal/infra/integration/sheets"
	"github.com/xavierca1/leadsync/internal/infra/integration/twilio"
	"github.com/xavierca1/leadsync/internal/infra/mail"
	"github.com/xavierca1/leadsync/internal/infra/metrics"
	"github.com/xavierca1/leadsync/internal/infra/queue"
	"github.com/xavierca1/leadsync/internal/retry"
	"github.com/xavierca1/leadsync/internal/usecase"
)

type App struct {
	Config *config.Config
	Logger *logrus.Logger

	DB       *sql.DB
	Mongo    *mongo.Client
	Redis    *redis.Client
	RabbitMQ *queue.RabbitMQ
	Sentry   *alert.SentryReporter
	Producer *queue.RabbitMQProducer

	Metadata *database.SyncMetadataRepository
	Errors   *database.SystemErrorRepository
	Leads    *database.LeadRepository
	Sheet    *sheets.Store
	Calcom   *calcom.Client

	Sync     *usecase.SyncLeadsUseCase
	Health   *usecase.HealthCheckUseCase
	Watchdog *usecase.WatchdogUseCase
	Send     *usecase.SendMessageUseCase // nil when SMS is not configured
	Delete   *usecase.DeleteLeadUseCase
}

// Build connects to every configured backend. Optional backends (Redis,
// RabbitMQ, Sentry, SMTP, Twilio) are skipped when unset; a configured one
// that fails to connect is logged and left out.
func Build(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*App, error) {
	identity.SetDefault(cfg.Normalizer())

	a := &App{Config: cfg, Logger: logger}

	// 1. Repositories
	db, err := database.NewPostgresConnection(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	a.DB = db
	if err := database.EnsureSchema(ctx, db); err != nil {
		a.Close()
		return nil, fmt.Errorf("postgres schema: %w", err)
	}
	a.Metadata = database.NewSyncMetadataRepository(db)
	a.Errors = database.NewSystemErrorRepository(db)

	mongoClient, err := database.NewMongoClient(ctx, cfg.Mongo.URI)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("mongo: %w", err)
	}
	a.Mongo = mongoClient
	a.Leads = database.NewLeadRepository(mongoClient.Database(cfg.Mongo.Database), cfg.Mongo.Collection)
	if err := a.Leads.EnsureIndexes(ctx); err != nil {
		a.Close()
		return nil, fmt.Errorf("mongo indexes: %w", err)
	}

	// 2. Integrations
	layout, err := sheets.ParseLayout(cfg.Sheet.Columns)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("sheet layout: %w", err)
	}
	values, err := sheets.NewGoogleValues(ctx, cfg.Sheet.CredentialsFile, cfg.Sheet.SpreadsheetID)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Sheet = sheets.NewStore(values, cfg.Sheet.Tab, layout, logger)
	a.Calcom = calcom.NewClient(cfg.Calcom.APIKey, cfg.Calcom.BaseURL, logger)

	recorder := metrics.NewRecorder()
	engine := retry.NewEngine(cfg.RetryPolicy(), logger, recorder)

	// 3. Alerting and caching
	notifier := a.buildNotifier()

	var healthCache usecase.HealthCache
	if cfg.RedisAddr != "" {
		a.Redis = cache.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword)
		if err := a.Redis.Ping(ctx).Err(); err != nil {
			logger.WithError(err).Warn("⚠️ redis unreachable, health reports will not be cached")
		}
		healthCache = cache.NewHealthCache(a.Redis, logger)
	}

	// 4. UseCases
	a.Health = &usecase.HealthCheckUseCase{
		Sheet:              a.Sheet,
		Docs:               a.Leads,
		Scheduling:         a.Calcom,
		Metadata:           a.Metadata,
		Cache:              healthCache,
		Logger:             logger,
		StalenessThreshold: cfg.Watchdog.StalenessThreshold,
		CacheTTL:           cfg.HealthCacheTTL,
	}
	a.Sync = &usecase.SyncLeadsUseCase{
		Sheet:       a.Sheet,
		Docs:        a.Leads,
		Bookings:    a.Calcom,
		Metadata:    a.Metadata,
		Errors:      a.Errors,
		Health:      a.Health,
		Retry:       engine,
		Metrics:     recorder,
		Alerts:      notifier,
		Logger:      logger,
		EventTypeID: cfg.Calcom.EventTypeID,
		RunTimeout:  cfg.RunTimeout,
	}
	a.Watchdog = &usecase.WatchdogUseCase{
		Metadata:           a.Metadata,
		Errors:             a.Errors,
		Docs:               a.Leads,
		Sync:               a.Sync,
		Alerts:             notifier,
		Metrics:            recorder,
		Logger:             logger,
		StalenessThreshold: cfg.Watchdog.StalenessThreshold,
		ErrorWindow:        cfg.Watchdog.ErrorWindow,
		ErrorThreshold:     cfg.Watchdog.ErrorThreshold,
	}
	a.Delete = &usecase.DeleteLeadUseCase{
		Docs:   a.Leads,
		Sheet:  a.Sheet,
		Retry:  engine,
		Logger: logger,
	}
	if cfg.SMSEnabled() {
		a.Send = &usecase.SendMessageUseCase{
			Docs:   a.Leads,
			Sheet:  a.Sheet,
			SMS:    twilio.NewClient(cfg.Twilio.AccountSID, cfg.Twilio.AuthToken, cfg.Twilio.From, "", logger),
			Retry:  engine,
			Errors: a.Errors,
			Logger: logger,
		}
	}

	return a, nil
}

func (a *App) buildNotifier() *alert.Notifier {
	cfg := a.Config
	logger := a.Logger
	notifier := alert.NewNotifier(logger)

	if cfg.MailEnabled() {
		sender := mail.NewEmailSender(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.User, cfg.SMTP.Pass, cfg.SMTP.AlertTo)
		notifier.Add("email", alert.SinkFunc(sender.SendAlert), usecase.SeverityWarning)
	}

	if cfg.SentryDSN != "" {
		reporter, err := alert.InitSentry(cfg.SentryDSN, cfg.Environment)
		if err != nil {
			logger.WithError(err).Warn("⚠️ sentry disabled")
		} else {
			a.Sentry = reporter
			notifier.Add("sentry", reporter, usecase.SeverityWarning)
		}
	}

	if cfg.RabbitMQURL != "" {
		rabbit, err := queue.NewRabbitMQ(cfg.RabbitMQURL)
		if err != nil {
			logger.WithError(err).Warn("⚠️ rabbitmq unreachable, async sync disabled")
		} else {
			a.RabbitMQ = rabbit
			a.Producer = queue.NewProducer(rabbit.Ch)
			notifier.Add("queue", alert.SinkFunc(a.Producer.PublishAlert), usecase.SeverityInfo)
		}
	}
	return notifier
}

// Close releases every open connection.
func (a *App) Close() {
	if a.Sentry != nil {
		a.Sentry.Flush(2 * time.Second)
	}
	if a.RabbitMQ != nil {
		a.RabbitMQ.Close()
	}
	if a.Redis != nil {
		a.Redis.Close()
	}
	if a.Mongo != nil {
		a.Mongo.Disconnect(context.Background())
	}
	if a.DB != nil {
		a.DB.Close()
	}
}
