// Package config reads the service configuration from the environment. A
// .env file in the working directory is loaded first when present.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/xavierca1/leadsync/internal/identity"
	"github.com/xavierca1/leadsync/internal/retry"
)

type SheetConfig struct {
	CredentialsFile string `validate:"required"`
	SpreadsheetID   string `validate:"required"`
	Tab             string `validate:"required"`
	Columns         string
}

type MongoConfig struct {
	URI        string `validate:"required"`
	Database   string `validate:"required"`
	Collection string `validate:"required"`
}

type CalcomConfig struct {
	APIKey        string
	BaseURL       string `validate:"omitempty,url"`
	EventTypeID   string
	WebhookSecret string
}

type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	From       string
}

type SMTPConfig struct {
	Host    string
	Port    int `validate:"gte=0,lte=65535"`
	User    string
	Pass    string
	AlertTo []string `validate:"dive,email"`
}

type RetryConfig struct {
	MaxAttempts int           `validate:"gte=1,lte=10"`
	BaseDelay   time.Duration `validate:"gte=0"`
	Jitter      float64       `validate:"gte=0,lte=1"`
	CallTimeout time.Duration `validate:"gt=0"`
}

type WatchdogConfig struct {
	Interval           time.Duration `validate:"gte=0"`
	StalenessThreshold time.Duration `validate:"gt=0"`
	ErrorWindow        time.Duration `validate:"gt=0"`
	ErrorThreshold     int           `validate:"gte=1"`
}

type Config struct {
	Environment string
	Port        string `validate:"required,numeric"`
	LogLevel    string `validate:"oneof=trace debug info warn warning error"`
	LogFormat   string `validate:"oneof=json text"`

	DatabaseURL   string `validate:"required"`
	RabbitMQURL   string
	RedisAddr     string
	RedisPassword string
	SentryDSN     string

	Sheet    SheetConfig
	Mongo    MongoConfig
	Calcom   CalcomConfig
	Twilio   TwilioConfig
	SMTP     SMTPConfig
	Retry    RetryConfig
	Watchdog WatchdogConfig

	CountryCode    string        `validate:"required,numeric"`
	RunTimeout     time.Duration `validate:"gt=0"`
	HealthCacheTTL time.Duration `validate:"gte=0"`
}

var validate = validator.New()

// Load reads the configuration and validates it.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Port:        getEnv("PORT", "8080"),
		LogLevel:    strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:   strings.ToLower(getEnv("LOG_FORMAT", "text")),

		DatabaseURL:   getEnv("DATABASE_URL", ""),
		RabbitMQURL:   getEnv("RABBITMQ_URL", ""),
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		SentryDSN:     getEnv("SENTRY_DSN", ""),

		Sheet: SheetConfig{
			CredentialsFile: getEnv("GOOGLE_CREDENTIALS_FILE", ""),
			SpreadsheetID:   getEnv("SHEET_ID", ""),
			Tab:             getEnv("SHEET_TAB", "Leads"),
			Columns:         getEnv("SHEET_COLUMNS", ""),
		},
		Mongo: MongoConfig{
			URI:        getEnv("MONGO_URI", ""),
			Database:   getEnv("MONGO_DATABASE", "leadsync"),
			Collection: getEnv("MONGO_LEADS_COLLECTION", "leads"),
		},
		Calcom: CalcomConfig{
			APIKey:        getEnv("CALCOM_API_KEY", ""),
			BaseURL:       getEnv("CALCOM_BASE_URL", ""),
			EventTypeID:   getEnv("CALCOM_EVENT_TYPE_ID", ""),
			WebhookSecret: getEnv("CALCOM_WEBHOOK_SECRET", ""),
		},
		Twilio: TwilioConfig{
			AccountSID: getEnv("TWILIO_ACCOUNT_SID", ""),
			AuthToken:  getEnv("TWILIO_AUTH_TOKEN", ""),
			From:       getEnv("TWILIO_FROM", ""),
		},
		SMTP: SMTPConfig{
			Host:    getEnv("SMTP_HOST", ""),
			Port:    getEnvAsInt("SMTP_PORT", 587),
			User:    getEnv("SMTP_USER", ""),
			Pass:    getEnv("SMTP_PASS", ""),
			AlertTo: splitList(getEnv("ALERT_EMAIL_TO", "")),
		},
		Retry: RetryConfig{
			MaxAttempts: getEnvAsInt("RETRY_MAX_ATTEMPTS", 3),
			BaseDelay:   getEnvAsDuration("RETRY_BASE_DELAY", time.Second),
			Jitter:      getEnvAsFloat("RETRY_JITTER", 0),
			CallTimeout: getEnvAsDuration("CALL_TIMEOUT", 15*time.Second),
		},
		Watchdog: WatchdogConfig{
			Interval:           getEnvAsDuration("WATCHDOG_INTERVAL", 5*time.Minute),
			StalenessThreshold: getEnvAsDuration("STALENESS_THRESHOLD", 10*time.Minute),
			ErrorWindow:        getEnvAsDuration("ERROR_WINDOW", time.Hour),
			ErrorThreshold:     getEnvAsInt("ERROR_THRESHOLD", 10),
		},

		CountryCode:    strings.TrimPrefix(getEnv("DEFAULT_COUNTRY_CODE", "44"), "+"),
		RunTimeout:     getEnvAsDuration("RUN_TIMEOUT", 4*time.Minute),
		HealthCacheTTL: getEnvAsDuration("HEALTH_CACHE_TTL", 30*time.Second),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed '%s'", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
}

func (c *Config) RetryPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts: c.Retry.MaxAttempts,
		BaseDelay:   c.Retry.BaseDelay,
		Jitter:      c.Retry.Jitter,
		CallTimeout: c.Retry.CallTimeout,
	}
}

// Normalizer is the phone normalizer for the configured country.
func (c *Config) Normalizer() identity.Normalizer {
	n := identity.Default()
	n.CountryCode = c.CountryCode
	return n
}

func (c *Config) SMSEnabled() bool {
	return c.Twilio.AccountSID != "" && c.Twilio.AuthToken != "" && c.Twilio.From != ""
}

func (c *Config) MailEnabled() bool {
	return c.SMTP.Host != "" && len(c.SMTP.AlertTo) > 0
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	v, err := strconv.Atoi(getEnv(key, ""))
	if err != nil {
		return fallback
	}
	return v
}

func getEnvAsFloat(key string, fallback float64) float64 {
	v, err := strconv.ParseFloat(getEnv(key, ""), 64)
	if err != nil {
		return fallback
	}
	return v
}

// getEnvAsDuration accepts Go durations ("90s") and bare seconds ("90").
func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
