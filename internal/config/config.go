// Package config defines the global configuration structure for the Storepulse
// workers. Configuration is loaded once at process initialization (Lambda Cold
// Start) and is immutable thereafter. It follows 12-Factor App principles by
// strictly separating code from configuration.
//
// Any missing required value or invalid format causes the application to fail
// immediately on startup.
package config

import (
	"time"

	"storepulse/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type used
// throughout configuration to prevent accidental logging of sensitive values.
type SecretString = types.SecretString

// Config is the top-level configuration struct for the Storepulse workers.
// It is populated once during process initialization and never modified.
// Sub-components receive only the specific config subsets they require
// (Least Privilege principle).
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"OTEL_SERVICE_NAME" default:"storepulse"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// Domain Configurations
	Server        ServerConfig
	Database      DatabaseConfig
	AWS           AWSConfig
	Alerts        AlertsConfig
	Email         EmailConfig
	SMS           SMSConfig
	CRM           CRMConfig
	Webhook       WebhookConfig
	Catalog       CatalogConfig
	Enrichment    EnrichmentConfig
	Observability ObservabilityConfig
	Feature       FeatureConfig

	// Build Metadata (Injected via ldflags, not Env)
	Build BuildInfo
}

// ServerConfig holds the ops HTTP surface configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8080"`
	// OpsAPIKey authenticates the external cron caller and operators.
	OpsAPIKey SecretString `envconfig:"OPS_API_KEY" validate:"required"`
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required,url"`

	// Tuning Parameters
	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	AcquireTimeout    time.Duration `envconfig:"DB_ACQUIRE_TIMEOUT" default:"2s"`     // Fail fast when pool exhausted
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"` // Detect dead connections during failover
}

// AWSConfig holds AWS resource identifiers and regional configuration.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"us-east-1"`

	// IndexQueueURL is the SQS queue carrying IndexJobMessage payloads.
	IndexQueueURL string `envconfig:"SQS_INDEX_JOBS" validate:"required,url"`

	// ArchiveBucket receives dead-letter exports. Empty disables archiving;
	// dead alerts then stay in the table past retention.
	ArchiveBucket string `envconfig:"S3_ARCHIVE_BUCKET"`

	// LocalStack Support (Empty in Prod)
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// AlertsConfig holds the delivery retry policy and scheduler tuning.
type AlertsConfig struct {
	// MaxAttempts is the total delivery attempts before an alert is
	// eligible for the dead-letter sweep.
	MaxAttempts int `envconfig:"ALERT_MAX_ATTEMPTS" default:"3" validate:"min=1"`

	// Backoff curve: delay = BackoffBase * BackoffFactor^(attempts-1),
	// capped at BackoffMax. Defaults produce 1m, 5m, 25m.
	BackoffBase   time.Duration `envconfig:"ALERT_BACKOFF_BASE" default:"1m"`
	BackoffFactor float64       `envconfig:"ALERT_BACKOFF_FACTOR" default:"5"`
	BackoffMax    time.Duration `envconfig:"ALERT_BACKOFF_MAX" default:"25m"`

	// BatchSize bounds how many queued alerts one scheduler pass claims.
	BatchSize int `envconfig:"ALERT_BATCH_SIZE" default:"50" validate:"min=1"`

	// ClaimTimeout is how long a row may sit in "sending" before the
	// recovery sweep returns it to "queued" (crashed worker).
	ClaimTimeout time.Duration `envconfig:"ALERT_CLAIM_TIMEOUT" default:"10m"`

	// IdleThreshold is how long a session may be silent before the idle
	// detector treats it as abandoned.
	IdleThreshold time.Duration `envconfig:"SESSION_IDLE_THRESHOLD" default:"15m"`

	// DeadRetentionDays is how long dead alerts are kept before the
	// archive sweep exports and prunes them.
	DeadRetentionDays int `envconfig:"ALERT_DEAD_RETENTION_DAYS" default:"30"`
}

// EmailConfig holds email delivery provider credentials.
type EmailConfig struct {
	SendGridAPIKey SecretString `envconfig:"SENDGRID_API_KEY" validate:"required"`
	FromAddress    string       `envconfig:"EMAIL_FROM_ADDRESS" default:"alerts@storepulse.io"`
	FromName       string       `envconfig:"EMAIL_FROM_NAME" default:"Storepulse Alerts"`
}

// SMSConfig holds Twilio credentials for SMS delivery.
type SMSConfig struct {
	TwilioAccountSID string       `envconfig:"TWILIO_ACCOUNT_SID" validate:"required"`
	TwilioAuthToken  SecretString `envconfig:"TWILIO_AUTH_TOKEN" validate:"required"`
	FromNumber       string       `envconfig:"TWILIO_FROM_NUMBER" validate:"required"`
}

// CRMConfig holds Podium CRM integration credentials.
type CRMConfig struct {
	PodiumAPIKey  SecretString `envconfig:"PODIUM_API_KEY"`
	PodiumBaseURL string       `envconfig:"PODIUM_BASE_URL" default:"https://api.podium.com/v4"`
}

// WebhookConfig holds settings for outbound webhook delivery.
type WebhookConfig struct {
	UserAgent      string        `envconfig:"WEBHOOK_USER_AGENT" default:"Storepulse-Webhook/1.0"`
	DefaultTimeout time.Duration `envconfig:"WEBHOOK_TIMEOUT" default:"10s"`
	MaxRedirects   int           `envconfig:"WEBHOOK_MAX_REDIRECTS" default:"3"`
}

// CatalogConfig holds storefront API access for the indexer.
type CatalogConfig struct {
	ShopifyAPIVersion string       `envconfig:"SHOPIFY_API_VERSION" default:"2024-10"`
	ShopifyToken      SecretString `envconfig:"SHOPIFY_ADMIN_TOKEN" validate:"required"`
	PageSize          int          `envconfig:"CATALOG_PAGE_SIZE" default:"100" validate:"min=1,max=250"`
}

// EnrichmentConfig holds AI enrichment settings for the indexer.
type EnrichmentConfig struct {
	OpenAIAPIKey SecretString `envconfig:"OPENAI_API_KEY"`
	Model        string       `envconfig:"ENRICHMENT_MODEL" default:"gpt-4o-mini"`

	// EmbeddingModel generates the search vectors the quiz matches against.
	EmbeddingModel string `envconfig:"EMBEDDING_MODEL" default:"text-embedding-3-small"`

	// ConfidenceThreshold gates acceptance of model-extracted attributes.
	ConfidenceThreshold float64       `envconfig:"ENRICHMENT_CONFIDENCE_THRESHOLD" default:"0.7" validate:"min=0,max=1"`
	Timeout             time.Duration `envconfig:"ENRICHMENT_TIMEOUT" default:"30s"`

	// Concurrency bounds the indexer worker pool.
	Concurrency int `envconfig:"INDEXER_CONCURRENCY" default:"4" validate:"min=1"`
}

// ObservabilityConfig holds telemetry and monitoring settings.
type ObservabilityConfig struct {
	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"Storepulse"`
}

// FeatureConfig holds emergency kill switches for system capabilities.
type FeatureConfig struct {
	EnableAIEnrichment bool `envconfig:"FEATURE_ENABLE_AI_ENRICHMENT" default:"true"`
	EnableSMS          bool `envconfig:"FEATURE_ENABLE_SMS" default:"true"`
}

// BuildInfo holds build-time metadata injected via ldflags.
// These values are NOT populated from environment variables.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration loading failures to aid debugging.
type ConfigErrorType string

const (
	// ErrMissingEnv indicates a required environment variable was not found.
	ErrMissingEnv ConfigErrorType = "MISSING_ENV"
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates a failure when parsing environment variable values
	// into their target types.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
)
