// Package config defines the global configuration structure for the panel.
// Configuration is loaded once at process initialization (Lambda cold start
// or API server boot) and is immutable thereafter. It follows 12-Factor App
// principles by strictly separating code from configuration.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File (Lowest)
//
// Any missing required value or invalid format causes the application to
// fail immediately on startup.
package config

import (
	"time"

	"revenda/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type
// used throughout configuration to prevent accidental logging of sensitive
// values.
type SecretString = types.SecretString

// Config is the top-level configuration struct for the panel. It is
// populated once during process initialization and never modified.
// Sub-components receive only the specific config subsets they require.
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"revenda"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// Domain Configurations
	Server        ServerConfig
	Database      DatabaseConfig
	AWS           AWSConfig
	Billing       BillingConfig
	Gateway       GatewayConfig
	Runner        RunnerConfig
	Observability ObservabilityConfig

	// Build Metadata (Injected via ldflags, not Env)
	Build BuildInfo
}

// ServerConfig holds HTTP server and panel authentication settings.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8080"`

	// PanelTokenHash is the bcrypt hash of the admin panel API token.
	// The raw token never appears in configuration.
	PanelTokenHash SecretString `envconfig:"PANEL_TOKEN_HASH" validate:"required"`

	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"30s"`
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required,url"`

	// Tuning Parameters
	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	AcquireTimeout    time.Duration `envconfig:"DB_ACQUIRE_TIMEOUT" default:"2s"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
}

// AWSConfig holds AWS resource identifiers and regional configuration.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"us-east-1"`

	// Resource Identifiers
	DispatchQueueURL string `envconfig:"SQS_DISPATCHES" validate:"required,url"`
	DlqURL           string `envconfig:"SQS_DLQ" validate:"required,url"`

	// LocalStack Support (Empty in Prod)
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// BillingConfig holds Stripe payment integration credentials for the
// panel's own SaaS subscriptions.
type BillingConfig struct {
	StripeSecretKey     SecretString `envconfig:"STRIPE_SECRET_KEY" validate:"required"`
	StripeWebhookSecret SecretString `envconfig:"STRIPE_WEBHOOK_SECRET" validate:"required"`
}

// GatewayConfig holds settings for the outbound WhatsApp message gateway.
type GatewayConfig struct {
	BaseURL string       `envconfig:"WA_GATEWAY_URL" validate:"required,url"`
	APIKey  SecretString `envconfig:"WA_GATEWAY_API_KEY" validate:"required"`

	Timeout    time.Duration `envconfig:"WA_GATEWAY_TIMEOUT" default:"10s"`
	MaxRetries int           `envconfig:"WA_GATEWAY_MAX_RETRIES" default:"3"`
}

// RunnerConfig holds tuning parameters for the daily billing evaluation run.
type RunnerConfig struct {
	// ClientPageSize is the keyset page size when walking the client base.
	ClientPageSize int `envconfig:"RUNNER_PAGE_SIZE" default:"500"`

	// Concurrency bounds the number of client pages evaluated in parallel.
	Concurrency int `envconfig:"RUNNER_CONCURRENCY" default:"4"`

	// MonthlyDedup controls whether monthly-window rules send at most one
	// message per client per calendar window. Disabled means one send per
	// day inside the window.
	MonthlyDedup bool `envconfig:"RUNNER_MONTHLY_DEDUP" default:"true"`

	RunTimeout time.Duration `envconfig:"RUNNER_TIMEOUT" default:"10m"`
}

// ObservabilityConfig holds telemetry and monitoring settings.
type ObservabilityConfig struct {
	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"Revenda"`
	EnableMetrics   bool   `envconfig:"ENABLE_METRICS" default:"true"`
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
