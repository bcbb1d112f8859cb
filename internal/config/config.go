// Package config composes the application configuration for the Luma server
// and clients from environment variables and an optional YAML file.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/lumaproject/luma/pkg/logger"
)

// AppConfig holds all application configuration
type AppConfig struct {
	// Service configuration
	ServiceName string `env:"SERVICE_NAME" yaml:"service_name" default:"luma"`
	Version     string `env:"VERSION" yaml:"version" default:"dev"`
	Environment string `env:"ENVIRONMENT" yaml:"environment" default:"development"`

	// Server configuration
	Port           int           `env:"PORT" yaml:"port" default:"8080"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" yaml:"request_timeout" default:"30s"`
	IdleTimeout    time.Duration `env:"IDLE_TIMEOUT" yaml:"idle_timeout" default:"60s"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging,inline"`

	// Monitoring configuration
	Monitoring MonitoringConfig `yaml:"monitoring,inline"`

	// Store configuration
	Database DatabaseConfig `yaml:"database,inline"`

	// Triage classification boundary
	Classifier ClassifierConfig `yaml:"classifier,inline"`

	// Escalation prompt scheduling
	Triage TriageConfig `yaml:"triage,inline"`

	// Polling cadences
	Sync SyncConfig `yaml:"sync,inline"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `env:"LOG_LEVEL" yaml:"level" default:"info"`
	Format string `env:"LOG_FORMAT" yaml:"format" default:"json"`
}

// MonitoringConfig holds monitoring configuration
type MonitoringConfig struct {
	HealthCheckTimeout time.Duration `env:"HEALTH_CHECK_TIMEOUT" yaml:"health_check_timeout" default:"10s"`
	MetricsEnabled     bool          `env:"METRICS_ENABLED" yaml:"metrics_enabled" default:"true"`
	MetricsPort        int           `env:"METRICS_PORT" yaml:"metrics_port" default:"9090"`
}

// DatabaseConfig selects and configures the session store backend.
type DatabaseConfig struct {
	Backend         string        `env:"STORE_BACKEND" yaml:"backend" default:"memory"`
	URL             string        `env:"DATABASE_URL" yaml:"url"`
	MaxConnections  int           `env:"DATABASE_MAX_CONNECTIONS" yaml:"max_connections" default:"25"`
	ConnMaxLifetime time.Duration `env:"DATABASE_CONN_MAX_LIFETIME" yaml:"conn_max_lifetime" default:"5m"`
}

// ClassifierConfig selects the triage classification provider.
type ClassifierConfig struct {
	Provider string        `env:"CLASSIFIER_PROVIDER" yaml:"provider" default:"keyword"`
	APIKey   string        `env:"CLASSIFIER_API_KEY" yaml:"api_key"`
	Model    string        `env:"CLASSIFIER_MODEL" yaml:"model"`
	Timeout  time.Duration `env:"CLASSIFIER_TIMEOUT" yaml:"timeout" default:"10s"`
}

// TriageConfig holds the escalation prompt delays. The delays only sequence a
// prompt after the bot's reply; they are not rate limits.
type TriageConfig struct {
	UrgentPromptDelay time.Duration `env:"URGENT_PROMPT_DELAY" yaml:"urgent_prompt_delay" default:"500ms"`
	NormalPromptDelay time.Duration `env:"NORMAL_PROMPT_DELAY" yaml:"normal_prompt_delay" default:"800ms"`
}

// SyncConfig holds the polling cadences. Message sync tolerates far less
// staleness than the availability feed, hence the distinct intervals.
type SyncConfig struct {
	MessagePollInterval      time.Duration `env:"MESSAGE_POLL_INTERVAL" yaml:"message_poll_interval" default:"2s"`
	AvailabilityPollInterval time.Duration `env:"AVAILABILITY_POLL_INTERVAL" yaml:"availability_poll_interval" default:"30s"`
}

// Validate validates the configuration and returns an error if invalid
func (c *AppConfig) Validate() error {
	var result error

	validLevels := []string{"debug", "info", "warn", "error"}
	level := strings.ToLower(c.Logging.Level)
	valid := false
	for _, validLevel := range validLevels {
		if level == validLevel {
			valid = true
			break
		}
	}
	if !valid {
		result = multierror.Append(result, fmt.Errorf("log_level must be one of [debug, info, warn, error], got %q", c.Logging.Level))
	}

	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		result = multierror.Append(result, fmt.Errorf("log_format must be either 'json' or 'text', got %q", c.Logging.Format))
	}

	if c.Port < 1 || c.Port > 65535 {
		result = multierror.Append(result, fmt.Errorf("port must be between 1 and 65535, got %d", c.Port))
	}

	if c.RequestTimeout <= 0 {
		result = multierror.Append(result, fmt.Errorf("request_timeout must be greater than 0"))
	}

	switch strings.ToLower(c.Database.Backend) {
	case "memory":
	case "postgres":
		if c.Database.URL == "" {
			result = multierror.Append(result, fmt.Errorf("database url is required for the postgres backend"))
		}
		if c.Database.MaxConnections <= 0 {
			result = multierror.Append(result, fmt.Errorf("database_max_connections must be greater than 0"))
		}
	default:
		result = multierror.Append(result, fmt.Errorf("store backend must be 'memory' or 'postgres', got %q", c.Database.Backend))
	}

	switch strings.ToLower(c.Classifier.Provider) {
	case "keyword":
	case "openai", "anthropic":
		if c.Classifier.APIKey == "" {
			result = multierror.Append(result, fmt.Errorf("classifier api key is required for provider %q", c.Classifier.Provider))
		}
	default:
		result = multierror.Append(result, fmt.Errorf("classifier provider must be 'keyword', 'openai' or 'anthropic', got %q", c.Classifier.Provider))
	}

	if c.Triage.UrgentPromptDelay < 0 || c.Triage.NormalPromptDelay < 0 {
		result = multierror.Append(result, fmt.Errorf("triage prompt delays cannot be negative"))
	}

	if c.Sync.MessagePollInterval <= 0 {
		result = multierror.Append(result, fmt.Errorf("message_poll_interval must be greater than 0"))
	}
	if c.Sync.AvailabilityPollInterval <= 0 {
		result = multierror.Append(result, fmt.Errorf("availability_poll_interval must be greater than 0"))
	}

	return result
}

// GetLogLevel returns the parsed logger level
func (c *AppConfig) GetLogLevel() logger.Level {
	switch strings.ToLower(c.Logging.Level) {
	case "debug":
		return logger.DebugLevel
	case "warn", "warning":
		return logger.WarnLevel
	case "error":
		return logger.ErrorLevel
	default:
		return logger.InfoLevel
	}
}

// IsProduction returns true if running in production environment
func (c *AppConfig) IsProduction() bool {
	return strings.ToLower(c.Environment) == "production"
}

// LogConfig logs the current configuration (without sensitive data)
func (c *AppConfig) LogConfig(log logger.Logger) {
	log.Info("Application configuration loaded",
		logger.StringField("service_name", c.ServiceName),
		logger.StringField("version", c.Version),
		logger.StringField("environment", c.Environment),
		logger.IntField("port", c.Port),
		logger.StringField("store_backend", c.Database.Backend),
		logger.StringField("classifier_provider", c.Classifier.Provider),
		logger.StringField("log_level", c.Logging.Level),
		logger.StringField("log_format", c.Logging.Format),
		logger.BoolField("metrics_enabled", c.Monitoring.MetricsEnabled),
		logger.DurationField("message_poll_interval", c.Sync.MessagePollInterval),
		logger.DurationField("availability_poll_interval", c.Sync.AvailabilityPollInterval),
	)
}
