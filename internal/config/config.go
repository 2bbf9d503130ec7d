package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all application configuration
type Config struct {
	ServiceName string `env:"SERVICE_NAME" envDefault:"invoice-review"`
	ServicePort int    `env:"SERVICE_PORT" envDefault:"8081"`
	Database    DatabaseConfig
	RabbitMQ    RabbitMQConfig
	Triage      TriageConfig
	Validation  ValidationConfig
	Ingest      IngestConfig
	Extraction  ExtractionConfig
}

// DatabaseConfig holds database connection settings.
// An empty URL keeps the queue and audit log in memory only.
type DatabaseConfig struct {
	URL string `env:"DATABASE_URL"`
}

// RabbitMQConfig holds RabbitMQ connection and queue settings.
// An empty URL disables both the intake consumer and decision publishing.
type RabbitMQConfig struct {
	URL                   string `env:"RABBITMQ_URL"`
	IntakeExchange        string `env:"RABBITMQ_INTAKE_EXCHANGE" envDefault:"invoice-review.extraction.exchange"`
	IntakeQueue           string `env:"RABBITMQ_INTAKE_QUEUE" envDefault:"invoice-review.extraction.queue"`
	IntakeRoutingKey      string `env:"RABBITMQ_INTAKE_ROUTING_KEY" envDefault:"invoice.extraction.completed"`
	DLQQueue              string `env:"RABBITMQ_DLQ_QUEUE" envDefault:"invoice-review.extraction.dlq"`
	DecisionExchange      string `env:"RABBITMQ_DECISION_EXCHANGE" envDefault:"invoice-review.decisions.exchange"`
	DecisionRoutingPrefix string `env:"RABBITMQ_DECISION_ROUTING_PREFIX" envDefault:"invoice.review"`
	PrefetchCount         int    `env:"RABBITMQ_PREFETCH" envDefault:"10"`
}

// TriageConfig holds confidence tier thresholds
type TriageConfig struct {
	HighThreshold   float64 `env:"TRIAGE_HIGH_THRESHOLD" envDefault:"90"`
	MediumThreshold float64 `env:"TRIAGE_MEDIUM_THRESHOLD" envDefault:"70"`
}

// ValidationConfig holds payload validation settings
type ValidationConfig struct {
	MaxBillingPeriodDays int `env:"VALIDATION_MAX_BILLING_PERIOD_DAYS" envDefault:"400"`
}

// IngestConfig holds upload rendering settings
type IngestConfig struct {
	ImageDir       string `env:"INGEST_IMAGE_DIR" envDefault:"./data/images"`
	PdftoppmPath   string `env:"INGEST_PDFTOPPM_PATH" envDefault:"pdftoppm"`
	MaxUploadBytes int64  `env:"INGEST_MAX_UPLOAD_BYTES" envDefault:"20971520"`
}

// ExtractionConfig holds settings for the external extraction service.
// An empty URL disables uploads through this service.
type ExtractionConfig struct {
	URL            string `env:"EXTRACTION_URL"`
	TimeoutSeconds int    `env:"EXTRACTION_TIMEOUT_SECONDS" envDefault:"60"`
}

// Timeout returns the extraction request timeout
func (c ExtractionConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration from environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks cross-field constraints
func (c *Config) Validate() error {
	if c.ServicePort <= 0 || c.ServicePort > 65535 {
		return fmt.Errorf("SERVICE_PORT must be between 1 and 65535, got %d", c.ServicePort)
	}
	if c.Triage.MediumThreshold > c.Triage.HighThreshold {
		return fmt.Errorf("TRIAGE_MEDIUM_THRESHOLD (%g) must not exceed TRIAGE_HIGH_THRESHOLD (%g)",
			c.Triage.MediumThreshold, c.Triage.HighThreshold)
	}
	if c.RabbitMQ.URL != "" && c.RabbitMQ.PrefetchCount <= 0 {
		return fmt.Errorf("RABBITMQ_PREFETCH must be positive, got %d", c.RabbitMQ.PrefetchCount)
	}
	if c.Ingest.MaxUploadBytes <= 0 {
		return fmt.Errorf("INGEST_MAX_UPLOAD_BYTES must be positive, got %d", c.Ingest.MaxUploadBytes)
	}
	if c.Extraction.URL != "" && c.Extraction.TimeoutSeconds <= 0 {
		return fmt.Errorf("EXTRACTION_TIMEOUT_SECONDS must be positive, got %d", c.Extraction.TimeoutSeconds)
	}
	return nil
}
