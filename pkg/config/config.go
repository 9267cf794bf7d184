package config

import "time"

// Deployment environment constants
const (
	// EnvironmentDevelopment is the default local environment
	EnvironmentDevelopment = "development"
	// EnvironmentStaging is the pre-production environment
	EnvironmentStaging = "staging"
	// EnvironmentProduction is the production environment; the read-only
	// queue inspection surface is disabled there
	EnvironmentProduction = "production"
)

// Config is the root configuration for the healer service.
type Config struct {
	Service    ServiceConfig    `mapstructure:"service"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Management ManagementConfig `mapstructure:"management"`
	Queue      QueueConfig      `mapstructure:"queue"`
	Healing    HealingConfig    `mapstructure:"healing"`
	Tracing    TracingConfig    `mapstructure:"tracing"`
}

// ServiceConfig identifies the running service instance.
type ServiceConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// IsProduction reports whether the service runs in a production-flagged
// environment.
func (c ServiceConfig) IsProduction() bool {
	return c.Environment == EnvironmentProduction
}

// LoggingConfig configures structured logging output.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ManagementConfig configures the management/inspection HTTP server.
type ManagementConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// QueueConfig configures the Redis queue substrate client and the worker.
type QueueConfig struct {
	Redis  QueueRedisConfig  `mapstructure:"redis"`
	Worker QueueWorkerConfig `mapstructure:"worker"`
}

// QueueRedisConfig configures the Redis backend.
type QueueRedisConfig struct {
	URL                string        `mapstructure:"url"`
	Prefix             string        `mapstructure:"prefix"`
	OperationTimeout   time.Duration `mapstructure:"operation_timeout"`
	EventStreamMaxLen  int64         `mapstructure:"event_stream_max_len"`
	CompletedRetention time.Duration `mapstructure:"completed_retention"`
}

// QueueWorkerConfig configures worker lifecycle.
type QueueWorkerConfig struct {
	Concurrency    int           `mapstructure:"concurrency"`
	LeaseTTL       time.Duration `mapstructure:"lease_ttl"`
	ReserveTimeout time.Duration `mapstructure:"reserve_timeout"`
	StopTimeout    time.Duration `mapstructure:"stop_timeout"`
	AttemptTimeout time.Duration `mapstructure:"attempt_timeout"`
}

// HealingConfig configures the healing dispatch policy surface.
type HealingConfig struct {
	// RetryDelay is the flat delay applied to every attempt after the first.
	RetryDelay time.Duration `mapstructure:"retry_delay"`
	// SweepInterval is how often completed-job retention is swept.
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// TracingConfig configures the OTLP trace exporter.
type TracingConfig struct {
	Enabled    bool    `mapstructure:"enabled"`
	Endpoint   string  `mapstructure:"endpoint"`
	SampleRate float64 `mapstructure:"sample_rate"`
}

// DefaultConfig returns the built-in defaults for the service.
func DefaultConfig() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:        "healer",
			Environment: EnvironmentDevelopment,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Management: ManagementConfig{
			Enabled:      true,
			Port:         9090,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		Queue: QueueConfig{
			Redis: QueueRedisConfig{
				URL:                "redis://localhost:6379/0",
				Prefix:             "healer:queue",
				OperationTimeout:   5 * time.Second,
				EventStreamMaxLen:  1000,
				CompletedRetention: 24 * time.Hour,
			},
			Worker: QueueWorkerConfig{
				Concurrency:    4,
				LeaseTTL:       30 * time.Second,
				ReserveTimeout: time.Second,
				StopTimeout:    10 * time.Second,
				AttemptTimeout: 30 * time.Second,
			},
		},
		Healing: HealingConfig{
			RetryDelay:    10 * time.Second,
			SweepInterval: time.Hour,
		},
		Tracing: TracingConfig{
			Enabled:    false,
			Endpoint:   "localhost:4317",
			SampleRate: 0.1,
		},
	}
}
