package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Loader defines the interface for loading configuration.
type Loader interface {
	Load() (*Config, error)
	Validate(*Config) error
}

// ViperLoader implements Loader using Viper for configuration management.
// Precedence: environment variables > config file > defaults.
type ViperLoader struct {
	configFile string
	envPrefix  string
}

// NewViperLoader creates a ViperLoader. configFile may be empty; envPrefix
// is the prefix for environment variables (e.g. "HEALER").
func NewViperLoader(configFile, envPrefix string) *ViperLoader {
	return &ViperLoader{
		configFile: configFile,
		envPrefix:  envPrefix,
	}
}

// Load loads configuration with precedence: ENV > file > defaults.
func (l *ViperLoader) Load() (*Config, error) {
	v := viper.New()

	l.setDefaults(v, DefaultConfig())

	if l.configFile != "" {
		v.SetConfigFile(l.configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", l.configFile, err)
		}
	}

	l.bindEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := l.Validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// Validate checks cross-field constraints the zero value cannot express.
func (l *ViperLoader) Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if strings.TrimSpace(cfg.Service.Name) == "" {
		return fmt.Errorf("service.name is required")
	}
	switch cfg.Service.Environment {
	case EnvironmentDevelopment, EnvironmentStaging, EnvironmentProduction:
	default:
		return fmt.Errorf("service.environment must be one of development, staging, production")
	}
	if strings.TrimSpace(cfg.Queue.Redis.URL) == "" {
		return fmt.Errorf("queue.redis.url is required")
	}
	if cfg.Management.Enabled && (cfg.Management.Port <= 0 || cfg.Management.Port > 65535) {
		return fmt.Errorf("management.port must be a valid TCP port")
	}
	if cfg.Healing.RetryDelay < 0 {
		return fmt.Errorf("healing.retry_delay must be >= 0")
	}
	if cfg.Tracing.SampleRate < 0 || cfg.Tracing.SampleRate > 1 {
		return fmt.Errorf("tracing.sample_rate must be between 0 and 1")
	}
	return nil
}

func (l *ViperLoader) bindEnvVars(v *viper.Viper) {
	v.BindEnv("service.name", l.prefixedEnv("SERVICE_NAME"))
	v.BindEnv("service.environment", l.prefixedEnv("SERVICE_ENVIRONMENT"), l.prefixedEnv("ENVIRONMENT"))

	v.BindEnv("logging.level", l.prefixedEnv("LOG_LEVEL"))
	v.BindEnv("logging.format", l.prefixedEnv("LOG_FORMAT"))

	v.BindEnv("management.enabled", l.prefixedEnv("MGMT_ENABLED"))
	v.BindEnv("management.port", l.prefixedEnv("MGMT_PORT"))
	v.BindEnv("management.read_timeout", l.prefixedEnv("MGMT_READ_TIMEOUT"))
	v.BindEnv("management.write_timeout", l.prefixedEnv("MGMT_WRITE_TIMEOUT"))

	v.BindEnv("queue.redis.url", l.prefixedEnv("REDIS_URL"))
	v.BindEnv("queue.redis.prefix", l.prefixedEnv("REDIS_PREFIX"))
	v.BindEnv("queue.redis.operation_timeout", l.prefixedEnv("REDIS_OPERATION_TIMEOUT"))
	v.BindEnv("queue.redis.event_stream_max_len", l.prefixedEnv("EVENT_STREAM_MAX_LEN"))
	v.BindEnv("queue.redis.completed_retention", l.prefixedEnv("COMPLETED_RETENTION"))

	v.BindEnv("queue.worker.concurrency", l.prefixedEnv("WORKER_CONCURRENCY"))
	v.BindEnv("queue.worker.lease_ttl", l.prefixedEnv("WORKER_LEASE_TTL"))
	v.BindEnv("queue.worker.reserve_timeout", l.prefixedEnv("WORKER_RESERVE_TIMEOUT"))
	v.BindEnv("queue.worker.stop_timeout", l.prefixedEnv("WORKER_STOP_TIMEOUT"))
	v.BindEnv("queue.worker.attempt_timeout", l.prefixedEnv("WORKER_ATTEMPT_TIMEOUT"))

	v.BindEnv("healing.retry_delay", l.prefixedEnv("HEALING_RETRY_DELAY"))
	v.BindEnv("healing.sweep_interval", l.prefixedEnv("HEALING_SWEEP_INTERVAL"))

	v.BindEnv("tracing.enabled", l.prefixedEnv("TRACING_ENABLED"))
	v.BindEnv("tracing.endpoint", l.prefixedEnv("TRACING_ENDPOINT"))
	v.BindEnv("tracing.sample_rate", l.prefixedEnv("TRACING_SAMPLE_RATE"))
}

func (l *ViperLoader) setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("service.name", cfg.Service.Name)
	v.SetDefault("service.environment", cfg.Service.Environment)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)

	v.SetDefault("management.enabled", cfg.Management.Enabled)
	v.SetDefault("management.port", cfg.Management.Port)
	v.SetDefault("management.read_timeout", cfg.Management.ReadTimeout)
	v.SetDefault("management.write_timeout", cfg.Management.WriteTimeout)

	v.SetDefault("queue.redis.url", cfg.Queue.Redis.URL)
	v.SetDefault("queue.redis.prefix", cfg.Queue.Redis.Prefix)
	v.SetDefault("queue.redis.operation_timeout", cfg.Queue.Redis.OperationTimeout)
	v.SetDefault("queue.redis.event_stream_max_len", cfg.Queue.Redis.EventStreamMaxLen)
	v.SetDefault("queue.redis.completed_retention", cfg.Queue.Redis.CompletedRetention)

	v.SetDefault("queue.worker.concurrency", cfg.Queue.Worker.Concurrency)
	v.SetDefault("queue.worker.lease_ttl", cfg.Queue.Worker.LeaseTTL)
	v.SetDefault("queue.worker.reserve_timeout", cfg.Queue.Worker.ReserveTimeout)
	v.SetDefault("queue.worker.stop_timeout", cfg.Queue.Worker.StopTimeout)
	v.SetDefault("queue.worker.attempt_timeout", cfg.Queue.Worker.AttemptTimeout)

	v.SetDefault("healing.retry_delay", cfg.Healing.RetryDelay)
	v.SetDefault("healing.sweep_interval", cfg.Healing.SweepInterval)

	v.SetDefault("tracing.enabled", cfg.Tracing.Enabled)
	v.SetDefault("tracing.endpoint", cfg.Tracing.Endpoint)
	v.SetDefault("tracing.sample_rate", cfg.Tracing.SampleRate)
}

func (l *ViperLoader) prefixedEnv(name string) string {
	prefix := strings.TrimSpace(l.envPrefix)
	if prefix == "" {
		return name
	}
	return prefix + "_" + name
}
