package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	loader := NewViperLoader("", "HEALER_TEST_DEFAULTS")

	cfg, err := loader.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Service.Name != "healer" {
		t.Errorf("expected default service name, got %q", cfg.Service.Name)
	}
	if cfg.Service.Environment != EnvironmentDevelopment {
		t.Errorf("expected development environment, got %q", cfg.Service.Environment)
	}
	if cfg.Queue.Redis.EventStreamMaxLen != 1000 {
		t.Errorf("expected event stream cap 1000, got %d", cfg.Queue.Redis.EventStreamMaxLen)
	}
	if cfg.Queue.Redis.CompletedRetention != 24*time.Hour {
		t.Errorf("expected 24h completed retention, got %s", cfg.Queue.Redis.CompletedRetention)
	}
	if cfg.Healing.RetryDelay != 10*time.Second {
		t.Errorf("expected 10s retry delay, got %s", cfg.Healing.RetryDelay)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
service:
  name: ci-healer
  environment: staging
queue:
  redis:
    url: redis://redis.internal:6379/1
healing:
  retry_delay: 15s
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	loader := NewViperLoader(path, "HEALER_TEST_FILE")
	cfg, err := loader.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Service.Name != "ci-healer" {
		t.Errorf("expected service name from file, got %q", cfg.Service.Name)
	}
	if cfg.Service.Environment != EnvironmentStaging {
		t.Errorf("expected staging environment, got %q", cfg.Service.Environment)
	}
	if cfg.Queue.Redis.URL != "redis://redis.internal:6379/1" {
		t.Errorf("unexpected redis url %q", cfg.Queue.Redis.URL)
	}
	if cfg.Healing.RetryDelay != 15*time.Second {
		t.Errorf("expected 15s retry delay, got %s", cfg.Healing.RetryDelay)
	}
	// Values absent from the file keep defaults.
	if cfg.Management.Port != 9090 {
		t.Errorf("expected default management port, got %d", cfg.Management.Port)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("service:\n  environment: staging\n"), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	t.Setenv("HEALER_TEST_ENV_SERVICE_ENVIRONMENT", EnvironmentProduction)
	t.Setenv("HEALER_TEST_ENV_REDIS_URL", "redis://env-host:6379")

	loader := NewViperLoader(path, "HEALER_TEST_ENV")
	cfg, err := loader.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Service.Environment != EnvironmentProduction {
		t.Errorf("expected env override to production, got %q", cfg.Service.Environment)
	}
	if cfg.Queue.Redis.URL != "redis://env-host:6379" {
		t.Errorf("expected env redis url, got %q", cfg.Queue.Redis.URL)
	}
	if !cfg.Service.IsProduction() {
		t.Error("expected IsProduction() to report true")
	}
}

func TestValidate(t *testing.T) {
	loader := NewViperLoader("", "HEALER_TEST_VALIDATE")

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"nil config", nil},
		{"missing service name", func(c *Config) { c.Service.Name = "" }},
		{"unknown environment", func(c *Config) { c.Service.Environment = "qa" }},
		{"missing redis url", func(c *Config) { c.Queue.Redis.URL = "" }},
		{"invalid management port", func(c *Config) { c.Management.Port = 0 }},
		{"negative retry delay", func(c *Config) { c.Healing.RetryDelay = -time.Second }},
		{"sample rate out of range", func(c *Config) { c.Tracing.SampleRate = 2 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cfg *Config
			if tt.mutate != nil {
				cfg = DefaultConfig()
				tt.mutate(cfg)
			}
			if err := loader.Validate(cfg); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}

	if err := loader.Validate(DefaultConfig()); err != nil {
		t.Fatalf("default config must validate, got %v", err)
	}
}
