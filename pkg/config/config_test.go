package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadConfig_ValidFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
audit:
  max_events: 500
  retry_interval: "2s"
  storage:
    backend: "sqlite"
    path: "./audit.db"
    driver: "sqlite"

rate_limits:
  - id: agent-burst
    window: "1m"
    max_requests: 10
    scope: agent

rules:
  presets: [baseline, financial]

telemetry:
  logging:
    level: "debug"
    format: "text"
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := LoadConfig(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Audit.MaxEvents != 500 {
		t.Errorf("expected max events 500, got %d", cfg.Audit.MaxEvents)
	}
	if cfg.Audit.RetryInterval != 2*time.Second {
		t.Errorf("expected retry interval 2s, got %v", cfg.Audit.RetryInterval)
	}
	if cfg.Audit.MaxRetryAttempts != DefaultAuditMaxRetryAttempts {
		t.Errorf("expected default retry attempts, got %d", cfg.Audit.MaxRetryAttempts)
	}
	if cfg.Audit.Storage.Driver != "sqlite" {
		t.Errorf("expected driver sqlite, got %q", cfg.Audit.Storage.Driver)
	}
	if !cfg.Audit.Storage.WALMode {
		t.Error("expected WAL mode to default to true")
	}

	if len(cfg.RateLimits) != 1 {
		t.Fatalf("expected 1 rate limit, got %d", len(cfg.RateLimits))
	}
	rl := cfg.RateLimits[0]
	if rl.BurstLimit != 10 || rl.Algorithm != "fixed" {
		t.Errorf("expected burst 10 and fixed algorithm, got %d/%s", rl.BurstLimit, rl.Algorithm)
	}

	if len(cfg.Rules.Presets) != 2 {
		t.Errorf("expected 2 presets, got %v", cfg.Rules.Presets)
	}
	if !cfg.Rules.Strict {
		t.Error("expected strict rules by default")
	}
	if cfg.Telemetry.Logging.Level != "debug" {
		t.Errorf("expected logging level debug, got %q", cfg.Telemetry.Logging.Level)
	}
	if !cfg.Telemetry.Metrics.Enabled {
		t.Error("expected metrics to default to enabled")
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected os.ErrNotExist, got %v", err)
	}
}

func TestNewDefaultConfig_Valid(t *testing.T) {
	cfg := NewDefaultConfig()
	if err := Validate(cfg); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Audit.MaxEvents != DefaultAuditMaxEvents {
		t.Errorf("expected %d, got %d", DefaultAuditMaxEvents, cfg.Audit.MaxEvents)
	}
	if cfg.RateLimitSweepInterval != 5*time.Minute {
		t.Errorf("expected 5m sweep interval, got %v", cfg.RateLimitSweepInterval)
	}
	if len(cfg.Rules.Presets) != 1 || cfg.Rules.Presets[0] != "baseline" {
		t.Errorf("expected baseline preset, got %v", cfg.Rules.Presets)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"max events", func(c *Config) { c.Audit.MaxEvents = -1 }, "audit.max_events"},
		{"retry queue alert", func(c *Config) { c.Audit.RetryQueueAlert = -1 }, "audit.retry_queue_alert"},
		{"backend", func(c *Config) { c.Audit.Storage.Backend = "postgres" }, "audit.storage.backend"},
		{"driver", func(c *Config) { c.Audit.Storage.Driver = "pgx" }, "audit.storage.driver"},
		{"webhook url", func(c *Config) {
			c.Webhook.Enabled = true
			c.Webhook.URL = "ftp://x"
		}, "webhook.url"},
		{"rate limit scope", func(c *Config) {
			c.RateLimits = []RateLimitConfig{{ID: "a", Window: time.Second, MaxRequests: 1, Scope: "tenant", Algorithm: "fixed"}}
		}, "rate_limits[0].scope"},
		{"rate limit duplicate", func(c *Config) {
			rl := RateLimitConfig{ID: "a", Window: time.Second, MaxRequests: 1, Scope: "agent", Algorithm: "fixed"}
			c.RateLimits = []RateLimitConfig{rl, rl}
		}, "rate_limits[1].id"},
		{"watch without file", func(c *Config) { c.Rules.Watch = true }, "rules.watch"},
		{"log level", func(c *Config) { c.Telemetry.Logging.Level = "loud" }, "telemetry.logging.level"},
		{"tracing sampler", func(c *Config) { c.Telemetry.Tracing.Sampler = "sometimes" }, "telemetry.tracing.sampler"},
		{"tracing ratio", func(c *Config) { c.Telemetry.Tracing.SampleRatio = 1.5 }, "telemetry.tracing.sample_ratio"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)

			err := Validate(cfg)
			var verr ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			found := false
			for _, fe := range verr.Errors {
				if fe.Field == tt.field {
					found = true
				}
			}
			if !found {
				t.Errorf("expected error on %s, got %v", tt.field, err)
			}
		})
	}
}

func TestValidate_WebhookSecretReference(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Webhook.Enabled = true
	cfg.Webhook.URL = "${secret:webhook-url}"

	if err := Validate(cfg); err != nil {
		t.Errorf("expected secret reference to defer URL validation, got %v", err)
	}
	if cfg.Secrets.EnvPrefix != DefaultSecretsEnvPrefix {
		t.Errorf("expected env prefix %s, got %s", DefaultSecretsEnvPrefix, cfg.Secrets.EnvPrefix)
	}
}

func TestLoadConfigWithEnvOverrides(t *testing.T) {
	t.Setenv("AGENTGOV_AUDIT_MAX_EVENTS", "42")
	t.Setenv("AGENTGOV_AUDIT_STORAGE_BACKEND", "memory")
	t.Setenv("AGENTGOV_AUDIT_SYNC_INTERVAL", "30s")
	t.Setenv("AGENTGOV_TELEMETRY_LOGGING_LEVEL", "warn")
	t.Setenv("AGENTGOV_AUDIT_MAX_RETRY_ATTEMPTS", "not-a-number")

	cfg, err := LoadConfigWithEnvOverrides("")
	if err != nil {
		t.Fatalf("LoadConfigWithEnvOverrides failed: %v", err)
	}

	if cfg.Audit.MaxEvents != 42 {
		t.Errorf("expected 42, got %d", cfg.Audit.MaxEvents)
	}
	if cfg.Audit.Storage.Backend != "memory" {
		t.Errorf("expected memory backend, got %q", cfg.Audit.Storage.Backend)
	}
	if cfg.Audit.SyncInterval != 30*time.Second {
		t.Errorf("expected 30s, got %v", cfg.Audit.SyncInterval)
	}
	if cfg.Telemetry.Logging.Level != "warn" {
		t.Errorf("expected warn, got %q", cfg.Telemetry.Logging.Level)
	}
	if cfg.Audit.MaxRetryAttempts != DefaultAuditMaxRetryAttempts {
		t.Errorf("expected malformed override to be ignored, got %d", cfg.Audit.MaxRetryAttempts)
	}
}

func TestValidationError_Format(t *testing.T) {
	err := ValidationError{Errors: []FieldError{
		{Field: "a", Message: "bad"},
		{Field: "b", Message: "worse"},
	}}
	msg := err.Error()
	if !strings.Contains(msg, "2 errors") || !strings.Contains(msg, "b: worse") {
		t.Errorf("unexpected message: %s", msg)
	}
}
