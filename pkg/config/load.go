package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// baseConfig returns a config with the boolean defaults set, ready to be
// overlaid by a YAML document.
func baseConfig() *Config {
	return &Config{
		Audit: AuditConfig{
			Storage: StorageConfig{WALMode: true},
		},
		Rules: RulesConfig{Strict: true},
		Telemetry: TelemetryConfig{
			Logging: LoggingConfig{RedactPII: true},
			Metrics: MetricsConfig{Enabled: true},
		},
	}
}

// Parse decodes a YAML document, applies defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := baseConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	ApplyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// LoadConfig loads configuration from a YAML file at the specified path.
// It applies default values, validates the configuration, and returns any errors.
// Environment variables are not consulted; use LoadConfigWithEnvOverrides for that.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and applies
// environment variable overrides. Environment variables follow the naming
// convention AGENTGOV_SECTION_FIELD (e.g., AGENTGOV_AUDIT_MAX_EVENTS) and
// always take precedence over the file. An empty path loads defaults only.
//
// The loading sequence is:
// 1. Load YAML from file
// 2. Apply default values
// 3. Apply environment variable overrides
// 4. Validate final configuration
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	var cfg *Config
	if path == "" {
		cfg = NewDefaultConfig()
	} else {
		var err error
		if cfg, err = LoadConfig(path); err != nil {
			return nil, err
		}
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies AGENTGOV_* environment variable overrides.
// Malformed values are ignored.
func applyEnvOverrides(cfg *Config) {
	// Audit overrides
	envInt("AGENTGOV_AUDIT_MAX_EVENTS", &cfg.Audit.MaxEvents)
	envDuration("AGENTGOV_AUDIT_RETRY_INTERVAL", &cfg.Audit.RetryInterval)
	envInt("AGENTGOV_AUDIT_MAX_RETRY_ATTEMPTS", &cfg.Audit.MaxRetryAttempts)
	envDuration("AGENTGOV_AUDIT_SYNC_INTERVAL", &cfg.Audit.SyncInterval)
	envBool("AGENTGOV_AUDIT_AUTO_SYNC", &cfg.Audit.AutoSync)
	envInt("AGENTGOV_AUDIT_RETRY_QUEUE_ALERT", &cfg.Audit.RetryQueueAlert)
	envString("AGENTGOV_AUDIT_STORAGE_BACKEND", &cfg.Audit.Storage.Backend)
	envString("AGENTGOV_AUDIT_STORAGE_PATH", &cfg.Audit.Storage.Path)
	envString("AGENTGOV_AUDIT_STORAGE_DRIVER", &cfg.Audit.Storage.Driver)

	// Webhook overrides
	envBool("AGENTGOV_WEBHOOK_ENABLED", &cfg.Webhook.Enabled)
	envString("AGENTGOV_WEBHOOK_URL", &cfg.Webhook.URL)
	envDuration("AGENTGOV_WEBHOOK_TIMEOUT", &cfg.Webhook.Timeout)
	envInt("AGENTGOV_WEBHOOK_MAX_RETRIES", &cfg.Webhook.MaxRetries)

	// Rules overrides
	envString("AGENTGOV_RULES_FILE", &cfg.Rules.File)
	envBool("AGENTGOV_RULES_WATCH", &cfg.Rules.Watch)
	envBool("AGENTGOV_RULES_STRICT", &cfg.Rules.Strict)

	// Secrets overrides
	envString("AGENTGOV_SECRETS_DIR", &cfg.Secrets.Dir)
	envString("AGENTGOV_SECRETS_ENV_PREFIX", &cfg.Secrets.EnvPrefix)

	// Approval overrides
	envDuration("AGENTGOV_APPROVAL_DEFAULT_TTL", &cfg.Approval.DefaultTTL)

	// Telemetry overrides
	envString("AGENTGOV_TELEMETRY_LOGGING_LEVEL", &cfg.Telemetry.Logging.Level)
	envString("AGENTGOV_TELEMETRY_LOGGING_FORMAT", &cfg.Telemetry.Logging.Format)
	envBool("AGENTGOV_TELEMETRY_METRICS_ENABLED", &cfg.Telemetry.Metrics.Enabled)
	envString("AGENTGOV_TELEMETRY_METRICS_LISTEN_ADDRESS", &cfg.Telemetry.Metrics.ListenAddress)
	envBool("AGENTGOV_TELEMETRY_TRACING_ENABLED", &cfg.Telemetry.Tracing.Enabled)
	envString("AGENTGOV_TELEMETRY_TRACING_ENDPOINT", &cfg.Telemetry.Tracing.Endpoint)
}

func envString(key string, dst *string) {
	if val := os.Getenv(key); val != "" {
		*dst = val
	}
}

func envInt(key string, dst *int) {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			*dst = i
		}
	}
}

func envBool(key string, dst *bool) {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			*dst = b
		}
	}
}

func envDuration(key string, dst *time.Duration) {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			*dst = d
		}
	}
}
