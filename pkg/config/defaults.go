package config

import "time"

// Default values for configuration fields.
const (
	// Audit defaults
	DefaultAuditMaxEvents        = 10000
	DefaultAuditRetryInterval    = 5 * time.Second
	DefaultAuditMaxRetryAttempts = 5
	DefaultAuditSyncInterval     = time.Minute
	DefaultStorageBackend        = "sqlite"
	DefaultStoragePath           = "data/audit.db"
	DefaultStorageDriver         = "sqlite3"
	DefaultStorageMaxOpenConns   = 10
	DefaultStorageMaxIdleConns   = 5
	DefaultStorageBusyTimeout    = 5 * time.Second
	DefaultQueryDefaultLimit     = 100
	DefaultQueryMaxLimit         = 10000

	// Webhook defaults
	DefaultWebhookTimeout      = 5 * time.Second
	DefaultWebhookMaxRetries   = 3
	DefaultWebhookRetryBackoff = 500 * time.Millisecond

	// Rate limit defaults
	DefaultRateLimitSweepInterval = 5 * time.Minute
	DefaultRateLimitScope         = "global"
	DefaultRateLimitAlgorithm     = "fixed"

	// Rules defaults
	DefaultRulesPreset           = "baseline"
	DefaultRulesDebounceInterval = 100 * time.Millisecond

	// Approval defaults
	DefaultApprovalTTL               = 24 * time.Hour
	DefaultApprovalRequiredApprovers = 1

	// Telemetry defaults
	DefaultLoggingLevel         = "info"
	DefaultLoggingFormat        = "json"
	DefaultMetricsListenAddress = "127.0.0.1:9090"
	DefaultMetricsPath          = "/metrics"
	DefaultMetricsNamespace     = "agentgov"
	DefaultMetricsSubsystem     = "governance"
	DefaultTracingServiceName   = "agentgov"
	DefaultTracingSampler       = "always"
	DefaultTracingSampleRatio   = 1.0
	DefaultTracingTimeout       = 10 * time.Second
	DefaultSecretsEnvPrefix     = "AGENTGOV_SECRET_"
)

// NewDefaultConfig returns a configuration populated with defaults.
func NewDefaultConfig() *Config {
	cfg := &Config{
		Audit: AuditConfig{
			Storage: StorageConfig{WALMode: true},
		},
		Rules: RulesConfig{Strict: true},
		Telemetry: TelemetryConfig{
			Logging: LoggingConfig{RedactPII: true},
			Metrics: MetricsConfig{Enabled: true},
		},
	}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills zero-valued fields with their defaults. Boolean fields
// cannot be distinguished from an explicit false and are left alone; use
// NewDefaultConfig as the base when boolean defaults matter.
func ApplyDefaults(cfg *Config) {
	applyAuditDefaults(&cfg.Audit)
	applyWebhookDefaults(&cfg.Webhook)

	if cfg.RateLimitSweepInterval == 0 {
		cfg.RateLimitSweepInterval = DefaultRateLimitSweepInterval
	}
	for i := range cfg.RateLimits {
		rl := &cfg.RateLimits[i]
		if rl.Scope == "" {
			rl.Scope = DefaultRateLimitScope
		}
		if rl.Algorithm == "" {
			rl.Algorithm = DefaultRateLimitAlgorithm
		}
		if rl.BurstLimit == 0 {
			rl.BurstLimit = rl.MaxRequests
		}
	}

	if cfg.Rules.Presets == nil && cfg.Rules.File == "" {
		cfg.Rules.Presets = []string{DefaultRulesPreset}
	}
	if cfg.Secrets.EnvPrefix == "" {
		cfg.Secrets.EnvPrefix = DefaultSecretsEnvPrefix
	}
	if cfg.Rules.DebounceInterval == 0 {
		cfg.Rules.DebounceInterval = DefaultRulesDebounceInterval
	}

	if cfg.Approval.DefaultTTL == 0 {
		cfg.Approval.DefaultTTL = DefaultApprovalTTL
	}
	if cfg.Approval.RequiredApprovers == 0 {
		cfg.Approval.RequiredApprovers = DefaultApprovalRequiredApprovers
	}

	applyTelemetryDefaults(&cfg.Telemetry)
}

func applyAuditDefaults(cfg *AuditConfig) {
	if cfg.MaxEvents == 0 {
		cfg.MaxEvents = DefaultAuditMaxEvents
	}
	if cfg.RetryInterval == 0 {
		cfg.RetryInterval = DefaultAuditRetryInterval
	}
	if cfg.MaxRetryAttempts == 0 {
		cfg.MaxRetryAttempts = DefaultAuditMaxRetryAttempts
	}
	if cfg.SyncInterval == 0 {
		cfg.SyncInterval = DefaultAuditSyncInterval
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = DefaultStorageBackend
	}
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = DefaultStoragePath
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = DefaultStorageDriver
	}
	if cfg.Storage.MaxOpenConns == 0 {
		cfg.Storage.MaxOpenConns = DefaultStorageMaxOpenConns
	}
	if cfg.Storage.MaxIdleConns == 0 {
		cfg.Storage.MaxIdleConns = DefaultStorageMaxIdleConns
	}
	if cfg.Storage.BusyTimeout == 0 {
		cfg.Storage.BusyTimeout = DefaultStorageBusyTimeout
	}
	if cfg.Query.DefaultLimit == 0 {
		cfg.Query.DefaultLimit = DefaultQueryDefaultLimit
	}
	if cfg.Query.MaxLimit == 0 {
		cfg.Query.MaxLimit = DefaultQueryMaxLimit
	}
}

func applyWebhookDefaults(cfg *WebhookConfig) {
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultWebhookTimeout
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = DefaultWebhookMaxRetries
	}
	if cfg.RetryBackoff == 0 {
		cfg.RetryBackoff = DefaultWebhookRetryBackoff
	}
}

func applyTelemetryDefaults(cfg *TelemetryConfig) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = DefaultLoggingLevel
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = DefaultLoggingFormat
	}
	if cfg.Metrics.ListenAddress == "" {
		cfg.Metrics.ListenAddress = DefaultMetricsListenAddress
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = DefaultMetricsPath
	}
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = DefaultMetricsNamespace
	}
	if cfg.Metrics.Subsystem == "" {
		cfg.Metrics.Subsystem = DefaultMetricsSubsystem
	}
	if cfg.Tracing.ServiceName == "" {
		cfg.Tracing.ServiceName = DefaultTracingServiceName
	}
	if cfg.Tracing.Sampler == "" {
		cfg.Tracing.Sampler = DefaultTracingSampler
	}
	if cfg.Tracing.SampleRatio == 0 {
		cfg.Tracing.SampleRatio = DefaultTracingSampleRatio
	}
	if cfg.Tracing.Timeout == 0 {
		cfg.Tracing.Timeout = DefaultTracingTimeout
	}
}
