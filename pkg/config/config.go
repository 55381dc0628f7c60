package config

import "time"

// Config is the root configuration for agentgov.
type Config struct {
	// Audit configures the audit recorder and its durable store.
	Audit AuditConfig `yaml:"audit"`

	// Webhook configures the optional audit notification sink.
	Webhook WebhookConfig `yaml:"webhook"`

	// RateLimits lists the admission-control configurations.
	RateLimits []RateLimitConfig `yaml:"rate_limits"`

	// RateLimitSweepInterval is how often idle rate-limit buckets are swept.
	// Default: 5m
	RateLimitSweepInterval time.Duration `yaml:"rate_limit_sweep_interval"`

	// Rules selects the active rule set.
	Rules RulesConfig `yaml:"rules"`

	// Approval configures the human-approval workflow.
	Approval ApprovalConfig `yaml:"approval"`

	// Telemetry configures logging, metrics and tracing.
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Secrets configures resolution of ${secret:name} references in the
	// webhook URL and headers.
	Secrets SecretsConfig `yaml:"secrets"`
}

// SecretsConfig selects the secret providers, tried in the order dir, env.
type SecretsConfig struct {
	// Dir holds one secret per file (mode 0600 or 0400). Empty disables the
	// file provider.
	Dir string `yaml:"dir"`

	// EnvPrefix is prepended to environment variable names.
	// Default: "AGENTGOV_SECRET_"
	EnvPrefix string `yaml:"env_prefix"`
}

// AuditConfig configures the audit recorder.
type AuditConfig struct {
	// MaxEvents bounds the in-memory event cache.
	// Default: 10000
	MaxEvents int `yaml:"max_events"`

	// RetryInterval is how often the failed-write queue is drained.
	// Default: 5s
	RetryInterval time.Duration `yaml:"retry_interval"`

	// MaxRetryAttempts is the retry budget before an event is force-admitted
	// to the cache.
	// Default: 5
	MaxRetryAttempts int `yaml:"max_retry_attempts"`

	// SyncInterval is how often cache/store consistency is checked.
	// Default: 1m
	SyncInterval time.Duration `yaml:"sync_interval"`

	// AutoSync reconciles automatically when a periodic check finds divergence.
	// Default: false
	AutoSync bool `yaml:"auto_sync"`

	// RetryQueueAlert marks the service not ready once this many events are
	// waiting in the retry queue. Zero disables the check.
	RetryQueueAlert int `yaml:"retry_queue_alert"`

	// Storage configures the durable store.
	Storage StorageConfig `yaml:"storage"`

	// Query bounds query result sizes.
	Query QueryConfig `yaml:"query"`
}

// StorageConfig configures the durable audit store.
type StorageConfig struct {
	// Backend is "sqlite" or "memory". The memory backend runs the recorder
	// in memory-only mode.
	// Default: "sqlite"
	Backend string `yaml:"backend"`

	// Path is the SQLite database file.
	// Default: "data/audit.db"
	Path string `yaml:"path"`

	// Driver is the database/sql driver: "sqlite3" (cgo) or "sqlite" (pure Go).
	// Default: "sqlite3"
	Driver string `yaml:"driver"`

	// MaxOpenConns limits open connections.
	// Default: 10
	MaxOpenConns int `yaml:"max_open_conns"`

	// MaxIdleConns limits idle connections.
	// Default: 5
	MaxIdleConns int `yaml:"max_idle_conns"`

	// WALMode enables write-ahead logging.
	// Default: true
	WALMode bool `yaml:"wal_mode"`

	// BusyTimeout is how long SQLite waits on a locked database.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

// QueryConfig bounds query results.
type QueryConfig struct {
	// DefaultLimit applies when a query sets no limit.
	// Default: 100
	DefaultLimit int `yaml:"default_limit"`

	// MaxLimit is the largest accepted limit.
	// Default: 10000
	MaxLimit int `yaml:"max_limit"`
}

// WebhookConfig configures delivery of audit events to an HTTP endpoint.
type WebhookConfig struct {
	// Enabled turns on webhook delivery.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// URL is the endpoint events are POSTed to.
	URL string `yaml:"url"`

	// Timeout bounds each delivery attempt.
	// Default: 5s
	Timeout time.Duration `yaml:"timeout"`

	// MaxRetries is the number of retries after the first attempt.
	// Default: 3
	MaxRetries int `yaml:"max_retries"`

	// RetryBackoff is the base delay between attempts.
	// Default: 500ms
	RetryBackoff time.Duration `yaml:"retry_backoff"`

	// EventTypes restricts delivery to the listed event types. Empty means all.
	EventTypes []string `yaml:"event_types"`

	// Headers are added to every request.
	Headers map[string]string `yaml:"headers"`
}

// RateLimitConfig configures one admission-control limit.
type RateLimitConfig struct {
	// ID identifies the limit and prefixes its bucket keys.
	ID string `yaml:"id"`

	// Window is the counting window.
	Window time.Duration `yaml:"window"`

	// MaxRequests is the number of requests admitted per window.
	MaxRequests int `yaml:"max_requests"`

	// Scope is one of global, agent, session, user, action_type.
	// Default: "global"
	Scope string `yaml:"scope"`

	// BurstLimit caps requests per window independently of MaxRequests.
	// Default: MaxRequests
	BurstLimit int `yaml:"burst_limit"`

	// ActionCategories restricts the limit to the listed action types.
	ActionCategories []string `yaml:"action_categories"`

	// Algorithm is "fixed" or "sliding".
	// Default: "fixed"
	Algorithm string `yaml:"algorithm"`

	// Disabled turns the limit off without removing it.
	Disabled bool `yaml:"disabled"`
}

// RulesConfig selects the active rule set.
type RulesConfig struct {
	// Presets are embedded rule presets loaded at startup.
	// Default: ["baseline"]
	Presets []string `yaml:"presets"`

	// File is an optional YAML rule file loaded after the presets.
	File string `yaml:"file"`

	// Watch reloads File when it changes.
	// Default: false
	Watch bool `yaml:"watch"`

	// DebounceInterval is the quiet period before a reload.
	// Default: 100ms
	DebounceInterval time.Duration `yaml:"debounce_interval"`

	// Strict refuses to start when the conflict validator reports errors.
	// Default: true
	Strict bool `yaml:"strict"`
}

// ApprovalConfig configures the approval workflow.
type ApprovalConfig struct {
	// DefaultTTL is how long a request stays pending when no expiry is given.
	// Default: 24h
	DefaultTTL time.Duration `yaml:"default_ttl"`

	// RequiredApprovers is the default number of distinct approvers.
	// Default: 1
	RequiredApprovers int `yaml:"required_approvers"`
}

// TelemetryConfig contains logging, metrics and tracing configuration.
type TelemetryConfig struct {
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
}

// LoggingConfig contains structured logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level to emit.
	// Options: "debug", "info", "warn", "error"
	// Default: "info"
	Level string `yaml:"level"`

	// Format controls the log output format.
	// Options: "json", "text"
	// Default: "json"
	Format string `yaml:"format"`

	// AddSource includes file and line number in log entries.
	// Default: false
	AddSource bool `yaml:"add_source"`

	// RedactPII redacts secrets and personal data from log attributes.
	// Default: true
	RedactPII bool `yaml:"redact_pii"`

	// RedactPatterns adds custom redaction patterns.
	RedactPatterns []RedactPattern `yaml:"redact_patterns"`
}

// RedactPattern defines a custom redaction pattern.
type RedactPattern struct {
	Name        string `yaml:"name"`
	Pattern     string `yaml:"pattern"`
	Replacement string `yaml:"replacement"`
}

// MetricsConfig contains Prometheus metrics configuration.
type MetricsConfig struct {
	// Enabled controls whether metrics are collected.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// ListenAddress serves the metrics, health and version endpoints.
	// Default: "127.0.0.1:9090"
	ListenAddress string `yaml:"listen_address"`

	// Path is the HTTP path of the metrics endpoint.
	// Default: "/metrics"
	Path string `yaml:"path"`

	// Namespace is the metric name prefix.
	// Default: "agentgov"
	Namespace string `yaml:"namespace"`

	// Subsystem is the metric subsystem name.
	// Default: "governance"
	Subsystem string `yaml:"subsystem"`
}

// TracingConfig contains tracing configuration.
type TracingConfig struct {
	// Enabled creates spans around evaluations.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// ServiceName names the tracer.
	// Default: "agentgov"
	ServiceName string `yaml:"service_name"`

	// Sampler is one of always, never or ratio.
	// Default: "always"
	Sampler string `yaml:"sampler"`

	// SampleRatio is the fraction of traces kept by the ratio sampler.
	// Default: 1.0
	SampleRatio float64 `yaml:"sample_ratio"`

	// Endpoint is the OTLP gRPC collector address. Empty keeps spans in
	// process without exporting them.
	Endpoint string `yaml:"endpoint"`

	// Insecure disables TLS towards Endpoint.
	// Default: false
	Insecure bool `yaml:"insecure"`

	// Timeout bounds each export.
	// Default: 10s
	Timeout time.Duration `yaml:"timeout"`
}
