package config

import (
	"fmt"
	"net/url"
	"strings"

	"mercator-hq/agentgov/pkg/secrets"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "audit.max_events").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

var validScopes = map[string]bool{
	"global":      true,
	"agent":       true,
	"session":     true,
	"user":        true,
	"action_type": true,
}

// Validate validates the entire configuration. All validation errors are
// collected and returned together.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateAudit(&cfg.Audit)...)
	errs = append(errs, validateWebhook(&cfg.Webhook)...)
	errs = append(errs, validateRateLimits(cfg.RateLimits)...)
	errs = append(errs, validateApproval(&cfg.Approval)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)

	if cfg.RateLimitSweepInterval < 0 {
		errs = append(errs, FieldError{Field: "rate_limit_sweep_interval", Message: "must be positive"})
	}
	if cfg.Rules.Watch && cfg.Rules.File == "" {
		errs = append(errs, FieldError{Field: "rules.watch", Message: "watching requires rules.file"})
	}

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}

func validateAudit(cfg *AuditConfig) []FieldError {
	var errs []FieldError

	if cfg.MaxEvents < 1 {
		errs = append(errs, FieldError{Field: "audit.max_events", Message: "must be at least 1"})
	}
	if cfg.RetryInterval <= 0 {
		errs = append(errs, FieldError{Field: "audit.retry_interval", Message: "must be positive"})
	}
	if cfg.MaxRetryAttempts < 1 {
		errs = append(errs, FieldError{Field: "audit.max_retry_attempts", Message: "must be at least 1"})
	}
	if cfg.SyncInterval <= 0 {
		errs = append(errs, FieldError{Field: "audit.sync_interval", Message: "must be positive"})
	}
	if cfg.RetryQueueAlert < 0 {
		errs = append(errs, FieldError{Field: "audit.retry_queue_alert", Message: "must be non-negative"})
	}

	switch cfg.Storage.Backend {
	case "memory":
	case "sqlite":
		if cfg.Storage.Path == "" {
			errs = append(errs, FieldError{Field: "audit.storage.path", Message: "path is required for sqlite backend"})
		}
		if cfg.Storage.Driver != "sqlite3" && cfg.Storage.Driver != "sqlite" {
			errs = append(errs, FieldError{
				Field:   "audit.storage.driver",
				Message: fmt.Sprintf("unknown driver %q (expected sqlite3 or sqlite)", cfg.Storage.Driver),
			})
		}
	default:
		errs = append(errs, FieldError{
			Field:   "audit.storage.backend",
			Message: fmt.Sprintf("unknown backend %q (expected sqlite or memory)", cfg.Storage.Backend),
		})
	}

	if cfg.Query.DefaultLimit < 1 {
		errs = append(errs, FieldError{Field: "audit.query.default_limit", Message: "must be at least 1"})
	}
	if cfg.Query.MaxLimit < cfg.Query.DefaultLimit {
		errs = append(errs, FieldError{Field: "audit.query.max_limit", Message: "must not be below default_limit"})
	}

	return errs
}

func validateWebhook(cfg *WebhookConfig) []FieldError {
	if !cfg.Enabled {
		return nil
	}

	var errs []FieldError
	if cfg.URL == "" {
		errs = append(errs, FieldError{Field: "webhook.url", Message: "url is required when webhook is enabled"})
	} else if !secrets.HasReferences(cfg.URL) {
		// URLs carrying secret references are checked after resolution.
		if u, err := url.Parse(cfg.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, FieldError{Field: "webhook.url", Message: fmt.Sprintf("invalid URL %q", cfg.URL)})
		}
	}
	if cfg.Timeout <= 0 {
		errs = append(errs, FieldError{Field: "webhook.timeout", Message: "must be positive"})
	}
	if cfg.MaxRetries < 0 {
		errs = append(errs, FieldError{Field: "webhook.max_retries", Message: "must be non-negative"})
	}
	return errs
}

func validateRateLimits(limits []RateLimitConfig) []FieldError {
	var errs []FieldError
	seen := make(map[string]bool, len(limits))

	for i, rl := range limits {
		prefix := fmt.Sprintf("rate_limits[%d]", i)

		if rl.ID == "" {
			errs = append(errs, FieldError{Field: prefix + ".id", Message: "id is required"})
		} else if seen[rl.ID] {
			errs = append(errs, FieldError{Field: prefix + ".id", Message: fmt.Sprintf("duplicate id %q", rl.ID)})
		}
		seen[rl.ID] = true

		if rl.Window <= 0 {
			errs = append(errs, FieldError{Field: prefix + ".window", Message: "must be positive"})
		}
		if rl.MaxRequests < 1 {
			errs = append(errs, FieldError{Field: prefix + ".max_requests", Message: "must be at least 1"})
		}
		if rl.BurstLimit < 0 {
			errs = append(errs, FieldError{Field: prefix + ".burst_limit", Message: "must be non-negative"})
		}
		if !validScopes[rl.Scope] {
			errs = append(errs, FieldError{Field: prefix + ".scope", Message: fmt.Sprintf("unknown scope %q", rl.Scope)})
		}
		if rl.Algorithm != "fixed" && rl.Algorithm != "sliding" {
			errs = append(errs, FieldError{Field: prefix + ".algorithm", Message: fmt.Sprintf("unknown algorithm %q", rl.Algorithm)})
		}
	}

	return errs
}

func validateApproval(cfg *ApprovalConfig) []FieldError {
	var errs []FieldError
	if cfg.DefaultTTL <= 0 {
		errs = append(errs, FieldError{Field: "approval.default_ttl", Message: "must be positive"})
	}
	if cfg.RequiredApprovers < 1 {
		errs = append(errs, FieldError{Field: "approval.required_approvers", Message: "must be at least 1"})
	}
	return errs
}

func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	switch strings.ToLower(cfg.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, FieldError{Field: "telemetry.logging.level", Message: fmt.Sprintf("unknown level %q", cfg.Logging.Level)})
	}
	switch strings.ToLower(cfg.Logging.Format) {
	case "json", "text":
	default:
		errs = append(errs, FieldError{Field: "telemetry.logging.format", Message: fmt.Sprintf("unknown format %q", cfg.Logging.Format)})
	}
	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		errs = append(errs, FieldError{Field: "telemetry.metrics.path", Message: "must start with /"})
	}
	switch cfg.Tracing.Sampler {
	case "always", "never", "ratio":
	default:
		errs = append(errs, FieldError{Field: "telemetry.tracing.sampler", Message: fmt.Sprintf("unknown sampler %q", cfg.Tracing.Sampler)})
	}
	if cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1 {
		errs = append(errs, FieldError{Field: "telemetry.tracing.sample_ratio", Message: "must be between 0.0 and 1.0"})
	}

	return errs
}
