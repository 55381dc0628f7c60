// Package config provides configuration management for agentgov.
//
// Configuration is loaded from a YAML file, completed with defaults and
// validated before any component is built:
//
//	cfg, err := config.LoadConfigWithEnvOverrides("agentgov.yaml")
//
// # Environment Variable Overrides
//
// Environment variables follow the naming convention AGENTGOV_SECTION_FIELD.
// For example:
//
//   - AGENTGOV_AUDIT_MAX_EVENTS overrides audit.max_events
//   - AGENTGOV_AUDIT_STORAGE_PATH overrides audit.storage.path
//   - AGENTGOV_TELEMETRY_LOGGING_LEVEL overrides telemetry.logging.level
//
// # Configuration Precedence
//
//  1. Default values (defined in defaults.go)
//  2. Values from YAML file
//  3. Environment variable overrides
//  4. Validation (fails fast if invalid)
//
// # Example Configuration
//
//	audit:
//	  max_events: 10000
//	  retry_interval: 5s
//	  max_retry_attempts: 5
//	  storage:
//	    backend: sqlite
//	    path: data/audit.db
//
//	rate_limits:
//	  - id: agent-burst
//	    window: 1m
//	    max_requests: 60
//	    scope: agent
//
//	rules:
//	  presets: [baseline, financial]
//	  file: ./rules.yaml
//	  watch: true
//
//	webhook:
//	  enabled: true
//	  url: https://hooks.example.com/audit
//	  headers:
//	    Authorization: Bearer ${secret:webhook-token}
//
//	secrets:
//	  env_prefix: AGENTGOV_SECRET_
//
// Secret references are left as written here and resolved when the
// governance service starts.
//
// There is no package-level configuration state: the loaded Config is passed
// explicitly to the composition root.
package config
