// Package metrics provides Prometheus metrics collection for agentgov.
//
// # Overview
//
// The Collector owns a private registry and exposes one method per observed
// event. Components do not import this package; each declares a small Metrics
// interface (ratelimit.Metrics, audit.Metrics, ...) that the Collector
// satisfies, so a nil metrics value simply disables recording.
//
// # Metrics Categories
//
//   - Evaluation: decisions by status and risk level, duration, rule hits
//   - Rate limiting: checks, denials, live buckets
//   - Audit: store writes, forced admissions, retry queue depth, cache size, sync
//   - Approval: status transitions, pending requests
//   - Webhook: deliveries and their duration
//
// # Usage
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//
//	limiter := ratelimit.New(cfg.RateLimits, ratelimit.WithMetrics(collector))
//
//	http.Handle("/metrics", collector.Handler())
//
// # Cardinality
//
// Rule ids, limit ids and event types are user controlled. Once 1000 distinct
// label values have been seen, new values are reported as "other".
package metrics
