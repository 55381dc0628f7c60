// Package telemetry groups the observability packages of agentgov.
//
// # Components
//
//   - logging: slog construction from configuration with PII redaction
//   - metrics: Prometheus collectors for evaluations, rule hits, rate limits,
//     audit writes, approvals and webhook deliveries
//   - tracing: OpenTelemetry spans around evaluations with optional OTLP export
//   - health: liveness, readiness and version endpoints
//
// # Usage
//
//	logger, _ := logging.New(logging.FromConfig(cfg.Telemetry.Logging))
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, prometheus.NewRegistry())
//	tracer, _ := tracing.New(&cfg.Telemetry.Tracing)
//
//	svc, _ := governance.New(cfg,
//	    governance.WithLogger(logger),
//	    governance.WithMetrics(collector),
//	    governance.WithTracer(tracer.Tracer()),
//	)
package telemetry
