// Package tracing provides OpenTelemetry tracing for agentgov.
//
// # Overview
//
// New builds an SDK tracer provider from the telemetry.tracing configuration
// section. Spans are exported over OTLP gRPC when an endpoint is configured;
// otherwise they stay in process, which is enough for tests that register a
// tracetest.SpanRecorder with WithSpanProcessor. A disabled configuration
// returns a noop tracer.
//
// # Sampling Strategies
//
//   - always: sample all traces
//   - never: sample no traces
//   - ratio: sample sample_ratio of traces by trace id
//
// All strategies are parent based.
//
// # Trace Context Propagation
//
// When enabled, New installs the W3C trace context and baggage propagators
// globally. Inject adds traceparent to outgoing webhook deliveries so a
// receiver can join the evaluation trace.
//
// # Usage
//
//	tracer, err := tracing.New(&cfg.Telemetry.Tracing)
//	if err != nil {
//	    return err
//	}
//	defer tracer.Shutdown(context.Background())
//
//	ctx, span := tracer.Start(ctx, "governance.evaluate_action")
//	defer span.End()
//	tracing.SetDecisionAttributes(span, "denied", 70, "high", 1)
package tracing
