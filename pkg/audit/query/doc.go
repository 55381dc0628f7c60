// Package query provides a fluent builder over audit events.
//
// # Query Builder
//
// Builder accumulates filters and runs them against any Source: a durable
// audit.Store, or the recorder, which routes to its store or scans its cache
// in memory-only mode. Both paths apply identical filter semantics.
//
//   - Event type, agent, session and user (one value or a list)
//   - Outcome and risk level
//   - Time range (inclusive)
//   - Correlation id
//   - Case-sensitive substring match on action, metadata and details
//   - Pagination (limit/offset or cursor) and ordering
//
// # Basic Usage
//
//	events, err := query.New(rec).
//	    EventType(audit.EventActionEvaluated).
//	    Agent("agent-7").
//	    Outcome(audit.OutcomeFailure).
//	    Since(time.Now().Add(-24 * time.Hour)).
//	    Limit(50).
//	    Execute(ctx)
//
// # Cursor Pagination
//
// ExecutePaginated fetches limit+1 rows to detect HasMore and returns opaque
// cursors positioned on the (timestamp, event_id) keyset. Passing NextCursor
// or PrevCursor to After continues in that direction.
//
//	page, err := query.New(store).Limit(100).After(cursor).ExecutePaginated(ctx)
//
// # Aggregation
//
// Aggregate counts matching events by event type, outcome, risk level, agent
// or user, optionally as a minute, hour, day, week (Monday start) or month
// time series.
//
// # Query Validation
//
// Terminal calls validate the filter first:
//
//   - Limit >= 0 and <= MaxLimit
//   - Offset >= 0
//   - Order is asc or desc
//   - Time range is valid (start <= end)
//   - Outcomes are known
package query
