// Package audit defines the audit event model shared by the recorder, the
// durable stores, the query builder and the exporters.
//
// # Architecture
//
//  1. recorder - write-through cache, retry queue and reconciliation
//  2. storage  - durable stores (SQLite) and an in-memory store for tests
//  3. query    - fluent filters, cursor pagination and aggregation
//  4. export   - JSON and CSV output
//
// # Write-through
//
// An event enters the recorder's cache only after the store accepted it.
// There are two exceptions: a recorder without a store keeps events in
// memory only, and an event that exhausted its retry budget is admitted to the
// cache with an ERROR log and a metric.
//
// # Filter semantics
//
// Filter.Apply is the reference implementation. The SQLite store translates
// the same filter into parameterised SQL: substring predicates use instr()
// so matching is case sensitive in both paths, and results are ordered by
// (timestamp, event_id).
package audit
