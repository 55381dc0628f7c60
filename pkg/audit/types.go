package audit

import (
	"context"
	"io"
	"time"

	"mercator-hq/agentgov/pkg/payload"
)

// Outcome is the result recorded on an audit event.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomePending Outcome = "pending"
)

// Valid reports whether o is a known outcome.
func (o Outcome) Valid() bool {
	switch o {
	case OutcomeSuccess, OutcomeFailure, OutcomePending:
		return true
	}
	return false
}

// Event types written by agentgov itself. Callers may log any other type.
const (
	EventActionEvaluated    = "action_evaluated"
	EventRateLimitExceeded  = "rate_limit_exceeded"
	EventApprovalRequested  = "approval_requested"
	EventApprovalApproved   = "approval_approved"
	EventApprovalDenied     = "approval_denied"
	EventApprovalCancelled  = "approval_cancelled"
	EventApprovalExpired    = "approval_expired"
	EventApprovalVote       = "approval_vote"
	EventRuleAdded          = "rule_added"
	EventRuleRemoved        = "rule_removed"
	EventPresetLoaded       = "preset_loaded"
	EventRulesReloaded      = "rules_reloaded"
	EventNotificationFailed = "notification_failed"
)

// Event is one immutable audit record. Events handed out by the recorder are
// copies; mutating them never affects stored state.
type Event struct {
	EventID       string      `json:"event_id"`
	EventType     string      `json:"event_type"`
	Action        string      `json:"action"`
	Timestamp     time.Time   `json:"timestamp"`
	Outcome       Outcome     `json:"outcome"`
	AgentID       string      `json:"agent_id,omitempty"`
	SessionID     string      `json:"session_id,omitempty"`
	UserID        string      `json:"user_id,omitempty"`
	RiskLevel     string      `json:"risk_level,omitempty"`
	Details       payload.Map `json:"details,omitempty"`
	Metadata      payload.Map `json:"metadata,omitempty"`
	CorrelationID string      `json:"correlation_id,omitempty"`
	ParentEventID string      `json:"parent_event_id,omitempty"`
}

// Clone returns a deep copy of e.
func (e *Event) Clone() *Event {
	if e == nil {
		return nil
	}
	c := *e
	c.Details = e.Details.Clone()
	c.Metadata = e.Metadata.Clone()
	return &c
}

// Equal reports whether two events carry identical fields.
func (e *Event) Equal(other *Event) bool {
	if e == nil || other == nil {
		return e == other
	}
	return e.EventID == other.EventID &&
		e.EventType == other.EventType &&
		e.Action == other.Action &&
		e.Timestamp.Equal(other.Timestamp) &&
		e.Outcome == other.Outcome &&
		e.AgentID == other.AgentID &&
		e.SessionID == other.SessionID &&
		e.UserID == other.UserID &&
		e.RiskLevel == other.RiskLevel &&
		e.Details.Equal(other.Details) &&
		e.Metadata.Equal(other.Metadata) &&
		e.CorrelationID == other.CorrelationID &&
		e.ParentEventID == other.ParentEventID
}

// LogParams describes an event to record. EventID and Timestamp are assigned
// by the recorder.
type LogParams struct {
	EventType     string
	Action        string
	Outcome       Outcome
	AgentID       string
	SessionID     string
	UserID        string
	RiskLevel     string
	Details       payload.Map
	Metadata      payload.Map
	CorrelationID string
	ParentEventID string
}

// FailedWrite is a retry queue entry for an event the store rejected.
type FailedWrite struct {
	Event        *Event
	Attempts     int
	LastError    error
	FirstAttempt time.Time
}

// Order is the sort direction of query results.
type Order string

const (
	OrderDesc Order = "desc"
	OrderAsc  Order = "asc"
)

// Keyset is a position in (timestamp, event_id) order.
type Keyset struct {
	Timestamp time.Time
	EventID   string
}

// Filter selects events. Every populated field must match. List fields match
// when the event value equals any element. Substring fields are case
// sensitive; Metadata and Details substrings match against the JSON
// encoding produced by EncodeMap.
type Filter struct {
	EventTypes []string
	AgentIDs   []string
	SessionIDs []string
	UserIDs    []string
	Outcomes   []Outcome
	RiskLevels []string

	// StartTime and EndTime are inclusive bounds.
	StartTime *time.Time
	EndTime   *time.Time

	CorrelationID string

	ActionContains   string
	MetadataContains string
	DetailsContains  string

	// After restricts results to events strictly after the keyset in Order.
	After *Keyset

	Order  Order
	Limit  int
	Offset int
}

// Store is a durable audit event store. Implementations must be safe for
// concurrent use and must apply Filter with the same semantics as
// Filter.Apply.
type Store interface {
	// Save persists an event. Saving an event id that already exists is a no-op.
	Save(ctx context.Context, event *Event) error

	// Query returns events matching the filter in filter order.
	Query(ctx context.Context, filter *Filter) ([]*Event, error)

	// Count returns the number of events matching the filter, ignoring
	// After, Limit and Offset.
	Count(ctx context.Context, filter *Filter) (int64, error)

	// Clear deletes every event.
	Clear(ctx context.Context) error

	// Close releases resources held by the store.
	Close() error
}

// Exporter writes events in a serialised format.
type Exporter interface {
	Export(ctx context.Context, events []*Event, w io.Writer) error
}
