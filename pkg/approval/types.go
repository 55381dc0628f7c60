package approval

import (
	"slices"
	"time"

	"mercator-hq/agentgov/pkg/payload"
	"mercator-hq/agentgov/pkg/rules"
)

// Status is the state of an approval request. Every status except pending is
// terminal.
type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusDenied    Status = "denied"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
)

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s != StatusPending
}

// Priority orders the pending queue.
type Priority string

const (
	PriorityUrgent Priority = "urgent"
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	return p.rank() >= 0
}

func (p Priority) rank() int {
	switch p {
	case PriorityUrgent:
		return 3
	case PriorityHigh:
		return 2
	case PriorityNormal:
		return 1
	case PriorityLow:
		return 0
	}
	return -1
}

// PriorityForRisk maps a risk score to a priority using the risk tier
// boundaries: critical is urgent, high is high, medium is normal.
func PriorityForRisk(score int) Priority {
	switch rules.LevelFor(score) {
	case rules.RiskCritical:
		return PriorityUrgent
	case rules.RiskHigh:
		return PriorityHigh
	case rules.RiskMedium:
		return PriorityNormal
	}
	return PriorityLow
}

// Decision is one approver's vote.
type Decision struct {
	Actor    string    `json:"actor"`
	Approved bool      `json:"approved"`
	Comments string    `json:"comments,omitempty"`
	At       time.Time `json:"at"`
}

// Request is a human approval request for one agent action.
type Request struct {
	ID                string            `json:"id"`
	ActionID          string            `json:"action_id"`
	Reason            string            `json:"reason"`
	Priority          Priority          `json:"priority"`
	RequiredApprovers int               `json:"required_approvers"`
	ExpiresAt         time.Time         `json:"expires_at"`
	RiskScore         int               `json:"risk_score"`
	Violations        []rules.Violation `json:"violations,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	Status            Status            `json:"status"`
	Metadata          payload.Map       `json:"metadata,omitempty"`
	Approvals         []Decision        `json:"approvals,omitempty"`

	AgentID       string `json:"agent_id,omitempty"`
	SessionID     string `json:"session_id,omitempty"`
	UserID        string `json:"user_id,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`

	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	ResolvedBy string     `json:"resolved_by,omitempty"`
}

// Clone returns a deep copy of r.
func (r *Request) Clone() *Request {
	if r == nil {
		return nil
	}
	c := *r
	c.Violations = slices.Clone(r.Violations)
	c.Metadata = r.Metadata.Clone()
	c.Approvals = slices.Clone(r.Approvals)
	if r.ResolvedAt != nil {
		t := *r.ResolvedAt
		c.ResolvedAt = &t
	}
	return &c
}

// approvers returns the number of distinct approving actors.
func (r *Request) approvers() int {
	n := 0
	for _, d := range r.Approvals {
		if d.Approved {
			n++
		}
	}
	return n
}

func (r *Request) hasVoted(actor string) bool {
	return slices.ContainsFunc(r.Approvals, func(d Decision) bool { return d.Actor == actor })
}

// Params describes a new approval request.
type Params struct {
	ActionID string
	Reason   string

	// Priority defaults to PriorityForRisk(RiskScore).
	Priority Priority

	// RequiredApprovers defaults to the workflow configuration.
	RequiredApprovers int

	// ExpiresAt takes precedence over TTL. Both default to the workflow TTL.
	ExpiresAt time.Time
	TTL       time.Duration

	RiskScore  int
	Violations []rules.Violation
	Metadata   payload.Map

	AgentID       string
	SessionID     string
	UserID        string
	CorrelationID string
}

// Stats counts requests per status and pending requests per priority.
type Stats struct {
	Pending           int              `json:"pending"`
	Approved          int              `json:"approved"`
	Denied            int              `json:"denied"`
	Cancelled         int              `json:"cancelled"`
	Expired           int              `json:"expired"`
	PendingByPriority map[Priority]int `json:"pending_by_priority"`
}
