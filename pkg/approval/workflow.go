package approval

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"mercator-hq/agentgov/pkg/audit"
	"mercator-hq/agentgov/pkg/clock"
	"mercator-hq/agentgov/pkg/config"
	"mercator-hq/agentgov/pkg/payload"
	"mercator-hq/agentgov/pkg/rules"
)

// Metadata keys written when a request is resolved.
const (
	MetaResolvedBy = "resolved_by"
	MetaResolvedAt = "resolved_at"
	MetaComments   = "resolution_comments"
)

// Config contains configuration for the approval workflow.
type Config struct {
	// DefaultTTL is applied when a request carries no expiry.
	// Default: 24h
	DefaultTTL time.Duration

	// RequiredApprovers is applied when a request does not set one.
	// Default: 1
	RequiredApprovers int
}

// DefaultConfig returns the default workflow configuration.
func DefaultConfig() *Config {
	return &Config{
		DefaultTTL:        config.DefaultApprovalTTL,
		RequiredApprovers: config.DefaultApprovalRequiredApprovers,
	}
}

// ConfigFrom converts the approval section of the configuration file.
func ConfigFrom(cfg config.ApprovalConfig) *Config {
	c := &Config{DefaultTTL: cfg.DefaultTTL, RequiredApprovers: cfg.RequiredApprovers}
	c.applyDefaults()
	return c
}

func (c *Config) applyDefaults() {
	if c.DefaultTTL <= 0 {
		c.DefaultTTL = config.DefaultApprovalTTL
	}
	if c.RequiredApprovers <= 0 {
		c.RequiredApprovers = config.DefaultApprovalRequiredApprovers
	}
}

// EventLogger records workflow transitions. *recorder.Recorder satisfies it.
type EventLogger interface {
	Log(ctx context.Context, params audit.LogParams) *audit.Event
}

// Metrics receives workflow measurements.
type Metrics interface {
	RecordApprovalTransition(status string)
	SetPendingApprovals(n int)
}

// Workflow holds approval requests. Pending requests live in one map and
// move to the resolved map on their single terminal transition.
//
// Expiry is lazy: any call that touches a pending request first expires it
// when its deadline has passed.
type Workflow struct {
	config  Config
	clock   clock.Clock
	logger  *slog.Logger
	metrics Metrics
	events  EventLogger
	newID   func() string

	mu       sync.Mutex
	pending  map[string]*Request
	resolved map[string]*Request
}

// Option configures a Workflow.
type Option func(*Workflow)

// WithClock sets the time source used for creation and expiry.
func WithClock(c clock.Clock) Option {
	return func(w *Workflow) { w.clock = clock.Default(c) }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Workflow) {
		if logger != nil {
			w.logger = logger.With("component", "approval")
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option {
	return func(w *Workflow) { w.metrics = m }
}

// WithEventLogger sets where transitions are audited.
func WithEventLogger(l EventLogger) Option {
	return func(w *Workflow) { w.events = l }
}

// WithIDGenerator replaces the UUID request id generator.
func WithIDGenerator(fn func() string) Option {
	return func(w *Workflow) {
		if fn != nil {
			w.newID = fn
		}
	}
}

// New creates an empty workflow.
func New(cfg *Config, opts ...Option) *Workflow {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	c := *cfg
	c.applyDefaults()

	w := &Workflow{
		config:   c,
		clock:    clock.Real{},
		logger:   slog.Default().With("component", "approval"),
		newID:    uuid.NewString,
		pending:  make(map[string]*Request),
		resolved: make(map[string]*Request),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// transition is an audit record collected under the lock and logged after it
// is released.
type transition struct {
	eventType string
	outcome   audit.Outcome
	req       *Request
	actor     string
	comments  string
}

// Request creates a pending approval request.
func (w *Workflow) Request(ctx context.Context, p Params) (*Request, error) {
	if p.ActionID == "" {
		return nil, fmt.Errorf("%w: action id is required", ErrInvalidRequest)
	}
	if p.Priority != "" && !p.Priority.Valid() {
		return nil, fmt.Errorf("%w: unknown priority %q", ErrInvalidRequest, p.Priority)
	}
	if p.RequiredApprovers < 0 {
		return nil, fmt.Errorf("%w: required approvers must be >= 0", ErrInvalidRequest)
	}

	now := w.clock.Now().UTC()
	req := &Request{
		ID:                w.newID(),
		ActionID:          p.ActionID,
		Reason:            p.Reason,
		Priority:          p.Priority,
		RequiredApprovers: p.RequiredApprovers,
		ExpiresAt:         p.ExpiresAt,
		RiskScore:         p.RiskScore,
		Violations:        slices.Clone(p.Violations),
		CreatedAt:         now,
		Status:            StatusPending,
		Metadata:          p.Metadata.Clone(),
		AgentID:           p.AgentID,
		SessionID:         p.SessionID,
		UserID:            p.UserID,
		CorrelationID:     p.CorrelationID,
	}
	if req.Priority == "" {
		req.Priority = PriorityForRisk(p.RiskScore)
	}
	if req.RequiredApprovers == 0 {
		req.RequiredApprovers = w.config.RequiredApprovers
	}
	if req.ExpiresAt.IsZero() {
		ttl := p.TTL
		if ttl <= 0 {
			ttl = w.config.DefaultTTL
		}
		req.ExpiresAt = now.Add(ttl)
	}
	if req.CorrelationID == "" {
		req.CorrelationID = req.ID
	}

	w.mu.Lock()
	w.pending[req.ID] = req
	n := len(w.pending)
	out := req.Clone()
	w.mu.Unlock()

	w.logger.Info("approval requested",
		"request_id", req.ID,
		"action_id", req.ActionID,
		"priority", req.Priority,
		"required_approvers", req.RequiredApprovers,
		"expires_at", req.ExpiresAt,
	)
	w.observe(string(StatusPending), n)
	w.audit(ctx, transition{eventType: audit.EventApprovalRequested, outcome: audit.OutcomePending, req: out})
	return out, nil
}

// Get returns a copy of the request, expiring it first when due.
func (w *Workflow) Get(ctx context.Context, id string) (*Request, error) {
	w.mu.Lock()
	expired := w.expireLocked(id)
	req := w.lookupLocked(id)
	w.mu.Unlock()

	w.flush(ctx, expired)
	if req == nil {
		return nil, ErrNotFound
	}
	return req.Clone(), nil
}

// ListPending expires overdue requests and returns the rest ordered by
// priority (urgent first) then creation time.
func (w *Workflow) ListPending(ctx context.Context) []*Request {
	w.mu.Lock()
	expired := w.expireAllLocked()
	out := make([]*Request, 0, len(w.pending))
	for _, req := range w.pending {
		out = append(out, req.Clone())
	}
	w.mu.Unlock()

	w.flush(ctx, expired)
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if ra, rb := a.Priority.rank(), b.Priority.rank(); ra != rb {
			return ra > rb
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	return out
}

// ListResolved returns resolved requests, most recently resolved first.
func (w *Workflow) ListResolved(ctx context.Context) []*Request {
	w.mu.Lock()
	expired := w.expireAllLocked()
	out := make([]*Request, 0, len(w.resolved))
	for _, req := range w.resolved {
		out = append(out, req.Clone())
	}
	w.mu.Unlock()

	w.flush(ctx, expired)
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].ResolvedAt, out[j].ResolvedAt
		if !a.Equal(*b) {
			return a.After(*b)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Approve records approver's vote. The request becomes approved once it has
// RequiredApprovers distinct approvers; a repeated vote by the same actor is
// ignored. A request that is already resolved is returned unchanged.
func (w *Workflow) Approve(ctx context.Context, id, approver, comments string) (*Request, error) {
	if approver == "" {
		return nil, ErrMissingActor
	}

	w.mu.Lock()
	expired := w.expireLocked(id)
	req, ok := w.pending[id]
	if !ok {
		resolved := w.resolved[id].Clone()
		w.mu.Unlock()
		w.flush(ctx, expired)
		if resolved == nil {
			return nil, ErrNotFound
		}
		return resolved, nil
	}

	var records []transition
	if !req.hasVoted(approver) {
		now := w.clock.Now().UTC()
		req.Approvals = append(req.Approvals, Decision{Actor: approver, Approved: true, Comments: comments, At: now})
		if req.approvers() >= req.RequiredApprovers {
			w.resolveLocked(req, StatusApproved, approver, comments, now)
			records = append(records, transition{eventType: audit.EventApprovalApproved, outcome: audit.OutcomeSuccess, req: req.Clone(), actor: approver, comments: comments})
		} else {
			records = append(records, transition{eventType: audit.EventApprovalVote, outcome: audit.OutcomePending, req: req.Clone(), actor: approver, comments: comments})
		}
	}
	out := req.Clone()
	n := len(w.pending)
	w.mu.Unlock()

	w.flush(ctx, expired)
	for _, t := range records {
		if t.eventType == audit.EventApprovalApproved {
			w.logger.Info("approval granted", "request_id", id, "approver", approver)
			w.observe(string(StatusApproved), n)
		}
		w.audit(ctx, t)
	}
	return out, nil
}

// Deny resolves the request as denied. A single denial is final regardless
// of RequiredApprovers. A request that is already resolved is returned
// unchanged.
func (w *Workflow) Deny(ctx context.Context, id, actor, reason string) (*Request, error) {
	return w.close(ctx, id, actor, reason, StatusDenied)
}

// Cancel withdraws a pending request. A request that is already resolved is
// returned unchanged.
func (w *Workflow) Cancel(ctx context.Context, id, actor, reason string) (*Request, error) {
	return w.close(ctx, id, actor, reason, StatusCancelled)
}

func (w *Workflow) close(ctx context.Context, id, actor, comments string, status Status) (*Request, error) {
	if actor == "" {
		return nil, ErrMissingActor
	}

	w.mu.Lock()
	expired := w.expireLocked(id)
	req, ok := w.pending[id]
	if !ok {
		resolved := w.resolved[id].Clone()
		w.mu.Unlock()
		w.flush(ctx, expired)
		if resolved == nil {
			return nil, ErrNotFound
		}
		return resolved, nil
	}

	now := w.clock.Now().UTC()
	if status == StatusDenied {
		req.Approvals = append(req.Approvals, Decision{Actor: actor, Comments: comments, At: now})
	}
	w.resolveLocked(req, status, actor, comments, now)
	out := req.Clone()
	n := len(w.pending)
	w.mu.Unlock()

	w.flush(ctx, expired)
	eventType := audit.EventApprovalDenied
	if status == StatusCancelled {
		eventType = audit.EventApprovalCancelled
	}
	w.logger.Info("approval request closed", "request_id", id, "status", status, "actor", actor)
	w.observe(string(status), n)
	w.audit(ctx, transition{eventType: eventType, outcome: audit.OutcomeFailure, req: out, actor: actor, comments: comments})
	return out, nil
}

// ExpireDue expires every pending request whose deadline has passed and
// returns how many were expired.
func (w *Workflow) ExpireDue(ctx context.Context) int {
	w.mu.Lock()
	expired := w.expireAllLocked()
	w.mu.Unlock()

	w.flush(ctx, expired)
	return len(expired)
}

// Stats counts requests by status.
func (w *Workflow) Stats(ctx context.Context) Stats {
	w.mu.Lock()
	expired := w.expireAllLocked()
	s := Stats{Pending: len(w.pending), PendingByPriority: make(map[Priority]int)}
	for _, req := range w.pending {
		s.PendingByPriority[req.Priority]++
	}
	for _, req := range w.resolved {
		switch req.Status {
		case StatusApproved:
			s.Approved++
		case StatusDenied:
			s.Denied++
		case StatusCancelled:
			s.Cancelled++
		case StatusExpired:
			s.Expired++
		}
	}
	w.mu.Unlock()

	w.flush(ctx, expired)
	return s
}

func (w *Workflow) lookupLocked(id string) *Request {
	if req, ok := w.pending[id]; ok {
		return req
	}
	return w.resolved[id]
}

// expireLocked expires id if it is pending and overdue.
func (w *Workflow) expireLocked(id string) []transition {
	req, ok := w.pending[id]
	if !ok {
		return nil
	}
	now := w.clock.Now().UTC()
	if now.Before(req.ExpiresAt) {
		return nil
	}
	w.resolveLocked(req, StatusExpired, "", "", now)
	return []transition{{eventType: audit.EventApprovalExpired, outcome: audit.OutcomeFailure, req: req.Clone()}}
}

func (w *Workflow) expireAllLocked() []transition {
	var out []transition
	for id := range w.pending {
		out = append(out, w.expireLocked(id)...)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].req.ID < out[j].req.ID })
	return out
}

// resolveLocked applies the single terminal transition of req.
func (w *Workflow) resolveLocked(req *Request, status Status, actor, comments string, at time.Time) {
	req.Status = status
	req.ResolvedAt = &at
	req.ResolvedBy = actor
	if req.Metadata == nil {
		req.Metadata = payload.Map{}
	}
	req.Metadata[MetaResolvedAt] = payload.String(at.Format(time.RFC3339Nano))
	if actor != "" {
		req.Metadata[MetaResolvedBy] = payload.String(actor)
	}
	if comments != "" {
		req.Metadata[MetaComments] = payload.String(comments)
	}
	delete(w.pending, req.ID)
	w.resolved[req.ID] = req
}

// flush logs expiry transitions collected under the lock.
func (w *Workflow) flush(ctx context.Context, expired []transition) {
	if len(expired) == 0 {
		return
	}
	w.mu.Lock()
	n := len(w.pending)
	w.mu.Unlock()

	for _, t := range expired {
		w.logger.Info("approval request expired", "request_id", t.req.ID, "expires_at", t.req.ExpiresAt)
		w.observe(string(StatusExpired), n)
		w.audit(ctx, t)
	}
}

func (w *Workflow) observe(status string, pending int) {
	if w.metrics == nil {
		return
	}
	w.metrics.RecordApprovalTransition(status)
	w.metrics.SetPendingApprovals(pending)
}

func (w *Workflow) audit(ctx context.Context, t transition) {
	if w.events == nil {
		return
	}
	details := payload.Map{
		"request_id":         payload.String(t.req.ID),
		"status":             payload.String(string(t.req.Status)),
		"priority":           payload.String(string(t.req.Priority)),
		"risk_score":         payload.Number(float64(t.req.RiskScore)),
		"required_approvers": payload.Number(float64(t.req.RequiredApprovers)),
		"approvals":          payload.Number(float64(t.req.approvers())),
	}
	if t.req.Reason != "" {
		details["reason"] = payload.String(t.req.Reason)
	}
	if t.actor != "" {
		details["actor"] = payload.String(t.actor)
	}
	if t.comments != "" {
		details["comments"] = payload.String(t.comments)
	}
	w.events.Log(ctx, audit.LogParams{
		EventType:     t.eventType,
		Action:        t.req.ActionID,
		Outcome:       t.outcome,
		AgentID:       t.req.AgentID,
		SessionID:     t.req.SessionID,
		UserID:        t.req.UserID,
		RiskLevel:     string(rules.LevelFor(t.req.RiskScore)),
		Details:       details,
		CorrelationID: t.req.CorrelationID,
	})
}
