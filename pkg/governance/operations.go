package governance

import (
	"context"
	"io"

	"mercator-hq/agentgov/pkg/approval"
	"mercator-hq/agentgov/pkg/audit"
	"mercator-hq/agentgov/pkg/audit/export"
	"mercator-hq/agentgov/pkg/audit/query"
	"mercator-hq/agentgov/pkg/audit/recorder"
	"mercator-hq/agentgov/pkg/payload"
	"mercator-hq/agentgov/pkg/ratelimit"
	"mercator-hq/agentgov/pkg/rules"
	"mercator-hq/agentgov/pkg/rules/validator"
	"mercator-hq/agentgov/pkg/telemetry/tracing"
)

// LogEvent records a caller-supplied audit event.
func (s *Service) LogEvent(ctx context.Context, params audit.LogParams) (*audit.Event, error) {
	rec, _, err := s.components()
	if err != nil {
		return nil, err
	}
	return rec.Log(ctx, params), nil
}

// ApprovalParams builds approval parameters for an action that evaluated to
// pending_approval.
func ApprovalParams(action rules.AgentAction, result *rules.EvaluationResult, reason string) approval.Params {
	actionID := action.ID
	if actionID == "" {
		actionID = action.Name
	}
	return approval.Params{
		ActionID:   actionID,
		Reason:     reason,
		RiskScore:  result.RiskScore,
		Violations: result.Violations,
		AgentID:    action.AgentID,
		SessionID:  action.SessionID,
		UserID:     action.UserID,
		Metadata:   payload.Map{"action_name": payload.String(action.Name)},
	}
}

// RequestApproval opens a human approval request.
func (s *Service) RequestApproval(ctx context.Context, params approval.Params) (*approval.Request, error) {
	ctx, span := s.tracer.Start(ctx, "governance.request_approval")
	defer span.End()

	_, wf, err := s.components()
	if err != nil {
		return nil, err
	}
	req, err := wf.Request(ctx, params)
	if err != nil {
		tracing.SetError(span, err)
		return nil, err
	}
	tracing.SetApprovalAttributes(span, req.ID, string(req.Status))
	return req, nil
}

// Approve records an approval vote. Unknown ids return approval.ErrNotFound;
// requests that are already resolved are returned unchanged.
func (s *Service) Approve(ctx context.Context, id, approver, comments string) (*approval.Request, error) {
	_, wf, err := s.components()
	if err != nil {
		return nil, err
	}
	return wf.Approve(ctx, id, approver, comments)
}

// Deny rejects a pending approval request.
func (s *Service) Deny(ctx context.Context, id, denier, reason string) (*approval.Request, error) {
	_, wf, err := s.components()
	if err != nil {
		return nil, err
	}
	return wf.Deny(ctx, id, denier, reason)
}

// Cancel withdraws a pending approval request.
func (s *Service) Cancel(ctx context.Context, id, actor, reason string) (*approval.Request, error) {
	_, wf, err := s.components()
	if err != nil {
		return nil, err
	}
	return wf.Cancel(ctx, id, actor, reason)
}

// GetApproval returns an approval request by id.
func (s *Service) GetApproval(ctx context.Context, id string) (*approval.Request, error) {
	_, wf, err := s.components()
	if err != nil {
		return nil, err
	}
	return wf.Get(ctx, id)
}

// ListPendingApprovals returns pending requests, most urgent first.
func (s *Service) ListPendingApprovals(ctx context.Context) ([]*approval.Request, error) {
	_, wf, err := s.components()
	if err != nil {
		return nil, err
	}
	return wf.ListPending(ctx), nil
}

// ApprovalStats counts approval requests by status.
func (s *Service) ApprovalStats(ctx context.Context) (approval.Stats, error) {
	_, wf, err := s.components()
	if err != nil {
		return approval.Stats{}, err
	}
	return wf.Stats(ctx), nil
}

// CheckRateLimit reports whether a request with ids would be admitted
// without counting it.
func (s *Service) CheckRateLimit(ids ratelimit.Identifiers) ratelimit.Result {
	return s.limiter.CheckLimit(ids)
}

// RecordRequest counts a request against every applicable limit.
func (s *Service) RecordRequest(ids ratelimit.Identifiers) {
	s.limiter.RecordRequest(ids)
}

// RateLimitStatus returns a snapshot of every rate limit bucket.
func (s *Service) RateLimitStatus() []ratelimit.BucketStatus {
	return s.limiter.Status()
}

// RegisterEvaluator registers a custom condition evaluator.
func (s *Service) RegisterEvaluator(name string, fn rules.CustomFunc) error {
	return s.engine.RegisterEvaluator(name, fn)
}

// AddRule validates and activates a rule.
func (s *Service) AddRule(ctx context.Context, rule *rules.Rule) error {
	rec, _, err := s.components()
	if err != nil {
		return err
	}
	if err := s.registry.Add(rule); err != nil {
		return err
	}
	rec.Log(ctx, audit.LogParams{
		EventType: audit.EventRuleAdded,
		Action:    "add_rule",
		Outcome:   audit.OutcomeSuccess,
		Details: payload.Map{
			"rule_id":  payload.String(rule.ID),
			"priority": payload.Number(float64(rule.Priority)),
		},
	})
	return nil
}

// RemoveRule deactivates a rule. Unknown ids return rules.ErrRuleNotFound.
func (s *Service) RemoveRule(ctx context.Context, id string) error {
	rec, _, err := s.components()
	if err != nil {
		return err
	}
	if err := s.registry.Remove(id); err != nil {
		return err
	}
	rec.Log(ctx, audit.LogParams{
		EventType: audit.EventRuleRemoved,
		Action:    "remove_rule",
		Outcome:   audit.OutcomeSuccess,
		Details:   payload.Map{"rule_id": payload.String(id)},
	})
	return nil
}

// LoadPreset adds or replaces the rules of an embedded preset and returns how
// many rules it contained. Either every rule of the preset is applied or none.
func (s *Service) LoadPreset(ctx context.Context, name string) (int, error) {
	rec, _, err := s.components()
	if err != nil {
		return 0, err
	}
	rs, err := rules.LoadPreset(name)
	if err != nil {
		return 0, err
	}
	if err := s.registry.UpsertAll(rs); err != nil {
		return 0, err
	}
	rec.Log(ctx, audit.LogParams{
		EventType: audit.EventPresetLoaded,
		Action:    "load_preset",
		Outcome:   audit.OutcomeSuccess,
		Details: payload.Map{
			"preset": payload.String(name),
			"rules":  payload.Number(float64(len(rs))),
		},
	})
	return len(rs), nil
}

// Rules returns copies of the registered rules in insertion order.
func (s *Service) Rules() []*rules.Rule {
	return s.registry.List()
}

// ValidateRules runs the conflict validator over the registered rules.
func (s *Service) ValidateRules() *validator.Report {
	return validator.Validate(s.registry.List(), validator.WithEvaluators(s.engine))
}

// Query starts a fluent audit query. Before Initialize every terminal call
// returns ErrNotInitialized.
func (s *Service) Query() *query.Builder {
	limits := query.LimitsFrom(s.config.Audit.Query)
	rec, _, err := s.components()
	if err != nil {
		return query.New(unavailable{}, query.WithLimits(limits))
	}
	return query.New(rec, query.WithLimits(limits))
}

// Export writes the events selected by b in format ("json" or "csv").
func (s *Service) Export(ctx context.Context, b *query.Builder, format string, w io.Writer) (int, error) {
	exporter, err := export.ForFormat(format)
	if err != nil {
		return 0, err
	}
	events, err := b.Execute(ctx)
	if err != nil {
		return 0, err
	}
	if err := exporter.Export(ctx, events, w); err != nil {
		return 0, err
	}
	return len(events), nil
}

// CheckSync compares the recent cache and store windows.
func (s *Service) CheckSync(ctx context.Context) (*recorder.SyncStatus, error) {
	rec, _, err := s.components()
	if err != nil {
		return nil, err
	}
	return rec.CheckSync(ctx)
}

// Sync drains the retry queue and reconciles cache and store.
func (s *Service) Sync(ctx context.Context) (*recorder.SyncResult, error) {
	rec, _, err := s.components()
	if err != nil {
		return nil, err
	}
	return rec.Sync(ctx)
}

// RetryQueueStatus reports events awaiting persistence.
func (s *Service) RetryQueueStatus() (recorder.RetryStatus, error) {
	rec, _, err := s.components()
	if err != nil {
		return recorder.RetryStatus{}, err
	}
	return rec.RetryQueueStatus(), nil
}

// unavailable is the query source used before initialization.
type unavailable struct{}

func (unavailable) Query(context.Context, *audit.Filter) ([]*audit.Event, error) {
	return nil, ErrNotInitialized
}

func (unavailable) Count(context.Context, *audit.Filter) (int64, error) {
	return 0, ErrNotInitialized
}
