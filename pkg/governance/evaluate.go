package governance

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"mercator-hq/agentgov/pkg/audit"
	"mercator-hq/agentgov/pkg/payload"
	"mercator-hq/agentgov/pkg/ratelimit"
	"mercator-hq/agentgov/pkg/rules"
	"mercator-hq/agentgov/pkg/telemetry/tracing"
)

// IdentifiersFor derives rate limit identifiers from an action. The action
// type is the category, or the name when no category is set.
func IdentifiersFor(action rules.AgentAction) ratelimit.Identifiers {
	actionType := action.Category
	if actionType == "" {
		actionType = action.Name
	}
	return ratelimit.Identifiers{
		AgentID:    action.AgentID,
		SessionID:  action.SessionID,
		UserID:     action.UserID,
		ActionType: actionType,
	}
}

// EvaluateAction decides whether action may proceed.
//
// Malformed input is rejected with an error before any side effect. Otherwise
// a decision is always produced: the rate limit is checked, the enabled rules
// are evaluated and the two are merged. A denial keeps precedence over a rate
// limit, which in turn overrides pending approval. Requests that pass the
// rate limit and are not denied are counted against it. The decision is
// audited as an action_evaluated event.
func (s *Service) EvaluateAction(ctx context.Context, action rules.AgentAction, bctx rules.BusinessContext) (*rules.EvaluationResult, error) {
	ctx, span := s.tracer.Start(ctx, "governance.evaluate_action")
	defer span.End()
	tracing.SetActionAttributes(span, action.Name, action.Category, action.AgentID, action.SessionID)

	rec, _, err := s.components()
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if err := action.Validate(); err != nil {
		tracing.SetError(span, err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	start := time.Now()
	ids := IdentifiersFor(action)
	result := s.engine.Evaluate(action, bctx, s.registry.Enabled())

	// Denied actions do not consume capacity. Everything else is checked and
	// recorded under one limiter lock.
	var limit ratelimit.Result
	if result.Status == rules.StatusDenied {
		limit = s.limiter.CheckLimit(ids)
	} else {
		limit = s.limiter.Allow(ids)
	}

	result.RateLimitInfo = &rules.RateLimitInfo{
		Allowed:   limit.Allowed,
		LimitID:   limit.LimitID,
		Remaining: limit.Remaining,
		ResetAt:   limit.ResetAt,
	}
	if !limit.Allowed {
		if result.Status != rules.StatusDenied {
			result.Status = rules.StatusRateLimited
			result.Violations = append(result.Violations, rules.Violation{
				RuleID:   limit.LimitID,
				RuleName: "rate_limit",
				Message:  fmt.Sprintf("rate limit %s exceeded", limit.LimitID),
			})
		}
		result.Allowed = false
		rec.Log(ctx, audit.LogParams{
			EventType: audit.EventRateLimitExceeded,
			Action:    action.Name,
			Outcome:   audit.OutcomeFailure,
			AgentID:   action.AgentID,
			SessionID: action.SessionID,
			UserID:    action.UserID,
			Details: payload.Map{
				"limit_id": payload.String(limit.LimitID),
				"reset_at": payload.String(limit.ResetAt.UTC().Format(time.RFC3339Nano)),
			},
		})
	}
	result.Duration = time.Since(start)

	event := rec.Log(ctx, audit.LogParams{
		EventType: audit.EventActionEvaluated,
		Action:    action.Name,
		Outcome:   outcomeFor(result.Status),
		AgentID:   action.AgentID,
		SessionID: action.SessionID,
		UserID:    action.UserID,
		RiskLevel: string(result.RiskLevel),
		Details:   decisionDetails(action, result),
		Metadata:  action.Metadata.Clone(),
	})

	if s.metrics != nil {
		s.metrics.RecordEvaluation(string(result.Status), string(result.RiskLevel), result.Duration)
		for _, id := range result.AppliedRules {
			s.metrics.RecordRuleHit(id)
		}
	}
	tracing.SetDecisionAttributes(span, string(result.Status), result.RiskScore, string(result.RiskLevel), len(result.AppliedRules))
	tracing.SetAuditAttributes(span, event.EventID, event.EventType)
	if !limit.Allowed {
		span.SetAttributes(attribute.String(tracing.AttrRateLimitID, limit.LimitID))
	}

	s.logger.Debug("action evaluated",
		"action", action.Name,
		"agent_id", action.AgentID,
		"status", result.Status,
		"risk_score", result.RiskScore,
		"event_id", event.EventID,
	)
	return result, nil
}

func outcomeFor(status rules.Status) audit.Outcome {
	switch status {
	case rules.StatusAllowed:
		return audit.OutcomeSuccess
	case rules.StatusPendingApproval:
		return audit.OutcomePending
	}
	return audit.OutcomeFailure
}

func decisionDetails(action rules.AgentAction, result *rules.EvaluationResult) payload.Map {
	d := payload.Map{
		"status":        payload.String(string(result.Status)),
		"allowed":       payload.Bool(result.Allowed),
		"risk_score":    payload.Number(float64(result.RiskScore)),
		"applied_rules": stringList(result.AppliedRules),
	}
	if action.ID != "" {
		d["action_id"] = payload.String(action.ID)
	}
	if action.Category != "" {
		d["category"] = payload.String(action.Category)
	}
	if len(result.Violations) > 0 {
		msgs := make([]string, len(result.Violations))
		for i, v := range result.Violations {
			msgs[i] = v.Message
		}
		d["violations"] = stringList(msgs)
	}
	if len(result.Warnings) > 0 {
		d["warnings"] = stringList(result.Warnings)
	}
	if len(result.LogRules) > 0 {
		d["log_rules"] = stringList(result.LogRules)
	}
	if result.RequiresHumanApproval {
		d["requires_approval"] = payload.Bool(true)
	}
	if info := result.RateLimitInfo; info != nil && info.LimitID != "" {
		d["rate_limit_id"] = payload.String(info.LimitID)
	}
	return d
}

func stringList(values []string) payload.Value {
	items := make([]payload.Value, len(values))
	for i, v := range values {
		items[i] = payload.String(v)
	}
	return payload.List(items...)
}
