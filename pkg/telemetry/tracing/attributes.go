package tracing

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Span attribute keys. Custom keys use the "agentgov." namespace.
const (
	AttrAgentID   = "agentgov.agent_id"
	AttrSessionID = "agentgov.session_id"
	AttrUserID    = "agentgov.user_id"

	AttrActionName     = "agentgov.action.name"
	AttrActionCategory = "agentgov.action.category"

	AttrDecisionStatus = "agentgov.decision.status"
	AttrRiskScore      = "agentgov.risk.score"
	AttrRiskLevel      = "agentgov.risk.level"
	AttrAppliedRules   = "agentgov.rules.applied"
	AttrRateLimitID    = "agentgov.ratelimit.id"

	AttrApprovalID     = "agentgov.approval.id"
	AttrApprovalStatus = "agentgov.approval.status"

	AttrEventID   = "agentgov.audit.event_id"
	AttrEventType = "agentgov.audit.event_type"
)

// SetActionAttributes describes the evaluated action. Empty values are
// skipped.
func SetActionAttributes(span trace.Span, name, category, agentID, sessionID string) {
	attrs := []attribute.KeyValue{attribute.String(AttrActionName, name)}
	if category != "" {
		attrs = append(attrs, attribute.String(AttrActionCategory, category))
	}
	if agentID != "" {
		attrs = append(attrs, attribute.String(AttrAgentID, agentID))
	}
	if sessionID != "" {
		attrs = append(attrs, attribute.String(AttrSessionID, sessionID))
	}
	span.SetAttributes(attrs...)
}

// SetDecisionAttributes describes an evaluation result.
func SetDecisionAttributes(span trace.Span, status string, riskScore int, riskLevel string, appliedRules int) {
	span.SetAttributes(
		attribute.String(AttrDecisionStatus, status),
		attribute.Int(AttrRiskScore, riskScore),
		attribute.String(AttrRiskLevel, riskLevel),
		attribute.Int(AttrAppliedRules, appliedRules),
	)
}

// SetApprovalAttributes describes an approval request.
func SetApprovalAttributes(span trace.Span, requestID, status string) {
	span.SetAttributes(
		attribute.String(AttrApprovalID, requestID),
		attribute.String(AttrApprovalStatus, status),
	)
}

// SetAuditAttributes describes a logged audit event.
func SetAuditAttributes(span trace.Span, eventID, eventType string) {
	span.SetAttributes(
		attribute.String(AttrEventID, eventID),
		attribute.String(AttrEventType, eventType),
	)
}

// AddEvent adds a named event to span.
func AddEvent(span trace.Span, name string, attrs ...attribute.KeyValue) {
	span.AddEvent(name, trace.WithAttributes(attrs...))
}
