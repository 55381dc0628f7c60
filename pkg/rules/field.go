package rules

import (
	"mercator-hq/agentgov/pkg/payload"
)

// Subject is the merged object conditions are evaluated against:
// {"action": <action fields>, "context": <context fields>}.
type Subject struct {
	root payload.Value
}

// NewSubject builds the evaluation subject for an action in a context.
func NewSubject(action AgentAction, bctx BusinessContext) Subject {
	act := payload.Map{
		"id":          payload.String(action.ID),
		"name":        payload.String(action.Name),
		"category":    payload.String(action.Category),
		"description": payload.String(action.Description),
		"agent_id":    payload.String(action.AgentID),
		"session_id":  payload.String(action.SessionID),
		"user_id":     payload.String(action.UserID),
		"parameters":  payload.MapValue(action.Parameters),
		"metadata":    payload.MapValue(action.Metadata),
	}

	ctx := payload.Map{
		"environment": payload.String(bctx.Environment),
		"user_role":   payload.String(bctx.UserRole),
		"metadata":    payload.MapValue(bctx.Metadata),
	}
	for k, v := range bctx.Metadata {
		if _, reserved := ctx[k]; !reserved {
			ctx[k] = v
		}
	}

	// Empty identity fields resolve as absent so exists/not_exists behave.
	for _, key := range []string{"id", "category", "description", "agent_id", "session_id", "user_id"} {
		if s, _ := act[key].AsString(); s == "" {
			delete(act, key)
		}
	}
	for _, key := range []string{"environment", "user_role"} {
		if s, _ := ctx[key].AsString(); s == "" {
			delete(ctx, key)
		}
	}

	return Subject{root: payload.MapValue(payload.Map{
		"action":  payload.MapValue(act),
		"context": payload.MapValue(ctx),
	})}
}

// Resolve returns the value at a dot path. A path that cannot be followed
// reports false.
func (s Subject) Resolve(path string) (payload.Value, bool) {
	return payload.Lookup(s.root, path)
}

// Value returns the subject as a payload value.
func (s Subject) Value() payload.Value {
	return s.root
}
