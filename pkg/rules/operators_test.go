package rules

import (
	"testing"

	"mercator-hq/agentgov/pkg/payload"
)

func TestEvaluateOperator(t *testing.T) {
	action := AgentAction{
		Name:     "transfer_funds",
		Category: "payment",
		Parameters: payload.MapOf(map[string]any{
			"amount":   250,
			"currency": "EUR",
			"limit":    "300",
			"tags":     []any{"urgent", "external"},
			"nullable": nil,
		}),
	}
	subject := NewSubject(action, BusinessContext{Environment: "staging"})

	tests := []struct {
		name string
		cond Condition
		want bool
	}{
		{"equals string", Condition{Field: "action.category", Operator: OpEquals, Value: payload.String("payment")}, true},
		{"equals number", Condition{Field: "action.parameters.amount", Operator: OpEquals, Value: payload.Number(250)}, true},
		{"equals numeric string", Condition{Field: "action.parameters.limit", Operator: OpEquals, Value: payload.Number(300)}, true},
		{"equals missing", Condition{Field: "action.parameters.nope", Operator: OpEquals, Value: payload.String("x")}, false},
		{"not_equals", Condition{Field: "action.category", Operator: OpNotEquals, Value: payload.String("refund")}, true},
		{"not_equals missing", Condition{Field: "action.parameters.nope", Operator: OpNotEquals, Value: payload.String("x")}, true},
		{"contains substring", Condition{Field: "action.name", Operator: OpContains, Value: payload.String("funds")}, true},
		{"contains list", Condition{Field: "action.parameters.tags", Operator: OpContains, Value: payload.String("urgent")}, true},
		{"contains missing", Condition{Field: "action.missing", Operator: OpContains, Value: payload.String("x")}, false},
		{"not_contains", Condition{Field: "action.name", Operator: OpNotContains, Value: payload.String("delete")}, true},
		{"not_contains missing", Condition{Field: "action.missing", Operator: OpNotContains, Value: payload.String("x")}, true},
		{"greater_than", Condition{Field: "action.parameters.amount", Operator: OpGreaterThan, Value: payload.Number(100)}, true},
		{"greater_than string field", Condition{Field: "action.parameters.limit", Operator: OpGreaterThan, Value: payload.Number(299)}, true},
		{"greater_than type mismatch", Condition{Field: "action.parameters.currency", Operator: OpGreaterThan, Value: payload.Number(1)}, false},
		{"less_than", Condition{Field: "action.parameters.amount", Operator: OpLessThan, Value: payload.Number(100)}, false},
		{"in", Condition{Field: "action.parameters.currency", Operator: OpIn, Value: payload.FromAny([]any{"USD", "EUR"})}, true},
		{"in missing", Condition{Field: "action.missing", Operator: OpIn, Value: payload.FromAny([]any{"x"})}, false},
		{"not_in", Condition{Field: "action.parameters.currency", Operator: OpNotIn, Value: payload.FromAny([]any{"USD"})}, true},
		{"not_in missing", Condition{Field: "action.missing", Operator: OpNotIn, Value: payload.FromAny([]any{"x"})}, true},
		{"matches_regex", Condition{Field: "action.name", Operator: OpMatchesRegex, Value: payload.String("^transfer_")}, true},
		{"matches_regex no", Condition{Field: "action.name", Operator: OpMatchesRegex, Value: payload.String("^delete_")}, false},
		{"exists", Condition{Field: "action.parameters.currency", Operator: OpExists}, true},
		{"exists null", Condition{Field: "action.parameters.nullable", Operator: OpExists}, false},
		{"exists missing", Condition{Field: "action.missing", Operator: OpExists}, false},
		{"not_exists missing", Condition{Field: "action.missing", Operator: OpNotExists}, true},
		{"not_exists present", Condition{Field: "context.environment", Operator: OpNotExists}, false},
		{"empty agent id absent", Condition{Field: "action.agent_id", Operator: OpNotExists}, true},
		{"unknown operator", Condition{Field: "action.name", Operator: "approximately"}, false},
	}

	engine := NewEngine(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cond := tt.cond
			actual, found := subject.Resolve(cond.Field)
			if got := engine.evaluateOperator(&cond, actual, found); got != tt.want {
				t.Errorf("evaluateOperator(%s %s) = %v, want %v", cond.Field, cond.Operator, got, tt.want)
			}
		})
	}
}

func TestNewSubject_ContextMetadata(t *testing.T) {
	subject := NewSubject(AgentAction{Name: "x"}, BusinessContext{
		Environment: "production",
		Metadata:    payload.Map{"region": payload.String("eu"), "environment": payload.String("ignored")},
	})

	if v, ok := subject.Resolve("context.region"); !ok || v.Text() != "eu" {
		t.Errorf("Expected context.region=eu, got %v (ok=%v)", v.Text(), ok)
	}
	if v, _ := subject.Resolve("context.environment"); v.Text() != "production" {
		t.Errorf("Expected metadata not to shadow environment, got %s", v.Text())
	}
	if v, ok := subject.Resolve("context.metadata.region"); !ok || v.Text() != "eu" {
		t.Errorf("Expected context.metadata.region=eu, got %v", v.Text())
	}
}
