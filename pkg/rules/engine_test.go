package rules

import (
	"testing"

	"mercator-hq/agentgov/pkg/payload"
)

func denyBulkDelete() *Rule {
	return &Rule{
		ID:       "deny-bulk-delete",
		Name:     "Deny bulk delete",
		Type:     RuleTypeDataGovernance,
		Enabled:  true,
		Priority: 900,
		Conditions: []Condition{
			{Field: "action.category", Operator: OpEquals, Value: payload.String("data_modification")},
		},
		Actions:    []Action{{Type: ActionDeny}},
		RiskWeight: 70,
	}
}

func TestEngine_DenyBulkDelete(t *testing.T) {
	engine := NewEngine(nil)
	action := AgentAction{Name: "delete_records", Category: "data_modification"}

	result := engine.Evaluate(action, BusinessContext{}, []*Rule{denyBulkDelete()})

	if result.Status != StatusDenied {
		t.Errorf("Expected status denied, got %s", result.Status)
	}
	if result.Allowed {
		t.Error("Expected allowed=false")
	}
	if result.RiskScore < 70 {
		t.Errorf("Expected risk score >= 70, got %d", result.RiskScore)
	}
	if result.RiskLevel != RiskHigh {
		t.Errorf("Expected risk level high, got %s", result.RiskLevel)
	}
	if len(result.Violations) != 1 || result.Violations[0].RuleID != "deny-bulk-delete" {
		t.Errorf("Expected one violation from deny-bulk-delete, got %+v", result.Violations)
	}
}

func TestEngine_NoMatchAllows(t *testing.T) {
	engine := NewEngine(nil)
	action := AgentAction{Name: "read_records", Category: "data_access"}

	result := engine.Evaluate(action, BusinessContext{}, []*Rule{denyBulkDelete()})

	if result.Status != StatusAllowed || !result.Allowed {
		t.Errorf("Expected allowed, got %s", result.Status)
	}
	if result.RiskScore != 0 || result.RiskLevel != RiskMinimal {
		t.Errorf("Expected minimal risk, got %d/%s", result.RiskScore, result.RiskLevel)
	}
	if len(result.AppliedRules) != 0 {
		t.Errorf("Expected no applied rules, got %v", result.AppliedRules)
	}
}

func TestEngine_DenyWinsOverApproval(t *testing.T) {
	approval := &Rule{
		ID: "approve", Name: "approve", Enabled: true, Priority: 950,
		Actions: []Action{{Type: ActionRequireApproval}},
	}

	engine := NewEngine(nil)
	result := engine.Evaluate(AgentAction{Name: "x", Category: "data_modification"}, BusinessContext{},
		[]*Rule{denyBulkDelete(), approval})

	if result.Status != StatusDenied {
		t.Errorf("Expected denied, got %s", result.Status)
	}
	if !result.RequiresHumanApproval {
		t.Error("Expected requires_human_approval to still be reported")
	}
}

func TestEngine_PendingApproval(t *testing.T) {
	rule := &Rule{
		ID: "approve-deploy", Name: "approve deploy", Enabled: true, Priority: 500,
		Conditions: []Condition{
			{Field: "context.environment", Operator: OpEquals, Value: payload.String("production")},
		},
		Actions:    []Action{{Type: ActionRequireApproval}, {Type: ActionWarn, Message: "prod"}},
		RiskWeight: 40,
	}

	engine := NewEngine(nil)
	result := engine.Evaluate(AgentAction{Name: "deploy"}, BusinessContext{Environment: "production"}, []*Rule{rule})

	if result.Status != StatusPendingApproval {
		t.Errorf("Expected pending_approval, got %s", result.Status)
	}
	if !result.Allowed {
		t.Error("Expected allowed to remain true for pending approval")
	}
	if len(result.Warnings) != 1 || result.Warnings[0] != "prod" {
		t.Errorf("Expected warning 'prod', got %v", result.Warnings)
	}
}

func TestEngine_AllowDoesNotOverrideDeny(t *testing.T) {
	allow := &Rule{ID: "allow-all", Name: "allow", Enabled: true, Priority: 1000, Actions: []Action{{Type: ActionAllow}}}

	engine := NewEngine(nil)
	result := engine.Evaluate(AgentAction{Name: "x", Category: "data_modification"}, BusinessContext{},
		[]*Rule{allow, denyBulkDelete()})

	if result.Allowed {
		t.Error("Expected allow to be advisory only")
	}
}

func TestEngine_PriorityOrderAndTies(t *testing.T) {
	mk := func(id string, prio int) *Rule {
		return &Rule{ID: id, Name: id, Enabled: true, Priority: prio, Actions: []Action{{Type: ActionLog}}}
	}
	rules := []*Rule{mk("low", 10), mk("tie-a", 50), mk("high", 90), mk("tie-b", 50)}

	engine := NewEngine(nil)
	result := engine.Evaluate(AgentAction{Name: "x"}, BusinessContext{}, rules)

	want := []string{"high", "tie-a", "tie-b", "low"}
	if len(result.AppliedRules) != len(want) {
		t.Fatalf("Expected %d applied rules, got %v", len(want), result.AppliedRules)
	}
	for i := range want {
		if result.AppliedRules[i] != want[i] {
			t.Errorf("AppliedRules[%d] = %s, want %s", i, result.AppliedRules[i], want[i])
		}
	}
	if len(result.LogRules) != 4 {
		t.Errorf("Expected 4 log rules, got %v", result.LogRules)
	}
}

func TestEngine_DisabledRulesSkipped(t *testing.T) {
	rule := denyBulkDelete()
	rule.Enabled = false

	engine := NewEngine(nil)
	result := engine.Evaluate(AgentAction{Name: "x", Category: "data_modification"}, BusinessContext{}, []*Rule{rule})

	if !result.Allowed {
		t.Error("Expected disabled rule to be ignored")
	}
}

func TestEngine_ConditionLogic(t *testing.T) {
	conds := []Condition{
		{Field: "action.category", Operator: OpEquals, Value: payload.String("payment")},
		{Field: "action.parameters.amount", Operator: OpGreaterThan, Value: payload.Number(100)},
	}

	tests := []struct {
		name   string
		logic  ConditionLogic
		action AgentAction
		want   bool
	}{
		{"all both", LogicAll, AgentAction{Name: "pay", Category: "payment", Parameters: payload.Map{"amount": payload.Number(500)}}, true},
		{"all one", LogicAll, AgentAction{Name: "pay", Category: "payment", Parameters: payload.Map{"amount": payload.Number(5)}}, false},
		{"any one", LogicAny, AgentAction{Name: "pay", Category: "payment"}, true},
		{"any none", LogicAny, AgentAction{Name: "pay", Category: "refund"}, false},
	}

	engine := NewEngine(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := &Rule{ID: "r", Name: "r", Enabled: true, Conditions: conds, ConditionLogic: tt.logic,
				Actions: []Action{{Type: ActionWarn}}}
			if got := engine.Matches(rule, tt.action, BusinessContext{}); got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEngine_SupplementaryActions(t *testing.T) {
	rule := &Rule{
		ID: "multi", Name: "multi", Enabled: true, Priority: 100,
		Actions: []Action{
			{Type: ActionNotify, Message: "heads up", Params: payload.Map{"channel": payload.String("ops")}},
			{Type: ActionTransform, Params: payload.Map{"redact": payload.Bool(true)}},
			{Type: ActionRateLimit},
			{Type: ActionEscalate},
		},
	}

	engine := NewEngine(nil)
	result := engine.Evaluate(AgentAction{Name: "x"}, BusinessContext{}, []*Rule{rule})

	if len(result.Notifications) != 1 || result.Notifications[0].Message != "heads up" {
		t.Errorf("Expected one notification, got %+v", result.Notifications)
	}
	if len(result.Transformations) != 1 {
		t.Errorf("Expected one transformation, got %+v", result.Transformations)
	}
	if !result.RateLimitRequested {
		t.Error("Expected rate limit to be requested")
	}
	if result.Status != StatusPendingApproval {
		t.Errorf("Expected escalate to require approval, got %s", result.Status)
	}
}

func TestEngine_CustomEvaluator(t *testing.T) {
	engine := NewEngine(nil)
	err := engine.RegisterEvaluator("is_weekend", func(actual payload.Value, found bool, cond Condition) bool {
		s, _ := actual.AsString()
		return found && (s == "saturday" || s == "sunday")
	})
	if err != nil {
		t.Fatalf("RegisterEvaluator failed: %v", err)
	}

	rule := &Rule{
		ID: "weekend", Name: "weekend", Enabled: true,
		Conditions: []Condition{{Field: "context.day", Operator: OpCustom, CustomEvaluator: "is_weekend"}},
		Actions:    []Action{{Type: ActionWarn}},
	}
	unknown := &Rule{
		ID: "unknown", Name: "unknown", Enabled: true,
		Conditions: []Condition{{Field: "context.day", Operator: OpCustom, CustomEvaluator: "nope"}},
		Actions:    []Action{{Type: ActionDeny}},
	}

	bctx := BusinessContext{Metadata: payload.Map{"day": payload.String("sunday")}}
	result := engine.Evaluate(AgentAction{Name: "x"}, bctx, []*Rule{rule, unknown})

	if len(result.AppliedRules) != 1 || result.AppliedRules[0] != "weekend" {
		t.Errorf("Expected only weekend rule to apply, got %v", result.AppliedRules)
	}
	if !result.Allowed {
		t.Error("Expected unknown evaluator to be a non-match")
	}
}

func TestEngine_InvalidRegexNeverRaises(t *testing.T) {
	rule := &Rule{
		ID: "bad", Name: "bad", Enabled: true,
		Conditions: []Condition{{Field: "action.name", Operator: OpMatchesRegex, Value: payload.String("([")}},
		Actions:    []Action{{Type: ActionDeny}},
	}

	engine := NewEngine(nil)
	result := engine.Evaluate(AgentAction{Name: "anything"}, BusinessContext{}, []*Rule{rule})

	if !result.Allowed {
		t.Error("Expected invalid uncompiled pattern to be a non-match")
	}
}

func TestAggregateRisk(t *testing.T) {
	tests := []struct {
		weights []int
		want    int
	}{
		{nil, 0},
		{[]int{10}, 10},
		{[]int{30, 30}, 60},
		{[]int{70, 50}, 100},
		{[]int{-5, 20}, 20},
	}

	for _, tt := range tests {
		if got := AggregateRisk(tt.weights); got != tt.want {
			t.Errorf("AggregateRisk(%v) = %d, want %d", tt.weights, got, tt.want)
		}
	}
}

func TestLevelFor(t *testing.T) {
	tests := []struct {
		score int
		want  RiskLevel
	}{
		{0, RiskMinimal},
		{14, RiskMinimal},
		{15, RiskLow},
		{40, RiskMedium},
		{69, RiskMedium},
		{70, RiskHigh},
		{90, RiskCritical},
		{100, RiskCritical},
	}

	for _, tt := range tests {
		if got := LevelFor(tt.score); got != tt.want {
			t.Errorf("LevelFor(%d) = %s, want %s", tt.score, got, tt.want)
		}
	}
}
