package validator

import (
	"testing"

	"mercator-hq/agentgov/pkg/payload"
	"mercator-hq/agentgov/pkg/rules"
)

func cond(field string, op rules.Operator, v any) rules.Condition {
	return rules.Condition{Field: field, Operator: op, Value: payload.FromAny(v)}
}

func rule(id string, prio int, conds []rules.Condition, actions ...rules.ActionType) *rules.Rule {
	r := &rules.Rule{
		ID:          id,
		Name:        id,
		Description: "test rule",
		Tags:        []string{"test"},
		Enabled:     true,
		Priority:    prio,
		Conditions:  conds,
	}
	for _, a := range actions {
		r.Actions = append(r.Actions, rules.Action{Type: a})
	}
	return r
}

func hasIssue(report *Report, code string, ids ...string) bool {
	for _, issue := range report.ByCode(code) {
		if len(issue.RuleIDs) != len(ids) {
			continue
		}
		match := true
		for i := range ids {
			if issue.RuleIDs[i] != ids[i] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

func TestValidate_Shadowing(t *testing.T) {
	category := cond("action.category", rules.OpEquals, "payment")
	amount := cond("action.parameters.amount", rules.OpGreaterThan, 100)

	tests := []struct {
		name    string
		a, b    *rules.Rule
		shadows bool
	}{
		{
			name:    "unconditional higher priority",
			a:       rule("a", 500, nil, rules.ActionWarn),
			b:       rule("b", 200, []rules.Condition{category}, rules.ActionWarn),
			shadows: true,
		},
		{
			name:    "subset of conditions",
			a:       rule("a", 500, []rules.Condition{category}, rules.ActionWarn),
			b:       rule("b", 200, []rules.Condition{amount, category}, rules.ActionWarn),
			shadows: true,
		},
		{
			name:    "not a subset",
			a:       rule("a", 500, []rules.Condition{amount}, rules.ActionWarn),
			b:       rule("b", 200, []rules.Condition{category}, rules.ActionWarn),
			shadows: false,
		},
		{
			name:    "equal priority",
			a:       rule("a", 200, nil, rules.ActionWarn),
			b:       rule("b", 200, []rules.Condition{category}, rules.ActionWarn),
			shadows: false,
		},
		{
			name:    "lower priority",
			a:       rule("a", 100, nil, rules.ActionWarn),
			b:       rule("b", 200, []rules.Condition{category}, rules.ActionWarn),
			shadows: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := Validate([]*rules.Rule{tt.a, tt.b}, WithoutLint())
			if got := hasIssue(report, CodeShadowed, "a", "b"); got != tt.shadows {
				t.Errorf("Expected shadowed=%v, got issues %v", tt.shadows, report.Issues)
			}
		})
	}
}

func TestValidate_DuplicateIDs(t *testing.T) {
	report := Validate([]*rules.Rule{
		rule("same", 100, nil, rules.ActionLog),
		rule("same", 200, []rules.Condition{cond("action.name", rules.OpExists, nil)}, rules.ActionLog),
	}, WithoutLint())

	if !hasIssue(report, CodeDuplicateID, "same") {
		t.Errorf("Expected duplicate id issue, got %v", report.Issues)
	}
	if !report.HasErrors() {
		t.Error("Expected HasErrors to be true")
	}
}

func TestValidate_ConditionSets(t *testing.T) {
	c1 := cond("action.category", rules.OpEquals, "deploy")
	c2 := cond("context.environment", rules.OpEquals, "production")

	t.Run("contradiction", func(t *testing.T) {
		report := Validate([]*rules.Rule{
			rule("allow", 300, []rules.Condition{c1, c2}, rules.ActionAllow),
			rule("deny", 300, []rules.Condition{c2, c1}, rules.ActionDeny),
		}, WithoutLint())

		if !hasIssue(report, CodeConflict, "allow", "deny") {
			t.Errorf("Expected conflict, got %v", report.Issues)
		}
		if !report.HasErrors() {
			t.Error("Expected conflict to be an error")
		}
	})

	t.Run("soft duplicate", func(t *testing.T) {
		report := Validate([]*rules.Rule{
			rule("warn", 300, []rules.Condition{c1, c2}, rules.ActionWarn),
			rule("log", 300, []rules.Condition{c2, c1}, rules.ActionLog),
		}, WithoutLint())

		if !hasIssue(report, CodeDuplicate, "warn", "log") {
			t.Errorf("Expected duplicate warning, got %v", report.Issues)
		}
		if report.HasErrors() {
			t.Errorf("Expected no errors, got %v", report.Filter(SeverityError))
		}
	})

	t.Run("different values", func(t *testing.T) {
		report := Validate([]*rules.Rule{
			rule("a", 300, []rules.Condition{cond("action.category", rules.OpEquals, "x")}, rules.ActionAllow),
			rule("b", 300, []rules.Condition{cond("action.category", rules.OpEquals, "y")}, rules.ActionDeny),
		}, WithoutLint())

		if len(report.ByCode(CodeConflict))+len(report.ByCode(CodeDuplicate)) != 0 {
			t.Errorf("Expected no duplicate findings, got %v", report.Issues)
		}
	})
}

func TestValidate_Structure(t *testing.T) {
	bad := rule("bad-regex", 200, []rules.Condition{cond("action.name", rules.OpMatchesRegex, "([")}, rules.ActionDeny)
	custom := rule("custom", 200, []rules.Condition{{Field: "action.name", Operator: rules.OpCustom, CustomEvaluator: "missing"}}, rules.ActionWarn)

	report := Validate([]*rules.Rule{bad, custom}, WithEvaluators(rules.NewEngine(nil)), WithoutLint())

	if !hasIssue(report, CodeInvalidRule, "bad-regex") {
		t.Errorf("Expected invalid regex to be reported, got %v", report.Issues)
	}
	if !hasIssue(report, CodeInvalidRule, "custom") {
		t.Errorf("Expected unknown evaluator to be reported, got %v", report.Issues)
	}
}

func TestValidate_Lint(t *testing.T) {
	bare := &rules.Rule{ID: "bare", Name: "bare", Enabled: true, Priority: 50, RiskWeight: 10,
		Actions: []rules.Action{{Type: rules.ActionDeny}}}
	risky := rule("risky", 300, []rules.Condition{cond("action.category", rules.OpEquals, "x")}, rules.ActionWarn)
	risky.RiskWeight = 60
	broad := rule("broad", 300, []rules.Condition{cond("action.name", rules.OpMatchesRegex, ".*")}, rules.ActionLog)

	report := Validate([]*rules.Rule{bare, risky, broad})

	tests := []struct {
		code string
		id   string
	}{
		{CodeMissingDescription, "bare"},
		{CodeMissingTags, "bare"},
		{CodeUnconditionalDeny, "bare"},
		{CodeLowPriorityDeny, "bare"},
		{CodeUnguardedRisk, "risky"},
		{CodeBroadRegex, "broad"},
	}

	for _, tt := range tests {
		if !hasIssue(report, tt.code, tt.id) {
			t.Errorf("Expected %s for %s, got %v", tt.code, tt.id, report.Issues)
		}
	}
	if report.HasErrors() {
		t.Errorf("Expected lint findings only, got errors %v", report.Filter(SeverityError))
	}
}

func TestValidate_Presets(t *testing.T) {
	for _, name := range rules.PresetNames() {
		rs, err := rules.LoadPreset(name)
		if err != nil {
			t.Fatalf("LoadPreset(%s) failed: %v", name, err)
		}
		if report := Validate(rs); report.HasErrors() {
			t.Errorf("preset %s has errors: %v", name, report.Filter(SeverityError))
		}
	}
}
