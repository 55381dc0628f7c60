// Package validator performs static conflict analysis over a rule set.
//
// It is pure and side-effect free. It reports duplicate ids, duplicate or
// contradicting condition sets, shadowed rules and a set of lint findings.
// It is never on the evaluation hot path.
package validator

import (
	"fmt"
	"sort"
	"strings"

	"mercator-hq/agentgov/pkg/rules"
)

// Severity ranks an issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Issue codes.
const (
	CodeInvalidRule        = "invalid_rule"
	CodeDuplicateID        = "duplicate_id"
	CodeConflict           = "conflict"
	CodeDuplicate          = "duplicate"
	CodeShadowed           = "shadowed"
	CodeMissingDescription = "missing_description"
	CodeMissingTags        = "missing_tags"
	CodeUnconditionalDeny  = "unconditional_deny"
	CodeUnguardedRisk      = "high_risk_without_block"
	CodeLowPriorityDeny    = "low_priority_deny"
	CodeBroadRegex         = "broad_regex"
)

// Issue is a single finding.
type Issue struct {
	Severity   Severity `json:"severity"`
	Code       string   `json:"code"`
	RuleIDs    []string `json:"rule_ids"`
	Message    string   `json:"message"`
	Suggestion string   `json:"suggestion,omitempty"`
}

// String formats the issue for CLI output.
func (i Issue) String() string {
	s := fmt.Sprintf("[%s] %s (%s): %s", i.Severity, i.Code, strings.Join(i.RuleIDs, ", "), i.Message)
	if i.Suggestion != "" {
		s += "\n    suggestion: " + i.Suggestion
	}
	return s
}

// Report is the result of validating a rule set.
type Report struct {
	RulesChecked int     `json:"rules_checked"`
	Issues       []Issue `json:"issues"`
}

// HasErrors reports whether any issue is an error.
func (r *Report) HasErrors() bool {
	for _, i := range r.Issues {
		if i.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Filter returns the issues with the given severity.
func (r *Report) Filter(sev Severity) []Issue {
	var out []Issue
	for _, i := range r.Issues {
		if i.Severity == sev {
			out = append(out, i)
		}
	}
	return out
}

// ByCode returns the issues with the given code.
func (r *Report) ByCode(code string) []Issue {
	var out []Issue
	for _, i := range r.Issues {
		if i.Code == code {
			out = append(out, i)
		}
	}
	return out
}

func (r *Report) add(sev Severity, code, msg, suggestion string, ids ...string) {
	r.Issues = append(r.Issues, Issue{
		Severity:   sev,
		Code:       code,
		RuleIDs:    ids,
		Message:    msg,
		Suggestion: suggestion,
	})
}

// Option configures validation.
type Option func(*options)

type options struct {
	evaluators rules.EvaluatorLookup
	lint       bool
}

// WithEvaluators checks custom conditions against a registry of evaluators.
func WithEvaluators(lookup rules.EvaluatorLookup) Option {
	return func(o *options) { o.evaluators = lookup }
}

// WithoutLint disables lint findings, leaving only structural and conflict
// analysis.
func WithoutLint() Option {
	return func(o *options) { o.lint = false }
}

// Validate analyses a rule set.
func Validate(rs []*rules.Rule, opts ...Option) *Report {
	o := options{lint: true}
	for _, opt := range opts {
		opt(&o)
	}

	report := &Report{RulesChecked: len(rs), Issues: []Issue{}}

	checkStructure(report, rs, o.evaluators)
	checkDuplicateIDs(report, rs)
	checkConditionSets(report, rs)
	checkShadowing(report, rs)
	if o.lint {
		lint(report, rs)
	}

	return report
}

func checkStructure(report *Report, rs []*rules.Rule, evaluators rules.EvaluatorLookup) {
	for _, r := range rs {
		err := r.Validate(evaluators)
		if err == nil {
			continue
		}
		if verr, ok := err.(*rules.ValidationError); ok {
			for _, msg := range verr.Errors {
				report.add(SeverityError, CodeInvalidRule, msg, "", r.ID)
			}
			continue
		}
		report.add(SeverityError, CodeInvalidRule, err.Error(), "", r.ID)
	}
}

func checkDuplicateIDs(report *Report, rs []*rules.Rule) {
	seen := make(map[string]int)
	for _, r := range rs {
		seen[r.ID]++
	}

	ids := make([]string, 0, len(seen))
	for id, n := range seen {
		if n > 1 {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	for _, id := range ids {
		report.add(SeverityError, CodeDuplicateID,
			fmt.Sprintf("rule id %q is used by %d rules", id, seen[id]),
			"give every rule a unique id", id)
	}
}

// checkConditionSets compares every pair of rules by their order-insensitive
// condition sets.
func checkConditionSets(report *Report, rs []*rules.Rule) {
	keys := make([]string, len(rs))
	for i, r := range rs {
		keys[i] = conditionSetKey(r)
	}

	for i := 0; i < len(rs); i++ {
		for j := i + 1; j < len(rs); j++ {
			if keys[i] != keys[j] {
				continue
			}
			a, b := rs[i], rs[j]
			if contradicts(a, b) {
				report.add(SeverityError, CodeConflict,
					fmt.Sprintf("rules %s and %s share identical conditions but one allows and the other denies", a.ID, b.ID),
					"merge the rules or make their conditions distinct", a.ID, b.ID)
				continue
			}
			report.add(SeverityWarning, CodeDuplicate,
				fmt.Sprintf("rules %s and %s have identical conditions", a.ID, b.ID),
				"consider merging the rules", a.ID, b.ID)
		}
	}
}

func contradicts(a, b *rules.Rule) bool {
	return (a.HasAction(rules.ActionAllow) && b.HasAction(rules.ActionDeny)) ||
		(a.HasAction(rules.ActionDeny) && b.HasAction(rules.ActionAllow))
}

// checkShadowing reports A shadowing B when A has strictly higher priority and
// is at least as general: no conditions, or every condition of A is in B.
func checkShadowing(report *Report, rs []*rules.Rule) {
	condKeys := make([]map[string]bool, len(rs))
	for i, r := range rs {
		condKeys[i] = make(map[string]bool, len(r.Conditions))
		for _, c := range r.Conditions {
			condKeys[i][conditionKey(c)] = true
		}
	}

	for i, a := range rs {
		if !a.Enabled {
			continue
		}
		for j, b := range rs {
			if i == j || a.Priority <= b.Priority {
				continue
			}
			if !subset(condKeys[i], condKeys[j]) {
				continue
			}
			report.add(SeverityWarning, CodeShadowed,
				fmt.Sprintf("rule %s (priority %d) shadows rule %s (priority %d)", a.ID, a.Priority, b.ID, b.Priority),
				fmt.Sprintf("raise the priority of %s or narrow the conditions of %s", b.ID, a.ID),
				a.ID, b.ID)
		}
	}
}

func subset(a, b map[string]bool) bool {
	for k := range a {
		if !b[k] {
			return false
		}
	}
	return true
}

func conditionSetKey(r *rules.Rule) string {
	keys := make([]string, len(r.Conditions))
	for i, c := range r.Conditions {
		keys[i] = conditionKey(c)
	}
	sort.Strings(keys)
	return strings.Join(keys, "\x1e")
}

func conditionKey(c rules.Condition) string {
	return strings.Join([]string{c.Field, string(c.Operator), c.Value.Kind().String(), c.Value.Text(), c.CustomEvaluator}, "\x1f")
}
