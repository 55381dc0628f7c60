package rules

import (
	"fmt"
	"regexp"
	"strings"

	"mercator-hq/agentgov/pkg/payload"
)

var validRuleTypes = map[RuleType]bool{
	RuleTypeSecurity:       true,
	RuleTypeCompliance:     true,
	RuleTypeFinancial:      true,
	RuleTypeOperational:    true,
	RuleTypeDataGovernance: true,
	RuleTypeDeployment:     true,
	RuleTypeCustom:         true,
}

var validOperators = map[Operator]bool{
	OpEquals:       true,
	OpNotEquals:    true,
	OpContains:     true,
	OpNotContains:  true,
	OpGreaterThan:  true,
	OpLessThan:     true,
	OpIn:           true,
	OpNotIn:        true,
	OpMatchesRegex: true,
	OpExists:       true,
	OpNotExists:    true,
	OpCustom:       true,
}

var validActionTypes = map[ActionType]bool{
	ActionAllow:           true,
	ActionDeny:            true,
	ActionRequireApproval: true,
	ActionWarn:            true,
	ActionLog:             true,
	ActionRateLimit:       true,
	ActionTransform:       true,
	ActionEscalate:        true,
	ActionNotify:          true,
}

// EvaluatorLookup reports whether a custom evaluator name is known. *Engine
// satisfies it.
type EvaluatorLookup interface {
	HasEvaluator(name string) bool
}

// Validate checks the rule's structure. When evaluators is non-nil, custom
// conditions must name a registered evaluator.
func (r *Rule) Validate(evaluators EvaluatorLookup) error {
	var errs []string

	if strings.TrimSpace(r.ID) == "" {
		errs = append(errs, "id is required")
	}
	if strings.TrimSpace(r.Name) == "" {
		errs = append(errs, "name is required")
	}
	if r.Type != "" && !validRuleTypes[r.Type] {
		errs = append(errs, fmt.Sprintf("unknown rule type %q", r.Type))
	}
	if r.Priority < MinPriority || r.Priority > MaxPriority {
		errs = append(errs, fmt.Sprintf("priority %d out of range [%d, %d]", r.Priority, MinPriority, MaxPriority))
	}
	if r.RiskWeight < 0 || r.RiskWeight > MaxRiskScore {
		errs = append(errs, fmt.Sprintf("risk_weight %d out of range [0, %d]", r.RiskWeight, MaxRiskScore))
	}
	if r.ConditionLogic != "" && r.ConditionLogic != LogicAll && r.ConditionLogic != LogicAny {
		errs = append(errs, fmt.Sprintf("unknown condition_logic %q", r.ConditionLogic))
	}
	if len(r.Actions) == 0 {
		errs = append(errs, "at least one action is required")
	}

	for i, cond := range r.Conditions {
		errs = append(errs, validateCondition(i, cond, evaluators)...)
	}

	for i, act := range r.Actions {
		if !validActionTypes[act.Type] {
			errs = append(errs, fmt.Sprintf("action %d: unknown type %q", i, act.Type))
		}
	}

	if len(errs) > 0 {
		return &ValidationError{RuleID: r.ID, Errors: errs}
	}
	return nil
}

func validateCondition(i int, cond Condition, evaluators EvaluatorLookup) []string {
	var errs []string
	prefix := fmt.Sprintf("condition %d", i)

	if strings.TrimSpace(cond.Field) == "" {
		errs = append(errs, prefix+": field is required")
	} else if n := len(strings.Split(cond.Field, ".")); n > payload.MaxPathDepth {
		errs = append(errs, fmt.Sprintf("%s: field path has %d segments, max %d", prefix, n, payload.MaxPathDepth))
	}

	if !validOperators[cond.Operator] {
		return append(errs, fmt.Sprintf("%s: unknown operator %q", prefix, cond.Operator))
	}

	switch cond.Operator {
	case OpMatchesRegex:
		pattern, ok := cond.Value.AsString()
		if !ok {
			errs = append(errs, prefix+": matches_regex requires a string pattern")
		} else if _, err := regexp.Compile(pattern); err != nil {
			errs = append(errs, fmt.Sprintf("%s: invalid regex %q: %v", prefix, pattern, err))
		}

	case OpIn, OpNotIn:
		if k := cond.Value.Kind(); k != payload.KindList && k != payload.KindString {
			errs = append(errs, fmt.Sprintf("%s: %s requires a list value", prefix, cond.Operator))
		}

	case OpGreaterThan, OpLessThan:
		if _, ok := toFloat(cond.Value); !ok {
			errs = append(errs, fmt.Sprintf("%s: %s requires a numeric value", prefix, cond.Operator))
		}

	case OpCustom:
		if cond.CustomEvaluator == "" {
			errs = append(errs, prefix+": custom operator requires custom_evaluator")
		} else if evaluators != nil && !evaluators.HasEvaluator(cond.CustomEvaluator) {
			errs = append(errs, fmt.Sprintf("%s: unknown custom evaluator %q", prefix, cond.CustomEvaluator))
		}
	}

	return errs
}

// Compile pre-compiles regex patterns so evaluation never parses a pattern.
// Call it only on a rule that passed Validate.
func (r *Rule) Compile() error {
	for i := range r.Conditions {
		cond := &r.Conditions[i]
		if cond.Operator != OpMatchesRegex {
			continue
		}
		pattern, _ := cond.Value.AsString()
		re, err := regexp.Compile(pattern)
		if err != nil {
			return &ValidationError{RuleID: r.ID, Errors: []string{fmt.Sprintf("condition %d: invalid regex %q: %v", i, pattern, err)}}
		}
		cond.pattern = re
	}
	return nil
}

// Validate rejects an action that cannot be evaluated.
func (a AgentAction) Validate() error {
	if strings.TrimSpace(a.Name) == "" {
		return fmt.Errorf("%w: action name is required", ErrInvalidInput)
	}
	return nil
}
