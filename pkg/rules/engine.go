package rules

import (
	"fmt"
	"log/slog"
	"regexp"
	"sync"
	"time"
)

// Engine evaluates rule sets against agent actions. Evaluation is pure: the
// engine holds only the custom evaluator registry and a regex cache.
type Engine struct {
	// evaluators holds named custom evaluators
	evaluators   map[string]CustomFunc
	evaluatorsMu sync.RWMutex

	// patterns caches lazily compiled regexes for rules that skipped Compile
	patterns sync.Map

	logger *slog.Logger
}

// NewEngine creates a rule engine.
func NewEngine(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		evaluators: make(map[string]CustomFunc),
		logger:     logger.With("component", "rules.engine"),
	}
}

// RegisterEvaluator registers fn under name for use by custom conditions.
// Registering an existing name replaces it.
func (e *Engine) RegisterEvaluator(name string, fn CustomFunc) error {
	if name == "" {
		return fmt.Errorf("custom evaluator name cannot be empty")
	}
	if fn == nil {
		return fmt.Errorf("custom evaluator %q cannot be nil", name)
	}

	e.evaluatorsMu.Lock()
	e.evaluators[name] = fn
	e.evaluatorsMu.Unlock()

	e.logger.Debug("registered custom evaluator", "name", name)
	return nil
}

// HasEvaluator reports whether a custom evaluator is registered under name.
func (e *Engine) HasEvaluator(name string) bool {
	_, ok := e.evaluator(name)
	return ok
}

func (e *Engine) evaluator(name string) (CustomFunc, bool) {
	e.evaluatorsMu.RLock()
	defer e.evaluatorsMu.RUnlock()
	fn, ok := e.evaluators[name]
	return fn, ok
}

func (e *Engine) compilePattern(pattern string) (*regexp.Regexp, error) {
	if cached, ok := e.patterns.Load(pattern); ok {
		if re, ok := cached.(*regexp.Regexp); ok {
			return re, nil
		}
		return nil, cached.(error)
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		e.patterns.Store(pattern, err)
		return nil, err
	}
	e.patterns.Store(pattern, re)
	return re, nil
}

// Evaluate runs every enabled rule against the action and context and folds
// the matched rules' actions into a fresh result.
//
// Rules are visited by descending priority with ties in slice order. A deny
// always wins over require_approval; allow is advisory only.
func (e *Engine) Evaluate(action AgentAction, bctx BusinessContext, rules []*Rule) *EvaluationResult {
	start := time.Now()

	result := &EvaluationResult{
		Status:       StatusAllowed,
		Allowed:      true,
		Violations:   []Violation{},
		Warnings:     []string{},
		AppliedRules: []string{},
	}

	subject := NewSubject(action, bctx)
	var weights []int

	for _, rule := range SortByPriority(rules) {
		if !rule.Enabled {
			continue
		}
		if !e.matches(rule, subject) {
			continue
		}

		result.AppliedRules = append(result.AppliedRules, rule.ID)
		weights = append(weights, rule.RiskWeight)
		e.applyActions(rule, result)
	}

	switch {
	case !result.Allowed:
		result.Status = StatusDenied
	case result.RequiresHumanApproval:
		result.Status = StatusPendingApproval
	}

	result.RiskScore = AggregateRisk(weights)
	result.RiskLevel = LevelFor(result.RiskScore)
	result.Duration = time.Since(start)

	e.logger.Debug("evaluated action",
		"action", action.Name,
		"status", result.Status,
		"risk_score", result.RiskScore,
		"applied_rules", len(result.AppliedRules),
	)

	return result
}

// Matches reports whether rule matches the action and context.
func (e *Engine) Matches(rule *Rule, action AgentAction, bctx BusinessContext) bool {
	return e.matches(rule, NewSubject(action, bctx))
}

func (e *Engine) matches(rule *Rule, subject Subject) bool {
	if len(rule.Conditions) == 0 {
		return true
	}

	matchAny := rule.Logic() == LogicAny
	for i := range rule.Conditions {
		cond := &rule.Conditions[i]
		actual, found := subject.Resolve(cond.Field)
		ok := e.evaluateOperator(cond, actual, found)

		if matchAny && ok {
			return true
		}
		if !matchAny && !ok {
			return false
		}
	}
	return !matchAny
}

func (e *Engine) applyActions(rule *Rule, result *EvaluationResult) {
	for _, act := range rule.Actions {
		switch act.Type {
		case ActionDeny:
			result.Allowed = false
			msg := act.Message
			if msg == "" {
				msg = fmt.Sprintf("denied by rule %s", rule.Name)
			}
			result.Violations = append(result.Violations, Violation{
				RuleID:   rule.ID,
				RuleName: rule.Name,
				Message:  msg,
			})

		case ActionRequireApproval:
			result.RequiresHumanApproval = true

		case ActionEscalate:
			result.RequiresHumanApproval = true
			msg := act.Message
			if msg == "" {
				msg = fmt.Sprintf("escalated by rule %s", rule.Name)
			}
			result.Warnings = append(result.Warnings, msg)

		case ActionWarn:
			msg := act.Message
			if msg == "" {
				msg = fmt.Sprintf("warning from rule %s", rule.Name)
			}
			result.Warnings = append(result.Warnings, msg)

		case ActionLog:
			result.LogRules = append(result.LogRules, rule.ID)

		case ActionRateLimit:
			result.RateLimitRequested = true

		case ActionNotify:
			result.Notifications = append(result.Notifications, Notification{
				RuleID:  rule.ID,
				Message: act.Message,
				Params:  act.Params.Clone(),
			})

		case ActionTransform:
			result.Transformations = append(result.Transformations, Transformation{
				RuleID: rule.ID,
				Params: act.Params.Clone(),
			})

		case ActionAllow:
			// advisory
		}
	}
}
