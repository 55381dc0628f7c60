package rules

import (
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"mercator-hq/agentgov/pkg/payload"
)

// RuleType categorises a rule by the concern it governs.
type RuleType string

const (
	RuleTypeSecurity       RuleType = "security"
	RuleTypeCompliance     RuleType = "compliance"
	RuleTypeFinancial      RuleType = "financial"
	RuleTypeOperational    RuleType = "operational"
	RuleTypeDataGovernance RuleType = "data_governance"
	RuleTypeDeployment     RuleType = "deployment"
	RuleTypeCustom         RuleType = "custom"
)

// ConditionLogic combines the results of a rule's conditions.
type ConditionLogic string

const (
	// LogicAll requires every condition to hold.
	LogicAll ConditionLogic = "all"

	// LogicAny requires at least one condition to hold.
	LogicAny ConditionLogic = "any"
)

// Operator is a condition comparison operator.
type Operator string

const (
	OpEquals       Operator = "equals"
	OpNotEquals    Operator = "not_equals"
	OpContains     Operator = "contains"
	OpNotContains  Operator = "not_contains"
	OpGreaterThan  Operator = "greater_than"
	OpLessThan     Operator = "less_than"
	OpIn           Operator = "in"
	OpNotIn        Operator = "not_in"
	OpMatchesRegex Operator = "matches_regex"
	OpExists       Operator = "exists"
	OpNotExists    Operator = "not_exists"
	OpCustom       Operator = "custom"
)

// ActionType is the effect a matched rule has on the decision.
type ActionType string

const (
	ActionAllow           ActionType = "allow"
	ActionDeny            ActionType = "deny"
	ActionRequireApproval ActionType = "require_approval"
	ActionWarn            ActionType = "warn"
	ActionLog             ActionType = "log"
	ActionRateLimit       ActionType = "rate_limit"
	ActionTransform       ActionType = "transform"
	ActionEscalate        ActionType = "escalate"
	ActionNotify          ActionType = "notify"
)

// Rule is a declarative business rule. Rules are created by operators or
// preset loaders and are never mutated during evaluation.
type Rule struct {
	ID             string         `yaml:"id" json:"id"`
	Name           string         `yaml:"name" json:"name"`
	Description    string         `yaml:"description,omitempty" json:"description,omitempty"`
	Type           RuleType       `yaml:"type" json:"type"`
	Enabled        bool           `yaml:"enabled" json:"enabled"`
	Priority       int            `yaml:"priority" json:"priority"`
	Conditions     []Condition    `yaml:"conditions,omitempty" json:"conditions,omitempty"`
	ConditionLogic ConditionLogic `yaml:"condition_logic,omitempty" json:"condition_logic,omitempty"`
	Actions        []Action       `yaml:"actions" json:"actions"`
	RiskWeight     int            `yaml:"risk_weight" json:"risk_weight"`
	Tags           []string       `yaml:"tags,omitempty" json:"tags,omitempty"`
}

// Condition tests one field of the evaluation subject.
type Condition struct {
	// Field is a dot path into {"action": ..., "context": ...}.
	Field    string        `yaml:"field" json:"field"`
	Operator Operator      `yaml:"operator" json:"operator"`
	Value    payload.Value `yaml:"value,omitempty" json:"value,omitempty"`

	// CustomEvaluator names the registered evaluator used by the custom operator.
	CustomEvaluator string `yaml:"custom_evaluator,omitempty" json:"custom_evaluator,omitempty"`

	pattern *regexp.Regexp
}

// Action is an effect applied when a rule matches.
type Action struct {
	Type    ActionType  `yaml:"type" json:"type"`
	Message string      `yaml:"message,omitempty" json:"message,omitempty"`
	Params  payload.Map `yaml:"params,omitempty" json:"params,omitempty"`
}

// UnmarshalYAML applies the defaults a hand-written rule file expects:
// rules are enabled and use "all" logic unless they say otherwise.
func (r *Rule) UnmarshalYAML(node *yaml.Node) error {
	type plain Rule
	p := plain{Enabled: true, ConditionLogic: LogicAll}
	if err := node.Decode(&p); err != nil {
		return err
	}
	*r = Rule(p)
	return nil
}

// Logic returns the effective condition logic.
func (r *Rule) Logic() ConditionLogic {
	if r.ConditionLogic == "" {
		return LogicAll
	}
	return r.ConditionLogic
}

// HasAction reports whether the rule carries an action of type t.
func (r *Rule) HasAction(t ActionType) bool {
	for _, a := range r.Actions {
		if a.Type == t {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the rule, including compiled patterns.
func (r *Rule) Clone() *Rule {
	cp := *r
	cp.Conditions = append([]Condition(nil), r.Conditions...)
	cp.Actions = make([]Action, len(r.Actions))
	for i, a := range r.Actions {
		cp.Actions[i] = Action{Type: a.Type, Message: a.Message, Params: a.Params.Clone()}
	}
	cp.Tags = append([]string(nil), r.Tags...)
	return &cp
}

// AgentAction is the action an agent proposes to take.
type AgentAction struct {
	ID          string      `json:"id,omitempty"`
	Name        string      `json:"name"`
	Category    string      `json:"category,omitempty"`
	Description string      `json:"description,omitempty"`
	AgentID     string      `json:"agent_id,omitempty"`
	SessionID   string      `json:"session_id,omitempty"`
	UserID      string      `json:"user_id,omitempty"`
	Parameters  payload.Map `json:"parameters,omitempty"`
	Metadata    payload.Map `json:"metadata,omitempty"`
}

// BusinessContext describes the circumstances an action is proposed in.
type BusinessContext struct {
	Environment string      `json:"environment,omitempty"`
	UserRole    string      `json:"user_role,omitempty"`
	Metadata    payload.Map `json:"metadata,omitempty"`
}

// Status is the overall outcome of an evaluation.
type Status string

const (
	StatusAllowed         Status = "allowed"
	StatusDenied          Status = "denied"
	StatusPendingApproval Status = "pending_approval"
	StatusRateLimited     Status = "rate_limited"
)

// RiskLevel is the tier derived from a risk score.
type RiskLevel string

const (
	RiskMinimal  RiskLevel = "minimal"
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// Violation records a deny produced by a matched rule.
type Violation struct {
	RuleID   string `json:"rule_id"`
	RuleName string `json:"rule_name"`
	Message  string `json:"message"`
}

// Notification is a notify action the caller should deliver.
type Notification struct {
	RuleID  string      `json:"rule_id"`
	Message string      `json:"message,omitempty"`
	Params  payload.Map `json:"params,omitempty"`
}

// Transformation is a transform action the caller should apply.
type Transformation struct {
	RuleID string      `json:"rule_id"`
	Params payload.Map `json:"params,omitempty"`
}

// RateLimitInfo reports the admission-control side of a decision.
type RateLimitInfo struct {
	Allowed   bool      `json:"allowed"`
	LimitID   string    `json:"limit_id,omitempty"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"reset_at,omitempty"`
}

// EvaluationResult is produced fresh by every evaluation and never stored as
// mutable state.
type EvaluationResult struct {
	Status                Status           `json:"status"`
	RiskScore             int              `json:"risk_score"`
	RiskLevel             RiskLevel        `json:"risk_level"`
	Allowed               bool             `json:"allowed"`
	Violations            []Violation      `json:"violations"`
	Warnings              []string         `json:"warnings"`
	AppliedRules          []string         `json:"applied_rules"`
	RequiresHumanApproval bool             `json:"requires_human_approval"`
	RateLimitInfo         *RateLimitInfo   `json:"rate_limit_info,omitempty"`
	Notifications         []Notification   `json:"notifications,omitempty"`
	Transformations       []Transformation `json:"transformations,omitempty"`

	// LogRules lists matched rules carrying a log action; the caller owns the
	// audit side effect.
	LogRules []string `json:"log_rules,omitempty"`

	// RateLimitRequested is set when a matched rule carries a rate_limit action.
	RateLimitRequested bool `json:"rate_limit_requested,omitempty"`

	Duration time.Duration `json:"duration"`
}
