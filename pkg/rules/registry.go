package rules

import (
	"fmt"
	"log/slog"
	"sync"
)

// Registry holds the active rule set in insertion order. Every rule is
// validated and compiled before it becomes visible to evaluation.
type Registry struct {
	mu    sync.RWMutex
	rules []*Rule

	evaluators EvaluatorLookup
	logger     *slog.Logger
}

// NewRegistry creates an empty registry. evaluators may be nil, in which case
// custom evaluator names are not checked.
func NewRegistry(evaluators EvaluatorLookup, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		evaluators: evaluators,
		logger:     logger.With("component", "rules.registry"),
	}
}

func (r *Registry) prepare(rule *Rule) (*Rule, error) {
	if rule == nil {
		return nil, &ValidationError{Errors: []string{"rule is nil"}}
	}
	cp := rule.Clone()
	if err := cp.Validate(r.evaluators); err != nil {
		return nil, err
	}
	if err := cp.Compile(); err != nil {
		return nil, err
	}
	return cp, nil
}

// Add validates and registers a rule. Duplicate ids are rejected.
func (r *Registry) Add(rule *Rule) error {
	cp, err := r.prepare(rule)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.indexLocked(cp.ID) >= 0 {
		return fmt.Errorf("%w: %s", ErrDuplicateRule, cp.ID)
	}
	r.rules = append(r.rules, cp)

	r.logger.Info("rule added", "rule_id", cp.ID, "priority", cp.Priority)
	return nil
}

// Upsert registers a rule, replacing an existing rule with the same id in place.
func (r *Registry) Upsert(rule *Rule) error {
	cp, err := r.prepare(rule)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if i := r.indexLocked(cp.ID); i >= 0 {
		r.rules[i] = cp
		r.logger.Info("rule updated", "rule_id", cp.ID)
		return nil
	}
	r.rules = append(r.rules, cp)
	r.logger.Info("rule added", "rule_id", cp.ID, "priority", cp.Priority)
	return nil
}

// Remove unregisters a rule by id.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexLocked(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrRuleNotFound, id)
	}
	r.rules = append(r.rules[:i:i], r.rules[i+1:]...)

	r.logger.Info("rule removed", "rule_id", id)
	return nil
}

// Get returns a copy of the rule with the given id.
func (r *Registry) Get(id string) (*Rule, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	i := r.indexLocked(id)
	if i < 0 {
		return nil, false
	}
	return r.rules[i].Clone(), true
}

// List returns copies of all rules in insertion order.
func (r *Registry) List() []*Rule {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Rule, len(r.rules))
	for i, rule := range r.rules {
		out[i] = rule.Clone()
	}
	return out
}

// Snapshot returns the registered rules without copying. Callers must treat
// the rules as read-only.
func (r *Registry) Snapshot() []*Rule {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Rule, len(r.rules))
	copy(out, r.rules)
	return out
}

// Enabled returns the enabled rules in evaluation order.
func (r *Registry) Enabled() []*Rule {
	all := r.Snapshot()
	enabled := all[:0]
	for _, rule := range all {
		if rule.Enabled {
			enabled = append(enabled, rule)
		}
	}
	return SortByPriority(enabled)
}

// Len returns the number of registered rules.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rules)
}

// Replace atomically swaps the whole rule set. If any rule fails validation
// or ids collide, the current set is kept and the error returned.
func (r *Registry) Replace(rules []*Rule) error {
	next := make([]*Rule, 0, len(rules))
	seen := make(map[string]bool, len(rules))
	for _, rule := range rules {
		cp, err := r.prepare(rule)
		if err != nil {
			return err
		}
		if seen[cp.ID] {
			return fmt.Errorf("%w: %s", ErrDuplicateRule, cp.ID)
		}
		seen[cp.ID] = true
		next = append(next, cp)
	}

	r.mu.Lock()
	r.rules = next
	r.mu.Unlock()

	r.logger.Info("rule set replaced", "rules", len(next))
	return nil
}

// ReplaceLayer atomically removes the rules whose ids are in previous and
// upserts rules, leaving every other registered rule in place. A registered
// rule sharing an id with rules is replaced in position. If any rule fails
// validation or ids collide within rules, the current set is kept.
func (r *Registry) ReplaceLayer(previous []string, rules []*Rule) error {
	incoming := make(map[string]*Rule, len(rules))
	order := make([]*Rule, 0, len(rules))
	for _, rule := range rules {
		cp, err := r.prepare(rule)
		if err != nil {
			return err
		}
		if _, ok := incoming[cp.ID]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateRule, cp.ID)
		}
		incoming[cp.ID] = cp
		order = append(order, cp)
	}
	drop := make(map[string]bool, len(previous))
	for _, id := range previous {
		drop[id] = true
	}

	r.mu.Lock()
	placed := make(map[string]bool, len(incoming))
	next := make([]*Rule, 0, len(r.rules)+len(order))
	for _, rule := range r.rules {
		if cp, ok := incoming[rule.ID]; ok {
			next = append(next, cp)
			placed[rule.ID] = true
			continue
		}
		if !drop[rule.ID] {
			next = append(next, rule)
		}
	}
	for _, cp := range order {
		if !placed[cp.ID] {
			next = append(next, cp)
		}
	}
	r.rules = next
	r.mu.Unlock()

	r.logger.Info("rule layer replaced", "removed", len(previous), "upserted", len(order), "rules", len(next))
	return nil
}

// UpsertAll upserts every rule or, if any fails validation, none of them.
func (r *Registry) UpsertAll(rules []*Rule) error {
	return r.ReplaceLayer(nil, rules)
}

func (r *Registry) indexLocked(id string) int {
	for i, rule := range r.rules {
		if rule.ID == id {
			return i
		}
	}
	return -1
}
