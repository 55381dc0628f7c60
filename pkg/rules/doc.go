// Package rules implements the rule matching and risk engine that decides
// whether an agent action is permitted.
//
// A Rule carries conditions over the merged evaluation subject
//
//	{"action": {...AgentAction fields...}, "context": {...BusinessContext fields...}}
//
// and the actions applied when those conditions hold. The Engine visits
// enabled rules by descending priority, folds the actions of every matched
// rule into an EvaluationResult and aggregates their risk weights.
//
// # Evaluation Flow
//
//	AgentAction + BusinessContext
//	       ↓
//	Subject (dot-path addressable)
//	       ↓
//	For each enabled rule, highest priority first:
//	  Conditions (all | any) → match?
//	    Yes → apply actions (deny, require_approval, warn, log, ...)
//	       ↓
//	EvaluationResult (status, risk score, violations, warnings)
//
// # Basic Usage
//
//	engine := rules.NewEngine(logger)
//	registry := rules.NewRegistry(engine, logger)
//
//	preset, _ := rules.LoadPreset("baseline")
//	for _, r := range preset {
//	    _ = registry.Add(r)
//	}
//
//	result := engine.Evaluate(action, bctx, registry.Enabled())
//
// Rules are validated and their regex patterns compiled when they enter a
// Registry, so evaluation never fails on a malformed rule. Missing fields
// never raise: they simply fail positive operators and satisfy negative ones.
package rules
