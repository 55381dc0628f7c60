// Package governance composes the rule engine, rate limiter, audit recorder,
// approval workflow and webhook notifier behind one Service.
//
// # Lifecycle
//
// New validates the configuration and builds the engine and limiter.
// Initialize opens the audit store, loads presets and the rules file, starts
// the background timers and the rules watcher. Concurrent Initialize calls
// share a single bootstrap that outlives any one caller's cancellation; a
// failed bootstrap can be retried. Close stops
// everything, drains the retry queue once more and closes the store.
//
// Operations that audit or touch approvals return ErrNotInitialized before
// Initialize succeeds or after Close.
//
// # Evaluation
//
//	result, err := svc.EvaluateAction(ctx, rules.AgentAction{
//	    Name:     "delete_records",
//	    Category: "data_modification",
//	    AgentID:  "agent-7",
//	}, rules.BusinessContext{})
//
// EvaluateAction evaluates the enabled rules, then checks the rate limits and
// merges the two: a deny always wins, an exceeded limit turns any other
// status into rate_limited. Requests that were not denied are checked and
// counted against the limits in one step, so concurrent callers never
// overshoot a limit. Each call is audited as action_evaluated.
//
// Results with status pending_approval can be turned into an approval
// request with ApprovalParams and RequestApproval.
package governance
