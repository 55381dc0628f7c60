// Package approval implements the human approval workflow for agent actions
// that a rule marked as requiring review.
//
// A request starts pending and makes exactly one terminal transition:
// approved, denied, cancelled or expired. Expiry is evaluated lazily whenever
// a request is read or decided, so no background sweeper is required;
// ExpireDue sweeps explicitly.
//
//	wf := approval.New(nil, approval.WithEventLogger(rec))
//	req, _ := wf.Request(ctx, approval.Params{ActionID: "act-1", RiskScore: 75})
//	req, _ = wf.Approve(ctx, req.ID, "alice", "looks fine")
//
// Requests needing several approvers stay pending until that many distinct
// actors approve. One denial resolves the request.
package approval
