// Agentgov is a governance runtime for AI-agent actions.
//
// It evaluates proposed agent actions against priority-ordered rules and
// rate limits, records every decision in an audit trail, and tracks human
// approvals for actions that need them.
//
// Usage:
//
//	# Start the governance service with its metrics and health endpoints
//	agentgov run --config agentgov.yaml
//
//	# Evaluate a single action
//	agentgov evaluate --name delete_records --category data_modification
//
//	# Check rule files for conflicts
//	agentgov rules lint rules.yaml --preset baseline
//
//	# Query the audit trail
//	agentgov audit query --type action_evaluated --since 24h
//
//	# Reconcile the audit cache with the store
//	agentgov audit sync --fix
package main

func main() {
	Execute()
}
