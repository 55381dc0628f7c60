package governance

import "errors"

var (
	// ErrNotInitialized is returned by operations called before Initialize
	// or after Close.
	ErrNotInitialized = errors.New("governance service not initialized")

	// ErrRuleConflicts is returned by Initialize when strict rule validation
	// finds errors in the configured rule set.
	ErrRuleConflicts = errors.New("rule set has validation errors")
)
