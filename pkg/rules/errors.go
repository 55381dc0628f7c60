package rules

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrDuplicateRule is returned when a rule id is already registered.
	ErrDuplicateRule = errors.New("rule already registered")

	// ErrRuleNotFound is returned when a rule id is unknown.
	ErrRuleNotFound = errors.New("rule not found")

	// ErrUnknownPreset is returned for a preset name with no embedded file.
	ErrUnknownPreset = errors.New("unknown rule preset")

	// ErrInvalidInput is returned when an action cannot be evaluated.
	ErrInvalidInput = errors.New("invalid evaluation input")
)

// ValidationError reports why a rule was rejected at registration. A rule that
// fails validation never becomes active.
type ValidationError struct {
	RuleID string
	Errors []string
}

// Error returns the error message.
func (e *ValidationError) Error() string {
	id := e.RuleID
	if id == "" {
		id = "<unnamed>"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("rule %s: validation error: %s", id, e.Errors[0])
	}
	return fmt.Sprintf("rule %s: %d validation errors: %s", id, len(e.Errors), strings.Join(e.Errors, "; "))
}

// LoadError indicates a rule file could not be read or parsed.
type LoadError struct {
	Path  string
	Cause error
}

// Error returns the error message.
func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load rules from %q: %v", e.Path, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *LoadError) Unwrap() error {
	return e.Cause
}
