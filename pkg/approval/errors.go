package approval

import "errors"

var (
	// ErrNotFound is returned for an unknown request id.
	ErrNotFound = errors.New("approval request not found")

	// ErrInvalidRequest is returned when request parameters are rejected.
	ErrInvalidRequest = errors.New("invalid approval request")

	// ErrMissingActor is returned when a decision names no actor.
	ErrMissingActor = errors.New("approval decision requires an actor")
)
