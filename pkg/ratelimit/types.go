package ratelimit

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"mercator-hq/agentgov/pkg/config"
)

// Scope selects which identifier partitions a limit's buckets.
type Scope string

const (
	ScopeGlobal     Scope = "global"
	ScopeAgent      Scope = "agent"
	ScopeSession    Scope = "session"
	ScopeUser       Scope = "user"
	ScopeActionType Scope = "action_type"
)

// Algorithm is the admission algorithm of a limit.
type Algorithm string

const (
	// AlgorithmFixed counts requests in windows that reset once the window
	// length has elapsed since the first request.
	AlgorithmFixed Algorithm = "fixed"

	// AlgorithmSliding counts request timestamps within the trailing window.
	AlgorithmSliding Algorithm = "sliding"
)

// UnknownIdentifier is used when the identifier a scope needs is absent, so
// anonymous callers share one bucket instead of bypassing the limit.
const UnknownIdentifier = "unknown"

// slidingGrace is kept beyond the window before sliding timestamps are pruned.
const slidingGrace = time.Second

var (
	// ErrInvalidConfig is returned for a malformed limit configuration.
	ErrInvalidConfig = errors.New("invalid rate limit config")

	// ErrDuplicateConfig is returned when a limit id is already registered.
	ErrDuplicateConfig = errors.New("duplicate rate limit config")
)

// Config describes one rate limit.
type Config struct {
	ID          string
	Window      time.Duration
	MaxRequests int
	Scope       Scope

	// BurstLimit defaults to MaxRequests when zero.
	BurstLimit int

	// ActionCategories restricts the limit to the listed action types.
	// Empty means the limit applies to every action.
	ActionCategories []string

	Enabled   bool
	Algorithm Algorithm
}

// FromConfig converts the rate_limits section of the application config.
func FromConfig(cfgs []config.RateLimitConfig) []Config {
	out := make([]Config, 0, len(cfgs))
	for _, c := range cfgs {
		out = append(out, Config{
			ID:               c.ID,
			Window:           c.Window,
			MaxRequests:      c.MaxRequests,
			Scope:            Scope(c.Scope),
			BurstLimit:       c.BurstLimit,
			ActionCategories: slices.Clone(c.ActionCategories),
			Enabled:          !c.Disabled,
			Algorithm:        Algorithm(c.Algorithm),
		})
	}
	return out
}

// Validate checks the configuration and fills defaults.
func (c *Config) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidConfig)
	}
	if c.Window <= 0 {
		return fmt.Errorf("%w: %s: window must be positive", ErrInvalidConfig, c.ID)
	}
	if c.MaxRequests <= 0 {
		return fmt.Errorf("%w: %s: max_requests must be positive", ErrInvalidConfig, c.ID)
	}
	if c.BurstLimit < 0 {
		return fmt.Errorf("%w: %s: burst_limit cannot be negative", ErrInvalidConfig, c.ID)
	}

	if c.Scope == "" {
		c.Scope = ScopeGlobal
	}
	switch c.Scope {
	case ScopeGlobal, ScopeAgent, ScopeSession, ScopeUser, ScopeActionType:
	default:
		return fmt.Errorf("%w: %s: unknown scope %q", ErrInvalidConfig, c.ID, c.Scope)
	}

	if c.Algorithm == "" {
		c.Algorithm = AlgorithmFixed
	}
	switch c.Algorithm {
	case AlgorithmFixed, AlgorithmSliding:
	default:
		return fmt.Errorf("%w: %s: unknown algorithm %q", ErrInvalidConfig, c.ID, c.Algorithm)
	}

	if c.BurstLimit == 0 {
		c.BurstLimit = c.MaxRequests
	}
	return nil
}

// appliesTo reports whether the limit covers the action type.
func (c *Config) appliesTo(actionType string) bool {
	if !c.Enabled {
		return false
	}
	return len(c.ActionCategories) == 0 || slices.Contains(c.ActionCategories, actionType)
}

// Identifiers are the request attributes a limit can be scoped by.
type Identifiers struct {
	AgentID    string
	SessionID  string
	UserID     string
	ActionType string
}

// identifier returns the bucket identifier for scope.
func (ids Identifiers) identifier(scope Scope) string {
	var id string
	switch scope {
	case ScopeGlobal:
		return string(ScopeGlobal)
	case ScopeAgent:
		id = ids.AgentID
	case ScopeSession:
		id = ids.SessionID
	case ScopeUser:
		id = ids.UserID
	case ScopeActionType:
		id = ids.ActionType
	}
	if id == "" {
		return UnknownIdentifier
	}
	return id
}

// Result is the outcome of checking every applicable limit.
type Result struct {
	// Allowed is false when any applicable limit denies.
	Allowed bool

	// LimitID names the first denying limit, or is empty when allowed.
	LimitID string

	// Remaining is the smallest remaining allowance across applicable limits.
	Remaining int

	// ResetAt is when the denying limit (or the tightest limit) frees capacity.
	ResetAt time.Time

	// Applied is the number of limits that covered the request.
	Applied int
}

// BucketStatus is a snapshot of one bucket.
type BucketStatus struct {
	Key         string
	LimitID     string
	Algorithm   Algorithm
	Count       int
	BurstCount  int
	WindowStart time.Time
}
