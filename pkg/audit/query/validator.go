package query

import (
	"fmt"

	"mercator-hq/agentgov/pkg/audit"
	"mercator-hq/agentgov/pkg/config"
)

const (
	// DefaultLimit is the default number of events to return if not specified.
	DefaultLimit = config.DefaultQueryDefaultLimit

	// MaxLimit is the maximum number of events that can be returned in a single query.
	MaxLimit = config.DefaultQueryMaxLimit
)

// ValidOrders contains the valid sort orders.
var ValidOrders = map[audit.Order]bool{
	audit.OrderAsc:  true,
	audit.OrderDesc: true,
}

// Limits bounds result sizes.
type Limits struct {
	Default int
	Max     int
}

// LimitsFrom converts the query section of the configuration file.
func LimitsFrom(cfg config.QueryConfig) Limits {
	l := Limits{Default: cfg.DefaultLimit, Max: cfg.MaxLimit}
	if l.Default <= 0 {
		l.Default = DefaultLimit
	}
	if l.Max <= 0 {
		l.Max = MaxLimit
	}
	return l
}

// Validate validates a filter and returns an error if any parameters are invalid.
func Validate(f *audit.Filter, maxLimit int) error {
	if maxLimit <= 0 {
		maxLimit = MaxLimit
	}

	if f.Limit < 0 {
		return audit.NewQueryError(f, fmt.Errorf("limit must be >= 0, got %d", f.Limit))
	}
	if f.Limit > maxLimit {
		return audit.NewQueryError(f, fmt.Errorf("limit must be <= %d, got %d", maxLimit, f.Limit))
	}

	if f.Offset < 0 {
		return audit.NewQueryError(f, fmt.Errorf("offset must be >= 0, got %d", f.Offset))
	}

	if f.Order != "" && !ValidOrders[f.Order] {
		return audit.NewQueryError(f, fmt.Errorf("invalid sort order: %s (must be 'asc' or 'desc')", f.Order))
	}

	if f.StartTime != nil && f.EndTime != nil && f.StartTime.After(*f.EndTime) {
		return audit.NewQueryError(f, fmt.Errorf("start_time must be before end_time"))
	}

	for _, o := range f.Outcomes {
		if !o.Valid() {
			return audit.NewQueryError(f, fmt.Errorf("invalid outcome: %s (must be 'success', 'failure', or 'pending')", o))
		}
	}

	return nil
}

// ApplyDefaults applies default values to a filter.
func ApplyDefaults(f *audit.Filter, defaultLimit int) {
	if f.Limit == 0 {
		if defaultLimit <= 0 {
			defaultLimit = DefaultLimit
		}
		f.Limit = defaultLimit
	}
	if f.Order == "" {
		f.Order = audit.OrderDesc
	}
}
