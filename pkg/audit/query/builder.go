package query

import (
	"context"
	"slices"
	"time"

	"mercator-hq/agentgov/pkg/audit"
)

// Source executes filters. Both audit.Store implementations and the recorder
// satisfy it.
type Source interface {
	Query(ctx context.Context, filter *audit.Filter) ([]*audit.Event, error)
	Count(ctx context.Context, filter *audit.Filter) (int64, error)
}

// Builder accumulates filters and runs them against a Source. Each setter
// returns the builder so calls can be chained. A Builder is not safe for
// concurrent use.
type Builder struct {
	src    Source
	limits Limits
	filter audit.Filter
	cursor *audit.Cursor
	err    error
}

// Option configures a Builder.
type Option func(*Builder)

// WithLimits sets the default and maximum result sizes.
func WithLimits(l Limits) Option {
	return func(b *Builder) {
		if l.Default > 0 {
			b.limits.Default = l.Default
		}
		if l.Max > 0 {
			b.limits.Max = l.Max
		}
	}
}

// New creates a builder over src.
func New(src Source, opts ...Option) *Builder {
	b := &Builder{
		src:    src,
		limits: Limits{Default: DefaultLimit, Max: MaxLimit},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// EventType matches any of the given event types.
func (b *Builder) EventType(types ...string) *Builder {
	b.filter.EventTypes = append(b.filter.EventTypes, types...)
	return b
}

// Agent matches any of the given agent ids.
func (b *Builder) Agent(ids ...string) *Builder {
	b.filter.AgentIDs = append(b.filter.AgentIDs, ids...)
	return b
}

// Session matches any of the given session ids.
func (b *Builder) Session(ids ...string) *Builder {
	b.filter.SessionIDs = append(b.filter.SessionIDs, ids...)
	return b
}

// User matches any of the given user ids.
func (b *Builder) User(ids ...string) *Builder {
	b.filter.UserIDs = append(b.filter.UserIDs, ids...)
	return b
}

// Outcome matches any of the given outcomes.
func (b *Builder) Outcome(outcomes ...audit.Outcome) *Builder {
	b.filter.Outcomes = append(b.filter.Outcomes, outcomes...)
	return b
}

// RiskLevel matches any of the given risk levels.
func (b *Builder) RiskLevel(levels ...string) *Builder {
	b.filter.RiskLevels = append(b.filter.RiskLevels, levels...)
	return b
}

// Between restricts results to [start, end].
func (b *Builder) Between(start, end time.Time) *Builder {
	return b.Since(start).Until(end)
}

// Since restricts results to events at or after t.
func (b *Builder) Since(t time.Time) *Builder {
	b.filter.StartTime = &t
	return b
}

// Until restricts results to events at or before t.
func (b *Builder) Until(t time.Time) *Builder {
	b.filter.EndTime = &t
	return b
}

// Correlation matches a correlation id.
func (b *Builder) Correlation(id string) *Builder {
	b.filter.CorrelationID = id
	return b
}

// ActionContains matches actions containing s. Matching is case sensitive.
func (b *Builder) ActionContains(s string) *Builder {
	b.filter.ActionContains = s
	return b
}

// MetadataContains matches events whose JSON metadata contains s.
func (b *Builder) MetadataContains(s string) *Builder {
	b.filter.MetadataContains = s
	return b
}

// DetailsContains matches events whose JSON details contain s.
func (b *Builder) DetailsContains(s string) *Builder {
	b.filter.DetailsContains = s
	return b
}

// Limit sets the page size.
func (b *Builder) Limit(n int) *Builder {
	b.filter.Limit = n
	return b
}

// Offset skips n events. It is ignored when a cursor is set.
func (b *Builder) Offset(n int) *Builder {
	b.filter.Offset = n
	return b
}

// After resumes from an encoded cursor returned by ExecutePaginated. An
// invalid cursor is reported by the terminal call.
func (b *Builder) After(cursor string) *Builder {
	if cursor == "" {
		b.cursor = nil
		return b
	}
	c, err := audit.DecodeCursor(cursor)
	if err != nil {
		b.err = err
		return b
	}
	b.cursor = &c
	return b
}

// OrderAsc sorts oldest first.
func (b *Builder) OrderAsc() *Builder {
	b.filter.Order = audit.OrderAsc
	return b
}

// OrderDesc sorts newest first. This is the default.
func (b *Builder) OrderDesc() *Builder {
	b.filter.Order = audit.OrderDesc
	return b
}

// Filter returns a copy of the accumulated filter.
func (b *Builder) Filter() audit.Filter {
	f := b.filter
	f.EventTypes = slices.Clone(f.EventTypes)
	f.AgentIDs = slices.Clone(f.AgentIDs)
	f.SessionIDs = slices.Clone(f.SessionIDs)
	f.UserIDs = slices.Clone(f.UserIDs)
	f.Outcomes = slices.Clone(f.Outcomes)
	f.RiskLevels = slices.Clone(f.RiskLevels)
	return f
}

// prepared returns a validated copy of the filter with defaults applied.
func (b *Builder) prepared() (*audit.Filter, error) {
	f := b.Filter()
	if b.err != nil {
		return nil, audit.NewQueryError(&f, b.err)
	}
	if err := Validate(&f, b.limits.Max); err != nil {
		return nil, err
	}
	ApplyDefaults(&f, b.limits.Default)
	return &f, nil
}

// Execute returns the matching events.
func (b *Builder) Execute(ctx context.Context) ([]*audit.Event, error) {
	if b.cursor != nil {
		page, err := b.ExecutePaginated(ctx)
		if err != nil {
			return nil, err
		}
		return page.Events, nil
	}

	f, err := b.prepared()
	if err != nil {
		return nil, err
	}
	events, err := b.src.Query(ctx, f)
	if err != nil {
		return nil, audit.NewQueryError(f, err)
	}
	return events, nil
}

// First returns the first matching event, or nil when nothing matches.
func (b *Builder) First(ctx context.Context) (*audit.Event, error) {
	limit := b.filter.Limit
	b.filter.Limit = 1
	defer func() { b.filter.Limit = limit }()

	events, err := b.Execute(ctx)
	if err != nil || len(events) == 0 {
		return nil, err
	}
	return events[0], nil
}

// Count returns the number of matching events, ignoring pagination.
func (b *Builder) Count(ctx context.Context) (int64, error) {
	f, err := b.prepared()
	if err != nil {
		return 0, err
	}
	n, err := b.src.Count(ctx, f)
	if err != nil {
		return 0, audit.NewQueryError(f, err)
	}
	return n, nil
}
