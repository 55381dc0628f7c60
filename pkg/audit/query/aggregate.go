package query

import (
	"context"
	"fmt"
	"sort"
	"time"

	"mercator-hq/agentgov/pkg/audit"
)

// GroupBy is the event field aggregated on.
type GroupBy string

const (
	GroupByEventType GroupBy = "event_type"
	GroupByOutcome   GroupBy = "outcome"
	GroupByRiskLevel GroupBy = "risk_level"
	GroupByAgent     GroupBy = "agent_id"
	GroupByUser      GroupBy = "user_id"
)

// Interval is the width of a time series bucket.
type Interval string

const (
	IntervalMinute Interval = "minute"
	IntervalHour   Interval = "hour"
	IntervalDay    Interval = "day"
	IntervalWeek   Interval = "week"
	IntervalMonth  Interval = "month"
)

// AggregateOptions selects the grouping and optional time series.
type AggregateOptions struct {
	GroupBy  GroupBy
	Interval Interval
}

// GroupCount is the number of events sharing one group value.
type GroupCount struct {
	Key   string `json:"key"`
	Count int64  `json:"count"`
}

// Bucket is one period of a time series.
type Bucket struct {
	Start  time.Time    `json:"start"`
	Count  int64        `json:"count"`
	Groups []GroupCount `json:"groups,omitempty"`
}

// Aggregation is the result of Aggregate.
type Aggregation struct {
	Total  int64        `json:"total"`
	Groups []GroupCount `json:"groups,omitempty"`
	Series []Bucket     `json:"series,omitempty"`
}

// Aggregate counts every matching event, ignoring pagination. Groups are
// sorted by count descending then key. Series buckets are sorted by start and
// each start is truncated to its period in the event timestamp's location.
// Weeks start on Monday.
func (b *Builder) Aggregate(ctx context.Context, opts AggregateOptions) (*Aggregation, error) {
	f := b.Filter()
	if b.err != nil {
		return nil, audit.NewQueryError(&f, b.err)
	}
	f.Limit, f.Offset, f.After = 0, 0, nil
	f.Order = audit.OrderAsc
	if err := Validate(&f, b.limits.Max); err != nil {
		return nil, err
	}

	key, err := groupKey(opts.GroupBy)
	if err != nil {
		return nil, audit.NewQueryError(&f, err)
	}
	if opts.Interval != "" {
		if _, err := Truncate(time.Time{}, opts.Interval); err != nil {
			return nil, audit.NewQueryError(&f, err)
		}
	}

	events, err := b.src.Query(ctx, &f)
	if err != nil {
		return nil, audit.NewQueryError(&f, err)
	}

	agg := &Aggregation{Total: int64(len(events))}
	groups := make(map[string]int64)
	type series struct {
		count  int64
		groups map[string]int64
	}
	buckets := make(map[time.Time]*series)
	var starts []time.Time

	for _, e := range events {
		if key != nil {
			groups[key(e)]++
		}
		if opts.Interval == "" {
			continue
		}
		start, _ := Truncate(e.Timestamp, opts.Interval)
		s, ok := buckets[start]
		if !ok {
			s = &series{groups: make(map[string]int64)}
			buckets[start] = s
			starts = append(starts, start)
		}
		s.count++
		if key != nil {
			s.groups[key(e)]++
		}
	}

	if key != nil {
		agg.Groups = sortGroups(groups)
	}
	sort.Slice(starts, func(i, j int) bool { return starts[i].Before(starts[j]) })
	for _, start := range starts {
		s := buckets[start]
		bucket := Bucket{Start: start, Count: s.count}
		if key != nil {
			bucket.Groups = sortGroups(s.groups)
		}
		agg.Series = append(agg.Series, bucket)
	}
	return agg, nil
}

func groupKey(g GroupBy) (func(*audit.Event) string, error) {
	switch g {
	case "":
		return nil, nil
	case GroupByEventType:
		return func(e *audit.Event) string { return e.EventType }, nil
	case GroupByOutcome:
		return func(e *audit.Event) string { return string(e.Outcome) }, nil
	case GroupByRiskLevel:
		return func(e *audit.Event) string { return e.RiskLevel }, nil
	case GroupByAgent:
		return func(e *audit.Event) string { return e.AgentID }, nil
	case GroupByUser:
		return func(e *audit.Event) string { return e.UserID }, nil
	}
	return nil, fmt.Errorf("invalid group by: %s", g)
}

func sortGroups(m map[string]int64) []GroupCount {
	out := make([]GroupCount, 0, len(m))
	for k, n := range m {
		out = append(out, GroupCount{Key: k, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Key < out[j].Key
	})
	return out
}

// Truncate returns the start of the period containing t, computed in t's
// location.
func Truncate(t time.Time, interval Interval) (time.Time, error) {
	y, mo, d := t.Date()
	loc := t.Location()
	switch interval {
	case IntervalMinute:
		return time.Date(y, mo, d, t.Hour(), t.Minute(), 0, 0, loc), nil
	case IntervalHour:
		return time.Date(y, mo, d, t.Hour(), 0, 0, 0, loc), nil
	case IntervalDay:
		return time.Date(y, mo, d, 0, 0, 0, 0, loc), nil
	case IntervalWeek:
		sinceMonday := (int(t.Weekday()) + 6) % 7
		return time.Date(y, mo, d-sinceMonday, 0, 0, 0, 0, loc), nil
	case IntervalMonth:
		return time.Date(y, mo, 1, 0, 0, 0, 0, loc), nil
	}
	return time.Time{}, fmt.Errorf("invalid interval: %s", interval)
}
