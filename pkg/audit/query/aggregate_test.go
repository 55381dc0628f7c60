package query

import (
	"context"
	"testing"
	"time"

	"mercator-hq/agentgov/pkg/audit"
	"mercator-hq/agentgov/pkg/audit/storage"
)

func TestTruncate(t *testing.T) {
	berlin := time.FixedZone("CEST", 2*60*60)
	// Sunday 2026-05-10 23:30 local.
	ts := time.Date(2026, 5, 10, 23, 30, 45, 123, berlin)

	tests := []struct {
		interval Interval
		want     time.Time
	}{
		{IntervalMinute, time.Date(2026, 5, 10, 23, 30, 0, 0, berlin)},
		{IntervalHour, time.Date(2026, 5, 10, 23, 0, 0, 0, berlin)},
		{IntervalDay, time.Date(2026, 5, 10, 0, 0, 0, 0, berlin)},
		{IntervalWeek, time.Date(2026, 5, 4, 0, 0, 0, 0, berlin)},
		{IntervalMonth, time.Date(2026, 5, 1, 0, 0, 0, 0, berlin)},
	}

	for _, tt := range tests {
		t.Run(string(tt.interval), func(t *testing.T) {
			got, err := Truncate(ts, tt.interval)
			if err != nil {
				t.Fatalf("Truncate failed: %v", err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
			if got.Location() != berlin {
				t.Errorf("Expected location to be preserved, got %v", got.Location())
			}
		})
	}

	if _, err := Truncate(ts, "fortnight"); err == nil {
		t.Error("Expected error for unknown interval")
	}
}

func TestTruncate_WeekStartsMonday(t *testing.T) {
	monday := time.Date(2026, 5, 4, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 7; i++ {
		day := monday.AddDate(0, 0, i).Add(13 * time.Hour)
		got, _ := Truncate(day, IntervalWeek)
		if !got.Equal(monday) {
			t.Errorf("%s: expected %v, got %v", day.Weekday(), monday, got)
		}
	}
}

func TestAggregate(t *testing.T) {
	events := []*audit.Event{
		{EventID: "e1", EventType: audit.EventActionEvaluated, Timestamp: base, Outcome: audit.OutcomeSuccess, AgentID: "a1"},
		{EventID: "e2", EventType: audit.EventActionEvaluated, Timestamp: base.Add(10 * time.Minute), Outcome: audit.OutcomeFailure, AgentID: "a1"},
		{EventID: "e3", EventType: audit.EventApprovalRequested, Timestamp: base.Add(time.Hour), Outcome: audit.OutcomePending, AgentID: "a2"},
		{EventID: "e4", EventType: audit.EventActionEvaluated, Timestamp: base.Add(26 * time.Hour), Outcome: audit.OutcomeFailure, AgentID: "a2"},
	}

	for name, src := range sources(t, events) {
		t.Run(name, func(t *testing.T) {
			agg, err := New(src).Limit(1).Aggregate(context.Background(), AggregateOptions{
				GroupBy:  GroupByOutcome,
				Interval: IntervalDay,
			})
			if err != nil {
				t.Fatalf("Aggregate failed: %v", err)
			}

			if agg.Total != 4 {
				t.Errorf("Expected total 4 ignoring limit, got %d", agg.Total)
			}
			wantGroups := []GroupCount{{"failure", 2}, {"pending", 1}, {"success", 1}}
			if len(agg.Groups) != len(wantGroups) {
				t.Fatalf("Expected %d groups, got %v", len(wantGroups), agg.Groups)
			}
			for i, g := range wantGroups {
				if agg.Groups[i] != g {
					t.Errorf("Group %d: expected %+v, got %+v", i, g, agg.Groups[i])
				}
			}

			if len(agg.Series) != 2 {
				t.Fatalf("Expected 2 daily buckets, got %d", len(agg.Series))
			}
			day1 := time.Date(2026, 5, 4, 0, 0, 0, 0, time.UTC)
			if !agg.Series[0].Start.Equal(day1) || agg.Series[0].Count != 3 {
				t.Errorf("Expected day 1 with 3 events, got %+v", agg.Series[0])
			}
			if !agg.Series[1].Start.Equal(day1.AddDate(0, 0, 1)) || agg.Series[1].Count != 1 {
				t.Errorf("Expected day 2 with 1 event, got %+v", agg.Series[1])
			}
			if len(agg.Series[1].Groups) != 1 || agg.Series[1].Groups[0].Key != "failure" {
				t.Errorf("Expected day 2 grouped as failure, got %+v", agg.Series[1].Groups)
			}
		})
	}
}

func TestAggregate_FilteredGroupByAgent(t *testing.T) {
	events := sequence(3)
	events[0].AgentID = "a1"
	events[1].AgentID = "a1"
	events[2].AgentID = "a2"

	agg, err := New(storage.NewMemoryStore()).Aggregate(context.Background(), AggregateOptions{GroupBy: GroupByAgent})
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}
	if agg.Total != 0 || len(agg.Series) != 0 {
		t.Errorf("Expected empty aggregation, got %+v", agg)
	}

	for name, src := range sources(t, events) {
		agg, err := New(src).Agent("a1").Aggregate(context.Background(), AggregateOptions{GroupBy: GroupByAgent})
		if err != nil {
			t.Fatalf("%s: Aggregate failed: %v", name, err)
		}
		if len(agg.Groups) != 1 || agg.Groups[0] != (GroupCount{"a1", 2}) {
			t.Errorf("%s: expected a1=2, got %+v", name, agg.Groups)
		}
		if agg.Series != nil {
			t.Errorf("%s: expected no series without interval", name)
		}
	}
}

func TestAggregate_InvalidOptions(t *testing.T) {
	src := storage.NewMemoryStore()
	if _, err := New(src).Aggregate(context.Background(), AggregateOptions{GroupBy: "color"}); err == nil {
		t.Error("Expected error for unknown group by")
	}
	if _, err := New(src).Aggregate(context.Background(), AggregateOptions{Interval: "decade"}); err == nil {
		t.Error("Expected error for unknown interval")
	}
}
