package query

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"mercator-hq/agentgov/pkg/audit"
	"mercator-hq/agentgov/pkg/audit/recorder"
	"mercator-hq/agentgov/pkg/audit/storage"
	"mercator-hq/agentgov/pkg/clock"
	"mercator-hq/agentgov/pkg/payload"
)

var base = time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

// sources returns a populated Source per backend.
func sources(t *testing.T, events []*audit.Event) map[string]Source {
	t.Helper()

	sqlite, err := storage.NewSQLiteStore(&storage.SQLiteConfig{
		Path:   filepath.Join(t.TempDir(), "audit.db"),
		Driver: storage.DriverPureGo,
	}, nil)
	if err != nil {
		t.Fatalf("Failed to create SQLite store: %v", err)
	}
	t.Cleanup(func() { sqlite.Close() })

	out := map[string]Source{
		"memory": storage.NewMemoryStore(),
		"sqlite": sqlite,
	}
	for name, src := range out {
		store := src.(audit.Store)
		for _, e := range events {
			if err := store.Save(context.Background(), e); err != nil {
				t.Fatalf("%s: Save failed: %v", name, err)
			}
		}
	}
	return out
}

func sequence(n int) []*audit.Event {
	events := make([]*audit.Event, n)
	for i := range events {
		events[i] = &audit.Event{
			EventID:   fmt.Sprintf("e%d", i+1),
			EventType: audit.EventActionEvaluated,
			Action:    "action",
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Outcome:   audit.OutcomeSuccess,
		}
	}
	return events
}

func eventIDs(events []*audit.Event) string {
	ids := make([]string, len(events))
	for i, e := range events {
		ids[i] = e.EventID
	}
	return strings.Join(ids, ",")
}

func TestBuilder_RoundTripFirst(t *testing.T) {
	for _, store := range []audit.Store{nil, storage.NewMemoryStore()} {
		name := "memory only"
		if store != nil {
			name = "with store"
		}
		t.Run(name, func(t *testing.T) {
			rec := recorder.New(store, nil, recorder.WithClock(clock.NewManual(base)))
			rec.Log(context.Background(), audit.LogParams{EventType: audit.EventRuleAdded, Action: "add_rule"})
			logged := rec.Log(context.Background(), audit.LogParams{
				EventType: audit.EventRateLimitExceeded,
				Action:    "send_email",
				Outcome:   audit.OutcomeFailure,
				AgentID:   "agent-1",
				Details:   payload.Map{"limit_id": payload.String("per-agent")},
			})

			got, err := New(rec).EventType(logged.EventType).First(context.Background())
			if err != nil {
				t.Fatalf("First failed: %v", err)
			}
			if got == nil || !got.Equal(logged) {
				t.Errorf("Expected %+v, got %+v", logged, got)
			}
		})
	}
}

func TestBuilder_FirstNoMatch(t *testing.T) {
	for name, src := range sources(t, sequence(2)) {
		got, err := New(src).Agent("nobody").First(context.Background())
		if err != nil || got != nil {
			t.Errorf("%s: expected nil, nil; got %v, %v", name, got, err)
		}
	}
}

func TestBuilder_Filters(t *testing.T) {
	events := sequence(4)
	events[0].AgentID, events[0].RiskLevel = "a1", "high"
	events[1].AgentID, events[1].Outcome = "a2", audit.OutcomeFailure
	events[2].AgentID, events[2].Action = "a1", "delete_records"
	events[3].UserID, events[3].Metadata = "u1", payload.Map{"team": payload.String("payments")}

	tests := []struct {
		name  string
		build func(b *Builder) *Builder
		want  string
	}{
		{"agent list", func(b *Builder) *Builder { return b.Agent("a1", "a2") }, "e3,e2,e1"},
		{"agent and outcome", func(b *Builder) *Builder { return b.Agent("a1", "a2").Outcome(audit.OutcomeFailure) }, "e2"},
		{"risk level", func(b *Builder) *Builder { return b.RiskLevel("high") }, "e1"},
		{"user", func(b *Builder) *Builder { return b.User("u1") }, "e4"},
		{"between", func(b *Builder) *Builder { return b.Between(base.Add(time.Minute), base.Add(2*time.Minute)) }, "e3,e2"},
		{"since ascending", func(b *Builder) *Builder { return b.Since(base.Add(2 * time.Minute)).OrderAsc() }, "e3,e4"},
		{"action substring", func(b *Builder) *Builder { return b.ActionContains("delete") }, "e3"},
		{"metadata substring", func(b *Builder) *Builder { return b.MetadataContains("payments") }, "e4"},
		{"limit and offset", func(b *Builder) *Builder { return b.Limit(2).Offset(1) }, "e3,e2"},
	}

	for name, src := range sources(t, events) {
		for _, tt := range tests {
			t.Run(name+"/"+tt.name, func(t *testing.T) {
				got, err := tt.build(New(src)).Execute(context.Background())
				if err != nil {
					t.Fatalf("Execute failed: %v", err)
				}
				if eventIDs(got) != tt.want {
					t.Errorf("Expected %s, got %s", tt.want, eventIDs(got))
				}
			})
		}
	}
}

func TestBuilder_DefaultLimit(t *testing.T) {
	for name, src := range sources(t, sequence(5)) {
		got, err := New(src, WithLimits(Limits{Default: 3})).Execute(context.Background())
		if err != nil {
			t.Fatalf("%s: Execute failed: %v", name, err)
		}
		if len(got) != 3 {
			t.Errorf("%s: expected default limit 3, got %d", name, len(got))
		}
	}
}

func TestBuilder_Count(t *testing.T) {
	for name, src := range sources(t, sequence(5)) {
		n, err := New(src).Since(base.Add(2 * time.Minute)).Limit(1).Count(context.Background())
		if err != nil {
			t.Fatalf("%s: Count failed: %v", name, err)
		}
		if n != 3 {
			t.Errorf("%s: expected 3, got %d", name, n)
		}
	}
}

func TestExecutePaginated_Completeness(t *testing.T) {
	events := sequence(5)

	for name, src := range sources(t, events) {
		for _, asc := range []bool{false, true} {
			t.Run(fmt.Sprintf("%s/asc=%v", name, asc), func(t *testing.T) {
				var collected []*audit.Event
				cursor := ""
				pages := 0
				for {
					b := New(src).Limit(2).After(cursor)
					if asc {
						b.OrderAsc()
					}
					page, err := b.ExecutePaginated(context.Background())
					if err != nil {
						t.Fatalf("ExecutePaginated failed: %v", err)
					}
					pages++
					collected = append(collected, page.Events...)
					if !page.HasMore {
						if page.NextCursor != "" {
							t.Error("Expected no next cursor on the last page")
						}
						break
					}
					cursor = page.NextCursor
					if pages > 5 {
						t.Fatal("Pagination did not terminate")
					}
				}

				want := "e5,e4,e3,e2,e1"
				if asc {
					want = "e1,e2,e3,e4,e5"
				}
				if eventIDs(collected) != want {
					t.Errorf("Expected %s, got %s", want, eventIDs(collected))
				}
				if pages != 3 {
					t.Errorf("Expected 3 pages, got %d", pages)
				}
			})
		}
	}
}

func TestExecutePaginated_Backward(t *testing.T) {
	for name, src := range sources(t, sequence(5)) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			first, err := New(src).Limit(2).ExecutePaginated(ctx)
			if err != nil {
				t.Fatalf("page 1: %v", err)
			}
			if first.PrevCursor != "" {
				t.Error("Expected no prev cursor on the first page")
			}
			second, err := New(src).Limit(2).After(first.NextCursor).ExecutePaginated(ctx)
			if err != nil {
				t.Fatalf("page 2: %v", err)
			}
			third, err := New(src).Limit(2).After(second.NextCursor).ExecutePaginated(ctx)
			if err != nil {
				t.Fatalf("page 3: %v", err)
			}
			if eventIDs(third.Events) != "e1" {
				t.Fatalf("Expected last page e1, got %s", eventIDs(third.Events))
			}

			back, err := New(src).Limit(2).After(third.PrevCursor).ExecutePaginated(ctx)
			if err != nil {
				t.Fatalf("prev page: %v", err)
			}
			if eventIDs(back.Events) != eventIDs(second.Events) {
				t.Errorf("Expected %s, got %s", eventIDs(second.Events), eventIDs(back.Events))
			}
			if !back.HasMore || back.PrevCursor == "" || back.NextCursor == "" {
				t.Errorf("Expected cursors in both directions, got %+v", back)
			}

			front, err := New(src).Limit(2).After(back.PrevCursor).ExecutePaginated(ctx)
			if err != nil {
				t.Fatalf("front page: %v", err)
			}
			if eventIDs(front.Events) != "e5,e4" || front.HasMore {
				t.Errorf("Expected first page e5,e4 without more, got %s (has_more=%v)", eventIDs(front.Events), front.HasMore)
			}
		})
	}
}

func TestBuilder_InvalidCursor(t *testing.T) {
	src := storage.NewMemoryStore()
	_, err := New(src).After("not-a-cursor").Execute(context.Background())
	if !errors.Is(err, audit.ErrInvalidCursor) {
		t.Errorf("Expected ErrInvalidCursor, got %v", err)
	}
	var qe *audit.QueryError
	if !errors.As(err, &qe) {
		t.Errorf("Expected QueryError, got %T", err)
	}
}

func TestBuilder_LimitAboveMax(t *testing.T) {
	src := storage.NewMemoryStore()
	_, err := New(src, WithLimits(Limits{Max: 10})).Limit(11).Execute(context.Background())
	if err == nil {
		t.Fatal("Expected limit validation error")
	}
}
