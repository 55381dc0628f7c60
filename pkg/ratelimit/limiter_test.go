package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"mercator-hq/agentgov/pkg/clock"
	"mercator-hq/agentgov/pkg/config"
)

var epoch = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func newTestLimiter(t *testing.T, configs ...Config) (*Limiter, *clock.Manual) {
	t.Helper()
	clk := clock.NewManual(epoch)
	l, err := New(configs, WithClock(clk))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return l, clk
}

func TestFixedWindow(t *testing.T) {
	l, clk := newTestLimiter(t, Config{
		ID:          "fixed",
		Window:      time.Second,
		MaxRequests: 3,
		Enabled:     true,
	})
	ids := Identifiers{AgentID: "a1"}

	for i := 0; i < 3; i++ {
		if res := l.CheckLimit(ids); !res.Allowed {
			t.Fatalf("request %d: expected allowed", i+1)
		}
		l.RecordRequest(ids)
	}

	res := l.CheckLimit(ids)
	if res.Allowed {
		t.Fatal("Expected fourth request to be denied")
	}
	if res.LimitID != "fixed" {
		t.Errorf("Expected limit id fixed, got %q", res.LimitID)
	}
	if !res.ResetAt.Equal(epoch.Add(time.Second)) {
		t.Errorf("Expected reset at %v, got %v", epoch.Add(time.Second), res.ResetAt)
	}

	clk.Advance(999 * time.Millisecond)
	if l.CheckLimit(ids).Allowed {
		t.Error("Expected denial before window elapsed")
	}

	clk.Advance(time.Millisecond)
	if res := l.CheckLimit(ids); !res.Allowed || res.Remaining != 3 {
		t.Errorf("Expected window reset with 3 remaining, got %+v", res)
	}
}

func TestCheckLimit_ReadOnly(t *testing.T) {
	l, _ := newTestLimiter(t, Config{ID: "r", Window: time.Second, MaxRequests: 1, Enabled: true})

	for i := 0; i < 5; i++ {
		l.CheckLimit(Identifiers{})
	}
	if len(l.Status()) != 0 {
		t.Errorf("Expected no buckets after checks, got %d", len(l.Status()))
	}
	if !l.CheckLimit(Identifiers{}).Allowed {
		t.Error("Expected check to remain allowed")
	}
}

func TestScopeIsolation(t *testing.T) {
	l, _ := newTestLimiter(t, Config{
		ID:          "agent",
		Window:      500 * time.Millisecond,
		MaxRequests: 2,
		Scope:       ScopeAgent,
		Enabled:     true,
	})

	a1 := Identifiers{AgentID: "a1"}
	l.RecordRequest(a1)
	l.RecordRequest(a1)

	if l.CheckLimit(a1).Allowed {
		t.Error("Expected a1 to be denied")
	}
	if !l.CheckLimit(Identifiers{AgentID: "a2"}).Allowed {
		t.Error("Expected a2 to be allowed")
	}
}

func TestUnknownIdentifierSharesBucket(t *testing.T) {
	l, _ := newTestLimiter(t, Config{
		ID:          "user",
		Window:      time.Minute,
		MaxRequests: 1,
		Scope:       ScopeUser,
		Enabled:     true,
	})

	l.RecordRequest(Identifiers{AgentID: "x"})
	if l.CheckLimit(Identifiers{AgentID: "y"}).Allowed {
		t.Error("Expected requests without a user id to share the unknown bucket")
	}

	status := l.Status()
	if len(status) != 1 || status[0].Key != "user:user:unknown" {
		t.Errorf("Expected single unknown bucket, got %+v", status)
	}
}

func TestKeySanitizing(t *testing.T) {
	tests := []struct {
		prefix string
		scope  Scope
		id     string
		want   string
	}{
		{"limit", ScopeAgent, "a1", "limit:agent:a1"},
		{"limit", ScopeAgent, "a1:global", "limit:agent:a1%3Aglobal"},
		{"limit", ScopeAgent, "a_b", "limit:agent:a_b"},
		{"limit", ScopeAgent, "100%", "limit:agent:100%25"},
		{"limit", ScopeAgent, "a%3Ab", "limit:agent:a%253Ab"},
		{"limit", ScopeSession, "", "limit:session:unknown"},
		{"my:limit", ScopeUser, "u", "my%3Alimit:user:u"},
	}
	for _, tt := range tests {
		if got := Key(tt.prefix, tt.scope, tt.id); got != tt.want {
			t.Errorf("Key(%q, %q, %q) = %q, want %q", tt.prefix, tt.scope, tt.id, got, tt.want)
		}
	}
}

func TestKeySanitizing_DistinctIdentifiers(t *testing.T) {
	tests := []struct {
		name string
		a, b string
	}{
		{"delimiter versus underscore", "a:b", "a_b"},
		{"delimiter versus its escape", "a:b", "a%3Ab"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, _ := newTestLimiter(t, Config{
				ID:          "per-agent",
				Scope:       ScopeAgent,
				Window:      time.Minute,
				MaxRequests: 1,
				Enabled:     true,
			})

			if r := l.Allow(Identifiers{AgentID: tt.a}); !r.Allowed {
				t.Fatalf("Expected first request for %q allowed", tt.a)
			}
			if r := l.Allow(Identifiers{AgentID: tt.b}); !r.Allowed {
				t.Errorf("Expected %q to have its own bucket, got limited by %s", tt.b, r.LimitID)
			}
			if n := len(l.Status()); n != 2 {
				t.Errorf("Expected 2 buckets, got %d", n)
			}
		})
	}
}

func TestBurstLimit(t *testing.T) {
	l, _ := newTestLimiter(t, Config{
		ID:          "burst",
		Window:      time.Minute,
		MaxRequests: 10,
		BurstLimit:  2,
		Enabled:     true,
	})

	l.RecordRequest(Identifiers{})
	l.RecordRequest(Identifiers{})

	res := l.CheckLimit(Identifiers{})
	if res.Allowed {
		t.Error("Expected burst limit to deny")
	}
	if res.Remaining != 0 {
		t.Errorf("Expected 0 remaining, got %d", res.Remaining)
	}
}

func TestSlidingWindow(t *testing.T) {
	l, clk := newTestLimiter(t, Config{
		ID:          "sliding",
		Window:      time.Second,
		MaxRequests: 2,
		Algorithm:   AlgorithmSliding,
		Enabled:     true,
	})
	ids := Identifiers{}

	l.RecordRequest(ids)
	clk.Advance(600 * time.Millisecond)
	l.RecordRequest(ids)

	if l.CheckLimit(ids).Allowed {
		t.Fatal("Expected denial with two requests in window")
	}

	// The first request leaves the window; a fixed window would still be full.
	clk.Advance(401 * time.Millisecond)
	res := l.CheckLimit(ids)
	if !res.Allowed || res.Remaining != 1 {
		t.Errorf("Expected one slot freed, got %+v", res)
	}
}

func TestSlidingWindow_Prunes(t *testing.T) {
	l, clk := newTestLimiter(t, Config{
		ID:          "sliding",
		Window:      time.Second,
		MaxRequests: 100,
		Algorithm:   AlgorithmSliding,
		Enabled:     true,
	})

	for i := 0; i < 5; i++ {
		l.RecordRequest(Identifiers{})
	}
	clk.Advance(3 * time.Second)
	l.RecordRequest(Identifiers{})

	status := l.Status()
	if len(status) != 1 || status[0].Count != 1 {
		t.Errorf("Expected pruned bucket with 1 timestamp, got %+v", status)
	}
}

func TestMultipleConfigs_AnyDenyDenies(t *testing.T) {
	l, _ := newTestLimiter(t,
		Config{ID: "loose", Window: time.Minute, MaxRequests: 100, Enabled: true},
		Config{ID: "tight", Window: time.Minute, MaxRequests: 1, Scope: ScopeAgent, Enabled: true},
	)
	ids := Identifiers{AgentID: "a1"}

	l.RecordRequest(ids)
	res := l.CheckLimit(ids)
	if res.Allowed {
		t.Fatal("Expected tight limit to deny")
	}
	if res.LimitID != "tight" {
		t.Errorf("Expected limit id tight, got %q", res.LimitID)
	}
	if res.Applied != 2 {
		t.Errorf("Expected 2 applied limits, got %d", res.Applied)
	}
}

func TestActionCategories(t *testing.T) {
	l, _ := newTestLimiter(t, Config{
		ID:               "payments",
		Window:           time.Minute,
		MaxRequests:      1,
		ActionCategories: []string{"payment"},
		Enabled:          true,
	})

	l.RecordRequest(Identifiers{ActionType: "payment"})
	if l.CheckLimit(Identifiers{ActionType: "payment"}).Allowed {
		t.Error("Expected payment to be limited")
	}

	res := l.CheckLimit(Identifiers{ActionType: "data_access"})
	if !res.Allowed || res.Applied != 0 {
		t.Errorf("Expected other categories to be unaffected, got %+v", res)
	}
}

func TestDisabledConfig(t *testing.T) {
	l, _ := newTestLimiter(t, Config{ID: "off", Window: time.Minute, MaxRequests: 1})

	l.RecordRequest(Identifiers{})
	l.RecordRequest(Identifiers{})
	if !l.CheckLimit(Identifiers{}).Allowed {
		t.Error("Expected disabled limit to admit")
	}
}

func TestAllow(t *testing.T) {
	l, _ := newTestLimiter(t, Config{ID: "a", Window: time.Minute, MaxRequests: 2, Enabled: true})

	if res := l.Allow(Identifiers{}); !res.Allowed || res.Remaining != 1 {
		t.Errorf("Expected first Allow with 1 remaining, got %+v", res)
	}
	l.Allow(Identifiers{})
	if l.Allow(Identifiers{}).Allowed {
		t.Error("Expected third Allow to be denied")
	}
	if got := l.Status()[0].Count; got != 2 {
		t.Errorf("Expected denied request not to be counted, got count %d", got)
	}
}

func TestSweep(t *testing.T) {
	l, clk := newTestLimiter(t,
		Config{ID: "short", Window: time.Second, MaxRequests: 5, Scope: ScopeAgent, Enabled: true},
		Config{ID: "long", Window: 10 * time.Second, MaxRequests: 5, Scope: ScopeUser, Enabled: true},
	)

	l.RecordRequest(Identifiers{AgentID: "old", UserID: "old"})
	clk.Advance(15 * time.Second)
	l.RecordRequest(Identifiers{AgentID: "new", UserID: "new"})

	if removed := l.Sweep(); removed != 0 {
		t.Errorf("Expected nothing swept within 2x largest window, got %d", removed)
	}

	clk.Advance(6 * time.Second)
	if removed := l.Sweep(); removed != 2 {
		t.Errorf("Expected 2 old buckets swept, got %d", removed)
	}
	if len(l.Status()) != 2 {
		t.Errorf("Expected 2 buckets left, got %d", len(l.Status()))
	}
}

func TestStartStop(t *testing.T) {
	l, _ := newTestLimiter(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := l.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := l.Start(ctx); err != nil {
		t.Fatalf("second Start failed: %v", err)
	}
	l.Stop()
	l.Stop()
}

func TestResetAndRemoveConfig(t *testing.T) {
	l, _ := newTestLimiter(t, Config{ID: "r", Window: time.Minute, MaxRequests: 1, Scope: ScopeAgent, Enabled: true})

	l.RecordRequest(Identifiers{AgentID: "a1"})
	if !l.Reset("r:agent:a1") {
		t.Fatal("Expected bucket to be reset")
	}
	if l.Reset("r:agent:a1") {
		t.Error("Expected second reset to report missing bucket")
	}
	if !l.CheckLimit(Identifiers{AgentID: "a1"}).Allowed {
		t.Error("Expected request to be allowed after reset")
	}

	l.RecordRequest(Identifiers{AgentID: "a1"})
	if !l.RemoveConfig("r") {
		t.Fatal("Expected config to be removed")
	}
	if len(l.Status()) != 0 {
		t.Error("Expected buckets of removed config to be deleted")
	}
	if l.RemoveConfig("r") {
		t.Error("Expected removing unknown config to return false")
	}
}

func TestAddConfig_Errors(t *testing.T) {
	l, _ := newTestLimiter(t, Config{ID: "x", Window: time.Second, MaxRequests: 1, Enabled: true})

	tests := []struct {
		name string
		cfg  Config
		want error
	}{
		{"duplicate", Config{ID: "x", Window: time.Second, MaxRequests: 1}, ErrDuplicateConfig},
		{"missing id", Config{Window: time.Second, MaxRequests: 1}, ErrInvalidConfig},
		{"zero window", Config{ID: "y", MaxRequests: 1}, ErrInvalidConfig},
		{"zero max", Config{ID: "y", Window: time.Second}, ErrInvalidConfig},
		{"bad scope", Config{ID: "y", Window: time.Second, MaxRequests: 1, Scope: "tenant"}, ErrInvalidConfig},
		{"bad algorithm", Config{ID: "y", Window: time.Second, MaxRequests: 1, Algorithm: "leaky"}, ErrInvalidConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := l.AddConfig(tt.cfg); !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
		})
	}

	cfgs := l.Configs()
	if len(cfgs) != 1 || cfgs[0].BurstLimit != 1 || cfgs[0].Scope != ScopeGlobal {
		t.Errorf("Expected defaults applied to stored config, got %+v", cfgs)
	}
}

func TestFromConfig(t *testing.T) {
	cfgs := FromConfig([]config.RateLimitConfig{
		{ID: "a", Window: time.Minute, MaxRequests: 5, Scope: "agent", Algorithm: "sliding"},
		{ID: "b", Window: time.Minute, MaxRequests: 5, Disabled: true},
	})

	if len(cfgs) != 2 {
		t.Fatalf("Expected 2 configs, got %d", len(cfgs))
	}
	if !cfgs[0].Enabled || cfgs[0].Scope != ScopeAgent || cfgs[0].Algorithm != AlgorithmSliding {
		t.Errorf("Unexpected conversion: %+v", cfgs[0])
	}
	if cfgs[1].Enabled {
		t.Error("Expected disabled config to convert to Enabled=false")
	}
}

type fakeMetrics struct {
	mu      sync.Mutex
	checks  map[bool]int
	buckets int
}

func (f *fakeMetrics) RecordRateLimitCheck(_ string, allowed bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.checks == nil {
		f.checks = make(map[bool]int)
	}
	f.checks[allowed]++
}

func (f *fakeMetrics) SetRateLimitBuckets(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.buckets = n
}

func TestMetrics(t *testing.T) {
	m := &fakeMetrics{}
	l, err := New([]Config{{ID: "m", Window: time.Minute, MaxRequests: 1, Scope: ScopeAgent, Enabled: true}},
		WithClock(clock.NewManual(epoch)), WithMetrics(m))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	l.Allow(Identifiers{AgentID: "a"})
	l.Allow(Identifiers{AgentID: "a"})
	l.Allow(Identifiers{AgentID: "b"})

	if m.checks[true] != 2 || m.checks[false] != 1 {
		t.Errorf("Expected 2 allowed and 1 denied check, got %v", m.checks)
	}
	if m.buckets != 2 {
		t.Errorf("Expected 2 buckets reported, got %d", m.buckets)
	}
}
