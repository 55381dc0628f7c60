package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"mercator-hq/agentgov/pkg/clock"
)

// DefaultSweepInterval is how often idle buckets are deleted.
const DefaultSweepInterval = 5 * time.Minute

// Metrics receives rate limiter observations.
type Metrics interface {
	RecordRateLimitCheck(limitID string, allowed bool)
	SetRateLimitBuckets(n int)
}

// Limiter enforces a set of independently evaluated limits.
//
// Each limit keeps one bucket per {limit}:{scope}:{identifier} key. A request
// is admitted only when every applicable limit admits it.
type Limiter struct {
	mu      sync.Mutex
	configs []*Config
	buckets map[string]*bucket

	clock         clock.Clock
	logger        *slog.Logger
	metrics       Metrics
	sweepInterval time.Duration

	cron    *cron.Cron
	running bool
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock sets the time source.
func WithClock(c clock.Clock) Option {
	return func(l *Limiter) { l.clock = clock.Default(c) }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Limiter) {
		if logger != nil {
			l.logger = logger.With("component", "ratelimit")
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option {
	return func(l *Limiter) { l.metrics = m }
}

// WithSweepInterval sets the idle bucket sweep interval.
func WithSweepInterval(d time.Duration) Option {
	return func(l *Limiter) {
		if d > 0 {
			l.sweepInterval = d
		}
	}
}

// New creates a limiter for the given limits.
//
// Example:
//
//	limiter, err := ratelimit.New([]ratelimit.Config{{
//	    ID:          "per-agent",
//	    Window:      time.Minute,
//	    MaxRequests: 60,
//	    Scope:       ratelimit.ScopeAgent,
//	    Enabled:     true,
//	}})
func New(configs []Config, opts ...Option) (*Limiter, error) {
	l := &Limiter{
		buckets:       make(map[string]*bucket),
		clock:         clock.Real{},
		logger:        slog.Default().With("component", "ratelimit"),
		sweepInterval: DefaultSweepInterval,
	}
	for _, opt := range opts {
		opt(l)
	}

	for i := range configs {
		if err := l.addConfigLocked(configs[i]); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// AddConfig registers a new limit.
func (l *Limiter) AddConfig(cfg Config) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.addConfigLocked(cfg)
}

func (l *Limiter) addConfigLocked(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	for _, existing := range l.configs {
		if existing.ID == cfg.ID {
			return fmt.Errorf("%w: %s", ErrDuplicateConfig, cfg.ID)
		}
	}
	l.configs = append(l.configs, &cfg)
	return nil
}

// RemoveConfig removes a limit and its buckets. It reports whether the limit
// existed.
func (l *Limiter) RemoveConfig(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i, cfg := range l.configs {
		if cfg.ID != id {
			continue
		}
		l.configs = append(l.configs[:i], l.configs[i+1:]...)
		for key, b := range l.buckets {
			if b.limitID == id {
				delete(l.buckets, key)
			}
		}
		l.reportBucketsLocked()
		return true
	}
	return false
}

// Configs returns a copy of the registered limits in registration order.
func (l *Limiter) Configs() []Config {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Config, len(l.configs))
	for i, cfg := range l.configs {
		out[i] = *cfg
	}
	return out
}

// CheckLimit reports whether a request with the given identifiers would be
// admitted. It does not change any bucket.
func (l *Limiter) CheckLimit(ids Identifiers) Result {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.checkLocked(ids, l.clock.Now())
}

func (l *Limiter) checkLocked(ids Identifiers, now time.Time) Result {
	result := Result{Allowed: true}

	for _, cfg := range l.configs {
		if !cfg.appliesTo(ids.ActionType) {
			continue
		}
		result.Applied++

		var count, burst int
		resetAt := now.Add(cfg.Window)
		if b, ok := l.buckets[Key(cfg.ID, cfg.Scope, ids.identifier(cfg.Scope))]; ok {
			count, burst, resetAt = b.usage(cfg, now)
		}

		allowed := count < cfg.MaxRequests && burst < cfg.BurstLimit
		remaining := min(cfg.MaxRequests-count, cfg.BurstLimit-burst)
		if remaining < 0 {
			remaining = 0
		}

		if l.metrics != nil {
			l.metrics.RecordRateLimitCheck(cfg.ID, allowed)
		}

		if result.Applied == 1 || remaining < result.Remaining {
			result.Remaining = remaining
			if result.Allowed {
				result.ResetAt = resetAt
			}
		}
		if !allowed && result.Allowed {
			result.Allowed = false
			result.LimitID = cfg.ID
			result.ResetAt = resetAt
		}
	}

	return result
}

// RecordRequest counts a request against every applicable limit.
func (l *Limiter) RecordRequest(ids Identifiers) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.recordLocked(ids, l.clock.Now())
}

func (l *Limiter) recordLocked(ids Identifiers, now time.Time) {
	for _, cfg := range l.configs {
		if !cfg.appliesTo(ids.ActionType) {
			continue
		}
		key := Key(cfg.ID, cfg.Scope, ids.identifier(cfg.Scope))
		b, ok := l.buckets[key]
		if !ok {
			b = &bucket{limitID: cfg.ID, algorithm: cfg.Algorithm}
			l.buckets[key] = b
		}
		b.record(cfg, now)
	}
	l.reportBucketsLocked()
}

// Allow checks the limits and records the request only when it is admitted.
func (l *Limiter) Allow(ids Identifiers) Result {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	result := l.checkLocked(ids, now)
	if result.Allowed {
		l.recordLocked(ids, now)
		if result.Applied > 0 && result.Remaining > 0 {
			result.Remaining--
		}
	}
	return result
}

// Sweep deletes buckets idle for more than twice the largest window and
// returns how many were removed.
func (l *Limiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	var largest time.Duration
	for _, cfg := range l.configs {
		largest = max(largest, cfg.Window)
	}
	cutoff := l.clock.Now().Add(-2 * largest)

	removed := 0
	for key, b := range l.buckets {
		if b.lastActivity().Before(cutoff) {
			delete(l.buckets, key)
			removed++
		}
	}

	if removed > 0 {
		l.logger.Debug("swept idle rate limit buckets",
			"removed", removed,
			"remaining", len(l.buckets),
		)
	}
	l.reportBucketsLocked()
	return removed
}

// Start schedules the periodic sweep. Stop must be called to release it.
func (l *Limiter) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.running {
		return nil
	}

	l.cron = cron.New()
	spec := fmt.Sprintf("@every %s", l.sweepInterval)
	if _, err := l.cron.AddFunc(spec, func() { l.Sweep() }); err != nil {
		return fmt.Errorf("failed to schedule rate limit sweep: %w", err)
	}
	l.cron.Start()
	l.running = true

	l.logger.Info("rate limit sweep started", "interval", l.sweepInterval)

	go func() {
		<-ctx.Done()
		l.Stop()
	}()
	return nil
}

// Stop halts the sweep and waits for a running sweep to finish.
func (l *Limiter) Stop() {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return
	}
	c := l.cron
	l.running = false
	l.mu.Unlock()

	<-c.Stop().Done()
	l.logger.Info("rate limit sweep stopped")
}

// Status returns a snapshot of all buckets sorted by key.
func (l *Limiter) Status() []BucketStatus {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]BucketStatus, 0, len(l.buckets))
	for key, b := range l.buckets {
		st := BucketStatus{
			Key:         key,
			LimitID:     b.limitID,
			Algorithm:   b.algorithm,
			Count:       b.count,
			BurstCount:  b.burstCount,
			WindowStart: b.windowStart,
		}
		if b.algorithm == AlgorithmSliding && len(b.timestamps) > 0 {
			st.WindowStart = b.timestamps[0]
		}
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Reset deletes the bucket with the given key and reports whether it existed.
func (l *Limiter) Reset(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.buckets[key]; !ok {
		return false
	}
	delete(l.buckets, key)
	l.reportBucketsLocked()
	return true
}

func (l *Limiter) reportBucketsLocked() {
	if l.metrics != nil {
		l.metrics.SetRateLimitBuckets(len(l.buckets))
	}
}
