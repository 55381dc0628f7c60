package recorder

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"mercator-hq/agentgov/pkg/audit"
	"mercator-hq/agentgov/pkg/clock"
	"mercator-hq/agentgov/pkg/config"
	"mercator-hq/agentgov/pkg/telemetry/logging"
)

// Config contains configuration for the audit recorder.
type Config struct {
	// MaxEvents bounds the in-memory cache. Oldest events are evicted first.
	// Default: 10000
	MaxEvents int

	// MaxRetryAttempts is the number of failed writes after which an event is
	// admitted to the cache without being persisted.
	// Default: 5
	MaxRetryAttempts int

	// RetryInterval is how often the retry queue is drained by Start.
	// Default: 5 seconds
	RetryInterval time.Duration

	// SyncInterval is how often Start checks cache/store consistency.
	// Default: 1 minute
	SyncInterval time.Duration

	// AutoSync reconciles when a scheduled check finds divergence.
	// Default: false
	AutoSync bool
}

// DefaultConfig returns the default recorder configuration.
func DefaultConfig() *Config {
	return &Config{
		MaxEvents:        config.DefaultAuditMaxEvents,
		MaxRetryAttempts: config.DefaultAuditMaxRetryAttempts,
		RetryInterval:    config.DefaultAuditRetryInterval,
		SyncInterval:     config.DefaultAuditSyncInterval,
	}
}

// ConfigFrom converts the audit section of the configuration file.
func ConfigFrom(cfg config.AuditConfig) *Config {
	c := &Config{
		MaxEvents:        cfg.MaxEvents,
		MaxRetryAttempts: cfg.MaxRetryAttempts,
		RetryInterval:    cfg.RetryInterval,
		SyncInterval:     cfg.SyncInterval,
		AutoSync:         cfg.AutoSync,
	}
	c.applyDefaults()
	return c
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.MaxEvents <= 0 {
		c.MaxEvents = d.MaxEvents
	}
	if c.MaxRetryAttempts <= 0 {
		c.MaxRetryAttempts = d.MaxRetryAttempts
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = d.RetryInterval
	}
	if c.SyncInterval <= 0 {
		c.SyncInterval = d.SyncInterval
	}
}

// Metrics receives recorder measurements.
type Metrics interface {
	RecordAuditWrite(eventType string, persisted bool)
	RecordAuditForcedAdmission()
	SetAuditRetryQueue(n int)
	SetAuditCacheSize(n int)
	RecordAuditSync(pushed, pulled int)
}

// Notifier is told about every logged event. Implementations must not block.
type Notifier interface {
	Notify(event *audit.Event)
}

// Recorder is the audit log. It keeps a bounded, timestamp-ordered cache of
// events in front of an optional durable store.
//
// An event enters the cache only after the store accepted it. The two
// exceptions are memory-only mode (no store) and events that exhausted their
// retry budget, which are admitted with an ERROR log.
type Recorder struct {
	store    audit.Store
	config   Config
	clock    clock.Clock
	logger   *slog.Logger
	metrics  Metrics
	notifier Notifier
	newID    func() string

	mu      sync.Mutex
	cache   []*audit.Event // ascending by (timestamp, event_id)
	index   map[string]struct{}
	retries []*audit.FailedWrite

	// drainMu serialises retry drains so an entry is never retried twice at once.
	drainMu sync.Mutex

	cronMu  sync.Mutex
	cron    *cron.Cron
	running bool
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithClock sets the time source used for event timestamps.
func WithClock(c clock.Clock) Option {
	return func(r *Recorder) { r.clock = clock.Default(c) }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Recorder) {
		if logger != nil {
			r.logger = logger.With("component", "audit.recorder")
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option {
	return func(r *Recorder) { r.metrics = m }
}

// WithNotifier sets the sink told about every logged event.
func WithNotifier(n Notifier) Option {
	return func(r *Recorder) { r.notifier = n }
}

// WithIDGenerator replaces the UUID event id generator.
func WithIDGenerator(fn func() string) Option {
	return func(r *Recorder) {
		if fn != nil {
			r.newID = fn
		}
	}
}

// New creates a recorder. A nil store runs the recorder in memory-only mode.
func New(store audit.Store, cfg *Config, opts ...Option) *Recorder {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	c := *cfg
	c.applyDefaults()

	r := &Recorder{
		store:  store,
		config: c,
		clock:  clock.Real{},
		logger: slog.Default().With("component", "audit.recorder"),
		newID:  uuid.NewString,
		index:  make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}

	r.logger.Info("audit recorder initialized",
		"max_events", c.MaxEvents,
		"max_retry_attempts", c.MaxRetryAttempts,
		"memory_only", store == nil,
	)
	return r
}

// MemoryOnly reports whether the recorder has no durable store.
func (r *Recorder) MemoryOnly() bool {
	return r.store == nil
}

// Log records an event and returns it. Log never fails: when the store
// rejects the write the event is queued for retry and returned anyway.
func (r *Recorder) Log(ctx context.Context, params audit.LogParams) *audit.Event {
	event := r.newEvent(ctx, params)

	switch {
	case r.store == nil:
		r.admit(event)
	default:
		if err := r.store.Save(ctx, event); err != nil {
			r.recordWrite(event.EventType, false)
			r.enqueue(event, err)
			r.logger.Warn("audit write failed, queued for retry",
				"event_id", event.EventID,
				"event_type", event.EventType,
				"error", err,
			)
		} else {
			r.recordWrite(event.EventType, true)
			r.admit(event)
		}
	}

	if r.notifier != nil {
		r.notifier.Notify(event.Clone())
	}
	return event.Clone()
}

func (r *Recorder) newEvent(ctx context.Context, p audit.LogParams) *audit.Event {
	outcome := p.Outcome
	if outcome == "" {
		outcome = audit.OutcomeSuccess
	}
	correlationID := p.CorrelationID
	if correlationID == "" {
		correlationID = logging.CorrelationID(ctx)
	}
	return &audit.Event{
		EventID:       r.newID(),
		EventType:     p.EventType,
		Action:        p.Action,
		Timestamp:     r.clock.Now().UTC(),
		Outcome:       outcome,
		AgentID:       p.AgentID,
		SessionID:     p.SessionID,
		UserID:        p.UserID,
		RiskLevel:     p.RiskLevel,
		Details:       p.Details.Clone(),
		Metadata:      p.Metadata.Clone(),
		CorrelationID: correlationID,
		ParentEventID: p.ParentEventID,
	}
}

// admit inserts an event into the cache.
func (r *Recorder) admit(event *audit.Event) {
	r.mu.Lock()
	r.admitLocked(event)
	n := len(r.cache)
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.SetAuditCacheSize(n)
	}
}

// admitLocked inserts the event at its timestamp position, ignoring ids
// already cached, then evicts the oldest events beyond MaxEvents.
func (r *Recorder) admitLocked(event *audit.Event) bool {
	if _, ok := r.index[event.EventID]; ok {
		return false
	}

	i := sort.Search(len(r.cache), func(i int) bool {
		return audit.Less(event, r.cache[i])
	})
	r.cache = append(r.cache, nil)
	copy(r.cache[i+1:], r.cache[i:])
	r.cache[i] = event
	r.index[event.EventID] = struct{}{}

	if over := len(r.cache) - r.config.MaxEvents; over > 0 {
		for _, old := range r.cache[:over] {
			delete(r.index, old.EventID)
		}
		n := copy(r.cache, r.cache[over:])
		clear(r.cache[n:])
		r.cache = r.cache[:n]
	}
	return true
}

func (r *Recorder) enqueue(event *audit.Event, err error) {
	r.mu.Lock()
	r.retries = append(r.retries, &audit.FailedWrite{
		Event:        event,
		Attempts:     1,
		LastError:    err,
		FirstAttempt: event.Timestamp,
	})
	n := len(r.retries)
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.SetAuditRetryQueue(n)
	}
}

func (r *Recorder) recordWrite(eventType string, persisted bool) {
	if r.metrics != nil {
		r.metrics.RecordAuditWrite(eventType, persisted)
	}
}

// EventCount returns the number of cached events.
func (r *Recorder) EventCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.cache)
}

// Events returns copies of the cached events, oldest first.
func (r *Recorder) Events() []*audit.Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*audit.Event, len(r.cache))
	for i, e := range r.cache {
		out[i] = e.Clone()
	}
	return out
}

// Query runs the filter against the store, or against the cache in
// memory-only mode.
func (r *Recorder) Query(ctx context.Context, filter *audit.Filter) ([]*audit.Event, error) {
	if r.store != nil {
		return r.store.Query(ctx, filter)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return filter.Apply(r.cache), nil
}

// Count returns the number of events matching the filter, routed like Query.
func (r *Recorder) Count(ctx context.Context, filter *audit.Filter) (int64, error) {
	if r.store != nil {
		return r.store.Count(ctx, filter)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for _, e := range r.cache {
		if filter.Matches(e) {
			n++
		}
	}
	return n, nil
}

// Clear deletes every event from the cache, the retry queue and the store.
// It is the only path that removes persisted events.
func (r *Recorder) Clear(ctx context.Context) error {
	if r.store != nil {
		if err := r.store.Clear(ctx); err != nil {
			return err
		}
	}

	r.mu.Lock()
	r.cache = nil
	r.index = make(map[string]struct{})
	r.retries = nil
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.SetAuditCacheSize(0)
		r.metrics.SetAuditRetryQueue(0)
	}
	r.logger.Warn("audit log cleared")
	return nil
}
