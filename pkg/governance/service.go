package governance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"mercator-hq/agentgov/pkg/approval"
	"mercator-hq/agentgov/pkg/audit"
	"mercator-hq/agentgov/pkg/audit/recorder"
	"mercator-hq/agentgov/pkg/audit/storage"
	"mercator-hq/agentgov/pkg/clock"
	"mercator-hq/agentgov/pkg/config"
	"mercator-hq/agentgov/pkg/notify"
	"mercator-hq/agentgov/pkg/payload"
	"mercator-hq/agentgov/pkg/ratelimit"
	"mercator-hq/agentgov/pkg/rules"
	"mercator-hq/agentgov/pkg/rules/validator"
	"mercator-hq/agentgov/pkg/secrets"
	"mercator-hq/agentgov/pkg/telemetry/tracing"
)

// Metrics is every measurement the service and its components emit.
// *metrics.Collector satisfies it.
type Metrics interface {
	recorder.Metrics
	ratelimit.Metrics
	approval.Metrics
	notify.Metrics
	RecordEvaluation(status, riskLevel string, duration time.Duration)
	RecordRuleHit(ruleID string)
}

// StoreFactory opens the durable audit store. A nil store with a nil error
// runs the recorder in memory-only mode.
type StoreFactory func(ctx context.Context, cfg config.StorageConfig) (audit.Store, error)

// Service composes the rule engine, rate limiter, audit recorder, approval
// workflow and webhook notifier. Construct it with New, call Initialize once
// before use and Close on shutdown.
type Service struct {
	config *config.Config
	root   *slog.Logger
	logger *slog.Logger
	clock  clock.Clock
	tracer trace.Tracer

	metrics      Metrics
	openStore    StoreFactory
	httpClient   *http.Client
	recorderOpts []recorder.Option

	engine   *rules.Engine
	registry *rules.Registry
	limiter  *ratelimit.Limiter

	initGroup singleflight.Group

	mu          sync.RWMutex
	initialized bool
	store       audit.Store
	recorder    *recorder.Recorder
	approvals   *approval.Workflow
	webhook     *notify.Webhook
	watcher     *rules.Watcher
	cancel      context.CancelFunc
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger shared by all components.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.root = logger
		}
	}
}

// WithClock sets the time source shared by all components.
func WithClock(c clock.Clock) Option {
	return func(s *Service) { s.clock = clock.Default(c) }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithTracer sets the tracer. Defaults to the global otel tracer, which is a
// noop until an SDK provider is installed.
func WithTracer(t trace.Tracer) Option {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

// WithStore uses store instead of opening one from configuration.
func WithStore(store audit.Store) Option {
	return WithStoreFactory(func(context.Context, config.StorageConfig) (audit.Store, error) {
		return store, nil
	})
}

// WithStoreFactory replaces the configuration-driven store opener.
func WithStoreFactory(fn StoreFactory) Option {
	return func(s *Service) {
		if fn != nil {
			s.openStore = fn
		}
	}
}

// WithHTTPClient sets the client used for webhook delivery.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Service) { s.httpClient = c }
}

// WithRecorderOptions passes extra options to the audit recorder.
func WithRecorderOptions(opts ...recorder.Option) Option {
	return func(s *Service) { s.recorderOpts = append(s.recorderOpts, opts...) }
}

// New validates cfg and builds the components that need no I/O. A nil cfg
// uses config.NewDefaultConfig.
func New(cfg *config.Config, opts ...Option) (*Service, error) {
	if cfg == nil {
		cfg = config.NewDefaultConfig()
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	s := &Service{
		config:    cfg,
		root:      slog.Default(),
		clock:     clock.Real{},
		tracer:    otel.Tracer(tracing.InstrumentationName),
		openStore: OpenStore,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.logger = s.root.With("component", "governance")
	s.engine = rules.NewEngine(s.root)
	s.registry = rules.NewRegistry(s.engine, s.root)

	limiterOpts := []ratelimit.Option{
		ratelimit.WithClock(s.clock),
		ratelimit.WithLogger(s.root),
		ratelimit.WithSweepInterval(cfg.RateLimitSweepInterval),
	}
	if s.metrics != nil {
		limiterOpts = append(limiterOpts, ratelimit.WithMetrics(s.metrics))
	}
	limiter, err := ratelimit.New(ratelimit.FromConfig(cfg.RateLimits), limiterOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create rate limiter: %w", err)
	}
	s.limiter = limiter
	return s, nil
}

// OpenStore opens the store selected by cfg.Backend. The memory backend
// returns a nil store so the recorder runs memory-only.
func OpenStore(_ context.Context, cfg config.StorageConfig) (audit.Store, error) {
	switch cfg.Backend {
	case "memory":
		return nil, nil
	case "sqlite", "":
		store, err := storage.NewSQLiteStore(storage.SQLiteConfigFrom(cfg), slog.Default())
		if err != nil {
			return nil, err
		}
		return store, nil
	}
	return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
}

// Initialize opens the store, loads the configured rules and starts the
// background timers. Concurrent callers share a single bootstrap; once it
// has succeeded further calls return immediately. Cancelling ctx abandons
// the wait for this caller only. The shared bootstrap keeps ctx values but
// not its cancellation.
func (s *Service) Initialize(ctx context.Context) error {
	if s.ready() == nil {
		return nil
	}
	bootCtx := context.WithoutCancel(ctx)
	ch := s.initGroup.DoChan("initialize", func() (any, error) {
		if s.ready() == nil {
			return nil, nil
		}
		return nil, s.bootstrap(bootCtx)
	})
	select {
	case res := <-ch:
		if res.Shared {
			s.logger.Debug("joined in-flight initialization")
		}
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) bootstrap(ctx context.Context) (err error) {
	start := time.Now()
	cfg := s.config

	store, err := s.openStore(ctx, cfg.Audit.Storage)
	if err != nil {
		return fmt.Errorf("failed to open audit store: %w", err)
	}
	runCtx, cancel := context.WithCancel(context.Background())

	var (
		webhook *notify.Webhook
		rec     *recorder.Recorder
		watcher *rules.Watcher
	)
	defer func() {
		if err == nil {
			return
		}
		cancel()
		if watcher != nil {
			_ = watcher.Stop()
		}
		s.limiter.Stop()
		if rec != nil {
			rec.Stop()
		}
		if webhook != nil {
			_ = webhook.Close(context.Background())
		}
		closeStore(store)
	}()

	if cfg.Webhook.Enabled {
		webhookOpts := []notify.Option{
			notify.WithLogger(s.root),
			notify.WithErrorHandler(s.notificationFailed),
		}
		if s.httpClient != nil {
			webhookOpts = append(webhookOpts, notify.WithHTTPClient(s.httpClient))
		}
		if s.metrics != nil {
			webhookOpts = append(webhookOpts, notify.WithMetrics(s.metrics))
		}
		webhookCfg, werr := s.resolveWebhookConfig(ctx)
		if werr != nil {
			return werr
		}
		webhook, err = notify.NewWebhook(webhookCfg, webhookOpts...)
		if err != nil {
			return fmt.Errorf("failed to create webhook: %w", err)
		}
	}

	recOpts := []recorder.Option{
		recorder.WithClock(s.clock),
		recorder.WithLogger(s.root),
	}
	if s.metrics != nil {
		recOpts = append(recOpts, recorder.WithMetrics(s.metrics))
	}
	if webhook != nil {
		recOpts = append(recOpts, recorder.WithNotifier(webhook))
	}
	recOpts = append(recOpts, s.recorderOpts...)
	rec = recorder.New(store, recorder.ConfigFrom(cfg.Audit), recOpts...)

	approvalOpts := []approval.Option{
		approval.WithClock(s.clock),
		approval.WithLogger(s.root),
		approval.WithEventLogger(rec),
	}
	if s.metrics != nil {
		approvalOpts = append(approvalOpts, approval.WithMetrics(s.metrics))
	}
	approvals := approval.New(approval.ConfigFrom(cfg.Approval), approvalOpts...)

	fileRules, err := s.loadRules()
	if err != nil {
		return err
	}

	if cfg.Rules.Watch && cfg.Rules.File != "" {
		watcher, err = rules.NewWatcher(cfg.Rules.File, s.registry, cfg.Rules.DebounceInterval, s.root)
		if err != nil {
			return err
		}
		watcher.Track(fileRules)
		watcher.OnReload(func(err error) { s.rulesReloaded(err) })
	}

	if err = rec.Start(runCtx); err != nil {
		return fmt.Errorf("failed to start audit recorder: %w", err)
	}
	if err = s.limiter.Start(runCtx); err != nil {
		return fmt.Errorf("failed to start rate limiter: %w", err)
	}
	if watcher != nil {
		go func() {
			if err := watcher.Watch(runCtx); err != nil {
				s.logger.Error("rule watcher exited", "error", err)
			}
		}()
	}

	s.mu.Lock()
	s.store = store
	s.recorder = rec
	s.approvals = approvals
	s.webhook = webhook
	s.watcher = watcher
	s.cancel = cancel
	s.initialized = true
	s.mu.Unlock()

	s.logger.Info("governance service initialized",
		"rules", s.registry.Len(),
		"rate_limits", len(cfg.RateLimits),
		"memory_only", rec.MemoryOnly(),
		"webhook", webhook != nil,
		"duration", time.Since(start),
	)
	return nil
}

// loadRules installs the configured presets followed by the rule file and
// returns the rules read from the file.
func (s *Service) loadRules() ([]*rules.Rule, error) {
	cfg := s.config.Rules

	var presets []*rules.Rule
	for _, name := range cfg.Presets {
		rs, err := rules.LoadPreset(name)
		if err != nil {
			return nil, err
		}
		presets = append(presets, rs...)
	}
	var fromFile []*rules.Rule
	if cfg.File != "" {
		rs, err := rules.LoadFile(cfg.File)
		if err != nil {
			return nil, err
		}
		fromFile = rs
	}
	all := append(append([]*rules.Rule(nil), presets...), fromFile...)

	report := validator.Validate(all, validator.WithEvaluators(s.engine))
	for _, issue := range report.Issues {
		s.logger.Warn("rule validation issue", "severity", issue.Severity, "code", issue.Code, "rules", issue.RuleIDs, "message", issue.Message)
	}
	if report.HasErrors() && cfg.Strict {
		return nil, fmt.Errorf("%w: %d issue(s)", ErrRuleConflicts, len(report.Filter(validator.SeverityError)))
	}

	if err := s.registry.Replace(all); err != nil {
		return nil, err
	}
	return fromFile, nil
}

// Close stops the background timers, makes a final retry drain, waits for
// in-flight webhook deliveries and closes the store.
func (s *Service) Close(ctx context.Context) error {
	s.mu.Lock()
	if !s.initialized {
		s.mu.Unlock()
		return nil
	}
	s.initialized = false
	rec, store, webhook, watcher, cancel := s.recorder, s.store, s.webhook, s.watcher, s.cancel
	s.mu.Unlock()

	cancel()
	var errs []error
	if watcher != nil {
		errs = append(errs, watcher.Stop())
	}
	s.limiter.Stop()
	rec.Stop()
	if result := rec.DrainRetryQueue(ctx); result.Requeued > 0 {
		s.logger.Warn("audit events still unpersisted at shutdown", "pending", result.Requeued)
	}
	if webhook != nil {
		errs = append(errs, webhook.Close(ctx))
	}
	if store != nil {
		errs = append(errs, store.Close())
	}

	s.logger.Info("governance service closed")
	return errors.Join(errs...)
}

func closeStore(store audit.Store) {
	if store != nil {
		_ = store.Close()
	}
}

// ready returns ErrNotInitialized unless Initialize has completed.
func (s *Service) ready() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.initialized {
		return ErrNotInitialized
	}
	return nil
}

// components returns the initialized components.
func (s *Service) components() (*recorder.Recorder, *approval.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.initialized {
		return nil, nil, ErrNotInitialized
	}
	return s.recorder, s.approvals, nil
}

// notificationFailed audits an undeliverable webhook event. Failures of
// notification_failed events themselves are only logged.
func (s *Service) notificationFailed(event *audit.Event, err error) {
	if event.EventType == audit.EventNotificationFailed {
		return
	}
	rec, _, rerr := s.components()
	if rerr != nil {
		return
	}
	rec.Log(context.Background(), audit.LogParams{
		EventType:     audit.EventNotificationFailed,
		Action:        "webhook_delivery",
		Outcome:       audit.OutcomeFailure,
		AgentID:       event.AgentID,
		SessionID:     event.SessionID,
		Details:       payload.Map{"event_id": payload.String(event.EventID), "event_type": payload.String(event.EventType), "error": payload.String(err.Error())},
		CorrelationID: event.CorrelationID,
		ParentEventID: event.EventID,
	})
}

func (s *Service) rulesReloaded(err error) {
	rec, _, rerr := s.components()
	if rerr != nil {
		return
	}
	params := audit.LogParams{
		EventType: audit.EventRulesReloaded,
		Action:    "reload_rules",
		Outcome:   audit.OutcomeSuccess,
		Details:   payload.Map{"path": payload.String(s.config.Rules.File), "rules": payload.Number(float64(s.registry.Len()))},
	}
	if err != nil {
		params.Outcome = audit.OutcomeFailure
		params.Details["error"] = payload.String(err.Error())
	}
	rec.Log(context.Background(), params)
}

// resolveWebhookConfig substitutes ${secret:name} references in the webhook
// URL and headers.
func (s *Service) resolveWebhookConfig(ctx context.Context) (*notify.Config, error) {
	wc := notify.ConfigFrom(s.config.Webhook)
	providers := []secrets.Provider{}
	if dir := s.config.Secrets.Dir; dir != "" {
		providers = append(providers, secrets.NewFileProvider(dir))
	}
	providers = append(providers, secrets.NewEnvProvider(s.config.Secrets.EnvPrefix))
	m := secrets.NewManager(providers...)

	rawURL, err := m.ResolveReferences(ctx, wc.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve webhook url: %w", err)
	}
	if u, err := url.Parse(rawURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("resolved webhook url is not an http(s) URL")
	}
	headers, err := m.ResolveMap(ctx, wc.Headers)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve webhook headers: %w", err)
	}
	wc.URL, wc.Headers = rawURL, headers
	return wc, nil
}
