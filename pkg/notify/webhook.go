package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"mercator-hq/agentgov/pkg/audit"
	"mercator-hq/agentgov/pkg/config"
	"mercator-hq/agentgov/pkg/telemetry/tracing"
)

// Request headers identifying the delivered event.
const (
	HeaderEventID   = "X-Audit-Event-Id"
	HeaderEventType = "X-Audit-Event-Type"
)

// DefaultMaxInFlight bounds concurrent asynchronous deliveries.
const DefaultMaxInFlight = 64

// Config contains configuration for webhook delivery.
type Config struct {
	// URL is the endpoint events are POSTed to.
	URL string

	// Timeout bounds each attempt.
	// Default: 5 seconds
	Timeout time.Duration

	// MaxRetries is the number of retries after the first attempt.
	// Default: 3
	MaxRetries int

	// RetryBackoff is the delay before the first retry. It doubles on each
	// further retry.
	// Default: 500ms
	RetryBackoff time.Duration

	// EventTypes restricts delivery to the listed types. Empty means all.
	EventTypes []string

	// Headers are added to every request.
	Headers map[string]string

	// MaxInFlight bounds concurrent asynchronous deliveries. Events notified
	// beyond it are dropped and reported to the error handler.
	// Default: 64
	MaxInFlight int
}

// ConfigFrom converts the webhook section of the configuration file.
func ConfigFrom(cfg config.WebhookConfig) *Config {
	return &Config{
		URL:          cfg.URL,
		Timeout:      cfg.Timeout,
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
		EventTypes:   cfg.EventTypes,
		Headers:      cfg.Headers,
	}
}

// Metrics receives delivery measurements.
type Metrics interface {
	RecordWebhookDelivery(eventType string, success bool, duration time.Duration)
}

// ErrorHandler is called for every event that could not be delivered.
type ErrorHandler func(event *audit.Event, err error)

// Webhook POSTs audit events as JSON to an HTTP endpoint. Delivery is best
// effort: a bounded number of attempts, each bounded by a timeout.
type Webhook struct {
	config  Config
	client  *http.Client
	logger  *slog.Logger
	metrics Metrics
	onError ErrorHandler
	types   map[string]struct{}

	sem    *semaphore.Weighted
	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
}

// Option configures a Webhook.
type Option func(*Webhook)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(w *Webhook) {
		if c != nil {
			w.client = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Webhook) {
		if logger != nil {
			w.logger = logger.With("component", "notify.webhook")
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option {
	return func(w *Webhook) { w.metrics = m }
}

// WithErrorHandler sets the callback for failed deliveries.
func WithErrorHandler(fn ErrorHandler) Option {
	return func(w *Webhook) { w.onError = fn }
}

// NewWebhook creates a webhook notifier.
func NewWebhook(cfg *Config, opts ...Option) (*Webhook, error) {
	if cfg == nil || cfg.URL == "" {
		return nil, fmt.Errorf("webhook url is required")
	}
	c := *cfg
	if c.Timeout <= 0 {
		c.Timeout = config.DefaultWebhookTimeout
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = config.DefaultWebhookRetryBackoff
	}
	if c.MaxInFlight <= 0 {
		c.MaxInFlight = DefaultMaxInFlight
	}

	w := &Webhook{
		config: c,
		client: &http.Client{},
		logger: slog.Default().With("component", "notify.webhook"),
		sem:    semaphore.NewWeighted(int64(c.MaxInFlight)),
	}
	if len(c.EventTypes) > 0 {
		w.types = make(map[string]struct{}, len(c.EventTypes))
		for _, t := range c.EventTypes {
			w.types[t] = struct{}{}
		}
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Accepts reports whether the event type passes the event type filter.
func (w *Webhook) Accepts(eventType string) bool {
	if w.types == nil {
		return true
	}
	_, ok := w.types[eventType]
	return ok
}

// Notify delivers the event in the background and returns immediately.
// Failures go to the error handler.
func (w *Webhook) Notify(event *audit.Event) {
	if !w.Accepts(event.EventType) {
		return
	}

	w.mu.RLock()
	closed := w.closed
	acquired := false
	if !closed {
		if acquired = w.sem.TryAcquire(1); acquired {
			w.wg.Add(1)
		}
	}
	w.mu.RUnlock()

	switch {
	case closed:
		w.fail(event, &DeliveryError{EventID: event.EventID, EventType: event.EventType, Cause: ErrClosed})
		return
	case !acquired:
		w.fail(event, &DeliveryError{
			EventID:   event.EventID,
			EventType: event.EventType,
			Cause:     fmt.Errorf("%d deliveries in flight", w.config.MaxInFlight),
		})
		return
	}

	go func() {
		defer w.wg.Done()
		defer w.sem.Release(1)
		if err := w.Deliver(context.Background(), event); err != nil {
			w.fail(event, err)
		}
	}()
}

// Deliver POSTs the event, retrying server errors, 408, 429 and network
// failures with exponential backoff. Other client errors are not retried.
func (w *Webhook) Deliver(ctx context.Context, event *audit.Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return &DeliveryError{EventID: event.EventID, EventType: event.EventType, Cause: err}
	}

	start := time.Now()
	var lastErr error
	var lastStatus int
	attempts := 0

	for attempt := 0; attempt <= w.config.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := w.config.RetryBackoff << (attempt - 1)
			w.logger.Debug("retrying webhook delivery",
				"event_id", event.EventID,
				"attempt", attempt,
				"max_retries", w.config.MaxRetries,
				"backoff", backoff,
			)
			select {
			case <-ctx.Done():
				return w.finish(event, start, attempts, lastStatus, ctx.Err())
			case <-time.After(backoff):
			}
		}

		attempts++
		status, retry, err := w.attempt(ctx, event, body)
		if err == nil {
			return w.finish(event, start, attempts, status, nil)
		}
		lastErr, lastStatus = err, status

		if !retry || ctx.Err() != nil {
			break
		}
		w.logger.Warn("webhook delivery failed, will retry",
			"event_id", event.EventID,
			"attempt", attempts,
			"status", status,
			"error", err,
		)
	}

	return w.finish(event, start, attempts, lastStatus, lastErr)
}

// attempt performs one POST bounded by the per-attempt timeout.
func (w *Webhook) attempt(ctx context.Context, event *audit.Event, body []byte) (status int, retry bool, err error) {
	ctx, cancel := context.WithTimeout(ctx, w.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.config.URL, bytes.NewReader(body))
	if err != nil {
		return 0, false, fmt.Errorf("failed to create request: %w", err)
	}
	for key, value := range w.config.Headers {
		req.Header.Set(key, value)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderEventID, event.EventID)
	req.Header.Set(HeaderEventType, event.EventType)
	tracing.Inject(ctx, req.Header)

	resp, err := w.client.Do(req)
	if err != nil {
		return 0, true, err
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp.StatusCode, false, nil
	}

	err = fmt.Errorf("unexpected status %d: %s", resp.StatusCode, bytes.TrimSpace(respBody))
	switch {
	case resp.StatusCode >= 500, resp.StatusCode == http.StatusRequestTimeout, resp.StatusCode == http.StatusTooManyRequests:
		return resp.StatusCode, true, err
	default:
		return resp.StatusCode, false, err
	}
}

func (w *Webhook) finish(event *audit.Event, start time.Time, attempts, status int, err error) error {
	if w.metrics != nil {
		w.metrics.RecordWebhookDelivery(event.EventType, err == nil, time.Since(start))
	}
	if err == nil {
		w.logger.Debug("webhook delivered",
			"event_id", event.EventID,
			"attempts", attempts,
		)
		return nil
	}
	return &DeliveryError{
		EventID:    event.EventID,
		EventType:  event.EventType,
		Attempts:   attempts,
		StatusCode: status,
		Cause:      err,
	}
}

func (w *Webhook) fail(event *audit.Event, err error) {
	w.logger.Error("webhook delivery failed",
		"event_id", event.EventID,
		"event_type", event.EventType,
		"error", err,
	)
	if w.onError != nil {
		w.onError(event, err)
	}
}

// Close stops accepting events and waits for in-flight deliveries until ctx
// is done.
func (w *Webhook) Close(ctx context.Context) error {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
