package metrics

import (
	"sync"
	"time"

	"mercator-hq/agentgov/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// otherLabel replaces label values once the cardinality limit is reached.
const otherLabel = "other"

// Collector is the orchestrator for all Prometheus metrics in agentgov.
// It owns a private registry and implements the small metrics interfaces
// declared by the rules, ratelimit, audit, approval and notify packages.
//
// All methods are safe on a nil Collector and are no-ops when metrics are
// disabled.
type Collector struct {
	config   *config.MetricsConfig
	registry *prometheus.Registry

	evaluationMetrics *EvaluationMetrics
	rateLimitMetrics  *RateLimitMetrics
	auditMetrics      *AuditMetrics
	approvalMetrics   *ApprovalMetrics
	webhookMetrics    *WebhookMetrics

	// Rule ids and limit ids come from user config, so their label sets are
	// bounded.
	cardinalityLimiter *CardinalityLimiter
}

// NewCollector creates a new metrics collector with the specified configuration
// and Prometheus registry. If registry is nil, a fresh registry is created.
//
// Example:
//
//	cfg := &config.MetricsConfig{
//		Enabled:   true,
//		Namespace: "agentgov",
//		Subsystem: "governance",
//	}
//	collector := metrics.NewCollector(cfg, nil)
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	if cfg == nil {
		cfg = &config.MetricsConfig{Enabled: true}
	}

	if cfg.Namespace == "" {
		cfg.Namespace = config.DefaultMetricsNamespace
	}
	if cfg.Subsystem == "" {
		cfg.Subsystem = config.DefaultMetricsSubsystem
	}

	c := &Collector{
		config:             cfg,
		registry:           registry,
		cardinalityLimiter: NewCardinalityLimiter(1000),
	}

	c.evaluationMetrics = NewEvaluationMetrics(cfg, registry)
	c.rateLimitMetrics = NewRateLimitMetrics(cfg, registry)
	c.auditMetrics = NewAuditMetrics(cfg, registry)
	c.approvalMetrics = NewApprovalMetrics(cfg, registry)
	c.webhookMetrics = NewWebhookMetrics(cfg, registry)

	return c
}

func (c *Collector) enabled() bool {
	return c != nil && c.config.Enabled
}

// label returns value, or "other" once the cardinality limit is reached.
func (c *Collector) label(metric, value string) string {
	if !c.cardinalityLimiter.Allow(metric + ":" + value) {
		return otherLabel
	}
	return value
}

// RecordEvaluation records a completed action evaluation.
//
// Parameters:
//   - status: Decision status ("allowed", "denied", "pending_approval", "rate_limited")
//   - riskLevel: Risk tier of the decision
//   - duration: Evaluation duration
func (c *Collector) RecordEvaluation(status, riskLevel string, duration time.Duration) {
	if !c.enabled() {
		return
	}
	c.evaluationMetrics.RecordEvaluation(status, riskLevel, duration)
}

// RecordRuleHit records that a rule matched an action.
func (c *Collector) RecordRuleHit(ruleID string) {
	if !c.enabled() {
		return
	}
	c.evaluationMetrics.RecordHit(c.label("rule", ruleID))
}

// RecordRateLimitCheck records the outcome of checking one limit config.
func (c *Collector) RecordRateLimitCheck(limitID string, allowed bool) {
	if !c.enabled() {
		return
	}
	c.rateLimitMetrics.RecordCheck(c.label("limit", limitID), allowed)
}

// SetRateLimitBuckets updates the number of live rate-limit buckets.
func (c *Collector) SetRateLimitBuckets(n int) {
	if !c.enabled() {
		return
	}
	c.rateLimitMetrics.SetBuckets(n)
}

// RecordAuditWrite records an attempt to persist an audit event.
func (c *Collector) RecordAuditWrite(eventType string, persisted bool) {
	if !c.enabled() {
		return
	}
	c.auditMetrics.RecordWrite(c.label("event_type", eventType), persisted)
}

// RecordAuditForcedAdmission records an event admitted to the cache after
// its retry budget was exhausted without reaching the store.
func (c *Collector) RecordAuditForcedAdmission() {
	if !c.enabled() {
		return
	}
	c.auditMetrics.RecordForcedAdmission()
}

// SetAuditRetryQueue updates the retry queue depth.
func (c *Collector) SetAuditRetryQueue(n int) {
	if !c.enabled() {
		return
	}
	c.auditMetrics.SetRetryQueue(n)
}

// SetAuditCacheSize updates the number of cached audit events.
func (c *Collector) SetAuditCacheSize(n int) {
	if !c.enabled() {
		return
	}
	c.auditMetrics.SetCacheSize(n)
}

// RecordAuditSync records a reconciliation run.
func (c *Collector) RecordAuditSync(pushed, pulled int) {
	if !c.enabled() {
		return
	}
	c.auditMetrics.RecordSync(pushed, pulled)
}

// RecordApprovalTransition records an approval request entering status.
func (c *Collector) RecordApprovalTransition(status string) {
	if !c.enabled() {
		return
	}
	c.approvalMetrics.RecordTransition(status)
}

// SetPendingApprovals updates the pending approval gauge.
func (c *Collector) SetPendingApprovals(n int) {
	if !c.enabled() {
		return
	}
	c.approvalMetrics.SetPending(n)
}

// RecordWebhookDelivery records one webhook delivery (after retries).
func (c *Collector) RecordWebhookDelivery(eventType string, success bool, duration time.Duration) {
	if !c.enabled() {
		return
	}
	c.webhookMetrics.RecordDelivery(c.label("event_type", eventType), success, duration)
}

// Registry returns the Prometheus registry used by this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// CardinalityLimiter prevents metric cardinality explosion by limiting
// the number of unique label combinations per metric.
type CardinalityLimiter struct {
	maxCardinality int
	current        map[string]struct{}
	mu             sync.RWMutex
}

// NewCardinalityLimiter creates a new cardinality limiter with the specified
// maximum cardinality.
func NewCardinalityLimiter(maxCardinality int) *CardinalityLimiter {
	return &CardinalityLimiter{
		maxCardinality: maxCardinality,
		current:        make(map[string]struct{}),
	}
}

// Allow checks if a label set is allowed. Returns true if the label set
// already exists or if the cardinality limit has not been reached.
func (cl *CardinalityLimiter) Allow(labelSet string) bool {
	cl.mu.RLock()
	if _, exists := cl.current[labelSet]; exists {
		cl.mu.RUnlock()
		return true
	}
	cl.mu.RUnlock()

	cl.mu.Lock()
	defer cl.mu.Unlock()

	// Double-check after acquiring write lock
	if _, exists := cl.current[labelSet]; exists {
		return true
	}

	if len(cl.current) >= cl.maxCardinality {
		return false
	}

	cl.current[labelSet] = struct{}{}
	return true
}

// Count returns the current cardinality.
func (cl *CardinalityLimiter) Count() int {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	return len(cl.current)
}
