package metrics

import (
	"mercator-hq/agentgov/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// AuditMetrics tracks audit persistence and reconciliation.
//
// Metrics:
//   - agentgov_governance_audit_writes_total: Store writes by event type and result
//   - agentgov_governance_audit_forced_admissions_total: Events cached after exhausting retries
//   - agentgov_governance_audit_retry_queue: Current retry queue depth
//   - agentgov_governance_audit_cache_events: Current cache size
//   - agentgov_governance_audit_sync_events_total: Events reconciled by direction
type AuditMetrics struct {
	writesTotal          *prometheus.CounterVec
	forcedAdmissionTotal prometheus.Counter
	retryQueue           prometheus.Gauge
	cacheSize            prometheus.Gauge
	syncTotal            *prometheus.CounterVec
}

// NewAuditMetrics creates and registers audit metrics.
func NewAuditMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *AuditMetrics {
	am := &AuditMetrics{
		writesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "audit_writes_total",
				Help:      "Total number of audit store writes",
			},
			[]string{"event_type", "result"},
		),
		forcedAdmissionTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "audit_forced_admissions_total",
				Help:      "Audit events cached without being persisted after exhausting retries",
			},
		),
		retryQueue: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "audit_retry_queue",
				Help:      "Number of audit events waiting to be persisted",
			},
		),
		cacheSize: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "audit_cache_events",
				Help:      "Number of audit events held in memory",
			},
		),
		syncTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "audit_sync_events_total",
				Help:      "Audit events copied during reconciliation",
			},
			[]string{"direction"},
		),
	}

	registry.MustRegister(
		am.writesTotal,
		am.forcedAdmissionTotal,
		am.retryQueue,
		am.cacheSize,
		am.syncTotal,
	)
	return am
}

// RecordWrite records a store write attempt.
func (am *AuditMetrics) RecordWrite(eventType string, persisted bool) {
	result := "success"
	if !persisted {
		result = "failure"
	}
	am.writesTotal.WithLabelValues(eventType, result).Inc()
}

// RecordForcedAdmission increments the forced admission counter.
func (am *AuditMetrics) RecordForcedAdmission() {
	am.forcedAdmissionTotal.Inc()
}

// SetRetryQueue updates the retry queue gauge.
func (am *AuditMetrics) SetRetryQueue(n int) {
	am.retryQueue.Set(float64(n))
}

// SetCacheSize updates the cache size gauge.
func (am *AuditMetrics) SetCacheSize(n int) {
	am.cacheSize.Set(float64(n))
}

// RecordSync records events pushed to the store and pulled into the cache.
func (am *AuditMetrics) RecordSync(pushed, pulled int) {
	am.syncTotal.WithLabelValues("to_store").Add(float64(pushed))
	am.syncTotal.WithLabelValues("to_cache").Add(float64(pulled))
}
