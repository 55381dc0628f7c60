package metrics

import (
	"mercator-hq/agentgov/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// ApprovalMetrics tracks the approval workflow.
type ApprovalMetrics struct {
	transitionsTotal *prometheus.CounterVec
	pending          prometheus.Gauge
}

// NewApprovalMetrics creates and registers approval metrics.
func NewApprovalMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *ApprovalMetrics {
	am := &ApprovalMetrics{
		transitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "approval_transitions_total",
				Help:      "Approval requests entering each status",
			},
			[]string{"status"},
		),
		pending: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "approval_pending",
				Help:      "Number of pending approval requests",
			},
		),
	}

	registry.MustRegister(am.transitionsTotal, am.pending)
	return am
}

// RecordTransition records a request entering status.
func (am *ApprovalMetrics) RecordTransition(status string) {
	am.transitionsTotal.WithLabelValues(status).Inc()
}

// SetPending updates the pending gauge.
func (am *ApprovalMetrics) SetPending(n int) {
	am.pending.Set(float64(n))
}
