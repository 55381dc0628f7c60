package metrics

import (
	"time"

	"mercator-hq/agentgov/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// EvaluationMetrics tracks metrics related to action evaluation.
//
// Metrics:
//   - agentgov_governance_evaluations_total: Evaluations by status and risk level
//   - agentgov_governance_evaluation_duration_seconds: Evaluation duration
//   - agentgov_governance_rule_hits_total: Number of times a rule matched
type EvaluationMetrics struct {
	evaluationsTotal   *prometheus.CounterVec
	evaluationDuration *prometheus.HistogramVec
	ruleHitsTotal      *prometheus.CounterVec
}

// NewEvaluationMetrics creates and registers evaluation metrics with the provided registry.
func NewEvaluationMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *EvaluationMetrics {
	em := &EvaluationMetrics{
		evaluationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "evaluations_total",
				Help:      "Total number of agent action evaluations",
			},
			[]string{"status", "risk_level"},
		),

		evaluationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "evaluation_duration_seconds",
				Help:      "Duration of agent action evaluation in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.000001, 2, 15), // 1µs to 16ms
			},
			[]string{"status"},
		),

		ruleHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "rule_hits_total",
				Help:      "Total number of rule matches",
			},
			[]string{"rule_id"},
		),
	}

	registry.MustRegister(
		em.evaluationsTotal,
		em.evaluationDuration,
		em.ruleHitsTotal,
	)

	return em
}

// RecordEvaluation records an evaluation and its duration.
func (em *EvaluationMetrics) RecordEvaluation(status, riskLevel string, duration time.Duration) {
	em.evaluationsTotal.WithLabelValues(status, riskLevel).Inc()
	em.evaluationDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordHit records that a rule's conditions were satisfied.
func (em *EvaluationMetrics) RecordHit(ruleID string) {
	em.ruleHitsTotal.WithLabelValues(ruleID).Inc()
}
