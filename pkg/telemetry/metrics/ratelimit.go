package metrics

import (
	"mercator-hq/agentgov/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// RateLimitMetrics tracks rate limiter checks and bucket counts.
type RateLimitMetrics struct {
	checksTotal *prometheus.CounterVec
	hitsTotal   *prometheus.CounterVec
	buckets     prometheus.Gauge
}

// NewRateLimitMetrics creates and registers rate limit metrics.
func NewRateLimitMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *RateLimitMetrics {
	rm := &RateLimitMetrics{
		checksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "ratelimit_checks_total",
				Help:      "Total number of rate limit checks",
			},
			[]string{"limit_id", "result"},
		),
		hitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "ratelimit_hits_total",
				Help:      "Total number of requests denied by a rate limit",
			},
			[]string{"limit_id"},
		),
		buckets: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "ratelimit_buckets",
				Help:      "Number of live rate limit buckets",
			},
		),
	}

	registry.MustRegister(rm.checksTotal, rm.hitsTotal, rm.buckets)
	return rm
}

// RecordCheck records a single limit check.
func (rm *RateLimitMetrics) RecordCheck(limitID string, allowed bool) {
	result := "allowed"
	if !allowed {
		result = "denied"
		rm.hitsTotal.WithLabelValues(limitID).Inc()
	}
	rm.checksTotal.WithLabelValues(limitID, result).Inc()
}

// SetBuckets updates the bucket gauge.
func (rm *RateLimitMetrics) SetBuckets(n int) {
	rm.buckets.Set(float64(n))
}
