package metrics

import (
	"time"

	"mercator-hq/agentgov/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// WebhookMetrics tracks audit webhook deliveries.
type WebhookMetrics struct {
	deliveriesTotal  *prometheus.CounterVec
	deliveryDuration prometheus.Histogram
}

// NewWebhookMetrics creates and registers webhook metrics.
func NewWebhookMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *WebhookMetrics {
	wm := &WebhookMetrics{
		deliveriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "webhook_deliveries_total",
				Help:      "Total number of webhook deliveries",
			},
			[]string{"event_type", "result"},
		),
		deliveryDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "webhook_delivery_duration_seconds",
				Help:      "Webhook delivery duration including retries",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
			},
		),
	}

	registry.MustRegister(wm.deliveriesTotal, wm.deliveryDuration)
	return wm
}

// RecordDelivery records one delivery.
func (wm *WebhookMetrics) RecordDelivery(eventType string, success bool, duration time.Duration) {
	result := "success"
	if !success {
		result = "failure"
	}
	wm.deliveriesTotal.WithLabelValues(eventType, result).Inc()
	wm.deliveryDuration.Observe(duration.Seconds())
}
