package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"mercator-hq/agentgov/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// Helper function to create test config
func testConfig() *config.MetricsConfig {
	return &config.MetricsConfig{
		Enabled:   true,
		Namespace: "test",
		Subsystem: "metrics",
	}
}

func TestCollector_NewCollector(t *testing.T) {
	cfg := testConfig()
	registry := prometheus.NewRegistry()

	collector := NewCollector(cfg, registry)

	if collector == nil {
		t.Fatal("Expected non-nil collector")
	}
	if collector.config != cfg {
		t.Error("Collector config not set correctly")
	}
	if collector.Registry() != registry {
		t.Error("Collector registry not set correctly")
	}
}

func TestCollector_Defaults(t *testing.T) {
	cfg := &config.MetricsConfig{Enabled: true}
	NewCollector(cfg, nil)

	if cfg.Namespace != config.DefaultMetricsNamespace {
		t.Errorf("Expected namespace %q, got %q", config.DefaultMetricsNamespace, cfg.Namespace)
	}
	if cfg.Subsystem != config.DefaultMetricsSubsystem {
		t.Errorf("Expected subsystem %q, got %q", config.DefaultMetricsSubsystem, cfg.Subsystem)
	}
}

func TestCollector_RecordEvaluation(t *testing.T) {
	collector := NewCollector(testConfig(), prometheus.NewRegistry())

	tests := []struct {
		status    string
		riskLevel string
	}{
		{"allowed", "minimal"},
		{"denied", "high"},
		{"denied", "high"},
		{"pending_approval", "medium"},
	}
	for _, tt := range tests {
		collector.RecordEvaluation(tt.status, tt.riskLevel, time.Millisecond)
	}

	got := testutil.ToFloat64(collector.evaluationMetrics.evaluationsTotal.WithLabelValues("denied", "high"))
	if got != 2 {
		t.Errorf("Expected 2 denied/high evaluations, got %v", got)
	}
	got = testutil.ToFloat64(collector.evaluationMetrics.evaluationsTotal.WithLabelValues("allowed", "minimal"))
	if got != 1 {
		t.Errorf("Expected 1 allowed/minimal evaluation, got %v", got)
	}
}

func TestCollector_RecordRuleHit(t *testing.T) {
	collector := NewCollector(testConfig(), prometheus.NewRegistry())

	collector.RecordRuleHit("deny-bulk-delete")
	collector.RecordRuleHit("deny-bulk-delete")

	got := testutil.ToFloat64(collector.evaluationMetrics.ruleHitsTotal.WithLabelValues("deny-bulk-delete"))
	if got != 2 {
		t.Errorf("Expected 2 hits, got %v", got)
	}
}

func TestCollector_RateLimit(t *testing.T) {
	collector := NewCollector(testConfig(), prometheus.NewRegistry())

	collector.RecordRateLimitCheck("per-agent", true)
	collector.RecordRateLimitCheck("per-agent", false)
	collector.SetRateLimitBuckets(4)

	if got := testutil.ToFloat64(collector.rateLimitMetrics.hitsTotal.WithLabelValues("per-agent")); got != 1 {
		t.Errorf("Expected 1 rate limit hit, got %v", got)
	}
	if got := testutil.ToFloat64(collector.rateLimitMetrics.checksTotal.WithLabelValues("per-agent", "allowed")); got != 1 {
		t.Errorf("Expected 1 allowed check, got %v", got)
	}
	if got := testutil.ToFloat64(collector.rateLimitMetrics.buckets); got != 4 {
		t.Errorf("Expected 4 buckets, got %v", got)
	}
}

func TestCollector_Audit(t *testing.T) {
	collector := NewCollector(testConfig(), prometheus.NewRegistry())

	collector.RecordAuditWrite("action_evaluated", true)
	collector.RecordAuditWrite("action_evaluated", false)
	collector.RecordAuditForcedAdmission()
	collector.SetAuditRetryQueue(3)
	collector.SetAuditCacheSize(10)
	collector.RecordAuditSync(2, 1)

	am := collector.auditMetrics
	if got := testutil.ToFloat64(am.writesTotal.WithLabelValues("action_evaluated", "failure")); got != 1 {
		t.Errorf("Expected 1 failed write, got %v", got)
	}
	if got := testutil.ToFloat64(am.forcedAdmissionTotal); got != 1 {
		t.Errorf("Expected 1 forced admission, got %v", got)
	}
	if got := testutil.ToFloat64(am.retryQueue); got != 3 {
		t.Errorf("Expected retry queue 3, got %v", got)
	}
	if got := testutil.ToFloat64(am.cacheSize); got != 10 {
		t.Errorf("Expected cache size 10, got %v", got)
	}
	if got := testutil.ToFloat64(am.syncTotal.WithLabelValues("to_store")); got != 2 {
		t.Errorf("Expected 2 events pushed, got %v", got)
	}
}

func TestCollector_ApprovalAndWebhook(t *testing.T) {
	collector := NewCollector(testConfig(), prometheus.NewRegistry())

	collector.RecordApprovalTransition("approved")
	collector.SetPendingApprovals(2)
	collector.RecordWebhookDelivery("action_evaluated", false, 20*time.Millisecond)

	if got := testutil.ToFloat64(collector.approvalMetrics.transitionsTotal.WithLabelValues("approved")); got != 1 {
		t.Errorf("Expected 1 approved transition, got %v", got)
	}
	if got := testutil.ToFloat64(collector.approvalMetrics.pending); got != 2 {
		t.Errorf("Expected 2 pending, got %v", got)
	}
	if got := testutil.ToFloat64(collector.webhookMetrics.deliveriesTotal.WithLabelValues("action_evaluated", "failure")); got != 1 {
		t.Errorf("Expected 1 failed delivery, got %v", got)
	}
}

func TestCollector_Disabled(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false
	collector := NewCollector(cfg, prometheus.NewRegistry())

	collector.RecordRuleHit("r1")
	collector.SetPendingApprovals(5)

	if got := testutil.ToFloat64(collector.evaluationMetrics.ruleHitsTotal.WithLabelValues("r1")); got != 0 {
		t.Errorf("Expected no hits when disabled, got %v", got)
	}
	if got := testutil.ToFloat64(collector.approvalMetrics.pending); got != 0 {
		t.Errorf("Expected pending gauge untouched, got %v", got)
	}
}

func TestCollector_NilSafe(t *testing.T) {
	var collector *Collector
	collector.RecordEvaluation("allowed", "minimal", time.Millisecond)
	collector.RecordAuditForcedAdmission()
}

func TestCardinalityLimiter(t *testing.T) {
	cl := NewCardinalityLimiter(2)

	if !cl.Allow("a") || !cl.Allow("b") {
		t.Fatal("Expected first two label sets to be allowed")
	}
	if cl.Allow("c") {
		t.Error("Expected third label set to be rejected")
	}
	if !cl.Allow("a") {
		t.Error("Expected existing label set to remain allowed")
	}
	if cl.Count() != 2 {
		t.Errorf("Expected count 2, got %d", cl.Count())
	}
}

func TestCollector_Handler(t *testing.T) {
	collector := NewCollector(testConfig(), prometheus.NewRegistry())
	collector.RecordRuleHit("deny-bulk-delete")

	rec := httptest.NewRecorder()
	collector.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "test_metrics_rule_hits_total") {
		t.Errorf("Expected rule hits metric in output, got:\n%s", rec.Body.String())
	}
}
