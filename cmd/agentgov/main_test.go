package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"mercator-hq/agentgov/pkg/audit/query"
	"mercator-hq/agentgov/pkg/cli"
	"mercator-hq/agentgov/pkg/config"
	"mercator-hq/agentgov/pkg/rules"
	"mercator-hq/agentgov/pkg/server"
	"mercator-hq/agentgov/pkg/telemetry/health"
	"mercator-hq/agentgov/pkg/telemetry/metrics"
)

// resetFlags restores every flag to its default between executions.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

// writeConfig writes a config backed by a pure-Go SQLite store in a temp dir.
func writeConfig(t *testing.T, extra string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "agentgov.yaml")
	data := `
audit:
  storage:
    backend: sqlite
    driver: sqlite
    path: ` + filepath.Join(dir, "audit.db") + `
telemetry:
  logging:
    level: error
` + extra
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version failed: %v", err)
	}
	if !strings.Contains(out, "Agentgov "+Version) || !strings.Contains(out, "Go Version:") {
		t.Errorf("Unexpected version output %q", out)
	}
}

func TestEvaluateThenQuery(t *testing.T) {
	cfg := writeConfig(t, "")

	out, err := execute(t, "evaluate", "-c", cfg, "--name", "delete_records", "--category", "data_modification", "--agent", "agent-7")
	if err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}
	if !strings.Contains(out, "denied") || !strings.Contains(out, "deny-bulk-delete") {
		t.Errorf("Expected denied decision, got:\n%s", out)
	}

	out, err = execute(t, "audit", "query", "-c", cfg, "--type", "action_evaluated", "--format", "json")
	if err != nil {
		t.Fatalf("audit query failed: %v", err)
	}
	var page query.Page
	if err := json.Unmarshal([]byte(out), &page); err != nil {
		t.Fatalf("Invalid JSON output: %v\n%s", err, out)
	}
	if len(page.Events) != 1 || page.Events[0].AgentID != "agent-7" {
		t.Fatalf("Expected one event for agent-7, got %+v", page.Events)
	}

	out, err = execute(t, "audit", "stats", "-c", cfg, "--group-by", "outcome")
	if err != nil {
		t.Fatalf("audit stats failed: %v", err)
	}
	if !strings.Contains(out, "failure") {
		t.Errorf("Expected failure group, got:\n%s", out)
	}

	exportPath := filepath.Join(t.TempDir(), "audit.csv")
	if _, err := execute(t, "audit", "export", "-c", cfg, "--format", "csv", "-o", exportPath); err != nil {
		t.Fatalf("audit export failed: %v", err)
	}
	data, err := os.ReadFile(exportPath)
	if err != nil {
		t.Fatalf("Failed to read export: %v", err)
	}
	if !strings.Contains(string(data), "delete_records") {
		t.Errorf("Expected exported event, got:\n%s", data)
	}

	out, err = execute(t, "audit", "sync", "-c", cfg, "--format", "json")
	if err != nil {
		t.Fatalf("audit sync failed: %v", err)
	}
	if !strings.Contains(out, `"in_sync": true`) {
		t.Errorf("Expected in-sync status, got:\n%s", out)
	}
}

func TestEvaluate_InvalidParam(t *testing.T) {
	_, err := execute(t, "evaluate", "--name", "send_email", "--param", "novalue")
	if err == nil || !strings.Contains(err.Error(), "key=value") {
		t.Errorf("Expected param error, got %v", err)
	}
}

func TestEvaluate_FromStdin(t *testing.T) {
	cfg := writeConfig(t, "")
	rootCmd.SetIn(strings.NewReader(`{"action": {"name": "run_script", "category": "code_execution"}}`))
	defer rootCmd.SetIn(nil)

	out, err := execute(t, "evaluate", "-c", cfg, "--file", "-", "--format", "json")
	if err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}
	var result rules.EvaluationResult
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("Invalid JSON output: %v", err)
	}
	if result.Status != rules.StatusPendingApproval {
		t.Errorf("Expected pending_approval, got %s", result.Status)
	}
}

func TestRulesLint(t *testing.T) {
	dir := t.TempDir()
	conflicting := filepath.Join(dir, "conflict.yaml")
	os.WriteFile(conflicting, []byte(`
rules:
  - id: deny-bulk-delete
    name: Duplicate of the baseline rule
    priority: 500
    actions:
      - type: log
`), 0o600)

	tests := []struct {
		name    string
		args    []string
		wantErr bool
		output  string
	}{
		{"baseline preset", []string{"rules", "lint", "--preset", "baseline", "--no-lint"}, false, "0 error(s)"},
		{"duplicate id", []string{"rules", "lint", conflicting, "--preset", "baseline"}, true, "duplicate_id"},
		{"nothing to lint", []string{"rules", "lint"}, true, ""},
		{"unknown preset", []string{"rules", "lint", "--preset", "nope"}, true, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, tt.args...)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Expected error %v, got %v\n%s", tt.wantErr, err, out)
			}
			if !strings.Contains(out, tt.output) {
				t.Errorf("Expected output containing %q, got:\n%s", tt.output, out)
			}
		})
	}
}

func TestRulesPresetsAndShow(t *testing.T) {
	out, err := execute(t, "rules", "presets")
	if err != nil {
		t.Fatalf("rules presets failed: %v", err)
	}
	for _, name := range rules.PresetNames() {
		if !strings.Contains(out, name) {
			t.Errorf("Expected preset %s listed, got:\n%s", name, out)
		}
	}

	out, err = execute(t, "rules", "show", "baseline")
	if err != nil {
		t.Fatalf("rules show failed: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) < 2 || !strings.HasPrefix(lines[1], "deny-bulk-delete") {
		t.Errorf("Expected highest priority rule first, got:\n%s", out)
	}
}

func TestRunDryRun(t *testing.T) {
	out, err := execute(t, "run", "-c", writeConfig(t, ""), "--dry-run")
	if err != nil {
		t.Fatalf("run --dry-run failed: %v", err)
	}
	if !strings.Contains(out, "Configuration valid") {
		t.Errorf("Unexpected output %q", out)
	}
}

func TestInvalidConfigExitCode(t *testing.T) {
	path := writeConfig(t, "rate_limits:\n  - id: broken\n    window: -1s\n")
	_, err := execute(t, "run", "-c", path, "--dry-run")
	if cli.ExitCode(err) != cli.ExitConfig {
		t.Errorf("Expected config exit code, got %d (%v)", cli.ExitCode(err), err)
	}
}

func TestObservabilityServer(t *testing.T) {
	cfg := config.NewDefaultConfig()
	cfg.Telemetry.Metrics.Namespace = "obs"

	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, prometheus.NewRegistry())
	collector.RecordEvaluation("allowed", "low", time.Millisecond)
	checker := health.New(time.Second)
	checker.Register("noop", func(context.Context) error { return nil })

	srv := newObservabilityServer(cfg, collector, checker, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	tests := []struct {
		path     string
		status   int
		contains string
	}{
		{"/health", http.StatusOK, `"status"`},
		{"/ready", http.StatusOK, `"noop"`},
		{"/version", http.StatusOK, Version},
		{cfg.Telemetry.Metrics.Path, http.StatusOK, "obs_"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, err := http.Get(ts.URL + tt.path)
			if err != nil {
				t.Fatalf("GET failed: %v", err)
			}
			defer resp.Body.Close()
			body, _ := io.ReadAll(resp.Body)

			if resp.StatusCode != tt.status {
				t.Errorf("Expected status %d, got %d", tt.status, resp.StatusCode)
			}
			if !strings.Contains(string(body), tt.contains) {
				t.Errorf("Expected body to contain %q, got %s", tt.contains, body)
			}
			if resp.Header.Get(server.RequestIDHeader) == "" {
				t.Error("Expected request ID header")
			}
		})
	}
}
