package secrets

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeSecret(t *testing.T, dir, name, value string, mode os.FileMode) {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(value), mode); err != nil {
		t.Fatalf("Failed to write secret: %v", err)
	}
	if err := os.Chmod(path, mode); err != nil {
		t.Fatalf("Failed to chmod secret: %v", err)
	}
}

func TestEnvProvider(t *testing.T) {
	t.Setenv("AGENTGOV_SECRET_WEBHOOK_TOKEN", "tok-123")
	p := NewEnvProvider("AGENTGOV_SECRET_")

	got, err := p.GetSecret(context.Background(), "webhook-token")
	if err != nil || got != "tok-123" {
		t.Errorf("Expected tok-123, got %q, %v", got, err)
	}
	if _, err := p.GetSecret(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestFileProvider(t *testing.T) {
	dir := t.TempDir()
	writeSecret(t, dir, "token", "file-token\n", 0o600)
	writeSecret(t, dir, "readonly", "ro", 0o400)
	writeSecret(t, dir, "open", "leaky", 0o644)
	p := NewFileProvider(dir)

	tests := []struct {
		name    string
		want    string
		wantErr string
	}{
		{"token", "file-token", ""},
		{"readonly", "ro", ""},
		{"open", "", "insecure permissions"},
		{"missing", "", "secret not found"},
		{"../token", "", "invalid secret name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := p.GetSecret(context.Background(), tt.name)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("Expected error containing %q, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("Expected %q, got %q, %v", tt.want, got, err)
			}
		})
	}
}

func TestManager_ResolveReferences(t *testing.T) {
	dir := t.TempDir()
	writeSecret(t, dir, "shared", "from-file", 0o600)
	t.Setenv("TEST_SECRET_SHARED", "from-env")
	t.Setenv("TEST_SECRET_ONLY_ENV", "env-value")

	m := NewManager(NewFileProvider(dir), NewEnvProvider("TEST_SECRET_"))
	ctx := context.Background()

	got, err := m.ResolveReferences(ctx, "Bearer ${secret:shared}/${secret:only-env}")
	if err != nil {
		t.Fatalf("ResolveReferences failed: %v", err)
	}
	if got != "Bearer from-file/env-value" {
		t.Errorf("Expected provider order respected, got %q", got)
	}

	got, err = m.ResolveReferences(ctx, "x-${secret:nowhere}")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if got != "x-${secret:nowhere}" {
		t.Errorf("Expected reference kept, got %q", got)
	}

	if got, err := m.ResolveReferences(ctx, "plain"); err != nil || got != "plain" {
		t.Errorf("Expected plain string unchanged, got %q, %v", got, err)
	}
}

func TestManager_ResolveMap(t *testing.T) {
	t.Setenv("TEST_SECRET_TOKEN", "abc")
	m := NewManager(NewEnvProvider("TEST_SECRET_"))

	in := map[string]string{"Authorization": "Bearer ${secret:token}", "X-Team": "payments"}
	out, err := m.ResolveMap(context.Background(), in)
	if err != nil {
		t.Fatalf("ResolveMap failed: %v", err)
	}
	if out["Authorization"] != "Bearer abc" || out["X-Team"] != "payments" {
		t.Errorf("Unexpected result %v", out)
	}
	if in["Authorization"] != "Bearer ${secret:token}" {
		t.Error("Expected input map untouched")
	}
	if !HasReferences(in["Authorization"]) || HasReferences(out["Authorization"]) {
		t.Error("HasReferences mismatch")
	}
}
