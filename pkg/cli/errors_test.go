package cli

import (
	"errors"
	"fmt"
	"testing"
)

func TestConfigError(t *testing.T) {
	cause := errors.New("missing required field")
	tests := []struct {
		name string
		err  *ConfigError
		want string
	}{
		{"with path", NewConfigError("agentgov.yaml", cause), "config error in agentgov.yaml: missing required field"},
		{"without path", NewConfigError("", cause), "config error: missing required field"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Error() != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, tt.err.Error())
			}
			if !errors.Is(tt.err, cause) {
				t.Error("Expected errors.Is to reach the cause")
			}
		})
	}
}

func TestCommandError(t *testing.T) {
	cause := errors.New("store closed")
	err := NewCommandError("audit query", cause)

	if err.Error() != "audit query: store closed" {
		t.Errorf("Expected %q, got %q", "audit query: store closed", err.Error())
	}
	if !errors.Is(err, cause) {
		t.Error("Expected errors.Is to reach the cause")
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitOK},
		{"plain", errors.New("boom"), ExitFailure},
		{"command", NewCommandError("run", errors.New("boom")), ExitFailure},
		{"config", NewConfigError("x.yaml", errors.New("bad")), ExitConfig},
		{"wrapped config", fmt.Errorf("run: %w", NewConfigError("", errors.New("bad"))), ExitConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.want {
				t.Errorf("Expected %d, got %d", tt.want, got)
			}
		})
	}
}
