// Package secrets resolves ${secret:name} references from environment
// variables and secret files.
//
// Providers are tried in order; the first that supports a name and returns a
// value wins:
//
//	m := secrets.NewManager(
//	    secrets.NewEnvProvider("AGENTGOV_SECRET_"),
//	    secrets.NewFileProvider("/var/run/secrets/agentgov"),
//	)
//	url, err := m.ResolveReferences(ctx, "https://hooks.example.com/${secret:webhook-token}")
//
// Secret files must be regular files with mode 0600 or 0400. Values are
// never logged.
package secrets

import (
	"context"
	"errors"
)

// ErrNotFound is returned when no provider has the secret.
var ErrNotFound = errors.New("secret not found")

// Provider retrieves secrets from one backend.
type Provider interface {
	// GetSecret returns the value of name or an error wrapping ErrNotFound.
	GetSecret(ctx context.Context, name string) (string, error)

	// Name identifies the provider in errors and logs.
	Name() string

	// Supports reports whether the provider can serve name.
	Supports(name string) bool
}
