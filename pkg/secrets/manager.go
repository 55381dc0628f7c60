package secrets

import (
	"context"
	"errors"
	"fmt"
	"regexp"
)

var referencePattern = regexp.MustCompile(`\$\{secret:([^}]+)\}`)

// Manager resolves secrets through an ordered list of providers.
type Manager struct {
	providers []Provider
}

// NewManager creates a manager trying providers in order.
func NewManager(providers ...Provider) *Manager {
	return &Manager{providers: providers}
}

// GetSecret returns the value from the first provider that has name.
func (m *Manager) GetSecret(ctx context.Context, name string) (string, error) {
	var errs []error
	for _, p := range m.providers {
		if !p.Supports(name) {
			continue
		}
		value, err := p.GetSecret(ctx, name)
		if err == nil {
			return value, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
	}
	if len(errs) == 0 {
		return "", fmt.Errorf("%w: %s (no provider supports it)", ErrNotFound, name)
	}
	return "", fmt.Errorf("secret %q: %w", name, errors.Join(errs...))
}

// ResolveReferences replaces every ${secret:name} in input. Unresolvable
// references are left in place and reported together.
func (m *Manager) ResolveReferences(ctx context.Context, input string) (string, error) {
	var errs []error
	out := referencePattern.ReplaceAllStringFunc(input, func(match string) string {
		name := referencePattern.FindStringSubmatch(match)[1]
		value, err := m.GetSecret(ctx, name)
		if err != nil {
			errs = append(errs, err)
			return match
		}
		return value
	})
	return out, errors.Join(errs...)
}

// ResolveMap resolves references in every value of in and returns a new map.
func (m *Manager) ResolveMap(ctx context.Context, in map[string]string) (map[string]string, error) {
	if in == nil {
		return nil, nil
	}
	out := make(map[string]string, len(in))
	var errs []error
	for k, v := range in {
		resolved, err := m.ResolveReferences(ctx, v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", k, err))
		}
		out[k] = resolved
	}
	return out, errors.Join(errs...)
}

// HasReferences reports whether s contains a ${secret:...} reference.
func HasReferences(s string) bool {
	return referencePattern.MatchString(s)
}
