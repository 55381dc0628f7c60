package secrets

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileProvider reads one secret per file from a directory, the layout used
// by mounted Kubernetes secrets.
type FileProvider struct {
	BasePath string
}

// NewFileProvider creates a file provider rooted at basePath.
func NewFileProvider(basePath string) *FileProvider {
	return &FileProvider{BasePath: basePath}
}

func (p *FileProvider) GetSecret(_ context.Context, name string) (string, error) {
	if !p.Supports(name) {
		return "", fmt.Errorf("invalid secret name %q", name)
	}
	path := filepath.Join(p.BasePath, name)

	info, err := os.Lstat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s (file %s)", ErrNotFound, name, path)
		}
		return "", fmt.Errorf("failed to stat secret file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("secret path is not a regular file: %s", name)
	}
	if mode := info.Mode().Perm(); mode != 0o600 && mode != 0o400 {
		return "", fmt.Errorf("insecure permissions on %s: %o (expected 0600 or 0400)", path, mode)
	}

	// #nosec G304 - name is a single path element under BasePath
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read secret file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

func (p *FileProvider) Name() string { return "file" }

// Supports rejects names that would escape BasePath.
func (p *FileProvider) Supports(name string) bool {
	return name != "" && name != "." && name != ".." &&
		!strings.ContainsAny(name, `/\`) && filepath.Base(name) == name
}
