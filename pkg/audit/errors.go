package audit

import (
	"errors"
	"fmt"
)

var (
	// ErrStoreUnavailable is returned by stores that cannot accept writes.
	ErrStoreUnavailable = errors.New("audit store unavailable")

	// ErrInvalidCursor is returned when a pagination cursor cannot be decoded.
	ErrInvalidCursor = errors.New("invalid cursor")
)

// StorageError represents an error from the storage backend.
type StorageError struct {
	Backend   string // Storage backend type ("sqlite", "memory")
	Operation string // Operation that failed ("save", "query", "clear", etc.)
	Cause     error  // Underlying error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error [backend=%s, operation=%s]: %v", e.Backend, e.Operation, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *StorageError) Unwrap() error {
	return e.Cause
}

// NewStorageError creates a new StorageError.
func NewStorageError(backend, operation string, cause error) *StorageError {
	return &StorageError{
		Backend:   backend,
		Operation: operation,
		Cause:     cause,
	}
}

// QueryError represents an error during query execution or validation.
type QueryError struct {
	Filter *Filter // Filter that failed
	Cause  error   // Underlying error
}

// Error implements the error interface.
func (e *QueryError) Error() string {
	return fmt.Sprintf("query error: %v", e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *QueryError) Unwrap() error {
	return e.Cause
}

// NewQueryError creates a new QueryError.
func NewQueryError(filter *Filter, cause error) *QueryError {
	return &QueryError{
		Filter: filter,
		Cause:  cause,
	}
}

// ExportError represents an error during event export.
type ExportError struct {
	Format     string // Export format ("json", "csv")
	EventCount int    // Number of events being exported
	Cause      error  // Underlying error
}

// Error implements the error interface.
func (e *ExportError) Error() string {
	return fmt.Sprintf("export error [format=%s, event_count=%d]: %v", e.Format, e.EventCount, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *ExportError) Unwrap() error {
	return e.Cause
}

// NewExportError creates a new ExportError.
func NewExportError(format string, eventCount int, cause error) *ExportError {
	return &ExportError{
		Format:     format,
		EventCount: eventCount,
		Cause:      cause,
	}
}
