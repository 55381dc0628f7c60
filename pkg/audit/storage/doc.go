// Package storage provides audit.Store implementations.
//
// # SQLite
//
// SQLiteStore persists events in a single audit_events table with indexes on
// timestamp, event_type, outcome, correlation_id, agent_id and session_id.
// Details and metadata are stored as JSON text. Two drivers are supported:
//
//   - "sqlite3": github.com/mattn/go-sqlite3 (cgo, default)
//   - "sqlite":  modernc.org/sqlite (pure Go)
//
// Every predicate is bound as a parameter.
//
//	store, err := storage.NewSQLiteStore(&storage.SQLiteConfig{
//	    Path:    "data/audit.db",
//	    Driver:  "sqlite",
//	    WALMode: true,
//	}, logger)
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
// # Memory
//
// MemoryStore is for tests. FailWrites makes it reject saves so the
// recorder's retry queue and forced admission can be exercised.
package storage
