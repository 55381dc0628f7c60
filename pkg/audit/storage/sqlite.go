package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"

	"mercator-hq/agentgov/pkg/audit"
	"mercator-hq/agentgov/pkg/config"
)

// Driver names accepted by SQLiteConfig.Driver.
const (
	// DriverCGO is github.com/mattn/go-sqlite3.
	DriverCGO = "sqlite3"
	// DriverPureGo is modernc.org/sqlite.
	DriverPureGo = "sqlite"
)

// SQLiteConfig contains configuration for the SQLite storage backend.
type SQLiteConfig struct {
	// Path is the database file path.
	Path string

	// Driver selects the database/sql driver: "sqlite3" or "sqlite".
	// Default: "sqlite3"
	Driver string

	// MaxOpenConns is the maximum number of open connections to the database.
	// Default: 10
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections.
	// Default: 5
	MaxIdleConns int

	// WALMode enables Write-Ahead Logging mode for better concurrency.
	// Default: true
	WALMode bool

	// BusyTimeout is the duration to wait when the database is locked.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// DefaultSQLiteConfig returns the default SQLite configuration.
func DefaultSQLiteConfig() *SQLiteConfig {
	return &SQLiteConfig{
		Path:         config.DefaultStoragePath,
		Driver:       DriverCGO,
		MaxOpenConns: config.DefaultStorageMaxOpenConns,
		MaxIdleConns: config.DefaultStorageMaxIdleConns,
		WALMode:      true,
		BusyTimeout:  config.DefaultStorageBusyTimeout,
	}
}

// SQLiteConfigFrom converts the storage section of the application config.
func SQLiteConfigFrom(cfg config.StorageConfig) *SQLiteConfig {
	return &SQLiteConfig{
		Path:         cfg.Path,
		Driver:       cfg.Driver,
		MaxOpenConns: cfg.MaxOpenConns,
		MaxIdleConns: cfg.MaxIdleConns,
		WALMode:      cfg.WALMode,
		BusyTimeout:  cfg.BusyTimeout,
	}
}

// SQLiteStore implements audit.Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	config *SQLiteConfig
	logger *slog.Logger
}

// NewSQLiteStore opens the database, enables WAL mode if configured and
// creates the schema.
func NewSQLiteStore(cfg *SQLiteConfig, logger *slog.Logger) (*SQLiteStore, error) {
	if cfg == nil {
		cfg = DefaultSQLiteConfig()
	}
	if cfg.Driver == "" {
		cfg.Driver = DriverCGO
	}
	if cfg.Driver != DriverCGO && cfg.Driver != DriverPureGo {
		return nil, audit.NewStorageError("sqlite", "open", fmt.Errorf("unsupported driver %q", cfg.Driver))
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "audit.storage.sqlite")

	db, err := sql.Open(cfg.Driver, cfg.Path)
	if err != nil {
		return nil, audit.NewStorageError("sqlite", "open", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}

	s := &SQLiteStore{
		db:     db,
		config: cfg,
		logger: logger,
	}

	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("SQLite audit store initialized",
		"path", cfg.Path,
		"driver", cfg.Driver,
		"wal_mode", cfg.WALMode,
		"max_open_conns", cfg.MaxOpenConns,
	)

	return s, nil
}

// initialize sets up the database schema and enables WAL mode.
func (s *SQLiteStore) initialize() error {
	if s.config.WALMode {
		if _, err := s.db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
			return audit.NewStorageError("sqlite", "enable_wal", err)
		}
		s.logger.Debug("WAL mode enabled")
	}

	if s.config.BusyTimeout > 0 {
		busyTimeoutMs := s.config.BusyTimeout.Milliseconds()
		if _, err := s.db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d;", busyTimeoutMs)); err != nil {
			return audit.NewStorageError("sqlite", "set_busy_timeout", err)
		}
	}

	if _, err := s.db.Exec(Schema); err != nil {
		return audit.NewStorageError("sqlite", "create_schema", err)
	}

	if _, err := s.db.Exec(InsertSchemaVersion, SchemaVersion); err != nil {
		return audit.NewStorageError("sqlite", "insert_schema_version", err)
	}

	var version int
	err := s.db.QueryRow(GetSchemaVersion).Scan(&version)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return audit.NewStorageError("sqlite", "get_schema_version", err)
	}
	if version != SchemaVersion {
		return audit.NewStorageError("sqlite", "schema_version_mismatch",
			fmt.Errorf("expected schema version %d, got %d", SchemaVersion, version))
	}

	s.logger.Debug("schema version verified", "version", version)
	return nil
}

// Save persists an event. Duplicate event ids are ignored.
func (s *SQLiteStore) Save(ctx context.Context, event *audit.Event) error {
	query := `INSERT OR IGNORE INTO audit_events (` + eventColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		event.EventID, event.EventType, event.Action,
		event.Timestamp.UnixNano(), string(event.Outcome),
		event.AgentID, event.SessionID, event.UserID, event.RiskLevel,
		audit.EncodeMap(event.Details), audit.EncodeMap(event.Metadata),
		event.CorrelationID, event.ParentEventID,
	)
	if err != nil {
		return audit.NewStorageError("sqlite", "save", err)
	}
	return nil
}

// Query retrieves events matching the filter.
func (s *SQLiteStore) Query(ctx context.Context, filter *audit.Filter) ([]*audit.Event, error) {
	if filter == nil {
		filter = &audit.Filter{}
	}

	whereClause, args := buildWhereClause(filter, true)

	sqlQuery := "SELECT " + eventColumns + " FROM audit_events"
	if whereClause != "" {
		sqlQuery += " WHERE " + whereClause
	}

	if filter.Descending() {
		sqlQuery += " ORDER BY timestamp DESC, event_id DESC"
	} else {
		sqlQuery += " ORDER BY timestamp ASC, event_id ASC"
	}

	// SQLite requires LIMIT when OFFSET is present; -1 means no limit.
	if filter.Limit > 0 || filter.Offset > 0 {
		limit := -1
		if filter.Limit > 0 {
			limit = filter.Limit
		}
		sqlQuery += " LIMIT ? OFFSET ?"
		args = append(args, limit, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, audit.NewStorageError("sqlite", "query", err)
	}
	defer rows.Close()

	events := []*audit.Event{}
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, audit.NewStorageError("sqlite", "scan", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, audit.NewStorageError("sqlite", "query", err)
	}

	return events, nil
}

// Count returns the number of events matching the filter.
func (s *SQLiteStore) Count(ctx context.Context, filter *audit.Filter) (int64, error) {
	if filter == nil {
		filter = &audit.Filter{}
	}

	whereClause, args := buildWhereClause(filter, false)

	sqlQuery := "SELECT COUNT(*) FROM audit_events"
	if whereClause != "" {
		sqlQuery += " WHERE " + whereClause
	}

	var count int64
	if err := s.db.QueryRowContext(ctx, sqlQuery, args...).Scan(&count); err != nil {
		return 0, audit.NewStorageError("sqlite", "count", err)
	}
	return count, nil
}

// Clear deletes every event.
func (s *SQLiteStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM audit_events"); err != nil {
		return audit.NewStorageError("sqlite", "clear", err)
	}
	s.logger.Warn("audit store cleared")
	return nil
}

// Close releases resources held by the store.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return audit.NewStorageError("sqlite", "close", err)
	}
	s.logger.Info("SQLite audit store closed")
	return nil
}

// buildWhereClause translates a filter into a parameterised WHERE clause
// (without the keyword). The keyset bound is included only when withKeyset
// is set.
func buildWhereClause(f *audit.Filter, withKeyset bool) (string, []any) {
	var conditions []string
	var args []any

	in := func(column string, values []string) {
		if len(values) == 0 {
			return
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(values)), ", ")
		conditions = append(conditions, fmt.Sprintf("%s IN (%s)", column, placeholders))
		for _, v := range values {
			args = append(args, v)
		}
	}

	in("event_type", f.EventTypes)
	in("agent_id", f.AgentIDs)
	in("session_id", f.SessionIDs)
	in("user_id", f.UserIDs)
	in("risk_level", f.RiskLevels)

	if len(f.Outcomes) > 0 {
		outcomes := make([]string, len(f.Outcomes))
		for i, o := range f.Outcomes {
			outcomes[i] = string(o)
		}
		in("outcome", outcomes)
	}

	if f.StartTime != nil {
		conditions = append(conditions, "timestamp >= ?")
		args = append(args, f.StartTime.UnixNano())
	}
	if f.EndTime != nil {
		conditions = append(conditions, "timestamp <= ?")
		args = append(args, f.EndTime.UnixNano())
	}

	if f.CorrelationID != "" {
		conditions = append(conditions, "correlation_id = ?")
		args = append(args, f.CorrelationID)
	}

	// instr is case sensitive, matching strings.Contains.
	if f.ActionContains != "" {
		conditions = append(conditions, "instr(action, ?) > 0")
		args = append(args, f.ActionContains)
	}
	if f.MetadataContains != "" {
		conditions = append(conditions, "instr(metadata, ?) > 0")
		args = append(args, f.MetadataContains)
	}
	if f.DetailsContains != "" {
		conditions = append(conditions, "instr(details, ?) > 0")
		args = append(args, f.DetailsContains)
	}

	if withKeyset && f.After != nil {
		op := ">"
		if f.Descending() {
			op = "<"
		}
		ts := f.After.Timestamp.UnixNano()
		conditions = append(conditions,
			fmt.Sprintf("(timestamp %s ? OR (timestamp = ? AND event_id %s ?))", op, op))
		args = append(args, ts, ts, f.After.EventID)
	}

	return strings.Join(conditions, " AND "), args
}

// scanEvent scans a database row into an Event.
func scanEvent(rows *sql.Rows) (*audit.Event, error) {
	var e audit.Event
	var ts int64
	var outcome, details, metadata string

	err := rows.Scan(
		&e.EventID, &e.EventType, &e.Action, &ts, &outcome,
		&e.AgentID, &e.SessionID, &e.UserID, &e.RiskLevel,
		&details, &metadata,
		&e.CorrelationID, &e.ParentEventID,
	)
	if err != nil {
		return nil, err
	}

	e.Timestamp = time.Unix(0, ts).UTC()
	e.Outcome = audit.Outcome(outcome)

	if e.Details, err = audit.DecodeMap(details); err != nil {
		return nil, fmt.Errorf("decode details of %s: %w", e.EventID, err)
	}
	if e.Metadata, err = audit.DecodeMap(metadata); err != nil {
		return nil, fmt.Errorf("decode metadata of %s: %w", e.EventID, err)
	}

	return &e, nil
}
