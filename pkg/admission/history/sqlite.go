package history

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// SQLiteBackend implements Backend using SQLite for durable decision
// history. Suitable for single-instance deployments that want the audit
// trail to survive restarts.
//
// The database uses a write-ahead log for better concurrent read
// performance. SQLite supports a single writer, so the connection pool is
// capped at one connection.
type SQLiteBackend struct {
	db        *sql.DB
	dbPath    string
	closeOnce sync.Once

	recordStmt  *sql.Stmt
	cleanupStmt *sql.Stmt
}

// SQLiteBackendConfig configures the SQLite backend.
type SQLiteBackendConfig struct {
	// DBPath is the path to the SQLite database file.
	DBPath string

	// BusyTimeout is how long to wait for locks before failing.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// NewSQLiteBackend creates a SQLite backend with default settings.
func NewSQLiteBackend(dbPath string) (*SQLiteBackend, error) {
	return NewSQLiteBackendWithConfig(SQLiteBackendConfig{DBPath: dbPath})
}

// NewSQLiteBackendWithConfig creates a SQLite backend with custom
// configuration.
func NewSQLiteBackendWithConfig(cfg SQLiteBackendConfig) (*SQLiteBackend, error) {
	if cfg.DBPath == "" {
		return nil, fmt.Errorf("db path cannot be empty")
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5 * time.Second
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=%d&_synchronous=NORMAL",
		cfg.DBPath, int(cfg.BusyTimeout.Milliseconds()))

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	backend := &SQLiteBackend{
		db:     db,
		dbPath: cfg.DBPath,
	}

	if err := backend.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	if err := backend.prepareStatements(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}

	return backend, nil
}

// initSchema creates the decisions table if it doesn't exist.
func (s *SQLiteBackend) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS decisions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp INTEGER NOT NULL,
		provider TEXT NOT NULL,
		request_id TEXT NOT NULL,
		user_id TEXT,
		allowed INTEGER NOT NULL,
		reason TEXT,
		estimated_tokens INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_decisions_timestamp ON decisions(timestamp);
	CREATE INDEX IF NOT EXISTS idx_decisions_provider ON decisions(provider, timestamp);
	`
	_, err := s.db.Exec(schema)
	return err
}

// prepareStatements pre-compiles the hot-path statements.
func (s *SQLiteBackend) prepareStatements() error {
	var err error

	s.recordStmt, err = s.db.Prepare(`
		INSERT INTO decisions (timestamp, provider, request_id, user_id, allowed, reason, estimated_tokens)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare record: %w", err)
	}

	s.cleanupStmt, err = s.db.Prepare(`DELETE FROM decisions WHERE timestamp < ?`)
	if err != nil {
		return fmt.Errorf("prepare cleanup: %w", err)
	}

	return nil
}

// Record implements Backend.
func (s *SQLiteBackend) Record(ctx context.Context, decision *Decision) error {
	allowed := 0
	if decision.Allowed {
		allowed = 1
	}

	_, err := s.recordStmt.ExecContext(ctx,
		decision.Timestamp.UnixMilli(),
		decision.Provider,
		decision.RequestID,
		decision.UserID,
		allowed,
		decision.Reason,
		decision.EstimatedTokens,
	)
	if err != nil {
		return newStorageError("sqlite", "record", err)
	}
	return nil
}

// List implements Backend.
func (s *SQLiteBackend) List(ctx context.Context, provider string, since time.Time) ([]*Decision, error) {
	query := `
		SELECT timestamp, provider, request_id, user_id, allowed, reason, estimated_tokens
		FROM decisions
		WHERE timestamp >= ?`
	args := []interface{}{since.UnixMilli()}
	if provider != "" {
		query += ` AND provider = ?`
		args = append(args, provider)
	}
	query += ` ORDER BY timestamp DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, newStorageError("sqlite", "list", err)
	}
	defer rows.Close()

	var out []*Decision
	for rows.Next() {
		var d Decision
		var ts int64
		var allowed int
		var userID, reason sql.NullString

		if err := rows.Scan(&ts, &d.Provider, &d.RequestID, &userID, &allowed, &reason, &d.EstimatedTokens); err != nil {
			return nil, newStorageError("sqlite", "list", err)
		}
		d.Timestamp = time.UnixMilli(ts)
		d.Allowed = allowed == 1
		d.UserID = userID.String
		d.Reason = reason.String
		out = append(out, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, newStorageError("sqlite", "list", err)
	}
	return out, nil
}

// Cleanup implements Backend.
func (s *SQLiteBackend) Cleanup(ctx context.Context, olderThan time.Time) (int, error) {
	result, err := s.cleanupStmt.ExecContext(ctx, olderThan.UnixMilli())
	if err != nil {
		return 0, newStorageError("sqlite", "cleanup", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, newStorageError("sqlite", "cleanup", err)
	}
	return int(deleted), nil
}

// Close implements Backend.
func (s *SQLiteBackend) Close() error {
	var err error
	s.closeOnce.Do(func() {
		if s.recordStmt != nil {
			s.recordStmt.Close()
		}
		if s.cleanupStmt != nil {
			s.cleanupStmt.Close()
		}
		err = s.db.Close()
	})
	return err
}
