// Package persistence provides SQLite-backed storage for session snapshots,
// letting a planning conversation survive process restarts.
package persistence

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // pure-Go SQLite driver

	"planner/pkg/logx"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id           TEXT PRIMARY KEY,
	current_step TEXT NOT NULL,
	completed    INTEGER NOT NULL DEFAULT 0,
	updated_at   TEXT NOT NULL,
	snapshot     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sessions_updated_at ON sessions(updated_at);
`

// DB is an open session database. It is an explicit handle owned by the
// hosting process, passed to whoever needs it.
type DB struct {
	db     *sql.DB
	logger *logx.Logger
}

// Open opens (or creates) the session database at path and ensures the
// schema exists. WAL mode with a busy timeout keeps concurrent readers from
// tripping over the single writer.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf(
		"file:%s?_journal_mode=WAL&_busy_timeout=5000", path,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	// SQLite supports a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	logger := logx.NewLogger("persistence")
	logger.Info("session database opened at %s", path)
	return &DB{db: db, logger: logger}, nil
}

// Close closes the database.
func (d *DB) Close() error {
	if err := d.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}
