// Package state provides SQLite-based session persistence for cascade.
// It stores the full task tree for every session (tasks, worker
// assignments, tier results, and synthesis artifacts), sufficient to
// reconstruct the orchestrator's in-memory state after a restart.
package state

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// DB wraps an SQLite connection with cascade-specific operations.
type DB struct {
	conn *sql.DB
	path string
	mu   sync.RWMutex
}

// GlobalDBPath returns the path to the global cascade database.
func GlobalDBPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		home, _ := os.UserHomeDir()
		dataDir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataDir, "cascade", "cascade.db")
}

// ProjectDBPath returns the path to the project-local database.
func ProjectDBPath(projectRoot string) string {
	return filepath.Join(projectRoot, ".cascade", "state.db")
}

// Open opens an SQLite database at the given path, creating parent
// directories as needed. WAL mode is enabled for concurrent reads.
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	return &DB{conn: conn, path: path}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.conn.Close()
}

// Path returns the path to the database file.
func (db *DB) Path() string {
	return db.path
}

// Migrate applies all pending schema migrations.
func (db *DB) Migrate() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	var currentVersion int
	row := db.conn.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("get schema version: %w", err)
	}

	migrations := []struct {
		version int
		sql     string
	}{
		{1, migrationV1Sessions},
		{2, migrationV2Assignments},
		{3, migrationV3Artifacts},
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}

		tx, err := db.conn.Begin()
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}
		if _, err := tx.Exec(m.sql); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration v%d: %w", m.version, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", m.version); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration v%d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration v%d: %w", m.version, err)
		}
	}

	return nil
}

const migrationV1Sessions = `
CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	status TEXT NOT NULL DEFAULT 'active',
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status);

CREATE TABLE IF NOT EXISTS tasks (
	id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	seq INTEGER NOT NULL,
	description TEXT NOT NULL,
	mode TEXT NOT NULL,
	agents INTEGER NOT NULL,
	batch_size INTEGER NOT NULL DEFAULT 0,
	provider TEXT NOT NULL,
	mid_synthesis INTEGER NOT NULL DEFAULT 1,
	executive_synthesis INTEGER NOT NULL DEFAULT 1,
	status TEXT NOT NULL DEFAULT 'created',
	degraded INTEGER NOT NULL DEFAULT 0,
	error TEXT,
	created_at DATETIME NOT NULL,
	completed_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_tasks_session_id ON tasks(session_id);
`

const migrationV2Assignments = `
CREATE TABLE IF NOT EXISTS assignments (
	id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	task_id TEXT NOT NULL,
	tier INTEGER NOT NULL,
	batch INTEGER NOT NULL DEFAULT 0,
	input TEXT NOT NULL,
	provider TEXT NOT NULL,
	attempts INTEGER NOT NULL DEFAULT 0,
	status TEXT NOT NULL DEFAULT 'pending',
	result TEXT,
	error TEXT,
	started_at DATETIME,
	completed_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_assignments_task_id ON assignments(task_id);
CREATE INDEX IF NOT EXISTS idx_assignments_session_id ON assignments(session_id);

CREATE TABLE IF NOT EXISTS tier_results (
	task_id TEXT NOT NULL,
	session_id TEXT NOT NULL,
	tier INTEGER NOT NULL,
	completeness TEXT NOT NULL,
	completed_at DATETIME NOT NULL,
	PRIMARY KEY (task_id, tier)
);

CREATE INDEX IF NOT EXISTS idx_tier_results_session_id ON tier_results(session_id);
`

const migrationV3Artifacts = `
CREATE TABLE IF NOT EXISTS artifacts (
	id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	task_id TEXT NOT NULL,
	tier INTEGER NOT NULL,
	role TEXT NOT NULL,
	source_tier INTEGER NOT NULL,
	content TEXT,
	status TEXT NOT NULL,
	degraded INTEGER NOT NULL DEFAULT 0,
	error TEXT,
	created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_artifacts_task_id ON artifacts(task_id);
CREATE INDEX IF NOT EXISTS idx_artifacts_session_id ON artifacts(session_id);
`

// formatTime formats a time.Time for SQLite storage.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTime parses a time string from SQLite.
func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Parse(time.RFC3339, s)
	}
	return t, nil
}

// formatNullableTime formats an optional time.
func formatNullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

// parseNullableTime parses a nullable time string from SQLite.
func parseNullableTime(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil
	}
	return &t
}

// PurgeOldSessions deletes sessions (and their task trees) whose last
// update is older than the given duration. Returns the number of
// sessions deleted.
func (db *DB) PurgeOldSessions(olderThan time.Duration) (int64, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	cutoff := formatTime(time.Now().Add(-olderThan))

	tx, err := db.conn.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"assignments", "tier_results", "artifacts", "tasks"} {
		q := fmt.Sprintf(`DELETE FROM %s WHERE session_id IN (SELECT id FROM sessions WHERE updated_at < ?)`, table)
		if _, err := tx.Exec(q, cutoff); err != nil {
			return 0, fmt.Errorf("purge %s: %w", table, err)
		}
	}

	res, err := tx.Exec(`DELETE FROM sessions WHERE updated_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge sessions: %w", err)
	}
	count, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}
	return count, tx.Commit()
}
