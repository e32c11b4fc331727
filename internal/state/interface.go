// Package state provides SQLite-based session persistence for cascade.
package state

import (
	"io"
	"time"

	"cascade/pkg/models"
)

// Migrator handles database schema migrations. Separating this lets
// clients depend only on migration functionality.
type Migrator interface {
	// Migrate applies all pending schema migrations.
	Migrate() error
}

// SessionStore persists session trees. Save is atomic with respect to a
// single session; writes for different sessions never contend beyond the
// connection lock.
type SessionStore interface {
	SaveSession(s *models.Session) error
	LoadSession(id string) (*models.Session, error)
	ListSessions(limit int) ([]SessionSummary, error)
	AppendContinuation(sessionID string, task models.Task) (*models.Session, error)
	PurgeOldSessions(olderThan time.Duration) (int64, error)
}

// Store is the full persistence contract the orchestrator depends on,
// decoupled from the concrete SQLite implementation.
type Store interface {
	io.Closer
	Migrator
	SessionStore
}

// Compile-time verification that DB implements all interfaces.
var (
	_ Store        = (*DB)(nil)
	_ Migrator     = (*DB)(nil)
	_ SessionStore = (*DB)(nil)
)
