// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/ashureev/symptom-intake/internal/domain"
)

// SessionStore persists interview sessions keyed by their opaque token.
type SessionStore interface {
	// Create stores a new session. It fails with domain.ErrSessionExists if
	// the id is taken. On success session.Version is set to 1.
	Create(ctx context.Context, session *domain.Session) error

	// Get returns a copy of the session, or domain.ErrSessionNotFound when the
	// id is unknown or the session has expired.
	Get(ctx context.Context, id string) (*domain.Session, error)

	// Save replaces the stored session if its version still equals
	// expectedVersion (optimistic locking). On success session.Version is
	// advanced. A lost race yields domain.ErrVersionConflict.
	Save(ctx context.Context, session *domain.Session, expectedVersion int64) error

	// Delete removes a session. Deleting an unknown id is not an error.
	Delete(ctx context.Context, id string) error

	// DeleteExpired removes sessions whose expiry is at or before now.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)

	// Ping verifies backend connectivity.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}

// Backend names accepted by Open.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// Options selects and configures a SessionStore backend.
type Options struct {
	Backend  string
	DBPath   string
	RedisURL string
}

// Open builds the SessionStore named by opts.Backend.
func Open(opts Options) (SessionStore, error) {
	switch opts.Backend {
	case BackendMemory, "":
		return NewMemory(), nil
	case BackendSQLite:
		return NewSQLite(opts.DBPath)
	case BackendRedis:
		return NewRedis(opts.RedisURL)
	default:
		return nil, fmt.Errorf("unknown session store %q", opts.Backend)
	}
}
