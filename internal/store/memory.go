package store

import (
	"context"
	"sync"
	"time"

	"github.com/ashureev/symptom-intake/internal/domain"
)

// MemoryStore implements SessionStore in process memory.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*domain.Session
	now      func() time.Time
}

// NewMemory creates an empty in-memory store.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*domain.Session),
		now:      time.Now,
	}
}

// Create stores a new session.
func (m *MemoryStore) Create(_ context.Context, session *domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.sessions[session.ID]; ok && !existing.Expired(m.now()) {
		return domain.ErrSessionExists
	}
	session.Version = 1
	m.sessions[session.ID] = session.Clone()
	return nil
}

// Get returns a copy of a live session.
func (m *MemoryStore) Get(_ context.Context, id string) (*domain.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok || s.Expired(m.now()) {
		return nil, domain.ErrSessionNotFound
	}
	return s.Clone(), nil
}

// Save replaces the session when expectedVersion matches.
func (m *MemoryStore) Save(_ context.Context, session *domain.Session, expectedVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.sessions[session.ID]
	if !ok || current.Expired(m.now()) {
		return domain.ErrSessionNotFound
	}
	if current.Version != expectedVersion {
		return domain.ErrVersionConflict
	}
	session.Version = expectedVersion + 1
	m.sessions[session.ID] = session.Clone()
	return nil
}

// Delete removes a session.
func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

// DeleteExpired removes sessions that expired at or before now.
func (m *MemoryStore) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for id, s := range m.sessions {
		if s.Expired(now) {
			delete(m.sessions, id)
			n++
		}
	}
	return n, nil
}

// Ping always succeeds.
func (m *MemoryStore) Ping(context.Context) error { return nil }

// Close is a no-op.
func (m *MemoryStore) Close() error { return nil }
