package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ashureev/symptom-intake/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSession(id string, expiresAt time.Time) *domain.Session {
	now := time.Now()
	return &domain.Session{
		ID:    id,
		Phase: domain.PhaseActive,
		Transcript: []domain.Message{
			{Role: domain.RoleUser, Text: "headache"},
			{Role: domain.RoleAgent, Text: "When did it start?"},
		},
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: expiresAt,
	}
}

// exerciseStore runs the behaviour every SessionStore backend must share.
func exerciseStore(t *testing.T, s SessionStore) {
	t.Helper()
	ctx := context.Background()

	t.Run("create and get", func(t *testing.T) {
		sess := newSession(uuid.NewString(), time.Now().Add(time.Hour))
		require.NoError(t, s.Create(ctx, sess))
		assert.Equal(t, int64(1), sess.Version)

		got, err := s.Get(ctx, sess.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.PhaseActive, got.Phase)
		assert.Equal(t, sess.Transcript, got.Transcript)
		assert.Nil(t, got.Report)
		assert.WithinDuration(t, sess.ExpiresAt, got.ExpiresAt, time.Millisecond)
	})

	t.Run("duplicate create", func(t *testing.T) {
		sess := newSession(uuid.NewString(), time.Now().Add(time.Hour))
		require.NoError(t, s.Create(ctx, sess))
		assert.ErrorIs(t, s.Create(ctx, newSession(sess.ID, time.Now().Add(time.Hour))), domain.ErrSessionExists)
	})

	t.Run("unknown id", func(t *testing.T) {
		_, err := s.Get(ctx, uuid.NewString())
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})

	t.Run("save with version check", func(t *testing.T) {
		sess := newSession(uuid.NewString(), time.Now().Add(time.Hour))
		require.NoError(t, s.Create(ctx, sess))

		next := sess.Clone()
		next.Phase = domain.PhaseComplete
		next.Transcript = append(next.Transcript, domain.Message{Role: domain.RoleSystem, Text: "done"})
		next.Report = &domain.StructuredReport{
			Title:      "Intake",
			Disclaimer: domain.DefaultDisclaimer,
			Sections:   []domain.ReportSection{{Key: "onset", Heading: "Onset", Content: "yesterday"}},
		}
		require.NoError(t, s.Save(ctx, next, 1))
		assert.Equal(t, int64(2), next.Version)

		stale := sess.Clone()
		assert.ErrorIs(t, s.Save(ctx, stale, 1), domain.ErrVersionConflict)

		got, err := s.Get(ctx, sess.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.PhaseComplete, got.Phase)
		assert.Len(t, got.Transcript, 3)
		require.NotNil(t, got.Report)
		assert.Equal(t, "yesterday", got.Report.Sections[0].Content)
	})

	t.Run("save unknown", func(t *testing.T) {
		assert.ErrorIs(t, s.Save(ctx, newSession(uuid.NewString(), time.Now().Add(time.Hour)), 1), domain.ErrSessionNotFound)
	})

	t.Run("delete", func(t *testing.T) {
		sess := newSession(uuid.NewString(), time.Now().Add(time.Hour))
		require.NoError(t, s.Create(ctx, sess))
		require.NoError(t, s.Delete(ctx, sess.ID))
		_, err := s.Get(ctx, sess.ID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
		assert.NoError(t, s.Delete(ctx, sess.ID))
	})

	require.NoError(t, s.Ping(ctx))
}

func TestMemoryStore(t *testing.T) {
	t.Parallel()
	exerciseStore(t, NewMemory())
}

func TestMemoryStoreExpiry(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMemory()

	sess := newSession("short-lived", time.Now().Add(time.Minute))
	require.NoError(t, s.Create(ctx, sess))

	s.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	_, err := s.Get(ctx, sess.ID)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	n, err := s.DeleteExpired(ctx, time.Now().Add(2*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestMemoryStoreIsolatesCopies(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMemory()

	sess := newSession("iso", time.Time{})
	require.NoError(t, s.Create(ctx, sess))
	sess.Transcript[0].Text = "mutated"

	got, err := s.Get(ctx, "iso")
	require.NoError(t, err)
	assert.Equal(t, "headache", got.Transcript[0].Text)
}

func TestSQLiteStore(t *testing.T) {
	t.Parallel()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "intake.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	exerciseStore(t, s)
}

func TestSQLiteStoreExpiry(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "intake.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	past := newSession("expired", time.Now().Add(-time.Minute))
	require.NoError(t, s.Create(ctx, past))
	live := newSession("live", time.Now().Add(time.Hour))
	require.NoError(t, s.Create(ctx, live))

	_, err = s.Get(ctx, "expired")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	// An expired row does not block reuse of its id.
	require.NoError(t, s.Create(ctx, newSession("expired", time.Now().Add(time.Hour))))

	n, err := s.DeleteExpired(ctx, time.Now().Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestSQLiteStoreDeleteExpiredWaitsOutWriteLock(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "intake.db")
	s, err := NewSQLite(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.Create(ctx, newSession("expired", time.Now().Add(-time.Minute))))

	other, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = other.Close() })
	conn, err := other.Conn(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	_, err = conn.ExecContext(ctx, "BEGIN IMMEDIATE")
	require.NoError(t, err)
	released := make(chan error, 1)
	go func() {
		time.Sleep(40 * time.Millisecond)
		_, commitErr := conn.ExecContext(ctx, "COMMIT")
		released <- commitErr
	}()

	n, err := s.DeleteExpired(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	require.NoError(t, <-released)
}

func TestRedisStore(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	s, err := NewRedis(url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	exerciseStore(t, s)
}

func TestOpenUnknownBackend(t *testing.T) {
	t.Parallel()
	_, err := Open(Options{Backend: "etcd"})
	assert.Error(t, err)

	s, err := Open(Options{Backend: BackendMemory})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)
}
