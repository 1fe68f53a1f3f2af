package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ashureev/symptom-intake/internal/domain"
	"github.com/ashureev/symptom-intake/internal/shared"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements SessionStore using SQLite.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLite creates a new SQLite-backed session store.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db, now: time.Now}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS interview_sessions (
		session_id TEXT PRIMARY KEY,
		phase TEXT NOT NULL,
		transcript_json TEXT NOT NULL,
		report_json TEXT,
		version INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		expires_at INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_interview_sessions_expires ON interview_sessions(expires_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// Create inserts a new session. An expired row with the same id is replaced.
func (s *SQLiteStore) Create(ctx context.Context, session *domain.Session) error {
	transcript, err := marshalTranscript(session.Transcript)
	if err != nil {
		return err
	}
	report, err := marshalReport(session.Report)
	if err != nil {
		return err
	}

	query := `
	INSERT INTO interview_sessions (session_id, phase, transcript_json, report_json, version, created_at, updated_at, expires_at)
	VALUES (?, ?, ?, ?, 1, ?, ?, ?)
	ON CONFLICT(session_id) DO UPDATE SET
		phase = excluded.phase,
		transcript_json = excluded.transcript_json,
		report_json = excluded.report_json,
		version = 1,
		created_at = excluded.created_at,
		updated_at = excluded.updated_at,
		expires_at = excluded.expires_at
	WHERE interview_sessions.expires_at IS NOT NULL AND interview_sessions.expires_at <= ?`

	var rows int64
	err = shared.RetrySQLiteConflict(ctx, shared.DefaultBackoff, "create session", func() error {
		result, execErr := s.db.ExecContext(ctx, query,
			session.ID, string(session.Phase), transcript, report,
			session.CreatedAt.UnixMilli(), session.UpdatedAt.UnixMilli(), nullableMillis(session.ExpiresAt),
			s.now().UnixMilli(),
		)
		if execErr != nil {
			return execErr
		}
		rows, execErr = result.RowsAffected()
		return execErr
	})
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	if rows == 0 {
		return domain.ErrSessionExists
	}

	session.Version = 1
	return nil
}

// Get retrieves a live session by id.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*domain.Session, error) {
	query := `
		SELECT session_id, phase, transcript_json, report_json,
		       version, created_at, updated_at, expires_at
		FROM interview_sessions
		WHERE session_id = ? AND (expires_at IS NULL OR expires_at > ?)`

	row := s.db.QueryRowContext(ctx, query, id, s.now().UnixMilli())

	var rec sessionRecord
	var phase, transcriptJSON string
	var reportJSON sql.NullString
	var expiresAt sql.NullInt64

	err := row.Scan(
		&rec.ID, &phase, &transcriptJSON, &reportJSON,
		&rec.Version, &rec.CreatedAt, &rec.UpdatedAt, &expiresAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan session row: %w", err)
	}

	rec.Phase = domain.Phase(phase)
	rec.ExpiresAt = expiresAt.Int64
	if err := json.Unmarshal([]byte(transcriptJSON), &rec.Transcript); err != nil {
		return nil, fmt.Errorf("decode transcript: %w", err)
	}
	if reportJSON.Valid {
		var report domain.StructuredReport
		if err := json.Unmarshal([]byte(reportJSON.String), &report); err != nil {
			return nil, fmt.Errorf("decode report: %w", err)
		}
		rec.Report = &report
	}

	return rec.toSession(), nil
}

// Save updates a session if the stored version equals expectedVersion.
func (s *SQLiteStore) Save(ctx context.Context, session *domain.Session, expectedVersion int64) error {
	transcript, err := marshalTranscript(session.Transcript)
	if err != nil {
		return err
	}
	report, err := marshalReport(session.Report)
	if err != nil {
		return err
	}

	query := `
		UPDATE interview_sessions
		SET phase = ?, transcript_json = ?, report_json = ?, version = ?,
		    updated_at = ?, expires_at = ?
		WHERE session_id = ? AND version = ? AND (expires_at IS NULL OR expires_at > ?)`

	var rows int64
	err = shared.RetrySQLiteConflict(ctx, shared.DefaultBackoff, "save session", func() error {
		result, execErr := s.db.ExecContext(ctx, query,
			string(session.Phase), transcript, report, expectedVersion+1,
			session.UpdatedAt.UnixMilli(), nullableMillis(session.ExpiresAt),
			session.ID, expectedVersion, s.now().UnixMilli(),
		)
		if execErr != nil {
			return execErr
		}
		rows, execErr = result.RowsAffected()
		return execErr
	})
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}

	if rows == 0 {
		if _, getErr := s.Get(ctx, session.ID); errors.Is(getErr, domain.ErrSessionNotFound) {
			return domain.ErrSessionNotFound
		}
		slog.Warn("Session save lost optimistic lock", "session_id", session.ID, "expected_version", expectedVersion)
		return domain.ErrVersionConflict
	}

	session.Version = expectedVersion + 1
	return nil
}

// Delete removes a session.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	err := shared.RetrySQLiteConflict(ctx, shared.DefaultBackoff, "delete session", func() error {
		_, execErr := s.db.ExecContext(ctx, `DELETE FROM interview_sessions WHERE session_id = ?`, id)
		return execErr
	})
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// DeleteExpired removes sessions whose expiry is at or before now.
func (s *SQLiteStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	query := `DELETE FROM interview_sessions WHERE expires_at IS NOT NULL AND expires_at <= ?`
	var deleted int64
	err := shared.RetrySQLiteConflict(ctx, shared.DefaultBackoff, "delete expired sessions", func() error {
		result, execErr := s.db.ExecContext(ctx, query, now.UnixMilli())
		if execErr != nil {
			return execErr
		}
		deleted, execErr = result.RowsAffected()
		return execErr
	})
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	return deleted, nil
}

func nullableMillis(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t.UnixMilli()
}
