// Package shared provides common utilities used across the codebase.
//
//nolint:revive // "shared" is an intentional package name for cross-cutting helpers.
package shared

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// IsSQLiteConflictError reports whether err is SQLITE_BUSY or
// "database is locked", the two SQLite concurrency errors worth retrying.
func IsSQLiteConflictError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

// Backoff configures RetrySQLiteConflict.
type Backoff struct {
	Attempts  int
	BaseDelay time.Duration
}

// DefaultBackoff gives 50ms, 100ms between three attempts.
var DefaultBackoff = Backoff{Attempts: 3, BaseDelay: 50 * time.Millisecond}

// RetrySQLiteConflict runs fn, retrying with exponential backoff while it
// fails with a SQLite conflict error. Other errors are returned immediately.
func RetrySQLiteConflict(ctx context.Context, b Backoff, op string, fn func() error) error {
	if b.Attempts <= 0 {
		b.Attempts = 1
	}

	var err error
	for i := 0; i < b.Attempts; i++ {
		err = fn()
		if err == nil || !IsSQLiteConflictError(err) {
			return err
		}
		if i == b.Attempts-1 {
			break
		}

		delay := b.BaseDelay * time.Duration(1<<i)
		slog.Debug("SQLite busy, retrying", "op", op, "attempt", i+1, "delay", delay)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("%s after %d attempts: %w", op, b.Attempts, err)
}
