// Package sweeper removes expired interview sessions in the background.
package sweeper

import (
	"context"
	"log/slog"
	"time"

	"github.com/ashureev/symptom-intake/internal/store"
)

// DefaultInterval is used when Start is given a non-positive interval.
const DefaultInterval = 5 * time.Minute

// SweepCallback is called with the number of sessions removed by a sweep.
type SweepCallback func(removed int64)

// Start runs a background goroutine that periodically deletes expired
// sessions until ctx is cancelled. The returned channel is closed once the
// goroutine has exited.
func Start(ctx context.Context, st store.SessionStore, interval time.Duration, onSweep SweepCallback) <-chan struct{} {
	if interval <= 0 {
		interval = DefaultInterval
	}
	done := make(chan struct{})
	ticker := time.NewTicker(interval)

	go func() {
		defer close(done)
		defer ticker.Stop()
		slog.Info("Session sweeper started", "interval", interval)

		for {
			select {
			case <-ticker.C:
				Sweep(ctx, st, time.Now(), onSweep)
			case <-ctx.Done():
				slog.Info("Session sweeper shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
	return done
}

// Sweep deletes sessions that expired at or before now and returns how many
// were removed.
func Sweep(ctx context.Context, st store.SessionStore, now time.Time, onSweep SweepCallback) int64 {
	removed, err := st.DeleteExpired(ctx, now)
	if err != nil {
		if ctx.Err() != nil {
			slog.Debug("Session sweep interrupted", "error", err)
			return 0
		}
		slog.Error("Session sweep failed", "error", err)
		return 0
	}
	if removed == 0 {
		return 0
	}

	slog.Info("Session sweep completed", "removed", removed)
	if onSweep != nil {
		onSweep(removed)
	}
	return removed
}
