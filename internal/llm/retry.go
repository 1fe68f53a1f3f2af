package llm

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"
)

// RetryConfig defines retry behaviour for completion calls.
type RetryConfig struct {
	MaxAttempts   int           // including the initial attempt
	InitialDelay  time.Duration // delay before the first retry
	MaxDelay      time.Duration
	BackoffFactor float64
}

// DefaultRetryConfig retries twice with exponential backoff.
var DefaultRetryConfig = RetryConfig{
	MaxAttempts:   3,
	InitialDelay:  200 * time.Millisecond,
	MaxDelay:      5 * time.Second,
	BackoffFactor: 2.0,
}

// transientMarkers match untyped transport failures.
var transientMarkers = []string{
	"rate limit",
	"too many requests",
	"timeout",
	"connection reset",
	"connection refused",
	"temporary",
	"overloaded",
	"unavailable",
}

// ShouldRetry classifies transient provider failures. A provider status is
// authoritative: 408, 429 and 5xx retry, any other 4xx does not.
func ShouldRetry(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrAttemptTimeout) {
		return true
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ErrEmptyResponse) {
		return true
	}

	var status *StatusError
	if errors.As(err, &status) {
		switch {
		case status.Code == http.StatusRequestTimeout, status.Code == http.StatusTooManyRequests:
			return true
		case status.Code >= 400 && status.Code < 500:
			return false
		case status.Code >= 500:
			return true
		}
	}

	msg := strings.ToLower(err.Error())
	for _, s := range transientMarkers {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// delay returns the wait before the given attempt (1-based).
func (c RetryConfig) delay(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}
	d := time.Duration(float64(c.InitialDelay) * math.Pow(c.BackoffFactor, float64(attempt-2)))
	if c.MaxDelay > 0 && d > c.MaxDelay {
		d = c.MaxDelay
	}
	return d
}

type retryCompleter struct {
	next   Completer
	cfg    RetryConfig
	sleep  func(context.Context, time.Duration) error
	logger *slog.Logger
}

// WithRetry wraps c so transient failures are retried per cfg.
func WithRetry(c Completer, cfg RetryConfig) Completer {
	if cfg.MaxAttempts <= 1 {
		return c
	}
	if cfg.BackoffFactor <= 0 {
		cfg.BackoffFactor = 2.0
	}
	return &retryCompleter{next: c, cfg: cfg, sleep: sleepContext, logger: slog.Default()}
}

func (r *retryCompleter) Complete(ctx context.Context, req Request) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= r.cfg.MaxAttempts; attempt++ {
		if err := r.sleep(ctx, r.cfg.delay(attempt)); err != nil {
			return "", err
		}

		out, err := r.next.Complete(ctx, req)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if ctx.Err() != nil || !ShouldRetry(err) {
			return "", err
		}
		r.logger.Warn("Completion failed, retrying",
			"provider", r.next.Name(),
			"attempt", attempt,
			"max_attempts", r.cfg.MaxAttempts,
			"error", err)
	}
	return "", lastErr
}

func (r *retryCompleter) Name() string { return r.next.Name() }

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
