// Package llm defines the text-completion capability behind the interview
// policy and report compiler, plus provider-independent decorators.
package llm

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Request is a single-shot completion request.
type Request struct {
	System      string
	Prompt      string
	JSON        bool // ask the provider for a JSON-only reply where supported
	MaxTokens   int
	Temperature float32
}

// Completer produces text for a prompt.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
	Name() string
}

// ErrEmptyResponse is returned when a provider answers with no text.
var ErrEmptyResponse = errors.New("empty completion")

// ErrAttemptTimeout marks a single call that hit its WithTimeout deadline
// while the caller's context was still live.
var ErrAttemptTimeout = errors.New("attempt timed out")

// StatusError carries the HTTP status a provider answered with.
type StatusError struct {
	Provider string
	Code     int
	Err      error
}

// NewStatusError wraps err with the provider's HTTP status code.
func NewStatusError(provider string, code int, err error) *StatusError {
	return &StatusError{Provider: provider, Code: code, Err: err}
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: status %d: %v", e.Provider, e.Code, e.Err)
}

func (e *StatusError) Unwrap() error { return e.Err }

// timeoutCompleter bounds every call with a deadline.
type timeoutCompleter struct {
	next    Completer
	timeout time.Duration
}

// WithTimeout wraps c so each call is cancelled after d. A non-positive d
// returns c unchanged.
func WithTimeout(c Completer, d time.Duration) Completer {
	if d <= 0 {
		return c
	}
	return &timeoutCompleter{next: c, timeout: d}
}

func (t *timeoutCompleter) Complete(ctx context.Context, req Request) (string, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	out, err := t.next.Complete(attemptCtx, req)
	if err != nil && ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		return "", fmt.Errorf("%s: %w after %s: %w", t.next.Name(), ErrAttemptTimeout, t.timeout, err)
	}
	return out, err
}

func (t *timeoutCompleter) Name() string { return t.next.Name() }
