package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCompleter struct {
	errs  []error
	out   string
	calls int
	block bool
}

func (f *fakeCompleter) Complete(ctx context.Context, _ Request) (string, error) {
	f.calls++
	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return "", err
	}
	return f.out, nil
}

func (f *fakeCompleter) Name() string { return "fake" }

func noSleep(context.Context, time.Duration) error { return nil }

func TestRetryRecoversFromTransientErrors(t *testing.T) {
	t.Parallel()

	f := &fakeCompleter{errs: []error{errors.New("503 unavailable"), ErrEmptyResponse}, out: "ok"}
	c := WithRetry(f, RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond}).(*retryCompleter)
	c.sleep = noSleep

	out, err := c.Complete(context.Background(), Request{Prompt: "p"})
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, 3, f.calls)
}

func TestRetryStopsOnPermanentError(t *testing.T) {
	t.Parallel()

	f := &fakeCompleter{errs: []error{errors.New("401 unauthorized")}}
	c := WithRetry(f, RetryConfig{MaxAttempts: 3}).(*retryCompleter)
	c.sleep = noSleep

	_, err := c.Complete(context.Background(), Request{})
	require.Error(t, err)
	assert.Equal(t, 1, f.calls)
}

func TestWithRetrySingleAttemptIsPassthrough(t *testing.T) {
	t.Parallel()
	f := &fakeCompleter{}
	assert.Same(t, Completer(f), WithRetry(f, RetryConfig{MaxAttempts: 1}))
}

func TestTimeoutCancelsSlowCalls(t *testing.T) {
	t.Parallel()

	f := &fakeCompleter{block: true}
	c := WithTimeout(f, 20*time.Millisecond)

	_, err := c.Complete(context.Background(), Request{})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.ErrorIs(t, err, ErrAttemptTimeout)
	assert.True(t, ShouldRetry(err))
}

func TestRetryRetriesAttemptTimeouts(t *testing.T) {
	t.Parallel()

	f := &fakeCompleter{block: true}
	c := WithRetry(WithTimeout(f, 20*time.Millisecond), RetryConfig{MaxAttempts: 3}).(*retryCompleter)
	c.sleep = noSleep

	_, err := c.Complete(context.Background(), Request{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAttemptTimeout)
	assert.Equal(t, 3, f.calls)
}

func TestRetryStopsWhenCallerContextEnds(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	f := &fakeCompleter{block: true}
	c := WithRetry(WithTimeout(f, time.Minute), RetryConfig{MaxAttempts: 3}).(*retryCompleter)
	c.sleep = noSleep

	_, err := c.Complete(ctx, Request{})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrAttemptTimeout)
	assert.Equal(t, 1, f.calls)
}

func TestRetryStopsOnClientStatus(t *testing.T) {
	t.Parallel()

	badKey := NewStatusError("gemini", 400,
		fmt.Errorf("gemini generate: %w", errors.New("Error 400, Message: API key not valid")))
	f := &fakeCompleter{errs: []error{badKey, badKey, badKey}}
	c := WithRetry(f, RetryConfig{MaxAttempts: 3}).(*retryCompleter)
	c.sleep = noSleep

	_, err := c.Complete(context.Background(), Request{})
	require.Error(t, err)
	assert.Equal(t, 1, f.calls)
}

func TestShouldRetry(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"empty response", ErrEmptyResponse, true},
		{"caller canceled", context.Canceled, false},
		{"caller deadline", context.DeadlineExceeded, false},
		{"status 400", NewStatusError("gemini", 400, errors.New("API key not valid")), false},
		{"status 401 with retryable text", NewStatusError("openai", 401, errors.New("service unavailable")), false},
		{"status 404", NewStatusError("anthropic", 404, errors.New("model not found")), false},
		{"status 408", NewStatusError("ollama", 408, errors.New("request timeout")), true},
		{"status 429", NewStatusError("openai", 429, errors.New("slow down")), true},
		{"status 503", NewStatusError("anthropic", 503, errors.New("overloaded")), true},
		{"untyped generate error", errors.New("gemini generate: Error 400, Message: API key not valid"), false},
		{"untyped rate limit", errors.New("rate limit exceeded"), true},
		{"untyped connection reset", errors.New("read tcp: connection reset by peer"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ShouldRetry(tt.err))
		})
	}
}

func TestRetryDelayBackoff(t *testing.T) {
	t.Parallel()

	cfg := RetryConfig{InitialDelay: 100 * time.Millisecond, MaxDelay: 300 * time.Millisecond, BackoffFactor: 2}
	assert.Equal(t, time.Duration(0), cfg.delay(1))
	assert.Equal(t, 100*time.Millisecond, cfg.delay(2))
	assert.Equal(t, 200*time.Millisecond, cfg.delay(3))
	assert.Equal(t, 300*time.Millisecond, cfg.delay(4))
}

func TestCountTokens(t *testing.T) {
	t.Parallel()
	assert.Positive(t, CountTokens("When did the headache first start?"))
	assert.Equal(t, 0, CountTokens(""))
}
