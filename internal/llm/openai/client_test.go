package openai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/symptom-intake/internal/llm"
)

const responseBody = `{
  "id": "resp_1",
  "object": "response",
  "created_at": 1760000000,
  "model": "gpt-test",
  "status": "completed",
  "output": [{
    "id": "msg_1",
    "type": "message",
    "role": "assistant",
    "status": "completed",
    "content": [{"type": "output_text", "text": "{\"complete\": false, \"question\": \"When did it start?\"}", "annotations": []}]
  }]
}`

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return &Client{
		client: openai.NewClient(
			option.WithAPIKey("test-key"),
			option.WithBaseURL(srv.URL),
			option.WithMaxRetries(0),
		),
		model: "gpt-test",
	}
}

func TestCompleteSendsTemperatureAndJSONFormat(t *testing.T) {
	var body map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		raw, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("read body: %v", err)
		}
		if err := json.Unmarshal(raw, &body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, responseBody)
	})

	out, err := c.Complete(context.Background(), llm.Request{
		System:      "You are an intake assistant.",
		Prompt:      "Reply in JSON.",
		JSON:        true,
		MaxTokens:   256,
		Temperature: 0.5,
	})
	require.NoError(t, err)
	assert.Contains(t, out, "When did it start?")

	assert.Equal(t, "gpt-test", body["model"])
	assert.InDelta(t, 0.5, body["temperature"], 1e-6)
	text, ok := body["text"].(map[string]any)
	require.True(t, ok, "expected text config, got %v", body["text"])
	format, ok := text["format"].(map[string]any)
	require.True(t, ok, "expected text.format, got %v", text["format"])
	assert.Equal(t, "json_object", format["type"])
}

func TestCompleteOmitsJSONFormatForPlainText(t *testing.T) {
	var body map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, responseBody)
	})

	_, err := c.Complete(context.Background(), llm.Request{Prompt: "hello", MaxTokens: 16})
	require.NoError(t, err)
	assert.NotContains(t, body, "text")
}

func TestCompleteClientErrorCarriesStatus(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error": {"message": "Incorrect API key provided", "type": "invalid_request_error", "code": "invalid_api_key"}}`)
	})

	_, err := c.Complete(context.Background(), llm.Request{Prompt: "hello", MaxTokens: 16})
	require.Error(t, err)

	var status *llm.StatusError
	require.True(t, errors.As(err, &status), "expected StatusError, got %T", err)
	assert.Equal(t, http.StatusUnauthorized, status.Code)
	assert.False(t, llm.ShouldRetry(err))
}
