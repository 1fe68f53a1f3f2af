// Package client drives an interview against the intake HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ashureev/symptom-intake/internal/domain"
	"github.com/ashureev/symptom-intake/internal/identity"
)

// Transport carries interview turns to the server.
type Transport interface {
	Start(ctx context.Context, symptom string) (StartReply, error)
	Continue(ctx context.Context, sessionID, response string) (TurnReply, error)
}

// StartReply is the server's answer to a start request.
type StartReply struct {
	SessionID    string `json:"session_id"`
	NextQuestion string `json:"next_question"`
}

// TurnReply is the server's answer to a continue request.
type TurnReply struct {
	IsComplete   bool                     `json:"is_complete"`
	NextQuestion string                   `json:"next_question,omitempty"`
	History      []domain.Message         `json:"history,omitempty"`
	Report       *domain.StructuredReport `json:"structured_report,omitempty"`
}

// TranscriptReply is the server's view of a session.
type TranscriptReply struct {
	SessionID string           `json:"session_id,omitempty"`
	Phase     domain.Phase     `json:"phase"`
	History   []domain.Message `json:"history"`
}

// SchemaReply documents the report fields.
type SchemaReply struct {
	Title      string `json:"title"`
	Disclaimer string `json:"disclaimer"`
	Fields     []struct {
		Key         string `json:"key"`
		Heading     string `json:"heading"`
		Description string `json:"description"`
	} `json:"fields"`
}

// APIError is a non-2xx response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return e.Message
}

// HTTPTransport talks to the intake server over HTTP.
type HTTPTransport struct {
	baseURL string
	client  *http.Client
}

// NewHTTPTransport creates a transport for the server at baseURL.
func NewHTTPTransport(baseURL string, client *http.Client) *HTTPTransport {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPTransport{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

// Start implements Transport.
func (t *HTTPTransport) Start(ctx context.Context, symptom string) (StartReply, error) {
	var out StartReply
	err := t.do(ctx, http.MethodPost, "/start_interview", "", map[string]string{"initial_symptom": symptom}, &out)
	return out, err
}

// Continue implements Transport.
func (t *HTTPTransport) Continue(ctx context.Context, sessionID, response string) (TurnReply, error) {
	var out TurnReply
	err := t.do(ctx, http.MethodPost, "/continue_interview", sessionID, map[string]string{"user_response": response}, &out)
	return out, err
}

// Transcript fetches the transcript of a session.
func (t *HTTPTransport) Transcript(ctx context.Context, sessionID string) (TranscriptReply, error) {
	var out TranscriptReply
	err := t.do(ctx, http.MethodGet, "/transcript", sessionID, nil, &out)
	return out, err
}

// Report fetches the report of a completed session.
func (t *HTTPTransport) Report(ctx context.Context, sessionID string) (domain.StructuredReport, error) {
	var out domain.StructuredReport
	err := t.do(ctx, http.MethodGet, "/report", sessionID, nil, &out)
	return out, err
}

// Schema fetches the report field documentation.
func (t *HTTPTransport) Schema(ctx context.Context) (SchemaReply, error) {
	var out SchemaReply
	err := t.do(ctx, http.MethodGet, "/api/report_schema", "", nil, &out)
	return out, err
}

func (t *HTTPTransport) do(ctx context.Context, method, path, sessionID string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, t.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if sessionID != "" {
		req.Header.Set(identity.SessionHeaderName, sessionID)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Error string `json:"error"`
		}
		if decodeErr := json.NewDecoder(resp.Body).Decode(&e); decodeErr != nil || e.Error == "" {
			e.Error = fmt.Sprintf("request failed with status %d", resp.StatusCode)
		}
		return &APIError{Status: resp.StatusCode, Message: e.Error}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
