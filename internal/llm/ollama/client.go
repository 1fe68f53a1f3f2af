// Package ollama implements llm.Completer against a local Ollama server.
package ollama

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"

	"github.com/ashureev/symptom-intake/internal/llm"
)

// Client wraps the Ollama API client.
type Client struct {
	client *api.Client
	model  string
}

// New creates an Ollama client. hostURL is e.g. "http://localhost:11434".
func New(hostURL, model string) (*Client, error) {
	parsed, err := url.Parse(hostURL)
	if err != nil {
		return nil, fmt.Errorf("parse ollama host: %w", err)
	}
	return &Client{
		client: api.NewClient(parsed, http.DefaultClient),
		model:  model,
	}, nil
}

// Complete implements llm.Completer.
func (c *Client) Complete(ctx context.Context, req llm.Request) (string, error) {
	messages := make([]api.Message, 0, 2)
	if req.System != "" {
		messages = append(messages, api.Message{Role: "system", Content: req.System})
	}
	messages = append(messages, api.Message{Role: "user", Content: req.Prompt})

	stream := false
	chat := &api.ChatRequest{
		Model:    c.model,
		Messages: messages,
		Stream:   &stream,
		Options: map[string]any{
			"temperature": req.Temperature,
			"num_predict": req.MaxTokens,
		},
	}

	var response api.ChatResponse
	err := c.client.Chat(ctx, chat, func(resp api.ChatResponse) error {
		response = resp
		return nil
	})
	if err != nil {
		var statusErr api.StatusError
		if errors.As(err, &statusErr) {
			return "", llm.NewStatusError("ollama", statusErr.StatusCode, err)
		}
		return "", fmt.Errorf("ollama chat: %w", err)
	}

	text := strings.TrimSpace(response.Message.Content)
	if text == "" {
		return "", llm.ErrEmptyResponse
	}
	return text, nil
}

// Name implements llm.Completer.
func (c *Client) Name() string { return "ollama/" + c.model }
