// Package gemini implements llm.Completer on the Google Gemini API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/ashureev/symptom-intake/internal/llm"
)

// Client wraps the GenAI client.
type Client struct {
	client *genai.Client
	model  string
}

// New creates a Gemini client for model.
func New(ctx context.Context, apiKey, model string) (*Client, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &Client{client: client, model: model}, nil
}

// Complete implements llm.Completer.
func (c *Client) Complete(ctx context.Context, req llm.Request) (string, error) {
	//nolint:gosec // MaxTokens is bounded by configuration
	cfg := &genai.GenerateContentConfig{
		MaxOutputTokens: int32(req.MaxTokens),
		Temperature:     genai.Ptr(req.Temperature),
	}
	if req.System != "" {
		cfg.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: req.System}},
		}
	}
	if req.JSON {
		cfg.ResponseMIMEType = "application/json"
	}

	res, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(req.Prompt), cfg)
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			return "", llm.NewStatusError("gemini", apiErr.Code, err)
		}
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	text := strings.TrimSpace(res.Text())
	if text == "" {
		return "", llm.ErrEmptyResponse
	}
	return text, nil
}

// Name implements llm.Completer.
func (c *Client) Name() string { return "gemini/" + c.model }
