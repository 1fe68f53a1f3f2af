// Package openai implements llm.Completer on the OpenAI Responses API.
package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"
	"github.com/openai/openai-go/shared"

	"github.com/ashureev/symptom-intake/internal/llm"
)

// Client wraps the official OpenAI client.
type Client struct {
	client openai.Client
	model  string
}

// New creates an OpenAI client for model.
func New(apiKey, model string) *Client {
	return &Client{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

// Complete implements llm.Completer. The system prompt is prepended to the
// input because the interview sends a single self-contained prompt.
func (c *Client) Complete(ctx context.Context, req llm.Request) (string, error) {
	input := req.Prompt
	if req.System != "" {
		input = req.System + "\n\n" + req.Prompt
	}

	params := responses.ResponseNewParams{
		Model:           c.model,
		MaxOutputTokens: openai.Int(int64(req.MaxTokens)),
		Temperature:     openai.Float(float64(req.Temperature)),
		Input:           responses.ResponseNewParamsInputUnion{OfString: openai.String(input)},
	}
	if req.JSON {
		jsonObject := shared.NewResponseFormatJSONObjectParam()
		params.Text = responses.ResponseTextConfigParam{
			Format: responses.ResponseFormatTextConfigUnionParam{OfJSONObject: &jsonObject},
		}
	}

	resp, err := c.client.Responses.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return "", llm.NewStatusError("openai", apiErr.StatusCode, err)
		}
		return "", fmt.Errorf("openai responses: %w", err)
	}
	text := strings.TrimSpace(resp.OutputText())
	if text == "" {
		return "", llm.ErrEmptyResponse
	}
	return text, nil
}

// Name implements llm.Completer.
func (c *Client) Name() string { return "openai/" + c.model }
