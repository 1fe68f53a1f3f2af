// Package provider builds the configured llm.Completer.
package provider

import (
	"context"
	"fmt"

	"github.com/ashureev/symptom-intake/internal/config"
	"github.com/ashureev/symptom-intake/internal/llm"
	"github.com/ashureev/symptom-intake/internal/llm/anthropic"
	"github.com/ashureev/symptom-intake/internal/llm/gemini"
	"github.com/ashureev/symptom-intake/internal/llm/ollama"
	"github.com/ashureev/symptom-intake/internal/llm/openai"
)

// New returns the raw provider client for cfg, wrapped with retry and
// per-call timeout.
func New(ctx context.Context, cfg config.ReasoningConfig) (llm.Completer, error) {
	var (
		c   llm.Completer
		err error
	)

	switch cfg.Provider {
	case config.ProviderGemini:
		c, err = gemini.New(ctx, cfg.APIKey, cfg.Model)
	case config.ProviderOpenAI:
		c = openai.New(cfg.APIKey, cfg.Model)
	case config.ProviderAnthropic:
		c = anthropic.New(cfg.APIKey, cfg.Model)
	case config.ProviderOllama:
		c, err = ollama.New(cfg.OllamaHost, cfg.Model)
	default:
		return nil, fmt.Errorf("provider %q has no completion client", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	retry := llm.DefaultRetryConfig
	retry.MaxAttempts = cfg.MaxRetries + 1
	return llm.WithRetry(llm.WithTimeout(c, cfg.Timeout), retry), nil
}
