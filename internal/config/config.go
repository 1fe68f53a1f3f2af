// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Reasoning providers.
const (
	ProviderGemini    = "gemini"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderOllama    = "ollama"
	ProviderScripted  = "scripted"
)

var defaultModels = map[string]string{
	ProviderGemini:    "gemini-2.0-flash",
	ProviderOpenAI:    "gpt-4o-mini",
	ProviderAnthropic: "claude-3-5-haiku-latest",
	ProviderOllama:    "llama3.1",
}

// Config holds all application configuration.
type Config struct {
	Port                string
	FrontendURL         string
	Store               StoreConfig
	SessionTTL          time.Duration
	SweepInterval       time.Duration
	MaxTurns            int
	MaxRequestBodyBytes int64
	Reasoning           ReasoningConfig
	RateLimit           RateLimitConfig
	TranscriptLog       TranscriptLogConfig
}

// StoreConfig selects the session store backend.
type StoreConfig struct {
	Backend  string // memory, sqlite or redis
	DBPath   string
	RedisURL string
}

// ReasoningConfig selects the provider behind the interview policy and
// report compiler.
type ReasoningConfig struct {
	Provider        string
	Model           string
	APIKey          string // credential for the selected provider
	OllamaHost      string
	Timeout         time.Duration
	MaxRetries      int
	MaxOutputTokens int
	SchemaPath      string // empty uses the embedded default schema
}

// RateLimitConfig bounds interview requests per client.
type RateLimitConfig struct {
	Requests int
	Window   time.Duration
}

// TranscriptLogConfig controls NDJSON transcript logging.
type TranscriptLogConfig struct {
	Enabled       bool
	Dir           string
	GlobalEnabled bool
	GlobalPath    string
	QueueSize     int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	queueSize := getEnvInt("TRANSCRIPT_LOG_QUEUE_SIZE", 1000)
	if queueSize <= 0 {
		queueSize = 1000
	}

	provider := strings.ToLower(getEnv("REASONING_PROVIDER", ProviderGemini))

	cfg := &Config{
		Port:        getEnv("PORT", "5000"),
		FrontendURL: getEnv("FRONTEND_URL", ""),
		Store: StoreConfig{
			Backend:  strings.ToLower(getEnv("SESSION_STORE", "memory")),
			DBPath:   getEnv("DB_PATH", "./data/intake.db"),
			RedisURL: getEnv("REDIS_URL", "redis://localhost:6379"),
		},
		SessionTTL:          getEnvDuration("SESSION_TTL", 60*time.Minute),
		SweepInterval:       getEnvDuration("SWEEP_INTERVAL", 5*time.Minute),
		MaxTurns:            getEnvInt("MAX_TURNS", 10),
		MaxRequestBodyBytes: int64(getEnvInt("MAX_REQUEST_BODY_BYTES", 64*1024)),
		Reasoning: ReasoningConfig{
			Provider:        provider,
			Model:           getEnv("MODEL_NAME", defaultModels[provider]),
			APIKey:          apiKeyFor(provider),
			OllamaHost:      getEnv("OLLAMA_HOST", "http://localhost:11434"),
			Timeout:         getEnvDuration("REASONING_TIMEOUT", 30*time.Second),
			MaxRetries:      getEnvInt("REASONING_MAX_RETRIES", 2),
			MaxOutputTokens: getEnvInt("REASONING_MAX_OUTPUT_TOKENS", 1024),
			SchemaPath:      getEnv("REPORT_SCHEMA_PATH", ""),
		},
		RateLimit: RateLimitConfig{
			Requests: getEnvInt("RATE_LIMIT_REQUESTS", 30),
			Window:   getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
		},
		TranscriptLog: TranscriptLogConfig{
			Enabled:       getEnvBool("TRANSCRIPT_LOG_ENABLED", false),
			Dir:           getEnv("TRANSCRIPT_LOG_DIR", "./data/logs/transcripts"),
			GlobalEnabled: getEnvBool("TRANSCRIPT_LOG_GLOBAL_ENABLED", false),
			GlobalPath:    getEnv("TRANSCRIPT_LOG_GLOBAL_PATH", "./data/logs/transcripts/all.ndjson"),
			QueueSize:     queueSize,
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	switch c.Store.Backend {
	case "memory":
	case "sqlite":
		if c.Store.DBPath == "" {
			return fmt.Errorf("DB_PATH cannot be empty")
		}
	case "redis":
		if c.Store.RedisURL == "" {
			return fmt.Errorf("REDIS_URL cannot be empty")
		}
	default:
		return fmt.Errorf("SESSION_STORE must be memory, sqlite or redis, got %q", c.Store.Backend)
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be > 0")
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("SWEEP_INTERVAL must be > 0")
	}
	if c.MaxTurns < 0 {
		return fmt.Errorf("MAX_TURNS must be >= 0")
	}
	if c.MaxRequestBodyBytes <= 0 {
		return fmt.Errorf("MAX_REQUEST_BODY_BYTES must be > 0")
	}
	if err := c.Reasoning.validate(); err != nil {
		return err
	}
	if c.RateLimit.Requests <= 0 || c.RateLimit.Window <= 0 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS and RATE_LIMIT_WINDOW must be > 0")
	}
	if c.TranscriptLog.Dir == "" {
		return fmt.Errorf("TRANSCRIPT_LOG_DIR cannot be empty")
	}
	if c.TranscriptLog.GlobalPath == "" {
		return fmt.Errorf("TRANSCRIPT_LOG_GLOBAL_PATH cannot be empty")
	}
	if c.TranscriptLog.QueueSize <= 0 {
		return fmt.Errorf("TRANSCRIPT_LOG_QUEUE_SIZE must be > 0")
	}
	return nil
}

func (r ReasoningConfig) validate() error {
	switch r.Provider {
	case ProviderGemini, ProviderOpenAI, ProviderAnthropic:
		if r.APIKey == "" {
			return fmt.Errorf("%s must be set for provider %q", apiKeyEnv[r.Provider], r.Provider)
		}
	case ProviderOllama:
		if r.OllamaHost == "" {
			return fmt.Errorf("OLLAMA_HOST cannot be empty")
		}
	case ProviderScripted:
		return nil
	default:
		return fmt.Errorf("unknown REASONING_PROVIDER %q", r.Provider)
	}
	if r.Model == "" {
		return fmt.Errorf("MODEL_NAME cannot be empty")
	}
	if r.Timeout <= 0 {
		return fmt.Errorf("REASONING_TIMEOUT must be > 0")
	}
	if r.MaxRetries < 0 {
		return fmt.Errorf("REASONING_MAX_RETRIES must be >= 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

// AllowedOrigins returns the CORS origins for the configured frontend.
func (c *Config) AllowedOrigins() []string {
	if c.IsDevelopment() {
		return []string{"*"}
	}
	return []string{c.FrontendURL}
}

var apiKeyEnv = map[string]string{
	ProviderGemini:    "GEMINI_API_KEY",
	ProviderOpenAI:    "OPENAI_API_KEY",
	ProviderAnthropic: "ANTHROPIC_API_KEY",
}

func apiKeyFor(provider string) string {
	if env, ok := apiKeyEnv[provider]; ok {
		return strings.TrimSpace(os.Getenv(env))
	}
	return ""
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
