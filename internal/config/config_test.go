package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWithScriptedProvider(t *testing.T) {
	t.Setenv("REASONING_PROVIDER", "scripted")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "5000", cfg.Port)
	assert.Equal(t, "memory", cfg.Store.Backend)
	assert.Equal(t, 60*time.Minute, cfg.SessionTTL)
	assert.Equal(t, 10, cfg.MaxTurns)
	assert.Equal(t, ProviderScripted, cfg.Reasoning.Provider)
	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins())
}

func TestLoadFailsWithoutProviderKey(t *testing.T) {
	t.Setenv("REASONING_PROVIDER", "gemini")
	t.Setenv("GEMINI_API_KEY", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GEMINI_API_KEY")
}

func TestLoadPicksProviderKeyAndModel(t *testing.T) {
	t.Setenv("REASONING_PROVIDER", "anthropic")
	t.Setenv("ANTHROPIC_API_KEY", " sk-test ")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "sk-test", cfg.Reasoning.APIKey)
	assert.Equal(t, "claude-3-5-haiku-latest", cfg.Reasoning.Model)
}

func TestLoadParsesOverrides(t *testing.T) {
	t.Setenv("REASONING_PROVIDER", "scripted")
	t.Setenv("SESSION_STORE", "SQLite")
	t.Setenv("SESSION_TTL", "15m")
	t.Setenv("MAX_TURNS", "0")
	t.Setenv("TRANSCRIPT_LOG_ENABLED", "yes")
	t.Setenv("FRONTEND_URL", "https://intake.example.org")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Store.Backend)
	assert.Equal(t, 15*time.Minute, cfg.SessionTTL)
	assert.Equal(t, 0, cfg.MaxTurns)
	assert.True(t, cfg.TranscriptLog.Enabled)
	assert.False(t, cfg.IsDevelopment())
	assert.Equal(t, []string{"https://intake.example.org"}, cfg.AllowedOrigins())
}

func TestValidateRejectsUnknownStore(t *testing.T) {
	t.Setenv("REASONING_PROVIDER", "scripted")
	t.Setenv("SESSION_STORE", "etcd")

	_, err := Load()
	assert.Error(t, err)
}
