package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("GROQ_API_KEY", "")
	t.Setenv("MODEL", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, DefaultModel, cfg.Model)
	assert.Equal(t, 5, cfg.MaxIterations)
	assert.Equal(t, 60*time.Second, cfg.LLMTimeout())
	assert.Equal(t, 30*time.Minute, cfg.SessionIdleTimeout())
	assert.Equal(t, 30*time.Second, cfg.PingInterval())
	assert.Equal(t, int64(65536), cfg.WSMaxMessageSize)
	assert.ErrorIs(t, cfg.Validate(), ErrMissingAPIKey)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("GROQ_API_KEY", "secret")
	t.Setenv("MAX_ITERATIONS", "3")
	t.Setenv("MODE", "mock")
	t.Setenv("TURN_TIMEOUT_MS", "1500")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "secret", cfg.APIKey)
	assert.Equal(t, 3, cfg.MaxIterations)
	assert.True(t, cfg.MockMode())
	assert.Equal(t, 1500*time.Millisecond, cfg.TurnTimeout())
	assert.NoError(t, cfg.Validate())
}

func TestLoadDotEnvBelowEnvironment(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("GROQ_API_KEY=from-file\nMODEL=file-model\n"), 0o600))
	t.Setenv("MODEL", "env-model")
	t.Setenv("GROQ_API_KEY", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "from-file", cfg.APIKey)
	assert.Equal(t, "env-model", cfg.Model)
}

func TestValidateMockModeWithoutKey(t *testing.T) {
	cfg := &Config{Mode: ModeMock, MaxIterations: 5}
	assert.NoError(t, cfg.Validate())

	cfg.MaxIterations = 0
	assert.Error(t, cfg.Validate())
}
