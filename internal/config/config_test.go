package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const sampleConfig = `
llm:
  base_url: https://api.example.com/v1
  api_key: file-key
  model: gpt-4o-mini
  temperature: 0.2
server:
  host: 127.0.0.1
  port: "9090"
relay:
  request_timeout: 45s
log:
  level: debug
`

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"OPENROUTER_API_KEY", "OPENAI_API_KEY", "LLM_BASE_URL", "LLM_MODEL", "SERVER_HOST", "SERVER_PORT", "RELAY_REQUEST_TIMEOUT", "LOG_LEVEL"} {
		t.Setenv(k, "")
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

// TestLoad_File verifies that Load unmarshals every section of config.yaml.
func TestLoad_File(t *testing.T) {
	clearEnv(t)
	t.Setenv("CONFIG_PATH", writeConfig(t, sampleConfig))

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "https://api.example.com/v1", cfg.LLM.BaseURL)
	require.Equal(t, "file-key", cfg.LLM.APIKey)
	require.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
	require.InDelta(t, 0.2, cfg.LLM.Temperature, 1e-6)
	require.Equal(t, DefaultSystemPrompt, cfg.LLM.SystemPrompt)
	require.Equal(t, "127.0.0.1:9090", cfg.Server.Address())
	require.Equal(t, 45*time.Second, cfg.Relay.RequestTimeout)
	require.Equal(t, "debug", cfg.Log.Level)
	require.NoError(t, cfg.Validate())
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("CONFIG_PATH", writeConfig(t, sampleConfig))
	t.Setenv("OPENROUTER_API_KEY", "env-key")
	t.Setenv("LLM_MODEL", "mistralai/mistral-7b-instruct")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "env-key", cfg.LLM.APIKey)
	require.Equal(t, "mistralai/mistral-7b-instruct", cfg.LLM.Model)
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("CONFIG_PATH", "")
	t.Chdir(t.TempDir())
	t.Setenv("OPENAI_API_KEY", "fallback-key")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "fallback-key", cfg.LLM.APIKey)
	require.Equal(t, "https://openrouter.ai/api/v1", cfg.LLM.BaseURL)
	require.Equal(t, "mistralai/mistral-7b-instruct", cfg.LLM.Model)
	require.Zero(t, cfg.LLM.Temperature)
	require.Zero(t, cfg.Relay.RequestTimeout)
	require.Equal(t, "0.0.0.0:8080", cfg.Server.Address())
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "nope.yaml"))

	_, err := Load()
	require.Error(t, err)
}

func TestValidate_MissingAPIKey(t *testing.T) {
	clearEnv(t)
	t.Setenv("CONFIG_PATH", "")
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)
	require.ErrorIs(t, cfg.Validate(), ErrMissingAPIKey)
}

func TestValidate_NegativeTimeout(t *testing.T) {
	cfg := Config{
		LLM:   LLMConfig{APIKey: "k", BaseURL: "http://x", Model: "m"},
		Relay: RelayConfig{RequestTimeout: -time.Second},
	}
	require.Error(t, cfg.Validate())
}
