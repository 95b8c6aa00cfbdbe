package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sammcj/fileqa/internal/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{EnvConfigPath, EnvModel, EnvTemperature, EnvAPIKeyEnv, EnvBaseURL, EnvLLMTimeout, EnvMaxFileSize} {
		t.Setenv(name, "")
	}
}

func TestLoad_DefaultsWhenNoFile(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))

	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, llm.DefaultModel, cfg.Model)
	assert.Equal(t, DefaultAPIKeyEnv, cfg.APIKeyEnv)
	assert.Zero(t, cfg.LLM().Timeout)
}

func TestLoad_FileThenEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
model: gpt-4.1-mini
temperature: 0.1
base_url: http://localhost:11434/v1/
timeout_seconds: 30
`), 0600))

	t.Setenv(EnvModel, "gpt-4o")

	cfg, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", cfg.Model, "env overrides file")
	assert.InDelta(t, 0.1, cfg.Temperature, 0.0001)
	assert.Equal(t, "http://localhost:11434/v1/", cfg.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.LLM().Timeout)
	assert.Equal(t, DefaultAPIKeyEnv, cfg.APIKeyEnv, "unset fields keep defaults")
}

func TestLoad_InvalidYAML(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("model: [unterminated"), 0600))

	_, err := Load(path)

	assert.ErrorContains(t, err, "failed to parse config file")
}

func TestLoad_IgnoresMalformedEnvNumbers(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvTemperature, "warm")
	t.Setenv(EnvMaxFileSize, "-5")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))

	require.NoError(t, err)
	assert.Equal(t, llm.DefaultTemperature, cfg.Temperature)
	assert.Equal(t, Default().MaxFileSize, cfg.MaxFileSize)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults are valid", func(*Config) {}, ""},
		{"empty model", func(c *Config) { c.Model = " " }, "model"},
		{"negative temperature", func(c *Config) { c.Temperature = -0.1 }, "temperature"},
		{"temperature too high", func(c *Config) { c.Temperature = 2.5 }, "temperature"},
		{"empty key env", func(c *Config) { c.APIKeyEnv = "" }, "api_key_env"},
		{"negative timeout", func(c *Config) { c.TimeoutSeconds = -1 }, "timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestDefaultPath(t *testing.T) {
	t.Setenv(EnvConfigPath, "/tmp/custom.yaml")
	assert.Equal(t, "/tmp/custom.yaml", DefaultPath())

	t.Setenv(EnvConfigPath, "")
	assert.Equal(t, "config.yaml", filepath.Base(DefaultPath()))
	assert.Equal(t, ".fileqa", filepath.Base(filepath.Dir(DefaultPath())))
}
