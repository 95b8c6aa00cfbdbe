package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/sammcj/fileqa/internal/llm"
	"gopkg.in/yaml.v3"
)

// Environment variables that override the config file
const (
	EnvConfigPath  = "FILEQA_CONFIG"
	EnvModel       = "FILEQA_MODEL"
	EnvTemperature = "FILEQA_TEMPERATURE"
	EnvAPIKeyEnv   = "FILEQA_API_KEY_ENV"
	EnvBaseURL     = "OPENAI_BASE_URL"
	EnvLLMTimeout  = "FILEQA_LLM_TIMEOUT" // seconds, 0 disables the client-side timeout
	EnvMaxFileSize = "FILEQA_MAX_FILE_SIZE"
)

// DefaultAPIKeyEnv is the environment variable holding the API key
const DefaultAPIKeyEnv = "OPENAI_API_KEY"

// Config is the application configuration
type Config struct {
	// Model is the chat completion model identifier
	Model string `yaml:"model"`

	// Temperature is kept low for deterministic-leaning answers
	Temperature float64 `yaml:"temperature"`

	// APIKeyEnv names the environment variable read at startup
	APIKeyEnv string `yaml:"api_key_env"`

	// BaseURL optionally points at an OpenAI-compatible endpoint
	BaseURL string `yaml:"base_url,omitempty"`

	// TimeoutSeconds bounds each LLM request; zero leaves it unbounded
	TimeoutSeconds int `yaml:"timeout_seconds,omitempty"`

	// MaxFileSize is an optional per-file limit in bytes; zero disables it
	MaxFileSize int64 `yaml:"max_file_size,omitempty"`
}

// Default returns the built-in configuration
func Default() Config {
	return Config{
		Model:       llm.DefaultModel,
		Temperature: llm.DefaultTemperature,
		APIKeyEnv:   DefaultAPIKeyEnv,
	}
}

// Load builds the configuration from defaults, the YAML file at path (if it exists)
// and environment overrides, in that order. An empty path uses DefaultPath.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = DefaultPath()
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
		// No config file is fine
	default:
		return cfg, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// DefaultPath returns FILEQA_CONFIG or ~/.fileqa/config.yaml
func DefaultPath() string {
	if customPath := os.Getenv(EnvConfigPath); customPath != "" {
		return customPath
	}
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".fileqa", "config.yaml")
}

func (c *Config) applyEnv() {
	c.Model = getEnvString(EnvModel, c.Model)
	c.Temperature = getEnvFloat(EnvTemperature, c.Temperature)
	c.APIKeyEnv = getEnvString(EnvAPIKeyEnv, c.APIKeyEnv)
	c.BaseURL = getEnvString(EnvBaseURL, c.BaseURL)
	c.TimeoutSeconds = getEnvInt(EnvLLMTimeout, c.TimeoutSeconds)
	c.MaxFileSize = getEnvInt64(EnvMaxFileSize, c.MaxFileSize)
}

// Validate checks the configuration for values the LLM service would reject
func (c Config) Validate() error {
	if strings.TrimSpace(c.Model) == "" {
		return errors.New("model must not be empty")
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("temperature %.2f is out of range (0-2)", c.Temperature)
	}
	if strings.TrimSpace(c.APIKeyEnv) == "" {
		return errors.New("api_key_env must not be empty")
	}
	if c.TimeoutSeconds < 0 {
		return fmt.Errorf("timeout_seconds must not be negative, got %d", c.TimeoutSeconds)
	}
	return nil
}

// LLM returns the llm package configuration
func (c Config) LLM() llm.Config {
	return llm.Config{
		Model:       c.Model,
		Temperature: c.Temperature,
		BaseURL:     c.BaseURL,
		Timeout:     time.Duration(c.TimeoutSeconds) * time.Second,
	}
}

// getEnvInt gets an integer environment variable with a default value
func getEnvInt(envVar string, defaultValue int) int {
	if value := os.Getenv(envVar); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvInt64 gets a positive int64 environment variable with a default value
func getEnvInt64(envVar string, defaultValue int64) int64 {
	if value := os.Getenv(envVar); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil && intValue > 0 {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat gets a float environment variable with a default value
func getEnvFloat(envVar string, defaultValue float64) float64 {
	if value := os.Getenv(envVar); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// getEnvString gets a string environment variable with a default value
func getEnvString(envVar string, defaultValue string) string {
	if value := os.Getenv(envVar); value != "" {
		return value
	}
	return defaultValue
}
