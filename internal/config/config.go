package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// ErrMissingAPIKey is returned by Validate when no upstream credential is configured.
var ErrMissingAPIKey = errors.New("config: upstream API key is not set (OPENROUTER_API_KEY or OPENAI_API_KEY)")

const DefaultSystemPrompt = "You are a professional prompt engineer. Rewrite the user's prompt to be clear, structured, and precise. Return only the improved prompt."

// Config holds the application configuration
type Config struct {
	LLM    LLMConfig
	Server ServerConfig
	Relay  RelayConfig
	Log    LogConfig
}

// LLMConfig holds the upstream provider configuration
type LLMConfig struct {
	BaseURL      string  `mapstructure:"base_url"`
	APIKey       string  `mapstructure:"api_key"`
	Model        string  `mapstructure:"model"`
	Temperature  float32 `mapstructure:"temperature"`
	SystemPrompt string  `mapstructure:"system_prompt"`
}

// ServerConfig holds the server configuration
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port string `mapstructure:"port"`
}

// RelayConfig holds per-request relay settings.
// A zero RequestTimeout leaves the upstream call unbounded.
type RelayConfig struct {
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// LogConfig holds the logging configuration
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// Address returns the host:port the server listens on.
func (c ServerConfig) Address() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

// Validate reports configuration errors that must stop the process at startup.
func (c Config) Validate() error {
	if c.LLM.APIKey == "" {
		return ErrMissingAPIKey
	}
	if c.LLM.BaseURL == "" {
		return errors.New("config: llm.base_url is empty")
	}
	if c.LLM.Model == "" {
		return errors.New("config: llm.model is empty")
	}
	if c.Relay.RequestTimeout < 0 {
		return fmt.Errorf("config: relay.request_timeout must not be negative, got %s", c.Relay.RequestTimeout)
	}
	return nil
}

// Load reads config.yaml (or the file named by CONFIG_PATH) and applies
// environment overrides on top. A missing config.yaml is not an error.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if err := bindEnv(v); err != nil {
		return nil, err
	}

	if path := os.Getenv("CONFIG_PATH"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("llm.base_url", "https://openrouter.ai/api/v1")
	v.SetDefault("llm.model", "mistralai/mistral-7b-instruct")
	v.SetDefault("llm.temperature", 0)
	v.SetDefault("llm.system_prompt", DefaultSystemPrompt)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "8080")
	v.SetDefault("relay.request_timeout", "0s")
	v.SetDefault("log.level", "info")
}

func bindEnv(v *viper.Viper) error {
	bindings := [][]string{
		{"llm.api_key", "OPENROUTER_API_KEY", "OPENAI_API_KEY"},
		{"llm.base_url", "LLM_BASE_URL"},
		{"llm.model", "LLM_MODEL"},
		{"server.host", "SERVER_HOST"},
		{"server.port", "SERVER_PORT"},
		{"relay.request_timeout", "RELAY_REQUEST_TIMEOUT"},
		{"log.level", "LOG_LEVEL"},
	}
	for _, b := range bindings {
		if err := v.BindEnv(b...); err != nil {
			return fmt.Errorf("bind env %s: %w", b[0], err)
		}
	}
	return nil
}
