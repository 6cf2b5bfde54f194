package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Config represents application configuration
type Config struct {
	Provider        string  `json:"provider"` // "anthropic" or "openai"
	AnthropicAPIKey string  `json:"anthropic_api_key,omitempty"`
	OpenAIAPIKey    string  `json:"openai_api_key,omitempty"`
	ChatModel       string  `json:"chat_model,omitempty"`
	DocumentModel   string  `json:"document_model,omitempty"`
	Temperature     float64 `json:"temperature"`
	MaxTokens       int     `json:"max_tokens"`

	SnapshotBackend string `json:"snapshot_backend"` // "memory", "sqlite" or "redis"
	SnapshotPath    string `json:"snapshot_path,omitempty"`
	RedisAddr       string `json:"redis_addr,omitempty"`

	SpeechURL string `json:"speech_url,omitempty"` // speech-to-text stream endpoint
	FlagPath  string `json:"flag_path,omitempty"`  // feature-flag file watched for runtime resets

	LogLevel string `json:"log_level"`
	LogPath  string `json:"log_path,omitempty"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Provider:        "anthropic",
		Temperature:     0.7,
		MaxTokens:       2048,
		SnapshotBackend: "memory",
		RedisAddr:       "localhost:6379",
		LogLevel:        "info",
	}
}

// GetConfigPath returns the default config file location
func GetConfigPath() string {
	configDir, err := os.UserConfigDir()
	if err != nil {
		home, _ := os.UserHomeDir()
		configDir = filepath.Join(home, ".config")
	}
	return filepath.Join(configDir, "flowpilot", "config.json")
}

// Load reads configuration from path, falling back to defaults when the file
// does not exist, then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	} else if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes the configuration to path
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	return os.WriteFile(path, data, 0600)
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		c.AnthropicAPIKey = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		c.OpenAIAPIKey = v
	}
	if v := os.Getenv("FLOWPILOT_PROVIDER"); v != "" {
		c.Provider = v
	}
	if v := os.Getenv("FLOWPILOT_REDIS_ADDR"); v != "" {
		c.RedisAddr = v
	}
	if v := os.Getenv("FLOWPILOT_SPEECH_URL"); v != "" {
		c.SpeechURL = v
	}
	if v := os.Getenv("FLOWPILOT_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
}

func (c *Config) validate() error {
	switch strings.ToLower(strings.TrimSpace(c.Provider)) {
	case "anthropic", "openai":
	default:
		return fmt.Errorf("unknown provider %q", c.Provider)
	}

	switch strings.ToLower(strings.TrimSpace(c.SnapshotBackend)) {
	case "", "memory", "sqlite", "redis":
	default:
		return fmt.Errorf("unknown snapshot backend %q", c.SnapshotBackend)
	}

	return nil
}
