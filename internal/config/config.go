package config

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Config represents the main ChatLab configuration
type Config struct {
	// AI configuration
	AI AIConfig `json:"ai" mapstructure:"ai"`

	// Agent behavior
	Agent AgentConfig `json:"agent" mapstructure:"agent"`

	// Chat corpus storage
	Chat ChatConfig `json:"chat" mapstructure:"chat"`

	// Embedding sync schedule
	Sync SyncConfig `json:"sync" mapstructure:"sync"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Data directory
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// AIConfig holds AI provider configuration
type AIConfig struct {
	Provider         string `json:"provider" mapstructure:"provider"` // openai, anthropic
	APIKey           string `json:"api_key" mapstructure:"api_key"`
	BaseURL          string `json:"base_url" mapstructure:"base_url"`
	Model            string `json:"model" mapstructure:"model"`
	EmbeddingModel   string `json:"embedding_model" mapstructure:"embedding_model"`
	EmbeddingBaseURL string `json:"embedding_base_url" mapstructure:"embedding_base_url"`
	EmbeddingAPIKey  string `json:"embedding_api_key" mapstructure:"embedding_api_key"`
}

// AgentConfig controls the tool-calling loop
type AgentConfig struct {
	Temperature   float64 `json:"temperature" mapstructure:"temperature"`
	MaxTokens     int     `json:"max_tokens" mapstructure:"max_tokens"`
	MaxToolRounds int     `json:"max_tool_rounds" mapstructure:"max_tool_rounds"`
	Locale        string  `json:"locale" mapstructure:"locale"`
}

// ChatConfig holds chat corpus storage settings
type ChatConfig struct {
	DBPath       string `json:"db_path" mapstructure:"db_path"`
	ExportDir    string `json:"export_dir" mapstructure:"export_dir"`
	MessageLimit int    `json:"message_limit" mapstructure:"message_limit"`
}

// SyncConfig holds embedding sync schedule settings
type SyncConfig struct {
	Schedule  string `json:"schedule" mapstructure:"schedule"` // cron spec, e.g. "@every 5m"
	BatchSize int    `json:"batch_size" mapstructure:"batch_size"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `json:"level" mapstructure:"level"`
	File  string `json:"file" mapstructure:"file"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		AI: AIConfig{
			Provider: "openai",
			Model:    "gpt-4o",
		},
		Agent: AgentConfig{
			Temperature:   0.7,
			MaxTokens:     2048,
			MaxToolRounds: 5,
			Locale:        "en",
		},
		Chat: ChatConfig{
			MessageLimit: 200,
		},
		Sync: SyncConfig{
			Schedule:  "@every 5m",
			BatchSize: 64,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		DataDir: "",
	}
}

// String returns a JSON representation of the config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	switch c.AI.Provider {
	case "openai", "anthropic":
	default:
		return fmt.Errorf("invalid provider %q (must be: openai, anthropic)", c.AI.Provider)
	}
	if c.AI.APIKey == "" {
		return fmt.Errorf("ai.api_key is required")
	}
	if c.AI.Model == "" {
		return fmt.Errorf("ai.model is required")
	}
	if c.Agent.Temperature < 0 || c.Agent.Temperature > 1 {
		return fmt.Errorf("agent.temperature must be within [0, 1]")
	}
	if c.Agent.MaxTokens < 0 {
		return fmt.Errorf("agent.max_tokens must not be negative")
	}
	if c.Agent.MaxToolRounds < 1 {
		return fmt.Errorf("agent.max_tool_rounds must be at least 1")
	}
	if c.Chat.MessageLimit < 1 {
		return fmt.Errorf("chat.message_limit must be at least 1")
	}
	return nil
}

// EmbeddingModel reports the configured embedding model, empty when
// semantic retrieval is disabled.
func (c *Config) EmbeddingModel() string {
	return strings.TrimSpace(c.AI.EmbeddingModel)
}

// MaxMessageLimit reports the per-query ceiling on retrieved messages.
func (c *Config) MaxMessageLimit() int {
	return c.Chat.MessageLimit
}
