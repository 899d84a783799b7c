package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.AI.APIKey = "key"
	return cfg
}

func TestValidate(t *testing.T) {
	t.Run("should accept a filled default config", func(t *testing.T) {
		assert.NoError(t, validConfig().Validate())
	})

	t.Run("should reject an unknown provider", func(t *testing.T) {
		cfg := validConfig()
		cfg.AI.Provider = "gemini"
		assert.Error(t, cfg.Validate())
	})

	t.Run("should require an api key", func(t *testing.T) {
		cfg := validConfig()
		cfg.AI.APIKey = ""
		assert.Error(t, cfg.Validate())
	})

	t.Run("should reject out-of-range temperature", func(t *testing.T) {
		cfg := validConfig()
		cfg.Agent.Temperature = 1.2
		assert.Error(t, cfg.Validate())
	})

	t.Run("should require at least one tool round", func(t *testing.T) {
		cfg := validConfig()
		cfg.Agent.MaxToolRounds = 0
		assert.Error(t, cfg.Validate())
	})
}

func TestSettings(t *testing.T) {
	t.Run("should trim the embedding model", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.AI.EmbeddingModel = "  text-embedding-3-small  "
		assert.Equal(t, "text-embedding-3-small", cfg.EmbeddingModel())

		cfg.AI.EmbeddingModel = "   "
		assert.Empty(t, cfg.EmbeddingModel())
	})

	t.Run("should expose the message limit", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Chat.MessageLimit = 123
		assert.Equal(t, 123, cfg.MaxMessageLimit())
	})
}

func TestLoader(t *testing.T) {
	t.Run("should return defaults when the file is missing", func(t *testing.T) {
		cfg, err := NewLoader(filepath.Join(t.TempDir(), "missing.json")).Load()
		require.NoError(t, err)
		assert.Equal(t, "openai", cfg.AI.Provider)
		assert.Equal(t, 5, cfg.Agent.MaxToolRounds)
		assert.NotEmpty(t, cfg.Chat.DBPath)
		assert.NotEmpty(t, cfg.Logging.File)
	})

	t.Run("should load and merge a config file over defaults", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "chatlab.json")
		require.NoError(t, os.WriteFile(path, []byte(`{
			"ai": {"provider": "anthropic", "api_key": "k", "model": "claude-sonnet-4"},
			"agent": {"max_tool_rounds": 3},
			"data_dir": "`+dir+`"
		}`), 0644))

		cfg, err := NewLoader(path).Load()
		require.NoError(t, err)
		assert.Equal(t, "anthropic", cfg.AI.Provider)
		assert.Equal(t, 3, cfg.Agent.MaxToolRounds)
		// Untouched sections keep their defaults.
		assert.Equal(t, 0.7, cfg.Agent.Temperature)
		assert.Equal(t, filepath.Join(dir, "chatlab.db"), cfg.Chat.DBPath)
	})

	t.Run("should round-trip through save", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "chatlab.json")
		loader := NewLoader(path)

		cfg := validConfig()
		cfg.AI.Model = "gpt-4.1"
		require.NoError(t, loader.Save(cfg))

		loaded, err := loader.Load()
		require.NoError(t, err)
		assert.Equal(t, "gpt-4.1", loaded.AI.Model)
		assert.Equal(t, "key", loaded.AI.APIKey)
	})
}
