package cli

import (
	"fmt"

	"github.com/SanJoeng/ChatLab/internal/config"
	"github.com/SanJoeng/ChatLab/internal/logger"
	"github.com/SanJoeng/ChatLab/pkg/chatstore"
	"github.com/SanJoeng/ChatLab/pkg/llm"
	"github.com/SanJoeng/ChatLab/pkg/toolruntime"
)

// app bundles the wired components behind a command.
type app struct {
	cfg   *config.Config
	log   *logger.Logger
	store *chatstore.Store
	tools *toolruntime.Executor
}

// newApp loads configuration and wires the store and tool runtime.
// The caller owns the returned app and must call close.
func newApp() (*app, error) {
	cfg, err := config.NewLoader(cfgFile).Load()
	if err != nil {
		return nil, err
	}

	level := cfg.Logging.Level
	if logLevel != "" {
		level = logLevel
	}
	log, err := logger.New(logger.Config{
		Level:   level,
		File:    cfg.Logging.File,
		Console: true,
		Pretty:  true,
	})
	if err != nil {
		return nil, err
	}

	var embeddings chatstore.EmbeddingProvider
	if cfg.EmbeddingModel() != "" {
		apiKey := cfg.AI.EmbeddingAPIKey
		if apiKey == "" {
			apiKey = cfg.AI.APIKey
		}
		embeddings = chatstore.NewOpenAIEmbeddings(apiKey, cfg.EmbeddingModel(), cfg.AI.EmbeddingBaseURL)
	}

	store, err := chatstore.New(chatstore.Config{
		DBPath:     cfg.Chat.DBPath,
		Logger:     log.GetZerolog(),
		Embeddings: embeddings,
	})
	if err != nil {
		log.Close()
		return nil, fmt.Errorf("failed to open chat store: %w", err)
	}

	tools := toolruntime.New()
	if err := chatstore.RegisterTools(tools, store); err != nil {
		store.Close()
		log.Close()
		return nil, fmt.Errorf("failed to register tools: %w", err)
	}

	return &app{cfg: cfg, log: log, store: store, tools: tools}, nil
}

// provider creates the configured LLM provider.
func (a *app) provider() (llm.Provider, error) {
	if err := a.cfg.Validate(); err != nil {
		return nil, err
	}
	var f llm.Factory
	return f.NewProvider(a.cfg.AI.Provider, a.cfg.AI.APIKey, a.cfg.AI.BaseURL)
}

func (a *app) close() {
	a.store.Close()
	a.log.Close()
}
