package main

import (
	"context"
	"fmt"

	"github.com/easeaico/brain-agent/internal/brain"
	"github.com/easeaico/brain-agent/internal/config"
	"github.com/easeaico/brain-agent/internal/integrations/github"
	"github.com/easeaico/brain-agent/internal/llm"
	"github.com/easeaico/brain-agent/internal/memory"
	"github.com/easeaico/brain-agent/internal/tools"
	"github.com/easeaico/brain-agent/internal/vectorstore"
	"go.uber.org/zap"
)

const trackerQueueSize = 256

// app holds the wired components shared by the subcommands.
type app struct {
	cfg        config.Config
	logger     *zap.Logger
	store      memory.Store
	embedder   llm.Embedder
	router     *llm.Router
	tracker    *brain.AccessTracker
	loader     *brain.Loader
	qdrant     *vectorstore.Client
	github     *github.Client
	dispatcher *tools.Dispatcher
}

func (c *cli) loadConfig() (config.Config, error) {
	return config.LoadPath(c.configPath)
}

func embeddingDimension(cfg config.Config) int {
	if cfg.EmbeddingProvider == "gemini" {
		return 768
	}
	return vectorstore.DefaultDimension
}

func openStore(ctx context.Context, cfg config.Config, qdrant *vectorstore.Client) (memory.Store, error) {
	return memory.Open(ctx, memory.OpenOptions{
		Backend:     cfg.DBType,
		DatabaseURL: cfg.DatabaseURL,
		Qdrant:      qdrant,
		Collection:  cfg.QdrantCollection,
		Dimension:   embeddingDimension(cfg),
	})
}

func (c *cli) newApp(ctx context.Context) (*app, error) {
	cfg, err := c.loadConfig()
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: c.logger}

	if cfg.QdrantURL != "" {
		a.qdrant = vectorstore.NewClient(cfg.QdrantURL, cfg.QdrantAPIKey)
	}

	a.store, err = openStore(ctx, cfg, a.qdrant)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", cfg.DBType, err)
	}

	a.embedder, err = llm.NewEmbedder(ctx, cfg)
	if err != nil {
		a.store.Close()
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	if a.embedder == nil {
		c.logger.Warn("no embedding provider configured, semantic search disabled",
			zap.String("provider", cfg.EmbeddingProvider))
	}

	a.router = llm.NewRouterFromConfig(cfg, c.logger)
	a.tracker = brain.NewAccessTracker(a.store, c.logger, trackerQueueSize)
	go a.logAccessErrors()

	var embedder memory.Embedder
	if a.embedder != nil {
		embedder = a.embedder
	}
	a.loader = brain.NewLoader(brain.Config{
		Store:     a.store,
		Embedder:  embedder,
		Tracker:   a.tracker,
		Logger:    c.logger,
		ProjectID: cfg.ProjectID,
	})

	if cfg.GitHubToken != "" {
		a.github = github.NewClient(cfg.GitHubToken, cfg.GitHubOwner, cfg.GitHubRepo)
	}

	a.dispatcher = tools.NewDispatcher(tools.Deps{
		Loader:       a.loader,
		Router:       a.router,
		Embedder:     a.embedder,
		Qdrant:       a.qdrant,
		GitHub:       a.github,
		Integrations: cfg.Integrations(),
		Logger:       c.logger,
	})

	c.logger.Info("brain initialized",
		zap.String("db_type", cfg.DBType),
		zap.String("project_id", cfg.ProjectID),
		zap.Any("providers", a.router.Configured()))
	return a, nil
}

func (a *app) logAccessErrors() {
	for err := range a.tracker.Errors() {
		a.logger.Warn("access tracking failed", zap.Error(err))
	}
}

// toolNames lists every dispatcher tool for the chat system prompt.
func (a *app) toolNames() []string {
	defs := a.dispatcher.Definitions()
	names := make([]string, len(defs))
	for i, d := range defs {
		names[i] = d.Name
	}
	return names
}

func (a *app) Close() {
	a.tracker.Close()
	if err := a.store.Close(); err != nil {
		a.logger.Warn("failed to close store", zap.Error(err))
	}
}
