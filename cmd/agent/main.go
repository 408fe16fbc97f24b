// Package main runs the brain as an ADK agent with long-term memory tools.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/easeaico/brain-agent/internal/brain"
	"github.com/easeaico/brain-agent/internal/config"
	"github.com/easeaico/brain-agent/internal/llm"
	"github.com/easeaico/brain-agent/internal/memory"
	"github.com/easeaico/brain-agent/internal/service"
	"github.com/easeaico/brain-agent/internal/tools"
	"github.com/easeaico/brain-agent/internal/vectorstore"
	"go.uber.org/zap"
	"google.golang.org/adk/agent"
	"google.golang.org/adk/agent/llmagent"
	"google.golang.org/adk/cmd/launcher"
	"google.golang.org/adk/cmd/launcher/full"
	"google.golang.org/adk/model/gemini"
	"google.golang.org/genai"
)

const agentModel = "gemini-2.0-flash"

func main() {
	logger, err := newLogger(os.Getenv("LOG_LEVEL"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(logger); err != nil {
		logger.Error("agent exited", zap.Error(err))
		os.Exit(1)
	}
}

func newLogger(level string) (*zap.Logger, error) {
	if level == "debug" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func embeddingDimension(cfg config.Config) int {
	if cfg.EmbeddingProvider == "gemini" {
		return 768
	}
	return vectorstore.DefaultDimension
}

func run(logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.GoogleAPIKey == "" {
		return fmt.Errorf("%w: GOOGLE_API_KEY is required for the agent model", config.ErrInvalidConfig)
	}

	var qdrant *vectorstore.Client
	if cfg.QdrantURL != "" {
		qdrant = vectorstore.NewClient(cfg.QdrantURL, cfg.QdrantAPIKey)
	}
	store, err := memory.Open(ctx, memory.OpenOptions{
		Backend:     cfg.DBType,
		DatabaseURL: cfg.DatabaseURL,
		Qdrant:      qdrant,
		Collection:  cfg.QdrantCollection,
		Dimension:   embeddingDimension(cfg),
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer store.Close()

	embedder, err := llm.NewEmbedder(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to create embedder: %w", err)
	}
	var memEmbedder memory.Embedder
	if embedder != nil {
		memEmbedder = embedder
	}

	tracker := brain.NewAccessTracker(store, logger, 0)
	defer tracker.Close()
	go logAccessErrors(tracker, logger)

	loader := brain.NewLoader(brain.Config{
		Store:     store,
		Embedder:  memEmbedder,
		Tracker:   tracker,
		Logger:    logger,
		ProjectID: cfg.ProjectID,
	})

	llmAgent, err := newAgent(ctx, cfg, loader, logger)
	if err != nil {
		return err
	}

	launchCfg := &launcher.Config{
		AgentLoader:   agent.NewSingleLoader(llmAgent),
		MemoryService: memory.NewService(store, memEmbedder, cfg.ProjectID),
	}
	l := full.NewLauncher()
	if err := l.Execute(ctx, launchCfg, os.Args[1:]); err != nil {
		return fmt.Errorf("failed to run agent: %w\n\n%s", err, l.CommandLineSyntax())
	}
	return nil
}

func logAccessErrors(tracker *brain.AccessTracker, logger *zap.Logger) {
	for err := range tracker.Errors() {
		logger.Warn("access tracking failed", zap.Error(err))
	}
}

// newAgent builds the LLM agent. The instruction carries the mandatory
// brain context loaded at startup; everything else is fetched through tools.
func newAgent(ctx context.Context, cfg config.Config, loader *brain.Loader, logger *zap.Logger) (agent.Agent, error) {
	agentTools, err := tools.BuildTools(tools.ToolsConfig{Loader: loader, WorkDir: cfg.WorkDir})
	if err != nil {
		return nil, fmt.Errorf("failed to build tools: %w", err)
	}
	names := make([]string, len(agentTools))
	for i, t := range agentTools {
		names[i] = t.Name()
	}

	mandatory, err := loader.GetMandatoryContext(ctx)
	if err != nil {
		logger.Warn("failed to load mandatory context", zap.Error(err))
	}
	instruction, err := service.BuildSystemPrompt(service.PromptData{
		Context: brain.FormatContext(brain.Context{Mandatory: mandatory}),
		Tools:   names,
	})
	if err != nil {
		return nil, err
	}

	model, err := gemini.NewModel(ctx, agentModel, &genai.ClientConfig{
		APIKey:  cfg.GoogleAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM model: %w", err)
	}

	a, err := llmagent.New(llmagent.Config{
		Name:        "brain_agent",
		Description: "Assistant with a persistent long-term memory of knowledge, preferences and solved errors",
		Model:       model,
		Instruction: instruction,
		Tools:       agentTools,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create agent: %w", err)
	}

	logger.Info("agent initialized",
		zap.Int("mandatory_memories", len(mandatory)),
		zap.Strings("tools", names))
	return a, nil
}
