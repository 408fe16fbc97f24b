package llm

import (
	"context"

	"github.com/easeaico/brain-agent/internal/config"
	"go.uber.org/zap"
)

// NewEmbedder builds the embedder selected by cfg. It returns nil and no
// error when the selected provider has no API key.
func NewEmbedder(ctx context.Context, cfg config.Config) (Embedder, error) {
	switch cfg.EmbeddingProvider {
	case "gemini":
		if cfg.GoogleAPIKey == "" {
			return nil, nil
		}
		e, err := NewGeminiEmbedder(ctx, cfg.GoogleAPIKey, cfg.EmbeddingModel)
		if err != nil {
			return nil, err
		}
		return e, nil
	default:
		if cfg.OpenAIAPIKey == "" {
			return nil, nil
		}
		return NewOpenAIEmbedder(cfg.OpenAIAPIKey, cfg.EmbeddingModel), nil
	}
}

// NewRouterFromConfig builds a router with a breaker around every configured
// provider.
func NewRouterFromConfig(cfg config.Config, logger *zap.Logger) *Router {
	var providers []Provider
	if cfg.OpenAIAPIKey != "" {
		providers = append(providers, NewBreaker(NewOpenAIProvider(cfg.OpenAIAPIKey), logger))
	}
	if cfg.DeepSeekAPIKey != "" {
		providers = append(providers, NewBreaker(NewDeepSeekProvider(cfg.DeepSeekAPIKey), logger))
	}
	if cfg.OpenRouterAPIKey != "" {
		providers = append(providers, NewBreaker(NewOpenRouterProvider(cfg.OpenRouterAPIKey), logger))
	}
	if cfg.HuggingFaceAPIKey != "" {
		providers = append(providers, NewBreaker(NewHuggingFaceProvider(cfg.HuggingFaceAPIKey, ""), logger))
	}
	return NewRouter(logger, providers...)
}
