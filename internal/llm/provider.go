// Package llm provides chat providers, the task router and text embedders.
package llm

import (
	"context"
	"errors"
)

// Provider names.
const (
	ProviderOpenAI      = "openai"
	ProviderDeepSeek    = "deepseek"
	ProviderOpenRouter  = "openrouter"
	ProviderHuggingFace = "huggingface"
)

// ErrProviderNotConfigured is returned when a provider has no API key.
var ErrProviderNotConfigured = errors.New("provider not configured")

// Request is a single-turn completion request.
type Request struct {
	Prompt    string
	System    string
	Model     string
	MaxTokens int
}

// Response is a completion result.
type Response struct {
	Content    string `json:"response"`
	Provider   string `json:"provider"`
	Model      string `json:"model"`
	TokensUsed int    `json:"tokens_used,omitempty"`
}

// Provider completes prompts with one LLM vendor.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req Request) (Response, error)
}
