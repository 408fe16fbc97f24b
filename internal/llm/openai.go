package llm

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const (
	openAIDefaultModel     = "gpt-4-turbo-preview"
	openRouterDefaultModel = "auto"
	openRouterBaseURL      = "https://openrouter.ai/api/v1"
	defaultMaxTokens       = 4096
)

// OpenAIProvider talks to any OpenAI-compatible chat completions API.
type OpenAIProvider struct {
	name         string
	client       openai.Client
	defaultModel string
}

// NewOpenAIProvider creates a provider for api.openai.com.
func NewOpenAIProvider(apiKey string, opts ...option.RequestOption) *OpenAIProvider {
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &OpenAIProvider{
		name:         ProviderOpenAI,
		client:       openai.NewClient(opts...),
		defaultModel: openAIDefaultModel,
	}
}

// NewOpenRouterProvider creates a provider for OpenRouter, which speaks the
// OpenAI wire format.
func NewOpenRouterProvider(apiKey string, opts ...option.RequestOption) *OpenAIProvider {
	opts = append([]option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithBaseURL(openRouterBaseURL),
	}, opts...)
	return &OpenAIProvider{
		name:         ProviderOpenRouter,
		client:       openai.NewClient(opts...),
		defaultModel: openRouterDefaultModel,
	}
}

// Name returns the provider name.
func (p *OpenAIProvider) Name() string { return p.name }

// Complete sends a single-turn chat completion.
func (p *OpenAIProvider) Complete(ctx context.Context, req Request) (Response, error) {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	var messages []openai.ChatCompletionMessageParamUnion
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	messages = append(messages, openai.UserMessage(req.Prompt))

	resp, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:     openai.ChatModel(model),
		Messages:  messages,
		MaxTokens: openai.Int(int64(maxTokens)),
	})
	if err != nil {
		return Response{}, fmt.Errorf("%s completion: %w", p.name, err)
	}
	if len(resp.Choices) == 0 {
		return Response{}, fmt.Errorf("%s completion: no choices returned", p.name)
	}

	return Response{
		Content:    resp.Choices[0].Message.Content,
		Provider:   p.name,
		Model:      model,
		TokensUsed: int(resp.Usage.TotalTokens),
	}, nil
}

var _ Provider = (*OpenAIProvider)(nil)
