package llm

import (
	"context"
	"fmt"

	"github.com/cohesion-org/deepseek-go"
)

const deepSeekDefaultModel = "deepseek-chat"

// DeepSeekProvider completes prompts with the DeepSeek API.
type DeepSeekProvider struct {
	client *deepseek.Client
}

// NewDeepSeekProvider creates a provider. baseURL is optional.
func NewDeepSeekProvider(apiKey string, baseURL ...string) *DeepSeekProvider {
	return &DeepSeekProvider{client: deepseek.NewClient(apiKey, baseURL...)}
}

// Name returns the provider name.
func (p *DeepSeekProvider) Name() string { return ProviderDeepSeek }

// Complete sends a single-turn chat completion.
func (p *DeepSeekProvider) Complete(ctx context.Context, req Request) (Response, error) {
	model := req.Model
	if model == "" {
		model = deepSeekDefaultModel
	}

	var messages []deepseek.ChatCompletionMessage
	if req.System != "" {
		messages = append(messages, deepseek.ChatCompletionMessage{Role: deepseek.ChatMessageRoleSystem, Content: req.System})
	}
	messages = append(messages, deepseek.ChatCompletionMessage{Role: deepseek.ChatMessageRoleUser, Content: req.Prompt})

	request := &deepseek.ChatCompletionRequest{
		Model:    model,
		Messages: messages,
	}
	if req.MaxTokens > 0 {
		request.MaxTokens = req.MaxTokens
	}

	resp, err := p.client.CreateChatCompletion(ctx, request)
	if err != nil {
		return Response{}, fmt.Errorf("deepseek completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Response{}, fmt.Errorf("deepseek completion: no choices returned")
	}

	return Response{
		Content:  resp.Choices[0].Message.Content,
		Provider: ProviderDeepSeek,
		Model:    model,
	}, nil
}

var _ Provider = (*DeepSeekProvider)(nil)
