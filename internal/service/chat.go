// Package service orchestrates chat turns: it loads brain context, routes
// the prompt to a provider and records the conversation.
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/easeaico/brain-agent/internal/brain"
	"github.com/easeaico/brain-agent/internal/llm"
	"github.com/easeaico/brain-agent/internal/memory"
	"github.com/easeaico/brain-agent/internal/textutil"
	"go.uber.org/zap"
)

// ErrEmptyMessage is returned when a chat request has no message.
var ErrEmptyMessage = errors.New("message is required")

const (
	historyLimit = 20
	titleLimit   = 60
)

// ChatRequest is a single user turn.
type ChatRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id,omitempty"`
	// Provider pins the provider; empty means routed by task type.
	Provider string `json:"provider,omitempty"`
	TaskType string `json:"task_type,omitempty"`
}

// ChatResponse is the assistant's answer with routing details.
type ChatResponse struct {
	Response       string       `json:"response"`
	Provider       string       `json:"provider"`
	Model          string       `json:"model"`
	TaskType       llm.TaskType `json:"task_type"`
	ConversationID string       `json:"conversation_id,omitempty"`
	ContextTokens  int          `json:"context_tokens"`
}

// ChatService answers messages with brain context.
type ChatService struct {
	loader *brain.Loader
	router *llm.Router
	tools  []string
	logger *zap.Logger
}

// NewChatService creates a chat service. toolNames are advertised in the
// system prompt.
func NewChatService(loader *brain.Loader, router *llm.Router, toolNames []string, logger *zap.Logger) *ChatService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatService{loader: loader, router: router, tools: toolNames, logger: logger}
}

// Chat answers one message. Context loading and persistence failures are
// logged and do not fail the turn; provider failures do.
func (s *ChatService) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	if req.Message == "" {
		return ChatResponse{}, ErrEmptyMessage
	}

	embedding, err := s.loader.Embed(ctx, req.Message)
	if err != nil {
		s.logger.Warn("failed to embed message", zap.Error(err))
		// Empty but non-nil so LoadContext does not embed again.
		embedding = []float32{}
	}
	brainCtx := s.loader.LoadContext(ctx, req.Message, embedding, brain.LoadOptions{})
	s.logger.Info("brain context loaded",
		zap.Int("mandatory", len(brainCtx.Mandatory)),
		zap.Int("relevant", len(brainCtx.Relevant)),
		zap.Int("errors", len(brainCtx.Errors)),
		zap.Int("tokens", brainCtx.TokensEstimate))

	convID, history := s.conversation(ctx, req)

	system, err := BuildSystemPrompt(PromptData{
		Context: brain.FormatContext(brainCtx),
		History: history,
		Tools:   s.tools,
	})
	if err != nil {
		return ChatResponse{}, err
	}

	s.record(ctx, convID, brain.MessageInput{Role: memory.RoleUser, Content: req.Message, Embedding: embedding})

	route, resp, err := s.complete(ctx, req, system)
	if err != nil {
		return ChatResponse{}, err
	}

	s.record(ctx, convID, brain.MessageInput{
		Role:       memory.RoleAssistant,
		Content:    resp.Content,
		Model:      resp.Model,
		TokensUsed: resp.TokensUsed,
	})

	return ChatResponse{
		Response:       resp.Content,
		Provider:       resp.Provider,
		Model:          resp.Model,
		TaskType:       route.Task,
		ConversationID: convID,
		ContextTokens:  brainCtx.TokensEstimate,
	}, nil
}

func (s *ChatService) complete(ctx context.Context, req ChatRequest, system string) (llm.Route, llm.Response, error) {
	llmReq := llm.Request{Prompt: req.Message, System: system}

	if req.Provider == "" {
		route, resp, err := s.router.Complete(ctx, llmReq, llm.TaskType(req.TaskType))
		if err != nil {
			return llm.Route{}, llm.Response{}, fmt.Errorf("failed to complete chat: %w", err)
		}
		return route, resp, nil
	}

	p, err := s.router.Provider(req.Provider)
	if err != nil {
		return llm.Route{}, llm.Response{}, err
	}
	resp, err := p.Complete(ctx, llmReq)
	if err != nil {
		return llm.Route{}, llm.Response{}, fmt.Errorf("failed to complete chat: %w", err)
	}
	task := llm.TaskType(req.TaskType)
	if task == "" {
		task = llm.DetectTaskType(req.Message)
	}
	return llm.Route{Task: task, Provider: resp.Provider, Model: resp.Model}, resp, nil
}

// conversation resolves the conversation for a turn, creating one when the
// request has none, and returns its recent history.
func (s *ChatService) conversation(ctx context.Context, req ChatRequest) (string, []memory.Message) {
	if req.ConversationID == "" {
		id, err := s.loader.CreateConversation(ctx, textutil.Truncate(req.Message, titleLimit, "..."))
		if err != nil {
			s.logger.Warn("conversation not recorded", zap.Error(err))
			return "", nil
		}
		return id, nil
	}

	history, err := s.loader.ConversationHistory(ctx, req.ConversationID, 0)
	if err != nil {
		s.logger.Warn("failed to load conversation history",
			zap.String("conversation_id", req.ConversationID), zap.Error(err))
		return req.ConversationID, nil
	}
	if len(history) > historyLimit {
		history = history[len(history)-historyLimit:]
	}
	return req.ConversationID, history
}

func (s *ChatService) record(ctx context.Context, convID string, in brain.MessageInput) {
	if convID == "" {
		return
	}
	msg, err := s.loader.AddMessage(ctx, convID, in)
	if err != nil {
		s.logger.Warn("failed to record message",
			zap.String("conversation_id", convID),
			zap.String("role", in.Role),
			zap.Error(err))
		return
	}
	s.logger.Debug("message recorded",
		zap.String("conversation_id", convID),
		zap.Int("sequence", msg.Sequence))
}
