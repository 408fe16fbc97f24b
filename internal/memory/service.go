package memory

import (
	"context"
	"fmt"
	"strings"

	adkmemory "google.golang.org/adk/memory"
	"google.golang.org/adk/session"
	"google.golang.org/genai"
)

// Service adapts a Store to the adk memory.Service interface so the agent
// launcher can ingest sessions and recall memories.
type Service struct {
	store     Store
	embedder  Embedder
	projectID string
}

// NewService creates a new memory service with the given store and embedder.
func NewService(store Store, embedder Embedder, projectID string) *Service {
	return &Service{store: store, embedder: embedder, projectID: projectID}
}

// AddSession stores the last user question and agent answer of a session as
// a conversation memory. Sessions where the agent already called
// store_memory are skipped.
func (s *Service) AddSession(ctx context.Context, sess session.Session) error {
	if s.embedder == nil {
		return nil
	}

	var userQuery, agentResponse string
	for event := range sess.Events().All() {
		if event.LLMResponse.Content == nil {
			continue
		}
		text := strings.Join(extractText(event.LLMResponse.Content), " ")
		if event.Author == RoleUser {
			if text != "" {
				userQuery = text
			}
		} else if text != "" {
			agentResponse = text
		}

		for _, part := range event.LLMResponse.Content.Parts {
			if part.FunctionCall != nil && part.FunctionCall.Name == "store_memory" {
				return nil
			}
		}
	}

	if userQuery == "" || len(agentResponse) <= 20 {
		return nil
	}

	content := "Q: " + userQuery + "\nA: " + agentResponse
	vec, err := s.embedder.Embed(ctx, content)
	if err != nil {
		return fmt.Errorf("failed to generate embedding for session: %w", err)
	}

	_, err = s.store.AddMemory(ctx, Memory{
		Content:    content,
		Summary:    userQuery,
		Embedding:  vec,
		Scope:      ScopeSession,
		Type:       TypeConversation,
		Importance: ImportanceLow,
		ProjectID:  s.projectID,
		UserID:     sess.UserID(),
		SessionID:  sess.ID(),
		Tags:       []string{"session", sess.AppName()},
		Source:     "adk_session",
	})
	if err != nil {
		return fmt.Errorf("failed to save session to memory: %w", err)
	}
	return nil
}

// Search performs a vector similarity search and returns memory entries.
func (s *Service) Search(ctx context.Context, req *adkmemory.SearchRequest) (*adkmemory.SearchResponse, error) {
	if s.embedder == nil {
		return &adkmemory.SearchResponse{Memories: []adkmemory.Entry{}}, nil
	}

	vec, err := s.embedder.Embed(ctx, req.Query)
	if err != nil {
		return nil, fmt.Errorf("failed to generate query embedding: %w", err)
	}

	found, err := s.store.SearchMemories(ctx, vec, SearchFilter{
		Threshold: 0.7,
		Limit:     10,
		ProjectID: s.projectID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search memories: %w", err)
	}

	entries := make([]adkmemory.Entry, 0, len(found))
	for _, m := range found {
		if m.Content == "" {
			continue
		}
		contents := genai.Text(m.Content)
		if len(contents) == 0 {
			continue
		}
		entries = append(entries, adkmemory.Entry{
			Content:   contents[0],
			Author:    "memory",
			Timestamp: m.CreatedAt,
		})
	}
	return &adkmemory.SearchResponse{Memories: entries}, nil
}

func extractText(c *genai.Content) []string {
	var texts []string
	for _, part := range c.Parts {
		if part.Text != "" {
			texts = append(texts, part.Text)
		}
	}
	return texts
}
