package memory

import (
	"context"
	"errors"
	"iter"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	adkmemory "google.golang.org/adk/memory"
	"google.golang.org/adk/model"
	"google.golang.org/adk/session"
	"google.golang.org/genai"
)

// mockStore records AddMemory calls and serves canned search results. Methods
// not overridden panic through the nil embedded Store.
type mockStore struct {
	Store

	saved        []Memory
	searchResult []Memory
	lastFilter   SearchFilter
	searchError  error
	saveError    error
}

func (m *mockStore) AddMemory(ctx context.Context, mem Memory) (string, error) {
	if m.saveError != nil {
		return "", m.saveError
	}
	m.saved = append(m.saved, mem)
	return "mem-1", nil
}

func (m *mockStore) SearchMemories(ctx context.Context, vec []float32, filter SearchFilter) ([]Memory, error) {
	m.lastFilter = filter
	if m.searchError != nil {
		return nil, m.searchError
	}
	return m.searchResult, nil
}

type mockEmbedder struct {
	embedError error
	embedValue []float32
}

func (m *mockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if m.embedError != nil {
		return nil, m.embedError
	}
	if m.embedValue != nil {
		return m.embedValue, nil
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

// mockSession is a mock implementation of session.Session for testing
type mockSession struct {
	id       string
	appName  string
	userID   string
	events   []*session.Event
	lastTime time.Time
}

func (m *mockSession) ID() string {
	return m.id
}

func (m *mockSession) AppName() string {
	return m.appName
}

func (m *mockSession) UserID() string {
	return m.userID
}

func (m *mockSession) State() session.State {
	return &mockState{}
}

// mockState is a simple implementation of session.State for testing
type mockState struct{}

func (m *mockState) Get(key string) (any, error) {
	return nil, errors.New("key not found")
}

func (m *mockState) Set(key string, value any) error {
	return nil
}

func (m *mockState) All() iter.Seq2[string, any] {
	return func(yield func(string, any) bool) {
		// No items
	}
}

func (m *mockSession) Events() session.Events {
	return &mockEvents{events: m.events}
}

func (m *mockSession) LastUpdateTime() time.Time {
	return m.lastTime
}

// mockEvents is a mock implementation of session.Events
type mockEvents struct {
	events []*session.Event
}

func (m *mockEvents) All() iter.Seq[*session.Event] {
	return func(yield func(*session.Event) bool) {
		for _, e := range m.events {
			if !yield(e) {
				return
			}
		}
	}
}

func (m *mockEvents) Len() int {
	return len(m.events)
}

func (m *mockEvents) At(i int) *session.Event {
	if i < 0 || i >= len(m.events) {
		return nil
	}
	return m.events[i]
}


func textEvent(author string, parts ...string) *session.Event {
	content := &genai.Content{}
	for _, p := range parts {
		content.Parts = append(content.Parts, &genai.Part{Text: p})
	}
	return &session.Event{Author: author, LLMResponse: model.LLMResponse{Content: content}}
}

func TestService_AddSession(t *testing.T) {
	ctx := context.Background()
	longAnswer := "This is a detailed solution that is longer than 20 characters."

	tests := []struct {
		name      string
		events    []*session.Event
		embedder  Embedder
		store     *mockStore
		wantSaved bool
		wantErr   string
		check     func(t *testing.T, m Memory)
	}{
		{
			name:      "stores question and answer",
			events:    []*session.Event{textEvent("user", "How to fix this error?"), textEvent("assistant", longAnswer)},
			embedder:  &mockEmbedder{},
			store:     &mockStore{},
			wantSaved: true,
			check: func(t *testing.T, m Memory) {
				assert.Equal(t, "Q: How to fix this error?\nA: "+longAnswer, m.Content)
				assert.Equal(t, "How to fix this error?", m.Summary)
				assert.Equal(t, TypeConversation, m.Type)
				assert.Equal(t, ScopeSession, m.Scope)
				assert.Equal(t, "nexify-ai", m.ProjectID)
				assert.Equal(t, "s-1", m.SessionID)
				assert.Equal(t, "u-1", m.UserID)
				assert.Equal(t, []string{"session", "brain"}, m.Tags)
			},
		},
		{
			name: "skips when store_memory was called",
			events: []*session.Event{
				textEvent("user", "Remember this"),
				{Author: "assistant", LLMResponse: model.LLMResponse{Content: &genai.Content{
					Parts: []*genai.Part{{FunctionCall: &genai.FunctionCall{Name: "store_memory"}}},
				}}},
				textEvent("assistant", longAnswer),
			},
			embedder: &mockEmbedder{},
			store:    &mockStore{},
		},
		{
			name:     "skips short answers",
			events:   []*session.Event{textEvent("user", "Question"), textEvent("assistant", "Short")},
			embedder: &mockEmbedder{},
			store:    &mockStore{},
		},
		{
			name:     "skips without a user query",
			events:   []*session.Event{textEvent("assistant", longAnswer)},
			embedder: &mockEmbedder{},
			store:    &mockStore{},
		},
		{
			name:     "skips without an embedder",
			events:   []*session.Event{textEvent("user", "Question"), textEvent("assistant", longAnswer)},
			embedder: nil,
			store:    &mockStore{},
		},
		{
			name:     "embedding failure",
			events:   []*session.Event{textEvent("user", "Question"), textEvent("assistant", longAnswer)},
			embedder: &mockEmbedder{embedError: errors.New("embedding failed")},
			store:    &mockStore{},
			wantErr:  "failed to generate embedding for session",
		},
		{
			name:     "save failure",
			events:   []*session.Event{textEvent("user", "Question"), textEvent("assistant", longAnswer)},
			embedder: &mockEmbedder{},
			store:    &mockStore{saveError: errors.New("database error")},
			wantErr:  "failed to save session to memory",
		},
		{
			name: "joins multiple parts",
			events: []*session.Event{
				textEvent("user", "First part", "second part"),
				textEvent("assistant", "Response part 1", "and part 2 with enough length"),
			},
			embedder:  &mockEmbedder{},
			store:     &mockStore{},
			wantSaved: true,
			check: func(t *testing.T, m Memory) {
				assert.Equal(t, "First part second part", m.Summary)
				assert.Contains(t, m.Content, "Response part 1 and part 2 with enough length")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(tt.store, tt.embedder, "nexify-ai")
			sess := &mockSession{id: "s-1", appName: "brain", userID: "u-1", events: tt.events, lastTime: time.Now()}

			err := svc.AddSession(ctx, sess)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				assert.Empty(t, tt.store.saved)
				return
			}
			require.NoError(t, err)

			if !tt.wantSaved {
				assert.Empty(t, tt.store.saved)
				return
			}
			require.Len(t, tt.store.saved, 1)
			if tt.check != nil {
				tt.check(t, tt.store.saved[0])
			}
		})
	}
}

func TestService_Search(t *testing.T) {
	ctx := context.Background()
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("maps memories to entries", func(t *testing.T) {
		store := &mockStore{searchResult: []Memory{
			{ID: "a", Content: "Use pgvector for embeddings", CreatedAt: ts, Similarity: 0.9},
			{ID: "b", Content: "", CreatedAt: ts},
			{ID: "c", Content: "Deploy with docker compose", CreatedAt: ts.Add(time.Hour), Similarity: 0.8},
		}}
		svc := NewService(store, &mockEmbedder{}, "nexify-ai")

		resp, err := svc.Search(ctx, &adkmemory.SearchRequest{Query: "vectors"})
		require.NoError(t, err)
		require.Len(t, resp.Memories, 2)
		assert.Equal(t, "memory", resp.Memories[0].Author)
		assert.Equal(t, ts, resp.Memories[0].Timestamp)
		assert.Equal(t, "Use pgvector for embeddings", resp.Memories[0].Content.Parts[0].Text)

		assert.Equal(t, 0.7, store.lastFilter.Threshold)
		assert.Equal(t, 10, store.lastFilter.Limit)
		assert.Equal(t, "nexify-ai", store.lastFilter.ProjectID)
	})

	t.Run("no embedder returns empty", func(t *testing.T) {
		svc := NewService(&mockStore{}, nil, "p")
		resp, err := svc.Search(ctx, &adkmemory.SearchRequest{Query: "q"})
		require.NoError(t, err)
		assert.Empty(t, resp.Memories)
	})

	t.Run("embedding failure", func(t *testing.T) {
		svc := NewService(&mockStore{}, &mockEmbedder{embedError: errors.New("boom")}, "p")
		_, err := svc.Search(ctx, &adkmemory.SearchRequest{Query: "q"})
		require.ErrorContains(t, err, "failed to generate query embedding")
	})

	t.Run("search failure", func(t *testing.T) {
		svc := NewService(&mockStore{searchError: errors.New("db down")}, &mockEmbedder{}, "p")
		_, err := svc.Search(ctx, &adkmemory.SearchRequest{Query: "q"})
		require.ErrorContains(t, err, "failed to search memories")
	})
}
