package brain

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/easeaico/brain-agent/internal/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetMandatoryContext_MergesKnowledgeBase(t *testing.T) {
	store := &fakeStore{
		mandatory: []memory.Memory{
			{ID: "m1", Content: "Always answer in English", Type: memory.TypePreference, Importance: memory.ImportanceCritical, IsPinned: true},
		},
		knowledge: []memory.KnowledgeEntry{
			{ID: "k1", Category: "infrastructure", Title: "DB", Content: "Supabase hosts the database", IsActive: true, AutoLoad: true},
		},
	}
	loader := NewLoader(Config{Store: store})
	fixed := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	loader.now = func() time.Time { return fixed }

	got, err := loader.GetMandatoryContext(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "m1", got[0].ID)

	kb := got[1]
	assert.Equal(t, "k1", kb.ID)
	assert.Equal(t, memory.ImportanceHigh, kb.Importance)
	assert.Equal(t, []string{"infrastructure"}, kb.Tags)
	assert.Equal(t, memory.ScopeProject, kb.Scope)
	assert.Equal(t, memory.TypeKnowledge, kb.Type)
	assert.True(t, kb.AutoLoad)
	assert.False(t, kb.IsPinned)
	assert.Equal(t, fixed, kb.CreatedAt)
}

func TestGetMandatoryContext_KeepsMemoriesWhenKnowledgeFails(t *testing.T) {
	store := &fakeStore{
		mandatory:    []memory.Memory{{ID: "m1", Content: "Never force-push main", IsPinned: true}},
		knowledgeErr: errBoom,
	}
	loader := NewLoader(Config{Store: store})

	got, err := loader.GetMandatoryContext(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "m1", got[0].ID)

	c := loader.LoadContext(context.Background(), "q", []float32{1}, LoadOptions{})
	require.Len(t, c.Mandatory, 1)
	assert.Equal(t, "m1", c.Mandatory[0].ID)
}

func TestSearchMemories_DefaultsThresholdAndTracksAccess(t *testing.T) {
	store := &fakeStore{search: []memory.Memory{
		{ID: "a", Content: "hit", Similarity: 0.92},
		{ID: "b", Content: "edge", Similarity: 0.7},
		{ID: "c", Content: "below", Similarity: 0.69},
	}}
	tracker := NewAccessTracker(store, nil, 8)
	loader := NewLoader(Config{Store: store, Tracker: tracker, ProjectID: "p1"})

	got, err := loader.SearchMemories(context.Background(), []float32{1}, SearchOptions{})
	require.NoError(t, err)
	tracker.Close()

	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, "b", got[1].ID)
	assert.Equal(t, DefaultThreshold, store.lastFilter.Threshold)
	assert.Equal(t, DefaultLimit, store.lastFilter.Limit)
	assert.Equal(t, "p1", store.lastFilter.ProjectID)
	assert.ElementsMatch(t, []string{"a", "b"}, store.accessedIDs())
}

func TestSearchMemories_Error(t *testing.T) {
	loader := NewLoader(Config{Store: &fakeStore{searchErr: errBoom}})
	_, err := loader.SearchMemories(context.Background(), []float32{1}, SearchOptions{})
	assert.ErrorIs(t, err, errBoom)
}

func TestLoadContext(t *testing.T) {
	store := &fakeStore{
		mandatory: []memory.Memory{{ID: "m", Content: strings.Repeat("x", 10), Type: memory.TypeKnowledge}},
		search:    []memory.Memory{{ID: "r", Content: strings.Repeat("y", 7), Similarity: 0.8}},
		similar: []memory.ErrorSolution{
			{ID: "e1", ErrorType: "TypeError", Similarity: 0.9},
			{ID: "e2", ErrorType: "RangeError", Similarity: 0.3},
		},
	}
	loader := NewLoader(Config{Store: store, Embedder: fakeEmbedder{vec: []float32{1, 0}}})

	c := loader.LoadContext(context.Background(), "why does it fail", nil, LoadOptions{})

	require.Len(t, c.Mandatory, 1)
	require.Len(t, c.Relevant, 1)
	// Closest known errors are included regardless of similarity.
	require.Len(t, c.Errors, 2)
	assert.Equal(t, "e1", c.Errors[0].ID)
	assert.Equal(t, "e2", c.Errors[1].ID)
	// ceil(10/4) + ceil(7/4)
	assert.Equal(t, 5, c.TokensEstimate)
	assert.Equal(t, DefaultMaxTokens, c.MaxTokens)
	assert.False(t, c.LoadedAt.IsZero())
}

func TestLoadContext_SkipErrors(t *testing.T) {
	store := &fakeStore{similar: []memory.ErrorSolution{{ID: "e1", Similarity: 0.99}}}
	loader := NewLoader(Config{Store: store})

	c := loader.LoadContext(context.Background(), "q", []float32{1}, LoadOptions{SkipErrors: true})
	assert.Empty(t, c.Errors)
}

func TestLoadContext_DegradesOnFailure(t *testing.T) {
	tests := []struct {
		name     string
		store    *fakeStore
		embedder memory.Embedder
	}{
		{
			name:  "all queries fail",
			store: &fakeStore{mandatoryErr: errBoom, searchErr: errBoom, errorsErr: errBoom},
		},
		{
			name:     "embedding fails",
			store:    &fakeStore{search: []memory.Memory{{ID: "r", Content: "unused", Similarity: 0.9}}},
			embedder: fakeEmbedder{err: errBoom},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loader := NewLoader(Config{Store: tt.store, Embedder: tt.embedder})
			var vec []float32
			if tt.embedder == nil {
				vec = []float32{1}
			}

			c := loader.LoadContext(context.Background(), "q", vec, LoadOptions{})
			assert.NotNil(t, c.Mandatory)
			assert.NotNil(t, c.Relevant)
			assert.NotNil(t, c.Errors)
			assert.Empty(t, c.Relevant)
			assert.Empty(t, c.Errors)
			assert.Equal(t, 0, c.TokensEstimate)
		})
	}
}

func TestLoadContext_EnforceBudget(t *testing.T) {
	store := &fakeStore{
		mandatory: []memory.Memory{{ID: "m", Content: strings.Repeat("m", 40)}},
		search: []memory.Memory{
			{ID: "r1", Content: strings.Repeat("a", 40), Similarity: 0.95},
			{ID: "r2", Content: strings.Repeat("b", 40), Similarity: 0.85},
			{ID: "r3", Content: strings.Repeat("c", 40), Similarity: 0.75},
		},
	}
	loader := NewLoader(Config{Store: store})

	c := loader.LoadContext(context.Background(), "q", []float32{1}, LoadOptions{MaxTokens: 25, EnforceBudget: true})
	require.Len(t, c.Relevant, 1)
	assert.Equal(t, "r1", c.Relevant[0].ID)
	assert.Equal(t, 20, c.TokensEstimate)

	c = loader.LoadContext(context.Background(), "q", []float32{1}, LoadOptions{MaxTokens: 5, EnforceBudget: true})
	assert.Len(t, c.Mandatory, 1)
	assert.Empty(t, c.Relevant)
	assert.Equal(t, 10, c.TokensEstimate)

	c = loader.LoadContext(context.Background(), "q", []float32{1}, LoadOptions{MaxTokens: 5})
	assert.Len(t, c.Relevant, 3)
	assert.Equal(t, 40, c.TokensEstimate)
}

func TestTrackError(t *testing.T) {
	tests := []struct {
		name         string
		similar      []memory.ErrorSolution
		encounterErr error
		wantExisting bool
		wantID       string
	}{
		{
			name:         "near duplicate increments",
			similar:      []memory.ErrorSolution{{ID: "known", Similarity: 0.97}},
			wantExisting: true,
			wantID:       "known",
		},
		{
			name:    "exactly at cutoff inserts",
			similar: []memory.ErrorSolution{{ID: "known", Similarity: 0.95}},
			wantID:  "err-new",
		},
		{
			name:    "no match inserts",
			similar: nil,
			wantID:  "err-new",
		},
		{
			name:         "increment failure falls back to insert",
			similar:      []memory.ErrorSolution{{ID: "known", Similarity: 0.99}},
			encounterErr: memory.ErrNotFound,
			wantID:       "err-new",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &fakeStore{similar: tt.similar, encounterErr: tt.encounterErr}
			loader := NewLoader(Config{Store: store, Embedder: fakeEmbedder{vec: []float32{1}}})

			res, err := loader.TrackError(context.Background(), ErrorInput{
				ErrorType:    "TypeError",
				ErrorMessage: "x is undefined",
				Solution:     "initialise x",
			})
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, res.ID)
			assert.Equal(t, tt.wantExisting, res.Existing)

			if tt.wantExisting {
				assert.Equal(t, []string{"known"}, store.encountered)
				assert.Empty(t, store.inserted)
			} else {
				require.Len(t, store.inserted, 1)
				assert.Equal(t, "initialise x", store.inserted[0].Solution)
				assert.Equal(t, []float32{1}, store.inserted[0].Embedding)
			}
		})
	}
}

func TestAddMemory(t *testing.T) {
	store := &fakeStore{}
	loader := NewLoader(Config{Store: store, Embedder: fakeEmbedder{err: errBoom}, ProjectID: "p1"})

	id, err := loader.AddMemory(context.Background(), MemoryInput{Content: "Use chi for routing", Tags: []string{"go"}})
	require.NoError(t, err)
	assert.Equal(t, "mem-new", id)

	require.Len(t, store.added, 1)
	assert.Nil(t, store.added[0].Embedding)
	assert.Equal(t, "p1", store.added[0].ProjectID)

	_, err = loader.AddMemory(context.Background(), MemoryInput{})
	assert.Error(t, err)
}

func TestLoader_AgainstSQLite(t *testing.T) {
	ctx := context.Background()
	store, err := memory.NewSQLiteStore(ctx, ":memory:")
	require.NoError(t, err)
	defer store.Close()
	require.NoError(t, store.InitSchema(ctx))

	_, err = store.AddKnowledge(ctx, memory.KnowledgeEntry{Category: "style", Title: "fmt", Content: "gofmt everything", IsActive: true, AutoLoad: true})
	require.NoError(t, err)

	tracker := NewAccessTracker(store, nil, 16)
	loader := NewLoader(Config{Store: store, Tracker: tracker, ProjectID: "p1"})

	_, err = loader.AddMemory(ctx, MemoryInput{Content: "Pinned rule", IsPinned: true, Importance: memory.ImportanceCritical})
	require.NoError(t, err)
	id, err := loader.AddMemory(ctx, MemoryInput{Content: "Vector hit", Embedding: []float32{1, 0}})
	require.NoError(t, err)

	c := loader.LoadContext(ctx, "q", []float32{1, 0}, LoadOptions{})
	tracker.Close()

	require.Len(t, c.Mandatory, 2)
	assert.Equal(t, "Pinned rule", c.Mandatory[0].Content)
	assert.Equal(t, "gofmt everything", c.Mandatory[1].Content)
	require.Len(t, c.Relevant, 1)
	assert.Equal(t, id, c.Relevant[0].ID)

	convID, err := loader.CreateConversation(ctx, "chat")
	require.NoError(t, err)
	for _, role := range []string{memory.RoleUser, memory.RoleAssistant, memory.RoleUser} {
		_, err := loader.AddMessage(ctx, convID, MessageInput{Role: role, Content: "hi", ToolCalls: map[string]string{"tool": "x"}})
		require.NoError(t, err)
	}
	history, err := loader.ConversationHistory(ctx, convID, 0)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, []int{1, 2, 3}, []int{history[0].Sequence, history[1].Sequence, history[2].Sequence})
	assert.JSONEq(t, `{"tool":"x"}`, string(history[0].ToolCalls))
}
