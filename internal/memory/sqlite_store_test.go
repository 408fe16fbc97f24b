package memory

import (
	"context"
	"math"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	ctx := context.Background()

	store, err := NewSQLiteStore(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.InitSchema(ctx))
	return store
}

func TestNewSQLiteStore(t *testing.T) {
	store := newTestSQLiteStore(t)
	assert.NoError(t, store.Ping(context.Background()))
}

func TestSQLiteStore_MandatoryMemories(t *testing.T) {
	ctx := context.Background()
	store := newTestSQLiteStore(t)

	seed := []Memory{
		{Content: "medium pinned", Importance: ImportanceMedium, ProjectID: "p1", IsPinned: true},
		{Content: "critical auto", Importance: ImportanceCritical, ProjectID: "p1", AutoLoad: true},
		{Content: "global rule", Importance: ImportanceHigh, ProjectID: "other", Scope: ScopeGlobal, IsPinned: true},
		{Content: "other project", ProjectID: "other", IsPinned: true},
		{Content: "not flagged", ProjectID: "p1"},
	}
	for _, m := range seed {
		_, err := store.AddMemory(ctx, m)
		require.NoError(t, err)
	}

	archivedID, err := store.AddMemory(ctx, Memory{Content: "archived", ProjectID: "p1", IsPinned: true})
	require.NoError(t, err)
	_, err = store.db.ExecContext(ctx, `UPDATE memories SET is_archived = 1 WHERE id = ?`, archivedID)
	require.NoError(t, err)

	got, err := store.MandatoryMemories(ctx, "p1")
	require.NoError(t, err)

	var contents []string
	for _, m := range got {
		contents = append(contents, m.Content)
	}
	assert.Equal(t, []string{"critical auto", "global rule", "medium pinned"}, contents)
}

func TestSQLiteStore_AutoLoadKnowledge(t *testing.T) {
	ctx := context.Background()
	store := newTestSQLiteStore(t)

	for _, k := range []KnowledgeEntry{
		{Category: "stack", Title: "DB", Content: "Postgres with pgvector", IsActive: true, AutoLoad: true},
		{Category: "stack", Title: "Old", Content: "inactive", IsActive: false, AutoLoad: true},
		{Category: "misc", Title: "Manual", Content: "not auto", IsActive: true, AutoLoad: false},
	} {
		_, err := store.AddKnowledge(ctx, k)
		require.NoError(t, err)
	}

	entries, err := store.AutoLoadKnowledge(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "Postgres with pgvector", entries[0].Content)
	assert.Equal(t, "stack", entries[0].Category)
}

func TestSQLiteStore_SearchMemories(t *testing.T) {
	ctx := context.Background()
	store := newTestSQLiteStore(t)

	for _, m := range []Memory{
		{Content: "exact", Embedding: []float32{1, 0, 0}, ProjectID: "p1"},
		{Content: "close", Embedding: []float32{0.9, 0.1, 0}, ProjectID: "p1"},
		{Content: "orthogonal", Embedding: []float32{0, 1, 0}, ProjectID: "p1"},
		{Content: "wrong dims", Embedding: []float32{1, 0}, ProjectID: "p1"},
		{Content: "other project", Embedding: []float32{1, 0, 0}, ProjectID: "p2"},
		{Content: "no embedding", ProjectID: "p1"},
	} {
		_, err := store.AddMemory(ctx, m)
		require.NoError(t, err)
	}

	got, err := store.SearchMemories(ctx, []float32{1, 0, 0}, SearchFilter{Threshold: 0.7, Limit: 10, ProjectID: "p1"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "exact", got[0].Content)
	assert.InDelta(t, 1.0, got[0].Similarity, 1e-6)
	assert.Equal(t, "close", got[1].Content)
	assert.GreaterOrEqual(t, got[1].Similarity, 0.7)

	limited, err := store.SearchMemories(ctx, []float32{1, 0, 0}, SearchFilter{Threshold: 0, Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestSQLiteStore_IncrementAccess(t *testing.T) {
	ctx := context.Background()
	store := newTestSQLiteStore(t)

	id, err := store.AddMemory(ctx, Memory{Content: "tracked", ProjectID: "p1", IsPinned: true})
	require.NoError(t, err)

	require.NoError(t, store.IncrementAccess(ctx, id))
	require.NoError(t, store.IncrementAccess(ctx, id))

	got, err := store.MandatoryMemories(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 2, got[0].AccessCount)

	err = store.IncrementAccess(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore_Errors(t *testing.T) {
	ctx := context.Background()
	store := newTestSQLiteStore(t)

	id, err := store.InsertError(ctx, ErrorSolution{
		ErrorType:    "TypeError",
		ErrorMessage: "undefined is not a function",
		Embedding:    []float32{1, 0, 0},
		Solution:     "check the import",
		Technology:   []string{"javascript"},
	})
	require.NoError(t, err)

	similar, err := store.SimilarErrors(ctx, []float32{1, 0, 0}, 1)
	require.NoError(t, err)
	require.Len(t, similar, 1)
	assert.Equal(t, id, similar[0].ID)
	assert.Equal(t, 1, similar[0].TimesEncountered)
	assert.Equal(t, []string{"javascript"}, similar[0].Technology)

	require.NoError(t, store.IncrementEncounter(ctx, id))
	require.NoError(t, store.MarkSolved(ctx, id))

	similar, err = store.SimilarErrors(ctx, []float32{1, 0, 0}, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, similar[0].TimesEncountered)
	assert.Equal(t, 1, similar[0].TimesSolved)
	assert.InDelta(t, 0.5, similar[0].SuccessRate, 1e-9)

	assert.ErrorIs(t, store.IncrementEncounter(ctx, "missing"), ErrNotFound)
	assert.ErrorIs(t, store.MarkSolved(ctx, "missing"), ErrNotFound)
}

func TestSQLiteStore_MessageSequence(t *testing.T) {
	ctx := context.Background()
	store := newTestSQLiteStore(t)

	convID, err := store.CreateConversation(ctx, Conversation{Title: "t", ProjectID: "p1"})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.AddMessage(ctx, Message{ConversationID: convID, Role: RoleUser, Content: "hi", TokensUsed: 2})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	history, err := store.History(ctx, convID, 100)
	require.NoError(t, err)
	require.Len(t, history, 10)
	for i, m := range history {
		assert.Equal(t, i+1, m.Sequence)
	}

	var count, tokens int
	require.NoError(t, store.db.QueryRowContext(ctx,
		`SELECT message_count, total_tokens FROM conversations WHERE id = ?`, convID).Scan(&count, &tokens))
	assert.Equal(t, 10, count)
	assert.Equal(t, 20, tokens)

	_, err = store.AddMessage(ctx, Message{ConversationID: "missing", Role: RoleUser, Content: "x"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore_AddPattern(t *testing.T) {
	ctx := context.Background()
	store := newTestSQLiteStore(t)

	id, err := store.AddPattern(ctx, LearnedPattern{Name: "retry", Description: "wrap calls with backoff", Tags: []string{"go"}})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
}

func TestSQLiteStore_FileDatabase(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "brain.db")

	store, err := NewSQLiteStore(ctx, path)
	require.NoError(t, err)
	require.NoError(t, store.InitSchema(ctx))

	_, err = store.AddMemory(ctx, Memory{Content: "persisted", ProjectID: "p1", IsPinned: true})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := NewSQLiteStore(ctx, path)
	require.NoError(t, err)
	defer reopened.Close()
	require.NoError(t, reopened.InitSchema(ctx))

	got, err := reopened.MandatoryMemories(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "persisted", got[0].Content)
}

func TestVectorEncodeDecode(t *testing.T) {
	tests := []struct {
		name   string
		vector []float32
	}{
		{name: "nil vector", vector: nil},
		{name: "single element", vector: []float32{3.14159}},
		{name: "multiple elements", vector: []float32{1.0, 2.0, 3.0, -4.5, 0.0}},
		{name: "1536 dimension vector", vector: makeVector(1536)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decoded := decodeVector(encodeVector(tt.vector))
			assert.Equal(t, tt.vector, decoded)
		})
	}

	assert.Nil(t, decodeVector([]byte{1, 2, 3}))
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name     string
		a, b     []float32
		expected float64
	}{
		{"identical vectors", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"opposite vectors", []float32{1, 2, 3}, []float32{-1, -2, -3}, -1},
		{"orthogonal vectors", []float32{1, 0}, []float32{0, 1}, 0},
		{"different length vectors", []float32{1, 2}, []float32{1, 2, 3}, 0},
		{"empty vectors", []float32{}, []float32{}, 0},
		{"zero vector", []float32{0, 0, 0}, []float32{1, 2, 3}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CosineSimilarity(tt.a, tt.b)
			if math.Abs(got-tt.expected) > 1e-4 {
				t.Errorf("expected %f, got %f", tt.expected, got)
			}
		})
	}
}

func makeVector(n int) []float32 {
	v := make([]float32, n)
	for i := range v {
		v[i] = float32(i) / float32(n)
	}
	return v
}
