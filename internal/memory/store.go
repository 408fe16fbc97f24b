package memory

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when a referenced row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrUnsupported is returned by stores that cannot hold a given entity.
	ErrUnsupported = errors.New("operation not supported by this store")
)

// MemoryStore holds memories and the curated knowledge base.
type MemoryStore interface {
	// MandatoryMemories returns pinned or auto-load memories that are not
	// archived and belong to projectID or the global scope, critical first.
	MandatoryMemories(ctx context.Context, projectID string) ([]Memory, error)

	// AutoLoadKnowledge returns active knowledge-base rows flagged auto_load.
	AutoLoadKnowledge(ctx context.Context) ([]KnowledgeEntry, error)

	// SearchMemories returns memories whose similarity to queryVector is at
	// least filter.Threshold, most similar first.
	SearchMemories(ctx context.Context, queryVector []float32, filter SearchFilter) ([]Memory, error)

	// AddMemory inserts a memory and returns its id.
	AddMemory(ctx context.Context, m Memory) (string, error)

	// IncrementAccess bumps access_count and last_accessed_at.
	IncrementAccess(ctx context.Context, id string) error
}

// ErrorStore holds error signatures and their solutions.
type ErrorStore interface {
	// SimilarErrors returns the closest errors to queryVector, most similar first.
	SimilarErrors(ctx context.Context, queryVector []float32, limit int) ([]ErrorSolution, error)

	// IncrementEncounter bumps times_encountered on an existing row.
	// It returns ErrNotFound when no row has that id.
	IncrementEncounter(ctx context.Context, id string) error

	// InsertError stores a new error and returns its id.
	InsertError(ctx context.Context, e ErrorSolution) (string, error)

	// MarkSolved bumps times_solved on an existing row.
	MarkSolved(ctx context.Context, id string) error
}

// ConversationStore holds conversations and their messages.
type ConversationStore interface {
	CreateConversation(ctx context.Context, c Conversation) (string, error)

	// AddMessage appends a message, assigning the next sequence number.
	AddMessage(ctx context.Context, m Message) (Message, error)

	// History returns up to limit messages ordered by sequence ascending.
	History(ctx context.Context, conversationID string, limit int) ([]Message, error)
}

// PatternStore holds learned patterns.
type PatternStore interface {
	AddPattern(ctx context.Context, p LearnedPattern) (string, error)
}

// Store is the full storage contract used by the brain.
type Store interface {
	MemoryStore
	ErrorStore
	ConversationStore
	PatternStore

	// Ping verifies that the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases any resources held by the store.
	Close() error
}

// Embedder turns text into a vector for similarity search.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
