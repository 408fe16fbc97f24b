// Package memory provides the brain's storage types, store interfaces and
// the Postgres (pgvector), SQLite and Qdrant implementations.
package memory

import (
	"encoding/json"
	"sort"
	"time"
)

// Scope is the visibility of a memory.
type Scope string

const (
	ScopeUser    Scope = "user"
	ScopeProject Scope = "project"
	ScopeGlobal  Scope = "global"
	ScopeSession Scope = "session"
)

// Type classifies what a memory holds.
type Type string

const (
	TypeConversation   Type = "conversation"
	TypeKnowledge      Type = "knowledge"
	TypePreference     Type = "preference"
	TypeErrorSolution  Type = "error_solution"
	TypeLearnedPattern Type = "learned_pattern"
	TypeCodeSnippet    Type = "code_snippet"
	TypeArchitecture   Type = "architecture"
	TypeCredential     Type = "credential"
	TypeTask           Type = "task"
	TypeRelationship   Type = "relationship"
)

// Importance is the five-level priority of a memory.
type Importance string

const (
	ImportanceCritical Importance = "critical"
	ImportanceHigh     Importance = "high"
	ImportanceMedium   Importance = "medium"
	ImportanceLow      Importance = "low"
	ImportanceTrivial  Importance = "trivial"
)

// Rank orders importance levels, critical first. Unknown levels sort last.
func (i Importance) Rank() int {
	switch i {
	case ImportanceCritical:
		return 0
	case ImportanceHigh:
		return 1
	case ImportanceMedium:
		return 2
	case ImportanceLow:
		return 3
	case ImportanceTrivial:
		return 4
	default:
		return 5
	}
}

// sortByImportance orders memories critical first, keeping insertion order
// within a level.
func sortByImportance(memories []Memory) {
	sort.SliceStable(memories, func(i, j int) bool {
		return memories[i].Importance.Rank() < memories[j].Importance.Rank()
	})
}

// Memory is a single long-term memory row.
type Memory struct {
	ID             string         `json:"id"`
	Content        string         `json:"content"`
	Summary        string         `json:"summary,omitempty"`
	Embedding      []float32      `json:"-"`
	Scope          Scope          `json:"scope"`
	Type           Type           `json:"type"`
	Importance     Importance     `json:"importance"`
	ProjectID      string         `json:"project_id,omitempty"`
	UserID         string         `json:"user_id,omitempty"`
	SessionID      string         `json:"session_id,omitempty"`
	Tags           []string       `json:"tags"`
	Source         string         `json:"source,omitempty"`
	Context        map[string]any `json:"context,omitempty"`
	AutoLoad       bool           `json:"auto_load"`
	IsPinned       bool           `json:"is_pinned"`
	IsArchived     bool           `json:"is_archived"`
	AccessCount    int            `json:"access_count"`
	LastAccessedAt time.Time      `json:"last_accessed_at"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`

	// Similarity is set by vector searches; zero means "not scored".
	Similarity float64 `json:"similarity,omitempty"`
}

// withDefaults fills the classification fields a caller left empty.
func (m Memory) withDefaults() Memory {
	m.Scope = orDefault(m.Scope, ScopeProject)
	m.Type = orDefault(m.Type, TypeKnowledge)
	m.Importance = orDefault(m.Importance, ImportanceMedium)
	m.ProjectID = orDefault(m.ProjectID, "nexify-ai")
	return m
}

// KnowledgeEntry is a curated knowledge-base row.
type KnowledgeEntry struct {
	ID        string    `json:"id"`
	Category  string    `json:"category"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	IsActive  bool      `json:"is_active"`
	AutoLoad  bool      `json:"auto_load"`
	CreatedAt time.Time `json:"created_at"`
}

// AsMemory converts an auto-load knowledge entry into the memory shape used
// by mandatory context.
func (k KnowledgeEntry) AsMemory(now time.Time) Memory {
	return Memory{
		ID:         k.ID,
		Content:    k.Content,
		Scope:      ScopeProject,
		Type:       TypeKnowledge,
		Importance: ImportanceHigh,
		Tags:       []string{k.Category},
		AutoLoad:   true,
		IsPinned:   false,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// ErrorSolution records an error signature and its known fix.
type ErrorSolution struct {
	ID                string         `json:"id"`
	ErrorType         string         `json:"error_type"`
	ErrorMessage      string         `json:"error_message"`
	ErrorContext      map[string]any `json:"error_context,omitempty"`
	Embedding         []float32      `json:"-"`
	Solution          string         `json:"solution"`
	Technology        []string       `json:"technology"`
	Tags              []string       `json:"tags"`
	TimesEncountered  int            `json:"times_encountered"`
	TimesSolved       int            `json:"times_solved"`
	SuccessRate       float64        `json:"success_rate"`
	CreatedAt         time.Time      `json:"created_at"`
	LastEncounteredAt time.Time      `json:"last_encountered_at"`

	Similarity float64 `json:"similarity,omitempty"`
}

// Conversation groups ordered messages.
type Conversation struct {
	ID           string    `json:"id"`
	Title        string    `json:"title,omitempty"`
	ProjectID    string    `json:"project_id"`
	UserID       string    `json:"user_id,omitempty"`
	MessageCount int       `json:"message_count"`
	TotalTokens  int       `json:"total_tokens"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
	RoleTool      = "tool"
)

// Message is a conversation turn. Sequence is assigned by the store and is
// strictly increasing within a conversation, starting at 1.
type Message struct {
	ID             string          `json:"id"`
	ConversationID string          `json:"conversation_id"`
	Role           string          `json:"role"`
	Content        string          `json:"content"`
	Embedding      []float32       `json:"-"`
	Model          string          `json:"model,omitempty"`
	TokensUsed     int             `json:"tokens_used,omitempty"`
	ToolCalls      json.RawMessage `json:"tool_calls,omitempty"`
	Sequence       int             `json:"sequence"`
	CreatedAt      time.Time       `json:"created_at"`
}

// LearnedPattern is a reusable solution template.
type LearnedPattern struct {
	ID            string    `json:"id"`
	Name          string    `json:"pattern_name"`
	Description   string    `json:"pattern_description"`
	Template      string    `json:"template,omitempty"`
	ExampleInput  string    `json:"example_input,omitempty"`
	ExampleOutput string    `json:"example_output,omitempty"`
	Category      string    `json:"category,omitempty"`
	Tags          []string  `json:"tags"`
	Embedding     []float32 `json:"-"`
	CreatedAt     time.Time `json:"created_at"`
}

// SearchFilter narrows a similarity search. Zero values mean "no filter".
type SearchFilter struct {
	Threshold float64
	Limit     int
	Scope     Scope
	Type      Type
	ProjectID string
}
