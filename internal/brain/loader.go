// Package brain assembles prompt context from long-term memory: mandatory
// knowledge, semantically relevant memories and known error solutions.
package brain

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/easeaico/brain-agent/internal/memory"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultThreshold is the minimum similarity for a relevant memory.
	DefaultThreshold = 0.7
	// DefaultLimit caps relevant memories per search.
	DefaultLimit = 10
	// DefaultMaxTokens is the context budget used by LoadContext.
	DefaultMaxTokens = 4000
	// DuplicateErrorSimilarity is the similarity above which a tracked error
	// counts as another encounter of an existing one.
	DuplicateErrorSimilarity = 0.95

	contextErrorLimit   = 3
	defaultHistoryLimit = 50
)

// Config configures a Loader.
type Config struct {
	Store     memory.Store
	Embedder  memory.Embedder
	Tracker   *AccessTracker
	Logger    *zap.Logger
	ProjectID string
}

// Loader reads and writes the brain.
type Loader struct {
	store     memory.Store
	embedder  memory.Embedder
	tracker   *AccessTracker
	logger    *zap.Logger
	projectID string
	tracer    trace.Tracer
	now       func() time.Time
}

// NewLoader creates a loader. Embedder and Tracker are optional.
func NewLoader(cfg Config) *Loader {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	projectID := cfg.ProjectID
	if projectID == "" {
		projectID = "nexify-ai"
	}
	return &Loader{
		store:     cfg.Store,
		embedder:  cfg.Embedder,
		tracker:   cfg.Tracker,
		logger:    logger,
		projectID: projectID,
		tracer:    otel.Tracer("github.com/easeaico/brain-agent/internal/brain"),
		now:       time.Now,
	}
}

// ProjectID returns the project the loader is scoped to.
func (l *Loader) ProjectID() string { return l.projectID }

// Store returns the underlying store.
func (l *Loader) Store() memory.Store { return l.store }

// GetMandatoryContext returns pinned and auto-load memories followed by the
// auto-load knowledge base entries. A knowledge base failure is logged and
// the memories are returned without it.
func (l *Loader) GetMandatoryContext(ctx context.Context) ([]memory.Memory, error) {
	memories, err := l.store.MandatoryMemories(ctx, l.projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to load mandatory memories: %w", err)
	}

	knowledge, err := l.store.AutoLoadKnowledge(ctx)
	if err != nil {
		l.logger.Warn("knowledge base unavailable", zap.Error(err))
		return memories, nil
	}

	now := l.now().UTC()
	for _, k := range knowledge {
		memories = append(memories, k.AsMemory(now))
	}
	return memories, nil
}

// SearchOptions narrows SearchMemories. Zero values take the defaults.
type SearchOptions struct {
	Threshold float64
	Limit     int
	Scope     memory.Scope
	Type      memory.Type
}

// SearchMemories returns memories at or above the similarity threshold and
// schedules an access update for each hit.
func (l *Loader) SearchMemories(ctx context.Context, embedding []float32, opts SearchOptions) ([]memory.Memory, error) {
	ctx, span := l.tracer.Start(ctx, "brain.SearchMemories")
	defer span.End()

	filter := memory.SearchFilter{
		Threshold: opts.Threshold,
		Limit:     opts.Limit,
		Scope:     opts.Scope,
		Type:      opts.Type,
		ProjectID: l.projectID,
	}
	if filter.Threshold == 0 {
		filter.Threshold = DefaultThreshold
	}
	if filter.Limit == 0 {
		filter.Limit = DefaultLimit
	}
	span.SetAttributes(
		attribute.Float64("brain.threshold", filter.Threshold),
		attribute.Int("brain.limit", filter.Limit),
	)

	found, err := l.store.SearchMemories(ctx, embedding, filter)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "search failed")
		return nil, fmt.Errorf("failed to search memories: %w", err)
	}

	hits := found[:0]
	for _, m := range found {
		if m.Similarity < filter.Threshold {
			continue
		}
		hits = append(hits, m)
		if l.tracker != nil {
			l.tracker.Track(m.ID)
		}
	}
	span.SetAttributes(attribute.Int("brain.hits", len(hits)))
	return hits, nil
}

// FindSimilarErrors returns the closest known errors, most similar first.
func (l *Loader) FindSimilarErrors(ctx context.Context, embedding []float32, limit int) ([]memory.ErrorSolution, error) {
	if limit <= 0 {
		limit = 5
	}
	errs, err := l.store.SimilarErrors(ctx, embedding, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to find similar errors: %w", err)
	}
	return errs, nil
}

// LoadOptions configures LoadContext.
type LoadOptions struct {
	// MaxTokens is the budget reported alongside the estimate.
	MaxTokens int
	// SkipErrors disables the similar-errors query.
	SkipErrors bool
	// EnforceBudget drops the least relevant memories until the estimate
	// fits MaxTokens. Mandatory memories are never dropped.
	EnforceBudget bool
}

// Context is the assembled brain context for one request.
type Context struct {
	Mandatory      []memory.Memory        `json:"mandatory"`
	Relevant       []memory.Memory        `json:"relevant"`
	Errors         []memory.ErrorSolution `json:"errors"`
	TokensEstimate int                    `json:"total_tokens_estimate"`
	MaxTokens      int                    `json:"max_tokens"`
	LoadedAt       time.Time              `json:"loaded_at"`
}

// LoadContext fetches mandatory, relevant and error context concurrently.
// When embedding is nil the query is embedded first; a non-nil empty
// embedding skips that step and the vector queries. Every failure degrades
// to an empty list and is logged; LoadContext itself never fails.
func (l *Loader) LoadContext(ctx context.Context, query string, embedding []float32, opts LoadOptions) Context {
	ctx, span := l.tracer.Start(ctx, "brain.LoadContext")
	defer span.End()

	if opts.MaxTokens <= 0 {
		opts.MaxTokens = DefaultMaxTokens
	}

	if embedding == nil && l.embedder != nil && query != "" {
		vec, err := l.embedder.Embed(ctx, query)
		if err != nil {
			span.RecordError(err)
			l.logger.Warn("query embedding failed", zap.Error(err))
		} else {
			embedding = vec
		}
	}

	var (
		g         errgroup.Group
		mandatory []memory.Memory
		relevant  []memory.Memory
		errs      []memory.ErrorSolution
	)

	g.Go(func() error {
		m, err := l.GetMandatoryContext(ctx)
		if err != nil {
			span.RecordError(err)
			l.logger.Warn("mandatory context unavailable", zap.Error(err))
			return nil
		}
		mandatory = m
		return nil
	})

	if len(embedding) > 0 {
		g.Go(func() error {
			m, err := l.SearchMemories(ctx, embedding, SearchOptions{Limit: DefaultLimit})
			if err != nil {
				span.RecordError(err)
				l.logger.Warn("relevant memories unavailable", zap.Error(err))
				return nil
			}
			relevant = m
			return nil
		})

		if !opts.SkipErrors {
			g.Go(func() error {
				found, err := l.FindSimilarErrors(ctx, embedding, contextErrorLimit)
				if err != nil {
					span.RecordError(err)
					l.logger.Warn("similar errors unavailable", zap.Error(err))
					return nil
				}
				errs = found
				return nil
			})
		}
	}

	_ = g.Wait()

	estimate := EstimateTokens(mandatory) + EstimateTokens(relevant)
	if opts.EnforceBudget {
		for estimate > opts.MaxTokens && len(relevant) > 0 {
			last := relevant[len(relevant)-1]
			relevant = relevant[:len(relevant)-1]
			estimate -= estimateContent(last.Content)
		}
	}

	span.SetAttributes(
		attribute.Int("brain.mandatory", len(mandatory)),
		attribute.Int("brain.relevant", len(relevant)),
		attribute.Int("brain.errors", len(errs)),
		attribute.Int("brain.tokens_estimate", estimate),
	)

	return Context{
		Mandatory:      nonNilMemories(mandatory),
		Relevant:       nonNilMemories(relevant),
		Errors:         nonNilErrors(errs),
		TokensEstimate: estimate,
		MaxTokens:      opts.MaxTokens,
		LoadedAt:       l.now().UTC(),
	}
}

// EstimateTokens approximates the token count as ceil(len(content)/4) per item.
func EstimateTokens(memories []memory.Memory) int {
	total := 0
	for _, m := range memories {
		total += estimateContent(m.Content)
	}
	return total
}

func estimateContent(s string) int {
	return (len(s) + 3) / 4
}

// MemoryInput describes a memory to store.
type MemoryInput struct {
	Content    string
	Summary    string
	Type       memory.Type
	Scope      memory.Scope
	Importance memory.Importance
	Tags       []string
	AutoLoad   bool
	IsPinned   bool
	Source     string
	Context    map[string]any
	Embedding  []float32
}

// AddMemory stores a memory, embedding its content when no embedding is given.
func (l *Loader) AddMemory(ctx context.Context, in MemoryInput) (string, error) {
	if in.Content == "" {
		return "", fmt.Errorf("memory content is required")
	}
	embedding := in.Embedding
	if embedding == nil {
		embedding = l.tryEmbed(ctx, in.Content)
	}

	id, err := l.store.AddMemory(ctx, memory.Memory{
		Content:    in.Content,
		Summary:    in.Summary,
		Embedding:  embedding,
		Scope:      in.Scope,
		Type:       in.Type,
		Importance: in.Importance,
		ProjectID:  l.projectID,
		Tags:       in.Tags,
		Source:     in.Source,
		Context:    in.Context,
		AutoLoad:   in.AutoLoad,
		IsPinned:   in.IsPinned,
	})
	if err != nil {
		return "", fmt.Errorf("failed to add memory: %w", err)
	}
	return id, nil
}

// ErrorInput describes an error occurrence and its solution.
type ErrorInput struct {
	ErrorType    string
	ErrorMessage string
	Solution     string
	Context      map[string]any
	Technology   []string
	Tags         []string
	Embedding    []float32
}

// TrackResult is the outcome of TrackError.
type TrackResult struct {
	ID string `json:"id"`
	// Existing is true when the error matched a known one and its counters
	// were incremented instead of inserting a new row.
	Existing bool `json:"existing"`
}

// TrackError records an error. When the closest known error is more than
// DuplicateErrorSimilarity similar, that row's encounter count is bumped.
func (l *Loader) TrackError(ctx context.Context, in ErrorInput) (TrackResult, error) {
	ctx, span := l.tracer.Start(ctx, "brain.TrackError",
		trace.WithAttributes(attribute.String("brain.error_type", in.ErrorType)))
	defer span.End()

	embedding := in.Embedding
	if embedding == nil {
		embedding = l.tryEmbed(ctx, in.ErrorType+": "+in.ErrorMessage)
	}

	if len(embedding) > 0 {
		similar, err := l.store.SimilarErrors(ctx, embedding, 1)
		if err != nil {
			l.logger.Warn("duplicate error lookup failed", zap.Error(err))
		} else if len(similar) > 0 && similar[0].Similarity > DuplicateErrorSimilarity {
			best := similar[0]
			err := l.store.IncrementEncounter(ctx, best.ID)
			if err == nil {
				span.SetAttributes(attribute.Bool("brain.existing", true))
				return TrackResult{ID: best.ID, Existing: true}, nil
			}
			l.logger.Warn("failed to bump existing error, inserting", zap.String("error_id", best.ID), zap.Error(err))
		}
	}

	id, err := l.store.InsertError(ctx, memory.ErrorSolution{
		ErrorType:    in.ErrorType,
		ErrorMessage: in.ErrorMessage,
		ErrorContext: in.Context,
		Embedding:    embedding,
		Solution:     in.Solution,
		Technology:   in.Technology,
		Tags:         in.Tags,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert failed")
		return TrackResult{}, fmt.Errorf("failed to track error: %w", err)
	}
	return TrackResult{ID: id}, nil
}

// MarkErrorSolved increments times_solved for an error.
func (l *Loader) MarkErrorSolved(ctx context.Context, id string) error {
	if err := l.store.MarkSolved(ctx, id); err != nil {
		return fmt.Errorf("failed to mark error solved: %w", err)
	}
	return nil
}

// PatternInput describes a learned pattern.
type PatternInput struct {
	Name          string
	Description   string
	Template      string
	ExampleInput  string
	ExampleOutput string
	Category      string
	Tags          []string
}

// AddPattern stores a learned pattern, embedding its description.
func (l *Loader) AddPattern(ctx context.Context, in PatternInput) (string, error) {
	id, err := l.store.AddPattern(ctx, memory.LearnedPattern{
		Name:          in.Name,
		Description:   in.Description,
		Template:      in.Template,
		ExampleInput:  in.ExampleInput,
		ExampleOutput: in.ExampleOutput,
		Category:      in.Category,
		Tags:          in.Tags,
		Embedding:     l.tryEmbed(ctx, in.Name+": "+in.Description),
	})
	if err != nil {
		return "", fmt.Errorf("failed to add pattern: %w", err)
	}
	return id, nil
}

// CreateConversation starts a conversation in the loader's project.
func (l *Loader) CreateConversation(ctx context.Context, title string) (string, error) {
	id, err := l.store.CreateConversation(ctx, memory.Conversation{Title: title, ProjectID: l.projectID})
	if err != nil {
		return "", fmt.Errorf("failed to create conversation: %w", err)
	}
	return id, nil
}

// MessageInput describes a message to append.
type MessageInput struct {
	Role       string
	Content    string
	Model      string
	TokensUsed int
	ToolCalls  any
	Embedding  []float32
}

// AddMessage appends a message; the store assigns the sequence number.
func (l *Loader) AddMessage(ctx context.Context, conversationID string, in MessageInput) (memory.Message, error) {
	msg := memory.Message{
		ConversationID: conversationID,
		Role:           in.Role,
		Content:        in.Content,
		Model:          in.Model,
		TokensUsed:     in.TokensUsed,
		Embedding:      in.Embedding,
	}
	if in.ToolCalls != nil {
		raw, err := json.Marshal(in.ToolCalls)
		if err != nil {
			return memory.Message{}, fmt.Errorf("failed to encode tool calls: %w", err)
		}
		msg.ToolCalls = raw
	}

	saved, err := l.store.AddMessage(ctx, msg)
	if err != nil {
		return memory.Message{}, fmt.Errorf("failed to add message: %w", err)
	}
	return saved, nil
}

// ConversationHistory returns up to limit messages in sequence order.
func (l *Loader) ConversationHistory(ctx context.Context, conversationID string, limit int) ([]memory.Message, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	msgs, err := l.store.History(ctx, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation history: %w", err)
	}
	return msgs, nil
}

// Embed embeds text with the configured embedder.
func (l *Loader) Embed(ctx context.Context, text string) ([]float32, error) {
	if l.embedder == nil {
		return nil, fmt.Errorf("no embedder configured")
	}
	return l.embedder.Embed(ctx, text)
}

func (l *Loader) tryEmbed(ctx context.Context, text string) []float32 {
	if l.embedder == nil {
		return nil
	}
	vec, err := l.embedder.Embed(ctx, text)
	if err != nil {
		l.logger.Warn("embedding failed, storing without vector", zap.Error(err))
		return nil
	}
	return vec
}

func nonNilMemories(m []memory.Memory) []memory.Memory {
	if m == nil {
		return []memory.Memory{}
	}
	return m
}

func nonNilErrors(e []memory.ErrorSolution) []memory.ErrorSolution {
	if e == nil {
		return []memory.ErrorSolution{}
	}
	return e
}
