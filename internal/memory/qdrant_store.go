package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/easeaico/brain-agent/internal/vectorstore"
	"github.com/google/uuid"
)

// QdrantStore keeps memories and error solutions as Qdrant points.
// Conversations and learned patterns have no home in a vector database, so
// those operations return ErrUnsupported.
type QdrantStore struct {
	client           *vectorstore.Client
	memoryCollection string
	errorCollection  string
	dimension        int
}

// NewQdrantStore creates a store over the given collection. Errors live in
// "<collection>_errors".
func NewQdrantStore(client *vectorstore.Client, collection string, dimension int) *QdrantStore {
	return &QdrantStore{
		client:           client,
		memoryCollection: collection,
		errorCollection:  collection + "_errors",
		dimension:        dimension,
	}
}

// EnsureCollections creates the backing collections if they are missing.
func (s *QdrantStore) EnsureCollections(ctx context.Context) error {
	for _, name := range []string{s.memoryCollection, s.errorCollection} {
		if err := s.client.EnsureCollection(ctx, name, s.dimension); err != nil {
			return fmt.Errorf("failed to ensure collection %s: %w", name, err)
		}
	}
	return nil
}

// MandatoryMemories scrolls pinned or auto-load points for the project and
// the global scope.
func (s *QdrantStore) MandatoryMemories(ctx context.Context, projectID string) ([]Memory, error) {
	filter := &vectorstore.Filter{
		Must: []any{
			vectorstore.Filter{Should: []any{
				vectorstore.Match("is_pinned", true),
				vectorstore.Match("auto_load", true),
			}},
			vectorstore.Filter{Should: []any{
				vectorstore.Match("project_id", projectID),
				vectorstore.Match("scope", string(ScopeGlobal)),
			}},
		},
		MustNot: []any{vectorstore.Match("is_archived", true)},
	}

	var (
		memories []Memory
		offset   *vectorstore.PointID
	)
	for {
		page, err := s.client.Scroll(ctx, s.memoryCollection, 100, offset, filter, false)
		if err != nil {
			return nil, fmt.Errorf("failed to scroll mandatory memories: %w", err)
		}
		for _, p := range page.Points {
			memories = append(memories, memoryFromPayload(string(p.ID), p.Payload))
		}
		if page.NextOffset == nil {
			break
		}
		offset = page.NextOffset
	}

	sortByImportance(memories)
	return memories, nil
}

// AutoLoadKnowledge returns no rows: the knowledge base is a relational table.
func (s *QdrantStore) AutoLoadKnowledge(ctx context.Context) ([]KnowledgeEntry, error) {
	return nil, nil
}

// SearchMemories runs a thresholded Qdrant search.
func (s *QdrantStore) SearchMemories(ctx context.Context, queryVector []float32, filter SearchFilter) ([]Memory, error) {
	var qf vectorstore.Filter
	if filter.Scope != "" {
		qf.Must = append(qf.Must, vectorstore.Match("scope", string(filter.Scope)))
	}
	if filter.Type != "" {
		qf.Must = append(qf.Must, vectorstore.Match("type", string(filter.Type)))
	}
	if filter.ProjectID != "" {
		qf.Must = append(qf.Must, vectorstore.Filter{Should: []any{
			vectorstore.Match("project_id", filter.ProjectID),
			vectorstore.Match("scope", string(ScopeGlobal)),
		}})
	}
	qf.MustNot = []any{vectorstore.Match("is_archived", true)}

	results, err := s.client.Search(ctx, s.memoryCollection, vectorstore.SearchRequest{
		Vector:         queryVector,
		Limit:          orDefault(filter.Limit, 10),
		ScoreThreshold: filter.Threshold,
		Filter:         &qf,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search memories: %w", err)
	}

	memories := make([]Memory, 0, len(results))
	for _, r := range results {
		if r.Score < filter.Threshold {
			continue
		}
		m := memoryFromPayload(string(r.ID), r.Payload)
		m.Similarity = r.Score
		memories = append(memories, m)
	}
	return memories, nil
}

// AddMemory upserts a memory point and returns its id.
func (s *QdrantStore) AddMemory(ctx context.Context, m Memory) (string, error) {
	m = m.withDefaults()
	if len(m.Embedding) == 0 {
		return "", fmt.Errorf("qdrant memories require an embedding")
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}

	point := vectorstore.Point{
		ID:      vectorstore.PointID(m.ID),
		Vector:  m.Embedding,
		Payload: memoryPayload(m),
	}
	if err := s.client.Upsert(ctx, s.memoryCollection, []vectorstore.Point{point}); err != nil {
		return "", fmt.Errorf("failed to upsert memory: %w", err)
	}
	return m.ID, nil
}

// IncrementAccess reads the current count and writes count+1. Concurrent
// increments of the same point may be lost.
func (s *QdrantStore) IncrementAccess(ctx context.Context, id string) error {
	p, found, err := s.client.GetPoint(ctx, s.memoryCollection, vectorstore.PointID(id))
	if err != nil {
		return fmt.Errorf("failed to read memory %s: %w", id, err)
	}
	if !found {
		return fmt.Errorf("memory %s: %w", id, ErrNotFound)
	}

	payload := map[string]any{
		"access_count":     payloadInt(p.Payload, "access_count") + 1,
		"last_accessed_at": time.Now().UTC().Format(time.RFC3339),
	}
	if err := s.client.SetPayload(ctx, s.memoryCollection, payload, p.ID); err != nil {
		return fmt.Errorf("failed to track access for memory %s: %w", id, err)
	}
	return nil
}

// SimilarErrors searches the error collection.
func (s *QdrantStore) SimilarErrors(ctx context.Context, queryVector []float32, limit int) ([]ErrorSolution, error) {
	results, err := s.client.Search(ctx, s.errorCollection, vectorstore.SearchRequest{
		Vector: queryVector,
		Limit:  orDefault(limit, 5),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search similar errors: %w", err)
	}

	errs := make([]ErrorSolution, 0, len(results))
	for _, r := range results {
		e := errorFromPayload(string(r.ID), r.Payload)
		e.Similarity = r.Score
		errs = append(errs, e)
	}
	return errs, nil
}

// IncrementEncounter bumps times_encountered on an existing error point.
func (s *QdrantStore) IncrementEncounter(ctx context.Context, id string) error {
	return s.bumpErrorCounter(ctx, id, "times_encountered")
}

// MarkSolved bumps times_solved on an existing error point.
func (s *QdrantStore) MarkSolved(ctx context.Context, id string) error {
	return s.bumpErrorCounter(ctx, id, "times_solved")
}

func (s *QdrantStore) bumpErrorCounter(ctx context.Context, id, field string) error {
	p, found, err := s.client.GetPoint(ctx, s.errorCollection, vectorstore.PointID(id))
	if err != nil {
		return fmt.Errorf("failed to read error %s: %w", id, err)
	}
	if !found {
		return fmt.Errorf("error solution %s: %w", id, ErrNotFound)
	}

	encountered := payloadInt(p.Payload, "times_encountered")
	solved := payloadInt(p.Payload, "times_solved")
	payload := map[string]any{}
	switch field {
	case "times_encountered":
		encountered++
		payload["last_encountered_at"] = time.Now().UTC().Format(time.RFC3339)
	case "times_solved":
		solved++
	}
	payload["times_encountered"] = encountered
	payload["times_solved"] = solved
	payload["success_rate"] = min(1.0, float64(solved)/float64(max(encountered, 1)))

	if err := s.client.SetPayload(ctx, s.errorCollection, payload, p.ID); err != nil {
		return fmt.Errorf("failed to update error %s: %w", id, err)
	}
	return nil
}

// InsertError upserts a new error point and returns its id.
func (s *QdrantStore) InsertError(ctx context.Context, e ErrorSolution) (string, error) {
	if len(e.Embedding) == 0 {
		return "", fmt.Errorf("qdrant errors require an embedding")
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	now := time.Now().UTC().Format(time.RFC3339)
	point := vectorstore.Point{
		ID:     vectorstore.PointID(e.ID),
		Vector: e.Embedding,
		Payload: map[string]any{
			"error_type":          e.ErrorType,
			"error_message":       e.ErrorMessage,
			"error_context":       e.ErrorContext,
			"solution":            e.Solution,
			"technology":          nonNil(e.Technology),
			"tags":                nonNil(e.Tags),
			"times_encountered":   1,
			"times_solved":        0,
			"success_rate":        0.0,
			"created_at":          now,
			"last_encountered_at": now,
		},
	}
	if err := s.client.Upsert(ctx, s.errorCollection, []vectorstore.Point{point}); err != nil {
		return "", fmt.Errorf("failed to upsert error solution: %w", err)
	}
	return e.ID, nil
}

// CreateConversation is not supported by Qdrant.
func (s *QdrantStore) CreateConversation(ctx context.Context, c Conversation) (string, error) {
	return "", fmt.Errorf("create conversation: %w", ErrUnsupported)
}

// AddMessage is not supported by Qdrant.
func (s *QdrantStore) AddMessage(ctx context.Context, m Message) (Message, error) {
	return Message{}, fmt.Errorf("add message: %w", ErrUnsupported)
}

// History is not supported by Qdrant.
func (s *QdrantStore) History(ctx context.Context, conversationID string, limit int) ([]Message, error) {
	return nil, fmt.Errorf("conversation history: %w", ErrUnsupported)
}

// AddPattern is not supported by Qdrant.
func (s *QdrantStore) AddPattern(ctx context.Context, p LearnedPattern) (string, error) {
	return "", fmt.Errorf("add pattern: %w", ErrUnsupported)
}

// Ping checks Qdrant health.
func (s *QdrantStore) Ping(ctx context.Context) error {
	return s.client.HealthCheck(ctx)
}

// Close is a no-op; the HTTP client holds no resources that need releasing.
func (s *QdrantStore) Close() error { return nil }

func memoryPayload(m Memory) map[string]any {
	return map[string]any{
		"content":          m.Content,
		"summary":          m.Summary,
		"scope":            string(m.Scope),
		"type":             string(m.Type),
		"importance":       string(m.Importance),
		"project_id":       m.ProjectID,
		"user_id":          m.UserID,
		"tags":             nonNil(m.Tags),
		"source":           m.Source,
		"context":          m.Context,
		"auto_load":        m.AutoLoad,
		"is_pinned":        m.IsPinned,
		"is_archived":      m.IsArchived,
		"access_count":     m.AccessCount,
		"created_at":       m.CreatedAt.UTC().Format(time.RFC3339),
		"last_accessed_at": m.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func memoryFromPayload(id string, p map[string]any) Memory {
	m := Memory{
		ID:          id,
		Content:     payloadString(p, "content"),
		Summary:     payloadString(p, "summary"),
		Scope:       Scope(orDefault(payloadString(p, "scope"), string(ScopeProject))),
		Type:        Type(orDefault(payloadString(p, "type"), string(TypeKnowledge))),
		Importance:  Importance(orDefault(payloadString(p, "importance"), string(ImportanceMedium))),
		ProjectID:   payloadString(p, "project_id"),
		UserID:      payloadString(p, "user_id"),
		Tags:        payloadStrings(p, "tags"),
		Source:      payloadString(p, "source"),
		AutoLoad:    payloadBool(p, "auto_load"),
		IsPinned:    payloadBool(p, "is_pinned"),
		IsArchived:  payloadBool(p, "is_archived"),
		AccessCount: payloadInt(p, "access_count"),
	}
	if ctx, ok := p["context"].(map[string]any); ok {
		m.Context = ctx
	}
	m.CreatedAt = payloadTime(p, "created_at")
	m.LastAccessedAt = payloadTime(p, "last_accessed_at")
	return m
}

func errorFromPayload(id string, p map[string]any) ErrorSolution {
	e := ErrorSolution{
		ID:               id,
		ErrorType:        payloadString(p, "error_type"),
		ErrorMessage:     payloadString(p, "error_message"),
		Solution:         payloadString(p, "solution"),
		Technology:       payloadStrings(p, "technology"),
		Tags:             payloadStrings(p, "tags"),
		TimesEncountered: payloadInt(p, "times_encountered"),
		TimesSolved:      payloadInt(p, "times_solved"),
	}
	if rate, ok := p["success_rate"].(float64); ok {
		e.SuccessRate = rate
	}
	if ctx, ok := p["error_context"].(map[string]any); ok {
		e.ErrorContext = ctx
	}
	e.CreatedAt = payloadTime(p, "created_at")
	e.LastEncounteredAt = payloadTime(p, "last_encountered_at")
	return e
}

func payloadString(p map[string]any, key string) string {
	s, _ := p[key].(string)
	return s
}

func payloadBool(p map[string]any, key string) bool {
	b, _ := p[key].(bool)
	return b
}

// payloadInt reads a JSON number, which decodes as float64.
func payloadInt(p map[string]any, key string) int {
	switch v := p[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}

func payloadStrings(p map[string]any, key string) []string {
	raw, _ := p[key].([]any)
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func payloadTime(p map[string]any, key string) time.Time {
	switch v := p[key].(type) {
	case string:
		t, _ := parseTimestamp(v)
		return t
	case float64:
		// Legacy points store unix milliseconds.
		return time.UnixMilli(int64(v)).UTC()
	default:
		return time.Time{}
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

var _ Store = (*QdrantStore)(nil)
