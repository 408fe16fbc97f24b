package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite.
// Vector similarity search is performed in application memory using cosine
// similarity, which suits small brains (< 10K rows).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLiteStore connected to the given database path.
// The path should be a file path (e.g., "./brain.db") or ":memory:" for an in-memory database.
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	// Enable WAL mode and foreign keys for better performance and data integrity
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection serializes writers and keeps ":memory:" databases shared.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// InitSchema applies the embedded SQLite migrations.
func (s *SQLiteStore) InitSchema(ctx context.Context) error {
	if err := migrate(ctx, s.db, goose.DialectSQLite3, "migrations/sqlite"); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

const sqliteMemoryColumns = `id, content, summary, embedding, scope, type, importance, project_id, user_id,
	session_id, tags, source, context, access_count, is_pinned, is_archived, auto_load,
	created_at, updated_at, last_accessed_at`

func scanSQLiteMemory(rows *sql.Rows) (Memory, error) {
	var (
		m                          Memory
		embedding                  []byte
		tags, contextJSON          string
		pinned, archived, autoLoad int
		created, updated, accessed string
	)
	err := rows.Scan(&m.ID, &m.Content, &m.Summary, &embedding, &m.Scope, &m.Type, &m.Importance,
		&m.ProjectID, &m.UserID, &m.SessionID, &tags, &m.Source, &contextJSON, &m.AccessCount,
		&pinned, &archived, &autoLoad, &created, &updated, &accessed)
	if err != nil {
		return Memory{}, err
	}

	m.Embedding = decodeVector(embedding)
	m.Tags = decodeStrings(tags)
	m.Context = decodeObject(contextJSON)
	m.IsPinned = pinned != 0
	m.IsArchived = archived != 0
	m.AutoLoad = autoLoad != 0
	m.CreatedAt, _ = parseTimestamp(created)
	m.UpdatedAt, _ = parseTimestamp(updated)
	m.LastAccessedAt, _ = parseTimestamp(accessed)
	return m, nil
}

// MandatoryMemories returns pinned or auto-load memories for the project and
// the global scope, critical first.
func (s *SQLiteStore) MandatoryMemories(ctx context.Context, projectID string) ([]Memory, error) {
	query := `
		SELECT ` + sqliteMemoryColumns + `
		FROM memories
		WHERE (is_pinned = 1 OR auto_load = 1)
		  AND is_archived = 0
		  AND (project_id = ? OR scope = 'global')
		ORDER BY CASE importance
			WHEN 'critical' THEN 0 WHEN 'high' THEN 1 WHEN 'medium' THEN 2
			WHEN 'low' THEN 3 WHEN 'trivial' THEN 4 ELSE 5 END, rowid
	`

	rows, err := s.db.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to query mandatory memories: %w", err)
	}
	defer rows.Close()

	var memories []Memory
	for rows.Next() {
		m, err := scanSQLiteMemory(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan memory: %w", err)
		}
		memories = append(memories, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating memories: %w", err)
	}
	return memories, nil
}

// AutoLoadKnowledge returns active knowledge-base rows flagged auto_load.
func (s *SQLiteStore) AutoLoadKnowledge(ctx context.Context) ([]KnowledgeEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, category, title, content, created_at
		FROM knowledge_base
		WHERE auto_load = 1 AND is_active = 1
		ORDER BY rowid
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query knowledge base: %w", err)
	}
	defer rows.Close()

	var entries []KnowledgeEntry
	for rows.Next() {
		k := KnowledgeEntry{IsActive: true, AutoLoad: true}
		var created string
		if err := rows.Scan(&k.ID, &k.Category, &k.Title, &k.Content, &created); err != nil {
			return nil, fmt.Errorf("failed to scan knowledge entry: %w", err)
		}
		k.CreatedAt, _ = parseTimestamp(created)
		entries = append(entries, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating knowledge entries: %w", err)
	}
	return entries, nil
}

// AddKnowledge inserts a knowledge-base row and returns its id.
func (s *SQLiteStore) AddKnowledge(ctx context.Context, k KnowledgeEntry) (string, error) {
	if k.ID == "" {
		k.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO knowledge_base (id, category, title, content, is_active, auto_load)
		VALUES (?, ?, ?, ?, ?, ?)
	`, k.ID, k.Category, k.Title, k.Content, boolInt(k.IsActive), boolInt(k.AutoLoad))
	if err != nil {
		return "", fmt.Errorf("failed to insert knowledge entry: %w", err)
	}
	return k.ID, nil
}

// SearchMemories scores every embedded memory matching the filter and returns
// those at or above filter.Threshold, most similar first.
func (s *SQLiteStore) SearchMemories(ctx context.Context, queryVector []float32, filter SearchFilter) ([]Memory, error) {
	var (
		where = []string{"embedding IS NOT NULL", "is_archived = 0"}
		args  []any
	)
	if filter.Scope != "" {
		where = append(where, "scope = ?")
		args = append(args, string(filter.Scope))
	}
	if filter.Type != "" {
		where = append(where, "type = ?")
		args = append(args, string(filter.Type))
	}
	if filter.ProjectID != "" {
		where = append(where, "(project_id = ? OR scope = 'global')")
		args = append(args, filter.ProjectID)
	}

	query := `SELECT ` + sqliteMemoryColumns + ` FROM memories WHERE ` + strings.Join(where, " AND ")
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query memories: %w", err)
	}
	defer rows.Close()

	var results []Memory
	for rows.Next() {
		m, err := scanSQLiteMemory(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan memory: %w", err)
		}
		if len(m.Embedding) == 0 || len(m.Embedding) != len(queryVector) {
			continue
		}
		m.Similarity = CosineSimilarity(queryVector, m.Embedding)
		if m.Similarity < filter.Threshold {
			continue
		}
		results = append(results, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating memories: %w", err)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})

	limit := orDefault(filter.Limit, 10)
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// AddMemory inserts a memory and returns its id.
func (s *SQLiteStore) AddMemory(ctx context.Context, m Memory) (string, error) {
	m = m.withDefaults()
	if m.ID == "" {
		m.ID = uuid.NewString()
	}

	query := `
		INSERT INTO memories (id, content, summary, embedding, scope, type, importance, project_id, user_id,
			session_id, tags, source, context, is_pinned, auto_load)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query, m.ID, m.Content, m.Summary, encodeVector(m.Embedding),
		string(m.Scope), string(m.Type), string(m.Importance), m.ProjectID, m.UserID, m.SessionID,
		encodeJSON(m.Tags, "[]"), m.Source, encodeJSON(m.Context, "{}"), boolInt(m.IsPinned), boolInt(m.AutoLoad))
	if err != nil {
		return "", fmt.Errorf("failed to insert memory: %w", err)
	}
	return m.ID, nil
}

// IncrementAccess bumps access_count and last_accessed_at.
func (s *SQLiteStore) IncrementAccess(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE memories SET access_count = access_count + 1, last_accessed_at = ? WHERE id = ?
	`, formatTimestamp(time.Now()), id)
	if err != nil {
		return fmt.Errorf("failed to track access for memory %s: %w", id, err)
	}
	return requireAffected(res, "memory", id)
}

// SimilarErrors scores every embedded error and returns the closest ones.
func (s *SQLiteStore) SimilarErrors(ctx context.Context, queryVector []float32, limit int) ([]ErrorSolution, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, error_type, error_message, error_context, embedding, solution, technology, tags,
		       times_encountered, times_solved, success_rate, created_at, last_encountered_at
		FROM error_solutions
		WHERE embedding IS NOT NULL
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query errors: %w", err)
	}
	defer rows.Close()

	var results []ErrorSolution
	for rows.Next() {
		var (
			e                        ErrorSolution
			embedding                []byte
			contextJSON, tech, tags  string
			created, lastEncountered string
		)
		err := rows.Scan(&e.ID, &e.ErrorType, &e.ErrorMessage, &contextJSON, &embedding, &e.Solution,
			&tech, &tags, &e.TimesEncountered, &e.TimesSolved, &e.SuccessRate, &created, &lastEncountered)
		if err != nil {
			return nil, fmt.Errorf("failed to scan error solution: %w", err)
		}

		stored := decodeVector(embedding)
		if len(stored) == 0 || len(stored) != len(queryVector) {
			continue
		}
		e.Similarity = CosineSimilarity(queryVector, stored)
		e.ErrorContext = decodeObject(contextJSON)
		e.Technology = decodeStrings(tech)
		e.Tags = decodeStrings(tags)
		e.CreatedAt, _ = parseTimestamp(created)
		e.LastEncounteredAt, _ = parseTimestamp(lastEncountered)
		results = append(results, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating errors: %w", err)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})

	topK := min(orDefault(limit, 5), len(results))
	return results[:topK], nil
}

// IncrementEncounter bumps times_encountered on an existing error.
func (s *SQLiteStore) IncrementEncounter(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE error_solutions
		SET times_encountered = times_encountered + 1,
		    success_rate = CAST(times_solved AS REAL) / (times_encountered + 1),
		    last_encountered_at = ?
		WHERE id = ?
	`, formatTimestamp(time.Now()), id)
	if err != nil {
		return fmt.Errorf("failed to update error %s: %w", id, err)
	}
	return requireAffected(res, "error solution", id)
}

// InsertError stores a new error and returns its id.
func (s *SQLiteStore) InsertError(ctx context.Context, e ErrorSolution) (string, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO error_solutions (id, error_type, error_message, error_context, embedding, solution, technology, tags)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.ErrorType, e.ErrorMessage, encodeJSON(e.ErrorContext, "{}"), encodeVector(e.Embedding),
		e.Solution, encodeJSON(e.Technology, "[]"), encodeJSON(e.Tags, "[]"))
	if err != nil {
		return "", fmt.Errorf("failed to insert error solution: %w", err)
	}
	return e.ID, nil
}

// MarkSolved bumps times_solved and recomputes the success rate.
func (s *SQLiteStore) MarkSolved(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE error_solutions
		SET times_solved = times_solved + 1,
		    success_rate = MIN(1.0, CAST(times_solved + 1 AS REAL) / MAX(times_encountered, 1))
		WHERE id = ?
	`, id)
	if err != nil {
		return fmt.Errorf("failed to mark error %s solved: %w", id, err)
	}
	return requireAffected(res, "error solution", id)
}

// CreateConversation inserts a conversation and returns its id.
func (s *SQLiteStore) CreateConversation(ctx context.Context, c Conversation) (string, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversations (id, title, project_id, user_id) VALUES (?, ?, ?, ?)
	`, c.ID, c.Title, c.ProjectID, c.UserID)
	if err != nil {
		return "", fmt.Errorf("failed to create conversation: %w", err)
	}
	return c.ID, nil
}

// AddMessage appends a message to a conversation with the next sequence number.
func (s *SQLiteStore) AddMessage(ctx context.Context, m Message) (Message, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Message{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := formatTimestamp(time.Now())
	res, err := tx.ExecContext(ctx, `
		UPDATE conversations
		SET message_count = message_count + 1, total_tokens = total_tokens + ?, updated_at = ?
		WHERE id = ?
	`, m.TokensUsed, now, m.ConversationID)
	if err != nil {
		return Message{}, fmt.Errorf("failed to update conversation: %w", err)
	}
	if err := requireAffected(res, "conversation", m.ConversationID); err != nil {
		return Message{}, err
	}

	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	var toolCalls any
	if len(m.ToolCalls) > 0 {
		toolCalls = string(m.ToolCalls)
	}

	err = tx.QueryRowContext(ctx, `
		INSERT INTO messages (id, conversation_id, role, content, embedding, model, tokens_used, tool_calls, sequence, created_at)
		SELECT ?, ?, ?, ?, ?, ?, ?, ?, COALESCE(MAX(sequence), 0) + 1, ?
		FROM messages WHERE conversation_id = ?
		RETURNING sequence
	`, m.ID, m.ConversationID, m.Role, m.Content, encodeVector(m.Embedding), m.Model, m.TokensUsed,
		toolCalls, now, m.ConversationID).Scan(&m.Sequence)
	if err != nil {
		return Message{}, fmt.Errorf("failed to insert message: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Message{}, fmt.Errorf("failed to commit message: %w", err)
	}
	m.CreatedAt, _ = parseTimestamp(now)
	return m, nil
}

// History returns messages ordered by sequence ascending.
func (s *SQLiteStore) History(ctx context.Context, conversationID string, limit int) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, role, content, model, tokens_used, tool_calls, sequence, created_at
		FROM messages
		WHERE conversation_id = ?
		ORDER BY sequence ASC
		LIMIT ?
	`, conversationID, orDefault(limit, 50))
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var (
			m         Message
			toolCalls sql.NullString
			created   string
		)
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &m.Model, &m.TokensUsed,
			&toolCalls, &m.Sequence, &created); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		if toolCalls.Valid {
			m.ToolCalls = json.RawMessage(toolCalls.String)
		}
		m.CreatedAt, _ = parseTimestamp(created)
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating messages: %w", err)
	}
	return messages, nil
}

// AddPattern stores a learned pattern and returns its id.
func (s *SQLiteStore) AddPattern(ctx context.Context, p LearnedPattern) (string, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO learned_patterns (id, pattern_name, pattern_description, template, example_input,
			example_output, embedding, category, tags)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, p.ID, p.Name, p.Description, p.Template, p.ExampleInput, p.ExampleOutput, encodeVector(p.Embedding),
		p.Category, encodeJSON(p.Tags, "[]"))
	if err != nil {
		return "", fmt.Errorf("failed to insert pattern: %w", err)
	}
	return p.ID, nil
}

// Ping verifies the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	return nil
}

// Close releases the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func requireAffected(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func encodeJSON(v any, empty string) string {
	data, err := json.Marshal(v)
	if err != nil || string(data) == "null" {
		return empty
	}
	return string(data)
}

func decodeStrings(s string) []string {
	var out []string
	if err := json.Unmarshal([]byte(s), &out); err != nil || out == nil {
		return []string{}
	}
	return out
}

func decodeObject(s string) map[string]any {
	var out map[string]any
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil
	}
	return out
}

var _ Store = (*SQLiteStore)(nil)
