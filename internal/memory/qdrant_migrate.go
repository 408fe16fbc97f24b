package memory

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/easeaico/brain-agent/internal/vectorstore"
	"go.uber.org/zap"
)

// MigrationSourceQdrant is the source recorded on memories copied out of Qdrant.
const MigrationSourceQdrant = "qdrant_migration"

const defaultMigrationBatch = 100

// QdrantMigration copies points of a legacy Qdrant collection into a store.
type QdrantMigration struct {
	Client     *vectorstore.Client
	Collection string
	Target     MemoryStore
	ProjectID  string
	UserID     string
	BatchSize  int
	Logger     *zap.Logger
}

// MigrationStats summarises a migration run.
type MigrationStats struct {
	Total    int64 `json:"total"`
	Migrated int   `json:"migrated"`
	Failed   int   `json:"failed"`
}

var legacyTypes = map[string]Type{
	"fact":         TypeKnowledge,
	"conversation": TypeConversation,
	"preference":   TypePreference,
	"error":        TypeErrorSolution,
	"pattern":      TypeLearnedPattern,
	"code":         TypeCodeSnippet,
	"architecture": TypeArchitecture,
}

func legacyType(v any) Type {
	s, _ := v.(string)
	if t, ok := legacyTypes[s]; ok {
		return t
	}
	return TypeKnowledge
}

func legacyScope(v any) Scope {
	switch s, _ := v.(string); Scope(s) {
	case ScopeUser, ScopeProject, ScopeGlobal, ScopeSession:
		return Scope(s)
	default:
		return ScopeProject
	}
}

// legacyTags collects category, technology and tags from a payload,
// deduplicated in first-seen order.
func legacyTags(payload map[string]any) []string {
	var (
		tags = []string{}
		seen = map[string]bool{}
	)
	add := func(v any) {
		s := fmt.Sprint(v)
		if s == "" || seen[s] {
			return
		}
		seen[s] = true
		tags = append(tags, s)
	}

	if c, ok := payload["category"]; ok && c != nil && c != "" {
		add(c)
	}
	switch tech := payload["technology"].(type) {
	case nil:
	case []any:
		for _, t := range tech {
			add(t)
		}
	default:
		add(tech)
	}
	if list, ok := payload["tags"].([]any); ok {
		for _, t := range list {
			add(t)
		}
	}
	return tags
}

func (m *QdrantMigration) toMemory(p vectorstore.Point) Memory {
	content, _ := p.Payload["content"].(string)
	if content == "" {
		raw, _ := json.Marshal(p.Payload)
		content = string(raw)
	}
	ctxMeta, _ := p.Payload["metadata"].(map[string]any)
	if ctxMeta == nil {
		ctxMeta = map[string]any{}
	}
	return Memory{
		Content:    content,
		Embedding:  p.Vector,
		Type:       legacyType(p.Payload["type"]),
		Scope:      legacyScope(p.Payload["scope"]),
		Importance: ImportanceMedium,
		ProjectID:  m.ProjectID,
		UserID:     m.UserID,
		Tags:       legacyTags(p.Payload),
		Context:    ctxMeta,
		Source:     MigrationSourceQdrant,
	}
}

// Run scrolls the collection in batches and inserts every point. Insert
// failures are counted and logged; scroll failures abort the run.
func (m *QdrantMigration) Run(ctx context.Context) (MigrationStats, error) {
	logger := m.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	batch := m.BatchSize
	if batch <= 0 {
		batch = defaultMigrationBatch
	}

	var stats MigrationStats
	info, err := m.Client.GetCollection(ctx, m.Collection)
	if err != nil {
		return stats, fmt.Errorf("failed to read collection %s: %w", m.Collection, err)
	}
	stats.Total = info.PointsCount
	logger.Info("starting qdrant migration",
		zap.String("collection", m.Collection), zap.Int64("points", stats.Total))

	var offset *vectorstore.PointID
	for {
		page, err := m.Client.Scroll(ctx, m.Collection, batch, offset, nil, true)
		if err != nil {
			return stats, fmt.Errorf("failed to scroll %s: %w", m.Collection, err)
		}
		if len(page.Points) == 0 {
			break
		}

		for _, p := range page.Points {
			if _, err := m.Target.AddMemory(ctx, m.toMemory(p)); err != nil {
				stats.Failed++
				logger.Warn("failed to migrate point", zap.String("point_id", string(p.ID)), zap.Error(err))
				continue
			}
			stats.Migrated++
		}
		logger.Info("migrated batch", zap.Int("migrated", stats.Migrated), zap.Int64("total", stats.Total))

		if page.NextOffset == nil {
			break
		}
		offset = page.NextOffset
	}
	return stats, nil
}
