package memory

import (
	"context"
	"fmt"

	"github.com/easeaico/brain-agent/internal/vectorstore"
)

// Backends accepted by Open.
const (
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
	BackendQdrant   = "qdrant"
)

// OpenOptions selects and configures a store backend.
type OpenOptions struct {
	Backend     string
	DatabaseURL string

	// Qdrant backend only.
	Qdrant     *vectorstore.Client
	Collection string
	Dimension  int
}

// Open creates the store for opts.Backend. SQLite schemas are migrated on
// open; Postgres schemas are migrated separately with MigratePostgres.
func Open(ctx context.Context, opts OpenOptions) (Store, error) {
	switch opts.Backend {
	case BackendSQLite:
		s, err := NewSQLiteStore(ctx, opts.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := s.InitSchema(ctx); err != nil {
			s.Close()
			return nil, err
		}
		return s, nil
	case BackendQdrant:
		if opts.Qdrant == nil {
			return nil, fmt.Errorf("qdrant backend needs a client")
		}
		dim := opts.Dimension
		if dim <= 0 {
			dim = vectorstore.DefaultDimension
		}
		return NewQdrantStore(opts.Qdrant, opts.Collection, dim), nil
	case BackendPostgres, "":
		return NewPostgresStore(ctx, opts.DatabaseURL)
	default:
		return nil, fmt.Errorf("unknown store backend %q", opts.Backend)
	}
}
