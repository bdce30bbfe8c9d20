package index

import (
	"context"

	"github.com/starford/bonsai/internal/graph"
	"github.com/starford/bonsai/internal/models"
)

// Cache defines the persistence operations the workspace relies on.
// Consumers should depend on this interface rather than the concrete *DB type
// to facilitate testing with mocks.
type Cache interface {
	SaveSnapshot(ctx context.Context, snap Snapshot) error
	LoadSnapshot(ctx context.Context) (*Snapshot, error)
	AllChecksums(ctx context.Context) (map[string]string, error)
	Clear(ctx context.Context) error
	Close() error
}

// Snapshot is everything needed to warm-start a workspace without
// rescanning: the graph, the documents it was built from, and tree metadata.
type Snapshot struct {
	Graph     graph.Snapshot
	Documents []models.DocumentMeta
	Meta      map[string]string
}

// Verify *DB satisfies Cache at compile time.
var _ Cache = (*DB)(nil)
