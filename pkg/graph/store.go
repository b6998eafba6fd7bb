// Package graph defines the graph/vector store contract used by ingestion
// and querying, plus an in-memory implementation.
package graph

import (
	"context"

	"github.com/wouteroostervld/kgrag/pkg/domain"
)

// Store persists chunks with their embeddings and extracted graph structure.
// Every node a Store writes carries the chunk's source file tag.
type Store interface {
	// DeleteBySource removes every node tagged with source and returns how
	// many nodes were deleted.
	DeleteBySource(ctx context.Context, source string) (int64, error)

	// Insert stores one chunk together with the entities and relations
	// derived from it. Inserting an existing chunk ID replaces it.
	Insert(ctx context.Context, doc domain.Document) error

	// Search returns up to k chunks ranked by similarity to embedding.
	Search(ctx context.Context, embedding []float32, k int) ([]domain.Match, error)

	// Stats reports node and relation counts.
	Stats(ctx context.Context) (domain.StoreStats, error)

	Close(ctx context.Context) error
}

// HealthChecker is implemented by stores backed by an external resource
// that can be verified without touching its data.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// CheckHealth runs the store's health check. Stores without one are
// always healthy.
func CheckHealth(ctx context.Context, s Store) error {
	hc, ok := s.(HealthChecker)
	if !ok {
		return nil
	}
	return hc.HealthCheck(ctx)
}
