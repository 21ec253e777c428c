package driven

import (
	"context"

	"github.com/custodia-labs/clinical-search/internal/core/domain"
)

// SearchIndex is the search cluster (Elasticsearch).
// Implementations apply the per-call timeout and bounded retry; callers never retry.
type SearchIndex interface {
	// IndexExists reports whether the index exists
	IndexExists(ctx context.Context, index string) (bool, error)

	// CreateIndex creates an index with the given mapping.
	// Returns domain.ErrAlreadyExists if another caller created it first.
	CreateIndex(ctx context.Context, index string, mapping *domain.IndexMapping) error

	// GetMapping returns the live, flattened mapping of an index.
	// Returns domain.ErrNotFound if the index does not exist.
	GetMapping(ctx context.Context, index string) (*domain.IndexMapping, error)

	// Upsert inserts or replaces the document with the given id
	Upsert(ctx context.Context, index, id string, doc any) error

	// Create writes a document only if the id is unused.
	// Returns domain.ErrAlreadyExists if the id is taken.
	Create(ctx context.Context, index, id string, doc any) error

	// Get returns the document with the given id, or nil if it does not exist
	Get(ctx context.Context, index, id string) (*domain.Hit, error)

	// Search runs a term or k-NN query; hits are in engine score order unless Sort is set
	Search(ctx context.Context, index string, req *domain.SearchRequest) ([]*domain.Hit, error)

	// Count returns the number of documents in an index
	Count(ctx context.Context, index string) (int64, error)

	// Refresh makes recent writes visible to search
	Refresh(ctx context.Context, index string) error

	// ClusterHealth returns the cluster health color
	ClusterHealth(ctx context.Context) (*domain.ClusterHealth, error)
}
