package driving

import (
	"context"

	"github.com/custodia-labs/clinical-search/internal/core/domain"
)

// SchemaService owns index creation and mapping verification.
// It never deletes or reindexes; migrations are an explicit operator task.
type SchemaService interface {
	// EnsureIndex creates the index if absent, otherwise verifies the live mapping.
	// Returns domain.ErrSchemaMismatch if the live mapping disagrees with the expected one.
	EnsureIndex(ctx context.Context, name string, mapping *domain.IndexMapping) error

	// EnsureAll ensures every registered index from its declared schema
	EnsureAll(ctx context.Context) error

	// VerifyIndex compares the live mapping with the registry without mutating anything.
	// Returns domain.ErrIndexNotReady if the index does not exist.
	VerifyIndex(ctx context.Context, name string) (*domain.IndexMapping, error)

	// GetMapping returns the live mapping for diagnostics
	GetMapping(ctx context.Context, name string) (*domain.IndexMapping, error)
}
