package driving

import (
	"context"

	"github.com/custodia-labs/clinical-search/internal/core/domain"
)

// QueryService answers read-only queries against the clinical indices
type QueryService interface {
	// FindByID returns the document with the given id, or nil if none exists.
	// On versioned indices a bare key resolves to the latest version.
	FindByID(ctx context.Context, index, id string) (*domain.Hit, error)

	// FilterBy returns documents whose field equals value exactly, in engine score order
	FilterBy(ctx context.Context, index, field string, value any) ([]*domain.Hit, error)

	// FindSimilar embeds queryText and returns at most k hits by descending similarity.
	// Returns domain.ErrUnsupportedIndex if the index has no vector field.
	FindSimilar(ctx context.Context, index, queryText string, k int) (*domain.SimilarityResult, error)

	// CaseHistory returns every version of a medical case, oldest first
	CaseHistory(ctx context.Context, caseID string) ([]*domain.Hit, error)
}
