package services

import (
	"context"
	"log/slog"
	"slices"
	"sort"
	"strings"

	"github.com/m-mizutani/goerr/v2"

	"github.com/custodia-labs/clinical-search/internal/core/domain"
	"github.com/custodia-labs/clinical-search/internal/core/ports/driven"
	"github.com/custodia-labs/clinical-search/internal/core/ports/driving"
)

// Ensure queryService implements QueryService
var _ driving.QueryService = (*queryService)(nil)

// queryService implements the QueryService interface
type queryService struct {
	index    driven.SearchIndex
	embedder driven.EmbeddingService
	registry *domain.Registry
	logger   *slog.Logger
}

// QueryServiceConfig holds dependencies for the query service
type QueryServiceConfig struct {
	Index    driven.SearchIndex
	Embedder driven.EmbeddingService
	Registry *domain.Registry
	Logger   *slog.Logger
}

// NewQueryService creates a new QueryService
func NewQueryService(cfg QueryServiceConfig) driving.QueryService {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	registry := cfg.Registry
	if registry == nil {
		registry = domain.DefaultRegistry(domain.DefaultVectorDims)
	}
	return &queryService{
		index:    cfg.Index,
		embedder: cfg.Embedder,
		registry: registry,
		logger:   logger.With("component", "query"),
	}
}

// FindByID returns the document with the given id, or nil if none exists
func (s *queryService) FindByID(ctx context.Context, index, id string) (*domain.Hit, error) {
	schema, err := lookupSchema(s.registry, index)
	if err != nil {
		return nil, err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, goerr.Wrap(domain.ErrInvalidInput, "id is required", goerr.V(domain.IndexKey, index))
	}

	if schema.Versioned {
		if _, _, ok := domain.ParseVersionedID(id); !ok {
			return s.latestVersion(ctx, schema, id)
		}
	}

	hit, err := s.index.Get(ctx, index, id)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get document",
			goerr.V(domain.IndexKey, index), goerr.V(domain.DocumentIDKey, id))
	}
	s.logger.Debug("find by id", "index", index, "id", id, "found", hit != nil)
	return hit, nil
}

// latestVersion resolves a bare key to the highest stored version
func (s *queryService) latestVersion(ctx context.Context, schema *domain.IndexSchema, key string) (*domain.Hit, error) {
	hits, err := s.index.Search(ctx, schema.Name, &domain.SearchRequest{
		Terms: []domain.TermFilter{{Field: schema.KeyField, Value: key}},
		Sort:  []domain.SortField{{Field: "version", Order: domain.SortDesc}},
		Size:  1,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to find latest version",
			goerr.V(domain.IndexKey, schema.Name), goerr.V(domain.DocumentIDKey, key))
	}
	if len(hits) == 0 {
		return nil, nil
	}
	return hits[0], nil
}

// FilterBy returns documents whose field equals value exactly
func (s *queryService) FilterBy(ctx context.Context, index, field string, value any) ([]*domain.Hit, error) {
	schema, err := lookupSchema(s.registry, index)
	if err != nil {
		return nil, err
	}

	mapping, ok := schema.Fields[field]
	if !ok {
		return nil, goerr.Wrap(domain.ErrInvalidInput, "field is not mapped",
			goerr.V(domain.IndexKey, index), goerr.V(domain.FieldKey, field))
	}
	if !mapping.Type.IsExactMatch() {
		return nil, goerr.Wrap(domain.ErrInvalidInput, "field does not support exact-match filters",
			goerr.V(domain.IndexKey, index), goerr.V(domain.FieldKey, field), goerr.V(domain.ActualTypeKey, mapping.Type))
	}
	if value == nil {
		return nil, goerr.Wrap(domain.ErrInvalidInput, "filter value is required",
			goerr.V(domain.IndexKey, index), goerr.V(domain.FieldKey, field))
	}

	if allowed := schema.AllowedValues(field); allowed != nil {
		str, isString := value.(string)
		if !isString || !slices.Contains(allowed, str) {
			return nil, goerr.Wrap(domain.ErrInvalidEnumValue, "value is not in the enumeration",
				goerr.V(domain.IndexKey, index),
				goerr.V(domain.FieldKey, field),
				goerr.V(domain.ValueKey, value),
				goerr.V(domain.AllowedKey, allowed))
		}
	}

	req := &domain.SearchRequest{
		Terms: []domain.TermFilter{{Field: field, Value: value}},
		Size:  domain.DefaultFilterSize,
	}
	if schema.HasVector() {
		req.ExcludeFields = []string{schema.VectorField}
	}

	hits, err := s.index.Search(ctx, index, req)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to filter documents",
			goerr.V(domain.IndexKey, index), goerr.V(domain.FieldKey, field))
	}

	s.logger.Debug("filter", "index", index, "field", field, "hits", len(hits))
	return hits, nil
}

// FindSimilar embeds queryText and returns at most k hits by descending similarity.
// k is clamped to [1, domain.MaxSimilarK].
func (s *queryService) FindSimilar(ctx context.Context, index, queryText string, k int) (*domain.SimilarityResult, error) {
	schema, err := lookupSchema(s.registry, index)
	if err != nil {
		return nil, err
	}
	if !schema.HasVector() {
		return nil, goerr.Wrap(domain.ErrUnsupportedIndex, "index has no vector field", goerr.V(domain.IndexKey, index))
	}
	if strings.TrimSpace(queryText) == "" {
		return nil, goerr.Wrap(domain.ErrInvalidInput, "query text is required", goerr.V(domain.IndexKey, index))
	}
	if s.embedder == nil {
		return nil, goerr.Wrap(domain.ErrConfiguration, "embedding service is not configured")
	}

	k = clampK(k)

	vector, err := s.embedder.EmbedQuery(ctx, queryText)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to embed query", goerr.V(domain.IndexKey, index))
	}
	if len(vector) != schema.VectorDims {
		return nil, goerr.Wrap(domain.ErrValidation, "query vector length does not match schema",
			goerr.V(domain.IndexKey, index),
			goerr.V(domain.ExpectedDimsKey, schema.VectorDims),
			goerr.V(domain.ActualDimsKey, len(vector)))
	}

	hits, err := s.index.Search(ctx, index, &domain.SearchRequest{
		KNN:           &domain.KNNQuery{Field: schema.VectorField, Vector: vector, K: k},
		ExcludeFields: []string{schema.VectorField},
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to run similarity search", goerr.V(domain.IndexKey, index))
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > k {
		hits = hits[:k]
	}

	s.logger.Debug("find similar", "index", index, "k", k, "hits", len(hits))
	return &domain.SimilarityResult{Index: index, Query: queryText, K: k, Hits: hits}, nil
}

// CaseHistory returns every version of a medical case, oldest first
func (s *queryService) CaseHistory(ctx context.Context, caseID string) ([]*domain.Hit, error) {
	schema, err := lookupSchema(s.registry, domain.IndexMedicalCases)
	if err != nil {
		return nil, err
	}
	caseID = strings.TrimSpace(caseID)
	if caseID == "" {
		return nil, goerr.Wrap(domain.ErrInvalidInput, "case id is required")
	}

	hits, err := s.index.Search(ctx, schema.Name, &domain.SearchRequest{
		Terms:         []domain.TermFilter{{Field: schema.KeyField, Value: caseID}},
		Sort:          []domain.SortField{{Field: "version", Order: domain.SortAsc}},
		Size:          domain.DefaultFilterSize,
		ExcludeFields: []string{schema.VectorField},
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to load case history", goerr.V(domain.DocumentIDKey, caseID))
	}
	return hits, nil
}

func lookupSchema(registry *domain.Registry, index string) (*domain.IndexSchema, error) {
	schema, ok := registry.Get(index)
	if !ok {
		return nil, goerr.Wrap(domain.ErrInvalidInput, "index is not registered", goerr.V(domain.IndexKey, index))
	}
	return schema, nil
}

func clampK(k int) int {
	if k < 1 {
		return 1
	}
	if k > domain.MaxSimilarK {
		return domain.MaxSimilarK
	}
	return k
}
