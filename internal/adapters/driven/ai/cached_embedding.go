package ai

import (
	"context"
	"log/slog"
	"time"

	"github.com/custodia-labs/clinical-search/internal/core/ports/driven"
)

// Ensure CachedEmbedding implements EmbeddingService
var _ driven.EmbeddingService = (*CachedEmbedding)(nil)

// CachedEmbedding serves repeated texts from an EmbeddingCache.
// Cache failures are logged and fall through to the wrapped service.
type CachedEmbedding struct {
	next   driven.EmbeddingService
	cache  driven.EmbeddingCache
	ttl    time.Duration
	logger *slog.Logger
}

// NewCachedEmbedding wraps next with cache
func NewCachedEmbedding(next driven.EmbeddingService, cache driven.EmbeddingCache, ttl time.Duration, logger *slog.Logger) *CachedEmbedding {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedEmbedding{
		next:   next,
		cache:  cache,
		ttl:    ttl,
		logger: logger.With("component", "embedding_cache"),
	}
}

// Embed returns cached vectors where present and embeds the rest in one call
func (c *CachedEmbedding) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, len(texts))
	var missTexts []string
	var missPos []int

	for i, text := range texts {
		if v := c.lookup(ctx, text); v != nil {
			out[i] = v
			continue
		}
		missTexts = append(missTexts, text)
		missPos = append(missPos, i)
	}

	if len(missTexts) == 0 {
		return out, nil
	}

	vectors, err := c.next.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}

	for j, v := range vectors {
		out[missPos[j]] = v
		if err := c.cache.Set(ctx, c.next.Model(), missTexts[j], v, c.ttl); err != nil {
			c.logger.Warn("failed to cache embedding", "error", err)
		}
	}

	return out, nil
}

// EmbedQuery generates an embedding for a similarity query
func (c *CachedEmbedding) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	vectors, err := c.Embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// Dimensions returns the wrapped service's embedding length
func (c *CachedEmbedding) Dimensions() int {
	return c.next.Dimensions()
}

// Model returns the wrapped service's model name
func (c *CachedEmbedding) Model() string {
	return c.next.Model()
}

// HealthCheck bypasses the cache
func (c *CachedEmbedding) HealthCheck(ctx context.Context) error {
	return c.next.HealthCheck(ctx)
}

// Probe bypasses the cache
func (c *CachedEmbedding) Probe(ctx context.Context) (int, error) {
	return c.next.Probe(ctx)
}

// Close closes the wrapped service
func (c *CachedEmbedding) Close() error {
	return c.next.Close()
}

func (c *CachedEmbedding) lookup(ctx context.Context, text string) []float32 {
	v, err := c.cache.Get(ctx, c.next.Model(), text)
	if err != nil {
		c.logger.Warn("embedding cache read failed", "error", err)
		return nil
	}
	// Entries from a different dimensionality are ignored
	if v != nil && len(v) != c.next.Dimensions() {
		return nil
	}
	return v
}
