package driven

import (
	"context"
	"time"
)

// EmbeddingService turns clinical free text into fixed-length vectors.
// The only contract is the output length; model identity and preprocessing are the provider's.
type EmbeddingService interface {
	// Embed generates embeddings for multiple texts, in input order
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery generates an embedding for a similarity query
	EmbedQuery(ctx context.Context, query string) ([]float32, error)

	// Dimensions returns the expected embedding length
	Dimensions() int

	// Model returns the model name being used
	Model() string

	// HealthCheck verifies the embedding service is available
	HealthCheck(ctx context.Context) error

	// Probe embeds a fixed text against the provider itself, never a cache,
	// and returns the length of the vector it produced
	Probe(ctx context.Context) (int, error)

	// Close releases resources held by the embedding service
	Close() error
}

// EmbeddingCache stores vectors keyed by model and text
type EmbeddingCache interface {
	// Get returns the cached vector, or nil on a miss
	Get(ctx context.Context, model, text string) ([]float32, error)

	// Set stores a vector for the given TTL
	Set(ctx context.Context, model, text string, vector []float32, ttl time.Duration) error
}
