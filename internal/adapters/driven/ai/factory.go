package ai

import (
	"log/slog"
	"time"

	"github.com/custodia-labs/clinical-search/internal/core/ports/driven"
)

// FactoryConfig selects the embedding provider and its optional cache
type FactoryConfig struct {
	OpenAI OpenAIConfig

	// Cache enables CachedEmbedding when set
	Cache    driven.EmbeddingCache
	CacheTTL time.Duration

	Logger *slog.Logger
}

// NewEmbeddingService builds the configured embedding service
func NewEmbeddingService(cfg FactoryConfig) (driven.EmbeddingService, error) {
	svc, err := NewOpenAIEmbedding(cfg.OpenAI)
	if err != nil {
		return nil, err
	}

	if cfg.Cache == nil {
		return svc, nil
	}
	return NewCachedEmbedding(svc, cfg.Cache, cfg.CacheTTL, cfg.Logger), nil
}
