package ai

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/clinical-search/internal/core/domain"
)

func TestNewEmbeddingService(t *testing.T) {
	base := OpenAIConfig{APIKey: "sk-test", Dimensions: domain.DefaultVectorDims}

	t.Run("without cache", func(t *testing.T) {
		svc, err := NewEmbeddingService(FactoryConfig{OpenAI: base})
		require.NoError(t, err)
		assert.IsType(t, &OpenAIEmbedding{}, svc)
	})

	t.Run("with cache", func(t *testing.T) {
		svc, err := NewEmbeddingService(FactoryConfig{OpenAI: base, Cache: newMemoryCache(), CacheTTL: time.Minute})
		require.NoError(t, err)
		assert.IsType(t, &CachedEmbedding{}, svc)
		assert.Equal(t, domain.DefaultVectorDims, svc.Dimensions())
	})

	t.Run("missing key", func(t *testing.T) {
		_, err := NewEmbeddingService(FactoryConfig{OpenAI: OpenAIConfig{Dimensions: 384}})
		assert.ErrorIs(t, err, domain.ErrConfiguration)
	})
}
