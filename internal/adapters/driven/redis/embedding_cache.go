package redis

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"math"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/blake2b"

	"github.com/custodia-labs/clinical-search/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.EmbeddingCache = (*EmbeddingCache)(nil)

const embeddingPrefix = "clinical:embedding:"

// EmbeddingCache implements driven.EmbeddingCache using Redis.
// Keys hash the text so clinical free text is never stored in key names.
type EmbeddingCache struct {
	client redis.UniversalClient
}

// NewEmbeddingCache creates a new Redis-backed EmbeddingCache
func NewEmbeddingCache(client redis.UniversalClient) *EmbeddingCache {
	return &EmbeddingCache{client: client}
}

// Get returns the cached vector, or nil on a miss
func (c *EmbeddingCache) Get(ctx context.Context, model, text string) ([]float32, error) {
	data, err := c.client.Get(ctx, embeddingKey(model, text)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read cached embedding", goerr.V("model", model))
	}
	vector, err := decodeVector(data)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to decode cached embedding", goerr.V("model", model))
	}
	return vector, nil
}

// Set stores a vector for the given TTL
func (c *EmbeddingCache) Set(ctx context.Context, model, text string, vector []float32, ttl time.Duration) error {
	if err := c.client.Set(ctx, embeddingKey(model, text), encodeVector(vector), ttl).Err(); err != nil {
		return goerr.Wrap(err, "failed to cache embedding", goerr.V("model", model))
	}
	return nil
}

// embeddingKey is clinical:embedding:<model>:<blake2b-256 of text>
func embeddingKey(model, text string) string {
	sum := blake2b.Sum256([]byte(text))
	return embeddingPrefix + model + ":" + hex.EncodeToString(sum[:])
}

// encodeVector packs float32 values little-endian
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, goerr.New("cached vector has a partial element", goerr.V("bytes", len(data)))
	}
	v := make([]float32, len(data)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return v, nil
}
