package mocks

import (
	"context"
	"hash/fnv"
	"sync"

	"github.com/m-mizutani/goerr/v2"

	"github.com/custodia-labs/clinical-search/internal/core/domain"
)

// MockEmbeddingService is a mock implementation of EmbeddingService for testing.
// Vectors are deterministic per text, so equal texts are maximally similar.
type MockEmbeddingService struct {
	mu         sync.Mutex
	dimensions int
	outputDims int
	model      string
	failNext   error
	healthErr  error
	calls      int
}

// NewMockEmbeddingService creates a new MockEmbeddingService with 384 dimensions
func NewMockEmbeddingService() *MockEmbeddingService {
	return &MockEmbeddingService{
		dimensions: domain.DefaultVectorDims,
		model:      "mock-embedding-model",
	}
}

func (m *MockEmbeddingService) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if err := m.takeFailure(); err != nil {
		return nil, err
	}

	result := make([][]float32, len(texts))
	for i, text := range texts {
		result[i] = m.generateEmbedding(text)
	}
	return result, nil
}

func (m *MockEmbeddingService) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if err := m.takeFailure(); err != nil {
		return nil, err
	}
	return m.generateEmbedding(query), nil
}

func (m *MockEmbeddingService) Dimensions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dimensions
}

func (m *MockEmbeddingService) Model() string {
	return m.model
}

func (m *MockEmbeddingService) HealthCheck(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.healthErr
}

// Probe fails with the health error or a pending failure, else reports the produced length
func (m *MockEmbeddingService) Probe(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.healthErr != nil {
		return 0, m.healthErr
	}
	if err := m.takeFailure(); err != nil {
		return 0, err
	}
	if m.outputDims > 0 {
		return m.outputDims, nil
	}
	return m.dimensions, nil
}

func (m *MockEmbeddingService) Close() error {
	return nil
}

func (m *MockEmbeddingService) takeFailure() error {
	err := m.failNext
	m.failNext = nil
	return err
}

// generateEmbedding generates a deterministic embedding based on text hash
func (m *MockEmbeddingService) generateEmbedding(text string) []float32 {
	h := fnv.New32a()
	h.Write([]byte(text))
	seed := h.Sum32()

	dims := m.dimensions
	if m.outputDims > 0 {
		dims = m.outputDims
	}
	embedding := make([]float32, dims)
	for i := range embedding {
		seed = seed*1103515245 + 12345
		embedding[i] = float32(seed%1000)/1000.0 - 0.5
	}
	return embedding
}

// Helper methods for testing

// SetFailNext makes the next embedding call fail with a timeout
func (m *MockEmbeddingService) SetFailNext(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if fail {
		m.failNext = goerr.Wrap(domain.ErrTimeout, "mock embedding timeout")
	} else {
		m.failNext = nil
	}
}

// SetDimensions sets both the advertised and produced vector length
func (m *MockEmbeddingService) SetDimensions(dim int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dimensions = dim
}

// SetOutputDimensions makes the service produce vectors of a different length than advertised
func (m *MockEmbeddingService) SetOutputDimensions(dim int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outputDims = dim
}

// SetHealthError sets the HealthCheck result
func (m *MockEmbeddingService) SetHealthError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.healthErr = err
}

// CallCount returns the number of embedding calls
func (m *MockEmbeddingService) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
