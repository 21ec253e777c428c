package services

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/clinical-search/internal/core/domain"
	"github.com/custodia-labs/clinical-search/internal/core/ports/driven/mocks"
	"github.com/custodia-labs/clinical-search/internal/core/ports/driving"
)

// fixture wires the services over in-memory adapters with every index created
type fixture struct {
	index    *mocks.MockSearchIndex
	embedder *mocks.MockEmbeddingService
	registry *domain.Registry
	schema   driving.SchemaService
	writer   driving.DocumentWriter
	query    driving.QueryService
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := newBareFixture()
	require.NoError(t, f.schema.EnsureAll(context.Background()))
	return f
}

// newBareFixture wires the services without creating any index
func newBareFixture() *fixture {
	index := mocks.NewMockSearchIndex()
	embedder := mocks.NewMockEmbeddingService()
	registry := domain.DefaultRegistry(domain.DefaultVectorDims)
	logger := discardLogger()

	return &fixture{
		index:    index,
		embedder: embedder,
		registry: registry,
		schema:   NewSchemaService(SchemaServiceConfig{Index: index, Registry: registry, Logger: logger}),
		writer:   NewDocumentWriter(DocumentWriterConfig{Index: index, Embedder: embedder, Registry: registry, Logger: logger}),
		query:    NewQueryService(QueryServiceConfig{Index: index, Embedder: embedder, Registry: registry, Logger: logger}),
	}
}

// fakeEnvironment implements Environment
type fakeEnvironment struct {
	missing []string
	err     error
}

func (e *fakeEnvironment) Missing() []string { return e.missing }
func (e *fakeEnvironment) Validate() error   { return e.err }

func (f *fixture) health(env Environment, requireData bool) driving.HealthService {
	return NewHealthService(HealthServiceConfig{
		Environment: env,
		Index:       f.index,
		Embedder:    f.embedder,
		Schema:      f.schema,
		Registry:    f.registry,
		RequireData: requireData,
		Logger:      discardLogger(),
	})
}
