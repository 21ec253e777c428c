package cli

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/clinical-search/internal/config"
	"github.com/custodia-labs/clinical-search/internal/core/domain"
	"github.com/custodia-labs/clinical-search/internal/core/ports/driven/mocks"
	"github.com/custodia-labs/clinical-search/internal/core/ports/driving"
	coreservices "github.com/custodia-labs/clinical-search/internal/core/services"
)

type fakeEnv struct{ missing []string }

func (e *fakeEnv) Missing() []string { return e.missing }
func (e *fakeEnv) Validate() error   { return nil }

type testServices struct {
	index    *mocks.MockSearchIndex
	embedder *mocks.MockEmbeddingService
	env      *fakeEnv
	deps     *Dependencies
}

// setupTestServices installs services backed by in-memory mocks.
// ensure creates every index up front.
func setupTestServices(t *testing.T, ensure bool) *testServices {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	index := mocks.NewMockSearchIndex()
	embedder := mocks.NewMockEmbeddingService()
	registry := domain.DefaultRegistry(domain.DefaultVectorDims)
	env := &fakeEnv{}

	schema := coreservices.NewSchemaService(coreservices.SchemaServiceConfig{Index: index, Registry: registry, Logger: logger})
	if ensure {
		require.NoError(t, schema.EnsureAll(context.Background()))
	}

	ts := &testServices{index: index, embedder: embedder, env: env}
	ts.deps = &Dependencies{
		Config: &config.Config{},
		Schema: schema,
		Writer: coreservices.NewDocumentWriter(coreservices.DocumentWriterConfig{Index: index, Embedder: embedder, Registry: registry, Logger: logger}),
		Query:  coreservices.NewQueryService(coreservices.QueryServiceConfig{Index: index, Embedder: embedder, Registry: registry, Logger: logger}),
		Health: func(requireData bool) driving.HealthService {
			return coreservices.NewHealthService(coreservices.HealthServiceConfig{
				Environment: env,
				Index:       index,
				Embedder:    embedder,
				Schema:      schema,
				Registry:    registry,
				RequireData: requireData,
				Logger:      logger,
			})
		},
		Logger: logger,
	}

	prev := deps
	SetDependencies(ts.deps)
	t.Cleanup(func() { deps = prev })
	return ts
}

// run executes the root command with args and returns its output
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	defer rootCmd.SetArgs(nil)

	err := rootCmd.ExecuteContext(context.Background())
	return buf.String(), err
}

// resetFlags restores defaults so package-level flag state does not leak between tests
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}
