package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/custodia-labs/clinical-search/internal/core/domain"
	"github.com/custodia-labs/clinical-search/internal/core/ports/driven"
	"github.com/custodia-labs/clinical-search/internal/core/ports/driving"
)

// Ensure schemaService implements SchemaService
var _ driving.SchemaService = (*schemaService)(nil)

const (
	// SchemaBootstrapLock is the lock name held while creating indices
	SchemaBootstrapLock = "schema-bootstrap"

	schemaLockTTL      = time.Minute
	schemaLockWait     = 30 * time.Second
	schemaLockInterval = 500 * time.Millisecond
)

// schemaService implements the SchemaService interface
type schemaService struct {
	index    driven.SearchIndex
	registry *domain.Registry
	lock     driven.DistributedLock
	logger   *slog.Logger
}

// SchemaServiceConfig holds dependencies for the schema service
type SchemaServiceConfig struct {
	Index    driven.SearchIndex
	Registry *domain.Registry

	// Lock serializes EnsureAll across replicas (optional)
	Lock driven.DistributedLock

	Logger *slog.Logger
}

// NewSchemaService creates a new SchemaService
func NewSchemaService(cfg SchemaServiceConfig) driving.SchemaService {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	registry := cfg.Registry
	if registry == nil {
		registry = domain.DefaultRegistry(domain.DefaultVectorDims)
	}
	return &schemaService{
		index:    cfg.Index,
		registry: registry,
		lock:     cfg.Lock,
		logger:   logger.With("component", "schema"),
	}
}

// EnsureIndex creates the index if absent, otherwise verifies the live mapping
func (s *schemaService) EnsureIndex(ctx context.Context, name string, mapping *domain.IndexMapping) error {
	if name == "" {
		return goerr.Wrap(domain.ErrInvalidInput, "index name is required")
	}
	if mapping == nil {
		return goerr.Wrap(domain.ErrInvalidInput, "mapping is required", goerr.V(domain.IndexKey, name))
	}

	exists, err := s.index.IndexExists(ctx, name)
	if err != nil {
		return goerr.Wrap(err, "failed to check index", goerr.V(domain.IndexKey, name))
	}

	if !exists {
		err := s.index.CreateIndex(ctx, name, mapping)
		switch {
		case err == nil:
			s.logger.Info("index created", "index", name, "fields", len(mapping.Fields))
			return nil
		case errors.Is(err, domain.ErrAlreadyExists):
			// Another caller won the race; validate what it created
			s.logger.Info("index created concurrently", "index", name)
		default:
			return goerr.Wrap(err, "failed to create index", goerr.V(domain.IndexKey, name))
		}
	}

	live, err := s.index.GetMapping(ctx, name)
	if err != nil {
		return goerr.Wrap(err, "failed to get mapping", goerr.V(domain.IndexKey, name))
	}
	if err := CompareMappings(name, mapping, live); err != nil {
		s.logger.Error("index mapping mismatch", "index", name, "error", err)
		return err
	}

	s.logger.Debug("index mapping verified", "index", name)
	return nil
}

// EnsureAll ensures every registered index, collecting all failures
func (s *schemaService) EnsureAll(ctx context.Context) error {
	release, err := s.acquireBootstrapLock(ctx)
	if err != nil {
		return err
	}
	defer release()

	var errs []error
	for _, name := range s.registry.Names() {
		schema, _ := s.registry.Get(name)
		if err := s.EnsureIndex(ctx, name, schema.Mapping()); err != nil {
			errs = append(errs, err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return errors.Join(errs...)
}

// acquireBootstrapLock waits a bounded time for the bootstrap lock.
// Without a lock, or when the lock backend fails, bootstrap proceeds unlocked.
func (s *schemaService) acquireBootstrapLock(ctx context.Context) (func(), error) {
	noop := func() {}
	if s.lock == nil {
		return noop, nil
	}

	deadline := time.Now().Add(schemaLockWait)
	reported := false
	for {
		acquired, err := s.lock.Acquire(ctx, SchemaBootstrapLock, schemaLockTTL)
		if err != nil {
			s.logger.Warn("bootstrap lock unavailable, continuing unlocked", "error", err)
			return noop, nil
		}
		if acquired {
			return func() {
				// Release with a fresh context so a cancelled caller still frees the lock
				releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := s.lock.Release(releaseCtx, SchemaBootstrapLock); err != nil {
					s.logger.Warn("failed to release bootstrap lock", "error", err)
				}
			}, nil
		}
		if !reported {
			reported = true
			holder, err := s.lock.Holder(ctx, SchemaBootstrapLock)
			if err != nil {
				s.logger.Warn("failed to read bootstrap lock holder", "error", err)
			}
			s.logger.Info("waiting for bootstrap lock", "holder", holder)
		}
		if time.Now().After(deadline) {
			s.logger.Warn("bootstrap lock held elsewhere, continuing unlocked")
			return noop, nil
		}

		select {
		case <-ctx.Done():
			return noop, ctx.Err()
		case <-time.After(schemaLockInterval):
		}
	}
}

// VerifyIndex compares the live mapping with the registry without mutating anything
func (s *schemaService) VerifyIndex(ctx context.Context, name string) (*domain.IndexMapping, error) {
	schema, ok := s.registry.Get(name)
	if !ok {
		return nil, goerr.Wrap(domain.ErrInvalidInput, "index is not registered", goerr.V(domain.IndexKey, name))
	}

	exists, err := s.index.IndexExists(ctx, name)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to check index", goerr.V(domain.IndexKey, name))
	}
	if !exists {
		return nil, goerr.Wrap(domain.ErrIndexNotReady, "index does not exist", goerr.V(domain.IndexKey, name))
	}

	live, err := s.index.GetMapping(ctx, name)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get mapping", goerr.V(domain.IndexKey, name))
	}
	if err := CompareMappings(name, schema.Mapping(), live); err != nil {
		return live, err
	}
	return live, nil
}

// GetMapping returns the live mapping for diagnostics
func (s *schemaService) GetMapping(ctx context.Context, name string) (*domain.IndexMapping, error) {
	if name == "" {
		return nil, goerr.Wrap(domain.ErrInvalidInput, "index name is required")
	}
	return s.index.GetMapping(ctx, name)
}

// CompareMappings checks that every expected field exists in live with the same type
// and, for vector fields, the same dimensionality. Extra live fields are allowed.
func CompareMappings(index string, expected, live *domain.IndexMapping) error {
	if live == nil {
		return goerr.Wrap(domain.ErrSchemaMismatch, "index has no mapping", goerr.V(domain.IndexKey, index))
	}

	for _, name := range expected.FieldNames() {
		want := expected.Fields[name]
		got, ok := live.Fields[name]
		if !ok {
			return goerr.Wrap(domain.ErrSchemaMismatch, "field missing from live mapping",
				goerr.V(domain.IndexKey, index),
				goerr.V(domain.FieldKey, name),
				goerr.V(domain.ExpectedTypeKey, want.Type))
		}
		if got.Type != want.Type {
			return goerr.Wrap(domain.ErrSchemaMismatch, "field type differs",
				goerr.V(domain.IndexKey, index),
				goerr.V(domain.FieldKey, name),
				goerr.V(domain.ExpectedTypeKey, want.Type),
				goerr.V(domain.ActualTypeKey, got.Type))
		}
		if want.Type == domain.FieldDenseVector && got.Dims != want.Dims {
			return goerr.Wrap(domain.ErrSchemaMismatch, "vector dimensionality differs",
				goerr.V(domain.IndexKey, index),
				goerr.V(domain.FieldKey, name),
				goerr.V(domain.ExpectedDimsKey, want.Dims),
				goerr.V(domain.ActualDimsKey, got.Dims))
		}
		if want.Similarity != "" && got.Similarity != "" && got.Similarity != want.Similarity {
			return goerr.Wrap(domain.ErrSchemaMismatch, "vector similarity differs",
				goerr.V(domain.IndexKey, index),
				goerr.V(domain.FieldKey, name),
				goerr.V("expected_similarity", want.Similarity),
				goerr.V("actual_similarity", got.Similarity))
		}
	}
	return nil
}
