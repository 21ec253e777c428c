package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/clinical-search/internal/core/domain"
	"github.com/custodia-labs/clinical-search/internal/core/ports/driven"
	"github.com/custodia-labs/clinical-search/internal/core/ports/driving"
)

// Ensure healthService implements HealthService
var _ driving.HealthService = (*healthService)(nil)

// maxParallelIndexChecks bounds concurrent index checks
const maxParallelIndexChecks = 4

// Environment reports the state of required configuration
type Environment interface {
	// Missing returns the unset required keys in declaration order
	Missing() []string

	// Validate returns domain.ErrConfiguration for missing or malformed values
	Validate() error
}

// healthService implements the HealthService interface
type healthService struct {
	env         Environment
	index       driven.SearchIndex
	embedder    driven.EmbeddingService
	schema      driving.SchemaService
	registry    *domain.Registry
	requireData bool
	logger      *slog.Logger
}

// HealthServiceConfig holds dependencies for the health service
type HealthServiceConfig struct {
	Environment Environment
	Index       driven.SearchIndex
	Embedder    driven.EmbeddingService
	Schema      driving.SchemaService
	Registry    *domain.Registry

	// RequireData turns empty indices that should hold data into failures
	RequireData bool

	Logger *slog.Logger
}

// NewHealthService creates a new HealthService
func NewHealthService(cfg HealthServiceConfig) driving.HealthService {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	registry := cfg.Registry
	if registry == nil {
		registry = domain.DefaultRegistry(domain.DefaultVectorDims)
	}
	schema := cfg.Schema
	if schema == nil && cfg.Index != nil {
		schema = NewSchemaService(SchemaServiceConfig{Index: cfg.Index, Registry: registry, Logger: logger})
	}
	return &healthService{
		env:         cfg.Environment,
		index:       cfg.Index,
		embedder:    cfg.Embedder,
		schema:      schema,
		registry:    registry,
		requireData: cfg.RequireData,
		logger:      logger.With("component", "health"),
	}
}

// CheckEnvironment verifies required configuration is present
func (s *healthService) CheckEnvironment(ctx context.Context) *domain.CheckResult {
	return s.timed(domain.CheckNameEnvironment, func(r *domain.CheckResult) {
		if s.env == nil {
			r.Fail("no configuration loaded", goerr.Wrap(domain.ErrConfiguration, "no configuration loaded"))
			return
		}

		if missing := s.env.Missing(); len(missing) > 0 {
			r.WithDetail("missing", missing)
			r.Fail("missing required configuration: "+strings.Join(missing, ", "),
				goerr.Wrap(domain.ErrConfiguration, "missing required configuration",
					goerr.V(domain.MissingKeysKey, missing)))
			return
		}

		if err := s.env.Validate(); err != nil {
			r.Fail("invalid configuration", err)
			return
		}

		r.Message = "all required configuration present"
	})
}

// CheckClusterHealth fails on red or unreachable clusters and warns on yellow
func (s *healthService) CheckClusterHealth(ctx context.Context) *domain.CheckResult {
	return s.timed(domain.CheckNameCluster, func(r *domain.CheckResult) {
		if s.index == nil {
			r.Fail("search cluster is not configured", goerr.Wrap(domain.ErrConfiguration, "search cluster is not configured"))
			return
		}

		health, err := s.index.ClusterHealth(ctx)
		if err != nil {
			r.Fail("cluster unreachable", goerr.Wrap(domain.ErrClusterUnhealthy, "cluster unreachable",
				goerr.V("cause", err.Error())))
			return
		}

		r.WithDetail("cluster_name", health.ClusterName).
			WithDetail("status", health.Status).
			WithDetail("nodes", health.NumberOfNodes).
			WithDetail("unassigned_shards", health.UnassignedShards)

		switch health.Status {
		case domain.ClusterGreen:
			r.Message = "cluster status green"
		case domain.ClusterYellow:
			r.Warn("cluster status yellow: replicas unassigned")
		default:
			r.Fail(fmt.Sprintf("cluster status %s", health.Status),
				goerr.Wrap(domain.ErrClusterUnhealthy, "cluster status is not serviceable",
					goerr.V("status", health.Status)))
		}
	})
}

// CheckEmbedding verifies the embedding provider answers with the configured length
func (s *healthService) CheckEmbedding(ctx context.Context) *domain.CheckResult {
	return s.timed(domain.CheckNameEmbedding, func(r *domain.CheckResult) {
		if s.embedder == nil {
			r.Fail("embedding service is not configured",
				goerr.Wrap(domain.ErrConfiguration, "embedding service is not configured"))
			return
		}

		r.WithDetail("model", s.embedder.Model())

		dims, err := s.embedder.Probe(ctx)
		if err != nil {
			r.Fail("embedding service unavailable", goerr.Wrap(domain.ErrServiceUnavailable,
				"embedding service unavailable", goerr.V("cause", err.Error())))
			return
		}

		want := s.registry.VectorDims()
		r.WithDetail("dims", dims)
		if dims != want {
			r.Fail(fmt.Sprintf("embedding length %d, expected %d", dims, want),
				goerr.Wrap(domain.ErrSchemaMismatch, "embedding length does not match configured dimensionality",
					goerr.V(domain.ExpectedDimsKey, want),
					goerr.V(domain.ActualDimsKey, dims)))
			return
		}

		r.Message = fmt.Sprintf("embedding length %d", dims)
	})
}

// CheckIndex verifies existence, mapping and document count of one index
func (s *healthService) CheckIndex(ctx context.Context, name string) *domain.CheckResult {
	return s.timed(domain.IndexCheckName(name), func(r *domain.CheckResult) {
		schema, ok := s.registry.Get(name)
		if !ok {
			r.Fail("index is not registered", goerr.Wrap(domain.ErrInvalidInput, "index is not registered",
				goerr.V(domain.IndexKey, name)))
			return
		}
		if s.schema == nil || s.index == nil {
			r.Fail("search cluster is not configured", goerr.Wrap(domain.ErrConfiguration, "search cluster is not configured"))
			return
		}

		mapping, err := s.schema.VerifyIndex(ctx, name)
		switch {
		case errors.Is(err, domain.ErrIndexNotReady):
			r.Fail("index does not exist", err)
			return
		case errors.Is(err, domain.ErrSchemaMismatch):
			r.Fail("index exists, mapping mismatch", err)
			return
		case err != nil:
			r.Fail("index check failed", err)
			return
		}
		r.WithDetail("fields", len(mapping.Fields))

		count, err := s.index.Count(ctx, name)
		if err != nil {
			r.Fail("index exists, mapping OK, count unavailable", err)
			return
		}
		r.WithDetail("count", count)

		if count > 0 {
			r.Message = fmt.Sprintf("index exists, mapping OK, count=%d", count)
			return
		}

		if s.requireData && schema.ExpectData {
			r.Fail("index exists, mapping OK, count=0, no data",
				goerr.Wrap(domain.ErrIndexNotReady, "index holds no documents", goerr.V(domain.IndexKey, name)))
			return
		}
		r.Warn("index exists, mapping OK, count=0, WARNING: no data")
	})
}

// CheckIndices runs CheckIndex for every registered index concurrently.
// Results keep registry order.
func (s *healthService) CheckIndices(ctx context.Context) *domain.Report {
	report := &domain.Report{StartedAt: time.Now()}

	names := s.registry.Names()
	results := make([]*domain.CheckResult, len(names))

	var g errgroup.Group
	g.SetLimit(maxParallelIndexChecks)
	for i, name := range names {
		g.Go(func() error {
			results[i] = s.CheckIndex(ctx, name)
			return nil
		})
	}
	_ = g.Wait()

	report.Add(results...)
	report.FinishedAt = time.Now()
	return report
}

// RunAll executes every check without short-circuiting
func (s *healthService) RunAll(ctx context.Context) *domain.Report {
	report := &domain.Report{StartedAt: time.Now()}

	report.Add(
		s.CheckEnvironment(ctx),
		s.CheckClusterHealth(ctx),
		s.CheckEmbedding(ctx),
	)
	report.Add(s.CheckIndices(ctx).Checks...)
	report.FinishedAt = time.Now()

	s.logger.Info("readiness run complete",
		"passed", report.Passed(),
		"pass", report.Count(domain.CheckPass),
		"warn", report.Count(domain.CheckWarn),
		"fail", report.Count(domain.CheckFail),
	)
	return report
}

// timed runs one check and records its duration and outcome
func (s *healthService) timed(name string, fn func(r *domain.CheckResult)) *domain.CheckResult {
	start := time.Now()
	r := domain.NewCheckResult(name, "ok")
	fn(r)
	r.Duration = time.Since(start)

	switch r.Status {
	case domain.CheckFail:
		s.logger.Warn("check failed", "check", name, "message", r.Message, "error", r.Error)
	case domain.CheckWarn:
		s.logger.Warn("check warning", "check", name, "message", r.Message)
	default:
		s.logger.Debug("check passed", "check", name, "message", r.Message)
	}
	return r
}
