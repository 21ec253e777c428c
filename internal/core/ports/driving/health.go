package driving

import (
	"context"

	"github.com/custodia-labs/clinical-search/internal/core/domain"
)

// HealthService runs readiness diagnostics. It never mutates the cluster.
type HealthService interface {
	// CheckEnvironment verifies required configuration is present
	CheckEnvironment(ctx context.Context) *domain.CheckResult

	// CheckClusterHealth fails on red or unreachable clusters and warns on yellow
	CheckClusterHealth(ctx context.Context) *domain.CheckResult

	// CheckEmbedding verifies the embedding provider answers with the configured length
	CheckEmbedding(ctx context.Context) *domain.CheckResult

	// CheckIndex verifies existence, mapping and document count of one index
	CheckIndex(ctx context.Context, name string) *domain.CheckResult

	// CheckIndices runs CheckIndex for every registered index
	CheckIndices(ctx context.Context) *domain.Report

	// RunAll executes every check without short-circuiting
	RunAll(ctx context.Context) *domain.Report
}
