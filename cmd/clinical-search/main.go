package main

// @title           Clinical Search API
// @version         1.0
// @description     Search index service for clinical documents: patients, appointments, medical records, medical cases and agent logs.

// @license.name  Apache 2.0
// @license.url   http://www.apache.org/licenses/LICENSE-2.0.html

// @host      localhost:8080
// @BasePath  /api/v1
// @schemes   http https

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/m-mizutani/goerr/v2"
	"github.com/redis/go-redis/v9"

	"github.com/custodia-labs/clinical-search/internal/adapters/driven/ai"
	"github.com/custodia-labs/clinical-search/internal/adapters/driven/elastic"
	redisadapter "github.com/custodia-labs/clinical-search/internal/adapters/driven/redis"
	"github.com/custodia-labs/clinical-search/internal/adapters/driving/cli"
	"github.com/custodia-labs/clinical-search/internal/config"
	"github.com/custodia-labs/clinical-search/internal/core/domain"
	"github.com/custodia-labs/clinical-search/internal/core/ports/driven"
	"github.com/custodia-labs/clinical-search/internal/core/ports/driving"
	"github.com/custodia-labs/clinical-search/internal/core/services"
	"github.com/custodia-labs/clinical-search/internal/retry"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	cli.SetVersion(version)
	cli.Bootstrap = bootstrap

	code := cli.Execute(ctx)
	stop()
	os.Exit(code)
}

// newLogger builds the process logger. Logs go to stderr so command output stays clean.
func newLogger(w io.Writer, cfg *config.Config) *slog.Logger {
	level, err := config.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if strings.EqualFold(cfg.LogFormat, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler).With("service", "clinical-search", "version", version)
}

// bootstrap wires adapters and services from configuration.
// Missing settings leave the matching adapter unset so diagnostics can still report them.
func bootstrap(ctx context.Context, envFile string) (*cli.Dependencies, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, err
	}

	logger := newLogger(os.Stderr, cfg)
	slog.SetDefault(logger)

	policy := retryPolicy(cfg)

	registry := domain.DefaultRegistry(cfg.VectorDims)
	var closers []func() error

	// ===== Redis (optional) =====
	var (
		cache driven.EmbeddingCache
		lock  driven.DistributedLock
	)
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, goerr.Wrap(domain.ErrConfiguration, "failed to parse REDIS_URL", goerr.V("cause", err.Error()))
		}
		client := redis.NewClient(opts)
		closers = append(closers, client.Close)
		if err := client.Ping(ctx).Err(); err != nil {
			// The cache and lock are optional; continue without them
			logger.Warn("redis unavailable, continuing without cache and lock", "error", err)
		} else {
			cache = redisadapter.NewEmbeddingCache(client)
			lock = redisadapter.NewLock(client, lockNamespace(cfg.ElasticsearchURL))
		}
	}

	// ===== Embedding provider =====
	var embedder driven.EmbeddingService
	if cfg.EmbeddingAPIKey != "" {
		embedder, err = ai.NewEmbeddingService(ai.FactoryConfig{
			OpenAI: ai.OpenAIConfig{
				APIKey:     cfg.EmbeddingAPIKey,
				Model:      cfg.EmbeddingModel,
				BaseURL:    cfg.EmbeddingBaseURL,
				Dimensions: cfg.VectorDims,
				RPS:        cfg.EmbeddingRPS,
				Burst:      cfg.EmbeddingBurst,
				Timeout:    cfg.RequestTimeout(),
				Retry:      policy,
			},
			Cache:    cache,
			CacheTTL: cfg.EmbeddingCacheTTL(),
			Logger:   logger,
		})
		if err != nil {
			return nil, err
		}
		closers = append(closers, embedder.Close)
	}

	// ===== Elasticsearch =====
	var index driven.SearchIndex
	if cfg.ElasticsearchURL != "" {
		esCfg := elastic.DefaultConfig(cfg.ElasticsearchURL)
		esCfg.Username = cfg.ElasticsearchUsername
		esCfg.Password = cfg.ElasticsearchPassword
		esCfg.Timeout = cfg.RequestTimeout()
		esCfg.Retry = policy
		esCfg.Logger = logger

		es, err := elastic.NewSearchIndex(esCfg)
		if err != nil {
			return nil, err
		}
		index = es
	}

	deps := &cli.Dependencies{
		Config: cfg,
		Logger: logger,
		Close: func() error {
			var errs []error
			for _, c := range closers {
				if err := c(); err != nil {
					errs = append(errs, err)
				}
			}
			return errors.Join(errs...)
		},
	}

	var schema driving.SchemaService
	if index != nil {
		schema = services.NewSchemaService(services.SchemaServiceConfig{
			Index:    index,
			Registry: registry,
			Lock:     lock,
			Logger:   logger,
		})
		deps.Schema = schema
		deps.Writer = services.NewDocumentWriter(services.DocumentWriterConfig{
			Index:    index,
			Embedder: embedder,
			Registry: registry,
			Logger:   logger,
		})
		deps.Query = services.NewQueryService(services.QueryServiceConfig{
			Index:    index,
			Embedder: embedder,
			Registry: registry,
			Logger:   logger,
		})
	}

	deps.Health = func(requireData bool) driving.HealthService {
		return services.NewHealthService(services.HealthServiceConfig{
			Environment: cfg,
			Index:       index,
			Embedder:    embedder,
			Schema:      schema,
			Registry:    registry,
			RequireData: requireData,
			Logger:      logger,
		})
	}

	return deps, nil
}

// retryPolicy is shared by every adapter. At least one attempt is always made.
func retryPolicy(cfg *config.Config) retry.Policy {
	policy := retry.DefaultPolicy()
	policy.MaxAttempts = max(cfg.RetryMaxAttempts, 1)
	if d := cfg.RetryInitialBackoff(); d > 0 {
		policy.InitialInterval = d
	}
	return policy
}

// lockNamespace scopes locks to the Elasticsearch host
func lockNamespace(esURL string) string {
	u, err := url.Parse(esURL)
	if err != nil || u.Host == "" {
		return "default"
	}
	return u.Host
}
