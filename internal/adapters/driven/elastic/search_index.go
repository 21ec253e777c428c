package elastic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/m-mizutani/goerr/v2"

	"github.com/custodia-labs/clinical-search/internal/core/domain"
	"github.com/custodia-labs/clinical-search/internal/core/ports/driven"
	"github.com/custodia-labs/clinical-search/internal/retry"
)

// Verify interface compliance
var _ driven.SearchIndex = (*SearchIndex)(nil)

// SearchIndex implements driven.SearchIndex on Elasticsearch 8
type SearchIndex struct {
	es      *elasticsearch.Client
	timeout time.Duration
	retry   retry.Policy
	refresh string
	logger  *slog.Logger
}

// Config holds Elasticsearch connection configuration
type Config struct {
	// Addresses are the cluster endpoints (e.g., https://localhost:9200)
	Addresses []string

	Username string
	Password string

	// Timeout bounds each attempt of each call
	Timeout time.Duration

	// Retry bounds retries of idempotent calls
	Retry retry.Policy

	// Refresh is passed on writes ("", "true", "false", "wait_for")
	Refresh string

	// Transport overrides the HTTP transport (tests, TLS)
	Transport http.RoundTripper

	Logger *slog.Logger
}

// DefaultConfig returns sensible defaults
func DefaultConfig(address string) Config {
	return Config{
		Addresses: []string{address},
		Timeout:   domain.DefaultRequestTimeout,
		Retry:     retry.DefaultPolicy(),
		Refresh:   "wait_for",
	}
}

// NewSearchIndex creates a new Elasticsearch-backed SearchIndex.
// The client's own retry is disabled; retries go through the retry package
// so only idempotent calls are repeated.
func NewSearchIndex(cfg Config) (*SearchIndex, error) {
	if len(cfg.Addresses) == 0 || cfg.Addresses[0] == "" {
		return nil, goerr.Wrap(domain.ErrConfiguration, "elasticsearch address is required")
	}

	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses:    cfg.Addresses,
		Username:     cfg.Username,
		Password:     cfg.Password,
		Transport:    cfg.Transport,
		DisableRetry: true,
	})
	if err != nil {
		return nil, goerr.Wrap(domain.ErrConfiguration, "failed to create elasticsearch client",
			goerr.V("addresses", cfg.Addresses))
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	policy := cfg.Retry
	if policy.OnRetry == nil {
		policy.OnRetry = func(err error, wait time.Duration) {
			logger.Warn("retrying elasticsearch call", "error", err, "wait", wait)
		}
	}

	return &SearchIndex{
		es:      client,
		timeout: timeout,
		retry:   policy,
		refresh: cfg.Refresh,
		logger:  logger,
	}, nil
}

// IndexExists reports whether the index exists
func (s *SearchIndex) IndexExists(ctx context.Context, index string) (bool, error) {
	var exists bool
	err := s.do(ctx, "index exists", true, func(ctx context.Context) (*esapi.Response, error) {
		return s.es.Indices.Exists([]string{index}, s.es.Indices.Exists.WithContext(ctx))
	}, func(res *esapi.Response) error {
		switch res.StatusCode {
		case http.StatusOK:
			exists = true
			return nil
		case http.StatusNotFound:
			exists = false
			return nil
		}
		return responseError("index exists", res, goerr.V(domain.IndexKey, index))
	})
	return exists, err
}

// CreateIndex creates an index with the given mapping
func (s *SearchIndex) CreateIndex(ctx context.Context, index string, mapping *domain.IndexMapping) error {
	body, err := json.Marshal(createIndexBody(mapping))
	if err != nil {
		return goerr.Wrap(err, "failed to marshal mapping", goerr.V(domain.IndexKey, index))
	}

	return s.do(ctx, "create index", true, func(ctx context.Context) (*esapi.Response, error) {
		return s.es.Indices.Create(index,
			s.es.Indices.Create.WithBody(bytes.NewReader(body)),
			s.es.Indices.Create.WithContext(ctx),
		)
	}, func(res *esapi.Response) error {
		if !res.IsError() {
			return nil
		}
		return responseError("create index", res, goerr.V(domain.IndexKey, index))
	})
}

// GetMapping returns the live, flattened mapping of an index
func (s *SearchIndex) GetMapping(ctx context.Context, index string) (*domain.IndexMapping, error) {
	var mapping *domain.IndexMapping
	err := s.do(ctx, "get mapping", true, func(ctx context.Context) (*esapi.Response, error) {
		return s.es.Indices.GetMapping(
			s.es.Indices.GetMapping.WithIndex(index),
			s.es.Indices.GetMapping.WithContext(ctx),
		)
	}, func(res *esapi.Response) error {
		if res.IsError() {
			return responseError("get mapping", res, goerr.V(domain.IndexKey, index))
		}
		var resp map[string]struct {
			Mappings struct {
				Properties map[string]json.RawMessage `json:"properties"`
			} `json:"mappings"`
		}
		if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
			return goerr.Wrap(err, "failed to decode mapping", goerr.V(domain.IndexKey, index))
		}
		// Keyed by concrete index name, which differs from the request when it is an alias
		for _, m := range resp {
			fields := make(map[string]domain.FieldMapping)
			if err := flattenProperties("", m.Mappings.Properties, fields); err != nil {
				return goerr.Wrap(err, "failed to parse mapping", goerr.V(domain.IndexKey, index))
			}
			mapping = &domain.IndexMapping{Fields: fields}
			return nil
		}
		return goerr.Wrap(domain.ErrNotFound, "mapping not returned", goerr.V(domain.IndexKey, index))
	})
	return mapping, err
}

// Upsert inserts or replaces the document with the given id
func (s *SearchIndex) Upsert(ctx context.Context, index, id string, doc any) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return goerr.Wrap(err, "failed to marshal document", goerr.V(domain.IndexKey, index), goerr.V(domain.DocumentIDKey, id))
	}

	return s.do(ctx, "upsert", true, func(ctx context.Context) (*esapi.Response, error) {
		opts := []func(*esapi.IndexRequest){
			s.es.Index.WithDocumentID(id),
			s.es.Index.WithContext(ctx),
		}
		if s.refresh != "" {
			opts = append(opts, s.es.Index.WithRefresh(s.refresh))
		}
		return s.es.Index(index, bytes.NewReader(body), opts...)
	}, func(res *esapi.Response) error {
		if res.IsError() {
			return responseError("upsert", res, goerr.V(domain.IndexKey, index), goerr.V(domain.DocumentIDKey, id))
		}
		return nil
	})
}

// Create writes a document only if the id is unused.
// A conflict on a retried attempt means an earlier attempt already landed.
func (s *SearchIndex) Create(ctx context.Context, index, id string, doc any) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return goerr.Wrap(err, "failed to marshal document", goerr.V(domain.IndexKey, index), goerr.V(domain.DocumentIDKey, id))
	}

	return retry.Do(ctx, s.retry, true, func(ctx context.Context, attempt int) error {
		return s.attempt(ctx, "create", func(ctx context.Context) (*esapi.Response, error) {
			opts := []func(*esapi.CreateRequest){s.es.Create.WithContext(ctx)}
			if s.refresh != "" {
				opts = append(opts, s.es.Create.WithRefresh(s.refresh))
			}
			return s.es.Create(index, id, bytes.NewReader(body), opts...)
		}, func(res *esapi.Response) error {
			if res.StatusCode == http.StatusConflict && attempt > 1 {
				return nil
			}
			if res.IsError() {
				return responseError("create", res, goerr.V(domain.IndexKey, index), goerr.V(domain.DocumentIDKey, id))
			}
			return nil
		})
	})
}

// Get returns the document with the given id, or nil if it does not exist
func (s *SearchIndex) Get(ctx context.Context, index, id string) (*domain.Hit, error) {
	var hit *domain.Hit
	err := s.do(ctx, "get", true, func(ctx context.Context) (*esapi.Response, error) {
		return s.es.Get(index, id, s.es.Get.WithContext(ctx))
	}, func(res *esapi.Response) error {
		if res.StatusCode == http.StatusNotFound {
			e := decodeError(res)
			if e.Type == "index_not_found_exception" {
				return goerr.Wrap(domain.ErrIndexNotReady, "index does not exist", goerr.V(domain.IndexKey, index))
			}
			return nil
		}
		if res.IsError() {
			return responseError("get", res, goerr.V(domain.IndexKey, index), goerr.V(domain.DocumentIDKey, id))
		}
		var resp struct {
			Index  string          `json:"_index"`
			ID     string          `json:"_id"`
			Found  bool            `json:"found"`
			Source json.RawMessage `json:"_source"`
		}
		if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
			return goerr.Wrap(err, "failed to decode document", goerr.V(domain.IndexKey, index))
		}
		if !resp.Found {
			return nil
		}
		hit = &domain.Hit{Index: resp.Index, ID: resp.ID, Score: 1, Source: resp.Source}
		return nil
	})
	return hit, err
}

// Search runs a term or k-NN query
func (s *SearchIndex) Search(ctx context.Context, index string, req *domain.SearchRequest) ([]*domain.Hit, error) {
	body, err := json.Marshal(searchBody(req))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to marshal query", goerr.V(domain.IndexKey, index))
	}

	var hits []*domain.Hit
	err = s.do(ctx, "search", true, func(ctx context.Context) (*esapi.Response, error) {
		return s.es.Search(
			s.es.Search.WithIndex(index),
			s.es.Search.WithBody(bytes.NewReader(body)),
			s.es.Search.WithContext(ctx),
		)
	}, func(res *esapi.Response) error {
		if res.IsError() {
			return responseError("search", res, goerr.V(domain.IndexKey, index))
		}
		var resp searchResponse
		if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
			return goerr.Wrap(err, "failed to decode search response", goerr.V(domain.IndexKey, index))
		}
		hits = make([]*domain.Hit, 0, len(resp.Hits.Hits))
		for _, h := range resp.Hits.Hits {
			hit := &domain.Hit{Index: h.Index, ID: h.ID, Source: h.Source}
			if h.Score != nil {
				hit.Score = *h.Score
			}
			hits = append(hits, hit)
		}
		return nil
	})
	return hits, err
}

// Count returns the number of documents in an index
func (s *SearchIndex) Count(ctx context.Context, index string) (int64, error) {
	var count int64
	err := s.do(ctx, "count", true, func(ctx context.Context) (*esapi.Response, error) {
		return s.es.Count(s.es.Count.WithIndex(index), s.es.Count.WithContext(ctx))
	}, func(res *esapi.Response) error {
		if res.IsError() {
			return responseError("count", res, goerr.V(domain.IndexKey, index))
		}
		var resp struct {
			Count int64 `json:"count"`
		}
		if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
			return goerr.Wrap(err, "failed to decode count", goerr.V(domain.IndexKey, index))
		}
		count = resp.Count
		return nil
	})
	return count, err
}

// Refresh makes recent writes visible to search
func (s *SearchIndex) Refresh(ctx context.Context, index string) error {
	return s.do(ctx, "refresh", true, func(ctx context.Context) (*esapi.Response, error) {
		return s.es.Indices.Refresh(s.es.Indices.Refresh.WithIndex(index), s.es.Indices.Refresh.WithContext(ctx))
	}, func(res *esapi.Response) error {
		if res.IsError() {
			return responseError("refresh", res, goerr.V(domain.IndexKey, index))
		}
		return nil
	})
}

// ClusterHealth returns the cluster health color
func (s *SearchIndex) ClusterHealth(ctx context.Context) (*domain.ClusterHealth, error) {
	var health *domain.ClusterHealth
	err := s.do(ctx, "cluster health", true, func(ctx context.Context) (*esapi.Response, error) {
		return s.es.Cluster.Health(s.es.Cluster.Health.WithContext(ctx))
	}, func(res *esapi.Response) error {
		// A red cluster answers 200; 408 means wait_for_status timed out, which we never request
		if res.IsError() {
			return responseError("cluster health", res)
		}
		var resp domain.ClusterHealth
		if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
			return goerr.Wrap(err, "failed to decode cluster health")
		}
		health = &resp
		return nil
	})
	return health, err
}

// do runs one logical call with retry; handle consumes the response body
func (s *SearchIndex) do(
	ctx context.Context,
	op string,
	idempotent bool,
	call func(ctx context.Context) (*esapi.Response, error),
	handle func(res *esapi.Response) error,
) error {
	return retry.Do(ctx, s.retry, idempotent, func(ctx context.Context, attempt int) error {
		if attempt > 1 {
			s.logger.Debug("elasticsearch attempt", "op", op, "attempt", attempt)
		}
		return s.attempt(ctx, op, call, handle)
	})
}

// attempt runs a single bounded round trip
func (s *SearchIndex) attempt(
	ctx context.Context,
	op string,
	call func(ctx context.Context) (*esapi.Response, error),
	handle func(res *esapi.Response) error,
) error {
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	res, err := call(callCtx)
	if err != nil {
		return transportError(ctx, callCtx, op, err)
	}
	defer res.Body.Close()

	if err := handle(res); err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return goerr.Wrap(domain.ErrTimeout, "elasticsearch "+op+" timed out")
		}
		return err
	}
	return nil
}

// transportError classifies a failed round trip. Caller cancellation is returned as is.
func transportError(parent, callCtx context.Context, op string, err error) error {
	if parent.Err() != nil {
		return parent.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return goerr.Wrap(domain.ErrTimeout, "elasticsearch "+op+" timed out")
	}
	return goerr.Wrap(domain.ErrTransient, "elasticsearch "+op+" failed", goerr.V("cause", err.Error()))
}

type errorBody struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

func decodeError(res *esapi.Response) errorBody {
	data, _ := io.ReadAll(res.Body)
	var body struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(data, &body); err != nil || len(body.Error) == 0 {
		return errorBody{Reason: strings.TrimSpace(string(data))}
	}
	var e errorBody
	if err := json.Unmarshal(body.Error, &e); err != nil {
		// Some APIs return the error as a plain string
		var reason string
		_ = json.Unmarshal(body.Error, &reason)
		return errorBody{Reason: reason}
	}
	return e
}

// responseError maps an error response to a domain error kind
func responseError(op string, res *esapi.Response, opts ...goerr.Option) error {
	e := decodeError(res)
	opts = append(opts,
		goerr.V(domain.StatusCodeKey, res.StatusCode),
		goerr.V("type", e.Type),
		goerr.V("reason", e.Reason),
	)
	msg := fmt.Sprintf("elasticsearch %s failed: %s", op, res.Status())

	switch {
	case e.Type == "resource_already_exists_exception" || res.StatusCode == http.StatusConflict:
		return goerr.Wrap(domain.ErrAlreadyExists, msg, opts...)
	case e.Type == "index_not_found_exception":
		return goerr.Wrap(domain.ErrNotFound, msg, opts...)
	case res.StatusCode == http.StatusRequestTimeout:
		return goerr.Wrap(domain.ErrTimeout, msg, opts...)
	case res.StatusCode == http.StatusTooManyRequests,
		res.StatusCode == http.StatusBadGateway,
		res.StatusCode == http.StatusServiceUnavailable,
		res.StatusCode == http.StatusGatewayTimeout:
		return goerr.Wrap(domain.ErrTransient, msg, opts...)
	case res.StatusCode == http.StatusNotFound:
		return goerr.Wrap(domain.ErrNotFound, msg, opts...)
	case res.StatusCode == http.StatusBadRequest:
		return goerr.Wrap(domain.ErrInvalidInput, msg, opts...)
	}
	return goerr.New(msg, opts...)
}
