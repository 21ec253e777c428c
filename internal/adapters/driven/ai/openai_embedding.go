package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"golang.org/x/time/rate"

	"github.com/custodia-labs/clinical-search/internal/core/domain"
	"github.com/custodia-labs/clinical-search/internal/core/ports/driven"
	"github.com/custodia-labs/clinical-search/internal/retry"
)

// Ensure OpenAIEmbedding implements EmbeddingService
var _ driven.EmbeddingService = (*OpenAIEmbedding)(nil)

const (
	DefaultModel   = "text-embedding-3-small"
	DefaultBaseURL = "https://api.openai.com/v1"
)

// OpenAIConfig configures an OpenAI-compatible embedding endpoint
type OpenAIConfig struct {
	APIKey  string
	Model   string
	BaseURL string

	// Dimensions is requested from the provider and enforced on every response
	Dimensions int

	// RPS and Burst throttle outgoing requests. RPS <= 0 disables throttling.
	RPS   float64
	Burst int

	Timeout time.Duration
	Retry   retry.Policy

	// HTTPClient overrides the default client (optional)
	HTTPClient *http.Client
}

// OpenAIEmbedding implements EmbeddingService using an OpenAI-compatible embeddings API
type OpenAIEmbedding struct {
	apiKey     string
	model      string
	baseURL    string
	dimensions int
	timeout    time.Duration
	retry      retry.Policy
	limiter    *rate.Limiter
	client     *http.Client
}

// NewOpenAIEmbedding creates a new OpenAI embedding service
func NewOpenAIEmbedding(cfg OpenAIConfig) (*OpenAIEmbedding, error) {
	if cfg.APIKey == "" {
		return nil, goerr.Wrap(domain.ErrConfiguration, "embedding API key is required",
			goerr.V(domain.MissingKeysKey, []string{"EMBEDDING_API_KEY"}))
	}
	if cfg.Dimensions <= 0 {
		return nil, goerr.Wrap(domain.ErrConfiguration, "embedding dimensions must be positive",
			goerr.V(domain.ExpectedDimsKey, cfg.Dimensions))
	}

	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = domain.DefaultRequestTimeout
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.DefaultPolicy()
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RPS > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RPS), burst)
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}

	return &OpenAIEmbedding{
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		baseURL:    cfg.BaseURL,
		dimensions: cfg.Dimensions,
		timeout:    cfg.Timeout,
		retry:      cfg.Retry,
		limiter:    limiter,
		client:     client,
	}, nil
}

// embeddingRequest is the request body for the embeddings API
type embeddingRequest struct {
	Input          []string `json:"input"`
	Model          string   `json:"model"`
	EncodingFormat string   `json:"encoding_format,omitempty"`
	Dimensions     int      `json:"dimensions,omitempty"`
}

// embeddingResponse is the response from the embeddings API
type embeddingResponse struct {
	Object string `json:"object"`
	Data   []struct {
		Object    string    `json:"object"`
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Model string `json:"model"`
	Usage struct {
		PromptTokens int `json:"prompt_tokens"`
		TotalTokens  int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error,omitempty"`
}

// Embed generates embeddings for multiple texts
func (e *OpenAIEmbedding) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	reqBody := embeddingRequest{
		Input:          texts,
		Model:          e.model,
		EncodingFormat: "float",
		Dimensions:     e.dimensions,
	}

	var resp *embeddingResponse
	err := retry.Do(ctx, e.retry, true, func(ctx context.Context, _ int) error {
		r, err := e.doRequest(ctx, reqBody)
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Order by index so output matches input
	embeddings := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index >= 0 && d.Index < len(embeddings) {
			embeddings[d.Index] = d.Embedding
		}
	}

	for i, v := range embeddings {
		if v == nil {
			return nil, goerr.Wrap(domain.ErrServiceUnavailable, "embedding missing from response",
				goerr.V("position", i))
		}
		if len(v) != e.dimensions {
			return nil, goerr.Wrap(domain.ErrValidation, "embedding length does not match configured dimensionality",
				goerr.V(domain.ExpectedDimsKey, e.dimensions),
				goerr.V(domain.ActualDimsKey, len(v)))
		}
	}

	return embeddings, nil
}

// EmbedQuery generates an embedding for a similarity query
func (e *OpenAIEmbedding) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	embeddings, err := e.Embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	return embeddings[0], nil
}

// Dimensions returns the configured embedding length
func (e *OpenAIEmbedding) Dimensions() int {
	return e.dimensions
}

// Model returns the model name being used
func (e *OpenAIEmbedding) Model() string {
	return e.model
}

// probeText is embedded by Probe and HealthCheck
const probeText = "health check"

// HealthCheck verifies the embedding service is available
func (e *OpenAIEmbedding) HealthCheck(ctx context.Context) error {
	_, err := e.EmbedQuery(ctx, probeText)
	return err
}

// Probe returns the vector length the provider actually produces.
// Unlike Embed it does not enforce the configured dimensionality.
func (e *OpenAIEmbedding) Probe(ctx context.Context) (int, error) {
	reqBody := embeddingRequest{
		Input:          []string{probeText},
		Model:          e.model,
		EncodingFormat: "float",
		Dimensions:     e.dimensions,
	}

	var resp *embeddingResponse
	err := retry.Do(ctx, e.retry, true, func(ctx context.Context, _ int) error {
		r, err := e.doRequest(ctx, reqBody)
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		return 0, err
	}
	if len(resp.Data) == 0 {
		return 0, goerr.Wrap(domain.ErrServiceUnavailable, "embedding missing from response")
	}
	return len(resp.Data[0].Embedding), nil
}

// Close releases resources held by the embedding service
func (e *OpenAIEmbedding) Close() error {
	e.client.CloseIdleConnections()
	return nil
}

// doRequest makes one bounded request to the embeddings API
func (e *OpenAIEmbedding) doRequest(ctx context.Context, reqBody embeddingRequest) (*embeddingResponse, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, e.transportError(ctx, err)
	}

	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to marshal embedding request")
	}

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, e.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, goerr.Wrap(domain.ErrConfiguration, "failed to create embedding request",
			goerr.V("cause", err.Error()))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, e.transportError(ctx, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, e.transportError(ctx, err)
	}

	var embResp embeddingResponse
	if len(respBody) > 0 {
		if err := json.Unmarshal(respBody, &embResp); err != nil && resp.StatusCode == http.StatusOK {
			return nil, goerr.Wrap(domain.ErrServiceUnavailable, "failed to parse embedding response",
				goerr.V("cause", err.Error()))
		}
	}

	if resp.StatusCode != http.StatusOK || embResp.Error != nil {
		return nil, statusError(resp.StatusCode, &embResp)
	}

	return &embResp, nil
}

// transportError classifies a failed round trip. The caller's own cancellation passes through.
func (e *OpenAIEmbedding) transportError(parent context.Context, err error) error {
	if parent.Err() != nil {
		return parent.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return goerr.Wrap(domain.ErrTimeout, "embedding request timed out",
			goerr.V("timeout", e.timeout.String()))
	}
	return goerr.Wrap(domain.ErrTransient, "embedding request failed", goerr.V("cause", err.Error()))
}

func statusError(status int, resp *embeddingResponse) error {
	kind, msg := domain.ErrServiceUnavailable, "embedding API error"
	switch {
	case status == http.StatusTooManyRequests || status >= 500:
		kind = domain.ErrTransient
	case status == http.StatusRequestTimeout:
		kind = domain.ErrTimeout
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		kind, msg = domain.ErrConfiguration, "embedding API rejected credentials"
	case status == http.StatusBadRequest:
		kind = domain.ErrInvalidInput
	}

	if resp.Error != nil {
		return goerr.Wrap(kind, msg,
			goerr.V(domain.StatusCodeKey, status),
			goerr.V("message", resp.Error.Message),
			goerr.V("type", resp.Error.Type),
			goerr.V("code", resp.Error.Code))
	}
	return goerr.Wrap(kind, msg, goerr.V(domain.StatusCodeKey, status))
}
