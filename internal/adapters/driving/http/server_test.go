package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/clinical-search/internal/core/domain"
	"github.com/custodia-labs/clinical-search/internal/core/ports/driven/mocks"
	"github.com/custodia-labs/clinical-search/internal/core/services"
)

type readyEnv struct{ missing []string }

func (e readyEnv) Missing() []string { return e.missing }
func (e readyEnv) Validate() error   { return nil }

type testServer struct {
	index    *mocks.MockSearchIndex
	embedder *mocks.MockEmbeddingService
	server   *Server
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	index := mocks.NewMockSearchIndex()
	embedder := mocks.NewMockEmbeddingService()
	registry := domain.DefaultRegistry(domain.DefaultVectorDims)

	schema := services.NewSchemaService(services.SchemaServiceConfig{Index: index, Registry: registry, Logger: logger})
	require.NoError(t, schema.EnsureAll(context.Background()))

	writer := services.NewDocumentWriter(services.DocumentWriterConfig{Index: index, Embedder: embedder, Registry: registry, Logger: logger})
	query := services.NewQueryService(services.QueryServiceConfig{Index: index, Embedder: embedder, Registry: registry, Logger: logger})
	health := services.NewHealthService(services.HealthServiceConfig{
		Environment: readyEnv{},
		Index:       index,
		Embedder:    embedder,
		Schema:      schema,
		Registry:    registry,
		Logger:      logger,
	})

	cfg := DefaultConfig()
	cfg.Version = "1.2.3"
	cfg.Logger = logger
	cfg.AllowedOrigins = []string{"https://ops.example"}

	return &testServer{
		index:    index,
		embedder: embedder,
		server:   NewServer(cfg, schema, writer, query, health),
	}
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	rec := httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealthAndVersion(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode[StatusResponse](t, rec).Status)

	rec = ts.do(t, http.MethodGet, "/version", nil)
	assert.Equal(t, "1.2.3", decode[VersionResponse](t, rec).Version)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

func TestReady(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	report := decode[domain.Report](t, rec)
	assert.Len(t, report.Checks, 3+len(domain.IndexNames))

	ts.index.SetClusterStatus(domain.ClusterRed)
	rec = ts.do(t, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	report = decode[domain.Report](t, rec)
	assert.False(t, report.Passed())
}

func TestWriteAndReadPatient(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/v1/patients", map[string]any{
		"patient_id": "P001",
		"name":       "Ada",
		"symptoms":   "chest pain",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "P001", decode[WriteResponse](t, rec).ID)

	rec = ts.do(t, http.MethodGet, "/api/v1/indices/patients/documents/P001", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	hit := decode[domain.Hit](t, rec)
	var p domain.Patient
	require.NoError(t, hit.Decode(&p))
	assert.Equal(t, domain.PatientActive, p.Status)

	rec = ts.do(t, http.MethodPost, "/api/v1/patients/P001/deactivate", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/v1/indices/patients/filter?field=status&value=inactive", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[HitsResponse](t, rec).Total)
}

func TestGetDocument_NotFound(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/v1/indices/patients/documents/P404", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/v1/patients/P404/deactivate", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWriteErrors(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name string
		path string
		body any
		want int
	}{
		{"malformed body", "/api/v1/patients", "{", http.StatusBadRequest},
		{"missing symptoms", "/api/v1/patients", map[string]any{"patient_id": "P1"}, http.StatusBadRequest},
		{"unknown department", "/api/v1/appointments", map[string]any{
			"appointment_id": "A1", "doctor_name": "Dr. Grey", "department": "Cardio",
			"scheduled_at": "2026-03-14T09:30:00Z",
		}, http.StatusBadRequest},
		{"unknown severity", "/api/v1/medical-records", map[string]any{
			"record_id": "R1", "patient_id": "P1", "severity": "urgent", "diagnosis": "flu",
		}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
			assert.NotEmpty(t, decode[ErrorResponse](t, rec).Error)
		})
	}
	assert.Equal(t, 0, ts.index.CallCount("upsert"))
}

func TestEmbeddingTimeoutIsGatewayTimeout(t *testing.T) {
	ts := newTestServer(t)
	ts.embedder.SetFailNext(true)

	rec := ts.do(t, http.MethodPost, "/api/v1/patients", map[string]any{"patient_id": "P1", "symptoms": "fever"})
	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
}

func TestMedicalCaseHistoryAndSimilar(t *testing.T) {
	ts := newTestServer(t)

	for _, v := range []int{1, 2} {
		rec := ts.do(t, http.MethodPost, "/api/v1/medical-cases", map[string]any{
			"case_id": "C001", "version": v, "severity": "high", "symptoms": "sudden severe headache",
		})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}

	rec := ts.do(t, http.MethodPost, "/api/v1/medical-cases", map[string]any{
		"case_id": "C002", "severity": "low", "symptoms": "mild rash",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "C002@v1", decode[WriteResponse](t, rec).ID)

	rec = ts.do(t, http.MethodGet, "/api/v1/medical-cases/C001/history", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	history := decode[HitsResponse](t, rec)
	require.Equal(t, 2, history.Total)
	assert.Equal(t, "C001@v1", history.Hits[0].ID)

	rec = ts.do(t, http.MethodPost, "/api/v1/indices/medical_cases/similar", SimilarRequest{Query: "mild rash", K: 1})
	require.Equal(t, http.StatusOK, rec.Code)
	result := decode[domain.SimilarityResult](t, rec)
	require.Len(t, result.Hits, 1)
	assert.Equal(t, "C002@v1", result.Hits[0].ID)

	rec = ts.do(t, http.MethodPost, "/api/v1/indices/appointments/similar", SimilarRequest{Query: "rash"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestAgentLogCreated(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/v1/agent-logs", map[string]any{"agent_id": "triage", "action": "classify"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	id := decode[WriteResponse](t, rec).ID
	assert.NotEmpty(t, id)

	rec = ts.do(t, http.MethodPost, "/api/v1/agent-logs", map[string]any{"log_id": id, "agent_id": "triage", "action": "classify"})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestFilterAndMapping(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/v1/indices/appointments/filter?field=department", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/v1/indices/appointments/filter?field=department&value=Oncology", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"hits":[]`)
	assert.Zero(t, decode[HitsResponse](t, rec).Total)

	rec = ts.do(t, http.MethodGet, "/api/v1/indices/billing/filter?field=x&value=y", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/v1/indices/patients/mapping", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	mapping := decode[domain.IndexMapping](t, rec)
	assert.Equal(t, domain.DefaultVectorDims, mapping.Fields["symptoms_vector"].Dims)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{domain.ErrValidation, http.StatusBadRequest},
		{domain.ErrInvalidEnumValue, http.StatusBadRequest},
		{domain.ErrInvalidInput, http.StatusBadRequest},
		{domain.ErrNotFound, http.StatusNotFound},
		{domain.ErrSchemaMismatch, http.StatusConflict},
		{domain.ErrAlreadyExists, http.StatusConflict},
		{domain.ErrUnsupportedIndex, http.StatusUnprocessableEntity},
		{domain.ErrTimeout, http.StatusGatewayTimeout},
		{domain.ErrClusterUnhealthy, http.StatusServiceUnavailable},
		{domain.ErrIndexNotReady, http.StatusServiceUnavailable},
		{domain.ErrServiceUnavailable, http.StatusServiceUnavailable},
		{domain.ErrTransient, http.StatusServiceUnavailable},
		{domain.ErrConfiguration, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}

func TestMiddleware_CORS(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/patients", nil)
	req.Header.Set("Origin", "https://ops.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://ops.example", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, RequestIDHeader, rec.Header().Get("Access-Control-Expose-Headers"))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestMiddleware_RequestID(t *testing.T) {
	ts := newTestServer(t)

	rec := httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Len(t, rec.Header().Get(RequestIDHeader), 36)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "trace-42")
	rec = httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "trace-42", rec.Header().Get(RequestIDHeader))
}

func TestMiddleware_RecoveryAndAccessLog(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	panicking := http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") })
	h := Chain(panicking, WithRequestID(), WithAccessLog(logger), WithRecovery(logger))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/patients", nil)
	req.Header.Set(RequestIDHeader, "req-7")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	out := buf.String()
	assert.Contains(t, out, `"msg":"handler panicked"`)
	assert.Contains(t, out, `"request_id":"req-7"`)
	assert.Contains(t, out, `"level":"ERROR"`)
	assert.Contains(t, out, `"status":500`)
}

func TestChain_Order(t *testing.T) {
	var order []string
	tag := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	h := Chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { order = append(order, "handler") }),
		tag("outer"), tag("inner"))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, []string{"outer", "inner", "handler"}, order)
}
