package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/custodia-labs/clinical-search/internal/core/domain"
)

// maxBodyBytes bounds request bodies
const maxBodyBytes = 1 << 20

// ErrorResponse represents an API error response
// @Description API error response
type ErrorResponse struct {
	Error string `json:"error" example:"invalid request body"`
}

// StatusResponse represents a simple status response
// @Description Simple status response
type StatusResponse struct {
	Status string `json:"status" example:"ok"`
}

// VersionResponse represents the API version response
// @Description API version response
type VersionResponse struct {
	Version string `json:"version" example:"1.0.0"`
}

// WriteResponse acknowledges a document write
// @Description Document write acknowledgement
type WriteResponse struct {
	Status string `json:"status" example:"ok"`
	ID     string `json:"id" example:"P001"`
}

// SimilarRequest is the body of a similarity query
// @Description Similarity query
type SimilarRequest struct {
	Query string `json:"query" example:"persistent dry cough"`
	K     int    `json:"k" example:"5"`
}

// HitsResponse wraps a list of hits
// @Description List of hits
type HitsResponse struct {
	Hits  []*domain.Hit `json:"hits"`
	Total int           `json:"total"`
}

// Health endpoints

// handleHealth godoc
// @Summary      Liveness check
// @Description  Returns ok while the process is serving
// @Tags         Health
// @Produce      json
// @Success      200  {object}  StatusResponse
// @Router       /health [get]
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StatusResponse{Status: "ok"})
}

// handleReady godoc
// @Summary      Readiness report
// @Description  Runs every readiness check and returns the full report
// @Tags         Health
// @Produce      json
// @Success      200  {object}  domain.Report
// @Failure      503  {object}  domain.Report  "At least one check failed"
// @Router       /ready [get]
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	report := s.healthService.RunAll(r.Context())

	status := http.StatusOK
	if !report.Passed() {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}

// handleVersion godoc
// @Summary      Get API version
// @Description  Returns the current API version
// @Tags         Health
// @Produce      json
// @Success      200  {object}  VersionResponse
// @Router       /version [get]
func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, VersionResponse{Version: s.version})
}

// Index endpoints

// handleGetMapping godoc
// @Summary      Get live index mapping
// @Tags         Indices
// @Produce      json
// @Param        index  path      string  true  "Index name"
// @Success      200    {object}  domain.IndexMapping
// @Failure      400    {object}  ErrorResponse
// @Failure      404    {object}  ErrorResponse
// @Router       /api/v1/indices/{index}/mapping [get]
func (s *Server) handleGetMapping(w http.ResponseWriter, r *http.Request) {
	mapping, err := s.schemaService.GetMapping(r.Context(), r.PathValue("index"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mapping)
}

// handleGetDocument godoc
// @Summary      Get document by id
// @Description  On versioned indices a bare key returns the latest version
// @Tags         Indices
// @Produce      json
// @Param        index  path      string  true  "Index name"
// @Param        id     path      string  true  "Document id"
// @Success      200    {object}  domain.Hit
// @Failure      404    {object}  ErrorResponse
// @Router       /api/v1/indices/{index}/documents/{id} [get]
func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	hit, err := s.queryService.FindByID(r.Context(), r.PathValue("index"), r.PathValue("id"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if hit == nil {
		writeError(w, http.StatusNotFound, "document not found")
		return
	}
	writeJSON(w, http.StatusOK, hit)
}

// handleFilter godoc
// @Summary      Exact-match filter
// @Tags         Indices
// @Produce      json
// @Param        index  path      string  true  "Index name"
// @Param        field  query     string  true  "Exact-match field"
// @Param        value  query     string  true  "Value"
// @Success      200    {object}  HitsResponse
// @Failure      400    {object}  ErrorResponse
// @Router       /api/v1/indices/{index}/filter [get]
func (s *Server) handleFilter(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if !q.Has("field") || !q.Has("value") {
		writeError(w, http.StatusBadRequest, "field and value are required")
		return
	}

	hits, err := s.queryService.FilterBy(r.Context(), r.PathValue("index"), q.Get("field"), q.Get("value"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, HitsResponse{Hits: emptyIfNil(hits), Total: len(hits)})
}

// handleSimilar godoc
// @Summary      Similarity search
// @Tags         Indices
// @Accept       json
// @Produce      json
// @Param        index    path      string          true  "Index name"
// @Param        request  body      SimilarRequest  true  "Query"
// @Success      200      {object}  domain.SimilarityResult
// @Failure      400      {object}  ErrorResponse
// @Failure      422      {object}  ErrorResponse  "Index has no vector field"
// @Router       /api/v1/indices/{index}/similar [post]
func (s *Server) handleSimilar(w http.ResponseWriter, r *http.Request) {
	var req SimilarRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.K == 0 {
		req.K = parseK(r, 10)
	}

	result, err := s.queryService.FindSimilar(r.Context(), r.PathValue("index"), req.Query, req.K)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	result.Hits = emptyIfNil(result.Hits)
	writeJSON(w, http.StatusOK, result)
}

// Write endpoints

// handleWritePatient godoc
// @Summary      Upsert patient
// @Tags         Patients
// @Accept       json
// @Produce      json
// @Param        request  body      domain.Patient  true  "Patient"
// @Success      200      {object}  WriteResponse
// @Failure      400      {object}  ErrorResponse
// @Router       /api/v1/patients [post]
func (s *Server) handleWritePatient(w http.ResponseWriter, r *http.Request) {
	var p domain.Patient
	if !decodeBody(w, r, &p) {
		return
	}
	if err := s.writer.WritePatient(r.Context(), &p); err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, WriteResponse{Status: "ok", ID: p.PatientID})
}

// handleDeactivatePatient godoc
// @Summary      Deactivate patient
// @Tags         Patients
// @Produce      json
// @Param        id   path      string  true  "Patient id"
// @Success      200  {object}  WriteResponse
// @Failure      404  {object}  ErrorResponse
// @Router       /api/v1/patients/{id}/deactivate [post]
func (s *Server) handleDeactivatePatient(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.writer.DeactivatePatient(r.Context(), id); err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, WriteResponse{Status: "ok", ID: id})
}

// handleWriteAppointment godoc
// @Summary      Upsert appointment
// @Tags         Appointments
// @Accept       json
// @Produce      json
// @Param        request  body      domain.Appointment  true  "Appointment"
// @Success      200      {object}  WriteResponse
// @Failure      400      {object}  ErrorResponse
// @Router       /api/v1/appointments [post]
func (s *Server) handleWriteAppointment(w http.ResponseWriter, r *http.Request) {
	var a domain.Appointment
	if !decodeBody(w, r, &a) {
		return
	}
	if err := s.writer.WriteAppointment(r.Context(), &a); err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, WriteResponse{Status: "ok", ID: a.AppointmentID})
}

// handleWriteMedicalCase godoc
// @Summary      Write medical case version
// @Tags         Medical cases
// @Accept       json
// @Produce      json
// @Param        request  body      domain.MedicalCase  true  "Medical case"
// @Success      200      {object}  WriteResponse
// @Failure      400      {object}  ErrorResponse
// @Router       /api/v1/medical-cases [post]
func (s *Server) handleWriteMedicalCase(w http.ResponseWriter, r *http.Request) {
	var c domain.MedicalCase
	if !decodeBody(w, r, &c) {
		return
	}
	if err := s.writer.WriteMedicalCase(r.Context(), &c); err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, WriteResponse{Status: "ok", ID: c.DocumentID()})
}

// handleCaseHistory godoc
// @Summary      Medical case history
// @Description  Every version of a case, oldest first
// @Tags         Medical cases
// @Produce      json
// @Param        id   path      string  true  "Case id"
// @Success      200  {object}  HitsResponse
// @Router       /api/v1/medical-cases/{id}/history [get]
func (s *Server) handleCaseHistory(w http.ResponseWriter, r *http.Request) {
	hits, err := s.queryService.CaseHistory(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, HitsResponse{Hits: emptyIfNil(hits), Total: len(hits)})
}

// handleWriteMedicalRecord godoc
// @Summary      Write medical record version
// @Tags         Medical records
// @Accept       json
// @Produce      json
// @Param        request  body      domain.MedicalRecord  true  "Medical record"
// @Success      200      {object}  WriteResponse
// @Failure      400      {object}  ErrorResponse
// @Router       /api/v1/medical-records [post]
func (s *Server) handleWriteMedicalRecord(w http.ResponseWriter, r *http.Request) {
	var rec domain.MedicalRecord
	if !decodeBody(w, r, &rec) {
		return
	}
	if err := s.writer.WriteMedicalRecord(r.Context(), &rec); err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, WriteResponse{Status: "ok", ID: rec.DocumentID()})
}

// handleWriteAgentLog godoc
// @Summary      Append agent log
// @Tags         Agent logs
// @Accept       json
// @Produce      json
// @Param        request  body      domain.AgentLog  true  "Agent log entry"
// @Success      201      {object}  WriteResponse
// @Failure      400      {object}  ErrorResponse
// @Failure      409      {object}  ErrorResponse  "Log id already written"
// @Router       /api/v1/agent-logs [post]
func (s *Server) handleWriteAgentLog(w http.ResponseWriter, r *http.Request) {
	var l domain.AgentLog
	if !decodeBody(w, r, &l) {
		return
	}
	if err := s.writer.WriteAgentLog(r.Context(), &l); err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, WriteResponse{Status: "ok", ID: l.LogID})
}

// Helpers

// statusFor maps an error kind to its HTTP status
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrInvalidEnumValue),
		errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrSchemaMismatch),
		errors.Is(err, domain.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, domain.ErrUnsupportedIndex):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, domain.ErrClusterUnhealthy),
		errors.Is(err, domain.ErrIndexNotReady),
		errors.Is(err, domain.ErrServiceUnavailable),
		errors.Is(err, domain.ErrTransient):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "status", status, "error", err)
	}
	writeError(w, status, err.Error())
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func emptyIfNil(hits []*domain.Hit) []*domain.Hit {
	if hits == nil {
		return []*domain.Hit{}
	}
	return hits
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

// parseK reads an optional k query parameter
func parseK(r *http.Request, def int) int {
	if v := r.URL.Query().Get("k"); v != "" {
		if k, err := strconv.Atoi(v); err == nil {
			return k
		}
	}
	return def
}
