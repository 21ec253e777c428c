package services

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"

	"github.com/custodia-labs/clinical-search/internal/core/domain"
	"github.com/custodia-labs/clinical-search/internal/core/ports/driven"
	"github.com/custodia-labs/clinical-search/internal/core/ports/driving"
)

// Ensure documentWriter implements DocumentWriter
var _ driving.DocumentWriter = (*documentWriter)(nil)

// documentWriter implements the DocumentWriter interface
type documentWriter struct {
	index    driven.SearchIndex
	embedder driven.EmbeddingService
	registry *domain.Registry
	logger   *slog.Logger
	now      func() time.Time
}

// DocumentWriterConfig holds dependencies for the document writer
type DocumentWriterConfig struct {
	Index    driven.SearchIndex
	Embedder driven.EmbeddingService
	Registry *domain.Registry
	Logger   *slog.Logger
}

// NewDocumentWriter creates a new DocumentWriter
func NewDocumentWriter(cfg DocumentWriterConfig) driving.DocumentWriter {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	registry := cfg.Registry
	if registry == nil {
		registry = domain.DefaultRegistry(domain.DefaultVectorDims)
	}
	return &documentWriter{
		index:    cfg.Index,
		embedder: cfg.Embedder,
		registry: registry,
		logger:   logger.With("component", "writer"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WritePatient embeds the symptoms and upserts the patient by patient_id
func (w *documentWriter) WritePatient(ctx context.Context, patient *domain.Patient) error {
	if patient == nil {
		return goerr.Wrap(domain.ErrValidation, "patient is required")
	}
	schema, err := w.schema(domain.IndexPatients)
	if err != nil {
		return err
	}

	doc := *patient
	doc.PatientID = strings.TrimSpace(doc.PatientID)
	if err := requireField(schema, "patient_id", doc.PatientID); err != nil {
		return err
	}
	if err := requireField(schema, "symptoms", doc.Symptoms); err != nil {
		return err
	}
	if doc.Status != "" {
		if err := validateEnum(schema, "status", string(doc.Status)); err != nil {
			return err
		}
	}

	vector, err := w.embed(ctx, schema, doc.Symptoms)
	if err != nil {
		return err
	}
	doc.SymptomsVector = vector

	// An update keeps the intake time and, unless given, the lifecycle status
	prior, err := w.storedPatient(ctx, doc.PatientID)
	if err != nil {
		return err
	}
	if prior != nil {
		if doc.Status == "" {
			doc.Status = prior.Status
		}
		if !prior.CreatedAt.IsZero() {
			doc.CreatedAt = prior.CreatedAt
		}
	}
	if doc.Status == "" {
		doc.Status = domain.PatientActive
	}

	now := w.now()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now

	if err := w.index.Upsert(ctx, schema.Name, doc.PatientID, &doc); err != nil {
		return goerr.Wrap(err, "failed to write patient", goerr.V(domain.DocumentIDKey, doc.PatientID))
	}

	w.logger.Info("patient written", "patient_id", doc.PatientID)
	return nil
}

// DeactivatePatient marks a patient inactive. The stored vector is kept as is.
func (w *documentWriter) DeactivatePatient(ctx context.Context, patientID string) error {
	patientID = strings.TrimSpace(patientID)
	if patientID == "" {
		return goerr.Wrap(domain.ErrValidation, "patient_id is required", goerr.V(domain.FieldKey, "patient_id"))
	}

	patient, err := w.storedPatient(ctx, patientID)
	if err != nil {
		return err
	}
	if patient == nil {
		return goerr.Wrap(domain.ErrNotFound, "patient not found", goerr.V(domain.DocumentIDKey, patientID))
	}
	if patient.Status == domain.PatientInactive {
		return nil
	}

	patient.Status = domain.PatientInactive
	patient.UpdatedAt = w.now()

	if err := w.index.Upsert(ctx, domain.IndexPatients, patientID, patient); err != nil {
		return goerr.Wrap(err, "failed to deactivate patient", goerr.V(domain.DocumentIDKey, patientID))
	}

	w.logger.Info("patient deactivated", "patient_id", patientID)
	return nil
}

// WriteAppointment validates department and status and upserts by appointment_id
func (w *documentWriter) WriteAppointment(ctx context.Context, appointment *domain.Appointment) error {
	if appointment == nil {
		return goerr.Wrap(domain.ErrValidation, "appointment is required")
	}
	schema, err := w.schema(domain.IndexAppointments)
	if err != nil {
		return err
	}

	doc := *appointment
	doc.AppointmentID = strings.TrimSpace(doc.AppointmentID)
	if err := requireField(schema, "appointment_id", doc.AppointmentID); err != nil {
		return err
	}
	if err := requireField(schema, "doctor_name", doc.DoctorName); err != nil {
		return err
	}
	if err := requireField(schema, "department", string(doc.Department)); err != nil {
		return err
	}
	if doc.ScheduledAt.IsZero() {
		return goerr.Wrap(domain.ErrValidation, "scheduled_at is required",
			goerr.V(domain.IndexKey, schema.Name), goerr.V(domain.FieldKey, "scheduled_at"))
	}
	if doc.Status == "" {
		doc.Status = domain.AppointmentScheduled
	}
	if err := validateEnum(schema, "department", string(doc.Department)); err != nil {
		return err
	}
	if err := validateEnum(schema, "status", string(doc.Status)); err != nil {
		return err
	}
	doc.UpdatedAt = w.now()

	if err := w.index.Upsert(ctx, schema.Name, doc.AppointmentID, &doc); err != nil {
		return goerr.Wrap(err, "failed to write appointment", goerr.V(domain.DocumentIDKey, doc.AppointmentID))
	}

	w.logger.Info("appointment written", "appointment_id", doc.AppointmentID, "status", doc.Status)
	return nil
}

// WriteMedicalCase embeds the symptoms and writes one version of a case.
// Rewriting an existing version replaces it; corrections use the next version.
func (w *documentWriter) WriteMedicalCase(ctx context.Context, medicalCase *domain.MedicalCase) error {
	if medicalCase == nil {
		return goerr.Wrap(domain.ErrValidation, "medical case is required")
	}
	schema, err := w.schema(domain.IndexMedicalCases)
	if err != nil {
		return err
	}

	doc := *medicalCase
	doc.CaseID = strings.TrimSpace(doc.CaseID)
	if err := requireField(schema, "case_id", doc.CaseID); err != nil {
		return err
	}
	if err := checkVersion(schema, &doc.Version); err != nil {
		return err
	}
	if err := requireField(schema, "severity", string(doc.Severity)); err != nil {
		return err
	}
	if err := requireField(schema, "symptoms", doc.Symptoms); err != nil {
		return err
	}
	if err := validateEnum(schema, "severity", string(doc.Severity)); err != nil {
		return err
	}
	if doc.Department != "" {
		if err := validateEnum(schema, "department", string(doc.Department)); err != nil {
			return err
		}
	}

	vector, err := w.embed(ctx, schema, doc.Symptoms)
	if err != nil {
		return err
	}
	doc.SymptomsVector = vector
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = w.now()
	}

	id := doc.DocumentID()
	if err := w.index.Upsert(ctx, schema.Name, id, &doc); err != nil {
		return goerr.Wrap(err, "failed to write medical case", goerr.V(domain.DocumentIDKey, id))
	}

	w.logger.Info("medical case written", "case_id", doc.CaseID, "version", doc.Version, "severity", doc.Severity)
	return nil
}

// WriteMedicalRecord writes one version of an encounter record
func (w *documentWriter) WriteMedicalRecord(ctx context.Context, record *domain.MedicalRecord) error {
	if record == nil {
		return goerr.Wrap(domain.ErrValidation, "medical record is required")
	}
	schema, err := w.schema(domain.IndexMedicalRecords)
	if err != nil {
		return err
	}

	doc := *record
	doc.RecordID = strings.TrimSpace(doc.RecordID)
	if err := requireField(schema, "record_id", doc.RecordID); err != nil {
		return err
	}
	if err := requireField(schema, "patient_id", doc.PatientID); err != nil {
		return err
	}
	if err := checkVersion(schema, &doc.Version); err != nil {
		return err
	}
	if err := requireField(schema, "severity", string(doc.Severity)); err != nil {
		return err
	}
	if err := requireField(schema, "diagnosis", doc.Diagnosis); err != nil {
		return err
	}
	if err := validateEnum(schema, "severity", string(doc.Severity)); err != nil {
		return err
	}
	if doc.Department != "" {
		if err := validateEnum(schema, "department", string(doc.Department)); err != nil {
			return err
		}
	}
	if doc.RecordedAt.IsZero() {
		doc.RecordedAt = w.now()
	}

	id := doc.DocumentID()
	if err := w.index.Upsert(ctx, schema.Name, id, &doc); err != nil {
		return goerr.Wrap(err, "failed to write medical record", goerr.V(domain.DocumentIDKey, id))
	}

	w.logger.Info("medical record written", "record_id", doc.RecordID, "version", doc.Version)
	return nil
}

// WriteAgentLog appends an agent action. LogID and Timestamp are assigned on the
// given log when empty so the caller learns the stored id.
func (w *documentWriter) WriteAgentLog(ctx context.Context, log *domain.AgentLog) error {
	if log == nil {
		return goerr.Wrap(domain.ErrValidation, "agent log is required")
	}
	schema, err := w.schema(domain.IndexAgentLogs)
	if err != nil {
		return err
	}

	if err := requireField(schema, "agent_id", log.AgentID); err != nil {
		return err
	}
	if err := requireField(schema, "action", log.Action); err != nil {
		return err
	}
	if log.LogID == "" {
		log.LogID = uuid.NewString()
	}
	if log.Timestamp.IsZero() {
		log.Timestamp = w.now()
	}

	if err := w.index.Create(ctx, schema.Name, log.LogID, log); err != nil {
		return goerr.Wrap(err, "failed to write agent log", goerr.V(domain.DocumentIDKey, log.LogID))
	}

	w.logger.Info("agent log written", "log_id", log.LogID, "agent_id", log.AgentID, "action", log.Action)
	return nil
}

func (w *documentWriter) schema(name string) (*domain.IndexSchema, error) {
	schema, ok := w.registry.Get(name)
	if !ok {
		return nil, goerr.Wrap(domain.ErrConfiguration, "index is not registered", goerr.V(domain.IndexKey, name))
	}
	return schema, nil
}

// embed returns the vector for text and enforces the declared dimensionality
// storedPatient returns the indexed patient, or nil if absent
func (w *documentWriter) storedPatient(ctx context.Context, patientID string) (*domain.Patient, error) {
	hit, err := w.index.Get(ctx, domain.IndexPatients, patientID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read patient", goerr.V(domain.DocumentIDKey, patientID))
	}
	if hit == nil {
		return nil, nil
	}

	var patient domain.Patient
	if err := hit.Decode(&patient); err != nil {
		return nil, goerr.Wrap(err, "failed to decode patient", goerr.V(domain.DocumentIDKey, patientID))
	}
	return &patient, nil
}

func (w *documentWriter) embed(ctx context.Context, schema *domain.IndexSchema, text string) ([]float32, error) {
	if w.embedder == nil {
		return nil, goerr.Wrap(domain.ErrConfiguration, "embedding service is not configured")
	}

	vectors, err := w.embedder.Embed(ctx, []string{text})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to embed text", goerr.V(domain.IndexKey, schema.Name))
	}
	if len(vectors) != 1 {
		return nil, goerr.Wrap(domain.ErrValidation, "embedding service returned no vector",
			goerr.V(domain.IndexKey, schema.Name))
	}

	vector := vectors[0]
	if len(vector) != schema.VectorDims {
		return nil, goerr.Wrap(domain.ErrValidation, "vector length does not match schema",
			goerr.V(domain.IndexKey, schema.Name),
			goerr.V(domain.FieldKey, schema.VectorField),
			goerr.V(domain.ExpectedDimsKey, schema.VectorDims),
			goerr.V(domain.ActualDimsKey, len(vector)))
	}
	return vector, nil
}

func requireField(schema *domain.IndexSchema, field, value string) error {
	if strings.TrimSpace(value) == "" {
		return goerr.Wrap(domain.ErrValidation, field+" is required",
			goerr.V(domain.IndexKey, schema.Name), goerr.V(domain.FieldKey, field))
	}
	return nil
}

func checkVersion(schema *domain.IndexSchema, version *int) error {
	if *version == 0 {
		*version = 1
	}
	if *version < 0 {
		return goerr.Wrap(domain.ErrValidation, "version must be positive",
			goerr.V(domain.IndexKey, schema.Name), goerr.V(domain.FieldKey, "version"), goerr.V(domain.ValueKey, *version))
	}
	return nil
}

// validateEnum checks value against the field's enumeration, if the field has one
func validateEnum(schema *domain.IndexSchema, field, value string) error {
	allowed := schema.AllowedValues(field)
	if allowed == nil || slices.Contains(allowed, value) {
		return nil
	}
	return goerr.Wrap(domain.ErrInvalidEnumValue, "value is not in the enumeration",
		goerr.V(domain.IndexKey, schema.Name),
		goerr.V(domain.FieldKey, field),
		goerr.V(domain.ValueKey, value),
		goerr.V(domain.AllowedKey, allowed))
}
