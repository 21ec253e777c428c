package driving

import (
	"context"

	"github.com/custodia-labs/clinical-search/internal/core/domain"
)

// DocumentWriter is the only write path into the clinical indices.
// Every call performs at most one write; validation failures never reach the cluster.
type DocumentWriter interface {
	// WritePatient embeds the symptoms and upserts the patient by patient_id
	WritePatient(ctx context.Context, patient *domain.Patient) error

	// DeactivatePatient marks a patient inactive. Patients are never deleted.
	DeactivatePatient(ctx context.Context, patientID string) error

	// WriteAppointment validates department and status and upserts by appointment_id
	WriteAppointment(ctx context.Context, appointment *domain.Appointment) error

	// WriteMedicalCase embeds the symptoms and writes one version of a case
	WriteMedicalCase(ctx context.Context, medicalCase *domain.MedicalCase) error

	// WriteMedicalRecord writes one version of an encounter record
	WriteMedicalRecord(ctx context.Context, record *domain.MedicalRecord) error

	// WriteAgentLog appends an agent action. Log entries are write-once.
	WriteAgentLog(ctx context.Context, log *domain.AgentLog) error
}
