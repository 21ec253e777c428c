package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Department is a clinical department. Values are matched exactly by filters.
type Department string

const (
	DepartmentCardiology       Department = "Cardiology"
	DepartmentNeurology        Department = "Neurology"
	DepartmentOrthopedics      Department = "Orthopedics"
	DepartmentPediatrics       Department = "Pediatrics"
	DepartmentOncology         Department = "Oncology"
	DepartmentEmergency        Department = "Emergency"
	DepartmentGeneralMedicine  Department = "General Medicine"
	DepartmentDermatology      Department = "Dermatology"
	DepartmentRadiology        Department = "Radiology"
	DepartmentPsychiatry       Department = "Psychiatry"
	DepartmentGastroenterology Department = "Gastroenterology"
	DepartmentPulmonology      Department = "Pulmonology"
)

// Departments lists every known department
var Departments = []Department{
	DepartmentCardiology,
	DepartmentNeurology,
	DepartmentOrthopedics,
	DepartmentPediatrics,
	DepartmentOncology,
	DepartmentEmergency,
	DepartmentGeneralMedicine,
	DepartmentDermatology,
	DepartmentRadiology,
	DepartmentPsychiatry,
	DepartmentGastroenterology,
	DepartmentPulmonology,
}

// IsValid returns true if the department is a known value
func (d Department) IsValid() bool {
	for _, known := range Departments {
		if d == known {
			return true
		}
	}
	return false
}

// Severity grades a clinical encounter
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Severities lists every known severity, lowest first
var Severities = []Severity{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}

// IsValid returns true if the severity is a known value
func (s Severity) IsValid() bool {
	for _, known := range Severities {
		if s == known {
			return true
		}
	}
	return false
}

// AppointmentStatus is the lifecycle state of an appointment
type AppointmentStatus string

const (
	AppointmentScheduled AppointmentStatus = "scheduled"
	AppointmentConfirmed AppointmentStatus = "confirmed"
	AppointmentCompleted AppointmentStatus = "completed"
	AppointmentCancelled AppointmentStatus = "cancelled"
	AppointmentNoShow    AppointmentStatus = "no_show"
)

// AppointmentStatuses lists every known appointment status
var AppointmentStatuses = []AppointmentStatus{
	AppointmentScheduled,
	AppointmentConfirmed,
	AppointmentCompleted,
	AppointmentCancelled,
	AppointmentNoShow,
}

// IsValid returns true if the status is a known value
func (s AppointmentStatus) IsValid() bool {
	for _, known := range AppointmentStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// PatientStatus tracks the soft lifecycle of a patient. Patients are never deleted.
type PatientStatus string

const (
	PatientActive   PatientStatus = "active"
	PatientInactive PatientStatus = "inactive"
)

// IsValid returns true if the status is a known value
func (s PatientStatus) IsValid() bool {
	return s == PatientActive || s == PatientInactive
}

// Patient is the search document stored in the patients index
type Patient struct {
	PatientID      string         `json:"patient_id"`
	Name           string         `json:"name"`
	Symptoms       string         `json:"symptoms"`
	SymptomsVector []float32      `json:"symptoms_vector,omitempty"`
	Age            int            `json:"age,omitempty"`
	Gender         string         `json:"gender,omitempty"`
	DateOfBirth    string         `json:"date_of_birth,omitempty"`
	Phone          string         `json:"phone,omitempty"`
	Email          string         `json:"email,omitempty"`
	Address        string         `json:"address,omitempty"`
	BloodType      string         `json:"blood_type,omitempty"`
	Status         PatientStatus  `json:"status"`
	Demographics   map[string]any `json:"demographics,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// Appointment is the search document stored in the appointments index
type Appointment struct {
	AppointmentID   string            `json:"appointment_id"`
	PatientID       string            `json:"patient_id,omitempty"`
	DoctorName      string            `json:"doctor_name"`
	Department      Department        `json:"department"`
	ScheduledAt     time.Time         `json:"scheduled_at"`
	DurationMinutes int               `json:"duration_minutes,omitempty"`
	Status          AppointmentStatus `json:"status"`
	Reason          string            `json:"reason,omitempty"`
	Notes           string            `json:"notes,omitempty"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// MedicalCase is a clinical case, append-only and versioned.
// Corrections are written as a new version; older versions stay searchable.
type MedicalCase struct {
	CaseID         string     `json:"case_id"`
	Version        int        `json:"version"`
	PatientID      string     `json:"patient_id,omitempty"`
	Department     Department `json:"department,omitempty"`
	Severity       Severity   `json:"severity"`
	Diagnosis      string     `json:"diagnosis"`
	Symptoms       string     `json:"symptoms"`
	SymptomsVector []float32  `json:"symptoms_vector,omitempty"`
	Treatment      string     `json:"treatment,omitempty"`
	Outcome        string     `json:"outcome,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// DocumentID returns the versioned document id. Version 0 means the first version.
func (c *MedicalCase) DocumentID() string {
	return VersionedID(c.CaseID, max(c.Version, 1))
}

// MedicalRecord is an encounter record, append-only and versioned
type MedicalRecord struct {
	RecordID   string     `json:"record_id"`
	Version    int        `json:"version"`
	PatientID  string     `json:"patient_id"`
	DoctorName string     `json:"doctor_name,omitempty"`
	Department Department `json:"department,omitempty"`
	Severity   Severity   `json:"severity"`
	Diagnosis  string     `json:"diagnosis"`
	Treatment  string     `json:"treatment,omitempty"`
	Notes      string     `json:"notes,omitempty"`
	RecordedAt time.Time  `json:"recorded_at"`
}

// DocumentID returns the versioned document id. Version 0 means the first version.
func (r *MedicalRecord) DocumentID() string {
	return VersionedID(r.RecordID, max(r.Version, 1))
}

// AgentLog records one automated agent action. Write-once.
type AgentLog struct {
	LogID      string         `json:"log_id"`
	AgentID    string         `json:"agent_id"`
	Action     string         `json:"action"`
	PatientID  string         `json:"patient_id,omitempty"`
	Input      map[string]any `json:"input,omitempty"`
	Output     map[string]any `json:"output,omitempty"`
	DurationMS int64          `json:"duration_ms,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

const versionSeparator = "@v"

// VersionedID builds the document id of one version of an append-only document
func VersionedID(key string, version int) string {
	return fmt.Sprintf("%s%s%d", key, versionSeparator, version)
}

// ParseVersionedID splits a versioned id. ok is false for a bare key.
func ParseVersionedID(id string) (key string, version int, ok bool) {
	i := strings.LastIndex(id, versionSeparator)
	if i <= 0 {
		return id, 0, false
	}
	v, err := strconv.Atoi(id[i+len(versionSeparator):])
	if err != nil || v <= 0 {
		return id, 0, false
	}
	return id[:i], v, true
}
