package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/clinical-search/internal/core/domain"
)

func TestFindByID_NotFoundIsEmpty(t *testing.T) {
	f := newFixture(t)

	hit, err := f.query.FindByID(context.Background(), domain.IndexPatients, "nobody")
	require.NoError(t, err)
	assert.Nil(t, hit)

	hit, err = f.query.FindByID(context.Background(), domain.IndexMedicalCases, "C404")
	require.NoError(t, err)
	assert.Nil(t, hit)
}

func TestFindByID_InvalidInput(t *testing.T) {
	f := newFixture(t)

	_, err := f.query.FindByID(context.Background(), "billing", "X")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = f.query.FindByID(context.Background(), domain.IndexPatients, " ")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestFindByID_BareKeyResolvesLatestVersion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, v := range []int{1, 3, 2} {
		c := sampleCase(v)
		c.Diagnosis = fmt.Sprintf("diagnosis v%d", v)
		require.NoError(t, f.writer.WriteMedicalCase(ctx, c))
	}

	hit, err := f.query.FindByID(ctx, domain.IndexMedicalCases, "C001")
	require.NoError(t, err)
	require.NotNil(t, hit)
	assert.Equal(t, "C001@v3", hit.ID)

	var c domain.MedicalCase
	require.NoError(t, hit.Decode(&c))
	assert.Equal(t, "diagnosis v3", c.Diagnosis)
}

func TestFilterBy_ExactMatchOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i, dept := range []domain.Department{
		domain.DepartmentCardiology,
		domain.DepartmentNeurology,
		domain.DepartmentCardiology,
		domain.DepartmentPediatrics,
	} {
		a := sampleAppointment()
		a.AppointmentID = fmt.Sprintf("A%03d", i)
		a.Department = dept
		require.NoError(t, f.writer.WriteAppointment(ctx, a))
	}
	// Near-misses written straight to the index bypass the writer's enum check
	require.NoError(t, f.index.Upsert(ctx, domain.IndexAppointments, "legacy-1", map[string]any{
		"appointment_id": "legacy-1", "department": "cardiology",
	}))
	require.NoError(t, f.index.Upsert(ctx, domain.IndexAppointments, "legacy-2", map[string]any{
		"appointment_id": "legacy-2", "department": "Cardiology Outpatient",
	}))

	hits, err := f.query.FilterBy(ctx, domain.IndexAppointments, "department", "Cardiology")
	require.NoError(t, err)
	require.Len(t, hits, 2)
	for _, h := range hits {
		var a domain.Appointment
		require.NoError(t, h.Decode(&a))
		assert.Equal(t, domain.DepartmentCardiology, a.Department)
	}
}

func TestFilterBy_Severity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i, sev := range []domain.Severity{domain.SeverityHigh, domain.SeverityLow, domain.SeverityHigh} {
		c := sampleCase(1)
		c.CaseID = fmt.Sprintf("C%03d", i)
		c.Severity = sev
		require.NoError(t, f.writer.WriteMedicalCase(ctx, c))
	}

	hits, err := f.query.FilterBy(ctx, domain.IndexMedicalCases, "severity", "high")
	require.NoError(t, err)
	assert.Len(t, hits, 2)
	for _, h := range hits {
		fields, err := h.Fields()
		require.NoError(t, err)
		assert.Equal(t, "high", fields["severity"])
		assert.NotContains(t, fields, "symptoms_vector")
	}
}

func TestFilterBy_Empty(t *testing.T) {
	f := newFixture(t)

	hits, err := f.query.FilterBy(context.Background(), domain.IndexAppointments, "department", "Oncology")
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestFilterBy_Rejects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		index   string
		field   string
		value   any
		wantErr error
	}{
		{"unknown index", "billing", "department", "Cardiology", domain.ErrInvalidInput},
		{"unknown field", domain.IndexAppointments, "room", "12", domain.ErrInvalidInput},
		{"text field", domain.IndexAppointments, "reason", "follow-up", domain.ErrInvalidInput},
		{"vector field", domain.IndexPatients, "symptoms_vector", "x", domain.ErrInvalidInput},
		{"nil value", domain.IndexAppointments, "doctor_name", nil, domain.ErrInvalidInput},
		{"unknown department", domain.IndexAppointments, "department", "Cardio", domain.ErrInvalidEnumValue},
		{"unknown severity", domain.IndexMedicalRecords, "severity", "urgent", domain.ErrInvalidEnumValue},
		{"non-string enum", domain.IndexMedicalCases, "severity", 3, domain.ErrInvalidEnumValue},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.query.FilterBy(ctx, tt.index, tt.field, tt.value)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
	assert.Equal(t, 0, f.index.CallCount("search"))
}

func seedCases(t *testing.T, f *fixture, symptoms ...string) {
	t.Helper()
	for i, s := range symptoms {
		c := sampleCase(1)
		c.CaseID = fmt.Sprintf("C%03d", i)
		c.Symptoms = s
		c.CreatedAt = time.Date(2025, 1, i+1, 0, 0, 0, 0, time.UTC)
		require.NoError(t, f.writer.WriteMedicalCase(context.Background(), c))
	}
}

func TestFindSimilar_BoundedAndSorted(t *testing.T) {
	f := newFixture(t)
	seedCases(t, f,
		"chest pain on exertion",
		"persistent dry cough",
		"sudden severe headache",
		"rash on forearms",
		"abdominal pain after meals",
		"shortness of breath at night",
	)

	for _, k := range []int{1, 3, 6, 10} {
		result, err := f.query.FindSimilar(context.Background(), domain.IndexMedicalCases, "persistent dry cough", k)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(result.Hits), k)
		for i := 1; i < len(result.Hits); i++ {
			assert.GreaterOrEqual(t, result.Hits[i-1].Score, result.Hits[i].Score)
		}
	}
}

func TestFindSimilar_IdenticalTextRanksFirst(t *testing.T) {
	f := newFixture(t)
	seedCases(t, f, "chest pain on exertion", "persistent dry cough", "sudden severe headache")

	result, err := f.query.FindSimilar(context.Background(), domain.IndexMedicalCases, "sudden severe headache", 2)
	require.NoError(t, err)
	require.NotEmpty(t, result.Hits)
	assert.Equal(t, "C002@v1", result.Hits[0].ID)
	assert.InDelta(t, 1.0, result.Hits[0].Score, 1e-6)

	fields, err := result.Hits[0].Fields()
	require.NoError(t, err)
	assert.NotContains(t, fields, "symptoms_vector")
}

func TestFindSimilar_ClampsK(t *testing.T) {
	f := newFixture(t)
	seedCases(t, f, "a", "b", "c")

	result, err := f.query.FindSimilar(context.Background(), domain.IndexMedicalCases, "a", 0)
	require.NoError(t, err)
	assert.Equal(t, 1, result.K)
	assert.Len(t, result.Hits, 1)

	result, err = f.query.FindSimilar(context.Background(), domain.IndexMedicalCases, "a", 5000)
	require.NoError(t, err)
	assert.Equal(t, domain.MaxSimilarK, result.K)
	assert.Len(t, result.Hits, 3)
}

func TestFindSimilar_Patients(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.writer.WritePatient(ctx, samplePatient()))

	result, err := f.query.FindSimilar(ctx, domain.IndexPatients, "chest pain radiating to the left arm", 5)
	require.NoError(t, err)
	require.Len(t, result.Hits, 1)
	assert.Equal(t, "P001", result.Hits[0].ID)
}

func TestFindSimilar_UnsupportedIndex(t *testing.T) {
	f := newFixture(t)

	for _, index := range []string{domain.IndexAppointments, domain.IndexMedicalRecords, domain.IndexAgentLogs} {
		_, err := f.query.FindSimilar(context.Background(), index, "chest pain", 5)
		assert.ErrorIs(t, err, domain.ErrUnsupportedIndex, index)
	}
	assert.Equal(t, 0, f.embedder.CallCount())
}

func TestFindSimilar_Errors(t *testing.T) {
	f := newFixture(t)

	_, err := f.query.FindSimilar(context.Background(), domain.IndexPatients, "  ", 5)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	f.embedder.SetOutputDimensions(12)
	_, err = f.query.FindSimilar(context.Background(), domain.IndexPatients, "fever", 5)
	assert.ErrorIs(t, err, domain.ErrValidation)

	f.embedder.SetOutputDimensions(0)
	f.embedder.SetFailNext(true)
	_, err = f.query.FindSimilar(context.Background(), domain.IndexPatients, "fever", 5)
	assert.ErrorIs(t, err, domain.ErrTimeout)
}

func TestCaseHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, v := range []int{2, 1, 3} {
		require.NoError(t, f.writer.WriteMedicalCase(ctx, sampleCase(v)))
	}
	other := sampleCase(1)
	other.CaseID = "C999"
	require.NoError(t, f.writer.WriteMedicalCase(ctx, other))

	hits, err := f.query.CaseHistory(ctx, "C001")
	require.NoError(t, err)
	require.Len(t, hits, 3)
	assert.Equal(t, "C001@v1", hits[0].ID)
	assert.Equal(t, "C001@v2", hits[1].ID)
	assert.Equal(t, "C001@v3", hits[2].ID)

	_, err = f.query.CaseHistory(ctx, "")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
