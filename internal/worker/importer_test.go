package worker

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/clinical-search/internal/core/domain"
	"github.com/custodia-labs/clinical-search/internal/core/ports/driven/mocks"
	"github.com/custodia-labs/clinical-search/internal/core/services"
)

type importFixture struct {
	index    *mocks.MockSearchIndex
	importer *Importer
}

func newImportFixture(t *testing.T, concurrency int) *importFixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	index := mocks.NewMockSearchIndex()
	registry := domain.DefaultRegistry(domain.DefaultVectorDims)

	schema := services.NewSchemaService(services.SchemaServiceConfig{Index: index, Registry: registry, Logger: logger})
	require.NoError(t, schema.EnsureAll(context.Background()))

	writer := services.NewDocumentWriter(services.DocumentWriterConfig{
		Index:    index,
		Embedder: mocks.NewMockEmbeddingService(),
		Registry: registry,
		Logger:   logger,
	})

	return &importFixture{
		index:    index,
		importer: NewImporter(ImporterConfig{Writer: writer, Concurrency: concurrency, Logger: logger}),
	}
}

func TestImport_Patients(t *testing.T) {
	f := newImportFixture(t, 4)

	var b strings.Builder
	for i := 0; i < 25; i++ {
		fmt.Fprintf(&b, `{"patient_id":"P%03d","name":"Patient %d","symptoms":"cough and fever"}`+"\n", i, i)
	}

	result, err := f.importer.Import(context.Background(), domain.IndexPatients, strings.NewReader(b.String()))
	require.NoError(t, err)
	assert.Equal(t, 25, result.Lines)
	assert.Equal(t, 25, result.Written)
	assert.Zero(t, result.Failed)
	assert.Equal(t, 25, f.index.DocumentCount(domain.IndexPatients))
}

func TestImport_CollectsLineErrors(t *testing.T) {
	f := newImportFixture(t, 2)

	input := strings.Join([]string{
		`{"appointment_id":"A1","doctor_name":"Dr. Grey","department":"Cardiology","scheduled_at":"2026-03-14T09:30:00Z"}`,
		``,
		`{"appointment_id":"A2","doctor_name":"Dr. Grey","department":"Cardio","scheduled_at":"2026-03-14T09:30:00Z"}`,
		`not json`,
		`{"appointment_id":"A3","doctor_name":"Dr. Grey","department":"Neurology","scheduled_at":"2026-03-14T10:30:00Z"}`,
		`{"appointment_id":"A4","department":"Neurology","scheduled_at":"2026-03-14T10:30:00Z"}`,
	}, "\n")

	result, err := f.importer.Import(context.Background(), domain.IndexAppointments, strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, 5, result.Lines)
	assert.Equal(t, 2, result.Written)
	assert.Equal(t, 3, result.Failed)

	require.Len(t, result.Errors, 3)
	assert.Equal(t, 3, result.Errors[0].Line)
	assert.ErrorIs(t, result.Errors[0], domain.ErrInvalidEnumValue)
	assert.Equal(t, 4, result.Errors[1].Line)
	assert.ErrorIs(t, result.Errors[1], domain.ErrValidation)
	assert.Equal(t, 6, result.Errors[2].Line)
	assert.ErrorIs(t, result.Errors[2], domain.ErrValidation)

	assert.Equal(t, 2, f.index.DocumentCount(domain.IndexAppointments))
}

func TestImport_EveryIndex(t *testing.T) {
	tests := []struct {
		index string
		line  string
	}{
		{domain.IndexPatients, `{"patient_id":"P1","symptoms":"headache"}`},
		{domain.IndexAppointments, `{"appointment_id":"A1","doctor_name":"Dr. Grey","department":"Pediatrics","scheduled_at":"2026-03-14T09:30:00Z"}`},
		{domain.IndexMedicalCases, `{"case_id":"C1","severity":"low","symptoms":"mild rash"}`},
		{domain.IndexMedicalRecords, `{"record_id":"R1","patient_id":"P1","severity":"medium","diagnosis":"migraine"}`},
		{domain.IndexAgentLogs, `{"agent_id":"triage-bot","action":"classify"}`},
	}

	for _, tt := range tests {
		t.Run(tt.index, func(t *testing.T) {
			f := newImportFixture(t, 1)
			result, err := f.importer.Import(context.Background(), tt.index, strings.NewReader(tt.line+"\n"))
			require.NoError(t, err)
			assert.Equal(t, 1, result.Written, result.Errors)
			assert.Equal(t, 1, f.index.DocumentCount(tt.index))
		})
	}
}

func TestImport_UnknownIndex(t *testing.T) {
	f := newImportFixture(t, 1)

	_, err := f.importer.Import(context.Background(), "billing", strings.NewReader("{}\n"))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestImport_Cancelled(t *testing.T) {
	f := newImportFixture(t, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	input := `{"patient_id":"P1","symptoms":"headache"}` + "\n" + `{"patient_id":"P2","symptoms":"headache"}` + "\n"
	result, err := f.importer.Import(ctx, domain.IndexPatients, strings.NewReader(input))
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, result)
	assert.Zero(t, result.Written)
	assert.Zero(t, f.index.DocumentCount(domain.IndexPatients))
}

func TestNewImporter_Defaults(t *testing.T) {
	im := NewImporter(ImporterConfig{})
	assert.Equal(t, 1, im.concurrency)
	assert.NotNil(t, im.logger)
}
