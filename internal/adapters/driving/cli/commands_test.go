package cli

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/clinical-search/internal/core/domain"
)

func TestEnsureIndicesCmd(t *testing.T) {
	ts := setupTestServices(t, false)

	out, err := run(t, "ensure-indices")
	require.NoError(t, err)
	assert.Contains(t, out, "5 indices ensured")
	assert.Equal(t, len(domain.IndexNames), ts.index.CallCount("create_index"))

	// Second run only verifies
	_, err = run(t, "ensure-indices")
	require.NoError(t, err)
	assert.Equal(t, len(domain.IndexNames), ts.index.CallCount("create_index"))
}

func TestEnsureIndicesCmd_Mismatch(t *testing.T) {
	ts := setupTestServices(t, false)
	schema, ok := domain.DefaultRegistry(768).Get(domain.IndexPatients)
	require.True(t, ok)
	ts.index.SetMapping(domain.IndexPatients, schema.Mapping())

	_, err := run(t, "ensure-indices")
	assert.ErrorIs(t, err, domain.ErrSchemaMismatch)
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data.ndjson")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestImportCmd(t *testing.T) {
	ts := setupTestServices(t, true)
	path := writeFile(t, strings.Join([]string{
		`{"patient_id":"P001","name":"Ada","symptoms":"chest pain"}`,
		`{"patient_id":"P002","name":"Grace","symptoms":"dry cough"}`,
	}, "\n"))

	out, err := run(t, "import", "--index", domain.IndexPatients, "--file", path)
	require.NoError(t, err)
	assert.Contains(t, out, "2 written, 0 failed of 2 lines")
	assert.Equal(t, 2, ts.index.DocumentCount(domain.IndexPatients))
}

func TestImportCmd_LineErrors(t *testing.T) {
	ts := setupTestServices(t, true)
	path := writeFile(t, strings.Join([]string{
		`{"patient_id":"P001","name":"Ada","symptoms":"chest pain"}`,
		`not json`,
		`{"name":"no id","symptoms":"fever"}`,
	}, "\n"))

	out, err := run(t, "import", "--index", domain.IndexPatients, "--file", path, "-c", "2")
	assert.ErrorIs(t, err, ErrCommandFailed)
	assert.Contains(t, out, "line 2:")
	assert.Contains(t, out, "line 3:")
	assert.Contains(t, out, "1 written, 2 failed of 3 lines")
	assert.Equal(t, 1, ts.index.DocumentCount(domain.IndexPatients))
}

func TestImportCmd_Stdin(t *testing.T) {
	ts := setupTestServices(t, true)
	rootCmd.SetIn(strings.NewReader(`{"log_id":"L1","agent_id":"triage","action":"summarise"}` + "\n"))
	defer rootCmd.SetIn(nil)

	_, err := run(t, "import", "--index", domain.IndexAgentLogs)
	require.NoError(t, err)
	assert.Equal(t, 1, ts.index.DocumentCount(domain.IndexAgentLogs))
}

func TestImportCmd_InvalidArgs(t *testing.T) {
	setupTestServices(t, true)

	_, err := run(t, "import", "--file", "x.ndjson")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = run(t, "import", "--index", "billing", "--file", writeFile(t, "{}"))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = run(t, "import", "--index", domain.IndexPatients, "--file", filepath.Join(t.TempDir(), "absent.ndjson"))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestSearchCmd(t *testing.T) {
	ts := setupTestServices(t, true)
	seedAll(t, ts)
	ctx := context.Background()
	require.NoError(t, ts.deps.Writer.WriteMedicalCase(ctx, &domain.MedicalCase{
		CaseID: "C001", Version: 2, PatientID: "P001", Severity: domain.SeverityCritical, Symptoms: "chest pain at rest",
	}))

	t.Run("by id", func(t *testing.T) {
		out, err := run(t, "search", domain.IndexPatients, "--id", "P001")
		require.NoError(t, err)
		assert.Contains(t, out, "[1] P001")
	})

	t.Run("bare case id resolves to latest version", func(t *testing.T) {
		out, err := run(t, "search", domain.IndexMedicalCases, "--id", "C001", "--json")
		require.NoError(t, err)

		var hits []*domain.Hit
		require.NoError(t, json.Unmarshal([]byte(out), &hits), out)
		require.Len(t, hits, 1)
		assert.Equal(t, "C001@v2", hits[0].ID)
	})

	t.Run("absent id", func(t *testing.T) {
		out, err := run(t, "search", domain.IndexPatients, "--id", "P999")
		assert.ErrorIs(t, err, ErrCommandFailed)
		assert.Contains(t, out, "No document P999")
	})

	t.Run("filter", func(t *testing.T) {
		out, err := run(t, "search", domain.IndexAppointments, "--field", "department", "--value", "Cardiology", "--json")
		require.NoError(t, err)

		var hits []*domain.Hit
		require.NoError(t, json.Unmarshal([]byte(out), &hits), out)
		require.Len(t, hits, 1)
		assert.Equal(t, "A001", hits[0].ID)
	})

	t.Run("filter without matches", func(t *testing.T) {
		out, err := run(t, "search", domain.IndexAppointments, "--field", "department", "--value", "Neurology")
		require.NoError(t, err)
		assert.Contains(t, out, "No results found.")
	})

	t.Run("similar", func(t *testing.T) {
		out, err := run(t, "search", domain.IndexMedicalCases, "--similar", "chest pain", "-k", "1", "--json")
		require.NoError(t, err)

		var hits []*domain.Hit
		require.NoError(t, json.Unmarshal([]byte(out), &hits), out)
		assert.Len(t, hits, 1)
	})

	t.Run("similar on an index without vectors", func(t *testing.T) {
		_, err := run(t, "search", domain.IndexAppointments, "--similar", "chest pain")
		assert.ErrorIs(t, err, domain.ErrUnsupportedIndex)
	})

	t.Run("exactly one mode", func(t *testing.T) {
		_, err := run(t, "search", domain.IndexPatients)
		assert.ErrorIs(t, err, domain.ErrInvalidInput)

		_, err = run(t, "search", domain.IndexPatients, "--id", "P001", "--similar", "pain")
		assert.ErrorIs(t, err, domain.ErrInvalidInput)

		_, err = run(t, "search", domain.IndexPatients, "--field", "name")
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("requires index argument", func(t *testing.T) {
		_, err := run(t, "search")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "accepts 1 arg(s)")
	})
}

func TestServerConfig(t *testing.T) {
	ts := setupTestServices(t, false)
	resetFlags(rootCmd)

	cfg, err := serverConfig(ts.deps)
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)

	ts.deps.Config.Port = "9090"
	cfg, err = serverConfig(ts.deps)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Port)

	servePort = 7070
	defer func() { servePort = 0 }()
	cfg, err = serverConfig(ts.deps)
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Port)

	servePort = 0
	ts.deps.Config.Port = "http"
	_, err = serverConfig(ts.deps)
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestVersionCmd(t *testing.T) {
	SetVersion("1.2.3")
	defer SetVersion("dev")

	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "clinical-search version 1.2.3")
}

func TestServices_NotConfigured(t *testing.T) {
	prev := deps
	deps = nil
	defer func() { deps = prev }()

	_, err := run(t, "check-env")
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestExecute_ExitCodes(t *testing.T) {
	ts := setupTestServices(t, false)
	resetFlags(rootCmd)
	rootCmd.SetOut(new(strings.Builder))
	defer rootCmd.SetOut(nil)

	rootCmd.SetArgs([]string{"check-env"})
	assert.Equal(t, 0, Execute(context.Background()))

	ts.env.missing = []string{"ELASTICSEARCH_URL"}
	rootCmd.SetArgs([]string{"check-env"})
	assert.Equal(t, 1, Execute(context.Background()))
	rootCmd.SetArgs(nil)
}

func TestIndexCommands_RequireCluster(t *testing.T) {
	ts := setupTestServices(t, false)
	ts.deps.Schema = nil
	ts.deps.Writer = nil
	ts.deps.Query = nil

	for _, args := range [][]string{
		{"ensure-indices"},
		{"import", "--index", domain.IndexPatients},
		{"search", domain.IndexPatients, "--id", "P001"},
		{"serve"},
	} {
		_, err := run(t, args...)
		assert.ErrorIs(t, err, domain.ErrConfiguration, args[0])
	}

	// Diagnostics still run and report the cluster as unconfigured
	_, err := run(t, "check-env")
	assert.NoError(t, err)
}
