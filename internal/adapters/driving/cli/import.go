package cli

import (
	"io"
	"os"

	"github.com/m-mizutani/goerr/v2"
	"github.com/spf13/cobra"

	"github.com/custodia-labs/clinical-search/internal/core/domain"
	"github.com/custodia-labs/clinical-search/internal/worker"
)

var (
	importIndex       string
	importFile        string
	importConcurrency int
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Bulk import NDJSON documents into an index",
	Long: `Reads one JSON document per line and writes each through the document writer,
so validation, embedding and retries apply exactly as for single writes.
Failed lines are reported by line number; the rest of the file still imports.`,
	Args: cobra.NoArgs,
	RunE: runImport,
}

func init() {
	importCmd.Flags().StringVar(&importIndex, "index", "", "target index (required)")
	importCmd.Flags().StringVarP(&importFile, "file", "f", "-", "NDJSON file to read, - for stdin")
	importCmd.Flags().IntVarP(&importConcurrency, "concurrency", "c", 4, "number of concurrent writers")
	rootCmd.AddCommand(importCmd)
}

func runImport(cmd *cobra.Command, _ []string) error {
	d, err := indexServices()
	if err != nil {
		return err
	}
	if importIndex == "" {
		return goerr.Wrap(domain.ErrInvalidInput, "--index is required")
	}

	var r io.Reader = cmd.InOrStdin()
	if importFile != "-" {
		f, err := os.Open(importFile)
		if err != nil {
			return goerr.Wrap(domain.ErrInvalidInput, "failed to open import file", goerr.V("file", importFile), goerr.V("cause", err.Error()))
		}
		defer f.Close()
		r = f
	}

	importer := worker.NewImporter(worker.ImporterConfig{
		Writer:      d.Writer,
		Concurrency: importConcurrency,
		Logger:      d.Logger,
	})

	result, err := importer.Import(cmd.Context(), importIndex, r)
	if result != nil {
		for _, le := range result.Errors {
			cmd.Printf("  %s  line %d: %s\n", failStyle.Render("FAIL"), le.Line, le.Msg)
		}
		cmd.Printf("%s: %d written, %d failed of %s in %s\n",
			result.Index, result.Written, result.Failed, plural(result.Lines, "line"), result.Duration)
	}
	if err != nil {
		return goerr.Wrap(err, "import aborted", goerr.V("index", importIndex))
	}
	if result.Failed > 0 {
		return ErrCommandFailed
	}
	return nil
}
