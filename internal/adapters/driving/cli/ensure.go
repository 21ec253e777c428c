package cli

import (
	"github.com/m-mizutani/goerr/v2"
	"github.com/spf13/cobra"

	"github.com/custodia-labs/clinical-search/internal/core/domain"
)

var ensureIndicesCmd = &cobra.Command{
	Use:   "ensure-indices",
	Short: "Create missing indices and verify existing mappings",
	Long: `Creates every registered index that does not exist and verifies the mapping
of those that do. Never deletes or reindexes; a mapping mismatch is reported
and left for an explicit migration.`,
	Args: cobra.NoArgs,
	RunE: runEnsureIndices,
}

func init() {
	rootCmd.AddCommand(ensureIndicesCmd)
}

func runEnsureIndices(cmd *cobra.Command, _ []string) error {
	d, err := indexServices()
	if err != nil {
		return err
	}

	if err := d.Schema.EnsureAll(cmd.Context()); err != nil {
		return goerr.Wrap(err, "failed to ensure indices")
	}

	for _, name := range domain.IndexNames {
		cmd.Printf("  %s  %s\n", passStyle.Render("OK"), name)
	}
	cmd.Printf("%d indices ensured\n", len(domain.IndexNames))
	return nil
}
