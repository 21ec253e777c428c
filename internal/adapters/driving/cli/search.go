package cli

import (
	"fmt"

	"github.com/m-mizutani/goerr/v2"
	"github.com/spf13/cobra"

	"github.com/custodia-labs/clinical-search/internal/core/domain"
)

var (
	searchField   string
	searchValue   string
	searchSimilar string
	searchID      string
	searchK       int
	searchJSON    bool
)

var searchCmd = &cobra.Command{
	Use:   "search [index]",
	Short: "Query one index",
	Long: `Runs one read-only query against an index. Exactly one mode is required:
  --id       fetch a document by id (a bare case or record id resolves to the latest version)
  --field    exact-match filter, together with --value
  --similar  k-nearest-neighbour search over symptom embeddings`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().StringVar(&searchID, "id", "", "document id")
	searchCmd.Flags().StringVar(&searchField, "field", "", "field for an exact-match filter")
	searchCmd.Flags().StringVar(&searchValue, "value", "", "value for an exact-match filter")
	searchCmd.Flags().StringVar(&searchSimilar, "similar", "", "free text for similarity search")
	searchCmd.Flags().IntVarP(&searchK, "k", "k", 10, "maximum number of similar results")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output results as JSON")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	d, err := indexServices()
	if err != nil {
		return err
	}
	index := args[0]
	ctx := cmd.Context()

	modes := 0
	for _, set := range []bool{searchID != "", searchField != "", searchSimilar != ""} {
		if set {
			modes++
		}
	}
	if modes != 1 {
		return goerr.Wrap(domain.ErrInvalidInput, "exactly one of --id, --field or --similar is required")
	}

	var hits []*domain.Hit
	switch {
	case searchID != "":
		hit, err := d.Query.FindByID(ctx, index, searchID)
		if err != nil {
			return goerr.Wrap(err, "lookup failed")
		}
		if hit == nil {
			cmd.Printf("No document %s in %s.\n", searchID, index)
			return ErrCommandFailed
		}
		hits = []*domain.Hit{hit}

	case searchField != "":
		if searchValue == "" {
			return goerr.Wrap(domain.ErrInvalidInput, "--value is required with --field")
		}
		hits, err = d.Query.FilterBy(ctx, index, searchField, searchValue)
		if err != nil {
			return goerr.Wrap(err, "filter failed")
		}

	default:
		result, err := d.Query.FindSimilar(ctx, index, searchSimilar, searchK)
		if err != nil {
			return goerr.Wrap(err, "similarity search failed")
		}
		hits = result.Hits
	}

	if searchJSON {
		if hits == nil {
			hits = []*domain.Hit{}
		}
		return printJSON(cmd, hits)
	}
	return outputHits(cmd, hits)
}

func outputHits(cmd *cobra.Command, hits []*domain.Hit) error {
	if len(hits) == 0 {
		cmd.Println("No results found.")
		return nil
	}

	cmd.Println("Results:")
	cmd.Println()
	for i, h := range hits {
		cmd.Printf("  [%d] %s %s\n", i+1, h.ID, mutedStyle.Render(scoreLabel(h.Score)))
		cmd.Printf("      %s\n", string(h.Source))
	}
	cmd.Println()
	cmd.Println(plural(len(hits), "result"))
	return nil
}

func scoreLabel(score float64) string {
	if score == 0 {
		return ""
	}
	return fmt.Sprintf("(%.3f)", score)
}
