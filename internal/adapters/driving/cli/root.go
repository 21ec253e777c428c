// Package cli exposes the readiness checks and index operations as cobra commands.
package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/m-mizutani/goerr/v2"
	"github.com/spf13/cobra"

	"github.com/custodia-labs/clinical-search/internal/config"
	"github.com/custodia-labs/clinical-search/internal/core/domain"
	"github.com/custodia-labs/clinical-search/internal/core/ports/driving"
)

// ErrCommandFailed is returned after a command has already reported its failure.
// It maps to exit code 1 without further output.
var ErrCommandFailed = goerr.New("command failed")

// Dependencies are the services the commands run against
type Dependencies struct {
	Config *config.Config
	Schema driving.SchemaService
	Writer driving.DocumentWriter
	Query  driving.QueryService

	// Health builds a health service; requireData escalates empty indices to failures
	Health func(requireData bool) driving.HealthService

	Logger *slog.Logger

	// Close releases client connections (optional)
	Close func() error
}

var (
	envFile string
	version = "dev"
	deps    *Dependencies

	// Bootstrap builds the dependencies once flags are parsed
	Bootstrap func(ctx context.Context, envFile string) (*Dependencies, error)
)

var rootCmd = &cobra.Command{
	Use:   "clinical-search",
	Short: "Clinical search index service",
	Long: `Manages the Elasticsearch indices behind clinical search: patients, appointments,
medical records, medical cases and agent logs. Provides readiness diagnostics,
index bootstrap, bulk import, queries and the ops HTTP API.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		if deps != nil || Bootstrap == nil {
			return nil
		}
		d, err := Bootstrap(cmd.Context(), envFile)
		if err != nil {
			return err
		}
		deps = d
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "optional env file loaded before reading configuration")
}

// SetVersion sets the version reported by the CLI and HTTP API
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// SetDependencies replaces the services the commands run against
func SetDependencies(d *Dependencies) {
	deps = d
}

// Execute runs the root command and returns the process exit code
func Execute(ctx context.Context) int {
	err := rootCmd.ExecuteContext(ctx)

	if deps != nil && deps.Close != nil {
		if cerr := deps.Close(); cerr != nil {
			slog.Warn("failed to close clients", "error", cerr)
		}
	}

	if err == nil {
		return 0
	}
	if !errors.Is(err, ErrCommandFailed) {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	return 1
}

// services returns the dependencies or a configuration error
func services() (*Dependencies, error) {
	if deps == nil {
		return nil, goerr.Wrap(domain.ErrConfiguration, "services not configured")
	}
	return deps, nil
}

// indexServices returns the dependencies if the search cluster is configured
func indexServices() (*Dependencies, error) {
	d, err := services()
	if err != nil {
		return nil, err
	}
	if d.Schema == nil || d.Writer == nil || d.Query == nil {
		return nil, goerr.Wrap(domain.ErrConfiguration, "search cluster is not configured",
			goerr.V(domain.MissingKeysKey, []string{config.KeyElasticsearchURL}))
	}
	return d, nil
}
