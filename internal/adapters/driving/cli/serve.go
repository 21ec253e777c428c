package cli

import (
	"strconv"

	"github.com/m-mizutani/goerr/v2"
	"github.com/spf13/cobra"

	httpadapter "github.com/custodia-labs/clinical-search/internal/adapters/driving/http"
	"github.com/custodia-labs/clinical-search/internal/core/domain"
)

var (
	serveHost    string
	servePort    int
	serveOrigins []string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Serves the health, readiness, query and write endpoints until interrupted.
The port defaults to PORT from the environment, then 8080.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "0.0.0.0", "listen host")
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "listen port (default from PORT)")
	serveCmd.Flags().StringSliceVar(&serveOrigins, "allowed-origin", nil, "CORS origins allowed to call the API")
	rootCmd.AddCommand(serveCmd)
}

// serverConfig resolves the listen settings from flags and configuration
func serverConfig(d *Dependencies) (httpadapter.Config, error) {
	cfg := httpadapter.DefaultConfig()
	cfg.Host = serveHost
	cfg.Version = version
	cfg.AllowedOrigins = serveOrigins
	cfg.Logger = d.Logger

	switch {
	case servePort > 0:
		cfg.Port = servePort
	case d.Config != nil && d.Config.Port != "":
		port, err := strconv.Atoi(d.Config.Port)
		if err != nil || port <= 0 {
			return cfg, goerr.Wrap(domain.ErrConfiguration, "PORT must be a positive integer", goerr.V("value", d.Config.Port))
		}
		cfg.Port = port
	}
	return cfg, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	d, err := indexServices()
	if err != nil {
		return err
	}

	cfg, err := serverConfig(d)
	if err != nil {
		return err
	}

	requireData := false
	if d.Config != nil {
		requireData = d.Config.HealthRequireData
	}

	server := httpadapter.NewServer(cfg, d.Schema, d.Writer, d.Query, d.Health(requireData))
	cmd.Printf("listening on %s\n", server.Addr())
	return server.Run(cmd.Context())
}
