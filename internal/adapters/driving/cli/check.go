package cli

import (
	"time"

	"github.com/spf13/cobra"
)

var (
	checkJSON               bool
	checkIndicesRequireData bool
	checkAllRequireData     bool
)

var checkEnvCmd = &cobra.Command{
	Use:   "check-env",
	Short: "Verify required configuration is present",
	Long: `Verifies that every required environment variable is set and well formed.
Names each missing variable. Makes no network calls.`,
	Args: cobra.NoArgs,
	RunE: runCheckEnv,
}

var checkClusterCmd = &cobra.Command{
	Use:   "check-cluster",
	Short: "Verify the search cluster is reachable and healthy",
	Long: `Queries cluster health. Green passes, yellow passes with a warning,
red or unreachable fails.`,
	Args: cobra.NoArgs,
	RunE: runCheckCluster,
}

var checkIndicesCmd = &cobra.Command{
	Use:   "check-indices",
	Short: "Verify every index exists with the expected mapping and data",
	Long: `Checks each registered index for existence, mapping agreement and document
count. Indices expected to hold data fail when empty unless --require-data=false.`,
	Args: cobra.NoArgs,
	RunE: runCheckIndices,
}

var checkAllCmd = &cobra.Command{
	Use:   "check-all",
	Short: "Run every readiness check",
	Long: `Runs the environment, cluster, embedding and index checks without stopping
at the first failure, then prints the aggregate report.`,
	Args: cobra.NoArgs,
	RunE: runCheckAll,
}

func init() {
	checkIndicesCmd.Flags().BoolVar(&checkIndicesRequireData, "require-data", true, "fail on empty indices that should hold data")
	checkIndicesCmd.Flags().BoolVar(&checkJSON, "json", false, "output the report as JSON")

	checkAllCmd.Flags().BoolVar(&checkAllRequireData, "require-data", false, "fail on empty indices that should hold data (default from HEALTH_REQUIRE_DATA)")
	checkAllCmd.Flags().BoolVar(&checkJSON, "json", false, "output the report as JSON")

	rootCmd.AddCommand(checkEnvCmd)
	rootCmd.AddCommand(checkClusterCmd)
	rootCmd.AddCommand(checkIndicesCmd)
	rootCmd.AddCommand(checkAllCmd)
}

func runCheckEnv(cmd *cobra.Command, _ []string) error {
	d, err := services()
	if err != nil {
		return err
	}

	started := time.Now()
	r := d.Health(false).CheckEnvironment(cmd.Context())
	report := singleReport(r, started)

	printReport(cmd, "Environment", report)
	if missing, ok := r.Details["missing"].([]string); ok {
		for _, key := range missing {
			cmd.Printf("missing: %s\n", key)
		}
	}
	return finish(report)
}

func runCheckCluster(cmd *cobra.Command, _ []string) error {
	d, err := services()
	if err != nil {
		return err
	}

	started := time.Now()
	report := singleReport(d.Health(false).CheckClusterHealth(cmd.Context()), started)
	printReport(cmd, "Cluster", report)
	return finish(report)
}

func runCheckIndices(cmd *cobra.Command, _ []string) error {
	d, err := services()
	if err != nil {
		return err
	}

	report := d.Health(checkIndicesRequireData).CheckIndices(cmd.Context())
	if checkJSON {
		if err := printJSON(cmd, report); err != nil {
			return err
		}
		return finish(report)
	}

	printReport(cmd, "Indices", report)
	for _, c := range report.Failures() {
		cmd.Printf("failed %s: %s\n", c.Name, c.Message)
	}
	return finish(report)
}

func runCheckAll(cmd *cobra.Command, _ []string) error {
	d, err := services()
	if err != nil {
		return err
	}

	requireData := checkAllRequireData
	if !cmd.Flags().Changed("require-data") && d.Config != nil {
		requireData = d.Config.HealthRequireData
	}

	report := d.Health(requireData).RunAll(cmd.Context())
	if checkJSON {
		if err := printJSON(cmd, report); err != nil {
			return err
		}
		return finish(report)
	}

	printReport(cmd, "Readiness", report)
	if report.Passed() {
		cmd.Println(passStyle.Render("ready"))
	} else {
		cmd.Printf("%s: %s\n", failStyle.Render("not ready"), plural(len(report.Failures()), "failed check"))
	}
	return finish(report)
}
