package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pgEdge/pgedge-retail-etl/internal/config"
	"github.com/pgEdge/pgedge-retail-etl/internal/db"
	"github.com/pgEdge/pgedge-retail-etl/internal/extract"
	"github.com/pgEdge/pgedge-retail-etl/internal/logging"
	"github.com/pgEdge/pgedge-retail-etl/internal/pipeline"
	"github.com/pgEdge/pgedge-retail-etl/internal/warehouse"
)

var (
	runSalesCSV    string
	runCatalogURL  string
	runCatalogFile string
	runMaxTries    int
	runSkipLoad    bool
	runExtractOnly bool
	runNoRunLog    bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full ETL pipeline",
	Long: `Run extract, transform, the quality gate and load against a warehouse
that was previously initialized with the 'init' command. Each stage is
retried on transient failures; data errors and quality gate failures stop
the run immediately. Every stage is recorded in the etl_run_log table.

Example:
  pgedge-retail-etl run --connection "postgres://..." --sales-csv data/sales.csv
  pgedge-retail-etl run --catalog-file data/products.json --skip-load
  pgedge-retail-etl run --extract-only`,
	RunE: runRun,
}

func init() {
	addSourceFlags(runCmd)
	runCmd.Flags().IntVar(&runMaxTries, "max-tries", 0,
		"attempts per stage before giving up")
	runCmd.Flags().BoolVar(&runSkipLoad, "skip-load", false,
		"stop after the quality gate without touching the warehouse")
	runCmd.Flags().BoolVar(&runExtractOnly, "extract-only", false,
		"stop after extracting and validating the inputs")
	runCmd.Flags().BoolVar(&runNoRunLog, "no-run-log", false,
		"do not record stages in the run log table")
}

func addSourceFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&runSalesCSV, "sales-csv", "",
		"retail sales CSV file")
	cmd.Flags().StringVar(&runCatalogURL, "catalog-url", "",
		"product catalog API base URL")
	cmd.Flags().StringVar(&runCatalogFile, "catalog-file", "",
		"products JSON file used instead of the catalog API")
}

func applySourceFlags() {
	if runSalesCSV != "" {
		cfg.Source.SalesCSV = runSalesCSV
	}
	if runCatalogURL != "" {
		cfg.Source.CatalogURL = runCatalogURL
	}
	if runCatalogFile != "" {
		cfg.Source.CatalogFile = runCatalogFile
	}
}

func newExtractor(c *config.Config) *extract.Extractor {
	e := &extract.Extractor{
		SalesPath:   c.Source.SalesCSV,
		CatalogFile: c.Source.CatalogFile,
	}
	if c.Source.CatalogFile == "" && c.Source.CatalogURL != "" {
		e.Catalog = extract.NewCatalogClient(c.Source.CatalogURL, c.Source.HTTPTimeout, c.Source.Retries)
	}
	return e
}

func newRunnerConfig(c *config.Config) pipeline.RunnerConfig {
	return pipeline.RunnerConfig{
		Extractor: newExtractor(c),
		Transform: c.Transform,
		Quality: pipeline.QualityGate{
			MinRows:      c.Quality.MinRows,
			MaxDropRatio: c.Quality.MaxDropRatio,
		},
		Retry: pipeline.RetryPolicy{
			MaxTries:        c.Pipeline.MaxTries,
			InitialInterval: c.Pipeline.InitialInterval,
			MaxInterval:     c.Pipeline.MaxInterval,
		},
		RunLog: c.Pipeline.RunLog,
	}
}

func runRun(cmd *cobra.Command, args []string) error {
	// Override config with CLI flags
	applySourceFlags()
	if runMaxTries > 0 {
		cfg.Pipeline.MaxTries = runMaxTries
	}
	if runNoRunLog {
		cfg.Pipeline.RunLog = false
	}

	offline := runSkipLoad || runExtractOnly

	// Validate configuration
	if offline {
		if err := cfg.ValidateTransform(); err != nil {
			return err
		}
	} else if err := cfg.ValidateRun(); err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	runnerCfg := newRunnerConfig(cfg)

	if !offline {
		pool, err := db.Connect(ctx, cfg.Connection, int32(cfg.Load.MaxConns))
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer pool.Close()

		wh := warehouse.New(pool, warehouse.Options{
			Schema:    cfg.Load.Schema,
			BatchSize: cfg.Load.BatchSize,
		})
		exists, err := wh.SchemaExists(ctx)
		if err != nil {
			return fmt.Errorf("failed to check warehouse schema: %w", err)
		}
		if !exists {
			return fmt.Errorf("warehouse has not been initialized; run 'pgedge-retail-etl init' first")
		}

		runnerCfg.Loader = wh
		runnerCfg.Metadata = pool
	}

	runner, err := pipeline.NewRunner(runnerCfg)
	if err != nil {
		return fmt.Errorf("failed to create runner: %w", err)
	}

	logging.Info().
		Str("sales_csv", cfg.Source.SalesCSV).
		Str("schema", cfg.Load.Schema).
		Bool("skip_load", runSkipLoad).
		Bool("extract_only", runExtractOnly).
		Msg("Starting ETL run")

	res, err := runner.Run(ctx, pipeline.Options{
		ExtractOnly: runExtractOnly,
		SkipLoad:    runSkipLoad,
	})
	if res != nil {
		pipeline.PrintSummary(cmd.OutOrStdout(), res)
	}
	return err
}
