package cli

import (
	"github.com/spf13/cobra"

	"github.com/pgEdge/pgedge-retail-etl/internal/pipeline"
)

var transformCmd = &cobra.Command{
	Use:   "transform",
	Short: "Extract and transform without loading",
	Long: `Extract the sources, build every output table and run the quality
gate, then print row counts. No database connection is needed.

Example:
  pgedge-retail-etl transform --sales-csv data/sales.csv --catalog-file data/products.json`,
	RunE: runTransform,
}

func init() {
	addSourceFlags(transformCmd)
}

func runTransform(cmd *cobra.Command, args []string) error {
	applySourceFlags()
	if err := cfg.ValidateTransform(); err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	runner, err := pipeline.NewRunner(newRunnerConfig(cfg))
	if err != nil {
		return err
	}

	res, err := runner.Run(ctx, pipeline.Options{SkipLoad: true})
	if res != nil {
		pipeline.PrintSummary(cmd.OutOrStdout(), res)
	}
	return err
}
