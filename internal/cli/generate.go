package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pgEdge/pgedge-retail-etl/internal/datagen"
	"github.com/pgEdge/pgedge-retail-etl/internal/logging"
)

var (
	genRows          int
	genCustomers     int
	genProducts      int
	genStartDate     string
	genEndDate       string
	genDirtyRatio    float64
	genSeed          uint64
	genProfile       string
	genOutput        string
	genCatalogOutput string
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a sample retail sales file",
	Long: `Generate a retail sales CSV file in the layout the pipeline reads,
optionally with a products JSON file for offline runs. A share of the
rows carries deliberate defects (bad dates, non-positive quantities,
non-numeric prices, out-of-range ages, wrong totals) to exercise cleaning.

Example:
  pgedge-retail-etl generate --rows 5000 --seed 42 --output data/sales.csv
  pgedge-retail-etl generate --catalog-output data/products.json --products 40`,
	RunE: runGenerate,
}

func init() {
	generateCmd.Flags().IntVar(&genRows, "rows", 0,
		"number of sales rows")
	generateCmd.Flags().IntVar(&genCustomers, "customers", 0,
		"number of distinct customers")
	generateCmd.Flags().IntVar(&genProducts, "products", 0,
		"number of catalog products")
	generateCmd.Flags().StringVar(&genStartDate, "start-date", "",
		"first sale date (YYYY-MM-DD)")
	generateCmd.Flags().StringVar(&genEndDate, "end-date", "",
		"last sale date (YYYY-MM-DD)")
	generateCmd.Flags().Float64Var(&genDirtyRatio, "dirty-ratio", -1,
		"share of rows with a deliberate defect (0-1)")
	generateCmd.Flags().StringVar(&genProfile, "profile", "",
		"seasonal profile: "+strings.Join(datagen.Profiles(), ", "))
	generateCmd.Flags().Uint64Var(&genSeed, "seed", 0,
		"random seed for reproducible output")
	generateCmd.Flags().StringVar(&genOutput, "output", "",
		"sales CSV output path")
	generateCmd.Flags().StringVar(&genCatalogOutput, "catalog-output", "",
		"products JSON output path")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	// Override config with CLI flags
	g := &cfg.Generate
	if genRows > 0 {
		g.Rows = genRows
	}
	if genCustomers > 0 {
		g.Customers = genCustomers
	}
	if genProducts > 0 {
		g.Products = genProducts
	}
	if genStartDate != "" {
		g.StartDate = genStartDate
	}
	if genEndDate != "" {
		g.EndDate = genEndDate
	}
	if genDirtyRatio >= 0 {
		g.DirtyRatio = genDirtyRatio
	}
	if genProfile != "" {
		g.Profile = genProfile
	}
	if genSeed != 0 {
		g.Seed = genSeed
	}
	if genOutput != "" {
		g.Output = genOutput
	}
	if genCatalogOutput != "" {
		g.CatalogOutput = genCatalogOutput
	}

	// Validate configuration
	if err := cfg.ValidateGenerate(); err != nil {
		return err
	}
	start, end, err := g.DateRange()
	if err != nil {
		return err
	}
	profile, err := datagen.GetProfile(g.Profile)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	faker := datagen.NewFakerWithSeed(g.Seed)
	gen := datagen.NewSalesGenerator(faker, datagen.SalesConfig{
		Rows:       g.Rows,
		Customers:  g.Customers,
		Start:      start,
		End:        end,
		DirtyRatio: g.DirtyRatio,
		Profile:    profile,
	})

	f, err := createOutput(g.Output)
	if err != nil {
		return err
	}
	stats, err := gen.Write(ctx, g.Output, f)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("failed to generate %s: %w", g.Output, err)
	}

	ev := logging.Info().
		Str("output", g.Output).
		Int("rows", stats.Rows).
		Str("profile", profile.Name()).
		Int("expected_dropped", stats.Dropped())
	if fi, err := os.Stat(g.Output); err == nil {
		ev = ev.Str("size", datagen.FormatSize(fi.Size()))
	}
	for _, d := range datagen.Defects {
		if n := stats.Defects[d]; n > 0 {
			ev = ev.Int(string(d), n)
		}
	}
	ev.Msg("Sales file generated")

	if g.CatalogOutput == "" {
		return nil
	}

	f, err = createOutput(g.CatalogOutput)
	if err != nil {
		return err
	}
	products := datagen.CatalogFixture(faker, g.Products)
	err = datagen.WriteCatalog(f, products)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = cerr
	}
	if err != nil {
		return err
	}

	logging.Info().
		Str("output", g.CatalogOutput).
		Int("products", len(products)).
		Msg("Catalog file generated")
	return nil
}

func createOutput(path string) (*os.File, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", path, err)
	}
	return f, nil
}
