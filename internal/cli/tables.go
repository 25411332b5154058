package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/pgEdge/pgedge-retail-etl/internal/db"
	"github.com/pgEdge/pgedge-retail-etl/internal/transform"
	"github.com/pgEdge/pgedge-retail-etl/internal/warehouse"
)

var runsLimit int

var tablesCmd = &cobra.Command{
	Use:   "tables",
	Short: "List the warehouse tables",
	Long: `List the output tables in load order with their load mode and
primary key. Tables loaded with scd2_merge keep history across runs;
full_refresh tables are replaced on every run.`,
	Run: func(cmd *cobra.Command, args []string) {
		table := tablewriter.NewWriter(cmd.OutOrStdout())
		table.SetAutoWrapText(false)
		table.SetAutoFormatHeaders(false)
		table.SetHeader([]string{"Table", "Mode", "Columns", "Primary key"})
		for _, name := range transform.TableNames {
			cols := warehouse.TableColumns(name)
			var pk []string
			for _, c := range cols {
				if c.PrimaryKey {
					pk = append(pk, c.Name)
				}
			}
			table.Append([]string{
				name,
				string(warehouse.ModeOf(name)),
				strconv.Itoa(len(cols)),
				strings.Join(pk, ", "),
			})
		}
		table.Render()
	},
}

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Show recent pipeline runs",
	Long:  `Show the newest entries of the etl_run_log table.`,
	RunE:  runRuns,
}

func init() {
	runsCmd.Flags().IntVar(&runsLimit, "limit", 20,
		"number of run log entries to show")
}

func runRuns(cmd *cobra.Command, args []string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	pool, err := db.Connect(ctx, cfg.Connection, 1)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	wh := warehouse.New(pool, warehouse.Options{Schema: cfg.Load.Schema})
	runs, err := wh.RecentRuns(ctx, runsLimit)
	if err != nil {
		return err
	}

	if md, err := db.GetAllMetadata(ctx, pool); err == nil && md[db.KeyLastRunID] != "" {
		cmd.Printf("Last successful run: %s at %s\n\n", md[db.KeyLastRunID], md[db.KeyLastRunAt])
	}

	table := tablewriter.NewWriter(cmd.OutOrStdout())
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)
	table.SetHeader([]string{"Run", "Stage", "Status", "Records", "Seconds", "Started", "Error"})
	for _, r := range runs {
		table.Append([]string{
			r.RunID,
			r.Stage,
			r.Status,
			strconv.FormatInt(r.RecordsProcessed, 10),
			fmt.Sprintf("%.2f", r.Duration.Seconds()),
			r.StartedAt.Format("2006-01-02 15:04:05"),
			r.ErrorMessage,
		})
	}
	table.Render()
	return nil
}
