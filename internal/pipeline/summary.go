package pipeline

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/pgEdge/pgedge-retail-etl/internal/transform"
)

// PrintSummary writes the stage and table tables of a run to w.
func PrintSummary(w io.Writer, res *Result) {
	fmt.Fprintf(w, "Run %s: %s in %s\n\n", res.RunID, res.Status, res.Duration.Round(time.Millisecond))

	stages := newTable(w, []string{"Stage", "Status", "Attempts", "Records", "Duration"})
	for _, s := range res.Stages {
		stages.Append([]string{
			s.Stage,
			s.Status,
			strconv.Itoa(s.Attempts),
			strconv.FormatInt(s.Records, 10),
			s.Duration.Round(time.Millisecond).String(),
		})
	}
	stages.Render()

	if res.Transform == nil {
		return
	}
	fmt.Fprintln(w)

	tables := newTable(w, []string{"Table", "Rows", "Dropped", "Loaded", "Inserted", "Expired"})
	counts := res.Transform.Tables().RowCounts()
	for _, name := range transform.TableNames {
		row := []string{name, strconv.Itoa(counts[name]), "-", "-", "-", "-"}
		if n := res.Transform.Drops.Total(name); n > 0 {
			row[2] = strconv.Itoa(n)
		}
		if ts, ok := res.Load.For(name); ok {
			row[3] = strconv.FormatInt(ts.Rows, 10)
			row[4] = strconv.FormatInt(ts.Inserted, 10)
			row[5] = strconv.FormatInt(ts.Expired, 10)
		}
		tables.Append(row)
	}
	tables.Render()

	if fact := res.Transform.FactSales; fact != nil {
		fmt.Fprintf(w, "\nTotal revenue: %.2f\n", fact.TotalRevenue())
	}
}

func newTable(w io.Writer, header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_CENTER)
	table.SetAutoFormatHeaders(false)
	table.SetBorder(true)
	table.SetHeader(header)
	return table
}
