package pipeline

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pgEdge/pgedge-retail-etl/internal/transform"
)

// QualityGate holds the thresholds checked between transform and load.
type QualityGate struct {
	// MinRows is the minimum row count per output table.
	MinRows map[string]int
	// MaxDropRatio is the largest share of raw sales rows cleaning may
	// drop. Zero disables the check.
	MaxDropRatio float64
}

// QualityError lists every failed check.
type QualityError struct {
	Failures []string
}

func (e *QualityError) Error() string {
	return fmt.Sprintf("quality gate failed: %s", strings.Join(e.Failures, "; "))
}

// Check compares the transform output against the thresholds. rawSales
// is the number of sales rows extracted. All failures are collected
// before returning.
func (g QualityGate) Check(res *transform.Result, rawSales int) error {
	counts := res.Tables().RowCounts()

	tables := make([]string, 0, len(g.MinRows))
	for table := range g.MinRows {
		tables = append(tables, table)
	}
	sort.Strings(tables)

	var failures []string
	for _, table := range tables {
		min := g.MinRows[table]
		n, ok := counts[table]
		if !ok {
			failures = append(failures, fmt.Sprintf("unknown table %s", table))
			continue
		}
		if n < min {
			failures = append(failures, fmt.Sprintf("%s has %d rows, expected at least %d", table, n, min))
		}
	}

	if g.MaxDropRatio > 0 && rawSales > 0 && res.Drops != nil {
		dropped := res.Drops.Total(transform.TableStgRetailSales)
		ratio := float64(dropped) / float64(rawSales)
		if ratio > g.MaxDropRatio {
			failures = append(failures, fmt.Sprintf("%d of %d sales rows dropped (%.1f%%), limit is %.1f%%",
				dropped, rawSales, ratio*100, g.MaxDropRatio*100))
		}
	}

	if len(failures) > 0 {
		return &QualityError{Failures: failures}
	}
	return nil
}
