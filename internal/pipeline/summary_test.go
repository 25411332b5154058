package pipeline

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/pgEdge/pgedge-retail-etl/internal/transform"
	"github.com/pgEdge/pgedge-retail-etl/internal/warehouse"
)

func TestPrintSummary(t *testing.T) {
	res := &Result{
		RunID:     "run-1",
		Status:    warehouse.StatusSuccess,
		Duration:  1500 * time.Millisecond,
		Transform: transformSample(t),
		Stages: []StageResult{
			{Stage: StageExtract, Status: warehouse.StatusSuccess, Attempts: 1, Records: 4},
			{Stage: StageLoad, Status: warehouse.StatusSkipped},
		},
		Load: warehouse.LoadStats{Tables: []warehouse.TableStats{
			{Table: transform.TableDimCustomer, Mode: warehouse.SCD2Merge, Rows: 2, Inserted: 1, Expired: 1},
		}},
	}

	var buf bytes.Buffer
	PrintSummary(&buf, res)
	out := buf.String()

	for _, want := range []string{
		"Run run-1: success in 1.5s",
		StageExtract,
		warehouse.StatusSkipped,
		transform.TableFactSales,
		transform.TableMartCategoryAnalysis,
		"Total revenue: 630.00",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected summary to contain %q, got:\n%s", want, out)
		}
	}
}

func TestPrintSummaryWithoutTransform(t *testing.T) {
	res := &Result{RunID: "run-2", Status: warehouse.StatusFailed}

	var buf bytes.Buffer
	PrintSummary(&buf, res)
	if strings.Contains(buf.String(), "Total revenue") {
		t.Error("Expected no table section without a transform result")
	}
}
