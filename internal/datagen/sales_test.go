package datagen

import (
	"bytes"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pgEdge/pgedge-retail-etl/internal/extract"
	"github.com/pgEdge/pgedge-retail-etl/internal/transform"
)

func testSalesConfig(rows int, dirty float64) SalesConfig {
	return SalesConfig{
		Rows:       rows,
		Customers:  50,
		Start:      time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
		End:        time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC),
		DirtyRatio: dirty,
	}
}

func TestSalesGeneratorCleanRows(t *testing.T) {
	g := NewSalesGenerator(NewFakerWithSeed(1), testSalesConfig(200, 0))

	var buf bytes.Buffer
	stats, err := g.Write(context.Background(), "sales.csv", &buf)
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if stats.Rows != 200 {
		t.Errorf("Expected 200 rows, got %d", stats.Rows)
	}
	if len(stats.Defects) != 0 {
		t.Errorf("Expected no defects, got %v", stats.Defects)
	}

	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("Failed to parse output: %v", err)
	}
	if len(records) != 201 {
		t.Fatalf("Expected header plus 200 rows, got %d", len(records))
	}
	if strings.Join(records[0], ",") != strings.Join(SalesHeader, ",") {
		t.Errorf("Unexpected header: %v", records[0])
	}

	profiles := make(map[string]string)
	for _, rec := range records[1:] {
		d, err := time.Parse("2006-01-02", rec[1])
		if err != nil {
			t.Fatalf("Invalid date %q", rec[1])
		}
		if d.Year() != 2023 {
			t.Errorf("Date %s outside 2023", rec[1])
		}
		key := rec[3] + "/" + rec[4]
		if prev, ok := profiles[rec[2]]; ok && prev != key {
			t.Errorf("Customer %s changed profile from %s to %s", rec[2], prev, key)
		}
		profiles[rec[2]] = key
	}
	if len(profiles) > 50 {
		t.Errorf("Expected at most 50 customers, got %d", len(profiles))
	}
}

func TestSalesGeneratorDeterministic(t *testing.T) {
	var a, b bytes.Buffer
	if _, err := NewSalesGenerator(NewFakerWithSeed(99), testSalesConfig(100, 0.1)).Write(context.Background(), "a", &a); err != nil {
		t.Fatal(err)
	}
	if _, err := NewSalesGenerator(NewFakerWithSeed(99), testSalesConfig(100, 0.1)).Write(context.Background(), "b", &b); err != nil {
		t.Fatal(err)
	}
	if a.String() != b.String() {
		t.Error("Same seed produced different files")
	}
}

func TestSalesGeneratorDefectsMatchCleaning(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sales.csv")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	stats, err := NewSalesGenerator(NewFakerWithSeed(42), testSalesConfig(2000, 0.2)).Write(context.Background(), path, f)
	f.Close()
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if stats.Dropped() == 0 {
		t.Fatal("Expected some dropping defects")
	}

	raw, err := extract.ReadSalesCSV(path, time.Now())
	if err != nil {
		t.Fatalf("ReadSalesCSV failed: %v", err)
	}
	report := transform.NewDropReport()
	clean, err := transform.CleanSalesTable(raw, transform.DefaultConfig(), report)
	if err != nil {
		t.Fatalf("CleanSalesTable failed: %v", err)
	}

	if got, want := len(clean.Records), stats.Rows-stats.Dropped(); got != want {
		t.Errorf("Expected %d clean rows, got %d", want, got)
	}
	if got := report.Count(transform.TableStgRetailSales, transform.DropInvalidDate); got != stats.Defects[DefectBadDate] {
		t.Errorf("Expected %d invalid dates, got %d", stats.Defects[DefectBadDate], got)
	}
	if got := report.AmountDiscrepancies; got != stats.Defects[DefectWrongTotal] {
		t.Errorf("Expected %d amount discrepancies, got %d", stats.Defects[DefectWrongTotal], got)
	}
	for _, r := range clean.Records {
		if r.Age < 18 || r.Age > 100 {
			t.Errorf("Expected clamped age, got %d", r.Age)
		}
	}
}

func TestSalesGeneratorCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var buf bytes.Buffer
	if _, err := NewSalesGenerator(NewFaker(), testSalesConfig(5000, 0)).Write(ctx, "x", &buf); err == nil {
		t.Error("Expected error for cancelled context")
	}
}

func TestDefectDropping(t *testing.T) {
	tests := []struct {
		defect Defect
		want   bool
	}{
		{DefectBadDate, true},
		{DefectNonPositiveQuantity, true},
		{DefectNonNumericPrice, true},
		{DefectAgeOutOfRange, false},
		{DefectWrongTotal, false},
	}
	for _, tt := range tests {
		if got := tt.defect.Dropping(); got != tt.want {
			t.Errorf("%s.Dropping() = %v, expected %v", tt.defect, got, tt.want)
		}
	}
}

func TestSalesGeneratorWithProfile(t *testing.T) {
	profile, err := GetProfile("retail-seasonal")
	if err != nil {
		t.Fatal(err)
	}
	cfg := testSalesConfig(3000, 0)
	cfg.Profile = profile

	var buf bytes.Buffer
	if _, err := NewSalesGenerator(NewFakerWithSeed(8), cfg).Write(context.Background(), "s", &buf); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatal(err)
	}

	months := make(map[time.Month]int)
	for _, rec := range records[1:] {
		d, err := time.Parse("2006-01-02", rec[1])
		if err != nil {
			t.Fatalf("Invalid date %q", rec[1])
		}
		months[d.Month()]++
	}
	if months[time.December] <= months[time.January] {
		t.Errorf("Expected more December than January sales, got %d and %d",
			months[time.December], months[time.January])
	}
}
