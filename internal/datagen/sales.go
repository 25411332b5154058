package datagen

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"
)

// SalesHeader is the column layout of the retail sales file.
var SalesHeader = []string{
	"Transaction ID", "Date", "Customer ID", "Gender", "Age",
	"Product Category", "Quantity", "Price per Unit", "Total Amount",
}

// Defect is a deliberate data quality problem planted in a sales row.
type Defect string

const (
	DefectBadDate             Defect = "bad_date"
	DefectNonPositiveQuantity Defect = "non_positive_quantity"
	DefectNonNumericPrice     Defect = "non_numeric_price"
	DefectAgeOutOfRange       Defect = "age_out_of_range"
	DefectWrongTotal          Defect = "wrong_total"
)

// Defects lists every defect kind.
var Defects = []Defect{
	DefectBadDate,
	DefectNonPositiveQuantity,
	DefectNonNumericPrice,
	DefectAgeOutOfRange,
	DefectWrongTotal,
}

// Dropping reports whether cleaning removes rows with this defect.
func (d Defect) Dropping() bool {
	switch d {
	case DefectBadDate, DefectNonPositiveQuantity, DefectNonNumericPrice:
		return true
	}
	return false
}

var (
	salesCategories = []string{"Clothing", "Electronics", "Beauty"}
	categoryWeights = []int{35, 34, 31}
	unitPrices      = []float64{25, 30, 50, 300, 500}
	genders         = []string{"Female", "Male"}
	badDates        = []string{"", "2023-13-45", "not a date"}
)

// SalesConfig configures a SalesGenerator.
type SalesConfig struct {
	Rows       int
	Customers  int
	Start      time.Time
	End        time.Time
	DirtyRatio float64

	// Profile weights sale days. Nil spreads them evenly.
	Profile Profile

	// ProgressInterval is how often progress is logged, in rows.
	ProgressInterval int64
}

// SalesStats describes a generated file.
type SalesStats struct {
	Rows    int
	Defects map[Defect]int
}

// Dropped returns the number of rows cleaning is expected to remove.
func (s SalesStats) Dropped() int {
	n := 0
	for d, c := range s.Defects {
		if d.Dropping() {
			n += c
		}
	}
	return n
}

type customerProfile struct {
	id     string
	gender string
	age    int
}

// SalesGenerator writes retail sales files. Each customer keeps the same
// gender and age across their transactions.
type SalesGenerator struct {
	faker     *Faker
	cfg       SalesConfig
	customers []customerProfile
}

// NewSalesGenerator creates a generator and its customer population.
func NewSalesGenerator(f *Faker, cfg SalesConfig) *SalesGenerator {
	if cfg.Customers < 1 {
		cfg.Customers = 1
	}
	customers := make([]customerProfile, cfg.Customers)
	for i := range customers {
		customers[i] = customerProfile{
			id:     fmt.Sprintf("CUST%03d", i+1),
			gender: Choose(f, genders),
			age:    f.Int(18, 64),
		}
	}
	return &SalesGenerator{faker: f, cfg: cfg, customers: customers}
}

// Write writes the header and cfg.Rows sales rows as CSV.
func (g *SalesGenerator) Write(ctx context.Context, name string, w io.Writer) (SalesStats, error) {
	stats := SalesStats{Defects: make(map[Defect]int)}
	progress := NewProgressReporter(name, int64(g.cfg.Rows), g.cfg.ProgressInterval)

	cw := csv.NewWriter(w)
	if err := cw.Write(SalesHeader); err != nil {
		return stats, fmt.Errorf("failed to write header: %w", err)
	}

	for i := 1; i <= g.cfg.Rows; i++ {
		if i%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return stats, err
			}
		}
		record, defect := g.row(i)
		if defect != "" {
			stats.Defects[defect]++
		}
		if err := cw.Write(record); err != nil {
			return stats, fmt.Errorf("failed to write row %d: %w", i, err)
		}
		stats.Rows++
		progress.Update(1)
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return stats, fmt.Errorf("failed to flush sales file: %w", err)
	}
	progress.Done()
	return stats, nil
}

func (g *SalesGenerator) row(id int) ([]string, Defect) {
	f := g.faker
	c := Choose(f, g.customers)

	date := pickDay(f, g.cfg.Profile, g.cfg.Start, g.cfg.End).Format("2006-01-02")
	qty := f.Int(1, 4)
	price := Choose(f, unitPrices)
	age := strconv.Itoa(c.age)

	priceStr := formatAmount(price)
	totalStr := formatAmount(float64(qty) * price)
	qtyStr := strconv.Itoa(qty)

	var defect Defect
	if f.Chance(g.cfg.DirtyRatio) {
		defect = Choose(f, Defects)
		switch defect {
		case DefectBadDate:
			date = Choose(f, badDates)
		case DefectNonPositiveQuantity:
			q := -f.Int(0, 2)
			qtyStr = strconv.Itoa(q)
			totalStr = formatAmount(float64(q) * price)
		case DefectNonNumericPrice:
			priceStr = "N/A"
		case DefectAgeOutOfRange:
			age = Choose(f, []string{"5", "150"})
		case DefectWrongTotal:
			totalStr = formatAmount(float64(qty)*price + 10)
		}
	}

	return []string{
		strconv.Itoa(id),
		date,
		c.id,
		c.gender,
		age,
		ChooseWeighted(f, salesCategories, categoryWeights),
		qtyStr,
		priceStr,
		totalStr,
	}, defect
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
