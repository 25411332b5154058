//-------------------------------------------------------------------------
//
// pgEdge Retail ETL
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package transform

import (
	"math"
	"strconv"
	"time"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/pgEdge/pgedge-retail-etl/internal/logging"
)

// Required columns after name normalization.
var (
	requiredSalesColumns = []string{
		"transaction_id", "date", "customer_id", "gender", "age",
		"product_category", "quantity", "price_per_unit", "total_amount",
	}
	requiredProductColumns = []string{"id", "title", "price", "category"}
)

// Extraction metadata columns.
const (
	ColExtractedAt = "_extracted_at"
	ColSource      = "_source"
)

// amountTolerance is the largest difference between the source total and
// quantity * price_per_unit that is not counted as a discrepancy.
const amountTolerance = 1e-6

// SalesRow is a cleaned retail sales record.
type SalesRow struct {
	TransactionID   int64
	Date            time.Time
	CustomerID      string
	Gender          string
	Age             int
	ProductCategory string
	Quantity        int64
	PricePerUnit    float64
	TotalAmount     float64
	RowHash         string
	ExtractedAt     *time.Time
	Source          string
}

// ProductRow is a cleaned catalog product.
type ProductRow struct {
	APIProductID    int64
	ProductName     string
	APIPrice        *float64
	Description     string
	ProductCategory string
	ImageURL        string
	RatingRate      *float64
	RatingCount     *int64
	ExtractedAt     *time.Time
	Source          string
}

// CleanSales holds the surviving sales rows in input order.
type CleanSales struct {
	Records []SalesRow
}

// CleanProducts holds the surviving catalog rows in input order.
type CleanProducts struct {
	Records []ProductRow
}

// titleCaser returns a fresh Caser; a Caser is not safe for concurrent
// use.
func titleCaser() cases.Caser {
	return cases.Title(language.Und)
}

// CleanSalesTable validates and normalizes the raw sales table. Rows that
// fail validation are dropped and tallied in report; the call only fails
// when a required column is missing.
func CleanSalesTable(raw *RawTable, cfg Config, report *DropReport) (*CleanSales, error) {
	if raw == nil {
		return nil, &DataError{Table: SourceRetailSales, Reason: "input is missing", Err: ErrEmptyInput}
	}
	idx := indexColumns(raw.Header)
	if err := idx.require(SourceRetailSales, requiredSalesColumns...); err != nil {
		return nil, err
	}

	title := titleCaser()
	out := &CleanSales{Records: make([]SalesRow, 0, len(raw.Rows))}
	for _, rec := range raw.Rows {
		date, ok := parseDate(idx.get(rec, "date"), cfg.DateLayouts)
		if !ok {
			report.Add(TableStgRetailSales, DropInvalidDate)
			continue
		}
		txID, err := parseInt(idx.get(rec, "transaction_id"))
		if err != nil {
			report.Add(TableStgRetailSales, DropInvalidTransactionID)
			continue
		}
		qty, qerr := parseInt(idx.get(rec, "quantity"))
		price, perr := parseNumber(idx.get(rec, "price_per_unit"))
		if qerr != nil || perr != nil {
			report.Add(TableStgRetailSales, DropNonNumericMeasure)
			continue
		}
		if qty <= 0 {
			report.Add(TableStgRetailSales, DropNonPositiveQuantity)
			continue
		}
		ageVal, err := parseNumber(idx.get(rec, "age"))
		if err != nil {
			report.Add(TableStgRetailSales, DropInvalidAge)
			continue
		}

		total := float64(qty) * price
		if src, err := parseNumber(idx.get(rec, "total_amount")); err != nil || math.Abs(src-total) > amountTolerance {
			report.AmountDiscrepancies++
		}

		customerID := idx.get(rec, "customer_id")
		row := SalesRow{
			TransactionID:   txID,
			Date:            date,
			CustomerID:      customerID,
			Gender:          title.String(idx.get(rec, "gender")),
			Age:             clampInt(int(ageVal), cfg.MinAge, cfg.MaxAge),
			ProductCategory: title.String(idx.get(rec, "product_category")),
			Quantity:        qty,
			PricePerUnit:    price,
			TotalAmount:     total,
			RowHash:         salesRowHash(txID, date, customerID),
			ExtractedAt:     parseTimestamp(idx.get(rec, ColExtractedAt)),
			Source:          idx.get(rec, ColSource),
		}
		out.Records = append(out.Records, row)
	}

	dropped := report.Total(TableStgRetailSales)
	if dropped > 0 {
		logging.Warn().
			Int("dropped", dropped).
			Int("invalid_dates", report.Count(TableStgRetailSales, DropInvalidDate)).
			Int("non_positive_quantity", report.Count(TableStgRetailSales, DropNonPositiveQuantity)).
			Msg("Dropped invalid sales rows")
	}
	if report.AmountDiscrepancies > 0 {
		logging.Warn().Int("rows", report.AmountDiscrepancies).
			Msg("Recomputed total_amount where source value disagreed")
	}
	logging.Info().Int("rows", len(out.Records)).Msg("Cleaned retail sales")
	return out, nil
}

// CleanProductsTable validates and normalizes the raw catalog table.
// A nil table is treated as an empty catalog.
func CleanProductsTable(raw *RawTable, cfg Config, report *DropReport) (*CleanProducts, error) {
	out := &CleanProducts{}
	if raw == nil || len(raw.Header) == 0 {
		return out, nil
	}
	idx := indexColumns(raw.Header)
	if err := idx.require(SourceAPIProducts, requiredProductColumns...); err != nil {
		return nil, err
	}

	title := titleCaser()
	out.Records = make([]ProductRow, 0, len(raw.Rows))
	for _, rec := range raw.Rows {
		id, err := parseInt(idx.get(rec, "id"))
		if err != nil {
			report.Add(TableStgAPIProducts, DropInvalidProductID)
			continue
		}
		row := ProductRow{
			APIProductID:    id,
			ProductName:     idx.get(rec, "title"),
			APIPrice:        parseOptionalNumber(idx.get(rec, "price")),
			Description:     idx.get(rec, "description"),
			ProductCategory: title.String(idx.get(rec, "category")),
			ImageURL:        idx.get(rec, "image"),
			ExtractedAt:     parseTimestamp(idx.get(rec, ColExtractedAt)),
			Source:          idx.get(rec, ColSource),
		}
		if truncated, ok := truncateRunes(row.Description, cfg.DescriptionMaxLength); ok {
			row.Description = truncated
			report.DescriptionTruncated++
		}
		if r := parseOptionalNumber(idx.get(rec, "rating_rate")); r != nil {
			v := math.Min(math.Max(*r, 0), 5)
			row.RatingRate = &v
		}
		if c := parseOptionalNumber(idx.get(rec, "rating_count")); c != nil {
			v := int64(math.Max(*c, 0))
			row.RatingCount = &v
		}
		out.Records = append(out.Records, row)
	}

	if n := report.Total(TableStgAPIProducts); n > 0 {
		logging.Warn().Int("dropped", n).Msg("Dropped catalog products with invalid ids")
	}
	logging.Info().Int("rows", len(out.Records)).Msg("Cleaned catalog products")
	return out, nil
}

func parseDate(s string, layouts []string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func parseTimestamp(s string) *time.Time {
	if s == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339Nano, hashTimeLayout} {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

// parseNumber parses a finite float.
func parseNumber(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, strconv.ErrSyntax
	}
	return v, nil
}

func parseOptionalNumber(s string) *float64 {
	v, err := parseNumber(s)
	if err != nil {
		return nil
	}
	return &v
}

// parseInt accepts integers and integral floats such as "3.0".
func parseInt(s string) (int64, error) {
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return v, nil
	}
	f, err := parseNumber(s)
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) || math.Abs(f) > math.MaxInt64/2 {
		return 0, strconv.ErrSyntax
	}
	return int64(f), nil
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// truncateRunes cuts s to at most n runes. The bool reports whether s
// was shortened.
func truncateRunes(s string, n int) (string, bool) {
	if utf8.RuneCountInString(s) <= n {
		return s, false
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos], true
		}
		i++
	}
	return s, false
}
