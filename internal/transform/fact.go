package transform

import (
	"strings"
	"time"

	"github.com/pgEdge/pgedge-retail-etl/internal/logging"
)

// FactRow is one sale in the fact table.
type FactRow struct {
	SalesKey        int64
	TransactionID   int64
	DateKey         int64
	CustomerKey     *int64
	CategoryKey     *int64
	Quantity        int64
	PricePerUnit    float64
	TotalAmount     float64
	CustomerID      string
	ProductCategory string
	Gender          string
	Age             int
	ExtractedAt     *time.Time
	Source          string
	LoadedAt        time.Time
}

// FactSales is the fact_sales table.
type FactSales struct {
	Records []FactRow
}

var factColumns = []Column{
	{Name: "sales_key", Type: Integer, PrimaryKey: true},
	{Name: "transaction_id", Type: Integer},
	{Name: "date_key", Type: Integer},
	{Name: "customer_key", Type: Integer},
	{Name: "category_key", Type: Integer},
	{Name: "quantity", Type: Integer},
	{Name: "price_per_unit", Type: Float},
	{Name: "total_amount", Type: Float},
	{Name: "customer_id", Type: String},
	{Name: "product_category", Type: String},
	{Name: "gender", Type: String},
	{Name: "age", Type: Integer},
	{Name: ColExtractedAt, Type: Timestamp},
	{Name: ColSource, Type: String},
	{Name: "_loaded_at", Type: Timestamp},
}

func (f *FactSales) Name() string      { return TableFactSales }
func (f *FactSales) Columns() []Column { return factColumns }
func (f *FactSales) Len() int          { return len(f.Records) }

func (f *FactSales) Rows() [][]any {
	out := make([][]any, len(f.Records))
	for i, r := range f.Records {
		out[i] = []any{
			r.SalesKey, r.TransactionID, r.DateKey, nullable(r.CustomerKey),
			nullable(r.CategoryKey), r.Quantity, r.PricePerUnit, r.TotalAmount,
			r.CustomerID, r.ProductCategory, r.Gender, int64(r.Age),
			nullable(r.ExtractedAt), r.Source, r.LoadedAt,
		}
	}
	return out
}

// TotalRevenue sums total_amount over all rows.
func (f *FactSales) TotalRevenue() float64 {
	var total float64
	for _, r := range f.Records {
		total += r.TotalAmount
	}
	return total
}

// BuildFactSales links each cleaned sale to this run's dimensions. A
// sale whose customer or category is not found keeps a null key and is
// counted in the returned LinkReport. sales_key follows input order.
func BuildFactSales(sales *CleanSales, customers *CustomerDim, categories *CategoryDim, dates *DateDim, loadedAt time.Time) (*FactSales, LinkReport) {
	var report LinkReport
	customerKeys := customers.KeyMap()
	categoryKeys := categories.KeyMap()
	dateKeys := make(map[int64]bool, len(dates.Records))
	for _, d := range dates.Records {
		dateKeys[d.DateKey] = true
	}

	fact := &FactSales{Records: make([]FactRow, 0, len(sales.Records))}
	for i, s := range sales.Records {
		row := FactRow{
			SalesKey:        int64(i + 1),
			TransactionID:   s.TransactionID,
			DateKey:         DateKey(s.Date),
			Quantity:        s.Quantity,
			PricePerUnit:    s.PricePerUnit,
			TotalAmount:     s.TotalAmount,
			CustomerID:      s.CustomerID,
			ProductCategory: s.ProductCategory,
			Gender:          s.Gender,
			Age:             s.Age,
			ExtractedAt:     s.ExtractedAt,
			Source:          s.Source,
			LoadedAt:        loadedAt,
		}
		if k, ok := customerKeys[s.CustomerID]; ok {
			row.CustomerKey = &k
		} else {
			report.CustomerMisses++
		}
		if k, ok := categoryKeys[strings.ToLower(s.ProductCategory)]; ok {
			row.CategoryKey = &k
		} else {
			report.CategoryMisses++
		}
		if !dateKeys[row.DateKey] {
			report.DateMisses++
		}
		fact.Records = append(fact.Records, row)
	}

	if report.CustomerMisses > 0 || report.CategoryMisses > 0 || report.DateMisses > 0 {
		logging.Warn().
			Int("customer_misses", report.CustomerMisses).
			Int("category_misses", report.CategoryMisses).
			Int("date_misses", report.DateMisses).
			Msg("Fact rows with unresolved dimension keys")
	}
	logging.Info().
		Int("rows", len(fact.Records)).
		Float64("total_revenue", fact.TotalRevenue()).
		Msg("Built fact_sales")
	return fact, report
}
