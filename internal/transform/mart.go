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
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pgEdge/pgedge-retail-etl/internal/logging"
)

// Gender labels used for the revenue split.
const (
	GenderFemale = "Female"
	GenderMale   = "Male"
)

// round2 rounds half away from zero to two decimal places.
func round2(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

func pct(part, whole decimal.Decimal) float64 {
	return part.Div(whole).Mul(decimal.NewFromInt(100)).Round(2).InexactFloat64()
}

// SalesPerformanceRow is one month of mart_sales_performance.
type SalesPerformanceRow struct {
	Year              int
	Month             int
	MonthName         string
	TotalRevenue      float64
	TotalTransactions int64
	TotalQuantity     int64
	AvgOrderValue     float64
	UniqueCustomers   int64
	RevenuePrevMonth  *float64
	RevenueGrowthPct  *float64
	GeneratedAt       time.Time
}

// SalesPerformanceMart is the mart_sales_performance table.
type SalesPerformanceMart struct {
	Records []SalesPerformanceRow
}

var salesPerformanceColumns = []Column{
	{Name: "year", Type: Integer, PrimaryKey: true},
	{Name: "month", Type: Integer, PrimaryKey: true},
	{Name: "month_name", Type: String},
	{Name: "total_revenue", Type: Float},
	{Name: "total_transactions", Type: Integer},
	{Name: "total_quantity", Type: Integer},
	{Name: "avg_order_value", Type: Float},
	{Name: "unique_customers", Type: Integer},
	{Name: "revenue_prev_month", Type: Float},
	{Name: "revenue_growth_pct", Type: Float},
	{Name: "_mart_generated_at", Type: Timestamp},
}

func (m *SalesPerformanceMart) Name() string      { return TableMartSalesPerformance }
func (m *SalesPerformanceMart) Columns() []Column { return salesPerformanceColumns }
func (m *SalesPerformanceMart) Len() int          { return len(m.Records) }

func (m *SalesPerformanceMart) Rows() [][]any {
	out := make([][]any, len(m.Records))
	for i, r := range m.Records {
		out[i] = []any{
			int64(r.Year), int64(r.Month), r.MonthName, r.TotalRevenue,
			r.TotalTransactions, r.TotalQuantity, r.AvgOrderValue,
			r.UniqueCustomers, nullable(r.RevenuePrevMonth),
			nullable(r.RevenueGrowthPct), r.GeneratedAt,
		}
	}
	return out
}

// salesAgg accumulates one group of fact rows.
type salesAgg struct {
	revenue      decimal.Decimal
	priceSum     decimal.Decimal
	rows         int64
	quantity     int64
	ageSum       int64
	transactions map[int64]struct{}
	customers    map[string]struct{}
	female, male decimal.Decimal
}

func newSalesAgg() *salesAgg {
	return &salesAgg{
		transactions: make(map[int64]struct{}),
		customers:    make(map[string]struct{}),
	}
}

func (a *salesAgg) add(r FactRow) {
	amount := decimal.NewFromFloat(r.TotalAmount)
	a.revenue = a.revenue.Add(amount)
	a.priceSum = a.priceSum.Add(decimal.NewFromFloat(r.PricePerUnit))
	a.rows++
	a.quantity += r.Quantity
	a.ageSum += int64(r.Age)
	a.transactions[r.TransactionID] = struct{}{}
	a.customers[r.CustomerID] = struct{}{}
	switch r.Gender {
	case GenderFemale:
		a.female = a.female.Add(amount)
	case GenderMale:
		a.male = a.male.Add(amount)
	}
}

func (a *salesAgg) mean(sum decimal.Decimal) float64 {
	if a.rows == 0 {
		return 0
	}
	return sum.Div(decimal.NewFromInt(a.rows)).Round(2).InexactFloat64()
}

// BuildMartSalesPerformance aggregates the fact table per calendar month
// via dim_date and computes month-over-month revenue growth. Growth is
// null for the first month and when the previous month had no revenue.
func BuildMartSalesPerformance(fact *FactSales, dates *DateDim, generatedAt time.Time) *SalesPerformanceMart {
	byKey := make(map[int64]DateRow, len(dates.Records))
	for _, d := range dates.Records {
		byKey[d.DateKey] = d
	}

	type ym struct{ year, month int }
	groups := make(map[ym]*salesAgg)
	names := make(map[ym]string)
	for _, r := range fact.Records {
		d, ok := byKey[r.DateKey]
		if !ok {
			continue
		}
		k := ym{d.Year, d.Month}
		a, ok := groups[k]
		if !ok {
			a = newSalesAgg()
			groups[k] = a
			names[k] = d.MonthName
		}
		a.add(r)
	}

	months := make([]ym, 0, len(groups))
	for k := range groups {
		months = append(months, k)
	}
	sort.Slice(months, func(i, j int) bool {
		if months[i].year != months[j].year {
			return months[i].year < months[j].year
		}
		return months[i].month < months[j].month
	})

	mart := &SalesPerformanceMart{Records: make([]SalesPerformanceRow, 0, len(months))}
	var prev *decimal.Decimal
	for _, k := range months {
		a := groups[k]
		row := SalesPerformanceRow{
			Year:              k.year,
			Month:             k.month,
			MonthName:         names[k],
			TotalRevenue:      a.revenue.Round(2).InexactFloat64(),
			TotalTransactions: int64(len(a.transactions)),
			TotalQuantity:     a.quantity,
			AvgOrderValue:     a.mean(a.revenue),
			UniqueCustomers:   int64(len(a.customers)),
			GeneratedAt:       generatedAt,
		}
		if prev != nil {
			p := prev.Round(2).InexactFloat64()
			row.RevenuePrevMonth = &p
			if !prev.IsZero() {
				g := pct(a.revenue.Sub(*prev), *prev)
				row.RevenueGrowthPct = &g
			}
		}
		rev := a.revenue
		prev = &rev
		mart.Records = append(mart.Records, row)
	}

	logging.Info().Int("rows", len(mart.Records)).Msg("Built mart_sales_performance")
	return mart
}

// CategoryAnalysisRow is one category of mart_category_analysis.
type CategoryAnalysisRow struct {
	ProductCategory   string
	CategoryName      *string
	CategoryGroup     *string
	TotalRevenue      float64
	TotalTransactions int64
	TotalQuantity     int64
	AvgPrice          float64
	AvgOrderValue     float64
	UniqueCustomers   int64
	AvgCustomerAge    float64
	RevenueSharePct   float64
	FemaleRevenuePct  *float64
	MaleRevenuePct    *float64
	GeneratedAt       time.Time
}

// CategoryAnalysisMart is the mart_category_analysis table.
type CategoryAnalysisMart struct {
	Records []CategoryAnalysisRow
}

var categoryAnalysisColumns = []Column{
	{Name: "product_category", Type: String, PrimaryKey: true},
	{Name: "category_name", Type: String},
	{Name: "category_group", Type: String},
	{Name: "total_revenue", Type: Float},
	{Name: "total_transactions", Type: Integer},
	{Name: "total_quantity", Type: Integer},
	{Name: "avg_price", Type: Float},
	{Name: "avg_order_value", Type: Float},
	{Name: "unique_customers", Type: Integer},
	{Name: "avg_customer_age", Type: Float},
	{Name: "revenue_share_pct", Type: Float},
	{Name: "female_revenue_pct", Type: Float},
	{Name: "male_revenue_pct", Type: Float},
	{Name: "_mart_generated_at", Type: Timestamp},
}

func (m *CategoryAnalysisMart) Name() string      { return TableMartCategoryAnalysis }
func (m *CategoryAnalysisMart) Columns() []Column { return categoryAnalysisColumns }
func (m *CategoryAnalysisMart) Len() int          { return len(m.Records) }

func (m *CategoryAnalysisMart) Rows() [][]any {
	out := make([][]any, len(m.Records))
	for i, r := range m.Records {
		out[i] = []any{
			r.ProductCategory, nullable(r.CategoryName), nullable(r.CategoryGroup),
			r.TotalRevenue, r.TotalTransactions, r.TotalQuantity, r.AvgPrice,
			r.AvgOrderValue, r.UniqueCustomers, r.AvgCustomerAge,
			r.RevenueSharePct, nullable(r.FemaleRevenuePct),
			nullable(r.MaleRevenuePct), r.GeneratedAt,
		}
	}
	return out
}

// BuildMartCategoryAnalysis aggregates the fact table per category. The
// female/male split is computed when the category has female or male
// revenue; otherwise both fields stay null. Rows are ordered by revenue,
// highest first.
func BuildMartCategoryAnalysis(fact *FactSales, categories *CategoryDim, generatedAt time.Time) *CategoryAnalysisMart {
	groups := make(map[string]*salesAgg)
	var order []string
	total := decimal.Zero
	for _, r := range fact.Records {
		a, ok := groups[r.ProductCategory]
		if !ok {
			a = newSalesAgg()
			groups[r.ProductCategory] = a
			order = append(order, r.ProductCategory)
		}
		a.add(r)
		total = total.Add(decimal.NewFromFloat(r.TotalAmount))
	}

	mart := &CategoryAnalysisMart{Records: make([]CategoryAnalysisRow, 0, len(order))}
	for _, name := range order {
		a := groups[name]
		row := CategoryAnalysisRow{
			ProductCategory:   name,
			TotalRevenue:      a.revenue.Round(2).InexactFloat64(),
			TotalTransactions: int64(len(a.transactions)),
			TotalQuantity:     a.quantity,
			AvgPrice:          a.mean(a.priceSum),
			AvgOrderValue:     a.mean(a.revenue),
			UniqueCustomers:   int64(len(a.customers)),
			AvgCustomerAge:    a.mean(decimal.NewFromInt(a.ageSum)),
			GeneratedAt:       generatedAt,
		}
		if !total.IsZero() {
			row.RevenueSharePct = pct(a.revenue, total)
		}
		if split := a.female.Add(a.male); split.IsPositive() {
			f := pct(a.female, split)
			m := round2(100 - f)
			row.FemaleRevenuePct = &f
			row.MaleRevenuePct = &m
		}
		if categories != nil {
			if c, ok := categories.Lookup(name); ok {
				cn, cg := c.CategoryName, c.CategoryGroup
				row.CategoryName = &cn
				row.CategoryGroup = &cg
			}
		}
		mart.Records = append(mart.Records, row)
	}

	sort.SliceStable(mart.Records, func(i, j int) bool {
		ri, rj := mart.Records[i], mart.Records[j]
		if ri.TotalRevenue != rj.TotalRevenue {
			return ri.TotalRevenue > rj.TotalRevenue
		}
		return strings.Compare(ri.ProductCategory, rj.ProductCategory) < 0
	})

	logging.Info().Int("rows", len(mart.Records)).Msg("Built mart_category_analysis")
	return mart
}
