//-------------------------------------------------------------------------
//
// pgEdge Retail ETL
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package transform

import "time"

// Output table names. These are the keys of the table set handed to the
// loader and the names of the warehouse tables.
const (
	TableStgRetailSales       = "stg_retail_sales"
	TableStgAPIProducts       = "stg_api_products"
	TableDimDate              = "dim_date"
	TableDimCustomer          = "dim_customer"
	TableDimProduct           = "dim_product"
	TableDimProductCategory   = "dim_product_category"
	TableFactSales            = "fact_sales"
	TableMartSalesPerformance = "mart_sales_performance"
	TableMartCategoryAnalysis = "mart_category_analysis"
)

// TableNames lists the output tables in load order.
var TableNames = []string{
	TableStgRetailSales,
	TableStgAPIProducts,
	TableDimDate,
	TableDimCustomer,
	TableDimProduct,
	TableDimProductCategory,
	TableFactSales,
	TableMartSalesPerformance,
	TableMartCategoryAnalysis,
}

// ColumnType is the warehouse type of an output column.
type ColumnType string

// Column types supported by the warehouse loader.
const (
	Integer   ColumnType = "integer"
	String    ColumnType = "string"
	Float     ColumnType = "float"
	Timestamp ColumnType = "timestamp"
	Date      ColumnType = "date"
	Boolean   ColumnType = "boolean"
)

// Column describes one column of an output table.
type Column struct {
	Name       string
	Type       ColumnType
	PrimaryKey bool
}

// Table is a typed, column-oriented view over an output table.
// Rows returns one []any per row, ordered like Columns. Nullable values
// are represented by nil pointers.
type Table interface {
	Name() string
	Columns() []Column
	Len() int
	Rows() [][]any
}

// TableSet maps table name to table. It is the unit handed to Load.
type TableSet map[string]Table

// RowCounts returns the number of rows per table.
func (s TableSet) RowCounts() map[string]int {
	counts := make(map[string]int, len(s))
	for name, t := range s {
		counts[name] = t.Len()
	}
	return counts
}

// Ordered returns the tables in TableNames order, skipping absent ones.
func (s TableSet) Ordered() []Table {
	out := make([]Table, 0, len(s))
	for _, name := range TableNames {
		if t, ok := s[name]; ok {
			out = append(out, t)
		}
	}
	return out
}

// ColumnNames returns the column names of a table.
func ColumnNames(t Table) []string {
	cols := t.Columns()
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}
	return names
}

// SCDEndOfTime is the effective_end_date of a current SCD2 row.
var SCDEndOfTime = time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)
