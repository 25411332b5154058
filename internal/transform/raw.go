package transform

import (
	"strings"
)

// Input keys of the raw table set.
const (
	SourceRetailSales   = "retail_sales"
	SourceAPIProducts   = "api_products"
	SourceAPICategories = "api_categories"
)

// RawTable is an untyped table as produced by extraction: a header and
// string cells. Empty cells are treated as missing values.
type RawTable struct {
	Header []string
	Rows   [][]string
}

// NewRawTable returns a table with the given header and no rows.
func NewRawTable(header ...string) *RawTable {
	return &RawTable{Header: header}
}

// Append adds a row. Short rows are padded with empty cells and cells
// beyond the header are discarded.
func (t *RawTable) Append(cells ...string) {
	if len(cells) != len(t.Header) {
		fitted := make([]string, len(t.Header))
		copy(fitted, cells)
		cells = fitted
	}
	t.Rows = append(t.Rows, cells)
}

// AddColumn appends a column holding the same value in every row.
func (t *RawTable) AddColumn(name, value string) {
	t.Header = append(t.Header, name)
	for i := range t.Rows {
		t.Rows[i] = append(t.Rows[i], value)
	}
}

// Len returns the number of data rows.
func (t *RawTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Extracted is the input of TransformAll.
type Extracted struct {
	RetailSales   *RawTable
	APIProducts   *RawTable
	APICategories []string
}

// NormalizeColumnName lowercases a column name, trims it and replaces
// spaces with underscores.
func NormalizeColumnName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	return strings.Join(strings.Fields(name), "_")
}

// columnIndex maps normalized column names to their position.
type columnIndex map[string]int

func indexColumns(header []string) columnIndex {
	idx := make(columnIndex, len(header))
	for i, h := range header {
		n := NormalizeColumnName(h)
		if _, dup := idx[n]; !dup {
			idx[n] = i
		}
	}
	return idx
}

// require returns a DataError naming the first missing column.
func (idx columnIndex) require(table string, cols ...string) error {
	for _, c := range cols {
		if _, ok := idx[c]; !ok {
			return &DataError{Table: table, Column: c, Reason: "required column is missing"}
		}
	}
	return nil
}

// get returns the trimmed cell for a column, or "" when the column is
// absent or the row is short.
func (idx columnIndex) get(row []string, col string) string {
	i, ok := idx[col]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}
