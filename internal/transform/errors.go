package transform

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrEmptyInput is wrapped by DataError when a required input has no rows.
var ErrEmptyInput = errors.New("empty input")

// DataError reports structurally invalid input: a missing required
// column or an empty required table. It is fatal for the run.
type DataError struct {
	Table  string
	Column string
	Reason string
	Err    error
}

func (e *DataError) Error() string {
	var b strings.Builder
	b.WriteString("data error")
	if e.Table != "" {
		b.WriteString(" in ")
		b.WriteString(e.Table)
	}
	if e.Column != "" {
		fmt.Fprintf(&b, " (column %q)", e.Column)
	}
	b.WriteString(": ")
	b.WriteString(e.Reason)
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *DataError) Unwrap() error {
	return e.Err
}

// IsDataError reports whether err is or wraps a *DataError.
func IsDataError(err error) bool {
	var de *DataError
	return errors.As(err, &de)
}

// DropReason names why a raw row was excluded during cleaning.
type DropReason string

// Drop reasons recorded by the cleaning step.
const (
	DropInvalidDate          DropReason = "invalid_date"
	DropInvalidTransactionID DropReason = "invalid_transaction_id"
	DropNonNumericMeasure    DropReason = "non_numeric_measure"
	DropNonPositiveQuantity  DropReason = "non_positive_quantity"
	DropInvalidAge           DropReason = "invalid_age"
	DropInvalidProductID     DropReason = "invalid_product_id"
)

// DropReport tallies rows removed by cleaning, per table and reason, plus
// rows whose source total_amount disagreed with quantity * price_per_unit.
type DropReport struct {
	Dropped              map[string]map[DropReason]int
	AmountDiscrepancies  int
	InvalidDates         int
	DescriptionTruncated int
}

// NewDropReport returns an empty report.
func NewDropReport() *DropReport {
	return &DropReport{Dropped: make(map[string]map[DropReason]int)}
}

// Add records one dropped row.
func (r *DropReport) Add(table string, reason DropReason) {
	m, ok := r.Dropped[table]
	if !ok {
		m = make(map[DropReason]int)
		r.Dropped[table] = m
	}
	m[reason]++
	if reason == DropInvalidDate {
		r.InvalidDates++
	}
}

// Total returns the number of dropped rows for a table.
func (r *DropReport) Total(table string) int {
	total := 0
	for _, n := range r.Dropped[table] {
		total += n
	}
	return total
}

// Count returns the number of rows dropped for a table and reason.
func (r *DropReport) Count(table string, reason DropReason) int {
	return r.Dropped[table][reason]
}

// Merge adds the counts of other into r.
func (r *DropReport) Merge(other *DropReport) {
	if other == nil {
		return
	}
	for table, reasons := range other.Dropped {
		for reason, n := range reasons {
			if r.Dropped[table] == nil {
				r.Dropped[table] = make(map[DropReason]int)
			}
			r.Dropped[table][reason] += n
		}
	}
	r.AmountDiscrepancies += other.AmountDiscrepancies
	r.InvalidDates += other.InvalidDates
	r.DescriptionTruncated += other.DescriptionTruncated
}

// Reasons returns the reasons recorded for a table in sorted order.
func (r *DropReport) Reasons(table string) []DropReason {
	reasons := make([]DropReason, 0, len(r.Dropped[table]))
	for reason := range r.Dropped[table] {
		reasons = append(reasons, reason)
	}
	sort.Slice(reasons, func(i, j int) bool { return reasons[i] < reasons[j] })
	return reasons
}

// LinkReport counts fact rows whose foreign keys could not be resolved
// against this run's dimensions. Such rows keep a null key.
type LinkReport struct {
	CustomerMisses int
	CategoryMisses int
	DateMisses     int
}
