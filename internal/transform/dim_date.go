package transform

import (
	"time"

	"github.com/pgEdge/pgedge-retail-etl/internal/logging"
)

// DateRow is one calendar day of the date dimension.
type DateRow struct {
	DateKey       int64
	FullDate      time.Time
	Year          int
	Quarter       int
	Month         int
	MonthName     string
	WeekOfYear    int
	DayOfMonth    int
	DayOfWeek     int
	DayName       string
	IsWeekend     bool
	FiscalYear    int
	FiscalQuarter int
	LoadedAt      time.Time
}

// DateDim is the dim_date table.
type DateDim struct {
	Records []DateRow
}

var dateColumns = []Column{
	{Name: "date_key", Type: Integer, PrimaryKey: true},
	{Name: "full_date", Type: Date},
	{Name: "year", Type: Integer},
	{Name: "quarter", Type: Integer},
	{Name: "month", Type: Integer},
	{Name: "month_name", Type: String},
	{Name: "week_of_year", Type: Integer},
	{Name: "day_of_month", Type: Integer},
	{Name: "day_of_week", Type: Integer},
	{Name: "day_name", Type: String},
	{Name: "is_weekend", Type: Boolean},
	{Name: "fiscal_year", Type: Integer},
	{Name: "fiscal_quarter", Type: Integer},
	{Name: "_loaded_at", Type: Timestamp},
}

func (d *DateDim) Name() string      { return TableDimDate }
func (d *DateDim) Columns() []Column { return dateColumns }
func (d *DateDim) Len() int          { return len(d.Records) }

func (d *DateDim) Rows() [][]any {
	out := make([][]any, len(d.Records))
	for i, r := range d.Records {
		out[i] = []any{
			r.DateKey, r.FullDate, int64(r.Year), int64(r.Quarter), int64(r.Month),
			r.MonthName, int64(r.WeekOfYear), int64(r.DayOfMonth), int64(r.DayOfWeek),
			r.DayName, r.IsWeekend, int64(r.FiscalYear), int64(r.FiscalQuarter),
			r.LoadedAt,
		}
	}
	return out
}

// DateKey returns the YYYYMMDD integer key of t.
func DateKey(t time.Time) int64 {
	return int64(t.Year()*10000 + int(t.Month())*100 + t.Day())
}

// BuildDimDate generates one row per day from January 1 of the earliest
// sale year through December 31 of the latest sale year.
func BuildDimDate(sales *CleanSales, cfg Config, loadedAt time.Time) (*DateDim, error) {
	if sales == nil || len(sales.Records) == 0 {
		return nil, &DataError{Table: TableDimDate, Reason: "cannot derive a date range", Err: ErrEmptyInput}
	}

	minYear, maxYear := sales.Records[0].Date.Year(), sales.Records[0].Date.Year()
	for _, r := range sales.Records[1:] {
		y := r.Date.Year()
		if y < minYear {
			minYear = y
		}
		if y > maxYear {
			maxYear = y
		}
	}

	start := time.Date(minYear, time.January, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(maxYear, time.December, 31, 0, 0, 0, 0, time.UTC)

	dim := &DateDim{}
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		dim.Records = append(dim.Records, dateRow(d, cfg.FiscalYearStartMonth, loadedAt))
	}

	logging.Info().
		Str("from", start.Format("2006-01-02")).
		Str("to", end.Format("2006-01-02")).
		Int("rows", len(dim.Records)).
		Msg("Built dim_date")
	return dim, nil
}

func dateRow(d time.Time, fiscalStart int, loadedAt time.Time) DateRow {
	month := int(d.Month())
	_, week := d.ISOWeek()
	// time.Weekday counts from Sunday; the dimension counts from Monday.
	dow := (int(d.Weekday()) + 6) % 7

	fiscalYear := d.Year()
	if fiscalStart > 1 && month >= fiscalStart {
		fiscalYear++
	}

	return DateRow{
		DateKey:       DateKey(d),
		FullDate:      d,
		Year:          d.Year(),
		Quarter:       (month-1)/3 + 1,
		Month:         month,
		MonthName:     d.Month().String(),
		WeekOfYear:    week,
		DayOfMonth:    d.Day(),
		DayOfWeek:     dow,
		DayName:       d.Weekday().String(),
		IsWeekend:     dow >= 5,
		FiscalYear:    fiscalYear,
		FiscalQuarter: (month-fiscalStart+12)%12/3 + 1,
		LoadedAt:      loadedAt,
	}
}
