package transform

import (
	"fmt"
	"sort"
	"time"

	"github.com/pgEdge/pgedge-retail-etl/internal/logging"
)

// CustomerRow is one version of a customer in the SCD2 dimension.
type CustomerRow struct {
	CustomerKey        int64
	CustomerID         string
	Gender             string
	Age                int
	AgeGroup           string
	FirstPurchaseDate  time.Time
	LastPurchaseDate   time.Time
	TotalTransactions  int64
	CustomerSegment    string
	EffectiveStartDate time.Time
	EffectiveEndDate   time.Time
	IsCurrent          bool
	Version            int64
	RowHash            string
	LoadedAt           time.Time
}

// CustomerDim is the dim_customer candidate snapshot for one run.
type CustomerDim struct {
	Records []CustomerRow
}

var customerColumns = []Column{
	{Name: "customer_key", Type: Integer, PrimaryKey: true},
	{Name: "customer_id", Type: String},
	{Name: "gender", Type: String},
	{Name: "age", Type: Integer},
	{Name: "age_group", Type: String},
	{Name: "first_purchase_date", Type: Date},
	{Name: "last_purchase_date", Type: Date},
	{Name: "total_transactions", Type: Integer},
	{Name: "customer_segment", Type: String},
	{Name: "effective_start_date", Type: Timestamp},
	{Name: "effective_end_date", Type: Timestamp},
	{Name: "is_current", Type: Boolean},
	{Name: "version", Type: Integer},
	{Name: "row_hash", Type: String},
	{Name: "_loaded_at", Type: Timestamp},
}

func (d *CustomerDim) Name() string      { return TableDimCustomer }
func (d *CustomerDim) Columns() []Column { return customerColumns }
func (d *CustomerDim) Len() int          { return len(d.Records) }

func (d *CustomerDim) Rows() [][]any {
	out := make([][]any, len(d.Records))
	for i, r := range d.Records {
		out[i] = []any{
			r.CustomerKey, r.CustomerID, r.Gender, int64(r.Age), r.AgeGroup,
			r.FirstPurchaseDate, r.LastPurchaseDate, r.TotalTransactions,
			r.CustomerSegment, r.EffectiveStartDate, r.EffectiveEndDate,
			r.IsCurrent, r.Version, r.RowHash, r.LoadedAt,
		}
	}
	return out
}

// KeyMap returns customer_id -> customer_key for current rows.
func (d *CustomerDim) KeyMap() map[string]int64 {
	m := make(map[string]int64, len(d.Records))
	for _, r := range d.Records {
		if r.IsCurrent {
			m[r.CustomerID] = r.CustomerKey
		}
	}
	return m
}

type customerAgg struct {
	id           string
	gender       string
	age          int
	first, last  time.Time
	transactions map[int64]struct{}
}

// BuildDimCustomer aggregates sales per customer. Gender and age take
// the first value observed in input order. Keys are assigned in
// customer_id order so identical input always yields identical keys.
func BuildDimCustomer(sales *CleanSales, cfg Config, loadedAt time.Time) *CustomerDim {
	byID := make(map[string]*customerAgg)
	for _, r := range sales.Records {
		a, ok := byID[r.CustomerID]
		if !ok {
			a = &customerAgg{
				id:           r.CustomerID,
				gender:       r.Gender,
				age:          r.Age,
				first:        r.Date,
				last:         r.Date,
				transactions: make(map[int64]struct{}),
			}
			byID[r.CustomerID] = a
		}
		if r.Date.Before(a.first) {
			a.first = r.Date
		}
		if r.Date.After(a.last) {
			a.last = r.Date
		}
		a.transactions[r.TransactionID] = struct{}{}
	}

	ids := make([]string, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	dim := &CustomerDim{Records: make([]CustomerRow, 0, len(ids))}
	for i, id := range ids {
		a := byID[id]
		count := int64(len(a.transactions))
		first := truncateDay(a.first)
		dim.Records = append(dim.Records, CustomerRow{
			CustomerKey:        int64(i + 1),
			CustomerID:         a.id,
			Gender:             a.gender,
			Age:                a.age,
			AgeGroup:           AgeGroup(a.age, cfg),
			FirstPurchaseDate:  first,
			LastPurchaseDate:   truncateDay(a.last),
			TotalTransactions:  count,
			CustomerSegment:    CustomerSegment(count, cfg),
			EffectiveStartDate: first,
			EffectiveEndDate:   SCDEndOfTime,
			IsCurrent:          true,
			Version:            1,
			RowHash:            customerRowHash(a.id, a.gender, a.age),
			LoadedAt:           loadedAt,
		})
	}

	logging.Info().Int("rows", len(dim.Records)).Msg("Built dim_customer")
	return dim
}

// AgeGroup returns the age bucket label for age. Buckets are closed on
// the right: with edges 25/35 an age of 25 is "18-25" and 26 is "26-35".
func AgeGroup(age int, cfg Config) string {
	lower := cfg.MinAge
	for _, edge := range cfg.AgeGroupEdges {
		if age <= edge {
			return fmt.Sprintf("%d-%d", lower, edge)
		}
		lower = edge + 1
	}
	if n := len(cfg.AgeGroupEdges); n > 0 {
		return fmt.Sprintf("%d+", cfg.AgeGroupEdges[n-1])
	}
	return fmt.Sprintf("%d+", cfg.MinAge)
}

// CustomerSegment buckets a customer by distinct transaction count.
func CustomerSegment(transactions int64, cfg Config) string {
	for i, edge := range cfg.SegmentEdges {
		if transactions <= int64(edge) && i < len(segmentLabels) {
			return segmentLabels[i]
		}
	}
	return segmentLabels[len(segmentLabels)-1]
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
