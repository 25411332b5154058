package transform

import (
	"strconv"
	"time"
)

var salesHeader = []string{
	"Transaction ID", "Date", "Customer ID", "Gender", "Age",
	"Product Category", "Quantity", "Price per Unit", "Total Amount",
}

type sale struct {
	id, date, customer, gender, age, category, qty, price, total string
}

func rawSales(sales ...sale) *RawTable {
	t := NewRawTable(salesHeader...)
	for _, s := range sales {
		t.Append(s.id, s.date, s.customer, s.gender, s.age, s.category, s.qty, s.price, s.total)
	}
	return t
}

func validSale(id int, date, customer, gender, category string, qty int, price float64) sale {
	return sale{
		id:       strconv.Itoa(id),
		date:     date,
		customer: customer,
		gender:   gender,
		age:      "30",
		category: category,
		qty:      strconv.Itoa(qty),
		price:    strconv.FormatFloat(price, 'f', -1, 64),
		total:    strconv.FormatFloat(float64(qty)*price, 'f', -1, 64),
	}
}

func rawProducts(rows ...[]string) *RawTable {
	t := NewRawTable("id", "title", "price", "description", "category", "image", "rating_rate", "rating_count")
	for _, r := range rows {
		t.Append(r...)
	}
	return t
}

var fixedNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Now = func() time.Time { return fixedNow }
	return cfg
}

func mustClean(raw *RawTable) *CleanSales {
	cs, err := CleanSalesTable(raw, testConfig(), NewDropReport())
	if err != nil {
		panic(err)
	}
	return cs
}
