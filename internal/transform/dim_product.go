package transform

import (
	"sort"
	"strings"
	"time"

	"github.com/pgEdge/pgedge-retail-etl/internal/logging"
)

// ProductDimRow is one version of a catalog product in the SCD2 dimension.
type ProductDimRow struct {
	ProductKey         int64
	APIProductID       int64
	ProductName        string
	ProductCategory    string
	APIPrice           *float64
	Description        string
	ImageURL           string
	RatingRate         *float64
	RatingCount        *int64
	EffectiveStartDate time.Time
	EffectiveEndDate   time.Time
	IsCurrent          bool
	Version            int64
	RowHash            string
	LoadedAt           time.Time
}

// ProductDim is the dim_product candidate snapshot for one run.
type ProductDim struct {
	Records []ProductDimRow
	// UnmatchedRetailCategories lists sales categories that have no
	// catalog product. They get no dim_product row.
	UnmatchedRetailCategories []string
}

var productColumns = []Column{
	{Name: "product_key", Type: Integer, PrimaryKey: true},
	{Name: "api_product_id", Type: Integer},
	{Name: "product_name", Type: String},
	{Name: "product_category", Type: String},
	{Name: "api_price", Type: Float},
	{Name: "description", Type: String},
	{Name: "product_image_url", Type: String},
	{Name: "rating_rate", Type: Float},
	{Name: "rating_count", Type: Integer},
	{Name: "effective_start_date", Type: Timestamp},
	{Name: "effective_end_date", Type: Timestamp},
	{Name: "is_current", Type: Boolean},
	{Name: "version", Type: Integer},
	{Name: "row_hash", Type: String},
	{Name: "_loaded_at", Type: Timestamp},
}

func (d *ProductDim) Name() string      { return TableDimProduct }
func (d *ProductDim) Columns() []Column { return productColumns }
func (d *ProductDim) Len() int          { return len(d.Records) }

func (d *ProductDim) Rows() [][]any {
	out := make([][]any, len(d.Records))
	for i, r := range d.Records {
		out[i] = []any{
			r.ProductKey, r.APIProductID, r.ProductName, r.ProductCategory,
			nullable(r.APIPrice), r.Description, r.ImageURL,
			nullable(r.RatingRate), nullable(r.RatingCount),
			r.EffectiveStartDate, r.EffectiveEndDate, r.IsCurrent, r.Version,
			r.RowHash, r.LoadedAt,
		}
	}
	return out
}

// BuildDimProduct builds the product dimension from the catalog. When an
// id appears twice the first occurrence wins. Keys follow api_product_id
// order. Sales are only consulted to report retail categories that have
// no catalog product.
func BuildDimProduct(products *CleanProducts, sales *CleanSales, loadedAt time.Time) *ProductDim {
	seen := make(map[int64]bool)
	var rows []ProductRow
	for _, p := range products.Records {
		if seen[p.APIProductID] {
			continue
		}
		seen[p.APIProductID] = true
		rows = append(rows, p)
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].APIProductID < rows[j].APIProductID })

	dim := &ProductDim{Records: make([]ProductDimRow, 0, len(rows))}
	catalogCategories := make(map[string]bool)
	for i, p := range rows {
		catalogCategories[strings.ToLower(p.ProductCategory)] = true
		dim.Records = append(dim.Records, ProductDimRow{
			ProductKey:         int64(i + 1),
			APIProductID:       p.APIProductID,
			ProductName:        p.ProductName,
			ProductCategory:    p.ProductCategory,
			APIPrice:           p.APIPrice,
			Description:        p.Description,
			ImageURL:           p.ImageURL,
			RatingRate:         p.RatingRate,
			RatingCount:        p.RatingCount,
			EffectiveStartDate: loadedAt,
			EffectiveEndDate:   SCDEndOfTime,
			IsCurrent:          true,
			Version:            1,
			RowHash:            productRowHash(p.APIProductID, p.ProductName, p.APIPrice),
			LoadedAt:           loadedAt,
		})
	}

	if sales != nil {
		missing := make(map[string]bool)
		for _, s := range sales.Records {
			if !catalogCategories[strings.ToLower(s.ProductCategory)] {
				missing[s.ProductCategory] = true
			}
		}
		for c := range missing {
			dim.UnmatchedRetailCategories = append(dim.UnmatchedRetailCategories, c)
		}
		sort.Strings(dim.UnmatchedRetailCategories)
	}

	ev := logging.Info().Int("rows", len(dim.Records))
	if len(dim.UnmatchedRetailCategories) > 0 {
		ev = ev.Strs("retail_only_categories", dim.UnmatchedRetailCategories)
	}
	ev.Msg("Built dim_product")
	return dim
}
