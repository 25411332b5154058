package transform

import (
	"sort"
	"strings"
	"time"

	"github.com/pgEdge/pgedge-retail-etl/internal/logging"
)

// Category sources.
const (
	CategorySourceRetail = "retail"
	CategorySourceAPI    = "api"
	CategorySourceBoth   = "both"
)

// CategoryRow is one product category.
type CategoryRow struct {
	CategoryKey    int64
	CategoryName   string
	CategorySource string
	CategoryGroup  string
	LoadedAt       time.Time
}

// CategoryDim is the dim_product_category table.
type CategoryDim struct {
	Records []CategoryRow
}

var categoryColumns = []Column{
	{Name: "category_key", Type: Integer, PrimaryKey: true},
	{Name: "category_name", Type: String},
	{Name: "category_source", Type: String},
	{Name: "category_group", Type: String},
	{Name: "_loaded_at", Type: Timestamp},
}

func (d *CategoryDim) Name() string      { return TableDimProductCategory }
func (d *CategoryDim) Columns() []Column { return categoryColumns }
func (d *CategoryDim) Len() int          { return len(d.Records) }

func (d *CategoryDim) Rows() [][]any {
	out := make([][]any, len(d.Records))
	for i, r := range d.Records {
		out[i] = []any{r.CategoryKey, r.CategoryName, r.CategorySource, r.CategoryGroup, r.LoadedAt}
	}
	return out
}

// KeyMap returns lowercase category_name -> category_key.
func (d *CategoryDim) KeyMap() map[string]int64 {
	m := make(map[string]int64, len(d.Records))
	for _, r := range d.Records {
		m[strings.ToLower(r.CategoryName)] = r.CategoryKey
	}
	return m
}

// Lookup returns the row for a category name, ignoring case.
func (d *CategoryDim) Lookup(name string) (CategoryRow, bool) {
	for _, r := range d.Records {
		if strings.EqualFold(r.CategoryName, name) {
			return r, true
		}
	}
	return CategoryRow{}, false
}

// BuildDimCategory unions the categories seen in sales with the catalog
// category list and the categories of catalog products. Names are
// title-cased and matched case-insensitively; keys follow name order.
func BuildDimCategory(sales *CleanSales, products *CleanProducts, catalogCategories []string, cfg Config, loadedAt time.Time) *CategoryDim {
	title := titleCaser()
	names := make(map[string]string)
	retail := make(map[string]bool)
	api := make(map[string]bool)

	add := func(name string, set map[string]bool) {
		name = strings.TrimSpace(name)
		if name == "" {
			return
		}
		lower := strings.ToLower(name)
		set[lower] = true
		if _, ok := names[lower]; !ok {
			names[lower] = title.String(name)
		}
	}
	if sales != nil {
		for _, r := range sales.Records {
			add(r.ProductCategory, retail)
		}
	}
	for _, c := range catalogCategories {
		add(c, api)
	}
	if products != nil {
		for _, p := range products.Records {
			add(p.ProductCategory, api)
		}
	}

	keys := make([]string, 0, len(names))
	for lower := range names {
		keys = append(keys, lower)
	}
	sort.Slice(keys, func(i, j int) bool { return names[keys[i]] < names[keys[j]] })

	dim := &CategoryDim{Records: make([]CategoryRow, 0, len(keys))}
	for i, lower := range keys {
		source := CategorySourceRetail
		switch {
		case retail[lower] && api[lower]:
			source = CategorySourceBoth
		case api[lower]:
			source = CategorySourceAPI
		}
		dim.Records = append(dim.Records, CategoryRow{
			CategoryKey:    int64(i + 1),
			CategoryName:   names[lower],
			CategorySource: source,
			CategoryGroup:  ClassifyCategory(names[lower], cfg),
			LoadedAt:       loadedAt,
		})
	}

	logging.Info().Int("rows", len(dim.Records)).Msg("Built dim_product_category")
	return dim
}

// ClassifyCategory returns the label of the first keyword group with a
// keyword contained in the lowercase name, or the default group.
func ClassifyCategory(name string, cfg Config) string {
	lower := strings.ToLower(name)
	for _, g := range cfg.CategoryGroups {
		for _, kw := range g.Keywords {
			if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
				return g.Label
			}
		}
	}
	return cfg.DefaultCategoryGroup
}
