package datagen

import (
	"encoding/json"
	"fmt"
	"io"
	"math"

	"github.com/pgEdge/pgedge-retail-etl/internal/extract"
)

// CatalogCategories are the categories used by catalog fixtures.
var CatalogCategories = []string{"electronics", "jewelery", "men's clothing", "women's clothing"}

// CatalogFixture returns n products in the catalog API layout. About one
// product in ten has no rating.
func CatalogFixture(f *Faker, n int) []extract.Product {
	products := make([]extract.Product, n)
	for i := range products {
		p := extract.Product{
			ID:          int64(i + 1),
			Title:       f.ProductName(),
			Price:       f.Price(5, 1000),
			Description: f.ProductDescription(),
			Category:    Choose(f, CatalogCategories),
			Image:       fmt.Sprintf("https://fakestoreapi.com/img/%d.jpg", i+1),
		}
		if !f.Chance(0.1) {
			p.Rating = &extract.Rating{
				Rate:  math.Round(f.Float64(1, 5)*10) / 10,
				Count: int64(f.Int(0, 700)),
			}
		}
		products[i] = p
	}
	return products
}

// WriteCatalog writes products as an indented JSON array.
func WriteCatalog(w io.Writer, products []extract.Product) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(products); err != nil {
		return fmt.Errorf("failed to write catalog: %w", err)
	}
	return nil
}
