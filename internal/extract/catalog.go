//-------------------------------------------------------------------------
//
// pgEdge Retail ETL
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/pgEdge/pgedge-retail-etl/internal/logging"
	"github.com/pgEdge/pgedge-retail-etl/internal/transform"
)

// Catalog endpoints relative to the base URL.
const (
	productsPath   = "/products"
	categoriesPath = "/products/categories"
)

// ProductColumns is the flattened catalog layout handed to cleaning.
var ProductColumns = []string{
	"id", "title", "price", "description", "category", "image",
	"rating_rate", "rating_count",
}

// Product is a catalog product as returned by the API.
type Product struct {
	ID          int64   `json:"id"`
	Title       string  `json:"title"`
	Price       float64 `json:"price"`
	Description string  `json:"description"`
	Category    string  `json:"category"`
	Image       string  `json:"image"`
	Rating      *Rating `json:"rating,omitempty"`
}

// Rating is the nested rating object of a product.
type Rating struct {
	Rate  float64 `json:"rate"`
	Count int64   `json:"count"`
}

// StatusError is returned for a non-2xx catalog response.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d", e.URL, e.StatusCode)
}

// Retryable reports whether the request may succeed on a later attempt.
func (e *StatusError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// CatalogClient fetches products and categories from the catalog API.
type CatalogClient struct {
	baseURL    string
	httpClient *http.Client
	maxTries   uint

	// newBackOff is swapped in tests to avoid sleeping.
	newBackOff func() backoff.BackOff
}

// NewCatalogClient creates a client. retries is the number of attempts
// after the first one.
func NewCatalogClient(baseURL string, timeout time.Duration, retries int) *CatalogClient {
	if retries < 0 {
		retries = 0
	}
	return &CatalogClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		maxTries:   uint(retries + 1),
		newBackOff: func() backoff.BackOff { return backoff.NewExponentialBackOff() },
	}
}

// Products fetches the product list.
func (c *CatalogClient) Products(ctx context.Context) ([]Product, error) {
	var products []Product
	if err := c.getJSON(ctx, productsPath, &products); err != nil {
		return nil, fmt.Errorf("failed to fetch products: %w", err)
	}
	return products, nil
}

// Categories fetches the category name list.
func (c *CatalogClient) Categories(ctx context.Context) ([]string, error) {
	var categories []string
	if err := c.getJSON(ctx, categoriesPath, &categories); err != nil {
		return nil, fmt.Errorf("failed to fetch categories: %w", err)
	}
	return categories, nil
}

func (c *CatalogClient) getJSON(ctx context.Context, path string, v any) error {
	url := c.baseURL + path
	attempt := 0
	body, err := backoff.Retry(ctx, func() ([]byte, error) {
		attempt++
		if attempt > 1 {
			logging.Warn().Str("url", url).Int("attempt", attempt).Msg("Retrying catalog request")
		}
		return c.get(ctx, url)
	}, backoff.WithBackOff(c.newBackOff()), backoff.WithMaxTries(c.maxTries))
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", url, err)
	}
	return nil
}

func (c *CatalogClient) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		serr := &StatusError{URL: url, StatusCode: resp.StatusCode}
		if !serr.Retryable() {
			return nil, backoff.Permanent(serr)
		}
		return nil, serr
	}
	return io.ReadAll(resp.Body)
}

// ProductsTable flattens products into the raw catalog layout and tags
// each row with the extraction time and source. A missing rating becomes
// a zero rate and count.
func ProductsTable(products []Product, now time.Time) *transform.RawTable {
	table := transform.NewRawTable(ProductColumns...)
	for _, p := range products {
		rating := Rating{}
		if p.Rating != nil {
			rating = *p.Rating
		}
		table.Append(
			strconv.FormatInt(p.ID, 10),
			p.Title,
			strconv.FormatFloat(p.Price, 'f', -1, 64),
			p.Description,
			p.Category,
			p.Image,
			strconv.FormatFloat(rating.Rate, 'f', -1, 64),
			strconv.FormatInt(rating.Count, 10),
		)
	}
	table.AddColumn(transform.ColExtractedAt, now.UTC().Format(extractedAtLayout))
	table.AddColumn(transform.ColSource, SourceCatalog)
	return table
}

// ReadProductsFile reads a products JSON document in the catalog API
// layout, for offline runs.
func ReadProductsFile(path string) ([]Product, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}
	var products []Product
	if err := json.Unmarshal(data, &products); err != nil {
		return nil, fmt.Errorf("failed to parse catalog file %s: %w", path, err)
	}
	return products, nil
}

// CategoriesOf returns the distinct categories of products in first-seen
// order.
func CategoriesOf(products []Product) []string {
	seen := make(map[string]bool)
	var out []string
	for _, p := range products {
		if p.Category != "" && !seen[p.Category] {
			seen[p.Category] = true
			out = append(out, p.Category)
		}
	}
	return out
}
