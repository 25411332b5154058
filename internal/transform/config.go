//-------------------------------------------------------------------------
//
// pgEdge Retail ETL
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package transform

import (
	"fmt"
	"time"
)

// KeywordGroup maps a set of lowercase keywords to a category group label.
type KeywordGroup struct {
	Label    string   `mapstructure:"label"`
	Keywords []string `mapstructure:"keywords"`
}

// Config holds the rules used by the builders. All of it is explicit so
// that classification and bucketing can be tested and overridden.
type Config struct {
	// MinAge and MaxAge bound customer ages; values outside are clamped.
	MinAge int `mapstructure:"min_age"`
	MaxAge int `mapstructure:"max_age"`

	// AgeGroupEdges are the inclusive upper bounds of the age buckets.
	// The default 25/35/45/55/65 produces 18-25, 26-35, 36-45, 46-55,
	// 56-65 and 65+.
	AgeGroupEdges []int `mapstructure:"age_group_edges"`

	// SegmentEdges are the inclusive upper transaction counts for the
	// New, Occasional and Regular segments. Anything above is Loyal.
	SegmentEdges []int `mapstructure:"segment_edges"`

	// FiscalYearStartMonth is the first month of the fiscal year.
	FiscalYearStartMonth int `mapstructure:"fiscal_year_start_month"`

	// DescriptionMaxLength truncates product descriptions (in runes).
	DescriptionMaxLength int `mapstructure:"description_max_length"`

	// CategoryGroups are checked in order; the first group with a keyword
	// contained in the lowercase category name wins.
	CategoryGroups []KeywordGroup `mapstructure:"category_groups"`

	// DefaultCategoryGroup is used when no keyword group matches.
	DefaultCategoryGroup string `mapstructure:"default_category_group"`

	// DateLayouts are tried in order when parsing sale dates.
	DateLayouts []string `mapstructure:"date_layouts"`

	// Parallel runs the four dimension builders concurrently.
	Parallel bool `mapstructure:"parallel"`

	// Now returns the run timestamp used for _loaded_at columns and the
	// product effective_start_date. Defaults to time.Now in UTC.
	Now func() time.Time `mapstructure:"-"`
}

// Segment labels, in bucket order.
var segmentLabels = []string{"New", "Occasional", "Regular", "Loyal"}

// DefaultConfig returns the default transform rules.
func DefaultConfig() Config {
	return Config{
		MinAge:               18,
		MaxAge:               100,
		AgeGroupEdges:        []int{25, 35, 45, 55, 65},
		SegmentEdges:         []int{1, 3, 5},
		FiscalYearStartMonth: 10,
		DescriptionMaxLength: 500,
		CategoryGroups: []KeywordGroup{
			{Label: "Electronics", Keywords: []string{"electronics", "tech", "computer"}},
			{Label: "Fashion & Apparel", Keywords: []string{"clothing", "fashion", "apparel", "men's", "women's"}},
			{Label: "Beauty & Accessories", Keywords: []string{"beauty", "jewelery", "jewelry", "cosmetics"}},
		},
		DefaultCategoryGroup: "Other",
		DateLayouts: []string{
			"2006-01-02",
			"2006-01-02 15:04:05",
			time.RFC3339,
			"2006/01/02",
			"01/02/2006",
		},
		Parallel: true,
	}
}

// Validate checks that the rules are internally consistent.
func (c Config) Validate() error {
	if c.MinAge > c.MaxAge {
		return fmt.Errorf("min_age (%d) must be <= max_age (%d)", c.MinAge, c.MaxAge)
	}
	if !ascending(c.AgeGroupEdges) {
		return fmt.Errorf("age_group_edges must be strictly ascending")
	}
	if len(c.SegmentEdges) != len(segmentLabels)-1 {
		return fmt.Errorf("segment_edges needs exactly %d values", len(segmentLabels)-1)
	}
	if !ascending(c.SegmentEdges) {
		return fmt.Errorf("segment_edges must be strictly ascending")
	}
	if c.FiscalYearStartMonth < 1 || c.FiscalYearStartMonth > 12 {
		return fmt.Errorf("fiscal_year_start_month must be between 1 and 12")
	}
	if c.DescriptionMaxLength < 1 {
		return fmt.Errorf("description_max_length must be positive")
	}
	if len(c.DateLayouts) == 0 {
		return fmt.Errorf("at least one date layout is required")
	}
	return nil
}

func (c Config) now() time.Time {
	if c.Now != nil {
		return c.Now().UTC()
	}
	return time.Now().UTC()
}

func ascending(v []int) bool {
	for i := 1; i < len(v); i++ {
		if v[i] <= v[i-1] {
			return false
		}
	}
	return true
}
