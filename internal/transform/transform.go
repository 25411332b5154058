//-------------------------------------------------------------------------
//
// pgEdge Retail ETL
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package transform turns the raw retail sales table and product catalog
// into the star schema: cleaned staging tables, the date, customer,
// product and category dimensions, the sales fact and two marts.
//
// Every builder takes immutable inputs and returns a new table. Customer
// and product rows are emitted as version 1 candidates; versioning
// against existing warehouse state happens at load time.
package transform

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pgEdge/pgedge-retail-etl/internal/logging"
)

// Result is the output of one transform run.
type Result struct {
	RunAt time.Time

	StgSales    *CleanSales
	StgProducts *CleanProducts

	DimDate     *DateDim
	DimCustomer *CustomerDim
	DimProduct  *ProductDim
	DimCategory *CategoryDim

	FactSales *FactSales

	MartSalesPerformance *SalesPerformanceMart
	MartCategoryAnalysis *CategoryAnalysisMart

	Drops *DropReport
	Links LinkReport
}

// Tables returns the output tables keyed by name.
func (r *Result) Tables() TableSet {
	return TableSet{
		TableStgRetailSales:       r.StgSales,
		TableStgAPIProducts:       r.StgProducts,
		TableDimDate:              r.DimDate,
		TableDimCustomer:          r.DimCustomer,
		TableDimProduct:           r.DimProduct,
		TableDimProductCategory:   r.DimCategory,
		TableFactSales:            r.FactSales,
		TableMartSalesPerformance: r.MartSalesPerformance,
		TableMartCategoryAnalysis: r.MartCategoryAnalysis,
	}
}

// TransformAll runs clean, dimensions, fact and marts in that order. The
// four dimension builders run concurrently when cfg.Parallel is set. Any
// failure aborts the run and is returned unchanged; a DataError means the
// input is structurally invalid.
func TransformAll(ctx context.Context, ext *Extracted, cfg Config) (*Result, error) {
	if ext == nil {
		return nil, &DataError{Reason: "no extracted input", Err: ErrEmptyInput}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid transform config: %w", err)
	}

	start := time.Now()
	res := &Result{RunAt: cfg.now(), Drops: NewDropReport()}

	var err error
	res.StgSales, err = CleanSalesTable(ext.RetailSales, cfg, res.Drops)
	if err != nil {
		return nil, err
	}
	if len(res.StgSales.Records) == 0 {
		return nil, &DataError{Table: SourceRetailSales, Reason: "no valid sales rows after cleaning", Err: ErrEmptyInput}
	}
	res.StgProducts, err = CleanProductsTable(ext.APIProducts, cfg, res.Drops)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := buildDimensions(ctx, res, ext.APICategories, cfg); err != nil {
		return nil, err
	}

	res.FactSales, res.Links = BuildFactSales(res.StgSales, res.DimCustomer, res.DimCategory, res.DimDate, res.RunAt)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res.MartSalesPerformance = BuildMartSalesPerformance(res.FactSales, res.DimDate, res.RunAt)
	res.MartCategoryAnalysis = BuildMartCategoryAnalysis(res.FactSales, res.DimCategory, res.RunAt)

	logging.Info().
		Int("tables", len(TableNames)).
		Dur("duration", time.Since(start)).
		Msg("Transform complete")
	return res, nil
}

func buildDimensions(ctx context.Context, res *Result, catalogCategories []string, cfg Config) error {
	builders := []func() error{
		func() (err error) {
			res.DimDate, err = BuildDimDate(res.StgSales, cfg, res.RunAt)
			return err
		},
		func() error {
			res.DimCustomer = BuildDimCustomer(res.StgSales, cfg, res.RunAt)
			return nil
		},
		func() error {
			res.DimProduct = BuildDimProduct(res.StgProducts, res.StgSales, res.RunAt)
			return nil
		},
		func() error {
			res.DimCategory = BuildDimCategory(res.StgSales, res.StgProducts, catalogCategories, cfg, res.RunAt)
			return nil
		},
	}

	if !cfg.Parallel {
		for _, build := range builders {
			if err := build(); err != nil {
				return err
			}
		}
		return ctx.Err()
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, build := range builders {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return build()
		})
	}
	return g.Wait()
}
