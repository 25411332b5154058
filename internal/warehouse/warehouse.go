//-------------------------------------------------------------------------
//
// pgEdge Retail ETL
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package warehouse writes the transform output into PostgreSQL. Most
// tables are fully refreshed on every run; the customer and product
// dimensions are merged as SCD Type 2 history.
package warehouse

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Conn is the subset of pgxpool.Pool used by the warehouse. It is also
// satisfied by pgxmock pools.
type Conn interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// DefaultSchema is the schema the warehouse tables live in.
const DefaultSchema = "public"

// DefaultBatchSize is the number of rows sent per COPY.
const DefaultBatchSize = 5000

// Options configures a Warehouse.
type Options struct {
	Schema    string
	BatchSize int
	// Now supplies the SCD2 change timestamp. Defaults to time.Now.
	Now func() time.Time
}

// Warehouse loads table sets into PostgreSQL.
type Warehouse struct {
	conn      Conn
	schema    string
	batchSize int
	now       func() time.Time
}

// New creates a Warehouse on top of conn.
func New(conn Conn, opts Options) *Warehouse {
	w := &Warehouse{
		conn:      conn,
		schema:    opts.Schema,
		batchSize: opts.BatchSize,
		now:       opts.Now,
	}
	if w.schema == "" {
		w.schema = DefaultSchema
	}
	if w.batchSize <= 0 {
		w.batchSize = DefaultBatchSize
	}
	if w.now == nil {
		w.now = time.Now
	}
	return w
}

// Schema returns the target schema name.
func (w *Warehouse) Schema() string {
	return w.schema
}

// ident returns the schema-qualified, quoted name of a table.
func (w *Warehouse) ident(table string) string {
	return pgx.Identifier{w.schema, table}.Sanitize()
}

func (w *Warehouse) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := w.conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// copyRows streams rows into table in batches.
func (w *Warehouse) copyRows(ctx context.Context, tx pgx.Tx, table pgx.Identifier, columns []string, rows [][]any) (int64, error) {
	var total int64
	for start := 0; start < len(rows); start += w.batchSize {
		end := min(start+w.batchSize, len(rows))
		n, err := tx.CopyFrom(ctx, table, columns, pgx.CopyFromRows(rows[start:end]))
		if err != nil {
			return total, fmt.Errorf("failed to copy rows into %s: %w", table.Sanitize(), err)
		}
		total += n
	}
	return total, nil
}

// LoadMode describes how a table is written.
type LoadMode string

// Load modes.
const (
	FullRefresh LoadMode = "full_refresh"
	SCD2Merge   LoadMode = "scd2_merge"
)

// ModeOf returns how the named table is loaded.
func ModeOf(table string) LoadMode {
	if _, ok := scdTables[table]; ok {
		return SCD2Merge
	}
	return FullRefresh
}

// TableStats reports the effect of loading one table.
type TableStats struct {
	Table    string
	Mode     LoadMode
	Rows     int64
	Inserted int64
	Expired  int64
	Updated  int64
	Duration time.Duration
}

// LoadStats is the result of LoadAll in table load order.
type LoadStats struct {
	Tables []TableStats
}

// TotalRows sums the rows written across all tables.
func (s LoadStats) TotalRows() int64 {
	var n int64
	for _, t := range s.Tables {
		n += t.Rows
	}
	return n
}

// For returns the stats of one table.
func (s LoadStats) For(table string) (TableStats, bool) {
	for _, t := range s.Tables {
		if t.Table == table {
			return t, true
		}
	}
	return TableStats{}, false
}
