package warehouse

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/pgEdge/pgedge-retail-etl/internal/logging"
	"github.com/pgEdge/pgedge-retail-etl/internal/transform"
)

// relinkFactSQL points fact rows at the warehouse surrogate keys of the
// current customer rows, which can differ from the run-local keys after
// an SCD2 merge.
const relinkFactSQL = `UPDATE %[1]s AS f
SET customer_key = c.customer_key
FROM %[2]s AS c
WHERE c.customer_id = f.customer_id AND c.is_current
  AND f.customer_key IS DISTINCT FROM c.customer_key`

// LoadAll writes every table of the set in load order. Each table is
// written in its own transaction: SCD2 dimensions are merged, all other
// tables are truncated and reloaded.
func (w *Warehouse) LoadAll(ctx context.Context, tables transform.TableSet) (LoadStats, error) {
	var stats LoadStats
	now := w.now().UTC()

	for _, t := range tables.Ordered() {
		start := time.Now()
		var ts TableStats
		err := w.inTx(ctx, func(tx pgx.Tx) error {
			var lerr error
			if spec, ok := scdTables[t.Name()]; ok {
				ts, lerr = w.mergeSCD2(ctx, tx, t, spec, now)
			} else {
				ts, lerr = w.replace(ctx, tx, t)
			}
			return lerr
		})
		if err != nil {
			return stats, fmt.Errorf("failed to load %s: %w", t.Name(), err)
		}
		ts.Duration = time.Since(start)
		stats.Tables = append(stats.Tables, ts)

		logging.Info().
			Str("table", ts.Table).
			Str("mode", string(ts.Mode)).
			Int64("rows", ts.Rows).
			Int64("inserted", ts.Inserted).
			Int64("expired", ts.Expired).
			Dur("duration", ts.Duration).
			Msg("Loaded table")
	}
	return stats, nil
}

// replace truncates a table and copies the new rows into it.
func (w *Warehouse) replace(ctx context.Context, tx pgx.Tx, t transform.Table) (TableStats, error) {
	stats := TableStats{Table: t.Name(), Mode: FullRefresh}

	if _, err := tx.Exec(ctx, "TRUNCATE TABLE "+w.ident(t.Name())); err != nil {
		return stats, fmt.Errorf("failed to truncate %s: %w", t.Name(), err)
	}
	n, err := w.copyRows(ctx, tx, pgx.Identifier{w.schema, t.Name()}, transform.ColumnNames(t), t.Rows())
	if err != nil {
		return stats, err
	}
	stats.Rows = n
	stats.Inserted = n

	if t.Name() == transform.TableFactSales {
		tag, err := tx.Exec(ctx, fmt.Sprintf(relinkFactSQL,
			w.ident(transform.TableFactSales), w.ident(transform.TableDimCustomer)))
		if err != nil {
			return stats, fmt.Errorf("failed to relink fact customer keys: %w", err)
		}
		stats.Updated = tag.RowsAffected()
	}
	return stats, nil
}
