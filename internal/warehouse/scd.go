package warehouse

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/pgEdge/pgedge-retail-etl/internal/transform"
)

// scdSpec describes how an SCD2 dimension is merged.
type scdSpec struct {
	surrogateKey string
	naturalKey   string
	// type1 columns are overwritten in place on the current row when
	// the tracked attributes are unchanged.
	type1 []string
}

var scdTables = map[string]scdSpec{
	transform.TableDimCustomer: {
		surrogateKey: "customer_key",
		naturalKey:   "customer_id",
		type1:        []string{"last_purchase_date", "total_transactions", "customer_segment", "_loaded_at"},
	},
	transform.TableDimProduct: {
		surrogateKey: "product_key",
		naturalKey:   "api_product_id",
		type1:        []string{"product_category", "description", "product_image_url", "rating_rate", "rating_count", "_loaded_at"},
	},
}

var scdOrder = []string{transform.TableDimCustomer, transform.TableDimProduct}

// Columns managed by the merge rather than copied from the candidate.
const (
	colEffectiveStart = "effective_start_date"
	colEffectiveEnd   = "effective_end_date"
	colIsCurrent      = "is_current"
	colVersion        = "version"
)

func stageName(table string) string {
	return "stage_" + table
}

// mergeSCD2 merges a candidate snapshot into an SCD2 dimension:
//
//   - a natural key whose current row has a different row_hash gets that
//     row closed (effective_end_date = now, is_current = false) and a new
//     version inserted with effective_start_date = now
//   - a natural key with no history is inserted as version 1 with the
//     candidate's effective_start_date
//   - unchanged rows keep their key and version; only type-1 columns are
//     refreshed
//
// New surrogate keys continue after the current maximum, in natural key
// order. Keys absent from the candidate are left untouched.
func (w *Warehouse) mergeSCD2(ctx context.Context, tx pgx.Tx, t transform.Table, spec scdSpec, now time.Time) (TableStats, error) {
	stats := TableStats{Table: t.Name(), Mode: SCD2Merge}
	target := w.ident(t.Name())
	stage := pgx.Identifier{stageName(t.Name())}
	columns := transform.ColumnNames(t)

	if _, err := tx.Exec(ctx, fmt.Sprintf(
		"CREATE TEMP TABLE %s (LIKE %s INCLUDING DEFAULTS) ON COMMIT DROP",
		stage.Sanitize(), target)); err != nil {
		return stats, fmt.Errorf("failed to create stage for %s: %w", t.Name(), err)
	}

	staged, err := w.copyRows(ctx, tx, stage, columns, t.Rows())
	if err != nil {
		return stats, err
	}
	stats.Rows = staged

	tag, err := tx.Exec(ctx, expireSQL(target, stage.Sanitize(), spec), now)
	if err != nil {
		return stats, fmt.Errorf("failed to expire changed rows in %s: %w", t.Name(), err)
	}
	stats.Expired = tag.RowsAffected()

	if len(spec.type1) > 0 {
		tag, err = tx.Exec(ctx, refreshSQL(target, stage.Sanitize(), spec))
		if err != nil {
			return stats, fmt.Errorf("failed to refresh unchanged rows in %s: %w", t.Name(), err)
		}
		stats.Updated = tag.RowsAffected()
	}

	tag, err = tx.Exec(ctx, insertVersionsSQL(target, stage.Sanitize(), columns, spec), now)
	if err != nil {
		return stats, fmt.Errorf("failed to insert new versions into %s: %w", t.Name(), err)
	}
	stats.Inserted = tag.RowsAffected()
	return stats, nil
}

func expireSQL(target, stage string, spec scdSpec) string {
	nk := pgx.Identifier{spec.naturalKey}.Sanitize()
	return fmt.Sprintf(`UPDATE %[1]s AS t
SET effective_end_date = $1, is_current = FALSE
FROM %[2]s AS s
WHERE t.%[3]s = s.%[3]s AND t.is_current AND t.row_hash <> s.row_hash`, target, stage, nk)
}

func refreshSQL(target, stage string, spec scdSpec) string {
	nk := pgx.Identifier{spec.naturalKey}.Sanitize()
	sets := make([]string, len(spec.type1))
	for i, c := range spec.type1 {
		col := pgx.Identifier{c}.Sanitize()
		sets[i] = fmt.Sprintf("%s = s.%s", col, col)
	}
	return fmt.Sprintf(`UPDATE %[1]s AS t
SET %[4]s
FROM %[2]s AS s
WHERE t.%[3]s = s.%[3]s AND t.is_current AND t.row_hash = s.row_hash`,
		target, stage, nk, strings.Join(sets, ", "))
}

func insertVersionsSQL(target, stage string, columns []string, spec scdSpec) string {
	nk := pgx.Identifier{spec.naturalKey}.Sanitize()
	sk := pgx.Identifier{spec.surrogateKey}.Sanitize()

	cols := make([]string, len(columns))
	exprs := make([]string, len(columns))
	for i, c := range columns {
		cols[i] = pgx.Identifier{c}.Sanitize()
		switch c {
		case spec.surrogateKey:
			exprs[i] = fmt.Sprintf("base.max_key + ROW_NUMBER() OVER (ORDER BY s.%s)", nk)
		case colEffectiveStart:
			exprs[i] = "CASE WHEN prev.version IS NULL THEN s.effective_start_date ELSE $1 END"
		case colEffectiveEnd:
			exprs[i] = "s.effective_end_date"
		case colIsCurrent:
			exprs[i] = "TRUE"
		case colVersion:
			exprs[i] = "COALESCE(prev.version, 0) + 1"
		default:
			exprs[i] = "s." + cols[i]
		}
	}

	return fmt.Sprintf(`INSERT INTO %[1]s (%[4]s)
SELECT %[5]s
FROM %[2]s AS s
CROSS JOIN (SELECT COALESCE(MAX(%[6]s), 0) AS max_key FROM %[1]s) AS base
LEFT JOIN (SELECT %[3]s, MAX(version) AS version FROM %[1]s GROUP BY %[3]s) AS prev ON prev.%[3]s = s.%[3]s
WHERE NOT EXISTS (SELECT 1 FROM %[1]s AS cur WHERE cur.%[3]s = s.%[3]s AND cur.is_current)`,
		target, stage, nk, strings.Join(cols, ", "), strings.Join(exprs, ", "), sk)
}
