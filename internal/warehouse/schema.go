package warehouse

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/pgEdge/pgedge-retail-etl/internal/logging"
	"github.com/pgEdge/pgedge-retail-etl/internal/transform"
)

// TableRunLog records one row per pipeline stage execution.
const TableRunLog = "etl_run_log"

// tableColumns is the column layout of every warehouse table, taken from
// the transform output types.
var tableColumns = map[string][]transform.Column{
	transform.TableStgRetailSales:       (&transform.CleanSales{}).Columns(),
	transform.TableStgAPIProducts:       (&transform.CleanProducts{}).Columns(),
	transform.TableDimDate:              (&transform.DateDim{}).Columns(),
	transform.TableDimCustomer:          (&transform.CustomerDim{}).Columns(),
	transform.TableDimProduct:           (&transform.ProductDim{}).Columns(),
	transform.TableDimProductCategory:   (&transform.CategoryDim{}).Columns(),
	transform.TableFactSales:            (&transform.FactSales{}).Columns(),
	transform.TableMartSalesPerformance: (&transform.SalesPerformanceMart{}).Columns(),
	transform.TableMartCategoryAnalysis: (&transform.CategoryAnalysisMart{}).Columns(),
}

// TableColumns returns the column layout of a warehouse table, or nil for
// an unknown name.
func TableColumns(table string) []transform.Column {
	return tableColumns[table]
}

func sqlType(t transform.ColumnType) string {
	switch t {
	case transform.Integer:
		return "BIGINT"
	case transform.Float:
		return "DOUBLE PRECISION"
	case transform.Timestamp:
		return "TIMESTAMPTZ"
	case transform.Date:
		return "DATE"
	case transform.Boolean:
		return "BOOLEAN"
	default:
		return "TEXT"
	}
}

// CreateTableSQL returns the CREATE TABLE statement for an output table.
func (w *Warehouse) CreateTableSQL(table string, columns []transform.Column) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", w.ident(table))

	var pk []string
	for i, c := range columns {
		fmt.Fprintf(&b, "    %s %s", pgx.Identifier{c.Name}.Sanitize(), sqlType(c.Type))
		if c.PrimaryKey {
			pk = append(pk, pgx.Identifier{c.Name}.Sanitize())
		}
		if i < len(columns)-1 || len(pk) > 0 {
			b.WriteString(",")
		}
		b.WriteString("\n")
	}
	if len(pk) > 0 {
		fmt.Fprintf(&b, "    PRIMARY KEY (%s)\n", strings.Join(pk, ", "))
	}
	b.WriteString(")")
	return b.String()
}

func (w *Warehouse) schemaStatements() []string {
	stmts := []string{
		fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", pgx.Identifier{w.schema}.Sanitize()),
	}
	for _, name := range transform.TableNames {
		stmts = append(stmts, w.CreateTableSQL(name, tableColumns[name]))
	}
	for _, name := range scdOrder {
		stmts = append(stmts, fmt.Sprintf(
			"CREATE UNIQUE INDEX IF NOT EXISTS %s ON %s (%s) WHERE is_current",
			pgx.Identifier{name + "_current_idx"}.Sanitize(), w.ident(name),
			pgx.Identifier{scdTables[name].naturalKey}.Sanitize()))
	}
	stmts = append(stmts,
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (date_key)",
			pgx.Identifier{"fact_sales_date_key_idx"}.Sanitize(), w.ident(transform.TableFactSales)),
		fmt.Sprintf(createRunLogSQL, w.ident(TableRunLog)),
	)
	return stmts
}

const createRunLogSQL = `CREATE TABLE IF NOT EXISTS %s (
    id                BIGSERIAL PRIMARY KEY,
    run_id            TEXT NOT NULL,
    stage             TEXT NOT NULL,
    status            TEXT NOT NULL,
    records_processed BIGINT NOT NULL DEFAULT 0,
    duration_seconds  DOUBLE PRECISION NOT NULL DEFAULT 0,
    error_message     TEXT,
    started_at        TIMESTAMPTZ NOT NULL,
    logged_at         TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// CreateSchema creates the schema, all warehouse tables and the run log.
func (w *Warehouse) CreateSchema(ctx context.Context) error {
	return w.inTx(ctx, func(tx pgx.Tx) error {
		for _, stmt := range w.schemaStatements() {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("failed to create schema: %w", err)
			}
		}
		logging.Info().Str("schema", w.schema).Int("tables", len(transform.TableNames)+1).Msg("Created warehouse schema")
		return nil
	})
}

// DropSchema drops every warehouse table including the run log.
func (w *Warehouse) DropSchema(ctx context.Context) error {
	names := make([]string, 0, len(transform.TableNames)+1)
	for i := len(transform.TableNames) - 1; i >= 0; i-- {
		names = append(names, w.ident(transform.TableNames[i]))
	}
	names = append(names, w.ident(TableRunLog))

	_, err := w.conn.Exec(ctx, "DROP TABLE IF EXISTS "+strings.Join(names, ", ")+" CASCADE")
	if err != nil {
		return fmt.Errorf("failed to drop schema: %w", err)
	}
	logging.Info().Str("schema", w.schema).Msg("Dropped warehouse tables")
	return nil
}

// SchemaExists reports whether all warehouse tables exist.
func (w *Warehouse) SchemaExists(ctx context.Context) (bool, error) {
	var count int
	names := append([]string{TableRunLog}, transform.TableNames...)
	err := w.conn.QueryRow(ctx, `
        SELECT count(*) FROM information_schema.tables
        WHERE table_schema = $1 AND table_name = ANY($2)
    `, w.schema, names).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check schema: %w", err)
	}
	return count == len(names), nil
}
