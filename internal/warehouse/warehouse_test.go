package warehouse

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"

	"github.com/pgEdge/pgedge-retail-etl/internal/transform"
)

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newMock(t *testing.T, opts Options) (pgxmock.PgxPoolIface, *Warehouse) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(mock.Close)
	if opts.Now == nil {
		opts.Now = func() time.Time { return testNow }
	}
	return mock, New(mock, opts)
}

func checkExpectations(t *testing.T, mock pgxmock.PgxPoolIface) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unmet expectations: %v", err)
	}
}

func TestNewDefaults(t *testing.T) {
	w := New(nil, Options{})
	if w.Schema() != DefaultSchema || w.batchSize != DefaultBatchSize || w.now == nil {
		t.Errorf("Expected defaults, got schema=%s batch=%d", w.Schema(), w.batchSize)
	}
}

func TestModeOf(t *testing.T) {
	tests := map[string]LoadMode{
		transform.TableDimCustomer:          SCD2Merge,
		transform.TableDimProduct:           SCD2Merge,
		transform.TableDimDate:              FullRefresh,
		transform.TableFactSales:            FullRefresh,
		transform.TableMartSalesPerformance: FullRefresh,
	}
	for table, want := range tests {
		if got := ModeOf(table); got != want {
			t.Errorf("ModeOf(%s): expected %s, got %s", table, want, got)
		}
	}
}

func TestCreateTableSQL(t *testing.T) {
	w := New(nil, Options{Schema: "retail"})
	sql := w.CreateTableSQL(transform.TableMartSalesPerformance, tableColumns[transform.TableMartSalesPerformance])

	for _, want := range []string{
		`CREATE TABLE IF NOT EXISTS "retail"."mart_sales_performance"`,
		`"month_name" TEXT,`,
		`"revenue_growth_pct" DOUBLE PRECISION,`,
		`"_mart_generated_at" TIMESTAMPTZ,`,
		`PRIMARY KEY ("year", "month")`,
	} {
		if !strings.Contains(sql, want) {
			t.Errorf("Expected %q in:\n%s", want, sql)
		}
	}

	sql = w.CreateTableSQL(transform.TableStgRetailSales, tableColumns[transform.TableStgRetailSales])
	if strings.Contains(sql, "PRIMARY KEY") {
		t.Errorf("Expected staging table without primary key:\n%s", sql)
	}
	if !strings.HasSuffix(sql, "\"_source\" TEXT\n)") {
		t.Errorf("Expected no trailing comma:\n%s", sql)
	}
}

func TestCreateSchema(t *testing.T) {
	mock, w := newMock(t, Options{})

	stmts := w.schemaStatements()
	if len(stmts) != 14 {
		t.Fatalf("Expected 14 schema statements, got %d", len(stmts))
	}

	mock.ExpectBegin()
	for _, stmt := range stmts {
		mock.ExpectExec(regexp.QuoteMeta(stmt)).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	}
	mock.ExpectCommit()

	if err := w.CreateSchema(context.Background()); err != nil {
		t.Fatalf("CreateSchema failed: %v", err)
	}
	checkExpectations(t, mock)
}

func TestCreateSchemaRollsBack(t *testing.T) {
	mock, w := newMock(t, Options{})

	mock.ExpectBegin()
	mock.ExpectExec("CREATE SCHEMA").WillReturnError(errors.New("permission denied"))
	mock.ExpectRollback()

	err := w.CreateSchema(context.Background())
	if err == nil || !strings.Contains(err.Error(), "permission denied") {
		t.Errorf("Expected permission error, got %v", err)
	}
	checkExpectations(t, mock)
}

func TestDropSchema(t *testing.T) {
	mock, w := newMock(t, Options{})
	mock.ExpectExec(regexp.QuoteMeta(`DROP TABLE IF EXISTS "public"."mart_category_analysis"`)).
		WillReturnResult(pgxmock.NewResult("DROP", 0))

	if err := w.DropSchema(context.Background()); err != nil {
		t.Fatalf("DropSchema failed: %v", err)
	}
	checkExpectations(t, mock)
}

func TestSchemaExists(t *testing.T) {
	mock, w := newMock(t, Options{})
	mock.ExpectQuery("information_schema.tables").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(len(transform.TableNames) + 1))

	ok, err := w.SchemaExists(context.Background())
	if err != nil || !ok {
		t.Errorf("Expected schema to exist, got %v, %v", ok, err)
	}
	checkExpectations(t, mock)
}

func dateTable() *transform.DateDim {
	return &transform.DateDim{Records: []transform.DateRow{
		{DateKey: 20230101}, {DateKey: 20230102}, {DateKey: 20230103},
	}}
}

func TestLoadAllFullRefresh(t *testing.T) {
	mock, w := newMock(t, Options{BatchSize: 2})
	dates := dateTable()
	categories := &transform.CategoryDim{Records: []transform.CategoryRow{{CategoryKey: 1, CategoryName: "Beauty"}}}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`TRUNCATE TABLE "public"."dim_date"`)).
		WillReturnResult(pgxmock.NewResult("TRUNCATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"public", "dim_date"}, transform.ColumnNames(dates)).WillReturnResult(2)
	mock.ExpectCopyFrom(pgx.Identifier{"public", "dim_date"}, transform.ColumnNames(dates)).WillReturnResult(1)
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`TRUNCATE TABLE "public"."dim_product_category"`)).
		WillReturnResult(pgxmock.NewResult("TRUNCATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"public", "dim_product_category"}, transform.ColumnNames(categories)).WillReturnResult(1)
	mock.ExpectCommit()

	stats, err := w.LoadAll(context.Background(), transform.TableSet{
		transform.TableDimProductCategory: categories,
		transform.TableDimDate:            dates,
	})
	if err != nil {
		t.Fatalf("LoadAll failed: %v", err)
	}
	if len(stats.Tables) != 2 || stats.Tables[0].Table != transform.TableDimDate {
		t.Fatalf("Expected stats in load order, got %+v", stats.Tables)
	}
	if stats.TotalRows() != 4 {
		t.Errorf("Expected 4 rows loaded, got %d", stats.TotalRows())
	}
	if ds, ok := stats.For(transform.TableDimDate); !ok || ds.Rows != 3 || ds.Mode != FullRefresh {
		t.Errorf("Unexpected dim_date stats: %+v", ds)
	}
	checkExpectations(t, mock)
}

func TestLoadAllCopyFailureRollsBack(t *testing.T) {
	mock, w := newMock(t, Options{})
	dates := dateTable()

	mock.ExpectBegin()
	mock.ExpectExec("TRUNCATE").WillReturnResult(pgxmock.NewResult("TRUNCATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"public", "dim_date"}, transform.ColumnNames(dates)).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	_, err := w.LoadAll(context.Background(), transform.TableSet{transform.TableDimDate: dates})
	if err == nil || !strings.Contains(err.Error(), "dim_date") || !strings.Contains(err.Error(), "disk full") {
		t.Errorf("Expected wrapped copy error, got %v", err)
	}
	checkExpectations(t, mock)
}

func TestLoadAllRelinksFactKeys(t *testing.T) {
	mock, w := newMock(t, Options{})
	fact := &transform.FactSales{Records: []transform.FactRow{{SalesKey: 1, TransactionID: 9}}}

	mock.ExpectBegin()
	mock.ExpectExec("TRUNCATE").WillReturnResult(pgxmock.NewResult("TRUNCATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"public", "fact_sales"}, transform.ColumnNames(fact)).WillReturnResult(1)
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "public"."fact_sales" AS f`)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	stats, err := w.LoadAll(context.Background(), transform.TableSet{transform.TableFactSales: fact})
	if err != nil {
		t.Fatalf("LoadAll failed: %v", err)
	}
	if stats.Tables[0].Updated != 1 {
		t.Errorf("Expected 1 relinked row, got %d", stats.Tables[0].Updated)
	}
	checkExpectations(t, mock)
}

func customerTable() *transform.CustomerDim {
	return &transform.CustomerDim{Records: []transform.CustomerRow{
		{CustomerKey: 1, CustomerID: "C1", Version: 1, IsCurrent: true, EffectiveEndDate: transform.SCDEndOfTime},
		{CustomerKey: 2, CustomerID: "C2", Version: 1, IsCurrent: true, EffectiveEndDate: transform.SCDEndOfTime},
	}}
}

func TestLoadAllMergesSCD2(t *testing.T) {
	mock, w := newMock(t, Options{})
	customers := customerTable()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`CREATE TEMP TABLE "stage_dim_customer" (LIKE "public"."dim_customer" INCLUDING DEFAULTS) ON COMMIT DROP`)).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"stage_dim_customer"}, transform.ColumnNames(customers)).WillReturnResult(2)
	mock.ExpectExec(regexp.QuoteMeta(`t.row_hash <> s.row_hash`)).
		WithArgs(testNow).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(regexp.QuoteMeta(`t.row_hash = s.row_hash`)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "public"."dim_customer"`)).
		WithArgs(testNow).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	stats, err := w.LoadAll(context.Background(), transform.TableSet{transform.TableDimCustomer: customers})
	if err != nil {
		t.Fatalf("LoadAll failed: %v", err)
	}
	s := stats.Tables[0]
	if s.Mode != SCD2Merge || s.Rows != 2 || s.Expired != 1 || s.Inserted != 2 || s.Updated != 0 {
		t.Errorf("Unexpected merge stats: %+v", s)
	}
	checkExpectations(t, mock)
}

func TestInsertVersionsSQL(t *testing.T) {
	spec := scdTables[transform.TableDimProduct]
	cols := transform.ColumnNames(&transform.ProductDim{})
	sql := insertVersionsSQL(`"public"."dim_product"`, `"stage_dim_product"`, cols, spec)

	for _, want := range []string{
		`base.max_key + ROW_NUMBER() OVER (ORDER BY s."api_product_id")`,
		"COALESCE(prev.version, 0) + 1",
		"CASE WHEN prev.version IS NULL THEN s.effective_start_date ELSE $1 END",
		`COALESCE(MAX("product_key"), 0) AS max_key`,
		"cur.is_current",
		`s."product_name"`,
	} {
		if !strings.Contains(sql, want) {
			t.Errorf("Expected %q in:\n%s", want, sql)
		}
	}
}

func TestRefreshSQL(t *testing.T) {
	sql := refreshSQL(`"public"."dim_customer"`, `"stage_dim_customer"`, scdTables[transform.TableDimCustomer])
	if !strings.Contains(sql, `"total_transactions" = s."total_transactions"`) {
		t.Errorf("Expected type-1 column update in:\n%s", sql)
	}
	if strings.Contains(sql, `"gender" =`) {
		t.Errorf("Expected tracked attributes to stay untouched:\n%s", sql)
	}
}

func TestRecordRun(t *testing.T) {
	mock, w := newMock(t, Options{})

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "public"."etl_run_log"`)).
		WithArgs("run-1", "extract", StatusSuccess, int64(10), 1.5, pgxmock.AnyArg(), testNow).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "public"."etl_run_log"`)).
		WithArgs("run-1", "load", StatusFailed, int64(0), 0.0, "boom", testNow).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	err := w.RecordRun(context.Background(),
		RunLog{RunID: "run-1", Stage: "extract", Status: StatusSuccess, RecordsProcessed: 10, Duration: 1500 * time.Millisecond, StartedAt: testNow},
		RunLog{RunID: "run-1", Stage: "load", Status: StatusFailed, ErrorMessage: "boom", StartedAt: testNow},
	)
	if err != nil {
		t.Fatalf("RecordRun failed: %v", err)
	}
	checkExpectations(t, mock)
}

func TestRecordRunEmpty(t *testing.T) {
	mock, w := newMock(t, Options{})
	if err := w.RecordRun(context.Background()); err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	checkExpectations(t, mock)
}

func TestRecentRuns(t *testing.T) {
	mock, w := newMock(t, Options{})
	rows := pgxmock.NewRows([]string{"run_id", "stage", "status", "records_processed", "duration_seconds", "error_message", "started_at"}).
		AddRow("run-2", "load", StatusSuccess, int64(42), 2.5, "", testNow).
		AddRow("run-1", "load", StatusFailed, int64(0), 0.25, "timeout", testNow)
	mock.ExpectQuery("FROM \"public\".\"etl_run_log\"").WithArgs(5).WillReturnRows(rows)

	runs, err := w.RecentRuns(context.Background(), 5)
	if err != nil {
		t.Fatalf("RecentRuns failed: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("Expected 2 runs, got %d", len(runs))
	}
	if runs[0].RunID != "run-2" || runs[0].Duration != 2500*time.Millisecond || runs[0].RecordsProcessed != 42 {
		t.Errorf("Unexpected first run: %+v", runs[0])
	}
	if runs[1].ErrorMessage != "timeout" {
		t.Errorf("Expected error message, got %q", runs[1].ErrorMessage)
	}
	checkExpectations(t, mock)
}

func TestTableColumns(t *testing.T) {
	for _, name := range transform.TableNames {
		if len(TableColumns(name)) == 0 {
			t.Errorf("Expected columns for %s", name)
		}
	}
	if TableColumns("dim_store") != nil {
		t.Error("Expected nil columns for an unknown table")
	}
}
