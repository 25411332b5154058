package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/pashagolub/pgxmock/v3"

	"github.com/pgEdge/pgedge-retail-etl/internal/db"
	"github.com/pgEdge/pgedge-retail-etl/internal/transform"
	"github.com/pgEdge/pgedge-retail-etl/internal/warehouse"
)

type fakeExtractor struct {
	ext   *transform.Extracted
	errs  []error // returned in order before succeeding
	calls int
}

func (f *fakeExtractor) ExtractAll(ctx context.Context) (*transform.Extracted, error) {
	f.calls++
	if f.calls <= len(f.errs) {
		return nil, f.errs[f.calls-1]
	}
	return f.ext, nil
}

type fakeLoader struct {
	err     error
	loads   int
	tables  transform.TableSet
	entries []warehouse.RunLog
}

func (f *fakeLoader) LoadAll(ctx context.Context, tables transform.TableSet) (warehouse.LoadStats, error) {
	f.loads++
	if f.err != nil {
		return warehouse.LoadStats{}, f.err
	}
	f.tables = tables
	var stats warehouse.LoadStats
	for _, t := range tables.Ordered() {
		stats.Tables = append(stats.Tables, warehouse.TableStats{
			Table:    t.Name(),
			Mode:     warehouse.ModeOf(t.Name()),
			Rows:     int64(t.Len()),
			Inserted: int64(t.Len()),
		})
	}
	return stats, nil
}

func (f *fakeLoader) RecordRun(ctx context.Context, entries ...warehouse.RunLog) error {
	f.entries = append(f.entries, entries...)
	return nil
}

func sampleExtract() *transform.Extracted {
	sales := transform.NewRawTable(
		"Transaction ID", "Date", "Customer ID", "Gender", "Age",
		"Product Category", "Quantity", "Price per Unit", "Total Amount",
	)
	sales.Append("1", "2023-01-05", "CUST001", "Female", "34", "Beauty", "2", "50", "100")
	sales.Append("2", "2023-02-10", "CUST002", "Male", "26", "Clothing", "1", "30", "30")
	sales.Append("3", "2023-02-11", "CUST001", "Female", "34", "Electronics", "1", "500", "500")
	sales.Append("4", "not a date", "CUST003", "Male", "40", "Clothing", "1", "30", "30")

	products := transform.NewRawTable("id", "title", "price", "description", "category", "image", "rating_rate", "rating_count")
	products.Append("1", "Backpack", "109.95", "Fits laptops", "men's clothing", "img", "3.9", "120")

	return &transform.Extracted{
		RetailSales:   sales,
		APIProducts:   products,
		APICategories: []string{"men's clothing", "electronics"},
	}
}

func newTestRunner(t *testing.T, cfg RunnerConfig) *Runner {
	t.Helper()
	if cfg.Transform.DateLayouts == nil {
		cfg.Transform = transform.DefaultConfig()
		cfg.Transform.Now = func() time.Time { return time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC) }
	}
	r, err := NewRunner(cfg)
	if err != nil {
		t.Fatalf("NewRunner failed: %v", err)
	}
	r.newBackOff = func() backoff.BackOff { return &backoff.ZeroBackOff{} }
	r.newRunID = func() string { return "run-1" }
	return r
}

func TestNewRunnerRequiresExtractor(t *testing.T) {
	if _, err := NewRunner(RunnerConfig{}); err == nil {
		t.Error("Expected error without an extractor")
	}
}

func TestRunSuccess(t *testing.T) {
	loader := &fakeLoader{}
	r := newTestRunner(t, RunnerConfig{
		Extractor: &fakeExtractor{ext: sampleExtract()},
		Loader:    loader,
		Quality:   QualityGate{MinRows: map[string]int{transform.TableFactSales: 1}},
		Retry:     RetryPolicy{MaxTries: 3},
		RunLog:    true,
	})

	res, err := r.Run(context.Background(), Options{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.RunID != "run-1" {
		t.Errorf("Expected run id 'run-1', got '%s'", res.RunID)
	}
	if res.Status != warehouse.StatusSuccess {
		t.Errorf("Expected status success, got %s", res.Status)
	}
	if len(res.Stages) != len(Stages) {
		t.Fatalf("Expected %d stages, got %d", len(Stages), len(res.Stages))
	}
	for i, s := range res.Stages {
		if s.Stage != Stages[i] {
			t.Errorf("Expected stage %s at %d, got %s", Stages[i], i, s.Stage)
		}
		if s.Status != warehouse.StatusSuccess {
			t.Errorf("Expected stage %s to succeed, got %s", s.Stage, s.Status)
		}
		if s.Attempts != 1 {
			t.Errorf("Expected 1 attempt for %s, got %d", s.Stage, s.Attempts)
		}
	}
	if res.Extracted[transform.SourceRetailSales] != 4 {
		t.Errorf("Expected 4 extracted sales rows, got %d", res.Extracted[transform.SourceRetailSales])
	}
	if n := res.Transform.FactSales.Len(); n != 3 {
		t.Errorf("Expected 3 fact rows, got %d", n)
	}
	if n := res.Transform.Drops.Total(transform.TableStgRetailSales); n != 1 {
		t.Errorf("Expected 1 dropped row, got %d", n)
	}
	if loader.loads != 1 {
		t.Errorf("Expected one load, got %d", loader.loads)
	}
	if len(loader.tables) != len(transform.TableNames) {
		t.Errorf("Expected %d tables loaded, got %d", len(transform.TableNames), len(loader.tables))
	}
	if len(loader.entries) != len(Stages) {
		t.Errorf("Expected %d run log entries, got %d", len(Stages), len(loader.entries))
	}
	if res.Load.TotalRows() == 0 {
		t.Error("Expected load stats to be recorded")
	}
}

func TestRunSkipLoad(t *testing.T) {
	loader := &fakeLoader{}
	r := newTestRunner(t, RunnerConfig{
		Extractor: &fakeExtractor{ext: sampleExtract()},
		Loader:    loader,
		RunLog:    true,
	})

	res, err := r.Run(context.Background(), Options{SkipLoad: true})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if loader.loads != 0 {
		t.Errorf("Expected no load, got %d", loader.loads)
	}
	if len(loader.entries) != 0 {
		t.Errorf("Expected no run log entries, got %d", len(loader.entries))
	}
	s, ok := res.Stage(StageLoad)
	if !ok || s.Status != warehouse.StatusSkipped {
		t.Errorf("Expected load stage to be skipped, got %+v", s)
	}
}

func TestRunWithoutLoader(t *testing.T) {
	r := newTestRunner(t, RunnerConfig{Extractor: &fakeExtractor{ext: sampleExtract()}})

	res, err := r.Run(context.Background(), Options{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if s, _ := res.Stage(StageLoad); s.Status != warehouse.StatusSkipped {
		t.Errorf("Expected load stage to be skipped, got %s", s.Status)
	}
}

func TestRunExtractOnly(t *testing.T) {
	loader := &fakeLoader{}
	r := newTestRunner(t, RunnerConfig{
		Extractor: &fakeExtractor{ext: sampleExtract()},
		Loader:    loader,
		RunLog:    true,
	})

	res, err := r.Run(context.Background(), Options{ExtractOnly: true})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Transform != nil {
		t.Error("Expected no transform result")
	}
	for _, name := range []string{StageTransform, StageQuality, StageLoad} {
		if s, _ := res.Stage(name); s.Status != warehouse.StatusSkipped {
			t.Errorf("Expected %s to be skipped, got %s", name, s.Status)
		}
	}
	if loader.loads != 0 {
		t.Errorf("Expected no load, got %d", loader.loads)
	}
	if len(loader.entries) != len(Stages) {
		t.Errorf("Expected %d run log entries, got %d", len(Stages), len(loader.entries))
	}
}

func TestRunRetriesTransientExtractErrors(t *testing.T) {
	ext := &fakeExtractor{
		ext:  sampleExtract(),
		errs: []error{errors.New("connection reset"), errors.New("connection reset")},
	}
	r := newTestRunner(t, RunnerConfig{Extractor: ext, Retry: RetryPolicy{MaxTries: 3}})

	res, err := r.Run(context.Background(), Options{SkipLoad: true})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if s, _ := res.Stage(StageExtract); s.Attempts != 3 {
		t.Errorf("Expected 3 extract attempts, got %d", s.Attempts)
	}
}

func TestRunGivesUpAfterMaxTries(t *testing.T) {
	ext := &fakeExtractor{
		ext:  sampleExtract(),
		errs: []error{errors.New("timeout"), errors.New("timeout"), errors.New("timeout")},
	}
	r := newTestRunner(t, RunnerConfig{Extractor: ext, Retry: RetryPolicy{MaxTries: 2}})

	res, err := r.Run(context.Background(), Options{})
	if err == nil {
		t.Fatal("Expected error")
	}
	if res.Status != warehouse.StatusFailed {
		t.Errorf("Expected status failed, got %s", res.Status)
	}
	if ext.calls != 2 {
		t.Errorf("Expected 2 extract calls, got %d", ext.calls)
	}
	if len(res.Stages) != 1 {
		t.Errorf("Expected only the extract stage, got %d stages", len(res.Stages))
	}
}

func TestRunDataErrorIsNotRetried(t *testing.T) {
	empty := &transform.Extracted{RetailSales: transform.NewRawTable("Transaction ID")}
	ext := &fakeExtractor{ext: empty}
	r := newTestRunner(t, RunnerConfig{Extractor: ext, Retry: RetryPolicy{MaxTries: 5}})

	res, err := r.Run(context.Background(), Options{})
	if err == nil {
		t.Fatal("Expected error")
	}
	if !transform.IsDataError(err) {
		t.Errorf("Expected a DataError, got %v", err)
	}
	s, ok := res.Stage(StageValidate)
	if !ok {
		t.Fatal("Expected a validate stage result")
	}
	if s.Attempts != 1 {
		t.Errorf("Expected 1 validate attempt, got %d", s.Attempts)
	}
	if s.Status != warehouse.StatusFailed {
		t.Errorf("Expected validate to fail, got %s", s.Status)
	}
}

func TestRunQualityGateFailure(t *testing.T) {
	loader := &fakeLoader{}
	r := newTestRunner(t, RunnerConfig{
		Extractor: &fakeExtractor{ext: sampleExtract()},
		Loader:    loader,
		Quality:   QualityGate{MinRows: map[string]int{transform.TableFactSales: 100}},
		Retry:     RetryPolicy{MaxTries: 3},
		RunLog:    true,
	})

	res, err := r.Run(context.Background(), Options{})
	var qerr *QualityError
	if !errors.As(err, &qerr) {
		t.Fatalf("Expected QualityError, got %v", err)
	}
	if len(qerr.Failures) != 1 {
		t.Errorf("Expected 1 failure, got %v", qerr.Failures)
	}
	if s, _ := res.Stage(StageQuality); s.Attempts != 1 {
		t.Errorf("Expected 1 quality attempt, got %d", s.Attempts)
	}
	if loader.loads != 0 {
		t.Errorf("Expected no load after a failed gate, got %d", loader.loads)
	}
	if len(loader.entries) != 4 {
		t.Fatalf("Expected 4 run log entries, got %d", len(loader.entries))
	}
	last := loader.entries[3]
	if last.Stage != StageQuality || last.Status != warehouse.StatusFailed || last.ErrorMessage == "" {
		t.Errorf("Expected failed quality entry with a message, got %+v", last)
	}
}

func TestRunLoadFailure(t *testing.T) {
	loader := &fakeLoader{err: errors.New("deadlock detected")}
	r := newTestRunner(t, RunnerConfig{
		Extractor: &fakeExtractor{ext: sampleExtract()},
		Loader:    loader,
		Retry:     RetryPolicy{MaxTries: 2},
	})

	res, err := r.Run(context.Background(), Options{})
	if err == nil {
		t.Fatal("Expected error")
	}
	if loader.loads != 2 {
		t.Errorf("Expected 2 load attempts, got %d", loader.loads)
	}
	if res.Transform == nil {
		t.Error("Expected the transform result to be kept on load failure")
	}
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ext := &fakeExtractor{ext: sampleExtract(), errs: []error{context.Canceled}}
	r := newTestRunner(t, RunnerConfig{Extractor: ext, Retry: RetryPolicy{MaxTries: 3}})

	if _, err := r.Run(ctx, Options{}); err == nil {
		t.Fatal("Expected error for cancelled context")
	}
	if ext.calls > 1 {
		t.Errorf("Expected no retries after cancellation, got %d calls", ext.calls)
	}
}

func TestRunUpdatesMetadata(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	defer mock.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS etl_metadata").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("INSERT INTO etl_metadata").WithArgs(db.KeyLastRunAt, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO etl_metadata").WithArgs(db.KeyLastRunID, "run-1").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	r := newTestRunner(t, RunnerConfig{
		Extractor: &fakeExtractor{ext: sampleExtract()},
		Loader:    &fakeLoader{},
		Metadata:  mock,
	})

	if _, err := r.Run(context.Background(), Options{}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unmet expectations: %v", err)
	}
}
