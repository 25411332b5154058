//-------------------------------------------------------------------------
//
// pgEdge Retail ETL
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package pipeline sequences one ETL run: extract, validate, transform,
// quality gate and load, with per-stage retries and a run log.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"

	"github.com/pgEdge/pgedge-retail-etl/internal/db"
	"github.com/pgEdge/pgedge-retail-etl/internal/extract"
	"github.com/pgEdge/pgedge-retail-etl/internal/logging"
	"github.com/pgEdge/pgedge-retail-etl/internal/transform"
	"github.com/pgEdge/pgedge-retail-etl/internal/warehouse"
)

// Stage names, in execution order.
const (
	StageExtract   = "extract"
	StageValidate  = "validate"
	StageTransform = "transform"
	StageQuality   = "quality"
	StageLoad      = "load"
)

// Stages lists the stages in execution order.
var Stages = []string{StageExtract, StageValidate, StageTransform, StageQuality, StageLoad}

// Extractor produces the raw inputs of a run.
type Extractor interface {
	ExtractAll(ctx context.Context) (*transform.Extracted, error)
}

// Loader writes a table set to the warehouse and records the run log.
type Loader interface {
	LoadAll(ctx context.Context, tables transform.TableSet) (warehouse.LoadStats, error)
	RecordRun(ctx context.Context, entries ...warehouse.RunLog) error
}

// RetryPolicy controls stage retries.
type RetryPolicy struct {
	MaxTries        int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// RunnerConfig holds configuration for the runner.
type RunnerConfig struct {
	Extractor Extractor
	// Loader is optional; without one the load stage is skipped.
	Loader Loader
	// Metadata receives the last run id and time after a load.
	Metadata  db.Querier
	Transform transform.Config
	Quality   QualityGate
	Retry     RetryPolicy
	// RunLog records one etl_run_log row per stage.
	RunLog bool
}

// Options select which stages a run executes.
type Options struct {
	// ExtractOnly stops after validating the extracted inputs.
	ExtractOnly bool
	// SkipLoad stops after the quality gate.
	SkipLoad bool
}

// Runner executes pipeline runs.
type Runner struct {
	extractor Extractor
	loader    Loader
	metadata  db.Querier
	transform transform.Config
	quality   QualityGate
	retry     RetryPolicy
	runLog    bool

	// Swapped in tests.
	newBackOff func() backoff.BackOff
	newRunID   func() string
}

// NewRunner creates a runner.
func NewRunner(cfg RunnerConfig) (*Runner, error) {
	if cfg.Extractor == nil {
		return nil, fmt.Errorf("extractor is required")
	}

	retry := cfg.Retry
	if retry.MaxTries < 1 {
		retry.MaxTries = 1
	}

	return &Runner{
		extractor: cfg.Extractor,
		loader:    cfg.Loader,
		metadata:  cfg.Metadata,
		transform: cfg.Transform,
		quality:   cfg.Quality,
		retry:     retry,
		runLog:    cfg.RunLog,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			if retry.InitialInterval > 0 {
				b.InitialInterval = retry.InitialInterval
			}
			if retry.MaxInterval > 0 {
				b.MaxInterval = retry.MaxInterval
			}
			return b
		},
		newRunID: uuid.NewString,
	}, nil
}

// StageResult is the outcome of one stage.
type StageResult struct {
	Stage    string
	Status   string
	Attempts int
	Records  int64
	Duration time.Duration
	Err      error
}

// Result is the outcome of one run.
type Result struct {
	RunID     string
	Status    string
	StartedAt time.Time
	Duration  time.Duration

	Stages    []StageResult
	Extracted map[string]int
	Transform *transform.Result
	Load      warehouse.LoadStats
}

// Stage returns the result of a stage, if it ran or was skipped.
func (r *Result) Stage(name string) (StageResult, bool) {
	for _, s := range r.Stages {
		if s.Stage == name {
			return s, true
		}
	}
	return StageResult{}, false
}

// Run executes one pipeline run. The returned Result is non-nil even when
// a stage fails, so callers can report partial progress.
func (r *Runner) Run(ctx context.Context, opts Options) (*Result, error) {
	res := &Result{
		RunID:     r.newRunID(),
		StartedAt: time.Now().UTC(),
	}
	log := logging.Stage("pipeline", res.RunID)
	log.Info().
		Bool("extract_only", opts.ExtractOnly).
		Bool("skip_load", opts.SkipLoad).
		Msg("Starting pipeline run")

	err := r.execute(ctx, res, opts)

	res.Duration = time.Since(res.StartedAt)
	res.Status = warehouse.StatusSuccess
	if err != nil {
		res.Status = warehouse.StatusFailed
	}
	r.finish(ctx, res, opts)

	if err != nil {
		log.Error().Err(err).Dur("duration", res.Duration).Msg("Pipeline run failed")
		return res, err
	}
	log.Info().Dur("duration", res.Duration).Msg("Pipeline run complete")
	return res, nil
}

func (r *Runner) execute(ctx context.Context, res *Result, opts Options) error {
	var ext *transform.Extracted
	err := r.stage(ctx, res, StageExtract, func() (int64, error) {
		var err error
		ext, err = r.extractor.ExtractAll(ctx)
		if err != nil {
			return 0, err
		}
		res.Extracted = extract.Summary(ext)
		return int64(ext.RetailSales.Len()), nil
	})
	if err != nil {
		return err
	}

	err = r.stage(ctx, res, StageValidate, func() (int64, error) {
		return int64(ext.RetailSales.Len()), extract.Validate(ext)
	})
	if err != nil {
		return err
	}

	if opts.ExtractOnly {
		r.skip(res, StageTransform, StageQuality, StageLoad)
		return nil
	}

	err = r.stage(ctx, res, StageTransform, func() (int64, error) {
		out, err := transform.TransformAll(ctx, ext, r.transform)
		if err != nil {
			return 0, err
		}
		res.Transform = out
		return int64(out.FactSales.Len()), nil
	})
	if err != nil {
		return err
	}
	r.logAnomalies(res)

	err = r.stage(ctx, res, StageQuality, func() (int64, error) {
		return int64(len(r.quality.MinRows)), r.quality.Check(res.Transform, ext.RetailSales.Len())
	})
	if err != nil {
		return err
	}

	if opts.SkipLoad || r.loader == nil {
		r.skip(res, StageLoad)
		return nil
	}

	return r.stage(ctx, res, StageLoad, func() (int64, error) {
		stats, err := r.loader.LoadAll(ctx, res.Transform.Tables())
		if err != nil {
			return 0, err
		}
		res.Load = stats
		return stats.TotalRows(), nil
	})
}

// stage runs fn with retries. Data and quality errors are not retried.
func (r *Runner) stage(ctx context.Context, res *Result, name string, fn func() (int64, error)) error {
	log := logging.Stage(name, res.RunID)
	sr := StageResult{Stage: name}
	start := time.Now()

	records, err := backoff.Retry(ctx, func() (int64, error) {
		sr.Attempts++
		if sr.Attempts > 1 {
			log.Warn().Int("attempt", sr.Attempts).Msg("Retrying stage")
		}
		n, err := fn()
		if err != nil && !retryable(err) {
			return n, backoff.Permanent(err)
		}
		return n, err
	}, backoff.WithBackOff(r.newBackOff()), backoff.WithMaxTries(uint(r.retry.MaxTries)))

	sr.Duration = time.Since(start)
	sr.Records = records
	if err != nil {
		sr.Status = warehouse.StatusFailed
		sr.Err = err
		res.Stages = append(res.Stages, sr)
		log.Error().Err(err).Int("attempts", sr.Attempts).Dur("duration", sr.Duration).Msg("Stage failed")
		return fmt.Errorf("%s stage failed: %w", name, err)
	}

	sr.Status = warehouse.StatusSuccess
	res.Stages = append(res.Stages, sr)
	log.Info().Int64("records", records).Dur("duration", sr.Duration).Msg("Stage complete")
	return nil
}

func (r *Runner) skip(res *Result, names ...string) {
	for _, name := range names {
		res.Stages = append(res.Stages, StageResult{Stage: name, Status: warehouse.StatusSkipped})
	}
}

func retryable(err error) bool {
	if transform.IsDataError(err) {
		return false
	}
	var qerr *QualityError
	if errors.As(err, &qerr) {
		return false
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

func (r *Runner) logAnomalies(res *Result) {
	out := res.Transform
	for _, table := range []string{transform.TableStgRetailSales, transform.TableStgAPIProducts} {
		if n := out.Drops.Total(table); n > 0 {
			ev := logging.Warn().Str("run_id", res.RunID).Str("table", table).Int("dropped", n)
			for _, reason := range out.Drops.Reasons(table) {
				ev = ev.Int(string(reason), out.Drops.Count(table, reason))
			}
			ev.Msg("Rows dropped during cleaning")
		}
	}
	if out.Drops.AmountDiscrepancies > 0 {
		logging.Warn().
			Str("run_id", res.RunID).
			Int("rows", out.Drops.AmountDiscrepancies).
			Msg("Source total_amount differed from quantity * price_per_unit")
	}
	if l := out.Links; l.CustomerMisses+l.CategoryMisses+l.DateMisses > 0 {
		logging.Warn().
			Str("run_id", res.RunID).
			Int("customer_misses", l.CustomerMisses).
			Int("category_misses", l.CategoryMisses).
			Int("date_misses", l.DateMisses).
			Msg("Fact rows with unresolved keys")
	}
}

// finish writes the run log and run metadata. Failures here are logged
// and do not change the run status.
func (r *Runner) finish(ctx context.Context, res *Result, opts Options) {
	if r.loader == nil || opts.SkipLoad {
		return
	}

	if r.runLog {
		entries := make([]warehouse.RunLog, 0, len(res.Stages))
		for _, s := range res.Stages {
			entry := warehouse.RunLog{
				RunID:            res.RunID,
				Stage:            s.Stage,
				Status:           s.Status,
				RecordsProcessed: s.Records,
				Duration:         s.Duration,
				StartedAt:        res.StartedAt,
			}
			if s.Err != nil {
				entry.ErrorMessage = s.Err.Error()
			}
			entries = append(entries, entry)
		}
		if err := r.loader.RecordRun(ctx, entries...); err != nil {
			logging.Warn().Err(err).Str("run_id", res.RunID).Msg("Failed to record run log")
		}
	}

	if r.metadata != nil && res.Status == warehouse.StatusSuccess && !opts.ExtractOnly {
		err := db.SetMetadata(ctx, r.metadata, map[string]string{
			db.KeyLastRunID: res.RunID,
			db.KeyLastRunAt: res.StartedAt.Format(time.RFC3339),
		})
		if err != nil {
			logging.Warn().Err(err).Str("run_id", res.RunID).Msg("Failed to update run metadata")
		}
	}
}
