package warehouse

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// Run statuses.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

// RunLog is one etl_run_log row.
type RunLog struct {
	RunID            string
	Stage            string
	Status           string
	RecordsProcessed int64
	Duration         time.Duration
	ErrorMessage     string
	StartedAt        time.Time
}

// RecordRun appends entries to the run log.
func (w *Warehouse) RecordRun(ctx context.Context, entries ...RunLog) error {
	if len(entries) == 0 {
		return nil
	}
	sql := fmt.Sprintf(`INSERT INTO %s
    (run_id, stage, status, records_processed, duration_seconds, error_message, started_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`, w.ident(TableRunLog))

	return w.inTx(ctx, func(tx pgx.Tx) error {
		for _, e := range entries {
			var errMsg any
			if e.ErrorMessage != "" {
				errMsg = e.ErrorMessage
			}
			_, err := tx.Exec(ctx, sql, e.RunID, e.Stage, e.Status, e.RecordsProcessed,
				e.Duration.Seconds(), errMsg, e.StartedAt.UTC())
			if err != nil {
				return fmt.Errorf("failed to record run: %w", err)
			}
		}
		return nil
	})
}

// RecentRuns returns the newest run log entries, newest first.
func (w *Warehouse) RecentRuns(ctx context.Context, limit int) ([]RunLog, error) {
	rows, err := w.conn.Query(ctx, fmt.Sprintf(`
        SELECT run_id, stage, status, records_processed, duration_seconds,
               COALESCE(error_message, ''), started_at
        FROM %s
        ORDER BY id DESC
        LIMIT $1
    `, w.ident(TableRunLog)), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query run log: %w", err)
	}
	defer rows.Close()

	var out []RunLog
	for rows.Next() {
		var e RunLog
		var seconds float64
		if err := rows.Scan(&e.RunID, &e.Stage, &e.Status, &e.RecordsProcessed, &seconds, &e.ErrorMessage, &e.StartedAt); err != nil {
			return nil, fmt.Errorf("failed to scan run log: %w", err)
		}
		e.Duration = time.Duration(seconds * float64(time.Second))
		out = append(out, e)
	}
	return out, rows.Err()
}
