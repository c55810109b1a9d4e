package db

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrRunNotFound is wrapped by lookups and deletes of missing run IDs.
var ErrRunNotFound = errors.New("run not found")

// EvalRun is one persisted metric evaluation: which dataset and metric,
// how the evaluation was configured and distributed, and what it scored.
type EvalRun struct {
	RunID        string  `json:"run_id"`
	Dataset      string  `json:"dataset"`
	Metric       string  `json:"metric"`
	Distribution string  `json:"distribution,omitempty"`
	Scale        float64 `json:"scale,omitempty"`
	Split        string  `json:"split"`
	Workers      int     `json:"workers"`
	RowCount     int     `json:"row_count"`
	TotalWeight  float64 `json:"total_weight"`
	Value        float64 `json:"value"`
	DurationMs   int64   `json:"duration_ms"`
	CreatedAt    int64   `json:"created_at"`
}

const runColumns = `run_id, dataset, metric, distribution, scale, split,
	workers, row_count, total_weight, value, duration_ms, created_at`

// InsertRun persists a run. A missing RunID gets a fresh UUID and a
// missing CreatedAt gets the current time.
func (db *DB) InsertRun(run *EvalRun) error {
	if run.RunID == "" {
		run.RunID = uuid.New().String()
	}
	if run.CreatedAt == 0 {
		run.CreatedAt = db.clock.Now().UnixNano()
	}

	// The accuracy metric has no distribution; store NULLs rather than
	// an empty string and a meaningless scale.
	var distribution interface{}
	var scale interface{}
	if run.Distribution != "" {
		distribution = run.Distribution
		scale = run.Scale
	}

	return retryOnBusy(func() error {
		_, err := db.Exec(`
			INSERT INTO eval_runs (`+runColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			run.RunID, run.Dataset, run.Metric, distribution, scale, run.Split,
			run.Workers, run.RowCount, run.TotalWeight, run.Value, run.DurationMs, run.CreatedAt,
		)
		return err
	})
}

// ListRuns returns the most recent runs, newest first. A non-positive
// limit returns up to 100 runs.
func (db *DB) ListRuns(limit int) ([]*EvalRun, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.Query(`
		SELECT `+runColumns+`
		FROM eval_runs
		ORDER BY created_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []*EvalRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// ListRunsByDataset returns the most recent runs for one dataset,
// newest first.
func (db *DB) ListRunsByDataset(dataset string, limit int) ([]*EvalRun, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.Query(`
		SELECT `+runColumns+`
		FROM eval_runs
		WHERE dataset = ?
		ORDER BY created_at DESC
		LIMIT ?`, dataset, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs for %s: %w", dataset, err)
	}
	defer rows.Close()

	var runs []*EvalRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// GetRun returns a single run by ID.
func (db *DB) GetRun(runID string) (*EvalRun, error) {
	row := db.QueryRow(`
		SELECT `+runColumns+`
		FROM eval_runs
		WHERE run_id = ?`, runID)

	var run EvalRun
	var distribution sql.NullString
	var scale sql.NullFloat64
	err := row.Scan(
		&run.RunID, &run.Dataset, &run.Metric, &distribution, &scale, &run.Split,
		&run.Workers, &run.RowCount, &run.TotalWeight, &run.Value, &run.DurationMs, &run.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("run %s: %w", runID, ErrRunNotFound)
		}
		return nil, fmt.Errorf("scan run: %w", err)
	}
	run.Distribution = distribution.String
	run.Scale = scale.Float64
	return &run, nil
}

// DeleteRun removes a run by ID.
func (db *DB) DeleteRun(runID string) error {
	return retryOnBusy(func() error {
		result, err := db.Exec(`DELETE FROM eval_runs WHERE run_id = ?`, runID)
		if err != nil {
			return fmt.Errorf("delete run: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if affected == 0 {
			return fmt.Errorf("run %s: %w", runID, ErrRunNotFound)
		}
		return nil
	})
}

func scanRun(rows *sql.Rows) (*EvalRun, error) {
	var run EvalRun
	var distribution sql.NullString
	var scale sql.NullFloat64
	err := rows.Scan(
		&run.RunID, &run.Dataset, &run.Metric, &distribution, &scale, &run.Split,
		&run.Workers, &run.RowCount, &run.TotalWeight, &run.Value, &run.DurationMs, &run.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan run row: %w", err)
	}
	run.Distribution = distribution.String
	run.Scale = scale.Float64
	return &run, nil
}
