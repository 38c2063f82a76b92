package journal

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/guardian/internal/canon"
	"github.com/roach88/guardian/internal/history"
)

// ReadRuns returns all runs ordered by id.
// Run ids are UUIDv7, so this is creation order.
//
// Returns an empty slice (not nil) if the journal is empty.
func (j *Journal) ReadRuns(ctx context.Context) ([]Run, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, store, backend, kind, workers, ops, final
		FROM runs
		ORDER BY id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// ReadRun retrieves a single run by id.
// Returns sql.ErrNoRows if not found.
func (j *Journal) ReadRun(ctx context.Context, id string) (Run, error) {
	row := j.db.QueryRowContext(ctx, `
		SELECT id, store, backend, kind, workers, ops, final
		FROM runs
		WHERE id = ?
	`, id)
	return scanRun(row)
}

// ReadRecords returns the operations of a run ordered by invoke_seq, id.
//
// Returns an empty slice (not nil) if the run has no operations.
func (j *Journal) ReadRecords(ctx context.Context, runID string) ([]history.Record, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, store, kind, args, result, outcome, error,
		       invoke_seq, acquire_seq, release_seq, return_seq
		FROM operations
		WHERE run_id = ?
		ORDER BY invoke_seq ASC, id COLLATE BINARY ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query operations: %w", err)
	}
	defer rows.Close()

	records := []history.Record{}
	for rows.Next() {
		var r history.Record
		var argsJSON, resultJSON string
		if err := rows.Scan(
			&r.ID, &r.Store, &r.Kind, &argsJSON, &resultJSON, &r.Case, &r.Error,
			&r.Invoke, &r.Acquire, &r.Release, &r.Return,
		); err != nil {
			return nil, fmt.Errorf("scan operation: %w", err)
		}

		args, err := unmarshalArgs(argsJSON)
		if err != nil {
			return nil, fmt.Errorf("operation %s: %w", r.ID, err)
		}
		r.Args = args

		if r.Result, err = canon.Unmarshal([]byte(resultJSON)); err != nil {
			return nil, fmt.Errorf("operation %s: result: %w", r.ID, err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate operations: %w", err)
	}
	return records, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (Run, error) {
	var run Run
	var finalJSON string
	if err := row.Scan(&run.ID, &run.Store, &run.Backend, &run.Kind, &run.Workers, &run.Ops, &finalJSON); err != nil {
		if err == sql.ErrNoRows {
			return Run{}, err
		}
		return Run{}, fmt.Errorf("scan run: %w", err)
	}

	final, err := canon.Unmarshal([]byte(finalJSON))
	if err != nil {
		return Run{}, fmt.Errorf("run %s: final state: %w", run.ID, err)
	}
	run.Final = final
	return run, nil
}

func unmarshalArgs(data string) (map[string]any, error) {
	if data == "" || data == "{}" {
		return nil, nil
	}
	v, err := canon.Unmarshal([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("unmarshal args: %w", err)
	}
	args, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("unmarshal args: expected object, got %T", v)
	}
	return args, nil
}
