package journal

import (
	"context"
	"fmt"

	"github.com/roach88/guardian/internal/canon"
	"github.com/roach88/guardian/internal/history"
)

// Run describes one recorded run against a single store.
type Run struct {
	ID      string `json:"id"`
	Store   string `json:"store"`
	Backend string `json:"backend"`
	Kind    string `json:"kind"`
	Workers int    `json:"workers"`
	Ops     int    `json:"ops"`
	Final   any    `json:"final"` // final state, canonical-JSON encodable
}

// WriteRun inserts a run and its operations in one transaction.
// Uses ON CONFLICT(id) DO NOTHING for idempotency - writing the same run
// twice is silently ignored.
func (j *Journal) WriteRun(ctx context.Context, run Run, records []history.Record) error {
	final, err := marshalValue(run.Final)
	if err != nil {
		return fmt.Errorf("write run %s: final state: %w", run.ID, err)
	}

	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write run %s: begin tx: %w", run.ID, err)
	}
	defer tx.Rollback() // No-op if committed

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, store, backend, kind, workers, ops, final)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		run.ID,
		run.Store,
		run.Backend,
		run.Kind,
		run.Workers,
		run.Ops,
		final,
	)
	if err != nil {
		return fmt.Errorf("write run %s: %w", run.ID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO operations
		(id, run_id, store, kind, args, result, outcome, error,
		 invoke_seq, acquire_seq, release_seq, return_seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("write run %s: prepare: %w", run.ID, err)
	}
	defer stmt.Close()

	for _, r := range records {
		args, err := marshalArgs(r.Args)
		if err != nil {
			return fmt.Errorf("write operation %s: %w", r.ID, err)
		}
		result, err := marshalValue(r.Result)
		if err != nil {
			return fmt.Errorf("write operation %s: result: %w", r.ID, err)
		}

		_, err = stmt.ExecContext(ctx,
			r.ID,
			run.ID,
			r.Store,
			r.Kind,
			args,
			result,
			r.Case,
			r.Error,
			r.Invoke,
			r.Acquire,
			r.Release,
			r.Return,
		)
		if err != nil {
			return fmt.Errorf("write operation %s: %w", r.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write run %s: commit: %w", run.ID, err)
	}
	return nil
}

func marshalArgs(args map[string]any) (string, error) {
	if len(args) == 0 {
		return "{}", nil
	}
	data, err := canon.Marshal(args)
	if err != nil {
		return "", fmt.Errorf("marshal args: %w", err)
	}
	return string(data), nil
}

func marshalValue(v any) (string, error) {
	data, err := canon.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
