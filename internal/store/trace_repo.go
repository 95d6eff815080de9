package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/anthropics/tool-foundry/internal/domain"
)

// TraceRepo handles persistence for ExecutionTrace records.
// Traces are append-only; there is deliberately no update method.
type TraceRepo struct{}

// Insert appends an execution trace.
func (r *TraceRepo) Insert(ctx context.Context, db *sql.DB, t domain.ExecutionTrace) error {
	const q = `INSERT INTO execution_traces (trace_id, task_id, artifact_id, args_json, stdout, stderr, exit_code, duration_ms, stage, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := db.ExecContext(ctx, q,
		t.TraceID,
		t.TaskID,
		t.ArtifactID,
		t.ArgsJSON,
		t.Stdout,
		t.Stderr,
		t.ExitCode,
		t.DurationMS,
		string(t.Stage),
		t.CreatedAtUnix,
	)
	if err != nil {
		return fmt.Errorf("insert trace: %w", err)
	}
	return nil
}

// GetByID retrieves a trace by its ID.
func (r *TraceRepo) GetByID(ctx context.Context, db *sql.DB, traceID string) (*domain.ExecutionTrace, error) {
	const q = `SELECT trace_id, task_id, artifact_id, args_json, stdout, stderr, exit_code, duration_ms, stage, created_at
FROM execution_traces WHERE trace_id = ?`

	row := db.QueryRowContext(ctx, q, traceID)

	var t domain.ExecutionTrace
	var stage string
	err := row.Scan(&t.TraceID, &t.TaskID, &t.ArtifactID, &t.ArgsJSON, &t.Stdout,
		&t.Stderr, &t.ExitCode, &t.DurationMS, &stage, &t.CreatedAtUnix)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get trace: %w", err)
	}
	t.Stage = domain.VerifyStage(stage)
	return &t, nil
}

// ListByTask returns all traces for a task in insertion order, for audit
// and for the refiner's error analysis.
func (r *TraceRepo) ListByTask(ctx context.Context, db *sql.DB, taskID string) ([]domain.ExecutionTrace, error) {
	const q = `SELECT trace_id, task_id, artifact_id, args_json, stdout, stderr, exit_code, duration_ms, stage, created_at
FROM execution_traces
WHERE task_id = ?
ORDER BY created_at ASC, rowid ASC`

	rows, err := db.QueryContext(ctx, q, taskID)
	if err != nil {
		return nil, fmt.Errorf("list traces: %w", err)
	}
	defer rows.Close()

	var out []domain.ExecutionTrace
	for rows.Next() {
		var t domain.ExecutionTrace
		var stage string
		if err := rows.Scan(&t.TraceID, &t.TaskID, &t.ArtifactID, &t.ArgsJSON, &t.Stdout,
			&t.Stderr, &t.ExitCode, &t.DurationMS, &stage, &t.CreatedAtUnix); err != nil {
			return nil, fmt.Errorf("scan trace: %w", err)
		}
		t.Stage = domain.VerifyStage(stage)
		out = append(out, t)
	}
	return out, rows.Err()
}
