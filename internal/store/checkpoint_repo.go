package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/anthropics/tool-foundry/internal/domain"
)

// CheckpointRepo handles persistence for Checkpoint records.
type CheckpointRepo struct{}

// Create inserts a new checkpoint in the open state.
func (r *CheckpointRepo) Create(ctx context.Context, db *sql.DB, cp domain.Checkpoint) error {
	const q = `INSERT INTO checkpoints (id, task_id, max_artifact_row, status, created_at)
VALUES (?, ?, ?, ?, ?)`
	_, err := db.ExecContext(ctx, q,
		cp.ID,
		cp.TaskID,
		cp.MaxArtifactRow,
		string(cp.Status),
		cp.CreatedAtUnix,
	)
	if err != nil {
		return fmt.Errorf("create checkpoint: %w", err)
	}
	return nil
}

// GetByID retrieves a checkpoint, or nil if it does not exist.
func (r *CheckpointRepo) GetByID(ctx context.Context, db *sql.DB, id string) (*domain.Checkpoint, error) {
	const q = `SELECT id, task_id, max_artifact_row, status, created_at
FROM checkpoints WHERE id = ?`

	row := db.QueryRowContext(ctx, q, id)

	var cp domain.Checkpoint
	var status string
	err := row.Scan(&cp.ID, &cp.TaskID, &cp.MaxArtifactRow, &status, &cp.CreatedAtUnix)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get checkpoint: %w", err)
	}
	cp.Status = domain.CheckpointStatus(status)
	return &cp, nil
}

// SetStatus moves a checkpoint out of the open state. The transition only
// succeeds while the checkpoint is still open.
func (r *CheckpointRepo) SetStatus(ctx context.Context, db *sql.DB, id string, status domain.CheckpointStatus) error {
	const q = `UPDATE checkpoints SET status = ? WHERE id = ? AND status = 'open'`
	res, err := db.ExecContext(ctx, q, string(status), id)
	if err != nil {
		return fmt.Errorf("set checkpoint status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if n == 0 {
		return domain.ErrCheckpointNotOpen
	}
	return nil
}

// ListOpen returns all checkpoints still in the open state, oldest first.
// A non-empty result after a task completes indicates a crashed run.
func (r *CheckpointRepo) ListOpen(ctx context.Context, db *sql.DB) ([]domain.Checkpoint, error) {
	const q = `SELECT id, task_id, max_artifact_row, status, created_at
FROM checkpoints
WHERE status = 'open'
ORDER BY created_at ASC, rowid ASC`

	rows, err := db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list open checkpoints: %w", err)
	}
	defer rows.Close()

	var out []domain.Checkpoint
	for rows.Next() {
		var cp domain.Checkpoint
		var status string
		if err := rows.Scan(&cp.ID, &cp.TaskID, &cp.MaxArtifactRow, &status, &cp.CreatedAtUnix); err != nil {
			return nil, fmt.Errorf("scan checkpoint: %w", err)
		}
		cp.Status = domain.CheckpointStatus(status)
		out = append(out, cp)
	}
	return out, rows.Err()
}
