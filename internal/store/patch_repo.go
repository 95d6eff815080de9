package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/anthropics/tool-foundry/internal/domain"
)

// PatchRepo handles persistence for ToolPatch records.
type PatchRepo struct{}

// Insert appends a patch record.
func (r *PatchRepo) Insert(ctx context.Context, db *sql.DB, p domain.ToolPatch) error {
	const q = `INSERT INTO tool_patches (id, task_id, attempt, approach, prev_failure, artifact_id, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := db.ExecContext(ctx, q,
		p.ID,
		p.TaskID,
		p.Attempt,
		p.Approach,
		p.PrevFailure,
		p.ArtifactID,
		p.CreatedAtUnix,
	)
	if err != nil {
		return fmt.Errorf("insert patch: %w", err)
	}
	return nil
}

// SetArtifact records the artifact a patch chain eventually produced.
func (r *PatchRepo) SetArtifact(ctx context.Context, db *sql.DB, patchID, artifactID string) error {
	const q = `UPDATE tool_patches SET artifact_id = ? WHERE id = ?`
	if _, err := db.ExecContext(ctx, q, artifactID, patchID); err != nil {
		return fmt.Errorf("set patch artifact: %w", err)
	}
	return nil
}

// ListByTask returns the patch chain for a task ordered by attempt number.
func (r *PatchRepo) ListByTask(ctx context.Context, db *sql.DB, taskID string) ([]domain.ToolPatch, error) {
	const q = `SELECT id, task_id, attempt, approach, prev_failure, artifact_id, created_at
FROM tool_patches
WHERE task_id = ?
ORDER BY attempt ASC`

	rows, err := db.QueryContext(ctx, q, taskID)
	if err != nil {
		return nil, fmt.Errorf("list patches: %w", err)
	}
	defer rows.Close()

	var out []domain.ToolPatch
	for rows.Next() {
		var p domain.ToolPatch
		if err := rows.Scan(&p.ID, &p.TaskID, &p.Attempt, &p.Approach, &p.PrevFailure, &p.ArtifactID, &p.CreatedAtUnix); err != nil {
			return nil, fmt.Errorf("scan patch: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
