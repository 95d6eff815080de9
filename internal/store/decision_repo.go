package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/anthropics/tool-foundry/internal/domain"
)

// DecisionRepo handles persistence for GateDecision records.
type DecisionRepo struct{}

// Insert appends a gate decision. Decisions are immutable once executed.
func (r *DecisionRepo) Insert(ctx context.Context, db *sql.DB, d domain.GateDecision) error {
	approved := 0
	if d.Approved {
		approved = 1
	}
	const q = `INSERT INTO gate_decisions (id, task_id, action, tier, checkpoint_id, approved, outcome, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := db.ExecContext(ctx, q,
		d.ID,
		d.TaskID,
		string(d.Action),
		string(d.Tier),
		d.CheckpointID,
		approved,
		d.Outcome,
		d.CreatedAtUnix,
	)
	if err != nil {
		return fmt.Errorf("insert gate decision: %w", err)
	}
	return nil
}

// ListByTask returns all gate decisions for a task, oldest first.
func (r *DecisionRepo) ListByTask(ctx context.Context, db *sql.DB, taskID string) ([]domain.GateDecision, error) {
	const q = `SELECT id, task_id, action, tier, checkpoint_id, approved, outcome, created_at
FROM gate_decisions
WHERE task_id = ?
ORDER BY created_at ASC, rowid ASC`

	rows, err := db.QueryContext(ctx, q, taskID)
	if err != nil {
		return nil, fmt.Errorf("list gate decisions: %w", err)
	}
	defer rows.Close()

	var out []domain.GateDecision
	for rows.Next() {
		var d domain.GateDecision
		var action, tier string
		var approved int
		if err := rows.Scan(&d.ID, &d.TaskID, &action, &tier, &d.CheckpointID, &approved, &d.Outcome, &d.CreatedAtUnix); err != nil {
			return nil, fmt.Errorf("scan gate decision: %w", err)
		}
		d.Action = domain.GateAction(action)
		d.Tier = domain.GateTier(tier)
		d.Approved = approved != 0
		out = append(out, d)
	}
	return out, rows.Err()
}
