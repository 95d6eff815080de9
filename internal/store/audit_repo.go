package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/anthropics/tool-foundry/internal/domain"
)

// AuditRepo handles persistence for AuditRecord entries. The table is the
// authoritative audit trail: append and read only, no update or delete.
type AuditRepo struct{}

// Record appends an audit record.
func (r *AuditRepo) Record(ctx context.Context, db *sql.DB, rec domain.AuditRecord) error {
	const q = `INSERT INTO audit_records (id, task_id, category, actor, action, request_json, decision_json, severity, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := db.ExecContext(ctx, q,
		rec.ID,
		rec.TaskID,
		rec.Category,
		rec.Actor,
		rec.Action,
		rec.RequestJSON,
		rec.DecisionJSON,
		rec.Severity,
		rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("record audit: %w", err)
	}
	return nil
}

// ListByTask returns all audit records for a given task, oldest first.
func (r *AuditRepo) ListByTask(ctx context.Context, db *sql.DB, taskID string) ([]domain.AuditRecord, error) {
	const q = `SELECT id, task_id, category, actor, action, request_json, decision_json, severity, created_at
FROM audit_records
WHERE task_id = ?
ORDER BY created_at ASC, rowid ASC`
	return r.list(ctx, db, q, taskID)
}

// ListByCategory returns all audit records in a category, oldest first.
func (r *AuditRepo) ListByCategory(ctx context.Context, db *sql.DB, category string) ([]domain.AuditRecord, error) {
	const q = `SELECT id, task_id, category, actor, action, request_json, decision_json, severity, created_at
FROM audit_records
WHERE category = ?
ORDER BY created_at ASC, rowid ASC`
	return r.list(ctx, db, q, category)
}

func (r *AuditRepo) list(ctx context.Context, db *sql.DB, q string, arg string) ([]domain.AuditRecord, error) {
	rows, err := db.QueryContext(ctx, q, arg)
	if err != nil {
		return nil, fmt.Errorf("list audit records: %w", err)
	}
	defer rows.Close()

	var records []domain.AuditRecord
	for rows.Next() {
		var a domain.AuditRecord
		if err := rows.Scan(&a.ID, &a.TaskID, &a.Category, &a.Actor, &a.Action,
			&a.RequestJSON, &a.DecisionJSON, &a.Severity, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit record: %w", err)
		}
		records = append(records, a)
	}
	return records, rows.Err()
}
