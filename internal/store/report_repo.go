package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/anthropics/tool-foundry/internal/domain"
)

// ReportRepo handles persistence for ErrorReport records.
type ReportRepo struct{}

// Insert appends an error report.
func (r *ReportRepo) Insert(ctx context.Context, db *sql.DB, rep domain.ErrorReport) error {
	const q = `INSERT INTO error_reports (id, kind, root_cause, trace_id, attempt, created_at)
VALUES (?, ?, ?, ?, ?, ?)`
	_, err := db.ExecContext(ctx, q,
		rep.ID,
		string(rep.Kind),
		rep.RootCause,
		rep.TraceID,
		rep.Attempt,
		rep.CreatedAtUnix,
	)
	if err != nil {
		return fmt.Errorf("insert error report: %w", err)
	}
	return nil
}

// ListByTrace returns the reports filed against a trace, oldest first.
func (r *ReportRepo) ListByTrace(ctx context.Context, db *sql.DB, traceID string) ([]domain.ErrorReport, error) {
	const q = `SELECT id, kind, root_cause, trace_id, attempt, created_at
FROM error_reports
WHERE trace_id = ?
ORDER BY created_at ASC, rowid ASC`

	rows, err := db.QueryContext(ctx, q, traceID)
	if err != nil {
		return nil, fmt.Errorf("list error reports: %w", err)
	}
	defer rows.Close()

	var out []domain.ErrorReport
	for rows.Next() {
		var rep domain.ErrorReport
		var kind string
		if err := rows.Scan(&rep.ID, &kind, &rep.RootCause, &rep.TraceID, &rep.Attempt, &rep.CreatedAtUnix); err != nil {
			return nil, fmt.Errorf("scan error report: %w", err)
		}
		rep.Kind = domain.ErrorKind(kind)
		out = append(out, rep)
	}
	return out, rows.Err()
}
