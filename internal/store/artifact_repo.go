package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/anthropics/tool-foundry/internal/domain"
)

// ArtifactRepo handles persistence for ToolArtifact metadata rows.
type ArtifactRepo struct{}

// InsertTx inserts a new artifact row within an existing transaction.
// The UNIQUE constraint on content_hash makes a duplicate insert fail
// rather than silently overwrite.
func (r *ArtifactRepo) InsertTx(ctx context.Context, tx *sql.Tx, a domain.ToolArtifact) error {
	caps, err := json.Marshal(a.Capabilities)
	if err != nil {
		return fmt.Errorf("marshal capabilities: %w", err)
	}

	const q = `INSERT INTO tool_artifacts (artifact_id, name, version, content_hash, storage_path, category, capabilities_json, contract_id, status, highest_stage, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = tx.ExecContext(ctx, q,
		a.ID,
		a.Name,
		a.Version,
		a.ContentHash,
		a.StoragePath,
		string(a.Category),
		string(caps),
		a.ContractID,
		string(a.Status),
		string(a.HighestStage),
		a.CreatedAtUnix,
	)
	if err != nil {
		return fmt.Errorf("insert artifact: %w", err)
	}
	return nil
}

const artifactColumns = `artifact_id, name, version, content_hash, storage_path, category, capabilities_json, contract_id, status, highest_stage, created_at`

func scanArtifact(row *sql.Row) (*domain.ToolArtifact, error) {
	var a domain.ToolArtifact
	var category, status, stage, caps string
	err := row.Scan(&a.ID, &a.Name, &a.Version, &a.ContentHash, &a.StoragePath,
		&category, &caps, &a.ContractID, &status, &stage, &a.CreatedAtUnix)
	if err != nil {
		return nil, err
	}
	a.Category = domain.ToolCategory(category)
	a.Status = domain.ToolStatus(status)
	a.HighestStage = domain.VerifyStage(stage)
	if err := json.Unmarshal([]byte(caps), &a.Capabilities); err != nil {
		return nil, fmt.Errorf("unmarshal capabilities: %w", err)
	}
	return &a, nil
}

// GetByHash returns the artifact with the given content hash, or nil if
// none exists.
func (r *ArtifactRepo) GetByHash(ctx context.Context, db *sql.DB, hash string) (*domain.ToolArtifact, error) {
	q := `SELECT ` + artifactColumns + ` FROM tool_artifacts WHERE content_hash = ?`
	a, err := scanArtifact(db.QueryRowContext(ctx, q, hash))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get artifact by hash: %w", err)
	}
	return a, nil
}

// GetByHashTx is the transactional variant of GetByHash.
func (r *ArtifactRepo) GetByHashTx(ctx context.Context, tx *sql.Tx, hash string) (*domain.ToolArtifact, error) {
	q := `SELECT ` + artifactColumns + ` FROM tool_artifacts WHERE content_hash = ?`
	a, err := scanArtifact(tx.QueryRowContext(ctx, q, hash))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get artifact by hash: %w", err)
	}
	return a, nil
}

// GetByID retrieves an artifact by its ID.
func (r *ArtifactRepo) GetByID(ctx context.Context, db *sql.DB, id string) (*domain.ToolArtifact, error) {
	q := `SELECT ` + artifactColumns + ` FROM tool_artifacts WHERE artifact_id = ?`
	a, err := scanArtifact(db.QueryRowContext(ctx, q, id))
	if err == sql.ErrNoRows {
		return nil, domain.ErrArtifactNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get artifact: %w", err)
	}
	return a, nil
}

// GetLatestByName returns the most recently created artifact under a name,
// or nil if the name is unknown.
func (r *ArtifactRepo) GetLatestByName(ctx context.Context, db *sql.DB, name string) (*domain.ToolArtifact, error) {
	q := `SELECT ` + artifactColumns + ` FROM tool_artifacts WHERE name = ? ORDER BY created_at DESC, rowid DESC LIMIT 1`
	a, err := scanArtifact(db.QueryRowContext(ctx, q, name))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get artifact by name: %w", err)
	}
	return a, nil
}

// List returns all artifacts ordered by creation time.
func (r *ArtifactRepo) List(ctx context.Context, db *sql.DB) ([]domain.ToolArtifact, error) {
	q := `SELECT ` + artifactColumns + ` FROM tool_artifacts ORDER BY created_at ASC, rowid ASC`

	rows, err := db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	defer rows.Close()

	var out []domain.ToolArtifact
	for rows.Next() {
		var a domain.ToolArtifact
		var category, status, stage, caps string
		if err := rows.Scan(&a.ID, &a.Name, &a.Version, &a.ContentHash, &a.StoragePath,
			&category, &caps, &a.ContractID, &status, &stage, &a.CreatedAtUnix); err != nil {
			return nil, fmt.Errorf("scan artifact: %w", err)
		}
		a.Category = domain.ToolCategory(category)
		a.Status = domain.ToolStatus(status)
		a.HighestStage = domain.VerifyStage(stage)
		if err := json.Unmarshal([]byte(caps), &a.Capabilities); err != nil {
			return nil, fmt.Errorf("unmarshal capabilities: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// UpdateStatus moves an artifact to a new lifecycle status and records the
// highest verification stage reached. Callers enforce forward-only
// transitions; the repo only persists.
func (r *ArtifactRepo) UpdateStatus(ctx context.Context, db *sql.DB, id string, status domain.ToolStatus, stage domain.VerifyStage) error {
	const q = `UPDATE tool_artifacts SET status = ?, highest_stage = ? WHERE artifact_id = ?`
	res, err := db.ExecContext(ctx, q, string(status), string(stage), id)
	if err != nil {
		return fmt.Errorf("update artifact status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if n == 0 {
		return domain.ErrArtifactNotFound
	}
	return nil
}

// MaxRow returns the highest rowid in tool_artifacts, or 0 when empty.
// Checkpoints record this value so rollback knows where the table ended.
func (r *ArtifactRepo) MaxRow(ctx context.Context, db *sql.DB) (int64, error) {
	const q = `SELECT COALESCE(MAX(rowid), 0) FROM tool_artifacts`
	var max int64
	if err := db.QueryRowContext(ctx, q).Scan(&max); err != nil {
		return 0, fmt.Errorf("max artifact row: %w", err)
	}
	return max, nil
}

// DeleteAboveRowTx removes every artifact inserted after the given rowid
// and returns the storage paths of the removed rows so the caller can
// delete the payload files.
func (r *ArtifactRepo) DeleteAboveRowTx(ctx context.Context, tx *sql.Tx, maxRow int64) ([]string, error) {
	const sel = `SELECT storage_path FROM tool_artifacts WHERE rowid > ?`
	rows, err := tx.QueryContext(ctx, sel, maxRow)
	if err != nil {
		return nil, fmt.Errorf("select rollback artifacts: %w", err)
	}
	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan rollback artifact: %w", err)
		}
		paths = append(paths, p)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	const del = `DELETE FROM tool_artifacts WHERE rowid > ?`
	if _, err := tx.ExecContext(ctx, del, maxRow); err != nil {
		return nil, fmt.Errorf("delete rollback artifacts: %w", err)
	}
	return paths, nil
}
