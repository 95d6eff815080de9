package store

import (
	"path/filepath"
	"testing"
)

func TestNewDB(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")

	db, err := NewDB(dbPath)
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	defer db.Close()

	// Verify tables were created by querying sqlite_master.
	rows, err := db.Query("SELECT name FROM sqlite_master WHERE type='table' ORDER BY name")
	if err != nil {
		t.Fatalf("query tables: %v", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			t.Fatalf("scan table name: %v", err)
		}
		tables = append(tables, name)
	}

	expected := map[string]bool{
		"tool_artifacts":   true,
		"execution_traces": true,
		"error_reports":    true,
		"tool_patches":     true,
		"gate_decisions":   true,
		"checkpoints":      true,
		"audit_records":    true,
	}

	for _, tbl := range tables {
		delete(expected, tbl)
	}
	for tbl := range expected {
		t.Errorf("expected table %q not found", tbl)
	}
}

func TestNewDB_IdempotentMigration(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")

	// First open creates schema.
	db1, err := NewDB(dbPath)
	if err != nil {
		t.Fatalf("first NewDB: %v", err)
	}
	db1.Close()

	// Second open should not fail (IF NOT EXISTS).
	db2, err := NewDB(dbPath)
	if err != nil {
		t.Fatalf("second NewDB: %v", err)
	}
	db2.Close()
}

func TestNewDB_UniqueContentHash(t *testing.T) {
	dir := t.TempDir()
	db, err := NewDB(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	defer db.Close()

	const ins = `INSERT INTO tool_artifacts (artifact_id, name, version, content_hash, storage_path, category, created_at)
VALUES (?, ?, '1.0.0', ?, '/tmp/x.py', 'calculation', 0)`

	if _, err := db.Exec(ins, "art-1", "rsi", "hash-a"); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	// Same hash under a different name and id must be rejected by the
	// unique constraint, not silently stored twice.
	if _, err := db.Exec(ins, "art-2", "rsi_v2", "hash-a"); err == nil {
		t.Error("expected unique constraint violation on duplicate content_hash, got nil")
	}
}
