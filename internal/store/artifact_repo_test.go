package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/anthropics/tool-foundry/internal/domain"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dir := t.TempDir()
	db, err := NewDB(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func insertArtifact(t *testing.T, db *sql.DB, a domain.ToolArtifact) {
	t.Helper()
	tx, err := db.Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	repo := &ArtifactRepo{}
	if err := repo.InsertTx(context.Background(), tx, a); err != nil {
		t.Fatalf("InsertTx %s: %v", a.ID, err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
}

func TestArtifactRepo_InsertAndGet(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	repo := &ArtifactRepo{}

	a := domain.ToolArtifact{
		ID:            "rsi_1.0.0_ab12cd34",
		Name:          "rsi",
		Version:       "1.0.0",
		ContentHash:   "ab12cd34ef",
		StoragePath:   "/tmp/tools/rsi_1.0.0_ab12cd34.py",
		Category:      domain.CategoryCalculation,
		Capabilities:  []string{"math", "statistics"},
		ContractID:    "indicator_series",
		Status:        domain.StatusProvisional,
		HighestStage:  domain.StagePassed,
		CreatedAtUnix: time.Now().Unix(),
	}
	insertArtifact(t, db, a)

	got, err := repo.GetByID(ctx, db, a.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Name != "rsi" || got.Version != "1.0.0" {
		t.Errorf("got %s/%s, want rsi/1.0.0", got.Name, got.Version)
	}
	if got.Status != domain.StatusProvisional {
		t.Errorf("Status = %q, want provisional", got.Status)
	}
	if len(got.Capabilities) != 2 || got.Capabilities[0] != "math" {
		t.Errorf("Capabilities = %v, want [math statistics]", got.Capabilities)
	}

	byHash, err := repo.GetByHash(ctx, db, "ab12cd34ef")
	if err != nil {
		t.Fatalf("GetByHash: %v", err)
	}
	if byHash == nil || byHash.ID != a.ID {
		t.Errorf("GetByHash = %+v, want id %s", byHash, a.ID)
	}
}

func TestArtifactRepo_GetByHash_NoMatch(t *testing.T) {
	db := newTestDB(t)
	repo := &ArtifactRepo{}

	got, err := repo.GetByHash(context.Background(), db, "nope")
	if err != nil {
		t.Fatalf("GetByHash: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for missing hash, got %+v", got)
	}
}

func TestArtifactRepo_GetByID_NotFound(t *testing.T) {
	db := newTestDB(t)
	repo := &ArtifactRepo{}

	_, err := repo.GetByID(context.Background(), db, "missing")
	if err != domain.ErrArtifactNotFound {
		t.Errorf("err = %v, want ErrArtifactNotFound", err)
	}
}

func TestArtifactRepo_DuplicateHashRejected(t *testing.T) {
	db := newTestDB(t)
	now := time.Now().Unix()

	insertArtifact(t, db, domain.ToolArtifact{
		ID: "a1", Name: "rsi", Version: "1.0.0", ContentHash: "same",
		StoragePath: "/x", Category: domain.CategoryCalculation,
		Status: domain.StatusProvisional, HighestStage: domain.StageNone, CreatedAtUnix: now,
	})

	tx, err := db.Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer tx.Rollback()
	repo := &ArtifactRepo{}
	err = repo.InsertTx(context.Background(), tx, domain.ToolArtifact{
		ID: "a2", Name: "other", Version: "1.0.0", ContentHash: "same",
		StoragePath: "/y", Category: domain.CategoryCalculation,
		Status: domain.StatusProvisional, HighestStage: domain.StageNone, CreatedAtUnix: now,
	})
	if err == nil {
		t.Error("expected error on duplicate content hash, got nil")
	}
}

func TestArtifactRepo_GetLatestByName(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	repo := &ArtifactRepo{}
	now := time.Now().Unix()

	insertArtifact(t, db, domain.ToolArtifact{
		ID: "rsi_1.0.0_aaa", Name: "rsi", Version: "1.0.0", ContentHash: "h1",
		StoragePath: "/a", Category: domain.CategoryCalculation,
		Status: domain.StatusVerified, HighestStage: domain.StagePassed, CreatedAtUnix: now,
	})
	insertArtifact(t, db, domain.ToolArtifact{
		ID: "rsi_1.1.0_bbb", Name: "rsi", Version: "1.1.0", ContentHash: "h2",
		StoragePath: "/b", Category: domain.CategoryCalculation,
		Status: domain.StatusProvisional, HighestStage: domain.StagePassed, CreatedAtUnix: now + 5,
	})

	got, err := repo.GetLatestByName(ctx, db, "rsi")
	if err != nil {
		t.Fatalf("GetLatestByName: %v", err)
	}
	if got == nil || got.Version != "1.1.0" {
		t.Errorf("latest version = %+v, want 1.1.0", got)
	}

	none, err := repo.GetLatestByName(ctx, db, "unknown")
	if err != nil {
		t.Fatalf("GetLatestByName unknown: %v", err)
	}
	if none != nil {
		t.Errorf("expected nil for unknown name, got %+v", none)
	}
}

func TestArtifactRepo_UpdateStatus(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	repo := &ArtifactRepo{}

	insertArtifact(t, db, domain.ToolArtifact{
		ID: "a1", Name: "rsi", Version: "1.0.0", ContentHash: "h1",
		StoragePath: "/a", Category: domain.CategoryCalculation,
		Status: domain.StatusProvisional, HighestStage: domain.StageNone, CreatedAtUnix: 1,
	})

	if err := repo.UpdateStatus(ctx, db, "a1", domain.StatusVerified, domain.StagePassed); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}

	got, err := repo.GetByID(ctx, db, "a1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != domain.StatusVerified || got.HighestStage != domain.StagePassed {
		t.Errorf("got %s/%s, want verified/passed", got.Status, got.HighestStage)
	}

	if err := repo.UpdateStatus(ctx, db, "missing", domain.StatusFailed, domain.StageNone); err != domain.ErrArtifactNotFound {
		t.Errorf("UpdateStatus missing = %v, want ErrArtifactNotFound", err)
	}
}

func TestArtifactRepo_RollbackAboveRow(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	repo := &ArtifactRepo{}

	insertArtifact(t, db, domain.ToolArtifact{
		ID: "keep", Name: "keep", Version: "1.0.0", ContentHash: "h-keep",
		StoragePath: "/keep.py", Category: domain.CategoryCalculation,
		Status: domain.StatusVerified, HighestStage: domain.StagePassed, CreatedAtUnix: 1,
	})

	mark, err := repo.MaxRow(ctx, db)
	if err != nil {
		t.Fatalf("MaxRow: %v", err)
	}

	insertArtifact(t, db, domain.ToolArtifact{
		ID: "drop", Name: "drop", Version: "1.0.0", ContentHash: "h-drop",
		StoragePath: "/drop.py", Category: domain.CategoryCalculation,
		Status: domain.StatusProvisional, HighestStage: domain.StageNone, CreatedAtUnix: 2,
	})

	tx, err := db.Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	paths, err := repo.DeleteAboveRowTx(ctx, tx, mark)
	if err != nil {
		t.Fatalf("DeleteAboveRowTx: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	if len(paths) != 1 || paths[0] != "/drop.py" {
		t.Errorf("rollback paths = %v, want [/drop.py]", paths)
	}

	if _, err := repo.GetByID(ctx, db, "drop"); err != domain.ErrArtifactNotFound {
		t.Errorf("dropped artifact still present: %v", err)
	}
	if _, err := repo.GetByID(ctx, db, "keep"); err != nil {
		t.Errorf("kept artifact missing: %v", err)
	}
}
