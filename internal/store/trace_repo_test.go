package store

import (
	"context"
	"testing"
	"time"

	"github.com/anthropics/tool-foundry/internal/domain"
)

func TestTraceRepo_InsertAndList(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	repo := &TraceRepo{}
	now := time.Now().Unix()

	traces := []domain.ExecutionTrace{
		{TraceID: "tr-1", TaskID: "task-1", Stage: domain.StageSelfTest, ExitCode: 0, Stdout: `{"result": 42}`, ArgsJSON: "{}", CreatedAtUnix: now},
		{TraceID: "tr-2", TaskID: "task-1", Stage: domain.StageContract, ExitCode: 1, Stderr: "ValueError: bad input", ArgsJSON: `{"period":14}`, CreatedAtUnix: now + 1},
		{TraceID: "tr-3", TaskID: "task-2", Stage: domain.StageSelfTest, ExitCode: 0, ArgsJSON: "{}", CreatedAtUnix: now + 2},
	}
	for _, tr := range traces {
		if err := repo.Insert(ctx, db, tr); err != nil {
			t.Fatalf("Insert %s: %v", tr.TraceID, err)
		}
	}

	got, err := repo.ListByTask(ctx, db, "task-1")
	if err != nil {
		t.Fatalf("ListByTask: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 traces, got %d", len(got))
	}
	if got[0].TraceID != "tr-1" || got[1].TraceID != "tr-2" {
		t.Errorf("order = %s,%s, want tr-1,tr-2", got[0].TraceID, got[1].TraceID)
	}
	if got[1].Stage != domain.StageContract {
		t.Errorf("Stage = %q, want contract_valid", got[1].Stage)
	}
}

func TestTraceRepo_GetByID(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	repo := &TraceRepo{}

	tr := domain.ExecutionTrace{
		TraceID: "tr-t", TaskID: "task-1", Stage: domain.StageSelfTest,
		ExitCode: domain.TimeoutExitCode, Stderr: "killed at deadline",
		ArgsJSON: "{}", DurationMS: 5000, CreatedAtUnix: 10,
	}
	if err := repo.Insert(ctx, db, tr); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	got, err := repo.GetByID(ctx, db, "tr-t")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got == nil {
		t.Fatal("expected trace, got nil")
	}
	if !got.TimedOut() {
		t.Errorf("TimedOut() = false, exit code %d", got.ExitCode)
	}

	missing, err := repo.GetByID(ctx, db, "nope")
	if err != nil {
		t.Fatalf("GetByID missing: %v", err)
	}
	if missing != nil {
		t.Errorf("expected nil for missing trace, got %+v", missing)
	}
}
