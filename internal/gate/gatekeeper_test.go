package gate

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/anthropics/tool-foundry/internal/domain"
	"github.com/anthropics/tool-foundry/internal/store"
)

func newTestGatekeeper(t *testing.T, approver Approver, cfg Config) *Gatekeeper {
	t.Helper()
	db, err := store.NewDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return New(db, approver, cfg, nil)
}

func TestClassify(t *testing.T) {
	g := newTestGatekeeper(t, nil, Config{})

	tests := []struct {
		action domain.GateAction
		want   domain.GateTier
	}{
		{domain.ActionLookup, domain.TierAuto},
		{domain.ActionRegister, domain.TierCheckpoint},
		{domain.ActionResubmit, domain.TierCheckpoint},
		{domain.ActionPromote, domain.TierApproval},
		{domain.ActionDeprecate, domain.TierApproval},
		{domain.ActionPolicyChange, domain.TierApproval},
		{domain.GateAction("mystery"), domain.TierApproval},
	}
	for _, tt := range tests {
		if got := g.Classify(tt.action); got != tt.want {
			t.Errorf("Classify(%s) = %s, want %s", tt.action, got, tt.want)
		}
	}
}

func TestRequestApproval_Granted(t *testing.T) {
	approver := ApproverFunc(func(ctx context.Context, req ApprovalRequest) (bool, error) {
		if req.Action != domain.ActionPromote {
			t.Errorf("approver saw action %s", req.Action)
		}
		return true, nil
	})
	g := newTestGatekeeper(t, approver, Config{ApprovalTimeout: time.Second})

	ok, err := g.RequestApproval(context.Background(), ApprovalRequest{
		Action: domain.ActionPromote,
		TaskID: "task-1",
	})
	if err != nil {
		t.Fatalf("RequestApproval: %v", err)
	}
	if !ok {
		t.Error("approval not granted")
	}
}

func TestRequestApproval_Denied(t *testing.T) {
	approver := ApproverFunc(func(ctx context.Context, req ApprovalRequest) (bool, error) {
		return false, nil
	})
	g := newTestGatekeeper(t, approver, Config{ApprovalTimeout: time.Second})

	ok, err := g.RequestApproval(context.Background(), ApprovalRequest{Action: domain.ActionPromote})
	if ok {
		t.Error("denied request reported as approved")
	}
	if !errors.Is(err, domain.ErrApprovalDenied) {
		t.Errorf("err = %v, want ErrApprovalDenied", err)
	}
}

func TestRequestApproval_TimeoutDefaultsToDenial(t *testing.T) {
	approver := ApproverFunc(func(ctx context.Context, req ApprovalRequest) (bool, error) {
		// Never answers on its own; waits for the gatekeeper's deadline.
		<-ctx.Done()
		return false, ctx.Err()
	})
	g := newTestGatekeeper(t, approver, Config{ApprovalTimeout: 50 * time.Millisecond})

	start := time.Now()
	ok, err := g.RequestApproval(context.Background(), ApprovalRequest{Action: domain.ActionPromote})
	if ok {
		t.Error("timeout reported as approved")
	}
	if !errors.Is(err, domain.ErrApprovalTimeout) {
		t.Errorf("err = %v, want ErrApprovalTimeout", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("approval blocked %v past its deadline", elapsed)
	}
}

func TestRequestApproval_CallerCancellation(t *testing.T) {
	approver := ApproverFunc(func(ctx context.Context, req ApprovalRequest) (bool, error) {
		<-ctx.Done()
		return false, ctx.Err()
	})
	g := newTestGatekeeper(t, approver, Config{ApprovalTimeout: time.Minute})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	ok, err := g.RequestApproval(ctx, ApprovalRequest{Action: domain.ActionPromote})
	if ok {
		t.Error("cancelled request reported as approved")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestRequestApproval_NoApproverFailsClosed(t *testing.T) {
	g := newTestGatekeeper(t, nil, Config{ApprovalTimeout: time.Second})

	ok, err := g.RequestApproval(context.Background(), ApprovalRequest{Action: domain.ActionPromote})
	if ok {
		t.Error("approved without an approver")
	}
	if !errors.Is(err, domain.ErrNoApprover) {
		t.Errorf("err = %v, want ErrNoApprover", err)
	}
}

func TestRequestApproval_RelaxedModeSkipsBlock(t *testing.T) {
	// No approver configured: relaxed mode must still allow the action.
	g := newTestGatekeeper(t, nil, Config{Relaxed: true, ApprovalTimeout: time.Second})

	ok, err := g.RequestApproval(context.Background(), ApprovalRequest{Action: domain.ActionPromote})
	if err != nil {
		t.Fatalf("RequestApproval: %v", err)
	}
	if !ok {
		t.Error("relaxed mode did not allow the action")
	}
}

func TestRecord_PersistsDecisions(t *testing.T) {
	g := newTestGatekeeper(t, nil, Config{})
	ctx := context.Background()

	if err := g.Record(ctx, "task-9", domain.ActionRegister, domain.TierCheckpoint, "cp-1", true, "committed"); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := g.Record(ctx, "task-9", domain.ActionPromote, domain.TierApproval, "", false, "denied"); err != nil {
		t.Fatalf("Record: %v", err)
	}

	decisions, err := g.Decisions(ctx, "task-9")
	if err != nil {
		t.Fatalf("Decisions: %v", err)
	}
	if len(decisions) != 2 {
		t.Fatalf("decisions = %d, want 2", len(decisions))
	}
	if decisions[0].Action != domain.ActionRegister || !decisions[0].Approved {
		t.Errorf("first decision = %+v", decisions[0])
	}
	if decisions[1].Action != domain.ActionPromote || decisions[1].Approved {
		t.Errorf("second decision = %+v", decisions[1])
	}
}
