// Package gate classifies mutating actions into risk tiers and enforces
// blocking approval for the highest tier. Tier policy is fixed; the only
// deployment knob is relaxed mode, which trades the Approval block for a
// logged warning during iterative development.
package gate

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/anthropics/tool-foundry/internal/domain"
	"github.com/anthropics/tool-foundry/internal/store"
)

// Approver answers approval requests for Approval-tier actions. The call
// may block on a human; the gatekeeper bounds it with its own timeout.
type Approver interface {
	Approve(ctx context.Context, req ApprovalRequest) (bool, error)
}

// ApprovalRequest carries what an approver needs to decide.
type ApprovalRequest struct {
	Action domain.GateAction
	TaskID string
	Detail string
}

// ApproverFunc adapts a function to the Approver interface.
type ApproverFunc func(ctx context.Context, req ApprovalRequest) (bool, error)

func (f ApproverFunc) Approve(ctx context.Context, req ApprovalRequest) (bool, error) {
	return f(ctx, req)
}

// Config holds the gatekeeper's deployment settings.
type Config struct {
	// Relaxed downgrades Approval-tier blocks to logged warnings.
	Relaxed bool
	// ApprovalTimeout bounds how long RequestApproval waits before
	// defaulting to denial.
	ApprovalTimeout time.Duration
}

// Gatekeeper classifies actions and runs the approval protocol.
type Gatekeeper struct {
	db        *sql.DB
	decisions *store.DecisionRepo
	approver  Approver
	cfg       Config
	logger    *zap.Logger
}

// New creates a Gatekeeper. The approver may be nil; Approval-tier
// requests then fail closed unless relaxed mode is on.
func New(db *sql.DB, approver Approver, cfg Config, logger *zap.Logger) *Gatekeeper {
	if cfg.ApprovalTimeout <= 0 {
		cfg.ApprovalTimeout = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gatekeeper{
		db:        db,
		decisions: &store.DecisionRepo{},
		approver:  approver,
		cfg:       cfg,
		logger:    logger,
	}
}

// Classify maps an action kind to its risk tier. Reads are free, anything
// that creates or modifies a tool gets a checkpoint, and anything that
// touches the long-lived library or policy itself needs a human.
func (g *Gatekeeper) Classify(action domain.GateAction) domain.GateTier {
	switch action {
	case domain.ActionLookup:
		return domain.TierAuto
	case domain.ActionRegister, domain.ActionResubmit:
		return domain.TierCheckpoint
	case domain.ActionPromote, domain.ActionDeprecate, domain.ActionPolicyChange:
		return domain.TierApproval
	default:
		// Unknown actions are treated as the riskiest kind.
		return domain.TierApproval
	}
}

// RequestApproval blocks until the approver answers, the timeout fires, or
// the context is cancelled. Timeout and cancellation both default to
// denial. In relaxed mode the block is skipped entirely and the action is
// allowed with a warning.
func (g *Gatekeeper) RequestApproval(ctx context.Context, req ApprovalRequest) (bool, error) {
	if g.cfg.Relaxed {
		g.logger.Warn("approval tier downgraded by relaxed mode",
			zap.String("action", string(req.Action)),
			zap.String("task_id", req.TaskID))
		return true, nil
	}
	if g.approver == nil {
		return false, domain.ErrNoApprover
	}

	actx, cancel := context.WithTimeout(ctx, g.cfg.ApprovalTimeout)
	defer cancel()

	type answer struct {
		ok  bool
		err error
	}
	ch := make(chan answer, 1)
	go func() {
		ok, err := g.approver.Approve(actx, req)
		ch <- answer{ok, err}
	}()

	select {
	case a := <-ch:
		if a.err != nil {
			return false, a.err
		}
		if !a.ok {
			return false, domain.ErrApprovalDenied
		}
		return true, nil
	case <-actx.Done():
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return false, domain.ErrApprovalTimeout
	}
}

// Record persists one governance decision. Decisions are append-only.
func (g *Gatekeeper) Record(ctx context.Context, taskID string, action domain.GateAction, tier domain.GateTier, checkpointID string, approved bool, outcome string) error {
	d := domain.GateDecision{
		ID:            uuid.NewString(),
		TaskID:        taskID,
		Action:        action,
		Tier:          tier,
		CheckpointID:  checkpointID,
		Approved:      approved,
		Outcome:       outcome,
		CreatedAtUnix: time.Now().Unix(),
	}
	return g.decisions.Insert(ctx, g.db, d)
}

// Decisions lists a task's governance records, oldest first.
func (g *Gatekeeper) Decisions(ctx context.Context, taskID string) ([]domain.GateDecision, error) {
	return g.decisions.ListByTask(ctx, g.db, taskID)
}
