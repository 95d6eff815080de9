// Package gateway is the single legal path to registry mutation. Every
// submission is classified by the gatekeeper, wrapped in a checkpoint,
// taken through the verification pipeline, and then committed or rolled
// back as a unit. Every attempt is audited whether or not it passes.
package gateway

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/anthropics/tool-foundry/internal/domain"
	"github.com/anthropics/tool-foundry/internal/gate"
	"github.com/anthropics/tool-foundry/internal/pipeline"
	"github.com/anthropics/tool-foundry/internal/policy"
	"github.com/anthropics/tool-foundry/internal/registry"
	"github.com/anthropics/tool-foundry/internal/store"
)

// Verifier abstracts the pipeline for the gateway.
type Verifier interface {
	Run(ctx context.Context, sub pipeline.Submission) (pipeline.Outcome, error)
}

// SubmitRequest is one candidate presented for verification and
// registration.
type SubmitRequest struct {
	Task    domain.TaskSpec
	Source  string
	Version string
	// Action distinguishes a first registration from a patch resubmission;
	// both carry Checkpoint tier.
	Action domain.GateAction
}

// Result reports one gateway attempt. Artifact is nil when verification
// failed; Outcome always carries the stage verdicts and traces.
type Result struct {
	Artifact *domain.ToolArtifact
	Outcome  pipeline.Outcome
}

// Gateway wires the gatekeeper, pipeline, and registry together.
type Gateway struct {
	db          *sql.DB
	verifier    Verifier
	registry    *registry.Registry
	gatekeeper  *gate.Gatekeeper
	policies    *policy.Set
	traces      *store.TraceRepo
	checkpoints *store.CheckpointRepo
	audits      *store.AuditRepo
	logger      *zap.Logger
}

// New creates a Gateway. The registry handle passed here must be the only
// live one; nothing else may mutate it.
func New(db *sql.DB, verifier Verifier, reg *registry.Registry, keeper *gate.Gatekeeper, policies *policy.Set, logger *zap.Logger) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{
		db:          db,
		verifier:    verifier,
		registry:    reg,
		gatekeeper:  keeper,
		policies:    policies,
		traces:      &store.TraceRepo{},
		checkpoints: &store.CheckpointRepo{},
		audits:      &store.AuditRepo{},
		logger:      logger,
	}
}

// Submit takes a candidate through classification, checkpoint, pipeline,
// and commit-or-rollback. A failed verification returns a nil-artifact
// Result with no error; errors are reserved for infrastructure faults,
// which also roll the checkpoint back.
func (g *Gateway) Submit(ctx context.Context, req SubmitRequest) (Result, error) {
	action := req.Action
	if action == "" {
		action = domain.ActionRegister
	}
	tier := g.gatekeeper.Classify(action)

	mark, err := g.registry.Mark(ctx)
	if err != nil {
		return Result{}, err
	}
	cp := domain.Checkpoint{
		ID:             uuid.NewString(),
		TaskID:         req.Task.TaskID,
		MaxArtifactRow: mark,
		Status:         domain.CheckpointOpen,
		CreatedAtUnix:  time.Now().Unix(),
	}
	if err := g.checkpoints.Create(ctx, g.db, cp); err != nil {
		return Result{}, err
	}

	outcome, runErr := g.verifier.Run(ctx, pipeline.Submission{
		Source:     req.Source,
		Category:   req.Task.Category,
		ContractID: req.Task.ContractID,
		Task:       req.Task,
	})
	g.persistTraces(ctx, outcome.Traces)

	if runErr != nil {
		g.discard(ctx, cp, mark)
		g.record(ctx, req, action, tier, cp.ID, false, "infrastructure: "+runErr.Error())
		g.audit(ctx, req, cp.ID, "error", outcome, nil)
		return Result{Outcome: outcome}, runErr
	}

	if !outcome.Passed {
		g.discard(ctx, cp, mark)
		g.record(ctx, req, action, tier, cp.ID, false,
			fmt.Sprintf("failed at %s: %s", outcome.FailedStage, outcome.Reason))
		g.audit(ctx, req, cp.ID, "warn", outcome, nil)
		return Result{Outcome: outcome}, nil
	}

	artifact, err := g.registry.Register(ctx, registry.Registration{
		Name:         req.Task.ToolName,
		Version:      req.Version,
		Category:     req.Task.Category,
		Capabilities: g.capabilities(req.Task.Category),
		ContractID:   req.Task.ContractID,
		HighestStage: domain.StagePassed,
		Source:       req.Source,
	})
	if err != nil {
		g.discard(ctx, cp, mark)
		g.record(ctx, req, action, tier, cp.ID, false, "register: "+err.Error())
		g.audit(ctx, req, cp.ID, "error", outcome, nil)
		return Result{Outcome: outcome}, err
	}

	if err := g.checkpoints.SetStatus(ctx, g.db, cp.ID, domain.CheckpointCommitted); err != nil {
		return Result{Outcome: outcome}, err
	}
	g.record(ctx, req, action, tier, cp.ID, true, "committed "+artifact.ID)
	g.audit(ctx, req, cp.ID, "info", outcome, artifact)

	g.logger.Info("submission committed",
		zap.String("task_id", req.Task.TaskID),
		zap.String("artifact_id", artifact.ID),
		zap.String("checkpoint_id", cp.ID))
	return Result{Artifact: artifact, Outcome: outcome}, nil
}

// capabilities derives the declared capability set from the category's
// module allow-list.
func (g *Gateway) capabilities(cat domain.ToolCategory) []string {
	if g.policies == nil {
		return nil
	}
	c, err := g.policies.Category(cat)
	if err != nil {
		return nil
	}
	return c.Allowed
}

// Lookup is the Auto-tier read path: no checkpoint, no approval, no added
// latency.
func (g *Gateway) Lookup(ctx context.Context, name string) (*domain.ToolArtifact, error) {
	return g.registry.Lookup(ctx, name)
}

// List returns every registered artifact.
func (g *Gateway) List(ctx context.Context) ([]domain.ToolArtifact, error) {
	return g.registry.List(ctx)
}

// Promote moves a provisional artifact into the long-lived library. The
// action carries Approval tier: it blocks on the approver, and a denial
// or timeout leaves the artifact untouched.
func (g *Gateway) Promote(ctx context.Context, taskID, artifactID string) error {
	return g.approvalGated(ctx, taskID, artifactID, domain.ActionPromote, domain.StatusVerified)
}

// Deprecate retires a verified artifact. Approval tier, same protocol as
// Promote.
func (g *Gateway) Deprecate(ctx context.Context, taskID, artifactID string) error {
	return g.approvalGated(ctx, taskID, artifactID, domain.ActionDeprecate, domain.StatusDeprecated)
}

func (g *Gateway) approvalGated(ctx context.Context, taskID, artifactID string, action domain.GateAction, to domain.ToolStatus) error {
	tier := g.gatekeeper.Classify(action)
	ok, err := g.gatekeeper.RequestApproval(ctx, gate.ApprovalRequest{
		Action: action,
		TaskID: taskID,
		Detail: artifactID,
	})
	if !ok {
		g.recordLifecycle(ctx, taskID, artifactID, action, tier, false, "denied")
		return err
	}
	if err := g.registry.SetStatus(ctx, artifactID, to); err != nil {
		g.recordLifecycle(ctx, taskID, artifactID, action, tier, true, "rejected: "+err.Error())
		return err
	}
	g.recordLifecycle(ctx, taskID, artifactID, action, tier, true, string(to))
	g.logger.Info("artifact lifecycle moved",
		zap.String("artifact_id", artifactID),
		zap.String("status", string(to)))
	return nil
}

// Traces lists a task's execution traces for audit and error analysis.
func (g *Gateway) Traces(ctx context.Context, taskID string) ([]domain.ExecutionTrace, error) {
	return g.traces.ListByTask(ctx, g.db, taskID)
}

// AuditTrail lists a task's audit records, oldest first.
func (g *Gateway) AuditTrail(ctx context.Context, taskID string) ([]domain.AuditRecord, error) {
	return g.audits.ListByTask(ctx, g.db, taskID)
}

// discard rolls the registry back to the checkpoint's mark and closes the
// checkpoint as discarded. Rollback faults are logged, not returned: the
// caller's verdict matters more than the cleanup's.
func (g *Gateway) discard(ctx context.Context, cp domain.Checkpoint, mark int64) {
	if err := g.registry.RollbackTo(ctx, mark); err != nil {
		g.logger.Error("checkpoint rollback failed",
			zap.String("checkpoint_id", cp.ID), zap.Error(err))
	}
	if err := g.checkpoints.SetStatus(ctx, g.db, cp.ID, domain.CheckpointDiscarded); err != nil {
		g.logger.Error("checkpoint close failed",
			zap.String("checkpoint_id", cp.ID), zap.Error(err))
	}
}

func (g *Gateway) persistTraces(ctx context.Context, traces []domain.ExecutionTrace) {
	for _, tr := range traces {
		if err := g.traces.Insert(ctx, g.db, tr); err != nil {
			g.logger.Error("trace persist failed",
				zap.String("trace_id", tr.TraceID), zap.Error(err))
		}
	}
}

func (g *Gateway) record(ctx context.Context, req SubmitRequest, action domain.GateAction, tier domain.GateTier, checkpointID string, approved bool, outcome string) {
	if err := g.gatekeeper.Record(ctx, req.Task.TaskID, action, tier, checkpointID, approved, outcome); err != nil {
		g.logger.Error("gate decision persist failed", zap.Error(err))
	}
}

func (g *Gateway) recordLifecycle(ctx context.Context, taskID, artifactID string, action domain.GateAction, tier domain.GateTier, approved bool, outcome string) {
	if err := g.gatekeeper.Record(ctx, taskID, action, tier, "", approved, outcome); err != nil {
		g.logger.Error("gate decision persist failed", zap.Error(err))
	}
	g.auditPlain(ctx, taskID, string(action), artifactID+": "+outcome, severityFor(approved))
}

func severityFor(approved bool) string {
	if approved {
		return "info"
	}
	return "warn"
}

// audit appends one attempt record: SQLite is the authoritative trail,
// zap mirrors it for operators.
func (g *Gateway) audit(ctx context.Context, req SubmitRequest, checkpointID, severity string, outcome pipeline.Outcome, artifact *domain.ToolArtifact) {
	reqJSON, _ := json.Marshal(map[string]any{
		"tool_name":     req.Task.ToolName,
		"category":      string(req.Task.Category),
		"contract_id":   req.Task.ContractID,
		"checkpoint_id": checkpointID,
	})
	decision := map[string]any{
		"passed":       outcome.Passed,
		"failed_stage": string(outcome.FailedStage),
		"reason":       outcome.Reason,
	}
	if artifact != nil {
		decision["artifact_id"] = artifact.ID
	}
	decJSON, _ := json.Marshal(decision)

	rec := domain.AuditRecord{
		ID:           uuid.NewString(),
		TaskID:       req.Task.TaskID,
		Category:     string(req.Task.Category),
		Actor:        "gateway",
		Action:       string(req.Action),
		RequestJSON:  string(reqJSON),
		DecisionJSON: string(decJSON),
		Severity:     severity,
		CreatedAt:    time.Now().Unix(),
	}
	if err := g.audits.Record(ctx, g.db, rec); err != nil {
		g.logger.Error("audit persist failed", zap.Error(err))
	}
	g.logger.Info("submission audited",
		zap.String("task_id", req.Task.TaskID),
		zap.String("tool_name", req.Task.ToolName),
		zap.String("category", string(req.Task.Category)),
		zap.Bool("passed", outcome.Passed))
}

func (g *Gateway) auditPlain(ctx context.Context, taskID, action, detail, severity string) {
	rec := domain.AuditRecord{
		ID:           uuid.NewString(),
		TaskID:       taskID,
		Actor:        "gateway",
		Action:       action,
		DecisionJSON: detail,
		Severity:     severity,
		CreatedAt:    time.Now().Unix(),
	}
	if err := g.audits.Record(ctx, g.db, rec); err != nil {
		g.logger.Error("audit persist failed", zap.Error(err))
	}
}
