package refine

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/anthropics/tool-foundry/internal/domain"
	"github.com/anthropics/tool-foundry/internal/gateway"
	"github.com/anthropics/tool-foundry/internal/generate"
	"github.com/anthropics/tool-foundry/internal/pipeline"
	"github.com/anthropics/tool-foundry/internal/store"
)

// Submitter abstracts the gateway: every resubmission goes through it,
// never directly to the registry.
type Submitter interface {
	Submit(ctx context.Context, req gateway.SubmitRequest) (gateway.Result, error)
}

// Config bounds the repair loop.
type Config struct {
	// MaxAttempts counts total verification runs including the original
	// submission; the loop makes at most MaxAttempts-1 patches.
	MaxAttempts int
	// BackoffUnit scales the 1, 2, 4 delay sequence between patches.
	BackoffUnit time.Duration
}

func (c *Config) applyDefaults() {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.BackoffUnit <= 0 {
		c.BackoffUnit = time.Second
	}
}

// RefineRequest carries the failing submission into the repair loop.
type RefineRequest struct {
	Task   domain.TaskSpec
	Source string
	// Rationale is the generator's reasoning behind the original source,
	// if known; it opens the attempt history.
	Rationale string
	// Outcome is the original submission's failed pipeline verdict.
	Outcome pipeline.Outcome
}

// Refiner runs the bounded repair loop.
type Refiner struct {
	db        *sql.DB
	gateway   Submitter
	generator generate.CodeGenerator
	reports   *store.ReportRepo
	patches   *store.PatchRepo
	cfg       Config
	logger    *zap.Logger
}

// New creates a Refiner.
func New(db *sql.DB, gw Submitter, gen generate.CodeGenerator, cfg Config, logger *zap.Logger) *Refiner {
	cfg.applyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Refiner{
		db:        db,
		gateway:   gw,
		generator: gen,
		reports:   &store.ReportRepo{},
		patches:   &store.PatchRepo{},
		cfg:       cfg,
		logger:    logger,
	}
}

// Refine repairs a failing submission. The original run counts as attempt
// 1; each patch is resubmitted through the gateway as a further attempt
// until success, attempt exhaustion, or an unfixable failure. The
// returned history is the complete ordered attempt list and is populated
// on every path, success included.
func (r *Refiner) Refine(ctx context.Context, req RefineRequest) (*domain.ToolArtifact, []domain.ToolPatch, error) {
	history := []domain.ToolPatch{{
		ID:            uuid.NewString(),
		TaskID:        req.Task.TaskID,
		Attempt:       1,
		Approach:      firstApproach(req.Rationale),
		CreatedAtUnix: time.Now().Unix(),
	}}
	if err := r.patches.Insert(ctx, r.db, history[0]); err != nil {
		return nil, history, err
	}

	outcome := req.Outcome
	for attempt := 2; attempt <= r.cfg.MaxAttempts; attempt++ {
		failure := failureText(outcome)

		// Unfixable failures abort before any backoff and before the
		// attempt is consumed.
		if marker, bad := unfixableOutcome(outcome, failure); bad {
			r.logger.Warn("repair aborted on unfixable failure",
				zap.String("task_id", req.Task.TaskID),
				zap.String("marker", marker))
			return nil, history, domain.NewFoundryError(domain.ErrUnfixable.Code,
				fmt.Sprintf("unfixable failure (%s): %s", marker, RootCause(failure)))
		}

		kind, hint := Classify(failure)
		report := domain.ErrorReport{
			ID:            uuid.NewString(),
			Kind:          kind,
			RootCause:     RootCause(failure),
			TraceID:       lastTraceID(outcome),
			Attempt:       attempt - 1,
			CreatedAtUnix: time.Now().Unix(),
		}
		if err := r.reports.Insert(ctx, r.db, report); err != nil {
			return nil, history, err
		}
		report.RootCause = report.RootCause + "\nRepair strategy: " + hint

		if err := r.backoff(ctx, attempt); err != nil {
			return nil, history, err
		}

		// Prior patches (everything after the original) ride along so the
		// generator does not repeat a known-bad approach.
		patched, err := r.generator.GeneratePatch(ctx, req.Task, report, history[1:])
		if err != nil {
			return nil, history, err
		}

		patch := domain.ToolPatch{
			ID:            uuid.NewString(),
			TaskID:        req.Task.TaskID,
			Attempt:       attempt,
			Approach:      patched.Rationale,
			PrevFailure:   report.RootCause,
			CreatedAtUnix: time.Now().Unix(),
		}
		if err := r.patches.Insert(ctx, r.db, patch); err != nil {
			return nil, history, err
		}
		history = append(history, patch)

		res, err := r.gateway.Submit(ctx, gateway.SubmitRequest{
			Task:   req.Task,
			Source: patched.Source,
			Action: domain.ActionResubmit,
		})
		if err != nil {
			// Infrastructure faults bypass classification entirely.
			return nil, history, err
		}
		if res.Artifact != nil {
			if err := r.patches.SetArtifact(ctx, r.db, patch.ID, res.Artifact.ID); err != nil {
				return res.Artifact, history, err
			}
			history[len(history)-1].ArtifactID = res.Artifact.ID
			r.logger.Info("repair succeeded",
				zap.String("task_id", req.Task.TaskID),
				zap.Int("attempt", attempt),
				zap.String("artifact_id", res.Artifact.ID))
			return res.Artifact, history, nil
		}
		outcome = res.Outcome
	}

	return nil, history, domain.NewFoundryError(domain.ErrAttemptsExhausted.Code,
		fmt.Sprintf("no passing candidate after %d attempts", r.cfg.MaxAttempts))
}

// backoff sleeps the 1, 2, 4 progression before patch attempts. It is
// cancellable; cancellation surfaces as the context's error.
func (r *Refiner) backoff(ctx context.Context, attempt int) error {
	delay := r.cfg.BackoffUnit << (attempt - 2)
	select {
	case <-time.After(delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Attempts lists a task's persisted patch history in attempt order.
func (r *Refiner) Attempts(ctx context.Context, taskID string) ([]domain.ToolPatch, error) {
	return r.patches.ListByTask(ctx, r.db, taskID)
}

func firstApproach(rationale string) string {
	if rationale == "" {
		return "initial submission"
	}
	return rationale
}

// failureText prefers the failing trace's stderr over the pipeline's
// condensed reason.
func failureText(out pipeline.Outcome) string {
	for i := len(out.Traces) - 1; i >= 0; i-- {
		if out.Traces[i].Stderr != "" {
			return out.Traces[i].Stderr
		}
	}
	return out.Reason
}

func lastTraceID(out pipeline.Outcome) string {
	if len(out.Traces) == 0 {
		return ""
	}
	return out.Traces[len(out.Traces)-1].TraceID
}

// unfixableOutcome folds in the signals the text match alone would miss:
// a security-stage verdict and a sandbox deadline.
func unfixableOutcome(out pipeline.Outcome, failure string) (string, bool) {
	if out.FailedStage == domain.StageSecurity {
		return "security violation", true
	}
	for _, tr := range out.Traces {
		if tr.TimedOut() {
			return "timeout", true
		}
	}
	return Unfixable(failure)
}
