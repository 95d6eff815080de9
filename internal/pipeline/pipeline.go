// Package pipeline implements the per-submission verification state
// machine: Security -> SelfTest -> ContractValid -> Integration (fetch
// category only) -> Passed, with failure at any stage absorbing the run.
// The pipeline is side-effect free: no stage writes to the registry, and
// a submission can be re-run idempotently.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/anthropics/tool-foundry/internal/contract"
	"github.com/anthropics/tool-foundry/internal/domain"
	"github.com/anthropics/tool-foundry/internal/generate"
	"github.com/anthropics/tool-foundry/internal/policy"
	"github.com/anthropics/tool-foundry/internal/sandbox"
	"github.com/anthropics/tool-foundry/internal/security"
)

// stageOrder is the required stage sequence. A stage only runs if every
// stage before it passed.
var stageOrder = []domain.VerifyStage{
	domain.StageSecurity,
	domain.StageSelfTest,
	domain.StageContract,
	domain.StageIntegration,
}

// StageIndex returns a stage's position in the required order, or -1.
func StageIndex(s domain.VerifyStage) int {
	for i, st := range stageOrder {
		if st == s {
			return i
		}
	}
	return -1
}

// Submission is one candidate artifact presented for verification.
type Submission struct {
	Source     string
	Category   domain.ToolCategory
	ContractID string
	Task       domain.TaskSpec
}

// Outcome is the pipeline's tagged result. Failures are values here, not
// errors: the stage name and reason travel to the refiner, which picks a
// repair strategy from them.
type Outcome struct {
	Passed      bool
	FailedStage domain.VerifyStage
	Reason      string
	Traces      []domain.ExecutionTrace
}

// Executor abstracts the sandbox for the pipeline.
type Executor interface {
	Execute(ctx context.Context, req sandbox.ExecRequest) (domain.ExecutionTrace, error)
}

// Config bounds the pipeline's sandbox runs.
type Config struct {
	SelfTestTimeout time.Duration
	ExecTimeout     time.Duration
}

func (c *Config) applyDefaults() {
	if c.SelfTestTimeout <= 0 {
		c.SelfTestTimeout = 30 * time.Second
	}
	if c.ExecTimeout <= 0 {
		c.ExecTimeout = 30 * time.Second
	}
}

// Pipeline chains the verification stages over injected collaborators.
type Pipeline struct {
	analyzer  *security.Analyzer
	executor  Executor
	validator *contract.Validator
	policies  *policy.Set
	provider  generate.DataProvider
	config    Config
	logger    *zap.Logger
}

// New creates a pipeline. provider may be nil when no fetch-category
// submissions are expected.
func New(analyzer *security.Analyzer, executor Executor, policies *policy.Set, provider generate.DataProvider, cfg Config, logger *zap.Logger) *Pipeline {
	cfg.applyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		analyzer:  analyzer,
		executor:  executor,
		validator: &contract.Validator{},
		policies:  policies,
		provider:  provider,
		config:    cfg,
		logger:    logger,
	}
}

// Run takes a submission through every required stage. The returned error
// is reserved for sandbox infrastructure faults; every verification
// verdict, pass or fail, is in the Outcome.
func (p *Pipeline) Run(ctx context.Context, sub Submission) (Outcome, error) {
	var out Outcome

	// Security runs first and is the hard ordering invariant: no process
	// is ever spawned for source that has not passed analysis.
	if err := p.analyzer.Analyze(ctx, []byte(sub.Source), sub.Category); err != nil {
		out.FailedStage = domain.StageSecurity
		out.Reason = err.Error()
		p.logger.Warn("security stage rejected candidate",
			zap.String("task_id", sub.Task.TaskID),
			zap.String("reason", out.Reason))
		return out, nil
	}

	trace, err := p.executor.Execute(ctx, sandbox.ExecRequest{
		Source:     sub.Source,
		TaskID:     sub.Task.TaskID,
		Stage:      domain.StageSelfTest,
		VerifyOnly: true,
		Timeout:    p.config.SelfTestTimeout,
	})
	if err != nil {
		return out, err
	}
	out.Traces = append(out.Traces, trace)
	if reason, failed := selfTestFailure(trace); failed {
		out.FailedStage = domain.StageSelfTest
		out.Reason = reason
		return out, nil
	}

	ct, err := p.policies.Contract(sub.ContractID)
	if err != nil {
		out.FailedStage = domain.StageContract
		out.Reason = err.Error()
		return out, nil
	}

	args := representativeArgs(ct, sub.Task)
	trace, err = p.executor.Execute(ctx, sandbox.ExecRequest{
		Source:     sub.Source,
		EntryPoint: sub.Task.EntryPoint,
		Args:       args,
		TaskID:     sub.Task.TaskID,
		Stage:      domain.StageContract,
		Timeout:    p.config.ExecTimeout,
	})
	if err != nil {
		return out, err
	}
	out.Traces = append(out.Traces, trace)
	if reason, failed := contractRunFailure(trace); failed {
		out.FailedStage = domain.StageContract
		out.Reason = reason
		return out, nil
	}

	result, err := sandbox.ParseResult(trace)
	if err != nil {
		out.FailedStage = domain.StageContract
		out.Reason = fmt.Sprintf("no parseable result: %v", err)
		return out, nil
	}
	if ok, reasons := p.validator.Validate(result, ct); !ok {
		out.FailedStage = domain.StageContract
		out.Reason = fmt.Sprintf("contract %q breached: %s", ct.ID, strings.Join(reasons, "; "))
		return out, nil
	}

	if sub.Category == domain.CategoryFetch {
		if reason, failed := p.integrationFailure(ctx, ct); failed {
			out.FailedStage = domain.StageIntegration
			out.Reason = reason
			return out, nil
		}
	}

	out.Passed = true
	p.logger.Info("pipeline passed",
		zap.String("task_id", sub.Task.TaskID),
		zap.String("category", string(sub.Category)))
	return out, nil
}

// selfTestFailure requires a zero exit code and no exception trace on
// stderr for the inline test block to count as passing.
func selfTestFailure(trace domain.ExecutionTrace) (string, bool) {
	if trace.TimedOut() {
		return fmt.Sprintf("self-test timed out after %dms", trace.DurationMS), true
	}
	if trace.ExitCode != 0 {
		return fmt.Sprintf("self-test exited %d: %s", trace.ExitCode, tail(trace.Stderr)), true
	}
	if strings.Contains(trace.Stderr, "Traceback") {
		return fmt.Sprintf("self-test raised: %s", tail(trace.Stderr)), true
	}
	return "", false
}

func contractRunFailure(trace domain.ExecutionTrace) (string, bool) {
	if trace.TimedOut() {
		return fmt.Sprintf("contract run timed out after %dms", trace.DurationMS), true
	}
	if trace.ExitCode != 0 {
		return fmt.Sprintf("contract run exited %d: %s", trace.ExitCode, tail(trace.Stderr)), true
	}
	return "", false
}

// integrationFailure makes one real data provider call. Failures here are
// environmental, not tool logic; the refiner treats the integration stage
// as unfixable rather than retrying against a broken upstream.
func (p *Pipeline) integrationFailure(ctx context.Context, ct policy.Contract) (string, bool) {
	if p.provider == nil {
		return "no data provider configured for integration stage", true
	}
	symbol := "SPY"
	if s, ok := ct.RepresentativeArgs["symbol"].(string); ok && s != "" {
		symbol = s
	}
	quote, err := p.provider.GetQuote(ctx, symbol)
	if err != nil {
		return fmt.Sprintf("data provider call failed: %v", err), true
	}
	if quote.Symbol == "" || quote.Price <= 0 {
		return fmt.Sprintf("live quote for %s has unexpected shape", symbol), true
	}
	return "", false
}

// representativeArgs prefers the contract's declared representative set
// and falls back to the task's own arguments.
func representativeArgs(ct policy.Contract, task domain.TaskSpec) map[string]any {
	if len(ct.RepresentativeArgs) > 0 {
		return ct.RepresentativeArgs
	}
	return task.Args
}

// tail keeps root causes readable in reasons and logs.
func tail(s string) string {
	s = strings.TrimSpace(s)
	const max = 400
	if len(s) <= max {
		return s
	}
	return "..." + s[len(s)-max:]
}
