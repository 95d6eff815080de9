// Package sandbox runs vetted tool source in an isolated child process.
// The untrusted code is never evaluated in this process: it is written to
// a run-local workspace, loaded only inside the child, and spoken to over
// a serialized JSON exchange.
package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/anthropics/tool-foundry/internal/domain"
)

const (
	toolFileName   = "tool.py"
	runnerFileName = "runner.py"
)

// ExecRequest describes one sandbox run.
type ExecRequest struct {
	Source     string
	EntryPoint string // ignored in verify mode
	Args       map[string]any
	TaskID     string
	ArtifactID string
	Stage      domain.VerifyStage
	VerifyOnly bool
	Timeout    time.Duration
}

// Executor spawns isolated interpreter processes with a hard wall-clock
// timeout. A failed run is a trace, not an error; Execute returns an error
// only for sandbox infrastructure faults.
type Executor struct {
	interpreter     string
	interpreterArgs []string
	workDir         string
	logger          *zap.Logger
}

// Option configures an Executor.
type Option func(*Executor)

// WithInterpreter overrides the interpreter command and any leading
// arguments placed before the runner path.
func WithInterpreter(command string, args ...string) Option {
	return func(e *Executor) {
		e.interpreter = command
		e.interpreterArgs = args
	}
}

// WithWorkDir sets the base directory for per-run workspaces.
func WithWorkDir(dir string) Option {
	return func(e *Executor) { e.workDir = dir }
}

// WithLogger sets the executor logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Executor) { e.logger = l }
}

// NewExecutor creates an executor. By default it runs "python3" and builds
// workspaces under the system temp directory.
func NewExecutor(opts ...Option) *Executor {
	e := &Executor{
		interpreter: "python3",
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// runnerRequest is the JSON payload sent to the child on stdin.
type runnerRequest struct {
	ToolPath   string         `json:"tool_path"`
	Mode       string         `json:"mode,omitempty"`
	EntryPoint string         `json:"entry_point,omitempty"`
	Args       map[string]any `json:"args,omitempty"`
}

// Execute runs one sandboxed invocation and returns its trace. The trace
// is returned for success, application failure, and timeout alike; the
// child is forcibly terminated at the deadline and the trace records
// domain.TimeoutExitCode, with nothing in stdout trusted as a result.
func (e *Executor) Execute(ctx context.Context, req ExecRequest) (domain.ExecutionTrace, error) {
	trace := domain.ExecutionTrace{
		TraceID:       uuid.NewString(),
		TaskID:        req.TaskID,
		ArtifactID:    req.ArtifactID,
		Stage:         req.Stage,
		CreatedAtUnix: time.Now().Unix(),
	}

	dir, err := os.MkdirTemp(e.workDir, "sandbox-")
	if err != nil {
		return trace, domain.WrapFoundryError(domain.ErrSandboxWorkspace.Code, domain.ErrSandboxWorkspace.Message, err)
	}
	defer os.RemoveAll(dir)

	if err := os.WriteFile(filepath.Join(dir, toolFileName), []byte(req.Source), 0o600); err != nil {
		return trace, domain.WrapFoundryError(domain.ErrSandboxWorkspace.Code, "write tool source", err)
	}
	if err := os.WriteFile(filepath.Join(dir, runnerFileName), []byte(runnerScript), 0o600); err != nil {
		return trace, domain.WrapFoundryError(domain.ErrSandboxWorkspace.Code, "write runner", err)
	}

	rr := runnerRequest{
		ToolPath:   toolFileName,
		EntryPoint: req.EntryPoint,
		Args:       req.Args,
	}
	if req.VerifyOnly {
		rr.Mode = "verify"
	}
	payload, err := json.Marshal(rr)
	if err != nil {
		return trace, domain.WrapFoundryError(domain.ErrSandboxWorkspace.Code, "marshal runner request", err)
	}
	argsJSON, err := json.Marshal(req.Args)
	if err != nil {
		return trace, domain.WrapFoundryError(domain.ErrSandboxWorkspace.Code, "marshal args", err)
	}
	trace.ArgsJSON = string(argsJSON)

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmdArgs := append(append([]string(nil), e.interpreterArgs...), runnerFileName)
	cmd := exec.CommandContext(cctx, e.interpreter, cmdArgs...)
	cmd.Dir = dir
	cmd.Stdin = bytes.NewReader(payload)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	runErr := cmd.Run()
	trace.DurationMS = time.Since(start).Milliseconds()
	trace.Stdout = stdout.String()
	trace.Stderr = stderr.String()

	switch {
	case cctx.Err() == context.DeadlineExceeded:
		trace.ExitCode = domain.TimeoutExitCode
		// Partial output up to the kill is kept for diagnosis but must
		// never be parsed as the real result.
		e.logger.Warn("sandbox run hit deadline",
			zap.String("task_id", req.TaskID),
			zap.String("trace_id", trace.TraceID),
			zap.Duration("timeout", timeout))
		return trace, nil
	case runErr == nil:
		trace.ExitCode = 0
		return trace, nil
	default:
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			trace.ExitCode = exitErr.ExitCode()
			return trace, nil
		}
		// Not an application failure: the process could not be started.
		return trace, domain.WrapFoundryError(domain.ErrSandboxSpawn.Code, domain.ErrSandboxSpawn.Message, runErr)
	}
}
