// Package domain defines the core types for the Tool Foundry verification kernel.
package domain

// ToolCategory classifies what a generated tool is permitted to touch.
type ToolCategory string

const (
	CategoryCalculation ToolCategory = "calculation"
	CategoryFetch       ToolCategory = "fetch"
	CategoryComposite   ToolCategory = "composite"
)

// ToolStatus is the lifecycle status of a registered artifact.
// Transitions only move forward: Provisional -> Verified -> Deprecated,
// or sideways to Failed. Rows are never rewritten in place; a new version
// is a new row.
type ToolStatus string

const (
	StatusProvisional ToolStatus = "provisional"
	StatusVerified    ToolStatus = "verified"
	StatusDeprecated  ToolStatus = "deprecated"
	StatusFailed      ToolStatus = "failed"
)

// VerifyStage identifies a stage of the verification pipeline.
type VerifyStage string

const (
	StageNone        VerifyStage = "none"
	StageSecurity    VerifyStage = "security"
	StageSelfTest    VerifyStage = "self_test"
	StageContract    VerifyStage = "contract_valid"
	StageIntegration VerifyStage = "integration"
	StagePassed      VerifyStage = "passed"
)

// TimeoutExitCode is recorded on a trace when the sandbox child was killed
// at the wall-clock deadline. Negative so it can never collide with an
// application exit code (0-255).
const TimeoutExitCode = -124

// ToolArtifact is a named, versioned, content-addressed unit of code.
// The content hash is a pure function of the exact source bytes; two
// submissions with identical bytes resolve to the same artifact.
type ToolArtifact struct {
	ID            string
	Name          string
	Version       string
	ContentHash   string
	StoragePath   string
	Category      ToolCategory
	Capabilities  []string
	ContractID    string
	Status        ToolStatus
	HighestStage  VerifyStage
	CreatedAtUnix int64
}

// ExecutionTrace records one sandbox run. Immutable once written.
type ExecutionTrace struct {
	TraceID       string
	TaskID        string
	ArtifactID    string // empty for ad-hoc verification runs
	ArgsJSON      string
	Stdout        string
	Stderr        string
	ExitCode      int
	DurationMS    int64
	Stage         VerifyStage
	CreatedAtUnix int64
}

// TimedOut reports whether the trace ended at the sandbox deadline.
func (t ExecutionTrace) TimedOut() bool {
	return t.ExitCode == TimeoutExitCode
}

// ErrorKind is the closed taxonomy used to classify failing traces.
type ErrorKind string

const (
	KindModuleNotFound ErrorKind = "module_not_found"
	KindImport         ErrorKind = "import"
	KindAssertion      ErrorKind = "assertion"
	KindType           ErrorKind = "type"
	KindValue          ErrorKind = "value"
	KindZeroDivision   ErrorKind = "zero_division"
	KindAttribute      ErrorKind = "attribute"
	KindKey            ErrorKind = "key"
	KindIndex          ErrorKind = "index"
	KindUnknown        ErrorKind = "unknown"
)

// ErrorReport is the structured classification of a failing trace.
// Created by the Refiner; never mutated.
type ErrorReport struct {
	ID            string
	Kind          ErrorKind
	RootCause     string
	TraceID       string
	Attempt       int
	CreatedAtUnix int64
}

// ToolPatch records one repair attempt. Attempt n carries the failure and
// approach of attempt n-1 so the next patch request sees the full history.
type ToolPatch struct {
	ID            string
	TaskID        string
	Attempt       int
	Approach      string
	PrevFailure   string
	ArtifactID    string // set only if the chain eventually succeeds
	CreatedAtUnix int64
}

// GateTier is the risk classification of a mutating action.
type GateTier string

const (
	TierAuto       GateTier = "auto"
	TierCheckpoint GateTier = "checkpoint"
	TierApproval   GateTier = "approval"
)

// GateAction identifies the kind of action presented to the gatekeeper.
type GateAction string

const (
	ActionLookup       GateAction = "lookup"
	ActionRegister     GateAction = "register"
	ActionResubmit     GateAction = "resubmit"
	ActionPromote      GateAction = "promote"
	ActionDeprecate    GateAction = "deprecate"
	ActionPolicyChange GateAction = "policy_change"
)

// GateDecision is one governance record. Immutable once the decision
// is executed.
type GateDecision struct {
	ID            string
	TaskID        string
	Action        GateAction
	Tier          GateTier
	CheckpointID  string
	Approved      bool
	Outcome       string
	CreatedAtUnix int64
}

// CheckpointStatus tracks a checkpoint through its lifetime.
type CheckpointStatus string

const (
	CheckpointOpen      CheckpointStatus = "open"
	CheckpointCommitted CheckpointStatus = "committed"
	CheckpointDiscarded CheckpointStatus = "discarded"
)

// Checkpoint is a snapshot of registry state taken before a mutating
// action. MaxArtifactRow is the highest artifact rowid at snapshot time;
// rollback removes anything above it.
type Checkpoint struct {
	ID             string
	TaskID         string
	MaxArtifactRow int64
	Status         CheckpointStatus
	CreatedAtUnix  int64
}

// AuditRecord is one append-only audit trail entry.
type AuditRecord struct {
	ID           string
	TaskID       string
	Category     string
	Actor        string
	Action       string
	RequestJSON  string
	DecisionJSON string
	Severity     string
	CreatedAt    int64
}

// GeneratedTool is a candidate produced by the code-generation collaborator.
type GeneratedTool struct {
	Source      string
	Rationale   string
	RawResponse string
}

// TaskSpec describes the task a candidate tool is meant to solve.
type TaskSpec struct {
	TaskID      string
	Description string
	ToolName    string
	Category    ToolCategory
	ContractID  string
	EntryPoint  string
	Args        map[string]any
}
