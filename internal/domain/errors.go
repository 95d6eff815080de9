package domain

import "fmt"

// FoundryError is the unified error type for the foundry.
// Each error has a numeric code and human-readable message.
type FoundryError struct {
	Code    int
	Message string
}

// Error implements the error interface.
func (e *FoundryError) Error() string {
	return fmt.Sprintf("foundry error %d: %s", e.Code, e.Message)
}

// Is matches two foundry errors by code, so detail-carrying instances
// created with NewFoundryError compare equal to their sentinel.
func (e *FoundryError) Is(target error) bool {
	t, ok := target.(*FoundryError)
	return ok && t.Code == e.Code
}

// NewFoundryError creates a new FoundryError.
func NewFoundryError(code int, msg string) *FoundryError {
	return &FoundryError{Code: code, Message: msg}
}

// WrapFoundryError creates a FoundryError that includes a cause.
func WrapFoundryError(code int, msg string, cause error) *FoundryError {
	return &FoundryError{Code: code, Message: fmt.Sprintf("%s: %v", msg, cause)}
}

// ---- Security analyzer errors (1100-1199) ----

var (
	ErrSecurityViolation = &FoundryError{Code: 1100, Message: "capability security violation"}
	ErrSyntaxInvalid     = &FoundryError{Code: 1101, Message: "source failed to parse"}
	ErrCategoryUnknown   = &FoundryError{Code: 1102, Message: "unknown tool category"}
)

// NewSecurityViolation creates a security violation carrying the offending
// construct, e.g. the banned module or call name.
func NewSecurityViolation(reason string) *FoundryError {
	return &FoundryError{
		Code:    ErrSecurityViolation.Code,
		Message: fmt.Sprintf("capability security violation: %s", reason),
	}
}

// ---- Sandbox infrastructure errors (1200-1299) ----
// These are fatal faults of the sandbox itself, never a property of the
// untrusted code; they bypass classification and the repair loop entirely.

var (
	ErrSandboxSpawn     = &FoundryError{Code: 1200, Message: "failed to spawn sandbox process"}
	ErrSandboxWorkspace = &FoundryError{Code: 1201, Message: "failed to prepare sandbox workspace"}
	ErrSandboxProtocol  = &FoundryError{Code: 1202, Message: "sandbox runner produced no parseable result"}
)

// ---- Pipeline / gateway errors (1300-1399) ----

var (
	ErrVerificationFailed = &FoundryError{Code: 1300, Message: "verification pipeline failed"}
	ErrCheckpointNotOpen  = &FoundryError{Code: 1301, Message: "checkpoint is not open"}
	ErrRollbackFailed     = &FoundryError{Code: 1302, Message: "rollback from checkpoint failed"}
)

// ---- Registry / store errors (1400-1499) ----

var (
	ErrArtifactNotFound = &FoundryError{Code: 1400, Message: "artifact not found"}
	ErrStatusTransition = &FoundryError{Code: 1401, Message: "illegal artifact status transition"}
	ErrStoreInit        = &FoundryError{Code: 1450, Message: "failed to initialize store"}
	ErrStoreQuery       = &FoundryError{Code: 1451, Message: "store query failed"}
	ErrStoreWrite       = &FoundryError{Code: 1452, Message: "store write failed"}
)

// ---- Gatekeeper errors (1600-1699) ----

var (
	ErrApprovalDenied  = &FoundryError{Code: 1600, Message: "approval denied"}
	ErrApprovalTimeout = &FoundryError{Code: 1601, Message: "approval timed out; denied by default"}
	ErrNoApprover      = &FoundryError{Code: 1602, Message: "no approver configured for approval-tier action"}
)

// ---- Refiner errors (1700-1799) ----

var (
	ErrUnfixable         = &FoundryError{Code: 1700, Message: "error class is unfixable; aborting repair"}
	ErrAttemptsExhausted = &FoundryError{Code: 1701, Message: "repair attempts exhausted"}
)

// ---- Config / policy errors (1800-1899) ----

var (
	ErrConfigInvalid   = &FoundryError{Code: 1800, Message: "invalid configuration"}
	ErrPolicyInvalid   = &FoundryError{Code: 1801, Message: "invalid capability policy"}
	ErrContractUnknown = &FoundryError{Code: 1802, Message: "unknown contract identifier"}
)
