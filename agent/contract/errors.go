package contract

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrModelInvoke     = errors.New("model invoke failed")
	ErrSchemaViolation = errors.New("model response violates schema")
	ErrPromptMissing   = errors.New("required prompt is missing")
	ErrValidation      = errors.New("validation failed")

	ErrDuplicateTool          = errors.New("duplicate tool id")
	ErrUnknownTool            = errors.New("unknown tool")
	ErrToolNotPermitted       = errors.New("tool not permitted for worker")
	ErrWorkerLoopExhausted    = errors.New("worker loop exhausted")
	ErrInvalidRoutingDecision = errors.New("invalid routing decision")
	ErrCancelled              = errors.New("run cancelled")
	ErrTurnLimitExceeded      = errors.New("run turn limit exceeded")
)

// ToolInvocationError carries the failure of a registered tool.
type ToolInvocationError struct {
	ToolID ToolID
	Cause  error
}

func (e *ToolInvocationError) Error() string {
	return fmt.Sprintf("tool=%s invocation failed: %v", e.ToolID, e.Cause)
}

func (e *ToolInvocationError) Unwrap() error {
	return e.Cause
}

// InvalidRoutingDecisionError keeps the raw generator output for diagnosis.
type InvalidRoutingDecisionError struct {
	Raw     string
	Allowed []string
}

func (e *InvalidRoutingDecisionError) Error() string {
	return fmt.Sprintf("%v: raw=%q allowed=[%s]", ErrInvalidRoutingDecision, e.Raw, strings.Join(e.Allowed, ","))
}

func (e *InvalidRoutingDecisionError) Is(target error) bool {
	return target == ErrInvalidRoutingDecision
}

// RunError is the single run-level failure returned to the caller.
type RunError struct {
	RunID string
	Turn  int
	Err   error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("run=%s turn=%d: %v", e.RunID, e.Turn, e.Err)
}

func (e *RunError) Unwrap() error {
	return e.Err
}

// IsRecoverableTurnError reports whether a worker turn failure should be
// folded into history instead of failing the run.
func IsRecoverableTurnError(err error) bool {
	if err == nil {
		return false
	}
	var toolErr *ToolInvocationError
	switch {
	case errors.As(err, &toolErr):
		return true
	case errors.Is(err, ErrWorkerLoopExhausted):
		return true
	case errors.Is(err, ErrSchemaViolation):
		return true
	default:
		return false
	}
}
