package core

import (
	"errors"
	"fmt"
)

// Sentinel errors for the escalating fault classes. Use errors.Is against
// these rather than matching concrete types.
var (
	ErrModelBoundary    = errors.New("model boundary failure")
	ErrInvalidState     = errors.New("invalid state")
	ErrPlanInconsistent = errors.New("plan inconsistent")
	ErrBudgetExhausted  = errors.New("model call budget exhausted")
)

// FaultKind classifies contained failures. Contained faults never leave the
// dispatcher as Go errors; they are recorded as error observations instead.
type FaultKind string

const (
	// FaultContainedTool is a failure raised by the tool itself (error, panic, timeout).
	FaultContainedTool FaultKind = "contained_tool"
	// FaultDispatch is an unresolved tool name or malformed arguments.
	FaultDispatch FaultKind = "dispatch"
)

// ModelBoundaryError reports that the think phase could not obtain a
// response after the configured number of attempts.
type ModelBoundaryError struct {
	Agent    string
	Attempts int
	Err      error
}

func (e *ModelBoundaryError) Error() string {
	return fmt.Sprintf("agent %s: model boundary failed after %d attempt(s): %v", e.Agent, e.Attempts, e.Err)
}

// Unwrap returns the last underlying error.
func (e *ModelBoundaryError) Unwrap() error { return e.Err }

// Is matches ErrModelBoundary.
func (e *ModelBoundaryError) Is(target error) bool { return target == ErrModelBoundary }

// InvalidStateError reports an operation invoked in a state that does not allow it.
type InvalidStateError struct {
	Op    string
	State string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s in state %s", e.Op, e.State)
}

// Is matches ErrInvalidState.
func (e *InvalidStateError) Is(target error) bool { return target == ErrInvalidState }

// PlanInconsistencyError is reported by plan verification. It triggers
// re-planning and is never returned to the caller of a flow.
type PlanInconsistencyError struct {
	PlanID string
	Reason string
}

func (e *PlanInconsistencyError) Error() string {
	return fmt.Sprintf("plan %s is inconsistent: %s", e.PlanID, e.Reason)
}

// Is matches ErrPlanInconsistent.
func (e *PlanInconsistencyError) Is(target error) bool { return target == ErrPlanInconsistent }
