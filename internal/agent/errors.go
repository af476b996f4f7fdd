package agent

import (
	"errors"
	"fmt"
)

// ErrorKind classifies why a diagnostic run stopped or a step failed.
type ErrorKind string

const (
	KindPlanning       ErrorKind = "PlanningError"
	KindTool           ErrorKind = "ToolError"
	KindReplan         ErrorKind = "ReplanError"
	KindSynthesis      ErrorKind = "SynthesisError"
	KindHumanAbort     ErrorKind = "HumanAbort"
	KindIterationLimit ErrorKind = "IterationLimitExceeded"
)

// ErrEmptyPlan is returned by the executor when there is nothing left to run.
var ErrEmptyPlan = errors.New("plan has no pending steps")

// Error is a domain error carrying its kind and a human-readable cause.
type Error struct {
	Kind  ErrorKind
	Cause string
	Err   error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Cause, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Cause)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind ErrorKind, cause string, err error) *Error {
	return &Error{Kind: kind, Cause: cause, Err: err}
}

// PlanningError reports a plan that could not be produced or parsed.
func PlanningError(cause string, err error) *Error { return newError(KindPlanning, cause, err) }

// ReplanError reports an invalid or ambiguous replan outcome.
func ReplanError(cause string, err error) *Error { return newError(KindReplan, cause, err) }

// SynthesisError reports that no final answer could be produced.
func SynthesisError(cause string, err error) *Error { return newError(KindSynthesis, cause, err) }

// HumanAbort reports an operator-initiated stop.
func HumanAbort(cause string) *Error { return newError(KindHumanAbort, cause, nil) }

// IterationLimit reports that the safety cap was reached.
func IterationLimit(max int) *Error {
	return newError(KindIterationLimit, fmt.Sprintf("reached the maximum of %d iterations", max), nil)
}

// ToolError is a failed delegated query. It never aborts a run on its own;
// the executor folds it into a failed StepResult.
type ToolError struct {
	Tool   string
	Reason string
	Err    error
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("%s: tool %s: %s", KindTool, e.Tool, e.Reason)
}

func (e *ToolError) Unwrap() error {
	return e.Err
}

// KindOf returns the domain kind of err, or "" when err is not a domain error.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	var te *ToolError
	if errors.As(err, &te) {
		return KindTool
	}
	return ""
}

// asKind keeps recognised domain errors as they are and wraps anything else
// into the stage's kind so the orchestrator can always report a cause.
func asKind(err error, kind ErrorKind, cause string) *Error {
	var de *Error
	if errors.As(err, &de) {
		return de
	}
	return newError(kind, cause, err)
}
