package agent

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/rahul/plantdoc/internal/governance"
	"github.com/rahul/plantdoc/internal/observability"
	"github.com/rahul/plantdoc/internal/tools"
)

// Executor runs the head of the plan against the tool matching its kind.
type Executor struct {
	Registry *tools.Registry
	Policy   governance.PolicyEngine
	Logger   *observability.Logger
	// Timeout bounds a single tool call. Zero means no bound.
	Timeout time.Duration
}

func NewExecutor(registry *tools.Registry, policy governance.PolicyEngine, logger *observability.Logger, timeout time.Duration) *Executor {
	return &Executor{Registry: registry, Policy: policy, Logger: logger, Timeout: timeout}
}

// ExecuteNext consumes exactly one step from state.Plan and returns its
// result. It never touches state.History; tool failures come back as a
// failed result, not as an error.
func (e *Executor) ExecuteNext(ctx context.Context, state *State) (StepResult, error) {
	step, ok := state.PopNext()
	if !ok {
		return StepResult{}, ErrEmptyPlan
	}

	e.Logger.LogStep(state.RunID, state.Iteration, string(step.Kind), step.Description)
	log.Printf("[Executor] %s", step)

	payload, err := e.dispatch(ctx, state, step)
	if err != nil {
		step.Status = StatusFailed
		reason := err.Error()
		var te *ToolError
		if errors.As(err, &te) {
			reason = te.Reason
		}
		e.Logger.LogToolResult(state.RunID, state.Iteration, step.Kind.ToolName(), false, reason)
		log.Printf("[Executor] %s failed: %s", step.Kind, reason)
		return StepResult{Step: step, Succeeded: false, Error: reason}, nil
	}

	step.Status = StatusDone
	e.Logger.LogToolResult(state.RunID, state.Iteration, step.Kind.ToolName(), true, "")
	return StepResult{Step: step, Payload: payload, Succeeded: true}, nil
}

func (e *Executor) dispatch(ctx context.Context, state *State, step PlanStep) (payload string, err error) {
	name := step.Kind.ToolName()

	if e.Policy != nil {
		res, perr := e.Policy.Evaluate(ctx, governance.Request{RunID: state.RunID, Kind: string(step.Kind), Description: step.Description})
		if perr != nil {
			return "", &ToolError{Tool: name, Reason: "policy check failed: " + perr.Error(), Err: perr}
		}
		e.Logger.LogPolicy(state.RunID, state.Iteration, name, string(res.Effect), res.Reason)
		if res.Effect == governance.EffectDeny {
			return "", &ToolError{Tool: name, Reason: res.Reason}
		}
	}

	var tool tools.Tool
	if e.Registry != nil {
		tool = e.Registry.Get(name)
	}
	if tool == nil {
		return "", &ToolError{Tool: name, Reason: fmt.Sprintf("no tool registered for %s steps", step.Kind)}
	}

	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			payload = ""
			err = &ToolError{Tool: name, Reason: fmt.Sprintf("tool panicked: %v", r)}
		}
	}()

	out, terr := tool.Execute(ctx, step.Description)
	if terr != nil {
		if errors.Is(terr, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", &ToolError{Tool: name, Reason: fmt.Sprintf("timed out after %s", e.Timeout), Err: terr}
		}
		return "", &ToolError{Tool: name, Reason: terr.Error(), Err: terr}
	}
	return out, nil
}
