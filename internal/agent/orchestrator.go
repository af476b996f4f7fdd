package agent

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rahul/plantdoc/internal/observability"
)

// Phase is the orchestrator's position in the run state machine.
type Phase string

const (
	PhaseInit          Phase = "init"
	PhasePlanning      Phase = "planning"
	PhaseExecuting     Phase = "executing"
	PhaseReplanning    Phase = "replanning"
	PhaseAwaitingHuman Phase = "awaiting_human"
	PhaseSynthesizing  Phase = "synthesizing"
	PhaseAborted       Phase = "aborted"
	PhaseDone          Phase = "done"
)

// IsTerminal reports whether the run is over.
func (p Phase) IsTerminal() bool {
	return p == PhaseDone || p == PhaseAborted
}

// The stages the orchestrator sequences. The concrete agents in this
// package satisfy them; tests substitute fakes.
type (
	PlannerAgent interface {
		Plan(ctx context.Context, runID, query string) ([]PlanStep, error)
	}
	ExecutorAgent interface {
		ExecuteNext(ctx context.Context, state *State) (StepResult, error)
	}
	ReplanAgent interface {
		Decide(ctx context.Context, state *State) (Decision, error)
	}
	SynthesizerAgent interface {
		Synthesize(ctx context.Context, runID, query string, history []StepResult) (FinalAnswer, error)
	}
)

// Journal records finished runs for audit. It is write-only from the
// orchestrator's point of view.
type Journal interface {
	SaveRun(ctx context.Context, r *Report) error
}

// AbortReport explains why a run stopped without an answer.
type AbortReport struct {
	Kind  ErrorKind
	Cause string
}

func abortReport(err *Error) *AbortReport {
	cause := err.Cause
	if err.Err != nil {
		cause += ": " + err.Err.Error()
	}
	return &AbortReport{Kind: err.Kind, Cause: cause}
}

// Report is the outcome of one diagnostic run.
type Report struct {
	RunID      string
	Query      string
	Phase      Phase
	Answer     *FinalAnswer
	Abort      *AbortReport
	History    []StepResult
	Remaining  []PlanStep
	Iterations int
	// Plan accounting: History plus Remaining always holds
	// Planned + Inserted - Discarded steps.
	Planned    int
	Inserted   int
	Discarded  int
	StartedAt  time.Time
	FinishedAt time.Time
}

// Err returns the abort as a domain error, or nil for a completed run.
func (r *Report) Err() error {
	if r.Abort == nil {
		return nil
	}
	return newError(r.Abort.Kind, r.Abort.Cause, nil)
}

// Render formats the report for operators.
func (r *Report) Render() string {
	if r.Answer != nil {
		return r.Answer.Render()
	}
	var sb strings.Builder
	kind, cause := ErrorKind("unknown"), "run stopped without a reported cause"
	if r.Abort != nil {
		kind, cause = r.Abort.Kind, r.Abort.Cause
	}
	fmt.Fprintf(&sb, "Diagnostic run aborted (%s): %s\n", kind, cause)
	if len(r.History) > 0 {
		fmt.Fprintf(&sb, "Completed %d step(s) before stopping:\n", len(r.History))
		for i, h := range r.History {
			status := "ok"
			if !h.Succeeded {
				status = "failed: " + h.Error
			}
			fmt.Fprintf(&sb, "  %d. %s [%s]\n", i+1, h.Step, status)
		}
	}
	return sb.String()
}

// Orchestrator owns the control loop for one query at a time.
type Orchestrator struct {
	Planner       PlannerAgent
	Executor      ExecutorAgent
	Replanner     ReplanAgent
	Gate          Gate
	Synthesizer   SynthesizerAgent
	Journal       Journal
	Logger        *observability.Logger
	MaxIterations int

	phase Phase
}

// Phase returns the state machine position of the current or last run.
func (o *Orchestrator) Phase() Phase {
	return o.phase
}

// Run processes query to completion. It always returns a report; aborts are
// described in Report.Abort rather than returned as errors.
func (o *Orchestrator) Run(ctx context.Context, query string) *Report {
	o.setPhase(PhaseInit, "")
	state := NewState(uuid.NewString(), strings.TrimSpace(query))
	rep := &Report{RunID: state.RunID, Query: state.Query, StartedAt: time.Now()}
	log.Printf("[Orchestrator] run %s: %q", state.RunID, state.Query)

	o.setPhase(PhasePlanning, state.Query)
	steps, err := o.Planner.Plan(ctx, state.RunID, state.Query)
	if err == nil && len(steps) == 0 {
		err = PlanningError("planner returned an empty plan", nil)
	}
	if err != nil {
		o.finishAborted(ctx, rep, state, asKind(err, KindPlanning, "planning failed"))
		return rep
	}
	state.Begin(steps)
	o.Logger.LogPlan(state.RunID, state.Plan)
	log.Printf("[Orchestrator] plan has %d step(s)", len(state.Plan))

	for state.Running() {
		if err := ctx.Err(); err != nil {
			o.abort(state, rep, HumanAbort("run cancelled: "+err.Error()))
			break
		}
		if o.MaxIterations > 0 && state.Iteration >= o.MaxIterations {
			o.abort(state, rep, IterationLimit(o.MaxIterations))
			break
		}
		if len(state.Plan) == 0 {
			log.Printf("[Orchestrator] plan is empty, forcing synthesis")
			_ = state.MarkSynthesizing()
			break
		}

		o.setPhase(PhaseExecuting, state.Plan[0].String())
		result, err := o.Executor.ExecuteNext(ctx, state)
		if err != nil {
			o.abort(state, rep, asKind(err, KindReplan, "executor could not run the next step"))
			break
		}
		state.Record(result)

		o.setPhase(PhaseReplanning, "")
		proposal, err := o.Replanner.Decide(ctx, state)
		if err != nil {
			o.abort(state, rep, asKind(err, KindReplan, "replan failed"))
			break
		}
		o.Logger.LogDecision(observability.EventTypeReplan, state.RunID, state.Iteration, string(proposal.Action), proposal.Reason)
		log.Printf("[Replan] %s", proposal)

		o.setPhase(PhaseAwaitingHuman, string(proposal.Action))
		final, err := o.Gate.Review(ctx, state.Snapshot(), proposal)
		if err != nil {
			final = FinalDecision{Action: ActionAbort, Kind: KindHumanAbort, Reason: "review ended: " + err.Error()}
		}
		o.Logger.LogDecision(observability.EventTypeReview, state.RunID, state.Iteration, string(final.Action), final.Reason)

		o.apply(state, rep, final)
		state.Advance()
	}

	if state.Terminal == TerminalAborted {
		o.finish(ctx, rep, state, PhaseAborted)
		return rep
	}

	o.setPhase(PhaseSynthesizing, "")
	answer, err := o.Synthesizer.Synthesize(ctx, state.RunID, state.Query, state.History)
	if err != nil {
		de := asKind(err, KindSynthesis, "synthesis failed")
		rep.Abort = abortReport(de)
		o.Logger.LogAbort(state.RunID, state.Iteration, string(de.Kind), de.Error())
		o.finish(ctx, rep, state, PhaseAborted)
		return rep
	}
	o.Logger.LogDecision(observability.EventTypeSynthesis, state.RunID, state.Iteration, "done", fmt.Sprintf("%d evidence, %d caveats", len(answer.Evidence), len(answer.Caveats)))
	rep.Answer = &answer
	o.finish(ctx, rep, state, PhaseDone)
	return rep
}

// apply mutates plan and terminal according to the gate's final word.
func (o *Orchestrator) apply(state *State, rep *Report, final FinalDecision) {
	switch final.Action {
	case ActionContinue:
	case ActionEditPlan:
		state.ReplacePlan(final.Plan)
		log.Printf("[Orchestrator] plan now has %d step(s)", len(state.Plan))
	case ActionSynthesize:
		_ = state.MarkSynthesizing()
	case ActionAbort:
		kind := final.Kind
		if kind == "" {
			kind = KindHumanAbort
		}
		reason := final.Reason
		if reason == "" {
			reason = "aborted by operator"
		}
		o.abort(state, rep, newError(kind, reason, nil))
	default:
		o.abort(state, rep, ReplanError(fmt.Sprintf("gate returned unknown action %q", final.Action), nil))
	}
}

func (o *Orchestrator) abort(state *State, rep *Report, err *Error) {
	_ = state.MarkAborted()
	rep.Abort = abortReport(err)
	o.Logger.LogAbort(state.RunID, state.Iteration, string(err.Kind), err.Error())
	log.Printf("[Orchestrator] aborted: %v", err)
}

func (o *Orchestrator) finishAborted(ctx context.Context, rep *Report, state *State, err *Error) {
	rep.Abort = abortReport(err)
	o.Logger.LogAbort(state.RunID, state.Iteration, string(err.Kind), err.Error())
	log.Printf("[Orchestrator] aborted: %v", err)
	o.finish(ctx, rep, state, PhaseAborted)
}

func (o *Orchestrator) finish(ctx context.Context, rep *Report, state *State, phase Phase) {
	rep.Phase = phase
	rep.History = append([]StepResult(nil), state.History...)
	rep.Remaining = append([]PlanStep(nil), state.Plan...)
	rep.Iterations = state.Iteration
	rep.Planned, rep.Inserted, rep.Discarded = state.Planned, state.Inserted, state.Discarded
	rep.FinishedAt = time.Now()
	o.setPhase(phase, "")
	observability.SetStatus(observability.RoleIdle, "")

	if o.Journal != nil {
		// Cancelled runs are journaled too.
		jctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := o.Journal.SaveRun(jctx, rep); err != nil {
			log.Printf("[Orchestrator] failed to journal run %s: %v", rep.RunID, err)
		}
	}
}

var phaseRoles = map[Phase]observability.Role{
	PhasePlanning:      observability.RolePlanner,
	PhaseExecuting:     observability.RoleExecutor,
	PhaseReplanning:    observability.RoleReplanner,
	PhaseAwaitingHuman: observability.RoleOperator,
	PhaseSynthesizing:  observability.RoleSynthesizer,
}

func (o *Orchestrator) setPhase(p Phase, task string) {
	o.phase = p
	if role, ok := phaseRoles[p]; ok {
		observability.SetStatus(role, task)
	}
}
