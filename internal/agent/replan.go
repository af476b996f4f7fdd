package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/rahul/plantdoc/internal/observability"
)

// Corrector decides how to react to a failed step that nothing left in the
// plan can make up for. It returns InsertSteps, Continue, Synthesize or Abort.
type Corrector interface {
	Correct(ctx context.Context, state *State, failed StepResult) (Decision, error)
}

// Replanner proposes the next action after each executed step.
type Replanner struct {
	MaxIterations int
	Corrector     Corrector
	Logger        *observability.Logger
}

func NewReplanner(maxIterations int, corrector Corrector, logger *observability.Logger) *Replanner {
	if corrector == nil {
		corrector = FallbackCorrector{MaxCorrections: 1}
	}
	return &Replanner{MaxIterations: maxIterations, Corrector: corrector, Logger: logger}
}

// Decide applies, in order: synthesize when the plan is done and something
// succeeded; correct an unrecoverable failure; abort at the iteration cap;
// otherwise continue.
func (r *Replanner) Decide(ctx context.Context, state *State) (Decision, error) {
	if len(state.Plan) == 0 && state.Succeeded() > 0 {
		return Synthesize("plan complete"), nil
	}

	if last, ok := state.LastResult(); ok && !last.Succeeded && !recoverable(state, last) {
		d, err := r.Corrector.Correct(ctx, state, last)
		if err != nil {
			return Decision{}, asKind(err, KindReplan, "corrective policy failed")
		}
		if err := d.Validate(); err != nil {
			return Decision{}, ReplanError("corrective policy returned an invalid decision", err)
		}
		if d.Action != ActionContinue {
			return d, nil
		}
	}

	if r.MaxIterations > 0 && state.Iteration+1 >= r.MaxIterations && len(state.Plan) > 0 {
		return Abort(KindIterationLimit, fmt.Sprintf("%d step(s) left after %d iterations", len(state.Plan), r.MaxIterations)), nil
	}

	if len(state.Plan) == 0 {
		// Nothing left, nothing succeeded, and the corrector chose to go on.
		return Decision{}, ReplanError("empty plan with no successful results", nil)
	}
	return Continue(), nil
}

// recoverable reports whether a remaining step uses the same tool as the
// failed one and can therefore still supply that kind of evidence.
func recoverable(state *State, failed StepResult) bool {
	for _, s := range state.Plan {
		if s.Kind == failed.Step.Kind {
			return true
		}
	}
	return false
}

// correctionOrigin is the planned step a failure ultimately belongs to.
func correctionOrigin(step PlanStep) string {
	if step.CorrectionOf != "" {
		return step.CorrectionOf
	}
	return step.Description
}

// correctionsFor counts corrective steps already issued for origin.
func correctionsFor(state *State, origin string) int {
	n := 0
	for _, r := range state.History {
		if r.Step.CorrectionOf == origin {
			n++
		}
	}
	for _, s := range state.Plan {
		if s.CorrectionOf == origin {
			n++
		}
	}
	return n
}

// exhausted is the shared outcome once no more corrections are allowed.
func exhausted(state *State, failed StepResult) Decision {
	if len(state.Plan) > 0 {
		return Continue()
	}
	if state.Succeeded() > 0 {
		return Synthesize("no further corrections, synthesizing from partial evidence")
	}
	return Abort(KindReplan, fmt.Sprintf("no corrective step available for failed step %q: %s", failed.Step.Description, failed.Error))
}

// FallbackCorrector is the deterministic default: a failed sensor read is
// followed by a manual lookup of the same symptom and vice versa, at most
// MaxCorrections times per planned step.
type FallbackCorrector struct {
	MaxCorrections int
}

func (c FallbackCorrector) Correct(ctx context.Context, state *State, failed StepResult) (Decision, error) {
	origin := correctionOrigin(failed.Step)
	if correctionsFor(state, origin) >= c.MaxCorrections {
		return exhausted(state, failed), nil
	}

	var step PlanStep
	switch failed.Step.Kind {
	case KindSCADA:
		step = NewStep(KindManual, "Troubleshooting guidance for: "+origin)
	case KindManual:
		step = NewStep(KindSCADA, "Recent sensor readings and error codes related to: "+origin)
	default:
		return exhausted(state, failed), nil
	}
	step.CorrectionOf = origin
	return InsertSteps(fmt.Sprintf("%s step failed: %s", failed.Step.Kind, failed.Error), step), nil
}

const correctionSchema = `{
  "type": "object",
  "properties": {
    "action": {"type": "string", "enum": ["insert", "abort"]},
    "reason": {"type": "string"},
    "steps": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "kind": {"type": "string"},
          "description": {"type": "string", "minLength": 1}
        },
        "required": ["kind", "description"]
      }
    }
  },
  "required": ["action"]
}`

// LLMCorrector asks the model for corrective steps. The correction budget
// is still enforced locally so a model cannot loop the run.
type LLMCorrector struct {
	llm            Completer
	Prompts        *PromptManager
	MaxCorrections int
}

func NewLLMCorrector(llm Completer, prompts *PromptManager, maxCorrections int) *LLMCorrector {
	llm.Agent = "replan"
	return &LLMCorrector{llm: llm, Prompts: prompts, MaxCorrections: maxCorrections}
}

func (c *LLMCorrector) Correct(ctx context.Context, state *State, failed StepResult) (Decision, error) {
	origin := correctionOrigin(failed.Step)
	if correctionsFor(state, origin) >= c.MaxCorrections {
		return exhausted(state, failed), nil
	}

	system, err := c.Prompts.GetPrompt(PromptReplan)
	if err != nil {
		return Decision{}, ReplanError("failed to load replan prompt", err)
	}

	reply, err := c.llm.complete(ctx, state.RunID, system, describeForReplan(state, failed))
	if err != nil {
		return Decision{}, ReplanError("replan model call failed", err)
	}

	doc, ok := extractJSON(reply)
	if !ok {
		return Decision{}, ReplanError("replan reply contained no JSON", nil)
	}
	var parsed struct {
		Action string `json:"action"`
		Reason string `json:"reason"`
		Steps  []struct {
			Kind        string `json:"kind"`
			Description string `json:"description"`
		} `json:"steps"`
	}
	if err := decodeValidated(correctionSchema, doc, &parsed); err != nil {
		return Decision{}, ReplanError("malformed replan reply", err)
	}

	reason := parsed.Reason
	if reason == "" {
		reason = "model proposal"
	}
	if parsed.Action == "abort" {
		return Abort(KindReplan, reason), nil
	}

	steps := make([]PlanStep, 0, len(parsed.Steps))
	for _, s := range parsed.Steps {
		kind, err := ParseStepKind(s.Kind)
		if err != nil {
			return Decision{}, ReplanError("malformed corrective step", err)
		}
		st := NewStep(kind, s.Description)
		st.CorrectionOf = origin
		steps = append(steps, st)
	}
	if len(steps) == 0 {
		return Decision{}, ReplanError("insert proposal without steps", nil)
	}
	return InsertSteps(reason, steps...), nil
}

func describeForReplan(state *State, failed StepResult) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Question: %s\n\nCompleted steps:\n", state.Query)
	for i, r := range state.History {
		status := "ok"
		if !r.Succeeded {
			status = "FAILED: " + r.Error
		}
		fmt.Fprintf(&sb, "%d. %s [%s]\n", i+1, r.Step, status)
	}
	sb.WriteString("\nRemaining plan:\n")
	if len(state.Plan) == 0 {
		sb.WriteString("(none)\n")
	}
	for i, s := range state.Plan {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, s)
	}
	fmt.Fprintf(&sb, "\nFailed step: %s\nError: %s\n", failed.Step, failed.Error)
	return sb.String()
}
