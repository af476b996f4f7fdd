package agent

import (
	"fmt"
	"strings"
)

// Action is the closed set of replan proposals and gate outcomes.
type Action string

const (
	ActionContinue   Action = "continue"
	ActionInsert     Action = "insert_steps"
	ActionSynthesize Action = "synthesize"
	ActionAbort      Action = "abort"
	ActionEditPlan   Action = "edit_plan"
)

// Decision is the Replan Agent's proposal for the current iteration.
type Decision struct {
	Action Action
	Steps  []PlanStep // InsertSteps only
	Kind   ErrorKind  // Abort only
	Reason string
}

func Continue() Decision { return Decision{Action: ActionContinue} }

func InsertSteps(reason string, steps ...PlanStep) Decision {
	return Decision{Action: ActionInsert, Steps: steps, Reason: reason}
}

func Synthesize(reason string) Decision {
	return Decision{Action: ActionSynthesize, Reason: reason}
}

func Abort(kind ErrorKind, reason string) Decision {
	return Decision{Action: ActionAbort, Kind: kind, Reason: reason}
}

// Validate rejects shapes the orchestrator cannot apply.
func (d Decision) Validate() error {
	switch d.Action {
	case ActionContinue, ActionSynthesize:
		return nil
	case ActionInsert:
		if len(d.Steps) == 0 {
			return fmt.Errorf("insert_steps without steps")
		}
		return nil
	case ActionAbort:
		if d.Kind == "" {
			return fmt.Errorf("abort without a kind")
		}
		return nil
	}
	return fmt.Errorf("unknown replan action %q", d.Action)
}

func (d Decision) String() string {
	switch d.Action {
	case ActionInsert:
		return fmt.Sprintf("insert %d step(s): %s", len(d.Steps), d.Reason)
	case ActionAbort:
		return fmt.Sprintf("abort (%s): %s", d.Kind, d.Reason)
	case ActionSynthesize:
		return "synthesize: " + d.Reason
	}
	return "continue"
}

// FinalDecision is what the gate hands back to the orchestrator.
type FinalDecision struct {
	Action Action
	Plan   []PlanStep // EditPlan only
	Kind   ErrorKind  // Abort only
	Reason string
}

// Accept turns a proposal into the decision that applies it unchanged.
// Inserted steps become an edited plan with the corrective steps first.
func Accept(p Decision, snapshot State) FinalDecision {
	switch p.Action {
	case ActionInsert:
		plan := make([]PlanStep, 0, len(p.Steps)+len(snapshot.Plan))
		plan = append(plan, p.Steps...)
		plan = append(plan, snapshot.Plan...)
		return FinalDecision{Action: ActionEditPlan, Plan: plan, Reason: p.Reason}
	case ActionSynthesize:
		return FinalDecision{Action: ActionSynthesize, Reason: p.Reason}
	case ActionAbort:
		return FinalDecision{Action: ActionAbort, Kind: p.Kind, Reason: p.Reason}
	}
	return FinalDecision{Action: ActionContinue}
}

// ParseStepList reads the operator edit format: "SCADA: read X, MANUAL: look up Y".
// Entries may also be separated by newlines.
func ParseStepList(s string) ([]PlanStep, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == '\n' || r == ';' })
	var steps []PlanStep
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		step, err := parseTaggedStep(f)
		if err != nil {
			return nil, err
		}
		steps = append(steps, step)
	}
	return steps, nil
}

func parseTaggedStep(line string) (PlanStep, error) {
	line = strings.TrimLeft(line, "-*0123456789. ")
	tag, desc, ok := strings.Cut(line, ":")
	if !ok {
		return PlanStep{}, fmt.Errorf("step %q has no kind tag (want SCADA: or MANUAL:)", line)
	}
	kind, err := ParseStepKind(tag)
	if err != nil {
		return PlanStep{}, err
	}
	if strings.TrimSpace(desc) == "" {
		return PlanStep{}, fmt.Errorf("step %q has an empty description", line)
	}
	return NewStep(kind, desc), nil
}
