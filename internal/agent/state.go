package agent

import (
	"fmt"
	"strings"
)

// StepKind is the tool a plan step is routed to.
type StepKind string

const (
	KindSCADA  StepKind = "SCADA"
	KindManual StepKind = "MANUAL"
)

// ParseStepKind accepts the kind tags used by the planner and by operators.
func ParseStepKind(s string) (StepKind, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "SCADA", "SENSOR":
		return KindSCADA, nil
	case "MANUAL", "DOC", "DOCUMENT":
		return KindManual, nil
	}
	return "", fmt.Errorf("unknown step kind %q", s)
}

// ToolName is the registry name of the tool serving this kind.
func (k StepKind) ToolName() string {
	return strings.ToLower(string(k))
}

type StepStatus string

const (
	StatusPending StepStatus = "pending"
	StatusDone    StepStatus = "done"
	StatusFailed  StepStatus = "failed"
)

// PlanStep is one delegated query.
type PlanStep struct {
	Kind        StepKind   `json:"kind"`
	Description string     `json:"description"`
	Status      StepStatus `json:"status"`
	// CorrectionOf holds the description of the failed step this one was
	// inserted to recover.
	CorrectionOf string `json:"correction_of,omitempty"`
}

// NewStep returns a pending step.
func NewStep(kind StepKind, description string) PlanStep {
	return PlanStep{Kind: kind, Description: strings.TrimSpace(description), Status: StatusPending}
}

func (s PlanStep) String() string {
	return fmt.Sprintf("%s: %s", s.Kind, s.Description)
}

// StepResult is the outcome of one executed step.
type StepResult struct {
	Step      PlanStep `json:"step"`
	Payload   string   `json:"payload"`
	Succeeded bool     `json:"succeeded"`
	Error     string   `json:"error,omitempty"`
}

// Terminal is the run-level control flag.
type Terminal string

const (
	TerminalRunning      Terminal = "running"
	TerminalSynthesizing Terminal = "synthesizing"
	TerminalAborted      Terminal = "aborted"
)

// State is the single mutable aggregate threaded through one diagnostic run.
type State struct {
	RunID     string
	Query     string
	Plan      []PlanStep
	History   []StepResult
	Iteration int
	Terminal  Terminal

	Planned   int
	Inserted  int
	Discarded int
}

func NewState(runID, query string) *State {
	return &State{RunID: runID, Query: query}
}

// Begin installs the initial plan and enters the running state.
func (s *State) Begin(plan []PlanStep) {
	s.Plan = pending(plan)
	s.Planned = len(s.Plan)
	s.Iteration = 0
	s.Terminal = TerminalRunning
}

// Running reports whether the loop may still issue executions.
func (s *State) Running() bool {
	return s.Terminal == TerminalRunning
}

// PopNext removes the head of the plan.
func (s *State) PopNext() (PlanStep, bool) {
	if len(s.Plan) == 0 {
		return PlanStep{}, false
	}
	step := s.Plan[0]
	s.Plan = s.Plan[1:]
	return step, true
}

// Record appends a completed step to the history.
func (s *State) Record(r StepResult) {
	s.History = append(s.History, r)
}

// Insert puts corrective steps at the front of the plan.
func (s *State) Insert(steps []PlanStep) {
	steps = pending(steps)
	s.Plan = append(steps, s.Plan...)
	s.Inserted += len(steps)
}

// ReplacePlan swaps every remaining step for an operator-supplied plan.
// A new plan that keeps the current one as its tail is an insertion.
func (s *State) ReplacePlan(steps []PlanStep) {
	if n := len(steps) - len(s.Plan); n >= 0 && sameSteps(steps[n:], s.Plan) {
		s.Insert(steps[:n])
		return
	}
	steps = pending(steps)
	s.Discarded += len(s.Plan)
	s.Inserted += len(steps)
	s.Plan = steps
}

// Advance closes one Executor, Replan, Gate cycle.
func (s *State) Advance() {
	s.Iteration++
}

func (s *State) MarkSynthesizing() error {
	return s.transition(TerminalSynthesizing)
}

func (s *State) MarkAborted() error {
	return s.transition(TerminalAborted)
}

func (s *State) transition(to Terminal) error {
	if s.Terminal != TerminalRunning {
		return fmt.Errorf("illegal terminal transition %s -> %s", s.Terminal, to)
	}
	s.Terminal = to
	return nil
}

// LastResult returns the most recently recorded result.
func (s *State) LastResult() (StepResult, bool) {
	if len(s.History) == 0 {
		return StepResult{}, false
	}
	return s.History[len(s.History)-1], true
}

// Succeeded counts successful results in the history.
func (s *State) Succeeded() int {
	n := 0
	for _, r := range s.History {
		if r.Succeeded {
			n++
		}
	}
	return n
}

// Snapshot returns a deep copy for read-only consumers such as the gate.
func (s *State) Snapshot() State {
	cp := *s
	cp.Plan = append([]PlanStep(nil), s.Plan...)
	cp.History = append([]StepResult(nil), s.History...)
	return cp
}

func sameSteps(a, b []PlanStep) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Kind != b[i].Kind || a[i].Description != b[i].Description {
			return false
		}
	}
	return true
}

func pending(steps []PlanStep) []PlanStep {
	out := make([]PlanStep, 0, len(steps))
	for _, st := range steps {
		st.Status = StatusPending
		out = append(out, st)
	}
	return out
}
