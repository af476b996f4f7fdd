package agent

import (
	"context"
	"strings"
	"testing"

	"github.com/rahul/plantdoc/internal/observability"
)

// stateAfter builds a running state whose last executed step produced r.
func stateAfter(r StepResult, remaining ...PlanStep) *State {
	s := NewState("run-1", "why is pump 3 hot?")
	s.Begin(remaining)
	s.Planned++
	s.Record(r)
	return s
}

func TestReplanner_SynthesizeWhenPlanDone(t *testing.T) {
	r := NewReplanner(5, nil, observability.Nop())
	s := stateAfter(StepResult{Step: scadaStep("temp"), Succeeded: true})

	d, err := r.Decide(context.Background(), s)
	if err != nil {
		t.Fatal(err)
	}
	if d.Action != ActionSynthesize {
		t.Errorf("decision = %s", d)
	}
}

func TestReplanner_ContinueOnSuccess(t *testing.T) {
	r := NewReplanner(5, nil, observability.Nop())
	s := stateAfter(StepResult{Step: scadaStep("temp"), Succeeded: true}, manualStep("limits"))

	d, err := r.Decide(context.Background(), s)
	if err != nil {
		t.Fatal(err)
	}
	if d.Action != ActionContinue {
		t.Errorf("decision = %s", d)
	}
}

func TestReplanner_RecoverableFailureContinues(t *testing.T) {
	r := NewReplanner(5, nil, observability.Nop())
	failed := StepResult{Step: scadaStep("vibration"), Error: "no data"}
	s := stateAfter(failed, scadaStep("current draw"))

	d, err := r.Decide(context.Background(), s)
	if err != nil {
		t.Fatal(err)
	}
	if d.Action != ActionContinue {
		t.Errorf("a later SCADA step can cover the failure, got %s", d)
	}
}

func TestReplanner_InsertsCrossKindCorrection(t *testing.T) {
	r := NewReplanner(5, nil, observability.Nop())
	failed := StepResult{Step: scadaStep("vibration"), Error: "no sensor metric matches"}
	s := stateAfter(failed, manualStep("bearing limits"))

	d, err := r.Decide(context.Background(), s)
	if err != nil {
		t.Fatal(err)
	}
	if d.Action != ActionInsert || len(d.Steps) != 1 {
		t.Fatalf("decision = %s", d)
	}
	step := d.Steps[0]
	if step.Kind != KindManual || step.CorrectionOf != "vibration" || !strings.Contains(step.Description, "vibration") {
		t.Errorf("corrective step = %+v", step)
	}
}

func TestReplanner_CorrectionBudget(t *testing.T) {
	r := NewReplanner(10, FallbackCorrector{MaxCorrections: 1}, observability.Nop())

	// The correction for "vibration" has itself failed.
	correction := manualStep("Troubleshooting guidance for: vibration")
	correction.CorrectionOf = "vibration"

	s := NewState("run-1", "q")
	s.Begin(nil)
	s.Record(StepResult{Step: scadaStep("vibration"), Error: "no data"})
	s.Record(StepResult{Step: correction, Error: "no hits"})

	d, err := r.Decide(context.Background(), s)
	if err != nil {
		t.Fatal(err)
	}
	if d.Action != ActionAbort || d.Kind != KindReplan {
		t.Errorf("nothing succeeded and no corrections left, got %s", d)
	}

	s.History = append([]StepResult{{Step: scadaStep("temp"), Succeeded: true}}, s.History...)
	d, err = r.Decide(context.Background(), s)
	if err != nil {
		t.Fatal(err)
	}
	if d.Action != ActionSynthesize {
		t.Errorf("partial evidence should be synthesized, got %s", d)
	}
}

func TestReplanner_IterationCap(t *testing.T) {
	r := NewReplanner(3, nil, observability.Nop())
	s := stateAfter(StepResult{Step: scadaStep("a"), Succeeded: true}, scadaStep("b"))
	s.Iteration = 2

	d, err := r.Decide(context.Background(), s)
	if err != nil {
		t.Fatal(err)
	}
	if d.Action != ActionAbort || d.Kind != KindIterationLimit {
		t.Errorf("decision = %s", d)
	}
}

func TestLLMCorrector(t *testing.T) {
	failed := StepResult{Step: scadaStep("vibration"), Error: "no data"}

	model := &scriptedModel{replies: []string{
		`{"action":"insert","reason":"try the manual","steps":[{"kind":"MANUAL","description":"vibration limits"}]}`,
	}}
	c := NewLLMCorrector(testCompleter(model), NewPromptManager(""), 1)
	d, err := c.Correct(context.Background(), stateAfter(failed), failed)
	if err != nil {
		t.Fatal(err)
	}
	if d.Action != ActionInsert || d.Steps[0].CorrectionOf != "vibration" || d.Steps[0].Kind != KindManual {
		t.Errorf("decision = %+v", d)
	}
	if !strings.Contains(model.prompts[0], "Failed step: SCADA: vibration") {
		t.Errorf("prompt missing failed step:\n%s", model.prompts[0])
	}

	abort := NewLLMCorrector(testCompleter(&scriptedModel{replies: []string{`{"action":"abort","reason":"hopeless"}`}}), NewPromptManager(""), 1)
	if d, err := abort.Correct(context.Background(), stateAfter(failed), failed); err != nil || d.Action != ActionAbort {
		t.Errorf("abort reply: %v, %v", d, err)
	}
}

func TestLLMCorrector_Malformed(t *testing.T) {
	failed := StepResult{Step: scadaStep("vibration"), Error: "no data"}
	replies := []string{
		"just keep going",
		`{"action":"reboot"}`,
		`{"action":"insert","steps":[{"kind":"WEB","description":"x"}]}`,
		`{"action":"insert","steps":[]}`,
	}

	for _, reply := range replies {
		c := NewLLMCorrector(testCompleter(&scriptedModel{replies: []string{reply}}), NewPromptManager(""), 1)
		r := NewReplanner(5, c, observability.Nop())
		_, err := r.Decide(context.Background(), stateAfter(failed))
		if KindOf(err) != KindReplan {
			t.Errorf("reply %q: err = %v, want ReplanError", reply, err)
		}
	}
}
