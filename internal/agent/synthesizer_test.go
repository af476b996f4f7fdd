package agent

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestSynthesizer_EmptyHistory(t *testing.T) {
	s := NewSynthesizer(testCompleter(&scriptedModel{}), NewPromptManager(""))
	if _, err := s.Synthesize(context.Background(), "run-1", "q", nil); KindOf(err) != KindSynthesis {
		t.Errorf("err = %v, want SynthesisError", err)
	}
}

func TestSynthesizer_CaveatsForFailedSteps(t *testing.T) {
	model := &scriptedModel{replies: []string{"Pump 3 averaged 71.3C in June, within limits."}}
	s := NewSynthesizer(testCompleter(model), NewPromptManager(""))

	history := []StepResult{
		{Step: scadaStep("vibration in June"), Error: "no sensor metric matches"},
		{Step: scadaStep("temperature in June"), Payload: "avg 71.3C", Succeeded: true},
	}
	answer, err := s.Synthesize(context.Background(), "run-1", "How did pump 3 run in June?", history)
	if err != nil {
		t.Fatal(err)
	}

	if len(answer.Evidence) != 1 || len(answer.Caveats) != 1 {
		t.Fatalf("evidence=%d caveats=%d", len(answer.Evidence), len(answer.Caveats))
	}
	if !strings.Contains(answer.Caveats[0], "vibration in June") {
		t.Errorf("caveat = %q", answer.Caveats[0])
	}
	if !strings.Contains(model.prompts[0], "FAILED: no sensor metric matches") || !strings.Contains(model.prompts[0], "avg 71.3C") {
		t.Errorf("prompt should carry both results:\n%s", model.prompts[0])
	}

	out := answer.Render()
	if !strings.Contains(out, "Caveats:") || !strings.Contains(out, "71.3C") {
		t.Errorf("render = %q", out)
	}
}

func TestSynthesizer_AllFailedSkipsModel(t *testing.T) {
	model := &scriptedModel{}
	s := NewSynthesizer(testCompleter(model), NewPromptManager(""))

	answer, err := s.Synthesize(context.Background(), "run-1", "q", []StepResult{{Step: manualStep("x"), Error: "no hits"}})
	if err != nil {
		t.Fatal(err)
	}
	if model.calls() != 0 {
		t.Error("model should not be called without evidence")
	}
	if len(answer.Caveats) != 1 || answer.Summary == "" {
		t.Errorf("answer = %+v", answer)
	}
}

func TestSynthesizer_ModelFailure(t *testing.T) {
	s := NewSynthesizer(testCompleter(&scriptedModel{err: errors.New("503")}), NewPromptManager(""))
	history := []StepResult{{Step: scadaStep("x"), Payload: "y", Succeeded: true}}
	if _, err := s.Synthesize(context.Background(), "run-1", "q", history); KindOf(err) != KindSynthesis {
		t.Errorf("err = %v", err)
	}
}
