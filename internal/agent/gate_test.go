package agent

import (
	"context"
	"testing"
)

func TestAutoGate_AcceptsProposals(t *testing.T) {
	g := AutoGate{MaxIterations: 5}
	snap := State{Iteration: 0, Plan: []PlanStep{scadaStep("b")}}

	if fd, _ := g.Review(context.Background(), snap, Continue()); fd.Action != ActionContinue {
		t.Errorf("continue -> %s", fd.Action)
	}
	if fd, _ := g.Review(context.Background(), snap, InsertSteps("r", manualStep("a"))); fd.Action != ActionEditPlan || len(fd.Plan) != 2 {
		t.Errorf("insert -> %+v", fd)
	}
	if fd, _ := g.Review(context.Background(), snap, Abort(KindReplan, "x")); fd.Action != ActionAbort || fd.Kind != KindReplan {
		t.Errorf("abort -> %+v", fd)
	}
}

func TestAutoGate_LastIteration(t *testing.T) {
	g := AutoGate{MaxIterations: 3}
	withEvidence := State{
		Iteration: 2,
		Plan:      []PlanStep{scadaStep("b")},
		History:   []StepResult{{Step: scadaStep("a"), Succeeded: true}},
	}

	for _, p := range []Decision{Continue(), Abort(KindIterationLimit, "cap")} {
		fd, err := g.Review(context.Background(), withEvidence, p)
		if err != nil {
			t.Fatal(err)
		}
		if fd.Action != ActionSynthesize {
			t.Errorf("%s at the cap -> %s, want synthesize", p, fd.Action)
		}
	}

	noEvidence := withEvidence
	noEvidence.History = []StepResult{{Step: scadaStep("a"), Error: "x"}}
	if fd, _ := g.Review(context.Background(), noEvidence, Abort(KindIterationLimit, "cap")); fd.Action != ActionAbort {
		t.Errorf("without evidence the cap abort stands, got %s", fd.Action)
	}
}

func TestAutoGate_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fd, err := AutoGate{}.Review(ctx, State{}, Continue())
	if err != nil {
		t.Fatal(err)
	}
	if fd.Action != ActionAbort || fd.Kind != KindHumanAbort {
		t.Errorf("fd = %+v", fd)
	}
}
