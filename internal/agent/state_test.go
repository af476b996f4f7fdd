package agent

import "testing"

func TestParseStepKind(t *testing.T) {
	tests := []struct {
		in      string
		want    StepKind
		wantErr bool
	}{
		{"SCADA", KindSCADA, false},
		{" sensor ", KindSCADA, false},
		{"manual", KindManual, false},
		{"Doc", KindManual, false},
		{"WEB", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		got, err := ParseStepKind(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseStepKind(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseStepKind(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}

	if KindSCADA.ToolName() != "scada" || KindManual.ToolName() != "manual" {
		t.Errorf("unexpected tool names %q %q", KindSCADA.ToolName(), KindManual.ToolName())
	}
}

func TestState_PopRecordAdvance(t *testing.T) {
	s := NewState("run-1", "why is pump 3 hot?")
	s.Begin([]PlanStep{scadaStep("temp"), manualStep("overheating")})

	if !s.Running() || s.Planned != 2 {
		t.Fatalf("unexpected state after Begin: %+v", s)
	}

	step, ok := s.PopNext()
	if !ok || step.Description != "temp" {
		t.Fatalf("PopNext = %v, %v", step, ok)
	}
	if len(s.Plan) != 1 {
		t.Fatalf("plan should shrink by one, got %d", len(s.Plan))
	}

	s.Record(StepResult{Step: step, Succeeded: true, Payload: "42C"})
	s.Advance()
	if s.Iteration != 1 || len(s.History) != 1 {
		t.Errorf("iteration=%d history=%d", s.Iteration, len(s.History))
	}

	last, ok := s.LastResult()
	if !ok || last.Payload != "42C" {
		t.Errorf("LastResult = %+v", last)
	}
	if s.Succeeded() != 1 {
		t.Errorf("Succeeded = %d", s.Succeeded())
	}

	s.PopNext()
	if _, ok := s.PopNext(); ok {
		t.Error("PopNext on an empty plan should report false")
	}
}

func TestState_StepAccounting(t *testing.T) {
	s := NewState("run-1", "q")
	s.Begin([]PlanStep{scadaStep("a"), scadaStep("b"), manualStep("c")})

	step, _ := s.PopNext()
	s.Record(StepResult{Step: step, Succeeded: false, Error: "no data"})

	s.Insert([]PlanStep{manualStep("fix a")})

	// Operator keeps the tail and adds one step in front.
	s.ReplacePlan(append([]PlanStep{scadaStep("extra")}, s.Plan...))
	if s.Discarded != 0 || s.Inserted != 2 {
		t.Fatalf("suffix-preserving edit should count as insertion: inserted=%d discarded=%d", s.Inserted, s.Discarded)
	}

	// A real rewrite discards what was pending.
	pendingBefore := len(s.Plan)
	s.ReplacePlan([]PlanStep{manualStep("only this")})
	if s.Discarded != pendingBefore {
		t.Errorf("Discarded = %d, want %d", s.Discarded, pendingBefore)
	}

	for len(s.Plan) > 0 {
		st, _ := s.PopNext()
		s.Record(StepResult{Step: st, Succeeded: true})
	}

	if got, want := len(s.History), s.Planned+s.Inserted-s.Discarded; got != want {
		t.Errorf("history=%d, planned+inserted-discarded=%d", got, want)
	}
}

func TestState_TerminalTransitions(t *testing.T) {
	s := NewState("run-1", "q")
	s.Begin([]PlanStep{scadaStep("a")})

	if err := s.MarkSynthesizing(); err != nil {
		t.Fatalf("running -> synthesizing: %v", err)
	}
	if err := s.MarkAborted(); err == nil {
		t.Error("synthesizing -> aborted should be rejected")
	}
	if s.Terminal != TerminalSynthesizing {
		t.Errorf("terminal changed to %s", s.Terminal)
	}

	s2 := NewState("run-2", "q")
	s2.Begin([]PlanStep{scadaStep("a")})
	if err := s2.MarkAborted(); err != nil {
		t.Fatal(err)
	}
	if err := s2.MarkSynthesizing(); err == nil {
		t.Error("aborted -> synthesizing should be rejected")
	}
	if s2.Running() {
		t.Error("aborted state must not be running")
	}
}

func TestState_SnapshotIsolation(t *testing.T) {
	s := NewState("run-1", "q")
	s.Begin([]PlanStep{scadaStep("a"), manualStep("b")})
	s.Record(StepResult{Step: scadaStep("x"), Succeeded: true})

	snap := s.Snapshot()
	snap.Plan[0].Description = "changed"
	snap.History[0].Payload = "changed"

	if s.Plan[0].Description != "a" || s.History[0].Payload != "" {
		t.Error("mutating a snapshot leaked into the live state")
	}
}
