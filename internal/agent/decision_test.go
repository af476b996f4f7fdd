package agent

import "testing"

func TestParseStepList(t *testing.T) {
	steps, err := ParseStepList("SCADA: pump 3 vibration, MANUAL: bearing wear limits\n- sensor: motor current")
	if err != nil {
		t.Fatal(err)
	}
	if len(steps) != 3 {
		t.Fatalf("got %d steps, want 3", len(steps))
	}
	if steps[0].Kind != KindSCADA || steps[0].Description != "pump 3 vibration" {
		t.Errorf("step 0 = %+v", steps[0])
	}
	if steps[1].Kind != KindManual || steps[1].Description != "bearing wear limits" {
		t.Errorf("step 1 = %+v", steps[1])
	}
	if steps[2].Kind != KindSCADA || steps[2].Status != StatusPending {
		t.Errorf("step 2 = %+v", steps[2])
	}

	for _, bad := range []string{"check the pump", "WEB: search", "MANUAL:   "} {
		if _, err := ParseStepList(bad); err == nil {
			t.Errorf("ParseStepList(%q) should fail", bad)
		}
	}
}

func TestDecision_Validate(t *testing.T) {
	valid := []Decision{
		Continue(),
		Synthesize("done"),
		InsertSteps("fix", manualStep("x")),
		Abort(KindReplan, "stuck"),
	}
	for _, d := range valid {
		if err := d.Validate(); err != nil {
			t.Errorf("%s: unexpected error %v", d, err)
		}
	}

	invalid := []Decision{
		InsertSteps("nothing"),
		{Action: ActionAbort},
		{Action: "reboot"},
	}
	for _, d := range invalid {
		if err := d.Validate(); err == nil {
			t.Errorf("%+v should be invalid", d)
		}
	}
}

func TestAccept(t *testing.T) {
	snap := State{Plan: []PlanStep{scadaStep("b")}}

	fd := Accept(InsertSteps("retry", manualStep("a")), snap)
	if fd.Action != ActionEditPlan || len(fd.Plan) != 2 {
		t.Fatalf("Accept(insert) = %+v", fd)
	}
	if fd.Plan[0].Description != "a" || fd.Plan[1].Description != "b" {
		t.Errorf("corrective step should come first: %v", fd.Plan)
	}

	if fd := Accept(Abort(KindReplan, "x"), snap); fd.Action != ActionAbort || fd.Kind != KindReplan {
		t.Errorf("Accept(abort) = %+v", fd)
	}
	if fd := Accept(Synthesize("x"), snap); fd.Action != ActionSynthesize {
		t.Errorf("Accept(synthesize) = %+v", fd)
	}
	if fd := Accept(Continue(), snap); fd.Action != ActionContinue {
		t.Errorf("Accept(continue) = %+v", fd)
	}
}
