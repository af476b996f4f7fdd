package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rahul/plantdoc/internal/agent"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "plantdoc.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_SaveRun(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	corr := agent.NewStep(agent.KindManual, "Troubleshooting guidance for: vibration")
	corr.CorrectionOf = "vibration"
	start := time.Now().Add(-time.Minute)

	done := &agent.Report{
		RunID:  "run-1",
		Query:  "Why is pump 3 vibrating?",
		Phase:  agent.PhaseDone,
		Answer: &agent.FinalAnswer{Summary: "Bearing wear."},
		History: []agent.StepResult{
			{Step: agent.NewStep(agent.KindSCADA, "vibration"), Error: "no data"},
			{Step: corr, Payload: "Replace bearings every 8000h", Succeeded: true},
		},
		Iterations: 2,
		StartedAt:  start,
		FinishedAt: start.Add(10 * time.Second),
	}
	aborted := &agent.Report{
		RunID:      "run-2",
		Query:      "q",
		Phase:      agent.PhaseAborted,
		Abort:      &agent.AbortReport{Kind: agent.KindHumanAbort, Cause: "operator quit"},
		StartedAt:  start.Add(time.Second),
		FinishedAt: start.Add(2 * time.Second),
	}

	for _, r := range []*agent.Report{done, aborted} {
		if err := s.SaveRun(ctx, r); err != nil {
			t.Fatal(err)
		}
	}

	runs, err := s.RecentRuns(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 {
		t.Fatalf("got %d runs", len(runs))
	}
	if runs[0].ID != "run-2" || runs[0].AbortKind != string(agent.KindHumanAbort) {
		t.Errorf("newest run = %+v", runs[0])
	}
	if runs[1].Summary != "Bearing wear." || runs[1].Steps != 2 || runs[1].Iterations != 2 {
		t.Errorf("older run = %+v", runs[1])
	}
	if runs[1].StartedAt.IsZero() {
		t.Error("started_at was not parsed")
	}

	steps, err := s.RunSteps(ctx, "run-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(steps) != 2 || steps[0].Succeeded || !steps[1].Succeeded || steps[1].Step.CorrectionOf != "vibration" {
		t.Errorf("steps = %+v", steps)
	}

	if err := s.SaveRun(ctx, done); err == nil {
		t.Error("saving the same run twice should fail")
	}
}

func TestStore_Watches(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	hourly, err := s.AddWatch(ctx, "pump 3 temperature trend", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	once, err := s.AddWatch(ctx, "compressor error codes", 0)
	if err != nil {
		t.Fatal(err)
	}

	due, err := s.DueWatches(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(due) != 2 || due[0].Interval != time.Hour {
		t.Fatalf("due = %+v", due)
	}

	if err := s.MarkWatchRun(ctx, hourly); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteWatch(ctx, once); err != nil {
		t.Fatal(err)
	}

	due, err = s.DueWatches(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(due) != 0 {
		t.Errorf("nothing should be due, got %+v", due)
	}

	all, err := s.ListWatches(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 || all[0].ID != hourly {
		t.Errorf("watches = %+v", all)
	}

	if err := s.DeleteWatch(ctx, 999); err == nil {
		t.Error("deleting a missing watch should fail")
	}
}
