package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rahul/plantdoc/internal/agent"
)

const timeLayout = "2006-01-02 15:04:05"

// RunSummary is one journal row.
type RunSummary struct {
	ID         string
	Query      string
	Phase      string
	AbortKind  string
	AbortCause string
	Summary    string
	Iterations int
	Steps      int
	StartedAt  time.Time
	FinishedAt time.Time
}

// SaveRun journals a finished run and its executed steps. It satisfies
// agent.Journal.
func (s *Store) SaveRun(ctx context.Context, r *agent.Report) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var kind, cause, summary string
	if r.Abort != nil {
		kind, cause = string(r.Abort.Kind), r.Abort.Cause
	}
	if r.Answer != nil {
		summary = r.Answer.Summary
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, query, phase, abort_kind, abort_cause, summary, iterations, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.Query, string(r.Phase), kind, cause, summary, r.Iterations,
		r.StartedAt.UTC().Format(timeLayout), r.FinishedAt.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	for i, h := range r.History {
		succeeded := 0
		if h.Succeeded {
			succeeded = 1
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO steps (run_id, position, kind, description, correction_of, succeeded, payload, error)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			r.RunID, i+1, string(h.Step.Kind), h.Step.Description, h.Step.CorrectionOf, succeeded, h.Payload, h.Error)
		if err != nil {
			return fmt.Errorf("failed to insert step %d: %w", i+1, err)
		}
	}
	return tx.Commit()
}

// RecentRuns lists the newest runs first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	query := `
		SELECT r.id, r.query, r.phase, r.abort_kind, r.abort_cause, r.summary, r.iterations,
		       r.started_at, r.finished_at,
		       (SELECT COUNT(*) FROM steps st WHERE st.run_id = r.id)
		FROM runs r
		ORDER BY r.started_at DESC, r.rowid DESC
		LIMIT ?`
	rows, err := s.DB.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		var rs RunSummary
		var kind, cause, summary sql.NullString
		var started, finished string
		if err := rows.Scan(&rs.ID, &rs.Query, &rs.Phase, &kind, &cause, &summary, &rs.Iterations, &started, &finished, &rs.Steps); err != nil {
			return nil, err
		}
		rs.AbortKind, rs.AbortCause, rs.Summary = kind.String, cause.String, summary.String
		rs.StartedAt = parseTime(started)
		rs.FinishedAt = parseTime(finished)
		runs = append(runs, rs)
	}
	return runs, rows.Err()
}

// RunSteps returns the journaled steps of one run in execution order.
func (s *Store) RunSteps(ctx context.Context, runID string) ([]agent.StepResult, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT kind, description, correction_of, succeeded, payload, error FROM steps WHERE run_id = ? ORDER BY position`,
		runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []agent.StepResult
	for rows.Next() {
		var kind, desc string
		var corr, payload, errText sql.NullString
		var succeeded int
		if err := rows.Scan(&kind, &desc, &corr, &succeeded, &payload, &errText); err != nil {
			return nil, err
		}
		step := agent.PlanStep{Kind: agent.StepKind(kind), Description: desc, CorrectionOf: corr.String, Status: agent.StatusDone}
		if succeeded == 0 {
			step.Status = agent.StatusFailed
		}
		out = append(out, agent.StepResult{Step: step, Succeeded: succeeded == 1, Payload: payload.String, Error: errText.String})
	}
	return out, rows.Err()
}

func parseTime(s string) time.Time {
	for _, layout := range []string{timeLayout, time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
