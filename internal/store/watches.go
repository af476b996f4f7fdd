package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rahul/plantdoc/internal/agent"
)

// AddWatch schedules query. It is due immediately.
func (s *Store) AddWatch(ctx context.Context, query string, interval time.Duration) (int, error) {
	res, err := s.DB.ExecContext(ctx,
		`INSERT INTO watches (query, interval_seconds) VALUES (?, ?)`,
		query, int(interval.Seconds()))
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	return int(id), err
}

// DueWatches returns active watches whose interval has elapsed.
func (s *Store) DueWatches(ctx context.Context) ([]agent.Watch, error) {
	return s.queryWatches(ctx, `
		SELECT id, query, interval_seconds, last_run
		FROM watches
		WHERE status = 'active'
		AND (last_run IS NULL OR (julianday('now') - julianday(last_run)) * 86400 >= interval_seconds)
		ORDER BY id`)
}

func (s *Store) ListWatches(ctx context.Context) ([]agent.Watch, error) {
	return s.queryWatches(ctx, `SELECT id, query, interval_seconds, last_run FROM watches WHERE status = 'active' ORDER BY id`)
}

func (s *Store) queryWatches(ctx context.Context, query string) ([]agent.Watch, error) {
	rows, err := s.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var watches []agent.Watch
	for rows.Next() {
		var w agent.Watch
		var seconds int
		var lastRun sql.NullString
		if err := rows.Scan(&w.ID, &w.Query, &seconds, &lastRun); err != nil {
			return nil, err
		}
		w.Interval = time.Duration(seconds) * time.Second
		w.LastRun = parseTime(lastRun.String)
		watches = append(watches, w)
	}
	return watches, rows.Err()
}

func (s *Store) MarkWatchRun(ctx context.Context, id int) error {
	_, err := s.DB.ExecContext(ctx, `UPDATE watches SET last_run = datetime('now') WHERE id = ?`, id)
	return err
}

func (s *Store) DeleteWatch(ctx context.Context, id int) error {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM watches WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("watch %d not found", id)
	}
	return nil
}
