package store

import (
	"database/sql"

	_ "github.com/glebarez/go-sqlite"
)

// Store is the plantdoc database: the run journal and scheduled watches.
type Store struct {
	DB *sql.DB
}

func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	// Create tables if not exist
	queries := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			query TEXT,
			phase TEXT,
			abort_kind TEXT,
			abort_cause TEXT,
			summary TEXT,
			iterations INTEGER,
			started_at DATETIME,
			finished_at DATETIME
		);`,
		`CREATE TABLE IF NOT EXISTS steps (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT,
			position INTEGER,
			kind TEXT,
			description TEXT,
			correction_of TEXT,
			succeeded INTEGER,
			payload TEXT,
			error TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS watches (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			query TEXT,
			interval_seconds INTEGER,
			last_run DATETIME,
			status TEXT DEFAULT 'active'
		);`,
	}
	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			db.Close()
			return nil, err
		}
	}

	return &Store{DB: db}, nil
}

func (s *Store) Close() error {
	return s.DB.Close()
}
