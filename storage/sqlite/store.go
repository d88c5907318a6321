// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/absmach/mqbench/results"
	"github.com/absmach/mqbench/storage"
	_ "modernc.org/sqlite"
)

var _ storage.Store = (*Store)(nil)

// Store is a SQLite-backed result store. Filterable fields get their own columns;
// the full result is kept as JSON.
type Store struct {
	db        *sql.DB
	closeOnce sync.Once
}

// New opens (and migrates) the database at path. ":memory:" gives a private
// in-memory database.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if path == ":memory:" {
		// Every connection would otherwise see its own empty database.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(3)
		db.SetMaxIdleConns(2)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	// modernc.org/sqlite requires explicit PRAGMAs (not query-string params)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy_timeout: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS results (
		id TEXT PRIMARY KEY,
		broker TEXT NOT NULL,
		status TEXT NOT NULL,
		score REAL NOT NULL DEFAULT 0,
		started_at INTEGER NOT NULL,
		body TEXT NOT NULL
	)`)
	if err != nil {
		return err
	}
	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_results_broker ON results(broker)`); err != nil {
		return err
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_results_started_at ON results(started_at)`)
	return err
}

func (s *Store) Save(ctx context.Context, r results.Result) error {
	if r.ID == "" {
		return storage.ErrEmptyID
	}
	body, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO results (id, broker, status, score, started_at, body)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			broker = excluded.broker,
			status = excluded.status,
			score = excluded.score,
			started_at = excluded.started_at,
			body = excluded.body`,
		r.ID, r.Broker, string(r.Status), r.Score, r.StartedAt.UnixNano(), string(body),
	)
	if err != nil {
		return fmt.Errorf("insert result: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (results.Result, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `SELECT body FROM results WHERE id = ?`, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return results.Result{}, storage.ErrNotFound
	}
	if err != nil {
		return results.Result{}, fmt.Errorf("query result: %w", err)
	}
	var r results.Result
	if err := json.Unmarshal([]byte(body), &r); err != nil {
		return results.Result{}, fmt.Errorf("unmarshal result: %w", err)
	}
	return r, nil
}

func (s *Store) List(ctx context.Context, f storage.Filter) ([]results.Result, error) {
	query := `SELECT body FROM results WHERE 1 = 1`
	var args []any
	if f.Broker != "" {
		query += ` AND broker = ?`
		args = append(args, f.Broker)
	}
	if f.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(f.Status))
	}
	query += ` ORDER BY started_at DESC, id ASC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	defer rows.Close()

	var out []results.Result
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		var r results.Result
		if err := json.Unmarshal([]byte(body), &r); err != nil {
			return nil, fmt.Errorf("unmarshal result: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.db.Close()
	})
	return err
}
