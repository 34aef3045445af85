// Copyright 2026 © The Weft Authors
// SPDX-License-Identifier: Apache-2.0

package audit

import (
	"context"
	"database/sql"
	"errors"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists turn events in SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens (or creates) the database at path and ensures schema.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	store, err := NewSQLiteStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// NewSQLiteStore wraps an existing database handle and ensures schema.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, errors.New("db is nil")
	}
	if err := ensureSchema(db); err != nil {
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Record stores a single turn event.
func (s *SQLiteStore) Record(ctx context.Context, event TurnEvent) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO turn_events (run_id, agent_id, phase, status, detail, at)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		event.RunID,
		event.AgentID,
		event.Phase,
		event.Status,
		event.Detail,
		event.At.UTC(),
	)
	return err
}

// List returns turn events matching the filter in record order.
func (s *SQLiteStore) List(ctx context.Context, filter Filter) ([]TurnEvent, error) {
	query := `
		SELECT run_id, agent_id, phase, status, detail, at
		FROM turn_events
	`
	var args []any
	where := ""
	addFilter := func(clause string, value any) {
		if where == "" {
			where = " WHERE " + clause
		} else {
			where += " AND " + clause
		}
		args = append(args, value)
	}
	if filter.RunID != "" {
		addFilter("run_id = ?", filter.RunID)
	}
	if filter.AgentID != "" {
		addFilter("agent_id = ?", filter.AgentID)
	}
	if filter.Status != "" {
		addFilter("status = ?", filter.Status)
	}
	query += where + " ORDER BY rowid ASC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []TurnEvent
	for rows.Next() {
		var (
			event TurnEvent
			at    sql.NullTime
		)
		if err := rows.Scan(
			&event.RunID,
			&event.AgentID,
			&event.Phase,
			&event.Status,
			&event.Detail,
			&at,
		); err != nil {
			return nil, err
		}
		if at.Valid {
			event.At = at.Time
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

func ensureSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS turn_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			agent_id TEXT,
			phase TEXT NOT NULL,
			status TEXT NOT NULL,
			detail TEXT,
			at TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_turn_events_run ON turn_events(run_id);
		CREATE INDEX IF NOT EXISTS idx_turn_events_status ON turn_events(status);
	`)
	return err
}
