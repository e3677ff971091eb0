// Copyright 2026 The Updraft Authors
// SPDX-License-Identifier: Apache-2.0

// Package history keeps a local SQLite journal of update-cycle
// outcomes. The journal is diagnostic: support tooling and the CLI
// read it; the engine never consults it to make decisions, so losing
// it costs nothing but hindsight.
package history

import (
	"context"
	"fmt"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

const schema = `
CREATE TABLE IF NOT EXISTS update_cycles (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    started_at    INTEGER NOT NULL,
    finished_at   INTEGER NOT NULL,
    from_version  TEXT NOT NULL,
    to_version    TEXT NOT NULL,
    outcome       TEXT NOT NULL,
    detail        TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS update_cycles_started ON update_cycles(started_at);
`

// Entry is one recorded update cycle.
type Entry struct {
	StartedAt   time.Time
	FinishedAt  time.Time
	FromVersion string
	ToVersion   string

	// Outcome is the terminal orchestrator state of the cycle
	// ("awaiting-confirmation", "failed", "idle", ...).
	Outcome string

	// Detail carries the failure message for failed cycles.
	Detail string
}

// Journal is an append-only cycle log backed by SQLite.
type Journal struct {
	pool *sqlitex.Pool
}

// Open opens (or creates) the journal database. Standard pragmas:
// WAL journal for crash safety without fsync-per-commit, busy
// timeout for write contention.
func Open(path string) (*Journal, error) {
	pool, err := sqlitex.NewPool(path, sqlitex.PoolOptions{
		PoolSize: 2,
		PrepareConn: func(conn *sqlite.Conn) error {
			pragmas := []string{
				"PRAGMA journal_mode=WAL",
				"PRAGMA synchronous=NORMAL",
				"PRAGMA busy_timeout=5000",
			}
			for _, pragma := range pragmas {
				if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
					return fmt.Errorf("history: %s: %w", pragma, err)
				}
			}
			return sqlitex.ExecuteScript(conn, schema, nil)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("history: opening %s: %w", path, err)
	}
	return &Journal{pool: pool}, nil
}

// Append records one finished cycle.
func (j *Journal) Append(ctx context.Context, entry Entry) error {
	conn, err := j.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("history: take connection: %w", err)
	}
	defer j.pool.Put(conn)

	err = sqlitex.Execute(conn,
		`INSERT INTO update_cycles (started_at, finished_at, from_version, to_version, outcome, detail)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{
			Args: []any{
				entry.StartedAt.UnixMilli(),
				entry.FinishedAt.UnixMilli(),
				entry.FromVersion,
				entry.ToVersion,
				entry.Outcome,
				entry.Detail,
			},
		})
	if err != nil {
		return fmt.Errorf("history: appending cycle: %w", err)
	}
	return nil
}

// Recent returns the most recent n cycles, newest first.
func (j *Journal) Recent(ctx context.Context, n int) ([]Entry, error) {
	conn, err := j.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("history: take connection: %w", err)
	}
	defer j.pool.Put(conn)

	var entries []Entry
	err = sqlitex.Execute(conn,
		`SELECT started_at, finished_at, from_version, to_version, outcome, detail
		 FROM update_cycles ORDER BY id DESC LIMIT ?`,
		&sqlitex.ExecOptions{
			Args: []any{n},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				entries = append(entries, Entry{
					StartedAt:   time.UnixMilli(stmt.ColumnInt64(0)),
					FinishedAt:  time.UnixMilli(stmt.ColumnInt64(1)),
					FromVersion: stmt.ColumnText(2),
					ToVersion:   stmt.ColumnText(3),
					Outcome:     stmt.ColumnText(4),
					Detail:      stmt.ColumnText(5),
				})
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("history: reading cycles: %w", err)
	}
	return entries, nil
}

// Close closes the journal's connection pool.
func (j *Journal) Close() error {
	if err := j.pool.Close(); err != nil {
		return fmt.Errorf("history: closing pool: %w", err)
	}
	return nil
}
