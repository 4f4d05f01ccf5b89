// Package history implements the SQLite audit trail of SPEC_FULL.md §2.2/§3:
// one row per memoized invocation, for post-hoc inspection only. It never
// participates in fingerprinting or the lookup/execute/store protocol; a
// failed write here never fails a build (see RecordBestEffort).
//
// Grounded on mattcburns-shoal's internal/database/database.go: sql.Open
// with the modernc.org/sqlite pure-Go driver, a Migrate step running
// CREATE TABLE IF NOT EXISTS inside a transaction, and plain
// fmt.Errorf-wrapped query methods.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// DB wraps the history database connection.
type DB struct {
	conn *sql.DB
}

// Open opens (creating if absent) the SQLite database at path and runs
// migrations.
func Open(ctx context.Context, path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("history: opening %s: %w", path, err)
	}
	if err := conn.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("history: pinging %s: %w", path, err)
	}
	db := &DB{conn: conn}
	if err := db.migrate(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

// Close closes the underlying connection.
func (db *DB) Close() error { return db.conn.Close() }

func (db *DB) migrate(ctx context.Context) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("history: begin migration: %w", err)
	}
	defer tx.Rollback()

	migrations := []string{
		`CREATE TABLE IF NOT EXISTS invocations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			task_name TEXT NOT NULL,
			tchash TEXT NOT NULL,
			rhash TEXT,
			outcome TEXT NOT NULL,
			duration_ms INTEGER NOT NULL DEFAULT 0,
			recorded_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_invocations_run_id ON invocations(run_id)`,
		`CREATE INDEX IF NOT EXISTS idx_invocations_tchash ON invocations(tchash)`,
	}
	for _, m := range migrations {
		if _, err := tx.ExecContext(ctx, m); err != nil {
			return fmt.Errorf("history: migration failed: %w", err)
		}
	}
	return tx.Commit()
}

// Outcome is the terminal state a memoized call reached, per SPEC_FULL.md
// §4.5's state machine.
type Outcome string

const (
	OutcomeRestored Outcome = "RESTORED"
	OutcomeStored   Outcome = "STORED"
	OutcomeFailed   Outcome = "FAILED"
)

// Invocation is one audit-trail row.
type Invocation struct {
	RunID      string
	TaskName   string
	TCHash     string
	RHash      string
	Outcome    Outcome
	Duration   time.Duration
	RecordedAt time.Time
}

// Record inserts one invocation row.
func (db *DB) Record(ctx context.Context, inv Invocation) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO invocations (run_id, task_name, tchash, rhash, outcome, duration_ms) VALUES (?, ?, ?, ?, ?, ?)`,
		inv.RunID, inv.TaskName, inv.TCHash, inv.RHash, string(inv.Outcome), inv.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("history: recording invocation: %w", err)
	}
	return nil
}

// RecordBestEffort calls Record and swallows any error, per §4.4's
// "the history write is best-effort and its failure does not fail the
// build." logErr, if non-nil, receives the suppressed error for logging.
func (db *DB) RecordBestEffort(ctx context.Context, inv Invocation, logErr func(error)) {
	if db == nil {
		return
	}
	if err := db.Record(ctx, inv); err != nil && logErr != nil {
		logErr(err)
	}
}

// ForRun returns every invocation recorded under runID, most recent first.
func (db *DB) ForRun(ctx context.Context, runID string) ([]Invocation, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT run_id, task_name, tchash, rhash, outcome, duration_ms, recorded_at FROM invocations WHERE run_id = ? ORDER BY id DESC`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("history: querying run %s: %w", runID, err)
	}
	defer rows.Close()

	var out []Invocation
	for rows.Next() {
		var (
			inv        Invocation
			outcome    string
			durationMs int64
			rhash      sql.NullString
		)
		if err := rows.Scan(&inv.RunID, &inv.TaskName, &inv.TCHash, &rhash, &outcome, &durationMs, &inv.RecordedAt); err != nil {
			return nil, fmt.Errorf("history: scanning row: %w", err)
		}
		inv.RHash = rhash.String
		inv.Outcome = Outcome(outcome)
		inv.Duration = time.Duration(durationMs) * time.Millisecond
		out = append(out, inv)
	}
	return out, rows.Err()
}
