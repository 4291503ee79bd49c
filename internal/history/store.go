// Package history persists completed runs so their quickfix lists can be
// replayed without re-running the tests.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrNoRuns is returned when the history holds no matching run.
var ErrNoRuns = errors.New("no recorded runs")

// timeLayout is fixed width so timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Failure is one reported failure within a run.
type Failure struct {
	Seq      int
	Location string
	Message  string
	Line     string // the full line as emitted
}

// Run is one completed test run.
type Run struct {
	ID           string
	Source       string // rspec, gotest
	StartedAt    time.Time
	FinishedAt   time.Time
	FailureCount int
	Failures     []Failure
}

// Store is a SQLite-backed run history.
type Store struct {
	db *sql.DB
}

// Open opens the history database at dbPath.
func Open(dbPath string) (*Store, error) {
	db, err := OpenDB(dbPath)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveRun writes the run and its failures atomically. An empty ID is replaced
// with a fresh UUID, and FailureCount is taken from len(Failures).
func (s *Store) SaveRun(ctx context.Context, run *Run) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	run.FailureCount = len(run.Failures)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, source, started_at, finished_at, failure_count) VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.Source, formatTime(run.StartedAt), formatTime(run.FinishedAt), run.FailureCount,
	)
	if err != nil {
		return fmt.Errorf("inserting run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO failures (run_id, seq, location, message, line) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing failure insert: %w", err)
	}
	defer stmt.Close()

	for i, f := range run.Failures {
		if _, err := stmt.ExecContext(ctx, run.ID, i+1, f.Location, f.Message, f.Line); err != nil {
			return fmt.Errorf("inserting failure %d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing run: %w", err)
	}
	return nil
}

// LastRun returns the most recent run with its failures. An empty source
// matches any source.
func (s *Store) LastRun(ctx context.Context, source string) (*Run, error) {
	query := `SELECT id, source, started_at, finished_at, failure_count FROM runs`
	var args []any
	if source != "" {
		query += ` WHERE source = ?`
		args = append(args, source)
	}
	query += ` ORDER BY started_at DESC, rowid DESC LIMIT 1`

	run, err := scanRun(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoRuns
	}
	if err != nil {
		return nil, fmt.Errorf("querying last run: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, location, message, line FROM failures WHERE run_id = ? ORDER BY seq`, run.ID)
	if err != nil {
		return nil, fmt.Errorf("querying failures: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var f Failure
		if err := rows.Scan(&f.Seq, &f.Location, &f.Message, &f.Line); err != nil {
			return nil, fmt.Errorf("scanning failure: %w", err)
		}
		run.Failures = append(run.Failures, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating failures: %w", err)
	}
	return run, nil
}

// ListRuns returns up to limit runs, newest first, without their failures.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, source, started_at, finished_at, failure_count FROM runs
		 ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating runs: %w", err)
	}
	return runs, nil
}

// Prune deletes all but the newest keep runs and returns how many were removed.
func (s *Store) Prune(ctx context.Context, keep int) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("starting transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const stale = `SELECT id FROM runs ORDER BY started_at DESC, rowid DESC LIMIT -1 OFFSET ?`

	if _, err := tx.ExecContext(ctx, `DELETE FROM failures WHERE run_id IN (`+stale+`)`, keep); err != nil {
		return 0, fmt.Errorf("pruning failures: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE id IN (`+stale+`)`, keep)
	if err != nil {
		return 0, fmt.Errorf("pruning runs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting pruned runs: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing prune: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var (
		run                 Run
		startedAt, finished string
	)
	if err := row.Scan(&run.ID, &run.Source, &startedAt, &finished, &run.FailureCount); err != nil {
		return nil, err
	}
	run.StartedAt = parseTime(startedAt)
	run.FinishedAt = parseTime(finished)
	return &run, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
