package history

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/nixlim/failloc/internal/config"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStore_SaveAndLastRun(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	run := &Run{
		Source:     "rspec",
		StartedAt:  started,
		FinishedAt: started.Add(2 * time.Second),
		Failures: []Failure{
			{Location: "spec/a_spec.rb:15", Message: `expected 1\ngot 2`, Line: `spec/a_spec.rb:15: expected 1\ngot 2`},
			{Location: "./spec/b_spec.rb:3", Message: "boom", Line: "./spec/b_spec.rb:3: boom"},
		},
	}

	if err := store.SaveRun(ctx, run); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}
	if run.ID == "" {
		t.Fatal("expected SaveRun to assign an ID")
	}
	if run.FailureCount != 2 {
		t.Errorf("FailureCount: want 2, got %d", run.FailureCount)
	}

	got, err := store.LastRun(ctx, "")
	if err != nil {
		t.Fatalf("LastRun failed: %v", err)
	}
	if got.ID != run.ID || got.Source != "rspec" {
		t.Errorf("unexpected run: %+v", got)
	}
	if !got.StartedAt.Equal(started) {
		t.Errorf("StartedAt: want %v, got %v", started, got.StartedAt)
	}
	if len(got.Failures) != 2 {
		t.Fatalf("want 2 failures, got %d", len(got.Failures))
	}
	if got.Failures[0].Seq != 1 || got.Failures[1].Seq != 2 {
		t.Errorf("failures out of order: %+v", got.Failures)
	}
	if got.Failures[0].Line != run.Failures[0].Line {
		t.Errorf("line: want %q, got %q", run.Failures[0].Line, got.Failures[0].Line)
	}
}

func TestStore_LastRunEmpty(t *testing.T) {
	store := newTestStore(t)

	_, err := store.LastRun(context.Background(), "")
	if !errors.Is(err, ErrNoRuns) {
		t.Errorf("expected ErrNoRuns, got %v", err)
	}
}

func TestStore_LastRunBySource(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	for i, src := range []string{"rspec", "gotest", "rspec"} {
		run := &Run{Source: src, StartedAt: base.Add(time.Duration(i) * time.Minute)}
		if err := store.SaveRun(ctx, run); err != nil {
			t.Fatalf("SaveRun failed: %v", err)
		}
	}

	got, err := store.LastRun(ctx, "gotest")
	if err != nil {
		t.Fatalf("LastRun failed: %v", err)
	}
	if !got.StartedAt.Equal(base.Add(time.Minute)) {
		t.Errorf("expected the gotest run, got %+v", got)
	}

	got, err = store.LastRun(ctx, "")
	if err != nil {
		t.Fatalf("LastRun failed: %v", err)
	}
	if !got.StartedAt.Equal(base.Add(2 * time.Minute)) {
		t.Errorf("expected newest run, got %+v", got)
	}

	if _, err := store.LastRun(ctx, "pytest"); !errors.Is(err, ErrNoRuns) {
		t.Errorf("expected ErrNoRuns for unknown source, got %v", err)
	}
}

func TestStore_ListRunsNewestFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		run := &Run{
			ID:        fmt.Sprintf("run-%d", i),
			Source:    "gotest",
			StartedAt: base.Add(time.Duration(i) * time.Second),
			Failures:  make([]Failure, i),
		}
		if err := store.SaveRun(ctx, run); err != nil {
			t.Fatalf("SaveRun failed: %v", err)
		}
	}

	runs, err := store.ListRuns(ctx, 3)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("want 3 runs, got %d", len(runs))
	}
	for i, want := range []string{"run-4", "run-3", "run-2"} {
		if runs[i].ID != want {
			t.Errorf("runs[%d]: want %s, got %s", i, want, runs[i].ID)
		}
	}
	if runs[0].FailureCount != 4 {
		t.Errorf("FailureCount: want 4, got %d", runs[0].FailureCount)
	}
	if runs[0].Failures != nil {
		t.Error("ListRuns should not load failures")
	}
}

func TestStore_Prune(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 6; i++ {
		run := &Run{
			Source:    "rspec",
			StartedAt: base.Add(time.Duration(i) * time.Hour),
			Failures:  []Failure{{Location: "a_spec.rb:1", Message: "m", Line: "a_spec.rb:1: m"}},
		}
		if err := store.SaveRun(ctx, run); err != nil {
			t.Fatalf("SaveRun failed: %v", err)
		}
	}

	removed, err := store.Prune(ctx, 2)
	if err != nil {
		t.Fatalf("Prune failed: %v", err)
	}
	if removed != 4 {
		t.Errorf("removed: want 4, got %d", removed)
	}

	runs, err := store.ListRuns(ctx, 10)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("want 2 runs after prune, got %d", len(runs))
	}
	if !runs[1].StartedAt.Equal(base.Add(4 * time.Hour)) {
		t.Errorf("oldest kept run: got %v", runs[1].StartedAt)
	}

	var orphans int
	if err := store.db.QueryRow(`SELECT COUNT(*) FROM failures WHERE run_id NOT IN (SELECT id FROM runs)`).Scan(&orphans); err != nil {
		t.Fatalf("counting orphans: %v", err)
	}
	if orphans != 0 {
		t.Errorf("want no orphaned failures, got %d", orphans)
	}
}

func TestOpenDB_ReopenKeepsData(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "history.db")

	store, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := store.SaveRun(context.Background(), &Run{Source: "rspec", StartedAt: time.Now()}); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}
	_ = store.Close()

	store, err = Open(dbPath)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer func() { _ = store.Close() }()

	if _, err := store.LastRun(context.Background(), ""); err != nil {
		t.Errorf("expected run after reopen, got %v", err)
	}
}

func TestOpenDB_RejectsNewerSchema(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "history.db")
	db, err := OpenDB(dbPath)
	if err != nil {
		t.Fatalf("OpenDB failed: %v", err)
	}
	if _, err := db.Exec("UPDATE schema_version SET version = 99"); err != nil {
		t.Fatalf("bumping version: %v", err)
	}
	_ = db.Close()

	if _, err := OpenDB(dbPath); err == nil {
		t.Error("expected error for newer schema version")
	}
}

func TestNewStore_Disabled(t *testing.T) {
	if s := NewStore(config.HistoryConfig{}, zap.NewNop()); s != nil {
		t.Error("expected nil store when db_path is empty")
	}
}

func TestNewStore_FallsBackOnOpenError(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatalf("writing blocker: %v", err)
	}

	s := NewStore(config.HistoryConfig{DBPath: filepath.Join(blocker, "history.db"), KeepRuns: 1}, zap.NewNop())
	if s != nil {
		_ = s.Close()
		t.Error("expected nil store when the database cannot be created")
	}
}

func TestExpandTilde(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	if got := expandTilde("~/x/history.db"); got != filepath.Join(home, "x", "history.db") {
		t.Errorf("expandTilde: got %q", got)
	}
	if got := expandTilde("/abs/history.db"); got != "/abs/history.db" {
		t.Errorf("absolute path changed: %q", got)
	}
}
