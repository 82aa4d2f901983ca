package history

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/MushroomFleet/Careless-Whisper-V3-sub000/internal/config"
)

func newTestStore(t *testing.T, cfg config.HistoryConfig) *Store {
	t.Helper()
	if cfg.Path == "" {
		cfg.Path = filepath.Join(t.TempDir(), "history.db")
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	s, err := Open(context.Background(), cfg, log)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAppendAndRecent(t *testing.T) {
	s := newTestStore(t, config.HistoryConfig{MaxRuns: 100})
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		run := Run{
			ID:         id,
			Mode:       "transcribe",
			Transcript: "hello " + id,
			Result:     "hello " + id,
			ElapsedMS:  int64(100 + i),
			CreatedAt:  base.Add(time.Duration(i) * time.Minute),
		}
		if err := s.Append(ctx, run); err != nil {
			t.Fatalf("Append %s: %v", id, err)
		}
	}

	runs, err := s.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("expected 3 runs, got %d", len(runs))
	}
	if runs[0].ID != "c" || runs[2].ID != "a" {
		t.Fatalf("expected newest-first order, got %s..%s", runs[0].ID, runs[2].ID)
	}
	if runs[0].Transcript != "hello c" {
		t.Fatalf("unexpected transcript %q", runs[0].Transcript)
	}
	if !runs[0].CreatedAt.Equal(base.Add(2 * time.Minute)) {
		t.Fatalf("unexpected created_at %v", runs[0].CreatedAt)
	}
}

func TestAppendUpsertsByID(t *testing.T) {
	s := newTestStore(t, config.HistoryConfig{})
	ctx := context.Background()

	run := Run{ID: "dup", Mode: "prompt_llm", Result: "first", CreatedAt: time.Now().UTC()}
	if err := s.Append(ctx, run); err != nil {
		t.Fatalf("Append: %v", err)
	}
	run.Result = "second"
	run.Error = "retried"
	if err := s.Append(ctx, run); err != nil {
		t.Fatalf("Append update: %v", err)
	}

	runs, err := s.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected 1 run after upsert, got %d", len(runs))
	}
	if runs[0].Result != "second" || runs[0].Error != "retried" {
		t.Fatalf("expected updated row, got %+v", runs[0])
	}
}

func TestPruneByAge(t *testing.T) {
	s := newTestStore(t, config.HistoryConfig{RetentionDays: 7})
	ctx := context.Background()

	now := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)
	s.clock = func() time.Time { return now }

	old := Run{ID: "old", Mode: "transcribe", CreatedAt: now.Add(-8 * 24 * time.Hour)}
	fresh := Run{ID: "fresh", Mode: "transcribe", CreatedAt: now.Add(-time.Hour)}
	for _, r := range []Run{old, fresh} {
		if err := s.Append(ctx, r); err != nil {
			t.Fatalf("Append %s: %v", r.ID, err)
		}
	}

	if err := s.Prune(ctx); err != nil {
		t.Fatalf("Prune: %v", err)
	}
	runs, err := s.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != "fresh" {
		t.Fatalf("expected only fresh run to survive, got %+v", runs)
	}
}

func TestPruneByMaxRuns(t *testing.T) {
	s := newTestStore(t, config.HistoryConfig{MaxRuns: 2})
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"one", "two", "three", "four"} {
		run := Run{ID: id, Mode: "transcribe", CreatedAt: base.Add(time.Duration(i) * time.Second)}
		if err := s.Append(ctx, run); err != nil {
			t.Fatalf("Append %s: %v", id, err)
		}
	}

	if err := s.Prune(ctx); err != nil {
		t.Fatalf("Prune: %v", err)
	}
	runs, err := s.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs after prune, got %d", len(runs))
	}
	if runs[0].ID != "four" || runs[1].ID != "three" {
		t.Fatalf("expected newest two to survive, got %s, %s", runs[0].ID, runs[1].ID)
	}
}

func TestDisabledStoreIsNoOp(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	s, err := Open(context.Background(), config.HistoryConfig{}, log)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	if err := s.Append(ctx, Run{ID: "x", Mode: "transcribe"}); err != nil {
		t.Fatalf("Append on disabled store: %v", err)
	}
	runs, err := s.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent on disabled store: %v", err)
	}
	if runs != nil {
		t.Fatalf("expected no runs from disabled store, got %+v", runs)
	}
	if err := s.Prune(ctx); err != nil {
		t.Fatalf("Prune on disabled store: %v", err)
	}
}
