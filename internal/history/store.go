package history

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/MushroomFleet/Careless-Whisper-V3-sub000/internal/config"
)

// Run is one completed pipeline run kept for recall.
type Run struct {
	ID         string
	Mode       string
	Transcript string
	Result     string
	Engine     string
	ElapsedMS  int64
	Error      string
	CreatedAt  time.Time
}

// Store keeps pipeline runs in SQLite so past transcripts survive restarts.
// An empty path disables persistence and every method becomes a no-op.
type Store struct {
	db    *sql.DB
	cfg   config.HistoryConfig
	log   *slog.Logger
	clock func() time.Time
}

// Open initializes the history store according to config.
func Open(ctx context.Context, cfg config.HistoryConfig, log *slog.Logger) (*Store, error) {
	if cfg.Path == "" {
		return &Store{cfg: cfg, log: log, clock: time.Now}, nil
	}

	dir := filepath.Dir(cfg.Path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db, cfg: cfg, log: log, clock: time.Now}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.Prune(ctx); err != nil {
		log.Warn("history prune on start failed", slog.String("error", err.Error()))
	}
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	ddl := `
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    mode TEXT NOT NULL,
    transcript TEXT,
    result TEXT,
    engine TEXT,
    elapsed_ms INTEGER,
    error TEXT,
    created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

// Close releases underlying resources.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Append writes one run into the store.
func (s *Store) Append(ctx context.Context, run Run) error {
	if s.db == nil {
		return nil
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = s.clock().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs(id, mode, transcript, result, engine, elapsed_ms, error, created_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET result=excluded.result, error=excluded.error`,
		run.ID, run.Mode, run.Transcript, run.Result, run.Engine, run.ElapsedMS, run.Error, run.CreatedAt)
	return err
}

// Recent retrieves up to limit runs ordered newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Run, error) {
	if s.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, mode, transcript, result, engine, elapsed_ms, error, created_at
		 FROM runs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var created string
		if err := rows.Scan(&r.ID, &r.Mode, &r.Transcript, &r.Result, &r.Engine, &r.ElapsedMS, &r.Error, &created); err != nil {
			return nil, err
		}
		if ts, err := time.Parse(time.RFC3339Nano, created); err == nil {
			r.CreatedAt = ts
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Prune applies the configured retention by age and by row count.
func (s *Store) Prune(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if s.cfg.RetentionDays > 0 {
		cutoff := s.clock().Add(-time.Duration(s.cfg.RetentionDays) * 24 * time.Hour)
		if _, err = tx.ExecContext(ctx, `DELETE FROM runs WHERE created_at < ?`, cutoff.UTC()); err != nil {
			return err
		}
	}
	if s.cfg.MaxRuns > 0 {
		_, err = tx.ExecContext(ctx, `DELETE FROM runs WHERE id IN (
			SELECT id FROM runs ORDER BY created_at DESC LIMIT -1 OFFSET ?
		)`, s.cfg.MaxRuns)
		if err != nil {
			return err
		}
	}
	err = tx.Commit()
	return err
}
