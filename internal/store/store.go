// Package store keeps the ranked output of castrank runs in a SQLite database
// so earlier runs can be listed and queried without re-reading result files.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"castrank/internal/record"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

var (
	// ErrNoRuns is returned when the latest run is requested from an empty store.
	ErrNoRuns = errors.New("no runs recorded")
	// ErrRunNotFound is returned for an unknown run ID.
	ErrRunNotFound = errors.New("run not found")
)

// Run describes one stored pipeline run.
type Run struct {
	ID        string
	Input     string
	CreatedAt time.Time
	Records   int
	Total     int64 // sum of all counts
}

// Store is a SQLite-backed archive of ranked runs.
type Store struct {
	db   *sql.DB
	mu   sync.Mutex
	path string
	log  *zap.Logger
}

// Open opens (creating if needed) the database at path and creates its tables.
func Open(path string, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		log.Debug("failed to set sqlite busy_timeout", zap.Error(err))
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		log.Debug("failed to set sqlite journal_mode=WAL", zap.Error(err))
	}

	s := &Store{db: db, path: path, log: log}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	log.Debug("store opened", zap.String("path", path))
	return s, nil
}

// initialize creates the required tables.
func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		input TEXT NOT NULL,
		created_at TEXT NOT NULL,
		records INTEGER NOT NULL DEFAULT 0,
		total INTEGER NOT NULL DEFAULT 0
	);
	CREATE TABLE IF NOT EXISTS rankings (
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		rank INTEGER NOT NULL,
		count INTEGER NOT NULL,
		key TEXT NOT NULL,
		PRIMARY KEY (run_id, rank)
	);
	CREATE INDEX IF NOT EXISTS idx_rankings_key ON rankings(key);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveRun stores one run and its ranking in a single transaction. Rank 1 is the
// first record of ranked.
func (s *Store) SaveRun(ctx context.Context, runID, input string, ranked []record.Ranked) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var total int64
	for _, r := range ranked {
		total += r.Count
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		"INSERT INTO runs (id, input, created_at, records, total) VALUES (?, ?, ?, ?, ?)",
		runID, input, time.Now().UTC().Format(time.RFC3339Nano), len(ranked), total)
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", runID, err)
	}

	stmt, err := tx.PrepareContext(ctx, "INSERT INTO rankings (run_id, rank, count, key) VALUES (?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare ranking insert: %w", err)
	}
	defer stmt.Close()

	for i, r := range ranked {
		if _, err := stmt.ExecContext(ctx, runID, i+1, r.Count, r.Key); err != nil {
			return fmt.Errorf("failed to insert ranking %d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run %s: %w", runID, err)
	}
	s.log.Info("run stored",
		zap.String("run_id", runID),
		zap.Int("records", len(ranked)),
		zap.Int64("total", total))
	return nil
}

// LatestRun returns the ID of the most recently stored run.
func (s *Store) LatestRun(ctx context.Context) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx, "SELECT id FROM runs ORDER BY rowid DESC LIMIT 1").Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNoRuns
	}
	if err != nil {
		return "", fmt.Errorf("failed to query latest run: %w", err)
	}
	return id, nil
}

// Top returns the first n ranked records of runID in rank order. An empty runID
// selects the latest run; n <= 0 returns every record.
func (s *Store) Top(ctx context.Context, runID string, n int) ([]record.Ranked, error) {
	if runID == "" {
		id, err := s.LatestRun(ctx)
		if err != nil {
			return nil, err
		}
		runID = id
	} else if _, err := s.GetRun(ctx, runID); err != nil {
		return nil, err
	}

	limit := n
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT count, key FROM rankings WHERE run_id = ? ORDER BY rank LIMIT ?",
		runID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query rankings: %w", err)
	}
	defer rows.Close()

	var out []record.Ranked
	for rows.Next() {
		var r record.Ranked
		if err := rows.Scan(&r.Count, &r.Key); err != nil {
			return nil, fmt.Errorf("failed to scan ranking: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetRun returns the stored metadata of one run.
func (s *Store) GetRun(ctx context.Context, runID string) (Run, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, input, created_at, records, total FROM runs WHERE id = ?", runID)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return r, err
}

// Runs lists stored runs, newest first. limit <= 0 lists all of them.
func (s *Store) Runs(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, input, created_at, records, total FROM runs ORDER BY rowid DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (Run, error) {
	var (
		r       Run
		created string
	)
	if err := sc.Scan(&r.ID, &r.Input, &created, &r.Records, &r.Total); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, err
		}
		return Run{}, fmt.Errorf("failed to scan run: %w", err)
	}
	t, err := time.Parse(time.RFC3339Nano, created)
	if err != nil {
		return Run{}, fmt.Errorf("invalid created_at %q for run %s: %w", created, r.ID, err)
	}
	r.CreatedAt = t
	return r, nil
}
