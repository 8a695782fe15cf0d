//go:build sqlite

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"fieldnet/internal/model"

	_ "modernc.org/sqlite"
)

type SQLiteStore struct {
	path string

	mu sync.RWMutex
	db *sql.DB
}

func NewSQLiteStore(path string) *SQLiteStore {
	return &SQLiteStore{path: path}
}

func (s *SQLiteStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return fmt.Errorf("%w: sqlite path is required", model.ErrConfig)
	}
	if s.db != nil {
		return nil
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return fmt.Errorf("%w: %w", model.ErrIO, err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("%w: %w", model.ErrIO, err)
	}

	if err := createTables(ctx, db); err != nil {
		_ = db.Close()
		return fmt.Errorf("%w: %w", model.ErrIO, err)
	}

	s.db = db
	return nil
}

func (s *SQLiteStore) SaveRun(ctx context.Context, run model.RunRecord) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	payload, err := EncodeRun(run)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO runs (id, name, seed, payload)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			seed = excluded.seed,
			payload = excluded.payload
	`, run.ID, run.Name, run.Seed, payload)
	if err != nil {
		return fmt.Errorf("%w: save run %s: %w", model.ErrIO, run.ID, err)
	}
	return nil
}

func (s *SQLiteStore) GetRun(ctx context.Context, id string) (model.RunRecord, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return model.RunRecord{}, false, err
	}

	var payload []byte
	err = db.QueryRowContext(ctx, `SELECT payload FROM runs WHERE id = ?`, id).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.RunRecord{}, false, nil
		}
		return model.RunRecord{}, false, fmt.Errorf("%w: get run %s: %w", model.ErrIO, id, err)
	}

	run, err := DecodeRun(payload)
	if err != nil {
		return model.RunRecord{}, false, fmt.Errorf("decode run %s: %w", id, err)
	}
	return run, true, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context) ([]model.RunRecord, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `SELECT payload FROM runs ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("%w: list runs: %w", model.ErrIO, err)
	}
	defer rows.Close()

	var out []model.RunRecord
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("%w: list runs: %w", model.ErrIO, err)
		}
		run, err := DecodeRun(payload)
		if err != nil {
			return nil, fmt.Errorf("decode run: %w", err)
		}
		out = append(out, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list runs: %w", model.ErrIO, err)
	}
	return out, nil
}

func (s *SQLiteStore) AppendRows(ctx context.Context, runID string, dataRows []model.Row) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: append rows for %s: %w", model.ErrIO, runID, err)
	}
	for _, row := range dataRows {
		payload, err := EncodeRows([]model.Row{row})
		if err != nil {
			_ = tx.Rollback()
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO rows (run_id, time, payload)
			VALUES (?, ?, ?)
		`, runID, row.Time, payload); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("%w: append rows for %s: %w", model.ErrIO, runID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: append rows for %s: %w", model.ErrIO, runID, err)
	}
	return nil
}

func (s *SQLiteStore) GetRows(ctx context.Context, runID string) ([]model.Row, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, false, err
	}

	rows, err := db.QueryContext(ctx, `SELECT payload FROM rows WHERE run_id = ? ORDER BY time`, runID)
	if err != nil {
		return nil, false, fmt.Errorf("%w: get rows for %s: %w", model.ErrIO, runID, err)
	}
	defer rows.Close()

	var out []model.Row
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, false, fmt.Errorf("%w: get rows for %s: %w", model.ErrIO, runID, err)
		}
		decoded, err := DecodeRows(payload)
		if err != nil {
			return nil, false, fmt.Errorf("decode rows for %s: %w", runID, err)
		}
		out = append(out, decoded...)
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("%w: get rows for %s: %w", model.ErrIO, runID, err)
	}
	return out, len(out) > 0, nil
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *SQLiteStore) getDB() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, errors.New("store is not initialized")
	}
	return s.db, nil
}

func createTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			seed INTEGER NOT NULL,
			payload BLOB NOT NULL
		);
		CREATE TABLE IF NOT EXISTS rows (
			run_id TEXT NOT NULL,
			time REAL NOT NULL,
			payload BLOB NOT NULL
		);
		CREATE INDEX IF NOT EXISTS rows_run_time ON rows (run_id, time);
	`)
	return err
}
