// CLAUDE:SUMMARY SQLite snapshot persistence: save, latest, prune and count.
// Package store persists captured snapshots so a later run can replay the
// latest one without a new interactive login.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hazyhaar/authwatch/snapshot"
)

// ErrNotFound is returned by Latest when no snapshot exists for the origin.
var ErrNotFound = errors.New("store: no snapshot")

const schema = `
CREATE TABLE IF NOT EXISTS snapshots (
	id          TEXT PRIMARY KEY,
	origin      TEXT NOT NULL,
	captured_at INTEGER NOT NULL,
	body        TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_snapshots_origin ON snapshots(origin, captured_at DESC);
`

// Store is a SQLite-backed snapshot store.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the store at path. ":memory:" is allowed.
func Open(path string) (*Store, error) {
	db, err := openDB(path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// Save persists st. Partial snapshots are refused.
func (s *Store) Save(ctx context.Context, st *snapshot.State) error {
	body, err := snapshot.Marshal(st)
	if err != nil {
		return fmt.Errorf("store: save: %w", err)
	}
	return runTx(ctx, s.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO snapshots (id, origin, captured_at, body) VALUES (?, ?, ?, ?)`,
			st.ID, st.Origin, st.CapturedAt, string(body))
		if err != nil {
			return fmt.Errorf("store: save: %w", err)
		}
		return nil
	})
}

// Latest returns the most recent snapshot for origin.
func (s *Store) Latest(ctx context.Context, origin string) (*snapshot.State, error) {
	var body string
	err := s.db.QueryRowContext(ctx,
		`SELECT body FROM snapshots WHERE origin = ? ORDER BY captured_at DESC, id DESC LIMIT 1`,
		origin).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: latest: %w", err)
	}
	st, err := snapshot.Unmarshal([]byte(body))
	if err != nil {
		return nil, fmt.Errorf("store: latest: %w", err)
	}
	return st, nil
}

// Prune keeps the newest keep snapshots per origin and deletes the rest.
// It returns the number deleted. keep <= 0 keeps everything.
func (s *Store) Prune(ctx context.Context, origin string, keep int) (int64, error) {
	if keep <= 0 {
		return 0, nil
	}
	var n int64
	err := runTx(ctx, s.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			DELETE FROM snapshots WHERE origin = ? AND id NOT IN (
				SELECT id FROM snapshots WHERE origin = ?
				ORDER BY captured_at DESC, id DESC LIMIT ?
			)`, origin, origin, keep)
		if err != nil {
			return fmt.Errorf("store: prune: %w", err)
		}
		n, err = res.RowsAffected()
		return err
	})
	return n, err
}

// Count returns how many snapshots exist for origin.
func (s *Store) Count(ctx context.Context, origin string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM snapshots WHERE origin = ?`, origin).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("store: count: %w", err)
	}
	return n, nil
}
