// Package profilestore is the default collab.ProfileStore adapter,
// persisting user profiles to a local SQLite database via the pure-Go
// modernc.org/sqlite driver (no cgo, matching a single static binary).
package profilestore

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"chatcoach/internal/collab"
)

// SQLiteStore is the default collab.ProfileStore implementation.
type SQLiteStore struct {
	db *sql.DB
}

// Open opens (creating if necessary) a SQLite database at path and ensures
// the profiles table exists.
func Open(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("profilestore: open %s: %w", path, err)
	}

	const schema = `
CREATE TABLE IF NOT EXISTS profiles (
	user_id  TEXT PRIMARY KEY,
	nickname TEXT NOT NULL DEFAULT ''
);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("profilestore: migrate: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

var _ collab.ProfileStore = (*SQLiteStore)(nil)

// Get implements collab.ProfileStore.
func (s *SQLiteStore) Get(ctx context.Context, userID string) (collab.Profile, error) {
	row := s.db.QueryRowContext(ctx, `SELECT user_id, nickname FROM profiles WHERE user_id = ?`, userID)

	var p collab.Profile
	if err := row.Scan(&p.UserID, &p.Nickname); err != nil {
		if err == sql.ErrNoRows {
			return collab.Profile{UserID: userID}, nil
		}
		return collab.Profile{}, fmt.Errorf("profilestore: get %s: %w", userID, err)
	}
	return p, nil
}

// Put implements collab.ProfileStore.
func (s *SQLiteStore) Put(ctx context.Context, p collab.Profile) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO profiles (user_id, nickname) VALUES (?, ?)
ON CONFLICT(user_id) DO UPDATE SET nickname = excluded.nickname`,
		p.UserID, p.Nickname)
	if err != nil {
		return fmt.Errorf("profilestore: put %s: %w", p.UserID, err)
	}
	return nil
}
