// Package storage persists client-side state (session token, cached user,
// watch bookkeeping) in a small SQLite file.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Well-known keys.
const (
	KeyToken         = "gymbro_token"
	KeyUser          = "gymbro_user"
	KeyLegacyThreads = "gymbro_threads_v1"
)

type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	database, err := openDB(path)
	if err != nil {
		return nil, err
	}
	if err := applyMigrations(database); err != nil {
		_ = database.Close()
		return nil, err
	}
	return &Store{db: database}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns the stored value and whether the key exists.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get %s: %w", key, err)
	}
	return value, true, nil
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

func (s *Store) Remove(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
			return fmt.Errorf("remove %s: %w", key, err)
		}
	}
	return nil
}

// MarkSeen records notification keys and returns those not seen before,
// in input order.
func (s *Store) MarkSeen(ctx context.Context, keys []string) ([]string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339)
	fresh := make([]string, 0, len(keys))
	for _, key := range keys {
		res, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO seen_notifications (notification_key, seen_at) VALUES (?, ?)`, key, now)
		if err != nil {
			return nil, fmt.Errorf("mark seen %s: %w", key, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			fresh = append(fresh, key)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return fresh, nil
}
