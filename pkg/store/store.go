package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// Clock abstracts time for TTL expiry so tests can advance it.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Config holds store configuration.
type Config struct {
	// Path is the SQLite database file. ":memory:" is accepted for tests.
	Path   string
	Clock  Clock
	Logger zerolog.Logger
}

// Store is a TTL-bounded key/value store with hash-map semantics for
// structured records and plain string storage for lists and flags.
type Store struct {
	db     *sql.DB
	clock  Clock
	logger zerolog.Logger
	mu     sync.Mutex
}

const schema = `
CREATE TABLE IF NOT EXISTS entries (
	k          TEXT NOT NULL,
	field      TEXT NOT NULL DEFAULT '',
	v          TEXT NOT NULL,
	expires_at INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (k, field)
);
CREATE INDEX IF NOT EXISTS idx_entries_expiry ON entries (expires_at);
`

// Open opens (or creates) the store at cfg.Path.
func Open(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("store path cannot be empty")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = systemClock{}
	}

	db, err := sql.Open("sqlite3", cfg.Path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open store database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize store schema: %w", err)
	}

	s := &Store{
		db:     db,
		clock:  clock,
		logger: cfg.Logger,
	}

	s.logger.Info().Str("path", cfg.Path).Msg("Store opened")
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func validateKey(key string) error {
	if key == "" {
		return fmt.Errorf("key cannot be empty")
	}
	if strings.Contains(key, "\x00") {
		return fmt.Errorf("key cannot contain null bytes")
	}
	return nil
}

// expiresAt converts a TTL into an absolute expiry in epoch millis.
// A non-positive TTL means the entry never expires.
func (s *Store) expiresAt(ttl time.Duration) int64 {
	if ttl <= 0 {
		return 0
	}
	return s.clock.Now().Add(ttl).UnixMilli()
}

// Put writes a plain string value under key with the given TTL. Writing
// an existing key replaces the value and restarts its expiry.
func (s *Store) Put(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := validateKey(key); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.sweepExpired(ctx)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO entries (k, field, v, expires_at) VALUES (?, '', ?, ?)
		 ON CONFLICT (k, field) DO UPDATE SET v = excluded.v, expires_at = excluded.expires_at`,
		key, value, s.expiresAt(ttl))
	if err != nil {
		return fmt.Errorf("failed to write key %s: %w", key, err)
	}
	return nil
}

// Get reads a plain string value. The second return is false when the
// key is absent or expired; that case is not an error.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	if err := validateKey(key); err != nil {
		return "", false, err
	}

	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT v FROM entries WHERE k = ? AND field = '' AND (expires_at = 0 OR expires_at > ?)`,
		key, s.clock.Now().UnixMilli()).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read key %s: %w", key, err)
	}
	return value, true, nil
}

// HSet writes fields of a hash record. All fields of the key, including
// previously written ones, share the refreshed expiry.
func (s *Store) HSet(ctx context.Context, key string, fields map[string]string, ttl time.Duration) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if len(fields) == 0 {
		return fmt.Errorf("hash write requires at least one field")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.sweepExpired(ctx)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin hash write: %w", err)
	}
	defer tx.Rollback()

	expiry := s.expiresAt(ttl)
	for field, value := range fields {
		if field == "" {
			return fmt.Errorf("hash field name cannot be empty")
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO entries (k, field, v, expires_at) VALUES (?, ?, ?, ?)
			 ON CONFLICT (k, field) DO UPDATE SET v = excluded.v, expires_at = excluded.expires_at`,
			key, field, value, expiry); err != nil {
			return fmt.Errorf("failed to write field %s of %s: %w", field, key, err)
		}
	}

	// Keep one expiry per record.
	if _, err := tx.ExecContext(ctx,
		`UPDATE entries SET expires_at = ? WHERE k = ?`, expiry, key); err != nil {
		return fmt.Errorf("failed to refresh expiry of %s: %w", key, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit hash write: %w", err)
	}
	return nil
}

// HGet reads a single field of a hash record.
func (s *Store) HGet(ctx context.Context, key, field string) (string, bool, error) {
	if err := validateKey(key); err != nil {
		return "", false, err
	}

	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT v FROM entries WHERE k = ? AND field = ? AND (expires_at = 0 OR expires_at > ?)`,
		key, field, s.clock.Now().UnixMilli()).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read field %s of %s: %w", field, key, err)
	}
	return value, true, nil
}

// HGetAll reads every field of a hash record. An absent or expired key
// yields a nil map and false.
func (s *Store) HGetAll(ctx context.Context, key string) (map[string]string, bool, error) {
	if err := validateKey(key); err != nil {
		return nil, false, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT field, v FROM entries WHERE k = ? AND field != '' AND (expires_at = 0 OR expires_at > ?)`,
		key, s.clock.Now().UnixMilli())
	if err != nil {
		return nil, false, fmt.Errorf("failed to read record %s: %w", key, err)
	}
	defer rows.Close()

	fields := make(map[string]string)
	for rows.Next() {
		var field, value string
		if err := rows.Scan(&field, &value); err != nil {
			return nil, false, fmt.Errorf("failed to scan record %s: %w", key, err)
		}
		fields[field] = value
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("failed to read record %s: %w", key, err)
	}
	if len(fields) == 0 {
		return nil, false, nil
	}
	return fields, true, nil
}

// Delete removes keys. Deleting an absent key is not an error; the
// return value is the number of keys that actually held entries.
func (s *Store) Delete(ctx context.Context, keys ...string) (int, error) {
	if len(keys) == 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin delete: %w", err)
	}
	defer tx.Rollback()

	deleted := 0
	for _, key := range keys {
		if err := validateKey(key); err != nil {
			return deleted, err
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM entries WHERE k = ?`, key)
		if err != nil {
			return deleted, fmt.Errorf("failed to delete key %s: %w", key, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			deleted++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit delete: %w", err)
	}
	return deleted, nil
}

// Keys enumerates live keys matching a glob pattern such as "session:*".
func (s *Store) Keys(ctx context.Context, pattern string) ([]string, error) {
	if pattern == "" {
		return nil, fmt.Errorf("pattern cannot be empty")
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT k FROM entries WHERE k GLOB ? AND (expires_at = 0 OR expires_at > ?) ORDER BY k`,
		pattern, s.clock.Now().UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to scan key: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to enumerate keys: %w", err)
	}
	return keys, nil
}

// TTL reports the remaining lifetime of a key. The second return is
// false for absent or expired keys; a zero duration means no expiry.
func (s *Store) TTL(ctx context.Context, key string) (time.Duration, bool, error) {
	if err := validateKey(key); err != nil {
		return 0, false, err
	}

	var expiry int64
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(expires_at) FROM entries WHERE k = ? GROUP BY k`, key).Scan(&expiry)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to read expiry of %s: %w", key, err)
	}
	if expiry == 0 {
		return 0, true, nil
	}
	remaining := time.UnixMilli(expiry).Sub(s.clock.Now())
	if remaining <= 0 {
		return 0, false, nil
	}
	return remaining, true, nil
}

// sweepExpired drops rows whose expiry has passed. Called opportunistically
// under the write lock; failures only lose garbage collection, not data.
func (s *Store) sweepExpired(ctx context.Context) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM entries WHERE expires_at != 0 AND expires_at <= ?`,
		s.clock.Now().UnixMilli())
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to sweep expired entries")
		return
	}
	if n, _ := res.RowsAffected(); n > 0 {
		s.logger.Debug().Int64("rows", n).Msg("Swept expired entries")
	}
}
