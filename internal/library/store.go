// Package library persists the local prompt library in an embedded SQLite
// database and notifies consumers after every write. The store is the single
// owner of local prompt state; the sync engine only exchanges whole snapshots
// with it.
package library

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // Pure Go SQLite driver, registers as "sqlite".

	"github.com/promptdrive/promptdrive/internal/prompt"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// fileIDKey is the kv row holding the cached Drive file id.
const fileIDKey = "drive_file_id"

// dirPerms is used when creating the database's parent directory.
const dirPerms = 0o700

// Store is the SQLite-backed prompt library.
type Store struct {
	db     *sql.DB
	logger *slog.Logger

	mu   sync.Mutex
	subs []chan struct{}
}

// Open opens (creating if needed) the library database at path and applies
// pending schema migrations.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(filepath.Dir(path), dirPerms); err != nil {
		return nil, fmt.Errorf("library: creating data directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("library: opening database %s: %w", path, err)
	}

	// The store is used from one goroutine at a time, but the mirror watcher
	// may write concurrently with a read in the bridge.
	db.SetMaxOpenConns(1)

	if err := runMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db, logger: logger}, nil
}

// runMigrations applies all pending schema migrations using the goose v3
// Provider API (no global state, context-aware).
func runMigrations(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	subFS, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("library: creating migration sub-filesystem: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, db, subFS)
	if err != nil {
		return fmt.Errorf("library: creating migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("library: running migrations: %w", err)
	}

	for _, r := range results {
		logger.Info("applied migration",
			slog.String("source", r.Source.Path),
			slog.Int64("duration_ms", r.Duration.Milliseconds()),
		)
	}

	return nil
}

// Close closes the database and all subscriber channels.
func (s *Store) Close() error {
	s.mu.Lock()
	for _, ch := range s.subs {
		close(ch)
	}

	s.subs = nil
	s.mu.Unlock()

	return s.db.Close()
}

// Snapshot returns the whole library as one map.
func (s *Store) Snapshot(ctx context.Context) (prompt.Library, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, body FROM prompts`)
	if err != nil {
		return nil, fmt.Errorf("library: reading snapshot: %w", err)
	}
	defer rows.Close()

	lib := prompt.Library{}

	for rows.Next() {
		var key, body string
		if err := rows.Scan(&key, &body); err != nil {
			return nil, fmt.Errorf("library: scanning row: %w", err)
		}

		lib[key] = body
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("library: iterating rows: %w", err)
	}

	return lib, nil
}

// Get returns the prompt body for key. Found is false when absent.
func (s *Store) Get(ctx context.Context, key string) (body string, found bool, err error) {
	err = s.db.QueryRowContext(ctx, `SELECT body FROM prompts WHERE key = ?`, key).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}

	if err != nil {
		return "", false, fmt.Errorf("library: reading %q: %w", key, err)
	}

	return body, true, nil
}

// Put inserts or replaces one entry and notifies subscribers.
func (s *Store) Put(ctx context.Context, key, body string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO prompts (key, body) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET body = excluded.body`, key, body)
	if err != nil {
		return fmt.Errorf("library: writing %q: %w", key, err)
	}

	s.notify()

	return nil
}

// Delete removes one entry. Deleting an absent key is not an error.
// Subscribers are notified either way.
func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM prompts WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("library: deleting %q: %w", key, err)
	}

	s.notify()

	return nil
}

// ReplaceAll atomically replaces the whole library with the given snapshot
// and notifies subscribers.
func (s *Store) ReplaceAll(ctx context.Context, lib prompt.Library) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("library: beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, `DELETE FROM prompts`); err != nil {
		return fmt.Errorf("library: clearing prompts: %w", err)
	}

	for key, body := range lib {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO prompts (key, body) VALUES (?, ?)`, key, body); err != nil {
			return fmt.Errorf("library: inserting %q: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("library: committing replace: %w", err)
	}

	s.logger.Debug("library replaced", slog.Int("entries", len(lib)))
	s.notify()

	return nil
}

// SeedSamples merges sample prompts into the library without overwriting:
// existing entries always win. Used on first run.
func (s *Store) SeedSamples(ctx context.Context, samples prompt.Library) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("library: beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	for key, body := range samples {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO prompts (key, body) VALUES (?, ?)
			 ON CONFLICT(key) DO NOTHING`, key, body); err != nil {
			return fmt.Errorf("library: seeding %q: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("library: committing seed: %w", err)
	}

	s.notify()

	return nil
}

// Len returns the number of entries.
func (s *Store) Len(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM prompts`).Scan(&n); err != nil {
		return 0, fmt.Errorf("library: counting prompts: %w", err)
	}

	return n, nil
}

// FileID returns the cached Drive file id, "" when none is cached.
// Implements the drive client's IDCache.
func (s *Store) FileID() (string, error) {
	var id string

	err := s.db.QueryRow(`SELECT value FROM kv WHERE name = ?`, fileIDKey).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}

	if err != nil {
		return "", fmt.Errorf("library: reading cached file id: %w", err)
	}

	return id, nil
}

// SetFileID caches the Drive file id; id == "" clears the cache.
func (s *Store) SetFileID(id string) error {
	if id == "" {
		if _, err := s.db.Exec(`DELETE FROM kv WHERE name = ?`, fileIDKey); err != nil {
			return fmt.Errorf("library: clearing cached file id: %w", err)
		}

		return nil
	}

	_, err := s.db.Exec(
		`INSERT INTO kv (name, value) VALUES (?, ?)
		 ON CONFLICT(name) DO UPDATE SET value = excluded.value`, fileIDKey, id)
	if err != nil {
		return fmt.Errorf("library: caching file id: %w", err)
	}

	return nil
}

// Subscribe returns a channel that receives a signal after every library
// write, plus a cancel func that removes the subscription. The signal
// carries no payload — consumers re-read the snapshot. The channel is
// closed on cancel or when the store closes; cancel is idempotent.
func (s *Store) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	s.mu.Lock()
	s.subs = append(s.subs, ch)
	s.mu.Unlock()

	return ch, func() { s.unsubscribe(ch) }
}

func (s *Store) unsubscribe(ch chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, sub := range s.subs {
		if sub == ch {
			s.subs = append(s.subs[:i], s.subs[i+1:]...)
			close(ch)

			return
		}
	}
}

// notify signals every subscriber without blocking. A subscriber that has
// not drained its previous signal simply coalesces.
func (s *Store) notify() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
