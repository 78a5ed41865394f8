package seen

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dlps55195/x-bot-worker/internal/logging"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// SQLiteStore keeps seen state in a SQLite table. Rows are cached in memory
// at open; every Record is an upsert committed before it returns.
type SQLiteStore struct {
	db      *sql.DB
	path    string
	opts    options
	mu      sync.Mutex
	entries map[string]time.Time
}

var _ Store = (*SQLiteStore)(nil)

const seenSchema = `
CREATE TABLE IF NOT EXISTS seen_posts (
	post_id TEXT PRIMARY KEY,
	replied_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_seen_posts_replied_at ON seen_posts(replied_at);
`

// OpenSQLite opens (or creates) the database at path. A database that cannot
// be read is moved aside to <path>.corrupt-<unix> and replaced with an empty
// one.
func OpenSQLite(path string, opts ...Option) (*SQLiteStore, error) {
	timer := logging.StartTimer(logging.CategoryStore, "OpenSQLite")
	defer timer.Stop()

	log := logging.Get(logging.CategoryStore)
	o := buildOptions(opts)

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	s, err := openSQLite(path, o)
	if err == nil {
		return s, nil
	}
	if path == ":memory:" {
		return nil, err
	}

	aside := fmt.Sprintf("%s.corrupt-%d", path, o.now().Unix())
	log.Warn("seen database unreadable, starting empty",
		zap.String("path", path), zap.String("moved_to", aside), zap.Error(err))
	if renameErr := os.Rename(path, aside); renameErr != nil && !errors.Is(renameErr, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %v (move aside: %v)", ErrCorrupt, err, renameErr)
	}
	return openSQLite(path, o)
}

func openSQLite(path string, o options) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.Get(logging.CategoryStore).Debug("failed to set journal_mode=WAL", zap.Error(err))
	}
	if _, err := db.Exec(seenSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: create schema: %v", ErrCorrupt, err)
	}

	s := &SQLiteStore{db: db, path: path, opts: o, entries: make(map[string]time.Time)}
	if err := s.load(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// load deletes expired rows and caches the rest.
func (s *SQLiteStore) load() error {
	cutoff := s.opts.now().Add(-s.opts.retention)
	res, err := s.db.Exec(`DELETE FROM seen_posts WHERE replied_at <= ?`, cutoff.UnixNano())
	if err != nil {
		return fmt.Errorf("%w: expire rows: %v", ErrCorrupt, err)
	}
	expired, _ := res.RowsAffected()

	rows, err := s.db.Query(`SELECT post_id, replied_at FROM seen_posts`)
	if err != nil {
		return fmt.Errorf("%w: read rows: %v", ErrCorrupt, err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var ns int64
		if err := rows.Scan(&id, &ns); err != nil {
			return fmt.Errorf("%w: scan row: %v", ErrCorrupt, err)
		}
		s.entries[id] = time.Unix(0, ns)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	logging.Get(logging.CategoryStore).Info("seen database loaded",
		zap.String("path", s.path),
		zap.Int("entries", len(s.entries)),
		zap.Int64("expired", expired))
	return nil
}

// ImportLegacy merges a JSON seen file (either format) into the table. A
// missing file imports nothing; a corrupt one is logged and skipped.
func (s *SQLiteStore) ImportLegacy(path string) (int, error) {
	log := logging.Get(logging.CategoryStore)
	entries, _, err := readFile(path, s.opts.now())
	if err != nil {
		log.Warn("legacy seen file unreadable, skipping import", zap.String("path", path), zap.Error(err))
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin import: %w", err)
	}
	stmt, err := tx.Prepare(`
		INSERT INTO seen_posts (post_id, replied_at) VALUES (?, ?)
		ON CONFLICT(post_id) DO UPDATE SET replied_at = MAX(replied_at, excluded.replied_at)`)
	if err != nil {
		_ = tx.Rollback()
		return 0, fmt.Errorf("prepare import: %w", err)
	}
	defer stmt.Close()

	n := 0
	for id, ts := range entries {
		if !s.opts.fresh(ts) {
			continue
		}
		if _, err := stmt.Exec(id, ts.UnixNano()); err != nil {
			_ = tx.Rollback()
			return 0, fmt.Errorf("import %s: %w", id, err)
		}
		n++
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit import: %w", err)
	}

	for id, ts := range entries {
		if !s.opts.fresh(ts) {
			continue
		}
		if cur, ok := s.entries[id]; !ok || ts.After(cur) {
			s.entries[id] = ts
		}
	}
	log.Info("imported legacy seen file", zap.String("path", path), zap.Int("entries", n))
	return n, nil
}

// Has reports whether postID is present and unexpired.
func (s *SQLiteStore) Has(postID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts, ok := s.entries[postID]
	return ok && s.opts.fresh(ts)
}

// Record upserts postID. The cache is updated even when the write fails so
// the current pass does not reply twice.
func (s *SQLiteStore) Record(postID string, at time.Time) error {
	if postID == "" {
		return errors.New("empty post id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[postID] = at
	_, err := s.db.Exec(`
		INSERT INTO seen_posts (post_id, replied_at) VALUES (?, ?)
		ON CONFLICT(post_id) DO UPDATE SET replied_at = excluded.replied_at`,
		postID, at.UnixNano())
	if err != nil {
		return fmt.Errorf("persist seen %s: %w", postID, err)
	}
	return nil
}

// Entries returns a copy of the unexpired entries.
func (s *SQLiteStore) Entries() map[string]time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]time.Time, len(s.entries))
	for id, ts := range s.entries {
		if s.opts.fresh(ts) {
			out[id] = ts
		}
	}
	return out
}

// Len returns the number of unexpired entries.
func (s *SQLiteStore) Len() int {
	return len(s.Entries())
}

// Prune deletes expired rows.
func (s *SQLiteStore) Prune() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := s.opts.now().Add(-s.opts.retention)
	if _, err := s.db.Exec(`DELETE FROM seen_posts WHERE replied_at <= ?`, cutoff.UnixNano()); err != nil {
		return 0, fmt.Errorf("prune seen: %w", err)
	}
	n := 0
	for id, ts := range s.entries {
		if !s.opts.fresh(ts) {
			delete(s.entries, id)
			n++
		}
	}
	return n, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
