package seen

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dlps55195/x-bot-worker/internal/logging"

	"go.uber.org/zap"
)

// JSONStore keeps seen state in a single JSON file, replaced atomically on
// every write.
type JSONStore struct {
	path    string
	opts    options
	mu      sync.Mutex
	entries map[string]time.Time
	// expired counts entries dropped at load that are still in the file.
	expired int
}

var _ Store = (*JSONStore)(nil)

// OpenJSON loads the store at path. A missing file is an empty store; an
// unreadable or corrupt file is logged and also treated as empty.
func OpenJSON(path string, opts ...Option) *JSONStore {
	s := &JSONStore{
		path:    path,
		opts:    buildOptions(opts),
		entries: make(map[string]time.Time),
	}
	s.load()
	return s
}

func (s *JSONStore) load() {
	log := logging.Get(logging.CategoryStore)

	entries, legacy, err := readFile(s.path, s.opts.now())
	if err != nil {
		log.Warn("seen state unreadable, starting empty",
			zap.String("path", s.path), zap.Error(err))
		return
	}

	dropped := 0
	for id, ts := range entries {
		if !s.opts.fresh(ts) {
			delete(entries, id)
			dropped++
		}
	}
	s.entries = entries
	s.expired = dropped
	log.Info("seen state loaded",
		zap.String("path", s.path),
		zap.Int("entries", len(entries)),
		zap.Int("expired", dropped),
		zap.Bool("legacy", legacy))

	if legacy {
		if err := s.persistLocked(); err != nil {
			log.Warn("failed to rewrite legacy seen state", zap.Error(err))
		} else {
			log.Info("upgraded legacy seen state", zap.String("path", s.path))
		}
	}
}

// readFile reads and decodes a seen file. A missing file is not an error.
func readFile(path string, now time.Time) (map[string]time.Time, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return make(map[string]time.Time), false, nil
		}
		return nil, false, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return decode(data, now)
}

// Has reports whether postID is present and unexpired.
func (s *JSONStore) Has(postID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts, ok := s.entries[postID]
	return ok && s.opts.fresh(ts)
}

// Record stores postID and persists before returning. On a write failure the
// entry stays in memory so the current pass still skips the post.
func (s *JSONStore) Record(postID string, at time.Time) error {
	if postID == "" {
		return errors.New("empty post id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[postID] = at
	if err := s.persistLocked(); err != nil {
		return fmt.Errorf("persist seen state: %w", err)
	}
	return nil
}

// Entries returns a copy of the unexpired entries.
func (s *JSONStore) Entries() map[string]time.Time {
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
func (s *JSONStore) Len() int {
	return len(s.Entries())
}

// Prune drops expired entries and rewrites the file.
func (s *JSONStore) Prune() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.expired
	for id, ts := range s.entries {
		if !s.opts.fresh(ts) {
			delete(s.entries, id)
			n++
		}
	}
	if n == 0 {
		return 0, nil
	}
	if err := s.persistLocked(); err != nil {
		return 0, err
	}
	return n, nil
}

// Close is a no-op; every Record is already durable.
func (s *JSONStore) Close() error { return nil }

// persistLocked writes to a temp file in the target directory, syncs it and
// renames it over the target, so a crash mid-write leaves the previous file
// intact. Caller must hold s.mu.
func (s *JSONStore) persistLocked() error {
	data, err := encode(s.entries)
	if err != nil {
		return err
	}
	if err := writeAtomic(s.path, data); err != nil {
		return err
	}
	s.expired = 0
	return nil
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return err
	}
	return nil
}
