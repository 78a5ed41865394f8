// Package seen records which posts already received a reply so that no post
// is replied to twice within the retention window.
//
// Expiry is lazy: entries older than the window are dropped when the store is
// opened, and Has ignores entries that aged out since. Record persists before
// it returns, so a crash after Record cannot cause a duplicate reply.
package seen

import (
	"errors"
	"fmt"
	"time"

	"github.com/dlps55195/x-bot-worker/internal/config"
)

// DefaultRetention is how long a replied-to post stays ineligible.
const DefaultRetention = 24 * time.Hour

// ErrCorrupt marks persisted state that could not be read. The store
// degrades to empty instead of failing.
var ErrCorrupt = errors.New("seen store corrupt")

// Store is the dedup record. It is the single writer of seen state.
type Store interface {
	// Has reports whether postID is present and unexpired.
	Has(postID string) bool
	// Record inserts or overwrites postID and persists synchronously.
	Record(postID string, at time.Time) error
	// Entries returns a copy of the unexpired entries.
	Entries() map[string]time.Time
	// Len returns the number of unexpired entries.
	Len() int
	// Prune drops expired entries and persists the result.
	Prune() (int, error)
	Close() error
}

type options struct {
	now       func() time.Time
	retention time.Duration
}

// Option customizes a store.
type Option func(*options)

// WithClock overrides the clock used for expiry and legacy upgrades.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithRetention overrides the retention window.
func WithRetention(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.retention = d
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now, retention: DefaultRetention}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o options) fresh(at time.Time) bool {
	return o.now().Sub(at) < o.retention
}

// Open builds the store selected by cfg.Seen.Backend.
func Open(cfg *config.Config, opts ...Option) (Store, error) {
	opts = append([]Option{WithRetention(cfg.GetRetention())}, opts...)
	switch cfg.Seen.Backend {
	case "", "json":
		return OpenJSON(cfg.Seen.Path, opts...), nil
	case "sqlite":
		s, err := OpenSQLite(cfg.Seen.Path, opts...)
		if err != nil {
			return nil, err
		}
		if cfg.Seen.LegacyImport != "" {
			if _, err := s.ImportLegacy(cfg.Seen.LegacyImport); err != nil {
				_ = s.Close()
				return nil, err
			}
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown seen backend %q", cfg.Seen.Backend)
	}
}
