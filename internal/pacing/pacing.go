// Package pacing provides the randomized delays used between submissions and
// between keystrokes. Waits are always cancellable through the context.
package pacing

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/dlps55195/x-bot-worker/internal/config"
)

// Policy blocks for some delay, returning early with ctx.Err() when the
// context ends.
type Policy interface {
	Wait(ctx context.Context) error
}

// Window waits a uniformly random duration in [Min, Max].
type Window struct {
	Min time.Duration
	Max time.Duration

	mu  sync.Mutex
	rnd *rand.Rand // nil uses the global source
}

// NewWindow returns a window policy. Bounds are swapped if reversed.
func NewWindow(lo, hi time.Duration) *Window {
	if lo > hi {
		lo, hi = hi, lo
	}
	return &Window{Min: lo, Max: hi}
}

// WithSource makes the window draw from r, for reproducible tests.
func (w *Window) WithSource(r *rand.Rand) *Window {
	w.mu.Lock()
	w.rnd = r
	w.mu.Unlock()
	return w
}

// Next draws the next delay.
func (w *Window) Next() time.Duration {
	span := int64(w.Max - w.Min)
	if span <= 0 {
		return w.Min
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.rnd != nil {
		return w.Min + time.Duration(w.rnd.Int64N(span+1))
	}
	return w.Min + time.Duration(rand.Int64N(span+1))
}

// Wait sleeps for Next().
func (w *Window) Wait(ctx context.Context) error {
	return Sleep(ctx, w.Next())
}

// NoOp never waits. It still reports a cancelled context.
type NoOp struct{}

func (NoOp) Wait(ctx context.Context) error { return ctx.Err() }

// Sleep waits d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// BetweenReplies builds the post-submission window from config.
func BetweenReplies(cfg *config.Config) *Window {
	return NewWindow(cfg.GetMinDelay(), cfg.GetMaxDelay())
}

// Keystrokes builds the per-character typing window from config.
func Keystrokes(cfg *config.Config) *Window {
	return NewWindow(cfg.GetTypingMin(), cfg.GetTypingMax())
}
