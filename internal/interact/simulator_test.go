package interact

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dlps55195/x-bot-worker/internal/browser/browsertest"
	"github.com/dlps55195/x-bot-worker/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const listURL = "https://x.com/i/lists/1"

func pageWith(t *testing.T, posts ...*browsertest.Post) *browsertest.Page {
	t.Helper()
	page := browsertest.NewPage().WithList(listURL, posts...)
	require.NoError(t, page.Navigate(context.Background(), listURL))
	return page
}

type countingPolicy struct{ n atomic.Int32 }

func (p *countingPolicy) Wait(ctx context.Context) error {
	p.n.Add(1)
	return ctx.Err()
}

func TestRunVerified(t *testing.T) {
	post := browsertest.NewPost("@ann", "101", "hello")
	page := pageWith(t, post)
	keys := &countingPolicy{}

	res := New(Options{Keystrokes: keys}).Run(context.Background(), page, "101", "same 😭")

	require.NoError(t, res.Err)
	assert.True(t, res.Verified())
	assert.Equal(t, []State{StateIdle, StateComposerOpened, StateTyped, StateSubmitted, StateVerified}, res.Trace)
	assert.Equal(t, "same 😭", page.Typed())
	assert.Equal(t, 6, page.Inserts(), "one insert per character")
	assert.EqualValues(t, 6, keys.n.Load(), "one pacing wait per character")
	assert.Equal(t, 1, page.Submits())
	assert.Equal(t, 0, page.Escapes())
	assert.Equal(t, 1, post.Clicks)
}

func TestRunVerificationFailed(t *testing.T) {
	page := pageWith(t, browsertest.NewPost("@ann", "101", "hello"))
	page.ComposerStaysOpen = true

	res := New(Options{}).Run(context.Background(), page, "101", "nice")

	assert.Equal(t, StateVerificationFailed, res.State)
	assert.True(t, errors.Is(res.Err, ErrVerification))
	assert.False(t, errors.Is(res.Err, ErrInteraction))
	assert.Equal(t, StateSubmitted, res.Trace[len(res.Trace)-2])
	assert.Equal(t, 1, page.Escapes(), "composer dismissed after failed verification")
}

func TestRunVisibilityReadErrorIsUnverified(t *testing.T) {
	page := pageWith(t, browsertest.NewPost("@ann", "101", "hello"))
	page.VisibleErr = errors.New("target detached")

	res := New(Options{}).Run(context.Background(), page, "101", "nice")
	assert.Equal(t, StateVerificationFailed, res.State)
	assert.True(t, errors.Is(res.Err, ErrVerification))
}

func TestRunFailures(t *testing.T) {
	tests := []struct {
		name      string
		setup     func(page *browsertest.Page, post *browsertest.Post)
		postID    string
		lastState State
	}{
		{
			name:      "post no longer rendered",
			postID:    "999",
			lastState: StateIdle,
		},
		{
			name:      "reply click fails",
			setup:     func(_ *browsertest.Page, post *browsertest.Post) { post.ClickErr = errors.New("detached") },
			lastState: StateIdle,
		},
		{
			name:      "composer never appears",
			setup:     func(_ *browsertest.Page, post *browsertest.Post) { post.ClickOpensComposer = false },
			lastState: StateIdle,
		},
		{
			name:      "typing fails",
			setup:     func(page *browsertest.Page, _ *browsertest.Post) { page.InsertErr = errors.New("focus lost") },
			lastState: StateComposerOpened,
		},
		{
			name:      "submit keystroke fails",
			setup:     func(page *browsertest.Page, _ *browsertest.Post) { page.SubmitErr = errors.New("closed") },
			lastState: StateTyped,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			post := browsertest.NewPost("@ann", "101", "hello")
			page := pageWith(t, post)
			if tc.setup != nil {
				tc.setup(page, post)
			}
			id := tc.postID
			if id == "" {
				id = "101"
			}

			res := New(Options{ComposerTimeout: 50 * time.Millisecond}).Run(context.Background(), page, id, "nice")

			assert.Equal(t, StateFailed, res.State)
			assert.True(t, errors.Is(res.Err, ErrInteraction))
			assert.Equal(t, tc.lastState, res.Trace[len(res.Trace)-2])
			assert.Equal(t, 0, page.Submits())
			assert.Equal(t, 1, page.Escapes(), "escape issued on failure")
		})
	}
}

func TestRunScrollFailureIsNotFatal(t *testing.T) {
	post := browsertest.NewPost("@ann", "101", "hello")
	post.ScrollErr = errors.New("not scrollable")
	page := pageWith(t, post)

	res := New(Options{}).Run(context.Background(), page, "101", "ok")
	assert.True(t, res.Verified())
}

func TestRunEmptyReplyNeverTouchesPage(t *testing.T) {
	post := browsertest.NewPost("@ann", "101", "hello")
	page := pageWith(t, post)

	res := New(Options{}).Run(context.Background(), page, "101", "")
	assert.Equal(t, StateFailed, res.State)
	assert.Equal(t, 0, post.Clicks)
	assert.Equal(t, 0, page.Escapes())
}

func TestRunCancelledWhileTyping(t *testing.T) {
	page := pageWith(t, browsertest.NewPost("@ann", "101", "hello"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := New(Options{}).Run(ctx, page, "101", "abc")
	assert.Equal(t, StateFailed, res.State)
	assert.True(t, errors.Is(res.Err, ErrInteraction))
	assert.Equal(t, 1, page.Escapes(), "cleanup runs on a cancelled context")
}

func TestStateTerminal(t *testing.T) {
	for _, s := range []State{StateVerified, StateVerificationFailed, StateFailed} {
		assert.True(t, s.Terminal(), s)
	}
	for _, s := range []State{StateIdle, StateComposerOpened, StateTyped, StateSubmitted} {
		assert.False(t, s.Terminal(), s)
	}
}

func TestOptionsFromConfig(t *testing.T) {
	opts := OptionsFromConfig(config.DefaultConfig())
	assert.Equal(t, 10*time.Second, opts.ComposerTimeout)
	assert.Equal(t, 3*time.Second, opts.VerifyWait)
	assert.NotNil(t, opts.Keystrokes)
}
