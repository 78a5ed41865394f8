// Package interact drives the reply composer for one candidate: open it,
// type the reply one character at a time, submit from the keyboard and
// verify that the composer closed.
package interact

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dlps55195/x-bot-worker/internal/browser"
	"github.com/dlps55195/x-bot-worker/internal/config"
	"github.com/dlps55195/x-bot-worker/internal/logging"
	"github.com/dlps55195/x-bot-worker/internal/pacing"

	"go.uber.org/zap"
)

var (
	// ErrInteraction means a UI step failed before submission completed.
	ErrInteraction = errors.New("composer interaction failed")
	// ErrVerification means the submit keystroke was sent but the composer
	// stayed open, so the reply's fate is unknown.
	ErrVerification = errors.New("submission not verified")
)

// State is a step of the submit flow.
type State string

const (
	StateIdle               State = "idle"
	StateComposerOpened     State = "composer_opened"
	StateTyped              State = "typed"
	StateSubmitted          State = "submitted"
	StateVerified           State = "verified"
	StateVerificationFailed State = "verification_failed"
	StateFailed             State = "failed"
)

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateVerified || s == StateVerificationFailed || s == StateFailed
}

// Result is the outcome of one Run. Trace lists every state entered, in
// order, starting with StateIdle.
type Result struct {
	State State
	Trace []State
	Err   error
}

// Verified reports whether the reply is known to be posted.
func (r Result) Verified() bool { return r.State == StateVerified }

// Options bounds the waits of the flow.
type Options struct {
	ComposerTimeout time.Duration
	VerifyWait      time.Duration
	// Keystrokes paces each typed character; nil types without delay.
	Keystrokes pacing.Policy
}

// OptionsFromConfig builds options from config.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		ComposerTimeout: cfg.GetComposerTimeout(),
		VerifyWait:      cfg.GetVerifyWait(),
		Keystrokes:      pacing.Keystrokes(cfg),
	}
}

// Simulator runs the submit flow. It never touches the seen store.
type Simulator struct {
	opts Options
}

// New creates a simulator.
func New(opts Options) *Simulator {
	if opts.ComposerTimeout <= 0 {
		opts.ComposerTimeout = 10 * time.Second
	}
	if opts.Keystrokes == nil {
		opts.Keystrokes = pacing.NoOp{}
	}
	return &Simulator{opts: opts}
}

// escapeTimeout bounds the cleanup keystroke, which runs even after ctx ends.
const escapeTimeout = 2 * time.Second

type run struct {
	res Result
	log *zap.Logger
}

func (r *run) enter(s State) {
	r.res.State = s
	r.res.Trace = append(r.res.Trace, s)
}

// Run submits reply to the post identified by postID on page.
func (s *Simulator) Run(ctx context.Context, page browser.Page, postID, reply string) Result {
	r := &run{log: logging.Get(logging.CategoryInteract).With(zap.String("post_id", postID))}
	r.enter(StateIdle)
	timer := logging.StartTimer(logging.CategoryInteract, "submit")
	defer timer.Stop()

	fail := func(step string, err error) Result {
		r.log.Warn("interaction step failed", zap.String("step", step), zap.Error(err))
		s.escape(ctx, page, r.log)
		r.enter(StateFailed)
		r.res.Err = fmt.Errorf("%w: %s: %v", ErrInteraction, step, err)
		return r.res
	}

	if reply == "" {
		r.enter(StateFailed)
		r.res.Err = fmt.Errorf("%w: empty reply", ErrInteraction)
		return r.res
	}

	post, err := page.FindPost(ctx, postID)
	if err != nil {
		return fail("locate post", err)
	}
	if err := post.ScrollIntoView(ctx); err != nil {
		// The force-click below does not need the post on screen.
		r.log.Debug("scroll into view failed", zap.Error(err))
	}
	if err := post.ClickReply(ctx); err != nil {
		return fail("open composer", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, s.opts.ComposerTimeout)
	err = page.WaitComposer(waitCtx)
	cancel()
	if err != nil {
		return fail("wait composer", err)
	}
	r.enter(StateComposerOpened)

	for _, ch := range reply {
		if err := page.InsertText(ctx, string(ch)); err != nil {
			return fail("type", err)
		}
		if err := s.opts.Keystrokes.Wait(ctx); err != nil {
			return fail("type", err)
		}
	}
	r.enter(StateTyped)

	if err := page.Submit(ctx); err != nil {
		return fail("submit", err)
	}
	r.enter(StateSubmitted)

	if err := pacing.Sleep(ctx, s.opts.VerifyWait); err != nil {
		return s.unverified(ctx, page, r, fmt.Errorf("verify wait: %w", err))
	}
	visible, err := page.ComposerVisible(ctx)
	if err != nil {
		return s.unverified(ctx, page, r, fmt.Errorf("read composer visibility: %w", err))
	}
	if visible {
		return s.unverified(ctx, page, r, errors.New("composer still visible after submit"))
	}

	r.enter(StateVerified)
	r.log.Info("reply submitted and verified", zap.Int("chars", len([]rune(reply))))
	return r.res
}

func (s *Simulator) unverified(ctx context.Context, page browser.Page, r *run, cause error) Result {
	r.log.Warn("submission not verified", zap.Error(cause))
	s.escape(ctx, page, r.log)
	r.enter(StateVerificationFailed)
	r.res.Err = fmt.Errorf("%w: %v", ErrVerification, cause)
	return r.res
}

func (s *Simulator) escape(ctx context.Context, page browser.Page, log *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), escapeTimeout)
	defer cancel()
	if err := page.Escape(ctx); err != nil {
		log.Debug("escape failed", zap.Error(err))
	}
}
