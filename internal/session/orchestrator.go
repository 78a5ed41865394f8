// Package session runs one reply pass: every active profile, every target
// list, every candidate, strictly in order. Failures are contained at the
// level they occur and reported as typed outcomes; only cancellation of the
// parent context ends a pass early.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dlps55195/x-bot-worker/internal/browser"
	"github.com/dlps55195/x-bot-worker/internal/config"
	"github.com/dlps55195/x-bot-worker/internal/interact"
	"github.com/dlps55195/x-bot-worker/internal/logging"
	"github.com/dlps55195/x-bot-worker/internal/pacing"
	"github.com/dlps55195/x-bot-worker/internal/profiles"
	"github.com/dlps55195/x-bot-worker/internal/types"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SeenStore is the part of the dedup store the orchestrator needs.
type SeenStore interface {
	Has(postID string) bool
	Record(postID string, at time.Time) error
}

// Scanner extracts candidates from the rendered list.
type Scanner interface {
	Scan(ctx context.Context, page browser.Page, listURL string) ([]types.Candidate, error)
}

// Generator produces reply text.
type Generator interface {
	Generate(ctx context.Context, c types.Candidate) (string, error)
}

// Submitter drives the composer for one candidate.
type Submitter interface {
	Run(ctx context.Context, page browser.Page, postID, reply string) interact.Result
}

// Deps are the orchestrator's collaborators.
type Deps struct {
	Profiles  profiles.Source
	Engine    browser.Engine
	Seen      SeenStore
	Scanner   Scanner
	Generator Generator
	Submitter Submitter
	// Pacing runs after every verified reply. Nil means no delay.
	Pacing pacing.Policy
	Now    func() time.Time

	PerListCap        int
	NavigationTimeout time.Duration
	RenderTimeout     time.Duration
	AllowedSites      []string
}

// Limits copies the config-driven bounds into d.
func (d Deps) Limits(cfg *config.Config) Deps {
	d.PerListCap = cfg.Session.PerListCap
	d.NavigationTimeout = cfg.GetNavigationTimeout()
	d.RenderTimeout = cfg.GetRenderTimeout()
	d.AllowedSites = cfg.Browser.AllowedSites
	return d
}

// Orchestrator runs passes.
type Orchestrator struct {
	d Deps
}

// New validates deps and fills defaults.
func New(d Deps) (*Orchestrator, error) {
	switch {
	case d.Profiles == nil:
		return nil, errors.New("session: profile source is required")
	case d.Engine == nil:
		return nil, errors.New("session: browser engine is required")
	case d.Seen == nil:
		return nil, errors.New("session: seen store is required")
	case d.Scanner == nil:
		return nil, errors.New("session: scanner is required")
	case d.Generator == nil:
		return nil, errors.New("session: generator is required")
	case d.Submitter == nil:
		return nil, errors.New("session: submitter is required")
	}
	if d.PerListCap < 1 || d.PerListCap > config.MaxPerListCap {
		return nil, fmt.Errorf("session: per-list cap must be between 1 and %d, got %d", config.MaxPerListCap, d.PerListCap)
	}
	if d.Pacing == nil {
		d.Pacing = pacing.NoOp{}
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.NavigationTimeout <= 0 {
		d.NavigationTimeout = 60 * time.Second
	}
	if d.RenderTimeout <= 0 {
		d.RenderTimeout = 20 * time.Second
	}
	return &Orchestrator{d: d}, nil
}

// Run executes one pass and always returns a report.
func (o *Orchestrator) Run(ctx context.Context) Report {
	report := Report{RunID: uuid.NewString(), StartedAt: o.d.Now()}
	log := logging.Get(logging.CategorySession).With(zap.String("run_id", report.RunID))

	active, err := o.d.Profiles.ActiveProfiles(ctx)
	if err != nil {
		log.Error("failed to load profiles", zap.Error(err))
		report.Err = fmt.Errorf("load profiles: %w", err)
		report.FinishedAt = o.d.Now()
		return report
	}
	log.Info("pass started", zap.Int("profiles", len(active)), zap.Int("per_list_cap", o.d.PerListCap))

	for _, p := range active {
		if ctx.Err() != nil {
			report.Cancelled = true
			break
		}
		pr := o.runProfile(ctx, log.With(zap.String("profile", p.ID)), p)
		report.Profiles = append(report.Profiles, pr)
	}
	if ctx.Err() != nil {
		report.Cancelled = true
	}

	report.FinishedAt = o.d.Now()
	log.Info("pass finished",
		zap.Int("profiles", len(report.Profiles)),
		zap.Int("submitted", report.Submitted()),
		zap.Bool("cancelled", report.Cancelled),
		zap.Duration("elapsed", report.FinishedAt.Sub(report.StartedAt)))
	return report
}

func (o *Orchestrator) runProfile(ctx context.Context, log *zap.Logger, p types.Profile) (pr ProfileReport) {
	pr = ProfileReport{ProfileID: p.ID, Status: ProfileCompleted}
	defer func() {
		if r := recover(); r != nil {
			log.Error("profile aborted by panic", zap.Any("panic", r))
			pr.Status = ProfileFailed
			pr.Err = fmt.Errorf("panic: %v", r)
		}
	}()

	cookies, err := browser.SanitizeCookies(p.Cookies, o.d.AllowedSites)
	if err != nil {
		log.Warn("unusable session credentials", zap.Error(err))
		pr.Status = ProfileFailed
		pr.Err = fmt.Errorf("credentials: %w", err)
		return pr
	}

	page, err := o.d.Engine.OpenContext(ctx, cookies)
	if err != nil {
		log.Warn("failed to open browsing context", zap.Error(err))
		pr.Status = ProfileFailed
		pr.Err = fmt.Errorf("open context: %w", err)
		return pr
	}
	defer func() {
		if err := page.Close(); err != nil {
			log.Debug("close context failed", zap.Error(err))
		}
	}()

	for i, listURL := range p.TargetListURLs {
		if ctx.Err() != nil {
			pr.Status = ProfileCancelled
			pr.Lists = append(pr.Lists, remaining(p.TargetListURLs[i:], ListCancelled)...)
			return pr
		}
		lr := o.runList(ctx, log.With(zap.String("list", listURL)), page, listURL)
		pr.Lists = append(pr.Lists, lr)

		switch lr.Status {
		case ListAuthExpired:
			log.Warn("session expired, skipping remaining lists", zap.Int("skipped", len(p.TargetListURLs)-i-1))
			pr.Status = ProfileAuthExpired
			pr.Err = lr.Err
			pr.Lists = append(pr.Lists, remaining(p.TargetListURLs[i+1:], ListSkipped)...)
			return pr
		case ListCancelled:
			pr.Status = ProfileCancelled
			pr.Lists = append(pr.Lists, remaining(p.TargetListURLs[i+1:], ListCancelled)...)
			return pr
		}
	}
	log.Info("profile finished", zap.Int("lists", len(pr.Lists)), zap.Int("submitted", pr.Submitted()))
	return pr
}

func remaining(urls []string, status ListStatus) []ListReport {
	out := make([]ListReport, 0, len(urls))
	for _, u := range urls {
		out = append(out, ListReport{URL: u, Status: status})
	}
	return out
}

func (o *Orchestrator) runList(ctx context.Context, log *zap.Logger, page browser.Page, listURL string) ListReport {
	lr := ListReport{URL: listURL, Status: ListCompleted}

	navCtx, cancel := context.WithTimeout(ctx, o.d.NavigationTimeout)
	err := page.Navigate(navCtx, listURL)
	cancel()
	if err != nil {
		return listFailure(ctx, log, lr, "navigation failed", err, ListNavigationFailed)
	}
	if page.OnLoginSurface(ctx) {
		lr.Status = ListAuthExpired
		lr.Err = browser.ErrAuthExpired
		return lr
	}

	renderCtx, cancel := context.WithTimeout(ctx, o.d.RenderTimeout)
	err = page.WaitRendered(renderCtx)
	cancel()
	if err != nil {
		return listFailure(ctx, log, lr, "list did not render", err, ListRenderTimeout)
	}

	candidates, err := o.d.Scanner.Scan(ctx, page, listURL)
	if err != nil {
		return listFailure(ctx, log, lr, "scan failed", err, ListScanFailed)
	}
	lr.Candidates = len(candidates)
	log.Info("list scanned", zap.Int("candidates", len(candidates)))

	replied := 0
	for _, c := range candidates {
		if replied >= o.d.PerListCap {
			break
		}
		if ctx.Err() != nil {
			lr.Status = ListCancelled
			lr.Err = ctx.Err()
			return lr
		}
		// The same post can be listed on two lists of one profile.
		if o.d.Seen.Has(c.PostID) {
			continue
		}

		outcome := o.attempt(ctx, log.With(zap.String("post_id", c.PostID)), page, c)
		lr.Outcomes = append(lr.Outcomes, outcome)
		if !outcome.OK() {
			continue
		}
		replied++
		if err := o.d.Pacing.Wait(ctx); err != nil {
			lr.Status = ListCancelled
			lr.Err = err
			return lr
		}
	}
	return lr
}

// listFailure classifies a list-level error with errors.Is.
func listFailure(ctx context.Context, log *zap.Logger, lr ListReport, msg string, err error, fallback ListStatus) ListReport {
	lr.Err = err
	switch {
	case errors.Is(err, browser.ErrAuthExpired):
		lr.Status = ListAuthExpired
	case ctx.Err() != nil:
		lr.Status = ListCancelled
	case errors.Is(err, browser.ErrNavigationTimeout):
		lr.Status = ListNavigationTimeout
	case errors.Is(err, browser.ErrSelectorTimeout):
		lr.Status = ListRenderTimeout
	default:
		lr.Status = fallback
	}
	log.Warn(msg, zap.String("status", string(lr.Status)), zap.Error(err))
	return lr
}

func (o *Orchestrator) attempt(ctx context.Context, log *zap.Logger, page browser.Page, c types.Candidate) types.ReplyOutcome {
	out := types.ReplyOutcome{CandidateID: c.PostID}

	reply, err := o.d.Generator.Generate(ctx, c)
	if err != nil {
		out.Status = types.StatusGenerationFailed
		out.Err = err
		log.Warn("reply outcome", zap.String("status", string(out.Status)), zap.Error(err))
		return out
	}
	out.ReplyText = reply

	res := o.d.Submitter.Run(ctx, page, c.PostID, reply)
	switch res.State {
	case interact.StateVerified:
		out.Status = types.StatusSubmitted
		if err := o.d.Seen.Record(c.PostID, o.d.Now()); err != nil {
			// The reply is live; the in-memory entry still blocks a repeat
			// this pass.
			log.Error("failed to persist seen entry", zap.Error(err))
			out.Err = err
		}
	case interact.StateVerificationFailed:
		out.Status = types.StatusVerificationFailed
		out.Err = res.Err
	default:
		out.Status = types.StatusInteractionError
		out.Err = res.Err
	}
	log.Info("reply outcome", zap.String("status", string(out.Status)), zap.Strings("trace", traceStrings(res.Trace)), zap.Error(out.Err))
	return out
}

func traceStrings(trace []interact.State) []string {
	out := make([]string, len(trace))
	for i, s := range trace {
		out[i] = string(s)
	}
	return out
}
