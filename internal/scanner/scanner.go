// Package scanner extracts reply candidates from a rendered list timeline.
package scanner

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dlps55195/x-bot-worker/internal/browser"
	"github.com/dlps55195/x-bot-worker/internal/logging"
	"github.com/dlps55195/x-bot-worker/internal/types"

	"go.uber.org/zap"
)

// SeenChecker is the read side of the seen store.
type SeenChecker interface {
	Has(postID string) bool
}

// Scanner turns rendered posts into candidates. It never mutates seen state.
type Scanner struct {
	seen SeenChecker
	now  func() time.Time
}

// New creates a scanner that filters against seen.
func New(seen SeenChecker) *Scanner {
	return &Scanner{seen: seen, now: time.Now}
}

// WithClock overrides the discovery timestamp source.
func (s *Scanner) WithClock(now func() time.Time) *Scanner {
	if now != nil {
		s.now = now
	}
	return s
}

// skipReason explains why a rendered post produced no candidate.
type skipReason string

const (
	skipNoID      skipReason = "no_id"
	skipReply     skipReason = "reply"
	skipSeen      skipReason = "seen"
	skipDuplicate skipReason = "duplicate"
	skipReadError skipReason = "read_error"
)

// Scan enumerates the posts on page and returns the top-level, unseen ones
// in document order. Posts whose id cannot be extracted are skipped. A post
// that fails to read is skipped without aborting the scan.
func (s *Scanner) Scan(ctx context.Context, page browser.Page, listURL string) ([]types.Candidate, error) {
	log := logging.Get(logging.CategoryScan).With(zap.String("list", listURL))
	timer := logging.StartTimer(logging.CategoryScan, "scan")
	defer timer.Stop()

	posts, err := page.Posts(ctx)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", listURL, err)
	}

	skipped := make(map[skipReason]int)
	emitted := make(map[string]bool)
	candidates := make([]types.Candidate, 0, len(posts))

	for _, post := range posts {
		if err := ctx.Err(); err != nil {
			return candidates, err
		}
		c, reason := s.extract(ctx, post)
		if reason == "" && emitted[c.PostID] {
			reason = skipDuplicate
		}
		if reason != "" {
			skipped[reason]++
			continue
		}
		c.SourceListURL = listURL
		c.DiscoveredAt = s.now()
		emitted[c.PostID] = true
		candidates = append(candidates, c)
	}

	log.Debug("scan complete",
		zap.Int("rendered", len(posts)),
		zap.Int("candidates", len(candidates)),
		zap.Int("skipped_reply", skipped[skipReply]),
		zap.Int("skipped_seen", skipped[skipSeen]),
		zap.Int("skipped_no_id", skipped[skipNoID]),
		zap.Int("skipped_duplicate", skipped[skipDuplicate]),
		zap.Int("skipped_read_error", skipped[skipReadError]))
	return candidates, nil
}

func (s *Scanner) extract(ctx context.Context, post browser.Post) (types.Candidate, skipReason) {
	href, err := post.Permalink(ctx)
	if err != nil {
		return types.Candidate{}, skipReadError
	}
	id, ok := browser.PostIDFromPermalink(href)
	if !ok {
		return types.Candidate{}, skipNoID
	}

	isReply, err := post.IsReply(ctx)
	if err != nil {
		return types.Candidate{}, skipReadError
	}
	if isReply {
		return types.Candidate{}, skipReply
	}
	if s.seen != nil && s.seen.Has(id) {
		return types.Candidate{}, skipSeen
	}

	author, err := post.Author(ctx)
	if err != nil {
		return types.Candidate{}, skipReadError
	}
	text, err := post.Text(ctx)
	if err != nil {
		return types.Candidate{}, skipReadError
	}
	// Missing media is not fatal for a candidate.
	media, _ := post.MediaDescription(ctx)

	return types.Candidate{
		PostID:           id,
		Author:           ParseHandle(author),
		Text:             FlattenText(text),
		MediaDescription: strings.TrimSpace(media),
	}, ""
}

// ParseHandle picks the @handle out of an author block such as
// "Ann Lee\n@ann\n·\n2h". Without a handle it returns the first line.
func ParseHandle(block string) string {
	for _, tok := range strings.Fields(block) {
		if len(tok) > 1 && strings.HasPrefix(tok, "@") {
			return tok
		}
	}
	if first, _, _ := strings.Cut(strings.TrimSpace(block), "\n"); first != "" {
		return strings.TrimSpace(first)
	}
	return ""
}

// FlattenText collapses all whitespace runs, newlines included, to single
// spaces.
func FlattenText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
