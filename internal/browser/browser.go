// Package browser is the browsing surface the reply pipeline drives: one
// isolated context per profile, a rendered list timeline, its post elements
// and the reply composer. The rod-backed implementation lives in
// rod_engine.go; the pipeline itself only sees the interfaces below.
package browser

import (
	"context"
	"errors"
	"net/url"
	"regexp"
	"strings"
)

var (
	// ErrAuthExpired means the platform redirected to its login surface.
	ErrAuthExpired = errors.New("session credentials expired")
	// ErrNavigationTimeout means navigation did not commit in time.
	ErrNavigationTimeout = errors.New("navigation timed out")
	// ErrSelectorTimeout means an expected UI element never appeared.
	ErrSelectorTimeout = errors.New("selector wait timed out")
	// ErrPostNotFound means a post could not be located again on the page.
	ErrPostNotFound = errors.New("post not found on page")
)

// Engine opens isolated browsing contexts.
type Engine interface {
	// OpenContext creates a fresh context carrying only the given cookies.
	OpenContext(ctx context.Context, cookies []Cookie) (Page, error)
	Close() error
}

// Page is one tab inside an isolated context. Every blocking call is bounded
// by the deadline of ctx.
type Page interface {
	// Navigate loads url and returns once navigation has committed.
	Navigate(ctx context.Context, url string) error
	// WaitRendered waits until at least one post is rendered. It returns
	// ErrAuthExpired if the page lands on the login surface instead.
	WaitRendered(ctx context.Context) error
	// OnLoginSurface reports whether the current URL is a login page.
	OnLoginSurface(ctx context.Context) bool
	// Posts enumerates rendered posts in document order.
	Posts(ctx context.Context) ([]Post, error)
	// FindPost locates the rendered post whose permalink carries postID.
	FindPost(ctx context.Context, postID string) (Post, error)
	// WaitComposer waits for the reply composer input to become visible.
	WaitComposer(ctx context.Context) error
	// ComposerVisible reports whether the composer input is visible now.
	ComposerVisible(ctx context.Context) (bool, error)
	// InsertText types text into the focused input.
	InsertText(ctx context.Context, text string) error
	// Submit issues the platform's keyboard submit shortcut.
	Submit(ctx context.Context) error
	// Escape dismisses the composer.
	Escape(ctx context.Context) error
	Close() error
}

// Post is one rendered post element.
type Post interface {
	// Permalink returns the href of the post's own status link.
	Permalink(ctx context.Context) (string, error)
	Author(ctx context.Context) (string, error)
	Text(ctx context.Context) (string, error)
	MediaDescription(ctx context.Context) (string, error)
	// IsReply reports whether the post carries the "replying to" marker.
	IsReply(ctx context.Context) (bool, error)
	ScrollIntoView(ctx context.Context) error
	// ClickReply triggers the post's reply affordance, forcing the click
	// through transient overlays.
	ClickReply(ctx context.Context) error
}

var statusIDPattern = regexp.MustCompile(`^[0-9]+$`)

// PostIDFromPermalink returns the status id segment of a permalink such as
// "/jack/status/20" or "https://x.com/jack/status/20?s=20". ok is false when
// no numeric segment follows "status".
func PostIDFromPermalink(href string) (id string, ok bool) {
	href = strings.TrimSpace(href)
	if href == "" {
		return "", false
	}
	u, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := 0; i+1 < len(segments); i++ {
		if segments[i] != "status" && segments[i] != "statuses" {
			continue
		}
		if candidate := segments[i+1]; statusIDPattern.MatchString(candidate) {
			return candidate, true
		}
	}
	return "", false
}

// IsLoginURL reports whether raw points at one of the login path prefixes.
func IsLoginURL(raw string, loginPaths []string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	path := strings.TrimRight(u.Path, "/")
	for _, p := range loginPaths {
		p = strings.TrimRight(p, "/")
		if p == "" {
			continue
		}
		if path == p || strings.HasPrefix(path, p+"/") {
			return true
		}
	}
	return false
}
