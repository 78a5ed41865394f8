// Package browsertest provides scripted in-memory fakes of the browser
// interfaces for fast tests of the scan and submit stages.
package browsertest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/dlps55195/x-bot-worker/internal/browser"
)

// Post is a scripted post element.
type Post struct {
	Href       string
	AuthorText string
	Body       string
	Media      string
	Reply      bool

	ReadErr   error // returned by every read
	ScrollErr error
	ClickErr  error
	// ClickOpensComposer defaults to true through NewPost.
	ClickOpensComposer bool

	mu     sync.Mutex
	page   *Page
	Clicks int
}

// NewPost returns a top-level post with the given status id.
func NewPost(author, id, text string) *Post {
	return &Post{
		Href:               "/" + strings.TrimPrefix(author, "@") + "/status/" + id,
		AuthorText:         strings.TrimPrefix(author, "@") + "\n" + author + "\n·\n1h",
		Body:               text,
		ClickOpensComposer: true,
	}
}

// NewReply returns a post carrying the reply marker.
func NewReply(author, id, text string) *Post {
	p := NewPost(author, id, text)
	p.Reply = true
	return p
}

var _ browser.Post = (*Post)(nil)

func (p *Post) Permalink(ctx context.Context) (string, error) { return p.Href, p.ReadErr }
func (p *Post) Author(ctx context.Context) (string, error)    { return p.AuthorText, p.ReadErr }
func (p *Post) Text(ctx context.Context) (string, error)      { return p.Body, p.ReadErr }
func (p *Post) IsReply(ctx context.Context) (bool, error)     { return p.Reply, p.ReadErr }
func (p *Post) ScrollIntoView(ctx context.Context) error      { return p.ScrollErr }

func (p *Post) MediaDescription(ctx context.Context) (string, error) {
	return p.Media, p.ReadErr
}

func (p *Post) ClickReply(ctx context.Context) error {
	p.mu.Lock()
	p.Clicks++
	page := p.page
	p.mu.Unlock()
	if p.ClickErr != nil {
		return p.ClickErr
	}
	if page != nil && p.ClickOpensComposer {
		page.mu.Lock()
		page.composerOpen = true
		page.mu.Unlock()
	}
	return nil
}

// Page is a scripted tab. Lists maps a list URL to the posts rendered there.
type Page struct {
	Lists map[string][]*Post
	// LoginLists redirect to the login surface.
	LoginLists map[string]bool
	// NavigateErr and RenderErr fail navigation or rendering per URL.
	NavigateErr map[string]error
	RenderErr   map[string]error
	PostsErr    error

	// ComposerStaysOpen makes Submit leave the composer visible.
	ComposerStaysOpen bool
	InsertErr         error
	SubmitErr         error
	VisibleErr        error
	// Panic is raised from Navigate, to exercise recovery.
	Panic any

	mu           sync.Mutex
	current      string
	composerOpen bool
	typed        strings.Builder
	visited      []string
	inserts      int
	submits      int
	escapes      int
	closed       bool
}

// NewPage returns an empty page.
func NewPage() *Page {
	return &Page{
		Lists:       make(map[string][]*Post),
		LoginLists:  make(map[string]bool),
		NavigateErr: make(map[string]error),
		RenderErr:   make(map[string]error),
	}
}

// WithList renders posts at listURL.
func (p *Page) WithList(listURL string, posts ...*Post) *Page {
	p.Lists[listURL] = posts
	return p
}

var _ browser.Page = (*Page)(nil)

func (p *Page) Navigate(ctx context.Context, url string) error {
	if p.Panic != nil {
		panic(p.Panic)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.visited = append(p.visited, url)
	if err := p.NavigateErr[url]; err != nil {
		return err
	}
	p.current = url
	p.composerOpen = false
	return nil
}

func (p *Page) WaitRendered(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.LoginLists[p.current] {
		return browser.ErrAuthExpired
	}
	return p.RenderErr[p.current]
}

func (p *Page) OnLoginSurface(ctx context.Context) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.LoginLists[p.current]
}

func (p *Page) Posts(ctx context.Context) ([]browser.Post, error) {
	if p.PostsErr != nil {
		return nil, p.PostsErr
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	rendered := p.Lists[p.current]
	out := make([]browser.Post, 0, len(rendered))
	for _, post := range rendered {
		post.mu.Lock()
		post.page = p
		post.mu.Unlock()
		out = append(out, post)
	}
	return out, nil
}

func (p *Page) FindPost(ctx context.Context, postID string) (browser.Post, error) {
	posts, err := p.Posts(ctx)
	if err != nil {
		return nil, err
	}
	for _, post := range posts {
		href, _ := post.Permalink(ctx)
		if id, ok := browser.PostIDFromPermalink(href); ok && id == postID {
			return post, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", browser.ErrPostNotFound, postID)
}

func (p *Page) WaitComposer(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.composerOpen {
		return fmt.Errorf("%w: composer", browser.ErrSelectorTimeout)
	}
	return nil
}

func (p *Page) ComposerVisible(ctx context.Context) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.composerOpen, p.VisibleErr
}

func (p *Page) InsertText(ctx context.Context, text string) error {
	if p.InsertErr != nil {
		return p.InsertErr
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inserts++
	p.typed.WriteString(text)
	return nil
}

func (p *Page) Submit(ctx context.Context) error {
	if p.SubmitErr != nil {
		return p.SubmitErr
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.submits++
	if !p.ComposerStaysOpen {
		p.composerOpen = false
	}
	return nil
}

func (p *Page) Escape(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.escapes++
	p.composerOpen = false
	return nil
}

func (p *Page) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// Typed returns everything inserted so far.
func (p *Page) Typed() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.typed.String()
}

// Inserts returns the number of InsertText calls.
func (p *Page) Inserts() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inserts
}

// Submits returns the number of Submit calls.
func (p *Page) Submits() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.submits
}

// Escapes returns the number of Escape calls.
func (p *Page) Escapes() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.escapes
}

// Visited returns navigated URLs in order.
func (p *Page) Visited() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.visited...)
}

// Closed reports whether Close was called.
func (p *Page) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Engine hands out scripted pages. PageFor picks the page for a context by
// its cookies; without it every context gets a fresh empty page.
type Engine struct {
	PageFor func(cookies []browser.Cookie) (*Page, error)

	mu     sync.Mutex
	opened [][]browser.Cookie
	closed bool
}

var _ browser.Engine = (*Engine)(nil)

func (e *Engine) OpenContext(ctx context.Context, cookies []browser.Cookie) (browser.Page, error) {
	e.mu.Lock()
	e.opened = append(e.opened, cookies)
	e.mu.Unlock()
	if e.PageFor == nil {
		return NewPage(), nil
	}
	page, err := e.PageFor(cookies)
	if err != nil {
		return nil, err
	}
	return page, nil
}

func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

// Opened returns the cookie sets of every opened context.
func (e *Engine) Opened() [][]browser.Cookie {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([][]browser.Cookie(nil), e.opened...)
}
