package browser

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dlps55195/x-bot-worker/internal/config"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"
)

const renderPollInterval = 250 * time.Millisecond

type rodPage struct {
	page       *rod.Page
	context    *rod.Browser
	sel        config.SelectorConfig
	loginPaths []string
	submitMeta bool
}

func (p *rodPage) Navigate(ctx context.Context, url string) error {
	return mapWaitErr(p.page.Context(ctx).Navigate(url), ErrNavigationTimeout)
}

func (p *rodPage) WaitRendered(ctx context.Context) error {
	ticker := time.NewTicker(renderPollInterval)
	defer ticker.Stop()
	for {
		if p.OnLoginSurface(ctx) {
			return ErrAuthExpired
		}
		els, err := p.page.Context(ctx).Elements(p.sel.Post)
		if err == nil && len(els) > 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: no %q rendered: %v", ErrSelectorTimeout, p.sel.Post, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (p *rodPage) OnLoginSurface(ctx context.Context) bool {
	info, err := p.page.Context(ctx).Info()
	if err != nil {
		return false
	}
	return IsLoginURL(info.URL, p.loginPaths)
}

func (p *rodPage) Posts(ctx context.Context) ([]Post, error) {
	els, err := p.page.Context(ctx).Elements(p.sel.Post)
	if err != nil {
		return nil, fmt.Errorf("enumerate posts: %w", err)
	}
	posts := make([]Post, 0, len(els))
	for _, el := range els {
		posts = append(posts, &rodPost{el: el, sel: p.sel})
	}
	return posts, nil
}

func (p *rodPage) FindPost(ctx context.Context, postID string) (Post, error) {
	posts, err := p.Posts(ctx)
	if err != nil {
		return nil, err
	}
	for _, post := range posts {
		href, err := post.Permalink(ctx)
		if err != nil {
			continue
		}
		if id, ok := PostIDFromPermalink(href); ok && id == postID {
			return post, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrPostNotFound, postID)
}

func (p *rodPage) WaitComposer(ctx context.Context) error {
	el, err := p.page.Context(ctx).Element(p.sel.Composer)
	if err != nil {
		return mapWaitErr(err, ErrSelectorTimeout)
	}
	return mapWaitErr(el.Context(ctx).WaitVisible(), ErrSelectorTimeout)
}

func (p *rodPage) ComposerVisible(ctx context.Context) (bool, error) {
	has, el, err := p.page.Context(ctx).Has(p.sel.Composer)
	if err != nil || !has {
		return false, err
	}
	return el.Context(ctx).Visible()
}

func (p *rodPage) InsertText(ctx context.Context, text string) error {
	return p.page.Context(ctx).InsertText(text)
}

func (p *rodPage) Submit(ctx context.Context) error {
	modifier := input.ControlLeft
	if p.submitMeta {
		modifier = input.MetaLeft
	}
	return p.page.Context(ctx).KeyActions().Press(modifier).Type(input.Enter).Do()
}

func (p *rodPage) Escape(ctx context.Context) error {
	return p.page.Context(ctx).KeyActions().Type(input.Escape).Do()
}

// Close closes the tab and disposes the whole incognito context.
func (p *rodPage) Close() error {
	err := p.page.Close()
	if cerr := p.context.Close(); err == nil {
		err = cerr
	}
	return err
}

type rodPost struct {
	el  *rod.Element
	sel config.SelectorConfig
}

// The post's own permalink is the anchor wrapping its <time> element; quoted
// posts and profile links carry other hrefs.
const permalinkJS = `() => {
	const t = this.querySelector('time');
	const a = t && t.closest('a');
	return a ? (a.getAttribute('href') || '') : '';
}`

// A reply shows a short context line starting with the marker, outside the
// post body.
const replyMarkerJS = `(marker, textSel) => Array.from(this.querySelectorAll('div, span')).some(n =>
	!n.closest(textSel) && n.childElementCount <= 3 &&
	(n.innerText || '').trim().startsWith(marker))`

func (p *rodPost) Permalink(ctx context.Context) (string, error) {
	res, err := p.el.Context(ctx).Eval(permalinkJS)
	if err != nil {
		return "", fmt.Errorf("read permalink: %w", err)
	}
	return res.Value.String(), nil
}

func (p *rodPost) Author(ctx context.Context) (string, error) {
	return p.childText(ctx, p.sel.PostAuthor)
}

func (p *rodPost) Text(ctx context.Context) (string, error) {
	return p.childText(ctx, p.sel.PostText)
}

func (p *rodPost) childText(ctx context.Context, selector string) (string, error) {
	has, el, err := p.el.Context(ctx).Has(selector)
	if err != nil || !has {
		return "", err
	}
	return el.Text()
}

func (p *rodPost) MediaDescription(ctx context.Context) (string, error) {
	imgs, err := p.el.Context(ctx).Elements(p.sel.PostPhoto)
	if err != nil {
		return "", err
	}
	alts := make([]string, 0, len(imgs))
	for _, img := range imgs {
		alt, err := img.Attribute("alt")
		if err != nil || alt == nil {
			continue
		}
		if a := strings.TrimSpace(*alt); a != "" && a != "Image" {
			alts = append(alts, a)
		}
	}
	return strings.Join(alts, "; "), nil
}

func (p *rodPost) IsReply(ctx context.Context) (bool, error) {
	res, err := p.el.Context(ctx).Eval(replyMarkerJS, p.sel.ReplyMarker, p.sel.PostText)
	if err != nil {
		return false, fmt.Errorf("check reply marker: %w", err)
	}
	return res.Value.Bool(), nil
}

func (p *rodPost) ScrollIntoView(ctx context.Context) error {
	return p.el.Context(ctx).ScrollIntoView()
}

// ClickReply tries a real mouse click first and falls back to a DOM click
// when an overlay covers the button or it fails actionability checks.
func (p *rodPost) ClickReply(ctx context.Context) error {
	btn, err := p.el.Context(ctx).Element(p.sel.ReplyButton)
	if err != nil {
		return mapWaitErr(err, ErrSelectorTimeout)
	}
	err = btn.Context(ctx).Click(proto.InputMouseButtonLeft, 1)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return mapWaitErr(err, ErrSelectorTimeout)
	}
	if _, ferr := btn.Context(ctx).Eval(`() => this.click()`); ferr != nil {
		return fmt.Errorf("force click reply: %w (after %v)", ferr, err)
	}
	return nil
}
