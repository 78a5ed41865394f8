package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/dlps55195/x-bot-worker/internal/config"
	"github.com/dlps55195/x-bot-worker/internal/logging"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"
)

// RodEngine owns one Chrome instance and hands out incognito contexts, one
// per profile, so cookies never leak between profiles.
type RodEngine struct {
	cfg       config.BrowserConfig
	selectors config.SelectorConfig

	mu         sync.Mutex
	browser    *rod.Browser
	launcher   *launcher.Launcher
	controlURL string
}

// NewRodEngine creates an engine. Chrome is started lazily on the first
// OpenContext, or eagerly through Start.
func NewRodEngine(cfg *config.Config) *RodEngine {
	return &RodEngine{
		cfg:       cfg.Browser,
		selectors: cfg.Selectors,
	}
}

// Start connects to an existing Chrome or launches a new one.
func (e *RodEngine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.startLocked(ctx)
}

func (e *RodEngine) startLocked(ctx context.Context) error {
	log := logging.Get(logging.CategoryBrowser)

	if e.browser != nil {
		if _, err := e.browser.Version(); err == nil {
			return nil
		}
		log.Warn("stale browser connection detected, reconnecting")
		_ = e.browser.Close()
		e.browser = nil
		e.controlURL = ""
	}

	controlURL := e.cfg.ControlURL
	if controlURL == "" {
		l := launcher.New().Headless(e.cfg.Headless)
		if e.cfg.Bin != "" {
			l = l.Bin(e.cfg.Bin)
		}
		for _, raw := range e.cfg.Flags {
			name, val, hasVal := strings.Cut(strings.TrimLeft(raw, "-"), "=")
			if hasVal {
				l = l.Set(flags.Flag(name), val)
			} else {
				l = l.Set(flags.Flag(name))
			}
		}
		u, err := l.Launch()
		if err != nil {
			return fmt.Errorf("launch chrome: %w", err)
		}
		e.launcher = l
		controlURL = u
	}

	b := rod.New().ControlURL(controlURL).Context(ctx)
	if err := b.Connect(); err != nil {
		return fmt.Errorf("connect to chrome: %w", err)
	}

	e.browser = b
	e.controlURL = controlURL
	log.Info("browser connected",
		zap.Bool("launched", e.launcher != nil),
		zap.Bool("headless", e.cfg.Headless))
	return nil
}

// ControlURL returns the DevTools WebSocket URL.
func (e *RodEngine) ControlURL() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.controlURL
}

// OpenContext creates an incognito context seeded with cookies and returns
// its first page.
func (e *RodEngine) OpenContext(ctx context.Context, cookies []Cookie) (Page, error) {
	e.mu.Lock()
	if err := e.startLocked(ctx); err != nil {
		e.mu.Unlock()
		return nil, err
	}
	b := e.browser
	e.mu.Unlock()

	incognito, err := b.Incognito()
	if err != nil {
		return nil, fmt.Errorf("incognito context: %w", err)
	}

	if len(cookies) > 0 {
		params := make([]*proto.NetworkCookieParam, 0, len(cookies))
		for _, c := range cookies {
			params = append(params, c.toParam())
		}
		if err := incognito.SetCookies(params); err != nil {
			_ = incognito.Close()
			return nil, fmt.Errorf("inject cookies: %w", err)
		}
	}

	page, err := incognito.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		_ = incognito.Close()
		return nil, fmt.Errorf("create page: %w", err)
	}

	width, height := e.cfg.ViewportWidth, e.cfg.ViewportHeight
	if width == 0 {
		width = 1366
	}
	if height == 0 {
		height = 900
	}
	if err := (proto.EmulationSetDeviceMetricsOverride{
		Width:             width,
		Height:            height,
		DeviceScaleFactor: 1.0,
		Mobile:            false,
	}).Call(page); err != nil {
		logging.Get(logging.CategoryBrowser).Warn("failed to set viewport", zap.Error(err))
	}

	return &rodPage{
		page:       page,
		context:    incognito,
		sel:        e.selectors,
		loginPaths: e.cfg.LoginPaths,
		submitMeta: strings.EqualFold(e.cfg.SubmitShortcut, "meta"),
	}, nil
}

// Close shuts the browser down and, if this engine launched it, cleans up
// the Chrome process and its user-data dir.
func (e *RodEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var err error
	if e.browser != nil {
		err = e.browser.Close()
		e.browser = nil
	}
	if e.launcher != nil {
		e.launcher.Cleanup()
		e.launcher = nil
	}
	e.controlURL = ""
	return err
}

// mapWaitErr converts context expiry into the given sentinel while keeping
// the underlying cause in the message.
func mapWaitErr(err error, sentinel error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", sentinel, err)
	}
	return err
}
