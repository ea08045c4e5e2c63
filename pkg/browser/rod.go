package browser

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// Options configures the rod launcher
type Options struct {
	// Bin is the Chrome binary. Empty lets rod find or download one.
	Bin string
	// RemoteURL is the DevTools WebSocket URL of an already running
	// Chrome. When set nothing is launched locally.
	RemoteURL string
	Headless  bool
	// Stealth opens the page through go-rod/stealth.
	Stealth        bool
	ViewportWidth  int
	ViewportHeight int
}

// RodLauncher launches Chrome sessions with go-rod
type RodLauncher struct {
	opts Options
}

// NewRodLauncher creates a launcher
func NewRodLauncher(opts Options) *RodLauncher {
	return &RodLauncher{opts: opts}
}

// Launch starts (or connects to) Chrome and opens a blank page
func (l *RodLauncher) Launch(ctx context.Context) (Session, error) {
	var lnch *launcher.Launcher
	controlURL := l.opts.RemoteURL

	if controlURL == "" {
		lnch = launcher.New().Context(ctx)

		if l.opts.Bin != "" {
			lnch = lnch.Bin(l.opts.Bin)
		}
		lnch = lnch.Headless(l.opts.Headless)

		// Flags for container environments
		lnch = lnch.Set("no-sandbox")
		lnch = lnch.Set("disable-gpu")
		lnch = lnch.Set("disable-dev-shm-usage")

		u, err := lnch.Launch()
		if err != nil {
			return nil, fmt.Errorf("failed to launch browser: %w", err)
		}
		controlURL = u
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		if lnch != nil {
			lnch.Cleanup()
		}
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}

	s := &rodSession{browser: b, launcher: lnch}

	var page *rod.Page
	var err error
	if l.opts.Stealth {
		page, err = stealth.Page(b)
	} else {
		page, err = b.Page(proto.TargetCreateTarget{URL: "about:blank"})
	}
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to create page: %w", err)
	}

	if l.opts.ViewportWidth > 0 && l.opts.ViewportHeight > 0 {
		err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
			Width:             l.opts.ViewportWidth,
			Height:            l.opts.ViewportHeight,
			DeviceScaleFactor: 1,
		})
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to set viewport: %w", err)
		}
	}

	s.page = &rodPage{page: page}
	return s, nil
}

type rodSession struct {
	browser  *rod.Browser
	launcher *launcher.Launcher
	page     *rodPage

	once sync.Once
	err  error
}

func (s *rodSession) Page() Page {
	return s.page
}

func (s *rodSession) Close() error {
	s.once.Do(func() {
		s.err = s.browser.Close()
		if s.launcher != nil {
			s.launcher.Cleanup()
		}
	})
	return s.err
}

type rodPage struct {
	page *rod.Page
}

func (p *rodPage) Navigate(ctx context.Context, url string) error {
	if err := p.page.Context(ctx).Navigate(url); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	return nil
}

func (p *rodPage) Info(ctx context.Context) (PageInfo, error) {
	page := p.page.Context(ctx)

	info, err := page.Info()
	if err != nil {
		return PageInfo{}, fmt.Errorf("failed to read page info: %w", err)
	}

	res, err := page.Eval(`() => document.readyState`)
	if err != nil {
		return PageInfo{}, fmt.Errorf("failed to read ready state: %w", err)
	}

	return PageInfo{
		Title:      info.Title,
		URL:        info.URL,
		ReadyState: res.Value.Str(),
	}, nil
}

func (p *rodPage) Fill(ctx context.Context, selector, value string) error {
	elem, err := p.page.Context(ctx).Element(selector)
	if err != nil {
		return fmt.Errorf("element not found: %s: %w", selector, err)
	}
	// Clear existing text before typing
	if err := elem.SelectAllText(); err != nil {
		return fmt.Errorf("failed to clear %s: %w", selector, err)
	}
	if err := elem.Input(value); err != nil {
		return fmt.Errorf("failed to fill %s: %w", selector, err)
	}
	return nil
}

func (p *rodPage) Click(ctx context.Context, selector string) error {
	elem, err := p.page.Context(ctx).Element(selector)
	if err != nil {
		return fmt.Errorf("element not found: %s: %w", selector, err)
	}
	if err := elem.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("failed to click %s: %w", selector, err)
	}
	return nil
}

func (p *rodPage) Screenshot(ctx context.Context, fullPage bool) ([]byte, error) {
	data, err := p.page.Context(ctx).Screenshot(fullPage, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to take screenshot: %w", err)
	}
	return data, nil
}
