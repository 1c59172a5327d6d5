package browser

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"

	"github.com/lance13c/qarun/internal/logging"
)

// navigationGrace is how long a click waits for a navigation to start.
const navigationGrace = 500 * time.Millisecond

type chromedpDriver struct {
	opts Options
}

// findChrome attempts to find a Chrome executable
func findChrome() (string, error) {
	var paths []string

	switch runtime.GOOS {
	case "darwin":
		paths = []string{
			"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
			"/Applications/Chromium.app/Contents/MacOS/Chromium",
			"/Applications/Brave Browser.app/Contents/MacOS/Brave Browser",
		}
	case "linux":
		paths = []string{
			"google-chrome",
			"google-chrome-stable",
			"chromium",
			"chromium-browser",
		}
	case "windows":
		paths = []string{
			`C:\Program Files\Google\Chrome\Application\chrome.exe`,
			`C:\Program Files (x86)\Google\Chrome\Application\chrome.exe`,
		}
	}

	for _, path := range paths {
		if runtime.GOOS == "darwin" {
			if _, err := os.Stat(path); err == nil {
				return path, nil
			}
		} else if found, err := exec.LookPath(path); err == nil {
			return found, nil
		}
	}

	if path, err := exec.LookPath("chrome"); err == nil {
		return path, nil
	}

	return "", fmt.Errorf("Chrome browser not found. Please install Chrome or Chromium, or set browser.exec_path")
}

// NewSession starts a fresh Chrome process with its own profile.
func (d *chromedpDriver) NewSession(ctx context.Context) (Session, error) {
	execPath := d.opts.ExecPath
	if execPath == "" {
		var err error
		if execPath, err = findChrome(); err != nil {
			return nil, err
		}
	}
	logging.Debug("Using Chrome from: %s (headless=%v)", execPath, d.opts.Headless)

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.ExecPath(execPath),
		chromedp.WindowSize(d.opts.ViewportWidth, d.opts.ViewportHeight),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
	)
	if !d.opts.Headless {
		opts = append(opts, chromedp.Flag("headless", false))
	}

	// The browser lifetime is tied to the session, not to ctx.
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, cancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(func(format string, v ...interface{}) {
			logging.Debug("[Chrome] "+format, v...)
		}),
	)

	s := &chromedpSession{
		ctx:         browserCtx,
		cancel:      cancel,
		allocCancel: allocCancel,
		opts:        d.opts,
	}

	// The first Run allocates the browser and binds the process to the
	// context it is given, so it must be the session context itself.
	// Startup is bounded by closing the session instead.
	started := make(chan error, 1)
	go func() { started <- chromedp.Run(browserCtx) }()

	timer := time.NewTimer(d.opts.NavigationTimeout)
	defer timer.Stop()

	select {
	case err := <-started:
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to start Chrome: %w", err)
		}
		return s, nil
	case <-timer.C:
		s.Close()
		<-started
		return nil, fmt.Errorf("failed to start Chrome: timed out after %s", d.opts.NavigationTimeout)
	case <-ctx.Done():
		s.Close()
		<-started
		return nil, fmt.Errorf("failed to start Chrome: %w", ctx.Err())
	}
}

// Close implements Driver. Sessions own their processes, so there is
// nothing shared to release.
func (d *chromedpDriver) Close() error { return nil }

type chromedpSession struct {
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	opts        Options
}

// bounded derives a context from the browser context that expires after
// timeout or when the caller's ctx is done, whichever comes first.
func (s *chromedpSession) bounded(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	c, cancel := context.WithTimeout(s.ctx, timeout)
	stop := context.AfterFunc(ctx, cancel)
	return c, func() {
		stop()
		cancel()
	}
}

func by(selector string) chromedp.QueryOption {
	if IsXPath(selector) {
		return chromedp.BySearch
	}
	return chromedp.ByQuery
}

func (s *chromedpSession) Goto(ctx context.Context, url string) error {
	c, cancel := s.bounded(ctx, s.opts.NavigationTimeout)
	defer cancel()

	if err := chromedp.Run(c, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	return s.WaitForLoad(ctx)
}

func (s *chromedpSession) Fill(ctx context.Context, selector, value string) error {
	c, cancel := s.bounded(ctx, s.opts.ElementTimeout)
	defer cancel()

	err := chromedp.Run(c,
		chromedp.WaitVisible(selector, by(selector)),
		chromedp.Focus(selector, by(selector)),
		chromedp.Clear(selector, by(selector)),
		chromedp.SendKeys(selector, value, by(selector)),
	)
	if err != nil {
		return elementTimeoutError(selector, "fillable", s.opts.ElementTimeout, err)
	}
	return nil
}

func (s *chromedpSession) QueryAll(ctx context.Context, selector string) ([]Element, error) {
	c, cancel := s.bounded(ctx, s.opts.ElementTimeout)
	defer cancel()

	var nodes []*cdp.Node
	opt := chromedp.ByQueryAll
	if IsXPath(selector) {
		opt = chromedp.BySearch
	}
	if err := chromedp.Run(c, chromedp.Nodes(selector, &nodes, opt, chromedp.AtLeast(0))); err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", selector, err)
	}

	elements := make([]Element, len(nodes))
	for i, n := range nodes {
		elements[i] = &chromedpElement{session: s, node: n}
	}
	return elements, nil
}

func (s *chromedpSession) Click(ctx context.Context, selector string) error {
	before := s.location(ctx)

	c, cancel := s.bounded(ctx, s.opts.ElementTimeout)
	defer cancel()

	err := chromedp.Run(c,
		chromedp.WaitVisible(selector, by(selector)),
		chromedp.WaitEnabled(selector, by(selector)),
		chromedp.ScrollIntoView(selector, by(selector)),
		chromedp.Click(selector, by(selector)),
	)
	if err != nil {
		return elementTimeoutError(selector, "clickable", s.opts.ElementTimeout, err)
	}

	s.awaitNavigation(ctx, before)
	return nil
}

func (s *chromedpSession) SelectOption(ctx context.Context, selector, value string) error {
	c, cancel := s.bounded(ctx, s.opts.ElementTimeout)
	defer cancel()

	var ok bool
	err := chromedp.Run(c,
		chromedp.WaitVisible(selector, by(selector)),
		chromedp.Evaluate(selectScript(selector, value), &ok),
	)
	if err != nil {
		return elementTimeoutError(selector, "visible", s.opts.ElementTimeout, err)
	}
	if !ok {
		return fmt.Errorf("option %q not found in %s", value, selector)
	}
	return nil
}

func (s *chromedpSession) WaitVisible(ctx context.Context, selector string) error {
	c, cancel := s.bounded(ctx, s.opts.ElementTimeout)
	defer cancel()

	return elementTimeoutError(selector, "visible", s.opts.ElementTimeout,
		chromedp.Run(c, chromedp.WaitVisible(selector, by(selector))))
}

func (s *chromedpSession) WaitHidden(ctx context.Context, selector string) error {
	c, cancel := s.bounded(ctx, s.opts.ElementTimeout)
	defer cancel()

	script := hiddenScript(selector)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		var hidden bool
		if err := chromedp.Run(c, chromedp.Evaluate(script, &hidden)); err != nil {
			return elementTimeoutError(selector, "hidden", s.opts.ElementTimeout, err)
		}
		if hidden {
			return nil
		}
		select {
		case <-c.Done():
			return elementTimeoutError(selector, "hidden", s.opts.ElementTimeout, c.Err())
		case <-ticker.C:
		}
	}
}

func (s *chromedpSession) TextContent(ctx context.Context, selector string) (string, error) {
	c, cancel := s.bounded(ctx, s.opts.ElementTimeout)
	defer cancel()

	var text string
	if err := chromedp.Run(c, chromedp.TextContent(selector, &text, by(selector))); err != nil {
		return "", elementTimeoutError(selector, "present", s.opts.ElementTimeout, err)
	}
	return text, nil
}

// WaitForLoad polls document.readyState until the load event has fired.
func (s *chromedpSession) WaitForLoad(ctx context.Context) error {
	c, cancel := s.bounded(ctx, s.opts.NavigationTimeout)
	defer cancel()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		var state string
		if err := chromedp.Run(c, chromedp.Evaluate(readyStateScript, &state)); err == nil && state == "complete" {
			return nil
		}
		select {
		case <-c.Done():
			return fmt.Errorf("timeout %s waiting for page load", s.opts.NavigationTimeout)
		case <-ticker.C:
		}
	}
}

func (s *chromedpSession) Screenshot(ctx context.Context, path string) error {
	c, cancel := s.bounded(ctx, s.opts.NavigationTimeout)
	defer cancel()

	var buf []byte
	if err := chromedp.Run(c, chromedp.CaptureScreenshot(&buf)); err != nil {
		return fmt.Errorf("failed to capture screenshot: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create screenshot directory: %w", err)
	}
	return os.WriteFile(path, buf, 0644)
}

func (s *chromedpSession) Evaluate(ctx context.Context, script string, out interface{}) error {
	c, cancel := s.bounded(ctx, s.opts.ElementTimeout)
	defer cancel()

	return chromedp.Run(c, chromedp.Evaluate(script, out))
}

func (s *chromedpSession) HTML(ctx context.Context) (string, error) {
	c, cancel := s.bounded(ctx, s.opts.ElementTimeout)
	defer cancel()

	var html string
	err := chromedp.Run(c, chromedp.OuterHTML("html", &html, chromedp.ByQuery))
	return html, err
}

func (s *chromedpSession) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	if s.allocCancel != nil {
		s.allocCancel()
	}
	return nil
}

func (s *chromedpSession) location(ctx context.Context) string {
	c, cancel := s.bounded(ctx, time.Second)
	defer cancel()

	var url string
	_ = chromedp.Run(c, chromedp.Location(&url))
	return url
}

// awaitNavigation gives a click a short window to start a navigation and, if
// one started, waits for it to load. It never fails.
func (s *chromedpSession) awaitNavigation(ctx context.Context, before string) {
	deadline := time.Now().Add(navigationGrace)
	for time.Now().Before(deadline) {
		var state string
		c, cancel := s.bounded(ctx, time.Second)
		_ = chromedp.Run(c, chromedp.Evaluate(readyStateScript, &state))
		cancel()

		if state != "" && state != "complete" || s.location(ctx) != before {
			if err := s.WaitForLoad(ctx); err != nil {
				logging.Debug("navigation after click did not finish: %v", err)
			}
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
}

type chromedpElement struct {
	session *chromedpSession
	node    *cdp.Node
}

func (e *chromedpElement) TextContent(ctx context.Context) (string, error) {
	c, cancel := e.session.bounded(ctx, e.session.opts.ElementTimeout)
	defer cancel()

	var text string
	err := chromedp.Run(c, chromedp.TextContent([]cdp.NodeID{e.node.NodeID}, &text, chromedp.ByNodeID))
	return text, err
}

func (e *chromedpElement) Click(ctx context.Context) error {
	before := e.session.location(ctx)

	c, cancel := e.session.bounded(ctx, e.session.opts.ElementTimeout)
	defer cancel()

	if err := chromedp.Run(c, chromedp.MouseClickNode(e.node)); err != nil {
		return fmt.Errorf("failed to click element: %w", err)
	}

	e.session.awaitNavigation(ctx, before)
	return nil
}
