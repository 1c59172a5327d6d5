package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/playwright-community/playwright-go"

	"github.com/lance13c/qarun/internal/logging"
)

// playwrightDriver shares one Playwright server and browser process between
// sessions; every session gets its own browser context.
type playwrightDriver struct {
	opts Options

	mu      sync.Mutex
	pw      *playwright.Playwright
	browser playwright.Browser
}

func newPlaywrightDriver(opts Options) (Driver, error) {
	return &playwrightDriver{opts: opts}, nil
}

func (d *playwrightDriver) launch() (playwright.Browser, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.browser != nil {
		return d.browser, nil
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	launchOpts := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(d.opts.Headless),
	}
	if d.opts.ExecPath != "" {
		launchOpts.ExecutablePath = playwright.String(d.opts.ExecPath)
	}

	browser, err := pw.Chromium.Launch(launchOpts)
	if err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("failed to launch chromium: %w", err)
	}
	logging.Debug("Playwright chromium launched (headless=%v)", d.opts.Headless)

	d.pw = pw
	d.browser = browser
	return browser, nil
}

func (d *playwrightDriver) NewSession(ctx context.Context) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	browser, err := d.launch()
	if err != nil {
		return nil, err
	}

	bctx, err := browser.NewContext(playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{
			Width:  d.opts.ViewportWidth,
			Height: d.opts.ViewportHeight,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}

	page, err := bctx.NewPage()
	if err != nil {
		_ = bctx.Close()
		return nil, fmt.Errorf("failed to open page: %w", err)
	}

	return &playwrightSession{bctx: bctx, page: page, opts: d.opts}, nil
}

func (d *playwrightDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var firstErr error
	if d.browser != nil {
		if err := d.browser.Close(); err != nil {
			firstErr = err
		}
		d.browser = nil
	}
	if d.pw != nil {
		if err := d.pw.Stop(); err != nil && firstErr == nil {
			firstErr = err
		}
		d.pw = nil
	}
	return firstErr
}

type playwrightSession struct {
	bctx playwright.BrowserContext
	page playwright.Page
	opts Options
}

func (s *playwrightSession) elementMs() *float64 {
	return playwright.Float(float64(s.opts.ElementTimeout.Milliseconds()))
}

func (s *playwrightSession) navigationMs() *float64 {
	return playwright.Float(float64(s.opts.NavigationTimeout.Milliseconds()))
}

// locator returns the first match; the engine never relies on strictness.
func (s *playwrightSession) locator(selector string) playwright.Locator {
	if IsXPath(selector) {
		return s.page.Locator("xpath=" + selector).First()
	}
	return s.page.Locator(selector).First()
}

func (s *playwrightSession) Goto(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := s.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateLoad,
		Timeout:   s.navigationMs(),
	})
	if err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	return nil
}

func (s *playwrightSession) Fill(ctx context.Context, selector, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.locator(selector).Fill(value, playwright.LocatorFillOptions{Timeout: s.elementMs()})
	return elementTimeoutError(selector, "fillable", s.opts.ElementTimeout, err)
}

func (s *playwrightSession) QueryAll(ctx context.Context, selector string) ([]Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sel := selector
	if IsXPath(selector) {
		sel = "xpath=" + selector
	}
	locs, err := s.page.Locator(sel).All()
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", selector, err)
	}
	elements := make([]Element, len(locs))
	for i, l := range locs {
		elements[i] = &playwrightElement{session: s, loc: l}
	}
	return elements, nil
}

func (s *playwrightSession) Click(ctx context.Context, selector string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.locator(selector).Click(playwright.LocatorClickOptions{Timeout: s.elementMs()}); err != nil {
		return elementTimeoutError(selector, "clickable", s.opts.ElementTimeout, err)
	}
	s.settle()
	return nil
}

func (s *playwrightSession) SelectOption(ctx context.Context, selector, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := s.locator(selector).SelectOption(
		playwright.SelectOptionValues{Values: &[]string{value}},
		playwright.LocatorSelectOptionOptions{Timeout: s.elementMs()},
	)
	return elementTimeoutError(selector, "selectable", s.opts.ElementTimeout, err)
}

func (s *playwrightSession) WaitVisible(ctx context.Context, selector string) error {
	return s.waitFor(ctx, selector, playwright.WaitForSelectorStateVisible, "visible")
}

func (s *playwrightSession) WaitHidden(ctx context.Context, selector string) error {
	return s.waitFor(ctx, selector, playwright.WaitForSelectorStateHidden, "hidden")
}

func (s *playwrightSession) waitFor(ctx context.Context, selector string, state *playwright.WaitForSelectorState, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.locator(selector).WaitFor(playwright.LocatorWaitForOptions{
		State:   state,
		Timeout: s.elementMs(),
	})
	return elementTimeoutError(selector, name, s.opts.ElementTimeout, err)
}

func (s *playwrightSession) TextContent(ctx context.Context, selector string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	text, err := s.locator(selector).TextContent(playwright.LocatorTextContentOptions{Timeout: s.elementMs()})
	if err != nil {
		return "", elementTimeoutError(selector, "present", s.opts.ElementTimeout, err)
	}
	return text, nil
}

func (s *playwrightSession) WaitForLoad(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State:   playwright.LoadStateLoad,
		Timeout: s.navigationMs(),
	})
}

// settle waits out a navigation a click may have started.
func (s *playwrightSession) settle() {
	if err := s.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State:   playwright.LoadStateLoad,
		Timeout: s.navigationMs(),
	}); err != nil {
		logging.Debug("navigation after click did not finish: %v", err)
	}
}

func (s *playwrightSession) Screenshot(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create screenshot directory: %w", err)
	}
	if _, err := s.page.Screenshot(playwright.PageScreenshotOptions{Path: playwright.String(path)}); err != nil {
		return fmt.Errorf("failed to capture screenshot: %w", err)
	}
	return nil
}

// Evaluate runs script and round-trips the result through JSON into out.
func (s *playwrightSession) Evaluate(ctx context.Context, script string, out interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	v, err := s.page.Evaluate(script)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func (s *playwrightSession) HTML(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return s.page.Content()
}

func (s *playwrightSession) Close() error {
	return s.bctx.Close()
}

type playwrightElement struct {
	session *playwrightSession
	loc     playwright.Locator
}

func (e *playwrightElement) TextContent(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return e.loc.TextContent(playwright.LocatorTextContentOptions{Timeout: e.session.elementMs()})
}

func (e *playwrightElement) Click(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := e.loc.Click(playwright.LocatorClickOptions{Timeout: e.session.elementMs()}); err != nil {
		return fmt.Errorf("failed to click element: %w", err)
	}
	e.session.settle()
	return nil
}
