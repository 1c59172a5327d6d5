package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Drivers
const (
	DriverChromedp   = "chromedp"
	DriverPlaywright = "playwright"
)

// Options configures every session a driver opens.
type Options struct {
	Headless          bool
	ElementTimeout    time.Duration
	NavigationTimeout time.Duration
	ViewportWidth     int
	ViewportHeight    int
	ExecPath          string
}

func (o Options) withDefaults() Options {
	if o.ElementTimeout <= 0 {
		o.ElementTimeout = 30 * time.Second
	}
	if o.NavigationTimeout <= 0 {
		o.NavigationTimeout = 30 * time.Second
	}
	if o.ViewportWidth <= 0 || o.ViewportHeight <= 0 {
		o.ViewportWidth, o.ViewportHeight = 1280, 800
	}
	return o
}

// Driver launches isolated browser sessions.
type Driver interface {
	NewSession(ctx context.Context) (Session, error)
	Close() error
}

// Session is one browser page owned by a single test case. Element waits are
// bounded by Options.ElementTimeout; a timeout is returned as an ordinary
// error. Selectors starting with "/" or "(" are xpath, everything else CSS.
type Session interface {
	Goto(ctx context.Context, url string) error
	Fill(ctx context.Context, selector, value string) error
	// QueryAll returns the elements currently matching selector without waiting.
	QueryAll(ctx context.Context, selector string) ([]Element, error)
	// Click waits for the element to be visible and enabled, scrolls it into
	// view and clicks it. A navigation the click triggers is awaited; no
	// navigation is not an error.
	Click(ctx context.Context, selector string) error
	SelectOption(ctx context.Context, selector, value string) error
	WaitVisible(ctx context.Context, selector string) error
	WaitHidden(ctx context.Context, selector string) error
	TextContent(ctx context.Context, selector string) (string, error)
	WaitForLoad(ctx context.Context) error
	Screenshot(ctx context.Context, path string) error
	Evaluate(ctx context.Context, script string, out interface{}) error
	HTML(ctx context.Context) (string, error)
	Close() error
}

// Element is a single matched node.
type Element interface {
	TextContent(ctx context.Context) (string, error)
	// Click clicks the element and awaits a navigation it may trigger.
	Click(ctx context.Context) error
}

// NewDriver creates the driver named by name.
func NewDriver(name string, opts Options) (Driver, error) {
	opts = opts.withDefaults()
	switch name {
	case DriverChromedp, "":
		return &chromedpDriver{opts: opts}, nil
	case DriverPlaywright:
		return newPlaywrightDriver(opts)
	default:
		return nil, fmt.Errorf("unsupported browser driver: %s", name)
	}
}

// IsXPath reports whether selector is an xpath expression.
func IsXPath(selector string) bool {
	return strings.HasPrefix(selector, "/") || strings.HasPrefix(selector, "(")
}

// elementTimeoutError normalizes a deadline hit while waiting on selector.
func elementTimeoutError(selector, state string, timeout time.Duration, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || strings.Contains(strings.ToLower(err.Error()), "timeout") {
		return fmt.Errorf("timeout %s waiting for %s to be %s", timeout, selector, state)
	}
	return fmt.Errorf("waiting for %s to be %s: %w", selector, state, err)
}
