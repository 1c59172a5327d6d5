// Package browsertest provides an in-memory browser.Driver for tests.
package browsertest

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/lance13c/qarun/internal/browser"
)

// Element is a node on a fake page. An element matches every selector listed
// in Selectors.
type Element struct {
	Selectors []string
	Text      string
	Hidden    bool
	Disabled  bool
	Value     string
	Options   []string
	// Navigate, when set, is the URL a click on this element loads.
	Navigate string
}

func (e *Element) matches(selector string) bool {
	for _, s := range e.Selectors {
		if s == selector {
			return true
		}
	}
	return false
}

// Page is the content served for one URL.
type Page struct {
	HTML     string
	Elements []*Element
	// Eval is decoded into the target of every Evaluate call.
	Eval interface{}
}

// Driver serves Pages keyed by URL. Unknown URLs load an empty page.
type Driver struct {
	Pages map[string]*Page
	// NewSessionErr fails every NewSession call when set.
	NewSessionErr error

	mu       sync.Mutex
	sessions []*Session
	closed   bool
}

// NewDriver returns a driver serving pages.
func NewDriver(pages map[string]*Page) *Driver {
	if pages == nil {
		pages = map[string]*Page{}
	}
	return &Driver{Pages: pages}
}

func (d *Driver) NewSession(ctx context.Context) (browser.Session, error) {
	if d.NewSessionErr != nil {
		return nil, d.NewSessionErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := &Session{driver: d, page: &Page{}}
	d.mu.Lock()
	d.sessions = append(d.sessions, s)
	d.mu.Unlock()
	return s, nil
}

func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

// Sessions returns every session opened so far.
func (d *Driver) Sessions() []*Session {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Session(nil), d.sessions...)
}

// Session is a fake page. Waits resolve immediately: an element that is not
// in the wanted state is reported as a timeout.
type Session struct {
	driver *Driver

	mu          sync.Mutex
	url         string
	page        *Page
	log         []string
	screenshots []string
	closed      bool
}

// URL returns the current page address.
func (s *Session) URL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.url
}

// Log returns the recorded interactions, e.g. "goto http://x", "fill #a=b",
// "click #btn".
func (s *Session) Log() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.log...)
}

// Screenshots returns the paths written so far.
func (s *Session) Screenshots() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.screenshots...)
}

// Closed reports whether Close was called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Element returns the first element matching selector on the current page.
func (s *Session) Element(selector string) *Element {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.find(selector)
}

func (s *Session) find(selector string) *Element {
	for _, e := range s.page.Elements {
		if e.matches(selector) {
			return e
		}
	}
	return nil
}

func (s *Session) record(format string, args ...interface{}) {
	s.log = append(s.log, fmt.Sprintf(format, args...))
}

func (s *Session) load(url string) {
	s.url = url
	if p, ok := s.driver.Pages[url]; ok {
		s.page = p
	} else {
		s.page = &Page{}
	}
}

func timeout(selector, state string) error {
	return fmt.Errorf("timeout waiting for %s to be %s", selector, state)
}

func (s *Session) Goto(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("goto %s", url)
	s.load(url)
	return nil
}

func (s *Session) Fill(ctx context.Context, selector, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.find(selector)
	if e == nil || e.Hidden {
		return timeout(selector, "fillable")
	}
	e.Value = value
	s.record("fill %s=%s", selector, value)
	return nil
}

func (s *Session) QueryAll(ctx context.Context, selector string) ([]browser.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []browser.Element
	for _, e := range s.page.Elements {
		if e.matches(selector) {
			out = append(out, &element{session: s, el: e, selector: selector})
		}
	}
	return out, nil
}

func (s *Session) click(e *Element, selector string) {
	s.record("click %s", selector)
	if e.Text != "" {
		s.log[len(s.log)-1] += fmt.Sprintf(" %q", e.Text)
	}
	if e.Navigate != "" {
		s.load(e.Navigate)
	}
}

func (s *Session) Click(ctx context.Context, selector string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.find(selector)
	if e == nil || e.Hidden || e.Disabled {
		return timeout(selector, "clickable")
	}
	s.click(e, selector)
	return nil
}

func (s *Session) SelectOption(ctx context.Context, selector, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.find(selector)
	if e == nil || e.Hidden {
		return timeout(selector, "visible")
	}
	for _, o := range e.Options {
		if o == value {
			e.Value = value
			s.record("select %s=%s", selector, value)
			return nil
		}
	}
	return fmt.Errorf("option %q not found in %s", value, selector)
}

func (s *Session) WaitVisible(ctx context.Context, selector string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if e := s.find(selector); e == nil || e.Hidden {
		return timeout(selector, "visible")
	}
	return nil
}

func (s *Session) WaitHidden(ctx context.Context, selector string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if e := s.find(selector); e != nil && !e.Hidden {
		return timeout(selector, "hidden")
	}
	return nil
}

func (s *Session) TextContent(ctx context.Context, selector string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.find(selector)
	if e == nil {
		return "", timeout(selector, "present")
	}
	return e.Text, nil
}

func (s *Session) WaitForLoad(ctx context.Context) error {
	return ctx.Err()
}

// Screenshot writes a placeholder file so callers can check it exists.
func (s *Session) Screenshot(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte("PNG"), 0644); err != nil {
		return err
	}
	s.mu.Lock()
	s.screenshots = append(s.screenshots, path)
	s.mu.Unlock()
	return nil
}

func (s *Session) Evaluate(ctx context.Context, script string, out interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	eval := s.page.Eval
	s.mu.Unlock()
	if out == nil || eval == nil {
		return nil
	}
	data, err := json.Marshal(eval)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func (s *Session) HTML(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.page.HTML != "" {
		return s.page.HTML, nil
	}
	return "<html><head></head><body></body></html>", nil
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

type element struct {
	session  *Session
	el       *Element
	selector string
}

func (e *element) TextContent(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return e.el.Text, nil
}

func (e *element) Click(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.session.mu.Lock()
	defer e.session.mu.Unlock()
	e.session.click(e.el, e.selector)
	return nil
}

var (
	_ browser.Driver  = (*Driver)(nil)
	_ browser.Session = (*Session)(nil)
)
