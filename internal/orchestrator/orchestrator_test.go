package orchestrator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lance13c/qarun/internal/browser"
	"github.com/lance13c/qarun/internal/browser/browsertest"
	"github.com/lance13c/qarun/internal/config"
	"github.com/lance13c/qarun/internal/engine"
	"github.com/lance13c/qarun/internal/events"
	"github.com/lance13c/qarun/internal/llm"
	"github.com/lance13c/qarun/internal/planner"
	"github.com/lance13c/qarun/internal/report"
	"github.com/lance13c/qarun/internal/testcase"
	"github.com/lance13c/qarun/internal/types"
)

const loginURL = "http://app.test/login"

type fakeHistory struct {
	mu    sync.Mutex
	runs  []*types.Report
	paths [][]string
}

func (h *fakeHistory) SaveRun(rep *types.Report, paths []string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.runs = append(h.runs, rep)
	h.paths = append(h.paths, paths)
	return nil
}

type fixture struct {
	dir     string
	opts    Options
	client  *llm.MockClient
	driver  *browsertest.Driver
	history *fakeHistory
	events  *events.Recorder
}

func newFixture(t *testing.T, cases map[string]string) *fixture {
	t.Helper()
	dir := t.TempDir()
	casesDir := filepath.Join(dir, "test_cases")
	require.NoError(t, os.MkdirAll(casesDir, 0755))
	for name, content := range cases {
		require.NoError(t, os.WriteFile(filepath.Join(casesDir, name), []byte(content), 0644))
	}

	locDir := filepath.Join(dir, "Locators")
	require.NoError(t, os.MkdirAll(locDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(locDir, "login.json"),
		[]byte(`[{"id":"username"},{"id":"password"},{"class":"btn primary"}]`), 0644))

	f := &fixture{
		dir:     dir,
		client:  llm.NewMockClient(),
		history: &fakeHistory{},
		events:  &events.Recorder{},
		driver: browsertest.NewDriver(map[string]*browsertest.Page{
			loginURL: {
				HTML: `<html><body><input id="username"><button class="btn primary">Go</button></body></html>`,
				Elements: []*browsertest.Element{
					{Selectors: []string{"#username"}},
					{Selectors: []string{".btn.primary", "button"}, Text: "Go"},
				},
			},
		}),
	}
	f.opts = Options{
		TestCasesDir:  casesDir,
		LocatorsDir:   locDir,
		ReportsDir:    filepath.Join(dir, "reports"),
		Mode:          config.ModeBatch,
		LocatorSource: config.SourceStatic,
		Concurrency:   1,
		ReportFormats: []string{report.FormatJSON, report.FormatHTML},
		History:       f.history,
		Events:        f.events,
	}
	return f
}

func (f *fixture) respond(byContent map[string]string) {
	f.client.Respond = func(prompt string) (string, error) {
		for marker, resp := range byContent {
			if strings.Contains(prompt, marker) {
				return resp, nil
			}
		}
		return "", errors.New("unexpected prompt")
	}
}

func (f *fixture) orchestrator(t *testing.T) *Orchestrator {
	t.Helper()
	p, err := planner.New(f.client, planner.Options{})
	require.NoError(t, err)
	eng := engine.New(f.driver, nil, nil, engine.Options{ReportsDir: f.opts.ReportsDir, Events: f.events})
	return New(p, eng, f.opts)
}

func TestRun_BatchModeEndToEnd(t *testing.T) {
	f := newFixture(t, map[string]string{
		"a_login.txt":  "Open the login page and type alice into username",
		"b_broken.txt": "Do something the model cannot express",
	})
	f.respond(map[string]string{
		"type alice into username": `[{"action":"goto","url":"` + loginURL + `"},{"action":"fill","selector":"username","value":"alice"},{"note":"no action"}]`,
		"cannot express":           `I am not sure what to do`,
	})

	res, err := f.orchestrator(t).Run(context.Background(), "")
	require.NoError(t, err)

	rep := res.Report
	require.Len(t, rep.Results, 2)

	login := rep.Results[0]
	assert.Equal(t, "a_login.txt", login.Name)
	assert.True(t, login.Pass)
	require.Len(t, login.Steps, 2)
	assert.Equal(t, "fill", login.Steps[1].Action)
	assert.Contains(t, f.driver.Sessions()[0].Log(), "fill #username=alice")

	broken := rep.Results[1]
	assert.False(t, broken.Pass)
	assert.Nil(t, broken.Steps)
	assert.Contains(t, broken.Error, "not valid JSON")

	require.Len(t, res.Paths, 2)
	for _, p := range res.Paths {
		assert.FileExists(t, p)
		assert.True(t, strings.HasPrefix(filepath.Base(p), "report_"))
	}
	assert.Equal(t, ".json", filepath.Ext(res.Paths[0]))
	assert.Equal(t, ".html", filepath.Ext(res.Paths[1]))

	require.Len(t, f.history.runs, 1)
	assert.Equal(t, rep.RunID, f.history.runs[0].RunID)
	assert.Equal(t, res.Paths, f.history.paths[0])

	assert.Equal(t, []string{
		events.TestStarted, events.StepFinished, events.StepFinished, events.TestFinished,
		events.TestStarted, events.TestFinished,
		events.RunFinished,
	}, f.events.Types())
}

func TestRun_StepFailureClearsPass(t *testing.T) {
	f := newFixture(t, map[string]string{"click.txt": "click the missing button"})
	f.respond(map[string]string{
		"missing button": `[{"action":"goto","url":"` + loginURL + `"},{"action":"click","selector":"#nope"},{"action":"goto","url":"` + loginURL + `"}]`,
	})

	res, err := f.orchestrator(t).Run(context.Background(), "")
	require.NoError(t, err)

	result := res.Report.Results[0]
	assert.False(t, result.Pass)
	require.Len(t, result.Steps, 2)
	assert.Equal(t, types.StatusFail, result.Steps[1].Status)
	assert.Empty(t, result.Error)
}

func TestRun_Filter(t *testing.T) {
	f := newFixture(t, map[string]string{
		"login.txt":  "goto login",
		"search.txt": "goto search",
	})
	f.respond(map[string]string{"goto": `[{"action":"goto","url":"` + loginURL + `"}]`})
	o := f.orchestrator(t)

	res, err := o.Run(context.Background(), "search")
	require.NoError(t, err)
	require.Len(t, res.Report.Results, 1)
	assert.Equal(t, "search.txt", res.Report.Results[0].Name)

	_, err = o.Run(context.Background(), "checkout.txt")
	assert.ErrorIs(t, err, testcase.ErrNoMatch)
	assert.Equal(t, 1, f.client.Calls())
	assert.Len(t, f.history.runs, 1)
}

func TestRun_ConcurrentKeepsInputOrder(t *testing.T) {
	cases := map[string]string{}
	for _, n := range []string{"a", "b", "c", "d", "e"} {
		cases[n+".txt"] = "case " + n
	}
	f := newFixture(t, cases)
	f.opts.Concurrency = 3
	f.respond(map[string]string{"case": `[{"action":"goto","url":"` + loginURL + `"}]`})

	res, err := f.orchestrator(t).Run(context.Background(), "")
	require.NoError(t, err)

	var names []string
	for _, r := range res.Report.Results {
		names = append(names, r.Name)
		assert.True(t, r.Pass)
	}
	assert.Equal(t, []string{"a.txt", "b.txt", "c.txt", "d.txt", "e.txt"}, names)
	assert.Len(t, f.driver.Sessions(), 5)
}

func TestRun_CancelledRunStartsNothing(t *testing.T) {
	f := newFixture(t, map[string]string{"a.txt": "goto", "b.txt": "goto"})
	f.respond(map[string]string{"goto": `[{"action":"goto","url":"` + loginURL + `"}]`})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := f.orchestrator(t).Run(ctx, "")
	require.NoError(t, err)
	for _, r := range res.Report.Results {
		assert.False(t, r.Pass)
		assert.Nil(t, r.Steps)
		assert.Contains(t, r.Error, "not started")
	}
	assert.Equal(t, 0, f.client.Calls())
	assert.Empty(t, f.driver.Sessions())
}

func TestRun_StepMode(t *testing.T) {
	f := newFixture(t, map[string]string{"login.txt": "open the login page\n\nenter username alice\n"})
	f.opts.Mode = config.ModeStep
	f.respond(map[string]string{
		"Instruction: open the login page": `{"goto":"` + loginURL + `"}`,
		"Instruction: enter username":      `{"fill":"username","value":"alice"}`,
	})

	res, err := f.orchestrator(t).Run(context.Background(), "")
	require.NoError(t, err)

	result := res.Report.Results[0]
	require.Len(t, result.Steps, 2, "%+v", result)
	assert.True(t, result.Pass, "%+v", result.Steps)
	assert.Equal(t, "enter username alice", result.Steps[1].Goal)
	assert.Contains(t, f.driver.Sessions()[0].Log(), "fill #username=alice")
}

func TestRun_LiveLocators(t *testing.T) {
	f := newFixture(t, map[string]string{
		"a_login.txt":  "fill the username",
		"b_logout.txt": "press the button",
	})
	f.opts.LocatorSource = config.SourceLive
	f.opts.StartURL = loginURL
	f.opts.Driver = f.driver
	f.respond(map[string]string{
		"fill the username": `[{"action":"goto","url":"` + loginURL + `"}]`,
		"press the button":  `[{"action":"goto","url":"` + loginURL + `"}]`,
	})

	res, err := f.orchestrator(t).Run(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, res.Report.Results, 2)
	assert.True(t, res.Report.Results[0].Pass)
	assert.True(t, res.Report.Results[1].Pass)

	// each case extracts on its own session before running on another
	sessions := f.driver.Sessions()
	require.Len(t, sessions, 4)
	for _, s := range sessions {
		assert.Equal(t, []string{"goto " + loginURL}, s.Log())
		assert.True(t, s.Closed())
	}
	require.Len(t, f.client.Prompts(), 2)
	for _, p := range f.client.Prompts() {
		assert.Contains(t, p, `"username"`)
	}
}

// failingDriver fails the listed NewSession calls, counted from 1.
type failingDriver struct {
	*browsertest.Driver
	mu    sync.Mutex
	calls int
	fail  map[int]bool
}

func (d *failingDriver) NewSession(ctx context.Context) (browser.Session, error) {
	d.mu.Lock()
	d.calls++
	n := d.calls
	d.mu.Unlock()
	if d.fail[n] {
		return nil, errors.New("chrome did not start")
	}
	return d.Driver.NewSession(ctx)
}

func TestRun_LiveLocatorsFailOnlyTheirCase(t *testing.T) {
	f := newFixture(t, map[string]string{
		"a_login.txt":  "fill the username",
		"b_logout.txt": "press the button",
	})
	f.opts.LocatorSource = config.SourceLive
	f.opts.StartURL = loginURL
	f.opts.Driver = &failingDriver{Driver: f.driver, fail: map[int]bool{1: true}}
	f.respond(map[string]string{
		"fill the username": `[{"action":"goto","url":"` + loginURL + `"}]`,
		"press the button":  `[{"action":"goto","url":"` + loginURL + `"}]`,
	})

	res, err := f.orchestrator(t).Run(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, res.Report.Results, 2)

	failed := res.Report.Results[0]
	assert.Equal(t, "a_login.txt", failed.Name)
	assert.False(t, failed.Pass)
	assert.Nil(t, failed.Steps)
	assert.Contains(t, failed.Error, "failed to load locators")
	assert.Contains(t, failed.Error, "chrome did not start")

	passed := res.Report.Results[1]
	assert.Equal(t, "b_logout.txt", passed.Name)
	assert.True(t, passed.Pass)
	assert.Len(t, passed.Steps, 1)
	require.Len(t, f.client.Prompts(), 1)
	assert.Contains(t, f.client.Prompts()[0], "press the button")
}

func TestRun_LiveLocatorsWithoutStartURL(t *testing.T) {
	f := newFixture(t, map[string]string{"login.txt": "anything"})
	f.opts.LocatorSource = config.SourceLive
	f.respond(map[string]string{})

	res, err := f.orchestrator(t).Run(context.Background(), "")
	require.NoError(t, err)
	assert.Nil(t, res.Report.Results[0].Steps)
	assert.Contains(t, res.Report.Results[0].Error, "start_url")
}

func TestDryRun(t *testing.T) {
	f := newFixture(t, map[string]string{"a.txt": "goto login", "b.txt": "broken"})
	f.respond(map[string]string{
		"goto login": `[{"action":"goto","url":"` + loginURL + `"}]`,
		"broken":     `{"nope":1}`,
	})
	o := f.orchestrator(t)

	cases, err := o.LoadCases("")
	require.NoError(t, err)
	planned, err := o.DryRun(context.Background(), cases)
	require.NoError(t, err)

	require.Len(t, planned, 2)
	assert.Len(t, planned[0].Plan, 1)
	assert.Contains(t, planned[1].Error, "expected a JSON array")
	assert.Empty(t, f.driver.Sessions())
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.ProjectDir = "/work"
	cfg.Runner.Concurrency = 2

	opts := OptionsFromConfig(cfg)
	assert.Equal(t, filepath.Join("/work", "test_cases"), opts.TestCasesDir)
	assert.Equal(t, filepath.Join("/work", "reports"), opts.ReportsDir)
	assert.Equal(t, 2, opts.Concurrency)
	assert.Equal(t, []string{"json", "html"}, opts.ReportFormats)
}
