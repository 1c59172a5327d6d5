// Package orchestrator runs test cases end to end: locators, plan
// synthesis, execution and reporting.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/lance13c/qarun/internal/browser"
	"github.com/lance13c/qarun/internal/config"
	"github.com/lance13c/qarun/internal/engine"
	"github.com/lance13c/qarun/internal/events"
	"github.com/lance13c/qarun/internal/locator"
	"github.com/lance13c/qarun/internal/logging"
	"github.com/lance13c/qarun/internal/report"
	"github.com/lance13c/qarun/internal/testcase"
	"github.com/lance13c/qarun/internal/types"
)

// Planner synthesizes plans for test cases and goals.
type Planner interface {
	PlanBatch(ctx context.Context, tc types.TestCase, catalog types.Catalog) (types.Plan, error)
	engine.GoalPlanner
}

// Executor runs plans and goals in a browser session.
type Executor interface {
	RunPlan(ctx context.Context, name string, plan types.Plan, lmap locator.Map) ([]types.StepResult, error)
	RunGoals(ctx context.Context, name string, goals []string, creds testcase.Credentials, catalog types.Catalog, planner engine.GoalPlanner) ([]types.StepResult, error)
}

// HistoryStore persists finished runs.
type HistoryStore interface {
	SaveRun(rep *types.Report, reportPaths []string) error
}

// Options configures an Orchestrator. Directories are absolute or relative
// to the working directory.
type Options struct {
	TestCasesDir string
	LocatorsDir  string
	ReportsDir   string

	Mode            string // config.ModeBatch or config.ModeStep
	LocatorSource   string // config.SourceStatic or config.SourceLive
	LocatorStrategy string
	StartURL        string

	Concurrency   int
	ReportFormats []string
	ReportTitle   string

	// Driver opens the session live locators are read from. Only needed
	// when LocatorSource is live.
	Driver  browser.Driver
	History HistoryStore
	Events  events.Sink
}

// OptionsFromConfig maps the run-related parts of cfg onto Options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		TestCasesDir:    cfg.Resolve(cfg.Paths.TestCases),
		LocatorsDir:     cfg.Resolve(cfg.Paths.Locators),
		ReportsDir:      cfg.Resolve(cfg.Paths.Reports),
		Mode:            cfg.Planner.Mode,
		LocatorSource:   cfg.Locators.Source,
		LocatorStrategy: cfg.Locators.LiveStrategy,
		StartURL:        cfg.Locators.StartURL,
		Concurrency:     cfg.Runner.Concurrency,
		ReportFormats:   cfg.Report.Formats,
		ReportTitle:     cfg.Report.Title,
	}
}

// Result is what a run produced.
type Result struct {
	Report *types.Report
	// Paths lists the report files written, in format order.
	Paths []string
}

// Orchestrator runs batches of test cases.
type Orchestrator struct {
	planner  Planner
	executor Executor
	opts     Options
}

// New creates an orchestrator.
func New(planner Planner, executor Executor, opts Options) *Orchestrator {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.Mode == "" {
		opts.Mode = config.ModeBatch
	}
	if opts.Events == nil {
		opts.Events = events.Nop{}
	}
	return &Orchestrator{planner: planner, executor: executor, opts: opts}
}

// LoadCases reads the test cases, keeping only the one named filter when
// filter is non-empty. A filter matching nothing returns testcase.ErrNoMatch.
func (o *Orchestrator) LoadCases(filter string) ([]types.TestCase, error) {
	cases, err := testcase.Load(o.opts.TestCasesDir)
	if err != nil {
		return nil, err
	}
	if filter == "" {
		return cases, nil
	}
	return testcase.Filter(cases, filter)
}

// Run executes every test case (or only the one named filter) and writes the
// reports. Test cases run sequentially unless Concurrency is above one;
// results are always reported in input order.
func (o *Orchestrator) Run(ctx context.Context, filter string) (*Result, error) {
	cases, err := o.LoadCases(filter)
	if err != nil {
		return nil, err
	}
	return o.RunCases(ctx, cases)
}

// RunCases is Run over an explicit list of test cases.
func (o *Orchestrator) RunCases(ctx context.Context, cases []types.TestCase) (*Result, error) {
	runID, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to create run id: %w", err)
	}
	logging.Info("run %s: %d test case(s), mode=%s, concurrency=%d", runID, len(cases), o.opts.Mode, o.opts.Concurrency)

	results := make([]types.TestResult, len(cases))
	g := new(errgroup.Group)
	g.SetLimit(o.opts.Concurrency)

	for i, tc := range cases {
		g.Go(func() error {
			// A cancelled run starts nothing new.
			if err := ctx.Err(); err != nil {
				results[i] = types.TestResult{Name: tc.Name, Error: fmt.Sprintf("not started: %v", err)}
				return nil
			}
			results[i] = o.runCase(ctx, runID.String(), i, len(cases), tc)
			return nil
		})
	}
	_ = g.Wait()

	rep := report.Build(runID.String(), time.Now(), results)
	paths, err := report.Write(rep, o.opts.ReportsDir, o.opts.ReportFormats, o.opts.ReportTitle)
	if err != nil {
		return &Result{Report: rep, Paths: paths}, fmt.Errorf("failed to write reports: %w", err)
	}
	for _, p := range paths {
		logging.Info("Report generated: %s", p)
	}

	if o.opts.History != nil {
		if err := o.opts.History.SaveRun(rep, paths); err != nil {
			logging.Warn("failed to record run history: %v", err)
		}
	}

	o.publish(ctx, events.Event{
		Type:   events.RunFinished,
		RunID:  rep.RunID,
		Total:  len(rep.Results),
		Passed: rep.Passed(),
		Failed: rep.Failed(),
	})

	return &Result{Report: rep, Paths: paths}, nil
}

// runCase plans and executes one test case. Any error outside per-step
// handling becomes a failed result without steps.
func (o *Orchestrator) runCase(ctx context.Context, runID string, index, total int, tc types.TestCase) types.TestResult {
	o.publish(ctx, events.Event{Type: events.TestStarted, RunID: runID, Test: tc.Name, Index: index, Total: total})
	logging.Info("Running test case: %s", tc.Name)

	start := time.Now()
	result := types.TestResult{Name: tc.Name}

	steps, err := o.execute(ctx, tc)
	if err != nil {
		result.Error = err.Error()
		logging.Error("test case %s failed before completing: %v", tc.Name, err)
	} else {
		result.Steps = steps
		result.Pass = true
		for _, s := range steps {
			if s.Failed() {
				result.Pass = false
				break
			}
		}
	}
	result.DurationMs = time.Since(start).Milliseconds()

	o.publish(ctx, events.Event{
		Type:  events.TestFinished,
		RunID: runID,
		Test:  tc.Name,
		Index: index,
		Total: total,
		Pass:  result.Pass,
		Error: result.Error,
	})
	return result
}

func (o *Orchestrator) execute(ctx context.Context, tc types.TestCase) ([]types.StepResult, error) {
	catalog, err := o.catalog(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load locators: %w", err)
	}

	if o.opts.Mode == config.ModeStep {
		goals := testcase.Goals(tc.Content)
		creds := testcase.ExtractCredentials(tc.Content)
		return o.executor.RunGoals(ctx, tc.Name, goals, creds, catalog, o.planner)
	}

	plan, err := o.planner.PlanBatch(ctx, tc, catalog)
	if err != nil {
		return nil, err
	}
	logging.Debug("plan for %s: %+v", tc.Name, plan)
	return o.executor.RunPlan(ctx, tc.Name, plan, locator.BuildMap(catalog))
}

// catalog returns the locators one test case is planned against: the static
// files, or a fresh extraction of the start page.
func (o *Orchestrator) catalog(ctx context.Context) (types.Catalog, error) {
	if o.opts.LocatorSource != config.SourceLive {
		return locator.LoadDir(o.opts.LocatorsDir)
	}
	if o.opts.Driver == nil || o.opts.StartURL == "" {
		return nil, fmt.Errorf("live locators need a browser driver and locators.start_url")
	}
	return ExtractLive(ctx, o.opts.Driver, o.opts.StartURL, o.opts.LocatorStrategy)
}

// ExtractLive opens url in a fresh session and extracts its locators.
func ExtractLive(ctx context.Context, driver browser.Driver, url, strategy string) (types.Catalog, error) {
	session, err := driver.NewSession(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open browser session: %w", err)
	}
	defer session.Close()

	if err := session.Goto(ctx, url); err != nil {
		return nil, err
	}
	catalog, err := locator.Extract(ctx, session, strategy)
	if err != nil {
		return nil, err
	}
	logging.Info("extracted %d locators from %s", len(catalog), url)
	return catalog, nil
}

func (o *Orchestrator) publish(ctx context.Context, evt events.Event) {
	evt.Time = time.Now()
	if err := o.opts.Events.Publish(ctx, evt); err != nil {
		logging.Warn("failed to publish %s event: %v", evt.Type, err)
	}
}

// DryRun synthesizes plans without executing them. In step mode there is no
// page to plan against, so goals are listed instead.
func (o *Orchestrator) DryRun(ctx context.Context, cases []types.TestCase) ([]PlannedCase, error) {
	catalog, err := o.catalog(ctx)
	if err != nil {
		return nil, err
	}

	planned := make([]PlannedCase, len(cases))
	for i, tc := range cases {
		planned[i] = PlannedCase{Name: tc.Name}
		if o.opts.Mode == config.ModeStep {
			planned[i].Goals = testcase.Goals(tc.Content)
			continue
		}
		plan, err := o.planner.PlanBatch(ctx, tc, catalog)
		if err != nil {
			planned[i].Error = err.Error()
			continue
		}
		planned[i].Plan = plan
	}
	return planned, nil
}

// PlannedCase is the dry-run outcome for one test case.
type PlannedCase struct {
	Name  string     `json:"name"`
	Plan  types.Plan `json:"plan,omitempty"`
	Goals []string   `json:"goals,omitempty"`
	Error string     `json:"error,omitempty"`
}
