// Package engine executes action plans against a browser session, a database
// and HTTP endpoints, recording evidence for every step.
package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"time"

	"github.com/lance13c/qarun/internal/browser"
	"github.com/lance13c/qarun/internal/database"
	"github.com/lance13c/qarun/internal/events"
	"github.com/lance13c/qarun/internal/httpcall"
	"github.com/lance13c/qarun/internal/locator"
	"github.com/lance13c/qarun/internal/logging"
	"github.com/lance13c/qarun/internal/testcase"
	"github.com/lance13c/qarun/internal/types"
)

// ErrUnknownAction is returned for a step whose action the engine cannot
// dispatch.
var ErrUnknownAction = errors.New("unknown action")

// APIClient performs api_request steps.
type APIClient interface {
	Do(ctx context.Context, req httpcall.Request) (*httpcall.Response, error)
}

// GoalPlanner synthesizes the single next step for a goal.
type GoalPlanner interface {
	PlanGoal(ctx context.Context, goal string, creds testcase.Credentials, catalog types.Catalog) (types.ActionStep, error)
}

// Options configures an Engine.
type Options struct {
	// ReportsDir is the root screenshot paths are recorded relative to.
	ReportsDir string
	// SettleDelay is waited between goals in step mode before the page is
	// re-read.
	SettleDelay time.Duration
	// LocatorStrategy is the locator.Extract strategy used between goals.
	LocatorStrategy string
	Events          events.Sink
	// Now is the clock used for screenshot directory names.
	Now func() time.Time
}

// Engine runs test cases one browser session at a time. It is safe to use
// from several goroutines; every run acquires its own session.
type Engine struct {
	driver browser.Driver
	db     database.Querier
	api    APIClient
	opts   Options
}

// New creates an engine. db may be nil, in which case db_query steps fail.
func New(driver browser.Driver, db database.Querier, api APIClient, opts Options) *Engine {
	if opts.Events == nil {
		opts.Events = events.Nop{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.LocatorStrategy == "" {
		opts.LocatorStrategy = locator.StrategyHTML
	}
	if api == nil {
		api = httpcall.NewClient(0)
	}
	return &Engine{driver: driver, db: db, api: api, opts: opts}
}

var nonWord = regexp.MustCompile(`\W`)

// run is the state of one test case execution.
type run struct {
	engine  *Engine
	name    string
	session browser.Session
	shots   string
	steps   []types.StepResult
}

func (e *Engine) start(ctx context.Context, name string) (*run, error) {
	session, err := e.driver.NewSession(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open browser session: %w", err)
	}

	dir := strconv.FormatInt(e.opts.Now().UnixMilli(), 10) + "_" + nonWord.ReplaceAllString(name, "")
	return &run{
		engine:  e,
		name:    name,
		session: session,
		shots:   filepath.Join(e.opts.ReportsDir, "screenshots", dir),
		steps:   []types.StepResult{},
	}, nil
}

func (r *run) close() {
	if err := r.session.Close(); err != nil {
		logging.Warn("failed to close browser session for %s: %v", r.name, err)
	}
}

// RunPlan executes plan in order, stopping at the first failing step. The
// returned error is non-nil only when no session could be opened; step
// failures are recorded in the results.
func (e *Engine) RunPlan(ctx context.Context, name string, plan types.Plan, lmap locator.Map) ([]types.StepResult, error) {
	r, err := e.start(ctx, name)
	if err != nil {
		return nil, err
	}
	defer r.close()

	for i, step := range plan {
		if !r.execute(ctx, i+1, step, lmap, "") {
			break
		}
	}
	return r.steps, nil
}

// RunGoals executes one goal at a time: each goal is planned against the
// page as it currently is, then executed. The page is re-read between goals
// after the settle delay. A goal that cannot be planned is recorded as a
// failed step and ends the run.
func (e *Engine) RunGoals(ctx context.Context, name string, goals []string, creds testcase.Credentials, catalog types.Catalog, planner GoalPlanner) ([]types.StepResult, error) {
	r, err := e.start(ctx, name)
	if err != nil {
		return nil, err
	}
	defer r.close()

	for i, goal := range goals {
		if i > 0 {
			catalog = r.refresh(ctx, catalog)
		}

		step, err := planner.PlanGoal(ctx, goal, creds, catalog)
		if err != nil {
			res := types.StepResult{Step: i + 1, Status: types.StatusFail, Error: err.Error(), Goal: goal}
			r.record(ctx, res)
			break
		}

		if !r.execute(ctx, i+1, step, locator.BuildMap(catalog), goal) {
			break
		}
	}
	return r.steps, nil
}

// refresh waits for the page to settle and extracts a new catalog from it.
// The previous catalog is kept when extraction fails.
func (r *run) refresh(ctx context.Context, previous types.Catalog) types.Catalog {
	select {
	case <-ctx.Done():
		return previous
	case <-time.After(r.engine.opts.SettleDelay):
	}

	if err := r.session.WaitForLoad(ctx); err != nil {
		logging.Warn("page did not finish loading before re-reading locators: %v", err)
	}

	catalog, err := locator.Extract(ctx, r.session, r.engine.opts.LocatorStrategy)
	if err != nil {
		logging.Warn("failed to re-read locators for %s, keeping previous catalog: %v", r.name, err)
		return previous
	}
	logging.Debug("re-read %d locators for %s", len(catalog), r.name)
	return catalog
}

// execute runs one step, screenshots the page and records the result. It
// reports whether the run may continue.
func (r *run) execute(ctx context.Context, n int, step types.ActionStep, lmap locator.Map, goal string) bool {
	if step.Selector != "" {
		step.Selector = lmap.Resolve(step.Selector)
	}

	res := types.StepResult{Step: n, Action: string(step.Action), Status: types.StatusPending, Goal: goal}
	logging.Debug("[%s] executing step %d: %+v", r.name, n, step)

	if err := r.engine.dispatch(ctx, r.session, step, &res); err != nil {
		res.Status = types.StatusFail
		res.Error = err.Error()
		logging.Info("[%s] step %d (%s) failed: %v", r.name, n, step.Action, err)
	} else {
		res.Status = types.StatusPass
	}

	res.Screenshot = r.screenshot(ctx, n)
	r.record(ctx, res)
	return !res.Failed()
}

// screenshot captures the page after step n and returns its path relative to
// the reports directory, or "" when the capture failed.
func (r *run) screenshot(ctx context.Context, n int) string {
	path := filepath.Join(r.shots, fmt.Sprintf("step%d.png", n))
	if err := os.MkdirAll(r.shots, 0755); err != nil {
		logging.Warn("failed to create screenshot directory %s: %v", r.shots, err)
		return ""
	}
	if err := r.session.Screenshot(ctx, path); err != nil {
		logging.Warn("[%s] screenshot after step %d failed: %v", r.name, n, err)
		return ""
	}
	rel, err := filepath.Rel(r.engine.opts.ReportsDir, path)
	if err != nil {
		return path
	}
	return filepath.ToSlash(rel)
}

func (r *run) record(ctx context.Context, res types.StepResult) {
	r.steps = append(r.steps, res)
	err := r.engine.opts.Events.Publish(ctx, events.Event{
		Type:   events.StepFinished,
		Test:   r.name,
		Step:   res.Step,
		Action: res.Action,
		Status: string(res.Status),
		Error:  res.Error,
		Time:   time.Now(),
	})
	if err != nil {
		logging.Warn("failed to publish step event: %v", err)
	}
}
