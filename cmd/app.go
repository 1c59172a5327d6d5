package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/lance13c/qarun/internal/browser"
	"github.com/lance13c/qarun/internal/config"
	"github.com/lance13c/qarun/internal/database"
	"github.com/lance13c/qarun/internal/engine"
	"github.com/lance13c/qarun/internal/events"
	"github.com/lance13c/qarun/internal/httpcall"
	"github.com/lance13c/qarun/internal/llm"
	"github.com/lance13c/qarun/internal/logging"
	"github.com/lance13c/qarun/internal/orchestrator"
	"github.com/lance13c/qarun/internal/planner"
)

// app holds everything a run needs, built from the loaded config.
type app struct {
	cfg     *config.Config
	client  llm.Client
	driver  browser.Driver
	history *database.DB
	orch    *orchestrator.Orchestrator

	closers []func() error
}

// newLLMClient maps the llm config section onto client options.
func newLLMClient(cfg *config.Config) (llm.Client, error) {
	options := map[string]interface{}{
		"command": cfg.LLM.Command,
		"args":    cfg.LLM.Args,
		"timeout": cfg.LLM.Timeout,
	}
	if cfg.LLM.Model != "" {
		options["model"] = cfg.LLM.Model
	}
	if cfg.LLM.Endpoint != "" {
		options["base_url"] = cfg.LLM.Endpoint
	}
	if len(cfg.LLM.Responses) > 0 {
		options["responses"] = cfg.LLM.Responses
	}
	return llm.NewClient(llm.Provider(cfg.LLM.Provider), cfg.LLM.APIKey, options)
}

// newBrowserDriver opens no browser yet; sessions launch it on demand.
func newBrowserDriver(cfg *config.Config) (browser.Driver, error) {
	return browser.NewDriver(cfg.Browser.Driver, browser.Options{
		Headless:          cfg.Browser.Headless,
		ElementTimeout:    cfg.Browser.ElementTimeout,
		NavigationTimeout: cfg.Browser.NavigationTimeout,
		ViewportWidth:     cfg.Browser.ViewportWidth,
		ViewportHeight:    cfg.Browser.ViewportHeight,
		ExecPath:          cfg.Browser.ExecPath,
	})
}

// openHistory returns nil when history is disabled.
func openHistory(cfg *config.Config) (*database.DB, error) {
	if !cfg.History.Enabled {
		return nil, nil
	}
	return database.New(cfg.Resolve(cfg.History.Path))
}

// newApp wires the planner, engine and orchestrator. extra sinks receive run
// events alongside the configured NATS subject.
func newApp(ctx context.Context, cfg *config.Config, extra ...events.Sink) (*app, error) {
	a := &app{cfg: cfg}

	client, err := newLLMClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM client: %w", err)
	}
	a.client = client

	popts := planner.Options{
		LocatorFilter: cfg.Planner.LocatorFilter,
		Credentials:   cfg.Planner.Credentials,
		FailuresDir:   cfg.Resolve(cfg.Paths.Failures),
	}
	if cfg.Planner.PromptTemplate != "" {
		popts.PromptTemplate = cfg.Resolve(cfg.Planner.PromptTemplate)
	}
	if cfg.Cache.RedisURL != "" {
		cache, err := planner.NewRedisCache(ctx, cfg.Cache.RedisURL, cfg.Cache.TTL)
		if err != nil {
			logging.Warn("plan cache disabled: %v", err)
		} else {
			popts.Cache = cache
			a.closers = append(a.closers, cache.Close)
		}
	}
	plan, err := planner.New(client, popts)
	if err != nil {
		a.Close()
		return nil, err
	}

	driver, err := newBrowserDriver(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.driver = driver
	a.closers = append(a.closers, driver.Close)

	var querier database.Querier
	if cfg.Database.DSN != "" {
		q, err := database.NewQuerier(cfg.Database.Driver, cfg.Database.DSN, cfg.Database.DefaultDatabase)
		if err != nil {
			a.Close()
			return nil, err
		}
		querier = q
	}

	sinks := events.Multi(extra)
	if cfg.Events.NATSURL != "" {
		nc, err := events.NewNATSSink(cfg.Events.NATSURL, cfg.Events.Subject)
		if err != nil {
			logging.Warn("event publishing disabled: %v", err)
		} else {
			sinks = append(sinks, nc)
			a.closers = append(a.closers, nc.Close)
		}
	}

	eng := engine.New(driver, querier, httpcall.NewClient(cfg.Browser.NavigationTimeout), engine.Options{
		ReportsDir:      cfg.Resolve(cfg.Paths.Reports),
		SettleDelay:     cfg.Browser.SettleDelay,
		LocatorStrategy: cfg.Locators.LiveStrategy,
		Events:          sinks,
	})

	oopts := orchestrator.OptionsFromConfig(cfg)
	oopts.Driver = driver
	oopts.Events = sinks

	history, err := openHistory(cfg)
	if err != nil {
		logging.Warn("run history disabled: %v", err)
	} else if history != nil {
		a.history = history
		a.closers = append(a.closers, history.Close)
		oopts.History = history
	}

	a.orch = orchestrator.New(plan, eng, oopts)
	return a, nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logging.Warn("close: %v", err)
		}
	}
	a.closers = nil
}

// printUsage reports token spend when the client tracks it.
func (a *app) printUsage() {
	r, ok := a.client.(llm.UsageReporter)
	if !ok {
		return
	}
	total := r.TotalUsage()
	if total.TotalTokens == 0 {
		return
	}
	fmt.Fprintf(os.Stdout, "LLM usage: %d tokens (%d in, %d out), %s\n",
		total.TotalTokens, total.InputTokens, total.OutputTokens, llm.FormatCost(total.TotalCost))
}
