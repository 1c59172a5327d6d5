package config

import (
	"fmt"
	"path/filepath"
	"time"
)

// Config represents the complete qarun configuration
type Config struct {
	Paths    PathsConfig    `yaml:"paths"`
	LLM      LLMConfig      `yaml:"llm"`
	Planner  PlannerConfig  `yaml:"planner"`
	Browser  BrowserConfig  `yaml:"browser"`
	Locators LocatorsConfig `yaml:"locators"`
	Database DatabaseConfig `yaml:"database"`
	Runner   RunnerConfig   `yaml:"runner"`
	Report   ReportConfig   `yaml:"report"`
	History  HistoryConfig  `yaml:"history"`
	Cache    CacheConfig    `yaml:"cache"`
	Events   EventsConfig   `yaml:"events"`

	// ProjectDir is the directory relative paths are resolved against. It is
	// set by the loader, never read from YAML.
	ProjectDir string `yaml:"-"`
}

// PathsConfig holds the input and output directories
type PathsConfig struct {
	TestCases string `yaml:"test_cases"`
	Locators  string `yaml:"locators"`
	Reports   string `yaml:"reports"`
	Failures  string `yaml:"failures"`
}

// LLMConfig holds reasoning service configuration
type LLMConfig struct {
	Provider string        `yaml:"provider"` // process, openrouter, mock
	Command  string        `yaml:"command,omitempty"`
	Args     []string      `yaml:"args,omitempty"`
	APIKey   string        `yaml:"api_key,omitempty"`
	Model    string        `yaml:"model,omitempty"`
	Endpoint string        `yaml:"endpoint,omitempty"`
	Timeout  time.Duration `yaml:"timeout"`

	// Responses are replayed in order by the mock provider.
	Responses []string `yaml:"responses,omitempty"`
}

// PlannerConfig controls plan synthesis
type PlannerConfig struct {
	Mode           string `yaml:"mode"`           // batch, step
	LocatorFilter  string `yaml:"locator_filter"` // all, relevant
	Credentials    string `yaml:"credentials"`    // always, login, never
	PromptTemplate string `yaml:"prompt_template,omitempty"`
}

// BrowserConfig holds browser automation settings
type BrowserConfig struct {
	Driver            string        `yaml:"driver"` // chromedp, playwright
	Headless          bool          `yaml:"headless"`
	ElementTimeout    time.Duration `yaml:"element_timeout"`
	NavigationTimeout time.Duration `yaml:"navigation_timeout"`
	SettleDelay       time.Duration `yaml:"settle_delay"`
	ViewportWidth     int           `yaml:"viewport_width"`
	ViewportHeight    int           `yaml:"viewport_height"`
	ExecPath          string        `yaml:"exec_path,omitempty"`
}

// LocatorsConfig controls where locator catalogs come from
type LocatorsConfig struct {
	Source       string `yaml:"source"`        // static, live
	LiveStrategy string `yaml:"live_strategy"` // html, dom
	StartURL     string `yaml:"start_url,omitempty"`
}

// DatabaseConfig holds db_query settings
type DatabaseConfig struct {
	Driver          string `yaml:"driver"` // mysql, sqlite3
	DSN             string `yaml:"dsn"`
	DefaultDatabase string `yaml:"default_database,omitempty"`
}

// RunnerConfig controls test case scheduling
type RunnerConfig struct {
	Concurrency int `yaml:"concurrency"`
}

// ReportConfig controls report output
type ReportConfig struct {
	Formats []string `yaml:"formats"` // json, html, xlsx
	Title   string   `yaml:"title"`
}

// HistoryConfig controls the sqlite run history
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// CacheConfig controls the redis plan cache
type CacheConfig struct {
	RedisURL string        `yaml:"redis_url,omitempty"`
	TTL      time.Duration `yaml:"ttl"`
}

// EventsConfig controls run event publication
type EventsConfig struct {
	NATSURL string `yaml:"nats_url,omitempty"`
	Subject string `yaml:"subject"`
}

// Planner modes
const (
	ModeBatch = "batch"
	ModeStep  = "step"
)

// Locator filter policies
const (
	FilterAll      = "all"
	FilterRelevant = "relevant"
)

// Credential injection policies
const (
	CredentialsAlways = "always"
	CredentialsLogin  = "login"
	CredentialsNever  = "never"
)

// Locator sources
const (
	SourceStatic = "static"
	SourceLive   = "live"
)

// DefaultConfig returns a new config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Paths: PathsConfig{
			TestCases: "test_cases",
			Locators:  "Locators",
			Reports:   "reports",
			Failures:  filepath.Join("reports", "failures"),
		},
		LLM: LLMConfig{
			Provider: "process",
			Command:  "python3",
			Args:     []string{filepath.Join("llm_bridge", "ask_claude.py")},
			Model:    "anthropic/claude-3.5-sonnet",
			Timeout:  2 * time.Minute,
		},
		Planner: PlannerConfig{
			Mode:          ModeBatch,
			LocatorFilter: FilterRelevant,
			Credentials:   CredentialsAlways,
		},
		Browser: BrowserConfig{
			Driver:            "chromedp",
			Headless:          true,
			ElementTimeout:    30 * time.Second,
			NavigationTimeout: 30 * time.Second,
			SettleDelay:       time.Second,
			ViewportWidth:     1280,
			ViewportHeight:    800,
		},
		Locators: LocatorsConfig{
			Source:       SourceStatic,
			LiveStrategy: "html",
		},
		Database: DatabaseConfig{
			Driver: "mysql",
		},
		Runner: RunnerConfig{
			Concurrency: 1,
		},
		Report: ReportConfig{
			Formats: []string{"json", "html"},
			Title:   "Test Automation Report",
		},
		History: HistoryConfig{
			Enabled: true,
			Path:    filepath.Join(ConfigDirName, "history.db"),
		},
		Cache: CacheConfig{
			TTL: 24 * time.Hour,
		},
		Events: EventsConfig{
			Subject: "qarun.events",
		},
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	switch c.LLM.Provider {
	case "process":
		if c.LLM.Command == "" {
			return NewValidationError("llm.command is required for provider: process")
		}
	case "openrouter":
		if c.LLM.APIKey == "" {
			return NewValidationError("llm.api_key is required for provider: openrouter")
		}
	case "mock":
	case "":
		return NewValidationError("llm.provider is required")
	default:
		return NewValidationError("unsupported llm.provider: " + c.LLM.Provider)
	}

	if c.Planner.Mode != ModeBatch && c.Planner.Mode != ModeStep {
		return NewValidationError("planner.mode must be batch or step, got: " + c.Planner.Mode)
	}
	if c.Planner.LocatorFilter != FilterAll && c.Planner.LocatorFilter != FilterRelevant {
		return NewValidationError("planner.locator_filter must be all or relevant, got: " + c.Planner.LocatorFilter)
	}
	switch c.Planner.Credentials {
	case CredentialsAlways, CredentialsLogin, CredentialsNever:
	default:
		return NewValidationError("planner.credentials must be always, login or never, got: " + c.Planner.Credentials)
	}

	if c.Browser.Driver != "chromedp" && c.Browser.Driver != "playwright" {
		return NewValidationError("browser.driver must be chromedp or playwright, got: " + c.Browser.Driver)
	}
	if c.Browser.ElementTimeout <= 0 {
		return NewValidationError("browser.element_timeout must be positive")
	}

	if c.Locators.Source != SourceStatic && c.Locators.Source != SourceLive {
		return NewValidationError("locators.source must be static or live, got: " + c.Locators.Source)
	}

	if c.Runner.Concurrency < 1 {
		return NewValidationError("runner.concurrency must be at least 1")
	}

	for _, f := range c.Report.Formats {
		if f != "json" && f != "html" && f != "xlsx" {
			return NewValidationError("unsupported report format: " + f)
		}
	}

	return nil
}

// Resolve returns p joined to the project directory unless it is absolute.
func (c *Config) Resolve(p string) string {
	if p == "" || filepath.IsAbs(p) || c.ProjectDir == "" {
		return p
	}
	return filepath.Join(c.ProjectDir, p)
}

// HasReportFormat reports whether format is enabled.
func (c *Config) HasReportFormat(format string) bool {
	for _, f := range c.Report.Formats {
		if f == format {
			return true
		}
	}
	return false
}

// ValidationError represents a configuration validation error
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return "config validation error: " + e.Message
}

// NewValidationError creates a new validation error
func NewValidationError(message string) error {
	return &ValidationError{Message: message}
}

// String renders a short one-line summary used by the doctor command.
func (c *Config) String() string {
	return fmt.Sprintf("mode=%s provider=%s browser=%s locators=%s concurrency=%d",
		c.Planner.Mode, c.LLM.Provider, c.Browser.Driver, c.Locators.Source, c.Runner.Concurrency)
}
