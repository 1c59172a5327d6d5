package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	ConfigFileName  = "config.yaml"
	ConfigDirName   = ".qarun"
	GlobalConfigDir = ".config/qarun"
	EnvFileName     = ".env"
)

// ErrNotFound is returned when no config file exists in the search path.
var ErrNotFound = errors.New("no config file found")

// Loader handles configuration loading and discovery
type Loader struct {
	startDir   string
	configFile string
}

// NewLoader creates a new config loader starting from the given directory
func NewLoader(startDir string) *Loader {
	if startDir == "" {
		var err error
		startDir, err = os.Getwd()
		if err != nil {
			startDir = "."
		}
	}
	if abs, err := filepath.Abs(startDir); err == nil {
		startDir = abs
	}
	return &Loader{startDir: startDir}
}

// Load resolves the configuration: defaults, then the config file if one is
// found, then .env, then QARUN_* environment overrides. A missing config file
// is not an error; the project directory then defaults to the start directory.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()
	cfg.ProjectDir = l.startDir

	configPath, err := l.findConfigFile()
	switch {
	case err == nil:
		if err := l.loadFromFile(configPath, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", configPath, err)
		}
		if filepath.Base(filepath.Dir(configPath)) == ConfigDirName {
			cfg.ProjectDir = filepath.Dir(filepath.Dir(configPath))
		}
	case errors.Is(err, ErrNotFound):
	default:
		return nil, err
	}

	// .env never overrides variables already present in the environment.
	envPath := filepath.Join(cfg.ProjectDir, EnvFileName)
	if _, err := os.Stat(envPath); err == nil {
		if err := godotenv.Load(envPath); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", envPath, err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// SetConfigFile pins the config file instead of searching for one.
func (l *Loader) SetConfigFile(path string) {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	l.configFile = path
}

// findConfigFile searches upward from the start directory for a config file
func (l *Loader) findConfigFile() (string, error) {
	if l.configFile != "" {
		if _, err := os.Stat(l.configFile); err != nil {
			return "", fmt.Errorf("config file %s: %w", l.configFile, err)
		}
		return l.configFile, nil
	}

	dir := l.startDir

	for {
		configPath := filepath.Join(dir, ConfigDirName, ConfigFileName)
		if _, err := os.Stat(configPath); err == nil {
			return configPath, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	homeDir, err := os.UserHomeDir()
	if err == nil {
		globalConfig := filepath.Join(homeDir, GlobalConfigDir, ConfigFileName)
		if _, err := os.Stat(globalConfig); err == nil {
			return globalConfig, nil
		}
	}

	return "", fmt.Errorf("%w (searched upward from %s)", ErrNotFound, l.startDir)
}

// loadFromFile overlays a YAML file onto cfg
func (l *Loader) loadFromFile(configPath string, cfg *Config) error {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}

	return nil
}

// applyEnvOverrides applies QARUN_* environment variables to the config
func applyEnvOverrides(cfg *Config) error {
	strs := map[string]*string{
		"QARUN_LLM_PROVIDER":            &cfg.LLM.Provider,
		"QARUN_LLM_COMMAND":             &cfg.LLM.Command,
		"QARUN_LLM_MODEL":               &cfg.LLM.Model,
		"QARUN_LLM_ENDPOINT":            &cfg.LLM.Endpoint,
		"QARUN_PLANNER_MODE":            &cfg.Planner.Mode,
		"QARUN_PLANNER_CREDENTIALS":     &cfg.Planner.Credentials,
		"QARUN_LOCATOR_FILTER":          &cfg.Planner.LocatorFilter,
		"QARUN_BROWSER_DRIVER":          &cfg.Browser.Driver,
		"QARUN_LOCATORS_SOURCE":         &cfg.Locators.Source,
		"QARUN_LOCATORS_START_URL":      &cfg.Locators.StartURL,
		"QARUN_DB_DRIVER":               &cfg.Database.Driver,
		"QARUN_DB_DSN":                  &cfg.Database.DSN,
		"QARUN_DB_DEFAULT_DATABASE":     &cfg.Database.DefaultDatabase,
		"QARUN_REDIS_URL":               &cfg.Cache.RedisURL,
		"QARUN_NATS_URL":                &cfg.Events.NATSURL,
		"QARUN_EVENTS_SUBJECT":          &cfg.Events.Subject,
		"QARUN_PATHS_TEST_CASES":        &cfg.Paths.TestCases,
		"QARUN_PATHS_LOCATORS":          &cfg.Paths.Locators,
		"QARUN_PATHS_REPORTS":           &cfg.Paths.Reports,
		"QARUN_PLANNER_PROMPT_TEMPLATE": &cfg.Planner.PromptTemplate,
	}
	for key, dst := range strs {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	// Support both QARUN_LLM_API_KEY and OPENROUTER_API_KEY for convenience
	if apiKey := os.Getenv("QARUN_LLM_API_KEY"); apiKey != "" {
		cfg.LLM.APIKey = apiKey
	} else if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = os.Getenv("OPENROUTER_API_KEY")
	}

	// Short aliases
	if v := os.Getenv("QARUN_MODE"); v != "" {
		cfg.Planner.Mode = v
	}
	for _, key := range []string{"QARUN_HEADLESS", "QARUN_BROWSER_HEADLESS"} {
		if v := os.Getenv(key); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			cfg.Browser.Headless = b
		}
	}
	if v := os.Getenv("QARUN_BROWSER_ELEMENT_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("QARUN_BROWSER_ELEMENT_TIMEOUT: %w", err)
		}
		cfg.Browser.ElementTimeout = d
	}
	if v := os.Getenv("QARUN_RUNNER_CONCURRENCY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("QARUN_RUNNER_CONCURRENCY: %w", err)
		}
		cfg.Runner.Concurrency = n
	}
	if v := os.Getenv("QARUN_REPORT_FORMATS"); v != "" {
		var formats []string
		for _, f := range strings.Split(v, ",") {
			if f = strings.TrimSpace(f); f != "" {
				formats = append(formats, f)
			}
		}
		cfg.Report.Formats = formats
	}

	return nil
}

// Save saves the configuration to the specified path
func (l *Loader) Save(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// GetConfigPath returns the path where a config file should be created
func (l *Loader) GetConfigPath() string {
	return filepath.Join(l.startDir, ConfigDirName, ConfigFileName)
}

// IsInitialized checks if a config file exists in the project hierarchy
func (l *Loader) IsInitialized() bool {
	_, err := l.findConfigFile()
	return err == nil
}
