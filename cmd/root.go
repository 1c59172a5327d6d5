package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/lance13c/qarun/internal/config"
	"github.com/lance13c/qarun/internal/logging"
)

var (
	cfgFile     string
	projectDir  string
	verbose     bool
	qarunConfig *config.Config
	configErr   error
)

// errTestsFailed makes the process exit non-zero without printing anything
// beyond the summary that was already shown.
var errTestsFailed = errors.New("one or more test cases failed")

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "qarun",
	Short: "qarun - natural-language test automation",
	Long: `qarun turns plain-language test cases into executable plans with a
reasoning service, then runs them against a real browser, databases and
HTTP APIs, producing JSON, HTML and XLSX reports.

Test cases live in test_cases/*.txt, locator catalogs in Locators/*.json.
Use 'qarun run' to execute them.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command with a context cancelled on SIGINT/SIGTERM
// and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer logging.GetLogger().Close()

	err := rootCmd.ExecuteContext(ctx)
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errTestsFailed):
		return 1
	case errors.Is(err, context.Canceled):
		fmt.Fprintln(os.Stderr, "Interrupted.")
		return 130
	default:
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .qarun/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "V", false, "verbose output")
	rootCmd.PersistentFlags().StringVarP(&projectDir, "project", "p", ".", "project directory")
}

// initConfig sets up logging and reads in the config file and ENV variables.
func initConfig() {
	startTime := time.Now()

	if err := logging.Initialize(projectDir); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Failed to initialize logging: %v\n", err)
	} else {
		logging.RedirectStandardLog()
	}

	if verbose {
		logging.GetLogger().SetLevel(logging.DEBUG)
		logging.GetLogger().SetMirror(os.Stderr)
	}

	loader := config.NewLoader(projectDir)
	if cfgFile != "" {
		loader.SetConfigFile(cfgFile)
	}

	qarunConfig, configErr = loader.Load()
	if configErr != nil {
		logging.Warn("Failed to load config: %v", configErr)
		return
	}

	logging.Debug("Config loaded in %v: %s", time.Since(startTime), qarunConfig)
}

// requireConfig returns the loaded config or the error that prevented it.
func requireConfig() (*config.Config, error) {
	if configErr != nil {
		return nil, configErr
	}
	if qarunConfig == nil {
		return nil, fmt.Errorf("configuration not loaded")
	}
	return qarunConfig, nil
}
