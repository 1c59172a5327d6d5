package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/lance13c/qarun/internal/events"
	"github.com/lance13c/qarun/internal/orchestrator"
	"github.com/lance13c/qarun/internal/report"
	"github.com/lance13c/qarun/internal/testcase"
	"github.com/lance13c/qarun/internal/ui"
)

var (
	runDryRun   bool
	runMode     string
	runNoTUI    bool
	runFormats  []string
	runParallel int
)

var runCmd = &cobra.Command{
	Use:   "run [test-case]",
	Short: "Plan and execute test cases",
	Long: `Run reads every test case in the test cases directory (or only the one
named), asks the reasoning service for a plan, executes it and writes the
reports.

Examples:
  qarun run
  qarun run login.txt
  qarun run --mode step login.txt
  qarun run --dry-run`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "synthesize and print plans without executing them")
	runCmd.Flags().StringVar(&runMode, "mode", "", "planner mode: batch or step (overrides config)")
	runCmd.Flags().BoolVar(&runNoTUI, "no-tui", false, "disable the live progress display")
	runCmd.Flags().StringSliceVar(&runFormats, "format", nil, "report formats: json, html, xlsx (overrides config)")
	runCmd.Flags().IntVarP(&runParallel, "parallel", "j", 0, "number of test cases to run at once (overrides config)")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := requireConfig()
	if err != nil {
		return err
	}
	if runMode != "" {
		cfg.Planner.Mode = runMode
	}
	if len(runFormats) > 0 {
		cfg.Report.Formats = runFormats
	}
	if runParallel > 0 {
		cfg.Runner.Concurrency = runParallel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	filter := ""
	if len(args) == 1 {
		filter = args[0]
	}

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	var progress *ui.Progress
	var sinks []events.Sink
	if !runDryRun && !runNoTUI && !verbose && term.IsTerminal(int(os.Stdout.Fd())) {
		progress = ui.StartProgress("qarun "+cfg.Planner.Mode+" run", os.Stdout)
		sinks = append(sinks, progress)
	}

	a, err := newApp(ctx, cfg, sinks...)
	if err != nil {
		if progress != nil {
			progress.Stop()
		}
		return err
	}
	defer a.Close()

	if runDryRun {
		return dryRun(cmd, a.orch, filter)
	}

	res, err := a.orch.Run(ctx, filter)
	if progress != nil {
		if err != nil {
			progress.Stop()
		} else {
			progress.Wait()
		}
	}
	if err != nil {
		if errors.Is(err, testcase.ErrNoMatch) {
			fmt.Fprintf(out, "No test case found with name: %s\n", filter)
			return errTestsFailed
		}
		return err
	}

	report.PrintSummary(out, res.Report, res.Paths)
	a.printUsage()

	if res.Report.Failed() > 0 {
		return errTestsFailed
	}
	return nil
}

func dryRun(cmd *cobra.Command, orch *orchestrator.Orchestrator, filter string) error {
	cases, err := orch.LoadCases(filter)
	if err != nil {
		if errors.Is(err, testcase.ErrNoMatch) {
			fmt.Fprintf(cmd.OutOrStdout(), "No test case found with name: %s\n", filter)
			return errTestsFailed
		}
		return err
	}

	planned, err := orch.DryRun(cmd.Context(), cases)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(planned); err != nil {
		return err
	}

	for _, p := range planned {
		if p.Error != "" {
			return errTestsFailed
		}
	}
	return nil
}
