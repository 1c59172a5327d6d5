package cmd

import (
	"fmt"
	"log"
	"os"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/lance13c/qarun/internal/logging"
	"github.com/lance13c/qarun/internal/report"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule <cron-expression> [test-case]",
	Short: "Run test cases on a cron schedule",
	Long: `Schedule runs the test cases (or only the one named) every time the cron
expression fires, until interrupted. A run that is still going when the next
one is due causes that next one to be skipped.

Standard five-field expressions and descriptors are accepted:
  qarun schedule "*/15 * * * *"
  qarun schedule @hourly checkout.txt`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runSchedule,
}

func init() {
	rootCmd.AddCommand(scheduleCmd)
}

func runSchedule(cmd *cobra.Command, args []string) error {
	cfg, err := requireConfig()
	if err != nil {
		return err
	}
	expr := args[0]
	filter := ""
	if len(args) == 2 {
		filter = args[1]
	}

	ctx := cmd.Context()
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	// cron's own messages go to the standard logger, which is redirected to
	// the qarun log file.
	logger := cron.PrintfLogger(log.New(log.Writer(), "cron: ", 0))
	c := cron.New(cron.WithLogger(logger), cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)))

	out := cmd.OutOrStdout()
	_, err = c.AddFunc(expr, func() {
		logging.Info("scheduled run triggered (%s)", expr)
		res, err := a.orch.Run(ctx, filter)
		if err != nil {
			logging.Error("scheduled run failed: %v", err)
			fmt.Fprintf(os.Stderr, "Scheduled run failed: %v\n", err)
			return
		}
		report.PrintSummary(out, res.Report, res.Paths)
	})
	if err != nil {
		return fmt.Errorf("invalid schedule %q: %w", expr, err)
	}

	c.Start()
	fmt.Fprintf(out, "Scheduled %q. Next run at %s. Press Ctrl+C to stop.\n",
		expr, c.Entries()[0].Next.Format("2006-01-02 15:04:05"))

	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}
