package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/lance13c/qarun/internal/database"
	"github.com/lance13c/qarun/internal/report"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent runs",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

var historyShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show the results of one run",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryShow,
}

var historyStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show totals across all recorded runs",
	Args:  cobra.NoArgs,
	RunE:  runHistoryStats,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyStatsCmd)

	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 10, "number of runs to list")
}

func withHistory(fn func(db *database.DB) error) error {
	cfg, err := requireConfig()
	if err != nil {
		return err
	}
	db, err := openHistory(cfg)
	if err != nil {
		return err
	}
	if db == nil {
		return fmt.Errorf("run history is disabled (history.enabled: false)")
	}
	defer db.Close()
	return fn(db)
}

func runHistory(cmd *cobra.Command, args []string) error {
	return withHistory(func(db *database.DB) error {
		runs, err := db.GetRecentRuns(historyLimit)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded yet.")
			return nil
		}
		printRuns(cmd.OutOrStdout(), runs)
		return nil
	})
}

func printRuns(w io.Writer, runs []database.RunSummary) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"RUN", "WHEN", "TOTAL", "PASSED", "FAILED", "REPORTS"})
	for _, r := range runs {
		failed := fmt.Sprint(r.Failed)
		if r.Failed > 0 {
			failed = text.FgRed.Sprint(failed)
		}
		t.AppendRow(table.Row{
			r.RunID,
			r.GeneratedAt.Local().Format("2006-01-02 15:04:05"),
			r.Total,
			text.FgGreen.Sprint(r.Passed),
			failed,
			strings.Join(r.ReportPaths, "\n"),
		})
	}
	t.Render()
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	return withHistory(func(db *database.DB) error {
		rep, err := db.GetRun(args[0])
		if err != nil {
			return err
		}
		report.PrintSummary(cmd.OutOrStdout(), rep, nil)
		return nil
	})
}

func runHistoryStats(cmd *cobra.Command, args []string) error {
	return withHistory(func(db *database.DB) error {
		stats, err := db.GetStatistics()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, key := range []string{"total_runs", "total_tests", "passed_tests", "total_steps"} {
			fmt.Fprintf(out, "%-13s %v\n", key+":", stats[key])
		}
		return nil
	})
}
