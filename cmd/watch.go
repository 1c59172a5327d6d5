package cmd

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/lance13c/qarun/internal/logging"
	"github.com/lance13c/qarun/internal/report"
	"github.com/lance13c/qarun/internal/testcase"
	"github.com/lance13c/qarun/internal/types"
	"github.com/lance13c/qarun/internal/watcher"
)

var watchDebounce time.Duration

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Rerun test cases whenever their files change",
	Long: `Watch monitors the test cases directory and runs every *.txt file that is
created or saved, once it has stopped changing for the debounce period.

Example:
  qarun watch --debounce 1s`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", watcher.DefaultDebounce, "quiet period before a changed file is run")
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := requireConfig()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	dir := cfg.Resolve(cfg.Paths.TestCases)
	fw, err := watcher.NewFileWatcher(dir, testcase.Extension, watchDebounce)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fw.SetChangeCallback(func(files []string) error {
		var cases []types.TestCase
		for _, name := range files {
			tc, err := testcase.LoadFile(filepath.Join(dir, name))
			if err != nil {
				// removed or renamed between the event and now
				logging.Warn("skipping %s: %v", name, err)
				continue
			}
			cases = append(cases, tc)
		}
		if len(cases) == 0 {
			return nil
		}

		fmt.Fprintf(out, "\nChanged: %v\n", files)
		res, err := a.orch.RunCases(ctx, cases)
		if err != nil {
			return err
		}
		report.PrintSummary(out, res.Report, res.Paths)
		return nil
	})

	fmt.Fprintf(out, "Watching %s for changes. Press Ctrl+C to stop.\n", dir)
	err = fw.Start(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
