package report

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/lance13c/qarun/internal/types"
	"github.com/lance13c/qarun/internal/ui"
)

// PrintSummary renders a table of test case outcomes followed by the output
// paths.
func PrintSummary(w io.Writer, rep *types.Report, paths []string) {
	styles := ui.NewStyles()

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{
		text.FgHiCyan.Sprint("TEST CASE"),
		text.FgHiCyan.Sprint("RESULT"),
		text.FgHiCyan.Sprint("STEPS"),
		text.FgHiCyan.Sprint("DURATION"),
		text.FgHiCyan.Sprint("ERROR"),
	})

	for _, res := range rep.Results {
		steps := "-"
		if res.Steps != nil {
			steps = fmt.Sprintf("%d", len(res.Steps))
		}
		t.AppendRow(table.Row{
			res.Name,
			styles.Status(res.Pass),
			steps,
			fmt.Sprintf("%dms", res.DurationMs),
			text.WrapSoft(failureReason(res), 60),
		})
	}
	t.Render()

	summary := fmt.Sprintf("%d passed, %d failed", rep.Passed(), rep.Failed())
	if rep.Failed() > 0 {
		fmt.Fprintln(w, styles.ErrorBox.Render(summary))
	} else {
		fmt.Fprintln(w, styles.SuccessBox.Render(summary))
	}

	for _, p := range paths {
		fmt.Fprintf(w, "%s %s\n", text.FgHiBlue.Sprint("Report generated:"), p)
	}
}

// failureReason is the test-level error or, failing that, the error of the
// failing step.
func failureReason(res types.TestResult) string {
	if res.Error != "" {
		return res.Error
	}
	for _, s := range res.Steps {
		if !s.Failed() {
			continue
		}
		if s.Action == "" {
			return fmt.Sprintf("step %d (goal %q): %s", s.Step, s.Goal, s.Error)
		}
		return fmt.Sprintf("step %d (%s): %s", s.Step, s.Action, s.Error)
	}
	return ""
}
