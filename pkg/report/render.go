package report

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"
)

var (
	readyStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	failedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	skippedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	verdictStyle = lipgloss.NewStyle().Bold(true)
)

// RenderJSON writes the machine-readable report.
func (r *Report) RenderJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// RenderText writes the human-readable report: one line per resource
// in stage order, failure messages verbatim, then the verdict.
func (r *Report) RenderText(w io.Writer) error {
	stage := -1
	for _, res := range r.Resources {
		if res.Stage != stage {
			stage = res.Stage
			fmt.Fprintf(w, "Stage %d:\n", stage)
		}
		// Pad before styling: ANSI escapes would break %-12s alignment.
		label := styleFor(res.State).Render(fmt.Sprintf("%-12s", res.State))
		line := fmt.Sprintf("  %s %s", label, res.Resource)
		if res.Outcome != "" && res.Outcome != res.State {
			line += fmt.Sprintf(" (%s)", res.Outcome)
		}
		fmt.Fprintln(w, line)
		if res.Message != "" && res.State != StateReady {
			fmt.Fprintf(w, "               %s\n", res.Message)
		}
	}

	if r.Fatal != "" {
		fmt.Fprintln(w, failedStyle.Render("Fatal: "+r.Fatal))
	}
	if r.DryRun {
		fmt.Fprintln(w, skippedStyle.Render("(dry run: no changes were persisted)"))
	}
	elapsed := r.FinishedAt.Sub(r.StartedAt).Round(10 * time.Millisecond)
	fmt.Fprintln(w, verdictStyle.Render(fmt.Sprintf("Verdict: %s (%s)", r.Verdict, elapsed)))
	return nil
}

func styleFor(state string) lipgloss.Style {
	switch state {
	case StateReady:
		return readyStyle
	case StateFailed, StateTimedOut:
		return failedStyle
	default:
		return skippedStyle
	}
}
