// Package report renders run results for terminals and files.
package report

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/hairizuan-noorazman/visreg/compare"
	"github.com/hairizuan-noorazman/visreg/runner"
)

// TerminalConfig holds configuration for terminal output.
type TerminalConfig struct {
	Writer io.Writer
	Quiet  bool // print the one-line summary only
}

// DefaultTerminalConfig returns the default terminal configuration.
func DefaultTerminalConfig(w io.Writer) *TerminalConfig {
	return &TerminalConfig{
		Writer: w,
	}
}

// RenderTerminal writes the run summary to the configured writer.
func RenderTerminal(cfg *TerminalConfig, result *runner.Result, artifactPath string) error {
	if cfg == nil || cfg.Writer == nil {
		return fmt.Errorf("writer is required")
	}
	if result == nil {
		return fmt.Errorf("result is required")
	}

	w := cfg.Writer
	bold := color.New(color.Bold)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)
	red := color.New(color.FgRed)

	if cfg.Quiet {
		fmt.Fprintln(w, summaryLine(result, green, red))
		return nil
	}

	o := result.Outcome

	fmt.Fprintln(w)
	bold.Fprintln(w, "=== Visual Regression Report ===")
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Run:  %s\n", result.RunID)
	fmt.Fprintf(w, "Mode: %s\n", result.Mode)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Results:")
	fmt.Fprintf(w, "  Total:            %d\n", o.Total)
	fmt.Fprintf(w, "  Passed:           %d\n", o.Passed)
	fmt.Fprintf(w, "  Pixel Diffs:      %d\n", o.FailedDiffs)
	fmt.Fprintf(w, "  Missing Current:  %d\n", o.FailedMissingCurrent)
	fmt.Fprintf(w, "  Missing Base:     %d\n", o.FailedMissingBase)
	fmt.Fprintf(w, "  Compare Errors:   %d\n", o.FailedErrors)
	fmt.Fprintf(w, "  Capture Failures: %d\n", o.CaptureFailures)
	fmt.Fprintln(w)

	if len(result.Failures) > 0 {
		red.Fprintln(w, "Failures:")
		for _, d := range result.Failures {
			fmt.Fprintf(w, "  %s: %s\n", d.ID, failureText(d))
		}
		fmt.Fprintln(w)
	}

	if len(result.CaptureFailures) > 0 {
		yellow.Fprintln(w, "Capture Failures:")
		for _, d := range result.CaptureFailures {
			fmt.Fprintf(w, "  %s: %s\n", d.ID, d.Error)
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Artifacts: %s\n", artifactPath)
	fmt.Fprintln(w, summaryLine(result, green, red))

	return nil
}

// summaryLine builds the single-line verdict shared by quiet and full
// output.
func summaryLine(result *runner.Result, green, red *color.Color) string {
	o := result.Outcome
	failed := o.FailedDiffs + o.FailedMissingCurrent + o.FailedMissingBase + o.FailedErrors

	verdict := green.Sprint("PASS")
	if !result.Success {
		verdict = red.Sprint("FAIL")
	}
	return fmt.Sprintf("%s: %d passed, %d failed, %d capture failures (%s)",
		verdict, o.Passed, failed, o.CaptureFailures, formatDuration(result.ElapsedMs))
}

// failureText describes one failed comparison: the reason, plus the diff
// percentage for pixel diffs and the underlying message for hard errors.
func failureText(d runner.Detail) string {
	switch {
	case d.Reason == compare.ReasonPixelDiff:
		return fmt.Sprintf("%s (%.2f%% of pixels differ)", d.Reason, d.DiffPercentage)
	case d.Error != "":
		return fmt.Sprintf("%s (%s)", d.Reason, d.Error)
	default:
		return string(d.Reason)
	}
}

// formatDuration formats elapsed milliseconds in a human-readable way.
func formatDuration(ms int64) string {
	if ms < 1000 {
		return fmt.Sprintf("%dms", ms)
	}
	secs := float64(ms) / 1000.0
	if secs < 60 {
		return fmt.Sprintf("%.1fs", secs)
	}
	return fmt.Sprintf("%.1fm", secs/60.0)
}
