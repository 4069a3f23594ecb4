package report

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hairizuan-noorazman/visreg/compare"
	"github.com/hairizuan-noorazman/visreg/runner"
)

func init() {
	// Keep rendered output free of escape codes regardless of the
	// environment the tests run in.
	color.NoColor = true
}

func fixtureResult() *runner.Result {
	return &runner.Result{
		RunID:     "3f1c9a52-8e3d-4a76-9f0c-0d2ab95c7b10",
		Mode:      runner.ModeTest,
		StartedAt: time.Date(2025, 11, 3, 10, 30, 0, 0, time.UTC),
		ElapsedMs: 4200,
		Success:   false,
		ExitCode:  1,
		Outcome: runner.Outcome{
			Total:             4,
			Passed:            1,
			FailedDiffs:       1,
			FailedMissingBase: 1,
			CaptureFailures:   1,
			Details: []runner.Detail{
				{ID: "about-laptop", Status: runner.StatusFailed, Reason: compare.ReasonMissingBase},
				{ID: "contact-laptop", Status: runner.StatusCaptureFailed, Error: "navigate to http://app.test/contact: context deadline exceeded", CaptureMs: 30000},
				{ID: "home-laptop", Status: runner.StatusPassed, CaptureMs: 310, CompareMs: 42},
				{ID: "pricing-laptop", Status: runner.StatusFailed, Reason: compare.ReasonPixelDiff, DiffPercentage: 12.5, CaptureMs: 280, CompareMs: 55},
			},
		},
		Failures: []runner.Detail{
			{ID: "about-laptop", Status: runner.StatusFailed, Reason: compare.ReasonMissingBase},
			{ID: "pricing-laptop", Status: runner.StatusFailed, Reason: compare.ReasonPixelDiff, DiffPercentage: 12.5, CaptureMs: 280, CompareMs: 55},
		},
		CaptureFailures: []runner.Detail{
			{ID: "contact-laptop", Status: runner.StatusCaptureFailed, Error: "navigate to http://app.test/contact: context deadline exceeded", CaptureMs: 30000},
		},
	}
}

func passingResult() *runner.Result {
	return &runner.Result{
		RunID:     "b2a7e070-55c3-4b2f-8f5d-6f2f4f5c9e21",
		Mode:      runner.ModeTest,
		ElapsedMs: 900,
		Success:   true,
		ExitCode:  0,
		Outcome: runner.Outcome{
			Total:  2,
			Passed: 2,
			Details: []runner.Detail{
				{ID: "home-laptop", Status: runner.StatusPassed},
				{ID: "pricing-laptop", Status: runner.StatusPassed},
			},
		},
	}
}

func TestRenderTerminal_FullReport(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultTerminalConfig(&buf)

	err := RenderTerminal(cfg, fixtureResult(), "/tmp/visreg")
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "=== Visual Regression Report ===")
	assert.Contains(t, out, "Run:  3f1c9a52-8e3d-4a76-9f0c-0d2ab95c7b10")
	assert.Contains(t, out, "Mode: test")
	assert.Contains(t, out, "Total:            4")
	assert.Contains(t, out, "Passed:           1")
	assert.Contains(t, out, "Pixel Diffs:      1")
	assert.Contains(t, out, "Missing Base:     1")
	assert.Contains(t, out, "Capture Failures: 1")
	assert.Contains(t, out, "pricing-laptop: pixel-diff (12.50% of pixels differ)")
	assert.Contains(t, out, "about-laptop: missing-base")
	assert.Contains(t, out, "contact-laptop: navigate to http://app.test/contact: context deadline exceeded")
	assert.Contains(t, out, "Artifacts: /tmp/visreg")
	assert.Contains(t, out, "FAIL: 1 passed, 2 failed, 1 capture failures (4.2s)")
}

func TestRenderTerminal_PassingRunOmitsFailureSections(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultTerminalConfig(&buf)

	err := RenderTerminal(cfg, passingResult(), "/tmp/visreg")
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "PASS: 2 passed, 0 failed, 0 capture failures")

	// The counts block always mentions capture failures; the dedicated
	// sections start on their own line and must be absent.
	assert.NotContains(t, out, "\nFailures:\n")
	assert.NotContains(t, out, "\nCapture Failures:\n")
}

func TestRenderTerminal_Quiet(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultTerminalConfig(&buf)
	cfg.Quiet = true

	err := RenderTerminal(cfg, fixtureResult(), "/tmp/visreg")
	require.NoError(t, err)

	out := buf.String()
	assert.Equal(t, "FAIL: 1 passed, 2 failed, 1 capture failures (4.2s)\n", out)
}

func TestRenderTerminal_RequiresWriterAndResult(t *testing.T) {
	err := RenderTerminal(&TerminalConfig{}, fixtureResult(), "")
	assert.Error(t, err)

	var buf bytes.Buffer
	err = RenderTerminal(DefaultTerminalConfig(&buf), nil, "")
	assert.Error(t, err)
}

func TestWriteJSON(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")

	err := WriteJSON(dir, fixtureResult())
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, OutcomeFile))
	require.NoError(t, err)

	var decoded runner.Result
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "3f1c9a52-8e3d-4a76-9f0c-0d2ab95c7b10", decoded.RunID)
	assert.Equal(t, 4, decoded.Outcome.Total)
	assert.Equal(t, 1, decoded.ExitCode)
	assert.Len(t, decoded.Outcome.Details, 4)

	// Indented output, not a single line.
	assert.Contains(t, string(data), "\n  \"run_id\"")
}

func TestWriteJSON_RequiresResult(t *testing.T) {
	err := WriteJSON(t.TempDir(), nil)
	assert.Error(t, err)
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		name string
		ms   int64
		want string
	}{
		{name: "milliseconds", ms: 450, want: "450ms"},
		{name: "seconds", ms: 4200, want: "4.2s"},
		{name: "minutes", ms: 150000, want: "2.5m"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, formatDuration(tt.ms))
		})
	}
}
