package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/hairizuan-noorazman/visreg/runner"
)

var testCmd = &cobra.Command{
	Use:   "test",
	Short: "Capture screenshots and compare them against the baseline",
	Long: `Discovers test cases from the configured sources, captures a screenshot
for every case, viewport, and browser combination, and compares each one
against the approved baseline. Exits nonzero when any comparison fails.`,
	RunE: runTest,
}

func init() {
	rootCmd.AddCommand(testCmd)
}

func runTest(cmd *cobra.Command, args []string) error {
	result, err := executeRun(cmd.Context(), runner.ModeTest)
	if err != nil {
		return err
	}
	if result.ExitCode != 0 {
		os.Exit(result.ExitCode)
	}
	return nil
}
