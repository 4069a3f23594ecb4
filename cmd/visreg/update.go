package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/hairizuan-noorazman/visreg/runner"
)

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Capture fresh baseline screenshots",
	Long: `Captures a screenshot for every discovered case, viewport, and browser
combination and stores it as the new baseline. No comparison happens;
the exit code is nonzero only when a capture fails.`,
	RunE: runUpdate,
}

func init() {
	rootCmd.AddCommand(updateCmd)
}

func runUpdate(cmd *cobra.Command, args []string) error {
	result, err := executeRun(cmd.Context(), runner.ModeUpdate)
	if err != nil {
		return err
	}
	if result.ExitCode != 0 {
		os.Exit(result.ExitCode)
	}
	return nil
}
