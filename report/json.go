package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hairizuan-noorazman/visreg/runner"
)

// OutcomeFile is the filename the JSON snapshot is written under. The
// review server serves the same file back.
const OutcomeFile = "outcome.json"

// WriteJSON writes the run result as indented JSON to <dir>/outcome.json.
func WriteJSON(dir string, result *runner.Result) error {
	if result == nil {
		return fmt.Errorf("result is required")
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory %s: %w", dir, err)
	}

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	path := filepath.Join(dir, OutcomeFile)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write result to %s: %w", path, err)
	}

	return nil
}
