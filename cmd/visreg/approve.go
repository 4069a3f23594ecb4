package main

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hairizuan-noorazman/visreg/internal/runlock"
	"github.com/hairizuan-noorazman/visreg/logger"
	"github.com/hairizuan-noorazman/visreg/storage"
	"github.com/hairizuan-noorazman/visreg/testcase"
)

var (
	approveInclude []string
	approveExclude []string
)

var approveCmd = &cobra.Command{
	Use:   "approve",
	Short: "Promote current screenshots to the baseline",
	Long: `Copies the screenshots captured by the last test run over the baseline,
accepting their differences as intended. Include and exclude patterns
narrow the promotion to matching instance ids.`,
	RunE: runApprove,
}

func init() {
	approveCmd.Flags().StringSliceVar(&approveInclude, "include", nil, "only approve instance ids matching these patterns")
	approveCmd.Flags().StringSliceVar(&approveExclude, "exclude", nil, "never approve instance ids matching these patterns")
	rootCmd.AddCommand(approveCmd)
}

func runApprove(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := LoadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := newLogger(cfg)

	store, err := newStore(cfg)
	if err != nil {
		return err
	}

	include := cfg.Include
	if cmd.Flags().Changed("include") {
		include = approveInclude
	}
	exclude := cfg.Exclude
	if cmd.Flags().Changed("exclude") {
		exclude = approveExclude
	}

	lock, err := runlock.Acquire(filepath.Join(cfg.Storage.BaseDir, lockFile))
	if err != nil {
		return err
	}
	defer lock.Release()

	approved, total, err := approveAll(ctx, store, testcase.NewFilter(include, exclude), log)
	if err != nil {
		return err
	}

	fmt.Printf("Approved %d of %d current screenshots\n", approved, total)
	return nil
}

// approveAll promotes every current screenshot whose instance id passes the
// filter. It returns how many were promoted and how many were listed.
func approveAll(ctx context.Context, store storage.Store, filter *testcase.Filter, log logger.Logger) (int, int, error) {
	files, err := store.List(ctx, storage.KindCurrent)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to list current screenshots: %w", err)
	}
	sort.Strings(files)

	approved := 0
	for _, filename := range files {
		id := strings.TrimSuffix(filename, ".png")
		if !filter.Match(id, "") {
			continue
		}
		if err := promote(ctx, store, filename); err != nil {
			return approved, len(files), err
		}
		log.Debug(ctx, "screenshot approved", map[string]interface{}{
			"filename": filename,
		})
		approved++
	}

	log.Info(ctx, "approve complete", map[string]interface{}{
		"approved": approved,
		"skipped":  len(files) - approved,
	})
	return approved, len(files), nil
}

// promote copies one screenshot from the current bucket over the baseline.
func promote(ctx context.Context, store storage.Store, filename string) error {
	reader, err := store.Read(ctx, storage.KindCurrent, filename)
	if err != nil {
		return fmt.Errorf("failed to read current screenshot %s: %w", filename, err)
	}
	defer reader.Close()

	if _, err := store.Write(ctx, storage.KindBase, filename, reader); err != nil {
		return fmt.Errorf("failed to promote %s to baseline: %w", filename, err)
	}
	return nil
}
