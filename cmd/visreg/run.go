package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hairizuan-noorazman/visreg/browser"
	"github.com/hairizuan-noorazman/visreg/internal/runlock"
	"github.com/hairizuan-noorazman/visreg/logger"
	"github.com/hairizuan-noorazman/visreg/report"
	"github.com/hairizuan-noorazman/visreg/runner"
	"github.com/hairizuan-noorazman/visreg/source"
	"github.com/hairizuan-noorazman/visreg/source/crawl"
	"github.com/hairizuan-noorazman/visreg/source/storybook"
	"github.com/hairizuan-noorazman/visreg/source/urllist"
	"github.com/hairizuan-noorazman/visreg/storage"
)

// lockFile guards the storage root against concurrent runs.
const lockFile = "run.lock"

// executeRun drives one full capture run and writes its artifacts. The
// run lock is held for the whole pipeline and released before the caller
// decides the process exit code.
func executeRun(ctx context.Context, mode runner.Mode) (*runner.Result, error) {
	cfg, err := LoadConfig(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if flagQuiet {
		cfg.Quiet = true
	}

	log := newLogger(cfg)

	store, err := newStore(cfg)
	if err != nil {
		return nil, err
	}

	sources, err := buildSources(cfg, log)
	if err != nil {
		return nil, err
	}

	lock, err := runlock.Acquire(filepath.Join(cfg.Storage.BaseDir, lockFile))
	if err != nil {
		return nil, err
	}
	defer lock.Release()

	r := runner.New(store, sources, buildRunnerConfig(cfg), log)

	result, err := r.Run(ctx, mode)
	if err != nil {
		return nil, err
	}

	if err := report.WriteJSON(cfg.Storage.BaseDir, result); err != nil {
		return nil, err
	}

	termCfg := report.DefaultTerminalConfig(os.Stdout)
	termCfg.Quiet = cfg.Quiet
	if err := report.RenderTerminal(termCfg, result, cfg.Storage.BaseDir); err != nil {
		return nil, err
	}

	return result, nil
}

// newLogger builds the run logger. Quiet runs only surface errors.
func newLogger(cfg *Config) logger.Logger {
	level := cfg.Log.Level
	if cfg.Quiet {
		level = "error"
	}
	return logger.NewLogrusLogger(level, cfg.Log.Format)
}

// newStore builds the screenshot store from configuration.
func newStore(cfg *Config) (storage.Store, error) {
	store, err := storage.New(cfg.Storage.Type, storage.Config{
		BaseDir:       cfg.Storage.BaseDir,
		Bucket:        cfg.Storage.Bucket,
		Region:        cfg.Storage.Region,
		Prefix:        cfg.Storage.Prefix,
		PresignExpiry: cfg.Storage.PresignExpiry,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	return store, nil
}

// buildSources constructs the configured test-case sources. Entries are
// dispatched on their type tag alone.
func buildSources(cfg *Config, log logger.Logger) ([]source.Source, error) {
	sources := make([]source.Source, 0, len(cfg.Sources))
	for i, sc := range cfg.Sources {
		src, err := buildSource(sc, log)
		if err != nil {
			return nil, fmt.Errorf("sources[%d]: %w", i, err)
		}
		sources = append(sources, src)
	}
	return sources, nil
}

func buildSource(sc SourceConfig, log logger.Logger) (source.Source, error) {
	switch sc.Type {
	case "storybook":
		return storybook.New(storybook.Config{URL: sc.URL}, log)
	case "urls":
		return urllist.New(urllist.Config{Path: sc.Path}, log)
	case "crawl":
		return crawl.New(crawl.Config{StartURL: sc.StartURL, MaxPages: sc.MaxPages}, log)
	default:
		return nil, fmt.Errorf("unknown source type %q", sc.Type)
	}
}

// buildRunnerConfig maps file configuration onto the runner.
func buildRunnerConfig(cfg *Config) runner.Config {
	return runner.Config{
		Browsers: cfg.Browser.Adapters,
		BrowserOptions: browser.Options{
			Headless:          cfg.Browser.Headless,
			ExecPath:          cfg.Browser.ExecPath,
			NoSandbox:         cfg.Browser.NoSandbox,
			Args:              cfg.Browser.Args,
			NavigationTimeout: cfg.Browser.NavigationTimeout,
			WaitTimeout:       cfg.Browser.WaitTimeout,
		},
		Viewports:          cfg.Viewports,
		Engine:             cfg.Engine,
		Threshold:          cfg.Threshold,
		DiffColor:          cfg.DiffColor,
		Include:            cfg.Include,
		Exclude:            cfg.Exclude,
		CaptureConcurrency: cfg.Concurrency.Capture,
		CompareConcurrency: cfg.Concurrency.Compare,
		ReadyDelay:         cfg.Ready.Delay,
		ReadySelector:      cfg.Ready.Selector,
	}
}
