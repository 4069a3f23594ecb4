package runner

import (
	"context"
	"fmt"
	"image/color"
	"time"

	"github.com/hairizuan-noorazman/visreg/browser"
	"github.com/hairizuan-noorazman/visreg/compare"
	"github.com/hairizuan-noorazman/visreg/internal/uuidutil"
	"github.com/hairizuan-noorazman/visreg/logger"
	"github.com/hairizuan-noorazman/visreg/source"
	"github.com/hairizuan-noorazman/visreg/storage"
	"github.com/hairizuan-noorazman/visreg/testcase"
)

// Mode selects what a run does with its captures.
type Mode string

const (
	// ModeTest captures into current and compares against base.
	ModeTest Mode = "test"

	// ModeUpdate captures straight into base, refreshing the baselines.
	// No comparison runs.
	ModeUpdate Mode = "update"
)

// IsValid checks if the mode is one of the known run modes.
func (m Mode) IsValid() bool {
	switch m {
	case ModeTest, ModeUpdate:
		return true
	}
	return false
}

// Config holds the run-level settings the orchestrator needs. The CLI
// builds it from the loaded configuration file.
type Config struct {
	// Browsers lists the adapter names every case is captured under.
	// Empty means the default adapter only.
	Browsers []string

	// BrowserOptions configures every launched browser.
	BrowserOptions browser.Options

	// Viewports maps variant names to window sizes.
	Viewports map[string]testcase.Viewport

	// Engine names the comparison engine for test runs.
	Engine string

	// Threshold is the per-pixel tolerance for cases without an override.
	Threshold float64

	// DiffColor highlights differing pixels in diff artifacts.
	DiffColor color.RGBA

	// Include and Exclude pattern-filter discovered cases by id or title.
	Include []string
	Exclude []string

	// CaptureConcurrency and CompareConcurrency bound the two pools.
	// Values below one run sequentially.
	CaptureConcurrency int
	CompareConcurrency int

	// ReadyDelay and ReadySelector define the post-navigation settle
	// signal applied to every instance.
	ReadyDelay    time.Duration
	ReadySelector string
}

// Result is what a run hands back to its caller. Reporters consume it
// as-is; Failures and CaptureFailures repeat the failing details so a
// renderer does not have to sift through the full list.
type Result struct {
	RunID           string    `json:"run_id"`
	Mode            Mode      `json:"mode"`
	StartedAt       time.Time `json:"started_at"`
	ElapsedMs       int64     `json:"elapsed_ms"`
	Success         bool      `json:"success"`
	ExitCode        int       `json:"exit_code"`
	Outcome         Outcome   `json:"outcome"`
	Failures        []Detail  `json:"failures,omitempty"`
	CaptureFailures []Detail  `json:"capture_failures,omitempty"`
}

// Runner wires sources, browsers, storage and comparison engines into
// one orchestrated run.
type Runner struct {
	store   storage.Store
	sources []source.Source
	engines *compare.Registry
	factory browser.Factory
	logger  logger.Logger
	cfg     Config
}

// New creates a runner with the default engine registry and browser
// factory.
func New(store storage.Store, sources []source.Source, cfg Config, log logger.Logger) *Runner {
	return &Runner{
		store:   store,
		sources: sources,
		engines: compare.DefaultRegistry(),
		factory: browser.DefaultFactory(log),
		logger:  log,
		cfg:     cfg,
	}
}

// SetFactory replaces how browser adapters are constructed. Tests use
// this to substitute fakes for real browser processes.
func (r *Runner) SetFactory(factory browser.Factory) {
	r.factory = factory
}

// Run executes one full run in the given mode and returns its result.
// Setup problems surface as errors before any instance work begins;
// once capture starts, per-instance failures are data in the outcome.
// Browsers and sources are torn down on every exit path.
func (r *Runner) Run(ctx context.Context, mode Mode) (*Result, error) {
	if !mode.IsValid() {
		return nil, fmt.Errorf("unknown run mode %q", mode)
	}

	runID := uuidutil.New().String()
	started := time.Now()
	log := r.logger.WithFields(map[string]interface{}{
		"run_id": runID,
		"mode":   string(mode),
	})
	log.Info(ctx, "run started", nil)

	var engine compare.Engine
	if mode == ModeTest {
		var err error
		engine, err = r.engines.Get(r.cfg.Engine)
		if err != nil {
			return nil, err
		}
	}

	defer r.stopSources(log)

	if mode == ModeTest {
		// Leftovers from the previous run would show up in the compare
		// union as stale entries, so both derived kinds start empty.
		if err := r.store.Cleanup(ctx, storage.KindCurrent, storage.KindDiff); err != nil {
			return nil, fmt.Errorf("clean previous run artifacts: %w", err)
		}
	}

	filter := testcase.NewFilter(r.cfg.Include, r.cfg.Exclude)
	matrix := testcase.Matrix{
		Viewports:        r.cfg.Viewports,
		Browsers:         r.cfg.Browsers,
		DefaultThreshold: r.cfg.Threshold,
	}

	instances, err := discover(ctx, r.sources, filter, matrix, log)
	if err != nil {
		return nil, err
	}

	var outcome Outcome
	if len(instances) == 0 {
		outcome = Aggregate(nil, nil)
	} else {
		pool := browser.NewPool(log)
		defer pool.DisposeAll(context.Background())

		kind := storage.KindCurrent
		if mode == ModeUpdate {
			kind = storage.KindBase
		}

		captures, err := r.captureAll(ctx, pool, instances, kind)
		if err != nil {
			return nil, err
		}

		var records []CompareRecord
		if mode == ModeTest {
			records, err = r.compareAll(ctx, engine, instances, captures)
			if err != nil {
				return nil, err
			}
		}
		outcome = Aggregate(captures, records)
	}

	result := &Result{
		RunID:     runID,
		Mode:      mode,
		StartedAt: started,
		ElapsedMs: time.Since(started).Milliseconds(),
		Success:   outcome.Success(),
		ExitCode:  outcome.ExitCode(),
		Outcome:   outcome,
	}
	for _, d := range outcome.Details {
		switch d.Status {
		case StatusFailed:
			result.Failures = append(result.Failures, d)
		case StatusCaptureFailed:
			result.CaptureFailures = append(result.CaptureFailures, d)
		}
	}

	log.Info(ctx, "run complete", map[string]interface{}{
		"total":            outcome.Total,
		"passed":           outcome.Passed,
		"failed":           len(result.Failures),
		"capture_failures": outcome.CaptureFailures,
		"elapsed_ms":       result.ElapsedMs,
	})
	return result, nil
}

// stopSources stops every source that holds resources. Stop errors are
// logged and swallowed; at this point the run already has its outcome.
func (r *Runner) stopSources(log logger.Logger) {
	ctx := context.Background()
	for _, src := range r.sources {
		stopper, ok := src.(source.Stopper)
		if !ok {
			continue
		}
		if err := stopper.Stop(ctx); err != nil {
			log.Warn(ctx, "failed to stop source", map[string]interface{}{
				"source": src.Name(),
				"error":  err.Error(),
			})
		}
	}
}
