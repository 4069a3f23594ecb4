package runner

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/hairizuan-noorazman/visreg/browser"
	"github.com/hairizuan-noorazman/visreg/storage"
	"github.com/hairizuan-noorazman/visreg/testcase"
)

// captureAll screenshots every instance inside the capture pool and
// writes the bytes under the given storage kind. The browser pool is
// warmed with one reference per distinct browser first, so a browser
// that cannot launch aborts the run before any capture task starts.
// After that point failures only ever degrade their own instance.
func (r *Runner) captureAll(ctx context.Context, pool *browser.Pool, instances []testcase.Instance, kind storage.Kind) ([]CaptureResult, error) {
	releaseWarm, err := r.warmAdapters(ctx, pool, instances)
	if err != nil {
		return nil, err
	}
	defer releaseWarm()

	results := make([]CaptureResult, len(instances))
	work := NewPool(r.cfg.CaptureConcurrency)
	for i, inst := range instances {
		i, inst := i, inst
		work.Go(func() {
			started := time.Now()
			captureErr := r.captureInstance(ctx, pool, inst, kind)
			results[i] = CaptureResult{
				Instance: inst,
				Elapsed:  time.Since(started),
				Err:      captureErr,
			}
			if captureErr != nil {
				r.logger.Warn(ctx, "capture failed", map[string]interface{}{
					"instance": inst.ID,
					"error":    captureErr.Error(),
				})
			}
		})
	}
	work.Wait()
	return results, nil
}

// warmAdapters acquires one reference per distinct browser in the
// instance set and returns a function releasing them all. Holding these
// references keeps each browser process alive across the whole capture
// phase instead of cycling it per instance.
func (r *Runner) warmAdapters(ctx context.Context, pool *browser.Pool, instances []testcase.Instance) (func(), error) {
	seen := make(map[string]bool)
	names := make([]string, 0, 1)
	for _, inst := range instances {
		if seen[inst.Browser] {
			continue
		}
		seen[inst.Browser] = true
		names = append(names, inst.Browser)
	}
	sort.Strings(names)

	releases := make([]func(), 0, len(names))
	releaseAll := func() {
		for _, release := range releases {
			release()
		}
	}

	for _, name := range names {
		_, release, err := pool.Acquire(ctx, name, r.cfg.BrowserOptions, r.factory)
		if err != nil {
			releaseAll()
			return nil, err
		}
		releases = append(releases, release)
	}
	return releaseAll, nil
}

// captureInstance runs the full capture sequence for one instance: open
// a fresh page, size the viewport before navigating, wait for the page
// to settle, play the interactions in order, stabilize the DOM, shoot
// the target and store the bytes.
func (r *Runner) captureInstance(ctx context.Context, pool *browser.Pool, inst testcase.Instance, kind storage.Kind) error {
	adapter, release, err := pool.Acquire(ctx, inst.Browser, r.cfg.BrowserOptions, r.factory)
	if err != nil {
		return err
	}
	defer release()

	page, err := adapter.OpenPage(ctx, "")
	if err != nil {
		return fmt.Errorf("open page: %w", err)
	}
	defer func() {
		if closeErr := page.Close(context.Background()); closeErr != nil {
			r.logger.Warn(ctx, "failed to close page", map[string]interface{}{
				"instance": inst.ID,
				"error":    closeErr.Error(),
			})
		}
	}()

	if err := page.SetViewport(ctx, inst.Viewport.Width, inst.Viewport.Height); err != nil {
		return fmt.Errorf("set viewport: %w", err)
	}
	if err := page.Navigate(ctx, inst.URL); err != nil {
		return fmt.Errorf("navigate to %s: %w", inst.URL, err)
	}
	if r.cfg.ReadySelector != "" {
		if err := page.WaitVisible(ctx, r.cfg.ReadySelector); err != nil {
			return fmt.Errorf("wait for %s: %w", r.cfg.ReadySelector, err)
		}
	}
	if r.cfg.ReadyDelay > 0 {
		if err := page.WaitDelay(ctx, r.cfg.ReadyDelay); err != nil {
			return fmt.Errorf("ready delay: %w", err)
		}
	}

	for i, step := range inst.Interactions {
		if err := applyInteraction(ctx, page, step); err != nil {
			return fmt.Errorf("interaction %d (%s): %w", i, step.Action, err)
		}
	}

	if !inst.DisableCSSInjection {
		if err := page.AddStyle(ctx, stabilizeCSS(inst.MaskSelectors)); err != nil {
			return fmt.Errorf("inject styles: %w", err)
		}
	}

	shot, err := page.Capture(ctx, browser.CaptureOptions{Selector: inst.Target})
	if err != nil {
		return fmt.Errorf("capture: %w", err)
	}

	if _, err := r.store.Write(ctx, kind, inst.Filename(), bytes.NewReader(shot.Data)); err != nil {
		return fmt.Errorf("store screenshot: %w", err)
	}

	r.logger.Debug(ctx, "instance captured", map[string]interface{}{
		"instance": inst.ID,
		"kind":     string(kind),
		"width":    shot.Meta.Width,
		"height":   shot.Meta.Height,
	})
	return nil
}

// applyInteraction dispatches one scripted step to the page. Steps run
// strictly in order; each blocks until the page settles.
func applyInteraction(ctx context.Context, page browser.Page, step testcase.Interaction) error {
	switch step.Action {
	case testcase.ActionClick:
		return page.Click(ctx, step.Selector)
	case testcase.ActionType:
		return page.Type(ctx, step.Selector, step.Text)
	case testcase.ActionHover:
		return page.Hover(ctx, step.Selector)
	case testcase.ActionPress:
		return page.Press(ctx, step.Key)
	case testcase.ActionScroll:
		return page.ScrollTo(ctx, step.Y)
	case testcase.ActionWait:
		return page.WaitDelay(ctx, time.Duration(step.DelayMs)*time.Millisecond)
	default:
		return fmt.Errorf("unsupported action %q", step.Action)
	}
}

// stabilizeCSS builds the stylesheet injected before every capture:
// animations, transitions and the text caret are frozen so repeated
// captures of the same page produce the same pixels, and masked
// elements are hidden outright.
func stabilizeCSS(maskSelectors []string) string {
	var b strings.Builder
	b.WriteString("*, *::before, *::after { animation: none !important; transition: none !important; caret-color: transparent !important; }")
	if len(maskSelectors) > 0 {
		b.WriteString("\n")
		b.WriteString(strings.Join(maskSelectors, ", "))
		b.WriteString(" { visibility: hidden !important; }")
	}
	return b.String()
}
