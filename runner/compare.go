package runner

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/hairizuan-noorazman/visreg/compare"
	"github.com/hairizuan-noorazman/visreg/storage"
	"github.com/hairizuan-noorazman/visreg/testcase"
)

// compareAll judges every stored screenshot: the sorted union of base
// and current filenames is walked, one-sided files short-circuit to a
// missing verdict without touching the engine, and both-sided files
// dispatch to the engine inside the compare pool. Filenames belonging
// to instances that already failed capture are left out of the union;
// those instances are terminal and must not resurface as missing
// comparisons. Records come back indexed by the union position, so the
// listing order is stable no matter how tasks interleave.
func (r *Runner) compareAll(ctx context.Context, engine compare.Engine, instances []testcase.Instance, captures []CaptureResult) ([]CompareRecord, error) {
	baseFiles, err := r.store.List(ctx, storage.KindBase)
	if err != nil {
		return nil, fmt.Errorf("list base screenshots: %w", err)
	}
	currentFiles, err := r.store.List(ctx, storage.KindCurrent)
	if err != nil {
		return nil, fmt.Errorf("list current screenshots: %w", err)
	}

	captureFailed := make(map[string]bool)
	for _, c := range captures {
		if c.Err != nil {
			captureFailed[c.Instance.Filename()] = true
		}
	}

	inBase := make(map[string]bool, len(baseFiles))
	for _, f := range baseFiles {
		inBase[f] = true
	}
	inCurrent := make(map[string]bool, len(currentFiles))
	for _, f := range currentFiles {
		inCurrent[f] = true
	}

	union := make([]string, 0, len(inBase)+len(inCurrent))
	for f := range inBase {
		if !captureFailed[f] {
			union = append(union, f)
		}
	}
	for f := range inCurrent {
		if !inBase[f] && !captureFailed[f] {
			union = append(union, f)
		}
	}
	sort.Strings(union)

	thresholds := make(map[string]float64, len(instances))
	for _, inst := range instances {
		thresholds[inst.Filename()] = inst.Threshold
	}

	records := make([]CompareRecord, len(union))
	work := NewPool(r.cfg.CompareConcurrency)
	for i, filename := range union {
		i, filename := i, filename
		switch {
		case !inCurrent[filename]:
			records[i] = CompareRecord{
				Filename: filename,
				Result:   compare.Result{Reason: compare.ReasonMissingCurrent},
			}
		case !inBase[filename]:
			records[i] = CompareRecord{
				Filename: filename,
				Result:   compare.Result{Reason: compare.ReasonMissingBase},
			}
		default:
			threshold, known := thresholds[filename]
			if !known {
				threshold = r.cfg.Threshold
			}
			work.Go(func() {
				records[i] = r.compareOne(ctx, engine, filename, threshold)
			})
		}
	}
	work.Wait()

	return records, nil
}

// compareOne runs the engine for a single filename and classifies its
// error, if any: an unreadable reference image reports missing-base,
// everything else is a generic comparison error.
func (r *Runner) compareOne(ctx context.Context, engine compare.Engine, filename string, threshold float64) CompareRecord {
	started := time.Now()
	result, err := engine.Compare(ctx, r.store, filename, compare.Options{
		Threshold: threshold,
		DiffColor: r.cfg.DiffColor,
	})
	rec := CompareRecord{
		Filename: filename,
		Result:   result,
		Elapsed:  time.Since(started),
	}
	if err != nil {
		rec.Err = err
		if errors.Is(err, compare.ErrBaseUnreadable) {
			rec.Result = compare.Result{Reason: compare.ReasonMissingBase}
		} else {
			rec.Result = compare.Result{Reason: compare.ReasonError}
		}
		r.logger.Warn(ctx, "comparison failed", map[string]interface{}{
			"filename": filename,
			"error":    err.Error(),
		})
	}
	return rec
}
