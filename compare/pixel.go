package compare

import (
	"context"
	"fmt"

	"github.com/hairizuan-noorazman/visreg/storage"
)

// PixelEngine compares screenshots with a per-pixel color distance
// tolerance, absorbing anti-aliasing and sub-pixel rendering noise that
// the exact engine would flag.
type PixelEngine struct{}

// NewPixelEngine creates a tolerance-based pixel comparison engine.
func NewPixelEngine() *PixelEngine {
	return &PixelEngine{}
}

// Name identifies this engine in the registry.
func (e *PixelEngine) Name() string {
	return EnginePixelmatch
}

// Compare counts pixels whose color distance exceeds opts.Threshold.
// The threshold widens what counts as "the same pixel"; it never
// excuses pixels that do differ, so any nonzero difference fails.
func (e *PixelEngine) Compare(ctx context.Context, store storage.Store, filename string, opts Options) (Result, error) {
	baseImg, err := readImage(ctx, store, storage.KindBase, filename)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrBaseUnreadable, err)
	}
	currentImg, err := readImage(ctx, store, storage.KindCurrent, filename)
	if err != nil {
		return Result{}, fmt.Errorf("reading current image %s: %w", filename, err)
	}

	return diffImages(ctx, store, filename, baseImg, currentImg, opts)
}
