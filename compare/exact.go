package compare

import (
	"bytes"
	"context"
	"fmt"
	"image/png"

	"github.com/hairizuan-noorazman/visreg/storage"
)

// ExactEngine requires reference and current screenshots to be
// pixel-identical. Byte-identical files match without decoding; files
// that differ on bytes are decoded and compared pixel by pixel, so a
// re-encoded but visually identical screenshot still passes.
type ExactEngine struct{}

// NewExactEngine creates an exact comparison engine.
func NewExactEngine() *ExactEngine {
	return &ExactEngine{}
}

// Name identifies this engine in the registry.
func (e *ExactEngine) Name() string {
	return EngineExact
}

// Compare reports a match only when every pixel is identical. The
// per-pixel threshold in opts is ignored; any deviation is a difference.
func (e *ExactEngine) Compare(ctx context.Context, store storage.Store, filename string, opts Options) (Result, error) {
	baseData, err := readBytes(ctx, store, storage.KindBase, filename)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrBaseUnreadable, err)
	}
	currentData, err := readBytes(ctx, store, storage.KindCurrent, filename)
	if err != nil {
		return Result{}, fmt.Errorf("reading current image %s: %w", filename, err)
	}

	if bytes.Equal(baseData, currentData) {
		return Result{Match: true}, nil
	}

	baseImg, err := png.Decode(bytes.NewReader(baseData))
	if err != nil {
		return Result{}, fmt.Errorf("%w: decoding %s: %v", ErrBaseUnreadable, filename, err)
	}
	currentImg, err := png.Decode(bytes.NewReader(currentData))
	if err != nil {
		return Result{}, fmt.Errorf("decoding current image %s: %w", filename, err)
	}

	opts.Threshold = 0
	return diffImages(ctx, store, filename, baseImg, currentImg, opts)
}
