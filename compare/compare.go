package compare

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"

	"github.com/orisano/pixelmatch"

	"github.com/hairizuan-noorazman/visreg/storage"
)

var (
	// ErrBaseUnreadable is returned when the reference image is missing or
	// cannot be decoded. The compare stage degrades such failures to a
	// missing-base result instead of a generic error.
	ErrBaseUnreadable = errors.New("reference image could not be loaded")
)

// Reason explains why a comparison did not pass. An empty reason means the
// images matched.
type Reason string

const (
	ReasonNone           Reason = ""
	ReasonPixelDiff      Reason = "pixel-diff"
	ReasonMissingCurrent Reason = "missing-current"
	ReasonMissingBase    Reason = "missing-base"
	ReasonError          Reason = "error"
)

// IsValid checks if the reason is one of the known categories.
func (r Reason) IsValid() bool {
	switch r {
	case ReasonNone, ReasonPixelDiff, ReasonMissingCurrent, ReasonMissingBase, ReasonError:
		return true
	}
	return false
}

// Result is the outcome of comparing one current capture against its base.
// Match is true exactly when Reason is empty. DiffPercentage is meaningful
// only when a pixel comparison actually ran.
type Result struct {
	Match          bool
	Reason         Reason
	DiffPercentage float64
}

// Options tunes a single comparison.
type Options struct {
	// Threshold is the per-pixel color distance tolerance in [0,1]. It
	// decides which pixels count as different, never the final match
	// decision: any counted difference fails the comparison.
	Threshold float64

	// DiffColor highlights differing pixels in the diff artifact.
	// The zero value keeps the engine's default.
	DiffColor color.RGBA
}

// Engine compares the current and base images stored under one filename.
type Engine interface {
	// Name returns the engine's registry name.
	Name() string

	// Compare reads both sides from storage, diffs them and writes a diff
	// artifact when a pixel comparison ran and found differences. Errors
	// wrapping ErrBaseUnreadable mean the reference side was unusable.
	Compare(ctx context.Context, store storage.Store, filename string, opts Options) (Result, error)
}

// diffImages runs the shared pixel comparison and classifies the outcome.
// A diff artifact lands in diff storage only when differences were found.
func diffImages(ctx context.Context, store storage.Store, filename string, baseImg, currentImg image.Image, opts Options) (Result, error) {
	var diffImg image.Image
	matchOpts := []pixelmatch.MatchOption{
		pixelmatch.Threshold(opts.Threshold),
		pixelmatch.WriteTo(&diffImg),
	}
	if opts.DiffColor != (color.RGBA{}) {
		matchOpts = append(matchOpts, pixelmatch.DiffColor(opts.DiffColor))
	}

	// Dimension mismatch surfaces here as a hard error: a percentage of
	// difference is meaningless across differing canvas sizes
	mismatched, err := pixelmatch.MatchPixel(baseImg, currentImg, matchOpts...)
	if err != nil {
		return Result{}, fmt.Errorf("pixel comparison failed: %w", err)
	}

	if mismatched == 0 {
		return Result{Match: true, Reason: ReasonNone, DiffPercentage: 0}, nil
	}

	bounds := baseImg.Bounds()
	total := bounds.Dx() * bounds.Dy()
	percentage := 0.0
	if total > 0 {
		percentage = float64(mismatched) / float64(total) * 100
	}

	if diffImg != nil {
		if err := writeDiff(ctx, store, filename, diffImg); err != nil {
			return Result{}, fmt.Errorf("failed to write diff artifact: %w", err)
		}
	}

	return Result{Match: false, Reason: ReasonPixelDiff, DiffPercentage: percentage}, nil
}

// readImage loads and decodes a stored PNG.
func readImage(ctx context.Context, store storage.Store, kind storage.Kind, filename string) (image.Image, error) {
	reader, err := store.Read(ctx, kind, filename)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	img, err := png.Decode(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s image: %w", kind, err)
	}
	return img, nil
}

// readBytes loads a stored file fully into memory.
func readBytes(ctx context.Context, store storage.Store, kind storage.Kind, filename string) ([]byte, error) {
	reader, err := store.Read(ctx, kind, filename)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s image: %w", kind, err)
	}
	return data, nil
}

// writeDiff encodes the diff image and stores it under the diff kind.
func writeDiff(ctx context.Context, store storage.Store, filename string, img image.Image) error {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return fmt.Errorf("failed to encode diff image: %w", err)
	}

	if _, err := store.Write(ctx, storage.KindDiff, filename, &buf); err != nil {
		return err
	}
	return nil
}
