package image

import (
	"context"
	"errors"
	"fmt"
	"math"

	"visual-diff/internal/raster"
	"visual-diff/internal/storage"

	"golang.org/x/xerrors"
)

var ErrComparison = errors.New("comparison failed")

const (
	EnginePixelMatch = "pixelmatch"
	EngineBrightness = "brightness"
	EngineRegions    = "regions"
)

// NewDiffer returns the Differ registered under engine.
func NewDiffer(engine string, options PixelMatchOptions) (Differ, error) {
	switch engine {
	case EnginePixelMatch:
		return NewPixelMatch(options), nil
	case EngineBrightness:
		return NewBrightnessDiff(options.Threshold), nil
	case EngineRegions:
		return NewRegionDiff(options), nil
	default:
		return nil, xerrors.Errorf("unknown diff engine: %s", engine)
	}
}

type Result struct {
	DiffPixels  int      `json:"diffPixels"`
	TotalPixels int      `json:"totalPixels"`
	Percentage  float64  `json:"percentage"`
	Width       int      `json:"width"`
	Height      int      `json:"height"`
	DiffKey     string   `json:"diffKey"`
	DiffURL     string   `json:"diffUrl"`
	Regions     []Region `json:"regions,omitempty"`
}

type Comparator struct {
	Differ  Differ
	Storage storage.Storage
}

// Compare diffs two rasters of identical size and stores the diff PNG under key.
// Callers must normalize first; mismatched sizes are a programming error and panic.
func (c *Comparator) Compare(ctx context.Context, baseline *raster.Raster, target *raster.Raster, key string) (*Result, error) {
	if baseline.Empty() || target.Empty() {
		return nil, xerrors.Errorf("cannot compare empty raster: %w", ErrComparison)
	}
	if !baseline.SameSize(target) {
		panic(fmt.Sprintf("compare called with unnormalized rasters: %dx%d vs %dx%d", baseline.Width, baseline.Height, target.Width, target.Height))
	}

	diffResult, err := c.Differ.Calculate(baseline, target)
	if err != nil {
		return nil, xerrors.Errorf("failed to calculate diff (%s): %w", err.Error(), ErrComparison)
	}

	data, err := diffResult.Image.EncodePNG()
	if err != nil {
		return nil, xerrors.Errorf("failed to encode diff image (%s): %w", err.Error(), ErrComparison)
	}

	url, err := c.Storage.Put(ctx, key, data)
	if err != nil {
		return nil, xerrors.Errorf("failed to save diff image (%s): %w", err.Error(), ErrComparison)
	}

	totalPixels := baseline.Pixels()
	return &Result{
		DiffPixels:  diffResult.DiffPixels,
		TotalPixels: totalPixels,
		Percentage:  Percentage(diffResult.DiffPixels, totalPixels),
		Width:       baseline.Width,
		Height:      baseline.Height,
		DiffKey:     key,
		DiffURL:     url,
		Regions:     diffResult.Regions,
	}, nil
}

// Percentage returns diffPixels/totalPixels*100 rounded to two decimals.
func Percentage(diffPixels int, totalPixels int) float64 {
	if totalPixels <= 0 {
		return 0
	}
	return math.Round(float64(diffPixels)*10000/float64(totalPixels)) / 100
}
