package image

import (
	"image"
	"image/color"

	"visual-diff/internal/raster"

	"github.com/orisano/pixelmatch"
	"golang.org/x/xerrors"
)

type PixelMatchOptions struct {
	// Threshold is the colour distance on a 0-1 scale below which two pixels are equal.
	Threshold float64
	// DetectAntiAlias lets the matcher skip pixels it recognizes as anti-aliasing.
	// When false, anti-aliasing differences count like any other difference.
	DetectAntiAlias bool
	// Alpha blends unchanged pixels into the diff image.
	Alpha float64

	DiffColor color.NRGBA
	// AltColor marks differing pixels that are darker in the target than in the baseline.
	AltColor color.NRGBA
	// AntiAliasColor marks pixels skipped as anti-aliasing when DetectAntiAlias is set.
	AntiAliasColor color.NRGBA
}

func DefaultPixelMatchOptions() PixelMatchOptions {
	return PixelMatchOptions{
		Threshold:       0.1,
		DetectAntiAlias: false,
		Alpha:           0.1,
		DiffColor:       color.NRGBA{R: 255, B: 255, A: 255},
		AltColor:        color.NRGBA{G: 255, B: 255, A: 255},
		AntiAliasColor:  color.NRGBA{R: 255, G: 255, A: 255},
	}
}

type PixelMatch struct {
	options PixelMatchOptions
}

func NewPixelMatch(options PixelMatchOptions) *PixelMatch {
	return &PixelMatch{
		options: options,
	}
}

func (p *PixelMatch) Calculate(baseline *raster.Raster, target *raster.Raster) (*DiffResult, error) {
	var out image.Image
	opts := []pixelmatch.MatchOption{
		pixelmatch.Threshold(p.options.Threshold),
		pixelmatch.Alpha(p.options.Alpha),
		pixelmatch.DiffColor(p.options.DiffColor),
		pixelmatch.DiffColorAlt(p.options.AltColor),
		pixelmatch.AntiAliasedColor(p.options.AntiAliasColor),
		pixelmatch.WriteTo(&out),
	}
	if !p.options.DetectAntiAlias {
		opts = append(opts, pixelmatch.IncludeAntiAlias)
	}

	count, err := pixelmatch.MatchPixel(baseline.Image(), target.Image(), opts...)
	if err != nil {
		return nil, xerrors.Errorf("failed to match pixels: %w", err)
	}

	var diff *raster.Raster
	if out == nil {
		// identical inputs may return before the output image is drawn
		diff = fade(baseline, p.options.Alpha)
	} else {
		diff = raster.FromImage(out)
	}

	return &DiffResult{
		Image:      diff,
		DiffPixels: count,
	}, nil
}

// fade renders r as translucent grayscale, the way unchanged pixels appear in a diff image.
func fade(r *raster.Raster, alpha float64) *raster.Raster {
	faded := raster.New(r.Width, r.Height)
	for i := 0; i < len(r.Pix); i += 4 {
		luma := 0.29889531*float64(r.Pix[i]) + 0.58662247*float64(r.Pix[i+1]) + 0.11448223*float64(r.Pix[i+2])
		v := uint8(255 + (luma-255)*alpha*float64(r.Pix[i+3])/255)
		faded.Pix[i] = v
		faded.Pix[i+1] = v
		faded.Pix[i+2] = v
		faded.Pix[i+3] = 255
	}
	return faded
}
