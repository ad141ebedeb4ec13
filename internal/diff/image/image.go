package image

import (
	"visual-diff/internal/raster"
)

type DiffResult struct {
	Image      *raster.Raster
	DiffPixels int
	// Regions is set by engines that locate clusters of change.
	Regions []Region
}

// Differ classifies every pixel of two equal-sized rasters and renders a diff raster of the same size.
type Differ interface {
	Calculate(baseline *raster.Raster, target *raster.Raster) (*DiffResult, error)
}
