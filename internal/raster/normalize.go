package raster

import (
	"fmt"
	"log/slog"

	"github.com/go-logr/logr"
)

type Normalizer struct {
	Log logr.Logger
}

// Normalize returns a and b unchanged when their sizes match. Otherwise both are cropped
// to the shared top-left region min(width) x min(height); nothing is scaled, and content
// outside that region is never compared. The returned bool reports whether cropping happened.
func (n *Normalizer) Normalize(a *Raster, b *Raster) (*Raster, *Raster, bool) {
	if a.SameSize(b) {
		return a, b, false
	}

	width := min(a.Width, b.Width)
	height := min(a.Height, b.Height)

	slog.New(logr.ToSlogHandler(n.Log)).Warn("dimension mismatch, comparing shared top-left region",
		"baseline", fmt.Sprintf("%dx%d", a.Width, a.Height),
		"target", fmt.Sprintf("%dx%d", b.Width, b.Height),
		"compared", fmt.Sprintf("%dx%d", width, height),
	)

	return a.Crop(width, height), b.Crop(width, height), true
}
