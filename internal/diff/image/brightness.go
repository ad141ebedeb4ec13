package image

import (
	"runtime"
	"sync"
	"sync/atomic"

	"visual-diff/internal/raster"

	"golang.org/x/xerrors"
)

// BrightnessDiff marks pixels whose summed RGB brightness moved by more than threshold
// (0-1 of full scale): red where target got brighter, blue where it got darker.
type BrightnessDiff struct {
	threshold float64
}

func NewBrightnessDiff(threshold float64) *BrightnessDiff {
	return &BrightnessDiff{
		threshold,
	}
}

func (p *BrightnessDiff) Calculate(baseline *raster.Raster, target *raster.Raster) (*DiffResult, error) {
	if !baseline.SameSize(target) {
		return nil, xerrors.Errorf("image sizes do not match: %dx%d vs %dx%d", baseline.Width, baseline.Height, target.Width, target.Height)
	}

	diff := raster.New(baseline.Width, baseline.Height)
	if baseline == target {
		copy(diff.Pix, baseline.Pix)
		return &DiffResult{
			Image:      diff,
			DiffPixels: 0,
		}, nil
	}

	var brighterPixelCount int64
	var darkerPixelCount int64

	// Use GOMAXPROCS instead of runtime.NumCPU() to consider cgroup.
	numWorkers := min(runtime.GOMAXPROCS(0), max(baseline.Height, 1))
	rowsPerWorker := baseline.Height / numWorkers

	var wg sync.WaitGroup
	wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		startY := i * rowsPerWorker
		endY := startY + rowsPerWorker
		if i == numWorkers-1 {
			endY = baseline.Height
		}

		go func(startY int, endY int) {
			defer wg.Done()
			p.processRows(baseline, target, diff, startY, endY, &brighterPixelCount, &darkerPixelCount)
		}(startY, endY)
	}
	wg.Wait()

	return &DiffResult{
		Image:      diff,
		DiffPixels: int(brighterPixelCount + darkerPixelCount),
	}, nil
}

func (p *BrightnessDiff) processRows(baseline *raster.Raster, target *raster.Raster, diff *raster.Raster, startY int, endY int, brighterCount *int64, darkerCount *int64) {
	var localBrighter int64
	var localDarker int64

	for offset := startY * baseline.Width * 4; offset < endY*baseline.Width*4; offset += 4 {
		b := baseline.Pix[offset : offset+4 : offset+4]
		t := target.Pix[offset : offset+4 : offset+4]
		d := diff.Pix[offset : offset+4 : offset+4]

		if b[0] == t[0] && b[1] == t[1] && b[2] == t[2] && b[3] == t[3] {
			copy(d, b)
			continue
		}

		baselineBrightness := int(b[0]) + int(b[1]) + int(b[2])
		targetBrightness := int(t[0]) + int(t[1]) + int(t[2])
		normalizedDiff := float64(targetBrightness-baselineBrightness) / (255.0 * 3.0)

		switch {
		case normalizedDiff > p.threshold:
			d[0], d[1], d[2], d[3] = 255, 0, 0, 255
			localBrighter++
		case normalizedDiff < -p.threshold:
			d[0], d[1], d[2], d[3] = 0, 0, 255, 255
			localDarker++
		default:
			copy(d, b)
		}
	}

	atomic.AddInt64(brighterCount, localBrighter)
	atomic.AddInt64(darkerCount, localDarker)
}
