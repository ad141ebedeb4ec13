package image

import (
	"image/color"
	"runtime"
	"sync"
	"sync/atomic"

	"visual-diff/internal/raster"

	"golang.org/x/xerrors"
)

// Region is the bounding box of a cluster of differing pixels.
type Region struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

const (
	// clusters no larger than this in either dimension are counted but not outlined
	minRegionSide = 2
	// regions closer than this are merged into one box
	regionMergeDistance = 10
	outlineThickness    = 3
)

// RegionDiff counts pixels whose largest channel delta exceeds threshold (0-1 of full
// scale) and outlines the clusters they form on a faded copy of the baseline.
type RegionDiff struct {
	options PixelMatchOptions
}

func NewRegionDiff(options PixelMatchOptions) *RegionDiff {
	return &RegionDiff{
		options: options,
	}
}

func (r *RegionDiff) Calculate(baseline *raster.Raster, target *raster.Raster) (*DiffResult, error) {
	if !baseline.SameSize(target) {
		return nil, xerrors.Errorf("image sizes do not match: %dx%d vs %dx%d", baseline.Width, baseline.Height, target.Width, target.Height)
	}

	diff := fade(baseline, r.options.Alpha)
	if baseline == target {
		return &DiffResult{Image: diff}, nil
	}

	mask, count := r.mask(baseline, target)
	regions := mergeRegions(findRegions(mask, baseline.Width, baseline.Height))

	for i, differs := range mask {
		if differs {
			setPixel(diff, i%baseline.Width, i/baseline.Width, r.options.DiffColor)
		}
	}
	for _, region := range regions {
		outline(diff, region, r.options.AltColor)
	}

	return &DiffResult{
		Image:      diff,
		DiffPixels: count,
		Regions:    regions,
	}, nil
}

// mask flags differing pixels in row-major order.
func (r *RegionDiff) mask(baseline *raster.Raster, target *raster.Raster) ([]bool, int) {
	mask := make([]bool, baseline.Pixels())
	limit := int(r.options.Threshold * 255)

	var count int64
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
			var local int64
			for p := startY * baseline.Width; p < endY*baseline.Width; p++ {
				b := baseline.Pix[p*4 : p*4+4 : p*4+4]
				t := target.Pix[p*4 : p*4+4 : p*4+4]
				delta := 0
				for c := 0; c < 4; c++ {
					delta = max(delta, abs(int(b[c])-int(t[c])))
				}
				if delta > limit {
					mask[p] = true
					local++
				}
			}
			atomic.AddInt64(&count, local)
		}(startY, endY)
	}
	wg.Wait()

	return mask, int(count)
}

// findRegions returns the bounding boxes of 8-connected clusters in mask.
func findRegions(mask []bool, width int, height int) []Region {
	visited := make([]bool, len(mask))
	var regions []Region
	var queue []int

	for start, differs := range mask {
		if !differs || visited[start] {
			continue
		}

		minX, minY := start%width, start/width
		maxX, maxY := minX, minY
		visited[start] = true
		queue = append(queue[:0], start)

		for len(queue) > 0 {
			p := queue[0]
			queue = queue[1:]
			x, y := p%width, p/width
			minX, maxX = min(minX, x), max(maxX, x)
			minY, maxY = min(minY, y), max(maxY, y)

			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					nx, ny := x+dx, y+dy
					if nx < 0 || nx >= width || ny < 0 || ny >= height {
						continue
					}
					n := ny*width + nx
					if mask[n] && !visited[n] {
						visited[n] = true
						queue = append(queue, n)
					}
				}
			}
		}

		region := Region{X: minX, Y: minY, Width: maxX - minX + 1, Height: maxY - minY + 1}
		if region.Width > minRegionSide && region.Height > minRegionSide {
			regions = append(regions, region)
		}
	}

	return regions
}

func mergeRegions(regions []Region) []Region {
	if len(regions) <= 1 {
		return regions
	}

	merged := make([]Region, 0, len(regions))
	used := make([]bool, len(regions))
	for i := range regions {
		if used[i] {
			continue
		}
		current := regions[i]
		for grew := true; grew; {
			grew = false
			for j := i + 1; j < len(regions); j++ {
				if !used[j] && current.near(regions[j], regionMergeDistance) {
					current = current.union(regions[j])
					used[j] = true
					grew = true
				}
			}
		}
		merged = append(merged, current)
	}
	return merged
}

func (r Region) overlaps(o Region) bool {
	return r.X < o.X+o.Width && o.X < r.X+r.Width &&
		r.Y < o.Y+o.Height && o.Y < r.Y+r.Height
}

func (r Region) near(o Region, distance int) bool {
	grown := Region{X: r.X - distance, Y: r.Y - distance, Width: r.Width + 2*distance, Height: r.Height + 2*distance}
	return grown.overlaps(o)
}

func (r Region) union(o Region) Region {
	minX, minY := min(r.X, o.X), min(r.Y, o.Y)
	maxX, maxY := max(r.X+r.Width, o.X+o.Width), max(r.Y+r.Height, o.Y+o.Height)
	return Region{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}
}

// outline draws a border around region, growing outwards and clipped to the raster.
func outline(dst *raster.Raster, region Region, c color.NRGBA) {
	for t := 0; t < outlineThickness; t++ {
		left, right := region.X-t, region.X+region.Width-1+t
		top, bottom := region.Y-t, region.Y+region.Height-1+t
		for x := left; x <= right; x++ {
			setPixel(dst, x, top, c)
			setPixel(dst, x, bottom, c)
		}
		for y := top; y <= bottom; y++ {
			setPixel(dst, left, y, c)
			setPixel(dst, right, y, c)
		}
	}
}

func setPixel(dst *raster.Raster, x int, y int, c color.NRGBA) {
	if x < 0 || x >= dst.Width || y < 0 || y >= dst.Height {
		return
	}
	i := (y*dst.Width + x) * 4
	dst.Pix[i], dst.Pix[i+1], dst.Pix[i+2], dst.Pix[i+3] = c.R, c.G, c.B, c.A
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
