package image_test

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"runtime"
	"testing"

	diffimage "visual-diff/internal/diff/image"
	"visual-diff/internal/raster"
	"visual-diff/internal/storage"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func createTestRaster(width int, height int, c color.NRGBA) *raster.Raster {
	r := raster.New(width, height)
	for i := 0; i < len(r.Pix); i += 4 {
		r.Pix[i] = c.R
		r.Pix[i+1] = c.G
		r.Pix[i+2] = c.B
		r.Pix[i+3] = c.A
	}
	return r
}

func paintRows(r *raster.Raster, rows int, c color.NRGBA) *raster.Raster {
	painted := raster.New(r.Width, r.Height)
	copy(painted.Pix, r.Pix)
	for i := 0; i < rows*r.Width*4; i += 4 {
		painted.Pix[i] = c.R
		painted.Pix[i+1] = c.G
		painted.Pix[i+2] = c.B
		painted.Pix[i+3] = c.A
	}
	return painted
}

var (
	white = color.NRGBA{R: 255, G: 255, B: 255, A: 255}
	black = color.NRGBA{A: 255}
)

type failingStorage struct{}

func (failingStorage) Put(ctx context.Context, key string, data []byte) (string, error) {
	return "", errors.New("disk full")
}

func (failingStorage) Get(ctx context.Context, url string) ([]byte, error) {
	return nil, errors.New("disk full")
}

func TestComparator_Compare(t *testing.T) {
	differs := map[string]diffimage.Differ{
		diffimage.EnginePixelMatch: diffimage.NewPixelMatch(diffimage.DefaultPixelMatchOptions()),
		diffimage.EngineBrightness: diffimage.NewBrightnessDiff(0.1),
		diffimage.EngineRegions:    diffimage.NewRegionDiff(diffimage.DefaultPixelMatchOptions()),
	}

	for engine, differ := range differs {
		t.Run(engine, func(t *testing.T) {
			s := storage.NewMemoryStorage()
			c := &diffimage.Comparator{Differ: differ, Storage: s}

			tests := []struct {
				name     string
				baseline *raster.Raster
				target   *raster.Raster
				want     *diffimage.Result
			}{
				{
					func() string {
						_, _, line, _ := runtime.Caller(1)
						return fmt.Sprintf("L%d", line)
					}(),
					createTestRaster(100, 100, white),
					createTestRaster(100, 100, white),
					&diffimage.Result{DiffPixels: 0, TotalPixels: 10000, Percentage: 0, Width: 100, Height: 100},
				},
				{
					func() string {
						_, _, line, _ := runtime.Caller(1)
						return fmt.Sprintf("L%d", line)
					}(),
					createTestRaster(100, 100, white),
					createTestRaster(100, 100, black),
					&diffimage.Result{DiffPixels: 10000, TotalPixels: 10000, Percentage: 100, Width: 100, Height: 100},
				},
				{
					func() string {
						_, _, line, _ := runtime.Caller(1)
						return fmt.Sprintf("L%d", line)
					}(),
					createTestRaster(100, 100, white),
					paintRows(createTestRaster(100, 100, white), 50, black),
					&diffimage.Result{DiffPixels: 5000, TotalPixels: 10000, Percentage: 50, Width: 100, Height: 100},
				},
				{
					func() string {
						_, _, line, _ := runtime.Caller(1)
						return fmt.Sprintf("L%d", line)
					}(),
					createTestRaster(300, 10, white),
					paintRows(createTestRaster(300, 10, white), 1, black),
					&diffimage.Result{DiffPixels: 300, TotalPixels: 3000, Percentage: 10, Width: 300, Height: 10},
				},
			}

			for _, tt := range tests {
				t.Run(tt.name, func(t *testing.T) {
					got, err := c.Compare(context.Background(), tt.baseline, tt.target, "diff.png")
					if err != nil {
						t.Fatalf("unexpected error: %v", err)
					}
					if diff := cmp.Diff(tt.want, got, cmpopts.IgnoreFields(diffimage.Result{}, "DiffKey", "DiffURL", "Regions")); diff != "" {
						t.Errorf("(-want +got):\n%s", diff)
					}
					if got.DiffPixels < 0 || got.DiffPixels > got.TotalPixels {
						t.Errorf("diff pixels %d out of range [0, %d]", got.DiffPixels, got.TotalPixels)
					}

					data, err := s.Get(context.Background(), got.DiffURL)
					if err != nil {
						t.Fatalf("diff image was not stored: %v", err)
					}
					diffRaster, err := raster.Decode(data)
					if err != nil {
						t.Fatalf("stored diff is not a PNG: %v", err)
					}
					if diffRaster.Width != got.Width || diffRaster.Height != got.Height {
						t.Errorf("diff image is %dx%d, want %dx%d", diffRaster.Width, diffRaster.Height, got.Width, got.Height)
					}
				})
			}
		})
	}
}

func TestComparator_SameRaster(t *testing.T) {
	c := &diffimage.Comparator{
		Differ:  diffimage.NewPixelMatch(diffimage.DefaultPixelMatchOptions()),
		Storage: storage.NewMemoryStorage(),
	}
	r := paintRows(createTestRaster(40, 40, white), 7, color.NRGBA{R: 10, G: 200, B: 30, A: 255})

	got, err := c.Compare(context.Background(), r, r, "same.png")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.DiffPixels != 0 || got.Percentage != 0 {
		t.Errorf("expected no difference, got %d pixels (%.2f%%)", got.DiffPixels, got.Percentage)
	}
}

func TestComparator_Errors(t *testing.T) {
	differ := diffimage.NewPixelMatch(diffimage.DefaultPixelMatchOptions())

	t.Run("EmptyRaster", func(t *testing.T) {
		c := &diffimage.Comparator{Differ: differ, Storage: storage.NewMemoryStorage()}
		_, err := c.Compare(context.Background(), raster.New(0, 0), raster.New(0, 0), "empty.png")
		if !errors.Is(err, diffimage.ErrComparison) {
			t.Errorf("expected ErrComparison, got %v", err)
		}
	})

	t.Run("WriteFailure", func(t *testing.T) {
		c := &diffimage.Comparator{Differ: differ, Storage: failingStorage{}}
		_, err := c.Compare(context.Background(), createTestRaster(4, 4, white), createTestRaster(4, 4, black), "diff.png")
		if !errors.Is(err, diffimage.ErrComparison) {
			t.Errorf("expected ErrComparison, got %v", err)
		}
	})

	t.Run("UnnormalizedPanics", func(t *testing.T) {
		c := &diffimage.Comparator{Differ: differ, Storage: storage.NewMemoryStorage()}
		defer func() {
			if recover() == nil {
				t.Errorf("expected panic for mismatched sizes")
			}
		}()
		_, _ = c.Compare(context.Background(), createTestRaster(4, 4, white), createTestRaster(5, 4, white), "diff.png")
	})
}

func TestPercentage(t *testing.T) {
	tests := []struct {
		diff  int
		total int
		want  float64
	}{
		{0, 100, 0},
		{1, 3, 33.33},
		{2, 3, 66.67},
		{10, 10000, 0.1},
		{1, 1000000, 0},
		{5, 1000000, 0},
		{50, 1000000, 0.01},
		{7, 0, 0},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d/%d", tt.diff, tt.total), func(t *testing.T) {
			if got := diffimage.Percentage(tt.diff, tt.total); got != tt.want {
				t.Errorf("Percentage(%d, %d) = %v, want %v", tt.diff, tt.total, got, tt.want)
			}
		})
	}
}

func TestNewDiffer(t *testing.T) {
	if _, err := diffimage.NewDiffer("magic", diffimage.DefaultPixelMatchOptions()); err == nil {
		t.Errorf("expected error for unknown engine")
	}
	for _, engine := range []string{diffimage.EnginePixelMatch, diffimage.EngineBrightness, diffimage.EngineRegions} {
		if _, err := diffimage.NewDiffer(engine, diffimage.DefaultPixelMatchOptions()); err != nil {
			t.Errorf("NewDiffer(%q) returned error: %v", engine, err)
		}
	}
}
