package raster

import (
	"bytes"
	"image"
	"image/png"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/xerrors"
)

// Raster is a decoded screenshot: non-premultiplied RGBA, row-major, 4 bytes per pixel.
// A Raster is never mutated after it is produced.
type Raster struct {
	Width  int
	Height int
	Pix    []uint8
}

func New(width int, height int) *Raster {
	return &Raster{
		Width:  width,
		Height: height,
		Pix:    make([]uint8, width*height*4),
	}
}

// FromImage copies img into a Raster whose origin is the top-left corner of img's bounds.
func FromImage(img image.Image) *Raster {
	bounds := img.Bounds()
	if nrgba, ok := img.(*image.NRGBA); ok && nrgba.Stride == bounds.Dx()*4 && bounds.Min == (image.Point{}) {
		pix := make([]uint8, bounds.Dx()*bounds.Dy()*4)
		copy(pix, nrgba.Pix)
		return &Raster{
			Width:  bounds.Dx(),
			Height: bounds.Dy(),
			Pix:    pix,
		}
	}

	dst := image.NewNRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	xdraw.Copy(dst, image.Point{}, img, bounds, xdraw.Src, nil)
	return &Raster{
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
		Pix:    dst.Pix,
	}
}

// Image returns a view of the raster. The returned image shares Pix and must not be written to.
func (r *Raster) Image() *image.NRGBA {
	return &image.NRGBA{
		Pix:    r.Pix,
		Stride: r.Width * 4,
		Rect:   image.Rect(0, 0, r.Width, r.Height),
	}
}

func (r *Raster) Empty() bool {
	return r == nil || r.Width <= 0 || r.Height <= 0
}

func (r *Raster) Pixels() int {
	if r.Empty() {
		return 0
	}
	return r.Width * r.Height
}

func (r *Raster) SameSize(other *Raster) bool {
	return r.Width == other.Width && r.Height == other.Height
}

// Crop returns the top-left width x height region of r.
func (r *Raster) Crop(width int, height int) *Raster {
	if width == r.Width && height == r.Height {
		return r
	}
	dst := image.NewNRGBA(image.Rect(0, 0, width, height))
	xdraw.Copy(dst, image.Point{}, r.Image(), image.Rect(0, 0, width, height), xdraw.Src, nil)
	return &Raster{
		Width:  width,
		Height: height,
		Pix:    dst.Pix,
	}
}

func (r *Raster) EncodePNG() ([]byte, error) {
	var buffer bytes.Buffer
	if err := png.Encode(&buffer, r.Image()); err != nil {
		return nil, xerrors.Errorf("failed to encode PNG: %w", err)
	}
	return buffer.Bytes(), nil
}
