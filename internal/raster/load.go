package raster

import (
	"bytes"
	"errors"
	"image/png"
	"io/fs"
	"os"

	"golang.org/x/xerrors"
)

var (
	ErrNotFound = errors.New("screenshot not found")
	ErrDecode   = errors.New("screenshot is not a valid PNG")
)

// Load reads the PNG at path.
func Load(path string) (*Raster, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, xerrors.Errorf("%s: %w", path, ErrNotFound)
		}
		return nil, xerrors.Errorf("failed to read %s: %w", path, err)
	}

	r, err := Decode(data)
	if err != nil {
		return nil, xerrors.Errorf("%s: %w", path, err)
	}
	return r, nil
}

func Decode(data []byte) (*Raster, error) {
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, xerrors.Errorf("%s: %w", err.Error(), ErrDecode)
	}
	return FromImage(img), nil
}
