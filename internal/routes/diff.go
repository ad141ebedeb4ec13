package routes

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"visual-diff/internal/compare"
	diffimage "visual-diff/internal/diff/image"
	"visual-diff/internal/myhttp"
	"visual-diff/internal/raster"
	"visual-diff/internal/storage"

	"github.com/go-logr/logr"
)

const diffKey = "diff.png"

type DiffResponse struct {
	DiffData    string             `json:"diffData"`
	DiffPixels  int                `json:"diffPixels"`
	TotalPixels int                `json:"totalPixels"`
	Percentage  float64            `json:"percentage"`
	Status      compare.Status     `json:"status"`
	Width       int                `json:"width"`
	Height      int                `json:"height"`
	Cropped     bool               `json:"cropped"`
	Regions     []diffimage.Region `json:"regions,omitempty"`
}

// Diff compares two uploaded PNGs ("baseline" and "target" form files). The optional
// "tolerance" and "engine" form values override the configured ones.
func Diff(engine string, options diffimage.PixelMatchOptions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := myhttp.Logger(r.Context())

		if err := r.ParseMultipartForm(32 << 20); err != nil {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}

		requestOptions := options
		if v := r.FormValue("tolerance"); v != "" {
			tolerance, err := strconv.ParseFloat(v, 64)
			if err != nil || !(tolerance >= 0 && tolerance <= 1) {
				http.Error(w, "tolerance must be a number within [0, 1]", http.StatusBadRequest)
				return
			}
			requestOptions.Threshold = tolerance
		}
		requestEngine := engine
		if v := r.FormValue("engine"); v != "" {
			requestEngine = v
		}
		differ, err := diffimage.NewDiffer(requestEngine, requestOptions)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		baseline, err := formRaster(r, "baseline")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		target, err := formRaster(r, "target")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		normalizer := &raster.Normalizer{Log: logr.FromSlogHandler(logger.Handler())}
		baseline, target, cropped := normalizer.Normalize(baseline, target)

		s := storage.NewMemoryStorage()
		comparator := &diffimage.Comparator{Differ: differ, Storage: s}
		result, err := comparator.Compare(r.Context(), baseline, target, diffKey)
		if err != nil {
			if errors.Is(err, diffimage.ErrComparison) && baseline.Empty() {
				http.Error(w, err.Error(), http.StatusUnprocessableEntity)
				return
			}
			logger.Error("failed to compare images", "error", err)
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		data, err := s.Get(r.Context(), result.DiffURL)
		if err != nil {
			logger.Error("failed to read diff image", "error", err)
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(DiffResponse{
			DiffData:    base64.StdEncoding.EncodeToString(data),
			DiffPixels:  result.DiffPixels,
			TotalPixels: result.TotalPixels,
			Percentage:  result.Percentage,
			Status:      compare.Classify(result.Percentage),
			Width:       result.Width,
			Height:      result.Height,
			Cropped:     cropped,
			Regions:     result.Regions,
		}); err != nil {
			logger.Error("failed to encode response", "error", err)
		}
	}
}

func formRaster(r *http.Request, name string) (*raster.Raster, error) {
	file, _, err := r.FormFile(name)
	if err != nil {
		return nil, errors.New("missing form file: " + name)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, err
	}
	img, err := raster.Decode(data)
	if err != nil {
		return nil, errors.New(name + ": " + err.Error())
	}
	return img, nil
}
