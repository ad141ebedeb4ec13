package report

import (
	"path"
	"time"

	"visual-diff/internal/compare"

	"golang.org/x/xerrors"
)

type Metadata struct {
	Title           string    `json:"title"`
	GeneratedAt     time.Time `json:"generatedAt"`
	Sources         []string  `json:"sources"`
	Viewport        string    `json:"viewport"`
	Capture         string    `json:"capture"`
	Engine          string    `json:"engine"`
	Tolerance       float64   `json:"tolerance"`
	DiffColor       string    `json:"diffColor"`
	AltColor        string    `json:"altColor"`
	DetectAntiAlias bool      `json:"detectAntiAlias"`
	AntiAliasColor  string    `json:"antiAliasColor,omitempty"`
}

type Summary struct {
	Compared int            `json:"compared"`
	Omitted  int            `json:"omitted"`
	Worst    compare.Status `json:"worst,omitempty"`
}

// Comparison is one declared pair as shown in the report. Metrics are set when the pair
// was compared; Omission is set when it was skipped.
type Comparison struct {
	Label         string            `json:"label"`
	Baseline      string            `json:"baseline"`
	Target        string            `json:"target"`
	BaselineImage string            `json:"baselineImage"`
	TargetImage   string            `json:"targetImage"`
	DiffImage     string            `json:"diffImage,omitempty"`
	Status        compare.Status    `json:"status,omitempty"`
	Percentage    float64           `json:"percentage"`
	DiffPixels    int               `json:"diffPixels"`
	TotalPixels   int               `json:"totalPixels"`
	Width         int               `json:"width"`
	Height        int               `json:"height"`
	Omission      *compare.Omission `json:"omission,omitempty"`
}

type Report struct {
	Metadata    Metadata     `json:"metadata"`
	Summary     Summary      `json:"summary"`
	Comparisons []Comparison `json:"comparisons"`
}

// SourceRef returns the reference to a source screenshot, relative to the report.
type SourceRef func(source string) string

// Build matches entries 1:1 against the declared pairs. Diff images are referenced by
// their storage key, which lives next to the report.
func Build(pairs []compare.Pair, entries []compare.Entry, metadata Metadata, sourceRef SourceRef) (*Report, error) {
	if len(pairs) != len(entries) {
		return nil, xerrors.Errorf("got %d entries for %d declared pairs", len(entries), len(pairs))
	}
	if sourceRef == nil {
		sourceRef = func(source string) string {
			return path.Join("..", source, metadata.Capture)
		}
	}

	r := &Report{
		Metadata:    metadata,
		Comparisons: make([]Comparison, 0, len(pairs)),
	}
	r.Metadata.Sources = append([]string(nil), metadata.Sources...)

	for i, pair := range pairs {
		entry := entries[i]
		if entry.Pair != pair {
			return nil, xerrors.Errorf("entry %d is %q, want declared pair %q", i, entry.Pair.Label, pair.Label)
		}
		if (entry.Result == nil) == (entry.Omission == nil) {
			return nil, xerrors.Errorf("entry %q must have exactly one of result and omission", pair.Label)
		}

		c := Comparison{
			Label:         pair.Label,
			Baseline:      pair.Baseline,
			Target:        pair.Target,
			BaselineImage: sourceRef(pair.Baseline),
			TargetImage:   sourceRef(pair.Target),
		}

		if entry.Omission != nil {
			omission := *entry.Omission
			c.Omission = &omission
			r.Summary.Omitted++
		} else {
			result := entry.Result
			c.DiffImage = result.DiffKey
			c.Status = compare.Classify(result.Percentage)
			c.Percentage = result.Percentage
			c.DiffPixels = result.DiffPixels
			c.TotalPixels = result.TotalPixels
			c.Width = result.Width
			c.Height = result.Height

			r.Summary.Compared++
			if r.Summary.Worst == "" || c.Status.Rank() > r.Summary.Worst.Rank() {
				r.Summary.Worst = c.Status
			}
		}

		r.Comparisons = append(r.Comparisons, c)
	}

	return r, nil
}
