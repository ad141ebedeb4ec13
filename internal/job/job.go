package job

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"time"

	"visual-diff/internal/compare"
	"visual-diff/internal/config"
	diffimage "visual-diff/internal/diff/image"
	"visual-diff/internal/notify"
	"visual-diff/internal/report"
	"visual-diff/internal/storage"

	"github.com/go-logr/logr"
	"golang.org/x/xerrors"
)

const sourcesPrefix = "sources"

// Job performs one full comparison run: every declared pair, then the report.
type Job struct {
	Config  *config.Config
	Storage storage.Storage
	Log     logr.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

type Result struct {
	Outcome   *compare.Outcome
	Report    *report.Report
	Locations *report.Locations
	// Artifacts maps every stored key referenced by the report to its storage URL.
	Artifacts map[string]string
}

// ExitCode is 0 when at least one pair was compared and the report was written.
func (r *Result) ExitCode() int {
	if r == nil || r.Locations == nil {
		return 1
	}
	return r.Outcome.ExitCode()
}

// Run returns an error only when the report cannot be produced. Per-pair failures are
// carried as omissions in the result.
func (j *Job) Run(ctx context.Context) (*Result, error) {
	c := j.Config

	options, err := c.PixelMatchOptions()
	if err != nil {
		return nil, err
	}
	differ, err := diffimage.NewDiffer(c.Engine, options)
	if err != nil {
		return nil, err
	}

	pairs := c.ComparisonPairs()
	orchestrator := &compare.Orchestrator{
		Log:         j.Log.WithName("orchestrator"),
		Screenshots: c.Screenshots,
		Capture:     c.Capture,
		Pairs:       pairs,
		Workers:     c.Workers,
		Comparator: &diffimage.Comparator{
			Differ:  differ,
			Storage: j.Storage,
		},
	}

	outcome, err := orchestrator.Run(ctx)
	if err != nil {
		return nil, xerrors.Errorf("failed to run comparisons: %w", err)
	}

	artifacts := map[string]string{}
	for _, entry := range outcome.Entries {
		if entry.Result != nil {
			artifacts[entry.Result.DiffKey] = entry.Result.DiffURL
		}
	}

	sourceRef, err := j.sourceRef(ctx, artifacts)
	if err != nil {
		return nil, err
	}

	r, err := report.Build(pairs, outcome.Entries, report.Metadata{
		Title:           c.Title,
		GeneratedAt:     j.now(),
		Sources:         c.Sources,
		Viewport:        c.Viewport,
		Capture:         c.Capture,
		Engine:          c.Engine,
		Tolerance:       c.Tolerance,
		DiffColor:       c.DiffColor,
		AltColor:        c.AltColor,
		DetectAntiAlias: c.DetectAntiAlias,
		AntiAliasColor:  c.AntiAliasColor,
	}, sourceRef)
	if err != nil {
		return nil, xerrors.Errorf("failed to build report: %w", err)
	}

	locations, err := report.Write(ctx, j.Storage, r)
	if err != nil {
		return nil, xerrors.Errorf("failed to write report: %w", err)
	}
	j.Log.Info("report written", "html", locations.HTML, "json", locations.JSON)
	artifacts[report.HTMLKey] = locations.HTML
	artifacts[report.JSONKey] = locations.JSON

	return &Result{
		Outcome:   outcome,
		Report:    r,
		Locations: locations,
		Artifacts: artifacts,
	}, nil
}

// Notify sends the JSON report to the configured callback URL, if any.
func (j *Job) Notify(ctx context.Context, r *report.Report) error {
	if j.Config.CallbackURL == "" {
		return nil
	}

	var body bytes.Buffer
	if err := report.RenderJSON(&body, r); err != nil {
		return err
	}
	if err := notify.NewNotifier(j.Config.CallbackURL).Send(ctx, body.Bytes()); err != nil {
		return xerrors.Errorf("failed to send callback: %w", err)
	}
	j.Log.Info("callback sent", "url", j.Config.CallbackURL)
	return nil
}

// sourceRef decides how the report references source screenshots. Published sources
// are stored next to the report; otherwise file reports link to the screenshots in place.
func (j *Job) sourceRef(ctx context.Context, artifacts map[string]string) (report.SourceRef, error) {
	c := j.Config

	if c.PublishSources {
		for _, source := range c.Sources {
			data, err := os.ReadFile(compare.ScreenshotPath(c.Screenshots, source, c.Capture))
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			if err != nil {
				return nil, xerrors.Errorf("failed to read %s screenshot: %w", source, err)
			}
			key := path.Join(sourcesPrefix, source, c.Capture)
			url, err := j.Storage.Put(ctx, key, data)
			if err != nil {
				return nil, xerrors.Errorf("failed to publish %s screenshot: %w", source, err)
			}
			artifacts[key] = url
		}
		return func(source string) string {
			return path.Join(sourcesPrefix, source, c.Capture)
		}, nil
	}

	if c.Storage.Backend == storage.BackendFile {
		return func(source string) string {
			screenshot := compare.ScreenshotPath(c.Screenshots, source, c.Capture)
			rel, err := filepath.Rel(c.Storage.Directory, screenshot)
			if err != nil {
				return path.Join("..", source, c.Capture)
			}
			return filepath.ToSlash(rel)
		}, nil
	}

	return nil, nil
}

func (j *Job) now() time.Time {
	if j.Now != nil {
		return j.Now()
	}
	return time.Now()
}
