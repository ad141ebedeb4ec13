package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"visual-diff/internal/config"
	"visual-diff/internal/job"
	"visual-diff/internal/report"
	"visual-diff/internal/runnable"
	"visual-diff/internal/storage"

	"github.com/go-logr/logr"
	"github.com/joho/godotenv"
	"golang.org/x/xerrors"
)

type options struct {
	configPath      string
	title           string
	screenshots     string
	capture         string
	sources         string
	viewport        string
	engine          string
	tolerance       float64
	alpha           float64
	detectAntiAlias bool
	diffColor       string
	altColor        string
	antiAliasColor  string
	workers         int
	output          string
	storageBackend  string
	s3Bucket        string
	s3Prefix        string
	s3Endpoint      string
	publishSources  bool
	callbackURL     string
	debug           bool
}

// envName maps a flag name to the environment variable providing its default.
func envName(flagName string) string {
	return strings.ToUpper(strings.ReplaceAll(flagName, "-", "_"))
}

func newFlagSet(o *options) *flag.FlagSet {
	flags := flag.NewFlagSet("visual-diff", flag.ContinueOnError)
	d := config.Default()

	flags.StringVar(&o.configPath, "config", config.EnvOrDefaultValue("CONFIG", ""), "YAML file declaring sources, pairs and options")
	flags.StringVar(&o.title, "title", config.EnvOrDefaultValue("TITLE", d.Title), "Report title")
	flags.StringVar(&o.screenshots, "screenshots", config.EnvOrDefaultValue("SCREENSHOTS", d.Screenshots), "Directory holding <source>/<capture> screenshots")
	flags.StringVar(&o.capture, "capture", config.EnvOrDefaultValue("CAPTURE", d.Capture), "Screenshot file name inside each source directory")
	flags.StringVar(&o.sources, "sources", config.EnvOrDefaultValue("SOURCES", strings.Join(d.Sources, ",")), "Comma separated source names; pairs default to every combination")
	flags.StringVar(&o.viewport, "viewport", config.EnvOrDefaultValue("VIEWPORT", d.Viewport), "Viewport description shown in the report")
	flags.StringVar(&o.engine, "engine", config.EnvOrDefaultValue("ENGINE", d.Engine), "Diff engine (pixelmatch, brightness or regions)")
	flags.Float64Var(&o.tolerance, "tolerance", config.EnvOrDefaultValue("TOLERANCE", d.Tolerance), "Per-pixel color distance threshold within [0, 1]")
	flags.Float64Var(&o.alpha, "alpha", config.EnvOrDefaultValue("ALPHA", d.Alpha), "Opacity of unchanged pixels in the diff image")
	flags.BoolVar(&o.detectAntiAlias, "detect-anti-alias", config.EnvOrDefaultValue("DETECT_ANTI_ALIAS", d.DetectAntiAlias), "Exclude anti-aliased pixels from the difference count")
	flags.StringVar(&o.diffColor, "diff-color", config.EnvOrDefaultValue("DIFF_COLOR", d.DiffColor), "Color of differing pixels")
	flags.StringVar(&o.altColor, "alt-color", config.EnvOrDefaultValue("ALT_COLOR", d.AltColor), "Color of differing pixels that got darker in the target")
	flags.StringVar(&o.antiAliasColor, "anti-alias-color", config.EnvOrDefaultValue("ANTI_ALIAS_COLOR", d.AntiAliasColor), "Color of anti-aliased pixels when -detect-anti-alias is set")
	flags.IntVar(&o.workers, "workers", config.EnvOrDefaultValue("WORKERS", d.Workers), "Pairs compared in parallel (0 for one per CPU)")
	flags.StringVar(&o.output, "output", config.EnvOrDefaultValue("OUTPUT", d.Storage.Directory), "Output directory for the file storage backend")
	flags.StringVar(&o.storageBackend, "storage-backend", config.EnvOrDefaultValue("STORAGE_BACKEND", d.Storage.Backend), "Storage backend (file or s3)")
	flags.StringVar(&o.s3Bucket, "s3-bucket", config.EnvOrDefaultValue("S3_BUCKET", ""), "S3 bucket for the s3 storage backend")
	flags.StringVar(&o.s3Prefix, "s3-prefix", config.EnvOrDefaultValue("S3_PREFIX", ""), "Key prefix for the s3 storage backend")
	flags.StringVar(&o.s3Endpoint, "s3-endpoint", config.EnvOrDefaultValue("S3_ENDPOINT", ""), "Custom S3 endpoint, e.g. for MinIO")
	flags.BoolVar(&o.publishSources, "publish-sources", config.EnvOrDefaultValue("PUBLISH_SOURCES", d.PublishSources), "Store source screenshots next to the report")
	flags.StringVar(&o.callbackURL, "callback-url", config.EnvOrDefaultValue("CALLBACK_URL", ""), "URL the JSON report is PATCHed to")
	flags.BoolVar(&o.debug, "debug", config.EnvOrDefaultValue("DEBUG", false), "Human readable logs")
	return flags
}

// loadConfig layers defaults, the config file, environment variables and flags, in
// increasing precedence.
func loadConfig(flags *flag.FlagSet, o *options) (*config.Config, error) {
	c, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}

	explicit := map[string]bool{}
	flags.VisitAll(func(f *flag.Flag) {
		if _, ok := os.LookupEnv(envName(f.Name)); ok {
			explicit[f.Name] = true
		}
	})
	flags.Visit(func(f *flag.Flag) {
		explicit[f.Name] = true
	})

	overrides := map[string]func(){
		"title":             func() { c.Title = o.title },
		"screenshots":       func() { c.Screenshots = o.screenshots },
		"capture":           func() { c.Capture = o.capture },
		"sources":           func() { c.Sources = splitList(o.sources) },
		"viewport":          func() { c.Viewport = o.viewport },
		"engine":            func() { c.Engine = o.engine },
		"tolerance":         func() { c.Tolerance = o.tolerance },
		"alpha":             func() { c.Alpha = o.alpha },
		"detect-anti-alias": func() { c.DetectAntiAlias = o.detectAntiAlias },
		"diff-color":        func() { c.DiffColor = o.diffColor },
		"alt-color":         func() { c.AltColor = o.altColor },
		"anti-alias-color":  func() { c.AntiAliasColor = o.antiAliasColor },
		"workers":           func() { c.Workers = o.workers },
		"output":            func() { c.Storage.Directory = o.output },
		"storage-backend":   func() { c.Storage.Backend = o.storageBackend },
		"s3-bucket":         func() { c.Storage.Bucket = o.s3Bucket },
		"s3-prefix":         func() { c.Storage.Prefix = o.s3Prefix },
		"s3-endpoint":       func() { c.Storage.Endpoint = o.s3Endpoint },
		"publish-sources":   func() { c.PublishSources = o.publishSources },
		"callback-url":      func() { c.CallbackURL = o.callbackURL },
	}
	for name, apply := range overrides {
		if explicit[name] {
			apply()
		}
	}

	if err := c.Validate(); err != nil {
		return nil, xerrors.Errorf("invalid configuration: %w", err)
	}
	return c, nil
}

func splitList(s string) []string {
	var items []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

func loadDotEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return xerrors.Errorf("failed to load .env: %w", err)
	}
	return nil
}

func run(ctx context.Context, args []string, stdout io.Writer, stderr io.Writer) int {
	if err := loadDotEnv(); err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	var o options
	flags := newFlagSet(&o)
	flags.SetOutput(stderr)
	if err := flags.Parse(args); err != nil {
		return 2
	}

	logger, err := runnable.NewLogger(o.debug)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	slog.SetDefault(logger)
	log := logr.FromSlogHandler(logger.Handler())

	c, err := loadConfig(flags, &o)
	if err != nil {
		log.Error(err, "failed to load configuration")
		return 1
	}

	s, err := storage.New(ctx, c.Storage)
	if err != nil {
		log.Error(err, "failed to open storage")
		return 1
	}

	j := &job.Job{
		Config:  c,
		Storage: s,
		Log:     log.WithName("job"),
	}
	result, err := j.Run(ctx)
	if err != nil {
		log.Error(err, "failed to produce report")
		return 1
	}

	if err := report.WriteSummary(stdout, result.Report); err != nil {
		log.Error(err, "failed to print summary")
	}
	fmt.Fprintf(stdout, "Report: %s\n", result.Locations.HTML)

	// callback failures never change the exit code
	if err := j.Notify(ctx, result.Report); err != nil {
		log.Error(err, "failed to deliver report", "callback", c.CallbackURL)
	}

	if code := result.ExitCode(); code != 0 {
		log.Error(nil, "no pair could be compared", "omitted", result.Outcome.Omitted())
		return code
	}
	return 0
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
