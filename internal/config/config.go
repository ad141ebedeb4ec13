package config

import (
	"fmt"
	"image/color"
	"os"
	"strconv"
	"strings"

	"visual-diff/internal/compare"
	diffimage "visual-diff/internal/diff/image"
	"visual-diff/internal/storage"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/xerrors"
	"gopkg.in/yaml.v3"
)

type Pair struct {
	Baseline string `yaml:"baseline"`
	Target   string `yaml:"target"`
	Label    string `yaml:"label,omitempty"`
}

// Config enumerates every recognized option. Start from Default, overlay a file with Load,
// apply flags, then call Validate once before use.
type Config struct {
	Title       string   `yaml:"title"`
	Screenshots string   `yaml:"screenshots"`
	Capture     string   `yaml:"capture"`
	Sources     []string `yaml:"sources"`
	// Pairs defaults to every combination of Sources in declared order.
	Pairs    []Pair `yaml:"pairs"`
	Viewport string `yaml:"viewport"`

	Engine          string  `yaml:"engine"`
	Tolerance       float64 `yaml:"tolerance"`
	Alpha           float64 `yaml:"alpha"`
	DetectAntiAlias bool    `yaml:"detectAntiAlias"`
	DiffColor       string  `yaml:"diffColor"`
	AltColor        string  `yaml:"altColor"`
	AntiAliasColor  string  `yaml:"antiAliasColor"`

	Workers int `yaml:"workers"`

	Storage        storage.Config `yaml:"storage"`
	PublishSources bool           `yaml:"publishSources"`
	CallbackURL    string         `yaml:"callbackURL"`
}

func Default() *Config {
	return &Config{
		Title:           "Cross-Browser Visual Comparison Report",
		Screenshots:     "screenshots",
		Capture:         "homepage.png",
		Sources:         []string{"chrome", "firefox", "safari"},
		Viewport:        "1920x1080 (Desktop)",
		Engine:          diffimage.EnginePixelMatch,
		Tolerance:       0.1,
		Alpha:           0.1,
		DetectAntiAlias: false,
		DiffColor:       "#ff00ff",
		AltColor:        "#00ffff",
		AntiAliasColor:  "#ffff00",
		Workers:         0,
		Storage: storage.Config{
			Backend:   storage.BackendFile,
			Directory: "screenshots/diff-maps",
		},
	}
}

// Load overlays the YAML file at path onto the defaults.
func Load(path string) (*Config, error) {
	c := Default()
	if path == "" {
		return c, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, xerrors.Errorf("failed to read config file: %w", err)
	}

	decoder := yaml.NewDecoder(strings.NewReader(string(data)))
	decoder.KnownFields(true)
	if err := decoder.Decode(c); err != nil {
		return nil, xerrors.Errorf("failed to parse config file %s: %w", path, err)
	}

	return c, nil
}

// ComparisonPairs returns the declared pairs with labels filled in.
func (c *Config) ComparisonPairs() []compare.Pair {
	declared := c.Pairs
	if len(declared) == 0 {
		for i := 0; i < len(c.Sources); i++ {
			for j := i + 1; j < len(c.Sources); j++ {
				declared = append(declared, Pair{Baseline: c.Sources[i], Target: c.Sources[j]})
			}
		}
	}

	caser := cases.Title(language.English)
	pairs := make([]compare.Pair, 0, len(declared))
	for _, p := range declared {
		label := p.Label
		if label == "" {
			label = fmt.Sprintf("%s vs %s", caser.String(p.Baseline), caser.String(p.Target))
		}
		pairs = append(pairs, compare.Pair{
			Baseline: p.Baseline,
			Target:   p.Target,
			Label:    label,
		})
	}
	return pairs
}

func (c *Config) PixelMatchOptions() (diffimage.PixelMatchOptions, error) {
	diffColor, err := ParseColor(c.DiffColor)
	if err != nil {
		return diffimage.PixelMatchOptions{}, xerrors.Errorf("invalid diffColor: %w", err)
	}
	altColor, err := ParseColor(c.AltColor)
	if err != nil {
		return diffimage.PixelMatchOptions{}, xerrors.Errorf("invalid altColor: %w", err)
	}
	antiAliasColor, err := ParseColor(c.AntiAliasColor)
	if err != nil {
		return diffimage.PixelMatchOptions{}, xerrors.Errorf("invalid antiAliasColor: %w", err)
	}

	return diffimage.PixelMatchOptions{
		Threshold:       c.Tolerance,
		DetectAntiAlias: c.DetectAntiAlias,
		Alpha:           c.Alpha,
		DiffColor:       diffColor,
		AltColor:        altColor,
		AntiAliasColor:  antiAliasColor,
	}, nil
}

func (c *Config) Validate() error {
	if c.Screenshots == "" {
		return xerrors.New("screenshots directory is required")
	}
	if c.Capture == "" {
		return xerrors.New("capture name is required")
	}
	if len(c.Sources) == 0 {
		return xerrors.New("at least one source is required")
	}

	declared := map[string]bool{}
	for _, source := range c.Sources {
		if source == "" || strings.ContainsAny(source, `/\`) {
			return xerrors.Errorf("invalid source name: %q", source)
		}
		if declared[source] {
			return xerrors.Errorf("duplicate source: %s", source)
		}
		declared[source] = true
	}

	pairs := c.ComparisonPairs()
	if len(pairs) == 0 {
		return xerrors.New("at least one comparison pair is required")
	}
	keys := map[string]bool{}
	for _, p := range pairs {
		if !declared[p.Baseline] || !declared[p.Target] {
			return xerrors.Errorf("pair %q references an undeclared source", p.Label)
		}
		if p.Baseline == p.Target {
			return xerrors.Errorf("pair %q compares a source with itself", p.Label)
		}
		if keys[p.DiffKey()] {
			return xerrors.Errorf("pair %q is declared twice", p.Label)
		}
		keys[p.DiffKey()] = true
	}

	if !(c.Tolerance >= 0 && c.Tolerance <= 1) {
		return xerrors.Errorf("tolerance must be within [0, 1]: %v", c.Tolerance)
	}
	if !(c.Alpha >= 0 && c.Alpha <= 1) {
		return xerrors.Errorf("alpha must be within [0, 1]: %v", c.Alpha)
	}
	switch c.Engine {
	case diffimage.EnginePixelMatch, diffimage.EngineBrightness, diffimage.EngineRegions:
	default:
		return xerrors.Errorf("unknown diff engine: %s", c.Engine)
	}
	options, err := c.PixelMatchOptions()
	if err != nil {
		return err
	}
	if options.DiffColor == options.AltColor {
		return xerrors.New("diffColor and altColor must differ")
	}
	if c.Workers < 0 {
		return xerrors.Errorf("workers must not be negative: %d", c.Workers)
	}

	switch c.Storage.Backend {
	case storage.BackendFile:
		if c.Storage.Directory == "" {
			return xerrors.New("storage directory is required for the file backend")
		}
	case storage.BackendS3:
		if c.Storage.Bucket == "" {
			return xerrors.New("storage bucket is required for the s3 backend")
		}
	default:
		return xerrors.Errorf("unknown storage backend: %s", c.Storage.Backend)
	}

	return nil
}

// ParseColor parses "#rrggbb".
func ParseColor(s string) (color.NRGBA, error) {
	if len(s) != 7 || s[0] != '#' {
		return color.NRGBA{}, xerrors.Errorf("expected #rrggbb, got %q", s)
	}
	v, err := strconv.ParseUint(s[1:], 16, 32)
	if err != nil {
		return color.NRGBA{}, xerrors.Errorf("expected #rrggbb, got %q", s)
	}
	return color.NRGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 255}, nil
}
