package compare

import (
	"fmt"
	"path/filepath"
)

// Pair names two screenshot sources to compare, e.g. "chrome" and "firefox".
type Pair struct {
	Baseline string `json:"baseline"`
	Target   string `json:"target"`
	Label    string `json:"label"`
}

// DiffKey is the storage key of the pair's diff image. It depends only on the two
// source names, so declared pairs never share an output.
func (p Pair) DiffKey() string {
	return fmt.Sprintf("%s-vs-%s-diff.png", p.Baseline, p.Target)
}

// ScreenshotPath returns <root>/<source>/<capture>.
func ScreenshotPath(root string, source string, capture string) string {
	return filepath.Join(root, source, capture)
}
