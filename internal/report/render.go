package report

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"regexp"
	"strings"

	"visual-diff/internal/compare"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/xerrors"
)

//go:embed report.html.tmpl
var htmlTemplate string

var hexColor = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

var reportTemplate = template.Must(template.New("report").Funcs(template.FuncMap{
	"join":    strings.Join,
	"title":   title,
	"count":   formatCount,
	"percent": formatPercent,
	"badge": func(s compare.Status) string {
		return "status-" + strings.ToLower(string(s))
	},
	"css": func(s string) template.CSS {
		if !hexColor.MatchString(s) {
			return template.CSS("inherit")
		}
		return template.CSS(s)
	},
}).Parse(htmlTemplate))

// Casers carry state and are not shared between goroutines.
func title(s string) string {
	return cases.Title(language.English).String(s)
}

func formatCount(n int) string {
	return message.NewPrinter(language.English).Sprintf("%d", n)
}

func formatPercent(p float64) string {
	return fmt.Sprintf("%.2f", p)
}

// RenderHTML writes r as a standalone HTML document. The output depends only on r.
func RenderHTML(w io.Writer, r *Report) error {
	if err := reportTemplate.Execute(w, r); err != nil {
		return xerrors.Errorf("failed to render HTML report: %w", err)
	}
	return nil
}

func RenderJSON(w io.Writer, r *Report) error {
	b, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return xerrors.Errorf("failed to marshal report: %w", err)
	}
	if _, err := w.Write(append(b, '\n')); err != nil {
		return xerrors.Errorf("failed to write report: %w", err)
	}
	return nil
}

// WriteSummary prints one line per comparison in declared order.
func WriteSummary(w io.Writer, r *Report) error {
	var buffer bytes.Buffer
	for _, c := range r.Comparisons {
		if c.Omission != nil {
			fmt.Fprintf(&buffer, "%s: skipped (%s: %s)\n", c.Label, c.Omission.Kind, c.Omission.Reason)
			continue
		}
		fmt.Fprintf(&buffer, "%s: %s%% difference %s (%s pixels)\n", c.Label, formatPercent(c.Percentage), c.Status, formatCount(c.DiffPixels))
	}
	if _, err := w.Write(buffer.Bytes()); err != nil {
		return xerrors.Errorf("failed to write summary: %w", err)
	}
	return nil
}
