package report_test

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"visual-diff/internal/compare"
	diffimage "visual-diff/internal/diff/image"
	"visual-diff/internal/report"
	"visual-diff/internal/storage"

	"github.com/google/go-cmp/cmp"
)

var declared = []compare.Pair{
	{Baseline: "chrome", Target: "firefox", Label: "Chrome vs Firefox"},
	{Baseline: "chrome", Target: "safari", Label: "Chrome vs Safari"},
	{Baseline: "firefox", Target: "safari", Label: "Firefox vs Safari"},
}

func syntheticEntries() []compare.Entry {
	return []compare.Entry{
		{
			Pair: declared[0],
			Result: &diffimage.Result{
				DiffPixels: 1234, TotalPixels: 2073600, Percentage: 0.06,
				Width: 1920, Height: 1080, DiffKey: "chrome-vs-firefox-diff.png",
			},
		},
		{
			Pair:     declared[1],
			Omission: &compare.Omission{Kind: compare.KindNotFound, Reason: "screenshots/safari/homepage.png: screenshot not found"},
		},
		{
			Pair: declared[2],
			Result: &diffimage.Result{
				DiffPixels: 207360, TotalPixels: 2073600, Percentage: 10,
				Width: 1920, Height: 1080, DiffKey: "firefox-vs-safari-diff.png",
			},
		},
	}
}

func metadata(at time.Time) report.Metadata {
	return report.Metadata{
		Title:       "Cross-Browser Visual Comparison",
		GeneratedAt: at,
		Sources:     []string{"chrome", "firefox", "safari"},
		Viewport:    "1920x1080 (Desktop)",
		Capture:     "homepage.png",
		Engine:      "pixelmatch",
		Tolerance:   0.1,
		DiffColor:   "#ff00ff",
		AltColor:    "#00ffff",
	}
}

func TestBuild(t *testing.T) {
	r, err := report.Build(declared, syntheticEntries(), metadata(time.Unix(0, 0)), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []report.Comparison{
		{
			Label: "Chrome vs Firefox", Baseline: "chrome", Target: "firefox",
			BaselineImage: "../chrome/homepage.png", TargetImage: "../firefox/homepage.png",
			DiffImage: "chrome-vs-firefox-diff.png", Status: compare.StatusExcellent,
			Percentage: 0.06, DiffPixels: 1234, TotalPixels: 2073600, Width: 1920, Height: 1080,
		},
		{
			Label: "Chrome vs Safari", Baseline: "chrome", Target: "safari",
			BaselineImage: "../chrome/homepage.png", TargetImage: "../safari/homepage.png",
			Omission: &compare.Omission{Kind: compare.KindNotFound, Reason: "screenshots/safari/homepage.png: screenshot not found"},
		},
		{
			Label: "Firefox vs Safari", Baseline: "firefox", Target: "safari",
			BaselineImage: "../firefox/homepage.png", TargetImage: "../safari/homepage.png",
			DiffImage: "firefox-vs-safari-diff.png", Status: compare.StatusPoor,
			Percentage: 10, DiffPixels: 207360, TotalPixels: 2073600, Width: 1920, Height: 1080,
		},
	}
	if diff := cmp.Diff(want, r.Comparisons); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(report.Summary{Compared: 2, Omitted: 1, Worst: compare.StatusPoor}, r.Summary); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestBuild_SourceRef(t *testing.T) {
	r, err := report.Build(declared[:1], syntheticEntries()[:1], metadata(time.Unix(0, 0)), func(source string) string {
		return "sources/" + source + "/homepage.png"
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := r.Comparisons[0].TargetImage; got != "sources/firefox/homepage.png" {
		t.Errorf("TargetImage = %s", got)
	}
}

func TestBuild_Mismatch(t *testing.T) {
	entries := syntheticEntries()

	if _, err := report.Build(declared, entries[:2], metadata(time.Unix(0, 0)), nil); err == nil {
		t.Errorf("expected error for missing entry")
	}

	swapped := []compare.Entry{entries[1], entries[0], entries[2]}
	if _, err := report.Build(declared, swapped, metadata(time.Unix(0, 0)), nil); err == nil {
		t.Errorf("expected error for out-of-order entries")
	}

	invalid := syntheticEntries()
	invalid[0].Omission = &compare.Omission{Kind: compare.KindComparison}
	if _, err := report.Build(declared, invalid, metadata(time.Unix(0, 0)), nil); err == nil {
		t.Errorf("expected error for entry with both result and omission")
	}
}

func render(t *testing.T, r *report.Report) string {
	t.Helper()
	var buffer bytes.Buffer
	if err := report.RenderHTML(&buffer, r); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return buffer.String()
}

func TestRenderHTML(t *testing.T) {
	at := time.Date(2026, 10, 15, 9, 30, 0, 0, time.UTC)
	r, err := report.Build(declared, syntheticEntries(), metadata(at), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	first := render(t, r)
	if second := render(t, r); first != second {
		t.Errorf("rendering the same report twice produced different documents")
	}

	for _, want := range []string{
		"2026-10-15 09:30:00 UTC",
		"0.06%",
		"1,234",
		"2,073,600",
		"1920&times;1080",
		`class="status-badge status-excellent">Excellent`,
		`class="status-badge status-poor">Poor`,
		`class="status-badge status-skipped">Skipped`,
		"NotFound:</strong> screenshots/safari/homepage.png: screenshot not found",
		`src="../chrome/homepage.png"`,
		`src="chrome-vs-firefox-diff.png"`,
		"Chrome Screenshot",
	} {
		if !strings.Contains(first, want) {
			t.Errorf("rendered report does not contain %q", want)
		}
	}

	chromeFirefox := strings.Index(first, "Chrome vs Firefox")
	chromeSafari := strings.Index(first, "Chrome vs Safari")
	firefoxSafari := strings.Index(first, "Firefox vs Safari")
	if !(chromeFirefox < chromeSafari && chromeSafari < firefoxSafari) {
		t.Errorf("comparisons are not rendered in declared order")
	}

	// the omitted pair shows no metrics
	omitted := first[chromeSafari:firefoxSafari]
	if strings.Contains(omitted, "Visual Difference") {
		t.Errorf("omitted pair should not render metrics")
	}
}

func TestRenderHTML_OnlyTimestampVaries(t *testing.T) {
	a, err := report.Build(declared, syntheticEntries(), metadata(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)), nil)
	if err != nil {
		t.Fatal(err)
	}
	b, err := report.Build(declared, syntheticEntries(), metadata(time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC)), nil)
	if err != nil {
		t.Fatal(err)
	}

	normalizedA := strings.Replace(render(t, a), "2026-01-01 00:00:00 UTC", "<timestamp>", 1)
	normalizedB := strings.Replace(render(t, b), "2026-02-02 00:00:00 UTC", "<timestamp>", 1)
	if diff := cmp.Diff(normalizedA, normalizedB); diff != "" {
		t.Errorf("(-a +b):\n%s", diff)
	}
}

func TestRenderJSON(t *testing.T) {
	r, err := report.Build(declared, syntheticEntries(), metadata(time.Unix(0, 0).UTC()), nil)
	if err != nil {
		t.Fatal(err)
	}

	var buffer bytes.Buffer
	if err := report.RenderJSON(&buffer, r); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var decoded report.Report
	if err := json.Unmarshal(buffer.Bytes(), &decoded); err != nil {
		t.Fatalf("report is not valid JSON: %v", err)
	}
	if diff := cmp.Diff(r.Comparisons, decoded.Comparisons); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestWriteSummary(t *testing.T) {
	r, err := report.Build(declared, syntheticEntries(), metadata(time.Unix(0, 0)), nil)
	if err != nil {
		t.Fatal(err)
	}

	var buffer bytes.Buffer
	if err := report.WriteSummary(&buffer, r); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := "Chrome vs Firefox: 0.06% difference Excellent (1,234 pixels)\n" +
		"Chrome vs Safari: skipped (NotFound: screenshots/safari/homepage.png: screenshot not found)\n" +
		"Firefox vs Safari: 10.00% difference Poor (207,360 pixels)\n"
	if diff := cmp.Diff(want, buffer.String()); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestWrite(t *testing.T) {
	r, err := report.Build(declared, syntheticEntries(), metadata(time.Unix(0, 0)), nil)
	if err != nil {
		t.Fatal(err)
	}

	s := storage.NewMemoryStorage()
	locations, err := report.Write(context.Background(), s, r)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, url := range []string{locations.HTML, locations.JSON} {
		if _, err := s.Get(context.Background(), url); err != nil {
			t.Errorf("%s was not stored: %v", url, err)
		}
	}
}
