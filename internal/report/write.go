package report

import (
	"bytes"
	"context"

	"visual-diff/internal/storage"

	"golang.org/x/xerrors"
)

const (
	HTMLKey = "comparison-report.html"
	JSONKey = "comparison-report.json"
)

type Locations struct {
	HTML string
	JSON string
}

// Write renders both documents before storing either, so a rendering failure leaves no report behind.
func Write(ctx context.Context, s storage.Storage, r *Report) (*Locations, error) {
	var html bytes.Buffer
	if err := RenderHTML(&html, r); err != nil {
		return nil, err
	}
	var json bytes.Buffer
	if err := RenderJSON(&json, r); err != nil {
		return nil, err
	}

	jsonURL, err := s.Put(ctx, JSONKey, json.Bytes())
	if err != nil {
		return nil, xerrors.Errorf("failed to save JSON report: %w", err)
	}
	htmlURL, err := s.Put(ctx, HTMLKey, html.Bytes())
	if err != nil {
		return nil, xerrors.Errorf("failed to save HTML report: %w", err)
	}

	return &Locations{
		HTML: htmlURL,
		JSON: jsonURL,
	}, nil
}
