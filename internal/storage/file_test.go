package storage_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"visual-diff/internal/storage"

	"github.com/google/go-cmp/cmp"
)

func TestFileStorage(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "diff-maps")

	s, err := storage.NewFileStorage(ctx, storage.FileConfig{Directory: dir})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Fatalf("output directory was not created: %v", err)
	}

	url, err := s.Put(ctx, "nested/chrome-vs-firefox-diff.png", []byte("png"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := filepath.Join(dir, "nested", "chrome-vs-firefox-diff.png"); url != want {
		t.Errorf("url = %s, want %s", url, want)
	}

	// overwrite keeps a single file
	if _, err := s.Put(ctx, "nested/chrome-vs-firefox-diff.png", []byte("png2")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := s.Get(ctx, url)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff([]byte("png2"), got); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}

	entries, err := os.ReadDir(filepath.Join(dir, "nested"))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("expected exactly one file, found %d", len(entries))
	}
}

func TestNew_UnknownBackend(t *testing.T) {
	if _, err := storage.New(context.Background(), storage.Config{Backend: "ftp"}); err == nil {
		t.Errorf("expected error for unknown backend")
	}
}

func TestMemoryStorage(t *testing.T) {
	ctx := context.Background()
	s := storage.NewMemoryStorage()

	url, err := s.Put(ctx, "report.json", []byte("{}"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := s.Get(ctx, url)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff([]byte("{}"), got); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
	if _, err := s.Get(ctx, "mem://missing"); err == nil {
		t.Errorf("expected error for missing object")
	}
}
