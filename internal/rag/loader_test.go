package rag

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestFileFetcherReadsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "refund-policy.txt")
	if err := os.WriteFile(path, []byte("Refunds settle within 5 business days.\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	page, err := FileFetcher{}.Fetch(context.Background(), path)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if page.URI != path {
		t.Errorf("URI = %q, want %q", page.URI, path)
	}
	if page.Title != "refund-policy" {
		t.Errorf("Title = %q, want %q", page.Title, "refund-policy")
	}
	if page.Text != "Refunds settle within 5 business days." {
		t.Errorf("Text = %q", page.Text)
	}
}

func TestFileFetcherMissingFile(t *testing.T) {
	_, err := FileFetcher{}.Fetch(context.Background(), filepath.Join(t.TempDir(), "nope.txt"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestFileFetcherCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := FileFetcher{}.Fetch(ctx, "anything.txt")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestRoutingFetcher(t *testing.T) {
	web := &stubFetcher{pages: map[string]Page{
		"https://docs.example.com/fees": {URI: "https://docs.example.com/fees", Text: "Fees."},
	}}

	dir := t.TempDir()
	path := filepath.Join(dir, "faq.txt")
	if err := os.WriteFile(path, []byte("FAQ."), 0o600); err != nil {
		t.Fatal(err)
	}

	r := RoutingFetcher{Web: web, File: FileFetcher{}}

	page, err := r.Fetch(context.Background(), "https://docs.example.com/fees")
	if err != nil {
		t.Fatalf("web route error = %v", err)
	}
	if page.Text != "Fees." {
		t.Errorf("web Text = %q", page.Text)
	}

	page, err = r.Fetch(context.Background(), path)
	if err != nil {
		t.Fatalf("file route error = %v", err)
	}
	if page.Text != "FAQ." {
		t.Errorf("file Text = %q", page.Text)
	}

	page, err = r.Fetch(context.Background(), "file://"+path)
	if err != nil {
		t.Fatalf("file scheme route error = %v", err)
	}
	if page.Text != "FAQ." {
		t.Errorf("file scheme Text = %q", page.Text)
	}
}
