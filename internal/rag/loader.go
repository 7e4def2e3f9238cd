package rag

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileFetcher loads static files (FAQ exports, policy text) from the
// local filesystem so they can be ingested alongside web pages.
type FileFetcher struct{}

// Fetch reads the file at path. The title defaults to the file name
// without its extension.
func (FileFetcher) Fetch(ctx context.Context, path string) (Page, error) {
	if err := ctx.Err(); err != nil {
		return Page{}, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Page{}, fmt.Errorf("reading %q: %w", path, err)
	}

	base := filepath.Base(path)
	title := strings.TrimSuffix(base, filepath.Ext(base))

	return Page{
		URI:   path,
		Title: title,
		Text:  strings.TrimSpace(string(data)),
	}, nil
}

// RoutingFetcher dispatches by URI shape: http and https go to the web
// fetcher, everything else is treated as a local file path.
type RoutingFetcher struct {
	Web  Fetcher
	File Fetcher
}

func (r RoutingFetcher) Fetch(ctx context.Context, uri string) (Page, error) {
	if strings.HasPrefix(uri, "http://") || strings.HasPrefix(uri, "https://") {
		return r.Web.Fetch(ctx, uri)
	}
	return r.File.Fetch(ctx, strings.TrimPrefix(uri, "file://"))
}
