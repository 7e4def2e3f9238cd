// Package webfetch downloads pages and extracts their readable text
// for ingestion.
package webfetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"github.com/gocolly/colly/v2"

	"github.com/orbitpay/orbit/internal/log"
	"github.com/orbitpay/orbit/internal/rag"
)

// ErrNoContent indicates a page yielded no extractable text.
var ErrNoContent = errors.New("no extractable content")

// Config holds crawler limits.
type Config struct {
	// Parallelism is max concurrent requests per domain.
	Parallelism int
	// Delay between requests to the same domain.
	Delay time.Duration
	// Timeout per request.
	Timeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Parallelism <= 0 {
		c.Parallelism = 2
	}
	if c.Delay < 0 {
		c.Delay = 0
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	return c
}

// Fetcher downloads pages with polite crawling limits and extracts the
// main article text. Boilerplate (navigation, scripts, ads) is
// stripped by readability extraction, with a plain-DOM fallback for
// pages readability cannot parse.
type Fetcher struct {
	base   *colly.Collector
	logger log.Logger
}

// New creates a Fetcher.
func New(cfg Config, logger log.Logger) (*Fetcher, error) {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = log.NewNop()
	}

	c := colly.NewCollector(colly.Async(true))
	c.SetRequestTimeout(cfg.Timeout)
	err := c.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: cfg.Parallelism,
		Delay:       cfg.Delay,
	})
	if err != nil {
		return nil, fmt.Errorf("configuring crawler limits: %w", err)
	}

	return &Fetcher{base: c, logger: logger}, nil
}

// Fetch downloads one page and returns its extracted text.
// The per-request timeout comes from Config; cancelling ctx aborts
// requests that have not been sent yet and surfaces as the context
// error once in-flight work drains.
func (f *Fetcher) Fetch(ctx context.Context, uri string) (rag.Page, error) {
	if err := ctx.Err(); err != nil {
		return rag.Page{}, err
	}

	parsed, err := url.Parse(uri)
	if err != nil {
		return rag.Page{}, fmt.Errorf("parsing uri %q: %w", uri, err)
	}

	// Clone per fetch so response callbacks do not leak across calls.
	c := f.base.Clone()

	var (
		body     []byte
		fetchErr error
	)
	c.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil {
			r.Abort()
		}
	})
	c.OnResponse(func(r *colly.Response) {
		body = r.Body
	})
	c.OnError(func(r *colly.Response, err error) {
		status := 0
		if r != nil {
			status = r.StatusCode
		}
		fetchErr = fmt.Errorf("fetching %q (status %d): %w", uri, status, err)
	})

	if err := c.Visit(uri); err != nil {
		return rag.Page{}, fmt.Errorf("visiting %q: %w", uri, err)
	}
	c.Wait()

	// Aborted requests produce neither a response nor an OnError call,
	// so cancellation is reported from the context itself.
	if err := ctx.Err(); err != nil {
		return rag.Page{}, err
	}
	if fetchErr != nil {
		return rag.Page{}, fetchErr
	}

	page, err := extract(uri, parsed, body)
	if err != nil {
		return rag.Page{}, err
	}

	f.logger.Debug("fetched page",
		"uri", uri, "title", page.Title, "text_length", len(page.Text))
	return page, nil
}

// extract pulls title and readable text out of an HTML body.
func extract(uri string, parsed *url.URL, body []byte) (rag.Page, error) {
	article, err := readability.FromReader(bytes.NewReader(body), parsed)
	if err == nil {
		text := strings.TrimSpace(article.TextContent)
		if text != "" {
			return rag.Page{URI: uri, Title: article.Title, Text: text}, nil
		}
	}

	// Fallback for pages readability rejects: strip non-content nodes
	// and take the body text.
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return rag.Page{}, fmt.Errorf("parsing html from %q: %w", uri, err)
	}
	doc.Find("script, style, nav, footer, header").Remove()
	title := strings.TrimSpace(doc.Find("title").First().Text())
	text := strings.Join(strings.Fields(doc.Find("body").Text()), " ")
	if text == "" {
		return rag.Page{}, fmt.Errorf("%w: %s", ErrNoContent, uri)
	}
	return rag.Page{URI: uri, Title: title, Text: text}, nil
}
