// Package websearch queries a SearXNG instance as the external
// fallback when the knowledge base has no confident answer.
package websearch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/orbitpay/orbit/internal/log"
)

// ErrDisabled indicates no SearXNG endpoint is configured.
var ErrDisabled = errors.New("web search is not configured")

// maxResponseSize bounds the JSON body read from SearXNG.
const maxResponseSize = 4 << 20

// Result is one external search result.
type Result struct {
	Title   string
	URL     string
	Snippet string
}

// Config holds SearXNG client settings.
type Config struct {
	// BaseURL of the SearXNG instance. Empty disables the client.
	BaseURL string
	// Timeout per search request.
	Timeout time.Duration
	// MaxResults caps how many results a search returns.
	MaxResults int
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	if c.MaxResults <= 0 {
		c.MaxResults = 5
	}
	return c
}

// Client queries the SearXNG JSON API.
//
// Client is safe for concurrent use by multiple goroutines.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     log.Logger
}

// New creates a Client. A client with an empty BaseURL is valid but
// every Search returns ErrDisabled.
func New(cfg Config, logger log.Logger) *Client {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = log.NewNop()
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
}

// Enabled reports whether an endpoint is configured.
func (c *Client) Enabled() bool {
	return strings.TrimSpace(c.cfg.BaseURL) != ""
}

// searxngResponse mirrors the fields we need from the SearXNG JSON API.
type searxngResponse struct {
	Results []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Content string `json:"content"`
	} `json:"results"`
}

// Search runs a query and returns at most MaxResults results in rank
// order. Results without a URL are dropped.
func (c *Client) Search(ctx context.Context, query string) ([]Result, error) {
	if !c.Enabled() {
		return nil, ErrDisabled
	}

	endpoint, err := url.Parse(strings.TrimRight(c.cfg.BaseURL, "/") + "/search")
	if err != nil {
		return nil, fmt.Errorf("parsing searxng url: %w", err)
	}
	q := endpoint.Query()
	q.Set("q", query)
	q.Set("format", "json")
	endpoint.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("building search request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("searxng request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("searxng returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("reading searxng response: %w", err)
	}

	var parsed searxngResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("parsing searxng response: %w", err)
	}

	results := make([]Result, 0, c.cfg.MaxResults)
	for _, r := range parsed.Results {
		if strings.TrimSpace(r.URL) == "" {
			continue
		}
		results = append(results, Result{
			Title:   r.Title,
			URL:     r.URL,
			Snippet: r.Content,
		})
		if len(results) == c.cfg.MaxResults {
			break
		}
	}

	c.logger.Debug("web search completed",
		"query_length", len(query), "results", len(results))
	return results, nil
}
