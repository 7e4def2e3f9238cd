// Package knowledge manages the document knowledge base: chunking,
// embedding and vector similarity search backed by PostgreSQL + pgvector.
package knowledge

import (
	"errors"
	"time"
)

var (
	// ErrNotFound indicates the requested document does not exist.
	ErrNotFound = errors.New("document not found")

	// ErrEmbeddingUnavailable indicates the embedding provider failed or
	// returned an unusable response.
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")

	// ErrDimensionMismatch indicates an embedding does not match the
	// configured vector dimensionality.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// Document represents a source document ingested into the knowledge base.
// SourceURI is the identity key: re-ingesting the same URI replaces the
// document's chunks.
type Document struct {
	ID          string
	SourceURI   string
	Title       string
	RawText     string
	ContentHash string
	FetchedAt   time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Chunk is a contiguous slice of a document's text. Offsets are byte
// positions into Document.RawText, so RawText[StartOffset:EndOffset]
// reproduces Content exactly.
type Chunk struct {
	ID          string
	DocumentID  string
	Index       int
	Content     string
	StartOffset int
	EndOffset   int
	TokenCount  int
	Metadata    map[string]string
}

// Hit is a single vector-search result.
type Hit struct {
	Chunk      Chunk
	SourceURI  string
	Title      string
	Similarity float64 // cosine similarity in [0, 1], higher is closer
}

// SearchOption configures search behavior using the functional options
// pattern.
type SearchOption func(*searchConfig)

type searchConfig struct {
	topK    int
	filter  map[string]string
	timeout time.Duration
}

// WithTopK sets the maximum number of results to return.
// Default is 5 if not specified.
func WithTopK(k int) SearchOption {
	return func(c *searchConfig) {
		if k > 0 {
			c.topK = k
		}
	}
}

// WithFilter adds a metadata filter to restrict search results.
// Multiple calls to WithFilter add additional filters (AND logic).
func WithFilter(key, value string) SearchOption {
	return func(c *searchConfig) {
		if c.filter == nil {
			c.filter = make(map[string]string)
		}
		c.filter[key] = value
	}
}

// WithTimeout overrides the default search timeout.
func WithTimeout(d time.Duration) SearchOption {
	return func(c *searchConfig) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func buildSearchConfig(opts []SearchOption) *searchConfig {
	cfg := &searchConfig{
		topK:    5,
		timeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}
