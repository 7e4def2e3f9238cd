package rag

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/orbitpay/orbit/internal/knowledge"
	"github.com/orbitpay/orbit/internal/log"
)

// Page is fetched page content handed to the ingester.
type Page struct {
	URI   string
	Title string
	Text  string
}

// Fetcher retrieves and extracts readable text for a source URI.
type Fetcher interface {
	Fetch(ctx context.Context, uri string) (Page, error)
}

// DocumentStore is the slice of the knowledge store the ingester needs.
type DocumentStore interface {
	UpsertDocument(ctx context.Context, doc knowledge.Document, chunks []knowledge.Chunk) error
	GetDocumentBySourceURI(ctx context.Context, sourceURI string) (knowledge.Document, error)
}

// IngestStatus classifies the outcome for one source URI.
type IngestStatus string

const (
	StatusIngested IngestStatus = "ingested"
	StatusSkipped  IngestStatus = "skipped" // content unchanged since last ingest
	StatusFailed   IngestStatus = "failed"
)

// IngestResult is the per-URI outcome of an ingestion run.
type IngestResult struct {
	SourceURI string
	Status    IngestStatus
	Chunks    int
	Err       error
}

// IngestReport aggregates an ingestion run. One failing source never
// aborts the run; it is recorded and the rest proceed.
type IngestReport struct {
	Results []IngestResult
}

// Counts returns ingested, skipped and failed totals.
func (r IngestReport) Counts() (ingested, skipped, failed int) {
	for _, res := range r.Results {
		switch res.Status {
		case StatusIngested:
			ingested++
		case StatusSkipped:
			skipped++
		case StatusFailed:
			failed++
		}
	}
	return ingested, skipped, failed
}

// Ingester fetches sources, chunks their text and writes them into the
// knowledge base. Re-ingesting an unchanged source is a no-op, keyed
// by content hash.
type Ingester struct {
	fetcher  Fetcher
	store    DocumentStore
	chunker  *knowledge.Chunker
	metadata map[string]string
	logger   log.Logger
	now      func() time.Time
}

// NewIngester creates an Ingester. metadata is attached to every chunk
// produced by this ingester (e.g. a category tag) and may be nil.
func NewIngester(fetcher Fetcher, store DocumentStore, chunker *knowledge.Chunker, metadata map[string]string, logger log.Logger) *Ingester {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Ingester{
		fetcher:  fetcher,
		store:    store,
		chunker:  chunker,
		metadata: metadata,
		logger:   logger,
		now:      time.Now,
	}
}

// IngestAll processes each URI independently and returns a report.
// Context cancellation stops the run between documents; already
// written documents stay written.
func (ing *Ingester) IngestAll(ctx context.Context, uris []string) IngestReport {
	report := IngestReport{Results: make([]IngestResult, 0, len(uris))}
	for _, uri := range uris {
		if err := ctx.Err(); err != nil {
			report.Results = append(report.Results, IngestResult{
				SourceURI: uri, Status: StatusFailed, Err: err,
			})
			continue
		}
		res := ing.ingestOne(ctx, uri)
		if res.Status == StatusFailed {
			ing.logger.Warn("ingestion failed", "source_uri", uri, "error", res.Err)
		} else {
			ing.logger.Info("ingested source",
				"source_uri", uri, "status", res.Status, "chunks", res.Chunks)
		}
		report.Results = append(report.Results, res)
	}
	return report
}

func (ing *Ingester) ingestOne(ctx context.Context, uri string) IngestResult {
	page, err := ing.fetcher.Fetch(ctx, uri)
	if err != nil {
		return IngestResult{SourceURI: uri, Status: StatusFailed,
			Err: fmt.Errorf("fetching %q: %w", uri, err)}
	}

	hash := contentHash(page.Text)

	existing, err := ing.store.GetDocumentBySourceURI(ctx, uri)
	switch {
	case err == nil:
		if existing.ContentHash == hash {
			return IngestResult{SourceURI: uri, Status: StatusSkipped}
		}
	case errors.Is(err, knowledge.ErrNotFound):
		// first ingest
	default:
		return IngestResult{SourceURI: uri, Status: StatusFailed,
			Err: fmt.Errorf("checking existing document %q: %w", uri, err)}
	}

	chunks := ing.chunker.Chunk(page.Text)
	if len(chunks) == 0 {
		return IngestResult{SourceURI: uri, Status: StatusFailed,
			Err: fmt.Errorf("no extractable text in %q", uri)}
	}
	for i := range chunks {
		chunks[i].Metadata = ing.chunkMetadata(uri)
	}

	doc := knowledge.Document{
		ID:          existing.ID, // empty on first ingest, store assigns one
		SourceURI:   uri,
		Title:       page.Title,
		RawText:     page.Text,
		ContentHash: hash,
		FetchedAt:   ing.now(),
	}
	if err := ing.store.UpsertDocument(ctx, doc, chunks); err != nil {
		return IngestResult{SourceURI: uri, Status: StatusFailed,
			Err: fmt.Errorf("indexing %q: %w", uri, err)}
	}

	return IngestResult{SourceURI: uri, Status: StatusIngested, Chunks: len(chunks)}
}

func (ing *Ingester) chunkMetadata(uri string) map[string]string {
	m := map[string]string{"source_uri": uri}
	for k, v := range ing.metadata {
		m[k] = v
	}
	return m
}

func contentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
