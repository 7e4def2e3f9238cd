package rag

import (
	"context"
	"fmt"

	"github.com/orbitpay/orbit/internal/knowledge"
	"github.com/orbitpay/orbit/internal/log"
)

// Searcher is the slice of the knowledge store the retriever needs.
type Searcher interface {
	Search(ctx context.Context, query string, opts ...knowledge.SearchOption) ([]knowledge.Hit, error)
}

// Retriever runs similarity search and applies the confidence
// threshold. Hits below MinScore are dropped; when nothing survives,
// Retrieve returns ErrLowConfidence so the caller can fall back to
// external search.
type Retriever struct {
	searcher Searcher
	topK     int
	minScore float64
	logger   log.Logger
}

// NewRetriever creates a Retriever. minScore is a cosine similarity in
// [0, 1]; zero disables the threshold.
func NewRetriever(searcher Searcher, topK int, minScore float64, logger log.Logger) *Retriever {
	if topK <= 0 {
		topK = 5
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Retriever{
		searcher: searcher,
		topK:     topK,
		minScore: minScore,
		logger:   logger,
	}
}

// Retrieve returns the top hits for query that meet the similarity
// threshold, ordered by descending similarity.
func (r *Retriever) Retrieve(ctx context.Context, query string, opts ...knowledge.SearchOption) ([]knowledge.Hit, error) {
	searchOpts := append([]knowledge.SearchOption{knowledge.WithTopK(r.topK)}, opts...)

	hits, err := r.searcher.Search(ctx, query, searchOpts...)
	if err != nil {
		return nil, fmt.Errorf("retrieval search: %w", err)
	}

	kept := hits[:0:0]
	for _, h := range hits {
		if h.Similarity >= r.minScore {
			kept = append(kept, h)
		}
	}

	r.logger.Debug("retrieved chunks",
		"query_length", len(query),
		"candidates", len(hits),
		"kept", len(kept),
		"min_score", r.minScore,
	)

	if len(kept) == 0 {
		return nil, ErrLowConfidence
	}
	return kept, nil
}
