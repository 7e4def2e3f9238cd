package knowledge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"github.com/orbitpay/orbit/internal/log"
)

// Store manages documents and their embedded chunks with vector search.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	queries  Querier
	embedder *Embedder
	logger   log.Logger
}

// NewStore creates a Store.
//
// Example (production):
//
//	store := knowledge.NewStore(knowledge.NewPgxQuerier(pool), embedder, logger)
//
// Example (testing):
//
//	store := knowledge.NewStore(fakeQuerier, embedder, nil)
func NewStore(querier Querier, embedder *Embedder, logger log.Logger) *Store {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Store{
		queries:  querier,
		embedder: embedder,
		logger:   logger,
	}
}

// UpsertDocument writes a document and replaces its chunks with the
// given set. Chunk contents are embedded in one batch call before any
// row is written, so an embedding failure leaves the index untouched.
func (s *Store) UpsertDocument(ctx context.Context, doc Document, chunks []Chunk) error {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}

	vectors, err := s.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		return fmt.Errorf("embedding chunks for %q: %w", doc.SourceURI, err)
	}

	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	docID, err := s.queries.UpsertDocument(ctx, UpsertDocumentParams{
		ID:          doc.ID,
		SourceURI:   doc.SourceURI,
		Title:       doc.Title,
		RawText:     doc.RawText,
		ContentHash: doc.ContentHash,
		FetchedAt:   doc.FetchedAt,
	})
	if err != nil {
		return fmt.Errorf("upserting document %q: %w", doc.SourceURI, err)
	}

	params := make([]InsertChunkParams, len(chunks))
	for i, c := range chunks {
		metadataJSON, err := json.Marshal(orEmptyMetadata(c.Metadata))
		if err != nil {
			return fmt.Errorf("marshaling chunk metadata: %w", err)
		}
		vec := pgvector.NewVector(vectors[i])
		params[i] = InsertChunkParams{
			ID:          uuid.NewString(),
			DocumentID:  docID,
			Content:     c.Content,
			StartOffset: c.StartOffset,
			EndOffset:   c.EndOffset,
			TokenCount:  c.TokenCount,
			Embedding:   &vec,
			ModelID:     s.embedder.ModelID(),
			Metadata:    metadataJSON,
		}
	}

	if err := s.queries.ReplaceChunks(ctx, docID, params); err != nil {
		return fmt.Errorf("replacing chunks for %q: %w", doc.SourceURI, err)
	}

	s.logger.Debug("upserted document",
		"source_uri", doc.SourceURI, "chunks", len(chunks))
	return nil
}

// GetDocumentBySourceURI fetches a document by its source URI.
// Returns ErrNotFound when the URI is unknown.
func (s *Store) GetDocumentBySourceURI(ctx context.Context, sourceURI string) (Document, error) {
	row, err := s.queries.GetDocumentBySourceURI(ctx, sourceURI)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Document{}, fmt.Errorf("%w: %s", ErrNotFound, sourceURI)
		}
		return Document{}, fmt.Errorf("getting document %q: %w", sourceURI, err)
	}
	return Document{
		ID:          row.ID,
		SourceURI:   row.SourceURI,
		Title:       row.Title,
		RawText:     row.RawText,
		ContentHash: row.ContentHash,
		FetchedAt:   row.FetchedAt,
		CreatedAt:   row.CreatedAt,
		UpdatedAt:   row.UpdatedAt,
	}, nil
}

// DeleteDocument removes a document and its chunks.
// Returns ErrNotFound when the URI is unknown.
func (s *Store) DeleteDocument(ctx context.Context, sourceURI string) error {
	affected, err := s.queries.DeleteDocumentBySourceURI(ctx, sourceURI)
	if err != nil {
		return fmt.Errorf("deleting document %q: %w", sourceURI, err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, sourceURI)
	}
	s.logger.Debug("deleted document", "source_uri", sourceURI)
	return nil
}

// DeleteChunk removes a single chunk from the index. Returns
// ErrNotFound when the chunk ID is unknown.
func (s *Store) DeleteChunk(ctx context.Context, chunkID string) error {
	affected, err := s.queries.DeleteChunk(ctx, chunkID)
	if err != nil {
		return fmt.Errorf("deleting chunk %q: %w", chunkID, err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, chunkID)
	}
	return nil
}

// Search performs semantic search over the chunk index.
// Results come back ordered by descending similarity; ties resolve by
// insertion order. Only chunks embedded with the current model are
// considered.
//
// Example:
//
//	hits, err := store.Search(ctx, "refund timeline",
//	    knowledge.WithTopK(10),
//	    knowledge.WithFilter("category", "payments"))
func (s *Store) Search(ctx context.Context, query string, opts ...SearchOption) ([]Hit, error) {
	cfg := buildSearchConfig(opts)

	// Bound vector searches so a slow index scan cannot block callers.
	queryCtx, cancel := context.WithTimeout(ctx, cfg.timeout)
	defer cancel()

	queryVector, err := s.embedder.EmbedQuery(queryCtx, query)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("query embedding timeout: %w", err)
		}
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	var filterJSON []byte
	if len(cfg.filter) > 0 {
		// filterJSON always comes from json.Marshal, never raw user
		// input, and the @> operator runs parameterized.
		filterJSON, err = json.Marshal(cfg.filter)
		if err != nil {
			return nil, fmt.Errorf("marshaling filter: %w", err)
		}
	}

	vec := pgvector.NewVector(queryVector)
	rows, err := s.queries.SearchChunks(queryCtx, SearchChunksParams{
		QueryEmbedding: &vec,
		ModelID:        s.embedder.ModelID(),
		FilterMetadata: filterJSON,
		ResultLimit:    cfg.topK,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("search query timeout: %w", err)
		}
		return nil, fmt.Errorf("search failed: %w", err)
	}

	return s.rowsToHits(rows), nil
}

// CountChunks returns the number of indexed chunks matching the filter
// (nil or empty filter counts everything).
func (s *Store) CountChunks(ctx context.Context, filter map[string]string) (int, error) {
	var filterJSON []byte
	if len(filter) > 0 {
		var err error
		filterJSON, err = json.Marshal(filter)
		if err != nil {
			return 0, fmt.Errorf("marshaling filter: %w", err)
		}
	}

	count, err := s.queries.CountChunks(ctx, filterJSON)
	if err != nil {
		return 0, fmt.Errorf("count failed: %w", err)
	}
	if count > math.MaxInt {
		return 0, fmt.Errorf("chunk count %d exceeds platform int capacity", count)
	}
	return int(count), nil
}

func (s *Store) rowsToHits(rows []SearchChunksRow) []Hit {
	hits := make([]Hit, 0, len(rows))
	for _, row := range rows {
		var metadata map[string]string
		if err := json.Unmarshal(row.Metadata, &metadata); err != nil {
			s.logger.Warn("failed to parse chunk metadata",
				"chunk_id", row.ID, "error", err)
			metadata = make(map[string]string)
		}
		hits = append(hits, Hit{
			Chunk: Chunk{
				ID:          row.ID,
				DocumentID:  row.DocumentID,
				Content:     row.Content,
				StartOffset: row.StartOffset,
				EndOffset:   row.EndOffset,
				TokenCount:  row.TokenCount,
				Metadata:    metadata,
			},
			SourceURI:  row.SourceURI,
			Title:      row.Title,
			Similarity: clampSimilarity(row.Similarity),
		})
	}
	return hits
}

// clampSimilarity maps 1 - cosine distance into [0, 1]. Un-normalized
// vectors can push the raw value slightly outside the range.
func clampSimilarity(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func orEmptyMetadata(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
