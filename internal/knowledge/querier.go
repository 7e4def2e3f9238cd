package knowledge

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// Querier defines the database operations the Store needs.
// Interfaces live with the consumer; tests substitute a fake and
// production uses PgxQuerier.
type Querier interface {
	// UpsertDocument inserts or updates a document by source URI and
	// returns the canonical document ID.
	UpsertDocument(ctx context.Context, arg UpsertDocumentParams) (string, error)

	// GetDocumentBySourceURI fetches a document row. Returns
	// pgx.ErrNoRows when the URI is unknown.
	GetDocumentBySourceURI(ctx context.Context, sourceURI string) (DocumentRow, error)

	// DeleteDocumentBySourceURI deletes a document and, via cascade,
	// its chunks. Returns the number of documents removed.
	DeleteDocumentBySourceURI(ctx context.Context, sourceURI string) (int64, error)

	// ReplaceChunks atomically swaps a document's chunks for a new set.
	ReplaceChunks(ctx context.Context, documentID string, chunks []InsertChunkParams) error

	// DeleteChunk removes a single chunk. Returns the number of chunks
	// removed.
	DeleteChunk(ctx context.Context, chunkID string) (int64, error)

	// SearchChunks performs vector similarity search, filtered by
	// embedding model and optional metadata.
	SearchChunks(ctx context.Context, arg SearchChunksParams) ([]SearchChunksRow, error)

	// CountChunks counts chunks matching the filter (nil = all).
	CountChunks(ctx context.Context, filterMetadata []byte) (int64, error)
}

// UpsertDocumentParams holds the columns written by UpsertDocument.
type UpsertDocumentParams struct {
	ID          string
	SourceURI   string
	Title       string
	RawText     string
	ContentHash string
	FetchedAt   time.Time
}

// DocumentRow mirrors the documents table.
type DocumentRow struct {
	ID          string
	SourceURI   string
	Title       string
	RawText     string
	ContentHash string
	FetchedAt   time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// InsertChunkParams holds the columns written per chunk.
type InsertChunkParams struct {
	ID          string
	DocumentID  string
	Content     string
	StartOffset int
	EndOffset   int
	TokenCount  int
	Embedding   *pgvector.Vector
	ModelID     string
	Metadata    []byte
}

// SearchChunksParams configures a vector search.
type SearchChunksParams struct {
	QueryEmbedding *pgvector.Vector
	ModelID        string
	FilterMetadata []byte // nil disables the metadata filter
	ResultLimit    int
}

// SearchChunksRow is one row of a vector search.
type SearchChunksRow struct {
	ID          string
	DocumentID  string
	Content     string
	StartOffset int
	EndOffset   int
	TokenCount  int
	Metadata    []byte
	SourceURI   string
	Title       string
	Similarity  float64
}

const upsertDocumentSQL = `
INSERT INTO documents (id, source_uri, title, raw_text, content_hash, fetched_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (source_uri) DO UPDATE SET
    title = EXCLUDED.title,
    raw_text = EXCLUDED.raw_text,
    content_hash = EXCLUDED.content_hash,
    fetched_at = EXCLUDED.fetched_at,
    updated_at = now()
RETURNING id`

const getDocumentBySourceURISQL = `
SELECT id, source_uri, title, raw_text, content_hash, fetched_at, created_at, updated_at
FROM documents
WHERE source_uri = $1`

const deleteDocumentBySourceURISQL = `
DELETE FROM documents WHERE source_uri = $1`

const deleteChunksByDocumentSQL = `
DELETE FROM chunks WHERE document_id = $1`

const deleteChunkSQL = `
DELETE FROM chunks WHERE id = $1`

const insertChunkSQL = `
INSERT INTO chunks (id, document_id, content, start_offset, end_offset,
                    token_count, embedding, model_id, metadata)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

// seq is a global insertion counter; ordering by it after distance
// gives equal-similarity rows a stable, insertion-ordered tie-break.
const searchChunksSQL = `
SELECT c.id, c.document_id, c.content, c.start_offset, c.end_offset,
       c.token_count, c.metadata, d.source_uri, d.title,
       1 - (c.embedding <=> $1) AS similarity
FROM chunks c
JOIN documents d ON d.id = c.document_id
WHERE c.model_id = $2
ORDER BY c.embedding <=> $1, c.seq ASC
LIMIT $3`

const searchChunksFilteredSQL = `
SELECT c.id, c.document_id, c.content, c.start_offset, c.end_offset,
       c.token_count, c.metadata, d.source_uri, d.title,
       1 - (c.embedding <=> $1) AS similarity
FROM chunks c
JOIN documents d ON d.id = c.document_id
WHERE c.model_id = $2 AND c.metadata @> $3
ORDER BY c.embedding <=> $1, c.seq ASC
LIMIT $4`

const countChunksSQL = `
SELECT COUNT(*) FROM chunks`

const countChunksFilteredSQL = `
SELECT COUNT(*) FROM chunks WHERE metadata @> $1`

// PgxQuerier implements Querier against a pgx connection pool.
type PgxQuerier struct {
	pool *pgxpool.Pool
}

// NewPgxQuerier creates a PgxQuerier. The pool must have pgvector
// types registered (see database.NewPool).
func NewPgxQuerier(pool *pgxpool.Pool) *PgxQuerier {
	return &PgxQuerier{pool: pool}
}

func (q *PgxQuerier) UpsertDocument(ctx context.Context, arg UpsertDocumentParams) (string, error) {
	var id string
	err := q.pool.QueryRow(ctx, upsertDocumentSQL,
		arg.ID, arg.SourceURI, arg.Title, arg.RawText, arg.ContentHash, arg.FetchedAt,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("upsert document: %w", err)
	}
	return id, nil
}

func (q *PgxQuerier) GetDocumentBySourceURI(ctx context.Context, sourceURI string) (DocumentRow, error) {
	var row DocumentRow
	err := q.pool.QueryRow(ctx, getDocumentBySourceURISQL, sourceURI).Scan(
		&row.ID, &row.SourceURI, &row.Title, &row.RawText,
		&row.ContentHash, &row.FetchedAt, &row.CreatedAt, &row.UpdatedAt,
	)
	if err != nil {
		return DocumentRow{}, err
	}
	return row, nil
}

func (q *PgxQuerier) DeleteDocumentBySourceURI(ctx context.Context, sourceURI string) (int64, error) {
	tag, err := q.pool.Exec(ctx, deleteDocumentBySourceURISQL, sourceURI)
	if err != nil {
		return 0, fmt.Errorf("delete document: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ReplaceChunks deletes existing chunks and inserts the new set in one
// transaction, so a reader never observes a half-replaced document.
func (q *PgxQuerier) ReplaceChunks(ctx context.Context, documentID string, chunks []InsertChunkParams) error {
	tx, err := q.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin replace chunks: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, deleteChunksByDocumentSQL, documentID); err != nil {
		return fmt.Errorf("delete old chunks: %w", err)
	}

	for i, c := range chunks {
		_, err := tx.Exec(ctx, insertChunkSQL,
			c.ID, c.DocumentID, c.Content, c.StartOffset, c.EndOffset,
			c.TokenCount, c.Embedding, c.ModelID, c.Metadata,
		)
		if err != nil {
			return fmt.Errorf("insert chunk %d: %w", i, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit replace chunks: %w", err)
	}
	return nil
}

func (q *PgxQuerier) DeleteChunk(ctx context.Context, chunkID string) (int64, error) {
	tag, err := q.pool.Exec(ctx, deleteChunkSQL, chunkID)
	if err != nil {
		return 0, fmt.Errorf("delete chunk: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (q *PgxQuerier) SearchChunks(ctx context.Context, arg SearchChunksParams) ([]SearchChunksRow, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if len(arg.FilterMetadata) > 0 {
		rows, err = q.pool.Query(ctx, searchChunksFilteredSQL,
			arg.QueryEmbedding, arg.ModelID, arg.FilterMetadata, arg.ResultLimit)
	} else {
		rows, err = q.pool.Query(ctx, searchChunksSQL,
			arg.QueryEmbedding, arg.ModelID, arg.ResultLimit)
	}
	if err != nil {
		return nil, fmt.Errorf("search chunks: %w", err)
	}
	defer rows.Close()

	var out []SearchChunksRow
	for rows.Next() {
		var r SearchChunksRow
		err := rows.Scan(
			&r.ID, &r.DocumentID, &r.Content, &r.StartOffset, &r.EndOffset,
			&r.TokenCount, &r.Metadata, &r.SourceURI, &r.Title, &r.Similarity,
		)
		if err != nil {
			return nil, fmt.Errorf("scan search row: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate search rows: %w", err)
	}
	return out, nil
}

func (q *PgxQuerier) CountChunks(ctx context.Context, filterMetadata []byte) (int64, error) {
	var count int64
	var err error
	if len(filterMetadata) > 0 {
		err = q.pool.QueryRow(ctx, countChunksFilteredSQL, filterMetadata).Scan(&count)
	} else {
		err = q.pool.QueryRow(ctx, countChunksSQL).Scan(&count)
	}
	if err != nil {
		return 0, fmt.Errorf("count chunks: %w", err)
	}
	return count, nil
}
