package knowledge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/firebase/genkit/go/ai"

	"github.com/orbitpay/orbit/internal/log"
)

// RetryConfig bounds retries of provider embed calls.
type RetryConfig struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryConfig returns the retry policy used when none is set.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:     3,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     5 * time.Second,
	}
}

// Embedder wraps a Genkit ai.Embedder with model identity and
// dimensionality enforcement. Every vector it returns is tagged with
// ModelID so the store can reject mixed-model indexes.
//
// Embedder is safe for concurrent use by multiple goroutines.
type Embedder struct {
	embedder   ai.Embedder
	modelID    string
	dimensions int
	retry      RetryConfig
	logger     log.Logger
}

// NewEmbedder creates an Embedder. dimensions must match the vector
// column width in the chunks table.
func NewEmbedder(embedder ai.Embedder, modelID string, dimensions int, logger log.Logger) *Embedder {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Embedder{
		embedder:   embedder,
		modelID:    modelID,
		dimensions: dimensions,
		retry:      DefaultRetryConfig(),
		logger:     logger,
	}
}

// ModelID returns the provider model identifier vectors are tagged with.
func (e *Embedder) ModelID() string { return e.modelID }

// Dimensions returns the configured vector dimensionality.
func (e *Embedder) Dimensions() int { return e.dimensions }

// EmbedTexts embeds a batch of texts in a single provider call.
// The result preserves input order and has exactly one vector per
// input. Embedding the batch is equivalent to embedding each text
// individually; batching only saves round trips.
//
// Provider errors are retried with exponential backoff up to
// RetryConfig.MaxAttempts before surfacing ErrEmbeddingUnavailable.
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	delay := e.retry.InitialInterval
	for attempt := 1; ; attempt++ {
		vectors, err := e.embedOnce(ctx, texts)
		if err == nil {
			return vectors, nil
		}
		// Dimension mismatches are configuration problems; retrying
		// the same call cannot fix them.
		if errors.Is(err, ErrDimensionMismatch) || ctx.Err() != nil || attempt >= e.retry.MaxAttempts {
			return nil, err
		}

		e.logger.Warn("embed attempt failed, retrying",
			"attempt", attempt, "delay", delay, "error", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > e.retry.MaxInterval {
			delay = e.retry.MaxInterval
		}
	}
}

func (e *Embedder) embedOnce(ctx context.Context, texts []string) ([][]float32, error) {
	docs := make([]*ai.Document, len(texts))
	for i, t := range texts {
		docs[i] = ai.DocumentFromText(t, nil)
	}

	resp, err := e.embedder.Embed(ctx, &ai.EmbedRequest{Input: docs})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingUnavailable, err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d texts",
			ErrEmbeddingUnavailable, len(resp.Embeddings), len(texts))
	}

	vectors := make([][]float32, len(texts))
	for i, emb := range resp.Embeddings {
		if err := e.checkDimensions(emb.Embedding); err != nil {
			return nil, fmt.Errorf("text %d: %w", i, err)
		}
		vectors[i] = emb.Embedding
	}

	e.logger.Debug("embedded batch", "count", len(texts), "model", e.modelID)
	return vectors, nil
}

// EmbedQuery embeds a single query string.
func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (e *Embedder) checkDimensions(v []float32) error {
	if len(v) == 0 {
		return fmt.Errorf("%w: empty embedding returned", ErrEmbeddingUnavailable)
	}
	if len(v) != e.dimensions {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(v), e.dimensions)
	}
	return nil
}
