package knowledge

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/api"
)

// mockEmbedder is a simple mock implementation of ai.Embedder for testing.
// It returns position-based vectors so tests can check ordering.
type mockEmbedder struct {
	dims int
	err  error
}

func (m *mockEmbedder) Name() string { return "mock-embedder" }

func (m *mockEmbedder) Register(_ api.Registry) {
	// No-op for testing
}

func (m *mockEmbedder) Embed(_ context.Context, req *ai.EmbedRequest) (*ai.EmbedResponse, error) {
	if m.err != nil {
		return nil, m.err
	}
	embeddings := make([]*ai.Embedding, len(req.Input))
	for i := range req.Input {
		v := make([]float32, m.dims)
		for d := range v {
			v[d] = float32(i + d)
		}
		embeddings[i] = &ai.Embedding{Embedding: v}
	}
	return &ai.EmbedResponse{Embeddings: embeddings}, nil
}

func TestEmbedTextsPreservesOrder(t *testing.T) {
	e := NewEmbedder(&mockEmbedder{dims: 3}, "test-model", 3, nil)

	vectors, err := e.EmbedTexts(context.Background(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("EmbedTexts() error = %v", err)
	}
	if len(vectors) != 3 {
		t.Fatalf("got %d vectors, want 3", len(vectors))
	}
	for i, v := range vectors {
		if v[0] != float32(i) {
			t.Errorf("vector %d out of order: first component %f, want %d", i, v[0], i)
		}
	}
}

func TestEmbedTextsEmptyInput(t *testing.T) {
	e := NewEmbedder(&mockEmbedder{dims: 3}, "test-model", 3, nil)
	vectors, err := e.EmbedTexts(context.Background(), nil)
	if err != nil {
		t.Fatalf("EmbedTexts() error = %v", err)
	}
	if vectors != nil {
		t.Errorf("got %v, want nil", vectors)
	}
}

func TestEmbedTextsProviderError(t *testing.T) {
	e := NewEmbedder(&mockEmbedder{err: errors.New("quota exceeded")}, "test-model", 3, nil)
	e.retry = RetryConfig{MaxAttempts: 1}
	_, err := e.EmbedTexts(context.Background(), []string{"a"})
	if !errors.Is(err, ErrEmbeddingUnavailable) {
		t.Errorf("error = %v, want ErrEmbeddingUnavailable", err)
	}
}

// countingEmbedder fails a fixed number of times before succeeding.
type countingEmbedder struct {
	mockEmbedder
	failures int
	calls    int
}

func (c *countingEmbedder) Embed(ctx context.Context, req *ai.EmbedRequest) (*ai.EmbedResponse, error) {
	c.calls++
	if c.calls <= c.failures {
		return nil, errors.New("temporarily unavailable")
	}
	return c.mockEmbedder.Embed(ctx, req)
}

func TestEmbedTextsRetriesTransientErrors(t *testing.T) {
	provider := &countingEmbedder{mockEmbedder: mockEmbedder{dims: 3}, failures: 2}
	e := NewEmbedder(provider, "test-model", 3, nil)
	e.retry = RetryConfig{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond}

	vectors, err := e.EmbedTexts(context.Background(), []string{"a"})
	if err != nil {
		t.Fatalf("EmbedTexts() error = %v", err)
	}
	if len(vectors) != 1 {
		t.Fatalf("got %d vectors, want 1", len(vectors))
	}
	if provider.calls != 3 {
		t.Errorf("provider called %d times, want 3", provider.calls)
	}
}

func TestEmbedTextsDoesNotRetryDimensionMismatch(t *testing.T) {
	provider := &countingEmbedder{mockEmbedder: mockEmbedder{dims: 5}}
	e := NewEmbedder(provider, "test-model", 3, nil)
	e.retry = RetryConfig{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond}

	_, err := e.EmbedTexts(context.Background(), []string{"a"})
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("error = %v, want ErrDimensionMismatch", err)
	}
	if provider.calls != 1 {
		t.Errorf("provider called %d times, want 1", provider.calls)
	}
}

func TestEmbedTextsDimensionMismatch(t *testing.T) {
	e := NewEmbedder(&mockEmbedder{dims: 5}, "test-model", 3, nil)
	_, err := e.EmbedTexts(context.Background(), []string{"a"})
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("error = %v, want ErrDimensionMismatch", err)
	}
}

func TestEmbedQueryMatchesBatch(t *testing.T) {
	e := NewEmbedder(&mockEmbedder{dims: 3}, "test-model", 3, nil)

	single, err := e.EmbedQuery(context.Background(), "hello")
	if err != nil {
		t.Fatalf("EmbedQuery() error = %v", err)
	}
	batch, err := e.EmbedTexts(context.Background(), []string{"hello"})
	if err != nil {
		t.Fatalf("EmbedTexts() error = %v", err)
	}
	for i := range single {
		if single[i] != batch[0][i] {
			t.Errorf("component %d differs: single %f, batch %f", i, single[i], batch[0][i])
		}
	}
}
