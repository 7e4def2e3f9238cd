package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"

	"github.com/orbitpay/orbit/internal/assistant"
)

// TestServerRoutes verifies the full server wiring routes requests to
// the right handlers through the middleware chain.
func TestServerRoutes(t *testing.T) {
	t.Parallel()

	asker := &fakeAsker{answer: assistant.Answer{SessionID: "s", Text: "answer"}}
	srv := NewServer(asker, newFakeSessionStore(), &fakePinger{}, nil)
	handler := srv.Handler()

	tests := []struct {
		method     string
		path       string
		wantStatus int
	}{
		{http.MethodGet, "/health", http.StatusOK},
		{http.MethodGet, "/ready", http.StatusOK},
		{http.MethodGet, "/api/sessions", http.StatusOK},
		{http.MethodPost, "/api/sessions", http.StatusCreated},
		{http.MethodDelete, "/api/sessions/unknown", http.StatusNotFound},
		{http.MethodGet, "/api/sessions/unknown/turns", http.StatusNotFound},
		{http.MethodGet, "/api/ask", http.StatusMethodNotAllowed},
		{http.MethodGet, "/nope", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

// TestServerRunShutdown verifies graceful shutdown leaves no
// goroutines behind.
func TestServerRunShutdown(t *testing.T) {
	defer goleak.VerifyNone(t,
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)

	srv := NewServer(&fakeAsker{}, newFakeSessionStore(), &fakePinger{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Run(ctx, "127.0.0.1:0")
	}()

	// Give ListenAndServe a moment to bind before cancelling.
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
