package websearch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

const sampleResponse = `{
  "results": [
    {"title": "Refund timelines", "url": "https://example.com/refunds", "content": "Refunds usually settle in five days."},
    {"title": "No url entry", "url": "", "content": "dropped"},
    {"title": "Chargeback guide", "url": "https://example.com/chargebacks", "content": "Chargebacks take longer."},
    {"title": "Third", "url": "https://example.com/third", "content": "Filler."}
  ]
}`

func TestSearchParsesAndCaps(t *testing.T) {
	var gotQuery, gotFormat string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		gotFormat = r.URL.Query().Get("format")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(sampleResponse))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, MaxResults: 2}, nil)
	results, err := c.Search(context.Background(), "refund timeline")
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}

	if gotQuery != "refund timeline" {
		t.Errorf("query = %q, want refund timeline", gotQuery)
	}
	if gotFormat != "json" {
		t.Errorf("format = %q, want json", gotFormat)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2 (cap)", len(results))
	}
	if results[0].URL != "https://example.com/refunds" {
		t.Errorf("rank order lost: %v", results)
	}
	if results[1].URL != "https://example.com/chargebacks" {
		t.Errorf("url-less result not dropped: %v", results)
	}
}

func TestSearchDisabled(t *testing.T) {
	c := New(Config{}, nil)
	if c.Enabled() {
		t.Error("Enabled() = true with empty base url")
	}
	_, err := c.Search(context.Background(), "anything")
	if !errors.Is(err, ErrDisabled) {
		t.Errorf("error = %v, want ErrDisabled", err)
	}
}

func TestSearchServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL}, nil)
	if _, err := c.Search(context.Background(), "anything"); err == nil {
		t.Error("Search() = nil error for HTTP 502")
	}
}

func TestSearchTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte(`{"results": []}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, Timeout: 20 * time.Millisecond}, nil)
	if _, err := c.Search(context.Background(), "anything"); err == nil {
		t.Error("Search() = nil error after timeout")
	}
}

func TestSearchMalformedJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html>not json</html>"))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL}, nil)
	if _, err := c.Search(context.Background(), "anything"); err == nil {
		t.Error("Search() = nil error for malformed body")
	}
}
