package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orbitpay/orbit/internal/rag"
	"github.com/orbitpay/orbit/internal/session"
)

type fakeSessionStore struct {
	sessions map[string]session.Session
	turns    map[string][]session.Turn
	nextID   int
}

func newFakeSessionStore() *fakeSessionStore {
	return &fakeSessionStore{
		sessions: make(map[string]session.Session),
		turns:    make(map[string][]session.Turn),
	}
}

func (f *fakeSessionStore) Create(_ context.Context, title string) (session.Session, error) {
	f.nextID++
	sess := session.Session{
		ID:        fmt.Sprintf("sess-%d", f.nextID),
		Title:     title,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	f.sessions[sess.ID] = sess
	return sess, nil
}

func (f *fakeSessionStore) Get(_ context.Context, id string) (session.Session, error) {
	sess, ok := f.sessions[id]
	if !ok {
		return session.Session{}, fmt.Errorf("%w: %s", session.ErrNotFound, id)
	}
	return sess, nil
}

func (f *fakeSessionStore) List(_ context.Context, limit int) ([]session.Session, error) {
	var out []session.Session
	for _, sess := range f.sessions {
		out = append(out, sess)
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeSessionStore) Delete(_ context.Context, id string) error {
	if _, ok := f.sessions[id]; !ok {
		return fmt.Errorf("%w: %s", session.ErrNotFound, id)
	}
	delete(f.sessions, id)
	delete(f.turns, id)
	return nil
}

func (f *fakeSessionStore) Turns(_ context.Context, sessionID string) ([]session.Turn, error) {
	return f.turns[sessionID], nil
}

func sessionMux(store SessionStore) *http.ServeMux {
	mux := http.NewServeMux()
	NewSessionHandler(store, nil).RegisterRoutes(mux)
	return mux
}

func TestSessionHandler_Create(t *testing.T) {
	t.Parallel()

	store := newFakeSessionStore()
	mux := sessionMux(store)

	req := httptest.NewRequest(http.MethodPost, "/api/sessions",
		strings.NewReader(`{"title":"Refund questions"}`))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code)

	var resp SessionResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.NotEmpty(t, resp.ID)
	assert.Equal(t, "Refund questions", resp.Title)
}

func TestSessionHandler_CreateEmptyBody(t *testing.T) {
	t.Parallel()

	mux := sessionMux(newFakeSessionStore())

	req := httptest.NewRequest(http.MethodPost, "/api/sessions", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code)

	var resp SessionResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Empty(t, resp.Title)
}

func TestSessionHandler_List(t *testing.T) {
	t.Parallel()

	store := newFakeSessionStore()
	_, err := store.Create(context.Background(), "first")
	require.NoError(t, err)
	_, err = store.Create(context.Background(), "second")
	require.NoError(t, err)
	mux := sessionMux(store)

	req := httptest.NewRequest(http.MethodGet, "/api/sessions", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string][]SessionResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Len(t, resp["sessions"], 2)
}

func TestSessionHandler_ListInvalidLimit(t *testing.T) {
	t.Parallel()

	mux := sessionMux(newFakeSessionStore())

	for _, limit := range []string{"abc", "0", "-3"} {
		req := httptest.NewRequest(http.MethodGet, "/api/sessions?limit="+limit, nil)
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code, "limit=%s", limit)
	}
}

func TestSessionHandler_Turns(t *testing.T) {
	t.Parallel()

	store := newFakeSessionStore()
	sess, err := store.Create(context.Background(), "refunds")
	require.NoError(t, err)
	store.turns[sess.ID] = []session.Turn{
		{ID: 1, SessionID: sess.ID, Role: session.RoleUser, Content: "How long do refunds take?"},
		{ID: 2, SessionID: sess.ID, Role: session.RoleAssistant, Content: "5 business days. [1]",
			Citations: []rag.Citation{{Ref: "[1]", SourceURI: "https://docs.orbitpay.dev/refunds", Origin: rag.OriginKnowledgeBase}}},
	}
	mux := sessionMux(store)

	req := httptest.NewRequest(http.MethodGet, "/api/sessions/"+sess.ID+"/turns", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string][]TurnResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	turns := resp["turns"]
	require.Len(t, turns, 2)
	assert.Equal(t, "user", turns[0].Role)
	assert.Empty(t, turns[0].Citations)
	assert.Equal(t, "assistant", turns[1].Role)
	require.Len(t, turns[1].Citations, 1)
	assert.Equal(t, "[1]", turns[1].Citations[0].Ref)
}

func TestSessionHandler_TurnsUnknownSession(t *testing.T) {
	t.Parallel()

	mux := sessionMux(newFakeSessionStore())

	req := httptest.NewRequest(http.MethodGet, "/api/sessions/nope/turns", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSessionHandler_Delete(t *testing.T) {
	t.Parallel()

	store := newFakeSessionStore()
	sess, err := store.Create(context.Background(), "to delete")
	require.NoError(t, err)
	mux := sessionMux(store)

	req := httptest.NewRequest(http.MethodDelete, "/api/sessions/"+sess.ID, nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, store.sessions)
}

func TestSessionHandler_DeleteUnknown(t *testing.T) {
	t.Parallel()

	mux := sessionMux(newFakeSessionStore())

	req := httptest.NewRequest(http.MethodDelete, "/api/sessions/nope", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}
