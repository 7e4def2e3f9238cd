package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/orbitpay/orbit/internal/log"
	"github.com/orbitpay/orbit/internal/rag"
	"github.com/orbitpay/orbit/internal/session"
)

const maxSessionBodySize = 8 << 10

// SessionStore manages conversation sessions; implemented by session.Store.
type SessionStore interface {
	Create(ctx context.Context, title string) (session.Session, error)
	List(ctx context.Context, limit int) ([]session.Session, error)
	Delete(ctx context.Context, id string) error
	Turns(ctx context.Context, sessionID string) ([]session.Turn, error)
	Get(ctx context.Context, id string) (session.Session, error)
}

// SessionHandler serves the session management endpoints.
type SessionHandler struct {
	store  SessionStore
	logger log.Logger
}

// NewSessionHandler creates a SessionHandler.
func NewSessionHandler(store SessionStore, logger log.Logger) *SessionHandler {
	if logger == nil {
		logger = log.NewNop()
	}
	return &SessionHandler{store: store, logger: logger}
}

// RegisterRoutes registers session endpoints on the mux.
func (h *SessionHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/sessions", h.List)
	mux.HandleFunc("POST /api/sessions", h.Create)
	mux.HandleFunc("GET /api/sessions/{id}/turns", h.Turns)
	mux.HandleFunc("DELETE /api/sessions/{id}", h.Delete)
}

// SessionResponse is the JSON shape of a session.
type SessionResponse struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TurnResponse is the JSON shape of a conversation turn.
type TurnResponse struct {
	ID        int64          `json:"id"`
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	Citations []rag.Citation `json:"citations"`
	CreatedAt time.Time      `json:"created_at"`
}

// CreateSessionRequest is the request body for POST /api/sessions.
type CreateSessionRequest struct {
	Title string `json:"title,omitempty"`
}

// Create handles POST /api/sessions.
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	// An empty body is fine; the title is optional.
	var req CreateSessionRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSessionBodySize))
	if err := decoder.Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(h.logger, w, http.StatusBadRequest, "invalid request", err.Error())
		return
	}

	sess, err := h.store.Create(r.Context(), req.Title)
	if err != nil {
		writeError(h.logger, w, http.StatusInternalServerError, "internal error", "")
		return
	}
	writeJSON(h.logger, w, http.StatusCreated, sessionResponse(sess))
}

// List handles GET /api/sessions. An optional limit query parameter
// caps the number of sessions returned.
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(h.logger, w, http.StatusBadRequest, "invalid request", "limit must be a positive integer")
			return
		}
		limit = n
	}

	sessions, err := h.store.List(r.Context(), limit)
	if err != nil {
		writeError(h.logger, w, http.StatusInternalServerError, "internal error", "")
		return
	}

	out := make([]SessionResponse, len(sessions))
	for i, sess := range sessions {
		out[i] = sessionResponse(sess)
	}
	writeJSON(h.logger, w, http.StatusOK, map[string][]SessionResponse{"sessions": out})
}

// Turns handles GET /api/sessions/{id}/turns.
func (h *SessionHandler) Turns(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if _, err := h.store.Get(r.Context(), id); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			writeError(h.logger, w, http.StatusNotFound, "session not found", id)
			return
		}
		writeError(h.logger, w, http.StatusInternalServerError, "internal error", "")
		return
	}

	turns, err := h.store.Turns(r.Context(), id)
	if err != nil {
		writeError(h.logger, w, http.StatusInternalServerError, "internal error", "")
		return
	}

	out := make([]TurnResponse, len(turns))
	for i, turn := range turns {
		citations := turn.Citations
		if citations == nil {
			citations = []rag.Citation{}
		}
		out[i] = TurnResponse{
			ID:        turn.ID,
			Role:      string(turn.Role),
			Content:   turn.Content,
			Citations: citations,
			CreatedAt: turn.CreatedAt,
		}
	}
	writeJSON(h.logger, w, http.StatusOK, map[string][]TurnResponse{"turns": out})
}

// Delete handles DELETE /api/sessions/{id}.
func (h *SessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if err := h.store.Delete(r.Context(), id); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			writeError(h.logger, w, http.StatusNotFound, "session not found", id)
			return
		}
		writeError(h.logger, w, http.StatusInternalServerError, "internal error", "")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func sessionResponse(sess session.Session) SessionResponse {
	return SessionResponse{
		ID:        sess.ID,
		Title:     sess.Title,
		CreatedAt: sess.CreatedAt,
		UpdatedAt: sess.UpdatedAt,
	}
}
