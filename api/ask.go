package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/orbitpay/orbit/internal/assistant"
	"github.com/orbitpay/orbit/internal/log"
	"github.com/orbitpay/orbit/internal/rag"
	"github.com/orbitpay/orbit/internal/session"
)

// maxAskBodySize bounds the request body for /api/ask.
const maxAskBodySize = 64 << 10

// Asker answers questions; implemented by assistant.Assistant.
type Asker interface {
	Ask(ctx context.Context, sessionID, question string) (assistant.Answer, error)
}

// AskHandler serves the question answering endpoint.
type AskHandler struct {
	asker  Asker
	logger log.Logger
}

// NewAskHandler creates an AskHandler.
func NewAskHandler(asker Asker, logger log.Logger) *AskHandler {
	if logger == nil {
		logger = log.NewNop()
	}
	return &AskHandler{asker: asker, logger: logger}
}

// RegisterRoutes registers the ask endpoint on the mux.
func (h *AskHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/ask", h.Ask)
}

// AskRequest is the request body for POST /api/ask.
type AskRequest struct {
	SessionID string `json:"session_id,omitempty"`
	Question  string `json:"question"`
}

// AskResponse is the response body for POST /api/ask.
type AskResponse struct {
	SessionID     string         `json:"session_id"`
	Answer        string         `json:"answer"`
	Citations     []rag.Citation `json:"citations"`
	UsedWebSearch bool           `json:"used_web_search"`
}

// Ask handles POST /api/ask.
func (h *AskHandler) Ask(w http.ResponseWriter, r *http.Request) {
	var req AskRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxAskBodySize))
	if err := decoder.Decode(&req); err != nil {
		writeError(h.logger, w, http.StatusBadRequest, "invalid request", err.Error())
		return
	}

	answer, err := h.asker.Ask(r.Context(), req.SessionID, req.Question)
	if err != nil {
		switch {
		case errors.Is(err, assistant.ErrEmptyQuestion):
			writeError(h.logger, w, http.StatusBadRequest, "invalid request", "question is required")
		case errors.Is(err, session.ErrNotFound):
			writeError(h.logger, w, http.StatusNotFound, "session not found", req.SessionID)
		case errors.Is(err, assistant.ErrGenerationUnavailable):
			writeError(h.logger, w, http.StatusServiceUnavailable, "generation unavailable",
				"the answer service is temporarily unavailable, try again shortly")
		default:
			h.logger.Error("answering question", "error", err)
			writeError(h.logger, w, http.StatusInternalServerError, "internal error", "")
		}
		return
	}

	citations := answer.Citations
	if citations == nil {
		citations = []rag.Citation{}
	}
	writeJSON(h.logger, w, http.StatusOK, AskResponse{
		SessionID:     answer.SessionID,
		Answer:        answer.Text,
		Citations:     citations,
		UsedWebSearch: answer.UsedWebSearch,
	})
}
