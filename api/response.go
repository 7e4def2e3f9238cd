package api

import (
	"encoding/json"
	"net/http"

	"github.com/orbitpay/orbit/internal/log"
)

// ErrorResponse is the JSON shape of every error reply.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// writeJSON encodes data as the response body. Encoding failures after
// WriteHeader can only be logged; the status is already on the wire.
func writeJSON(logger log.Logger, w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("encoding response body", "error", err)
	}
}

func writeError(logger log.Logger, w http.ResponseWriter, status int, errText, message string) {
	writeJSON(logger, w, status, ErrorResponse{Error: errText, Message: message})
}
