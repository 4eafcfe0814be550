package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

const (
	contentTypeJSON     = "Content-Type"
	applicationJSON     = "application/json"
	internalServerError = "Internal server error"
	maxBodyBytes        = 1 << 20
)

// messageResponse is the public route body.
type messageResponse struct {
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// envelope wraps every admin response.
type envelope struct {
	Status int     `json:"status"`
	Data   any     `json:"data"`
	Error  *string `json:"error"`
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set(contentTypeJSON, applicationJSON)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

func respondMessage(w http.ResponseWriter, message string) {
	respondJSON(w, http.StatusOK, messageResponse{Message: message})
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, messageResponse{Error: message})
}

func respondData(w http.ResponseWriter, data any) {
	respondJSON(w, http.StatusOK, envelope{Status: http.StatusOK, Data: data})
}

func respondEnvelopeError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, envelope{Status: status, Error: &message})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
}
