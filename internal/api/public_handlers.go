package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/johnsosoka/jscom-newsletter-services/internal/model"
)

const (
	subscribeAccepted   = "Subscription request received. You will be subscribed shortly."
	unsubscribeAccepted = "Unsubscription request received. You will be unsubscribed shortly."
)

func (s *Server) requestMeta(r *http.Request) model.RequestMeta {
	return model.RequestMeta{
		IPAddress: s.clientIP(r),
		UserAgent: r.UserAgent(),
	}
}

func isValidationError(err error) bool {
	return errors.Is(err, model.ErrInvalidEmail) || errors.Is(err, model.ErrInvalidName)
}

func (s *Server) respondIntakeError(w http.ResponseWriter, op string, err error) {
	if isValidationError(err) {
		respondError(w, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}
	slog.Error("intake request failed",
		slog.String("operation", op),
		slog.String("error", err.Error()),
	)
	respondError(w, http.StatusInternalServerError, internalServerError)
}

// Subscribe handles POST /v1/newsletter.
func (s *Server) Subscribe(w http.ResponseWriter, r *http.Request) {
	var req model.SubscribeRequest
	if err := decodeBody(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Validation error: invalid JSON body")
		return
	}
	req.Meta = s.requestMeta(r)

	if err := s.intakeService.Subscribe(r.Context(), &req); err != nil {
		s.respondIntakeError(w, "subscribe", err)
		return
	}

	respondMessage(w, subscribeAccepted)
}

// Unsubscribe handles DELETE /v1/newsletter.
func (s *Server) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	var req model.UnsubscribeRequest
	if err := decodeBody(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Validation error: invalid JSON body")
		return
	}
	req.Meta = s.requestMeta(r)

	if err := s.intakeService.Unsubscribe(r.Context(), &req); err != nil {
		s.respondIntakeError(w, "unsubscribe", err)
		return
	}

	respondMessage(w, unsubscribeAccepted)
}

// Status handles GET /v1/newsletter/status.
func (s *Server) Status(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	if email == "" {
		respondError(w, http.StatusBadRequest, "Email query parameter is required")
		return
	}

	status, err := s.intakeService.Status(r.Context(), email)
	if err != nil {
		if errors.Is(err, model.ErrInvalidEmail) {
			respondError(w, http.StatusBadRequest, "Invalid email format")
			return
		}
		slog.Error("status lookup failed", slog.String("error", err.Error()))
		respondError(w, http.StatusInternalServerError, internalServerError)
		return
	}

	respondJSON(w, http.StatusOK, status)
}
