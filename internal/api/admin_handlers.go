package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/johnsosoka/jscom-newsletter-services/internal/model"
)

type updateSubscriberRequest struct {
	Email string `json:"email"`
}

// respondAdminError maps service errors onto the admin envelope.
func respondAdminError(w http.ResponseWriter, op, id string, err error) {
	switch {
	case errors.Is(err, model.ErrNotFound):
		respondEnvelopeError(w, http.StatusNotFound, "Subscriber not found: "+id)
	case errors.Is(err, model.ErrEmailTaken):
		respondEnvelopeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, model.ErrInvalidLimit),
		errors.Is(err, model.ErrInvalidStatus),
		errors.Is(err, model.ErrInvalidCursor),
		errors.Is(err, model.ErrInvalidEmail):
		respondEnvelopeError(w, http.StatusBadRequest, "Validation error: "+err.Error())
	default:
		slog.Error("admin request failed",
			slog.String("operation", op),
			slog.String("error", err.Error()),
		)
		respondEnvelopeError(w, http.StatusInternalServerError, internalServerError)
	}
}

// ListSubscribers handles GET /v1/newsletter/admin/subscribers.
func (s *Server) ListSubscribers(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	params := model.ListParams{
		NextToken: query.Get("next_token"),
		Status:    model.Status(query.Get("status")),
	}
	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			respondEnvelopeError(w, http.StatusBadRequest, "Validation error: "+model.ErrInvalidLimit.Error())
			return
		}
		params.Limit = limit
	}

	page, err := s.adminService.ListSubscribers(r.Context(), params)
	if err != nil {
		respondAdminError(w, "list", "", err)
		return
	}

	respondData(w, page)
}

// GetSubscriber handles GET /v1/newsletter/admin/subscribers/{id}.
func (s *Server) GetSubscriber(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	subscriber, err := s.adminService.GetSubscriber(r.Context(), id)
	if err != nil {
		respondAdminError(w, "get", id, err)
		return
	}

	respondData(w, subscriber)
}

// UpdateSubscriber handles PATCH /v1/newsletter/admin/subscribers/{id}.
func (s *Server) UpdateSubscriber(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req updateSubscriberRequest
	if err := decodeBody(w, r, &req); err != nil {
		respondEnvelopeError(w, http.StatusBadRequest, "Validation error: invalid JSON body")
		return
	}

	subscriber, err := s.adminService.UpdateSubscriberEmail(r.Context(), id, req.Email)
	if err != nil {
		respondAdminError(w, "update", id, err)
		return
	}

	respondData(w, subscriber)
}

// DeleteSubscriber handles DELETE /v1/newsletter/admin/subscribers/{id}.
func (s *Server) DeleteSubscriber(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.adminService.DeleteSubscriber(r.Context(), id); err != nil {
		respondAdminError(w, "delete", id, err)
		return
	}

	respondData(w, map[string]string{"message": "Subscriber deleted successfully"})
}

// Stats handles GET /v1/newsletter/admin/stats.
func (s *Server) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.adminService.Stats(r.Context())
	if err != nil {
		respondAdminError(w, "stats", "", err)
		return
	}

	respondData(w, stats)
}
