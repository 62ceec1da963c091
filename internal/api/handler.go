// Package api provides HTTP handlers for the Em-Guide REST surface.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/ValentinKim531/Em-Guide-backend/internal/stats"
	"github.com/ValentinKim531/Em-Guide-backend/internal/store"
	"github.com/go-chi/chi/v5"
)

// Handler serves the read-side REST endpoints: message history and survey
// statistics.
type Handler struct {
	repo  store.Repository
	stats *stats.Service
}

// NewHandler creates a new Handler.
func NewHandler(repo store.Repository, statsService *stats.Service) *Handler {
	return &Handler{
		repo:  repo,
		stats: statsService,
	}
}

// RegisterRoutes registers the REST endpoints on the router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/api/v1/users/{userID}/messages", h.listMessages)
	r.Get("/api/v1/users/{userID}/statistics", h.statistics)
	r.Get("/api/v1/users/{userID}/statistics.csv", h.statisticsCSV)
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

func (h *Handler) listMessages(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			Error(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	msgs, err := h.repo.ListMessages(r.Context(), userID, limit)
	if err != nil {
		slog.Error("Failed to list messages", "user_id", userID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to list messages")
		return
	}
	JSON(w, http.StatusOK, msgs)
}

func (h *Handler) statistics(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	records, err := h.stats.Records(r.Context(), userID)
	if err != nil {
		slog.Error("Failed to build statistics", "user_id", userID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to build statistics")
		return
	}
	JSON(w, http.StatusOK, records)
}

func (h *Handler) statisticsCSV(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="statistics.csv"`)
	if err := h.stats.WriteCSV(r.Context(), userID, w); err != nil {
		slog.Error("Failed to write statistics csv", "user_id", userID, "error", err)
	}
}
