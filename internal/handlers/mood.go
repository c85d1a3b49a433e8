package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/mindtrack/apiserver/internal/services"
)

// MoodHandler provides the mood submission and history endpoints.
type MoodHandler struct {
	moodService *services.MoodService
	logger      *slog.Logger
}

// NewMoodHandler constructs a MoodHandler with the provided dependencies.
func NewMoodHandler(moodService *services.MoodService, logger *slog.Logger) *MoodHandler {
	return &MoodHandler{
		moodService: moodService,
		logger:      logger,
	}
}

// MoodRouter registers mood routes on the given router. Every route
// requires authentication.
func MoodRouter(
	r chi.Router,
	moodService *services.MoodService,
	logger *slog.Logger,
	authMiddleware func(http.Handler) http.Handler,
) {
	handler := NewMoodHandler(moodService, logger)

	r.Group(func(r chi.Router) {
		r.Use(middlewares(authMiddleware)...)
		r.Post("/mood", handler.SubmitMood)
		r.Get("/moods", handler.ListMoods)
	})
}

// SubmitMood records the mood for a day, replacing an earlier entry for the
// same day.
func (h *MoodHandler) SubmitMood(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Failed to authenticate token")
		return
	}

	var req MoodRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if _, err := h.moodService.Submit(r.Context(), userID, req.Mood, req.Date); err != nil {
		respondError(w, r, h.logger, err, "Error logging mood")
		return
	}

	writeJSON(w, http.StatusCreated, MessageResponse{Message: "Mood logged successfully"})
}

// ListMoods returns the caller's entries ordered by ascending date.
func (h *MoodHandler) ListMoods(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Failed to authenticate token")
		return
	}

	entries, err := h.moodService.List(r.Context(), userID)
	if err != nil {
		respondError(w, r, h.logger, err, "Error fetching mood history")
		return
	}

	writeJSON(w, http.StatusOK, entries)
}

type MoodRequest struct {
	Mood string `json:"mood"`
	Date string `json:"date,omitempty"`
}
