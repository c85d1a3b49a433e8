package handlers

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/mindtrack/apiserver/internal/services"
)

const exportStatusPending = "pending"

// ExportHandler provides the asynchronous mood history export endpoints.
type ExportHandler struct {
	exportService *services.ExportService
	logger        *slog.Logger
}

// NewExportHandler constructs an ExportHandler with the provided dependencies.
func NewExportHandler(exportService *services.ExportService, logger *slog.Logger) *ExportHandler {
	return &ExportHandler{
		exportService: exportService,
		logger:        logger,
	}
}

// ExportRouter registers export routes on the given router.
func ExportRouter(
	r chi.Router,
	exportService *services.ExportService,
	logger *slog.Logger,
	authMiddleware func(http.Handler) http.Handler,
) {
	handler := NewExportHandler(exportService, logger)

	r.Use(middlewares(authMiddleware)...)
	r.Post("/", handler.RequestExport)
	r.Get("/{exportID}", handler.GetExport)
	r.Delete("/{exportID}", handler.DeleteExport)
}

// RequestExport queues a CSV export of the caller's mood history.
func (h *ExportHandler) RequestExport(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Failed to authenticate token")
		return
	}

	export, err := h.exportService.Request(r.Context(), userID)
	if err != nil {
		respondError(w, r, h.logger, err, "Error requesting export")
		return
	}

	writeJSON(w, http.StatusAccepted, ExportResponse{ID: export.ID, Status: exportStatusPending})
}

// GetExport streams a finished export.
func (h *ExportHandler) GetExport(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Failed to authenticate token")
		return
	}

	exportID := chi.URLParam(r, "exportID")
	rc, err := h.exportService.Open(r.Context(), userID, exportID)
	if err != nil {
		respondError(w, r, h.logger, err, "Error fetching export")
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "moods-"+exportID+".csv"))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		h.logger.WarnContext(r.Context(), "export stream interrupted",
			"request_id", middleware.GetReqID(r.Context()),
			"export_id", exportID,
			"error", err,
		)
	}
}

// DeleteExport removes a finished export.
func (h *ExportHandler) DeleteExport(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Failed to authenticate token")
		return
	}

	if err := h.exportService.Delete(r.Context(), userID, chi.URLParam(r, "exportID")); err != nil {
		respondError(w, r, h.logger, err, "Error deleting export")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type ExportResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}
