package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/mindtrack/apiserver/internal/services"
)

const maxBodyBytes = 1 << 20

type contextKey string

const contextUserIDKey contextKey = "user_id"

// MessageResponse is the body of every error and of acknowledgement-only
// successes.
type MessageResponse struct {
	Message string `json:"message"`
}

// publicMessages are the client-facing texts of the service errors.
var publicMessages = []struct {
	err     error
	message string
}{
	{services.ErrMissingFields, "Name, email and password are required"},
	{services.ErrPasswordTooLong, "Password is too long"},
	{services.ErrMoodRequired, "Mood is required"},
	{services.ErrInvalidUserID, "Invalid user ID"},
	{services.ErrInvalidDate, "Invalid date"},
	{services.ErrInvalidExportID, "Invalid export ID"},
	{services.ErrEmailTaken, "User already exists"},
	{services.ErrInvalidCredentials, "Invalid credentials"},
	{services.ErrNoToken, "No token provided"},
	{services.ErrExportNotReady, "Export not ready"},
	{services.ErrUnauthenticated, "Failed to authenticate token"},
}

func withUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, contextUserIDKey, userID)
}

func userIDFromContext(ctx context.Context) (string, error) {
	subject, ok := ctx.Value(contextUserIDKey).(string)
	if !ok || strings.TrimSpace(subject) == "" {
		return "", errors.New("missing subject")
	}
	return subject, nil
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, MessageResponse{Message: message})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrInvalidArgument), errors.Is(err, services.ErrConflict):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrUnauthorized), errors.Is(err, services.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, services.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// respondError maps a service error to its status and public message.
// Internal errors are logged and answered with fallback only.
func respondError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error, fallback string) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), fallback,
			"request_id", middleware.GetReqID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		writeError(w, status, fallback)
		return
	}
	for _, pm := range publicMessages {
		if errors.Is(err, pm.err) {
			writeError(w, status, pm.message)
			return
		}
	}
	writeError(w, status, http.StatusText(status))
}
