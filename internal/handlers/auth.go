package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/mindtrack/apiserver/internal/services"
	"github.com/mindtrack/apiserver/types"
)

// Authenticator verifies bearer tokens.
type Authenticator interface {
	Authenticate(token string) (string, error)
}

// AuthHandler provides registration, login and profile endpoints.
type AuthHandler struct {
	userService *services.UserService
	logger      *slog.Logger
}

// NewAuthHandler constructs an AuthHandler with the provided dependencies.
func NewAuthHandler(userService *services.UserService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		userService: userService,
		logger:      logger,
	}
}

// AuthLimits are optional per-route middlewares for the unauthenticated
// endpoints.
type AuthLimits struct {
	Register func(http.Handler) http.Handler
	Login    func(http.Handler) http.Handler
}

// AuthRouter registers auth routes on the given router.
func AuthRouter(
	r chi.Router,
	userService *services.UserService,
	logger *slog.Logger,
	authMiddleware func(http.Handler) http.Handler,
	limits AuthLimits,
) {
	handler := NewAuthHandler(userService, logger)

	r.With(middlewares(limits.Register)...).Post("/register", handler.Register)
	r.With(middlewares(limits.Login)...).Post("/login", handler.Login)
	r.With(middlewares(authMiddleware)...).Get("/me", handler.Me)
}

// RequireAuth verifies the bearer token and injects the user id into the
// request context. A missing token is 403, a rejected one 401.
func RequireAuth(users Authenticator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := users.Authenticate(bearerToken(r))
			if err != nil {
				logger.WarnContext(r.Context(), "request rejected",
					"request_id", middleware.GetReqID(r.Context()),
					"path", r.URL.Path,
					"error", err,
				)
				if statusFor(err) == http.StatusForbidden {
					writeError(w, http.StatusForbidden, "No token provided")
					return
				}
				writeError(w, http.StatusUnauthorized, "Failed to authenticate token")
				return
			}

			next.ServeHTTP(w, r.WithContext(withUserID(r.Context(), userID)))
		})
	}
}

// Register creates a new user account.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if _, err := h.userService.Register(r.Context(), req.Name, req.Email, req.Password); err != nil {
		respondError(w, r, h.logger, err, "Error registering user")
		return
	}

	writeJSON(w, http.StatusCreated, MessageResponse{Message: "User registered successfully"})
}

// Login verifies credentials and returns a token with the user's profile.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	result, err := h.userService.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		respondError(w, r, h.logger, err, "Error logging in")
		return
	}

	writeJSON(w, http.StatusOK, LoginResponse{
		Message: "Login successful",
		Token:   result.Token,
		User:    result.User.Profile(),
	})
}

// Me returns the profile of the authenticated user.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Failed to authenticate token")
		return
	}

	user, err := h.userService.Profile(r.Context(), userID)
	if err != nil {
		if statusFor(err) == http.StatusBadRequest {
			writeError(w, http.StatusUnauthorized, "Failed to authenticate token")
			return
		}
		respondError(w, r, h.logger, err, "Error fetching user")
		return
	}

	writeJSON(w, http.StatusOK, user.Profile())
}

type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Message string            `json:"message"`
	Token   string            `json:"token"`
	User    types.UserProfile `json:"user"`
}

// bearerToken returns the second segment of a "Bearer <token>" header, or
// an empty string.
func bearerToken(r *http.Request) string {
	parts := strings.Fields(r.Header.Get("Authorization"))
	if len(parts) < 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}

func middlewares(mws ...func(http.Handler) http.Handler) []func(http.Handler) http.Handler {
	out := make([]func(http.Handler) http.Handler, 0, len(mws))
	for _, mw := range mws {
		if mw != nil {
			out = append(out, mw)
		}
	}
	return out
}
