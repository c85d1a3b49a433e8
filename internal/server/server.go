package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/mindtrack/apiserver/config"
	"github.com/mindtrack/apiserver/internal/auth"
	"github.com/mindtrack/apiserver/internal/db"
	"github.com/mindtrack/apiserver/internal/handlers"
	"github.com/mindtrack/apiserver/internal/mq"
	"github.com/mindtrack/apiserver/internal/services"
	"github.com/mindtrack/apiserver/internal/storage"
	"github.com/mindtrack/apiserver/internal/store"
)

const (
	routeRegister = "register"
	routeLogin    = "login"
)

// Server wraps the HTTP server and router.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	queue      *mq.MQ
	limiter    RateLimiter
	logger     *slog.Logger
}

// Dependencies are the services the router exposes. Exports may be nil, in
// which case the export routes are not registered.
type Dependencies struct {
	Logger  *slog.Logger
	Users   *services.UserService
	Moods   *services.MoodService
	Exports *services.ExportService
	Limiter RateLimiter
	Ping    func(ctx context.Context) error
}

// New connects to the configured backends and builds the Server.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Server, error) {
	tokens, err := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if err != nil {
		return nil, fmt.Errorf("JWT_SECRET is required: %w", err)
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	queue, err := mq.Open(ctx, cfg.MQ)
	if err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("open mq: %w", err)
	}

	objects, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		if queue != nil {
			_ = queue.Close()
		}
		_ = dbConn.Close()
		return nil, fmt.Errorf("open storage: %w", err)
	}

	userService := services.NewUserService(store.NewUserRepository(dbConn), tokens, cfg.Auth.BcryptCost, logger)

	events := moodEvents(queue, objects)
	moodService := services.NewMoodService(store.NewMoodRepository(dbConn), events, loc, logger)

	var exportService *services.ExportService
	if events != nil {
		exportService = services.NewExportService(moodService, objects, queue, logger)
	} else {
		logger.InfoContext(ctx, "mood exports disabled", "storage_backend", cfg.Storage.Backend, "mq_backend", cfg.MQ.Backend)
	}

	limiter := newRateLimiter(ctx, cfg.RateLimit, logger)

	router := NewRouter(cfg, Dependencies{
		Logger:  logger,
		Users:   userService,
		Moods:   moodService,
		Exports: exportService,
		Limiter: limiter,
		Ping:    dbConn.PingContext,
	})

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 75 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		router:     router,
		db:         dbConn,
		queue:      queue,
		limiter:    limiter,
		logger:     logger,
	}, nil
}

// moodEvents returns the publisher for mood.recorded. Events are consumed by
// the worker, which only runs with both messaging and storage, so without
// either one nothing is published.
func moodEvents(queue *mq.MQ, objects *storage.Storage) services.Publisher {
	if queue == nil || objects == nil {
		return nil
	}
	return queue
}

// NewRouter builds the HTTP routes over deps.
func NewRouter(cfg config.Config, deps Dependencies) *chi.Mux {
	m := newMetrics()
	authMiddleware := handlers.RequireAuth(deps.Users, deps.Logger)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Logger,
		m.middleware,
		cors.Handler(cors.Options{
			AllowedOrigins:   []string{cfg.AllowedOrigin},
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowedHeaders:   []string{"Authorization", "Content-Type"},
			AllowCredentials: true,
			MaxAge:           300,
		}),
		middleware.Timeout(60*time.Second),
	)
	router.Get("/healthz", handlers.Healthz(deps.Ping))
	router.Method(http.MethodGet, "/metrics", m.handler())
	router.Route("/api", func(r chi.Router) {
		handlers.AuthRouter(r, deps.Users, deps.Logger, authMiddleware, handlers.AuthLimits{
			Register: rateLimit(deps.Limiter, m, routeRegister, cfg.RateLimit.Register, cfg.RateLimit.Window),
			Login:    rateLimit(deps.Limiter, m, routeLogin, cfg.RateLimit.Login, cfg.RateLimit.Window),
		})
		handlers.MoodRouter(r, deps.Moods, deps.Logger, authMiddleware)
		if deps.Exports != nil {
			r.Route("/moods/exports", func(r chi.Router) {
				handlers.ExportRouter(r, deps.Exports, deps.Logger, authMiddleware)
			})
		}
	})

	return router
}

// newRateLimiter prefers Redis when configured and falls back to memory.
func newRateLimiter(ctx context.Context, cfg config.RateLimitConfig, logger *slog.Logger) RateLimiter {
	if cfg.RedisAddr == "" {
		return NewMemoryRateLimiter()
	}
	limiter, err := NewRedisRateLimiter(ctx, cfg, logger)
	if err != nil {
		logger.WarnContext(ctx, "redis rate limiter unavailable", "addr", cfg.RedisAddr, "error", err)
		return NewMemoryRateLimiter()
	}
	return limiter
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and releases the backends.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	if s.limiter != nil {
		s.limiter.Close()
	}
	if s.queue != nil {
		if qerr := s.queue.Close(); qerr != nil {
			s.logger.Warn("close mq", "error", qerr)
		}
	}
	if s.db != nil {
		_ = s.db.Close()
	}
	return err
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(handlers.MessageResponse{Message: message})
}
