package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/felixgeelhaar/fortify/ratelimit"
	"github.com/go-chi/chi/v5"

	"github.com/felixgeelhaar/pyquest/internal/config"
	"github.com/felixgeelhaar/pyquest/internal/domain"
	"github.com/felixgeelhaar/pyquest/internal/session"
)

// Server represents the pyquest daemon HTTP server
type Server struct {
	cfg     *config.LocalConfig
	server  *http.Server
	router  chi.Router
	logger  *slog.Logger
	version string

	sessions session.SessionService
	limiter  ratelimit.RateLimiter
	closers  []func() error
}

// ServerConfig holds configuration for creating a new server
type ServerConfig struct {
	Config   *config.LocalConfig
	Sessions session.SessionService
	Logger   *slog.Logger
	Version  string

	// Closers run on Shutdown after the HTTP server stops
	Closers []func() error
}

// NewServer creates a new daemon server
func NewServer(ctx context.Context, cfg ServerConfig) (*Server, error) {
	if cfg.Config == nil {
		return nil, errors.New("config is required")
	}
	if cfg.Sessions == nil {
		return nil, errors.New("session service is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}

	s := &Server{
		cfg:      cfg.Config,
		router:   chi.NewRouter(),
		logger:   cfg.Logger,
		version:  cfg.Version,
		sessions: cfg.Sessions,
		closers:  cfg.Closers,
	}

	if rl := cfg.Config.Daemon.RateLimit; rl.Requests > 0 {
		s.limiter = ratelimit.New(&ratelimit.Config{
			Rate:     rl.Requests,
			Burst:    rl.Requests,
			Interval: rl.Window(),
		})
	}

	s.setupRoutes()

	addr := fmt.Sprintf("%s:%d", cfg.Config.Daemon.Bind, cfg.Config.Daemon.Port)
	handler := s.recoveryMiddleware(correlationIDMiddleware(s.loggingMiddleware(s.router)))
	s.server = &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s, nil
}

func (s *Server) setupRoutes() {
	r := s.router

	r.Get("/v1/health", s.handleHealth)
	r.Get("/v1/status", s.handleStatus)

	r.Group(func(r chi.Router) {
		r.Use(s.userMiddleware)
		r.Use(s.rateLimitMiddleware)

		// Content
		r.Get("/v1/courses", s.handleListCourses)
		r.Get("/v1/courses/{course}", s.handleGetCourse)
		r.Get("/v1/courses/{course}/lessons/{lesson}", s.handleGetLesson)
		r.Post("/v1/courses/{course}/lessons/{lesson}/validate", s.handleValidate)

		// Scratch runs
		r.Post("/v1/run", s.handleRun)
		r.Post("/v1/run/continue", s.handleContinue)

		// Progress
		r.Get("/v1/profile", s.handleGetProfile)
		r.Get("/v1/progress", s.handleGetProgress)
		r.Post("/v1/streak", s.handleUpdateStreak)
		r.Post("/v1/xp", s.handleAwardXP)

		// Achievements
		r.Get("/v1/achievements", s.handleListAchievements)
		r.Post("/v1/achievements/{id}/unlock", s.handleUnlockAchievement)

		// Tools
		r.Get("/v1/tools", s.handleListTools)
		r.Post("/v1/tools", s.handleSaveTool)
		r.Get("/v1/tools/{id}", s.handleGetTool)
		r.Put("/v1/tools/{id}", s.handleUpdateTool)
		r.Delete("/v1/tools/{id}", s.handleDeleteTool)

		// History
		r.Get("/v1/attempts", s.handleListAttempts)
	})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("starting pyquest daemon",
		"addr", s.server.Addr,
		"runtime", s.cfg.Runtime.Backend,
		"runtime_ready", s.sessions.RuntimeReady(),
	)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down daemon...")

	err := s.server.Shutdown(ctx)

	if s.limiter != nil {
		if cerr := s.limiter.Close(); cerr != nil {
			s.logger.Warn("failed to close rate limiter", "error", cerr)
		}
	}
	for _, closer := range s.closers {
		if cerr := closer(); cerr != nil {
			s.logger.Warn("failed to close resource", "error", cerr)
		}
	}

	return err
}

// Handler returns the root handler including middleware
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

func (s *Server) jsonError(w http.ResponseWriter, status int, message string, err error) {
	response := map[string]any{
		"error":  message,
		"status": status,
	}
	if err != nil {
		response["details"] = err.Error()
	}
	s.jsonResponse(w, status, response)
}

// statusFor maps domain errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrCourseNotFound),
		errors.Is(err, domain.ErrLessonNotFound),
		errors.Is(err, domain.ErrToolNotFound),
		errors.Is(err, domain.ErrAchievementNotFound),
		errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidInput),
		errors.Is(err, domain.ErrInvalidAmount):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrRuntimeBusy),
		errors.Is(err, domain.ErrNotWaiting):
		return http.StatusConflict
	case errors.Is(err, domain.ErrRuntimeNotReady),
		errors.Is(err, session.ErrHistoryDisabled):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err with the status statusFor picks
func (s *Server) fail(w http.ResponseWriter, message string, err error) {
	s.jsonError(w, statusFor(err), message, err)
}

// decode reads a JSON request body into v
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(v); err != nil {
		s.jsonError(w, http.StatusBadRequest, "invalid request body", err)
		return false
	}
	return true
}
