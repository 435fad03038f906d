package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/quillagent/quill/internal/actions"
	"github.com/quillagent/quill/internal/store"
)

// Runner executes actions through the policy gate. Satisfied by
// actions.Dispatcher.
type Runner interface {
	Execute(ctx context.Context, name string, params map[string]any) actions.Response
}

// TokenWriter accepts a raw OAuth token payload. Satisfied by auth.Manager.
type TokenWriter interface {
	Store(ctx context.Context, raw []byte) error
}

// Deps holds the dependencies for the API server.
type Deps struct {
	Registry *actions.Registry
	Runner   Runner
	Store    store.Store
	Tokens   TokenWriter
	Logger   *slog.Logger
}

// Server serves the HTTP API.
type Server struct {
	deps   Deps
	parser cron.Parser
	http   *http.Server
}

// NewServer creates a Server.
func NewServer(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return &Server{
		deps:   deps,
		parser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
	}
}

// Handler returns the HTTP handler for the API routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)

	mux.HandleFunc("GET /api/v1/actions", s.handleListActions)
	mux.HandleFunc("GET /api/v1/types", s.handleListTypes)
	mux.HandleFunc("POST /api/v1/actions/execute", s.handleExecute)

	mux.HandleFunc("POST /api/v1/auth/token", s.handleStoreToken)

	mux.HandleFunc("POST /api/v1/schedules", s.handleCreateSchedule)
	mux.HandleFunc("GET /api/v1/schedules", s.handleListSchedules)
	mux.HandleFunc("GET /api/v1/schedules/{id}", s.handleGetSchedule)
	mux.HandleFunc("PUT /api/v1/schedules/{id}", s.handleUpdateSchedule)
	mux.HandleFunc("DELETE /api/v1/schedules/{id}", s.handleDeleteSchedule)

	return mux
}

// Start begins serving on addr and blocks until the listener fails or
// Shutdown is called.
func (s *Server) Start(addr string) error {
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.deps.Logger.Info("api server listening", slog.String("addr", addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}
