// Package api serves the admin HTTP API: run history, the task catalog and
// manual task launches.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/hochfrequenz/task-orchestrator/internal/domain"
	"github.com/hochfrequenz/task-orchestrator/internal/runner"
	"github.com/hochfrequenz/task-orchestrator/internal/runstore"
)

// RunStore is the read side of the run repository
type RunStore interface {
	Load(ctx context.Context, id int64) (*domain.Run, error)
	ListRuns(ctx context.Context, opts runstore.ListOptions) ([]*domain.Run, error)
}

// Server is the HTTP API server
type Server struct {
	runs    RunStore
	runner  *runner.Runner
	addr    string
	mux     *http.ServeMux
	flash   *FlashStore
	sseHub  *SSEHub
	logger  *slog.Logger
	nowFunc func() time.Time
}

// NewServer creates a new API server
func NewServer(runs RunStore, r *runner.Runner, addr string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		runs:    runs,
		runner:  r,
		addr:    addr,
		mux:     http.NewServeMux(),
		flash:   NewFlashStore(),
		sseHub:  NewSSEHub(),
		logger:  logger,
		nowFunc: time.Now,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("GET /{$}", s.statusHandler())
	s.mux.HandleFunc("GET /api/status", s.statusHandler())
	s.mux.HandleFunc("GET /api/runs", s.listRunsHandler())
	s.mux.HandleFunc("GET /api/runs/{id}", s.getRunHandler())
	s.mux.HandleFunc("GET /api/tasks", s.listTasksHandler())
	s.mux.HandleFunc("POST /api/tasks/{name}/run", s.runTaskHandler())
	s.mux.HandleFunc("GET /api/run/error", s.runErrorHandler())
	s.mux.HandleFunc("GET /api/events", s.sseHandler())
}

// Handler returns the server's routes
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start serves until ctx is done, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("admin API listening", "addr", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		s.sseHub.CloseAll()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// Broadcast sends an event to all SSE clients
func (s *Server) Broadcast(event SSEEvent) {
	s.sseHub.Broadcast(event)
}

func writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
