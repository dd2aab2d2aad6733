// Package server exposes a read-mostly diagnostics API over a running
// scheduler and its outcome journal.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/me/taskhost/internal/host"
	"github.com/me/taskhost/internal/store"
	"github.com/me/taskhost/pkg/model"
)

// Scheduler is the subset of *scheduler.Scheduler the API needs. Every
// method must be safe to call from HTTP goroutines.
type Scheduler interface {
	Tasks() []model.TaskInfo
	Thread(id model.TaskID) (host.Thread, bool)
	Lookup(th host.Thread) (model.TaskInfo, bool)
	Cancel(th host.Thread) error
	Kill(th host.Thread)
	Len() int
	QueueLen() int
}

// Server is the taskhost diagnostics API server.
type Server struct {
	router      chi.Router
	logger      *slog.Logger
	startTime   time.Time
	sched       Scheduler
	store       store.Store // optional; nil disables the journal endpoints
	runID       string
	metrics     http.Handler // optional; served at /metrics
	ui          http.Handler // optional; mounted at /ui
	sseInterval time.Duration
}

// Option configures optional Server dependencies.
type Option func(*Server)

// WithStore enables the run and outcome endpoints.
func WithStore(st store.Store) Option {
	return func(s *Server) {
		s.store = st
	}
}

// WithRunID records the ID of the run this server belongs to.
func WithRunID(id string) Option {
	return func(s *Server) {
		s.runID = id
	}
}

// WithMetricsHandler serves h at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

// WithUI mounts the HTML dashboard at /ui.
func WithUI(h http.Handler) Option {
	return func(s *Server) {
		s.ui = h
	}
}

// WithSSEInterval sets the polling period of the task event stream.
func WithSSEInterval(d time.Duration) Option {
	return func(s *Server) {
		s.sseInterval = d
	}
}

// New creates a new Server with all routes registered.
func New(sched Scheduler, logger *slog.Logger, opts ...Option) *Server {
	s := &Server{
		router:      chi.NewRouter(),
		logger:      logger.With("component", "server"),
		startTime:   time.Now(),
		sched:       sched,
		sseInterval: time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Handler returns the http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is done, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "addr", addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info("server stopped")
	return nil
}

func (s *Server) routes() {
	r := s.router

	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))

	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}
	if s.ui != nil {
		r.Mount("/ui", s.ui)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/", s.handleDiscovery)
		r.Get("/health", s.handleHealth)

		r.Route("/tasks", func(r chi.Router) {
			r.Get("/", s.handleListTasks)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetTask)
				r.Delete("/", s.handleKillTask)
				r.Put("/cancel", s.handleCancelTask)
			})
		})

		r.Route("/runs", func(r chi.Router) {
			r.Get("/", s.handleListRuns)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetRun)
				r.Get("/outcomes", s.handleListRunOutcomes)
			})
		})
		r.Get("/outcomes", s.handleListOutcomes)

		r.Route("/sse", func(r chi.Router) {
			r.Get("/tasks", s.handleSSETasks)
		})
	})
}
