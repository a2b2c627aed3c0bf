package api

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mattjoyce/jobcluster/internal/dispatch"
	"github.com/mattjoyce/jobcluster/internal/events"
	"github.com/mattjoyce/jobcluster/internal/execution"
	"github.com/mattjoyce/jobcluster/internal/jobgraph"
)

// DispatcherGateway is the query and control surface of the dispatcher
// endpoint.
type DispatcherGateway interface {
	JobID() string
	Mode() dispatch.ExecutionMode
	RequestJobDetails(ctx context.Context) (*dispatch.JobDetails, error)
	RequestJobStatus(ctx context.Context) (execution.JobStatus, error)
	RequestJobResult(ctx context.Context) (*execution.ArchivedExecutionGraph, error)
	CancelJob(ctx context.Context) error
	SubmitJob(ctx context.Context, g *jobgraph.JobGraph) error
}

var _ DispatcherGateway = (*dispatch.Dispatcher)(nil)

// Config holds API server configuration
type Config struct {
	Listen string
	// APIKey is the bearer token for the job routes. Empty leaves them open.
	APIKey string
	// MetricsPath mounts the metrics handler. Empty disables it.
	MetricsPath string
	// AskTimeout bounds every call into the dispatcher endpoint.
	AskTimeout time.Duration
}

// Server represents the HTTP API server
type Server struct {
	config     Config
	dispatcher DispatcherGateway
	events     *events.Hub
	metrics    http.Handler
	logger     *slog.Logger
	server     *http.Server
	startedAt  time.Time

	// draining is closed when a graceful shutdown begins; open event
	// streams return on it.
	draining  chan struct{}
	drainOnce sync.Once
}

// New creates a new API server instance. hub and metrics may be nil.
func New(config Config, dispatcher DispatcherGateway, hub *events.Hub, metrics http.Handler, logger *slog.Logger) *Server {
	if config.AskTimeout <= 0 {
		config.AskTimeout = 10 * time.Second
	}
	if hub == nil {
		hub = events.NewHub(0)
	}
	return &Server{
		config:     config,
		dispatcher: dispatcher,
		events:     hub,
		metrics:    metrics,
		logger:     logger,
		startedAt:  time.Now(),
		draining:   make(chan struct{}),
	}
}

// Handler returns the routed handler without starting a listener.
func (s *Server) Handler() http.Handler {
	return s.setupRoutes()
}

// Start starts the HTTP server (blocking). It returns ctx.Err() after a
// shutdown and any other error only when the listener fails.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Listen)
	if err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return s.serve(ctx, ln)
}

func (s *Server) serve(ctx context.Context, ln net.Listener) error {
	s.server = &http.Server{
		Handler:           s.setupRoutes(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	s.server.RegisterOnShutdown(s.drain)

	s.logger.Info("API server starting", "listen", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("API server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("API server shutdown incomplete", "error", err)
			_ = s.server.Close()
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

func (s *Server) drain() {
	s.drainOnce.Do(func() { close(s.draining) })
}

func (s *Server) setupRoutes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	// Unauthenticated ops endpoints.
	r.Get("/healthz", s.handleHealthz)
	r.Get("/openapi.json", s.handleOpenAPI)
	if s.metrics != nil && s.config.MetricsPath != "" {
		r.Method(http.MethodGet, s.config.MetricsPath, s.metrics)
	}

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Get("/job", s.handleJobDetails)
		r.Get("/job/status", s.handleJobStatus)
		r.Get("/job/result", s.handleJobResult)
		r.Post("/job/cancel", s.handleCancelJob)
		r.Post("/jobs", s.handleSubmitJob)
		r.Get("/events", s.handleEvents)
	})

	return r
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
