package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/trace"
)

// Server assembles the engine's HTTP surface: API routes, health,
// metrics scrape, and the middleware stack around them.
type Server struct {
	addr      string
	apiRoutes http.Handler
	health    *HealthChecker
	registry  *prometheus.Registry
	metrics   *Metrics
	tracer    trace.TracerProvider
	logger    *slog.Logger

	server *http.Server
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithHealthChecker sets the health checker backing /healthz.
func WithHealthChecker(h *HealthChecker) ServerOption {
	return func(s *Server) { s.health = h }
}

// WithServerMetrics wires the /metrics endpoint and request middleware.
func WithServerMetrics(reg *prometheus.Registry, m *Metrics) ServerOption {
	return func(s *Server) { s.registry = reg; s.metrics = m }
}

// WithServerTracing enables per-request spans.
func WithServerTracing(tp trace.TracerProvider) ServerOption {
	return func(s *Server) { s.tracer = tp }
}

// WithServerLogger sets the logger.
func WithServerLogger(l *slog.Logger) ServerOption {
	return func(s *Server) { s.logger = l }
}

// NewServer creates a Server listening on addr serving apiRoutes.
func NewServer(addr string, apiRoutes http.Handler, opts ...ServerOption) *Server {
	s := &Server{
		addr:      addr,
		apiRoutes: apiRoutes,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler builds the full handler: routes plus middleware stack.
// Middleware order (outer to inner): request ID, tracing, metrics.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	if s.health != nil {
		mux.Handle("/healthz", s.health.Handler())
	}
	if s.registry != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{
			Registry: s.registry,
		}))
	}
	// Favicon handler to prevent browser 500 errors
	mux.Handle("/favicon.ico", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	mux.Handle("/", s.apiRoutes)

	var handler http.Handler = mux
	if s.metrics != nil {
		handler = MetricsMiddleware(s.metrics)(handler)
	}
	if s.tracer != nil {
		handler = TracingMiddleware(s.tracer)(handler)
	}
	handler = RequestIDMiddleware(s.logger)(handler)
	return handler
}

// Run starts the server and blocks until ctx is cancelled or the
// listener fails. Shutdown is graceful with a 10s drain window.
func (s *Server) Run(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", s.addr)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("context cancelled, shutting down HTTP server")
		return s.shutdown()
	case err := <-errCh:
		return err
	}
}

// shutdown performs graceful shutdown of the HTTP server.
func (s *Server) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.Error("error during server shutdown", "error", err)
		return err
	}

	s.logger.Info("HTTP server shutdown complete")
	return nil
}

// Close gracefully shuts down the server.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}
	return s.shutdown()
}
