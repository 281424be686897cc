// Package server exposes health, metrics and recon over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/harun/recondora/internal/availability"
	"github.com/harun/recondora/internal/config"
	"github.com/harun/recondora/internal/metrics"
	"github.com/harun/recondora/internal/ratelimit"
	"github.com/harun/recondora/pkg/dispatch"
	"github.com/rs/zerolog"
)

const (
	// SecretHeader carries the shared secret for /api routes.
	SecretHeader = "X-Recondora-Secret"

	sourceHTTP      = "http"
	shutdownTimeout = 5 * time.Second
)

// Server is the HTTP adapter
type Server struct {
	config       config.ServerConfig
	dispatcher   *dispatch.Dispatcher
	availability *availability.Checker
	metrics      *metrics.Metrics
	limiter      *ratelimit.Limiter[string]
	logger       zerolog.Logger
	version      string

	mu         sync.Mutex
	httpServer *http.Server
	listener   net.Listener
	done       chan struct{}
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics serves /metrics and counts requests.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithAvailability reports local tool availability in /api/tools.
func WithAvailability(c *availability.Checker) Option {
	return func(s *Server) { s.availability = c }
}

// WithRateLimiter limits /api/recon per client address. Rejected requests get
// 429 Too Many Requests.
func WithRateLimiter(l *ratelimit.Limiter[string]) Option {
	return func(s *Server) { s.limiter = l }
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithVersion sets the version reported by / and /healthz.
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// New creates a server. It does not listen until Start is called.
func New(cfg config.ServerConfig, d *dispatch.Dispatcher, opts ...Option) *Server {
	s := &Server{
		config:     cfg,
		dispatcher: d,
		logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the router
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(s.requestContext)
	r.Use(s.accessLog)
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleRoot)
	r.Get("/healthz", s.handleHealthz)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	r.Route("/api", func(api chi.Router) {
		api.Use(sharedSecret(s.config.SharedSecret))
		api.Get("/tools", s.handleTools)
		api.With(s.rateLimit).Get("/recon", s.handleRecon)
	})

	return r
}

// Start listens on the configured address and serves in the background
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.httpServer != nil {
		return fmt.Errorf("server is already running")
	}

	ln, err := net.Listen("tcp", s.config.Addr())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Addr(), err)
	}

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.httpServer = srv
	s.listener = ln
	s.done = make(chan struct{})

	go func(done chan struct{}) {
		defer close(done)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("HTTP server stopped unexpectedly")
		}
	}(s.done)

	s.logger.Info().Str("addr", ln.Addr().String()).Msg("HTTP server started")
	return nil
}

// Stop shuts the server down, waiting for in-flight requests until ctx expires
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv, done := s.httpServer, s.done
	s.httpServer, s.listener, s.done = nil, nil, nil
	s.mu.Unlock()

	if srv == nil {
		return fmt.Errorf("server is not running")
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, shutdownTimeout)
		defer cancel()
	}

	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}
	<-done

	s.logger.Info().Msg("HTTP server stopped")
	return nil
}

// Addr returns the bound address, or "" when the server is not running
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}
