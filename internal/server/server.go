// Package server assembles the HTTP surface: middleware chain, health and
// version routes, and the job API.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/3leaps/jobscope/internal/server/handlers"
	"github.com/3leaps/jobscope/internal/server/middleware"
)

// Server is the jobscope HTTP server.
type Server struct {
	host   string
	port   int
	router chi.Router
	logger *zap.Logger

	readTimeout  time.Duration
	writeTimeout time.Duration
	idleTimeout  time.Duration

	mu         sync.Mutex
	httpServer *http.Server
}

type options struct {
	logger         *zap.Logger
	jobs           *handlers.Jobs
	version        handlers.VersionInfo
	corsOrigins    []string
	rateLimit      bool
	rps            float64
	burst          int
	requestTimeout time.Duration
	readTimeout    time.Duration
	writeTimeout   time.Duration
	idleTimeout    time.Duration
}

// Option configures New.
type Option func(*options)

func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithJobs mounts the job API under /api/jobs.
func WithJobs(j *handlers.Jobs) Option {
	return func(o *options) { o.jobs = j }
}

func WithVersion(v handlers.VersionInfo) Option {
	return func(o *options) { o.version = v }
}

// WithCORS allows the given origins (exact, glob, or "*").
func WithCORS(origins []string) Option {
	return func(o *options) { o.corsOrigins = origins }
}

// WithRateLimit enables the global request limiter.
func WithRateLimit(rps float64, burst int) Option {
	return func(o *options) {
		o.rateLimit = rps > 0 && burst > 0
		o.rps = rps
		o.burst = burst
	}
}

// WithRequestTimeout bounds each API request's context.
func WithRequestTimeout(d time.Duration) Option {
	return func(o *options) { o.requestTimeout = d }
}

func WithTimeouts(read, write, idle time.Duration) Option {
	return func(o *options) {
		o.readTimeout = read
		o.writeTimeout = write
		o.idleTimeout = idle
	}
}

// New builds the router. Routes that depend on optional collaborators are
// only mounted when those are supplied.
func New(host string, port int, opts ...Option) *Server {
	o := options{
		logger:       zap.NewNop(),
		version:      handlers.VersionInfo{Version: "dev", Commit: "unknown", BuildDate: "unknown"},
		readTimeout:  30 * time.Second,
		writeTimeout: 30 * time.Second,
		idleTimeout:  120 * time.Second,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}

	s := &Server{
		host:         host,
		port:         port,
		logger:       o.logger,
		readTimeout:  o.readTimeout,
		writeTimeout: o.writeTimeout,
		idleTimeout:  o.idleTimeout,
	}
	s.router = s.routes(o)
	return s
}

func (s *Server) routes(o options) chi.Router {
	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.AccessLog(s.logger))
	r.Use(middleware.Recovery)
	if len(o.corsOrigins) > 0 {
		r.Use(middleware.CORS(o.corsOrigins))
	}

	r.NotFound(middleware.NotFound)
	r.MethodNotAllowed(middleware.MethodNotAllowed)

	r.Get("/", handlers.RootHandler)
	r.Get("/version", handlers.NewVersionHandler(o.version))
	r.Get("/health", handlers.HealthHandler)
	r.Get("/health/live", handlers.LivenessHandler)
	r.Get("/health/ready", handlers.ReadinessHandler)
	r.Get("/health/startup", handlers.StartupHandler)

	if o.jobs != nil {
		r.Route("/api/jobs", func(api chi.Router) {
			if o.rateLimit {
				api.Use(middleware.RateLimit(o.rps, o.burst))
			}
			api.Use(middleware.Timeout(o.requestTimeout))
			o.jobs.Routes(api)
		})
	}
	return r
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Port() int {
	return s.port
}

func (s *Server) Addr() string {
	return net.JoinHostPort(s.host, strconv.Itoa(s.port))
}

// Start serves until Shutdown. It returns nil after a graceful shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.Addr())
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.Addr(), err)
	}
	return s.Serve(ln)
}

// Serve serves on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadTimeout:       s.readTimeout,
		ReadHeaderTimeout: s.readTimeout,
		WriteTimeout:      s.writeTimeout,
		IdleTimeout:       s.idleTimeout,
		ErrorLog:          zap.NewStdLog(s.logger.Named("http")),
	}
	s.mu.Lock()
	s.httpServer = srv
	s.mu.Unlock()

	s.logger.Info("server listening", zap.String("addr", ln.Addr().String()))
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpServer
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	s.logger.Info("server shutting down")
	return srv.Shutdown(ctx)
}
