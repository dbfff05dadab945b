package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	apperrors "github.com/threadline/threadline/internal/errors"
	"github.com/threadline/threadline/internal/observability"
	"github.com/threadline/threadline/internal/relay"
	servermw "github.com/threadline/threadline/internal/server/middleware"
)

// Options configures the relay HTTP server.
type Options struct {
	Host string
	Port int
	// Relay serves the OAuth and proxy routes. Without it only the
	// operational routes are mounted.
	Relay *relay.Relay
	CORS  servermw.CORSConfig
	// MetricsPort is where the Prometheus exporter listens; /metrics proxies it.
	MetricsPort int
	// AdminToken enables POST /admin/signal when set.
	AdminToken string

	// Zero timeouts fall back to 30s read/write and 120s idle.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// Server represents the HTTP server
type Server struct {
	router *chi.Mux
	server *http.Server
	host   string
	port   int
	opts   Options
}

// New creates a new HTTP server instance
func New(opts Options) *Server {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)

	// RequestID → CORS → Metrics → Recovery
	r.Use(servermw.RequestID)
	r.Use(servermw.CORS(opts.CORS))
	r.Use(servermw.RequestMetrics)
	r.Use(servermw.Recovery)

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		apperrors.RespondWithError(w, req, apperrors.NewNotFoundError("The requested resource was not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		apperrors.RespondWithError(w, req, apperrors.NewMethodNotAllowedError("The requested method is not allowed for this resource"))
	})

	s := &Server{
		router: r,
		host:   opts.Host,
		port:   opts.Port,
		opts:   opts,
	}
	s.registerRoutes()

	return s
}

// Start starts the HTTP server
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.host, s.port)

	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       orDefault(s.opts.ReadTimeout, 30*time.Second),
		WriteTimeout:      orDefault(s.opts.WriteTimeout, 30*time.Second),
		IdleTimeout:       orDefault(s.opts.IdleTimeout, 120*time.Second),
	}

	if observability.ServerLogger != nil {
		observability.ServerLogger.Info("Starting HTTP server",
			zap.String("host", s.host),
			zap.Int("port", s.port),
			zap.String("addr", addr))
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	if observability.ServerLogger != nil {
		observability.ServerLogger.Info("Shutting down HTTP server")
	}
	return s.server.Shutdown(ctx)
}

// Handler exposes the underlying router for testing and instrumentation
func (s *Server) Handler() http.Handler {
	return s.router
}

// Port returns the server port for testing
func (s *Server) Port() int {
	return s.port
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}
