package server

import (
	"github.com/fulmenhq/gofulmen/signals"
	"go.uber.org/zap"

	"github.com/threadline/threadline/internal/observability"
	"github.com/threadline/threadline/internal/server/handlers"
)

// registerRoutes registers all HTTP routes
func (s *Server) registerRoutes() {
	s.router.Get("/health", handlers.HealthHandler)
	s.router.Get("/health/live", handlers.LivenessHandler)
	s.router.Get("/health/ready", handlers.ReadinessHandler)
	s.router.Get("/health/startup", handlers.StartupHandler)

	s.router.Get("/version", handlers.VersionHandler)

	s.router.Method("GET", "/metrics", newMetricsProxy(s.opts.MetricsPort))

	s.registerRelayRoutes()
	s.registerAdminEndpoint()
}

func (s *Server) registerRelayRoutes() {
	if s.opts.Relay == nil {
		return
	}

	h := handlers.NewRelayHandler(s.opts.Relay)
	s.router.Get("/", h.Alive)
	s.router.Get("/authorize", h.Authorize)
	s.router.Get("/authorized", h.Authorized)
	s.router.Post("/token", h.Token)
	s.router.Get("/avatar/{username}", h.Avatar)
	s.router.Post("/projects/{projectId}/issues", h.CreateIssue)
}

// registerAdminEndpoint optionally registers the admin signal endpoint
func (s *Server) registerAdminEndpoint() {
	logger := observability.ServerLogger

	if s.opts.AdminToken == "" {
		if logger != nil {
			logger.Debug("Admin signal endpoint disabled (no server.admin_token set)")
		}
		return
	}

	handler := signals.NewHTTPHandler(signals.HTTPConfig{
		TokenAuth: s.opts.AdminToken,
		RateLimit: 10,  // 10 requests per minute
		RateBurst: 5,   // burst size
		Manager:   nil, // use default global manager
	})

	s.router.Post("/admin/signal", handler.ServeHTTP)

	if logger != nil {
		logger.Info("Admin signal endpoint enabled",
			zap.String("path", "/admin/signal"),
			zap.String("auth", "bearer token"),
			zap.String("rate_limit", "10/min, burst 5"))
		logger.Warn("Admin endpoint enabled - ensure this server is not exposed to public internet")
	}
}
