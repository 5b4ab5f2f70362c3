package server

import (
	"os"

	"github.com/fulmenhq/gofulmen/signals"
	"go.uber.org/zap"

	"github.com/wingmanhq/dispatch/internal/observability"
	"github.com/wingmanhq/dispatch/internal/server/handlers"
)

// registerRoutes registers all HTTP routes
func (s *Server) registerRoutes() {
	healthHandlers := &handlers.Health{Monitor: s.deps.Monitor, Version: s.deps.Version}
	s.router.Get("/health", healthHandlers.HealthHandler)
	s.router.Get("/health/live", healthHandlers.LivenessHandler)
	s.router.Get("/health/ready", healthHandlers.ReadinessHandler)
	s.router.Get("/health/startup", healthHandlers.StartupHandler)

	versionHandler := &handlers.Version{
		Name:      s.deps.AppName,
		Version:   s.deps.Version,
		Commit:    s.deps.Commit,
		BuildDate: s.deps.BuildDate,
	}
	s.router.Get("/version", versionHandler.VersionHandler)

	// Metrics endpoint proxies the Prometheus exporter.
	s.router.Get("/metrics", MetricsHandler)

	statusHandlers := &handlers.Status{Dispatcher: s.deps.Dispatcher, Limiter: s.deps.Limiter}
	s.router.Get("/status/providers", statusHandlers.ProvidersHandler)
	s.router.Get("/status/rate-limits", statusHandlers.RateLimitsHandler)

	dispatchHandler := &handlers.Dispatch{Dispatcher: s.deps.Dispatcher}
	s.router.Post("/v1/dispatch/{model}", dispatchHandler.DispatchHandler)

	// Admin signal endpoint (optional, requires WINGMAN_ADMIN_TOKEN)
	s.registerAdminEndpoint()
}

// registerAdminEndpoint optionally registers the admin signal endpoint
func (s *Server) registerAdminEndpoint() {
	adminToken := os.Getenv("WINGMAN_ADMIN_TOKEN")
	logger := observability.ServerLogger

	if adminToken == "" {
		if logger != nil {
			logger.Debug("Admin signal endpoint disabled (no WINGMAN_ADMIN_TOKEN set)")
		}
		return
	}

	handler := signals.NewHTTPHandler(signals.HTTPConfig{
		TokenAuth: adminToken,
		RateLimit: 10,
		RateBurst: 5,
		Manager:   nil, // use default global manager
	})
	s.router.Post("/admin/signal", handler.ServeHTTP)

	if logger != nil {
		logger.Info("Admin signal endpoint enabled",
			zap.String("path", "/admin/signal"),
			zap.String("auth", "bearer token"))
		logger.Warn("Admin endpoint enabled - ensure this server is not exposed to public internet")
	}
}
