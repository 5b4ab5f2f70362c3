// Package server exposes the HTTP surface: the dispatch endpoint, health
// probes, status views, and the metrics proxy.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/wingmanhq/dispatch/internal/dispatch"
	apperrors "github.com/wingmanhq/dispatch/internal/errors"
	"github.com/wingmanhq/dispatch/internal/health"
	"github.com/wingmanhq/dispatch/internal/observability"
	"github.com/wingmanhq/dispatch/internal/ratelimit"
	servermw "github.com/wingmanhq/dispatch/internal/server/middleware"
)

// Deps carries everything the HTTP surface serves. All fields are wired at
// startup; the server owns none of them.
type Deps struct {
	Dispatcher *dispatch.Dispatcher
	Limiter    *ratelimit.Limiter
	Monitor    *health.Monitor

	AppName   string
	Version   string
	Commit    string
	BuildDate string
}

// Server represents the HTTP server
type Server struct {
	router *chi.Mux
	server *http.Server
	host   string
	port   int
	deps   Deps
}

// New creates a new HTTP server instance
func New(host string, port int, deps Deps) *Server {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)

	// Custom middleware in order: RequestID early for correlation, metrics
	// around everything, recovery outermost.
	r.Use(servermw.RequestID)
	r.Use(servermw.RequestMetrics)
	r.Use(servermw.Recovery)

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		apperrors.RespondWithEnvelope(w, req, apperrors.NewNotFoundError("The requested resource was not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		apperrors.RespondWithEnvelope(w, req, apperrors.NewMethodNotAllowedError("The requested method is not allowed for this resource"))
	})

	s := &Server{
		router: r,
		host:   host,
		port:   port,
		deps:   deps,
	}
	s.registerRoutes()
	return s
}

// Start starts the HTTP server
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.host, s.port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	observability.ServerLogger.Info("Starting HTTP server",
		zap.String("host", s.host),
		zap.Int("port", s.port),
		zap.String("addr", addr))

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	observability.ServerLogger.Info("Shutting down HTTP server")
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
