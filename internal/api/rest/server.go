// Package rest exposes the sniper's public HTTP API: token issuance, auction
// ingest and inspection, health, and metrics.
package rest

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/snipekit/snipekit/internal/infrastructure/auth"
	"github.com/snipekit/snipekit/internal/infrastructure/config"
)

// Server is the public API HTTP server.
type Server struct {
	httpServer      *http.Server
	logger          *zap.Logger
	shutdownTimeout time.Duration
}

// NewServer wires the router and middleware chain around the handlers.
func NewServer(
	cfg config.ServerConfig,
	security config.SecurityConfig,
	handler *Handler,
	authSvc auth.Service,
	registry *prometheus.Registry,
	logger *zap.Logger,
) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      newRouter(security, handler, authSvc, registry, logger),
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		logger:          logger,
		shutdownTimeout: cfg.ShutdownTimeout,
	}
}

func newRouter(
	security config.SecurityConfig,
	handler *Handler,
	authSvc auth.Service,
	registry *prometheus.Registry,
	logger *zap.Logger,
) *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(Logging(logger))
	r.Use(cors.Handler(cors.Options{
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))
	r.Use(RateLimit(security.RateLimit.RequestsPerSecond, security.RateLimit.BurstSize, logger))

	r.Get("/healthz", handler.Health)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	r.Post("/auth", handler.Authenticate)

	r.Route("/sniper", func(r chi.Router) {
		r.Use(Authenticate(authSvc, logger))

		r.Post("/add", handler.AddAuction)
		r.Post("/bulk", handler.BulkAdd)
		r.Get("/list", handler.List)
		r.Get("/{id}/status", handler.GetStatus)
		r.Delete("/{id}", handler.Cancel)
		r.Get("/{id}/logs", handler.GetLogs)
	})

	return r
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("http server listening", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests within the configured timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.shutdownTimeout)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}
