// Package api serves assessments over HTTP.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/opensource-finance/procuresight/internal/domain"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	limiter *RateLimiter
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server.
func NewServer(cfg domain.ServerConfig, deps Deps) *Server {
	handler := NewHandler(deps)
	router := chi.NewRouter()

	router.Use(CORSMiddleware)
	router.Use(RecoverMiddleware)
	router.Use(TracingMiddleware)
	router.Use(LoggingMiddleware)
	router.Use(middleware.RealIP)

	var limiter *RateLimiter
	if cfg.RateLimit > 0 {
		limiter = NewRateLimiter(cfg.RateLimit, cfg.RateBurst)
		router.Use(limiter.Middleware)
	}
	router.Use(middleware.Compress(5))

	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)

	router.Route("/procurements/{id}", func(r chi.Router) {
		r.Get("/assessment", handler.GetAssessment)
		r.Post("/assessment", handler.RequestAssessment)
		r.Get("/contributions", handler.GetContributions)
		r.Get("/findings", handler.GetFindings)
		r.Get("/quality", handler.GetQuality)
		r.Get("/actions", handler.GetActions)
		r.Get("/comparables", handler.GetComparables)
	})

	router.Get("/comparables", handler.SearchComparables)
	router.Get("/sectors/{sector}/benchmark", handler.GetSectorBenchmark)
	router.Get("/buyers/{name}/benchmark", handler.GetBuyerBenchmark)

	router.Get("/rules", handler.ListRules)
	router.Post("/rules/validate", handler.ValidateRule)

	router.Post("/admin/reload", handler.Reload)

	return &Server{
		router:  router,
		handler: handler,
		limiter: limiter,
		config:  cfg,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.limiter != nil {
		s.limiter.Stop()
	}
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Handler returns the handler for testing.
func (s *Server) Handler() *Handler {
	return s.handler
}
