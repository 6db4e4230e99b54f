package api

import (
	"context"
	"crypto/tls"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/foxzi/phishdrill/internal/ai"
	"github.com/foxzi/phishdrill/internal/config"
	"github.com/foxzi/phishdrill/internal/mailer"
	"github.com/foxzi/phishdrill/internal/metrics"
	"github.com/foxzi/phishdrill/internal/ratelimit"
	"github.com/foxzi/phishdrill/internal/store"
)

// Info describes the running service
type Info struct {
	Service string
	Version string
	// LandingURL is where tracked clicks are redirected. Empty renders an awareness page.
	LandingURL string
}

// Server is the HTTP API server
type Server struct {
	router     *chi.Mux
	httpServer *http.Server
	store      store.Store
	ai         *ai.Adapter
	mailer     *mailer.Mailer
	limiter    *ratelimit.Limiter
	tlsConfig  *tls.Config
	config     *config.APIConfig
	info       Info
	logger     *slog.Logger
	startTime  time.Time
}

// NewServer creates a new API server. adapter and m may be nil.
func NewServer(st store.Store, adapter *ai.Adapter, m *mailer.Mailer, cfg *config.APIConfig, info Info, logger *slog.Logger) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		store:     st,
		ai:        adapter,
		mailer:    m,
		config:    cfg,
		info:      info,
		logger:    logger.With("component", "api"),
		startTime: time.Now(),
	}

	s.setupRoutes()
	return s
}

// SetRateLimiter sets the quota applied to template generation and analysis
func (s *Server) SetRateLimiter(l *ratelimit.Limiter) {
	s.limiter = l
}

// SetTLSConfig makes ListenAndServe serve HTTPS
func (s *Server) SetTLSConfig(cfg *tls.Config) {
	s.tlsConfig = cfg
}

// RateLimiter returns the AI quota limiter, nil when none is set
func (s *Server) RateLimiter() *ratelimit.Limiter {
	return s.limiter
}

// setupRoutes configures the HTTP routes
func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(corsMiddleware)
	s.router.Use(middleware.StripSlashes)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(metrics.HTTPMiddleware)
	s.router.Use(s.recoverMiddleware)
	s.router.Use(s.bodyLimitMiddleware)

	s.router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.sendError(w, http.StatusNotFound, "Endpoint not found")
	})
	s.router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		s.sendError(w, http.StatusMethodNotAllowed, "Method Not Allowed")
	})

	// No auth: health checks, mail clients and the tracking callbacks of the lure pages
	s.router.Get("/health", s.handleHealth)
	s.router.Get("/api/health", s.handleHealth)
	s.router.Get("/t/{id}/open.gif", s.handlePixel)
	s.router.Get("/t/{id}/click", s.handleClick)
	s.router.Post("/api/campaigns/{id}/track/{action}", s.handleTrack)
	s.router.Post("/api/campaigns/track/{id}/{action}", s.handleTrack)

	s.router.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Get("/api/targets", s.handleListTargets)
		r.Post("/api/targets", s.handleCreateTarget)
		r.Delete("/api/targets/{id}", s.handleDeleteTarget)

		r.Get("/api/templates", s.handleListTemplates)
		r.Post("/api/templates", s.handleSaveTemplate)
		r.With(s.aiRateLimitMiddleware).Post("/api/templates/generate", s.handleGenerateTemplate)
		r.With(s.aiRateLimitMiddleware).Post("/api/templates/analyze", s.handleAnalyzeTemplate)
		r.Put("/api/templates/{id}", s.handleUpdateTemplate)
		r.Delete("/api/templates/{id}", s.handleDeleteTemplate)

		r.Get("/api/campaigns", s.handleListCampaigns)
		r.Post("/api/campaigns", s.handleCreateCampaign)
		r.Post("/api/campaigns/{id}/launch", s.handleLaunchCampaign)
		r.Get("/api/campaigns/{id}/stats", s.handleCampaignStats)
		r.Delete("/api/campaigns/{id}", s.handleDeleteCampaign)
	})
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe starts the HTTP server
func (s *Server) ListenAndServe() error {
	s.httpServer = &http.Server{
		Addr:           s.config.ListenAddr,
		Handler:        s.router,
		ReadTimeout:    s.config.ReadTimeout,
		WriteTimeout:   s.config.WriteTimeout,
		IdleTimeout:    s.config.IdleTimeout,
		MaxHeaderBytes: s.config.MaxHeaderBytes,
		TLSConfig:      s.tlsConfig,
	}

	if s.tlsConfig != nil {
		s.logger.Info("starting HTTPS API server", "addr", s.config.ListenAddr)
		// Certificates come from TLSConfig
		return s.httpServer.ListenAndServeTLS("", "")
	}

	s.logger.Info("starting HTTP API server", "addr", s.config.ListenAddr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP API server")
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
