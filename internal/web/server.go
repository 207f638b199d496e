// Package web provides the HTTP server and handlers for the reconciliation
// dashboard.
package web

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/JonMunkholm/conciliacao/internal/cache"
	"github.com/JonMunkholm/conciliacao/internal/config"
	"github.com/JonMunkholm/conciliacao/internal/core"
	mw "github.com/JonMunkholm/conciliacao/internal/web/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Server is the HTTP server for the dashboard.
type Server struct {
	service *core.Service
	cfg     *config.Config
	format  *core.Formatter
	router  *chi.Mux
	server  *http.Server

	cache  *cache.Cache[*core.Snapshot]
	mirror Pinger
}

// Pinger checks a backing store, such as the Redis snapshot mirror.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Option configures optional Server collaborators.
type Option func(*Server)

// WithCache exposes the snapshot cache counters on /api/status.
func WithCache(c *cache.Cache[*core.Snapshot]) Option {
	return func(s *Server) { s.cache = c }
}

// WithMirror makes /api/status ping the snapshot mirror.
func WithMirror(p Pinger) Option {
	return func(s *Server) { s.mirror = p }
}

// NewServer creates a Server serving svc with the given configuration.
func NewServer(svc *core.Service, cfg *config.Config, opts ...Option) *Server {
	s := &Server{
		service: svc,
		cfg:     cfg,
		format:  core.NewFormatter(cfg.Dashboard.Locale),
		router:  chi.NewRouter(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(mw.TrustedRealIP(s.cfg.Security.TrustedProxies))
	s.router.Use(mw.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(s.cfg.Server.RequestTimeout))
	s.router.Use(securityHeaders(s.cfg.Security.EnableCSP))

	if s.cfg.Rate.Enabled {
		s.router.Use(mw.NewRateLimiter(s.cfg.Rate.RequestsPerMinute).Middleware)
	}
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	exports := func(next http.Handler) http.Handler { return next }
	if s.cfg.Rate.Enabled {
		exports = mw.NewRateLimiter(s.cfg.Rate.ExportLimit).Middleware
	}

	// Pages
	s.router.Get("/", s.handleDashboard)
	s.router.Get("/healthz", s.handleHealth)
	s.router.Post("/refresh", s.handleRefreshPage)
	s.router.With(exports).Get("/export.csv", s.handleExport(core.FormatCSV))
	s.router.With(exports).Get("/export.xlsx", s.handleExport(core.FormatXLSX))

	// API routes
	s.router.Route("/api", func(r chi.Router) {
		r.Use(mw.APIKeyAuth(s.cfg.Security))

		r.Get("/status", s.handleStatus)
		r.Get("/options", s.handleOptions)
		r.Get("/summary", s.handleSummary)
		r.Get("/records", s.handleRecords)
		r.With(exports).Get("/export.csv", s.handleExport(core.FormatCSV))
		r.With(exports).Get("/export.xlsx", s.handleExport(core.FormatXLSX))
		r.Post("/refresh", s.handleRefresh)
	})
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.cfg.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	slog.Info("starting server", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// securityHeaders adds security headers to all responses. The page uses
// inline styles only and loads no scripts.
func securityHeaders(enableCSP bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
			if enableCSP {
				w.Header().Set("Content-Security-Policy", "default-src 'self'; script-src 'self'; style-src 'self' 'unsafe-inline'; img-src 'self' data:")
			}
			next.ServeHTTP(w, r)
		})
	}
}
