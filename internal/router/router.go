// Package router assembles the HTTP routes and middleware chain.
package router

import (
	"log/slog"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/usercache/usercache/internal/handler"
	"github.com/usercache/usercache/internal/metrics"
	"github.com/usercache/usercache/internal/middleware"
)

// Config holds router settings taken from the application config.
type Config struct {
	IsDevelopment      bool
	CORSAllowedOrigins []string
	MaxRequestBodySize int64

	RateLimitEnabled bool
	RateLimitRPS     int
	RateLimitBurst   int
}

// Deps are the collaborators the routes delegate to.
type Deps struct {
	Users    handler.UserService
	Database handler.HealthChecker
	Cache    handler.HealthChecker
	Metrics  metrics.Snapshotter
	Limiter  middleware.IPRateLimiter
	Logger   *slog.Logger
}

// New configures the chi router with all routes and middleware.
// User endpoints are served both at /users and at /api/users.
func New(cfg Config, deps Deps) *chi.Mux {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	h := handler.New()
	healthHandler := handler.NewHealthHandler(deps.Database, deps.Cache)
	metricsHandler := handler.NewMetricsHandler(deps.Metrics)
	userHandler := handler.NewUserHandler(deps.Users, logger)

	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.AllowedOrigins = cfg.CORSAllowedOrigins

	securityCfg := middleware.DefaultSecurityConfig()
	securityCfg.IsDevelopment = cfg.IsDevelopment
	if cfg.MaxRequestBodySize > 0 {
		securityCfg.MaxRequestBodySize = cfg.MaxRequestBodySize
	}

	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recoverer(logger))
	r.Use(middleware.Security(securityCfg))
	r.Use(middleware.CORS(corsCfg))
	r.Use(middleware.MaxBodySize(securityCfg.MaxRequestBodySize))

	// Probes
	r.Get("/health", healthHandler.Health)
	r.Get("/readyz", healthHandler.Readyz)
	r.Get("/metrics", metricsHandler.Metrics)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimitIP(middleware.RateLimitConfig{
			Logger:  logger,
			Limiter: deps.Limiter,
			Enabled: cfg.RateLimitEnabled,
			RPS:     cfg.RateLimitRPS,
			Burst:   cfg.RateLimitBurst,
		}))

		r.Route("/users", userHandler.Routes)
		r.Route("/api/users", userHandler.Routes)
	})

	r.NotFound(h.NotFound)
	r.MethodNotAllowed(h.MethodNotAllowed)

	return r
}
