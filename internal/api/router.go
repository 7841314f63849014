// Package api provides the HTTP read API over stored stations and status logs.
package api

import (
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/velov-data/velov/internal/api/handler"
	"github.com/velov-data/velov/internal/api/middleware"
	"github.com/velov-data/velov/internal/provider/resilience"
	"github.com/velov-data/velov/internal/station"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version   string
	BuildTime string
	Logger    zerolog.Logger
	Metrics   *middleware.Metrics

	StationService *station.Service
	// Registry exposes upstream circuit state on /v1/ops/status. Optional.
	Registry *resilience.Registry

	CORSAllowedOrigins []string
	RequireTLS         bool
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware - order matters
	r.Use(middleware.RequestID)
	r.Use(middleware.Tracing())
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware())
	}
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.RequireTLS(cfg.RequireTLS))
	r.Use(middleware.CORS(middleware.DefaultCORSConfig(cfg.CORSAllowedOrigins)))
	r.Use(middleware.ContentTypeJSON)

	stationHandler := handler.NewStationHandler(cfg.StationService)
	var store handler.Pinger
	if cfg.StationService != nil {
		store = cfg.StationService
	}
	opsHandler := handler.NewOpsHandler(cfg.Version, cfg.BuildTime, store, cfg.Registry)

	standardRateLimit := middleware.RateLimitByIP(middleware.StandardRateLimit)
	historyRateLimit := middleware.RateLimitByIP(middleware.HistoryRateLimit)

	r.Get("/", stationHandler.Banner)

	r.Route("/v1", func(r chi.Router) {
		r.Route("/ops", func(r chi.Router) {
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)
			r.With(standardRateLimit).Get("/status", opsHandler.SystemStatus)
		})

		r.With(standardRateLimit).Get("/stations", stationHandler.ListStations)

		r.Route("/status", func(r chi.Router) {
			r.With(standardRateLimit).Get("/latest", stationHandler.LatestStatuses)
			r.With(historyRateLimit).Get("/{stationId}", stationHandler.StatusHistory)
		})
	})

	return r
}
