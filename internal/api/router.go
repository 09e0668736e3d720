// Package api provides the HTTP API for SmogWatch.
package api

import (
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/smogwatch/smogwatch/internal/airquality"
	"github.com/smogwatch/smogwatch/internal/api/handler"
	"github.com/smogwatch/smogwatch/internal/api/middleware"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version           string
	BuildTime         string
	Logger            zerolog.Logger
	ServiceName       string
	Metrics           *middleware.Metrics
	AirQualityService *airquality.Service
	Geocoder          handler.Geocoder
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Set default service name if not provided
	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "smogwatch-api"
	}

	// Global middleware - order matters
	r.Use(middleware.RequestID)            // Generate/propagate request ID first
	r.Use(middleware.Tracing(serviceName)) // Distributed tracing
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware()) // HTTP metrics
	}
	r.Use(middleware.Logger(cfg.Logger))   // Structured logging
	r.Use(middleware.Recovery(cfg.Logger)) // Panic recovery
	r.Use(chimiddleware.RealIP)            // Real IP extraction
	r.Use(middleware.SecurityHeaders)      // Security headers (HSTS, CSP, etc.)
	r.Use(middleware.RequireTLS)           // TLS enforcement (enabled via REQUIRE_TLS=true)
	r.Use(middleware.ContentTypeJSON)      // JSON content type

	// Initialize handlers
	opsHandler := handler.NewOpsHandler(cfg.Version, cfg.BuildTime, cfg.AirQualityService)
	stationsHandler := handler.NewStationsHandler(cfg.AirQualityService, cfg.Geocoder)
	measurementsHandler := handler.NewMeasurementsHandler(cfg.AirQualityService)
	refreshHandler := handler.NewRefreshHandler(cfg.AirQualityService)

	// Create rate limit middleware for different endpoint categories
	refreshRateLimit := middleware.RateLimitByIP(middleware.RefreshRateLimit)     // 10 req/min
	expensiveRateLimit := middleware.RateLimitByIP(middleware.ExpensiveRateLimit) // 30 req/min
	standardRateLimit := middleware.RateLimitByIP(middleware.StandardRateLimit)   // 100 req/min

	// API v1 routes
	r.Route("/v1", func(r chi.Router) {
		// Ops endpoints (public)
		r.Route("/ops", func(r chi.Router) {
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)
			r.Get("/status", opsHandler.SystemStatus)
		})

		// Station endpoints
		r.Route("/stations", func(r chi.Router) {
			// Nearby goes through the geocoder, so it gets the tighter limit
			r.With(expensiveRateLimit).Get("/nearby", stationsHandler.NearbyStations)

			r.Group(func(r chi.Router) {
				r.Use(standardRateLimit)
				r.Get("/", stationsHandler.ListStations)
				r.Route("/{stationId}", func(r chi.Router) {
					r.Get("/", stationsHandler.GetStation)
					r.Get("/sensors", stationsHandler.ListSensors)
				})
			})
		})

		// Sensor endpoints
		r.Route("/sensors/{sensorId}", func(r chi.Router) {
			r.Use(standardRateLimit)
			r.Get("/measurements", measurementsHandler.GetMeasurements)
			r.Get("/stats", measurementsHandler.GetStats)
		})

		// Cache refresh - every call fans out upstream
		r.With(refreshRateLimit).Post("/refresh", refreshHandler.Refresh)
	})

	return r
}
