package server

import (
	"net/http/pprof"
	"os"

	"github.com/fulmenhq/gofulmen/signals"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ratewatch/ratewatch/internal/config"
	"github.com/ratewatch/ratewatch/internal/observability"
	"github.com/ratewatch/ratewatch/internal/server/handlers"
)

// registerRoutes registers all HTTP routes
func (s *Server) registerRoutes() {
	// Standard health endpoints
	if hm := s.deps.Health; hm != nil {
		s.router.Get("/health", hm.HealthHandler)
		s.router.Get("/health/live", hm.LivenessHandler)
		s.router.Get("/health/ready", hm.ReadinessHandler)
		s.router.Get("/health/startup", hm.StartupHandler)
	} else {
		s.router.Get("/health", handlers.HealthHandler)
		s.router.Get("/health/live", handlers.LivenessHandler)
		s.router.Get("/health/ready", handlers.ReadinessHandler)
		s.router.Get("/health/startup", handlers.StartupHandler)
	}

	// Version endpoint
	s.router.Get("/version", handlers.VersionHandler)

	// Metrics endpoint (in server package to access HandleError)
	s.router.Get("/metrics", MetricsHandler)

	s.router.Route("/api/v1", s.registerAPI)

	if len(s.deps.Upstreams) > 0 && s.deps.Interceptor != nil {
		proxy := newUpstreamProxy(s.deps.Upstreams, s.deps.Interceptor)
		s.router.Handle("/proxy/{name}", proxy)
		s.router.Handle("/proxy/{name}/*", proxy)
	}

	if s.deps.Pprof {
		s.registerPprof()
	}

	// Admin signal endpoint (optional, requires RATEWATCH_ADMIN_TOKEN)
	s.registerAdminEndpoint()
}

func (s *Server) registerAPI(r chi.Router) {
	api := &handlers.API{
		Tracker:    s.deps.Tracker,
		Broker:     s.deps.Broker,
		BufferSize: s.deps.BufferSize,
	}

	if api.Tracker != nil {
		r.Post("/detections", api.IngestDetection)

		r.Get("/ratelimits", api.ListRateLimits)
		r.Delete("/ratelimits", api.ClearAllRateLimits)
		r.Get("/ratelimits/{domain}", api.GetRateLimit)
		r.Delete("/ratelimits/{domain}", api.ClearRateLimit)

		r.Get("/collector", api.GetCollectorConfig)
		r.Put("/collector", api.UpdateCollectorConfig)
		r.Patch("/collector", api.UpdateCollectorConfig)
		r.Post("/collector/test", api.TestCollector)
	}

	if api.Broker != nil && api.Tracker != nil {
		r.Get("/events", api.StreamEvents)
	}
}

func (s *Server) registerPprof() {
	s.router.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	s.router.HandleFunc("/debug/pprof/profile", pprof.Profile)
	s.router.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	s.router.HandleFunc("/debug/pprof/trace", pprof.Trace)
	// Index also serves the named profiles (heap, goroutine, ...)
	s.router.HandleFunc("/debug/pprof/*", pprof.Index)

	if logger := observability.ServerLogger; logger != nil {
		logger.Warn("pprof endpoints enabled", zap.String("path", "/debug/pprof/"))
	}
}

// registerAdminEndpoint optionally registers the admin signal endpoint
func (s *Server) registerAdminEndpoint() {
	envVar := config.EnvPrefix + "ADMIN_TOKEN"
	adminToken := os.Getenv(envVar)
	logger := observability.ServerLogger

	if adminToken == "" {
		if logger != nil {
			logger.Debug("Admin signal endpoint disabled (no " + envVar + " set)")
		}
		return
	}

	// Create HTTP signal handler with bearer token auth and rate limiting
	handler := signals.NewHTTPHandler(signals.HTTPConfig{
		TokenAuth: adminToken,
		RateLimit: 10,  // 10 requests per minute
		RateBurst: 5,   // burst size
		Manager:   nil, // use default global manager
	})

	// Register admin endpoint
	s.router.Post("/admin/signal", handler.ServeHTTP)

	if logger != nil {
		logger.Info("Admin signal endpoint enabled",
			zap.String("path", "/admin/signal"),
			zap.String("auth", "bearer token"),
			zap.String("rate_limit", "10/min, burst 5"))
		logger.Warn("Admin endpoint enabled - ensure this server is not exposed to public internet")
	}
}
