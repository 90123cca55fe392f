package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	mw "github.com/calorieai/calorie-bot/internal/middleware"
)

// HandlerSet holds handler functions injected from main.go to avoid import cycles.
type HandlerSet struct {
	// Admin quota handlers
	GetUserQuota    http.HandlerFunc
	SetSubscription http.HandlerFunc
	ResetUserQuota  http.HandlerFunc

	// Auth middleware
	AuthMiddleware func(http.Handler) http.Handler
}

// Probes report the state of optional dependencies. A nil probe means "not configured".
type Probes struct {
	Redis func(ctx context.Context) error
	NATS  func() bool
}

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	CORSAllowedOrigins []string
	AdminRateLimiter   func(http.Handler) http.Handler
}

func NewRouter(probes Probes, cfg RouterConfig, h HandlerSet) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.RequestID)
	r.Use(mw.SecurityHeaders)
	r.Use(mw.Observe)
	r.Use(mw.Recovery)
	r.Use(cors.Handler(mw.CORS(cfg.CORSAllowedOrigins)))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		HandleError(w, ErrNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		HandleError(w, ErrMethodNotAllowed)
	})

	// Liveness probe: always 200, no dependency checks
	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		JSON(w, http.StatusOK, map[string]string{"status": "alive"})
	})

	// Readiness probe: checks Redis and NATS when configured
	readinessHandler := func(w http.ResponseWriter, r *http.Request) {
		health := map[string]string{
			"status": "healthy",
			"redis":  "healthy",
			"nats":   "healthy",
		}

		status := http.StatusOK

		if probes.Redis == nil {
			health["redis"] = "not configured"
		} else if err := probes.Redis(r.Context()); err != nil {
			health["redis"] = "unhealthy"
			health["status"] = "degraded"
			status = http.StatusServiceUnavailable
		}

		if probes.NATS == nil {
			health["nats"] = "not configured"
		} else if !probes.NATS() {
			health["nats"] = "unhealthy"
			health["status"] = "degraded"
			status = http.StatusServiceUnavailable
		}

		JSON(w, status, health)
	}

	r.Get("/health/ready", readinessHandler)
	r.Get("/health", readinessHandler)

	// Prometheus metrics
	r.Handle("/metrics", promhttp.Handler())

	// API v1, admin only. Not mounted without an auth middleware.
	if h.AuthMiddleware == nil {
		return r
	}
	r.Route("/api/v1", func(r chi.Router) {
		if cfg.AdminRateLimiter != nil {
			r.Use(cfg.AdminRateLimiter)
		}
		r.Use(h.AuthMiddleware)

		r.Route("/users/{userID}", func(r chi.Router) {
			r.Get("/quota", h.GetUserQuota)
			r.Post("/quota/reset", h.ResetUserQuota)
			r.Put("/subscription", h.SetSubscription)
		})
	})

	return r
}
