package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"

	"github.com/finbrain/finbrain/internal/database"
	mw "github.com/finbrain/finbrain/internal/middleware"
	inats "github.com/finbrain/finbrain/internal/nats"
	"github.com/finbrain/finbrain/internal/redis"
)

// HandlerSet holds handler functions injected from main.go to avoid import cycles.
type HandlerSet struct {
	// Session handlers
	CreateSession  http.HandlerFunc
	RefreshSession http.HandlerFunc
	EndSession     http.HandlerFunc

	// Research
	Research http.HandlerFunc

	// Session memory
	GetMemory    http.HandlerFunc
	DeleteMemory http.HandlerFunc

	// Model call limiter diagnostics
	RateLimitStats http.HandlerFunc

	// Auth middleware
	AuthMiddleware func(http.Handler) http.Handler
}

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	CORSAllowedOrigins []string
	// RateLimiter, when set, limits session creation per IP and API calls
	// per session.
	RateLimiter func(http.Handler) http.Handler
}

func NewRouter(pool *pgxpool.Pool, rdb goredis.Cmdable, natsClient *inats.Client, cfg RouterConfig, h HandlerSet) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.RequestID)
	r.Use(mw.SecurityHeaders)
	r.Use(mw.Logging)
	r.Use(mw.Recovery)
	r.Use(mw.Metrics)
	r.Use(cors.Handler(mw.CORS(cfg.CORSAllowedOrigins)))

	limit := cfg.RateLimiter
	if limit == nil {
		limit = func(next http.Handler) http.Handler { return next }
	}

	// Liveness probe: always 200, no dependency checks
	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		JSON(w, http.StatusOK, map[string]string{"status": "alive"})
	})

	// Readiness probe: checks DB, Redis, NATS
	readinessHandler := func(w http.ResponseWriter, r *http.Request) {
		health := map[string]string{
			"status":   "healthy",
			"database": "healthy",
			"redis":    "healthy",
			"nats":     "healthy",
		}

		status := http.StatusOK

		if err := database.HealthCheck(r.Context(), pool); err != nil {
			health["database"] = "unhealthy"
			health["status"] = "degraded"
			status = http.StatusServiceUnavailable
		}

		if err := redis.HealthCheck(r.Context(), rdb); err != nil {
			health["redis"] = "unhealthy"
			health["status"] = "degraded"
			status = http.StatusServiceUnavailable
		}

		if natsClient != nil && !natsClient.Healthy() {
			health["nats"] = "unhealthy"
			health["status"] = "degraded"
			status = http.StatusServiceUnavailable
		} else if natsClient == nil {
			health["nats"] = "not configured"
		}

		JSON(w, status, health)
	}

	r.Get("/health/ready", readinessHandler)
	r.Get("/health", readinessHandler)

	// Prometheus metrics
	r.Handle("/metrics", promhttp.Handler())

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		// Session routes (public), rate-limited per IP
		r.Route("/sessions", func(r chi.Router) {
			r.With(limit).Post("/", h.CreateSession)
			r.With(limit).Post("/refresh", h.RefreshSession)

			r.Group(func(r chi.Router) {
				r.Use(h.AuthMiddleware)
				r.Delete("/", h.EndSession)
			})
		})

		// Protected routes, rate-limited per session
		r.Group(func(r chi.Router) {
			r.Use(h.AuthMiddleware)
			r.Use(limit)

			r.Post("/research", h.Research)

			r.Route("/memory", func(r chi.Router) {
				r.Get("/", h.GetMemory)
				r.Delete("/", h.DeleteMemory)
			})

			r.Get("/ratelimit", h.RateLimitStats)
		})
	})

	return r
}
