// Package app assembles the HTTP router and readiness checks from the
// adapters. It owns the middleware chain; handlers stay free of it.
package app

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/careerforge/ai-gateway/internal/adapter/httpserver"
	"github.com/careerforge/ai-gateway/internal/config"
	"github.com/careerforge/ai-gateway/internal/observability"
)

// ParseOrigins splits a comma-separated origin list into a slice, trimming
// spaces. An empty input means every origin.
func ParseOrigins(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" || s == "*" {
		return []string{"*"}
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}

// BuildRouter constructs the HTTP handler with all middlewares and routes.
func BuildRouter(cfg config.Config, srv *httpserver.Server) http.Handler {
	r := chi.NewRouter()
	r.Use(httpserver.Recoverer())
	r.Use(httpserver.TraceMiddleware)
	r.Use(httpserver.RequestID())
	r.Use(httpserver.AccessLog())
	r.Use(observability.HTTPMetricsMiddleware)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   ParseOrigins(cfg.CORSAllowOrigins),
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Rate limit the endpoints that reach the model provider.
	r.Group(func(wr chi.Router) {
		wr.Use(httprate.LimitByIP(cfg.RateLimitPerMin, 1*time.Minute))
		wr.Post("/v1/ai/request", srv.HandleAIRequest())
		wr.Post("/v1/ai/batch", srv.HandleBatch())
		wr.Put("/v1/ai/credentials/{user_id}", srv.HandlePutCredential())
	})

	// Read-only endpoints
	r.Get("/v1/ai/operations", srv.HandleOperations())
	r.Get("/v1/ai/usage/{user_id}", srv.HandleUsageList())
	r.Get("/v1/ai/usage/{user_id}/{operation}", srv.HandleUsage())

	// Health and metrics
	r.Get("/healthz", srv.Healthz())
	r.Get("/readyz", srv.Readyz())
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) { promhttp.Handler().ServeHTTP(w, r) })

	return httpserver.SecurityHeaders(r)
}
