package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/baker-beach/market-index/pkg/health"
	"github.com/baker-beach/market-index/pkg/middleware"
)

const tracerName = "github.com/baker-beach/market-index/internal/handler/http"

// NewRouter creates a chi router with all index routes registered.
func NewRouter(
	indexer Indexer,
	healthHandler *health.Handler,
	debugCIDRs []string,
	logger *slog.Logger,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.Tracing(tracerName))
	r.Use(middleware.PrometheusMetrics("market-index"))

	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())
	middleware.RegisterDebug(r, debugCIDRs, logger)

	h := NewIndexHandler(indexer, logger)

	r.Route("/api/v1/index", func(r chi.Router) {
		r.Use(chimw.Timeout(60 * time.Second))

		r.Group(func(r chi.Router) {
			r.Use(chimw.AllowContentType("application/json"))
			r.Use(middleware.RequestLogger(logger))
			r.Post("/preview", h.Preview)
			r.Post("/products", h.IndexProducts)
		})

		r.Route("/products/{code}", func(r chi.Router) {
			r.Use(middleware.RequestLogger(logger))
			r.Get("/", h.Documents)
			r.Post("/", h.IndexByCode)
			r.Delete("/", h.DeleteProduct)
		})

		r.With(middleware.RequestLogger(logger)).Post("/reindex", h.Reindex)
	})

	return r
}
