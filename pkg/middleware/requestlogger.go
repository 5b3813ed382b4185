package middleware

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/baker-beach/market-index/pkg/logger"
)

// RequestLogger stores a logger enriched with the correlation id, trace ids
// and, on product routes, the product code in the request context.
//
// Mount it after RequestLogging and Tracing. The product code is only known
// once chi has matched the route, so mount it inside the router.
func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if code := chi.URLParam(r, "code"); code != "" {
				ctx = logger.WithProductCode(ctx, code)
			}
			ctx = logger.NewContext(ctx, logger.WithContext(ctx, base))

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
