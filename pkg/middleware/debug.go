package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"net/http/pprof"
	"net/netip"

	"github.com/go-chi/chi/v5"

	"github.com/baker-beach/market-index/pkg/httputil"
)

// RegisterDebug mounts the pprof endpoints under /debug/pprof. Only clients
// inside one of the allowed prefixes reach them. Nothing is mounted when the
// list is empty.
func RegisterDebug(r chi.Router, allowed []string, logger *slog.Logger) {
	prefixes := parsePrefixes(allowed, logger)
	if len(prefixes) == 0 {
		return
	}
	r.Group(func(r chi.Router) {
		r.Use(Allowlist(prefixes, logger))
		r.HandleFunc("/debug/pprof/*", pprof.Index)
		r.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		r.HandleFunc("/debug/pprof/profile", pprof.Profile)
		r.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		r.HandleFunc("/debug/pprof/trace", pprof.Trace)
	})
}

func parsePrefixes(cidrs []string, logger *slog.Logger) []netip.Prefix {
	var out []netip.Prefix
	for _, cidr := range cidrs {
		p, err := netip.ParsePrefix(cidr)
		if err != nil {
			logger.Warn("invalid debug allowlist prefix, skipping",
				slog.String("cidr", cidr),
				slog.String("error", err.Error()),
			)
			continue
		}
		out = append(out, p.Masked())
	}
	return out
}

// Allowlist rejects requests whose remote address is outside every prefix.
func Allowlist(prefixes []netip.Prefix, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			host, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				host = r.RemoteAddr
			}
			if addr, err := netip.ParseAddr(host); err == nil {
				addr = addr.Unmap()
				for _, p := range prefixes {
					if p.Contains(addr) {
						next.ServeHTTP(w, r)
						return
					}
				}
			}

			logger.WarnContext(r.Context(), "debug endpoint denied",
				slog.String("ip", host),
				slog.String("path", r.URL.Path),
			)
			httputil.WriteJSON(w, http.StatusForbidden, httputil.Response{
				Error: &httputil.ErrorResponse{Code: "FORBIDDEN", Message: "access restricted by allowlist"},
			})
		})
	}
}
