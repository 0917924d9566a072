package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/shuttle/internal/domain"
)

// Rate-limit scopes.
const (
	ScopeGlobal = "global"
	ScopeIP     = "ip"
)

// RateLimit returns middleware that counts requests in a fixed window. With
// ScopeGlobal every client shares one counter; with ScopeIP each client IP
// has its own. Responses carry RateLimit-Limit, RateLimit-Remaining and
// RateLimit-Reset headers. Limiter errors let the request through.
func RateLimit(limiter domain.RateLimiter, limit int, window time.Duration, scope string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := "api:" + ScopeGlobal
			if scope == ScopeIP {
				key = "api:ip:" + extractClientIP(r)
			}

			d, err := limiter.Allow(r.Context(), key, limit, window)
			if err != nil {
				logger.WarnContext(r.Context(), "rate limiter unavailable",
					slog.String("error", err.Error()),
				)
				next.ServeHTTP(w, r)
				return
			}

			reset := int(time.Until(d.ResetAt).Round(time.Second).Seconds())
			if reset < 0 {
				reset = 0
			}
			h := w.Header()
			h.Set("RateLimit-Limit", strconv.Itoa(d.Limit))
			h.Set("RateLimit-Remaining", strconv.Itoa(d.Remaining))
			h.Set("RateLimit-Reset", strconv.Itoa(reset))

			if !d.Allowed {
				h.Set("Retry-After", strconv.Itoa(reset))
				reject(w, http.StatusTooManyRequests, "Too many requests, please try again later.", "RATE_LIMITED")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// extractClientIP attempts to determine the real client IP from standard
// proxy headers, falling back to the direct remote address.
func extractClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.SplitN(xff, ",", 2)
		ip := strings.TrimSpace(parts[0])
		if ip != "" {
			return ip
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
