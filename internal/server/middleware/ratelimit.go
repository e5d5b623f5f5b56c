package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/darkpool/internal/domain"
)

// RateLimit caps mutating requests per client IP at limit per window; they
// are the ones that cost gas. Reads pass untouched. When the limiter itself
// fails the request is let through and the failure logged.
func RateLimit(limiter domain.RateLimiter, limit int, window time.Duration, logger *slog.Logger) func(http.Handler) http.Handler {
	if limiter == nil || limit <= 0 || window <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	logger = logger.With(slog.String("component", "ratelimit"))
	limitHeader := strconv.Itoa(limit)
	retryAfter := strconv.Itoa(max(1, int(window.Round(time.Second).Seconds())))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isReadOnly(r.Method) {
				next.ServeHTTP(w, r)
				return
			}

			ip := ClientIP(r)
			allowed, err := limiter.Allow(r.Context(), "api:"+ip, limit, window)
			switch {
			case err != nil:
				logger.WarnContext(r.Context(), "limiter unavailable, admitting request",
					slog.String("client_ip", ip),
					slog.String("error", err.Error()),
				)
			case !allowed:
				w.Header().Set("X-RateLimit-Limit", limitHeader)
				w.Header().Set("Retry-After", retryAfter)
				writeJSONError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP is the first X-Forwarded-For hop, then X-Real-IP, then the peer
// address.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if first, _, _ := strings.Cut(xff, ","); strings.TrimSpace(first) != "" {
			return strings.TrimSpace(first)
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
