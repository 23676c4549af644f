package api

import (
	"log/slog"
	"net"
	"net/http"
	"strings"

	domainerrors "github.com/neobackupapp/neobackup-server/internal/errors"
	"github.com/neobackupapp/neobackup-server/internal/ratelimit"
)

// RateLimitMiddleware limits requests whose path starts with prefix, keyed
// by client IP. Returns 429 Too Many Requests when the limit is exceeded.
func RateLimitMiddleware(limiter *ratelimit.KeyedRateLimiter, prefix string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter == nil || !strings.HasPrefix(r.URL.Path, prefix) {
				next.ServeHTTP(w, r)
				return
			}

			key := getClientIP(r)
			if !limiter.Allow(key) {
				logger.Warn("rate limit exceeded",
					"ip", key,
					"path", r.URL.Path,
				)
				writeError(w, fromDomain(domainerrors.ErrRateLimited))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// getClientIP extracts the client IP from the request.
// Checks X-Forwarded-For and X-Real-IP headers before falling back to RemoteAddr.
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
