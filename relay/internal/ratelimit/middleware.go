package ratelimit

import (
	"net/http"

	"github.com/telhawk-systems/callrelay/common/httputil"
	"github.com/telhawk-systems/callrelay/common/logging"
	"github.com/telhawk-systems/callrelay/relay/internal/metrics"
)

// Middleware rejects requests over the per-client-IP limit with 429. If the
// limiter itself fails the request is let through. Forwarding headers only
// pick the key when trustProxy is set.
func Middleware(limiter RateLimiter, backend string, trustProxy bool, logger *logging.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = logging.Discard()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := httputil.GetClientIP(r, trustProxy)

			allowed, err := limiter.Allow(r.Context(), ip)
			if err != nil {
				logger.WarnContext(r.Context(), "rate limiter unavailable, allowing request",
					logging.IP(ip), logging.Error(err))
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				metrics.RateLimitHits.WithLabelValues(backend).Inc()
				logger.InfoContext(r.Context(), "rate limited",
					logging.IP(ip), logging.Path(r.URL.Path))
				httputil.WriteError(w, http.StatusTooManyRequests, "rate_limited")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
