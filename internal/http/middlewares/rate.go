package middlewares

import (
	"crypto/subtle"
	"net/http"
	"strconv"
	"time"

	"github.com/jalgreatworks0/clientforge-auth/internal/metrics"
	"github.com/jalgreatworks0/clientforge-auth/internal/observability/logger"
	"github.com/jalgreatworks0/clientforge-auth/internal/rate"
)

func constantTimeEq(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// WithRateLimit aplica un límite de ventana fija por IP al endpoint dado.
// Si el backend de rate falla, la request pasa (fail-open): preferimos
// degradar el límite antes que tumbar el login.
func WithRateLimit(l rate.Limiter, endpoint string, limit int, window time.Duration) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := endpoint + ":" + ClientIP(r)
			res, err := l.Allow(r.Context(), key, limit, window)
			if err != nil {
				logger.From(r.Context()).Warn("rate limiter unavailable", logger.Err(err))
				next.ServeHTTP(w, r)
				return
			}
			if !res.Allowed {
				metrics.RateLimitRejectsTotal.WithLabelValues(endpoint).Inc()
				retry := int(res.RetryAfter / time.Second)
				if retry < 1 {
					retry = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(retry))
				writeErr(w, http.StatusTooManyRequests, "rate_limited", "demasiadas peticiones, intenta más tarde", 1501)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
