package middleware

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/spherical/flyer-extractor/internal/observability"
)

// RateLimit guards expensive routes with a single token bucket refilled at
// perMinute tokens per minute. A perMinute <= 0 disables the limit.
func RateLimit(perMinute, burst int, logger *observability.Logger) func(http.Handler) http.Handler {
	if perMinute <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	if burst < 1 {
		burst = 1
	}
	if logger == nil {
		logger = observability.Nop()
	}
	limiter := rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), burst)
	return limitWith(limiter, logger)
}

func limitWith(limiter *rate.Limiter, logger *observability.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res := limiter.Reserve()
			if delay := res.Delay(); delay > 0 {
				res.Cancel()
				retry := int(math.Ceil(delay.Seconds()))
				logger.WithContext(r.Context()).Warn().
					Str("path", r.URL.Path).
					Int("retry_after", retry).
					Msg("extraction rate limit exceeded")

				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", strconv.Itoa(retry))
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]string{
					"error":   "rate_limited",
					"message": "Troppe richieste di estrazione, riprova più tardi.",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
