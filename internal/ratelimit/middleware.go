package ratelimit

import (
	"encoding/json"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/switchboardhq/switchboard/internal/logging"
	"github.com/switchboardhq/switchboard/internal/metrics"
)

// Middleware limits requests per ClientIdentifier. Every response carries
// X-RateLimit-Limit, X-RateLimit-Remaining and X-RateLimit-Reset; denied
// requests get 429 with Retry-After. A failing store lets the request through.
func Middleware(l *Limiter, logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := ClientIdentifier(r)
			res, err := l.Check(r.Context(), id)
			if err != nil {
				logger.Error("rate limit store failed", logging.Identifier(id), zap.Error(err))
				metrics.RateLimitDecisions.WithLabelValues("error").Inc()
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(l.Limit()))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetTime.Unix(), 10))

			if !res.Allowed {
				metrics.RateLimitDecisions.WithLabelValues("denied").Inc()
				retry := res.RetryAfter(l.Now())
				logger.Debug("rate limited", logging.Identifier(id), zap.Duration("retry_after", retry))
				h.Set("Retry-After", strconv.Itoa(int(retry.Seconds())))
				h.Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]any{
					"error":       "rate limit exceeded",
					"retry_after": int(retry.Seconds()),
				})
				return
			}
			metrics.RateLimitDecisions.WithLabelValues("allowed").Inc()
			next.ServeHTTP(w, r)
		})
	}
}
