// Package metrics defines the Prometheus collectors exported at /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RateLimitDecisions counts limiter outcomes.
	// Labels: result: "allowed", "limited", "error"
	RateLimitDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "switchboard",
			Name:      "rate_limit_decisions_total",
			Help:      "Total rate limit checks by result",
		},
		[]string{"result"},
	)

	// PublishResults counts publish attempts.
	// Labels: platform, outcome: "success", "invalid" or the PublishError code
	PublishResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "switchboard",
			Name:      "publish_results_total",
			Help:      "Total publish attempts by platform and outcome",
		},
		[]string{"platform", "outcome"},
	)

	// StatusCallbacks counts delivery status webhooks.
	// Labels: status (canonical, empty when not applied), outcome: "applied", "ignored", "not_found", "rejected", "error"
	StatusCallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "switchboard",
			Name:      "status_callbacks_total",
			Help:      "Total delivery status callbacks by outcome",
		},
		[]string{"status", "outcome"},
	)

	// TokenRefreshes counts token refresh attempts.
	// Labels: platform, outcome: "refreshed", "unsupported", "error"
	TokenRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "switchboard",
			Name:      "token_refreshes_total",
			Help:      "Total token refresh attempts by platform and outcome",
		},
		[]string{"platform", "outcome"},
	)
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
