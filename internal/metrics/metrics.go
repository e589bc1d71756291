// Package metrics registers the Prometheus metrics used by the key pool and
// the gateway. The collectors register themselves on import; the gateway
// mounts promhttp.Handler at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Key pool metrics.
var (
	// TokenAcquisitions counts AcquireToken calls labelled by outcome
	// ("ok", "empty").
	TokenAcquisitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cocgw_token_acquisitions_total",
			Help: "Total API key acquisitions from the rotation pool.",
		},
		[]string{"outcome"},
	)

	// Refreshes counts account refreshes labelled by outcome ("ok",
	// "auth_error", "session_expired", "transport_error", "decode_error",
	// "cancelled", "error").
	Refreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cocgw_refresh_total",
			Help: "Total account refreshes against the developer portal.",
		},
		[]string{"outcome"},
	)

	// UsableKeys tracks the number of usable keys held per account.
	UsableKeys = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cocgw_usable_keys",
			Help: "Usable API keys per developer account after the last refresh.",
		},
		[]string{"account"},
	)
)

// Upstream (game API) metrics.
var (
	// UpstreamRequests counts requests sent to the game API labelled by the
	// HTTP status class ("2xx", "4xx", "5xx") or "error" for transport failures.
	UpstreamRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cocgw_upstream_requests_total",
			Help: "Total requests sent to the game API.",
		},
		[]string{"status"},
	)

	// UpstreamDuration observes game API latency in seconds.
	UpstreamDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cocgw_upstream_request_duration_seconds",
			Help:    "Game API request duration in seconds.",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
	)

	// TokenRetries counts requests re-sent with another key after a 401/403.
	TokenRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cocgw_token_retries_total",
			Help: "Requests retried with a different API key after an auth rejection.",
		},
	)
)

// StatusClass maps an HTTP status code to its metrics label.
func StatusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	case code >= 200:
		return "2xx"
	default:
		return "error"
	}
}
