// Package metrics exposes the Prometheus metrics of the bbs client.
// The metrics themselves live next to the code that records them
// (client, session, ratelimit, aggregate) and register through promauto.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is where all bbs metrics are registered.
var Registry = prometheus.DefaultRegisterer

// Gatherer reads back what Registry collected.
var Gatherer = prometheus.DefaultGatherer

// Handler serves the collected metrics in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{
		Registry: Registry,
		Timeout:  10 * time.Second,
	})
}

// NewServer returns an HTTP server exposing Handler on /metrics.
func NewServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// Metrics
//
// Requests (pkg/client):
//   - bbs_requests_total{method, status} (Counter): attempts by method and HTTP status
//   - bbs_request_duration_seconds{method} (Histogram): duration of a logical request
//   - bbs_errors_total{kind} (Counter): terminal failures by error kind
//
// Retries (pkg/client):
//   - bbs_retries_total{kind} (Counter): retry attempts by error kind
//   - bbs_retry_backoff_seconds{kind} (Histogram): backoff slept before a retry
//   - bbs_retry_exhausted_total{kind} (Counter): requests that used every attempt
//
// Session (pkg/session):
//   - bbs_session_refreshes_total{result} (Counter): refresh exchanges by result
//     (success, failed, no_token)
//
// Rate limiting (pkg/ratelimit):
//   - bbs_rate_limit_waits_total (Counter): attempts delayed by the limiter
//   - bbs_rate_limit_pauses_total (Counter): Retry-After pauses announced by the server
//
// Reply counts (pkg/aggregate):
//   - bbs_aggregate_subfetch_failures_total (Counter): reply listings that failed and counted as zero
//   - bbs_aggregate_duration_seconds (Histogram): duration of a reply count fan-out
//
// Example queries:
//
//	# Refresh failures per minute
//	sum(rate(bbs_session_refreshes_total{result!="success"}[1m])) * 60
//
//	# P95 request latency
//	histogram_quantile(0.95, rate(bbs_request_duration_seconds_bucket[5m]))
