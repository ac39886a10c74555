// Package metrics exposes the gateway's Prometheus instruments: per-server
// request counters and latency histograms on the proxy path, correlator
// discard/pending gauges, and supervisor lifecycle counters.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "mcpgate"

var (
	proxyRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "proxy",
		Name:      "requests_total",
		Help:      "Forwarded JSON-RPC calls by server name and gateway HTTP status.",
	}, []string{"server", "code"})

	proxyDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "proxy",
		Name:      "request_duration_seconds",
		Help:      "End-to-end forward latency per server.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 16),
	}, []string{"server"})

	correlatorDiscarded = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "correlator",
		Name:      "discarded_lines_total",
		Help:      "Stdout lines that never matched a waiter, per backend.",
	}, []string{"server"})

	correlatorPending = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "correlator",
		Name:      "pending_waiters",
		Help:      "Requests currently awaiting a correlated response, per backend.",
	}, []string{"server"})

	backendStarts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "supervisor",
		Name:      "backend_starts_total",
		Help:      "Successful backend starts by transport.",
	}, []string{"server", "transport"})

	backendStops = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "supervisor",
		Name:      "backend_stops_total",
		Help:      "Orderly backend stops.",
	}, []string{"server"})

	backendCrashes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "supervisor",
		Name:      "backend_crashes_total",
		Help:      "Backends whose stdout closed while Running.",
	}, []string{"server"})
)

// ObserveProxyRequest records one forwarded call's outcome and latency.
func ObserveProxyRequest(server string, status int, d time.Duration) {
	proxyRequests.WithLabelValues(server, strconv.Itoa(status)).Inc()
	proxyDuration.WithLabelValues(server).Observe(d.Seconds())
}

// SetCorrelatorStats publishes a backend correlator's current counters. The
// supervisor refreshes these opportunistically; they are gauges because the
// correlator owns the authoritative count.
func SetCorrelatorStats(server string, discarded uint64, pending int) {
	correlatorDiscarded.WithLabelValues(server).Set(float64(discarded))
	correlatorPending.WithLabelValues(server).Set(float64(pending))
}

// RecordBackendStart counts one successful start.
func RecordBackendStart(server, transport string) {
	backendStarts.WithLabelValues(server, transport).Inc()
}

// RecordBackendStop counts one orderly stop.
func RecordBackendStop(server string) {
	backendStops.WithLabelValues(server).Inc()
}

// RecordBackendCrash counts one crash detection.
func RecordBackendCrash(server string) {
	backendCrashes.WithLabelValues(server).Inc()
}

// Handler returns the scrape endpoint the gateway mounts at /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
