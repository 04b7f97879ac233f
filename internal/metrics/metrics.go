// Package metrics holds the Prometheus collectors for the refresh pipeline and API.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "defi_yield"

// Metrics bundles every collector the service exports
type Metrics struct {
	requestCounter  *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	poolsReceived   prometheus.Counter
	poolsKept       prometheus.Counter
	cycles          *prometheus.CounterVec
	batchFailures   prometheus.Counter
	poolsUpserted   prometheus.Counter
	lastCycle       prometheus.Gauge
	agentRequests   *prometheus.CounterVec
}

// New registers all collectors with reg
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		requestCounter: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed",
			},
			[]string{"route", "status"},
		),
		requestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"route"},
		),
		poolsReceived: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pools_received_total",
			Help:      "Raw pool records received from the yield provider",
		}),
		poolsKept: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pools_enriched_total",
			Help:      "Pools kept after filtering and truncation",
		}),
		cycles: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "refresh_cycles_total",
				Help:      "Refresh cycles by result (ok, partial, failed, skipped)",
			},
			[]string{"result"},
		),
		batchFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_batch_failures_total",
			Help:      "Upsert batches that failed and were skipped",
		}),
		poolsUpserted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pools_upserted_total",
			Help:      "Pools written by successful upsert batches",
		}),
		lastCycle: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "refresh_last_cycle_timestamp_seconds",
			Help:      "Unix time the last refresh cycle finished",
		}),
		agentRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "agent_requests_total",
				Help:      "Agent requests by provider and result",
			},
			[]string{"provider", "result"},
		),
	}
}

// ObserveRequest records one HTTP request
func (m *Metrics) ObserveRequest(route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requestCounter.WithLabelValues(route, statusClass(status)).Inc()
	m.requestDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

// ObserveEnrichment records the size of one enrichment pass
func (m *Metrics) ObserveEnrichment(received, kept int) {
	if m == nil {
		return
	}
	m.poolsReceived.Add(float64(received))
	m.poolsKept.Add(float64(kept))
}

// ObserveCycle records a finished (or skipped) refresh cycle
func (m *Metrics) ObserveCycle(result string, upserted, failedBatches int) {
	if m == nil {
		return
	}
	m.cycles.WithLabelValues(result).Inc()
	if result == "skipped" {
		return
	}
	m.poolsUpserted.Add(float64(upserted))
	m.batchFailures.Add(float64(failedBatches))
	m.lastCycle.SetToCurrentTime()
}

// ObserveAgent records one agent request
func (m *Metrics) ObserveAgent(provider, result string) {
	if m == nil {
		return
	}
	m.agentRequests.WithLabelValues(provider, result).Inc()
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
