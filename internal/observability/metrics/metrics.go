// Package metrics registers the service's prometheus collectors.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "solarops_"

	resultSuccess = "success"
	resultError   = "error"
	resultPartial = "partial"
)

var (
	registerOnce sync.Once

	fetchCycles       *prometheus.CounterVec
	fetchCycleLatency *prometheus.HistogramVec

	deviceFetches *prometheus.CounterVec

	keyCacheLookups *prometheus.CounterVec

	exportTotal   *prometheus.CounterVec
	exportLatency *prometheus.HistogramVec
)

// Init registers the collectors. Safe to call more than once.
func Init() {
	registerOnce.Do(func() {
		fetchCycles = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "fetch_cycles_total",
				Help: "Total fetch/compute cycles by result",
			},
			[]string{"result"},
		)
		fetchCycleLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "fetch_cycle_latency_seconds",
				Help:    "Fetch/compute cycle latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		deviceFetches = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "device_fetches_total",
				Help: "Per-device fetch outcomes by result",
			},
			[]string{"result"},
		)
		keyCacheLookups = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "session_key_cache_lookups_total",
				Help: "Session key cache lookups by outcome",
			},
			[]string{"outcome"},
		)
		exportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "export_total",
				Help: "Report exports by format and result",
			},
			[]string{"format", "result"},
		)
		exportLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "export_latency_seconds",
				Help:    "Report export latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"format", "result"},
		)

		prometheus.MustRegister(
			fetchCycles,
			fetchCycleLatency,
			deviceFetches,
			keyCacheLookups,
			exportTotal,
			exportLatency,
		)
	})
}

// ObserveFetchCycle records a cycle result and duration.
func ObserveFetchCycle(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if fetchCycles != nil {
		fetchCycles.WithLabelValues(result).Inc()
	}
	if fetchCycleLatency != nil {
		fetchCycleLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// IncDeviceFetch records a per-device fetch outcome.
func IncDeviceFetch(result string) {
	if result == "" {
		result = resultSuccess
	}
	if deviceFetches != nil {
		deviceFetches.WithLabelValues(result).Inc()
	}
}

// IncKeyCacheLookup records a session key cache hit or miss.
func IncKeyCacheLookup(hit bool) {
	if keyCacheLookups == nil {
		return
	}
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	keyCacheLookups.WithLabelValues(outcome).Inc()
}

// ObserveExport records export latency by format and result.
func ObserveExport(format, result string, duration time.Duration) {
	if format == "" {
		format = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if exportTotal != nil {
		exportTotal.WithLabelValues(format, result).Inc()
	}
	if exportLatency != nil {
		exportLatency.WithLabelValues(format, result).Observe(duration.Seconds())
	}
}

// Exported result constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError
	ResultPartial = resultPartial
)
