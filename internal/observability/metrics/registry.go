// Package metrics provides centralized Prometheus metrics for the application.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Fetch metrics track telemetry API request patterns and reliability
var (
	// FetchAttemptsTotal counts network attempts against the telemetry API
	// by transport ("direct" or "proxy") and outcome ("success" or an
	// error kind such as "server_error").
	FetchAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telemetry_fetch_attempts_total",
			Help: "Total number of telemetry fetch attempts",
		},
		[]string{"transport", "outcome"},
	)

	// FetchDuration measures the duration of a full fetch call, including
	// retries and fallbacks, in seconds.
	FetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "telemetry_fetch_duration_seconds",
			Help:    "Telemetry fetch duration in seconds, including retries",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// FetchResultsTotal counts completed fetch calls by how the payload
	// was ultimately obtained: "live", "cache", "proxy", "stale", "error".
	FetchResultsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telemetry_fetch_results_total",
			Help: "Total number of fetch calls by final result path",
		},
		[]string{"path"},
	)
)

// Cache metrics track the payload cache
var (
	// CacheOperationsTotal counts cache lookups and writes by operation:
	// "hit", "miss", "stale_hit", "set".
	CacheOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telemetry_cache_operations_total",
			Help: "Total number of payload cache operations",
		},
		[]string{"op"},
	)

	// CacheEntries tracks the number of entries held in the cache,
	// fresh and stale alike.
	CacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "telemetry_cache_entries",
			Help: "Number of entries in the payload cache",
		},
	)
)

// Provider metrics track the failover executor
var (
	// ProviderAvailable reports whether a named source may currently be
	// attempted (1 available, 0 demoted).
	ProviderAvailable = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "telemetry_provider_available",
			Help: "Whether a provider source is available (1) or demoted (0)",
		},
		[]string{"executor", "provider"},
	)
)

// Poller metrics track scheduled polling cycles
var (
	// PollCyclesTotal counts completed poll cycles by outcome.
	PollCyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "poller_cycles_total",
			Help: "Total number of completed poll cycles",
		},
		[]string{"outcome"},
	)

	// PollCycleDuration measures the duration of one full poll cycle.
	PollCycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "poller_cycle_duration_seconds",
			Help:    "Poll cycle duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// PollChannelsFetched counts per-channel fetches within poll cycles
	// by outcome ("success", "degraded", "failure").
	PollChannelsFetched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "poller_channels_fetched_total",
			Help: "Total number of per-channel fetches during polling",
		},
		[]string{"outcome"},
	)
)
