package metrics

import (
	"time"
)

// RecordFetchAttempt records one network attempt against the telemetry API.
// Outcome is "success" or an error kind name.
func RecordFetchAttempt(transport, outcome string) {
	FetchAttemptsTotal.WithLabelValues(transport, outcome).Inc()
}

// RecordFetchResult records how a completed fetch call obtained its payload.
// Path is one of "live", "cache", "proxy", "stale", "error".
func RecordFetchResult(path string) {
	FetchResultsTotal.WithLabelValues(path).Inc()
}

// RecordFetchDuration records the total duration of a fetch call.
func RecordFetchDuration(operation string, duration time.Duration) {
	FetchDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordCacheHit records a cache lookup that found a usable entry.
// Stale hits are counted separately from fresh hits.
func RecordCacheHit(stale bool) {
	op := "hit"
	if stale {
		op = "stale_hit"
	}
	CacheOperationsTotal.WithLabelValues(op).Inc()
}

// RecordCacheMiss records a cache lookup that found nothing usable.
func RecordCacheMiss() {
	CacheOperationsTotal.WithLabelValues("miss").Inc()
}

// RecordCacheWrite records a cache write and updates the entry gauge.
func RecordCacheWrite(entries int) {
	CacheOperationsTotal.WithLabelValues("set").Inc()
	CacheEntries.Set(float64(entries))
}

// UpdateProviderAvailable updates the availability gauge for one source.
func UpdateProviderAvailable(executor, provider string, available bool) {
	v := 0.0
	if available {
		v = 1.0
	}
	ProviderAvailable.WithLabelValues(executor, provider).Set(v)
}

// RecordPollCycle records a completed poll cycle and its duration.
func RecordPollCycle(success bool, duration time.Duration) {
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	PollCyclesTotal.WithLabelValues(outcome).Inc()
	PollCycleDuration.Observe(duration.Seconds())
}

// RecordChannelFetch records the outcome of one per-channel fetch during
// a poll cycle. Outcome is "success", "degraded", or "failure".
func RecordChannelFetch(outcome string) {
	PollChannelsFetched.WithLabelValues(outcome).Inc()
}
