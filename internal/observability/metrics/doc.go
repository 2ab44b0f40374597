// Package metrics exposes Prometheus metrics for fetch reliability,
// cache behavior, provider availability, and polling cycles.
//
// Metrics are registered on the default registry via promauto and served
// by the /metrics endpoint of the poller's metrics server.
package metrics
