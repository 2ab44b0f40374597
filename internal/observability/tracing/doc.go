// Package tracing provides OpenTelemetry tracing integration.
//
// Spans are created around fetch operations so that retries, proxy
// fallbacks, and cache serves show up as attributes of one trace. No
// exporter is configured here; wiring an SDK and exporter is left to the
// deployment.
package tracing
