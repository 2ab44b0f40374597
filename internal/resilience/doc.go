// Package resilience provides reliability and fault tolerance patterns for the application.
// It includes retry logic and a primary/secondary failover executor so that
// transient upstream failures degrade service gracefully instead of failing it.
//
// The package supports:
//   - Failover between a primary and secondary source with per-source circuit breaking
//   - Retry logic with linear or exponential backoff
//   - Classification of errors into retryable and terminal
//
// Usage Example:
//
//	exec := failover.New(failover.DefaultConfig("fetch"), logger)
//	result, err := exec.Execute(ctx, primaryOp, secondaryOp, false)
//
//	retryConfig := retry.TelemetryFetchConfig(3, time.Second)
//	err := retry.WithBackoff(ctx, retryConfig, func() error {
//	    return performOperation()
//	})
package resilience
