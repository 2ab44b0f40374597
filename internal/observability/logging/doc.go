// Package logging provides structured logging for the application.
//
// All components log through log/slog with a JSON handler so entries can
// be shipped to a log aggregator unchanged. Poll cycle IDs are propagated
// through context to correlate the entries of one polling run.
package logging
