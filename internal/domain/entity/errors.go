package entity

import (
	"errors"
	"fmt"
)

// Sentinel errors for domain layer operations.
var (
	// ErrBothProvidersUnavailable indicates that both the primary and the
	// secondary source of an operation are marked unavailable.
	ErrBothProvidersUnavailable = errors.New("both providers unavailable")

	// ErrCacheMiss indicates that no cache entry exists for a key.
	ErrCacheMiss = errors.New("cache miss")
)

// NetworkErrorKind classifies a failed HTTP exchange so callers can branch
// on the failure class without matching error messages.
type NetworkErrorKind int

const (
	// NetworkGeneric covers failures with no more specific classification:
	// transport errors and unexpected non-2xx statuses.
	NetworkGeneric NetworkErrorKind = iota

	// NetworkNotFound maps HTTP 404: the channel does not exist.
	NetworkNotFound

	// NetworkUnauthorized maps HTTP 401: the API key was rejected.
	NetworkUnauthorized

	// NetworkRateLimited maps HTTP 429: the API throttled the caller.
	NetworkRateLimited

	// NetworkServerError maps HTTP 5xx.
	NetworkServerError
)

// String returns a short name for the kind, used in logs and metrics labels.
func (k NetworkErrorKind) String() string {
	switch k {
	case NetworkNotFound:
		return "not_found"
	case NetworkUnauthorized:
		return "unauthorized"
	case NetworkRateLimited:
		return "rate_limited"
	case NetworkServerError:
		return "server_error"
	default:
		return "generic"
	}
}

// ValidationError represents a local input validation failure.
// It is never retried and never reaches the network.
type ValidationError struct {
	Field   string
	Message string
}

// Error returns a formatted error message for the validation error.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

// NetworkError represents a failed network exchange with the telemetry API.
// Kind distinguishes the failure classes a caller may present differently.
type NetworkError struct {
	Kind       NetworkErrorKind
	StatusCode int
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *NetworkError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("network error (%s, HTTP %d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("network error (%s): %s", e.Kind, e.Message)
}

// Unwrap returns the underlying transport error, if any.
func (e *NetworkError) Unwrap() error {
	return e.Err
}

// ClassifyStatus maps an HTTP status code to a NetworkError of the
// appropriate kind. Statuses in the 2xx range must not be passed here.
func ClassifyStatus(status int, message string) *NetworkError {
	kind := NetworkGeneric
	switch {
	case status == 404:
		kind = NetworkNotFound
	case status == 401:
		kind = NetworkUnauthorized
	case status == 429:
		kind = NetworkRateLimited
	case status >= 500:
		kind = NetworkServerError
	}
	return &NetworkError{Kind: kind, StatusCode: status, Message: message}
}

// InvalidResponseError represents a structurally invalid payload: the
// request completed but the body does not describe a channel. It is treated
// as a retryable failure, the same as a NetworkError.
type InvalidResponseError struct {
	Reason string
}

// Error implements the error interface.
func (e *InvalidResponseError) Error() string {
	return fmt.Sprintf("invalid response: %s", e.Reason)
}

// ExhaustedRetriesError is the terminal error raised when every live path
// and fallback has failed. Last carries the final unrecovered error.
type ExhaustedRetriesError struct {
	Attempts int
	Last     error
}

// Error implements the error interface.
func (e *ExhaustedRetriesError) Error() string {
	if e.Last == nil {
		return fmt.Sprintf("failed after %d attempts", e.Attempts)
	}
	return fmt.Sprintf("failed after %d attempts: %v", e.Attempts, e.Last)
}

// Unwrap returns the last observed error so callers can still branch on
// its kind with errors.As.
func (e *ExhaustedRetriesError) Unwrap() error {
	return e.Last
}
