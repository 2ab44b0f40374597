package thingspeak

import (
	"sync"
	"time"
)

// ClientStatus is a read-only snapshot of the client's lifetime counters.
// Counters are process-wide and session-scoped; they are not persisted
// across restarts.
type ClientStatus struct {
	// RequestCount is the number of network attempts made, direct and
	// proxy alike. Cache hits do not increment it.
	RequestCount uint64 `json:"request_count"`

	// ResponseCount is the number of successful network responses.
	ResponseCount uint64 `json:"response_count"`

	// ErrorCount is the number of failed network attempts.
	ErrorCount uint64 `json:"error_count"`

	// LastSuccess is the time of the most recent successful response.
	LastSuccess *time.Time `json:"last_success,omitempty"`

	// LastError is the time of the most recent failed attempt.
	LastError *time.Time `json:"last_error,omitempty"`

	// CacheEntries is the number of cached payloads, fresh and stale.
	CacheEntries int `json:"cache_entries"`
}

// statusTracker accumulates the shared counters. Safe for concurrent use.
type statusTracker struct {
	mu          sync.Mutex
	requests    uint64
	responses   uint64
	errors      uint64
	lastSuccess *time.Time
	lastError   *time.Time
}

func (s *statusTracker) recordRequest() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests++
}

func (s *statusTracker) recordSuccess() {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses++
	s.lastSuccess = &now
}

func (s *statusTracker) recordError() {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors++
	s.lastError = &now
}

func (s *statusTracker) snapshot() ClientStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ClientStatus{
		RequestCount:  s.requests,
		ResponseCount: s.responses,
		ErrorCount:    s.errors,
		LastSuccess:   s.lastSuccess,
		LastError:     s.lastError,
	}
}
