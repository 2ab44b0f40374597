// Package failover provides a primary/secondary executor for two-source
// operations. A named source that fails repeatedly is demoted and skipped
// until it is explicitly reset or its breaker allows a recovery probe; the
// secondary source is only attempted after the primary has been confirmed
// failed, timed out, or demoted. It uses the github.com/sony/gobreaker
// library for per-source breaker state.
package failover

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"channelwatch/internal/domain/entity"
	"channelwatch/internal/resilience/retry"
)

// Source names for the two operation slots.
const (
	PrimarySource   = "primary"
	SecondarySource = "secondary"
)

// ErrOperationTimeout is returned when a single operation attempt exceeds
// the configured timeout. It counts as a failure of that source exactly
// like an operation error.
var ErrOperationTimeout = errors.New("operation timed out")

// Operation is a single attempt against one source. Implementations must
// honor ctx: once it is done, the executor has already moved on and the
// operation's result will be discarded.
type Operation func(ctx context.Context) (any, error)

// Config holds the configuration for an Executor.
type Config struct {
	// Name identifies the executor in logs.
	Name string

	// Timeout is the deadline each single attempt is raced against.
	// Default: 10s
	Timeout time.Duration

	// RetryDelay is the fixed pause between a failed primary attempt and
	// the secondary attempt. Not exponential at this layer.
	// Default: 1s
	RetryDelay time.Duration

	// FailureThreshold is the number of consecutive failures after which
	// a source is demoted to unavailable.
	// Default: 3
	FailureThreshold uint32

	// OpenTimeout is how long a demoted source stays unavailable before
	// its breaker admits a recovery probe. Until then only ResetProvider
	// restores it.
	// Default: 60s
	OpenTimeout time.Duration
}

// DefaultConfig returns a default executor configuration.
func DefaultConfig(name string) Config {
	return Config{
		Name:             name,
		Timeout:          10 * time.Second,
		RetryDelay:       1 * time.Second,
		FailureThreshold: 3,
		OpenTimeout:      60 * time.Second,
	}
}

// ProviderStatus is a read-only snapshot of one source's health.
type ProviderStatus struct {
	Available           bool       `json:"available"`
	ConsecutiveFailures uint32     `json:"consecutive_failures"`
	LastFailureAt       *time.Time `json:"last_failure_at,omitempty"`
	LastSuccessAt       *time.Time `json:"last_success_at,omitempty"`
}

// Snapshot is the executor's full status at one point in time.
type Snapshot struct {
	Providers map[string]ProviderStatus `json:"providers"`
	Timestamp time.Time                 `json:"timestamp"`
}

// source pairs a breaker with the timestamps gobreaker does not track.
type source struct {
	mu            sync.Mutex
	breaker       *gobreaker.CircuitBreaker
	lastFailureAt *time.Time
	lastSuccessAt *time.Time
}

// Executor routes two-source operations. Safe for concurrent use.
type Executor struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.RWMutex
	sources map[string]*source
}

// New creates an Executor with the given configuration. A nil logger
// falls back to slog.Default.
func New(cfg Config, logger *slog.Logger) *Executor {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RetryDelay < 0 {
		cfg.RetryDelay = 0
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 60 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	e := &Executor{
		cfg:     cfg,
		logger:  logger,
		sources: make(map[string]*source, 2),
	}
	e.sources[PrimarySource] = &source{breaker: e.newBreaker(PrimarySource)}
	e.sources[SecondarySource] = &source{breaker: e.newBreaker(SecondarySource)}
	return e
}

// newBreaker builds a gobreaker that trips on consecutive failures.
func (e *Executor) newBreaker(name string) *gobreaker.CircuitBreaker {
	threshold := e.cfg.FailureThreshold
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        e.cfg.Name + "/" + name,
		MaxRequests: 1,
		Timeout:     e.cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			e.logger.Warn("provider state changed",
				slog.String("provider", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
		},
	})
}

// Execute runs primary under the configured timeout and falls back to
// secondary when the primary fails, times out, or is demoted. When
// forceSecondary is true the primary is skipped entirely.
//
// Primary and secondary are never run concurrently: the secondary starts
// only after the primary outcome is known.
func (e *Executor) Execute(ctx context.Context, primary, secondary Operation, forceSecondary bool) (any, error) {
	if forceSecondary || !e.available(PrimarySource) {
		return e.ExecuteSecondary(ctx, secondary)
	}

	result, err := e.run(ctx, PrimarySource, primary)
	if err == nil {
		return result, nil
	}
	if errors.Is(err, context.Canceled) {
		return nil, err
	}

	e.logger.Warn("primary operation failed, falling back to secondary",
		slog.String("executor", e.cfg.Name),
		slog.Any("error", err))

	if sleepErr := retry.Sleep(ctx, e.cfg.RetryDelay); sleepErr != nil {
		return nil, sleepErr
	}
	return e.ExecuteSecondary(ctx, secondary)
}

// ExecuteSecondary runs the secondary operation under the configured
// timeout. If the secondary is also unavailable the call fails immediately
// with entity.ErrBothProvidersUnavailable; this is terminal and is not
// retried at this layer. A secondary failure never routes back to primary.
func (e *Executor) ExecuteSecondary(ctx context.Context, secondary Operation) (any, error) {
	if !e.available(SecondarySource) {
		return nil, entity.ErrBothProvidersUnavailable
	}

	result, err := e.run(ctx, SecondarySource, secondary)
	if err == nil {
		return result, nil
	}
	if errors.Is(err, gobreaker.ErrOpenState) {
		return nil, entity.ErrBothProvidersUnavailable
	}
	return nil, fmt.Errorf("secondary source failed: %w", err)
}

// run executes op against the named source through its breaker, racing it
// against the configured timeout. A timeout and an operation error degrade
// the source's failure count identically.
func (e *Executor) run(ctx context.Context, name string, op Operation) (any, error) {
	src := e.source(name)

	result, err := src.getBreaker().Execute(func() (any, error) {
		return runWithTimeout(ctx, op, e.cfg.Timeout)
	})

	now := time.Now()
	src.mu.Lock()
	if err != nil {
		src.lastFailureAt = &now
	} else {
		src.lastSuccessAt = &now
	}
	src.mu.Unlock()

	return result, err
}

// runWithTimeout races op against deadline. A late result from an attempt
// that already timed out is discarded; op receives the attempt context so
// it can stop early.
func runWithTimeout(ctx context.Context, op Operation, timeout time.Duration) (any, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		result any
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := op(attemptCtx)
		done <- outcome{result, err}
	}()

	select {
	case out := <-done:
		return out.result, out.err
	case <-attemptCtx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, ErrOperationTimeout
	}
}

// ResetProvider unconditionally restores the named source(s) to available
// with a zero failure count, regardless of prior state. Name is one of
// "primary", "secondary", or "all". Intended for an operator action, not
// the automatic failure path.
func (e *Executor) ResetProvider(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch name {
	case PrimarySource, SecondarySource:
		e.sources[name].reset(e.newBreaker(name))
	case "all":
		e.sources[PrimarySource].reset(e.newBreaker(PrimarySource))
		e.sources[SecondarySource].reset(e.newBreaker(SecondarySource))
	default:
		return &entity.ValidationError{Field: "provider", Message: fmt.Sprintf("unknown provider %q", name)}
	}

	e.logger.Info("provider reset", slog.String("executor", e.cfg.Name), slog.String("provider", name))
	return nil
}

// Status returns a read-only snapshot of both sources.
func (e *Executor) Status() Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()

	providers := make(map[string]ProviderStatus, len(e.sources))
	for name, src := range e.sources {
		providers[name] = src.status()
	}
	return Snapshot{Providers: providers, Timestamp: time.Now()}
}

// available reports whether the named source may currently be attempted.
func (e *Executor) available(name string) bool {
	return e.source(name).getBreaker().State() != gobreaker.StateOpen
}

func (e *Executor) source(name string) *source {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.sources[name]
}

func (s *source) getBreaker() *gobreaker.CircuitBreaker {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.breaker
}

func (s *source) reset(fresh *gobreaker.CircuitBreaker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.breaker = fresh
	s.lastFailureAt = nil
	s.lastSuccessAt = nil
}

func (s *source) status() ProviderStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ProviderStatus{
		Available:           s.breaker.State() != gobreaker.StateOpen,
		ConsecutiveFailures: s.breaker.Counts().ConsecutiveFailures,
		LastFailureAt:       s.lastFailureAt,
		LastSuccessAt:       s.lastSuccessAt,
	}
}
