// Package poller runs scheduled fetch cycles over a set of telemetry
// channels, keeping the client's cache warm and the dashboard's data
// current. Each channel is fetched through a failover executor: the
// primary source is a forced live fetch, the secondary is a cache-tolerant
// fetch, so a channel whose live path keeps failing is served degraded
// data without burning a full retry cascade every cycle.
package poller

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"channelwatch/internal/domain/entity"
	"channelwatch/internal/observability/logging"
	"channelwatch/internal/observability/metrics"
	"channelwatch/internal/resilience/failover"
	"channelwatch/internal/thingspeak"
)

// Poller fetches a fixed set of channels on demand. Scheduling is the
// composition root's concern; Poller only knows how to run one cycle.
type Poller struct {
	client      *thingspeak.Client
	executor    *failover.Executor
	targets     []Target
	parallelism int
	logger      *slog.Logger
}

// New creates a Poller over the given targets. execCfg configures the
// failover executor shared by every target; failover.DefaultConfig is a
// reasonable starting point.
func New(client *thingspeak.Client, execCfg failover.Config, targets []Target, parallelism int, logger *slog.Logger) *Poller {
	if parallelism < 1 {
		parallelism = 1
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Poller{
		client:      client,
		executor:    failover.New(execCfg, logger),
		targets:     targets,
		parallelism: parallelism,
		logger:      logger,
	}
}

// CycleResult summarizes one poll cycle.
type CycleResult struct {
	Succeeded int
	Degraded  int
	Failed    int
}

// RunOnce polls every target once, fanning out up to the configured
// parallelism. It returns an error only when no target could be served
// at all; partial failure is reported through the result and metrics.
func (p *Poller) RunOnce(ctx context.Context) (CycleResult, error) {
	pollID := uuid.NewString()
	ctx = logging.WithPollIDContext(ctx, pollID)
	logger := logging.WithPollID(ctx, p.logger)

	start := time.Now()
	logger.Info("poll cycle started", slog.Int("channels", len(p.targets)))

	results := make([]string, len(p.targets))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.parallelism)

	for i, target := range p.targets {
		i, target := i, target
		g.Go(func() error {
			results[i] = p.pollTarget(ctx, logger, target)
			return nil
		})
	}
	// Worker funcs never return errors; the group is used for bounded
	// fan-out and context propagation.
	_ = g.Wait()

	var cycle CycleResult
	for _, outcome := range results {
		switch outcome {
		case "success":
			cycle.Succeeded++
		case "degraded":
			cycle.Degraded++
		default:
			cycle.Failed++
		}
	}

	p.publishProviderGauges()

	duration := time.Since(start)
	success := cycle.Failed < len(p.targets) || len(p.targets) == 0
	metrics.RecordPollCycle(success, duration)
	logger.Info("poll cycle finished",
		slog.Int("succeeded", cycle.Succeeded),
		slog.Int("degraded", cycle.Degraded),
		slog.Int("failed", cycle.Failed),
		slog.Duration("duration", duration))

	if !success {
		return cycle, fmt.Errorf("poll cycle %s: all %d channels failed", pollID, len(p.targets))
	}
	return cycle, nil
}

// pollTarget fetches one channel through the failover executor and
// returns "success", "degraded", or "failure".
func (p *Poller) pollTarget(ctx context.Context, logger *slog.Logger, target Target) string {
	live := func(ctx context.Context) (any, error) {
		return p.client.FetchChannel(ctx, thingspeak.ChannelRequest{
			ChannelID:   target.ChannelID,
			APIKey:      target.APIKey,
			Results:     target.Results,
			BypassCache: true,
		})
	}
	cached := func(ctx context.Context) (any, error) {
		return p.client.FetchChannel(ctx, thingspeak.ChannelRequest{
			ChannelID: target.ChannelID,
			APIKey:    target.APIKey,
			Results:   target.Results,
		})
	}

	result, err := p.executor.Execute(ctx, live, cached, false)
	if err != nil {
		metrics.RecordChannelFetch("failure")
		logger.Error("channel poll failed",
			slog.String("channel", target.ChannelID),
			slog.Any("error", err))
		return "failure"
	}

	payload := result.(*entity.ChannelFeed)
	outcome := "success"
	if payload.Meta.Cached || payload.Meta.ViaProxy {
		outcome = "degraded"
	}
	metrics.RecordChannelFetch(outcome)

	logger.Info("channel polled",
		slog.String("channel", target.ChannelID),
		slog.Int("feeds", len(payload.Feeds)),
		slog.Bool("cached", payload.Meta.Cached),
		slog.Bool("expired", payload.Meta.Expired),
		slog.Bool("via_proxy", payload.Meta.ViaProxy))
	return outcome
}

// publishProviderGauges mirrors the executor's provider availability into
// Prometheus gauges after each cycle.
func (p *Poller) publishProviderGauges() {
	snapshot := p.executor.Status()
	for name, provider := range snapshot.Providers {
		metrics.UpdateProviderAvailable("poller", name, provider.Available)
	}
}

// ExecutorStatus exposes the failover executor's snapshot for the status
// endpoint.
func (p *Poller) ExecutorStatus() failover.Snapshot {
	return p.executor.Status()
}

// ResetProvider forwards an operator reset to the failover executor.
func (p *Poller) ResetProvider(name string) error {
	return p.executor.ResetProvider(name)
}

// Targets returns the channels this poller covers.
func (p *Poller) Targets() []Target {
	return p.targets
}
