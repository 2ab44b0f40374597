// Command poller runs the channel polling worker. It periodically fetches
// every configured telemetry channel through the resilient client, keeping
// the cache warm so dashboard reads stay fast even when the upstream API
// is flaky, and exposes health, status, and metrics endpoints.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"channelwatch/internal/observability/logging"
	"channelwatch/internal/poller"
	"channelwatch/internal/resilience/failover"
	"channelwatch/internal/thingspeak"
)

func main() {
	logger := logging.NewLogger()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pollerConfig, err := poller.LoadConfigFromEnv()
	if err != nil {
		logger.Error("failed to load poller configuration", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("poller configuration loaded",
		slog.String("cron_schedule", pollerConfig.CronSchedule),
		slog.String("timezone", pollerConfig.Timezone),
		slog.Duration("poll_timeout", pollerConfig.PollTimeout),
		slog.Int("parallelism", pollerConfig.Parallelism),
		slog.Int("health_port", pollerConfig.HealthPort),
		slog.Int("metrics_port", pollerConfig.MetricsPort))

	clientConfig, err := thingspeak.LoadConfigFromEnv()
	if err != nil {
		logger.Error("failed to load client configuration", slog.Any("error", err))
		os.Exit(1)
	}
	client, err := thingspeak.NewClient(clientConfig, logger)
	if err != nil {
		logger.Error("failed to create client", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("client initialized",
		slog.String("base_url", clientConfig.BaseURL),
		slog.Bool("proxy_enabled", clientConfig.ProxyURL != ""),
		slog.Bool("cache_enabled", clientConfig.CacheEnabled))

	targets, err := loadTargets(logger, pollerConfig)
	if err != nil {
		logger.Error("failed to load poll targets", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("poll targets loaded", slog.Int("channels", len(targets)))

	p := poller.New(client, failover.DefaultConfig("poller"), targets, pollerConfig.Parallelism, logger)

	startMetricsServer(ctx, logger, pollerConfig.MetricsPort)

	healthAddr := fmt.Sprintf(":%d", pollerConfig.HealthPort)
	healthServer := poller.NewHealthServer(healthAddr, client, p, logger)
	go func() {
		if err := healthServer.Start(ctx); err != nil && err != http.ErrServerClosed {
			logger.Error("health server failed", slog.Any("error", err))
		}
	}()
	logger.Info("health server started", slog.String("addr", healthAddr))

	if err := runScheduler(ctx, logger, p, pollerConfig, healthServer); err != nil {
		logger.Error("scheduler failed", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("poller stopped")
}

// loadTargets resolves the channel list: the YAML channels file when
// configured, otherwise the single-channel environment variables.
func loadTargets(logger *slog.Logger, cfg poller.Config) ([]poller.Target, error) {
	if cfg.ChannelsFile != "" {
		return poller.LoadTargets(cfg.ChannelsFile)
	}

	targets := poller.TargetsFromEnv()
	if targets == nil {
		return nil, fmt.Errorf("no targets configured: set POLL_CHANNELS_FILE or CHANNEL_ID")
	}
	logger.Info("using single channel from environment", slog.String("channel", targets[0].ChannelID))
	return targets, nil
}

// runScheduler runs poll cycles on the configured cron schedule until ctx
// is cancelled. The first cycle runs immediately so a fresh deploy serves
// data without waiting for the schedule.
func runScheduler(ctx context.Context, logger *slog.Logger, p *poller.Poller, cfg poller.Config, healthServer *poller.HealthServer) error {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		logger.Error("invalid timezone, using UTC", slog.String("timezone", cfg.Timezone), slog.Any("error", err))
		loc = time.UTC
	}

	c := cron.New(cron.WithLocation(loc))
	_, err = c.AddFunc(cfg.CronSchedule, func() {
		runPollCycle(ctx, logger, p, cfg.PollTimeout)
	})
	if err != nil {
		return fmt.Errorf("adding cron job: %w", err)
	}

	c.Start()
	logger.Info("poller started",
		slog.String("schedule", cfg.CronSchedule),
		slog.String("timezone", cfg.Timezone))

	runPollCycle(ctx, logger, p, cfg.PollTimeout)
	healthServer.SetReady(true)

	<-ctx.Done()
	healthServer.SetReady(false)

	stopCtx := c.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(cfg.PollTimeout):
		logger.Warn("running poll cycle did not finish before shutdown deadline")
	}
	return nil
}

// runPollCycle executes one cycle under the configured timeout.
func runPollCycle(ctx context.Context, logger *slog.Logger, p *poller.Poller, timeout time.Duration) {
	if ctx.Err() != nil {
		return
	}
	cycleCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if _, err := p.RunOnce(cycleCtx); err != nil {
		logger.Error("poll cycle failed", slog.Any("error", err))
	}
}
