// Package thingspeak provides a resilient client for fetching channel
// telemetry from the ThingSpeak HTTP API.
//
// A fetch cascades through fixed fallback stages, in order: fresh cache,
// direct network attempts with linearly increasing backoff, a single
// attempt through the optional proxy transport, and finally the cache
// again with freshness ignored. Degraded results are successful returns
// carrying provenance metadata; only when every stage fails does the
// caller see a typed terminal error.
package thingspeak

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"channelwatch/internal/cache"
	"channelwatch/internal/domain/entity"
	"channelwatch/internal/observability/metrics"
	"channelwatch/internal/observability/tracing"
	"channelwatch/internal/resilience/retry"
)

// wireTimeLayout is the fixed format the API expects for start/end query
// parameters. Times are normalized to UTC before formatting.
const wireTimeLayout = "2006-01-02 15:04:05"

// ChannelRequest describes a live channel fetch.
type ChannelRequest struct {
	ChannelID string
	APIKey    string

	// Results is the number of feed entries to request.
	// Zero means the configured default.
	Results int

	// BypassCache skips the fresh-cache check and forces a live attempt.
	// The stale-cache fallback still applies if the live paths fail.
	BypassCache bool
}

// HistoricalRequest describes a date-range fetch.
type HistoricalRequest struct {
	ChannelID string
	APIKey    string
	Start     time.Time
	End       time.Time

	// BypassCache skips the fresh-cache check and forces a live attempt.
	BypassCache bool
}

// Client fetches channel telemetry reliably despite transient network
// failures, API rate limits, and intermittent outages. Its cache and
// status counters are shared across all callers; concurrent identical
// requests are collapsed into a single network flight.
//
// A Client is constructed once by the composition root and passed by
// reference to callers. Safe for concurrent use.
type Client struct {
	cfg        Config
	httpClient *http.Client
	cache      *cache.Cache
	limiter    *rate.Limiter
	group      singleflight.Group
	status     statusTracker
	logger     *slog.Logger
}

// NewClient creates a Client with the given configuration. The
// configuration is validated; a nil logger falls back to slog.Default.
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	limit := rate.Inf
	burst := 0
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
		burst = cfg.RateBurst
		if burst < 1 {
			burst = 1
		}
	}

	return &Client{
		cfg: cfg,
		// The overall attempt deadline comes from the per-attempt
		// context, not the http.Client.
		httpClient: &http.Client{},
		cache:      cache.New(cfg.CacheTTL),
		limiter:    rate.NewLimiter(limit, burst),
		logger:     logger,
	}, nil
}

// fetchSpec is the resolved shape of one logical request: its cache key,
// target URL, and query parameters.
type fetchSpec struct {
	key        string
	path       string
	params     url.Values
	historical bool
}

// FetchChannel fetches the most recent feed entries for a channel.
//
// The call validates inputs locally, then walks the fallback cascade.
// Returned payloads carry Meta describing how they were obtained; see
// entity.Meta. Errors are always one of the typed kinds in the entity
// package.
func (c *Client) FetchChannel(ctx context.Context, req ChannelRequest) (*entity.ChannelFeed, error) {
	if err := validateCredentials(req.ChannelID, req.APIKey); err != nil {
		return nil, err
	}

	results := req.Results
	if results <= 0 {
		results = c.cfg.DefaultResults
	}

	params := url.Values{}
	params.Set("api_key", req.APIKey)
	params.Set("results", fmt.Sprintf("%d", results))

	spec := fetchSpec{
		key:    cache.LiveKey(req.ChannelID, results),
		path:   fmt.Sprintf("/channels/%s/feeds.json", url.PathEscape(req.ChannelID)),
		params: params,
	}
	return c.fetch(ctx, "thingspeak.fetch_channel", req.ChannelID, spec, req.BypassCache)
}

// FetchHistoricalData fetches feed entries for a date range. Start and end
// are normalized to UTC and sent in the API's fixed wire format, so the
// same logical range always produces the same request and cache key
// regardless of the caller's time zone.
func (c *Client) FetchHistoricalData(ctx context.Context, req HistoricalRequest) (*entity.ChannelFeed, error) {
	if err := validateCredentials(req.ChannelID, req.APIKey); err != nil {
		return nil, err
	}
	if req.Start.IsZero() || req.End.IsZero() {
		return nil, &entity.ValidationError{Field: "dateRange", Message: "start and end must be set"}
	}
	if req.End.Before(req.Start) {
		return nil, &entity.ValidationError{Field: "dateRange", Message: "end must not be before start"}
	}

	params := url.Values{}
	params.Set("api_key", req.APIKey)
	params.Set("start", req.Start.UTC().Format(wireTimeLayout))
	params.Set("end", req.End.UTC().Format(wireTimeLayout))

	spec := fetchSpec{
		key:        cache.HistoricalKey(req.ChannelID, req.Start, req.End),
		path:       fmt.Sprintf("/channels/%s/feeds.json", url.PathEscape(req.ChannelID)),
		params:     params,
		historical: true,
	}
	return c.fetch(ctx, "thingspeak.fetch_historical", req.ChannelID, spec, req.BypassCache)
}

// Status returns a snapshot of the client's counters.
func (c *Client) Status() ClientStatus {
	status := c.status.snapshot()
	status.CacheEntries = c.cache.Len()
	return status
}

// ClearCache removes the named cache entries, or every entry when called
// with no keys.
func (c *Client) ClearCache(keys ...string) {
	if len(keys) == 0 {
		c.cache.Clear()
		return
	}
	for _, key := range keys {
		c.cache.Delete(key)
	}
}

// fetch walks the fallback cascade for one resolved request.
//
// Concurrent identical requests share one singleflight flight, and the
// flight runs on the context of the caller that started it. A caller that
// joins an in-progress flight can therefore see context.Canceled from the
// initiator's context even while its own context is live; such a caller
// may simply retry, starting a fresh flight.
func (c *Client) fetch(ctx context.Context, operation, channelID string, spec fetchSpec, bypassCache bool) (*entity.ChannelFeed, error) {
	ctx, span := tracing.StartFetchSpan(ctx, operation, channelID)
	start := time.Now()
	var err error
	defer func() {
		metrics.RecordFetchDuration(operation, time.Since(start))
		tracing.EndSpan(span, err)
	}()

	// Stage 1: fresh cache. No network call, no request-count increment.
	if c.cfg.CacheEnabled && !bypassCache {
		if entry, ok, expired := c.cache.GetAny(spec.key); ok && !expired {
			metrics.RecordCacheHit(false)
			metrics.RecordFetchResult("cache")
			payload := entry.Payload.(*entity.ChannelFeed)
			return payload.WithMeta(entity.Meta{
				Cached:     true,
				Historical: spec.historical,
				StoredAt:   entry.StoredAt,
			}), nil
		}
		metrics.RecordCacheMiss()
	}

	// Stages 2-4 share one flight across concurrent identical requests.
	result, flightErr, _ := c.group.Do(spec.key, func() (any, error) {
		return c.fetchLive(ctx, spec)
	})
	if flightErr != nil {
		err = flightErr
		return nil, err
	}
	return result.(*entity.ChannelFeed), nil
}

// fetchLive runs the network stages of the cascade: the retry loop over
// the direct transport, then one proxy attempt, then the stale cache.
// Stages run strictly in order and are never raced against each other.
func (c *Client) fetchLive(ctx context.Context, spec fetchSpec) (*entity.ChannelFeed, error) {
	var lastErr error

	retryCfg := retry.TelemetryFetchConfig(c.cfg.RetryAttempts, c.cfg.RetryDelay)

	// Stage 2: direct attempts with linear backoff.
	for attempt := 1; attempt <= c.cfg.RetryAttempts; attempt++ {
		// The loop checks cancellation between attempts, not only at
		// the start.
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		payload, err := c.doRequest(ctx, spec)
		if err == nil {
			metrics.RecordFetchAttempt("direct", "success")
			metrics.RecordFetchResult("live")
			c.finishSuccess(spec, payload)
			return payload.WithMeta(entity.Meta{Historical: spec.historical}), nil
		}

		if ctx.Err() != nil {
			return nil, err
		}

		c.status.recordError()
		metrics.RecordFetchAttempt("direct", outcomeLabel(err))
		lastErr = err

		if c.cfg.Debug {
			c.logger.Debug("direct attempt failed",
				slog.String("key", spec.key),
				slog.Int("attempt", attempt),
				slog.Int("max_attempts", c.cfg.RetryAttempts),
				slog.Any("error", err))
		}

		if attempt < c.cfg.RetryAttempts {
			if sleepErr := retry.Sleep(ctx, retryCfg.DelayFor(attempt)); sleepErr != nil {
				return nil, sleepErr
			}
		}
	}

	c.logger.Warn("direct path exhausted",
		slog.String("key", spec.key),
		slog.Int("attempts", c.cfg.RetryAttempts),
		slog.Any("error", lastErr))

	// Stage 3: one attempt through the proxy transport. A proxy failure
	// is logged, not raised; the cascade continues.
	if c.cfg.ProxyURL != "" {
		payload, err := c.doProxyRequest(ctx, spec)
		if err == nil {
			metrics.RecordFetchAttempt("proxy", "success")
			metrics.RecordFetchResult("proxy")
			c.finishSuccess(spec, payload)
			return payload.WithMeta(entity.Meta{ViaProxy: true, Historical: spec.historical}), nil
		}
		if ctx.Err() != nil {
			return nil, err
		}
		c.status.recordError()
		metrics.RecordFetchAttempt("proxy", outcomeLabel(err))
		c.logger.Warn("proxy fallback failed",
			slog.String("key", spec.key),
			slog.Any("error", err))
	}

	// Stage 4: stale cache. Degraded data is strictly preferred over
	// total failure for a dashboard.
	if c.cfg.CacheEnabled {
		if entry, ok, expired := c.cache.GetAny(spec.key); ok {
			metrics.RecordCacheHit(expired)
			metrics.RecordFetchResult("stale")
			c.logger.Warn("serving cached data after live paths failed",
				slog.String("key", spec.key),
				slog.Bool("expired", expired),
				slog.Time("stored_at", entry.StoredAt))
			payload := entry.Payload.(*entity.ChannelFeed)
			return payload.WithMeta(entity.Meta{
				Cached:     true,
				Expired:    expired,
				Historical: spec.historical,
				StoredAt:   entry.StoredAt,
			}), nil
		}
	}

	// Stage 5: terminal failure.
	metrics.RecordFetchResult("error")
	return nil, &entity.ExhaustedRetriesError{Attempts: c.cfg.RetryAttempts, Last: lastErr}
}

// finishSuccess updates the shared counters and cache after a successful
// network response. The cached copy carries no provenance metadata; Meta
// is attached per return.
func (c *Client) finishSuccess(spec fetchSpec, payload *entity.ChannelFeed) {
	c.status.recordSuccess()
	if c.cfg.CacheEnabled {
		c.cache.Set(spec.key, payload)
		metrics.RecordCacheWrite(c.cache.Len())
	}
}

// doRequest performs one direct GET attempt under the per-attempt timeout.
// A non-2xx status is classified into a typed NetworkError; a structurally
// invalid body becomes an InvalidResponseError.
func (c *Client) doRequest(ctx context.Context, spec fetchSpec) (*entity.ChannelFeed, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	c.status.recordRequest()

	target := c.cfg.BaseURL + spec.path + "?" + spec.params.Encode()
	httpReq, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, target, nil)
	if err != nil {
		return nil, &entity.NetworkError{Kind: entity.NetworkGeneric, Message: "building request failed", Err: err}
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		// Caller cancellation aborts the cascade; a per-attempt timeout
		// is just a failed attempt.
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &entity.NetworkError{Kind: entity.NetworkGeneric, Message: "request failed", Err: err}
	}
	return decodePayload(resp)
}
