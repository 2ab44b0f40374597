package thingspeak

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"channelwatch/internal/cache"
	"channelwatch/internal/domain/entity"
)

const feedBody = `{
	"channel": {"id": 12397, "name": "WeatherStation", "field1": "Temperature", "field2": "Humidity"},
	"feeds": [
		{"created_at": "2026-08-30T10:00:00Z", "entry_id": 101, "field1": "23.5", "field2": "40"},
		{"created_at": "2026-08-30T10:01:00Z", "entry_id": 102, "field1": "23.7", "field2": "41"}
	]
}`

func testConfig(baseURL string) Config {
	cfg := DefaultConfig()
	cfg.BaseURL = baseURL
	cfg.Timeout = time.Second
	cfg.RetryAttempts = 3
	cfg.RetryDelay = time.Millisecond
	cfg.CacheTTL = time.Minute
	cfg.RatePerSecond = 0 // no self-throttling in tests
	return cfg
}

func newTestClient(t *testing.T, cfg Config) *Client {
	t.Helper()
	client, err := NewClient(cfg, nil)
	require.NoError(t, err)
	return client
}

func liveRequest() ChannelRequest {
	return ChannelRequest{ChannelID: "12397", APIKey: "JMZCM47SV93DPC0R", Results: 1}
}

func TestFetchChannel_ValidationFailsFast(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	client := newTestClient(t, testConfig(srv.URL))

	tests := []struct {
		name string
		req  ChannelRequest
	}{
		{"empty channel", ChannelRequest{ChannelID: "", APIKey: "key"}},
		{"empty key", ChannelRequest{ChannelID: "12397", APIKey: ""}},
		{"blank channel", ChannelRequest{ChannelID: "   ", APIKey: "key"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := client.FetchChannel(context.Background(), tt.req)
			var validationErr *entity.ValidationError
			require.ErrorAs(t, err, &validationErr)
		})
	}

	assert.Zero(t, hits.Load(), "validation failures must never reach the network")
	assert.Zero(t, client.Status().RequestCount)
}

func TestFetchChannel_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/channels/12397/feeds.json", r.URL.Path)
		assert.Equal(t, "JMZCM47SV93DPC0R", r.URL.Query().Get("api_key"))
		assert.Equal(t, "1", r.URL.Query().Get("results"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(feedBody))
	}))
	defer srv.Close()

	client := newTestClient(t, testConfig(srv.URL))

	payload, err := client.FetchChannel(context.Background(), liveRequest())
	require.NoError(t, err)

	assert.Equal(t, int64(12397), payload.Channel.ID)
	assert.Equal(t, "WeatherStation", payload.Channel.Name)
	require.Len(t, payload.Feeds, 2)
	assert.Equal(t, int64(101), payload.Feeds[0].EntryID)
	assert.Equal(t, entity.Meta{}, payload.Meta, "a live result carries no provenance flags")

	status := client.Status()
	assert.Equal(t, uint64(1), status.RequestCount)
	assert.Equal(t, uint64(1), status.ResponseCount)
	assert.Zero(t, status.ErrorCount)
	assert.NotNil(t, status.LastSuccess)
}

func TestFetchChannel_DefaultResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "100", r.URL.Query().Get("results"))
		_, _ = w.Write([]byte(feedBody))
	}))
	defer srv.Close()

	client := newTestClient(t, testConfig(srv.URL))
	_, err := client.FetchChannel(context.Background(), ChannelRequest{ChannelID: "12397", APIKey: "k"})
	require.NoError(t, err)
}

func TestFetchChannel_CacheHit(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(feedBody))
	}))
	defer srv.Close()

	client := newTestClient(t, testConfig(srv.URL))

	first, err := client.FetchChannel(context.Background(), liveRequest())
	require.NoError(t, err)
	requestsAfterFirst := client.Status().RequestCount

	second, err := client.FetchChannel(context.Background(), liveRequest())
	require.NoError(t, err)

	assert.Equal(t, int32(1), hits.Load(), "the second call must be served from cache")
	assert.Equal(t, requestsAfterFirst, client.Status().RequestCount, "a cache hit must not increment the request count")

	assert.True(t, second.Meta.Cached)
	assert.False(t, second.Meta.Expired)
	assert.False(t, second.Meta.StoredAt.IsZero())

	if diff := cmp.Diff(first.Channel, second.Channel); diff != "" {
		t.Errorf("cached channel differs from live channel (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(first.Feeds, second.Feeds); diff != "" {
		t.Errorf("cached feeds differ from live feeds (-want +got):\n%s", diff)
	}
}

func TestFetchChannel_BypassCacheForcesNetwork(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(feedBody))
	}))
	defer srv.Close()

	client := newTestClient(t, testConfig(srv.URL))

	_, err := client.FetchChannel(context.Background(), liveRequest())
	require.NoError(t, err)

	req := liveRequest()
	req.BypassCache = true
	payload, err := client.FetchChannel(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, int32(2), hits.Load(), "bypass must force a live attempt")
	assert.False(t, payload.Meta.Cached)
}

func TestFetchChannel_ExhaustsRetriesOnServerError(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}))
	defer srv.Close()

	// No proxy configured, no prior cache.
	client := newTestClient(t, testConfig(srv.URL))

	_, err := client.FetchChannel(context.Background(), liveRequest())
	require.Error(t, err)

	assert.Equal(t, int32(3), hits.Load(), "the client must attempt exactly retryAttempts network calls")

	var exhausted *entity.ExhaustedRetriesError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 3, exhausted.Attempts)

	var netErr *entity.NetworkError
	require.ErrorAs(t, err, &netErr, "the terminal error must carry the last network error")
	assert.Equal(t, entity.NetworkServerError, netErr.Kind)

	status := client.Status()
	assert.Equal(t, uint64(3), status.RequestCount)
	assert.Equal(t, uint64(3), status.ErrorCount)
	assert.NotNil(t, status.LastError)
}

func TestFetchChannel_ErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   entity.NetworkErrorKind
	}{
		{"channel not found", http.StatusNotFound, entity.NetworkNotFound},
		{"invalid key", http.StatusUnauthorized, entity.NetworkUnauthorized},
		{"rate limited", http.StatusTooManyRequests, entity.NetworkRateLimited},
		{"bad gateway", http.StatusBadGateway, entity.NetworkServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, tt.name, tt.status)
			}))
			defer srv.Close()

			cfg := testConfig(srv.URL)
			cfg.RetryAttempts = 1
			client := newTestClient(t, cfg)

			_, err := client.FetchChannel(context.Background(), liveRequest())
			var netErr *entity.NetworkError
			require.ErrorAs(t, err, &netErr)
			assert.Equal(t, tt.want, netErr.Kind)
		})
	}
}

func TestFetchChannel_RecoversAfterTransientFailures(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			http.Error(w, "flaky", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(feedBody))
	}))
	defer srv.Close()

	client := newTestClient(t, testConfig(srv.URL))

	payload, err := client.FetchChannel(context.Background(), liveRequest())
	require.NoError(t, err)
	assert.Equal(t, int32(3), hits.Load())
	assert.Equal(t, "WeatherStation", payload.Channel.Name)
}

func TestFetchChannel_InvalidPayloadIsARetryableFailure(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`{"feeds": []}`)) // no channel descriptor
	}))
	defer srv.Close()

	client := newTestClient(t, testConfig(srv.URL))

	_, err := client.FetchChannel(context.Background(), liveRequest())
	require.Error(t, err)
	assert.Equal(t, int32(3), hits.Load(), "a structurally invalid payload must be retried")

	var invalid *entity.InvalidResponseError
	assert.ErrorAs(t, err, &invalid)
}

func TestFetchChannel_ProxyFallback(t *testing.T) {
	var directHits, proxyHits atomic.Int32
	direct := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		directHits.Add(1)
		http.Error(w, "blocked", http.StatusInternalServerError)
	}))
	defer direct.Close()

	proxy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		proxyHits.Add(1)
		require.Equal(t, http.MethodPost, r.Method)

		var body proxyRequestBody
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, direct.URL+"/channels/12397/feeds.json", body.URL)
		assert.Equal(t, "JMZCM47SV93DPC0R", body.Params["api_key"])

		_, _ = w.Write([]byte(feedBody))
	}))
	defer proxy.Close()

	cfg := testConfig(direct.URL)
	cfg.ProxyURL = proxy.URL
	client := newTestClient(t, cfg)

	payload, err := client.FetchChannel(context.Background(), liveRequest())
	require.NoError(t, err)

	assert.Equal(t, int32(3), directHits.Load(), "direct path must exhaust its retries first")
	assert.Equal(t, int32(1), proxyHits.Load(), "exactly one proxy attempt")
	assert.True(t, payload.Meta.ViaProxy)
	assert.False(t, payload.Meta.Cached)
}

func TestFetchChannel_CachedPayloadCarriesNoProvenance(t *testing.T) {
	direct := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "blocked", http.StatusInternalServerError)
	}))
	defer direct.Close()

	proxy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(feedBody))
	}))
	defer proxy.Close()

	cfg := testConfig(direct.URL)
	cfg.ProxyURL = proxy.URL
	client := newTestClient(t, cfg)

	payload, err := client.FetchChannel(context.Background(), liveRequest())
	require.NoError(t, err)
	require.True(t, payload.Meta.ViaProxy)

	// The stored copy must stay provenance-free; Meta is attached per
	// return, never on the cached payload itself.
	entry, ok, expired := client.cache.GetAny(cache.LiveKey("12397", 1))
	require.True(t, ok)
	require.False(t, expired)
	stored := entry.Payload.(*entity.ChannelFeed)
	assert.Equal(t, entity.Meta{}, stored.Meta)
}

func TestFetchChannel_ProxyFailureFallsThroughToStaleCache(t *testing.T) {
	var healthy atomic.Bool
	healthy.Store(true)
	direct := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if healthy.Load() {
			_, _ = w.Write([]byte(feedBody))
			return
		}
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer direct.Close()

	proxy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "proxy down too", http.StatusBadGateway)
	}))
	defer proxy.Close()

	cfg := testConfig(direct.URL)
	cfg.ProxyURL = proxy.URL
	cfg.CacheTTL = 10 * time.Millisecond
	client := newTestClient(t, cfg)

	_, err := client.FetchChannel(context.Background(), liveRequest())
	require.NoError(t, err, "warm the cache")

	healthy.Store(false)
	time.Sleep(20 * time.Millisecond) // let the entry expire

	payload, err := client.FetchChannel(context.Background(), liveRequest())
	require.NoError(t, err, "stale cache must win over total failure")

	assert.True(t, payload.Meta.Cached)
	assert.True(t, payload.Meta.Expired)
	assert.False(t, payload.Meta.StoredAt.IsZero())
	assert.Equal(t, "WeatherStation", payload.Channel.Name)
}

func TestFetchChannel_WarmCacheNeverRaisesOnAuthFailure(t *testing.T) {
	var healthy atomic.Bool
	healthy.Store(true)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if healthy.Load() {
			_, _ = w.Write([]byte(feedBody))
			return
		}
		http.Error(w, "invalid key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := newTestClient(t, testConfig(srv.URL))

	_, err := client.FetchChannel(context.Background(), liveRequest())
	require.NoError(t, err)

	healthy.Store(false)

	// Force live attempts; all three return 401, then the warm entry is
	// served instead of an error.
	req := liveRequest()
	req.BypassCache = true
	payload, err := client.FetchChannel(context.Background(), req)
	require.NoError(t, err, "a warm cache must absorb the failure")

	assert.True(t, payload.Meta.Cached)
	assert.False(t, payload.Meta.Expired, "the entry is still within its TTL")
}

func TestFetchChannel_TerminalErrorWithCacheDisabled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.CacheEnabled = false
	client := newTestClient(t, cfg)

	_, err := client.FetchChannel(context.Background(), liveRequest())
	var exhausted *entity.ExhaustedRetriesError
	require.ErrorAs(t, err, &exhausted)
}

func TestFetchChannel_ContextCancellationAbortsRetries(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.RetryDelay = 200 * time.Millisecond
	client := newTestClient(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond) // during the first backoff sleep
		cancel()
	}()

	_, err := client.FetchChannel(ctx, liveRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(1), hits.Load(), "cancellation must be checked between attempts")
}

func TestFetchChannel_ConcurrentIdenticalRequestsShareOneFlight(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		time.Sleep(50 * time.Millisecond)
		_, _ = w.Write([]byte(feedBody))
	}))
	defer srv.Close()

	client := newTestClient(t, testConfig(srv.URL))

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := client.FetchChannel(context.Background(), liveRequest())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), hits.Load(), "identical concurrent requests must share one network flight")
}

func TestFetchChannel_CacheKeyedByResultCount(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(feedBody))
	}))
	defer srv.Close()

	client := newTestClient(t, testConfig(srv.URL))

	req := liveRequest()
	_, err := client.FetchChannel(context.Background(), req)
	require.NoError(t, err)

	req.Results = 50
	_, err = client.FetchChannel(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, int32(2), hits.Load(), "different result counts must not share a cache entry")
}

func TestClearCache(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(feedBody))
	}))
	defer srv.Close()

	client := newTestClient(t, testConfig(srv.URL))

	_, err := client.FetchChannel(context.Background(), liveRequest())
	require.NoError(t, err)
	require.Equal(t, 1, client.Status().CacheEntries)

	client.ClearCache()
	assert.Zero(t, client.Status().CacheEntries)

	_, err = client.FetchChannel(context.Background(), liveRequest())
	require.NoError(t, err)
	assert.Equal(t, int32(2), hits.Load(), "a cleared cache must force a live attempt")
}

func TestNewClient_RejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RetryAttempts = 0

	_, err := NewClient(cfg, nil)
	require.Error(t, err)
}
