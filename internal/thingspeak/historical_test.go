package thingspeak

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"channelwatch/internal/domain/entity"
)

func historicalRequest() HistoricalRequest {
	return HistoricalRequest{
		ChannelID: "12397",
		APIKey:    "JMZCM47SV93DPC0R",
		Start:     time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
		End:       time.Date(2026, 8, 2, 0, 0, 0, 0, time.UTC),
	}
}

func TestFetchHistoricalData_WireFormat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/channels/12397/feeds.json", r.URL.Path)
		assert.Equal(t, "2026-08-01 00:00:00", r.URL.Query().Get("start"))
		assert.Equal(t, "2026-08-02 00:00:00", r.URL.Query().Get("end"))
		assert.Empty(t, r.URL.Query().Get("results"), "historical requests carry no result count")
		_, _ = w.Write([]byte(feedBody))
	}))
	defer srv.Close()

	client := newTestClient(t, testConfig(srv.URL))

	payload, err := client.FetchHistoricalData(context.Background(), historicalRequest())
	require.NoError(t, err)
	assert.True(t, payload.Meta.Historical)
	assert.False(t, payload.Meta.Cached)
}

func TestFetchHistoricalData_NormalizesZonesToUTC(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "2026-08-01 00:00:00", r.URL.Query().Get("start"))
		_, _ = w.Write([]byte(feedBody))
	}))
	defer srv.Close()

	client := newTestClient(t, testConfig(srv.URL))

	jst := time.FixedZone("JST", 9*3600)
	req := historicalRequest()
	req.Start = time.Date(2026, 8, 1, 9, 0, 0, 0, jst) // 00:00 UTC
	req.BypassCache = true

	_, err := client.FetchHistoricalData(context.Background(), req)
	require.NoError(t, err)
}

func TestFetchHistoricalData_Validation(t *testing.T) {
	client := newTestClient(t, testConfig("http://localhost:1"))

	tests := []struct {
		name string
		req  HistoricalRequest
	}{
		{"missing channel", HistoricalRequest{APIKey: "k", Start: time.Now(), End: time.Now()}},
		{"missing key", HistoricalRequest{ChannelID: "1", Start: time.Now(), End: time.Now()}},
		{"zero range", HistoricalRequest{ChannelID: "1", APIKey: "k"}},
		{"inverted range", HistoricalRequest{
			ChannelID: "1", APIKey: "k",
			Start: time.Date(2026, 8, 2, 0, 0, 0, 0, time.UTC),
			End:   time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := client.FetchHistoricalData(context.Background(), tt.req)
			var validationErr *entity.ValidationError
			require.ErrorAs(t, err, &validationErr)
		})
	}
}

func TestFetchHistoricalData_CachedSeparatelyFromLive(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(feedBody))
	}))
	defer srv.Close()

	client := newTestClient(t, testConfig(srv.URL))

	_, err := client.FetchChannel(context.Background(), liveRequest())
	require.NoError(t, err)

	_, err = client.FetchHistoricalData(context.Background(), historicalRequest())
	require.NoError(t, err)
	assert.Equal(t, int32(2), hits.Load(), "historical and live requests must not share cache entries")

	// Second historical fetch for the same range is a cache hit.
	payload, err := client.FetchHistoricalData(context.Background(), historicalRequest())
	require.NoError(t, err)
	assert.Equal(t, int32(2), hits.Load())
	assert.True(t, payload.Meta.Cached)
	assert.True(t, payload.Meta.Historical)
}

func TestFetchHistoricalData_StaleFallbackKeepsHistoricalFlag(t *testing.T) {
	var healthy atomic.Bool
	healthy.Store(true)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if healthy.Load() {
			_, _ = w.Write([]byte(feedBody))
			return
		}
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.CacheTTL = 10 * time.Millisecond
	client := newTestClient(t, cfg)

	_, err := client.FetchHistoricalData(context.Background(), historicalRequest())
	require.NoError(t, err)

	healthy.Store(false)
	time.Sleep(20 * time.Millisecond)

	payload, err := client.FetchHistoricalData(context.Background(), historicalRequest())
	require.NoError(t, err)
	assert.True(t, payload.Meta.Cached)
	assert.True(t, payload.Meta.Expired)
	assert.True(t, payload.Meta.Historical)
}
