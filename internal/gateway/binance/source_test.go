package binance

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"danoo/internal/market"
)

const minuteMs = int64(60_000)

// klineServer serves bars open times start, start+1m, ... honouring the
// limit and endTime query parameters like the futures klines endpoint.
func klineServer(t *testing.T, start int64, bars int, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/fapi/v1/klines", r.URL.Path)
		assert.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		last := bars - 1
		if end := r.URL.Query().Get("endTime"); end != "" {
			ts, _ := strconv.ParseInt(end, 10, 64)
			last = int((ts - start) / minuteMs)
		}
		first := max(0, last-limit+1)
		rows := make([][]any, 0, last-first+1)
		for i := first; i <= last; i++ {
			open := start + int64(i)*minuteMs
			price := strconv.Itoa(100 + i)
			rows = append(rows, []any{open, price, price, price, price, "1", open + minuteMs - 1, "100", 3, "0.5", "50", "0"})
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(rows))
	}))
}

func TestFetchHistoryPagesBackwards(t *testing.T) {
	start := int64(1_700_000_000_000)
	var calls atomic.Int32
	srv := klineServer(t, start, 2500, &calls)
	defer srv.Close()

	src, err := New(Config{RESTBaseURL: srv.URL})
	require.NoError(t, err)
	// Every bar except the newest has closed.
	src.now = func() time.Time { return time.UnixMilli(start + 2499*minuteMs + 1) }

	out, err := src.FetchHistory(context.Background(), "btc/usdt", "1m", 2000)
	require.NoError(t, err)
	require.Len(t, out, 2000)
	assert.True(t, market.Ordered(out))
	assert.Equal(t, start+2498*minuteMs, out[len(out)-1].OpenTime)
	assert.Equal(t, start+499*minuteMs, out[0].OpenTime)
	assert.Equal(t, int64(3), out[0].Trades)
	assert.Equal(t, int32(2), calls.Load())
}

func TestFetchHistoryStopsAtShortPage(t *testing.T) {
	start := int64(1_700_000_000_000)
	var calls atomic.Int32
	srv := klineServer(t, start, 40, &calls)
	defer srv.Close()

	src, err := New(Config{RESTBaseURL: srv.URL})
	require.NoError(t, err)
	src.now = func() time.Time { return time.UnixMilli(start + 40*minuteMs) }

	out, err := src.FetchHistory(context.Background(), "BTCUSDT", "1m", 500)
	require.NoError(t, err)
	assert.Len(t, out, 40)
	assert.Equal(t, int32(1), calls.Load())
}

func TestFetchHistoryRejectsBadInput(t *testing.T) {
	src, err := New(Config{RESTBaseURL: "http://127.0.0.1:1"})
	require.NoError(t, err)

	_, err = src.FetchHistory(context.Background(), "", "1m", 10)
	assert.Error(t, err)
	_, err = src.FetchHistory(context.Background(), "BTCUSDT", "7x", 10)
	assert.Error(t, err)
}
