package opshttp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"danoo/internal/backtest"
	"danoo/internal/executor"
	"danoo/internal/metrics"
	"danoo/internal/store/candles"
	"danoo/internal/store/results"
)

type fakeLive struct {
	status LiveStatus
	err    error
}

func (f fakeLive) LiveStatus(context.Context) (LiveStatus, error) { return f.status, f.err }

type fakeRuns struct {
	list      []results.Summary
	runs      map[string]results.Run
	lastLimit int
}

func (f *fakeRuns) List(_ context.Context, symbol, strategy string, limit int) ([]results.Summary, error) {
	f.lastLimit = limit
	out := []results.Summary{}
	for _, s := range f.list {
		if (symbol == "" || s.Symbol == symbol) && (strategy == "" || s.Strategy == strategy) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeRuns) Get(_ context.Context, id string) (results.Run, error) {
	run, ok := f.runs[id]
	if !ok {
		return results.Run{}, fmt.Errorf("%w: %s", results.ErrNotFound, id)
	}
	return run, nil
}

func newTestServer(t *testing.T, live LiveView, runs RunReader) (*Server, *metrics.Metrics) {
	t.Helper()
	reg := prometheus.NewRegistry()
	mt := metrics.New(reg)
	srv, err := NewServer(ServerConfig{Addr: "127.0.0.1:0", Gatherer: reg, Live: live, Runs: runs})
	require.NoError(t, err)
	return srv, mt
}

func get(t *testing.T, srv *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestNewServerRequiresAddr(t *testing.T) {
	_, err := NewServer(ServerConfig{})
	assert.Error(t, err)
}

func TestHealthAndMetrics(t *testing.T) {
	srv, mt := newTestServer(t, nil, nil)
	mt.ClosedCandle("btcusdt@kline_1m")

	rec := get(t, srv, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = get(t, srv, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `danoo_feed_closed_candles_total{stream="btcusdt@kline_1m"} 1`)
}

func TestLiveStatus(t *testing.T) {
	live := fakeLive{status: LiveStatus{
		Stream:    "btcusdt@kline_1m",
		State:     "connected",
		LastPrice: 101.5,
		Buffered:  42,
		Mode:      string(executor.ModeSimulated),
		Equity:    10_050,
	}}
	srv, _ := newTestServer(t, live, nil)

	rec := get(t, srv, "/api/live/status")
	require.Equal(t, http.StatusOK, rec.Code)
	var got LiveStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "connected", got.State)
	assert.Equal(t, 42, got.Buffered)
	assert.InDelta(t, 10_050, got.Equity, 1e-9)
	assert.NotNil(t, got.Positions)
}

func TestLiveStatusUnavailable(t *testing.T) {
	srv, _ := newTestServer(t, fakeLive{err: errors.New("feed not started")}, nil)
	rec := get(t, srv, "/api/live/status")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRoutesAbsentWithoutBackingService(t *testing.T) {
	srv, _ := newTestServer(t, nil, nil)
	assert.Equal(t, http.StatusNotFound, get(t, srv, "/api/live/status").Code)
	assert.Equal(t, http.StatusNotFound, get(t, srv, "/api/backtests").Code)
}

func TestBacktestRuns(t *testing.T) {
	runs := &fakeRuns{
		list: []results.Summary{
			{ID: "a", Symbol: "BTCUSDT", Strategy: backtest.StrategyMomentum},
			{ID: "b", Symbol: "ETHUSDT", Strategy: backtest.StrategyEnsemble},
		},
		runs: map[string]results.Run{
			"a": {ID: "a", Symbol: "BTCUSDT", Results: backtest.Results{Strategy: backtest.StrategyMomentum}},
		},
	}
	srv, _ := newTestServer(t, nil, runs)

	rec := get(t, srv, "/api/backtests?symbol=ETHUSDT&limit=5")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Runs []results.Summary `json:"runs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Runs, 1)
	assert.Equal(t, "b", body.Runs[0].ID)
	assert.Equal(t, 5, runs.lastLimit)

	assert.Equal(t, http.StatusBadRequest, get(t, srv, "/api/backtests?limit=-1").Code)

	rec = get(t, srv, "/api/backtests/a")
	require.Equal(t, http.StatusOK, rec.Code)
	var run results.Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
	assert.Equal(t, backtest.StrategyMomentum, run.Results.Strategy)

	assert.Equal(t, http.StatusNotFound, get(t, srv, "/api/backtests/missing").Code)
}

type fakeCatalog []candles.Coverage

func (f fakeCatalog) Series(context.Context) ([]candles.Coverage, error) { return f, nil }

func TestCandleSeries(t *testing.T) {
	srv, err := NewServer(ServerConfig{
		Addr:     "127.0.0.1:0",
		Gatherer: prometheus.NewRegistry(),
		Cache:    fakeCatalog{{Symbol: "BTCUSDT", Interval: "1m", First: 1, Last: 2, Rows: 2}},
	})
	require.NoError(t, err)

	rec := get(t, srv, "/api/candles")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Series []candles.Coverage `json:"series"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Series, 1)
	assert.Equal(t, "BTCUSDT", body.Series[0].Symbol)
	assert.EqualValues(t, 2, body.Series[0].Rows)

	empty, err := NewServer(ServerConfig{Addr: "127.0.0.1:0", Gatherer: prometheus.NewRegistry(), Cache: fakeCatalog(nil)})
	require.NoError(t, err)
	rec = get(t, empty, "/api/candles")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"series":[]}`, rec.Body.String())
}
