package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"danoo/internal/backtest"
	"danoo/internal/config"
	"danoo/internal/executor"
	"danoo/internal/market"
)

type fakeHistory struct {
	mu      sync.Mutex
	candles map[string][]market.Candle
	errs    map[string]error
	calls   map[string]int
}

func newFakeHistory() *fakeHistory {
	return &fakeHistory{
		candles: map[string][]market.Candle{},
		errs:    map[string]error{},
		calls:   map[string]int{},
	}
}

func (h *fakeHistory) FetchHistory(_ context.Context, _, interval string, limit int) ([]market.Candle, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls[interval]++
	if err := h.errs[interval]; err != nil {
		return nil, err
	}
	out := append([]market.Candle(nil), h.candles[interval]...)
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (h *fakeHistory) set(interval string, candles []market.Candle, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.candles[interval] = candles
	h.errs[interval] = err
}

func (h *fakeHistory) count(interval string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls[interval]
}

type fakeConn struct {
	frames    chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeConn(frames ...[]byte) *fakeConn {
	c := &fakeConn{frames: make(chan []byte, len(frames)+1), closed: make(chan struct{})}
	for _, f := range frames {
		c.frames <- f
	}
	return c
}

func (c *fakeConn) ReadMessage() ([]byte, error) {
	select {
	case b := <-c.frames:
		return b, nil
	case <-c.closed:
		return nil, io.EOF
	}
}

func (c *fakeConn) Ping(time.Time) error { return nil }

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

type fakeDialer struct {
	mu    sync.Mutex
	first *fakeConn
	dials int
}

func (d *fakeDialer) Dial(_ context.Context, _, _ string, onAck func()) (market.StreamConn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if onAck != nil {
		onAck()
	}
	if d.dials == 1 && d.first != nil {
		return d.first, nil
	}
	return newFakeConn(), nil
}

// waveCandles is a trending sine wave with enough swings to trade.
func waveCandles(n int, start int64, step time.Duration) []market.Candle {
	ms := step.Milliseconds()
	out := make([]market.Candle, n)
	prev := 100.0
	for i := range out {
		close := 100 + 10*math.Sin(float64(i)/15) + float64(i)*0.05
		open := prev
		out[i] = market.Candle{
			OpenTime:  start + int64(i)*ms,
			CloseTime: start + int64(i+1)*ms - 1,
			Open:      open,
			High:      math.Max(open, close) + 0.5,
			Low:       math.Min(open, close) - 0.5,
			Close:     close,
			Volume:    100 + float64(i%7)*20,
		}
		prev = close
	}
	return out
}

const waveStart = int64(1_699_999_200_000)

func writeConfig(t *testing.T, body string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	full := fmt.Sprintf("app:\n  data_dir: %s\n  log_level: error\n%s", dir, body)
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(full), 0o644))
	cfg, err := config.Load(path)
	require.NoError(t, err)
	return cfg
}

func buildApp(t *testing.T, cfg *config.Config, opts ...AppBuilderOption) *App {
	t.Helper()
	a, err := NewAppBuilder(cfg, opts...).Build(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestRunBacktestFetchesOnceThenServesCache(t *testing.T) {
	cfg := writeConfig(t, `market:
  symbol: BTCUSDT
  interval: 15m
backtest:
  strategies: [momentum, mean_reversion]
  history_limit: 300
  max_concurrent: 2
`)
	cfg.Backtest.ReportPath = filepath.Join(cfg.App.DataDir, "out", "report.html")
	h := newFakeHistory()
	h.set("15m", waveCandles(400, waveStart, 15*time.Minute), nil)
	a := buildApp(t, cfg, WithHistorySource(h), WithStreamDialer(&fakeDialer{}))
	ctx := context.Background()

	out, err := a.RunBacktest(ctx)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, backtest.StrategyMomentum, out[0].Name)
	assert.Equal(t, backtest.StrategyMeanReversion, out[1].Name)
	for _, o := range out {
		assert.Equal(t, 300, o.Results.Bars)
		assert.Equal(t, backtest.AllRegimes, o.Results.RegimeFilter)
		assert.NotEmpty(t, o.ID)
	}
	assert.Equal(t, 1, h.count("15m"))

	stored, err := a.backtest.results.Get(ctx, out[0].ID)
	require.NoError(t, err)
	assert.Equal(t, backtest.StrategyMomentum, stored.Results.Strategy)
	assert.Equal(t, out[0].Results.Metrics, stored.Results.Metrics)

	report, err := os.ReadFile(cfg.Backtest.ReportPath)
	require.NoError(t, err)
	assert.Contains(t, string(report), "danoo backtest")

	_, err = a.RunBacktest(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, h.count("15m"), "a full cache is served without fetching")

	list, err := a.backtest.results.List(ctx, "BTCUSDT", "", 10)
	require.NoError(t, err)
	assert.Len(t, list, 4)

	families, err := a.registry.Gather()
	require.NoError(t, err)
	var runs float64
	for _, f := range families {
		if f.GetName() == "danoo_backtest_runs_total" {
			for _, m := range f.GetMetric() {
				runs += m.GetCounter().GetValue()
			}
		}
	}
	assert.Equal(t, 4.0, runs)
}

func TestRunBacktestFallsBackToCache(t *testing.T) {
	cfg := writeConfig(t, `market:
  interval: 15m
backtest:
  strategies: [ensemble]
  history_limit: 300
`)
	h := newFakeHistory()
	h.set("15m", waveCandles(200, waveStart, 15*time.Minute), nil)
	a := buildApp(t, cfg, WithHistorySource(h), WithStreamDialer(&fakeDialer{}))
	ctx := context.Background()

	_, err := a.RunBacktest(ctx)
	require.NoError(t, err)

	h.set("15m", nil, errors.New("exchange down"))
	out, err := a.RunBacktest(ctx)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, 200, out[0].Results.Bars)
	assert.Equal(t, 2, h.count("15m"))
}

func TestRunBacktestFailsWithoutData(t *testing.T) {
	cfg := writeConfig(t, "backtest:\n  strategies: [momentum]\n")
	h := newFakeHistory()
	h.set(cfg.Market.Interval, nil, errors.New("exchange down"))
	a := buildApp(t, cfg, WithHistorySource(h), WithStreamDialer(&fakeDialer{}))

	_, err := a.RunBacktest(context.Background())
	assert.ErrorContains(t, err, "exchange down")
}

func TestRunBacktestWithPresets(t *testing.T) {
	dir := t.TempDir()
	presetsPath := filepath.Join(dir, "presets.yaml")
	require.NoError(t, os.WriteFile(presetsPath, []byte(`presets:
  tight:
    strategy: momentum
    params:
      adx_entry: 25
`), 0o644))
	cfg := writeConfig(t, fmt.Sprintf(`market:
  interval: 15m
backtest:
  strategies: []
  presets: [tight]
  presets_path: %s
  commission_rate: 0.001
  history_limit: 300
`, presetsPath))
	h := newFakeHistory()
	h.set("15m", waveCandles(300, waveStart, 15*time.Minute), nil)
	a := buildApp(t, cfg, WithHistorySource(h), WithStreamDialer(&fakeDialer{}))

	out, err := a.RunBacktest(context.Background())
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "preset:tight", out[0].Name)
	assert.Equal(t, backtest.StrategyMomentum, out[0].Results.Strategy)
	assert.Equal(t, 25.0, out[0].Params.ADXEntry)
	assert.Equal(t, 0.001, out[0].Params.CommissionRate)
	assert.Equal(t, []string{"preset:tight"}, a.Summary.Backtest.Jobs)
	assert.Equal(t, []string{"tight"}, a.Summary.Backtest.Presets)
}

func TestExplicitZeroCostsReachParams(t *testing.T) {
	cfg := writeConfig(t, "backtest:\n  commission_rate: 0\n  slippage_rate: 0\n")
	a := buildApp(t, cfg, WithHistorySource(newFakeHistory()), WithStreamDialer(&fakeDialer{}))
	p := a.backtest.baseParams()
	assert.Negative(t, p.CommissionRate)
	assert.Negative(t, p.SlippageRate)
}

func TestHigherTimeframeResampledWhenFetchFails(t *testing.T) {
	cfg := writeConfig(t, `market:
  interval: 15m
  higher_interval: 1h
backtest:
  strategies: [volatility_expansion]
  history_limit: 300
`)
	base := waveCandles(300, waveStart, 15*time.Minute)
	h := newFakeHistory()
	h.set("15m", base, nil)
	h.set("1h", nil, errors.New("not served"))
	a := buildApp(t, cfg, WithHistorySource(h), WithStreamDialer(&fakeDialer{}))

	tf, err := backtest.ParseTimeframe("1h")
	require.NoError(t, err)
	higher := a.backtest.loadHigher(context.Background(), "BTCUSDT", base)
	assert.Equal(t, backtest.Resample(base, tf), higher)
	assert.Equal(t, 1, h.count("1h"))

	h.set("1h", waveCandles(120, waveStart, time.Hour), nil)
	higher = a.backtest.loadHigher(context.Background(), "BTCUSDT", base)
	assert.Len(t, higher, 120)
}

func TestRunRejectsUnknownCommand(t *testing.T) {
	cfg := writeConfig(t, "")
	a := buildApp(t, cfg, WithHistorySource(newFakeHistory()), WithStreamDialer(&fakeDialer{}))
	assert.ErrorContains(t, a.Run(context.Background(), "trade"), "unknown command")
}

func TestApplyConfigSwitchesMode(t *testing.T) {
	cfg := writeConfig(t, "")
	a := buildApp(t, cfg,
		WithHistorySource(newFakeHistory()),
		WithStreamDialer(&fakeDialer{}),
		WithVenueFactory(func(executor.Mode) (executor.Venue, error) { return nil, errors.New("no keys") }),
	)
	require.Equal(t, executor.ModeSimulated, a.Executor().Mode())

	next := *cfg
	next.Execution.Mode = "sandbox"
	a.ApplyConfig(&next)
	assert.Equal(t, executor.ModeSandbox, a.Executor().Mode())

	next.Execution.Mode = "bogus"
	a.ApplyConfig(&next)
	assert.Equal(t, executor.ModeSandbox, a.Executor().Mode())
}

func klineFrame(open int64, closed bool) []byte {
	return []byte(fmt.Sprintf(`{"e":"kline","E":%d,"s":"BTCUSDT","k":{"t":%d,"T":%d,"s":"BTCUSDT","i":"1m","o":"101","c":"102","h":"103","l":"100","v":"5","n":3,"x":%t}}`,
		open+60_000, open, open+59_999, closed))
}

func TestRunLiveWarmsStreamsAndStops(t *testing.T) {
	cfg := writeConfig(t, `market:
  symbol: BTCUSDT
  interval: 1m
  buffer_size: 30
`)
	start := time.Now().Add(-2 * time.Hour).Truncate(time.Minute).UnixMilli()
	hist := waveCandles(40, start, time.Minute)
	h := newFakeHistory()
	h.set("1m", hist, nil)
	next := hist[len(hist)-1].OpenTime + 60_000
	dialer := &fakeDialer{first: newFakeConn(klineFrame(next, false), klineFrame(next, true))}
	a := buildApp(t, cfg, WithHistorySource(h), WithStreamDialer(dialer))

	_, err := a.live.LiveStatus(context.Background())
	assert.Error(t, err, "status is unavailable before the feed starts")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.RunLive(ctx) }()

	store := a.backtest.candles
	require.Eventually(t, func() bool {
		n, err := store.Count(context.Background(), "BTCUSDT", "1m")
		return err == nil && n == 31
	}, 5*time.Second, 20*time.Millisecond)

	require.Eventually(t, func() bool {
		st, err := a.live.LiveStatus(context.Background())
		return err == nil && st.LastPrice == 102 && st.Buffered == 30
	}, 5*time.Second, 20*time.Millisecond)

	st, err := a.live.LiveStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "btcusdt@kline_1m", st.Stream)
	assert.Equal(t, string(executor.ModeSimulated), st.Mode)
	assert.InDelta(t, 10_000, st.Equity, 1e-9)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("live run did not stop")
	}
}
