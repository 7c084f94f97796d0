package results

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"danoo/internal/backtest"
	"danoo/internal/regime"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "runs", "results.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleResults(strategy string) backtest.Results {
	trades := []backtest.Trade{
		{Strategy: strategy, Side: backtest.Long, EntryTime: 1, ExitTime: 2, EntryPrice: 100, ExitPrice: 110, Size: 1, PnL: 9.5, PnLPct: 9.5, Regime: regime.BullTrend, ExitReason: backtest.ExitTarget, BarsHeld: 1},
		{Strategy: strategy, Side: backtest.Short, EntryTime: 3, ExitTime: 5, EntryPrice: 110, ExitPrice: 112, Size: 1, PnL: -2.5, PnLPct: -2.5, Regime: regime.Ranging, ExitReason: backtest.ExitStop, BarsHeld: 2},
	}
	return backtest.Results{
		Strategy:       strategy,
		Leverage:       5,
		InitialBalance: 10_000,
		Bars:           200,
		Warmup:         50,
		Trades:         trades,
		Metrics:        backtest.ComputeMetrics(trades, 10_000),
	}
}

func TestSaveAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	res := sampleResults(backtest.StrategyMomentum)
	params := backtest.DefaultParams()
	params.ADXEntry = 25

	id, err := s.Save(ctx, "btcusdt", "15M", params, res)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	run, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "BTCUSDT", run.Symbol)
	assert.Equal(t, "15m", run.Interval)
	assert.Equal(t, res, run.Results)
	assert.Equal(t, 25.0, run.Params.ADXEntry)
}

func TestGetMissing(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListFilters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, err := s.Save(ctx, "BTCUSDT", "15m", backtest.DefaultParams(), sampleResults(backtest.StrategyMomentum))
	require.NoError(t, err)
	_, err = s.Save(ctx, "BTCUSDT", "15m", backtest.DefaultParams(), sampleResults(backtest.StrategyEnsemble))
	require.NoError(t, err)
	_, err = s.Save(ctx, "ETHUSDT", "1h", backtest.DefaultParams(), sampleResults(backtest.StrategyMomentum))
	require.NoError(t, err)

	all, err := s.List(ctx, "", "", 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	btc, err := s.List(ctx, "btcusdt", "", 10)
	require.NoError(t, err)
	assert.Len(t, btc, 2)

	mom, err := s.List(ctx, "", backtest.StrategyMomentum, 10)
	require.NoError(t, err)
	require.Len(t, mom, 2)
	assert.Equal(t, 2, mom[0].TotalTrades)
	assert.InDelta(t, 50, mom[0].WinRate, 1e-9)

	one, err := s.List(ctx, "", "", 1)
	require.NoError(t, err)
	assert.Len(t, one, 1)
}
