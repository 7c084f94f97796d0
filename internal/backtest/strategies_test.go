package backtest

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"danoo/internal/market"
	"danoo/internal/regime"
	"danoo/internal/risk"
)

const breakoutIdx = 140

// squeezeBreakout swings around 100 with a shrinking amplitude so band
// width keeps falling, then prints one full-bodied bar on five times the
// volume that closes well above the upper band. rally quiet up bars follow.
func squeezeBreakout(rally int) []market.Candle {
	out := make([]market.Candle, 0, breakoutIdx+1+rally)
	prev := 100.0
	for i := 0; i < breakoutIdx; i++ {
		swing := 2 * math.Pow(0.98, float64(i))
		if i%2 == 1 {
			swing = -swing
		}
		c := 100 + swing
		out = append(out, bar(i, prev, math.Max(prev, c)+0.05, math.Min(prev, c)-0.05, c, 1000))
		prev = c
	}
	out = append(out, bar(breakoutIdx, prev, prev+3.1, prev-0.1, prev+3, 5000))
	prev += 3
	for k := 1; k <= rally; k++ {
		out = append(out, bar(breakoutIdx+k, prev, prev+0.6, prev-0.1, prev+0.5, 1000))
		prev += 0.5
	}
	return out
}

// rangingSelloff chops around 100, falls six bars on thinning volume and
// recovers on rising volume.
func rangingSelloff() []market.Candle {
	out := make([]market.Candle, 0, 72)
	prev := 100.0
	for i := 0; i < 60; i++ {
		c := 99.2
		if i%2 == 0 {
			c = 100.8
		}
		out = append(out, bar(i, prev, math.Max(prev, c)+0.1, math.Min(prev, c)-0.1, c, 1000))
		prev = c
	}
	for k := 0; k < 6; k++ {
		c := prev - 2.5
		out = append(out, bar(len(out), prev, prev+0.1, c-0.1, c, 900-100*float64(k)))
		prev = c
	}
	for k := 0; k < 6; k++ {
		c := prev + 3
		out = append(out, bar(len(out), prev, c+0.1, prev-0.1, c, 1100+100*float64(k)))
		prev = c
	}
	return out
}

// trendPullback climbs 0.5 a bar, dips for four bars, then resumes slowly.
func trendPullback() []market.Candle {
	var out []market.Candle
	prev := 100.0
	step := func(delta float64) {
		c := prev + delta
		out = append(out, bar(len(out), prev, math.Max(prev, c)+0.1, math.Min(prev, c)-0.1, c, 1000))
		prev = c
	}
	for i := 0; i < 40; i++ {
		step(0.5)
	}
	for i := 0; i < 4; i++ {
		step(-0.8)
	}
	for i := 0; i < 5; i++ {
		step(0.3)
	}
	return out
}

// mirror reflects prices around 100 so every long setup becomes a short one.
func mirror(candles []market.Candle) []market.Candle {
	out := make([]market.Candle, len(candles))
	for i, c := range candles {
		out[i] = c
		out[i].Open, out[i].Close = 200-c.Open, 200-c.Close
		out[i].High, out[i].Low = 200-c.Low, 200-c.High
	}
	return out
}

func TestVolatilityExpansionStopScalesWithRegime(t *testing.T) {
	candles := squeezeBreakout(0)
	atr := computeSeries(candles, DefaultParams()).atr[breakoutIdx]
	require.Greater(t, atr, 0.0)

	cases := []struct {
		tag  regime.Tag
		mult float64
	}{
		{regime.BullTrend, 1.5},
		{regime.Ranging, 1.8},
		{regime.Compressed, 2.2},
		{regime.HighVolatility, 3.0},
	}
	for _, tc := range cases {
		t.Run(string(tc.tag), func(t *testing.T) {
			res := Run(candles, StrategyVolatilityExpansion, 1, WithRegimeMap(tagAll(candles, tc.tag)))
			assert.Empty(t, res.Trades)
			pos := res.OpenPosition
			require.NotNil(t, pos)
			assert.Equal(t, Long, pos.Side)
			assert.Equal(t, tc.tag, pos.Regime)
			assert.Equal(t, candles[breakoutIdx].OpenTime, pos.EntryTime)

			stopDist := pos.EntryPrice - pos.Stop
			assert.InDelta(t, atr*tc.mult, stopDist, 1e-9)
			assert.InDelta(t, 2.5*stopDist, pos.Target-pos.EntryPrice, 1e-9)
		})
	}
}

func TestVolatilityExpansionTakesTarget(t *testing.T) {
	candles := squeezeBreakout(12)
	res := Run(candles, StrategyVolatilityExpansion, 1, WithRegimeMap(tagAll(candles, regime.BullTrend)))

	require.Len(t, res.Trades, 1)
	tr := res.Trades[0]
	assert.Equal(t, StrategyVolatilityExpansion, tr.Strategy)
	assert.Equal(t, Long, tr.Side)
	assert.Equal(t, candles[breakoutIdx].OpenTime, tr.EntryTime)
	assert.Equal(t, ExitTarget, tr.ExitReason)
	assert.Equal(t, candles[breakoutIdx+5].OpenTime, tr.ExitTime)
	assert.Greater(t, tr.PnL, 0.0)
	assert.Nil(t, res.OpenPosition)
	assert.Equal(t, 120, res.Warmup)
}

func TestQuietBarsNeverBreakOut(t *testing.T) {
	candles := squeezeBreakout(0)
	candles[breakoutIdx].Volume = 1000
	res := Run(candles, StrategyVolatilityExpansion, 1, WithRegimeMap(tagAll(candles, regime.BullTrend)))
	assert.Empty(t, res.Trades)
	assert.Nil(t, res.OpenPosition)
}

func TestEnsembleScalesRiskByRegime(t *testing.T) {
	candles := squeezeBreakout(0)
	cases := []struct {
		tag  regime.Tag
		mult float64
	}{
		{regime.BullTrend, 1.5},
		{regime.Ranging, 0.5},
		{regime.Compressed, 1.0},
		{regime.HighVolatility, 1.0},
	}
	for _, tc := range cases {
		t.Run(string(tc.tag), func(t *testing.T) {
			tags := WithRegimeMap(tagAll(candles, tc.tag))
			single := Run(candles, StrategyVolatilityExpansion, 1, tags).OpenPosition
			voted := Run(candles, StrategyEnsemble, 1, tags).OpenPosition
			require.NotNil(t, single)
			require.NotNil(t, voted)

			assert.Equal(t, Long, voted.Side)
			assert.Equal(t, single.EntryTime, voted.EntryTime)
			assert.InDelta(t, single.Stop, voted.Stop, 1e-12)
			assert.InDelta(t, single.Target, voted.Target, 1e-12)
			assert.InDelta(t, single.Size*tc.mult, voted.Size, 0.002)
		})
	}
}

func TestRegimeMultiplierKeepsSizerCap(t *testing.T) {
	candles := squeezeBreakout(0)
	sizer := risk.NewFixedFractional(risk.Config{MaxRiskPerTrade: 0.05, MaxLeverage: 1, QuantityStep: 0.001})
	opts := []RunOption{WithRegimeMap(tagAll(candles, regime.BullTrend)), WithSizer(sizer)}

	single := Run(candles, StrategyVolatilityExpansion, 1, opts...).OpenPosition
	voted := Run(candles, StrategyEnsemble, 1, opts...).OpenPosition
	require.NotNil(t, single)
	require.NotNil(t, voted)

	// Both hit the one-times-balance notional cap, so the 1.5x weight adds nothing.
	assert.Equal(t, single.Size, voted.Size)
	assert.LessOrEqual(t, voted.Size*voted.EntryPrice, 10_000.0)
}

func TestCooldownBlocksEarlyReentry(t *testing.T) {
	candles := squeezeBreakout(0)
	cases := []struct {
		strategy string
		cooldown int
	}{
		{StrategyVolatilityExpansion, 8},
		{StrategyEnsemble, 5},
	}
	for _, tc := range cases {
		t.Run(tc.strategy, func(t *testing.T) {
			blocked := testEngine(candles, tagAll(candles, regime.BullTrend), DefaultParams())
			pb := blocked.playbook(tc.strategy)
			assert.Equal(t, tc.cooldown, pb.cooldown)
			blocked.lastExit = breakoutIdx - tc.cooldown + 1
			blocked.replay(pb)
			assert.Nil(t, blocked.pos)

			free := testEngine(candles, tagAll(candles, regime.BullTrend), DefaultParams())
			free.lastExit = breakoutIdx - tc.cooldown
			free.replay(free.playbook(tc.strategy))
			require.NotNil(t, free.pos)
			assert.Equal(t, breakoutIdx, free.pos.entryIdx)
		})
	}
}

func TestMeanReversionFadesRangingSelloff(t *testing.T) {
	candles := rangingSelloff()
	p := DefaultParams()
	p.MaxWidthPct = 30
	res := Run(candles, StrategyMeanReversion, 1, WithParams(p), WithRegimeMap(tagAll(candles, regime.Ranging)))

	require.Len(t, res.Trades, 1)
	tr := res.Trades[0]
	assert.Equal(t, StrategyMeanReversion, tr.Strategy)
	assert.Equal(t, Long, tr.Side)
	assert.Equal(t, regime.Ranging, tr.Regime)
	assert.Equal(t, candles[64].OpenTime, tr.EntryTime)
	assert.Equal(t, ExitMiddleBand, tr.ExitReason)
	assert.Equal(t, candles[69].OpenTime, tr.ExitTime)
	assert.Greater(t, tr.PnL, 0.0)

	// The sell-off widens the bands past the default ceiling.
	assert.Empty(t, Run(candles, StrategyMeanReversion, 1, WithRegimeMap(tagAll(candles, regime.Ranging))).Trades)
	assert.Empty(t, Run(candles, StrategyMeanReversion, 1, WithParams(p), WithRegimeMap(tagAll(candles, regime.BullTrend))).Trades)
}

func TestScalperBuysStochasticCrossInUptrend(t *testing.T) {
	candles := trendPullback()
	tags := WithRegimeMap(tagAll(candles, regime.BullTrend))
	res := Run(candles, StrategyScalper, 1, tags)

	assert.Equal(t, 21, res.Warmup)
	require.Len(t, res.Trades, 1)
	tr := res.Trades[0]
	assert.Equal(t, StrategyScalper, tr.Strategy)
	assert.Equal(t, Long, tr.Side)
	assert.Equal(t, candles[46].OpenTime, tr.EntryTime)
	assert.Equal(t, ExitTarget, tr.ExitReason)
	assert.Equal(t, candles[48].OpenTime, tr.ExitTime)
	assert.Greater(t, tr.PnL, 0.0)

	pos := Run(candles[:47], StrategyScalper, 1, tags).OpenPosition
	require.NotNil(t, pos)
	px := candles[46].Close
	assert.InDelta(t, px*0.003, pos.EntryPrice-pos.Stop, 1e-9)
	assert.InDelta(t, px*0.005, pos.Target-pos.EntryPrice, 1e-9)
}

func TestScalperSellsMirroredSetup(t *testing.T) {
	candles := mirror(trendPullback())
	res := Run(candles, StrategyScalper, 1, WithRegimeMap(tagAll(candles, regime.BearTrend)))

	require.Len(t, res.Trades, 1)
	tr := res.Trades[0]
	assert.Equal(t, Short, tr.Side)
	assert.Equal(t, candles[46].OpenTime, tr.EntryTime)
	assert.Equal(t, ExitTarget, tr.ExitReason)
	assert.Equal(t, candles[48].OpenTime, tr.ExitTime)
}
