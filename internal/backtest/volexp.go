package backtest

// volatilityExpansion trades a breakout bar that follows a compressed
// Bollinger width: a volume spike, a full-bodied candle closing outside
// the band, and agreeing EMA bias on both timeframes.
func (e *engine) volatilityExpansion() playbook {
	p := e.p
	return playbook{
		lookback: e.volExpLookback(),
		cooldown: p.Cooldown,
		signal: func(i int) (entrySignal, bool) {
			side, ok := e.volExpVote(i)
			if !ok {
				return entrySignal{}, false
			}
			return e.bracket(i, side, 1)
		},
	}
}

func (e *engine) volExpLookback() int {
	p := e.p
	return maxInt(p.EMASlow, p.BBPeriod+p.WidthLookback, p.ATRPeriod+1, p.VolumePeriod+1)
}

// volExpVote measures compression on the bar before i and expansion on i.
func (e *engine) volExpVote(i int) (Side, bool) {
	if i < 1 {
		return "", false
	}
	x, p := e.x, e.p
	upper, lower := x.bands.Upper[i], x.bands.Lower[i]
	if !valid(x.widthPct[i-1], x.volSMA[i-1], upper, lower, x.emaFast[i], x.emaSlow[i]) {
		return "", false
	}
	if x.widthPct[i-1] >= p.WidthPercentile {
		return "", false
	}
	if x.volSMA[i-1] <= 0 || x.Volume[i] < x.volSMA[i-1]*p.VolumeMultiplier {
		return "", false
	}
	c := e.candles[i]
	rng := c.Range()
	if rng <= 0 || c.Body()/rng < p.MinBodyRatio {
		return "", false
	}
	switch {
	case c.Close > c.Open && c.Close > upper && x.emaFast[i] > x.emaSlow[i] && e.htfAllows(i, Long):
		return Long, true
	case c.Close < c.Open && c.Close < lower && x.emaFast[i] < x.emaSlow[i] && e.htfAllows(i, Short):
		return Short, true
	}
	return "", false
}

// bracket builds the regime-scaled ATR stop and the reward-multiple target
// shared by volatility expansion and the ensemble.
func (e *engine) bracket(i int, side Side, riskMult float64) (entrySignal, bool) {
	atr := e.x.atr[i]
	if !valid(atr) || atr <= 0 {
		return entrySignal{}, false
	}
	dist := atr * e.p.stopMultiple(e.tags[i])
	return entrySignal{
		side:       side,
		stopDist:   dist,
		targetDist: dist * e.p.RewardMultiple,
		riskMult:   riskMult,
	}, true
}
