package backtest

// scalper takes short-timeframe pullbacks in the fast EMA trend: a
// stochastic %K crossing %D from an extreme, with fixed percentage
// take-profit and stop-loss around the fill.
func (e *engine) scalper() playbook {
	p := e.p
	return playbook{
		lookback: e.scalperLookback(),
		signal: func(i int) (entrySignal, bool) {
			side, ok := e.scalperVote(i)
			if !ok {
				return entrySignal{}, false
			}
			px := e.x.Close[i]
			return entrySignal{
				side:       side,
				stopDist:   px * p.ScalpStopPct / 100,
				targetDist: px * p.ScalpTakeProfitPct / 100,
				riskMult:   1,
			}, true
		},
	}
}

func (e *engine) scalperLookback() int {
	p := e.p
	return maxInt(p.ScalpEMASlow, p.StochK+p.StochSlowK+p.StochD-2)
}

// scalperVote needs %K to cross %D on bar i: upward below the oversold
// line in an uptrend, downward above the overbought line in a downtrend.
func (e *engine) scalperVote(i int) (Side, bool) {
	if i < 1 {
		return "", false
	}
	x, p := e.x, e.p
	k, d, pk, pd := x.stochK[i], x.stochD[i], x.stochK[i-1], x.stochD[i-1]
	if !valid(k, d, pk, pd, x.scalpFast[i], x.scalpSlow[i]) {
		return "", false
	}
	switch {
	case x.scalpFast[i] > x.scalpSlow[i] && pk < pd && k > d && k < p.ScalpOversold && e.htfAllows(i, Long):
		return Long, true
	case x.scalpFast[i] < x.scalpSlow[i] && pk > pd && k < d && k > p.ScalpOverbought && e.htfAllows(i, Short):
		return Short, true
	}
	return "", false
}
