package backtest

import "danoo/internal/regime"

// meanReversion fades band extremes while the regime is ranging and exits
// at the middle band.
func (e *engine) meanReversion() playbook {
	p := e.p
	return playbook{
		lookback: e.meanRevLookback(),
		signal: func(i int) (entrySignal, bool) {
			side, ok := e.meanRevVote(i)
			if !ok {
				return entrySignal{}, false
			}
			atr := e.x.atr[i]
			if !valid(atr) || atr <= 0 {
				return entrySignal{}, false
			}
			return entrySignal{side: side, stopDist: atr * p.MRStopATR, riskMult: 1}, true
		},
		manage: func(i int) (string, bool) {
			pos := e.pos
			if e.tags[i] != regime.Ranging {
				return ExitRegime, true
			}
			mid := e.x.bands.Middle[i]
			if valid(mid) {
				c := e.x.Close[i]
				if (pos.side == Long && c >= mid) || (pos.side == Short && c <= mid) {
					return ExitMiddleBand, true
				}
			}
			if i-pos.entryIdx >= p.MaxHoldBars {
				return ExitMaxHold, true
			}
			return "", false
		},
		adjust: func(i int) {
			pos := e.pos
			if pos.armed {
				return
			}
			sign := pos.side.sign()
			if (e.x.Close[i]-pos.entry)*sign < pos.initialRisk {
				return
			}
			if (pos.entry-pos.stop)*sign > 0 {
				pos.stop = pos.entry
				pos.stopReason = ExitBreakevenSL
			}
			pos.armed = true
		},
	}
}

func (e *engine) meanRevLookback() int {
	p := e.p
	return maxInt(p.BBPeriod, p.RSIPeriod+1, p.ATRPeriod+1, 2)
}

func (e *engine) meanRevVote(i int) (Side, bool) {
	if i < 1 || e.tags[i] != regime.Ranging {
		return "", false
	}
	x, p := e.x, e.p
	upper, lower, mid := x.bands.Upper[i], x.bands.Lower[i], x.bands.Middle[i]
	if !valid(upper, lower, mid, x.rsi[i]) || mid <= 0 {
		return "", false
	}
	widthPct := (upper - lower) / mid * 100
	if widthPct < p.MinWidthPct || widthPct > p.MaxWidthPct {
		return "", false
	}
	if x.Volume[i] >= x.Volume[i-1] {
		return "", false
	}
	c := x.Close[i]
	switch {
	case c <= lower && x.rsi[i] <= p.RSIOversold:
		return Long, true
	case c >= upper && x.rsi[i] >= p.RSIOverbought:
		return Short, true
	}
	return "", false
}
