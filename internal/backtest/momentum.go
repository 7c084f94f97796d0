package backtest

import (
	"math"

	"danoo/internal/regime"
)

// momentum rides strong ADX trends in the EMA direction behind an ATR
// trailing stop that only tightens.
func (e *engine) momentum() playbook {
	p := e.p
	return playbook{
		lookback: e.momentumLookback(),
		signal: func(i int) (entrySignal, bool) {
			side, ok := e.momentumVote(i)
			if !ok {
				return entrySignal{}, false
			}
			atr := e.x.atr[i]
			if !valid(atr) || atr <= 0 {
				return entrySignal{}, false
			}
			return entrySignal{side: side, stopDist: atr * p.TrailATR, riskMult: 1, stopReason: ExitTrailingSL}, true
		},
		manage: func(i int) (string, bool) {
			if adx := e.x.dir.ADX[i]; valid(adx) && adx < p.ADXExit {
				return ExitExhaustion, true
			}
			return "", false
		},
		adjust: func(i int) {
			atr := e.x.atr[i]
			if !valid(atr) {
				return
			}
			pos := e.pos
			if pos.side == Long {
				pos.stop = math.Max(pos.stop, e.x.Close[i]-atr*p.TrailATR)
			} else {
				pos.stop = math.Min(pos.stop, e.x.Close[i]+atr*p.TrailATR)
			}
		},
	}
}

func (e *engine) momentumLookback() int {
	p := e.p
	return maxInt(p.EMASlow, 2*p.ADXPeriod, p.ATRPeriod+1)
}

// momentumVote allows longs in bull trends and shorts in bear trends;
// compression admits either side as a breakout precursor.
func (e *engine) momentumVote(i int) (Side, bool) {
	x := e.x
	adx := x.dir.ADX[i]
	if !valid(adx, x.emaFast[i], x.emaSlow[i]) || adx <= e.p.ADXEntry {
		return "", false
	}
	tag := e.tags[i]
	switch {
	case x.emaFast[i] > x.emaSlow[i] && (tag == regime.BullTrend || tag == regime.Compressed):
		return Long, true
	case x.emaFast[i] < x.emaSlow[i] && (tag == regime.BearTrend || tag == regime.Compressed):
		return Short, true
	}
	return "", false
}
