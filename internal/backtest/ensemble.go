package backtest

// ensemble sums weighted votes from the other three strategies and trades
// with the volatility expansion bracket, sized by a regime multiplier.
func (e *engine) ensemble() playbook {
	p := e.p
	return playbook{
		lookback: maxInt(e.volExpLookback(), e.meanRevLookback(), e.momentumLookback()),
		cooldown: p.EnsembleCooldown,
		signal: func(i int) (entrySignal, bool) {
			side, ok := e.netVote(i)
			if !ok || !e.htfAllows(i, side) {
				return entrySignal{}, false
			}
			return e.bracket(i, side, p.riskMultiple(e.tags[i]))
		},
	}
}

func (e *engine) netVote(i int) (Side, bool) {
	net := 0
	if side, ok := e.volExpVote(i); ok {
		net += int(side.sign()) * e.p.VolExpWeight
	}
	if side, ok := e.meanRevVote(i); ok {
		net += int(side.sign())
	}
	if side, ok := e.momentumVote(i); ok {
		net += int(side.sign())
	}
	switch {
	case net >= e.p.MinNetVote:
		return Long, true
	case net <= -e.p.MinNetVote:
		return Short, true
	}
	return "", false
}
