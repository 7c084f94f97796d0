package backtest

import "math"

// ProfitFactorCap stands in for an infinite profit factor.
const ProfitFactorCap = 999.0

const annualization = 252

// ComputeMetrics summarises trades in order. Drawdown follows a balance
// curve seeded at initial and updated trade by trade. An empty list gives
// a zero record.
func ComputeMetrics(trades []Trade, initial float64) Metrics {
	var m Metrics
	if len(trades) == 0 {
		return m
	}
	var grossWin, grossLoss float64
	returns := make([]float64, 0, len(trades))
	balance, peak := initial, initial
	for _, t := range trades {
		m.TotalTrades++
		m.TotalPnL += t.PnL
		returns = append(returns, t.PnLPct)
		if t.PnL > 0 {
			m.Wins++
			grossWin += t.PnL
			if t.PnL > m.LargestWin {
				m.LargestWin = t.PnL
			}
		} else {
			m.Losses++
			grossLoss -= t.PnL
			if t.PnL < m.LargestLoss {
				m.LargestLoss = t.PnL
			}
		}
		balance += t.PnL
		if balance > peak {
			peak = balance
		}
		if peak > 0 {
			if dd := (peak - balance) / peak * 100; dd > m.MaxDrawdown {
				m.MaxDrawdown = dd
			}
		}
	}
	m.WinRate = float64(m.Wins) / float64(m.TotalTrades) * 100
	if initial > 0 {
		m.ReturnPct = m.TotalPnL / initial * 100
	}
	if m.Wins > 0 {
		m.AvgWin = grossWin / float64(m.Wins)
	}
	if m.Losses > 0 {
		m.AvgLoss = -grossLoss / float64(m.Losses)
	}
	switch {
	case grossLoss > 0:
		m.ProfitFactor = grossWin / grossLoss
	case grossWin > 0:
		m.ProfitFactor = ProfitFactorCap
	}
	m.Sharpe = sharpe(returns)
	return m
}

// sharpe uses the population standard deviation of per-trade returns.
func sharpe(returns []float64) float64 {
	n := float64(len(returns))
	if n == 0 {
		return 0
	}
	var sum float64
	for _, r := range returns {
		sum += r
	}
	mean := sum / n
	var ss float64
	for _, r := range returns {
		ss += (r - mean) * (r - mean)
	}
	std := math.Sqrt(ss / n)
	if std == 0 {
		return 0
	}
	return mean / std * math.Sqrt(annualization)
}
