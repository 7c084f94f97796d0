package indicator

import (
	"github.com/markcheno/go-talib"
)

// rsNoLoss stands in for an infinite RS when the average loss is zero.
const rsNoLoss = 100.0

// RSI uses Wilder-smoothed average gain and loss. The first value sits at
// index period, averaged over the first period price changes.
func RSI(values []float64, period int) []float64 {
	n := len(values)
	out := nanSeries(n)
	if period <= 0 || n <= period {
		return out
	}
	p := float64(period)
	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		gain, loss := change(values[i-1], values[i])
		avgGain += gain
		avgLoss += loss
	}
	avgGain /= p
	avgLoss /= p
	out[period] = rsiValue(avgGain, avgLoss)
	for i := period + 1; i < n; i++ {
		gain, loss := change(values[i-1], values[i])
		avgGain = (avgGain*(p-1) + gain) / p
		avgLoss = (avgLoss*(p-1) + loss) / p
		out[i] = rsiValue(avgGain, avgLoss)
	}
	return out
}

func change(prev, cur float64) (gain, loss float64) {
	d := cur - prev
	if d > 0 {
		return d, 0
	}
	return 0, -d
}

func rsiValue(avgGain, avgLoss float64) float64 {
	rs := rsNoLoss
	if avgLoss != 0 {
		rs = avgGain / avgLoss
	}
	return 100 - 100/(1+rs)
}

// Stochastic returns slow %K and %D, both SMA-smoothed. Values are defined
// once fastK+slowK+slowD-3 bars have elapsed.
func Stochastic(high, low, close []float64, fastK, slowK, slowD int) (k, d []float64) {
	n := len(close)
	if fastK <= 0 || slowK <= 0 || slowD <= 0 || !sameLength(high, low, close) {
		return nanSeries(n), nanSeries(n)
	}
	lookback := fastK - 1 + slowK - 1 + slowD - 1
	if n <= lookback {
		return nanSeries(n), nanSeries(n)
	}
	k, d = talib.Stoch(high, low, close, fastK, slowK, talib.SMA, slowD, talib.SMA)
	return maskLeading(k, lookback), maskLeading(d, lookback)
}
