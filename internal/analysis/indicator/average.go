package indicator

import (
	"github.com/markcheno/go-talib"
)

// EMA seeds with the first value and applies the 2/(period+1) smoothing
// factor from there on.
func EMA(values []float64, period int) []float64 {
	if period <= 0 || len(values) < period {
		return nanSeries(len(values))
	}
	out := make([]float64, len(values))
	k := 2.0 / float64(period+1)
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = (values[i]-out[i-1])*k + out[i-1]
	}
	return out
}

func SMA(values []float64, period int) []float64 {
	if period <= 0 || len(values) < period {
		return nanSeries(len(values))
	}
	return maskLeading(talib.Sma(values, period), period-1)
}

// Bands is the Bollinger envelope. Width is upper minus lower, in price units.
type Bands struct {
	Upper  []float64
	Middle []float64
	Lower  []float64
	Width  []float64
}

// Bollinger uses the population standard deviation of each window.
func Bollinger(values []float64, period int, mult float64) Bands {
	n := len(values)
	if period <= 0 || n < period {
		return Bands{Upper: nanSeries(n), Middle: nanSeries(n), Lower: nanSeries(n), Width: nanSeries(n)}
	}
	middle := SMA(values, period)
	std := maskLeading(talib.StdDev(values, period, 1.0), period-1)
	b := Bands{
		Upper:  make([]float64, n),
		Middle: middle,
		Lower:  make([]float64, n),
		Width:  make([]float64, n),
	}
	for i := range values {
		dev := std[i] * mult
		b.Upper[i] = middle[i] + dev
		b.Lower[i] = middle[i] - dev
		b.Width[i] = b.Upper[i] - b.Lower[i]
	}
	return b
}
