// Package indicator implements the technical indicators used by the
// strategies and the regime engine. Every function is pure, returns a series
// aligned index-for-index with its input and marks undefined leading values
// with NaN. Inputs shorter than the lookback yield an all-NaN series.
package indicator

import (
	"math"

	"danoo/internal/market"
)

// Valid reports whether v is a usable indicator value.
func Valid(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Last returns the final element of series, or NaN when it is empty.
func Last(series []float64) float64 {
	if len(series) == 0 {
		return math.NaN()
	}
	return series[len(series)-1]
}

// Series splits candles into the column slices the indicator functions take.
type Series struct {
	Open   []float64
	High   []float64
	Low    []float64
	Close  []float64
	Volume []float64
}

func FromCandles(candles []market.Candle) Series {
	s := Series{
		Open:   make([]float64, len(candles)),
		High:   make([]float64, len(candles)),
		Low:    make([]float64, len(candles)),
		Close:  make([]float64, len(candles)),
		Volume: make([]float64, len(candles)),
	}
	for i, c := range candles {
		s.Open[i] = c.Open
		s.High[i] = c.High
		s.Low[i] = c.Low
		s.Close[i] = c.Close
		s.Volume[i] = c.Volume
	}
	return s
}

func nanSeries(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// maskLeading replaces the first n values of a talib output (which pads
// with zeros) by NaN.
func maskLeading(series []float64, n int) []float64 {
	for i := 0; i < n && i < len(series); i++ {
		series[i] = math.NaN()
	}
	return series
}

func sameLength(a, b, c []float64) bool {
	return len(a) == len(b) && len(b) == len(c)
}
