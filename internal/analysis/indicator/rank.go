package indicator

import "math"

// PercentRank is the share of valid values in window strictly below x,
// scaled to 0-100. It is NaN for an invalid x or a window without any
// valid value.
func PercentRank(window []float64, x float64) float64 {
	if !Valid(x) {
		return math.NaN()
	}
	var total, below int
	for _, v := range window {
		if !Valid(v) {
			continue
		}
		total++
		if v < x {
			below++
		}
	}
	if total == 0 {
		return math.NaN()
	}
	return float64(below) / float64(total) * 100
}

// PercentRankSeries ranks each value against the trailing lookback values
// ending at (and including) it.
func PercentRankSeries(values []float64, lookback int) []float64 {
	n := len(values)
	out := nanSeries(n)
	if lookback <= 0 || n < lookback {
		return out
	}
	for i := lookback - 1; i < n; i++ {
		out[i] = PercentRank(values[i-lookback+1:i+1], values[i])
	}
	return out
}
