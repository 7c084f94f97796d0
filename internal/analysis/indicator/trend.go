package indicator

import "math"

// TrueRange uses high-low for the first bar, which has no previous close.
func TrueRange(high, low, close []float64) []float64 {
	if !sameLength(high, low, close) || len(close) == 0 {
		return nil
	}
	tr := make([]float64, len(close))
	tr[0] = high[0] - low[0]
	for i := 1; i < len(close); i++ {
		prev := close[i-1]
		tr[i] = math.Max(high[i]-low[i], math.Max(math.Abs(high[i]-prev), math.Abs(low[i]-prev)))
	}
	return tr
}

// ATR places the simple mean of the first period true ranges at index
// period-1 and Wilder-smooths from there.
func ATR(high, low, close []float64, period int) []float64 {
	n := len(close)
	if period <= 0 || n < period || !sameLength(high, low, close) {
		return nanSeries(n)
	}
	tr := TrueRange(high, low, close)
	out := nanSeries(n)
	sum := 0.0
	for i := 0; i < period; i++ {
		sum += tr[i]
	}
	out[period-1] = sum / float64(period)
	p := float64(period)
	for i := period; i < n; i++ {
		out[i] = (out[i-1]*(p-1) + tr[i]) / p
	}
	return out
}

// Directional holds ADX and the two directional indicators.
type Directional struct {
	ADX     []float64
	PlusDI  []float64
	MinusDI []float64
}

// ADX follows Wilder: +DM/-DM and TR are averaged over bars 1..period,
// the directional indicators are defined from index period and ADX, the
// Wilder average of DX, from index 2*period-1.
func ADX(high, low, close []float64, period int) Directional {
	n := len(close)
	out := Directional{ADX: nanSeries(n), PlusDI: nanSeries(n), MinusDI: nanSeries(n)}
	if period <= 0 || n <= period || !sameLength(high, low, close) {
		return out
	}
	tr := TrueRange(high, low, close)
	plusDM := make([]float64, n)
	minusDM := make([]float64, n)
	for i := 1; i < n; i++ {
		up := high[i] - high[i-1]
		down := low[i-1] - low[i]
		if up > down && up > 0 {
			plusDM[i] = up
		}
		if down > up && down > 0 {
			minusDM[i] = down
		}
	}

	p := float64(period)
	var sTR, sPlus, sMinus float64
	for i := 1; i <= period; i++ {
		sTR += tr[i]
		sPlus += plusDM[i]
		sMinus += minusDM[i]
	}
	sTR /= p
	sPlus /= p
	sMinus /= p

	dx := nanSeries(n)
	fill := func(i int) {
		if sTR != 0 {
			out.PlusDI[i] = 100 * sPlus / sTR
			out.MinusDI[i] = 100 * sMinus / sTR
		} else {
			out.PlusDI[i], out.MinusDI[i] = 0, 0
		}
		sum := out.PlusDI[i] + out.MinusDI[i]
		if sum == 0 {
			dx[i] = 0
			return
		}
		dx[i] = 100 * math.Abs(out.PlusDI[i]-out.MinusDI[i]) / sum
	}
	fill(period)
	for i := period + 1; i < n; i++ {
		sTR = (sTR*(p-1) + tr[i]) / p
		sPlus = (sPlus*(p-1) + plusDM[i]) / p
		sMinus = (sMinus*(p-1) + minusDM[i]) / p
		fill(i)
	}

	first := 2*period - 1
	if n <= first {
		return out
	}
	sum := 0.0
	for i := period; i <= first; i++ {
		sum += dx[i]
	}
	out.ADX[first] = sum / p
	for i := first + 1; i < n; i++ {
		out.ADX[i] = (out.ADX[i-1]*(p-1) + dx[i]) / p
	}
	return out
}
