// Package regime labels every candle with a market-condition tag.
package regime

import (
	"danoo/internal/analysis/indicator"
	"danoo/internal/market"
)

type Tag string

const (
	BullTrend      Tag = "bull_trend"
	BearTrend      Tag = "bear_trend"
	Ranging        Tag = "ranging"
	Compressed     Tag = "compressed"
	HighVolatility Tag = "high_volatility"
	Unknown        Tag = "unknown"
)

var tags = []Tag{BullTrend, BearTrend, Ranging, Compressed, HighVolatility, Unknown}

// Tags returns the closed tag set.
func Tags() []Tag {
	out := make([]Tag, len(tags))
	copy(out, tags)
	return out
}

func (t Tag) Valid() bool {
	for _, v := range tags {
		if v == t {
			return true
		}
	}
	return false
}

// Trending reports whether t is a directional trend tag.
func (t Tag) Trending() bool {
	return t == BullTrend || t == BearTrend
}

// Label ties a tag to a candle open time (epoch ms).
type Label struct {
	Timestamp int64 `json:"timestamp"`
	Tag       Tag   `json:"regime"`
}

type Classifier interface {
	Classify(candles []market.Candle) []Label
}

// Map indexes labels by timestamp.
type Map map[int64]Tag

func ToMap(labels []Label) Map {
	m := make(Map, len(labels))
	for _, l := range labels {
		m[l.Timestamp] = l.Tag
	}
	return m
}

// At returns the tag for ts, or Unknown.
func (m Map) At(ts int64) Tag {
	if t, ok := m[ts]; ok {
		return t
	}
	return Unknown
}

// Engine is the default classifier: EMA trend, Bollinger width percentile
// for compression and ATR relative to price for volatility.
type Engine struct {
	MinBars           int
	EMAFast           int
	EMASlow           int
	TrendBuffer       float64
	BBPeriod          int
	BBStdDev          float64
	WidthLookback     int
	CompressedBelow   float64
	ATRPeriod         int
	HighVolATRPercent float64
}

func NewEngine() *Engine {
	return &Engine{
		MinBars:           50,
		EMAFast:           20,
		EMASlow:           50,
		TrendBuffer:       0.002,
		BBPeriod:          20,
		BBStdDev:          2,
		WidthLookback:     100,
		CompressedBelow:   15,
		ATRPeriod:         14,
		HighVolATRPercent: 3,
	}
}

// Classify tags every candle in a single pass. Each tag only depends on
// candles up to and including its own.
func (e *Engine) Classify(candles []market.Candle) []Label {
	s := indicator.FromCandles(candles)
	fast := indicator.EMA(s.Close, e.EMAFast)
	slow := indicator.EMA(s.Close, e.EMASlow)
	width := indicator.Bollinger(s.Close, e.BBPeriod, e.BBStdDev).Width
	atr := indicator.ATR(s.High, s.Low, s.Close, e.ATRPeriod)

	labels := make([]Label, len(candles))
	for i, c := range candles {
		labels[i] = Label{Timestamp: c.OpenTime, Tag: e.classifyAt(i, s.Close, fast, slow, width, atr)}
	}
	return labels
}

func (e *Engine) classifyAt(i int, close, fast, slow, width, atr []float64) Tag {
	if i+1 < e.MinBars {
		return Unknown
	}
	start := i - e.WidthLookback + 1
	if start < 0 {
		start = 0
	}
	if pct := indicator.PercentRank(width[start:i+1], width[i]); indicator.Valid(pct) && pct < e.CompressedBelow {
		return Compressed
	}
	if indicator.Valid(atr[i]) && close[i] != 0 && atr[i]/close[i]*100 > e.HighVolATRPercent {
		return HighVolatility
	}
	if !indicator.Valid(fast[i]) || !indicator.Valid(slow[i]) {
		return Unknown
	}
	switch {
	case fast[i] > slow[i]*(1+e.TrendBuffer):
		return BullTrend
	case fast[i] < slow[i]*(1-e.TrendBuffer):
		return BearTrend
	default:
		return Ranging
	}
}
