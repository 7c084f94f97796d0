package regime

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"danoo/internal/market"
)

func series(n int, price func(i int) float64, spread float64) []market.Candle {
	out := make([]market.Candle, n)
	for i := 0; i < n; i++ {
		p := price(i)
		out[i] = market.Candle{
			OpenTime:  int64(i) * 60_000,
			CloseTime: int64(i)*60_000 + 59_999,
			Open:      p,
			High:      p + spread,
			Low:       p - spread,
			Close:     p,
			Volume:    100,
		}
	}
	return out
}

func TestClassifyShortHistoryIsUnknown(t *testing.T) {
	labels := NewEngine().Classify(series(40, func(i int) float64 { return 100 + float64(i) }, 0.5))
	require.Len(t, labels, 40)
	for _, l := range labels {
		assert.Equal(t, Unknown, l.Tag)
	}
}

func TestClassifyTrends(t *testing.T) {
	e := NewEngine()
	e.CompressedBelow = 0

	up := e.Classify(series(120, func(i int) float64 { return 100 * math.Pow(1.003, float64(i)) }, 0.2))
	assert.Equal(t, BullTrend, up[len(up)-1].Tag)

	down := e.Classify(series(120, func(i int) float64 { return 200 * math.Pow(0.997, float64(i)) }, 0.2))
	assert.Equal(t, BearTrend, down[len(down)-1].Tag)

	flat := e.Classify(series(120, func(i int) float64 { return 100 + 0.3*math.Sin(float64(i)) }, 0.2))
	assert.Equal(t, Ranging, flat[len(flat)-1].Tag)
}

func TestClassifyHighVolatility(t *testing.T) {
	e := NewEngine()
	e.CompressedBelow = 0
	labels := e.Classify(series(80, func(i int) float64 { return 100 }, 4))
	assert.Equal(t, HighVolatility, labels[79].Tag)
}

func TestMapLookup(t *testing.T) {
	m := ToMap([]Label{{Timestamp: 1, Tag: Ranging}, {Timestamp: 2, Tag: Compressed}})
	assert.Equal(t, Ranging, m.At(1))
	assert.Equal(t, Unknown, m.At(3))
	assert.True(t, Compressed.Valid())
	assert.False(t, Tag("sideways").Valid())
	assert.True(t, BearTrend.Trending())
	assert.False(t, Ranging.Trending())
}
