package market

import (
	"fmt"
	"sort"
)

// Candle times are epoch milliseconds.
type Candle struct {
	OpenTime  int64   `json:"open_time"`
	CloseTime int64   `json:"close_time"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
	Trades    int64   `json:"trades,omitempty"`
}

func (c Candle) Validate() error {
	if c.OpenTime >= c.CloseTime {
		return fmt.Errorf("candle open_time %d not before close_time %d", c.OpenTime, c.CloseTime)
	}
	if c.High < c.Low {
		return fmt.Errorf("candle %d high %.8f below low %.8f", c.OpenTime, c.High, c.Low)
	}
	return nil
}

// Body is |close-open|; Range is high-low.
func (c Candle) Body() float64 {
	if c.Close >= c.Open {
		return c.Close - c.Open
	}
	return c.Open - c.Close
}

func (c Candle) Range() float64 {
	return c.High - c.Low
}

// Normalize returns candles sorted by open time with duplicate open times
// removed (the later element wins). The input is not modified.
func Normalize(candles []Candle) []Candle {
	out := make([]Candle, len(candles))
	copy(out, candles)
	sort.SliceStable(out, func(i, j int) bool { return out[i].OpenTime < out[j].OpenTime })
	dedup := out[:0]
	for _, c := range out {
		if n := len(dedup); n > 0 && dedup[n-1].OpenTime == c.OpenTime {
			dedup[n-1] = c
			continue
		}
		dedup = append(dedup, c)
	}
	return dedup
}

// Ordered reports whether open times strictly increase.
func Ordered(candles []Candle) bool {
	for i := 1; i < len(candles); i++ {
		if candles[i].OpenTime <= candles[i-1].OpenTime {
			return false
		}
	}
	return true
}
