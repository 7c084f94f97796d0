package backtest

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"danoo/internal/market"
)

// Timeframe is a bar size usable for resampling.
type Timeframe struct {
	Key      string
	Duration time.Duration
}

var supportedTimeframes = map[string]Timeframe{
	"1m":  {Key: "1m", Duration: time.Minute},
	"5m":  {Key: "5m", Duration: 5 * time.Minute},
	"15m": {Key: "15m", Duration: 15 * time.Minute},
	"30m": {Key: "30m", Duration: 30 * time.Minute},
	"1h":  {Key: "1h", Duration: time.Hour},
	"4h":  {Key: "4h", Duration: 4 * time.Hour},
	"1d":  {Key: "1d", Duration: 24 * time.Hour},
}

func ParseTimeframe(input string) (Timeframe, error) {
	key := strings.ToLower(strings.TrimSpace(input))
	tf, ok := supportedTimeframes[key]
	if !ok {
		return Timeframe{}, fmt.Errorf("unsupported timeframe %q (want one of %s)", input, strings.Join(SupportedTimeframes(), ", "))
	}
	return tf, nil
}

func SupportedTimeframes() []string {
	keys := make([]string, 0, len(supportedTimeframes))
	for k := range supportedTimeframes {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return supportedTimeframes[keys[i]].Duration < supportedTimeframes[keys[j]].Duration
	})
	return keys
}

func alignDown(ts, step int64) int64 {
	if step <= 0 {
		return ts
	}
	rem := ts % step
	if rem < 0 {
		rem += step
	}
	return ts - rem
}

// Resample aggregates candles into tf buckets aligned to the epoch. Only
// buckets whose last candle closes at the bucket end are emitted.
func Resample(candles []market.Candle, tf Timeframe) []market.Candle {
	step := tf.Duration.Milliseconds()
	if step <= 0 || len(candles) == 0 {
		return nil
	}
	src := market.Normalize(candles)
	out := make([]market.Candle, 0, len(src)/2+1)
	var cur market.Candle
	open := false
	flush := func() {
		if open && cur.CloseTime >= cur.OpenTime+step-1 {
			cur.CloseTime = cur.OpenTime + step - 1
			out = append(out, cur)
		}
		open = false
	}
	for _, c := range src {
		bucket := alignDown(c.OpenTime, step)
		if open && bucket != cur.OpenTime {
			flush()
		}
		if !open {
			cur = market.Candle{OpenTime: bucket, Open: c.Open, High: c.High, Low: c.Low}
			open = true
		}
		if c.High > cur.High {
			cur.High = c.High
		}
		if c.Low < cur.Low {
			cur.Low = c.Low
		}
		cur.Close = c.Close
		cur.Volume += c.Volume
		cur.Trades += c.Trades
		cur.CloseTime = c.CloseTime
	}
	flush()
	return out
}
