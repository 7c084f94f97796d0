package market

import (
	"strconv"
	"strings"
	"time"
)

// monthDays is the calendar approximation used for "1M" bars.
const monthDays = 30

// NormalizeInterval lowercases an interval label except for the month unit,
// since the exchange uses "1m" for a minute and "1M" for a month.
func NormalizeInterval(interval string) string {
	interval = strings.TrimSpace(interval)
	if strings.HasSuffix(interval, "M") {
		return interval
	}
	return strings.ToLower(interval)
}

// ParseIntervalDuration parses "15m", "1h", "4h", "1d", "1w", "1M" into a
// duration. Returns (0, false) on invalid input.
func ParseIntervalDuration(interval string) (time.Duration, bool) {
	interval = NormalizeInterval(interval)
	if interval == "" {
		return 0, false
	}
	unit := interval[len(interval)-1]
	numStr := strings.TrimSpace(interval[:len(interval)-1])
	if numStr == "" {
		return 0, false
	}
	n, err := strconv.Atoi(numStr)
	if err != nil || n <= 0 {
		return 0, false
	}
	switch unit {
	case 'm':
		return time.Duration(n) * time.Minute, true
	case 'h':
		return time.Duration(n) * time.Hour, true
	case 'd':
		return time.Duration(n) * 24 * time.Hour, true
	case 'w':
		return time.Duration(n) * 7 * 24 * time.Hour, true
	case 'M':
		return time.Duration(n) * monthDays * 24 * time.Hour, true
	default:
		return 0, false
	}
}

// DropUnclosed drops the last candle when its close time is still in the
// future. Exchanges return the in-progress candle as the tail of a history
// request.
func DropUnclosed(candles []Candle, now time.Time) []Candle {
	if len(candles) == 0 {
		return candles
	}
	last := candles[len(candles)-1]
	if last.CloseTime <= 0 || now.UnixMilli() <= last.CloseTime {
		return candles[:len(candles)-1]
	}
	return candles
}

// StreamName is the exchange channel name, e.g. "btcusdt@kline_15m".
func StreamName(symbol, interval string) string {
	return strings.ToLower(strings.TrimSpace(symbol)) + "@kline_" + strings.TrimSpace(interval)
}
