package market

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseIntervalDuration(t *testing.T) {
	cases := []struct {
		in   string
		want time.Duration
		ok   bool
	}{
		{"1m", time.Minute, true},
		{" 15M ", 15 * 30 * 24 * time.Hour, true},
		{"1M", 30 * 24 * time.Hour, true},
		{"4H", 4 * time.Hour, true},
		{"1d", 24 * time.Hour, true},
		{"1w", 7 * 24 * time.Hour, true},
		{"", 0, false},
		{"m", 0, false},
		{"0h", 0, false},
		{"3x", 0, false},
	}
	for _, tc := range cases {
		got, ok := ParseIntervalDuration(tc.in)
		assert.Equal(t, tc.ok, ok, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}
}

func TestMonthIsNotMinute(t *testing.T) {
	month, ok := ParseIntervalDuration("1M")
	assert.True(t, ok)
	minute, ok := ParseIntervalDuration("1m")
	assert.True(t, ok)
	assert.NotEqual(t, minute, month)

	assert.Equal(t, "1M", NormalizeInterval(" 1M"))
	assert.Equal(t, "4h", NormalizeInterval("4H"))
	assert.Equal(t, "1m", NormalizeInterval("1m"))
}
