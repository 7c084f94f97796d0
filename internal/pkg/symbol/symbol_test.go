package symbol

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParse(t *testing.T) {
	cases := map[string]Symbol{
		"BTC/USDT":      {Base: "BTC", Quote: "USDT"},
		" btcusdt ":     {Base: "BTC", Quote: "USDT"},
		"ETH/USDT:USDT": {Base: "ETH", Quote: "USDT"},
		"solfdusd":      {Base: "SOL", Quote: "FDUSD"},
		"ETHBTC":        {Base: "ETH", Quote: "BTC"},
		"USDT":          {},
		"":              {},
		"XYZABC":        {},
	}
	for in, want := range cases {
		assert.Equal(t, want, Parse(in), in)
	}
}

func TestTicker(t *testing.T) {
	assert.Equal(t, "BTCUSDT", Ticker("btc/usdt"))
	assert.Equal(t, "ETHUSDT", Ticker("ETH/USDT:USDT"))
	assert.Equal(t, "XYZABC", Ticker("xyz/abc"))
	assert.Equal(t, "FOO", Ticker(" foo "))
	assert.Equal(t, "BTC/USDT", Parse("btcusdt").String())
}
