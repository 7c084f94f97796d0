package binance

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"danoo/internal/market"
)

// DecodeKline parses a kline frame from a raw or combined stream. Frames
// without a kline payload (subscription replies, other event types) are
// reported with ok=false.
func DecodeKline(raw []byte) (market.KlineMessage, bool, error) {
	if !gjson.ValidBytes(raw) {
		return market.KlineMessage{}, false, fmt.Errorf("invalid json frame")
	}
	root := gjson.ParseBytes(raw)
	if data := root.Get("data"); data.Exists() && data.IsObject() {
		root = data
	}
	if root.Get("e").String() != "kline" {
		return market.KlineMessage{}, false, nil
	}
	k := root.Get("k")
	if !k.IsObject() {
		return market.KlineMessage{}, false, fmt.Errorf("kline event without payload")
	}
	symbol := strings.ToUpper(strings.TrimSpace(k.Get("s").String()))
	if symbol == "" {
		symbol = strings.ToUpper(strings.TrimSpace(root.Get("s").String()))
	}
	interval := strings.TrimSpace(k.Get("i").String())
	if symbol == "" || interval == "" {
		return market.KlineMessage{}, false, fmt.Errorf("kline event missing symbol or interval")
	}
	c := market.Candle{
		OpenTime:  k.Get("t").Int(),
		CloseTime: k.Get("T").Int(),
		Open:      k.Get("o").Float(),
		High:      k.Get("h").Float(),
		Low:       k.Get("l").Float(),
		Close:     k.Get("c").Float(),
		Volume:    k.Get("v").Float(),
		Trades:    k.Get("n").Int(),
	}
	if err := c.Validate(); err != nil {
		return market.KlineMessage{}, false, err
	}
	return market.KlineMessage{
		Symbol:    symbol,
		Interval:  interval,
		Candle:    c,
		Closed:    k.Get("x").Bool(),
		EventTime: root.Get("E").Int(),
	}, true, nil
}
