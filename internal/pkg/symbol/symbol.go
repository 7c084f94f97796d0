// Package symbol converts between "BASE/QUOTE" pairs and exchange tickers.
package symbol

import "strings"

type Symbol struct {
	Base  string
	Quote string
}

var quoteAssets = []string{"FDUSD", "USDT", "USDC", "BUSD", "TUSD", "BTC", "ETH", "BNB"}

func (s Symbol) Valid() bool {
	return s.Base != "" && s.Quote != ""
}

// String renders BASE/QUOTE, or "" for an invalid symbol.
func (s Symbol) String() string {
	if !s.Valid() {
		return ""
	}
	return s.Base + "/" + s.Quote
}

// Ticker renders BASEQUOTE, or "" for an invalid symbol.
func (s Symbol) Ticker() string {
	if !s.Valid() {
		return ""
	}
	return s.Base + s.Quote
}

// Parse accepts "BTC/USDT", "btcusdt" and settlement-suffixed forms like
// "BTC/USDT:USDT". Tickers whose quote asset is unknown give a zero Symbol.
func Parse(raw string) Symbol {
	s := clean(raw)
	if s == "" {
		return Symbol{}
	}
	if base, quote, ok := strings.Cut(s, "/"); ok {
		return Symbol{Base: strings.TrimSpace(base), Quote: strings.TrimSpace(quote)}
	}
	for _, q := range quoteAssets {
		if strings.HasSuffix(s, q) && len(s) > len(q) {
			return Symbol{Base: s[:len(s)-len(q)], Quote: q}
		}
	}
	return Symbol{}
}

// Ticker returns the exchange ticker for raw. Input that cannot be split
// is upper-cased with separators removed.
func Ticker(raw string) string {
	if t := Parse(raw).Ticker(); t != "" {
		return t
	}
	return strings.ReplaceAll(clean(raw), "/", "")
}

func clean(raw string) string {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if idx := strings.Index(s, ":"); idx >= 0 {
		s = s[:idx]
	}
	return s
}
