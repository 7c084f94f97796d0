package binance

import (
	"strings"
	"time"

	"danoo/internal/pkg/symbol"
)

const (
	LiveRESTBaseURL    = "https://fapi.binance.com"
	SandboxRESTBaseURL = "https://testnet.binancefuture.com"
	LiveStreamBaseURL  = "wss://fstream.binance.com"
	SandboxStreamURL   = "wss://stream.binancefuture.com"
)

type Config struct {
	RESTBaseURL   string
	StreamBaseURL string
	HTTPTimeout   time.Duration

	// RateLimit caps REST calls per second; zero disables limiting.
	RateLimit float64

	ProxyEnabled bool
	RESTProxyURL string
	WSProxyURL   string
}

func (c *Config) withDefaults() Config {
	out := *c
	out.RESTBaseURL = strings.TrimRight(strings.TrimSpace(out.RESTBaseURL), "/")
	if out.RESTBaseURL == "" {
		out.RESTBaseURL = LiveRESTBaseURL
	}
	out.StreamBaseURL = strings.TrimRight(strings.TrimSpace(out.StreamBaseURL), "/")
	if out.StreamBaseURL == "" {
		out.StreamBaseURL = LiveStreamBaseURL
	}
	if out.HTTPTimeout <= 0 {
		out.HTTPTimeout = 15 * time.Second
	}
	if out.RateLimit < 0 {
		out.RateLimit = 0
	}
	out.RESTProxyURL = strings.TrimSpace(out.RESTProxyURL)
	out.WSProxyURL = strings.TrimSpace(out.WSProxyURL)
	return out
}

// Credentials authenticate order and account calls. BaseURL overrides
// the mode's default REST endpoint.
type Credentials struct {
	APIKey    string
	APISecret string
	BaseURL   string
}

func (c Credentials) Empty() bool {
	return strings.TrimSpace(c.APIKey) == "" || strings.TrimSpace(c.APISecret) == ""
}

// exchangeSymbol turns "BTC/USDT" or "btcusdt" into "BTCUSDT".
func exchangeSymbol(s string) string {
	return symbol.Ticker(s)
}
