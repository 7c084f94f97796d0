package config

import (
	"strings"
	"time"
)

// Config is the root of danoo's configuration file.
type Config struct {
	App       AppConfig       `toml:"app"`
	Market    MarketConfig    `toml:"market"`
	Execution ExecutionConfig `toml:"execution"`
	Backtest  BacktestConfig  `toml:"backtest"`
	Risk      RiskConfig      `toml:"risk"`
}

type AppConfig struct {
	Env         string `toml:"env"`
	LogLevel    string `toml:"log_level"`
	LogFormat   string `toml:"log_format"`
	LogPath     string `toml:"log_path"`
	MetricsAddr string `toml:"metrics_addr"`
	DataDir     string `toml:"data_dir"`
}

type MarketConfig struct {
	Symbol                   string `toml:"symbol"`
	Interval                 string `toml:"interval"`
	HigherInterval           string `toml:"higher_interval"`
	BufferSize               int    `toml:"buffer_size"`
	Sandbox                  bool   `toml:"sandbox"`
	RESTBaseURL              string `toml:"rest_base_url"`
	StreamBaseURL            string `toml:"stream_base_url"`
	ProxyURL                 string `toml:"proxy_url"`
	HTTPTimeoutSeconds       int    `toml:"http_timeout_seconds"`
	HeartbeatIntervalSeconds int    `toml:"heartbeat_interval_seconds"`
	HeartbeatTimeoutSeconds  int    `toml:"heartbeat_timeout_seconds"`
	ReconnectDelaySeconds    int    `toml:"reconnect_delay_seconds"`
	EventBuffer              int    `toml:"event_buffer"`
}

func (m MarketConfig) HTTPTimeout() time.Duration {
	return time.Duration(m.HTTPTimeoutSeconds) * time.Second
}

func (m MarketConfig) HeartbeatInterval() time.Duration {
	return time.Duration(m.HeartbeatIntervalSeconds) * time.Second
}

func (m MarketConfig) HeartbeatTimeout() time.Duration {
	return time.Duration(m.HeartbeatTimeoutSeconds) * time.Second
}

func (m MarketConfig) ReconnectDelay() time.Duration {
	return time.Duration(m.ReconnectDelaySeconds) * time.Second
}

type VenueConfig struct {
	APIKey    string `toml:"api_key"`
	APISecret string `toml:"api_secret"`
	BaseURL   string `toml:"base_url"`
}

type ExecutionConfig struct {
	Mode                   string      `toml:"mode"`
	InitialBalance         float64     `toml:"initial_balance"`
	CommissionRate         float64     `toml:"commission_rate"`
	CacheTTLMs             int         `toml:"cache_ttl_ms"`
	BreakerThreshold       int         `toml:"breaker_threshold"`
	BreakerCooldownSeconds int         `toml:"breaker_cooldown_seconds"`
	RateLimitPerSec        float64     `toml:"rate_limit_per_sec"`
	Sandbox                VenueConfig `toml:"sandbox"`
	Live                   VenueConfig `toml:"live"`
}

func (e ExecutionConfig) CacheTTL() time.Duration {
	return time.Duration(e.CacheTTLMs) * time.Millisecond
}

func (e ExecutionConfig) BreakerCooldown() time.Duration {
	return time.Duration(e.BreakerCooldownSeconds) * time.Second
}

type BacktestConfig struct {
	Strategies     []string `toml:"strategies"`
	Presets        []string `toml:"presets"`
	Leverage       float64  `toml:"leverage"`
	InitialBalance float64  `toml:"initial_balance"`
	CommissionRate float64  `toml:"commission_rate"`
	SlippageRate   float64  `toml:"slippage_rate"`
	RegimeFilter   string   `toml:"regime_filter"`
	PresetsPath    string   `toml:"presets_path"`
	ResultsPath    string   `toml:"results_path"`
	CandlesDir     string   `toml:"candles_dir"`
	ReportPath     string   `toml:"report_path"`
	MaxConcurrent  int      `toml:"max_concurrent"`
	HistoryLimit   int      `toml:"history_limit"`
}

type RiskConfig struct {
	MaxRiskPerTrade float64 `toml:"max_risk_per_trade"`
	MaxLeverage     float64 `toml:"max_leverage"`
	MinOrderSize    float64 `toml:"min_order_size"`
	QuantityStep    float64 `toml:"quantity_step"`
	// MaxPriceGapPct rejects priced orders this far (as a fraction) from
	// the market. Zero disables the check.
	MaxPriceGapPct  float64 `toml:"max_price_gap_pct"`
}

// keySet tracks key paths explicitly present in the loaded files.
type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	_, ok := k[strings.ToLower(strings.TrimSpace(path))]
	return ok
}
