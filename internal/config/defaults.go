package config

import (
	"path/filepath"
	"strings"

	"danoo/internal/pkg/symbol"
)

const (
	defaultAppEnv          = "dev"
	defaultAppLogLevel     = "info"
	defaultAppLogFormat    = "text"
	defaultAppDataDir      = "data"
	defaultSymbol          = "BTCUSDT"
	defaultInterval        = "15m"
	defaultBufferSize      = 500
	defaultHTTPTimeout     = 15
	defaultHeartbeat       = 15
	defaultReconnectDelay  = 5
	defaultEventBuffer     = 64
	defaultExecMode        = "simulated"
	defaultInitialBalance  = 10_000
	defaultCommissionRate  = 0.0004
	defaultSlippageRate    = 0.0005
	defaultCacheTTLMs      = 2000
	defaultBreakerFailures = 5
	defaultBreakerCooldown = 30
	defaultRateLimit       = 10
	defaultLeverage        = 5
	defaultMaxConcurrent   = 4
	defaultHistoryLimit    = 1500
	defaultMaxRisk         = 0.01
	defaultMaxLeverage     = 20
	defaultMinOrderSize    = 10
	defaultQuantityStep    = 0.001
	defaultMaxPriceGap     = 0.05
)

var defaultStrategies = []string{"volatility_expansion", "mean_reversion", "momentum", "ensemble"}

func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Market.applyDefaults(keys)
	c.Execution.applyDefaults(keys)
	c.Backtest.applyDefaults(keys, c.App.DataDir)
	c.Risk.applyDefaults(keys)
}

func (a *AppConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.log_format", &a.LogFormat, defaultAppLogFormat),
		stringFieldDefault("app.data_dir", &a.DataDir, defaultAppDataDir),
	)
}

func (m *MarketConfig) applyDefaults(keys keySet) {
	m.Symbol = symbol.Ticker(m.Symbol)
	applyFieldDefaults(keys,
		stringFieldDefault("market.symbol", &m.Symbol, defaultSymbol),
		stringFieldDefault("market.interval", &m.Interval, defaultInterval),
		intFieldDefault("market.buffer_size", &m.BufferSize, defaultBufferSize),
		intFieldDefault("market.http_timeout_seconds", &m.HTTPTimeoutSeconds, defaultHTTPTimeout),
		intFieldDefault("market.heartbeat_interval_seconds", &m.HeartbeatIntervalSeconds, defaultHeartbeat),
		intFieldDefault("market.reconnect_delay_seconds", &m.ReconnectDelaySeconds, defaultReconnectDelay),
		intFieldDefault("market.event_buffer", &m.EventBuffer, defaultEventBuffer),
	)
	if m.HeartbeatTimeoutSeconds <= 0 {
		m.HeartbeatTimeoutSeconds = 3 * m.HeartbeatIntervalSeconds
	}
}

func (e *ExecutionConfig) applyDefaults(keys keySet) {
	e.Mode = strings.ToLower(strings.TrimSpace(e.Mode))
	applyFieldDefaults(keys,
		stringFieldDefault("execution.mode", &e.Mode, defaultExecMode),
		floatFieldDefault("execution.initial_balance", &e.InitialBalance, defaultInitialBalance),
		floatFieldDefault("execution.commission_rate", &e.CommissionRate, defaultCommissionRate),
		intFieldDefault("execution.cache_ttl_ms", &e.CacheTTLMs, defaultCacheTTLMs),
		intFieldDefault("execution.breaker_threshold", &e.BreakerThreshold, defaultBreakerFailures),
		intFieldDefault("execution.breaker_cooldown_seconds", &e.BreakerCooldownSeconds, defaultBreakerCooldown),
		floatFieldDefault("execution.rate_limit_per_sec", &e.RateLimitPerSec, defaultRateLimit),
	)
}

func (b *BacktestConfig) applyDefaults(keys keySet, dataDir string) {
	if len(b.Strategies) == 0 && len(b.Presets) == 0 && !keys.isSet("backtest.strategies") {
		b.Strategies = append([]string(nil), defaultStrategies...)
	}
	applyFieldDefaults(keys,
		floatFieldDefault("backtest.leverage", &b.Leverage, defaultLeverage),
		floatFieldDefault("backtest.initial_balance", &b.InitialBalance, defaultInitialBalance),
		floatFieldDefault("backtest.commission_rate", &b.CommissionRate, defaultCommissionRate),
		floatFieldDefault("backtest.slippage_rate", &b.SlippageRate, defaultSlippageRate),
		stringFieldDefault("backtest.results_path", &b.ResultsPath, filepath.Join(dataDir, "backtests.db")),
		stringFieldDefault("backtest.candles_dir", &b.CandlesDir, filepath.Join(dataDir, "candles")),
		intFieldDefault("backtest.max_concurrent", &b.MaxConcurrent, defaultMaxConcurrent),
		intFieldDefault("backtest.history_limit", &b.HistoryLimit, defaultHistoryLimit),
	)
}

func (r *RiskConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		floatFieldDefault("risk.max_risk_per_trade", &r.MaxRiskPerTrade, defaultMaxRisk),
		floatFieldDefault("risk.max_leverage", &r.MaxLeverage, defaultMaxLeverage),
		floatFieldDefault("risk.min_order_size", &r.MinOrderSize, defaultMinOrderSize),
		floatFieldDefault("risk.quantity_step", &r.QuantityStep, defaultQuantityStep),
		floatFieldDefault("risk.max_price_gap_pct", &r.MaxPriceGapPct, defaultMaxPriceGap),
	)
}

type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}

// applyFieldDefaults skips keys present in the file, so an explicit zero
// survives.
func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key:   key,
		need:  func() bool { return strings.TrimSpace(*target) == "" },
		apply: func() { *target = def },
	}
}

func intFieldDefault(key string, target *int, def int) fieldDefault {
	return fieldDefault{
		key:   key,
		need:  func() bool { return *target <= 0 },
		apply: func() { *target = def },
	}
}

func floatFieldDefault(key string, target *float64, def float64) fieldDefault {
	return fieldDefault{
		key:   key,
		need:  func() bool { return *target == 0 },
		apply: func() { *target = def },
	}
}
