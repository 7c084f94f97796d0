package config

import (
	"errors"
	"fmt"
	"strings"

	"danoo/internal/backtest"
	"danoo/internal/executor"
	"danoo/internal/market"
	"danoo/internal/pkg/symbol"
	"danoo/internal/regime"
)

var ErrInvalid = errors.New("invalid config")

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

func validate(c *Config) error {
	if err := c.Market.validate(); err != nil {
		return err
	}
	if err := c.Execution.validate(); err != nil {
		return err
	}
	if err := c.Backtest.validate(); err != nil {
		return err
	}
	return c.Risk.validate()
}

func (m *MarketConfig) validate() error {
	if !symbol.Parse(m.Symbol).Valid() {
		return invalid("market.symbol %q has no known quote asset", m.Symbol)
	}
	base, ok := market.ParseIntervalDuration(m.Interval)
	if !ok {
		return invalid("market.interval %q is not a known interval", m.Interval)
	}
	if m.HigherInterval != "" {
		higher, ok := market.ParseIntervalDuration(m.HigherInterval)
		if !ok {
			return invalid("market.higher_interval %q is not a known interval", m.HigherInterval)
		}
		if higher <= base {
			return invalid("market.higher_interval %s must be longer than market.interval %s", m.HigherInterval, m.Interval)
		}
	}
	if m.BufferSize <= 0 {
		return invalid("market.buffer_size must be > 0")
	}
	if m.HeartbeatTimeoutSeconds < m.HeartbeatIntervalSeconds {
		return invalid("market.heartbeat_timeout_seconds must be >= heartbeat_interval_seconds")
	}
	return nil
}

func (e *ExecutionConfig) validate() error {
	if _, err := executor.ParseMode(e.Mode); err != nil {
		return invalid("execution.mode: %v", err)
	}
	if e.InitialBalance <= 0 {
		return invalid("execution.initial_balance must be > 0")
	}
	if e.CommissionRate < 0 {
		return invalid("execution.commission_rate must be >= 0")
	}
	if e.RateLimitPerSec < 0 {
		return invalid("execution.rate_limit_per_sec must be >= 0")
	}
	return nil
}

func (b *BacktestConfig) validate() error {
	for _, s := range b.Strategies {
		if !knownStrategy(s) {
			return invalid("backtest.strategies contains unknown strategy %q", s)
		}
	}
	if len(b.Presets) > 0 && strings.TrimSpace(b.PresetsPath) == "" {
		return invalid("backtest.presets requires backtest.presets_path")
	}
	if f := regime.Tag(strings.TrimSpace(b.RegimeFilter)); f != "" && f != backtest.AllRegimes && !f.Valid() {
		return invalid("backtest.regime_filter %q is not one of %v or %q", b.RegimeFilter, regime.Tags(), backtest.AllRegimes)
	}
	if b.Leverage <= 0 {
		return invalid("backtest.leverage must be > 0")
	}
	if b.CommissionRate < 0 || b.SlippageRate < 0 {
		return invalid("backtest commission and slippage must be >= 0")
	}
	if b.MaxConcurrent <= 0 {
		return invalid("backtest.max_concurrent must be > 0")
	}
	return nil
}

func knownStrategy(name string) bool {
	for _, s := range backtest.Strategies() {
		if s == name {
			return true
		}
	}
	return false
}

func (r *RiskConfig) validate() error {
	if r.MaxRiskPerTrade <= 0 || r.MaxRiskPerTrade > 1 {
		return invalid("risk.max_risk_per_trade must be in (0, 1]")
	}
	if r.MaxLeverage <= 0 {
		return invalid("risk.max_leverage must be > 0")
	}
	if r.MinOrderSize < 0 || r.QuantityStep < 0 {
		return invalid("risk.min_order_size and risk.quantity_step must be >= 0")
	}
	if r.MaxPriceGapPct < 0 || r.MaxPriceGapPct >= 1 {
		return invalid("risk.max_price_gap_pct must be in [0, 1)")
	}
	return nil
}
