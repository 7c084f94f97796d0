package backtest

import (
	"danoo/internal/market"
	"danoo/internal/regime"
	"danoo/internal/risk"
)

type runConfig struct {
	filter     regime.Tag
	regimes    regime.Map
	higher     []market.Candle
	params     Params
	classifier regime.Classifier
	sizer      risk.Sizer
}

type RunOption func(*runConfig)

// WithRegimeFilter keeps only trades entered under tag when computing
// metrics. It never changes which trades happen.
func WithRegimeFilter(tag regime.Tag) RunOption {
	return func(c *runConfig) { c.filter = tag }
}

// WithRegimeMap supplies precomputed regimes keyed by candle open time.
func WithRegimeMap(m regime.Map) RunOption {
	return func(c *runConfig) { c.regimes = m }
}

// WithHigherTimeframe adds a higher timeframe whose EMA cross biases entries.
func WithHigherTimeframe(candles []market.Candle) RunOption {
	return func(c *runConfig) { c.higher = candles }
}

func WithParams(p Params) RunOption {
	return func(c *runConfig) { c.params = p }
}

func WithClassifier(cl regime.Classifier) RunOption {
	return func(c *runConfig) { c.classifier = cl }
}

func WithSizer(s risk.Sizer) RunOption {
	return func(c *runConfig) { c.sizer = s }
}

func newRunConfig(opts []RunOption) runConfig {
	cfg := runConfig{params: DefaultParams()}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	cfg.params = cfg.params.withDefaults()
	if cfg.classifier == nil {
		cfg.classifier = regime.NewEngine()
	}
	if cfg.sizer == nil {
		cfg.sizer = risk.NewFixedFractional(risk.DefaultConfig())
	}
	return cfg
}
