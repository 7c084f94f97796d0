// Package risk converts an account balance and a planned stop into a
// position size.
package risk

import (
	"math"

	"github.com/shopspring/decimal"
)

// Sizing is expressed in base-asset quantity and quote-currency risk.
type Sizing struct {
	PositionSize float64 `json:"position_size"`
	RiskAmount   float64 `json:"risk_amount"`
}

func (s Sizing) Zero() bool {
	return s.PositionSize <= 0
}

// Sizer is consulted for every entry. volHint is an optional volatility
// estimate in price units (for example ATR); pass 0 when unknown.
type Sizer interface {
	Size(balance, entry, stop, volHint float64) Sizing
}

// ScaledSizer sizes with the risk budget multiplied by mult while keeping
// its own caps and rounding. Sizers that lack it are scaled after the fact.
type ScaledSizer interface {
	SizeScaled(balance, entry, stop, volHint, mult float64) Sizing
}

// Config mirrors the risk section of the config file.
type Config struct {
	MaxRiskPerTrade float64 `toml:"max_risk_per_trade" json:"max_risk_per_trade"`
	MaxLeverage     float64 `toml:"max_leverage" json:"max_leverage"`
	MinOrderSize    float64 `toml:"min_order_size" json:"min_order_size"`
	QuantityStep    float64 `toml:"quantity_step" json:"quantity_step"`
}

func DefaultConfig() Config {
	return Config{
		MaxRiskPerTrade: 0.01,
		MaxLeverage:     20,
		MinOrderSize:    10,
		QuantityStep:    0.001,
	}
}

// FixedFractional risks a fixed share of the balance on the stop distance,
// caps the notional at balance*MaxLeverage and rounds the quantity down to
// QuantityStep.
type FixedFractional struct {
	cfg Config
}

func NewFixedFractional(cfg Config) *FixedFractional {
	def := DefaultConfig()
	if cfg.MaxRiskPerTrade <= 0 {
		cfg.MaxRiskPerTrade = def.MaxRiskPerTrade
	}
	if cfg.MaxLeverage <= 0 {
		cfg.MaxLeverage = def.MaxLeverage
	}
	if cfg.MinOrderSize < 0 {
		cfg.MinOrderSize = 0
	}
	return &FixedFractional{cfg: cfg}
}

var _ ScaledSizer = (*FixedFractional)(nil)

func (f *FixedFractional) Size(balance, entry, stop, volHint float64) Sizing {
	return f.SizeScaled(balance, entry, stop, volHint, 1)
}

// SizeScaled multiplies the risk budget by mult before the leverage cap
// and the quantity step are applied.
func (f *FixedFractional) SizeScaled(balance, entry, stop, volHint, mult float64) Sizing {
	if mult <= 0 || balance <= 0 || entry <= 0 || !finite(balance, entry, stop, volHint, mult) {
		return Sizing{}
	}
	distance := math.Abs(entry - stop)
	if distance <= 0 {
		distance = volHint
	}
	if distance <= 0 {
		return Sizing{}
	}
	budget := balance * f.cfg.MaxRiskPerTrade * mult
	qty := budget / distance
	if maxQty := balance * f.cfg.MaxLeverage / entry; qty > maxQty {
		qty = maxQty
	}
	qty = roundDown(qty, f.cfg.QuantityStep)
	if qty <= 0 || qty*entry < f.cfg.MinOrderSize {
		return Sizing{}
	}
	return Sizing{PositionSize: qty, RiskAmount: qty * distance}
}

// Scale multiplies both fields, used for regime-weighted risk.
func (s Sizing) Scale(mult float64) Sizing {
	if mult <= 0 {
		return Sizing{}
	}
	return Sizing{PositionSize: s.PositionSize * mult, RiskAmount: s.RiskAmount * mult}
}

func roundDown(qty, step float64) float64 {
	if step <= 0 {
		return qty
	}
	d := decimal.NewFromFloat(qty)
	st := decimal.NewFromFloat(step)
	v, _ := d.Div(st).Floor().Mul(st).Float64()
	return v
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
