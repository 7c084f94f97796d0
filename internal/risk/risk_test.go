package risk

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFixedFractionalRisksOnePercent(t *testing.T) {
	s := NewFixedFractional(DefaultConfig())
	got := s.Size(10_000, 100, 98, 0)
	assert.InDelta(t, 50.0, got.PositionSize, 1e-9)
	assert.InDelta(t, 100.0, got.RiskAmount, 1e-9)
}

func TestFixedFractionalCapsLeverage(t *testing.T) {
	s := NewFixedFractional(Config{MaxRiskPerTrade: 0.01, MaxLeverage: 2, QuantityStep: 0.001})
	got := s.Size(1_000, 100, 99.99, 0)
	assert.InDelta(t, 20.0, got.PositionSize, 1e-9)
	assert.InDelta(t, 20*0.01, got.RiskAmount, 1e-6)
}

func TestFixedFractionalRoundsDown(t *testing.T) {
	s := NewFixedFractional(Config{MaxRiskPerTrade: 0.01, MaxLeverage: 20, QuantityStep: 0.01})
	got := s.Size(1_000, 30_000, 29_700, 0)
	// 10 / 300 = 0.0333 -> 0.03
	assert.InDelta(t, 0.03, got.PositionSize, 1e-12)
	assert.InDelta(t, 9.0, got.RiskAmount, 1e-9)
}

func TestFixedFractionalRejectsDegenerateInput(t *testing.T) {
	s := NewFixedFractional(DefaultConfig())
	assert.True(t, s.Size(0, 100, 99, 0).Zero())
	assert.True(t, s.Size(1000, 100, 100, 0).Zero())
	assert.True(t, s.Size(1000, math.NaN(), 99, 0).Zero())
	assert.True(t, s.Size(5, 100, 99, 0).Zero(), "below min order size")

	withHint := s.Size(1000, 100, 100, 2)
	assert.False(t, withHint.Zero())
	assert.InDelta(t, 5.0, withHint.PositionSize, 1e-9)
}

func TestScale(t *testing.T) {
	s := Sizing{PositionSize: 2, RiskAmount: 10}
	assert.Equal(t, Sizing{PositionSize: 3, RiskAmount: 15}, s.Scale(1.5))
	assert.True(t, s.Scale(0).Zero())
}

func TestSizeScaledKeepsCapAndStep(t *testing.T) {
	s := NewFixedFractional(Config{MaxRiskPerTrade: 0.01, MaxLeverage: 20, QuantityStep: 0.001})

	base := s.Size(10_000, 100, 99.94, 0)
	assert.InDelta(t, 1666.666, base.PositionSize, 1e-9)

	// 1.5x the budget would be 2500 units; the 20x notional cap is 2000.
	scaled := s.SizeScaled(10_000, 100, 99.94, 0, 1.5)
	assert.InDelta(t, 2000.0, scaled.PositionSize, 1e-9)
	assert.InDelta(t, 2000*0.06, scaled.RiskAmount, 1e-6)
	assert.Greater(t, base.Scale(1.5).PositionSize, scaled.PositionSize)

	half := s.SizeScaled(10_000, 30_000, 29_700, 0, 0.5)
	// 50 / 300 = 0.16666 -> 0.166
	assert.InDelta(t, 0.166, half.PositionSize, 1e-12)
	assert.True(t, s.SizeScaled(10_000, 100, 99, 0, 0).Zero())
}
