package backtest

import "danoo/internal/regime"

// Strategy names accepted by Run.
const (
	StrategyVolatilityExpansion = "volatility_expansion"
	StrategyMeanReversion       = "mean_reversion"
	StrategyMomentum            = "momentum"
	StrategyEnsemble            = "ensemble"
	StrategyScalper             = "scalper"
)

// Strategies lists every strategy Run knows, in a stable order.
func Strategies() []string {
	return []string{StrategyVolatilityExpansion, StrategyMeanReversion, StrategyMomentum, StrategyEnsemble, StrategyScalper}
}

// AllRegimes is the filter reported when no regime filter was requested.
const AllRegimes regime.Tag = "all"

type Side string

const (
	Long  Side = "long"
	Short Side = "short"
)

func (s Side) sign() float64 {
	if s == Short {
		return -1
	}
	return 1
}

// Exit reasons recorded on trades.
const (
	ExitStop        = "stop"
	ExitTarget      = "target"
	ExitMiddleBand  = "middle_band"
	ExitRegime      = "regime_change"
	ExitMaxHold     = "max_hold"
	ExitExhaustion  = "trend_exhaustion"
	ExitBreakevenSL = "breakeven_stop"
	ExitTrailingSL  = "trailing_stop"
)

// Trade is one completed round trip. Prices include slippage; PnLPct is
// leveraged and net of round-trip commission.
type Trade struct {
	Strategy   string     `json:"strategy"`
	Side       Side       `json:"side"`
	EntryTime  int64      `json:"entry_time"`
	ExitTime   int64      `json:"exit_time"`
	EntryPrice float64    `json:"entry_price"`
	ExitPrice  float64    `json:"exit_price"`
	Size       float64    `json:"size"`
	RiskAmount float64    `json:"risk_amount"`
	Leverage   float64    `json:"leverage"`
	PnLPct     float64    `json:"pnl_pct"`
	PnL        float64    `json:"pnl"`
	Regime     regime.Tag `json:"regime"`
	ExitReason string     `json:"exit_reason"`
	BarsHeld   int        `json:"bars_held"`
}

// Metrics summarise a trade list. ProfitFactor is ProfitFactorCap when
// there are gains and no losses.
type Metrics struct {
	TotalTrades  int     `json:"total_trades"`
	Wins         int     `json:"wins"`
	Losses       int     `json:"losses"`
	WinRate      float64 `json:"win_rate"`
	TotalPnL     float64 `json:"total_pnl"`
	ReturnPct    float64 `json:"return_pct"`
	ProfitFactor float64 `json:"profit_factor"`
	MaxDrawdown  float64 `json:"max_drawdown"`
	Sharpe       float64 `json:"sharpe"`
	AvgWin       float64 `json:"avg_win"`
	AvgLoss      float64 `json:"avg_loss"`
	LargestWin   float64 `json:"largest_win"`
	LargestLoss  float64 `json:"largest_loss"`
}

// OpenPosition is a position still open when the series ended. It never
// contributes to metrics.
type OpenPosition struct {
	Side       Side       `json:"side"`
	EntryTime  int64      `json:"entry_time"`
	EntryPrice float64    `json:"entry_price"`
	Stop       float64    `json:"stop"`
	Target     float64    `json:"target,omitempty"`
	Size       float64    `json:"size"`
	Regime     regime.Tag `json:"regime"`
	MarkPrice  float64    `json:"mark_price"`
}

type Results struct {
	Strategy       string        `json:"strategy"`
	RegimeFilter   regime.Tag    `json:"regime_filter,omitempty"`
	Leverage       float64       `json:"leverage"`
	InitialBalance float64       `json:"initial_balance"`
	Bars           int           `json:"bars"`
	Warmup         int           `json:"warmup"`
	Trades         []Trade       `json:"trades"`
	Metrics        Metrics       `json:"metrics"`
	OpenPosition   *OpenPosition `json:"open_position,omitempty"`
}

// EquityPoint is the balance after the trade closing at Time.
type EquityPoint struct {
	Time    int64   `json:"time"`
	Balance float64 `json:"balance"`
}

// EquityCurve replays the trade list from the initial balance.
func (r Results) EquityCurve() []EquityPoint {
	out := make([]EquityPoint, 0, len(r.Trades)+1)
	bal := r.InitialBalance
	start := int64(0)
	if len(r.Trades) > 0 {
		start = r.Trades[0].EntryTime
	}
	out = append(out, EquityPoint{Time: start, Balance: bal})
	for _, t := range r.Trades {
		bal += t.PnL
		out = append(out, EquityPoint{Time: t.ExitTime, Balance: bal})
	}
	return out
}
