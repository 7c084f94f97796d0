package backtest

import (
	"math"

	"danoo/internal/analysis/indicator"
	"danoo/internal/logger"
	"danoo/internal/market"
	"danoo/internal/regime"
	"danoo/internal/risk"
)

// Run replays candles through one strategy. It is deterministic for equal
// inputs, performs no I/O and never fails: empty, unordered or invalid
// series and unknown strategy names give empty results.
func Run(candles []market.Candle, strategy string, leverage float64, opts ...RunOption) Results {
	cfg := newRunConfig(opts)
	if cfg.filter == AllRegimes {
		cfg.filter = ""
	}
	if leverage <= 0 || math.IsNaN(leverage) || math.IsInf(leverage, 0) {
		leverage = 1
	}
	res := Results{
		Strategy:       strategy,
		RegimeFilter:   AllRegimes,
		Leverage:       leverage,
		InitialBalance: cfg.params.InitialBalance,
		Bars:           len(candles),
		Trades:         []Trade{},
	}
	if !knownStrategy(strategy) {
		logger.Warnf("[backtest] unknown strategy %q", strategy)
		return res
	}
	if !usable(candles) {
		return res
	}

	e := newEngine(candles, leverage, cfg)
	pb := e.playbook(strategy)
	res.Warmup = pb.lookback
	e.replay(pb)

	trades := e.trades
	if cfg.filter != "" {
		trades = filterByRegime(trades, cfg.filter)
		res.RegimeFilter = cfg.filter
	}
	res.Trades = trades
	res.Metrics = ComputeMetrics(trades, cfg.params.InitialBalance)
	if e.pos != nil {
		last := candles[len(candles)-1]
		res.OpenPosition = &OpenPosition{
			Side:       e.pos.side,
			EntryTime:  candles[e.pos.entryIdx].OpenTime,
			EntryPrice: e.pos.entry,
			Stop:       e.pos.stop,
			Target:     e.pos.target,
			Size:       e.pos.size,
			Regime:     e.pos.regime,
			MarkPrice:  last.Close,
		}
	}
	return res
}

func knownStrategy(name string) bool {
	for _, s := range Strategies() {
		if s == name {
			return true
		}
	}
	return false
}

func usable(candles []market.Candle) bool {
	if len(candles) == 0 || !market.Ordered(candles) {
		return false
	}
	for _, c := range candles {
		if c.Validate() != nil || c.Open <= 0 || c.Close <= 0 || c.Low <= 0 {
			return false
		}
		if !finite(c.Open, c.High, c.Low, c.Close, c.Volume) {
			return false
		}
	}
	return true
}

func filterByRegime(trades []Trade, tag regime.Tag) []Trade {
	out := make([]Trade, 0, len(trades))
	for _, t := range trades {
		if t.Regime == tag {
			out = append(out, t)
		}
	}
	return out
}

type series struct {
	indicator.Series
	emaFast  []float64
	emaSlow  []float64
	bands    indicator.Bands
	widthPct []float64
	atr      []float64
	rsi      []float64
	dir      indicator.Directional
	volSMA   []float64

	scalpFast []float64
	scalpSlow []float64
	stochK    []float64
	stochD    []float64
}

func computeSeries(candles []market.Candle, p Params) series {
	s := indicator.FromCandles(candles)
	bands := indicator.Bollinger(s.Close, p.BBPeriod, p.BBStdDev)
	k, d := indicator.Stochastic(s.High, s.Low, s.Close, p.StochK, p.StochSlowK, p.StochD)
	return series{
		Series:   s,
		emaFast:  indicator.EMA(s.Close, p.EMAFast),
		emaSlow:  indicator.EMA(s.Close, p.EMASlow),
		bands:    bands,
		widthPct: indicator.PercentRankSeries(bands.Width, p.WidthLookback),
		atr:      indicator.ATR(s.High, s.Low, s.Close, p.ATRPeriod),
		rsi:      indicator.RSI(s.Close, p.RSIPeriod),
		dir:      indicator.ADX(s.High, s.Low, s.Close, p.ADXPeriod),
		volSMA:   indicator.SMA(s.Volume, p.VolumePeriod),

		scalpFast: indicator.EMA(s.Close, p.ScalpEMAFast),
		scalpSlow: indicator.EMA(s.Close, p.ScalpEMASlow),
		stochK:    k,
		stochD:    d,
	}
}

type position struct {
	side        Side
	entryIdx    int
	entry       float64
	stop        float64
	target      float64
	initialRisk float64
	size        float64
	risk        float64
	regime      regime.Tag
	stopReason  string
	armed       bool
}

type engine struct {
	candles  []market.Candle
	p        Params
	leverage float64
	sizer    risk.Sizer
	x        series
	tags     []regime.Tag
	htf      []int

	strategy string
	balance  float64
	pos      *position
	lastExit int
	trades   []Trade
}

func newEngine(candles []market.Candle, leverage float64, cfg runConfig) *engine {
	regimes := cfg.regimes
	if regimes == nil {
		regimes = regime.ToMap(cfg.classifier.Classify(candles))
	}
	tags := make([]regime.Tag, len(candles))
	for i, c := range candles {
		tags[i] = regimes.At(c.OpenTime)
	}
	return &engine{
		candles:  candles,
		p:        cfg.params,
		leverage: leverage,
		sizer:    cfg.sizer,
		x:        computeSeries(candles, cfg.params),
		tags:     tags,
		htf:      higherBias(candles, cfg.higher, cfg.params),
		balance:  cfg.params.InitialBalance,
		lastExit: -1,
		trades:   []Trade{},
	}
}

// higherBias maps every base bar to the EMA cross of the last higher
// timeframe candle closed by then: +1, -1 or 0 when undefined.
func higherBias(base, higher []market.Candle, p Params) []int {
	if len(higher) == 0 {
		return nil
	}
	hs := market.Normalize(higher)
	clean := hs[:0]
	for _, c := range hs {
		if c.Validate() == nil {
			clean = append(clean, c)
		}
	}
	closes := make([]float64, len(clean))
	for i, c := range clean {
		closes[i] = c.Close
	}
	fast := indicator.EMA(closes, p.EMAFast)
	slow := indicator.EMA(closes, p.EMASlow)
	bias := make([]int, len(base))
	j := -1
	for i, c := range base {
		for j+1 < len(clean) && clean[j+1].CloseTime <= c.CloseTime {
			j++
		}
		if j < 0 || !indicator.Valid(fast[j]) || !indicator.Valid(slow[j]) {
			continue
		}
		switch {
		case fast[j] > slow[j]:
			bias[i] = 1
		case fast[j] < slow[j]:
			bias[i] = -1
		}
	}
	return bias
}

func (e *engine) htfAllows(i int, side Side) bool {
	if e.htf == nil || e.htf[i] == 0 {
		return true
	}
	return float64(e.htf[i]) == side.sign()
}

type entrySignal struct {
	side       Side
	stopDist   float64
	targetDist float64
	riskMult   float64
	stopReason string
}

// playbook is a strategy expressed as hooks into the shared replay loop.
type playbook struct {
	lookback int
	cooldown int
	signal   func(i int) (entrySignal, bool)
	manage   func(i int) (string, bool)
	adjust   func(i int)
}

func (e *engine) playbook(name string) playbook {
	e.strategy = name
	switch name {
	case StrategyVolatilityExpansion:
		return e.volatilityExpansion()
	case StrategyMeanReversion:
		return e.meanReversion()
	case StrategyMomentum:
		return e.momentum()
	case StrategyScalper:
		return e.scalper()
	default:
		return e.ensemble()
	}
}

// replay walks the series once. An open position is checked for stop and
// target from the bar after entry onward, then for strategy exits at the
// close, then its stop is adjusted. Entries fill at the signal bar close.
func (e *engine) replay(pb playbook) {
	cooldown := pb.cooldown
	if cooldown < 1 {
		cooldown = 1
	}
	for i := pb.lookback; i < len(e.candles); i++ {
		if e.pos != nil && i > e.pos.entryIdx {
			if px, reason, hit := e.protective(i); hit {
				e.exit(i, px, reason)
			} else if pb.manage != nil {
				if reason, ok := pb.manage(i); ok {
					e.exit(i, e.candles[i].Close, reason)
				}
			}
			if e.pos != nil && pb.adjust != nil {
				pb.adjust(i)
			}
		}
		if e.pos != nil {
			continue
		}
		if e.lastExit >= 0 && i-e.lastExit < cooldown {
			continue
		}
		if sig, ok := pb.signal(i); ok {
			e.enter(i, sig)
		}
	}
}

// protective reports a stop or target touched inside bar i. When both are
// touched the stop wins. A gap through a level fills at the open.
func (e *engine) protective(i int) (float64, string, bool) {
	c := e.candles[i]
	pos := e.pos
	if pos.side == Long {
		if c.Low <= pos.stop {
			return math.Min(pos.stop, c.Open), pos.stopReason, true
		}
		if pos.target > 0 && c.High >= pos.target {
			return math.Max(pos.target, c.Open), ExitTarget, true
		}
		return 0, "", false
	}
	if c.High >= pos.stop {
		return math.Max(pos.stop, c.Open), pos.stopReason, true
	}
	if pos.target > 0 && c.Low <= pos.target {
		return math.Min(pos.target, c.Open), ExitTarget, true
	}
	return 0, "", false
}

func (e *engine) enter(i int, sig entrySignal) {
	if e.balance <= 0 || sig.stopDist <= 0 || !finite(sig.stopDist) {
		return
	}
	sign := sig.side.sign()
	entry := e.candles[i].Close * (1 + sign*e.p.SlippageRate)
	stop := entry - sign*sig.stopDist
	if stop <= 0 {
		return
	}
	sizing := e.size(entry, stop, e.x.atr[i], sig.riskMult)
	if sizing.Zero() {
		return
	}
	target := 0.0
	if sig.targetDist > 0 {
		target = entry + sign*sig.targetDist
	}
	reason := sig.stopReason
	if reason == "" {
		reason = ExitStop
	}
	e.pos = &position{
		side:        sig.side,
		entryIdx:    i,
		entry:       entry,
		stop:        stop,
		target:      target,
		initialRisk: sig.stopDist,
		size:        sizing.PositionSize,
		risk:        sizing.RiskAmount,
		regime:      e.tags[i],
		stopReason:  reason,
	}
}

// size asks the sizer for the running balance. A regime multiplier goes
// into the sizing call when the sizer supports it so caps still hold.
func (e *engine) size(entry, stop, atr, mult float64) risk.Sizing {
	if mult <= 0 || mult == 1 {
		return e.sizer.Size(e.balance, entry, stop, atr)
	}
	if ss, ok := e.sizer.(risk.ScaledSizer); ok {
		return ss.SizeScaled(e.balance, entry, stop, atr, mult)
	}
	return e.sizer.Size(e.balance, entry, stop, atr).Scale(mult)
}

// exit closes the open position at price less slippage. Percent PnL is
// leveraged and net of round-trip commission; currency PnL applies it to
// the margin, size*entry/leverage.
func (e *engine) exit(i int, price float64, reason string) {
	pos := e.pos
	sign := pos.side.sign()
	fill := price * (1 - sign*e.p.SlippageRate)
	raw := (fill - pos.entry) / pos.entry * sign
	pct := raw*100*e.leverage - 2*e.p.CommissionRate*100*e.leverage
	pnl := pct / 100 * pos.size * pos.entry / e.leverage
	e.trades = append(e.trades, Trade{
		Strategy:   e.strategy,
		Side:       pos.side,
		EntryTime:  e.candles[pos.entryIdx].OpenTime,
		ExitTime:   e.candles[i].OpenTime,
		EntryPrice: pos.entry,
		ExitPrice:  fill,
		Size:       pos.size,
		RiskAmount: pos.risk,
		Leverage:   e.leverage,
		PnLPct:     pct,
		PnL:        pnl,
		Regime:     pos.regime,
		ExitReason: reason,
		BarsHeld:   i - pos.entryIdx,
	})
	e.balance += pnl
	e.lastExit = i
	e.pos = nil
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func valid(vs ...float64) bool {
	for _, v := range vs {
		if !indicator.Valid(v) {
			return false
		}
	}
	return true
}

func maxInt(vs ...int) int {
	m := 0
	for _, v := range vs {
		if v > m {
			m = v
		}
	}
	return m
}
