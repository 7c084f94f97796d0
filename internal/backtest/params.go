package backtest

import "danoo/internal/regime"

// Params carries every threshold the strategies use. Zero values are
// replaced by DefaultParams when a run starts.
type Params struct {
	InitialBalance float64 `json:"initial_balance" mapstructure:"initial_balance"`
	CommissionRate float64 `json:"commission_rate" mapstructure:"commission_rate"`
	SlippageRate   float64 `json:"slippage_rate" mapstructure:"slippage_rate"`

	EMAFast       int     `json:"ema_fast" mapstructure:"ema_fast"`
	EMASlow       int     `json:"ema_slow" mapstructure:"ema_slow"`
	BBPeriod      int     `json:"bb_period" mapstructure:"bb_period"`
	BBStdDev      float64 `json:"bb_std_dev" mapstructure:"bb_std_dev"`
	ATRPeriod     int     `json:"atr_period" mapstructure:"atr_period"`
	RSIPeriod     int     `json:"rsi_period" mapstructure:"rsi_period"`
	ADXPeriod     int     `json:"adx_period" mapstructure:"adx_period"`
	VolumePeriod  int     `json:"volume_period" mapstructure:"volume_period"`
	WidthLookback int     `json:"width_lookback" mapstructure:"width_lookback"`

	WidthPercentile  float64 `json:"width_percentile" mapstructure:"width_percentile"`
	VolumeMultiplier float64 `json:"volume_multiplier" mapstructure:"volume_multiplier"`
	MinBodyRatio     float64 `json:"min_body_ratio" mapstructure:"min_body_ratio"`
	RewardMultiple   float64 `json:"reward_multiple" mapstructure:"reward_multiple"`
	Cooldown         int     `json:"cooldown" mapstructure:"cooldown"`
	StopATRTrending  float64 `json:"stop_atr_trending" mapstructure:"stop_atr_trending"`
	StopATRDefault   float64 `json:"stop_atr_default" mapstructure:"stop_atr_default"`
	StopATRCompress  float64 `json:"stop_atr_compressed" mapstructure:"stop_atr_compressed"`
	StopATRHighVol   float64 `json:"stop_atr_high_vol" mapstructure:"stop_atr_high_vol"`

	RSIOversold   float64 `json:"rsi_oversold" mapstructure:"rsi_oversold"`
	RSIOverbought float64 `json:"rsi_overbought" mapstructure:"rsi_overbought"`
	MinWidthPct   float64 `json:"min_width_pct" mapstructure:"min_width_pct"`
	MaxWidthPct   float64 `json:"max_width_pct" mapstructure:"max_width_pct"`
	MaxHoldBars   int     `json:"max_hold_bars" mapstructure:"max_hold_bars"`
	MRStopATR     float64 `json:"mr_stop_atr" mapstructure:"mr_stop_atr"`

	ADXEntry float64 `json:"adx_entry" mapstructure:"adx_entry"`
	ADXExit  float64 `json:"adx_exit" mapstructure:"adx_exit"`
	TrailATR float64 `json:"trail_atr" mapstructure:"trail_atr"`

	MinNetVote       int     `json:"min_net_vote" mapstructure:"min_net_vote"`
	VolExpWeight     int     `json:"vol_exp_weight" mapstructure:"vol_exp_weight"`
	EnsembleCooldown int     `json:"ensemble_cooldown" mapstructure:"ensemble_cooldown"`
	RiskMultTrending float64 `json:"risk_mult_trending" mapstructure:"risk_mult_trending"`
	RiskMultRanging  float64 `json:"risk_mult_ranging" mapstructure:"risk_mult_ranging"`
	RiskMultOther    float64 `json:"risk_mult_other" mapstructure:"risk_mult_other"`

	ScalpEMAFast       int     `json:"scalp_ema_fast" mapstructure:"scalp_ema_fast"`
	ScalpEMASlow       int     `json:"scalp_ema_slow" mapstructure:"scalp_ema_slow"`
	StochK             int     `json:"stoch_k" mapstructure:"stoch_k"`
	StochSlowK         int     `json:"stoch_slow_k" mapstructure:"stoch_slow_k"`
	StochD             int     `json:"stoch_d" mapstructure:"stoch_d"`
	ScalpOversold      float64 `json:"scalp_oversold" mapstructure:"scalp_oversold"`
	ScalpOverbought    float64 `json:"scalp_overbought" mapstructure:"scalp_overbought"`
	ScalpTakeProfitPct float64 `json:"scalp_take_profit_pct" mapstructure:"scalp_take_profit_pct"`
	ScalpStopPct       float64 `json:"scalp_stop_pct" mapstructure:"scalp_stop_pct"`
}

func DefaultParams() Params {
	return Params{
		InitialBalance: 10_000,
		CommissionRate: 0.0004,
		SlippageRate:   0.0005,

		EMAFast:       20,
		EMASlow:       50,
		BBPeriod:      20,
		BBStdDev:      2,
		ATRPeriod:     14,
		RSIPeriod:     14,
		ADXPeriod:     14,
		VolumePeriod:  20,
		WidthLookback: 100,

		WidthPercentile:  15,
		VolumeMultiplier: 1.8,
		MinBodyRatio:     0.7,
		RewardMultiple:   2.5,
		Cooldown:         8,
		StopATRTrending:  1.5,
		StopATRDefault:   1.8,
		StopATRCompress:  2.2,
		StopATRHighVol:   3.0,

		RSIOversold:   30,
		RSIOverbought: 70,
		MinWidthPct:   1,
		MaxWidthPct:   8,
		MaxHoldBars:   24,
		MRStopATR:     1.5,

		ADXEntry: 30,
		ADXExit:  20,
		TrailATR: 2.0,

		MinNetVote:       2,
		VolExpWeight:     2,
		EnsembleCooldown: 5,
		RiskMultTrending: 1.5,
		RiskMultRanging:  0.5,
		RiskMultOther:    1.0,

		ScalpEMAFast:       9,
		ScalpEMASlow:       21,
		StochK:             9,
		StochSlowK:         3,
		StochD:             3,
		ScalpOversold:      30,
		ScalpOverbought:    70,
		ScalpTakeProfitPct: 0.5,
		ScalpStopPct:       0.3,
	}
}

// withDefaults fills zero fields. Commission and slippage keep an explicit
// zero only when the caller set them negative, which is read as "none".
func (p Params) withDefaults() Params {
	d := DefaultParams()
	setF := func(v *float64, def float64) {
		if *v == 0 {
			*v = def
		}
	}
	setI := func(v *int, def int) {
		if *v <= 0 {
			*v = def
		}
	}
	setF(&p.InitialBalance, d.InitialBalance)
	setF(&p.CommissionRate, d.CommissionRate)
	setF(&p.SlippageRate, d.SlippageRate)
	if p.CommissionRate < 0 {
		p.CommissionRate = 0
	}
	if p.SlippageRate < 0 {
		p.SlippageRate = 0
	}
	setI(&p.EMAFast, d.EMAFast)
	setI(&p.EMASlow, d.EMASlow)
	setI(&p.BBPeriod, d.BBPeriod)
	setF(&p.BBStdDev, d.BBStdDev)
	setI(&p.ATRPeriod, d.ATRPeriod)
	setI(&p.RSIPeriod, d.RSIPeriod)
	setI(&p.ADXPeriod, d.ADXPeriod)
	setI(&p.VolumePeriod, d.VolumePeriod)
	setI(&p.WidthLookback, d.WidthLookback)
	setF(&p.WidthPercentile, d.WidthPercentile)
	setF(&p.VolumeMultiplier, d.VolumeMultiplier)
	setF(&p.MinBodyRatio, d.MinBodyRatio)
	setF(&p.RewardMultiple, d.RewardMultiple)
	setI(&p.Cooldown, d.Cooldown)
	setF(&p.StopATRTrending, d.StopATRTrending)
	setF(&p.StopATRDefault, d.StopATRDefault)
	setF(&p.StopATRCompress, d.StopATRCompress)
	setF(&p.StopATRHighVol, d.StopATRHighVol)
	setF(&p.RSIOversold, d.RSIOversold)
	setF(&p.RSIOverbought, d.RSIOverbought)
	setF(&p.MinWidthPct, d.MinWidthPct)
	setF(&p.MaxWidthPct, d.MaxWidthPct)
	setI(&p.MaxHoldBars, d.MaxHoldBars)
	setF(&p.MRStopATR, d.MRStopATR)
	setF(&p.ADXEntry, d.ADXEntry)
	setF(&p.ADXExit, d.ADXExit)
	setF(&p.TrailATR, d.TrailATR)
	setI(&p.MinNetVote, d.MinNetVote)
	setI(&p.VolExpWeight, d.VolExpWeight)
	setI(&p.EnsembleCooldown, d.EnsembleCooldown)
	setF(&p.RiskMultTrending, d.RiskMultTrending)
	setF(&p.RiskMultRanging, d.RiskMultRanging)
	setF(&p.RiskMultOther, d.RiskMultOther)
	setI(&p.ScalpEMAFast, d.ScalpEMAFast)
	setI(&p.ScalpEMASlow, d.ScalpEMASlow)
	setI(&p.StochK, d.StochK)
	setI(&p.StochSlowK, d.StochSlowK)
	setI(&p.StochD, d.StochD)
	setF(&p.ScalpOversold, d.ScalpOversold)
	setF(&p.ScalpOverbought, d.ScalpOverbought)
	setF(&p.ScalpTakeProfitPct, d.ScalpTakeProfitPct)
	setF(&p.ScalpStopPct, d.ScalpStopPct)
	return p
}

// stopMultiple picks the ATR multiple for the regime at entry.
func (p Params) stopMultiple(tag regime.Tag) float64 {
	switch {
	case tag.Trending():
		return p.StopATRTrending
	case tag == regime.Compressed:
		return p.StopATRCompress
	case tag == regime.HighVolatility:
		return p.StopATRHighVol
	default:
		return p.StopATRDefault
	}
}

func (p Params) riskMultiple(tag regime.Tag) float64 {
	switch {
	case tag.Trending():
		return p.RiskMultTrending
	case tag == regime.Ranging:
		return p.RiskMultRanging
	default:
		return p.RiskMultOther
	}
}
