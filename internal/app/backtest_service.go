package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"danoo/internal/backtest"
	"danoo/internal/config"
	"danoo/internal/logger"
	"danoo/internal/market"
	"danoo/internal/metrics"
	"danoo/internal/presets"
	"danoo/internal/regime"
	"danoo/internal/risk"
	"danoo/internal/store/candles"
	"danoo/internal/store/results"
)

// backtestService runs the configured strategies over cached history.
type backtestService struct {
	market   config.MarketConfig
	cfg      config.BacktestConfig
	sizer    risk.Sizer
	history  market.HistorySource
	candles  *candles.Store
	results  *results.Store
	presets  *presets.Registry
	metrics  *metrics.Metrics
	runLimit int
}

// RunOutcome is one persisted backtest.
type RunOutcome struct {
	ID      string
	Name    string
	Params  backtest.Params
	Results backtest.Results
}

type plannedJob struct {
	job    backtest.Job
	params backtest.Params
}

func (s *backtestService) Run(ctx context.Context) ([]RunOutcome, error) {
	symbol, interval := s.market.Symbol, s.market.Interval
	base, err := s.loadCandles(ctx, symbol, interval)
	if err != nil {
		return nil, err
	}
	if len(base) == 0 {
		return nil, fmt.Errorf("no candles for %s@%s", symbol, interval)
	}
	higher := s.loadHigher(ctx, symbol, base)

	planned, err := s.plan(base, higher)
	if err != nil {
		return nil, err
	}
	jobs := make([]backtest.Job, len(planned))
	for i, p := range planned {
		jobs[i] = p.job
	}
	logger.Infof("[backtest] %s@%s: %d bars, %d higher bars, %d jobs", symbol, interval, len(base), len(higher), len(jobs))

	res, err := backtest.Batch(ctx, jobs, s.runLimit, s.metrics)
	if err != nil {
		return nil, err
	}
	out := make([]RunOutcome, 0, len(res))
	for i, r := range res {
		id, err := s.results.Save(ctx, symbol, interval, planned[i].params, r)
		if err != nil {
			return out, err
		}
		m := r.Metrics
		logger.Infof("[backtest] %-24s trades=%d win=%.1f%% return=%.2f%% pf=%.2f dd=%.2f%% sharpe=%.2f id=%s",
			planned[i].job.Name, m.TotalTrades, m.WinRate, m.ReturnPct, m.ProfitFactor, m.MaxDrawdown, m.Sharpe, id)
		out = append(out, RunOutcome{ID: id, Name: planned[i].job.Name, Params: planned[i].params, Results: r})
	}
	if path := strings.TrimSpace(s.cfg.ReportPath); path != "" {
		if err := writeReport(path, res); err != nil {
			return out, err
		}
		logger.Infof("[backtest] report written to %s", path)
	}
	return out, nil
}

// loadCandles serves history from the cache and tops it up from the
// exchange when fewer than history_limit candles are stored. A failed
// fetch falls back to whatever the cache holds.
func (s *backtestService) loadCandles(ctx context.Context, symbol, interval string) ([]market.Candle, error) {
	limit := s.cfg.HistoryLimit
	cached, err := s.candles.Latest(ctx, symbol, interval, limit)
	if err != nil {
		return nil, err
	}
	if len(cached) >= limit || s.history == nil {
		return cached, nil
	}
	fetched, err := s.history.FetchHistory(ctx, symbol, interval, limit)
	if err != nil {
		if len(cached) == 0 {
			return nil, fmt.Errorf("fetch %s@%s: %w", symbol, interval, err)
		}
		logger.Warnf("[backtest] fetch %s@%s failed, using %d cached candles: %v", symbol, interval, len(cached), err)
		return cached, nil
	}
	if err := s.candles.Put(ctx, symbol, interval, fetched); err != nil {
		return nil, err
	}
	if cov, err := s.candles.Coverage(ctx, symbol, interval); err == nil {
		logger.Infof("[backtest] cache %s@%s holds %d bars (%s .. %s)", cov.Symbol, cov.Interval, cov.Rows,
			time.UnixMilli(cov.First).UTC().Format(time.RFC3339), time.UnixMilli(cov.Last).UTC().Format(time.RFC3339))
	}
	return s.candles.Latest(ctx, symbol, interval, limit)
}

// loadHigher returns the higher timeframe series, fetched when possible
// and otherwise resampled from the base series.
func (s *backtestService) loadHigher(ctx context.Context, symbol string, base []market.Candle) []market.Candle {
	interval := strings.TrimSpace(s.market.HigherInterval)
	if interval == "" {
		return nil
	}
	higher, err := s.loadCandles(ctx, symbol, interval)
	if err == nil && len(higher) > 0 {
		return higher
	}
	tf, perr := backtest.ParseTimeframe(interval)
	if perr != nil {
		logger.Warnf("[backtest] higher timeframe %s unavailable: %v", interval, perr)
		return nil
	}
	return backtest.Resample(base, tf)
}

func (s *backtestService) baseParams() backtest.Params {
	p := backtest.DefaultParams()
	p.InitialBalance = s.cfg.InitialBalance
	p.CommissionRate = zeroAsNone(s.cfg.CommissionRate)
	p.SlippageRate = zeroAsNone(s.cfg.SlippageRate)
	return p
}

// zeroAsNone maps an explicit zero rate to the negative value Params
// reads as "none".
func zeroAsNone(v float64) float64 {
	if v == 0 {
		return -1
	}
	return v
}

func (s *backtestService) plan(base, higher []market.Candle) ([]plannedJob, error) {
	bp := s.baseParams()
	// One classification serves every job.
	regimes := regime.ToMap(regime.NewEngine().Classify(base))
	common := []backtest.RunOption{
		backtest.WithRegimeMap(regimes),
		backtest.WithSizer(s.sizer),
	}
	if len(higher) > 0 {
		common = append(common, backtest.WithHigherTimeframe(higher))
	}
	if f := strings.TrimSpace(s.cfg.RegimeFilter); f != "" && regime.Tag(f) != backtest.AllRegimes {
		common = append(common, backtest.WithRegimeFilter(regime.Tag(f)))
	}
	newJob := func(name, strategy string, p backtest.Params) plannedJob {
		opts := append(append([]backtest.RunOption(nil), common...), backtest.WithParams(p))
		return plannedJob{
			job:    backtest.Job{Name: name, Candles: base, Strategy: strategy, Leverage: s.cfg.Leverage, Options: opts},
			params: p,
		}
	}

	var out []plannedJob
	for _, name := range s.cfg.Strategies {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		out = append(out, newJob(name, name, bp))
	}
	for _, id := range s.cfg.Presets {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if s.presets == nil {
			return nil, fmt.Errorf("preset %s requested without a presets file", id)
		}
		resolved, err := s.presets.ResolveOn(id, bp)
		if err != nil {
			return nil, err
		}
		out = append(out, newJob("preset:"+resolved.ID, resolved.Strategy, resolved.Params))
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no strategies or presets configured")
	}
	return out, nil
}

func writeReport(path string, res []backtest.Results) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := backtest.RenderReport(f, res...); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
