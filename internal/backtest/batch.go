package backtest

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"danoo/internal/market"
	"danoo/internal/metrics"
)

// Job is one (series, strategy) pair for Batch.
type Job struct {
	Name     string
	Candles  []market.Candle
	Strategy string
	Leverage float64
	Options  []RunOption
}

// Batch runs jobs in parallel, at most limit at a time, and returns
// results in job order. Jobs share candle slices read-only. Cancelling ctx
// stops jobs that have not started.
func Batch(ctx context.Context, jobs []Job, limit int, mt *metrics.Metrics) ([]Results, error) {
	out := make([]Results, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, job := range jobs {
		i, job := i, job
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			start := time.Now()
			out[i] = Run(job.Candles, job.Strategy, job.Leverage, job.Options...)
			mt.BacktestRun(job.Strategy, time.Since(start))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
