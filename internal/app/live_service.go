package app

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"danoo/internal/executor"
	"danoo/internal/logger"
	"danoo/internal/market"
	opshttp "danoo/internal/transport/http/ops"
)

// liveService follows the live stream and marks executor positions to
// every closed candle.
type liveService struct {
	feed *market.Feed
	exec *executor.Manager

	started atomic.Bool
}

var _ opshttp.LiveView = (*liveService)(nil)

// Run warms the buffer, starts the feed and consumes its channels until
// ctx is done. The feed is stopped before Run returns.
func (s *liveService) Run(ctx context.Context) error {
	if err := s.feed.Warmup(ctx); err != nil {
		return fmt.Errorf("warmup %s: %w", s.feed.Stream(), err)
	}
	if err := s.feed.Start(ctx); err != nil {
		return err
	}
	s.started.Store(true)
	defer s.feed.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Infof("[live] %s stopping", s.feed.Stream())
			return nil
		case evt := <-s.feed.Candles():
			s.onCandle(ctx, evt)
		case st := <-s.feed.Status():
			if st.Err != nil {
				logger.Warnf("[live] %s %s: %v", st.Stream, st.State, st.Err)
			} else {
				logger.Infof("[live] %s %s", st.Stream, st.State)
			}
		}
	}
}

func (s *liveService) onCandle(ctx context.Context, evt market.CandleEvent) {
	c := evt.Candle
	s.exec.UpdatePositionPnL(map[string]float64{evt.Symbol: c.Close})
	equity, err := s.exec.Equity(ctx)
	if err != nil {
		logger.Warnf("[live] equity unavailable: %v", err)
		return
	}
	logger.Infof("[live] %s@%s close=%.4f at %s equity=%.2f mode=%s",
		evt.Symbol, evt.Interval, c.Close, time.UnixMilli(c.CloseTime).UTC().Format(time.RFC3339), equity, s.exec.Mode())
}

// LiveStatus snapshots the feed and the active executor backend.
func (s *liveService) LiveStatus(ctx context.Context) (opshttp.LiveStatus, error) {
	if !s.started.Load() {
		return opshttp.LiveStatus{}, errors.New("live feed not started")
	}
	st := opshttp.LiveStatus{
		Stream:    s.feed.Stream(),
		State:     s.feed.State().String(),
		LastPrice: s.feed.LastPrice(),
		Buffered:  len(s.feed.Buffer()),
		Mode:      string(s.exec.Mode()),
		Stats:     s.exec.Stats(),
	}
	var err error
	if st.Positions, err = s.exec.Positions(ctx); err != nil {
		return st, err
	}
	if st.Equity, err = s.exec.Equity(ctx); err != nil {
		return st, err
	}
	return st, nil
}
