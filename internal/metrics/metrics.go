// Package metrics holds the Prometheus collectors shared by the feed, the
// executor and the backtester. Every method tolerates a nil receiver so
// components can run without instrumentation.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	FeedReconnects    *prometheus.CounterVec
	HeartbeatTimeouts *prometheus.CounterVec
	ClosedCandles     *prometheus.CounterVec
	DroppedStatus     prometheus.Counter
	FeedState         *prometheus.GaugeVec

	Orders *prometheus.CounterVec

	BacktestRuns     *prometheus.CounterVec
	BacktestDuration *prometheus.HistogramVec
}

// New creates the collectors and registers them on reg. A nil registerer
// leaves them unregistered, which is what tests usually want.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		FeedReconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "danoo",
			Subsystem: "feed",
			Name:      "reconnects_total",
			Help:      "Stream reconnect attempts scheduled after a connection loss.",
		}, []string{"stream"}),
		HeartbeatTimeouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "danoo",
			Subsystem: "feed",
			Name:      "heartbeat_timeouts_total",
			Help:      "Connections force-closed because no liveness ack arrived in time.",
		}, []string{"stream"}),
		ClosedCandles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "danoo",
			Subsystem: "feed",
			Name:      "closed_candles_total",
			Help:      "Closed candles appended to the feed buffer.",
		}, []string{"stream"}),
		DroppedStatus: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "danoo",
			Subsystem: "feed",
			Name:      "dropped_status_events_total",
			Help:      "Status notifications dropped because the status channel was full.",
		}),
		FeedState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "danoo",
			Subsystem: "feed",
			Name:      "connection_state",
			Help:      "Current connection state (0=disconnected 1=connecting 2=connected 3=reconnecting).",
		}, []string{"stream"}),
		Orders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "danoo",
			Subsystem: "executor",
			Name:      "orders_total",
			Help:      "Orders evaluated by the executor, by mode and resulting status.",
		}, []string{"mode", "status"}),
		BacktestRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "danoo",
			Subsystem: "backtest",
			Name:      "runs_total",
			Help:      "Completed backtest runs by strategy.",
		}, []string{"strategy"}),
		BacktestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "danoo",
			Subsystem: "backtest",
			Name:      "run_duration_seconds",
			Help:      "Wall time of a single backtest run.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}, []string{"strategy"}),
	}
	if reg != nil {
		reg.MustRegister(
			m.FeedReconnects,
			m.HeartbeatTimeouts,
			m.ClosedCandles,
			m.DroppedStatus,
			m.FeedState,
			m.Orders,
			m.BacktestRuns,
			m.BacktestDuration,
		)
	}
	return m
}

func (m *Metrics) Reconnect(stream string) {
	if m == nil {
		return
	}
	m.FeedReconnects.WithLabelValues(stream).Inc()
}

func (m *Metrics) HeartbeatTimeout(stream string) {
	if m == nil {
		return
	}
	m.HeartbeatTimeouts.WithLabelValues(stream).Inc()
}

func (m *Metrics) ClosedCandle(stream string) {
	if m == nil {
		return
	}
	m.ClosedCandles.WithLabelValues(stream).Inc()
}

func (m *Metrics) StatusDropped() {
	if m == nil {
		return
	}
	m.DroppedStatus.Inc()
}

func (m *Metrics) SetFeedState(stream string, state int) {
	if m == nil {
		return
	}
	m.FeedState.WithLabelValues(stream).Set(float64(state))
}

func (m *Metrics) Order(mode, status string) {
	if m == nil {
		return
	}
	m.Orders.WithLabelValues(mode, status).Inc()
}

func (m *Metrics) BacktestRun(strategy string, took time.Duration) {
	if m == nil {
		return
	}
	m.BacktestRuns.WithLabelValues(strategy).Inc()
	m.BacktestDuration.WithLabelValues(strategy).Observe(took.Seconds())
}
