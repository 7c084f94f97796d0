package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"danoo/internal/config"
	"danoo/internal/executor"
	"danoo/internal/gateway/binance"
	"danoo/internal/logger"
	"danoo/internal/market"
	"danoo/internal/metrics"
	"danoo/internal/presets"
	"danoo/internal/risk"
	"danoo/internal/store/candles"
	"danoo/internal/store/results"
	opshttp "danoo/internal/transport/http/ops"
)

type AppBuilder struct {
	cfg *config.Config

	registry  *prometheus.Registry
	historyFn func(binance.Config) (market.HistorySource, error)
	dialerFn  func(binance.Config) (market.StreamDialer, error)
	venueFn   func(binance.Config, config.ExecutionConfig) executor.VenueFactory
	opsFn     func(opshttp.ServerConfig) (*opshttp.Server, error)
}

type AppBuilderOption func(*AppBuilder)

// WithHistorySource replaces the exchange REST client.
func WithHistorySource(h market.HistorySource) AppBuilderOption {
	return func(b *AppBuilder) {
		b.historyFn = func(binance.Config) (market.HistorySource, error) { return h, nil }
	}
}

// WithStreamDialer replaces the exchange websocket dialer.
func WithStreamDialer(d market.StreamDialer) AppBuilderOption {
	return func(b *AppBuilder) {
		b.dialerFn = func(binance.Config) (market.StreamDialer, error) { return d, nil }
	}
}

func WithVenueFactory(f executor.VenueFactory) AppBuilderOption {
	return func(b *AppBuilder) {
		b.venueFn = func(binance.Config, config.ExecutionConfig) executor.VenueFactory { return f }
	}
}

func WithRegistry(reg *prometheus.Registry) AppBuilderOption {
	return func(b *AppBuilder) { b.registry = reg }
}

func NewAppBuilder(cfg *config.Config, opts ...AppBuilderOption) *AppBuilder {
	b := &AppBuilder{
		cfg:       cfg,
		historyFn: buildHistorySource,
		dialerFn:  buildStreamDialer,
		venueFn:   buildVenueFactory,
		opsFn:     opshttp.NewServer,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

func buildHistorySource(cfg binance.Config) (market.HistorySource, error) {
	return binance.New(cfg)
}

func buildStreamDialer(cfg binance.Config) (market.StreamDialer, error) {
	return binance.NewStreamDialer(cfg)
}

func buildVenueFactory(base binance.Config, exec config.ExecutionConfig) executor.VenueFactory {
	return binance.VenueFactory(base,
		binance.Credentials{APIKey: exec.Sandbox.APIKey, APISecret: exec.Sandbox.APISecret, BaseURL: exec.Sandbox.BaseURL},
		binance.Credentials{APIKey: exec.Live.APIKey, APISecret: exec.Live.APISecret, BaseURL: exec.Live.BaseURL},
	)
}

// gatewayConfig maps the market section onto the exchange client config.
// Sandbox market data uses the testnet endpoints unless URLs are given.
func gatewayConfig(cfg *config.Config) binance.Config {
	m := cfg.Market
	out := binance.Config{
		RESTBaseURL:   m.RESTBaseURL,
		StreamBaseURL: m.StreamBaseURL,
		HTTPTimeout:   m.HTTPTimeout(),
		RateLimit:     cfg.Execution.RateLimitPerSec,
	}
	if m.Sandbox {
		if strings.TrimSpace(out.RESTBaseURL) == "" {
			out.RESTBaseURL = binance.SandboxRESTBaseURL
		}
		if strings.TrimSpace(out.StreamBaseURL) == "" {
			out.StreamBaseURL = binance.SandboxStreamURL
		}
	}
	if proxy := strings.TrimSpace(m.ProxyURL); proxy != "" {
		out.ProxyEnabled = true
		out.RESTProxyURL = proxy
		out.WSProxyURL = proxy
	}
	return out
}

func feedConfig(m config.MarketConfig) market.FeedConfig {
	return market.FeedConfig{
		Symbol:            m.Symbol,
		Interval:          m.Interval,
		Capacity:          m.BufferSize,
		HeartbeatInterval: m.HeartbeatInterval(),
		HeartbeatTimeout:  m.HeartbeatTimeout(),
		ReconnectDelay:    m.ReconnectDelay(),
		EventBuffer:       m.EventBuffer,
	}
}

func riskConfig(r config.RiskConfig) risk.Config {
	return risk.Config{
		MaxRiskPerTrade: r.MaxRiskPerTrade,
		MaxLeverage:     r.MaxLeverage,
		MinOrderSize:    r.MinOrderSize,
		QuantityStep:    r.QuantityStep,
	}
}

// Build wires every component without starting any of them. Resources
// opened before a failure are released.
func (b *AppBuilder) Build(ctx context.Context) (app *App, err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if b.cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	cfg := b.cfg
	config.ApplyLogging(cfg.App)

	var closers []func() error
	defer func() {
		if err != nil {
			for i := len(closers) - 1; i >= 0; i-- {
				_ = closers[i]()
			}
		}
	}()

	reg := b.registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	mt := metrics.New(reg)

	gw := gatewayConfig(cfg)
	history, err := b.historyFn(gw)
	if err != nil {
		return nil, fmt.Errorf("history source: %w", err)
	}
	dialer, err := b.dialerFn(gw)
	if err != nil {
		return nil, fmt.Errorf("stream dialer: %w", err)
	}

	candleStore, err := candles.NewStore(cfg.Backtest.CandlesDir)
	if err != nil {
		return nil, fmt.Errorf("candle store: %w", err)
	}
	closers = append(closers, candleStore.Close)

	resultStore, err := results.NewStore(cfg.Backtest.ResultsPath)
	if err != nil {
		return nil, fmt.Errorf("results store: %w", err)
	}
	closers = append(closers, resultStore.Close)

	var presetReg *presets.Registry
	if path := strings.TrimSpace(cfg.Backtest.PresetsPath); path != "" {
		if presetReg, err = presets.NewRegistry(path); err != nil {
			return nil, err
		}
		presetReg.OnChange(func(s presets.Snapshot) {
			logger.Infof("[presets] version %d active: %v", s.Version, s.IDs())
		})
	}

	mode, err := executor.ParseMode(cfg.Execution.Mode)
	if err != nil {
		return nil, err
	}
	exec, err := executor.NewManager(mode,
		executor.NewSimulatedBackend(cfg.Execution.InitialBalance, cfg.Execution.CommissionRate),
		executor.WithVenueOptions(executor.VenueOptions{
			CacheTTL:         cfg.Execution.CacheTTL(),
			BreakerThreshold: cfg.Execution.BreakerThreshold,
			BreakerCooldown:  cfg.Execution.BreakerCooldown(),
		}),
		executor.WithVenueFactory(b.venueFn(gw, cfg.Execution)),
		executor.WithMetrics(mt),
		executor.WithPriceGapLimit(cfg.Risk.MaxPriceGapPct),
	)
	if err != nil {
		return nil, err
	}

	feed, err := market.NewFeed(feedConfig(cfg.Market), market.FeedDeps{
		History: history,
		Dialer:  dialer,
		Decode:  binance.DecodeKline,
		Sink:    candleStore,
		Metrics: mt,
	})
	if err != nil {
		return nil, err
	}

	bt := &backtestService{
		market:   cfg.Market,
		cfg:      cfg.Backtest,
		sizer:    risk.NewFixedFractional(riskConfig(cfg.Risk)),
		history:  history,
		candles:  candleStore,
		results:  resultStore,
		presets:  presetReg,
		metrics:  mt,
		runLimit: cfg.Backtest.MaxConcurrent,
	}
	live := &liveService{feed: feed, exec: exec}

	var ops *opshttp.Server
	if addr := strings.TrimSpace(cfg.App.MetricsAddr); addr != "" {
		ops, err = b.opsFn(opshttp.ServerConfig{Addr: addr, Gatherer: reg, Live: live, Runs: resultStore, Cache: candleStore})
		if err != nil {
			return nil, err
		}
	}

	return &App{
		cfg:      cfg,
		registry: reg,
		backtest: bt,
		live:     live,
		exec:     exec,
		ops:      ops,
		closers:  closers,
		Summary:  newStartupSummary(cfg, presetReg),
	}, nil
}

// strategyNames lists plain strategies then presets as they will run.
func strategyNames(cfg config.BacktestConfig) []string {
	out := make([]string, 0, len(cfg.Strategies)+len(cfg.Presets))
	for _, s := range cfg.Strategies {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	for _, p := range cfg.Presets {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, "preset:"+p)
		}
	}
	return out
}
