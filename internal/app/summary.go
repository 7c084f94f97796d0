package app

import (
	"fmt"
	"strings"

	"danoo/internal/config"
	"danoo/internal/logger"
	"danoo/internal/presets"
)

type StartupSummary struct {
	Market    MarketSummary
	Execution ExecutionSummary
	Backtest  BacktestSummary
}

type MarketSummary struct {
	Symbol         string
	Interval       string
	HigherInterval string
	BufferSize     int
	Sandbox        bool
}

type ExecutionSummary struct {
	Mode           string
	InitialBalance float64
	SandboxKeys    bool
	LiveKeys       bool
}

type BacktestSummary struct {
	Jobs          []string
	Presets       []string
	Leverage      float64
	RegimeFilter  string
	HistoryLimit  int
	MaxConcurrent int
	ReportPath    string
}

func newStartupSummary(cfg *config.Config, reg *presets.Registry) *StartupSummary {
	s := &StartupSummary{
		Market: MarketSummary{
			Symbol:         cfg.Market.Symbol,
			Interval:       cfg.Market.Interval,
			HigherInterval: cfg.Market.HigherInterval,
			BufferSize:     cfg.Market.BufferSize,
			Sandbox:        cfg.Market.Sandbox,
		},
		Execution: ExecutionSummary{
			Mode:           cfg.Execution.Mode,
			InitialBalance: cfg.Execution.InitialBalance,
			SandboxKeys:    cfg.Execution.Sandbox.APIKey != "",
			LiveKeys:       cfg.Execution.Live.APIKey != "",
		},
		Backtest: BacktestSummary{
			Jobs:          strategyNames(cfg.Backtest),
			Leverage:      cfg.Backtest.Leverage,
			RegimeFilter:  cfg.Backtest.RegimeFilter,
			HistoryLimit:  cfg.Backtest.HistoryLimit,
			MaxConcurrent: cfg.Backtest.MaxConcurrent,
			ReportPath:    cfg.Backtest.ReportPath,
		},
	}
	if reg != nil {
		s.Backtest.Presets = reg.Snapshot().IDs()
	}
	return s
}

// String renders the summary as an aligned block.
func (s *StartupSummary) String() string {
	var b strings.Builder
	line := func(format string, args ...any) {
		fmt.Fprintf(&b, format+"\n", args...)
	}
	line("[market]")
	line("  stream:     %s@%s", s.Market.Symbol, s.Market.Interval)
	line("  higher tf:  %s", orDash(s.Market.HigherInterval))
	line("  buffer:     %d", s.Market.BufferSize)
	line("  sandbox:    %t", s.Market.Sandbox)
	line("[execution]")
	line("  mode:       %s", s.Execution.Mode)
	line("  balance:    %.2f", s.Execution.InitialBalance)
	line("  keys:       sandbox=%t live=%t", s.Execution.SandboxKeys, s.Execution.LiveKeys)
	line("[backtest]")
	line("  jobs:       %s", formatList(s.Backtest.Jobs))
	line("  presets:    %s", formatList(s.Backtest.Presets))
	line("  leverage:   %.1fx", s.Backtest.Leverage)
	line("  regime:     %s", orDash(s.Backtest.RegimeFilter))
	line("  history:    %d bars, %d parallel", s.Backtest.HistoryLimit, s.Backtest.MaxConcurrent)
	line("  report:     %s", orDash(s.Backtest.ReportPath))
	return strings.TrimRight(b.String(), "\n")
}

func (s *StartupSummary) Print() {
	logger.InfoBlock(s.String())
}

func formatList(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ", ")
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
