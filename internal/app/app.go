package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"danoo/internal/config"
	"danoo/internal/executor"
	"danoo/internal/logger"
	opshttp "danoo/internal/transport/http/ops"
)

// Commands accepted by Run.
const (
	CommandBacktest = "backtest"
	CommandLive     = "live"
)

// App wires configuration to the backtest and live services.
type App struct {
	cfg      *config.Config
	registry *prometheus.Registry
	backtest *backtestService
	live     *liveService
	exec     *executor.Manager
	ops      *opshttp.Server
	closers  []func() error

	Summary *StartupSummary
}

// NewApp builds the application without starting it.
func NewApp(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	return buildAppWithWire(context.Background(), cfg)
}

// Run executes command until it finishes or ctx is cancelled.
func (a *App) Run(ctx context.Context, command string) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	if a.Summary != nil {
		a.Summary.Print()
	}
	switch strings.ToLower(strings.TrimSpace(command)) {
	case CommandBacktest:
		_, err := a.RunBacktest(ctx)
		return err
	case CommandLive:
		return a.RunLive(ctx)
	default:
		return fmt.Errorf("unknown command %q (want %s or %s)", command, CommandBacktest, CommandLive)
	}
}

// RunBacktest runs every configured strategy and preset once.
func (a *App) RunBacktest(ctx context.Context) ([]RunOutcome, error) {
	return a.backtest.Run(ctx)
}

// RunLive follows the market stream until ctx is cancelled. The ops
// endpoint, when configured, serves alongside it.
func (a *App) RunLive(ctx context.Context) error {
	group, gctx := errgroup.WithContext(ctx)
	if a.ops != nil {
		group.Go(func() error {
			if err := a.ops.Start(gctx); err != nil {
				return fmt.Errorf("ops http server error: %w", err)
			}
			return nil
		})
	}
	group.Go(func() error {
		return a.live.Run(gctx)
	})
	err := group.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// ApplyConfig takes the reloadable parts of a new config: logging is
// already applied by the watcher, the execution mode is switched here.
func (a *App) ApplyConfig(cfg *config.Config) {
	if a == nil || cfg == nil {
		return
	}
	mode, err := executor.ParseMode(cfg.Execution.Mode)
	if err != nil {
		logger.Warnf("[app] ignoring execution mode: %v", err)
		return
	}
	if mode == a.exec.Mode() {
		return
	}
	if err := a.exec.SetMode(mode); err != nil {
		logger.Warnf("[app] switch to %s failed: %v", mode, err)
		return
	}
	logger.Infof("[app] execution mode switched to %s", mode)
}

// Executor exposes the order executor for embedding callers.
func (a *App) Executor() *executor.Manager {
	if a == nil {
		return nil
	}
	return a.exec
}

// Close releases the stores. It is safe to call more than once.
func (a *App) Close() error {
	if a == nil {
		return nil
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
