package executor

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"danoo/internal/logger"
	"danoo/internal/metrics"
)

// Manager routes every call to the backend of the active mode. Order
// evaluation is serialised per symbol so a second order never sees
// position state that an in-flight order is about to change.
type Manager struct {
	mu       sync.RWMutex
	mode     Mode
	sim      *SimulatedBackend
	venues   map[Mode]*VenueBackend
	factory  VenueFactory
	metrics  *metrics.Metrics
	maxGap   float64
	symLocks sync.Map
}

type ManagerOption func(*Manager)

func WithVenueFactory(f VenueFactory) ManagerOption {
	return func(m *Manager) { m.factory = f }
}

func WithVenueOptions(opts VenueOptions) ManagerOption {
	return func(m *Manager) {
		m.venues[ModeSandbox] = NewVenueBackend(ModeSandbox, opts)
		m.venues[ModeLive] = NewVenueBackend(ModeLive, opts)
	}
}

func WithMetrics(mt *metrics.Metrics) ManagerOption {
	return func(m *Manager) { m.metrics = mt }
}

// WithPriceGapLimit rejects orders whose limit or stop price sits more
// than pct (a fraction) away from the current price. Zero disables it.
func WithPriceGapLimit(pct float64) ManagerOption {
	return func(m *Manager) {
		if pct > 0 {
			m.maxGap = pct
		}
	}
}

func NewManager(mode Mode, sim *SimulatedBackend, opts ...ManagerOption) (*Manager, error) {
	if sim == nil {
		sim = NewSimulatedBackend(10_000, DefaultCommissionRate)
	}
	m := &Manager{
		mode: ModeSimulated,
		sim:  sim,
		venues: map[Mode]*VenueBackend{
			ModeSandbox: NewVenueBackend(ModeSandbox, VenueOptions{}),
			ModeLive:    NewVenueBackend(ModeLive, VenueOptions{}),
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	if err := m.SetMode(mode); err != nil {
		return nil, err
	}
	return m, nil
}

// SetMode switches the active backend. Switching to sandbox or live
// rebuilds that venue's connection; every backend keeps its ledger.
// A venue that cannot be built leaves the mode active with all orders
// rejected until the next SetMode.
func (m *Manager) SetMode(mode Mode) error {
	switch mode {
	case ModeSimulated, ModeSandbox, ModeLive:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
	if mode != ModeSimulated {
		var venue Venue
		var err error
		if m.factory != nil {
			venue, err = m.factory(mode)
		}
		if err != nil {
			logger.Warnf("[executor] %s venue unavailable: %v", mode, err)
		}
		m.venues[mode].Reset(venue, err)
	}
	m.mu.Lock()
	prev := m.mode
	m.mode = mode
	m.mu.Unlock()
	if prev != mode {
		logger.Infof("[executor] mode %s -> %s", prev, mode)
	}
	return nil
}

func (m *Manager) Mode() Mode {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.mode
}

func (m *Manager) backend() Backend {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.backendFor(m.mode)
}

func (m *Manager) backendFor(mode Mode) Backend {
	if mode == ModeSimulated {
		return m.sim
	}
	return m.venues[mode]
}

func (m *Manager) lockSymbol(symbol string) func() {
	v, _ := m.symLocks.LoadOrStore(normalizeSymbol(symbol), &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// PlaceOrder never returns an error: failures come back as REJECTED results.
func (m *Manager) PlaceOrder(ctx context.Context, req OrderRequest, currentPrice float64) OrderResult {
	unlock := m.lockSymbol(req.Symbol)
	defer unlock()
	return m.place(ctx, m.backend(), req, currentPrice)
}

// priceGap is the relative distance of the order's own price from the
// market. Market orders and unknown prices report zero.
func priceGap(req OrderRequest, current float64) float64 {
	px := req.Price
	if px <= 0 {
		px = req.StopPrice
	}
	if px <= 0 || current <= 0 || req.Kind == KindMarket {
		return 0
	}
	return math.Abs(px-current) / current
}

func (m *Manager) place(ctx context.Context, b Backend, req OrderRequest, price float64) OrderResult {
	var res OrderResult
	if gap := priceGap(req, price); m.maxGap > 0 && gap > m.maxGap {
		res = resultFor(req, b.Mode(), uuid.NewString(), time.Now()).
			reject("price gap %.2f%% exceeds %.2f%% limit", gap*100, m.maxGap*100)
	} else {
		res = b.PlaceOrder(ctx, req, price)
	}
	m.metrics.Order(string(res.Mode), string(res.Status))
	if res.Status == StatusRejected {
		logger.Warnf("[executor] %s %s %s %.8f rejected: %s", res.Mode, res.Side, res.Symbol, res.Quantity, res.Error)
	} else {
		logger.Infof("[executor] %s %s %s %.8f %s @ %.8f", res.Mode, res.Side, res.Symbol, res.FilledQuantity, res.Status, res.FillPrice)
	}
	return res
}

// ClosePosition flattens symbol with an opposite-side reduce-only market
// order. ok is false when there was nothing to close.
func (m *Manager) ClosePosition(ctx context.Context, symbol string, currentPrice float64) (OrderResult, bool, error) {
	unlock := m.lockSymbol(symbol)
	defer unlock()
	b := m.backend()
	pos, open, err := b.Position(ctx, symbol)
	if err != nil {
		return OrderResult{}, false, err
	}
	if !open || pos.Quantity <= negligibleQty {
		return OrderResult{}, false, nil
	}
	req := OrderRequest{
		Symbol:     pos.Symbol,
		Side:       pos.Side.Opens().Opposite(),
		Kind:       KindMarket,
		Quantity:   pos.Quantity,
		ReduceOnly: true,
		Strategy:   pos.Strategy,
	}
	return m.place(ctx, b, req, currentPrice), true, nil
}

func (m *Manager) Balance(ctx context.Context) (float64, error) {
	return m.backend().Balance(ctx)
}

func (m *Manager) Position(ctx context.Context, symbol string) (Position, bool, error) {
	return m.backend().Position(ctx, symbol)
}

func (m *Manager) Positions(ctx context.Context) ([]Position, error) {
	return m.backend().Positions(ctx)
}

// UpdatePositionPnL marks open positions to the given prices without
// touching the balance.
func (m *Manager) UpdatePositionPnL(marks map[string]float64) {
	m.backend().UpdatePositionPnL(marks)
}

// Equity is balance plus unrealized PnL of every open position.
func (m *Manager) Equity(ctx context.Context) (float64, error) {
	b := m.backend()
	bal, err := b.Balance(ctx)
	if err != nil {
		return 0, err
	}
	positions, err := b.Positions(ctx)
	if err != nil {
		return 0, err
	}
	for _, p := range positions {
		bal += p.UnrealizedPnL
	}
	return bal, nil
}

func (m *Manager) Ledger() []OrderResult {
	return m.backend().Ledger()
}

// LedgerFor returns the ledger of any backend, active or not.
func (m *Manager) LedgerFor(mode Mode) ([]OrderResult, error) {
	switch mode {
	case ModeSimulated, ModeSandbox, ModeLive:
		return m.backendFor(mode).Ledger(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
}

func (m *Manager) Stats() Stats {
	return ComputeStats(m.Ledger())
}
