package executor

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

const DefaultCommissionRate = 0.0004

// SimulatedBackend is an in-memory scratch ledger. Fills happen at the
// supplied price; commission is rate * quantity * price.
type SimulatedBackend struct {
	mu             sync.Mutex
	balance        float64
	commissionRate float64
	positions      map[string]*Position
	ledger         []OrderResult
	now            func() time.Time
}

func NewSimulatedBackend(initialBalance, commissionRate float64) *SimulatedBackend {
	if commissionRate < 0 {
		commissionRate = DefaultCommissionRate
	}
	return &SimulatedBackend{
		balance:        initialBalance,
		commissionRate: commissionRate,
		positions:      make(map[string]*Position),
		now:            time.Now,
	}
}

func (s *SimulatedBackend) Mode() Mode { return ModeSimulated }

func (s *SimulatedBackend) PlaceOrder(_ context.Context, req OrderRequest, currentPrice float64) OrderResult {
	req.Symbol = normalizeSymbol(req.Symbol)
	s.mu.Lock()
	defer s.mu.Unlock()

	res := resultFor(req, ModeSimulated, uuid.NewString(), s.now())
	if err := req.validate(); err != nil {
		return s.record(res.reject("%v", err))
	}
	fill := currentPrice
	if fill <= 0 {
		fill = req.Price
	}

	pos := s.positions[req.Symbol]
	if req.ReduceOnly {
		if pos == nil || pos.Quantity <= negligibleQty {
			// Nothing to reduce: report a fill at the requested price and
			// leave balance, positions and ledger untouched.
			res.Status = StatusFilled
			res.NoOp = true
			res.FillPrice = req.Price
			if res.FillPrice <= 0 {
				res.FillPrice = fill
			}
			return res
		}
		if req.Side == pos.Side.Opens() {
			return s.record(res.reject("reduce-only %s would increase %s position on %s", req.Side, pos.Side, req.Symbol))
		}
		if fill <= 0 {
			return s.record(res.reject("no price available for %s", req.Symbol))
		}
		qty := math.Min(req.Quantity, pos.Quantity)
		pnl := pos.PnLAt(fill) * qty / pos.Quantity
		commission := s.commissionRate * qty * fill
		s.balance += pnl - commission
		pos.Quantity -= qty
		if pos.Quantity <= negligibleQty {
			delete(s.positions, req.Symbol)
		}
		res.Status = StatusFilled
		res.FillPrice = fill
		res.FilledQuantity = qty
		res.Commission = commission
		res.RealizedPnL = pnl
		return s.record(res)
	}

	if pos != nil {
		return s.record(res.reject("position already open for %s", req.Symbol))
	}
	if fill <= 0 {
		return s.record(res.reject("no price available for %s", req.Symbol))
	}
	commission := s.commissionRate * req.Quantity * fill
	if s.balance-commission < 0 {
		return s.record(res.reject("insufficient simulated balance %.2f", s.balance))
	}
	s.balance -= commission
	side := Long
	if req.Side == SideSell {
		side = Short
	}
	s.positions[req.Symbol] = &Position{
		Symbol:     req.Symbol,
		Side:       side,
		EntryPrice: fill,
		Quantity:   req.Quantity,
		EntryTime:  res.Timestamp,
		StopLoss:   req.StopLoss,
		TakeProfit: req.TakeProfit,
		MarkPrice:  fill,
		Strategy:   req.Strategy,
	}
	res.Status = StatusFilled
	res.FillPrice = fill
	res.FilledQuantity = req.Quantity
	res.Commission = commission
	return s.record(res)
}

func (s *SimulatedBackend) record(res OrderResult) OrderResult {
	s.ledger = append(s.ledger, res)
	return res
}

func (s *SimulatedBackend) Balance(context.Context) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balance, nil
}

func (s *SimulatedBackend) Position(_ context.Context, symbol string) (Position, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pos, ok := s.positions[normalizeSymbol(symbol)]
	if !ok {
		return Position{}, false, nil
	}
	return *pos, true, nil
}

func (s *SimulatedBackend) Positions(context.Context) ([]Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Position, 0, len(s.positions))
	for _, p := range s.positions {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

func (s *SimulatedBackend) UpdatePositionPnL(marks map[string]float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for sym, mark := range marks {
		pos, ok := s.positions[normalizeSymbol(sym)]
		if !ok || mark <= 0 {
			continue
		}
		pos.MarkPrice = mark
		pos.UnrealizedPnL = pos.PnLAt(mark)
	}
}

func (s *SimulatedBackend) Ledger() []OrderResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]OrderResult, len(s.ledger))
	copy(out, s.ledger)
	return out
}
