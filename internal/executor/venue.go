package executor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"danoo/internal/logger"
	"danoo/internal/pkg/circuit"
)

// Venue is the exchange-facing surface a VenueBackend drives. Errors are
// transport or venue failures; the backend turns them into rejections.
type Venue interface {
	PlaceOrder(ctx context.Context, req OrderRequest) (VenueFill, error)
	Balance(ctx context.Context) (float64, error)
	Positions(ctx context.Context) ([]Position, error)
}

type VenueFill struct {
	OrderID        string
	Status         Status
	FillPrice      float64
	FilledQuantity float64
	Commission     float64
	Timestamp      time.Time
}

// VenueFactory builds a fresh venue client for sandbox or live mode.
type VenueFactory func(mode Mode) (Venue, error)

type VenueOptions struct {
	CacheTTL         time.Duration
	BreakerThreshold int
	BreakerCooldown  time.Duration
}

func (o VenueOptions) withDefaults() VenueOptions {
	if o.CacheTTL <= 0 {
		o.CacheTTL = 2 * time.Second
	}
	if o.BreakerThreshold <= 0 {
		o.BreakerThreshold = 5
	}
	if o.BreakerCooldown <= 0 {
		o.BreakerCooldown = 30 * time.Second
	}
	return o
}

type cached[T any] struct {
	value T
	at    time.Time
	ok    bool
}

// VenueBackend treats the venue as the source of truth. Balance and
// positions are cached for CacheTTL only to absorb bursts of queries.
type VenueBackend struct {
	mode Mode
	opts VenueOptions
	now  func() time.Time

	mu       sync.Mutex
	venue    Venue
	venueErr error
	breaker  *circuit.Breaker
	group    singleflight.Group

	balance   cached[float64]
	positions cached[[]Position]
	marks     map[string]float64
	ledger    []OrderResult
}

func NewVenueBackend(mode Mode, opts VenueOptions) *VenueBackend {
	opts = opts.withDefaults()
	return &VenueBackend{
		mode:     mode,
		opts:     opts,
		now:      time.Now,
		venueErr: fmt.Errorf("no venue configured for %s mode", mode),
		breaker:  circuit.New(string(mode), opts.BreakerThreshold, opts.BreakerCooldown),
		marks:    make(map[string]float64),
	}
}

func (v *VenueBackend) Mode() Mode { return v.mode }

// Reset swaps in a new venue connection. The ledger survives; caches and
// the breaker start over.
func (v *VenueBackend) Reset(venue Venue, err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.venue = venue
	v.venueErr = err
	if venue == nil && err == nil {
		v.venueErr = fmt.Errorf("no venue configured for %s mode", v.mode)
	}
	v.breaker = circuit.New(string(v.mode), v.opts.BreakerThreshold, v.opts.BreakerCooldown)
	v.balance = cached[float64]{}
	v.positions = cached[[]Position]{}
}

func (v *VenueBackend) client() (Venue, *circuit.Breaker, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.venue == nil {
		return nil, v.breaker, v.venueErr
	}
	return v.venue, v.breaker, nil
}

func (v *VenueBackend) PlaceOrder(ctx context.Context, req OrderRequest, currentPrice float64) OrderResult {
	req.Symbol = normalizeSymbol(req.Symbol)
	res := resultFor(req, v.mode, uuid.NewString(), v.now())
	if err := req.validate(); err != nil {
		return v.record(res.reject("%v", err))
	}
	venue, breaker, err := v.client()
	if err != nil {
		return v.record(res.reject("%v", err))
	}

	// Same reduce-only and duplicate-open policy as the simulated ledger,
	// judged against fresh venue state.
	v.invalidate()
	pos, open, err := v.Position(ctx, req.Symbol)
	if err != nil {
		return v.record(res.reject("position lookup failed: %v", err))
	}
	if req.ReduceOnly && !open {
		res.Status = StatusFilled
		res.NoOp = true
		res.FillPrice = req.Price
		if res.FillPrice <= 0 {
			res.FillPrice = currentPrice
		}
		return res
	}
	if req.ReduceOnly && req.Side == pos.Side.Opens() {
		return v.record(res.reject("reduce-only %s would increase %s position on %s", req.Side, pos.Side, req.Symbol))
	}
	if !req.ReduceOnly && open {
		return v.record(res.reject("position already open for %s", req.Symbol))
	}

	var fill VenueFill
	err = breaker.Do(func() error {
		var callErr error
		fill, callErr = venue.PlaceOrder(ctx, req)
		return callErr
	})
	if err != nil {
		if errors.Is(err, circuit.ErrOpen) {
			return v.record(res.reject("%s venue unavailable: %v", v.mode, err))
		}
		logger.Warnf("[executor] %s order %s %s rejected: %v", v.mode, req.Side, req.Symbol, err)
		return v.record(res.reject("%v", err))
	}
	v.invalidate()

	if fill.OrderID != "" {
		res.ID = fill.OrderID
	}
	if !fill.Timestamp.IsZero() {
		res.Timestamp = fill.Timestamp
	}
	res.Status = fill.Status
	if res.Status == "" {
		res.Status = StatusPending
	}
	res.FillPrice = fill.FillPrice
	res.FilledQuantity = fill.FilledQuantity
	res.Commission = fill.Commission
	if req.ReduceOnly && res.Status == StatusFilled && open {
		res.RealizedPnL = pos.PnLAt(res.FillPrice) * res.FilledQuantity / pos.Quantity
	}
	return v.record(res)
}

func (v *VenueBackend) record(res OrderResult) OrderResult {
	v.mu.Lock()
	v.ledger = append(v.ledger, res)
	v.mu.Unlock()
	return res
}

func (v *VenueBackend) invalidate() {
	v.mu.Lock()
	v.balance.ok = false
	v.positions.ok = false
	v.mu.Unlock()
}

func (v *VenueBackend) fresh(at time.Time) bool {
	return v.now().Sub(at) < v.opts.CacheTTL
}

func (v *VenueBackend) Balance(ctx context.Context) (float64, error) {
	v.mu.Lock()
	if v.balance.ok && v.fresh(v.balance.at) {
		val := v.balance.value
		v.mu.Unlock()
		return val, nil
	}
	v.mu.Unlock()

	venue, breaker, err := v.client()
	if err != nil {
		return 0, err
	}
	out, err, _ := v.group.Do("balance", func() (any, error) {
		var bal float64
		callErr := breaker.Do(func() error {
			var e error
			bal, e = venue.Balance(ctx)
			return e
		})
		if callErr != nil {
			return nil, callErr
		}
		v.mu.Lock()
		v.balance = cached[float64]{value: bal, at: v.now(), ok: true}
		v.mu.Unlock()
		return bal, nil
	})
	if err != nil {
		return 0, fmt.Errorf("%s balance: %w", v.mode, err)
	}
	return out.(float64), nil
}

func (v *VenueBackend) Positions(ctx context.Context) ([]Position, error) {
	v.mu.Lock()
	if v.positions.ok && v.fresh(v.positions.at) {
		out := v.marked(v.positions.value)
		v.mu.Unlock()
		return out, nil
	}
	v.mu.Unlock()

	venue, breaker, err := v.client()
	if err != nil {
		return nil, err
	}
	_, err, _ = v.group.Do("positions", func() (any, error) {
		var list []Position
		callErr := breaker.Do(func() error {
			var e error
			list, e = venue.Positions(ctx)
			return e
		})
		if callErr != nil {
			return nil, callErr
		}
		cleaned := make([]Position, 0, len(list))
		for _, p := range list {
			if p.Quantity <= negligibleQty {
				continue
			}
			p.Symbol = normalizeSymbol(p.Symbol)
			cleaned = append(cleaned, p)
		}
		sort.Slice(cleaned, func(i, j int) bool { return cleaned[i].Symbol < cleaned[j].Symbol })
		v.mu.Lock()
		v.positions = cached[[]Position]{value: cleaned, at: v.now(), ok: true}
		v.mu.Unlock()
		return nil, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s positions: %w", v.mode, err)
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.marked(v.positions.value), nil
}

// marked copies list and applies any mark prices set through
// UpdatePositionPnL. Callers hold v.mu.
func (v *VenueBackend) marked(list []Position) []Position {
	out := make([]Position, len(list))
	copy(out, list)
	for i := range out {
		if mark, ok := v.marks[out[i].Symbol]; ok && mark > 0 {
			out[i].MarkPrice = mark
			out[i].UnrealizedPnL = out[i].PnLAt(mark)
		}
	}
	return out
}

func (v *VenueBackend) Position(ctx context.Context, symbol string) (Position, bool, error) {
	list, err := v.Positions(ctx)
	if err != nil {
		return Position{}, false, err
	}
	symbol = normalizeSymbol(symbol)
	for _, p := range list {
		if p.Symbol == symbol {
			return p, true, nil
		}
	}
	return Position{}, false, nil
}

func (v *VenueBackend) UpdatePositionPnL(marks map[string]float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for sym, mark := range marks {
		if mark > 0 {
			v.marks[normalizeSymbol(sym)] = mark
		}
	}
}

func (v *VenueBackend) Ledger() []OrderResult {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]OrderResult, len(v.ledger))
	copy(out, v.ledger)
	return out
}
