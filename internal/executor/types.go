// Package executor places orders through one contract backed by a
// simulated ledger, a sandbox venue or a live venue.
package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"danoo/internal/pkg/symbol"
)

// ErrUnknownMode is a programming error: the mode is not one of the
// supported backends.
var ErrUnknownMode = errors.New("unknown execution mode")

type Mode string

const (
	ModeSimulated Mode = "simulated"
	ModeSandbox   Mode = "sandbox"
	ModeLive      Mode = "live"
)

func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeSimulated, ModeSandbox, ModeLive:
		return m, nil
	case "paper":
		return ModeSimulated, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
}

type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

type OrderKind string

const (
	KindMarket OrderKind = "MARKET"
	KindLimit  OrderKind = "LIMIT"
	KindStop   OrderKind = "STOP"
)

type TimeInForce string

const (
	GTC TimeInForce = "GTC"
	IOC TimeInForce = "IOC"
	FOK TimeInForce = "FOK"
)

type Status string

const (
	StatusFilled   Status = "FILLED"
	StatusRejected Status = "REJECTED"
	StatusCanceled Status = "CANCELED"
	StatusPending  Status = "PENDING"
)

type PositionSide string

const (
	Long  PositionSide = "LONG"
	Short PositionSide = "SHORT"
)

// Opens returns the order side that opens a position on this side.
func (p PositionSide) Opens() Side {
	if p == Short {
		return SideSell
	}
	return SideBuy
}

type OrderRequest struct {
	Symbol      string      `json:"symbol"`
	Side        Side        `json:"side"`
	Kind        OrderKind   `json:"kind"`
	Quantity    float64     `json:"quantity"`
	Price       float64     `json:"price,omitempty"`
	StopPrice   float64     `json:"stop_price,omitempty"`
	ReduceOnly  bool        `json:"reduce_only"`
	TimeInForce TimeInForce `json:"time_in_force,omitempty"`
	Strategy    string      `json:"strategy,omitempty"`
	StopLoss    float64     `json:"stop_loss,omitempty"`
	TakeProfit  float64     `json:"take_profit,omitempty"`
}

func (r OrderRequest) validate() error {
	if strings.TrimSpace(r.Symbol) == "" {
		return errors.New("symbol is required")
	}
	if r.Side != SideBuy && r.Side != SideSell {
		return fmt.Errorf("invalid side %q", r.Side)
	}
	switch r.Kind {
	case KindMarket:
	case KindLimit:
		if r.Price <= 0 {
			return errors.New("limit order requires a price")
		}
	case KindStop:
		if r.StopPrice <= 0 {
			return errors.New("stop order requires a stop price")
		}
	default:
		return fmt.Errorf("invalid order kind %q", r.Kind)
	}
	if r.Quantity <= 0 {
		return errors.New("quantity must be positive")
	}
	return nil
}

// OrderResult is always returned, including for rejected orders. NoOp marks
// a reduce-only order that found nothing to reduce.
type OrderResult struct {
	ID             string      `json:"id"`
	Symbol         string      `json:"symbol"`
	Side           Side        `json:"side"`
	Kind           OrderKind   `json:"kind"`
	Quantity       float64     `json:"quantity"`
	Price          float64     `json:"price,omitempty"`
	StopPrice      float64     `json:"stop_price,omitempty"`
	ReduceOnly     bool        `json:"reduce_only"`
	TimeInForce    TimeInForce `json:"time_in_force,omitempty"`
	Strategy       string      `json:"strategy,omitempty"`
	FillPrice      float64     `json:"fill_price"`
	FilledQuantity float64     `json:"filled_quantity"`
	Status         Status      `json:"status"`
	Timestamp      time.Time   `json:"timestamp"`
	Mode           Mode        `json:"mode"`
	Commission     float64     `json:"commission"`
	RealizedPnL    float64     `json:"realized_pnl,omitempty"`
	Error          string      `json:"error,omitempty"`
	NoOp           bool        `json:"no_op,omitempty"`
}

func resultFor(req OrderRequest, mode Mode, id string, at time.Time) OrderResult {
	return OrderResult{
		ID:          id,
		Symbol:      req.Symbol,
		Side:        req.Side,
		Kind:        req.Kind,
		Quantity:    req.Quantity,
		Price:       req.Price,
		StopPrice:   req.StopPrice,
		ReduceOnly:  req.ReduceOnly,
		TimeInForce: req.TimeInForce,
		Strategy:    req.Strategy,
		Timestamp:   at,
		Mode:        mode,
	}
}

func (r OrderResult) reject(format string, args ...any) OrderResult {
	r.Status = StatusRejected
	r.Error = fmt.Sprintf(format, args...)
	return r
}

type Position struct {
	Symbol        string       `json:"symbol"`
	Side          PositionSide `json:"side"`
	EntryPrice    float64      `json:"entry_price"`
	Quantity      float64      `json:"quantity"`
	EntryTime     time.Time    `json:"entry_time"`
	StopLoss      float64      `json:"stop_loss,omitempty"`
	TakeProfit    float64      `json:"take_profit,omitempty"`
	MarkPrice     float64      `json:"mark_price,omitempty"`
	UnrealizedPnL float64      `json:"unrealized_pnl"`
	Strategy      string       `json:"strategy,omitempty"`
}

// PnLAt is the unrealized profit at mark.
func (p Position) PnLAt(mark float64) float64 {
	if p.Side == Short {
		return (p.EntryPrice - mark) * p.Quantity
	}
	return (mark - p.EntryPrice) * p.Quantity
}

// negligibleQty treats dust left by float arithmetic as flat.
const negligibleQty = 1e-12

// Backend is implemented by SimulatedBackend and VenueBackend.
type Backend interface {
	Mode() Mode
	PlaceOrder(ctx context.Context, req OrderRequest, currentPrice float64) OrderResult
	Balance(ctx context.Context) (float64, error)
	Position(ctx context.Context, symbol string) (Position, bool, error)
	Positions(ctx context.Context) ([]Position, error)
	UpdatePositionPnL(marks map[string]float64)
	Ledger() []OrderResult
}

func normalizeSymbol(s string) string {
	return symbol.Ticker(s)
}
