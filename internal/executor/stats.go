package executor

import "math"

// Stats summarises round trips found in a ledger. RealizedPnL is the sum
// of price differences times quantity; commissions are reported apart.
type Stats struct {
	RoundTrips  int     `json:"round_trips"`
	Wins        int     `json:"wins"`
	Losses      int     `json:"losses"`
	WinRate     float64 `json:"win_rate"`
	RealizedPnL float64 `json:"realized_pnl"`
	Commission  float64 `json:"commission"`
	OpenOrders  int     `json:"open_orders"`
}

// lot is the open exposure of one symbol while a round trip is in progress.
type lot struct {
	side  Side
	qty   float64
	entry float64
	pnl   float64
}

func filledQty(r OrderResult) float64 {
	if r.FilledQuantity > 0 {
		return r.FilledQuantity
	}
	return r.Quantity
}

// ComputeStats walks filled orders per symbol. Same-side fills add to the
// open lot at an averaged entry; opposite fills close part or all of it,
// priced on their own quantity. A round trip completes when the lot is
// used up; any excess quantity opens a lot on the other side.
func ComputeStats(ledger []OrderResult) Stats {
	var st Stats
	open := make(map[string]*lot)
	for _, r := range ledger {
		if r.Status != StatusFilled || r.NoOp {
			continue
		}
		st.Commission += r.Commission
		qty := filledQty(r)
		if qty <= negligibleQty {
			continue
		}
		l, ok := open[r.Symbol]
		if !ok {
			open[r.Symbol] = &lot{side: r.Side, qty: qty, entry: r.FillPrice}
			continue
		}
		if l.side == r.Side {
			l.entry = (l.entry*l.qty + r.FillPrice*qty) / (l.qty + qty)
			l.qty += qty
			continue
		}
		closed := math.Min(qty, l.qty)
		pnl := (r.FillPrice - l.entry) * closed
		if l.side == SideSell {
			pnl = -pnl
		}
		l.pnl += pnl
		l.qty -= closed
		if l.qty > negligibleQty {
			continue
		}
		delete(open, r.Symbol)
		st.RoundTrips++
		st.RealizedPnL += l.pnl
		if l.pnl > 0 {
			st.Wins++
		} else {
			st.Losses++
		}
		if rest := qty - closed; rest > negligibleQty {
			open[r.Symbol] = &lot{side: r.Side, qty: rest, entry: r.FillPrice}
		}
	}
	st.OpenOrders = len(open)
	if st.RoundTrips > 0 {
		st.WinRate = float64(st.Wins) / float64(st.RoundTrips) * 100
	}
	return st
}
