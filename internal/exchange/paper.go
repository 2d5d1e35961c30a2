package exchange

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const epsilon = 1e-9

// FillRecorder captures fills for later inspection.
type FillRecorder interface {
	Record(Fill)
}

// PaperGateway implements Gateway against a virtual account. Fills execute at
// the last observed mark price, adjusted by configured slippage. Short
// positions are allowed; cash and inventory move symmetrically.
type PaperGateway struct {
	mu           sync.Mutex
	startingCash float64
	cash         float64
	positions    map[string]float64 // signed base quantity per symbol
	marks        map[string]float64
	slippageBps  float64
	seq          int
	recorder     FillRecorder
	log          zerolog.Logger
	now          func() time.Time
}

// NewPaperGateway constructs a paper gateway with startingCash in the quote asset.
func NewPaperGateway(startingCash, slippageBps float64, recorder FillRecorder, log zerolog.Logger) *PaperGateway {
	return &PaperGateway{
		startingCash: startingCash,
		cash:         startingCash,
		positions:    make(map[string]float64),
		marks:        make(map[string]float64),
		slippageBps:  slippageBps,
		recorder:     recorder,
		log:          log,
		now:          time.Now,
	}
}

// MarkPrice records the latest observed price for symbol; fills and equity
// are computed against it.
func (g *PaperGateway) MarkPrice(symbol string, price float64) {
	if price <= 0 {
		return
	}
	g.mu.Lock()
	g.marks[symbol] = price
	g.mu.Unlock()
}

// SubmitMarketOrder fills the order at the current mark plus slippage. A buy
// that exceeds available cash is rejected rather than errored, matching how
// a venue reports an unfilled order.
func (g *PaperGateway) SubmitMarketOrder(ctx context.Context, symbol string, side Side, qty float64) (OrderResult, error) {
	if err := ctx.Err(); err != nil {
		return OrderResult{}, err
	}
	if qty <= 0 {
		return OrderResult{}, fmt.Errorf("quantity must be positive")
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	mark := g.marks[symbol]
	if mark <= 0 {
		return OrderResult{}, fmt.Errorf("no mark price for %s", symbol)
	}

	slip := mark * g.slippageBps / 10000
	var px float64
	switch side {
	case Buy:
		px = mark + slip
	case Sell:
		px = mark - slip
	default:
		return OrderResult{}, fmt.Errorf("unknown order side %q", side)
	}

	notional := qty * px
	g.seq++
	orderID := fmt.Sprintf("paper-%d", g.seq)

	if side == Buy {
		if notional > g.cash+epsilon {
			g.log.Warn().Str("sym", symbol).Float64("notional", notional).Float64("cash", g.cash).Msg("paper order rejected: insufficient cash")
			return OrderResult{Status: StatusRejected, OrderID: orderID, Reason: "insufficient cash"}, nil
		}
		g.cash -= notional
		g.positions[symbol] += qty
	} else {
		g.cash += notional
		g.positions[symbol] -= qty
	}
	if math.Abs(g.positions[symbol]) <= epsilon {
		delete(g.positions, symbol)
	}

	fill := Fill{OrderID: orderID, Symbol: symbol, Side: side, Qty: qty, Price: px, Ts: g.now()}
	if g.recorder != nil {
		g.recorder.Record(fill)
	}
	g.log.Info().Str("sym", symbol).Str("side", string(side)).Float64("qty", qty).Float64("px", px).Str("order_id", orderID).Msg("paper order filled")

	return OrderResult{Status: StatusFilled, ExecutedQty: qty, AvgFillPrice: px, OrderID: orderID}, nil
}

// CancelOrder is a no-op for the paper gateway since market orders never rest.
func (g *PaperGateway) CancelOrder(ctx context.Context, symbol, orderID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	g.log.Debug().Str("sym", symbol).Str("order_id", orderID).Msg("paper cancel (no resting orders)")
	return nil
}

// OpenOrders reports no resting orders; the paper venue fills immediately.
func (g *PaperGateway) OpenOrders(ctx context.Context, symbol string) ([]Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return nil, nil
}

// Balance reports account equity in the quote asset: cash plus every open
// position marked at its last observed price.
func (g *PaperGateway) Balance(ctx context.Context, asset string) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	equity := g.cash
	for sym, qty := range g.positions {
		equity += qty * g.marks[sym]
	}
	return equity, nil
}

// Position returns the signed base quantity held for symbol.
func (g *PaperGateway) Position(symbol string) float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.positions[symbol]
}

// Cash returns the free quote balance.
func (g *PaperGateway) Cash() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cash
}
