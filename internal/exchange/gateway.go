// Package exchange defines the execution gateway contract and the paper
// implementation the engine trades against by default.
package exchange

import (
	"context"
	"time"
)

// Side enumerates order directions used by the gateway.
type Side string

const (
	// Buy indicates a long order.
	Buy Side = "BUY"
	// Sell indicates a short order.
	Sell Side = "SELL"
)

// OrderStatus reports the terminal state of a submitted order.
type OrderStatus string

const (
	// StatusFilled means the full quantity executed.
	StatusFilled OrderStatus = "FILLED"
	// StatusRejected means the venue refused the order; no position results.
	StatusRejected OrderStatus = "REJECTED"
)

// OrderResult summarizes a market order submission.
type OrderResult struct {
	Status       OrderStatus
	ExecutedQty  float64
	AvgFillPrice float64
	OrderID      string
	Reason       string
}

// Order is a resting or historical order as reported by the venue.
type Order struct {
	ID     string
	Symbol string
	Side   Side
	Qty    float64
	Price  float64
	Ts     time.Time
}

// Fill is a single execution written to the fill log.
type Fill struct {
	OrderID string    `json:"order_id"`
	Symbol  string    `json:"symbol"`
	Side    Side      `json:"side"`
	Qty     float64   `json:"qty"`
	Price   float64   `json:"price"`
	Ts      time.Time `json:"ts"`
}

// Gateway is the execution collaborator contract consumed by the engine.
type Gateway interface {
	SubmitMarketOrder(ctx context.Context, symbol string, side Side, qty float64) (OrderResult, error)
	CancelOrder(ctx context.Context, symbol, orderID string) error
	OpenOrders(ctx context.Context, symbol string) ([]Order, error)
	Balance(ctx context.Context, asset string) (float64, error)
}

// Marker is implemented by gateways that price fills off an externally
// observed mark, such as the paper gateway.
type Marker interface {
	MarkPrice(symbol string, price float64)
}
