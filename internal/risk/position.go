// Package risk owns open positions and enforces capital and exposure
// constraints on proposed trades.
package risk

import "time"

// Side enumerates position directions.
type Side string

const (
	// Buy is a long position.
	Buy Side = "BUY"
	// Sell is a short position.
	Sell Side = "SELL"
)

// Status tracks the position lifecycle. CANCELLED is reserved for pre-trade
// rejection paths and never applies to a position that has been open.
type Status string

const (
	StatusOpen      Status = "OPEN"
	StatusClosed    Status = "CLOSED"
	StatusCancelled Status = "CANCELLED"
)

// CloseReason explains why a position left the open set.
type CloseReason string

const (
	ReasonStopLoss     CloseReason = "STOP_LOSS"
	ReasonTakeProfit   CloseReason = "TAKE_PROFIT"
	ReasonTrailingStop CloseReason = "TRAILING_STOP"
	ReasonManual       CloseReason = "MANUAL"
	ReasonEmergency    CloseReason = "EMERGENCY"
	ReasonDailyLimit   CloseReason = "DAILY_LIMIT"
)

// Position is a single open exposure owned exclusively by the Manager from
// creation until closure. CurrentPrice, UnrealizedPnL and TrailingStopPrice
// mutate on every tick for the symbol.
type Position struct {
	ID                string
	Symbol            string
	Side              Side
	Quantity          float64
	EntryPrice        float64
	CurrentPrice      float64
	UnrealizedPnL     float64
	StopLossPrice     float64
	TakeProfitPrice   float64
	TrailingStopPrice float64
	Status            Status
	OpenedAt          time.Time
}

// Closed pairs a finished position with the trigger that closed it.
type Closed struct {
	Position Position
	Reason   CloseReason
}

// Trade is one fill recorded into the daily history.
type Trade struct {
	Side     Side
	Quantity float64
	Price    float64
	Ts       time.Time
}

// Verdict reports the outcome of a trade validation.
type Verdict struct {
	OK     bool
	Reason string
}

// StopLossFor returns the protective stop for a position entered at entry.
// Buys place the stop below entry, sells above.
func StopLossFor(side Side, entry, pct float64) float64 {
	if side == Buy {
		return entry * (1 - pct/100)
	}
	return entry * (1 + pct/100)
}

// TakeProfitFor returns the profit target for a position entered at entry.
func TakeProfitFor(side Side, entry, pct float64) float64 {
	if side == Buy {
		return entry * (1 + pct/100)
	}
	return entry * (1 - pct/100)
}

// TrailingStopFor returns the trailing stop anchored to the current price.
func TrailingStopFor(side Side, current, pct float64) float64 {
	if side == Buy {
		return current * (1 - pct/100)
	}
	return current * (1 + pct/100)
}

// unrealized computes the mark-to-market profit for a position at price.
func unrealized(side Side, entry, price, qty float64) float64 {
	if side == Buy {
		return (price - entry) * qty
	}
	return (entry - price) * qty
}
