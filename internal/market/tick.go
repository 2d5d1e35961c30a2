// Package market models tick data and hosts the pluggable feed implementations.
package market

import (
	"time"

	"github.com/Donneto/Solana-trading-bot-sub000/internal/sentiment"
)

// Tick is one market observation for a symbol. Ticks are produced by a feed,
// optionally decorated with a sentiment reading, and never mutated afterwards.
type Tick struct {
	Symbol    string
	Price     float64
	Volume    float64
	Ts        time.Time
	Change24h float64 // percent
	High24h   float64
	Low24h    float64
	Sentiment *sentiment.Reading
}
