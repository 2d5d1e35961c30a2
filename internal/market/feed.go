package market

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Donneto/Solana-trading-bot-sub000/internal/config"
	"github.com/Donneto/Solana-trading-bot-sub000/internal/metrics"
)

const (
	// ProviderStub emits deterministic synthetic ticks (useful for tests/offline work).
	ProviderStub = "stub"
	// ProviderBinance streams live miniTicker data from Binance public websockets.
	ProviderBinance = "binance"
)

// Feed is a pluggable market data stream for one symbol.
type Feed struct {
	provider   string
	symbol     string
	wsURL      string
	maxRetries int
	log        zerolog.Logger
}

// NewFeed constructs a feed for symbol backed by the configured provider.
func NewFeed(cfg config.Feed, symbol string, log zerolog.Logger) *Feed {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if provider == "" {
		provider = ProviderStub
	}
	return &Feed{
		provider:   provider,
		symbol:     symbol,
		wsURL:      cfg.WSURL,
		maxRetries: cfg.MaxRetries,
		log:        log,
	}
}

// Run pushes ticks onto out until the context is canceled or the provider
// fails permanently. A permanent failure is returned as an error the caller
// must treat as loss of market data.
func (f *Feed) Run(ctx context.Context, out chan<- Tick) error {
	switch f.provider {
	case ProviderBinance:
		return f.runBinance(ctx, out)
	default:
		return f.runStub(ctx, out)
	}
}

// runStub walks a synthetic price around a base with a deterministic shape.
func (f *Feed) runStub(ctx context.Context, out chan<- Tick) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	base := 100.0
	step := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ts := <-ticker.C:
			step++
			px := base + 2*math.Sin(float64(step)/7)
			tick := Tick{
				Symbol:    f.symbol,
				Price:     px,
				Volume:    1 + float64(step%5),
				Ts:        ts,
				Change24h: (px - base) / base * 100,
				High24h:   base + 2,
				Low24h:    base - 2,
			}
			select {
			case out <- tick:
				metrics.TicksTotal.WithLabelValues(f.symbol).Inc()
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// backoffSchedule grows the retry delay by 1.8x up to the cap, mirroring the
// reconnect behavior of the websocket provider.
func backoffSchedule(current time.Duration) time.Duration {
	const maxBackoff = 30 * time.Second
	next := time.Duration(float64(current) * 1.8)
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

// ErrRetriesExhausted wraps the final connection error once the retry budget is spent.
func (f *Feed) retriesExhausted(last error) error {
	return fmt.Errorf("market data connection failed after %d retries: %w", f.maxRetries, last)
}
