// Package safeguards layers supplementary trade gating on top of the risk
// manager: loss streaks, a volatility circuit breaker, minimum inter-trade
// spacing, and order-size sanity.
package safeguards

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/Donneto/Solana-trading-bot-sub000/internal/config"
	"github.com/Donneto/Solana-trading-bot-sub000/internal/indicator"
)

// Verdict reports whether a trade may proceed and, if not, why.
type Verdict struct {
	OK     bool
	Reason string
}

func allow() Verdict             { return Verdict{OK: true} }
func deny(reason string) Verdict { return Verdict{Reason: reason} }

// Gate evaluates every safeguard in a fixed order and reports the first
// failure. It is driven solely from the serialized tick path and needs no
// locking of its own.
type Gate struct {
	cfg config.Safeguards
	log zerolog.Logger

	lossStreak   int
	blockedUntil time.Time

	prices       []float64
	breakerUntil time.Time

	lastTrade time.Time
	now       func() time.Time
}

// New constructs a gate from configuration.
func New(cfg config.Safeguards, log zerolog.Logger) *Gate {
	return &Gate{cfg: cfg, log: log, now: time.Now}
}

// Observe feeds the latest price into the volatility window and trips the
// breaker when realized volatility exceeds the configured ceiling.
func (g *Gate) Observe(price float64) {
	if price <= 0 {
		return
	}
	g.prices = append(g.prices, price)
	if len(g.prices) > g.cfg.VolatilityWindow {
		g.prices = g.prices[len(g.prices)-g.cfg.VolatilityWindow:]
	}
	if len(g.prices) < g.cfg.VolatilityWindow {
		return
	}

	sigma := indicator.StdDev(g.prices, len(g.prices))
	volPct := sigma / price * 100
	if volPct > g.cfg.VolatilityMaxPct && g.now().After(g.breakerUntil) {
		g.breakerUntil = g.now().Add(time.Duration(g.cfg.BreakerSecs) * time.Second)
		g.log.Warn().Float64("vol_pct", volPct).Time("until", g.breakerUntil).Msg("volatility circuit breaker tripped")
	}
}

// RecordResult feeds a realized trade outcome into the loss-streak counter.
// Reaching the configured streak blocks new trades for the cooloff window.
func (g *Gate) RecordResult(pnl float64) {
	if pnl >= 0 {
		g.lossStreak = 0
		return
	}
	g.lossStreak++
	if g.lossStreak >= g.cfg.MaxConsecutiveLosses {
		g.blockedUntil = g.now().Add(time.Duration(g.cfg.LossCooloffSecs) * time.Second)
		g.log.Warn().Int("streak", g.lossStreak).Time("until", g.blockedUntil).Msg("consecutive loss limit reached, trading paused")
	}
}

// RecordTrade marks the time of an executed trade for spacing enforcement.
func (g *Gate) RecordTrade() {
	g.lastTrade = g.now()
}

// Check runs every safeguard in priority order: loss streak, volatility
// breaker, trade spacing, then order-size sanity. The first failing check
// wins; callers must not infer other failures from one verdict.
func (g *Gate) Check(qty, price float64) Verdict {
	now := g.now()

	if now.Before(g.blockedUntil) {
		return deny("Consecutive loss limit active")
	}
	if now.Before(g.breakerUntil) {
		return deny("Volatility circuit breaker active")
	}
	if !g.lastTrade.IsZero() {
		spacing := time.Duration(g.cfg.MinTradeSpacingSecs) * time.Second
		if now.Sub(g.lastTrade) < spacing {
			return deny("Minimum trade spacing not met")
		}
	}

	notional := qty * price
	if qty <= 0 || price <= 0 {
		return deny("Order size invalid")
	}
	if g.cfg.MinOrderNotional > 0 && notional < g.cfg.MinOrderNotional {
		return deny(fmt.Sprintf("Order notional %.2f below minimum %.2f", notional, g.cfg.MinOrderNotional))
	}
	if g.cfg.MaxOrderNotional > 0 && notional > g.cfg.MaxOrderNotional {
		return deny(fmt.Sprintf("Order notional %.2f above maximum %.2f", notional, g.cfg.MaxOrderNotional))
	}

	return allow()
}

// LossStreak reports the current consecutive loss count.
func (g *Gate) LossStreak() int { return g.lossStreak }
