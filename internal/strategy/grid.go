package strategy

import (
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/Donneto/Solana-trading-bot-sub000/internal/config"
	"github.com/Donneto/Solana-trading-bot-sub000/internal/market"
)

// gridLevel is one rung of the ladder. Crossed levels deactivate and are
// replaced by an opposite-side rung so the ladder heals around the price.
type gridLevel struct {
	price  float64
	side   Action
	active bool
}

// Grid plants a symmetric ladder of buy rungs below and sell rungs above the
// first observed price and trades each crossing.
type Grid struct {
	cfg     config.Grid
	trading config.Trading
	log     zerolog.Logger

	hist     series
	base     float64
	levels   []gridLevel
	lastSig  time.Time
	cooldown time.Duration
	now      func() time.Time
}

// NewGrid builds the ladder strategy from configuration.
func NewGrid(cfg config.Grid, trading config.Trading, log zerolog.Logger) *Grid {
	return &Grid{
		cfg:      cfg,
		trading:  trading,
		log:      log,
		cooldown: time.Duration(cfg.CooldownSecs) * time.Second,
		now:      time.Now,
	}
}

// Name returns the identifier used in logs and metrics.
func (s *Grid) Name() string { return "grid" }

// Reset clears the ladder along with all history and cooldown state.
func (s *Grid) Reset() {
	s.hist.reset()
	s.base = 0
	s.levels = nil
	s.lastSig = time.Time{}
}

// State returns a read-only snapshot for observability.
func (s *Grid) State() State {
	buys, sells := 0, 0
	for _, lv := range s.levels {
		if !lv.active {
			continue
		}
		if lv.side == ActionBuy {
			buys++
		} else {
			sells++
		}
	}
	return State{
		Name:         s.Name(),
		Samples:      len(s.hist.prices),
		LastSignalAt: s.lastSig,
		Detail: map[string]float64{
			"base":         s.base,
			"active_buys":  float64(buys),
			"active_sells": float64(sells),
		},
	}
}

// Analyze plants the ladder on the first tick and afterwards trades the
// closest active rung the price has crossed, replanting its opposite.
func (s *Grid) Analyze(t market.Tick) *Signal {
	s.hist.push(t.Price, t.Volume)

	if s.base == 0 {
		s.plant(t.Price)
		return nil
	}
	if !s.lastSig.IsZero() && s.now().Sub(s.lastSig) < s.cooldown {
		return nil
	}

	idx := s.crossedLevel(t.Price)
	if idx < 0 {
		return nil
	}
	// Copy before replanting; compaction moves entries around.
	lv := s.levels[idx]
	s.levels[idx].active = false
	s.replant(lv)

	s.lastSig = s.now()
	qty := s.trading.Capital * s.trading.PositionSizePct / 100 / t.Price
	sig := &Signal{
		Action:     lv.side,
		Confidence: s.confidence(t.Price, lv.price),
		Price:      t.Price,
		Quantity:   qty,
		Reason: fmt.Sprintf("grid %s: price %.4f crossed level %.4f (base %.4f)",
			lv.side, t.Price, lv.price, s.base),
		Ts: t.Ts,
	}
	if lv.side == ActionBuy {
		sig.StopLoss = t.Price * (1 - s.trading.StopLossPct/100)
		sig.TakeProfit = t.Price * (1 + s.trading.TakeProfitPct/100)
	} else {
		sig.StopLoss = t.Price * (1 + s.trading.StopLossPct/100)
		sig.TakeProfit = t.Price * (1 - s.trading.TakeProfitPct/100)
	}
	return sig
}

// plant lays the initial symmetric ladder around base.
func (s *Grid) plant(base float64) {
	s.base = base
	step := s.cfg.SpacingPct / 100
	s.levels = make([]gridLevel, 0, 2*s.cfg.Levels)
	for i := 1; i <= s.cfg.Levels; i++ {
		s.levels = append(s.levels,
			gridLevel{price: base * (1 - float64(i)*step), side: ActionBuy, active: true},
			gridLevel{price: base * (1 + float64(i)*step), side: ActionSell, active: true},
		)
	}
	s.log.Debug().Float64("base", base).Int("levels", len(s.levels)).Msg("grid ladder planted")
}

// crossedLevel returns the index of the closest active rung the price has
// reached, or -1. Buy rungs trigger at or below their price, sell rungs at or
// above.
func (s *Grid) crossedLevel(price float64) int {
	best := -1
	bestDist := math.MaxFloat64
	for i, lv := range s.levels {
		if !lv.active {
			continue
		}
		hit := (lv.side == ActionBuy && price <= lv.price) ||
			(lv.side == ActionSell && price >= lv.price)
		if !hit {
			continue
		}
		if d := math.Abs(price - lv.price); d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

// replant adds the opposite-side rung one spacing away from the crossed one
// and drops inactive rungs, keeping the ladder at its planted size for the
// whole session.
func (s *Grid) replant(crossed gridLevel) {
	step := s.cfg.SpacingPct / 100
	next := gridLevel{side: ActionSell, active: true}
	if crossed.side == ActionBuy {
		next.price = crossed.price * (1 + step)
	} else {
		next.side = ActionBuy
		next.price = crossed.price * (1 - step)
	}
	kept := s.levels[:0]
	for _, lv := range s.levels {
		if lv.active {
			kept = append(kept, lv)
		}
	}
	s.levels = append(kept, next)
}

// confidence grows with penetration past the rung and distance from the
// ladder base, bounded to a modest 55-75 range.
func (s *Grid) confidence(price, level float64) float64 {
	score := 55.0
	if level > 0 {
		score += clamp(math.Abs(price-level)/level*100*8, 0, 8)
	}
	if s.base > 0 {
		score += clamp(math.Abs(price-s.base)/s.base*100*3, 0, 12)
	}
	return clamp(score, 55, 75)
}
