package risk

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Donneto/Solana-trading-bot-sub000/internal/config"
	"github.com/Donneto/Solana-trading-bot-sub000/internal/exchange"
)

// Manager owns the open position set and the daily risk state. All mutating
// methods take the internal lock so fills arriving off the tick path stay
// serialized against repricing.
type Manager struct {
	mu  sync.Mutex
	cfg config.Trading
	log zerolog.Logger

	positions map[string]*Position
	seq       int

	dailyPnL    float64
	totalPnL    float64
	dailyTrades int
	lastReset   time.Time
	history     []Trade

	now func() time.Time
}

// NewManager constructs a manager for the configured instrument.
func NewManager(cfg config.Trading, log zerolog.Logger) *Manager {
	m := &Manager{
		cfg:       cfg,
		log:       log,
		positions: make(map[string]*Position),
		now:       time.Now,
	}
	m.lastReset = m.now()
	return m
}

// rollDay resets daily counters at the first operation observed on a new
// calendar day. totalPnL is cumulative and never reset. Callers hold the lock.
func (m *Manager) rollDay() {
	now := m.now()
	ry, rm, rd := m.lastReset.Date()
	ny, nm, nd := now.Date()
	if ry == ny && rm == nm && rd == nd {
		return
	}
	m.log.Info().Float64("daily_pnl", m.dailyPnL).Int("trades", m.dailyTrades).Msg("daily risk state reset")
	m.dailyPnL = 0
	m.dailyTrades = 0
	m.history = m.history[:0]
	m.lastReset = now
}

// ValidateTrade enforces capital constraints in fixed priority order. The
// first failing check determines the rejection reason; callers must not infer
// additional failures from a single verdict.
func (m *Manager) ValidateTrade(side Side, qty, price, balance float64) Verdict {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollDay()

	if m.dailyPnL <= -m.cfg.MaxDailyLoss {
		return Verdict{Reason: "Daily loss limit reached"}
	}
	if len(m.positions) >= m.cfg.MaxOpenPositions {
		return Verdict{Reason: "Maximum open positions reached"}
	}
	if balance > 0 && qty*price/balance*100 > m.cfg.PositionSizePct {
		return Verdict{Reason: fmt.Sprintf("Position size exceeds %.1f%% of balance", m.cfg.PositionSizePct)}
	}
	if m.dailyTrades >= m.cfg.MaxDailyTrades {
		return Verdict{Reason: "Daily trade limit reached"}
	}
	if qty*price > balance*0.90 {
		return Verdict{Reason: "Insufficient balance for trade"}
	}
	return Verdict{OK: true}
}

// OpenPosition creates a position from a validated, filled order and records
// the entry into the daily history.
func (m *Manager) OpenPosition(side Side, qty, price float64) *Position {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollDay()

	m.seq++
	p := &Position{
		ID:                fmt.Sprintf("pos-%d-%d", m.seq, m.now().UnixMilli()),
		Symbol:            m.cfg.Symbol,
		Side:              side,
		Quantity:          qty,
		EntryPrice:        price,
		CurrentPrice:      price,
		StopLossPrice:     StopLossFor(side, price, m.cfg.StopLossPct),
		TakeProfitPrice:   TakeProfitFor(side, price, m.cfg.TakeProfitPct),
		TrailingStopPrice: TrailingStopFor(side, price, m.cfg.TrailingStopPct),
		Status:            StatusOpen,
		OpenedAt:          m.now(),
	}
	m.positions[p.ID] = p
	m.dailyTrades++
	m.history = append(m.history, Trade{Side: side, Quantity: qty, Price: price, Ts: m.now()})

	m.log.Info().
		Str("id", p.ID).Str("side", string(side)).
		Float64("qty", qty).Float64("entry", price).
		Float64("sl", p.StopLossPrice).Float64("tp", p.TakeProfitPrice).
		Msg("position opened")
	out := *p
	return &out
}

// Reconcile adopts pre-existing exchange orders into the position set at
// startup so they participate in the stop/target lifecycle.
func (m *Manager) Reconcile(orders []exchange.Order) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	adopted := 0
	for _, o := range orders {
		if o.Symbol != m.cfg.Symbol || o.Qty <= 0 || o.Price <= 0 {
			continue
		}
		side := Buy
		if o.Side == exchange.Sell {
			side = Sell
		}
		m.seq++
		p := &Position{
			ID:                fmt.Sprintf("pos-%d-%d", m.seq, m.now().UnixMilli()),
			Symbol:            o.Symbol,
			Side:              side,
			Quantity:          o.Qty,
			EntryPrice:        o.Price,
			CurrentPrice:      o.Price,
			StopLossPrice:     StopLossFor(side, o.Price, m.cfg.StopLossPct),
			TakeProfitPrice:   TakeProfitFor(side, o.Price, m.cfg.TakeProfitPct),
			TrailingStopPrice: TrailingStopFor(side, o.Price, m.cfg.TrailingStopPct),
			Status:            StatusOpen,
			OpenedAt:          m.now(),
		}
		m.positions[p.ID] = p
		adopted++
		m.log.Info().Str("id", p.ID).Str("order_id", o.ID).Msg("reconciled exchange order into position set")
	}
	return adopted
}

// Reprice marks every open position for symbol to price, ratchets trailing
// stops toward profit only, and evaluates exit triggers in fixed precedence:
// stop-loss, then take-profit, then trailing stop. The checks are mutually
// exclusive by price side, so exactly one trigger fires per position per tick.
func (m *Manager) Reprice(symbol string, price float64) []Closed {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollDay()

	var closed []Closed
	for _, p := range m.positions {
		if p.Symbol != symbol {
			continue
		}
		p.CurrentPrice = price
		p.UnrealizedPnL = unrealized(p.Side, p.EntryPrice, price, p.Quantity)

		trail := TrailingStopFor(p.Side, price, m.cfg.TrailingStopPct)
		if p.Side == Buy && trail > p.TrailingStopPrice {
			p.TrailingStopPrice = trail
		} else if p.Side == Sell && trail < p.TrailingStopPrice {
			p.TrailingStopPrice = trail
		}

		var reason CloseReason
		if p.Side == Buy {
			switch {
			case price <= p.StopLossPrice:
				reason = ReasonStopLoss
			case price >= p.TakeProfitPrice:
				reason = ReasonTakeProfit
			case price <= p.TrailingStopPrice:
				reason = ReasonTrailingStop
			}
		} else {
			switch {
			case price >= p.StopLossPrice:
				reason = ReasonStopLoss
			case price <= p.TakeProfitPrice:
				reason = ReasonTakeProfit
			case price >= p.TrailingStopPrice:
				reason = ReasonTrailingStop
			}
		}
		if reason != "" {
			closed = append(closed, m.realize(p, price, reason))
		}
	}
	return closed
}

// ClosePosition closes one open position at price for the given reason.
func (m *Manager) ClosePosition(id string, price float64, reason CloseReason) (Closed, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollDay()

	p, ok := m.positions[id]
	if !ok {
		return Closed{}, fmt.Errorf("position %s not open", id)
	}
	return m.realize(p, price, reason), nil
}

// CloseAll unwinds every open position at price. Used for daily-limit and
// emergency shutdown paths.
func (m *Manager) CloseAll(price float64, reason CloseReason) []Closed {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollDay()

	var closed []Closed
	for _, p := range m.positions {
		closed = append(closed, m.realize(p, price, reason))
	}
	return closed
}

// realize removes p from the open set and folds its final unrealized PnL
// into the daily and total figures. One position is one lot: its entire PnL
// is realized exactly once, at closure. Callers hold the lock.
func (m *Manager) realize(p *Position, price float64, reason CloseReason) Closed {
	p.CurrentPrice = price
	p.UnrealizedPnL = unrealized(p.Side, p.EntryPrice, price, p.Quantity)
	p.Status = StatusClosed

	m.dailyPnL += p.UnrealizedPnL
	m.totalPnL += p.UnrealizedPnL

	exitSide := Sell
	if p.Side == Sell {
		exitSide = Buy
	}
	m.history = append(m.history, Trade{Side: exitSide, Quantity: p.Quantity, Price: price, Ts: m.now()})
	delete(m.positions, p.ID)

	m.log.Info().
		Str("id", p.ID).Str("reason", string(reason)).
		Float64("entry", p.EntryPrice).Float64("exit", price).
		Float64("qty", p.Quantity).Float64("pnl", p.UnrealizedPnL).
		Float64("daily_pnl", m.dailyPnL).
		Msg("position closed")

	return Closed{Position: *p, Reason: reason}
}

// OpenPositions returns copies of the open positions ordered by id.
func (m *Manager) OpenPositions() []Position {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Position, 0, len(m.positions))
	for _, p := range m.positions {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// OpenCount reports the number of open positions.
func (m *Manager) OpenCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.positions)
}

// OpenExposure reports the marked notional of all open positions for symbol.
// It satisfies the strategy layer's exposure query.
func (m *Manager) OpenExposure(symbol string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	var total float64
	for _, p := range m.positions {
		if p.Symbol == symbol {
			total += p.Quantity * p.CurrentPrice
		}
	}
	return total
}

// DailyPnL returns realized PnL for the current day.
func (m *Manager) DailyPnL() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollDay()
	return m.dailyPnL
}

// TotalPnL returns cumulative realized PnL since process start.
func (m *Manager) TotalPnL() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.totalPnL
}

// DailyTrades returns the number of trades opened today.
func (m *Manager) DailyTrades() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollDay()
	return m.dailyTrades
}

// RiskScore blends position, daily-loss and trade-frequency utilization into
// a 0-100 observability score. It has no gating effect.
func (m *Manager) RiskScore() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollDay()

	posUtil := 0.0
	if m.cfg.MaxOpenPositions > 0 {
		posUtil = float64(len(m.positions)) / float64(m.cfg.MaxOpenPositions)
	}
	lossUtil := 0.0
	if m.cfg.MaxDailyLoss > 0 && m.dailyPnL < 0 {
		lossUtil = -m.dailyPnL / m.cfg.MaxDailyLoss
	}
	tradeUtil := 0.0
	if m.cfg.MaxDailyTrades > 0 {
		tradeUtil = float64(m.dailyTrades) / float64(m.cfg.MaxDailyTrades)
	}

	score := 40*clamp01(posUtil) + 40*clamp01(lossUtil) + 20*clamp01(tradeUtil)
	return score
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
