// Package engine drives the tick pipeline: market data in, strategy
// signals through risk and safeguard gates, orders out, positions tracked.
// All trading state mutates on a single goroutine; fills from the async
// submit path re-enter through a channel consumed by the same loop.
package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/Donneto/Solana-trading-bot-sub000/internal/config"
	"github.com/Donneto/Solana-trading-bot-sub000/internal/exchange"
	"github.com/Donneto/Solana-trading-bot-sub000/internal/market"
	"github.com/Donneto/Solana-trading-bot-sub000/internal/metrics"
	"github.com/Donneto/Solana-trading-bot-sub000/internal/risk"
	"github.com/Donneto/Solana-trading-bot-sub000/internal/safeguards"
	"github.com/Donneto/Solana-trading-bot-sub000/internal/sentiment"
	"github.com/Donneto/Solana-trading-bot-sub000/internal/strategy"
)

// State is the engine lifecycle phase.
type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "STARTING"
	case StateRunning:
		return "RUNNING"
	default:
		return "STOPPED"
	}
}

// Stats counts signal outcomes since the last reset. The counters auto-reset
// after an hour with no signal activity so a stale session starts clean.
type Stats struct {
	Signals  int
	Executed int
	Rejected int
}

const (
	fillBuffer    = 16
	tickBuffer    = 64
	reportEvery   = 30 * time.Second
	statsQuietAge = time.Hour
)

// fillResult carries an async order submission back onto the loop goroutine.
// exit marks the offsetting order for a closed position; posID is set for
// exits only.
type fillResult struct {
	side   risk.Side
	result exchange.OrderResult
	err    error
	exit   bool
	posID  string
}

// Engine wires the feed, strategy, risk manager, safeguards and execution
// gateway into one trading loop for a single instrument.
type Engine struct {
	cfg   *config.Config
	log   zerolog.Logger
	feed  *market.Feed
	gw    exchange.Gateway
	strat strategy.Strategy
	risk  *risk.Manager
	gate  *safeguards.Gate
	senti sentiment.Provider // nil disables sentiment stamping

	eventBus

	state     atomic.Int32
	emergency atomic.Bool
	quit      chan struct{}
	stopOnce  sync.Once
	unwindOne sync.Once

	fills     chan fillResult
	lastPrice atomic.Uint64 // float64 bits; read by shutdown paths off-loop

	statsMu      sync.Mutex
	stats        Stats
	lastActivity time.Time

	now func() time.Time
}

// New assembles an engine. senti may be nil.
func New(cfg *config.Config, feed *market.Feed, gw exchange.Gateway, strat strategy.Strategy,
	rm *risk.Manager, gate *safeguards.Gate, senti sentiment.Provider, log zerolog.Logger) *Engine {
	return &Engine{
		cfg:   cfg,
		log:   log,
		feed:  feed,
		gw:    gw,
		strat: strat,
		risk:  rm,
		gate:  gate,
		senti: senti,
		quit:  make(chan struct{}),
		fills: make(chan fillResult, fillBuffer),
		now:   time.Now,
	}
}

// State reports the current lifecycle phase.
func (e *Engine) State() State { return State(e.state.Load()) }

// Stats returns a copy of the signal counters.
func (e *Engine) Stats() Stats {
	e.statsMu.Lock()
	defer e.statsMu.Unlock()
	return e.stats
}

// Run executes the trading loop until ctx is canceled, the feed fails
// permanently, or a shutdown path fires. It always leaves the engine STOPPED.
func (e *Engine) Run(ctx context.Context) error {
	e.state.Store(int32(StateStarting))
	defer func() {
		e.state.Store(int32(StateStopped))
		e.publish(EventStopped, "engine stopped")
	}()

	if err := e.startup(ctx); err != nil {
		return err
	}

	// The feed runs under a loop-owned context so exits through the quit
	// channel (daily limits, emergency) stop it too, not just caller cancel.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ticks := make(chan market.Tick, tickBuffer)
	feedErr := make(chan error, 1)
	go func() { feedErr <- e.feed.Run(ctx, ticks) }()

	report := time.NewTicker(reportEvery)
	defer report.Stop()

	e.state.Store(int32(StateRunning))
	e.publish(EventStarted, fmt.Sprintf("trading %s in %s mode", e.cfg.Trading.Symbol, e.strat.Name()))
	e.log.Info().Str("symbol", e.cfg.Trading.Symbol).Str("strategy", e.strat.Name()).Msg("engine running")

	for {
		select {
		case <-ctx.Done():
			e.stop()
			return nil
		case <-e.quit:
			return nil
		case t := <-ticks:
			e.handleTick(ctx, t)
		case fr := <-e.fills:
			e.handleFill(fr)
		case err := <-feedErr:
			if errors.Is(err, context.Canceled) {
				e.stop()
				return nil
			}
			// Market data is gone for good; we cannot manage open risk blind.
			e.log.Error().Err(err).Msg("market data lost, triggering emergency shutdown")
			e.EmergencyShutdown()
			return err
		case <-report.C:
			e.report()
		}
	}
}

// startup probes the gateway and adopts any pre-existing orders so they
// participate in the stop/target lifecycle from the first tick.
func (e *Engine) startup(ctx context.Context) error {
	balance, err := e.gw.Balance(ctx, e.cfg.Trading.QuoteAsset)
	if err != nil {
		return fmt.Errorf("gateway probe: %w", err)
	}
	orders, err := e.gw.OpenOrders(ctx, e.cfg.Trading.Symbol)
	if err != nil {
		return fmt.Errorf("open orders: %w", err)
	}
	if adopted := e.risk.Reconcile(orders); adopted > 0 {
		e.log.Info().Int("adopted", adopted).Msg("reconciled pre-existing orders")
	}
	e.log.Info().Float64("balance", balance).Msg("gateway ready")
	return nil
}

// handleTick runs one pass of the pipeline: reprice open positions, evaluate
// daily limits, then let the strategy propose a trade.
func (e *Engine) handleTick(ctx context.Context, t market.Tick) {
	e.lastPrice.Store(math.Float64bits(t.Price))
	if e.senti != nil && t.Sentiment == nil {
		t.Sentiment = e.senti.Current()
	}
	e.gate.Observe(t.Price)
	if m, ok := e.gw.(exchange.Marker); ok {
		m.MarkPrice(t.Symbol, t.Price)
	}

	for _, c := range e.risk.Reprice(t.Symbol, t.Price) {
		e.submitExit(ctx, c)
		e.closeEvents(c)
		e.gate.RecordResult(c.Position.UnrealizedPnL)
	}
	metrics.OpenPositions.Set(float64(e.risk.OpenCount()))
	metrics.DailyPnL.Set(e.risk.DailyPnL())
	metrics.RiskScore.Set(e.risk.RiskScore())

	if e.checkDailyLimits(ctx) {
		return
	}
	if e.emergency.Load() {
		return
	}

	sig := e.strat.Analyze(t)
	if sig == nil || sig.Action == strategy.ActionHold {
		return
	}
	e.bumpSignals()
	metrics.SignalsTotal.WithLabelValues(e.strat.Name(), string(sig.Action)).Inc()
	e.log.Info().
		Str("action", string(sig.Action)).Float64("confidence", sig.Confidence).
		Float64("price", sig.Price).Float64("qty", sig.Quantity).
		Str("reason", sig.Reason).Msg("signal")

	balance, err := e.gw.Balance(ctx, e.cfg.Trading.QuoteAsset)
	if err != nil {
		e.log.Error().Err(err).Msg("balance query failed")
		e.reject("Balance unavailable")
		return
	}
	if v := e.risk.ValidateTrade(risk.Side(sig.Action), sig.Quantity, sig.Price, balance); !v.OK {
		e.reject(v.Reason)
		return
	}
	if v := e.gate.Check(sig.Quantity, sig.Price); !v.OK {
		e.reject(v.Reason)
		return
	}

	e.submit(ctx, risk.Side(sig.Action), sig.Quantity)
}

// submit sends the order off the loop goroutine; the outcome re-enters
// through the fill channel so position state stays single-writer.
func (e *Engine) submit(ctx context.Context, side risk.Side, qty float64) {
	go func() {
		res, err := e.gw.SubmitMarketOrder(ctx, e.cfg.Trading.Symbol, exchange.Side(side), qty)
		select {
		case e.fills <- fillResult{side: side, result: res, err: err}:
		case <-e.quit:
		}
	}()
}

// handleFill opens a position for a filled entry order. Exit fills only
// settle bookkeeping; anything unfilled is logged and dropped, never retried.
func (e *Engine) handleFill(fr fillResult) {
	symbol := e.cfg.Trading.Symbol
	if fr.exit {
		switch {
		case fr.err != nil:
			metrics.OrdersTotal.WithLabelValues(symbol, string(fr.side), "error").Inc()
			// The book already dropped the position; execution drift is
			// logged, not re-opened.
			e.log.Error().Err(fr.err).Str("id", fr.posID).Msg("offsetting order failed")
		case fr.result.Status != exchange.StatusFilled:
			metrics.OrdersTotal.WithLabelValues(symbol, string(fr.side), string(fr.result.Status)).Inc()
			e.log.Warn().Str("id", fr.posID).Str("reason", fr.result.Reason).Msg("offsetting order not filled")
		default:
			metrics.OrdersTotal.WithLabelValues(symbol, string(fr.side), string(fr.result.Status)).Inc()
			e.log.Debug().Str("id", fr.posID).Str("order_id", fr.result.OrderID).Msg("position offset filled")
		}
		return
	}
	if fr.err != nil {
		metrics.OrdersTotal.WithLabelValues(symbol, string(fr.side), "error").Inc()
		e.log.Error().Err(fr.err).Msg("order submit failed")
		e.reject("Order submit failed")
		return
	}
	if fr.result.Status != exchange.StatusFilled {
		metrics.OrdersTotal.WithLabelValues(symbol, string(fr.side), string(fr.result.Status)).Inc()
		e.log.Warn().Str("status", string(fr.result.Status)).Str("reason", fr.result.Reason).Msg("order not filled")
		e.reject("Order not filled")
		return
	}

	metrics.OrdersTotal.WithLabelValues(symbol, string(fr.side), string(fr.result.Status)).Inc()
	e.gate.RecordTrade()
	pos := e.risk.OpenPosition(fr.side, fr.result.ExecutedQty, fr.result.AvgFillPrice)
	metrics.OpenPositions.Set(float64(e.risk.OpenCount()))
	e.bumpExecuted()
	e.publish(EventTradeExecuted, fmt.Sprintf("%s %s %.6f @ %.4f (%s)",
		pos.Side, pos.Symbol, pos.Quantity, pos.EntryPrice, pos.ID))
}

// submitExit sends the offsetting order for a closed position off the loop
// goroutine, same as entries; its outcome re-enters through the fill channel
// so a slow venue cannot stall tick intake.
func (e *Engine) submitExit(ctx context.Context, c risk.Closed) {
	side := risk.Sell
	if c.Position.Side == risk.Sell {
		side = risk.Buy
	}
	qty, posID := c.Position.Quantity, c.Position.ID
	go func() {
		res, err := e.gw.SubmitMarketOrder(ctx, e.cfg.Trading.Symbol, exchange.Side(side), qty)
		select {
		case e.fills <- fillResult{side: side, result: res, err: err, exit: true, posID: posID}:
		case <-e.quit:
		}
	}()
}

// closeEvents records the metrics and broadcast for a closed position. The
// safeguards gate is fed separately on the tick path only; it is not safe to
// touch from shutdown goroutines.
func (e *Engine) closeEvents(c risk.Closed) {
	metrics.PositionClosesTotal.WithLabelValues(string(c.Reason)).Inc()
	e.publish(EventPositionClosed, fmt.Sprintf("%s %s pnl %.4f (%s)",
		c.Position.ID, c.Reason, c.Position.UnrealizedPnL, c.Position.Symbol))
}

// checkDailyLimits unwinds the book and stops trading once the daily profit
// target or loss limit is hit. Returns true when the engine is going down.
func (e *Engine) checkDailyLimits(ctx context.Context) bool {
	daily := e.risk.DailyPnL()
	if target := e.cfg.Trading.DailyProfitTarget; target > 0 && daily >= target {
		e.log.Info().Float64("daily_pnl", daily).Msg("daily profit target reached, unwinding")
		e.publish(EventDailyProfitReached, fmt.Sprintf("daily pnl %.2f", daily))
		e.unwind(ctx, risk.ReasonDailyLimit)
		e.stop()
		return true
	}
	if limit := e.cfg.Trading.MaxDailyLoss; limit > 0 && daily <= -limit {
		e.log.Warn().Float64("daily_pnl", daily).Msg("daily loss limit reached, unwinding")
		e.publish(EventDailyLossReached, fmt.Sprintf("daily pnl %.2f", daily))
		e.unwind(ctx, risk.ReasonDailyLimit)
		e.stop()
		return true
	}
	return false
}

// EmergencyShutdown force-unwinds the book and stops the engine. Safe to
// call from any goroutine, in any state, any number of times.
func (e *Engine) EmergencyShutdown() {
	if !e.emergency.CompareAndSwap(false, true) {
		return
	}
	e.log.Warn().Msg("emergency shutdown requested")
	e.publish(EventEmergencyShutdown, "emergency shutdown")
	e.unwind(context.Background(), risk.ReasonEmergency)
	e.stop()
}

// unwind closes every open position at the last observed price and cancels
// anything resting at the venue. Failures are logged, never escalated; the
// unwind is best effort by design of the shutdown paths that call it.
func (e *Engine) unwind(ctx context.Context, reason risk.CloseReason) {
	e.unwindOne.Do(func() {
		price := math.Float64frombits(e.lastPrice.Load())
		for _, c := range e.risk.CloseAll(price, reason) {
			// Unwind submits inline: it runs once, off the tick path, and
			// its orders must land before the process exits.
			exitSide := exchange.Sell
			if c.Position.Side == risk.Sell {
				exitSide = exchange.Buy
			}
			if _, err := e.gw.SubmitMarketOrder(ctx, c.Position.Symbol, exitSide, c.Position.Quantity); err != nil {
				e.log.Error().Err(err).Str("id", c.Position.ID).Msg("offsetting order failed")
			}
			e.closeEvents(c)
		}
		metrics.OpenPositions.Set(0)
		metrics.DailyPnL.Set(e.risk.DailyPnL())

		orders, err := e.gw.OpenOrders(ctx, e.cfg.Trading.Symbol)
		if err != nil {
			e.log.Error().Err(err).Msg("listing orders during unwind")
			return
		}
		for _, o := range orders {
			if err := e.gw.CancelOrder(ctx, o.Symbol, o.ID); err != nil {
				e.log.Error().Err(err).Str("order_id", o.ID).Msg("cancel during unwind")
			}
		}
	})
}

// stop makes the run loop exit; safe to call more than once.
func (e *Engine) stop() {
	e.stopOnce.Do(func() { close(e.quit) })
}

func (e *Engine) reject(reason string) {
	e.statsMu.Lock()
	e.stats.Rejected++
	e.lastActivity = e.now()
	e.statsMu.Unlock()
	metrics.SignalsRejectedTotal.WithLabelValues(reason).Inc()
	e.log.Warn().Str("reason", reason).Msg("trade rejected")
}

func (e *Engine) bumpSignals() {
	e.statsMu.Lock()
	e.stats.Signals++
	e.lastActivity = e.now()
	e.statsMu.Unlock()
}

func (e *Engine) bumpExecuted() {
	e.statsMu.Lock()
	e.stats.Executed++
	e.lastActivity = e.now()
	e.statsMu.Unlock()
}

// report logs the periodic stats line and clears counters that have been
// idle for over an hour.
func (e *Engine) report() {
	e.statsMu.Lock()
	st := e.stats
	stale := !e.lastActivity.IsZero() && e.now().Sub(e.lastActivity) > statsQuietAge
	if stale {
		e.stats = Stats{}
		e.lastActivity = time.Time{}
	}
	e.statsMu.Unlock()

	e.log.Info().
		Int("signals", st.Signals).Int("executed", st.Executed).Int("rejected", st.Rejected).
		Float64("daily_pnl", e.risk.DailyPnL()).Float64("total_pnl", e.risk.TotalPnL()).
		Int("open", e.risk.OpenCount()).Float64("risk_score", e.risk.RiskScore()).
		Msg("session stats")
	if stale {
		e.log.Info().Msg("stats reset after quiet hour")
	}
}
