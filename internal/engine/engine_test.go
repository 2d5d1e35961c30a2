package engine

import (
	"context"
	"runtime"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/Donneto/Solana-trading-bot-sub000/internal/config"
	"github.com/Donneto/Solana-trading-bot-sub000/internal/exchange"
	"github.com/Donneto/Solana-trading-bot-sub000/internal/market"
	"github.com/Donneto/Solana-trading-bot-sub000/internal/risk"
	"github.com/Donneto/Solana-trading-bot-sub000/internal/safeguards"
	"github.com/Donneto/Solana-trading-bot-sub000/internal/strategy"
)

func testConfig() *config.Config {
	return &config.Config{
		Feed: config.Feed{Provider: market.ProviderStub},
		Trading: config.Trading{
			Symbol:           "SOLUSDT",
			QuoteAsset:       "USDT",
			Capital:          10000,
			MaxDailyLoss:     200,
			PositionSizePct:  10,
			StopLossPct:      2,
			TakeProfitPct:    3,
			TrailingStopPct:  1.5,
			MaxOpenPositions: 3,
			MaxDailyTrades:   50,
		},
		Safeguards: config.Safeguards{
			MaxConsecutiveLosses: 10,
			LossCooloffSecs:      1,
			VolatilityWindow:     500,
			VolatilityMaxPct:     50,
		},
	}
}

// scripted emits one prepared signal on its nth Analyze call.
type scripted struct {
	calls  int
	fireAt int
	action strategy.Action
	qty    float64
}

func (s *scripted) Analyze(t market.Tick) *strategy.Signal {
	s.calls++
	if s.calls != s.fireAt {
		return nil
	}
	return &strategy.Signal{
		Action:     s.action,
		Confidence: 80,
		Price:      t.Price,
		Quantity:   s.qty,
		Reason:     "scripted",
		Ts:         t.Ts,
	}
}

func (s *scripted) Reset()                {}
func (s *scripted) State() strategy.State { return strategy.State{Name: s.Name()} }
func (s *scripted) Name() string          { return "scripted" }

func newTestEngine(cfg *config.Config, strat strategy.Strategy) (*Engine, *exchange.PaperGateway, *risk.Manager) {
	gw := exchange.NewPaperGateway(cfg.Trading.Capital, 0, nil, zerolog.Nop())
	rm := risk.NewManager(cfg.Trading, zerolog.Nop())
	gate := safeguards.New(cfg.Safeguards, zerolog.Nop())
	feed := market.NewFeed(cfg.Feed, cfg.Trading.Symbol, zerolog.Nop())
	return New(cfg, feed, gw, strat, rm, gate, nil, zerolog.Nop()), gw, rm
}

func tickAt(price float64) market.Tick {
	return market.Tick{Symbol: "SOLUSDT", Price: price, Volume: 10, Ts: time.Now()}
}

// step feeds one tick and, if it produced an order, settles the fill the way
// the run loop would.
func step(e *Engine, price float64) {
	e.handleTick(context.Background(), tickAt(price))
	select {
	case fr := <-e.fills:
		e.handleFill(fr)
	case <-time.After(300 * time.Millisecond):
	}
}

func waitEvent(t *testing.T, ch <-chan Event, kind EventKind, timeout time.Duration) Event {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case ev := <-ch:
			if ev.Kind == kind {
				return ev
			}
		case <-deadline:
			t.Fatalf("event %s not observed within %v", kind, timeout)
		}
	}
}

func TestEngineSignalToPosition(t *testing.T) {
	cfg := testConfig()
	e, gw, rm := newTestEngine(cfg, &scripted{fireAt: 1, action: strategy.ActionBuy, qty: 5})
	events := e.Subscribe(8)

	step(e, 100)

	if got := rm.OpenCount(); got != 1 {
		t.Fatalf("open positions = %d, want 1", got)
	}
	if got := gw.Position("SOLUSDT"); got != 5 {
		t.Fatalf("gateway inventory = %v, want 5", got)
	}
	st := e.Stats()
	if st.Signals != 1 || st.Executed != 1 || st.Rejected != 0 {
		t.Fatalf("stats = %+v, want 1 signal, 1 executed", st)
	}
	waitEvent(t, events, EventTradeExecuted, time.Second)
}

func TestEngineStopLossRoundTrip(t *testing.T) {
	cfg := testConfig()
	e, gw, rm := newTestEngine(cfg, &scripted{fireAt: 1, action: strategy.ActionBuy, qty: 5})
	events := e.Subscribe(8)

	step(e, 100) // opens long 5 @ 100, stop at 98
	step(e, 97)  // breaches the stop

	if got := rm.OpenCount(); got != 0 {
		t.Fatalf("open positions = %d, want 0 after stop", got)
	}
	if got := rm.DailyPnL(); got != -15 {
		t.Fatalf("daily pnl = %v, want -15", got)
	}
	if got := gw.Position("SOLUSDT"); got != 0 {
		t.Fatalf("gateway inventory = %v, want flat", got)
	}
	waitEvent(t, events, EventPositionClosed, time.Second)
}

func TestEngineRejectionCounted(t *testing.T) {
	cfg := testConfig()
	// 50 @ 100 is half the account, far over the 10% position cap.
	e, _, rm := newTestEngine(cfg, &scripted{fireAt: 1, action: strategy.ActionBuy, qty: 50})

	step(e, 100)

	if got := rm.OpenCount(); got != 0 {
		t.Fatalf("open positions = %d, want 0", got)
	}
	st := e.Stats()
	if st.Signals != 1 || st.Executed != 0 || st.Rejected != 1 {
		t.Fatalf("stats = %+v, want 1 signal, 1 rejected", st)
	}
}

func TestEngineDailyLossLimitUnwinds(t *testing.T) {
	cfg := testConfig()
	cfg.Trading.MaxDailyLoss = 10
	e, _, rm := newTestEngine(cfg, &scripted{fireAt: 1, action: strategy.ActionBuy, qty: 5})
	events := e.Subscribe(8)

	step(e, 100) // long 5 @ 100
	step(e, 97)  // stop loss realizes -15, breaching the 10 limit

	waitEvent(t, events, EventDailyLossReached, time.Second)
	if got := rm.OpenCount(); got != 0 {
		t.Fatalf("open positions = %d, want 0 after unwind", got)
	}
	select {
	case <-e.quit:
	default:
		t.Fatal("engine not stopped after daily loss limit")
	}
}

func TestEngineEmergencyShutdownIdempotent(t *testing.T) {
	cfg := testConfig()
	e, gw, rm := newTestEngine(cfg, &scripted{fireAt: 1, action: strategy.ActionBuy, qty: 5})
	events := e.Subscribe(8)

	step(e, 100)
	if rm.OpenCount() != 1 {
		t.Fatal("expected one open position before shutdown")
	}

	e.EmergencyShutdown()
	e.EmergencyShutdown()

	waitEvent(t, events, EventEmergencyShutdown, time.Second)
	if got := rm.OpenCount(); got != 0 {
		t.Fatalf("open positions = %d, want 0 after emergency", got)
	}
	if got := gw.Position("SOLUSDT"); got != 0 {
		t.Fatalf("gateway inventory = %v, want flat", got)
	}
	// One emergency event only; the second call is a no-op.
	for {
		select {
		case ev := <-events:
			if ev.Kind == EventEmergencyShutdown {
				t.Fatal("emergency event delivered twice")
			}
		default:
			return
		}
	}
}

// slowGateway delays every submission, standing in for a remote venue.
type slowGateway struct {
	*exchange.PaperGateway
	delay time.Duration
}

func (g *slowGateway) SubmitMarketOrder(ctx context.Context, symbol string, side exchange.Side, qty float64) (exchange.OrderResult, error) {
	time.Sleep(g.delay)
	return g.PaperGateway.SubmitMarketOrder(ctx, symbol, side, qty)
}

func TestEngineCloseDoesNotBlockTickPath(t *testing.T) {
	cfg := testConfig()
	gw := &slowGateway{
		PaperGateway: exchange.NewPaperGateway(cfg.Trading.Capital, 0, nil, zerolog.Nop()),
		delay:        250 * time.Millisecond,
	}
	rm := risk.NewManager(cfg.Trading, zerolog.Nop())
	gate := safeguards.New(cfg.Safeguards, zerolog.Nop())
	feed := market.NewFeed(cfg.Feed, cfg.Trading.Symbol, zerolog.Nop())
	e := New(cfg, feed, gw, &scripted{fireAt: 1, action: strategy.ActionBuy, qty: 5}, rm, gate, nil, zerolog.Nop())

	e.handleTick(context.Background(), tickAt(100))
	select {
	case fr := <-e.fills:
		e.handleFill(fr)
	case <-time.After(2 * time.Second):
		t.Fatal("entry fill not delivered")
	}
	if rm.OpenCount() != 1 {
		t.Fatal("expected one open position")
	}

	// The stop-loss tick must not wait on the venue round trip.
	start := time.Now()
	e.handleTick(context.Background(), tickAt(97))
	if elapsed := time.Since(start); elapsed >= gw.delay {
		t.Fatalf("tick path blocked %v on the close order", elapsed)
	}
	if rm.OpenCount() != 0 {
		t.Fatal("position not closed on the stop tick")
	}

	// The offsetting order still lands through the fill channel.
	select {
	case fr := <-e.fills:
		if !fr.exit {
			t.Fatalf("expected exit fill, got %+v", fr)
		}
		e.handleFill(fr)
	case <-time.After(2 * time.Second):
		t.Fatal("exit fill not delivered")
	}
	if got := gw.Position("SOLUSDT"); got != 0 {
		t.Fatalf("gateway inventory = %v, want flat", got)
	}
}

func TestEngineQuitStopsFeed(t *testing.T) {
	cfg := testConfig()
	e, _, _ := newTestEngine(cfg, &scripted{fireAt: -1})
	events := e.Subscribe(8)

	done := make(chan error, 1)
	go func() { done <- e.Run(context.Background()) }()
	waitEvent(t, events, EventStarted, 2*time.Second)
	before := runtime.NumGoroutine()

	// Exit via the quit channel, without caller cancellation.
	e.EmergencyShutdown()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after emergency shutdown")
	}

	// Both the run loop and the feed goroutine must wind down.
	deadline := time.Now().Add(2 * time.Second)
	for runtime.NumGoroutine() > before-2 {
		if time.Now().After(deadline) {
			t.Fatalf("goroutines = %d, want <= %d after shutdown", runtime.NumGoroutine(), before-2)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestEngineRunOverStubFeed(t *testing.T) {
	cfg := testConfig()
	e, _, _ := newTestEngine(cfg, &scripted{fireAt: 5, action: strategy.ActionBuy, qty: 1})
	events := e.Subscribe(32)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	waitEvent(t, events, EventStarted, 2*time.Second)
	waitEvent(t, events, EventTradeExecuted, 5*time.Second)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if e.State() != StateStopped {
		t.Fatalf("state = %s, want STOPPED", e.State())
	}
	if e.Stats().Executed < 1 {
		t.Fatal("expected at least one executed trade")
	}
}

func TestEngineEventBusDropsOldest(t *testing.T) {
	var bus eventBus
	ch := bus.Subscribe(2)

	bus.publish(EventStarted, "a")
	bus.publish(EventTradeExecuted, "b")
	bus.publish(EventStopped, "c") // overflows; "a" is dropped

	first := <-ch
	if first.Kind != EventTradeExecuted {
		t.Fatalf("first event = %s, want %s after drop-oldest", first.Kind, EventTradeExecuted)
	}
	second := <-ch
	if second.Kind != EventStopped {
		t.Fatalf("second event = %s, want %s", second.Kind, EventStopped)
	}
}
