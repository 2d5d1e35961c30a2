package engine

import (
	"sync"
	"time"
)

// EventKind identifies a lifecycle or trading event emitted by the engine.
type EventKind string

const (
	EventStarted            EventKind = "started"
	EventStopped            EventKind = "stopped"
	EventEmergencyShutdown  EventKind = "emergency_shutdown"
	EventTradeExecuted      EventKind = "trade_executed"
	EventPositionClosed     EventKind = "position_closed"
	EventDailyProfitReached EventKind = "daily_profit_target_reached"
	EventDailyLossReached   EventKind = "daily_loss_limit_reached"
)

// Event is a broadcast notification. Detail is human-readable context only;
// consumers must not parse it.
type Event struct {
	Kind   EventKind
	Detail string
	Ts     time.Time
}

// eventBus fans events out to subscriber channels. Delivery never blocks the
// trading loop: a full subscriber drops its oldest event to make room.
type eventBus struct {
	mu   sync.Mutex
	subs []chan Event
}

// Subscribe registers a buffered event channel. A non-positive buffer gets a
// sensible default.
func (b *eventBus) Subscribe(buffer int) <-chan Event {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)
	b.mu.Lock()
	b.subs = append(b.subs, ch)
	b.mu.Unlock()
	return ch
}

func (b *eventBus) publish(kind EventKind, detail string) {
	ev := Event{Kind: kind, Detail: detail, Ts: time.Now()}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
			continue
		default:
		}
		// Full: drop the oldest and retry once.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- ev:
		default:
		}
	}
}
