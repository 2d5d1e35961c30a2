package market

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/Donneto/Solana-trading-bot-sub000/internal/config"
)

func TestStubFeedEmitsTicks(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	feed := NewFeed(config.Feed{Provider: ProviderStub}, "SOLUSDT", zerolog.Nop())
	ticks := make(chan Tick, 8)
	go func() { _ = feed.Run(ctx, ticks) }()

	select {
	case tk := <-ticks:
		if tk.Symbol != "SOLUSDT" {
			t.Fatalf("unexpected symbol %s", tk.Symbol)
		}
		if tk.Price <= 0 || tk.Volume <= 0 {
			t.Fatalf("unexpected tick values: %+v", tk)
		}
		if tk.Ts.IsZero() {
			t.Fatalf("expected tick timestamp")
		}
	case <-ctx.Done():
		t.Fatalf("timed out waiting for stub tick")
	}
}

func TestParseMiniTicker(t *testing.T) {
	raw := []byte(`{"e":"24hrMiniTicker","E":1700000000000,"s":"solusdt","c":"58.40","o":"56.00","h":"59.10","l":"55.20","v":"12345.6","q":"700000.0"}`)
	tick, err := parseMiniTicker(raw)
	if err != nil {
		t.Fatalf("parseMiniTicker returned error: %v", err)
	}
	if tick.Symbol != "SOLUSDT" {
		t.Fatalf("unexpected symbol %s", tick.Symbol)
	}
	if tick.Price != 58.40 {
		t.Fatalf("unexpected price %.2f", tick.Price)
	}
	if tick.High24h != 59.10 || tick.Low24h != 55.20 {
		t.Fatalf("unexpected 24h range: %+v", tick)
	}
	change := (58.40 - 56.00) / 56.00 * 100
	if diff := tick.Change24h - change; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("unexpected 24h change %.4f", tick.Change24h)
	}
}

func TestParseMiniTickerRejectsGarbage(t *testing.T) {
	if _, err := parseMiniTicker([]byte(`{"c":"not-a-number","o":"1"}`)); err == nil {
		t.Fatalf("expected parse error")
	}
	if _, err := parseMiniTicker([]byte(`not json`)); err == nil {
		t.Fatalf("expected unmarshal error")
	}
}

func TestBackoffScheduleCaps(t *testing.T) {
	b := time.Second
	for i := 0; i < 20; i++ {
		b = backoffSchedule(b)
	}
	if b != 30*time.Second {
		t.Fatalf("expected capped backoff, got %s", b)
	}
}
