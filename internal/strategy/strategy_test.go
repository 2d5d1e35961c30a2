package strategy

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/Donneto/Solana-trading-bot-sub000/internal/config"
	"github.com/Donneto/Solana-trading-bot-sub000/internal/market"
)

func testTrading() config.Trading {
	return config.Trading{
		Symbol:          "SOLUSDT",
		Capital:         10000,
		PositionSizePct: 10,
		StopLossPct:     2,
		TakeProfitPct:   3,
		TrailingStopPct: 1.5,
	}
}

func tick(price, volume float64) market.Tick {
	return market.Tick{Symbol: "SOLUSDT", Price: price, Volume: volume, Ts: time.Now()}
}

func TestBuildSelectsMode(t *testing.T) {
	cfg := config.Strategy{
		Mode:          "mean_reversion",
		MeanReversion: config.MeanReversion{Period: 20, Deviation: 2, MinConfidence: 70, CooldownSecs: 60},
		Momentum:      config.Momentum{MinConfidence: 70, PassScore: 0.6, MaxExposurePct: 20, CooldownSecs: 300},
		Grid:          config.Grid{Levels: 3, SpacingPct: 1, CooldownSecs: 30},
	}

	for mode, want := range map[string]string{
		"mean_reversion": "mean_reversion",
		"Momentum":       "momentum",
		"grid":           "grid",
	} {
		cfg.Mode = mode
		s, err := Build(cfg, testTrading(), nil, zerolog.Nop())
		if err != nil {
			t.Fatalf("Build(%q): %v", mode, err)
		}
		if s.Name() != want {
			t.Fatalf("Build(%q) = %s, want %s", mode, s.Name(), want)
		}
	}
}

func TestBuildRejectsUnknownMode(t *testing.T) {
	if _, err := Build(config.Strategy{Mode: "martingale"}, testTrading(), nil, zerolog.Nop()); err == nil {
		t.Fatal("expected error for unknown mode")
	}
}

func TestSeriesBounded(t *testing.T) {
	var s series
	for i := 0; i < maxHistory+50; i++ {
		s.push(float64(i), 1)
	}
	if len(s.prices) != maxHistory || len(s.volumes) != maxHistory {
		t.Fatalf("history not bounded: %d prices, %d volumes", len(s.prices), len(s.volumes))
	}
	if s.prices[0] != 50 {
		t.Fatalf("oldest sample = %v, want 50", s.prices[0])
	}
}

func TestSeriesTrailingVolumeAvg(t *testing.T) {
	var s series
	for _, v := range []float64{10, 10, 10, 40} {
		s.push(100, v)
	}
	// The latest sample is excluded from its own baseline.
	if got := s.trailingVolumeAvg(10); got != 10 {
		t.Fatalf("trailingVolumeAvg = %v, want 10", got)
	}
}

func TestSeriesMomentum(t *testing.T) {
	var s series
	for _, p := range []float64{100, 99, 98, 97, 96} {
		s.push(p, 1)
	}
	if !s.momentumDown(5) || s.momentumUp(5) {
		t.Fatal("falling window should report downward momentum only")
	}
	if s.momentumDown(6) {
		t.Fatal("window longer than history should report false")
	}
}
