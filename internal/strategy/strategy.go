// Package strategy contains the signal generation logic wired into ticks.
// Each variant keeps a bounded per-symbol history and emits at most one
// signal per tick; all of them run on the single serialized tick path.
package strategy

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Donneto/Solana-trading-bot-sub000/internal/config"
	"github.com/Donneto/Solana-trading-bot-sub000/internal/market"
)

// Action is the direction a signal requests.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"
)

// Signal expresses one trading decision produced by a strategy. Signals are
// ephemeral; they are consumed by the engine and never persisted.
type Signal struct {
	Action     Action
	Confidence float64 // 0-100
	Price      float64
	Quantity   float64
	StopLoss   float64
	TakeProfit float64
	Reason     string
	Ts         time.Time
}

// State is a read-only snapshot of strategy internals for observability.
type State struct {
	Name         string
	Samples      int
	LastSignalAt time.Time
	Detail       map[string]float64
}

// Strategy defines behaviour shared by the strategy implementations.
// Analyze returns nil both for HOLD decisions and when history is too short;
// insufficient data is not an error.
type Strategy interface {
	Analyze(t market.Tick) *Signal
	Reset()
	State() State
	Name() string
}

// ExposureQuery lets a strategy ask how much notional is already deployed on
// a symbol without holding a reference to the whole risk manager.
type ExposureQuery interface {
	OpenExposure(symbol string) float64
}

// Build returns the strategy implementation matching the configured mode.
// An unknown mode is a construction-time failure, not a runtime fallback.
func Build(cfg config.Strategy, trading config.Trading, exposure ExposureQuery, log zerolog.Logger) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Mode)) {
	case "mean_reversion", "meanreversion", "reversion":
		return NewMeanReversion(cfg.MeanReversion, trading, log), nil
	case "momentum", "trend":
		return NewMomentum(cfg.Momentum, trading, exposure, log), nil
	case "grid", "grid_trading":
		return NewGrid(cfg.Grid, trading, log), nil
	default:
		return nil, fmt.Errorf("unknown strategy mode %q", cfg.Mode)
	}
}

// maxHistory bounds every per-strategy price/volume buffer.
const maxHistory = 200

// series is a bounded price/volume history shared by the strategy variants.
type series struct {
	prices  []float64
	volumes []float64
}

func (s *series) push(price, volume float64) {
	s.prices = append(s.prices, price)
	s.volumes = append(s.volumes, volume)
	if len(s.prices) > maxHistory {
		s.prices = s.prices[len(s.prices)-maxHistory:]
		s.volumes = s.volumes[len(s.volumes)-maxHistory:]
	}
}

func (s *series) reset() {
	s.prices = s.prices[:0]
	s.volumes = s.volumes[:0]
}

// trailingVolumeAvg averages the n volumes before the most recent sample.
func (s *series) trailingVolumeAvg(n int) float64 {
	if len(s.volumes) < 2 {
		return 0
	}
	prior := s.volumes[:len(s.volumes)-1]
	if len(prior) > n {
		prior = prior[len(prior)-n:]
	}
	var sum float64
	for _, v := range prior {
		sum += v
	}
	return sum / float64(len(prior))
}

// momentumDown reports whether the last n samples drifted lower.
func (s *series) momentumDown(n int) bool {
	if len(s.prices) < n {
		return false
	}
	window := s.prices[len(s.prices)-n:]
	return window[len(window)-1] < window[0]
}

// momentumUp reports whether the last n samples drifted higher.
func (s *series) momentumUp(n int) bool {
	if len(s.prices) < n {
		return false
	}
	window := s.prices[len(s.prices)-n:]
	return window[len(window)-1] > window[0]
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
