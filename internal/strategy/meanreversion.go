package strategy

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/Donneto/Solana-trading-bot-sub000/internal/config"
	"github.com/Donneto/Solana-trading-bot-sub000/internal/indicator"
	"github.com/Donneto/Solana-trading-bot-sub000/internal/market"
	"github.com/Donneto/Solana-trading-bot-sub000/internal/sentiment"
)

const (
	volumeLookback   = 10
	momentumLookback = 5
	volumeFactor     = 1.2
)

// MeanReversion fades moves outside the Bollinger bands back toward the mean.
// It buys band-lower breaks confirmed by oversold RSI or a sub-mean price,
// elevated volume and falling short-term momentum; sells are mirrored.
type MeanReversion struct {
	cfg      config.MeanReversion
	trading  config.Trading
	log      zerolog.Logger
	hist     series
	lastSig  time.Time
	cooldown time.Duration
	now      func() time.Time
}

// NewMeanReversion builds the reversion strategy from configuration.
func NewMeanReversion(cfg config.MeanReversion, trading config.Trading, log zerolog.Logger) *MeanReversion {
	return &MeanReversion{
		cfg:      cfg,
		trading:  trading,
		log:      log,
		cooldown: time.Duration(cfg.CooldownSecs) * time.Second,
		now:      time.Now,
	}
}

// Name returns the identifier used in logs and metrics.
func (s *MeanReversion) Name() string { return "mean_reversion" }

// Reset clears all accumulated history and cooldown state.
func (s *MeanReversion) Reset() {
	s.hist.reset()
	s.lastSig = time.Time{}
}

// State returns a read-only snapshot for observability.
func (s *MeanReversion) State() State {
	detail := map[string]float64{}
	if len(s.hist.prices) >= s.cfg.Period {
		upper, middle, lower := indicator.Bollinger(s.hist.prices, s.cfg.Period, s.cfg.Deviation)
		detail["upper"] = upper
		detail["middle"] = middle
		detail["lower"] = lower
		detail["rsi"] = indicator.RSI(s.hist.prices, s.cfg.Period)
	}
	return State{Name: s.Name(), Samples: len(s.hist.prices), LastSignalAt: s.lastSig, Detail: detail}
}

// Analyze appends the tick and emits a signal when a reversion setup clears
// the confidence gate. Insufficient history returns nil.
func (s *MeanReversion) Analyze(t market.Tick) *Signal {
	s.hist.push(t.Price, t.Volume)
	if len(s.hist.prices) < s.cfg.Period {
		return nil
	}
	if !s.lastSig.IsZero() && s.now().Sub(s.lastSig) < s.cooldown {
		return nil
	}

	// SMA, bands and RSI all share the configured reversion period.
	upper, middle, lower := indicator.Bollinger(s.hist.prices, s.cfg.Period, s.cfg.Deviation)
	rsi := indicator.RSI(s.hist.prices, s.cfg.Period)
	volAvg := s.hist.trailingVolumeAvg(volumeLookback)
	volumeOK := volAvg > 0 && t.Volume > volumeFactor*volAvg

	var action Action
	switch {
	case t.Price <= lower && (rsi <= 30 || t.Price < middle) && volumeOK && s.hist.momentumDown(momentumLookback):
		action = ActionBuy
	case t.Price >= upper && (rsi >= 70 || t.Price > middle) && volumeOK && s.hist.momentumUp(momentumLookback):
		action = ActionSell
	default:
		return nil
	}

	confidence, vetoed := s.confidence(action, t, upper, middle, lower, rsi, volAvg)
	if vetoed {
		s.log.Debug().Str("action", string(action)).Msg("reversion signal vetoed by opposing sentiment extreme")
		return nil
	}
	if confidence < s.cfg.MinConfidence {
		s.log.Debug().Float64("confidence", confidence).Str("action", string(action)).Msg("reversion setup below confidence gate")
		return nil
	}

	s.lastSig = s.now()
	qty := s.trading.Capital * s.trading.PositionSizePct / 100 / t.Price
	sig := &Signal{
		Action:     action,
		Confidence: confidence,
		Price:      t.Price,
		Quantity:   qty,
		Reason: fmt.Sprintf("reversion %s: price %.4f vs band [%.4f, %.4f], rsi %.1f, vol %.1fx",
			action, t.Price, lower, upper, rsi, t.Volume/volAvg),
		Ts: t.Ts,
	}
	if action == ActionBuy {
		sig.StopLoss = t.Price * (1 - s.trading.StopLossPct/100)
		sig.TakeProfit = t.Price * (1 + s.trading.TakeProfitPct/100)
	} else {
		sig.StopLoss = t.Price * (1 + s.trading.StopLossPct/100)
		sig.TakeProfit = t.Price * (1 - s.trading.TakeProfitPct/100)
	}
	return sig
}

// confidence scores a setup from band penetration, RSI extremity and distance
// from the mean, penalized by band width and adjusted by sentiment extremes.
// The second return reports a veto by an opposing sentiment extreme.
func (s *MeanReversion) confidence(action Action, t market.Tick, upper, middle, lower, rsi, volAvg float64) (float64, bool) {
	score := 50.0

	if action == ActionBuy {
		penetration := 0.0
		if lower > 0 {
			penetration = (lower - t.Price) / lower
		}
		score += 10 + clamp(penetration*2000, 0, 15)
		if rsi <= 30 {
			score += (30 - rsi) / 30 * 20
		}
		if middle > 0 {
			score += clamp((middle-t.Price)/middle*400, 0, 15)
		}
	} else {
		penetration := 0.0
		if upper > 0 {
			penetration = (t.Price - upper) / upper
		}
		score += 10 + clamp(penetration*2000, 0, 15)
		if rsi >= 70 {
			score += (rsi - 70) / 30 * 20
		}
		if middle > 0 {
			score += clamp((t.Price-middle)/middle*400, 0, 15)
		}
	}

	// Wide bands mean the "extreme" is ordinary volatility; discount it.
	if middle > 0 {
		widthPct := (upper - lower) / middle * 100
		score -= clamp(widthPct, 0, 10)
	}
	if volAvg > 0 {
		score += clamp((t.Volume/volAvg-volumeFactor)*10, 0, 10)
	}

	if t.Sentiment != nil {
		switch t.Sentiment.Classification {
		case sentiment.ExtremeFear:
			if action == ActionBuy {
				score += 20
			} else {
				return 0, true
			}
		case sentiment.ExtremeGreed:
			if action == ActionSell {
				score += 20
			} else {
				return 0, true
			}
		}
	}

	return clamp(score, 0, 100), false
}
