package strategy

import (
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/Donneto/Solana-trading-bot-sub000/internal/config"
	"github.com/Donneto/Solana-trading-bot-sub000/internal/indicator"
	"github.com/Donneto/Solana-trading-bot-sub000/internal/market"
	"github.com/Donneto/Solana-trading-bot-sub000/internal/sentiment"
)

// Trend labels the market regime the momentum strategy sees.
type Trend string

const (
	TrendStrongUp   Trend = "STRONG_UP"
	TrendWeakUp     Trend = "WEAK_UP"
	TrendNeutral    Trend = "NEUTRAL"
	TrendWeakDown   Trend = "WEAK_DOWN"
	TrendStrongDown Trend = "STRONG_DOWN"
)

const (
	macdFast   = 12
	macdSlow   = 26
	macdSignal = 9

	rsiPeriod       = 14
	dsPeriod        = 14
	volWindow       = 20
	highVolPct      = 3.0
	confidenceCeil  = 95.0
	strongDirScore  = 40.0
	strongSpreadPct = 0.5
	weakSpreadPct   = 0.1
)

// Momentum rides established trends confirmed by MACD, RSI and directional
// strength. Position size is capped by the notional already deployed on the
// symbol; a zero size is a valid "do not trade" outcome.
type Momentum struct {
	cfg      config.Momentum
	trading  config.Trading
	exposure ExposureQuery
	log      zerolog.Logger

	hist      series
	lastSig   time.Time
	cooldown  time.Duration
	lastTrend Trend
	trendFor  int // consecutive ticks the trend label has held
	now       func() time.Time
}

// NewMomentum builds the momentum strategy. exposure may be nil, in which
// case the symbol is treated as unexposed.
func NewMomentum(cfg config.Momentum, trading config.Trading, exposure ExposureQuery, log zerolog.Logger) *Momentum {
	return &Momentum{
		cfg:       cfg,
		trading:   trading,
		exposure:  exposure,
		log:       log,
		cooldown:  time.Duration(cfg.CooldownSecs) * time.Second,
		lastTrend: TrendNeutral,
		now:       time.Now,
	}
}

// Name returns the identifier used in logs and metrics.
func (s *Momentum) Name() string { return "momentum" }

// Reset clears all accumulated history and cooldown state.
func (s *Momentum) Reset() {
	s.hist.reset()
	s.lastSig = time.Time{}
	s.lastTrend = TrendNeutral
	s.trendFor = 0
}

// State returns a read-only snapshot for observability.
func (s *Momentum) State() State {
	detail := map[string]float64{"trend_ticks": float64(s.trendFor)}
	if len(s.hist.prices) >= macdSlow {
		detail["ema12"] = indicator.EMA(s.hist.prices, macdFast)
		detail["ema26"] = indicator.EMA(s.hist.prices, macdSlow)
		detail["rsi"] = indicator.RSI(s.hist.prices, rsiPeriod)
		detail["dir_strength"] = indicator.DirectionalStrength(s.hist.prices, dsPeriod)
	}
	return State{Name: s.Name(), Samples: len(s.hist.prices), LastSignalAt: s.lastSig, Detail: detail}
}

// Analyze appends the tick, reclassifies the trend, and emits a signal when
// the weighted condition score clears the pass threshold.
func (s *Momentum) Analyze(t market.Tick) *Signal {
	s.hist.push(t.Price, t.Volume)
	if len(s.hist.prices) < macdSlow {
		return nil
	}

	ema12 := indicator.EMA(s.hist.prices, macdFast)
	ema26 := indicator.EMA(s.hist.prices, macdSlow)
	rsi := indicator.RSI(s.hist.prices, rsiPeriod)
	ds := indicator.DirectionalStrength(s.hist.prices, dsPeriod)
	_, _, hist := indicator.MACD(s.hist.prices, macdFast, macdSlow, macdSignal)

	trend := classifyTrend(ema12, ema26, rsi, ds)
	if trend == s.lastTrend {
		s.trendFor++
	} else {
		s.lastTrend = trend
		s.trendFor = 1
	}

	if !s.lastSig.IsZero() && s.now().Sub(s.lastSig) < s.cooldown {
		return nil
	}

	var action Action
	switch {
	case ema12 > ema26:
		action = ActionBuy
	case ema12 < ema26:
		action = ActionSell
	default:
		return nil
	}

	score := s.conditionScore(action, t, rsi, trend, hist)
	if score < s.cfg.PassScore {
		return nil
	}

	qty := s.positionSize(t)
	if qty <= 0 {
		s.log.Debug().Str("action", string(action)).Msg("momentum setup passed but exposure cap sized it to zero")
		return nil
	}

	confidence := s.confidence(action, t, rsi, ds, trend, hist)
	s.lastSig = s.now()
	sig := &Signal{
		Action:     action,
		Confidence: confidence,
		Price:      t.Price,
		Quantity:   qty,
		Reason: fmt.Sprintf("momentum %s: trend %s (x%d), score %.2f, rsi %.1f, ds %.1f",
			action, trend, s.trendFor, score, rsi, ds),
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

// classifyTrend labels the regime from directional strength, EMA spread and RSI.
func classifyTrend(ema12, ema26, rsi, ds float64) Trend {
	if ema26 <= 0 {
		return TrendNeutral
	}
	spreadPct := (ema12 - ema26) / ema26 * 100
	switch {
	case ds >= strongDirScore && spreadPct >= strongSpreadPct && rsi >= 55:
		return TrendStrongUp
	case ds >= strongDirScore && spreadPct <= -strongSpreadPct && rsi <= 45:
		return TrendStrongDown
	case spreadPct > weakSpreadPct && rsi >= 50:
		return TrendWeakUp
	case spreadPct < -weakSpreadPct && rsi <= 50:
		return TrendWeakDown
	default:
		return TrendNeutral
	}
}

// conditionScore sums the weighted entry conditions for the proposed action.
func (s *Momentum) conditionScore(action Action, t market.Tick, rsi float64, trend Trend, hist []float64) float64 {
	score := 0.0

	if len(hist) > 0 {
		latest := hist[len(hist)-1]
		crossed := len(hist) > 1 && signFlip(hist[len(hist)-2], latest, action)
		aligned := (action == ActionBuy && latest > 0) || (action == ActionSell && latest < 0)
		switch {
		case crossed:
			score += 0.30
		case aligned:
			score += 0.15
		}
	}

	if rsi >= 25 && rsi <= 75 {
		score += 0.20
	}

	switch {
	case action == ActionBuy && trend == TrendStrongUp,
		action == ActionSell && trend == TrendStrongDown:
		score += 0.25
	case action == ActionBuy && trend == TrendWeakUp,
		action == ActionSell && trend == TrendWeakDown:
		score += 0.15
	}

	if avg := s.hist.trailingVolumeAvg(volumeLookback); avg > 0 && t.Volume > volumeFactor*avg {
		score += 0.15
	}

	if sentimentAligned(action, t.Sentiment) {
		score += 0.10
	}

	return score
}

// signFlip reports a MACD-histogram zero crossing in the action's direction.
func signFlip(prev, latest float64, action Action) bool {
	if action == ActionBuy {
		return prev <= 0 && latest > 0
	}
	return prev >= 0 && latest < 0
}

func sentimentAligned(action Action, reading *sentiment.Reading) bool {
	if reading == nil {
		return false
	}
	switch reading.Classification {
	case sentiment.Greed, sentiment.ExtremeGreed:
		return action == ActionBuy
	case sentiment.Fear, sentiment.ExtremeFear:
		return action == ActionSell
	default:
		return false
	}
}

// confidence maps signal quality into [MinConfidence, 95].
func (s *Momentum) confidence(action Action, t market.Tick, rsi, ds float64, trend Trend, hist []float64) float64 {
	score := s.cfg.MinConfidence

	if len(hist) > 0 && t.Price > 0 {
		histBps := math.Abs(hist[len(hist)-1]) / t.Price * 10000
		score += clamp(histBps, 0, 8)
	}
	if action == ActionBuy {
		score += clamp((rsi-50)/25*5, 0, 5)
	} else {
		score += clamp((50-rsi)/25*5, 0, 5)
	}
	score += clamp(ds/10, 0, 10)

	switch trend {
	case TrendStrongUp, TrendStrongDown:
		score += 5
	case TrendWeakUp, TrendWeakDown:
		score += 2
	}
	if sentimentAligned(action, t.Sentiment) {
		score += 5
	}

	return clamp(score, s.cfg.MinConfidence, confidenceCeil)
}

// positionSize caps new notional by what is already deployed on the symbol
// and shrinks it under elevated realized volatility.
func (s *Momentum) positionSize(t market.Tick) float64 {
	desired := s.trading.Capital * s.trading.PositionSizePct / 100
	maxExposure := s.trading.Capital * s.cfg.MaxExposurePct / 100

	deployed := 0.0
	if s.exposure != nil {
		deployed = s.exposure.OpenExposure(t.Symbol)
	}
	room := maxExposure - deployed
	if room <= 0 {
		return 0
	}
	notional := math.Min(desired, room)

	if t.Price > 0 {
		volPct := indicator.StdDev(s.hist.prices, volWindow) / t.Price * 100
		if volPct > highVolPct {
			notional *= 0.5
		}
	}

	return notional / t.Price
}
