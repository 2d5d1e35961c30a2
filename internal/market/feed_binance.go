package market

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Donneto/Solana-trading-bot-sub000/internal/metrics"
)

const defaultBinanceWSURL = "wss://stream.binance.com:9443/ws"

// binanceMiniTicker is the 24h rolling window payload from the miniTicker stream.
type binanceMiniTicker struct {
	// EventType must be declared: encoding/json matches keys
	// case-insensitively, so without a field tagged "e" the string event
	// type would bind to the int64 "E" field and fail to decode.
	EventType string `json:"e"`
	EventTime int64  `json:"E"`
	Symbol    string `json:"s"`
	Close     string `json:"c"`
	Open      string `json:"o"`
	High      string `json:"h"`
	Low       string `json:"l"`
	Volume    string `json:"v"`
}

func (f *Feed) runBinance(ctx context.Context, out chan<- Tick) error {
	if f.symbol == "" {
		return fmt.Errorf("binance feed requires a symbol")
	}

	base := f.wsURL
	if base == "" {
		base = defaultBinanceWSURL
	}
	url := fmt.Sprintf("%s/%s@miniTicker", strings.TrimSuffix(base, "/"), strings.ToLower(f.symbol))

	backoff := time.Second
	retries := 0
	var lastErr error

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		err := f.consumeBinanceStream(ctx, url, out)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		lastErr = err
		retries++
		if f.maxRetries > 0 && retries >= f.maxRetries {
			return f.retriesExhausted(lastErr)
		}
		f.log.Warn().Err(err).Int("retry", retries).Dur("backoff", backoff).Msg("binance feed disconnected, retrying")
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
		backoff = backoffSchedule(backoff)
	}
}

func (f *Feed) consumeBinanceStream(ctx context.Context, url string, out chan<- Tick) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	f.log.Info().Str("provider", ProviderBinance).Str("symbol", f.symbol).Msg("connected market data feed")

	conn.SetReadLimit(1 << 20)
	conn.SetReadDeadline(time.Now().Add(30 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(30 * time.Second))
		return nil
	})

	pingCtx, pingCancel := context.WithCancel(ctx)
	defer pingCancel()
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					f.log.Warn().Err(err).Msg("binance ping failed")
					return
				}
			case <-pingCtx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		_, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		tick, err := parseMiniTicker(message)
		if err != nil {
			f.log.Warn().Err(err).Msg("failed to decode binance message")
			continue
		}

		select {
		case out <- tick:
			metrics.TicksTotal.WithLabelValues(tick.Symbol).Inc()
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func parseMiniTicker(message []byte) (Tick, error) {
	var payload binanceMiniTicker
	if err := json.Unmarshal(message, &payload); err != nil {
		return Tick{}, fmt.Errorf("unmarshal miniTicker: %w", err)
	}

	px, err := strconv.ParseFloat(payload.Close, 64)
	if err != nil {
		return Tick{}, fmt.Errorf("invalid close price: %w", err)
	}
	open, err := strconv.ParseFloat(payload.Open, 64)
	if err != nil {
		return Tick{}, fmt.Errorf("invalid open price: %w", err)
	}
	high, _ := strconv.ParseFloat(payload.High, 64)
	low, _ := strconv.ParseFloat(payload.Low, 64)
	vol, _ := strconv.ParseFloat(payload.Volume, 64)

	change := 0.0
	if open > 0 {
		change = (px - open) / open * 100
	}

	return Tick{
		Symbol:    strings.ToUpper(payload.Symbol),
		Price:     px,
		Volume:    vol,
		Ts:        time.UnixMilli(payload.EventTime),
		Change24h: change,
		High24h:   high,
		Low24h:    low,
	}, nil
}
