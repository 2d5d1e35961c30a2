package main

import (
	"context"
	"flag"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/Donneto/Solana-trading-bot-sub000/internal/config"
	"github.com/Donneto/Solana-trading-bot-sub000/internal/engine"
	"github.com/Donneto/Solana-trading-bot-sub000/internal/exchange"
	"github.com/Donneto/Solana-trading-bot-sub000/internal/market"
	"github.com/Donneto/Solana-trading-bot-sub000/internal/metrics"
	"github.com/Donneto/Solana-trading-bot-sub000/internal/risk"
	"github.com/Donneto/Solana-trading-bot-sub000/internal/safeguards"
	"github.com/Donneto/Solana-trading-bot-sub000/internal/sentiment"
	"github.com/Donneto/Solana-trading-bot-sub000/internal/strategy"
	"github.com/Donneto/Solana-trading-bot-sub000/internal/util"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the yaml configuration")
	flag.Parse()

	// .env is optional; real env vars always win.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		bootLog := util.NewLogger("info")
		bootLog.Fatal().Err(err).Msg("load config")
	}
	log := util.NewLogger(cfg.App.LogLevel)

	_ = metrics.Serve(cfg.App.MetricsAddr)
	log.Info().Str("addr", cfg.App.MetricsAddr).Msg("metrics up")

	ctx, cancel := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var senti sentiment.Provider
	if cfg.Sentiment.Enabled {
		senti = sentiment.NewClient(cfg.Sentiment.BaseURL,
			time.Duration(cfg.Sentiment.TTLSecs)*time.Second, log)
	}

	var recorder exchange.FillRecorder
	if cfg.Paper.FillsPath != "" {
		jl, err := exchange.NewJSONLRecorder(cfg.Paper.FillsPath)
		if err != nil {
			log.Fatal().Err(err).Msg("open fill log")
		}
		defer jl.Close()
		recorder = jl
	}
	gw := exchange.NewPaperGateway(cfg.Paper.StartingCash, cfg.Paper.SlippageBps, recorder, log)

	rm := risk.NewManager(cfg.Trading, log)
	strat, err := strategy.Build(cfg.Strategy, cfg.Trading, rm, log)
	if err != nil {
		log.Fatal().Err(err).Msg("build strategy")
	}
	gate := safeguards.New(cfg.Safeguards, log)
	feed := market.NewFeed(cfg.Feed, cfg.Trading.Symbol, log)

	eng := engine.New(cfg, feed, gw, strat, rm, gate, senti, log)
	events := eng.Subscribe(64)
	go func() {
		for ev := range events {
			log.Info().Str("event", string(ev.Kind)).Str("detail", ev.Detail).Msg("engine event")
		}
	}()

	if err := eng.Run(ctx); err != nil {
		log.Error().Err(err).Msg("engine exited with error")
		os.Exit(1)
	}
	log.Info().Msg("shutdown complete")
}
