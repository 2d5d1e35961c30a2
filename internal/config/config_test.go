package config

import (
	"path/filepath"
	"testing"
)

func TestLoad(t *testing.T) {
	cfg, err := Load(filepath.Join("testdata", "config.yaml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.App.Name != "solbot-test" {
		t.Fatalf("unexpected App.Name: %s", cfg.App.Name)
	}
	if cfg.Trading.Symbol != "SOLUSDT" {
		t.Fatalf("unexpected symbol: %s", cfg.Trading.Symbol)
	}
	if cfg.Trading.MaxDailyLoss != 200 {
		t.Fatalf("unexpected max daily loss: %.2f", cfg.Trading.MaxDailyLoss)
	}
	if cfg.Trading.MaxOpenPositions != 3 {
		t.Fatalf("unexpected max open positions: %d", cfg.Trading.MaxOpenPositions)
	}
	if cfg.Strategy.Mode != "mean_reversion" {
		t.Fatalf("unexpected strategy mode: %s", cfg.Strategy.Mode)
	}
	if cfg.Strategy.MeanReversion.Period != 20 {
		t.Fatalf("unexpected reversion period: %d", cfg.Strategy.MeanReversion.Period)
	}
	if cfg.Strategy.Grid.SpacingPct != 1 {
		t.Fatalf("unexpected grid spacing: %.2f", cfg.Strategy.Grid.SpacingPct)
	}
	if cfg.Safeguards.MaxConsecutiveLosses != 3 {
		t.Fatalf("unexpected loss streak limit: %d", cfg.Safeguards.MaxConsecutiveLosses)
	}
	if !cfg.Sentiment.Enabled {
		t.Fatalf("expected sentiment enabled")
	}
	if cfg.Paper.SlippageBps != 2 {
		t.Fatalf("unexpected slippage: %.2f", cfg.Paper.SlippageBps)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestValidateRejectsBadConfig(t *testing.T) {
	cfg := Config{}
	cfg.applyDefaults()
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected missing symbol to fail validation")
	}

	cfg.Trading.Symbol = "SOLUSDT"
	cfg.Trading.Capital = 1000
	cfg.Trading.MaxDailyLoss = 50
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}

	cfg.Feed.Provider = "carrier-pigeon"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected unsupported provider to fail validation")
	}
}

func TestDefaultsApplied(t *testing.T) {
	cfg := Config{}
	cfg.Trading.Symbol = "SOLUSDT"
	cfg.Trading.Capital = 5000
	cfg.Trading.MaxDailyLoss = 100
	cfg.applyDefaults()

	if cfg.Strategy.Mode != "mean_reversion" {
		t.Fatalf("expected default strategy mode, got %s", cfg.Strategy.Mode)
	}
	if cfg.Trading.StopLossPct != 2 {
		t.Fatalf("expected default stop loss, got %.2f", cfg.Trading.StopLossPct)
	}
	if cfg.Paper.StartingCash != 5000 {
		t.Fatalf("expected paper cash to default to capital, got %.2f", cfg.Paper.StartingCash)
	}
	if cfg.Feed.MaxRetries != 10 {
		t.Fatalf("expected default retry budget, got %d", cfg.Feed.MaxRetries)
	}
}
