// Package config exposes strongly typed application configuration structs loaded from YAML.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// App captures process-wide runtime settings such as name, environment, metrics, and logging levels.
type App struct {
	Name        string `yaml:"name"`
	Env         string `yaml:"env"`
	MetricsAddr string `yaml:"metrics_addr"`
	LogLevel    string `yaml:"log_level"`
}

// Feed describes the market data source the engine subscribes to.
type Feed struct {
	Provider   string `yaml:"provider"` // "stub" or "binance"
	WSURL      string `yaml:"ws_url"`
	MaxRetries int    `yaml:"max_retries"`
}

// Trading holds the capital and per-position risk parameters.
type Trading struct {
	Symbol            string  `yaml:"symbol"`
	QuoteAsset        string  `yaml:"quote_asset"`
	Capital           float64 `yaml:"capital"`
	DailyProfitTarget float64 `yaml:"daily_profit_target"`
	MaxDailyLoss      float64 `yaml:"max_daily_loss"`
	PositionSizePct   float64 `yaml:"position_size_pct"`
	StopLossPct       float64 `yaml:"stop_loss_pct"`
	TakeProfitPct     float64 `yaml:"take_profit_pct"`
	TrailingStopPct   float64 `yaml:"trailing_stop_pct"`
	MaxOpenPositions  int     `yaml:"max_open_positions"`
	MaxDailyTrades    int     `yaml:"max_daily_trades"`
}

// MeanReversion tunes the band/RSI reversion strategy.
type MeanReversion struct {
	Period        int     `yaml:"period"`
	Deviation     float64 `yaml:"deviation"`
	MinConfidence float64 `yaml:"min_confidence"`
	CooldownSecs  int     `yaml:"cooldown_secs"`
}

// Momentum tunes the MACD/trend-following strategy.
type Momentum struct {
	MinConfidence  float64 `yaml:"min_confidence"`
	PassScore      float64 `yaml:"pass_score"`
	MaxExposurePct float64 `yaml:"max_exposure_pct"`
	CooldownSecs   int     `yaml:"cooldown_secs"`
}

// Grid tunes the ladder strategy.
type Grid struct {
	Levels       int     `yaml:"levels"`
	SpacingPct   float64 `yaml:"spacing_pct"`
	CooldownSecs int     `yaml:"cooldown_secs"`
}

// Strategy selects the active strategy mode along with per-mode parameters.
type Strategy struct {
	Mode          string        `yaml:"mode"`
	MeanReversion MeanReversion `yaml:"mean_reversion"`
	Momentum      Momentum      `yaml:"momentum"`
	Grid          Grid          `yaml:"grid"`
}

// Safeguards configures the supplementary trade gating layer.
type Safeguards struct {
	MaxConsecutiveLosses int     `yaml:"max_consecutive_losses"`
	LossCooloffSecs      int     `yaml:"loss_cooloff_secs"`
	VolatilityWindow     int     `yaml:"volatility_window"`
	VolatilityMaxPct     float64 `yaml:"volatility_max_pct"`
	BreakerSecs          int     `yaml:"breaker_secs"`
	MinTradeSpacingSecs  int     `yaml:"min_trade_spacing_secs"`
	MinOrderNotional     float64 `yaml:"min_order_notional"`
	MaxOrderNotional     float64 `yaml:"max_order_notional"`
}

// Sentiment configures the optional fear/greed index client.
type Sentiment struct {
	Enabled bool   `yaml:"enabled"`
	BaseURL string `yaml:"base_url"`
	TTLSecs int    `yaml:"ttl_secs"`
}

// Paper configures the virtual execution gateway.
type Paper struct {
	StartingCash float64 `yaml:"starting_cash"`
	SlippageBps  float64 `yaml:"slippage_bps"`
	FillsPath    string  `yaml:"fills_path"`
}

// Config collects every configuration leaf for easy marshaling from YAML.
type Config struct {
	App        App        `yaml:"app"`
	Feed       Feed       `yaml:"feed"`
	Trading    Trading    `yaml:"trading"`
	Strategy   Strategy   `yaml:"strategy"`
	Safeguards Safeguards `yaml:"safeguards"`
	Sentiment  Sentiment  `yaml:"sentiment"`
	Paper      Paper      `yaml:"paper"`
}

// Load reads a YAML file from disk, hydrates a Config, applies defaults, and validates it.
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err := yaml.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.App.MetricsAddr == "" {
		c.App.MetricsAddr = ":9091"
	}
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if c.Feed.Provider == "" {
		c.Feed.Provider = "stub"
	}
	if c.Feed.MaxRetries <= 0 {
		c.Feed.MaxRetries = 10
	}
	if c.Trading.QuoteAsset == "" {
		c.Trading.QuoteAsset = "USDT"
	}
	if c.Trading.PositionSizePct <= 0 {
		c.Trading.PositionSizePct = 10
	}
	if c.Trading.StopLossPct <= 0 {
		c.Trading.StopLossPct = 2
	}
	if c.Trading.TakeProfitPct <= 0 {
		c.Trading.TakeProfitPct = 3
	}
	if c.Trading.TrailingStopPct <= 0 {
		c.Trading.TrailingStopPct = 1.5
	}
	if c.Trading.MaxOpenPositions <= 0 {
		c.Trading.MaxOpenPositions = 3
	}
	if c.Trading.MaxDailyTrades <= 0 {
		c.Trading.MaxDailyTrades = 30
	}
	if c.Strategy.Mode == "" {
		c.Strategy.Mode = "mean_reversion"
	}
	if c.Strategy.MeanReversion.Period <= 0 {
		c.Strategy.MeanReversion.Period = 20
	}
	if c.Strategy.MeanReversion.Deviation <= 0 {
		c.Strategy.MeanReversion.Deviation = 2
	}
	if c.Strategy.MeanReversion.MinConfidence <= 0 {
		c.Strategy.MeanReversion.MinConfidence = 70
	}
	if c.Strategy.MeanReversion.CooldownSecs <= 0 {
		c.Strategy.MeanReversion.CooldownSecs = 60
	}
	if c.Strategy.Momentum.MinConfidence <= 0 {
		c.Strategy.Momentum.MinConfidence = 70
	}
	if c.Strategy.Momentum.PassScore <= 0 {
		c.Strategy.Momentum.PassScore = 0.6
	}
	if c.Strategy.Momentum.MaxExposurePct <= 0 {
		c.Strategy.Momentum.MaxExposurePct = 20
	}
	if c.Strategy.Momentum.CooldownSecs <= 0 {
		c.Strategy.Momentum.CooldownSecs = 300
	}
	if c.Strategy.Grid.Levels <= 0 {
		c.Strategy.Grid.Levels = 5
	}
	if c.Strategy.Grid.SpacingPct <= 0 {
		c.Strategy.Grid.SpacingPct = 1
	}
	if c.Strategy.Grid.CooldownSecs <= 0 {
		c.Strategy.Grid.CooldownSecs = 30
	}
	if c.Safeguards.MaxConsecutiveLosses <= 0 {
		c.Safeguards.MaxConsecutiveLosses = 3
	}
	if c.Safeguards.LossCooloffSecs <= 0 {
		c.Safeguards.LossCooloffSecs = 900
	}
	if c.Safeguards.VolatilityWindow <= 0 {
		c.Safeguards.VolatilityWindow = 20
	}
	if c.Safeguards.VolatilityMaxPct <= 0 {
		c.Safeguards.VolatilityMaxPct = 5
	}
	if c.Safeguards.BreakerSecs <= 0 {
		c.Safeguards.BreakerSecs = 600
	}
	if c.Safeguards.MinTradeSpacingSecs <= 0 {
		c.Safeguards.MinTradeSpacingSecs = 30
	}
	if c.Sentiment.TTLSecs <= 0 {
		c.Sentiment.TTLSecs = 300
	}
	if c.Sentiment.BaseURL == "" {
		c.Sentiment.BaseURL = "https://api.alternative.me"
	}
	if c.Paper.StartingCash <= 0 {
		c.Paper.StartingCash = c.Trading.Capital
	}
}

// Validate rejects configurations the engine cannot safely run with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Trading.Symbol) == "" {
		return fmt.Errorf("trading.symbol is required")
	}
	if c.Trading.Capital <= 0 {
		return fmt.Errorf("trading.capital must be positive")
	}
	if c.Trading.MaxDailyLoss <= 0 {
		return fmt.Errorf("trading.max_daily_loss must be positive")
	}
	if c.Trading.PositionSizePct > 100 {
		return fmt.Errorf("trading.position_size_pct must not exceed 100")
	}
	switch strings.ToLower(c.Feed.Provider) {
	case "stub", "binance":
	default:
		return fmt.Errorf("feed.provider %q is not supported", c.Feed.Provider)
	}
	return nil
}
