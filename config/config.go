// Package config loads the bot configuration: a YAML file for everything
// tunable plus an environment overlay for credentials. Secrets never live
// in the YAML file.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/rustyeddy/tradecore/consensus"
	"github.com/rustyeddy/tradecore/market"
	"github.com/rustyeddy/tradecore/risk"
	"github.com/rustyeddy/tradecore/venue"
)

// Config is the complete bot configuration.
type Config struct {
	Account    AccountConfig    `yaml:"account"`
	Risk       RiskConfig       `yaml:"risk"`
	Symbols    []string         `yaml:"symbols"`
	Timeframes []string         `yaml:"timeframes"`
	Markets    []MarketConfig   `yaml:"markets"`
	Tuning     consensus.Tuning `yaml:"tuning"`
	Journal    JournalConfig    `yaml:"journal"`
	Loop       LoopConfig       `yaml:"loop"`
	Metrics    MetricsConfig    `yaml:"metrics"`

	// Credentials come from the environment, never from YAML.
	Credentials Credentials `yaml:"-"`
}

// AccountConfig describes the paper account and fee model.
type AccountConfig struct {
	Currency string  `yaml:"currency"`
	Balance  float64 `yaml:"balance"`
	FeeRate  float64 `yaml:"fee_rate"`
}

// RiskConfig mirrors risk.Limits in YAML form.
type RiskConfig struct {
	PerTradePct       float64 `yaml:"per_trade_pct"`
	MaxTotalPct       float64 `yaml:"max_total_pct"`
	MaxConcurrent     int     `yaml:"max_concurrent"`
	MinNotional       float64 `yaml:"min_notional"`
	MaxLeverage       float64 `yaml:"max_leverage"`
	QuantityPrecision int     `yaml:"quantity_precision"`
}

// MarketConfig declares one logical market: its venue ranking and the
// per-symbol order filters.
type MarketConfig struct {
	Name string `yaml:"name"`
	// Venues is the fallback ranking, primary first. Known names:
	// binance-spot, binance-futures, oanda, paper.
	Venues  []string `yaml:"venues"`
	Testnet bool     `yaml:"testnet"`
	// Symbols routed through this market. Empty means all configured
	// symbols not claimed by another market.
	Symbols []string              `yaml:"symbols"`
	Rules   map[string]RuleConfig `yaml:"rules"`
	// Leverage applies to derivative venues only; zero means unlevered.
	Leverage float64 `yaml:"leverage"`
}

// RuleConfig is a per-symbol order filter.
type RuleConfig struct {
	QuantityStep   float64 `yaml:"quantity_step"`
	PricePrecision int     `yaml:"price_precision"`
	MinNotional    float64 `yaml:"min_notional"`
}

// Rule converts the YAML filter into the venue order filter.
func (rc RuleConfig) Rule() venue.SymbolRule {
	return venue.SymbolRule{
		QuantityStep:   rc.QuantityStep,
		PricePrecision: int32(rc.PricePrecision),
		MinNotional:    rc.MinNotional,
	}
}

// JournalConfig selects the ledger backend.
type JournalConfig struct {
	Type string `yaml:"type"` // sqlite or csv
	Path string `yaml:"path"`
}

// LoopConfig tunes the polling loop.
type LoopConfig struct {
	Workers   int    `yaml:"workers"`
	BarWindow int    `yaml:"bar_window"`
	Strategy  string `yaml:"strategy"`
}

// MetricsConfig controls the Prometheus endpoint. An empty address
// disables it.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// Credentials are read from the environment (optionally via a .env file).
type Credentials struct {
	BinanceAPIKey    string
	BinanceSecretKey string
	OANDAToken       string
	OANDAAccountID   string
	TelegramToken    string
	TelegramChatID   int64
}

// Default returns a runnable paper-only configuration.
func Default() Config {
	return Config{
		Account: AccountConfig{Currency: "USD", Balance: 10000, FeeRate: 0.001},
		Risk: RiskConfig{
			PerTradePct:       1.0,
			MaxTotalPct:       3.0,
			MaxConcurrent:     3,
			MinNotional:       10,
			MaxLeverage:       5,
			QuantityPrecision: 4,
		},
		Symbols:    []string{"BTC/USD", "ETH/USD"},
		Timeframes: []string{"m5", "h1", "h4"},
		Markets: []MarketConfig{
			{Name: "crypto-spot", Venues: []string{"binance-spot", "paper"}},
		},
		Tuning:  consensus.DefaultTuning(),
		Journal: JournalConfig{Type: "sqlite", Path: "trades.sqlite"},
		Loop:    LoopConfig{Workers: 4, BarWindow: 200, Strategy: "trend"},
		Metrics: MetricsConfig{Addr: ""},
	}
}

// Load reads the YAML file at path, validates it, and overlays credentials
// from the environment. A missing .env file is not an error.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	cfg.Credentials = LoadCredentials()
	return cfg, nil
}

// LoadCredentials reads secrets from the environment, first merging a .env
// file if one exists in the working directory.
func LoadCredentials() Credentials {
	_ = godotenv.Load()

	chatID, _ := strconv.ParseInt(os.Getenv("TELEGRAM_CHAT_ID"), 10, 64)
	return Credentials{
		BinanceAPIKey:    os.Getenv("BINANCE_API_KEY"),
		BinanceSecretKey: os.Getenv("BINANCE_SECRET_KEY"),
		OANDAToken:       os.Getenv("OANDA_TOKEN"),
		OANDAAccountID:   os.Getenv("OANDA_ACCOUNT_ID"),
		TelegramToken:    os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramChatID:   chatID,
	}
}

// Validate checks the configuration for values that would make the loop
// misbehave rather than fail loudly.
func (c *Config) Validate() error {
	if c.Account.Balance <= 0 {
		return fmt.Errorf("account.balance must be positive")
	}
	if c.Account.FeeRate < 0 || c.Account.FeeRate > 0.05 {
		return fmt.Errorf("account.fee_rate %g out of range [0, 0.05]", c.Account.FeeRate)
	}
	if c.Risk.PerTradePct <= 0 || c.Risk.PerTradePct > 10 {
		return fmt.Errorf("risk.per_trade_pct %g out of range (0, 10]", c.Risk.PerTradePct)
	}
	if c.Risk.MaxTotalPct < c.Risk.PerTradePct {
		return fmt.Errorf("risk.max_total_pct %g below risk.per_trade_pct %g",
			c.Risk.MaxTotalPct, c.Risk.PerTradePct)
	}
	if c.Risk.MaxConcurrent <= 0 {
		return fmt.Errorf("risk.max_concurrent must be positive")
	}

	if len(c.Symbols) == 0 {
		return fmt.Errorf("at least one symbol is required")
	}
	for _, s := range c.Symbols {
		if _, err := market.ParseSymbol(s); err != nil {
			return fmt.Errorf("symbols: %w", err)
		}
	}

	if len(c.Timeframes) == 0 {
		return fmt.Errorf("at least one timeframe is required")
	}
	if _, err := market.Timeframes(c.Timeframes); err != nil {
		return fmt.Errorf("timeframes: %w", err)
	}

	if len(c.Markets) == 0 {
		return fmt.Errorf("at least one market is required")
	}
	for _, m := range c.Markets {
		if m.Name == "" {
			return fmt.Errorf("market name is required")
		}
		if len(m.Venues) == 0 {
			return fmt.Errorf("market %s: at least one venue is required", m.Name)
		}
		if m.Leverage < 0 || m.Leverage > c.Risk.MaxLeverage {
			return fmt.Errorf("market %s: leverage %g out of range [0, %g]",
				m.Name, m.Leverage, c.Risk.MaxLeverage)
		}
	}

	switch c.Journal.Type {
	case "sqlite", "csv":
	default:
		return fmt.Errorf("journal.type %q: want sqlite or csv", c.Journal.Type)
	}
	if c.Journal.Path == "" {
		return fmt.Errorf("journal.path is required")
	}

	if c.Loop.Workers <= 0 {
		return fmt.Errorf("loop.workers must be positive")
	}
	if c.Loop.BarWindow < 50 {
		return fmt.Errorf("loop.bar_window %d too small for indicator warmup", c.Loop.BarWindow)
	}
	return nil
}

// MarketFor returns the name of the market that routes sym: the first
// market claiming it explicitly, else the first market with no symbol list.
func (c *Config) MarketFor(sym market.Symbol) string {
	for _, m := range c.Markets {
		for _, s := range m.Symbols {
			if ps, err := market.ParseSymbol(s); err == nil && ps == sym {
				return m.Name
			}
		}
	}
	for _, m := range c.Markets {
		if len(m.Symbols) == 0 {
			return m.Name
		}
	}
	return c.Markets[0].Name
}

// LeverageFor returns the leverage configured for the named market, zero
// when the market is unknown or unlevered.
func (c *Config) LeverageFor(marketName string) float64 {
	for _, m := range c.Markets {
		if m.Name == marketName {
			return m.Leverage
		}
	}
	return 0
}

// Limits converts the risk section into engine limits.
func (c *Config) Limits() risk.Limits {
	return risk.Limits{
		RiskPerTradePct:   c.Risk.PerTradePct,
		MaxTotalRiskPct:   c.Risk.MaxTotalPct,
		MaxConcurrent:     c.Risk.MaxConcurrent,
		MinNotional:       c.Risk.MinNotional,
		MaxLeverage:       c.Risk.MaxLeverage,
		QuantityPrecision: c.Risk.QuantityPrecision,
	}
}
