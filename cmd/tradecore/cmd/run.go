package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/rustyeddy/tradecore/bot"
	"github.com/rustyeddy/tradecore/config"
	"github.com/rustyeddy/tradecore/consensus"
	"github.com/rustyeddy/tradecore/journal"
	"github.com/rustyeddy/tradecore/market"
	"github.com/rustyeddy/tradecore/metrics"
	"github.com/rustyeddy/tradecore/notify"
	"github.com/rustyeddy/tradecore/risk"
	"github.com/rustyeddy/tradecore/router"
	"github.com/rustyeddy/tradecore/sim"
	"github.com/rustyeddy/tradecore/strategies"
	"github.com/rustyeddy/tradecore/venue"
	"github.com/rustyeddy/tradecore/venue/binance"
	"github.com/rustyeddy/tradecore/venue/oanda"
	"github.com/rustyeddy/tradecore/venue/paper"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the trading loop",
	Long: `Run the polling loop: fetch bars, fuse a consensus decision per
symbol, size it through the risk engine, route the order, and journal the
result. SIGINT/SIGTERM finishes the current iteration before exiting.

Example:
  tradecore run --config config.yaml --paper`,
	RunE: runRun,
}

var (
	runConfigPath  string
	runPaperOnly   bool
	runMetricsAddr string
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runConfigPath, "config", "f", "", "path to YAML config (default: built-in paper config)")
	runCmd.Flags().BoolVar(&runPaperOnly, "paper", false, "route all orders to the paper venue only")
	runCmd.Flags().StringVar(&runMetricsAddr, "metrics", "", "Prometheus listen address (overrides config)")
}

func runRun(cmd *cobra.Command, args []string) error {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	var cfg config.Config
	if runConfigPath == "" {
		cfg = config.Default()
		cfg.Credentials = config.LoadCredentials()
		log.Info().Msg("no config file given, using built-in paper defaults")
	} else {
		var err error
		cfg, err = config.Load(runConfigPath)
		if err != nil {
			return err
		}
	}
	if runMetricsAddr != "" {
		cfg.Metrics.Addr = runMetricsAddr
	}

	ledger, err := openLedger(cfg.Journal)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer ledger.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	desk := sim.NewDesk(cfg.Account.Balance, cfg.Account.FeeRate)
	ticks := market.NewTickStore()
	paperVenue := paper.New(desk, ticks)

	markets, err := buildMarkets(ctx, cfg, paperVenue, runPaperOnly, log)
	if err != nil {
		return err
	}
	rt := router.New(router.DefaultConfig(), log, markets...)

	factory, err := strategies.ByName(cfg.Loop.Strategy)
	if err != nil {
		return err
	}
	engine := consensus.NewEngine(factory, cfg.Tuning, cfg.Loop.BarWindow, log)

	book := risk.NewExposureBook(cfg.Risk.MaxTotalPct, cfg.Risk.MaxConcurrent)
	riskEng := risk.NewEngine(cfg.Limits(), book)

	notifier := buildNotifier(cfg.Credentials, log)

	b, err := bot.New(cfg, log, rt, engine, riskEng, ledger, notifier, desk)
	if err != nil {
		return err
	}

	probeCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	err = b.Probe(probeCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("startup probe: %w", err)
	}

	if cfg.Metrics.Addr != "" {
		srv := metrics.Serve(cfg.Metrics.Addr)
		defer srv.Close()
		log.Info().Str("addr", cfg.Metrics.Addr).Msg("metrics endpoint up")
	}

	log.Info().Strs("symbols", cfg.Symbols).Strs("timeframes", cfg.Timeframes).
		Bool("paper_only", runPaperOnly).Msg("trading loop starting")

	return b.Run(ctx)
}

func openLedger(jc config.JournalConfig) (journal.Ledger, error) {
	if jc.Type == "csv" {
		return journal.NewCSV(jc.Path)
	}
	return journal.NewSQLite(jc.Path)
}

// buildMarkets assembles the per-market connector rankings from config.
func buildMarkets(ctx context.Context, cfg config.Config, paperVenue *paper.Venue, paperOnly bool, log zerolog.Logger) ([]*router.Market, error) {
	creds := cfg.Credentials

	out := make([]*router.Market, 0, len(cfg.Markets))
	for _, mc := range cfg.Markets {
		var conns []venue.Connector

		names := mc.Venues
		if paperOnly {
			names = []string{"paper"}
		}
		for _, name := range names {
			switch name {
			case "binance-spot":
				conns = append(conns, binance.NewSpot(creds.BinanceAPIKey, creds.BinanceSecretKey, mc.Testnet))
			case "binance-futures":
				f := binance.NewFutures(creds.BinanceAPIKey, creds.BinanceSecretKey, mc.Testnet)
				if mc.Leverage >= 1 {
					for _, sym := range marketSymbols(cfg, mc) {
						if err := f.SetLeverage(ctx, sym, int(mc.Leverage)); err != nil {
							log.Warn().Err(err).Str("symbol", sym.String()).
								Str("market", mc.Name).Msg("set leverage failed")
						}
					}
				}
				conns = append(conns, f)
			case "oanda":
				conns = append(conns, oanda.New(creds.OANDAToken, creds.OANDAAccountID, mc.Testnet))
			case "paper":
				conns = append(conns, paperVenue)
			default:
				return nil, fmt.Errorf("market %s: unknown venue %q", mc.Name, name)
			}
		}

		rules := make(map[market.Symbol]venue.SymbolRule, len(mc.Rules))
		for s, rc := range mc.Rules {
			sym, err := market.ParseSymbol(s)
			if err != nil {
				return nil, fmt.Errorf("market %s rules: %w", mc.Name, err)
			}
			rules[sym] = rc.Rule()
		}

		out = append(out, &router.Market{Name: mc.Name, Connectors: conns, Rules: rules})
	}
	return out, nil
}

// marketSymbols lists the symbols a market serves: its explicit claims, or
// every configured symbol when it claims none.
func marketSymbols(cfg config.Config, mc config.MarketConfig) []market.Symbol {
	names := mc.Symbols
	if len(names) == 0 {
		names = cfg.Symbols
	}
	out := make([]market.Symbol, 0, len(names))
	for _, s := range names {
		if sym, err := market.ParseSymbol(s); err == nil {
			out = append(out, sym)
		}
	}
	return out
}

func buildNotifier(creds config.Credentials, log zerolog.Logger) notify.Notifier {
	if creds.TelegramToken == "" || creds.TelegramChatID == 0 {
		return notify.Null{}
	}
	tg, err := notify.NewTelegram(creds.TelegramToken, creds.TelegramChatID, log)
	if err != nil {
		log.Warn().Err(err).Msg("telegram notifier unavailable, continuing without it")
		return notify.Null{}
	}
	return tg
}
