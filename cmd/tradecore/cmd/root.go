package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "tradecore",
	Short: "A multi-venue trading bot with consensus-driven entries",
	Long: `Tradecore runs a retail trading loop against crypto exchanges, FX
brokers, and an in-memory paper venue behind one routing layer.

It provides:
  - Venue routing with geo/credential-aware fallback
  - Exposure-capped, risk-budgeted position sizing
  - Multi-timeframe consensus fusion of strategy opinions
  - A simulated paper desk with stop/target exits
  - A SQLite/CSV trade ledger and query tools`,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
