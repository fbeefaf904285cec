package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/tradecore/journal"
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Query the trade ledger",
	Long: `Query and display trade records from the SQLite ledger.

Examples:
  tradecore journal trade "BTC/USD|h1|1765382400"
  tradecore journal day 2026-04-10`,
}

var journalTradeCmd = &cobra.Command{
	Use:   "trade <trade-id>",
	Short: "Show one trade by ID",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalTrade,
}

var journalDayCmd = &cobra.Command{
	Use:   "day <YYYY-MM-DD>",
	Short: "List trades closed on a given day",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalDay,
}

var journalDBPath string

func init() {
	rootCmd.AddCommand(journalCmd)
	journalCmd.AddCommand(journalTradeCmd)
	journalCmd.AddCommand(journalDayCmd)

	journalCmd.PersistentFlags().StringVarP(&journalDBPath, "db", "d", "./trades.sqlite", "path to SQLite ledger")
}

func runJournalTrade(cmd *cobra.Command, args []string) error {
	id, err := journal.ParseTradeID(args[0])
	if err != nil {
		return fmt.Errorf("trade id: %w", err)
	}

	l, err := journal.NewSQLite(journalDBPath)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer l.Close()

	rec, err := l.Get(id)
	if err != nil {
		return err
	}
	printRecord(rec)
	return nil
}

func runJournalDay(cmd *cobra.Command, args []string) error {
	day, err := time.ParseInLocation("2006-01-02", args[0], time.Local)
	if err != nil {
		return fmt.Errorf("date: %w", err)
	}

	l, err := journal.NewSQLite(journalDBPath)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer l.Close()

	recs, err := l.ListClosedBetween(day, day.AddDate(0, 0, 1))
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		fmt.Println("no closed trades")
		return nil
	}

	var total float64
	for _, rec := range recs {
		fmt.Printf("%-28s %-4s %-9s exit %-10g pnl %8.2f (%+.2fR) %4dm\n",
			rec.ID, rec.Side, rec.Status, rec.ExitPrice, rec.RealizedPnl, rec.PnlR, rec.HoldMinutes)
		total += rec.RealizedPnl
	}
	fmt.Printf("\n%d trades, net pnl %.2f\n", len(recs), total)
	return nil
}

func printRecord(rec journal.Record) {
	fmt.Printf("trade    %s\n", rec.ID)
	fmt.Printf("venue    %s (%s)\n", rec.Venue, rec.Market)
	fmt.Printf("side     %s qty %g @ %g\n", rec.Side, rec.Quantity, rec.EntryPrice)
	fmt.Printf("stop     %g  target %g\n", rec.Stop, rec.Target)
	fmt.Printf("status   %s\n", rec.Status)
	if rec.Status != journal.StatusOpen {
		fmt.Printf("exit     %g at %s\n", rec.ExitPrice, rec.ExitTime.Format(time.RFC3339))
		fmt.Printf("pnl      %.2f (%+.2fR) over %dm\n", rec.RealizedPnl, rec.PnlR, rec.HoldMinutes)
	}
}
