// Package notify pushes trade events to the operator. Delivery is
// fire-and-forget: a notification failure is logged and never blocks or
// fails the trading loop.
package notify

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	tele "gopkg.in/telebot.v3"

	"github.com/rustyeddy/tradecore/journal"
	"github.com/rustyeddy/tradecore/venue"
)

// Notifier sends a plain-text message to the operator channel.
type Notifier interface {
	Send(text string)
}

// Null discards all notifications.
type Null struct{}

func (Null) Send(string) {}

// Telegram delivers messages to a single chat via the Bot API.
type Telegram struct {
	bot  *tele.Bot
	chat *tele.Chat
	log  zerolog.Logger
}

func NewTelegram(token string, chatID int64, log zerolog.Logger) (*Telegram, error) {
	bot, err := tele.NewBot(tele.Settings{
		Token:  token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	})
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return &Telegram{bot: bot, chat: &tele.Chat{ID: chatID}, log: log}, nil
}

// Send delivers asynchronously so a slow Bot API call cannot stall a
// trading iteration.
func (t *Telegram) Send(text string) {
	go func() {
		if _, err := t.bot.Send(t.chat, text); err != nil {
			t.log.Warn().Err(err).Msg("telegram send failed")
		}
	}()
}

// EntryText formats an order fill for the operator channel.
func EntryText(fill venue.OrderFill, stop, target float64) string {
	return fmt.Sprintf("ENTRY %s %s qty %g @ %g (stop %g, target %g) via %s",
		fill.Side, fill.Symbol, fill.Quantity, fill.Price, stop, target, fill.Venue)
}

// ExitText formats a closed trade for the operator channel.
func ExitText(rec journal.Record) string {
	return fmt.Sprintf("EXIT %s %s @ %g: %s, pnl %.2f (%.2fR) after %dm",
		rec.Side, rec.Symbol, rec.ExitPrice, rec.Status, rec.RealizedPnl, rec.PnlR, rec.HoldMinutes)
}

// HeartbeatText summarizes the account at a day boundary so a silent loop
// is distinguishable from a dead one.
func HeartbeatText(equity, riskInUsePct float64, openTrades int) string {
	return fmt.Sprintf("HEARTBEAT equity %.2f, risk in use %.2f%%, %d open trades",
		equity, riskInUsePct, openTrades)
}
