package telegram

import (
	"context"
	"fmt"

	"transit_notification_engine/internal/domain/alert"
	"transit_notification_engine/internal/domain/chart"

	"gopkg.in/telebot.v3"
)

// TelebotChannel delivers alerts as Telegram direct messages using the
// gopkg.in/telebot.v3 library. It implements the alert.Channel interface and
// resolves each user's chat through the chart store.
type TelebotChannel struct {
	bot    *telebot.Bot
	charts chart.Store
}

func NewTelebotChannel(b *telebot.Bot, charts chart.Store) *TelebotChannel {
	return &TelebotChannel{bot: b, charts: charts}
}

func (c *TelebotChannel) Name() string { return "telegram" }

// Deliver sends the alert message to the user's bound chat.
func (c *TelebotChannel) Deliver(ctx context.Context, rec *alert.Record) error {
	settings, err := c.charts.Settings(ctx, rec.UserID)
	if err != nil {
		return fmt.Errorf("resolving telegram chat for user %d: %w", rec.UserID, err)
	}
	if settings.TelegramChatID == 0 {
		return fmt.Errorf("user %d has no telegram chat bound", rec.UserID)
	}

	recipient := &telebot.User{ID: settings.TelegramChatID}
	_, err = c.bot.Send(recipient, rec.Message, &telebot.SendOptions{ParseMode: telebot.ModeDefault})
	return err
}
