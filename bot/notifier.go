package bot

import (
	"context"
	"errors"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"terra-eye/internal/notify"
	"terra-eye/internal/toast"
)

var errNoAdminChat = errors.New("AUTHORIZED_CHAT_ID not set")

// Name identifies the bot as an alert sink
func (b *Bot) Name() string { return "telegram" }

// Send relays an alert to the admin chat
func (b *Bot) Send(_ context.Context, t *toast.Toast) error {
	if b.targetChatID == 0 {
		return errNoAdminChat
	}
	text := escape(t.Message)
	if t.Icon != "" {
		text = t.Icon + " " + text
	}
	msg := tgbotapi.NewMessage(b.targetChatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	_, err := b.api.Send(msg)
	return err
}

// Ensure Bot implements the alert sink interface
var _ notify.Sink = (*Bot)(nil)
