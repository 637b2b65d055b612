package channels

import (
	"gopkg.in/telebot.v3"
)

// TelebotSender implements the telegram delivery channel using the
// gopkg.in/telebot.v3 library, keeping the bot type out of the
// application layer.
type TelebotSender struct {
	bot *telebot.Bot
}

func NewTelebotSender(b *telebot.Bot) *TelebotSender {
	return &TelebotSender{bot: b}
}

// SendMessage sends a text message to the given chat.
func (t *TelebotSender) SendMessage(chatID int64, text string) error {
	recipient := &telebot.User{ID: chatID}
	_, err := t.bot.Send(recipient, text)
	return err
}
