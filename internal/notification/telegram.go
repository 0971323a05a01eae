package notification

import (
	"NetVerdict/internal/config"
	"fmt"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// telegramLimit is the Bot API cap on message text length.
const telegramLimit = 4096

type botSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramNotifier posts alerts to a chat.
type TelegramNotifier struct {
	bot    botSender
	chatID int64
}

// NewTelegramNotifier authorizes the bot token.
func NewTelegramNotifier(cfg config.TelegramConfig) (*TelegramNotifier, error) {
	if cfg.Token == "" || cfg.ChatID == 0 {
		return nil, fmt.Errorf("telegram notifier needs a token and chat_id")
	}
	bot, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot API: %w", err)
	}
	return &TelegramNotifier{bot: bot, chatID: cfg.ChatID}, nil
}

// Send posts subject and body as plain text, truncated to the Telegram limit.
func (n *TelegramNotifier) Send(subject, body string) error {
	msg := tgbotapi.NewMessage(n.chatID, truncate(subject+"\n\n"+body, telegramLimit))
	msg.DisableWebPagePreview = true
	if _, err := n.bot.Send(msg); err != nil {
		return fmt.Errorf("failed to send telegram message: %w", err)
	}
	return nil
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit-1]) + "…"
}
