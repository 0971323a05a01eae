package notification

import (
	"NetVerdict/internal/config"
	"errors"
	"net/smtp"
	"strings"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

func TestEmailNotifier_RendersMarkdown(t *testing.T) {
	n := NewEmailNotifier(config.SMTPConfig{Host: "mail.local", Port: 25, From: "nv@local", To: "a@local, b@local"})
	var gotAddr string
	var gotTo []string
	var gotMsg []byte
	n.send = func(addr string, _ smtp.Auth, _ string, to []string, msg []byte) error {
		gotAddr, gotTo, gotMsg = addr, to, msg
		return nil
	}

	if err := n.Send("Alert", "# Critical flows\n\n**3** flows"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if gotAddr != "mail.local:25" || len(gotTo) != 2 || gotTo[1] != "b@local" {
		t.Errorf("unexpected envelope %s %v", gotAddr, gotTo)
	}
	msg := string(gotMsg)
	if !strings.Contains(msg, "Subject: Alert\r\n") || !strings.Contains(msg, "<h1") || !strings.Contains(msg, "<strong>3</strong>") {
		t.Errorf("unexpected message:\n%s", msg)
	}
}

func TestEmailNotifier_NoRecipients(t *testing.T) {
	n := NewEmailNotifier(config.SMTPConfig{Host: "mail.local", To: " , "})
	if err := n.Send("s", "b"); err == nil {
		t.Fatal("Expected missing recipients to fail")
	}
}

type fakeBot struct {
	sent []tgbotapi.MessageConfig
}

func (b *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	b.sent = append(b.sent, c.(tgbotapi.MessageConfig))
	return tgbotapi.Message{}, nil
}

func TestTelegramNotifier_Truncates(t *testing.T) {
	bot := &fakeBot{}
	n := &TelegramNotifier{bot: bot, chatID: 42}
	if err := n.Send("Alert", strings.Repeat("x", 5000)); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if len(bot.sent) != 1 || bot.sent[0].ChatID != 42 {
		t.Fatalf("unexpected messages %+v", bot.sent)
	}
	if got := len([]rune(bot.sent[0].Text)); got != telegramLimit {
		t.Errorf("Expected text truncated to %d runes, got %d", telegramLimit, got)
	}
}

type failing struct{ err error }

func (f failing) Send(string, string) error { return f.err }

func TestMulti_JoinsErrors(t *testing.T) {
	boom := errors.New("boom")
	if err := (Multi{failing{}, failing{boom}}).Send("s", "b"); !errors.Is(err, boom) {
		t.Errorf("Expected boom, got %v", err)
	}
}

func TestFromConfig_NoneConfigured(t *testing.T) {
	n, err := FromConfig(&config.Config{}, zap.NewNop())
	if err != nil || n != nil {
		t.Errorf("Expected no notifier, got %v %v", n, err)
	}
}
