package notification

import (
	"NetVerdict/internal/config"
	"NetVerdict/internal/model"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// Multi fans a notification out to several notifiers.
type Multi []model.Notifier

// Send delivers to every notifier and joins the failures.
func (m Multi) Send(subject, body string) error {
	var errs []error
	for _, n := range m {
		if err := n.Send(subject, body); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// FromConfig builds the notifiers that have settings. It returns nil when
// none is configured.
func FromConfig(cfg *config.Config, logger *zap.Logger) (model.Notifier, error) {
	var m Multi
	if cfg.SMTP.Host != "" {
		m = append(m, NewEmailNotifier(cfg.SMTP))
		logger.Info("email notifier enabled", zap.String("host", cfg.SMTP.Host))
	}
	if cfg.Telegram.Token != "" {
		tg, err := NewTelegramNotifier(cfg.Telegram)
		if err != nil {
			return nil, fmt.Errorf("telegram notifier: %w", err)
		}
		m = append(m, tg)
		logger.Info("telegram notifier enabled", zap.Int64("chat_id", cfg.Telegram.ChatID))
	}
	switch len(m) {
	case 0:
		return nil, nil
	case 1:
		return m[0], nil
	}
	return m, nil
}
