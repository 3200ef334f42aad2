package email

import (
	"go.uber.org/zap"

	"inkwell/config"
)

// Notifier sends the account notifications of the site.
type Notifier struct {
	mailer Mailer
	cfg    *config.Config
	logger *zap.Logger
}

func NewNotifier(mailer Mailer, cfg *config.Config, logger *zap.Logger) *Notifier {
	return &Notifier{mailer: mailer, cfg: cfg, logger: logger}
}

// Send renders and delivers a generic message from MAIL_FROM.
func (n *Notifier) Send(to, title, text string) error {
	body, err := RenderGeneric(n.cfg.SiteTitle, title, text)
	if err != nil {
		return err
	}
	return n.mailer.Send(n.cfg.MailFrom, to, title, body)
}

// Notify is Send with failures logged and dropped.
func (n *Notifier) Notify(to, title, text string) {
	if err := n.Send(to, title, text); err != nil {
		n.logger.Warn("notification not delivered",
			zap.String("to", to),
			zap.String("title", title),
			zap.Error(err),
		)
	}
}
