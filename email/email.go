package email

import (
	"fmt"
	"net/smtp"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"inkwell/config"
)

// Mailer delivers one HTML message.
type Mailer interface {
	Send(from, to, subject, htmlBody string) error
}

type EmailService struct {
	host     string
	port     string
	user     string
	password string
	logger   *zap.Logger
}

// NewMailer returns the SMTP mailer when SMTP_HOST is configured and a
// logging one otherwise.
func NewMailer(cfg *config.Config, logger *zap.Logger) Mailer {
	if cfg.SMTPHost == "" {
		logger.Warn("SMTP_HOST not set, e-mails will only be logged")
		return &LogMailer{logger: logger}
	}
	return &EmailService{
		host:     cfg.SMTPHost,
		port:     cfg.SMTPPort,
		user:     cfg.SMTPUser,
		password: cfg.SMTPPassword,
		logger:   logger,
	}
}

func (e *EmailService) Send(from, to, subject, htmlBody string) error {
	message := buildMessage(from, to, subject, htmlBody)

	var auth smtp.Auth
	if e.user != "" {
		auth = smtp.PlainAuth("", e.user, e.password, e.host)
	}
	addr := fmt.Sprintf("%s:%s", e.host, e.port)

	if err := smtp.SendMail(addr, auth, from, []string{to}, message); err != nil {
		return errors.Wrapf(err, "send mail to %s", to)
	}
	e.logger.Debug("mail sent", zap.String("to", to), zap.String("subject", subject))
	return nil
}

func buildMessage(from, to, subject, htmlBody string) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: " + subject + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(htmlBody)
	b.WriteString("\r\n")
	return []byte(b.String())
}

// LogMailer only logs what would have been sent.
type LogMailer struct {
	logger *zap.Logger
}

func NewLogMailer(logger *zap.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

func (l *LogMailer) Send(from, to, subject, htmlBody string) error {
	l.logger.Info("mail not sent, SMTP disabled",
		zap.String("from", from),
		zap.String("to", to),
		zap.String("subject", subject),
		zap.Int("bytes", len(htmlBody)),
	)
	return nil
}
