package mailer

import (
	"fmt"
	"net/http"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"

	"github.com/arka-labs/academy-api/pkg/config"
)

// Message is a single outbound email.
type Message struct {
	ToName    string
	ToAddress string
	Subject   string
	TextBody  string
	HTMLBody  string
}

// Mailer sends transactional email. Delivery failures are reported to the
// caller but are never expected to roll back any data mutation.
type Mailer interface {
	Send(msg Message) error
}

// SendgridMailer delivers messages through the Sendgrid v3 API.
type SendgridMailer struct {
	key    string
	from   *sgmail.Email
	logger *zap.Logger
}

// NewSendgrid constructs a Sendgrid-backed mailer.
func NewSendgrid(cfg config.MailerConfig, logger *zap.Logger) *SendgridMailer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SendgridMailer{
		key:    cfg.SendgridKey,
		from:   sgmail.NewEmail(cfg.FromName, cfg.FromAddress),
		logger: logger,
	}
}

// Send delivers a single message synchronously.
func (m *SendgridMailer) Send(msg Message) error {
	if msg.ToAddress == "" {
		return fmt.Errorf("mailer: message has no recipient")
	}

	to := sgmail.NewEmail(msg.ToName, msg.ToAddress)
	text := msg.TextBody
	html := msg.HTMLBody
	if html == "" {
		html = "<pre>" + text + "</pre>"
	}
	mail := sgmail.NewSingleEmail(m.from, msg.Subject, to, text, html)

	res, err := sendgrid.NewSendClient(m.key).Send(mail)
	if err != nil {
		return fmt.Errorf("sendgrid send: %w", err)
	}
	if res.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("sendgrid send: status %d body %q", res.StatusCode, res.Body)
	}

	m.logger.Debug("email sent", zap.String("to", msg.ToAddress), zap.String("subject", msg.Subject))
	return nil
}

// LogMailer writes messages to the log instead of sending them. Used in
// development and when the mailer is disabled.
type LogMailer struct {
	logger *zap.Logger
}

// NewLog constructs a log-only mailer.
func NewLog(logger *zap.Logger) *LogMailer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogMailer{logger: logger}
}

// Send logs the message and reports success.
func (m *LogMailer) Send(msg Message) error {
	m.logger.Info("email (not sent, mailer disabled)",
		zap.String("to", msg.ToAddress),
		zap.String("subject", msg.Subject),
		zap.String("body", msg.TextBody),
	)
	return nil
}
