// Package mail delivers the messages composed by the auth flows. Providers are
// configured explicitly and tried in order by FallbackMailer.
package mail

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/xf00889/alumnisystem-sub000/internal/core/port"
	"github.com/xf00889/alumnisystem-sub000/internal/infra/config"
	"github.com/xf00889/alumnisystem-sub000/internal/infra/logger"
)

// ErrNoProvider is returned when no provider is configured.
var ErrNoProvider = errors.New("mail: no provider configured")

// Provider is a named mail transport.
type Provider interface {
	port.Mailer
	Name() string
}

// Sender identifies the From address.
type Sender struct {
	Email string
	Name  string
}

func validateMessage(msg port.Message) error {
	if strings.TrimSpace(msg.To) == "" {
		return errors.New("mail: recipient is required")
	}
	if strings.TrimSpace(msg.Subject) == "" {
		return errors.New("mail: subject is required")
	}
	if msg.PlainBody == "" && msg.HTMLBody == "" {
		return errors.New("mail: body is required")
	}
	return nil
}

// LogMailer writes a masked summary of each message to the logger instead of
// delivering it. It stands in when no provider is configured.
type LogMailer struct {
	logger *zap.Logger
}

// NewLogMailer constructs a LogMailer.
func NewLogMailer(log *zap.Logger) *LogMailer {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogMailer{logger: log}
}

// Name implements Provider.
func (m *LogMailer) Name() string { return "log" }

// Send implements port.Mailer.
func (m *LogMailer) Send(_ context.Context, msg port.Message) error {
	if err := validateMessage(msg); err != nil {
		return err
	}
	m.logger.Info("mail delivery disabled, message dropped",
		zap.String("to", logger.MaskEmail(msg.To)),
		zap.String("subject", msg.Subject),
	)
	return nil
}

// NewFromConfig builds the provider chain: Brevo when an API key is set, then
// SMTP when a host is set. With neither, messages are only logged.
func NewFromConfig(cfg config.MailSettings, log *zap.Logger) (*FallbackMailer, error) {
	sender := Sender{Email: cfg.From, Name: cfg.FromName}

	var providers []Provider
	if strings.TrimSpace(cfg.Brevo.APIKey) != "" {
		brevo, err := NewBrevoSender(cfg.Brevo, sender, nil)
		if err != nil {
			return nil, err
		}
		providers = append(providers, brevo)
	}
	if strings.TrimSpace(cfg.SMTP.Host) != "" {
		smtpSender, err := NewSMTPSender(cfg.SMTP, sender)
		if err != nil {
			return nil, err
		}
		providers = append(providers, smtpSender)
	}
	if len(providers) == 0 {
		providers = append(providers, NewLogMailer(log))
	}
	return NewFallbackMailer(log, providers...), nil
}
