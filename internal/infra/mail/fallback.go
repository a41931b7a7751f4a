package mail

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/xf00889/alumnisystem-sub000/internal/core/port"
	"github.com/xf00889/alumnisystem-sub000/internal/infra/logger"
)

// FallbackMailer tries each provider in order and stops at the first success.
type FallbackMailer struct {
	providers []Provider
	logger    *zap.Logger
}

// NewFallbackMailer constructs the chain. Nil providers are skipped.
func NewFallbackMailer(log *zap.Logger, providers ...Provider) *FallbackMailer {
	if log == nil {
		log = zap.NewNop()
	}
	chain := make([]Provider, 0, len(providers))
	for _, p := range providers {
		if p != nil {
			chain = append(chain, p)
		}
	}
	return &FallbackMailer{providers: chain, logger: log}
}

// Providers returns the provider names in the order they are tried.
func (m *FallbackMailer) Providers() []string {
	names := make([]string, 0, len(m.providers))
	for _, p := range m.providers {
		names = append(names, p.Name())
	}
	return names
}

// Send implements port.Mailer. The returned error joins every provider failure.
func (m *FallbackMailer) Send(ctx context.Context, msg port.Message) error {
	if len(m.providers) == 0 {
		return ErrNoProvider
	}
	if err := validateMessage(msg); err != nil {
		return err
	}

	var errs []error
	for i, p := range m.providers {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		err := p.Send(ctx, msg)
		if err == nil {
			if i > 0 {
				m.logger.Info("mail delivered by fallback provider",
					zap.String("provider", p.Name()),
					zap.String("to", logger.MaskEmail(msg.To)),
				)
			}
			return nil
		}
		m.logger.Warn("mail provider failed",
			zap.String("provider", p.Name()),
			zap.String("to", logger.MaskEmail(msg.To)),
			zap.Error(err),
		)
		errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
	}
	return fmt.Errorf("mail delivery failed: %w", errors.Join(errs...))
}

var _ port.Mailer = (*FallbackMailer)(nil)
