// Package audit provides AuditSink implementations for security events.
package audit

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/xf00889/alumnisystem-sub000/internal/core/domain"
	"github.com/xf00889/alumnisystem-sub000/internal/core/port"
	"github.com/xf00889/alumnisystem-sub000/internal/infra/logger"
)

// LogSink writes each event as a structured log line with masked identifiers.
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(log *zap.Logger) *LogSink {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogSink{logger: log.Named("audit")}
}

func (s *LogSink) Log(_ context.Context, event domain.SecurityEvent) error {
	fields := []zap.Field{
		zap.String("event_id", event.ID),
		zap.String("kind", string(event.Kind)),
		zap.String("subject", logger.MaskIdentifier(event.Subject)),
		zap.Time("occurred_at", event.OccurredAt),
	}
	if event.UserID != nil {
		fields = append(fields, zap.String("user_id", *event.UserID))
	}
	if event.IPAddress != nil {
		fields = append(fields, zap.String("ip", logger.MaskIP(*event.IPAddress)))
	}
	if len(event.Details) > 0 {
		fields = append(fields, zap.Any("details", event.Details))
	}
	s.logger.Info("security event", fields...)
	return nil
}

// PublisherSink forwards events to a message bus publisher.
type PublisherSink struct {
	publisher port.EventPublisher
}

func NewPublisherSink(publisher port.EventPublisher) *PublisherSink {
	return &PublisherSink{publisher: publisher}
}

func (s *PublisherSink) Log(ctx context.Context, event domain.SecurityEvent) error {
	if s.publisher == nil {
		return nil
	}
	if err := s.publisher.PublishSecurityEvent(ctx, event); err != nil {
		return fmt.Errorf("publish security event: %w", err)
	}
	return nil
}

// FanoutSink delivers every event to all sinks. One failing sink does not
// stop delivery to the rest; their errors are joined.
type FanoutSink struct {
	sinks []port.AuditSink
}

// NewFanoutSink skips nil sinks.
func NewFanoutSink(sinks ...port.AuditSink) *FanoutSink {
	kept := make([]port.AuditSink, 0, len(sinks))
	for _, sink := range sinks {
		if sink != nil {
			kept = append(kept, sink)
		}
	}
	return &FanoutSink{sinks: kept}
}

func (s *FanoutSink) Log(ctx context.Context, event domain.SecurityEvent) error {
	var errs []error
	for _, sink := range s.sinks {
		if err := sink.Log(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Len reports how many sinks receive events.
func (s *FanoutSink) Len() int {
	return len(s.sinks)
}

var (
	_ port.AuditSink = (*LogSink)(nil)
	_ port.AuditSink = (*PublisherSink)(nil)
	_ port.AuditSink = (*FanoutSink)(nil)
)
