package port

import (
	"context"

	"github.com/xf00889/alumnisystem-sub000/internal/core/domain"
)

// AuditSink appends security events. It is best effort; callers never fail a
// business operation because of it.
type AuditSink interface {
	Log(ctx context.Context, event domain.SecurityEvent) error
}

// EventPublisher publishes security events to the message bus.
type EventPublisher interface {
	PublishSecurityEvent(ctx context.Context, event domain.SecurityEvent) error
}
