package usecase

import (
	"context"
	"strings"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xf00889/alumnisystem-sub000/internal/core/domain"
	"github.com/xf00889/alumnisystem-sub000/internal/core/port"
	"github.com/xf00889/alumnisystem-sub000/internal/infra/logger"
)

// AuditTrail stamps and forwards security events. Sink failures go to the
// logger and never reach the caller.
type AuditTrail struct {
	sink   port.AuditSink
	logger *zap.Logger
	now    func() time.Time
}

// NewAuditTrail constructs an audit trail. A nil sink only logs.
func NewAuditTrail(sink port.AuditSink, log *zap.Logger) *AuditTrail {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuditTrail{sink: sink, logger: log, now: time.Now}
}

// WithClock overrides the internal clock, used in tests.
func (a *AuditTrail) WithClock(clock func() time.Time) {
	if clock != nil {
		a.now = clock
	}
}

// AuditEntry describes an event before it is stamped.
type AuditEntry struct {
	Kind    domain.EventKind
	Subject string
	UserID  string
	IP      string
	Details map[string]any
}

// Record appends the entry. It is safe on a nil receiver.
func (a *AuditTrail) Record(ctx context.Context, entry AuditEntry) {
	if a == nil {
		return
	}

	event := domain.SecurityEvent{
		ID:         uuid.NewString(),
		OccurredAt: a.now().UTC(),
		Kind:       entry.Kind,
		Subject:    strings.TrimSpace(entry.Subject),
		Details:    metadataCopy(entry.Details),
	}
	if entry.UserID != "" {
		userID := entry.UserID
		event.UserID = &userID
	}
	if ip := strings.TrimSpace(entry.IP); ip != "" {
		event.IPAddress = &ip
	}

	if a.sink == nil {
		a.logger.Info("security event", zap.String("kind", string(event.Kind)), zap.String("subject", logger.MaskIdentifier(event.Subject)))
		return
	}

	if err := a.sink.Log(ctx, event); err != nil {
		a.logger.Error("audit sink failed",
			zap.String("event_id", event.ID),
			zap.String("kind", string(event.Kind)),
			zap.String("subject", logger.MaskIdentifier(event.Subject)),
			zap.Error(err),
		)
	}
}

func metadataCopy(src map[string]any) map[string]any {
	if len(src) == 0 {
		return nil
	}
	dst := make(map[string]any, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func userIDOf(user *domain.User) string {
	if user == nil {
		return ""
	}
	return user.ID
}
