package audit

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xf00889/alumnisystem-sub000/internal/core/domain"
	"github.com/xf00889/alumnisystem-sub000/internal/core/port"
)

type captureSink struct {
	events []domain.SecurityEvent
	err    error
}

func (c *captureSink) Log(_ context.Context, event domain.SecurityEvent) error {
	c.events = append(c.events, event)
	return c.err
}

type capturePublisher struct {
	events []domain.SecurityEvent
	err    error
}

func (c *capturePublisher) PublishSecurityEvent(_ context.Context, event domain.SecurityEvent) error {
	c.events = append(c.events, event)
	return c.err
}

func sampleEvent() domain.SecurityEvent {
	userID := "user-1"
	ip := "192.168.10.42"
	return domain.SecurityEvent{
		ID:         "evt-1",
		OccurredAt: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		Kind:       domain.EventFailedLogin,
		Subject:    "alice@example.edu",
		UserID:     &userID,
		IPAddress:  &ip,
		Details:    map[string]any{"reason": "invalid_password"},
	}
}

func TestLogSinkMasksIdentifiers(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	sink := NewLogSink(zap.New(core))

	require.NoError(t, sink.Log(context.Background(), sampleEvent()))
	require.Equal(t, 1, logs.Len())

	entry := logs.All()[0]
	fields := entry.ContextMap()
	require.Equal(t, "failed_login", fields["kind"])
	require.Equal(t, "user-1", fields["user_id"])
	require.NotContains(t, fields["subject"], "alice@example.edu")
	require.False(t, strings.HasSuffix(fields["ip"].(string), ".42"))
}

func TestPublisherSinkWrapsErrors(t *testing.T) {
	publisher := &capturePublisher{err: errors.New("broker down")}
	sink := NewPublisherSink(publisher)

	err := sink.Log(context.Background(), sampleEvent())
	require.Error(t, err)
	require.Contains(t, err.Error(), "broker down")
	require.Len(t, publisher.events, 1)

	require.NoError(t, NewPublisherSink(nil).Log(context.Background(), sampleEvent()))
}

func TestFanoutSinkDeliversToAll(t *testing.T) {
	failing := &captureSink{err: errors.New("db down")}
	healthy := &captureSink{}
	fanout := NewFanoutSink(failing, nil, healthy)
	require.Equal(t, 2, fanout.Len())

	err := fanout.Log(context.Background(), sampleEvent())
	require.Error(t, err)
	require.Contains(t, err.Error(), "db down")
	require.Len(t, failing.events, 1)
	require.Len(t, healthy.events, 1)

	var sinks []port.AuditSink
	require.NoError(t, NewFanoutSink(sinks...).Log(context.Background(), sampleEvent()))
}
