package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xf00889/alumnisystem-sub000/internal/core/domain"
	"github.com/xf00889/alumnisystem-sub000/internal/core/port"
	"github.com/xf00889/alumnisystem-sub000/internal/infra/config"
)

const (
	schemaVersion     = "1.0"
	defaultAuditTopic = "security.events"
)

// EventPublisher implements port.EventPublisher using Kafka.
type EventPublisher struct {
	producer *Producer
	logger   *zap.Logger
	appCfg   config.AppSettings
	topic    string
}

// NewEventPublisher constructs a Kafka-backed publisher writing to the audit topic.
func NewEventPublisher(producer *Producer, appCfg config.AppSettings, logger *zap.Logger) *EventPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	topic := producer.cfg.AuditTopic
	if topic == "" {
		topic = defaultAuditTopic
	}
	return &EventPublisher{
		producer: producer,
		appCfg:   appCfg,
		logger:   logger,
		topic:    producer.TopicName(topic),
	}
}

type envelopeMetadata map[string]string

type eventEnvelope struct {
	EventID   string           `json:"event_id"`
	EventType string           `json:"event_type"`
	UserID    string           `json:"user_id,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
	Version   string           `json:"version"`
	Payload   any              `json:"payload"`
	Metadata  envelopeMetadata `json:"metadata,omitempty"`
}

type securityEventPayload struct {
	Kind      string         `json:"kind"`
	Subject   string         `json:"subject"`
	IPAddress *string        `json:"ip_address,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// PublishSecurityEvent enqueues event keyed by subject so one identifier's
// events stay ordered within a partition.
func (p *EventPublisher) PublishSecurityEvent(ctx context.Context, event domain.SecurityEvent) error {
	ts := event.OccurredAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	id := event.ID
	if id == "" {
		id = uuid.NewString()
	}
	var userID string
	if event.UserID != nil {
		userID = *event.UserID
	}

	envelope := eventEnvelope{
		EventID:   id,
		EventType: "alumni.auth." + string(event.Kind),
		UserID:    userID,
		Timestamp: ts.UTC(),
		Version:   schemaVersion,
		Payload: securityEventPayload{
			Kind:      string(event.Kind),
			Subject:   event.Subject,
			IPAddress: event.IPAddress,
			Details:   event.Details,
		},
		Metadata: envelopeMetadata{
			"service":     p.appCfg.Name,
			"environment": p.appCfg.Env,
		},
	}

	bytes, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(event.Subject),
		Value: sarama.ByteEncoder(bytes),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_type"), Value: []byte(envelope.EventType)},
		},
	}

	select {
	case p.producer.Producer().Input() <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

var _ port.EventPublisher = (*EventPublisher)(nil)
