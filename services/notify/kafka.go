package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/upb/action-gate/services/gating"
	"go.uber.org/zap"
)

type kafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConfig configures the escalation event publisher
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// KafkaPublisher publishes escalation events keyed by user ID
type KafkaPublisher struct {
	writer kafkaWriter
	topic  string
	logger *zap.Logger
}

var _ gating.Notifier = (*KafkaPublisher)(nil)

// NewKafkaPublisher creates a publisher writing to cfg.Topic
func NewKafkaPublisher(cfg KafkaConfig, logger *zap.Logger) (*KafkaPublisher, error) {
	brokers := make([]string, 0, len(cfg.Brokers))
	for _, b := range cfg.Brokers {
		if trimmed := strings.TrimSpace(b); trimmed != "" {
			brokers = append(brokers, trimmed)
		}
	}
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers required")
	}
	if strings.TrimSpace(cfg.Topic) == "" {
		return nil, fmt.Errorf("kafka topic required")
	}

	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		BatchTimeout:           50 * time.Millisecond,
		WriteTimeout:           5 * time.Second,
		AllowAutoTopicCreation: true,
	}
	return newKafkaPublisher(w, cfg.Topic, logger), nil
}

func newKafkaPublisher(w kafkaWriter, topic string, logger *zap.Logger) *KafkaPublisher {
	return &KafkaPublisher{writer: w, topic: topic, logger: logger}
}

// NotifyEscalation implements gating.Notifier
func (p *KafkaPublisher) NotifyEscalation(ctx context.Context, event gating.EscalationEvent) error {
	if p == nil || p.writer == nil {
		return fmt.Errorf("kafka publisher not initialized")
	}

	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode escalation event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(strconv.FormatInt(event.UserID, 10)),
		Value: value,
		Time:  event.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte("user_escalated")},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish escalation event: %w", err)
	}

	p.logger.Debug("escalation event published",
		zap.String("topic", p.topic),
		zap.Int64("user_id", event.UserID))
	return nil
}

// Close flushes pending messages and closes the writer
func (p *KafkaPublisher) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
