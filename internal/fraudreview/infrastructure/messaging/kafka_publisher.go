package messaging

import (
	"context"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/wyfcoding/fraudreview/internal/fraudreview/domain"
)

// KafkaEventPublisher 直接写入 Kafka，不经过 Outbox
type KafkaEventPublisher struct {
	sender Sender
	topic  string
}

// NewKafkaEventPublisher 创建 Kafka 事件发布器
func NewKafkaEventPublisher(sender Sender, topic string) *KafkaEventPublisher {
	if topic == "" {
		topic = DefaultTopic
	}
	return &KafkaEventPublisher{sender: sender, topic: topic}
}

func (p *KafkaEventPublisher) PublishTransactionSubmitted(ctx context.Context, event domain.TransactionSubmittedEvent) error {
	return p.send(ctx, domain.TransactionSubmittedEventType, event.TransactionID, event.OccurredAt, event)
}

func (p *KafkaEventPublisher) PublishTransactionStatusChanged(ctx context.Context, event domain.TransactionStatusChangedEvent) error {
	return p.send(ctx, domain.TransactionStatusChangedEventType, event.TransactionID, event.OccurredAt, event)
}

func (p *KafkaEventPublisher) send(ctx context.Context, eventType, txnID string, occurredAt time.Time, event any) error {
	body, err := newEnvelope(eventType, txnID, occurredAt, event)
	if err != nil {
		return err
	}
	return p.sender.Send(ctx, p.topic, txnID, body, kafka.Header{Key: "event_type", Value: []byte(eventType)})
}

// LogEventPublisher 未配置 Kafka 时仅记录日志
type LogEventPublisher struct {
	logger *slog.Logger
}

// NewLogEventPublisher 创建日志事件发布器
func NewLogEventPublisher(logger *slog.Logger) *LogEventPublisher {
	return &LogEventPublisher{logger: logger}
}

func (p *LogEventPublisher) PublishTransactionSubmitted(ctx context.Context, event domain.TransactionSubmittedEvent) error {
	p.logger.InfoContext(ctx, "transaction submitted",
		"transaction_id", event.TransactionID, "status", event.Status, "assessment_failed", event.AssessmentFailed)
	return nil
}

func (p *LogEventPublisher) PublishTransactionStatusChanged(ctx context.Context, event domain.TransactionStatusChangedEvent) error {
	p.logger.InfoContext(ctx, "transaction status changed",
		"transaction_id", event.TransactionID, "from", event.FromStatus, "to", event.ToStatus, "actor_id", event.ActorID)
	return nil
}
