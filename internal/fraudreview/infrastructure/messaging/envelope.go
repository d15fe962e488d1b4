// Package messaging 领域事件的发布实现：Outbox、Kafka 直发与日志
package messaging

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

// DefaultTopic 交易事件主题
const DefaultTopic = "fraudreview.transaction.events"

// Envelope Kafka 消息体，事件类型随消息携带
type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	TransactionID string          `json:"transaction_id"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Payload       json.RawMessage `json:"payload"`
}

// Sender 消息发送抽象，由 mq.Producer 实现
type Sender interface {
	Send(ctx context.Context, topic, key string, value []byte, headers ...kafka.Header) error
}

func newEnvelope(eventType, transactionID string, occurredAt time.Time, event any) ([]byte, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		TransactionID: transactionID,
		OccurredAt:    occurredAt.UTC(),
		Payload:       payload,
	})
}

// DecodeEnvelope 解析消息体
func DecodeEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	err := json.Unmarshal(data, &env)
	return env, err
}
