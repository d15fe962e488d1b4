// Package mq 提供 Kafka producer/consumer 通用实现，支持重试与死信队列
package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

// Config Kafka 配置
type Config struct {
	Brokers        []string
	Topic          string
	GroupID        string
	DeadLetter     string
	MaxRetries     int
	RetryBackoff   time.Duration
	SessionTimeout time.Duration
}

// Enabled 未配置 broker 时不启用 Kafka
func (c Config) Enabled() bool { return len(c.Brokers) > 0 }

// MessageWriter kafka.Writer 的最小抽象
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer Kafka 生产者
type Producer struct {
	writer MessageWriter
	logger *slog.Logger
}

// NewProducer 创建 Kafka 生产者
func NewProducer(cfg Config, logger *slog.Logger) *Producer {
	backoff := cfg.RetryBackoff
	if backoff <= 0 {
		backoff = 100 * time.Millisecond
	}
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
		Compression:            kafka.Gzip,
		RequiredAcks:           kafka.RequireAll, // 等待所有副本确认
		MaxAttempts:            cfg.MaxRetries,
		WriteBackoffMin:        backoff,
		WriteBackoffMax:        backoff * 10,
	}
	logger.Info("kafka producer created", "brokers", cfg.Brokers)
	return NewProducerWithWriter(writer, logger)
}

// NewProducerWithWriter 使用自定义 writer 创建生产者
func NewProducerWithWriter(w MessageWriter, logger *slog.Logger) *Producer {
	return &Producer{writer: w, logger: logger}
}

// Send 发送单条原始消息
func (p *Producer) Send(ctx context.Context, topic, key string, value []byte, headers ...kafka.Header) error {
	msg := kafka.Message{
		Topic:   topic,
		Key:     []byte(key),
		Value:   value,
		Headers: headers,
		Time:    time.Now().UTC(),
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.ErrorContext(ctx, "failed to send kafka message", "topic", topic, "key", key, "error", err)
		return fmt.Errorf("send kafka message: %w", err)
	}
	p.logger.DebugContext(ctx, "kafka message sent", "topic", topic, "key", key)
	return nil
}

// SendJSON 序列化后发送
func (p *Producer) SendJSON(ctx context.Context, topic, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	return p.Send(ctx, topic, key, data)
}

// Close 关闭生产者
func (p *Producer) Close() error {
	return p.writer.Close()
}

// Handler 消息处理函数
type Handler func(ctx context.Context, msg kafka.Message) error

// MessageReader kafka.Reader 的最小抽象
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer Kafka 消费者
type Consumer struct {
	reader MessageReader
	dlq    *DeadLetterQueue
	logger *slog.Logger
}

// NewConsumer 创建消费者组成员
func NewConsumer(cfg Config, logger *slog.Logger) *Consumer {
	session := cfg.SessionTimeout
	if session <= 0 {
		session = 10 * time.Second
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.Topic,
		GroupID:        cfg.GroupID,
		SessionTimeout: session,
		StartOffset:    kafka.LastOffset,
		MaxBytes:       10e6, // 10MB
	})
	logger.Info("kafka consumer created", "brokers", cfg.Brokers, "topic", cfg.Topic, "group_id", cfg.GroupID)
	return NewConsumerWithReader(reader, logger)
}

// NewConsumerWithReader 使用自定义 reader 创建消费者
func NewConsumerWithReader(r MessageReader, logger *slog.Logger) *Consumer {
	return &Consumer{reader: r, logger: logger}
}

// WithDeadLetter 处理失败的消息转入死信队列
func (c *Consumer) WithDeadLetter(dlq *DeadLetterQueue) *Consumer {
	c.dlq = dlq
	return c
}

// Run 循环拉取消息直到 ctx 结束，处理完成后提交偏移量
func (c *Consumer) Run(ctx context.Context, h Handler) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			c.logger.ErrorContext(ctx, "failed to fetch kafka message", "error", err)
			return err
		}

		if herr := h(ctx, msg); herr != nil {
			c.logger.ErrorContext(ctx, "kafka message handler failed",
				"topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset, "error", herr)
			if c.dlq != nil {
				if derr := c.dlq.Send(ctx, msg, herr); derr != nil {
					// 死信也发不出去时不提交，交给下次重新投递
					return derr
				}
			}
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("commit kafka offset: %w", err)
		}
	}
}

// Close 关闭消费者
func (c *Consumer) Close() error {
	return c.reader.Close()
}

// DeadLetterQueue 死信队列
type DeadLetterQueue struct {
	producer *Producer
	topic    string
}

// NewDeadLetterQueue 创建死信队列
func NewDeadLetterQueue(producer *Producer, topic string) *DeadLetterQueue {
	return &DeadLetterQueue{producer: producer, topic: topic}
}

type deadLetter struct {
	OriginalTopic  string    `json:"original_topic"`
	OriginalKey    string    `json:"original_key"`
	OriginalValue  string    `json:"original_value"`
	OriginalOffset int64     `json:"original_offset"`
	FailureError   string    `json:"failure_error"`
	FailedAt       time.Time `json:"failed_at"`
}

// Send 发送消息到死信队列
func (dlq *DeadLetterQueue) Send(ctx context.Context, original kafka.Message, cause error) error {
	return dlq.producer.SendJSON(ctx, dlq.topic, string(original.Key), deadLetter{
		OriginalTopic:  original.Topic,
		OriginalKey:    string(original.Key),
		OriginalValue:  string(original.Value),
		OriginalOffset: original.Offset,
		FailureError:   cause.Error(),
		FailedAt:       time.Now().UTC(),
	})
}
