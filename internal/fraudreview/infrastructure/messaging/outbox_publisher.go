package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/wyfcoding/fraudreview/internal/fraudreview/domain"
	"github.com/wyfcoding/fraudreview/pkg/db"
	"gorm.io/gorm"
)

const (
	outboxPending = "pending"
	outboxSent    = "sent"
)

// OutboxMessage 待投递事件
type OutboxMessage struct {
	ID            string    `gorm:"column:id;type:varchar(36);primaryKey"`
	Seq           uint64    `gorm:"column:seq;not null;index"`
	TransactionID string    `gorm:"column:transaction_id;type:varchar(36);index"`
	EventType     string    `gorm:"column:event_type;type:varchar(100);index"`
	Payload       string    `gorm:"column:payload;type:text"`
	Status        string    `gorm:"column:status;type:varchar(20);index;default:'pending'"`
	Attempts      int       `gorm:"column:attempts;not null;default:0"`
	LastError     string    `gorm:"column:last_error;type:text"`
	CreatedAt     time.Time `gorm:"column:created_at;index"`
	UpdatedAt     time.Time `gorm:"column:updated_at"`
}

// TableName 指定表名
func (OutboxMessage) TableName() string {
	return "fraud_outbox_messages"
}

// AutoMigrate 建表
func AutoMigrate(gdb *gorm.DB) error {
	return gdb.AutoMigrate(&OutboxMessage{})
}

// OutboxEventPublisher 实现 EventPublisher 接口，使用 Outbox 模式
type OutboxEventPublisher struct {
	db     *gorm.DB
	topic  string
	logger *slog.Logger
}

// NewOutboxEventPublisher 创建新的 OutboxEventPublisher 实例
func NewOutboxEventPublisher(gdb *gorm.DB, topic string, logger *slog.Logger) *OutboxEventPublisher {
	if topic == "" {
		topic = DefaultTopic
	}
	return &OutboxEventPublisher{db: gdb, topic: topic, logger: logger}
}

// PublishTransactionSubmitted 发布交易提交事件
func (p *OutboxEventPublisher) PublishTransactionSubmitted(ctx context.Context, event domain.TransactionSubmittedEvent) error {
	return p.publishEvent(ctx, domain.TransactionSubmittedEventType, event.TransactionID, event.OccurredAt, event)
}

// PublishTransactionStatusChanged 发布审核状态变更事件
func (p *OutboxEventPublisher) PublishTransactionStatusChanged(ctx context.Context, event domain.TransactionStatusChangedEvent) error {
	return p.publishEvent(ctx, domain.TransactionStatusChangedEventType, event.TransactionID, event.OccurredAt, event)
}

func (p *OutboxEventPublisher) publishEvent(ctx context.Context, eventType, txnID string, occurredAt time.Time, event any) error {
	body, err := newEnvelope(eventType, txnID, occurredAt, event)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	msg := OutboxMessage{
		ID:            uuid.NewString(),
		Seq:           nextSeq(now),
		TransactionID: txnID,
		EventType:     eventType,
		Payload:       string(body),
		Status:        outboxPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	return p.getDB(ctx).WithContext(ctx).Create(&msg).Error
}

// ProcessOutboxMessages 按写入顺序投递一批待发送消息，遇到失败即停止以保持单交易内的顺序
func (p *OutboxEventPublisher) ProcessOutboxMessages(ctx context.Context, sender Sender, batchSize int) (int, error) {
	var messages []OutboxMessage
	err := p.db.WithContext(ctx).
		Where("status = ?", outboxPending).
		Order("seq ASC").
		Limit(batchSize).
		Find(&messages).Error
	if err != nil {
		return 0, err
	}

	sent := 0
	for i := range messages {
		msg := &messages[i]
		sendErr := sender.Send(ctx, p.topic, msg.TransactionID, []byte(msg.Payload),
			kafka.Header{Key: "event_type", Value: []byte(msg.EventType)})
		if sendErr != nil {
			if err := p.db.WithContext(ctx).Model(msg).Updates(map[string]any{
				"attempts":   gorm.Expr("attempts + 1"),
				"last_error": sendErr.Error(),
				"updated_at": time.Now().UTC(),
			}).Error; err != nil {
				p.logger.ErrorContext(ctx, "failed to record outbox delivery failure",
					"message_id", msg.ID, "send_error", sendErr, "error", err)
			}
			return sent, fmt.Errorf("relay outbox message %s: %w", msg.ID, sendErr)
		}
		if err := p.db.WithContext(ctx).Model(msg).Updates(map[string]any{
			"status":     outboxSent,
			"updated_at": time.Now().UTC(),
		}).Error; err != nil {
			return sent, err
		}
		sent++
	}
	return sent, nil
}

// Relay 周期性投递 Outbox，直到 ctx 结束
func (p *OutboxEventPublisher) Relay(ctx context.Context, sender Sender, interval time.Duration, batchSize int) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := p.ProcessOutboxMessages(ctx, sender, batchSize)
			if err != nil && ctx.Err() == nil {
				p.logger.WarnContext(ctx, "outbox relay failed", "sent", n, "error", err)
			} else if n > 0 {
				p.logger.DebugContext(ctx, "outbox relayed", "sent", n)
			}
		}
	}
}

// CleanupProcessedMessages 清理已投递的消息
func (p *OutboxEventPublisher) CleanupProcessedMessages(ctx context.Context, before time.Time) (int64, error) {
	res := p.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", outboxSent, before.UTC()).
		Delete(&OutboxMessage{})
	return res.RowsAffected, res.Error
}

var lastSeq atomic.Uint64

// nextSeq 进程内单调递增的投递序号
func nextSeq(now time.Time) uint64 {
	for {
		prev := lastSeq.Load()
		n := uint64(now.UnixNano())
		if n <= prev {
			n = prev + 1
		}
		if lastSeq.CompareAndSwap(prev, n) {
			return n
		}
	}
}

func (p *OutboxEventPublisher) getDB(ctx context.Context) *gorm.DB {
	if tx, ok := db.TxFromContext(ctx); ok {
		return tx
	}
	return p.db
}
