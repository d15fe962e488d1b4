// Package consumer 交易事件的 Kafka 消费端
package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/wyfcoding/fraudreview/internal/fraudreview/application"
	"github.com/wyfcoding/fraudreview/internal/fraudreview/domain"
	"github.com/wyfcoding/fraudreview/internal/fraudreview/infrastructure/messaging"
)

// Reconciler 以存储全量重算汇总计数
type Reconciler interface {
	Reconcile(ctx context.Context) (*application.ReconcileResultDTO, error)
}

// ReportProjection 收到交易事件后刷新汇总计数
// 同一时间窗口内的多条事件合并为一次对账
type ReportProjection struct {
	reconciler Reconciler
	window     time.Duration
	logger     *slog.Logger
	now        func() time.Time

	mu       sync.Mutex
	last     time.Time
	pending  bool
	received map[string]int64
}

// NewReportProjection 创建投影处理器，window 为两次对账的最小间隔
func NewReportProjection(reconciler Reconciler, window time.Duration, logger *slog.Logger) *ReportProjection {
	return &ReportProjection{
		reconciler: reconciler,
		window:     window,
		logger:     logger,
		now:        time.Now,
		received:   make(map[string]int64),
	}
}

// Handle 处理一条 Kafka 消息
// 消息体无法解析时返回错误，由消费者转入死信；对账失败只记录日志，等待下一条事件或定时对账
func (p *ReportProjection) Handle(ctx context.Context, msg kafka.Message) error {
	env, err := messaging.DecodeEnvelope(msg.Value)
	if err != nil {
		return fmt.Errorf("decode envelope: %w", err)
	}
	if env.EventType == "" {
		env.EventType = headerValue(msg.Headers, "event_type")
	}

	switch env.EventType {
	case domain.TransactionSubmittedEventType, domain.TransactionStatusChangedEventType:
	default:
		p.logger.DebugContext(ctx, "ignoring event", "event_type", env.EventType, "offset", msg.Offset)
		return nil
	}
	if env.TransactionID == "" {
		return errors.New("event has no transaction id")
	}

	p.mu.Lock()
	p.received[env.EventType]++
	now := p.now()
	if !p.last.IsZero() && now.Sub(p.last) < p.window {
		p.pending = true
		p.mu.Unlock()
		return nil
	}
	p.last = now
	p.pending = false
	p.mu.Unlock()

	return p.reconcile(ctx, env.TransactionID)
}

// Flush 补做被合并掉的对账
func (p *ReportProjection) Flush(ctx context.Context) error {
	p.mu.Lock()
	if !p.pending {
		p.mu.Unlock()
		return nil
	}
	p.pending = false
	p.last = p.now()
	p.mu.Unlock()
	return p.reconcile(ctx, "")
}

// StartFlusher 每个时间窗口检查一次被合并的对账，直到 ctx 结束
func (p *ReportProjection) StartFlusher(ctx context.Context) error {
	ticker := time.NewTicker(p.window)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			_ = p.Flush(ctx)
		}
	}
}

// Received 已处理的各类事件数
func (p *ReportProjection) Received(eventType string) int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.received[eventType]
}

func (p *ReportProjection) reconcile(ctx context.Context, transactionID string) error {
	res, err := p.reconciler.Reconcile(ctx)
	if errors.Is(err, domain.ErrCounterBusy) {
		// 计数器忙，留给下一次 Flush
		p.mu.Lock()
		p.pending = true
		p.mu.Unlock()
		p.logger.DebugContext(ctx, "projection reconcile deferred, counters busy", "transaction_id", transactionID)
		return nil
	}
	if err != nil {
		p.logger.WarnContext(ctx, "projection reconcile failed", "transaction_id", transactionID, "error", err)
		return nil
	}
	if res.Drifted {
		p.logger.InfoContext(ctx, "projection corrected report counters",
			"transaction_id", transactionID, "under_review", res.Report.UnderReview)
	}
	return nil
}

func headerValue(headers []kafka.Header, key string) string {
	for _, h := range headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}
