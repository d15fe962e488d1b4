package application

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/wyfcoding/fraudreview/internal/fraudreview/domain"
	"github.com/wyfcoding/fraudreview/pkg/metrics"
)

// ReviewCommand 处理管理员审核动作
type ReviewCommand struct {
	repo      domain.TransactionRepository
	counter   domain.ReportCounter
	publisher domain.EventPublisher
	metrics   *metrics.Metrics
	logger    *slog.Logger
	now       func() time.Time
}

// NewReviewCommand 创建审核命令处理器
func NewReviewCommand(
	repo domain.TransactionRepository,
	counter domain.ReportCounter,
	publisher domain.EventPublisher,
	m *metrics.Metrics,
	logger *slog.Logger,
) *ReviewCommand {
	return &ReviewCommand{
		repo:      repo,
		counter:   counter,
		publisher: publisher,
		metrics:   m,
		logger:    logger,
		now:       time.Now,
	}
}

// ApplyAction 对交易执行审核动作
// 读取当前快照、由状态机计算新状态，再以状态与版本做 compare-and-set 写回。
// 读到终态时返回 InvalidTransitionError；读后被他人抢先修改时返回 ConcurrencyConflictError，
// 调用方可重新读取后重试。状态变更与状态事件在同一事务内提交，事件写入失败时状态回滚。
func (c *ReviewCommand) ApplyAction(ctx context.Context, cmd ApplyActionCommand) (*domain.Transaction, error) {
	action, err := domain.ParseAction(cmd.Action)
	if err != nil {
		return nil, err
	}
	actorID := strings.TrimSpace(cmd.ActorID)
	if actorID == "" {
		return nil, domain.NewValidationError("actor_id", "must not be empty")
	}

	current, err := c.repo.Get(ctx, cmd.TransactionID)
	if err != nil {
		c.record(action, err)
		return nil, err
	}

	now := c.now().UTC()
	next, err := current.Apply(action, now)
	if err != nil {
		c.record(action, err)
		return nil, err
	}

	audit := &domain.ReviewAction{
		ID:              uuid.NewString(),
		TransactionID:   current.ID,
		ActorID:         actorID,
		Action:          action,
		FromStatus:      current.Status,
		ResultingStatus: next.Status,
		CreatedAt:       now,
	}
	event := domain.TransactionStatusChangedEvent{
		TransactionID: next.ID,
		ActorID:       actorID,
		Action:        action,
		FromStatus:    current.Status,
		ToStatus:      next.Status,
		Version:       next.Version,
		OccurredAt:    now,
	}

	token := beginCount(ctx, c.counter, c.logger)
	err = c.repo.WithinTx(ctx, func(ctx context.Context) error {
		if err := c.repo.CompareAndSwap(ctx, current, next, audit); err != nil {
			return err
		}
		return c.publisher.PublishTransactionStatusChanged(ctx, event)
	})
	delta := domain.Report{}
	if err == nil {
		delta = domain.Delta(current, next, domain.DayStart(now))
	}
	if cerr := c.counter.Add(ctx, token, domain.DayKey(now), delta); cerr != nil {
		c.logger.WarnContext(ctx, "failed to update report counters", "transaction_id", current.ID, "error", cerr)
	}
	c.record(action, err)
	if err != nil {
		if domain.IsConcurrencyConflict(err) {
			c.logger.InfoContext(ctx, "review action lost compare-and-set",
				"transaction_id", current.ID, "actor_id", actorID, "action", action)
		}
		return nil, err
	}

	c.logger.InfoContext(ctx, "review action applied",
		"transaction_id", next.ID, "actor_id", actorID, "action", action, "from", current.Status, "to", next.Status)
	return next, nil
}

func (c *ReviewCommand) record(action domain.Action, err error) {
	outcome := "applied"
	switch {
	case err == nil:
	case domain.IsConcurrencyConflict(err):
		outcome = "conflict"
	case domain.IsInvalidTransition(err):
		outcome = "rejected"
	case domain.IsNotFound(err):
		outcome = "not_found"
	default:
		outcome = "error"
	}
	c.metrics.RecordReviewAction(string(action), outcome)
}
