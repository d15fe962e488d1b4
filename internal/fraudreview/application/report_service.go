package application

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/wyfcoding/fraudreview/internal/fraudreview/domain"
	"github.com/wyfcoding/fraudreview/pkg/metrics"
)

// ReportService 汇总指标：增量计数读取与全量对账
type ReportService struct {
	repo    domain.TransactionRepository
	counter domain.ReportCounter
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
	// retries 计数器忙时 Reconcile 的最大尝试次数
	retries uint
}

// NewReportService 创建汇总服务
func NewReportService(repo domain.TransactionRepository, counter domain.ReportCounter, m *metrics.Metrics, logger *slog.Logger) *ReportService {
	return &ReportService{repo: repo, counter: counter, metrics: m, logger: logger, now: time.Now, retries: 5}
}

// Current 读取增量计数得到的汇总
func (s *ReportService) Current(ctx context.Context) (domain.Report, error) {
	return s.counter.Load(ctx, domain.DayKey(s.now()))
}

// Recompute 从交易全集重算汇总，不修改计数器
func (s *ReportService) Recompute(ctx context.Context) (domain.Report, error) {
	txns, err := s.repo.ListAll(ctx)
	if err != nil {
		return domain.Report{}, err
	}
	return domain.Summarize(txns, s.now()), nil
}

// Reconcile 全量重算并覆盖计数器，返回覆盖前后的值
// 重算期间若有转账或审核写入计数器，本次覆盖作废并按退避重试，重试耗尽时返回 ErrCounterBusy
func (s *ReportService) Reconcile(ctx context.Context) (*ReconcileResultDTO, error) {
	now := s.now()
	day := domain.DayKey(now)

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = 20 * time.Millisecond
	eb.MaxInterval = 200 * time.Millisecond

	type outcome struct{ before, fresh domain.Report }
	res, err := backoff.Retry(ctx, func() (outcome, error) {
		before, err := s.counter.Load(ctx, day)
		if err != nil {
			return outcome{}, backoff.Permanent(err)
		}
		fresh, err := s.counter.Reset(ctx, day, func(ctx context.Context) (domain.Report, error) {
			txns, err := s.repo.ListAll(ctx)
			if err != nil {
				return domain.Report{}, err
			}
			return domain.Summarize(txns, now), nil
		})
		if err != nil && !errors.Is(err, domain.ErrCounterBusy) {
			return outcome{}, backoff.Permanent(err)
		}
		return outcome{before: before, fresh: fresh}, err
	},
		backoff.WithBackOff(eb),
		backoff.WithMaxTries(s.retries),
		backoff.WithNotify(func(err error, wait time.Duration) {
			s.logger.DebugContext(ctx, "report counters busy, retrying reconcile", "retry_in", wait)
		}),
	)
	if err != nil {
		return nil, err
	}
	before, fresh := res.before, res.fresh

	drifted := before != fresh
	if drifted {
		s.metrics.RecordReportDrift()
		s.logger.WarnContext(ctx, "report counters drifted, overwritten by recomputation",
			"before", before, "after", fresh)
	}
	s.metrics.SetReviewQueueSize(fresh.UnderReview)

	return &ReconcileResultDTO{
		Report:  ToReportDTO(fresh),
		Before:  ToReportDTO(before),
		Drifted: drifted,
	}, nil
}

// Start 按固定间隔执行对账，直到 ctx 结束
func (s *ReportService) Start(ctx context.Context, interval time.Duration) error {
	s.logger.Info("report reconciler started", "interval", interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("report reconciler stopping")
			return nil
		case <-ticker.C:
			if _, err := s.Reconcile(ctx); err != nil {
				if errors.Is(err, domain.ErrCounterBusy) {
					s.logger.Warn("report reconciliation skipped, counters busy")
					continue
				}
				s.logger.Error("report reconciliation failed", "error", err)
			}
		}
	}
}
