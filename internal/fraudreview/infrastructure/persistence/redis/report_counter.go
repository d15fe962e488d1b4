// Package redis 基于 Redis 的汇总计数器，多实例共享同一组计数
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/wyfcoding/fraudreview/internal/fraudreview/domain"
)

const (
	fieldTotal          = "total"
	fieldUnderReview    = "under_review"
	fieldBlockedOrFraud = "blocked_or_fraud"
)

// reportCounter 进行中的写入登记在有序集合里，分值为登记时间（毫秒）
// 超过 lease 仍未结束的登记视为写入方已退出，在 Reset 时清理
type reportCounter struct {
	client   redis.UniversalClient
	prefix   string
	todayTTL time.Duration
	lease    time.Duration
	now      func() time.Time
}

// NewReportCounter 创建 Redis 汇总计数器
func NewReportCounter(client redis.UniversalClient) domain.ReportCounter {
	return &reportCounter{
		client:   client,
		prefix:   "fraudreview:report:",
		todayTTL: 48 * time.Hour,
		lease:    30 * time.Second,
		now:      time.Now,
	}
}

func (c *reportCounter) totalsKey() string { return c.prefix + "totals" }

func (c *reportCounter) inflightKey() string { return c.prefix + "inflight" }

func (c *reportCounter) todayKey(day string) string {
	return fmt.Sprintf("%stoday:%s", c.prefix, day)
}

func (c *reportCounter) Begin(ctx context.Context) (string, error) {
	token := uuid.NewString()
	err := c.client.ZAdd(ctx, c.inflightKey(), redis.Z{
		Score:  float64(c.now().UnixMilli()),
		Member: token,
	}).Err()
	if err != nil {
		return "", fmt.Errorf("register counter write: %w", err)
	}
	return token, nil
}

func (c *reportCounter) Add(ctx context.Context, token, day string, delta domain.Report) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if token != "" {
			pipe.ZRem(ctx, c.inflightKey(), token)
		}
		if delta.Total != 0 {
			pipe.HIncrBy(ctx, c.totalsKey(), fieldTotal, delta.Total)
		}
		if delta.UnderReview != 0 {
			pipe.HIncrBy(ctx, c.totalsKey(), fieldUnderReview, delta.UnderReview)
		}
		if delta.BlockedOrFraud != 0 {
			pipe.HIncrBy(ctx, c.totalsKey(), fieldBlockedOrFraud, delta.BlockedOrFraud)
		}
		if delta.Today != 0 {
			pipe.IncrBy(ctx, c.todayKey(day), delta.Today)
			pipe.Expire(ctx, c.todayKey(day), c.todayTTL)
		}
		return nil
	})
	return err
}

func (c *reportCounter) Load(ctx context.Context, day string) (domain.Report, error) {
	vals, err := c.client.HMGet(ctx, c.totalsKey(), fieldTotal, fieldUnderReview, fieldBlockedOrFraud).Result()
	if err != nil {
		return domain.Report{}, err
	}
	var r domain.Report
	fields := []*int64{&r.Total, &r.UnderReview, &r.BlockedOrFraud}
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return domain.Report{}, err
		}
		*fields[i] = n
	}

	today, err := c.client.Get(ctx, c.todayKey(day)).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return domain.Report{}, err
	}
	r.Today = today
	return r, nil
}

// Reset 以 WATCH 监视计数键与登记集合，重算期间任一键被修改则 EXEC 失败并返回 ErrCounterBusy
func (c *reportCounter) Reset(ctx context.Context, day string, recompute func(ctx context.Context) (domain.Report, error)) (domain.Report, error) {
	expired := strconv.FormatInt(c.now().Add(-c.lease).UnixMilli(), 10)
	if err := c.client.ZRemRangeByScore(ctx, c.inflightKey(), "-inf", "("+expired).Err(); err != nil {
		return domain.Report{}, err
	}

	var fresh domain.Report
	err := c.client.Watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.ZCard(ctx, c.inflightKey()).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return domain.ErrCounterBusy
		}
		fresh, err = recompute(ctx)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, c.totalsKey(), map[string]any{
				fieldTotal:          fresh.Total,
				fieldUnderReview:    fresh.UnderReview,
				fieldBlockedOrFraud: fresh.BlockedOrFraud,
			})
			pipe.Set(ctx, c.todayKey(day), fresh.Today, c.todayTTL)
			return nil
		})
		return err
	}, c.totalsKey(), c.todayKey(day), c.inflightKey())
	if errors.Is(err, redis.TxFailedErr) {
		return domain.Report{}, domain.ErrCounterBusy
	}
	if err != nil {
		return domain.Report{}, err
	}
	return fresh, nil
}
