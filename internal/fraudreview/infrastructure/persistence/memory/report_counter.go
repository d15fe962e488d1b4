package memory

import (
	"context"
	"strconv"
	"sync"

	"github.com/wyfcoding/fraudreview/internal/fraudreview/domain"
)

// reportCounter gen 在每次 Begin 与 Add 时递增，Reset 以它判断重算期间是否有写入
type reportCounter struct {
	mu       sync.Mutex
	totals   domain.Report
	today    map[string]int64
	inflight map[string]struct{}
	gen      uint64
	seq      uint64
}

// NewReportCounter 创建内存汇总计数器
func NewReportCounter() domain.ReportCounter {
	return &reportCounter{
		today:    make(map[string]int64),
		inflight: make(map[string]struct{}),
	}
}

func (c *reportCounter) Begin(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	c.gen++
	token := strconv.FormatUint(c.seq, 10)
	c.inflight[token] = struct{}{}
	return token, nil
}

func (c *reportCounter) Add(ctx context.Context, token, day string, delta domain.Report) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	if token != "" {
		delete(c.inflight, token)
	}
	c.totals = c.totals.Add(domain.Report{Total: delta.Total, UnderReview: delta.UnderReview, BlockedOrFraud: delta.BlockedOrFraud})
	if delta.Today != 0 {
		c.today[day] += delta.Today
	}
	return nil
}

func (c *reportCounter) Load(ctx context.Context, day string) (domain.Report, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r := c.totals
	r.Today = c.today[day]
	return r, nil
}

func (c *reportCounter) Reset(ctx context.Context, day string, recompute func(ctx context.Context) (domain.Report, error)) (domain.Report, error) {
	c.mu.Lock()
	if len(c.inflight) > 0 {
		c.mu.Unlock()
		return domain.Report{}, domain.ErrCounterBusy
	}
	gen := c.gen
	c.mu.Unlock()

	r, err := recompute(ctx)
	if err != nil {
		return domain.Report{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen || len(c.inflight) > 0 {
		return domain.Report{}, domain.ErrCounterBusy
	}
	c.totals = domain.Report{Total: r.Total, UnderReview: r.UnderReview, BlockedOrFraud: r.BlockedOrFraud}
	c.today = map[string]int64{day: r.Today}
	return r, nil
}
