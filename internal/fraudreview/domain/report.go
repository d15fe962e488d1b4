package domain

import "time"

// Report 汇总指标
type Report struct {
	Total          int64 `json:"total_transactions"`
	UnderReview    int64 `json:"under_review"`
	BlockedOrFraud int64 `json:"blocked_or_fraud"`
	Today          int64 `json:"todays_transactions"`
}

// FraudRate 拦截或判定欺诈的占比，取值 [0,1]，无交易时为 0
func (r Report) FraudRate() float64 {
	if r.Total <= 0 {
		return 0
	}
	rate := float64(r.BlockedOrFraud) / float64(r.Total)
	if rate > 1 {
		return 1
	}
	if rate < 0 {
		return 0
	}
	return rate
}

// Add 逐字段相加
func (r Report) Add(o Report) Report {
	return Report{
		Total:          r.Total + o.Total,
		UnderReview:    r.UnderReview + o.UnderReview,
		BlockedOrFraud: r.BlockedOrFraud + o.BlockedOrFraud,
		Today:          r.Today + o.Today,
	}
}

// Sub 逐字段相减
func (r Report) Sub(o Report) Report {
	return Report{
		Total:          r.Total - o.Total,
		UnderReview:    r.UnderReview - o.UnderReview,
		BlockedOrFraud: r.BlockedOrFraud - o.BlockedOrFraud,
		Today:          r.Today - o.Today,
	}
}

// IsZero 是否全部为零
func (r Report) IsZero() bool { return r == Report{} }

// DayStart 返回 now 所在 UTC 日的零点
func DayStart(now time.Time) time.Time {
	y, m, d := now.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DayKey 计数器使用的日期键
func DayKey(now time.Time) string { return DayStart(now).Format(dateLayout) }

// Contribution 单笔交易对汇总的贡献，nil 贡献为零
func Contribution(t *Transaction, dayStart time.Time) Report {
	if t == nil {
		return Report{}
	}
	r := Report{Total: 1}
	if t.Status.AwaitsReview() {
		r.UnderReview = 1
	}
	if t.Status == StatusBlocked || t.IsFraud {
		r.BlockedOrFraud = 1
	}
	if !t.CreatedAt.Before(dayStart) && t.CreatedAt.Before(dayStart.Add(24*time.Hour)) {
		r.Today = 1
	}
	return r
}

// Delta 一次状态变更对汇总的增量
func Delta(before, after *Transaction, dayStart time.Time) Report {
	return Contribution(after, dayStart).Sub(Contribution(before, dayStart))
}

// Summarize 从交易全集重算汇总
func Summarize(txns []*Transaction, now time.Time) Report {
	start := DayStart(now)
	var r Report
	for _, t := range txns {
		r = r.Add(Contribution(t, start))
	}
	return r
}
