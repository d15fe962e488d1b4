package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Activity 付款方在时间窗口内的转账统计
type Activity struct {
	Count int
	Sum   decimal.Decimal
}

// TransactionRepository 交易仓储接口
// 列表方法按创建时间倒序返回
type TransactionRepository interface {
	// Create 保存新交易，ID 重复时返回错误
	Create(ctx context.Context, txn *Transaction) error
	// Get 查询单笔交易，不存在时返回 NotFoundError
	Get(ctx context.Context, id string) (*Transaction, error)
	// CompareAndSwap 仅当存储中的状态与版本仍等于 expected 时写入 next 并追加审计记录
	// 否则返回 ConcurrencyConflictError；两者在同一原子操作内完成
	CompareAndSwap(ctx context.Context, expected, next *Transaction, action *ReviewAction) error
	// ListByParticipant 查询账户作为付款方或收款方的交易
	ListByParticipant(ctx context.Context, accountID string) ([]*Transaction, error)
	// ListByStatus 查询指定状态的交易
	ListByStatus(ctx context.Context, statuses ...Status) ([]*Transaction, error)
	// ListAll 查询全部交易
	ListAll(ctx context.Context) ([]*Transaction, error)
	// SenderActivity 统计付款方自 since 起未被拦截或失败的转账
	SenderActivity(ctx context.Context, senderAccountID string, since time.Time) (Activity, error)
	// HasPriorTransfer 付款方是否曾向该收款方转账
	HasPriorTransfer(ctx context.Context, senderAccountID, receiverAccountID string) (bool, error)
	// ListReviewActions 查询交易的审核记录，按时间正序；交易不存在时返回 NotFoundError
	ListReviewActions(ctx context.Context, transactionID string) ([]*ReviewAction, error)
	// WithinTx 在同一事务中执行 fn，fn 返回错误时其中的写入全部回滚
	// 嵌套调用加入外层事务；事件发布器通过 ctx 加入同一事务
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// ReportCounter 汇总指标的增量计数器
//
// 写入方在修改存储前调用 Begin 登记，存储写入结束后以同一 token 调用 Add（失败时传零增量）。
// Reset 只在没有登记中的写入、且重算期间没有写入开始或结束时覆盖计数，
// 否则返回 ErrCounterBusy，避免覆盖与增量交错造成漂移。
type ReportCounter interface {
	// Begin 登记一次进行中的写入
	Begin(ctx context.Context) (token string, err error)
	// Add 累加增量并结束 token 的登记，Today 字段记入 day 对应的日计数；token 为空时只累加
	Add(ctx context.Context, token, day string, delta Report) error
	// Load 读取当前计数
	Load(ctx context.Context, day string) (Report, error)
	// Reset 执行 recompute 并以结果覆盖计数，返回覆盖值
	Reset(ctx context.Context, day string, recompute func(ctx context.Context) (Report, error)) (Report, error)
}
