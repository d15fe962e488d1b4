// Package memory 进程内交易仓储与汇总计数器，用于单机部署与测试
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/fraudreview/internal/fraudreview/domain"
)

// record 单笔交易的存储槽
// snap 指向不可变快照，读取无锁；mu 只串行化同一交易的写入与审计追加
type record struct {
	mu      sync.Mutex
	snap    atomic.Pointer[domain.Transaction]
	actions []*domain.ReviewAction
}

// memTx 一次 WithinTx 内的撤销日志，fn 失败时倒序执行
// 未提交的写入对并发读取可见
type memTx struct {
	undo []func()
}

type txKey struct{}

type transactionRepository struct {
	mu      sync.RWMutex
	records map[string]*record
	order   []*record
}

// NewTransactionRepository 创建内存交易仓储
func NewTransactionRepository() domain.TransactionRepository {
	return &transactionRepository{records: make(map[string]*record)}
}

func (r *transactionRepository) Create(ctx context.Context, txn *domain.Transaction) error {
	rec := &record{}
	rec.snap.Store(txn.Clone())

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[txn.ID]; ok {
		return fmt.Errorf("transaction %s already exists", txn.ID)
	}
	r.records[txn.ID] = rec
	r.order = append(r.order, rec)
	if tx, ok := ctx.Value(txKey{}).(*memTx); ok {
		tx.undo = append(tx.undo, func() { r.remove(txn.ID, rec) })
	}
	return nil
}

func (r *transactionRepository) remove(id string, rec *record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.records[id] != rec {
		return
	}
	delete(r.records, id)
	r.order = slices.DeleteFunc(r.order, func(x *record) bool { return x == rec })
}

// WithinTx 以撤销日志模拟事务，嵌套调用加入外层
func (r *transactionRepository) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*memTx); ok {
		return fn(ctx)
	}
	tx := &memTx{}
	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		for i := len(tx.undo) - 1; i >= 0; i-- {
			tx.undo[i]()
		}
		return err
	}
	return nil
}

func (r *transactionRepository) lookup(id string) (*record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[id]
	return rec, ok
}

func (r *transactionRepository) Get(ctx context.Context, id string) (*domain.Transaction, error) {
	rec, ok := r.lookup(id)
	if !ok {
		return nil, &domain.NotFoundError{TransactionID: id}
	}
	return rec.snap.Load().Clone(), nil
}

func (r *transactionRepository) CompareAndSwap(ctx context.Context, expected, next *domain.Transaction, action *domain.ReviewAction) error {
	rec, ok := r.lookup(expected.ID)
	if !ok {
		return &domain.NotFoundError{TransactionID: expected.ID}
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	cur := rec.snap.Load()
	if cur.Status != expected.Status || cur.Version != expected.Version {
		return &domain.ConcurrencyConflictError{TransactionID: expected.ID}
	}
	stored := next.Clone()
	rec.snap.Store(stored)
	appended := false
	if action != nil {
		a := *action
		rec.actions = append(rec.actions, &a)
		appended = true
	}
	if tx, ok := ctx.Value(txKey{}).(*memTx); ok {
		tx.undo = append(tx.undo, func() {
			rec.mu.Lock()
			defer rec.mu.Unlock()
			// 已被后续写入覆盖时不再回退
			if rec.snap.Load() != stored {
				return
			}
			rec.snap.Store(cur)
			if appended {
				rec.actions = rec.actions[:len(rec.actions)-1]
			}
		})
	}
	return nil
}

// snapshot 按创建时间倒序返回满足条件的快照拷贝
func (r *transactionRepository) snapshot(keep func(*domain.Transaction) bool) []*domain.Transaction {
	r.mu.RLock()
	recs := slices.Clone(r.order)
	r.mu.RUnlock()

	out := make([]*domain.Transaction, 0, len(recs))
	for i := len(recs) - 1; i >= 0; i-- {
		t := recs[i].snap.Load()
		if keep == nil || keep(t) {
			out = append(out, t.Clone())
		}
	}
	slices.SortStableFunc(out, func(a, b *domain.Transaction) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return out
}

func (r *transactionRepository) ListByParticipant(ctx context.Context, accountID string) ([]*domain.Transaction, error) {
	return r.snapshot(func(t *domain.Transaction) bool {
		return t.SenderAccountID == accountID || t.ReceiverAccountID == accountID
	}), nil
}

func (r *transactionRepository) ListByStatus(ctx context.Context, statuses ...domain.Status) ([]*domain.Transaction, error) {
	return r.snapshot(func(t *domain.Transaction) bool {
		return slices.Contains(statuses, t.Status)
	}), nil
}

func (r *transactionRepository) ListAll(ctx context.Context) ([]*domain.Transaction, error) {
	return r.snapshot(nil), nil
}

func (r *transactionRepository) SenderActivity(ctx context.Context, senderAccountID string, since time.Time) (domain.Activity, error) {
	a := domain.Activity{Sum: decimal.Zero}
	for _, t := range r.snapshot(func(t *domain.Transaction) bool {
		return t.SenderAccountID == senderAccountID && !t.CreatedAt.Before(since) &&
			t.Status != domain.StatusBlocked && t.Status != domain.StatusFailed
	}) {
		a.Count++
		a.Sum = a.Sum.Add(t.Amount)
	}
	return a, nil
}

func (r *transactionRepository) HasPriorTransfer(ctx context.Context, senderAccountID, receiverAccountID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, rec := range r.order {
		t := rec.snap.Load()
		if t.SenderAccountID == senderAccountID && t.ReceiverAccountID == receiverAccountID {
			return true, nil
		}
	}
	return false, nil
}

func (r *transactionRepository) ListReviewActions(ctx context.Context, transactionID string) ([]*domain.ReviewAction, error) {
	rec, ok := r.lookup(transactionID)
	if !ok {
		return nil, &domain.NotFoundError{TransactionID: transactionID}
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	out := make([]*domain.ReviewAction, 0, len(rec.actions))
	for _, a := range rec.actions {
		c := *a
		out = append(out, &c)
	}
	return out, nil
}
