// Package mysql 基于 GORM 的交易仓储，支持 MySQL、PostgreSQL 与 SQLite
package mysql

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/fraudreview/internal/fraudreview/domain"
	"github.com/wyfcoding/fraudreview/pkg/db"
	"gorm.io/gorm"
)

type transactionRepository struct {
	db *gorm.DB
}

// NewTransactionRepository 创建并返回一个新的 TransactionRepository 实例
func NewTransactionRepository(gdb *gorm.DB) domain.TransactionRepository {
	return &transactionRepository{db: gdb}
}

// AutoMigrate 建表
func AutoMigrate(gdb *gorm.DB) error {
	return gdb.AutoMigrate(&TransactionModel{}, &ReviewActionModel{})
}

func (r *transactionRepository) Create(ctx context.Context, txn *domain.Transaction) error {
	return r.getDB(ctx).WithContext(ctx).Create(toTransactionModel(txn)).Error
}

func (r *transactionRepository) Get(ctx context.Context, id string) (*domain.Transaction, error) {
	var model TransactionModel
	err := r.getDB(ctx).WithContext(ctx).Where("txn_id = ?", id).First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &domain.NotFoundError{TransactionID: id}
	}
	if err != nil {
		return nil, err
	}
	return toTransaction(&model), nil
}

// CompareAndSwap 以 status+version 为条件更新，与审计记录插入在同一事务内
func (r *transactionRepository) CompareAndSwap(ctx context.Context, expected, next *domain.Transaction, action *domain.ReviewAction) error {
	return db.WithTx(ctx, r.db, func(ctx context.Context, tx *gorm.DB) error {
		res := tx.Model(&TransactionModel{}).
			Where("txn_id = ? AND status = ? AND version = ?", expected.ID, string(expected.Status), expected.Version).
			Updates(map[string]any{
				"status":     string(next.Status),
				"is_fraud":   next.IsFraud,
				"version":    next.Version,
				"updated_at": next.UpdatedAt.UTC(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			var count int64
			if err := tx.Model(&TransactionModel{}).Where("txn_id = ?", expected.ID).Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return &domain.NotFoundError{TransactionID: expected.ID}
			}
			return &domain.ConcurrencyConflictError{TransactionID: expected.ID}
		}
		if action == nil {
			return nil
		}
		return tx.Create(toReviewActionModel(action)).Error
	})
}

func (r *transactionRepository) find(ctx context.Context, query string, args ...any) ([]*domain.Transaction, error) {
	var models []*TransactionModel
	q := r.getDB(ctx).WithContext(ctx)
	if query != "" {
		q = q.Where(query, args...)
	}
	if err := q.Order("created_at DESC, txn_id DESC").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]*domain.Transaction, 0, len(models))
	for _, m := range models {
		out = append(out, toTransaction(m))
	}
	return out, nil
}

func (r *transactionRepository) ListByParticipant(ctx context.Context, accountID string) ([]*domain.Transaction, error) {
	return r.find(ctx, "sender_account_id = ? OR receiver_account_id = ?", accountID, accountID)
}

func (r *transactionRepository) ListByStatus(ctx context.Context, statuses ...domain.Status) ([]*domain.Transaction, error) {
	values := make([]string, 0, len(statuses))
	for _, s := range statuses {
		values = append(values, string(s))
	}
	return r.find(ctx, "status IN ?", values)
}

func (r *transactionRepository) ListAll(ctx context.Context) ([]*domain.Transaction, error) {
	return r.find(ctx, "")
}

func (r *transactionRepository) SenderActivity(ctx context.Context, senderAccountID string, since time.Time) (domain.Activity, error) {
	var row struct {
		Cnt   int64
		Total decimal.NullDecimal
	}
	err := r.getDB(ctx).WithContext(ctx).Model(&TransactionModel{}).
		Select("COUNT(*) AS cnt, SUM(amount) AS total").
		Where("sender_account_id = ? AND created_at >= ? AND status NOT IN ?",
			senderAccountID, since.UTC(), []string{string(domain.StatusBlocked), string(domain.StatusFailed)}).
		Scan(&row).Error
	if err != nil {
		return domain.Activity{}, err
	}
	a := domain.Activity{Count: int(row.Cnt), Sum: decimal.Zero}
	if row.Total.Valid {
		a.Sum = row.Total.Decimal
	}
	return a, nil
}

func (r *transactionRepository) HasPriorTransfer(ctx context.Context, senderAccountID, receiverAccountID string) (bool, error) {
	var count int64
	err := r.getDB(ctx).WithContext(ctx).Model(&TransactionModel{}).
		Where("sender_account_id = ? AND receiver_account_id = ?", senderAccountID, receiverAccountID).
		Count(&count).Error
	return count > 0, err
}

func (r *transactionRepository) ListReviewActions(ctx context.Context, transactionID string) ([]*domain.ReviewAction, error) {
	var models []*ReviewActionModel
	err := r.getDB(ctx).WithContext(ctx).Where("transaction_id = ?", transactionID).Order("seq ASC").Find(&models).Error
	if err != nil {
		return nil, err
	}
	if len(models) == 0 {
		var count int64
		if err := r.getDB(ctx).WithContext(ctx).Model(&TransactionModel{}).Where("txn_id = ?", transactionID).Count(&count).Error; err != nil {
			return nil, err
		}
		if count == 0 {
			return nil, &domain.NotFoundError{TransactionID: transactionID}
		}
	}
	out := make([]*domain.ReviewAction, 0, len(models))
	for _, m := range models {
		out = append(out, toReviewAction(m))
	}
	return out, nil
}

// WithinTx 开启事务并放入 ctx，仓储与 Outbox 发布器在 fn 内通过 ctx 加入同一事务
func (r *transactionRepository) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return db.WithTx(ctx, r.db, func(ctx context.Context, _ *gorm.DB) error {
		return fn(ctx)
	})
}

func (r *transactionRepository) getDB(ctx context.Context) *gorm.DB {
	if tx, ok := db.TxFromContext(ctx); ok {
		return tx
	}
	return r.db
}
