package application

import (
	"context"

	"github.com/wyfcoding/fraudreview/internal/fraudreview/domain"
)

// TransactionQuery 交易只读查询
type TransactionQuery struct {
	repo domain.TransactionRepository
}

// NewTransactionQuery 创建查询服务
func NewTransactionQuery(repo domain.TransactionRepository) *TransactionQuery {
	return &TransactionQuery{repo: repo}
}

// ListForViewer 查询用户作为付款方或收款方的交易，按时间倒序后过滤
func (q *TransactionQuery) ListForViewer(ctx context.Context, viewer domain.Viewer, criteria domain.FilterCriteria) ([]*domain.Transaction, error) {
	if viewer.AccountID == "" {
		return nil, domain.NewValidationError("account_id", "viewer has no account")
	}
	txns, err := q.repo.ListByParticipant(ctx, viewer.AccountID)
	if err != nil {
		return nil, err
	}
	return criteria.Apply(txns), nil
}

// ListFlagged 查询待审核 (FLAGGED/UNDER_REVIEW) 交易
func (q *TransactionQuery) ListFlagged(ctx context.Context, criteria domain.FilterCriteria) ([]*domain.Transaction, error) {
	txns, err := q.repo.ListByStatus(ctx, domain.StatusFlagged, domain.StatusUnderReview)
	if err != nil {
		return nil, err
	}
	return criteria.Apply(txns), nil
}

// ListAll 管理员查询全部交易
func (q *TransactionQuery) ListAll(ctx context.Context, criteria domain.FilterCriteria) ([]*domain.Transaction, error) {
	txns, err := q.repo.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	return criteria.Apply(txns), nil
}

// Get 查询单笔交易
func (q *TransactionQuery) Get(ctx context.Context, id string) (*domain.Transaction, error) {
	return q.repo.Get(ctx, id)
}

// AuditTrail 查询交易审核记录，交易不存在时返回 NotFoundError
func (q *TransactionQuery) AuditTrail(ctx context.Context, id string) ([]*domain.ReviewAction, error) {
	if _, err := q.repo.Get(ctx, id); err != nil {
		return nil, err
	}
	return q.repo.ListReviewActions(ctx, id)
}
