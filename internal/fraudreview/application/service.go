// Package application 反欺诈审核服务的用例编排：转账提交、人工审核、查询、汇总与导出
package application

import (
	"context"
	"io"

	"github.com/wyfcoding/fraudreview/internal/fraudreview/domain"
)

// FraudReviewService 面向接口层的应用服务门面
type FraudReviewService struct {
	transfers *TransferCommand
	reviews   *ReviewCommand
	query     *TransactionQuery
	reports   *ReportService
	exports   *ExportService
}

// NewFraudReviewService 组装应用服务
func NewFraudReviewService(
	transfers *TransferCommand,
	reviews *ReviewCommand,
	query *TransactionQuery,
	reports *ReportService,
	exports *ExportService,
) *FraudReviewService {
	return &FraudReviewService{
		transfers: transfers,
		reviews:   reviews,
		query:     query,
		reports:   reports,
		exports:   exports,
	}
}

// SubmitTransfer 提交转账
func (s *FraudReviewService) SubmitTransfer(ctx context.Context, sender domain.Viewer, cmd SubmitTransferCommand) (*TransferResultDTO, error) {
	return s.transfers.SubmitTransfer(ctx, sender, cmd)
}

// ListTransactions 查询当前用户的交易
func (s *FraudReviewService) ListTransactions(ctx context.Context, viewer domain.Viewer, raw domain.RawFilter) ([]TransactionDTO, error) {
	txns, err := s.query.ListForViewer(ctx, viewer, domain.ParseFilterCriteria(raw, viewer))
	if err != nil {
		return nil, err
	}
	return ToTransactionDTOs(txns, viewer), nil
}

// ListFlagged 查询待审核交易
func (s *FraudReviewService) ListFlagged(ctx context.Context, viewer domain.Viewer, raw domain.RawFilter) ([]TransactionDTO, error) {
	txns, err := s.query.ListFlagged(ctx, domain.ParseFilterCriteria(raw, viewer))
	if err != nil {
		return nil, err
	}
	return ToTransactionDTOs(txns, viewer), nil
}

// ApplyAction 执行审核动作
func (s *FraudReviewService) ApplyAction(ctx context.Context, cmd ApplyActionCommand) (*TransactionDTO, error) {
	txn, err := s.reviews.ApplyAction(ctx, cmd)
	if err != nil {
		return nil, err
	}
	dto := ToTransactionDTO(txn, domain.Viewer{})
	return &dto, nil
}

// AuditTrail 查询审核记录
func (s *FraudReviewService) AuditTrail(ctx context.Context, id string) ([]ReviewActionDTO, error) {
	actions, err := s.query.AuditTrail(ctx, id)
	if err != nil {
		return nil, err
	}
	out := make([]ReviewActionDTO, 0, len(actions))
	for _, a := range actions {
		out = append(out, ToReviewActionDTO(a))
	}
	return out, nil
}

// ExportTransactions 导出当前用户的交易
func (s *FraudReviewService) ExportTransactions(ctx context.Context, viewer domain.Viewer, raw domain.RawFilter, format ExportFormat, w io.Writer) (int, error) {
	txns, err := s.query.ListForViewer(ctx, viewer, domain.ParseFilterCriteria(raw, viewer))
	if err != nil {
		return 0, err
	}
	return s.exports.Write(ctx, format, w, txns, viewer)
}

// ExportAll 管理员导出全部交易，方向与符号仍按查看者账户解析
func (s *FraudReviewService) ExportAll(ctx context.Context, viewer domain.Viewer, raw domain.RawFilter, format ExportFormat, w io.Writer) (int, error) {
	txns, err := s.query.ListAll(ctx, domain.ParseFilterCriteria(raw, viewer))
	if err != nil {
		return 0, err
	}
	return s.exports.Write(ctx, format, w, txns, viewer)
}

// Report 读取汇总指标
func (s *FraudReviewService) Report(ctx context.Context) (*ReportDTO, error) {
	r, err := s.reports.Current(ctx)
	if err != nil {
		return nil, err
	}
	dto := ToReportDTO(r)
	return &dto, nil
}

// Reconcile 全量对账
func (s *FraudReviewService) Reconcile(ctx context.Context) (*ReconcileResultDTO, error) {
	return s.reports.Reconcile(ctx)
}
