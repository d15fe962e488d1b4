package domain

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// Assessment 风险评估结果
type Assessment struct {
	RiskScore        int     `json:"risk_score"`
	FraudProbability float64 `json:"fraud_probability"`
}

// Validate 超出取值范围的结果视为评估失败
func (a Assessment) Validate() error {
	if a.RiskScore < 0 || a.RiskScore > 100 {
		return &AssessorUnavailableError{Cause: fmt.Errorf("risk_score %d out of range", a.RiskScore)}
	}
	if a.FraudProbability < 0 || a.FraudProbability > 1 {
		return &AssessorUnavailableError{Cause: fmt.Errorf("fraud_probability %v out of range", a.FraudProbability)}
	}
	return nil
}

// AssessmentRequest 提交给评估服务的特征
type AssessmentRequest struct {
	TransactionID       string              `json:"transaction_id"`
	SenderAccountID     string              `json:"sender_account_id"`
	ReceiverAccountID   string              `json:"receiver_account_id"`
	Amount              decimal.Decimal     `json:"amount"`
	Currency            string              `json:"currency"`
	Channel             Channel             `json:"channel"`
	AuthorizationMethod AuthorizationMethod `json:"authorization_method"`
	IsInternational     bool                `json:"is_international"`
	IsNewPayee          bool                `json:"is_new_payee"`
	TxnCount24h         int                 `json:"txn_count_24h"`
	SumAmount24h        decimal.Decimal     `json:"sum_amount_24h"`
	Hour                int                 `json:"hour"`
	Weekday             int                 `json:"weekday"`
	IPAddress           string              `json:"ip_address"`
	DeviceFingerprint   string              `json:"device_fingerprint"`
}

// NewAssessmentRequest 从待提交交易抽取特征
func NewAssessmentRequest(t *Transaction) AssessmentRequest {
	return AssessmentRequest{
		TransactionID:       t.ID,
		SenderAccountID:     t.SenderAccountID,
		ReceiverAccountID:   t.ReceiverAccountID,
		Amount:              t.Amount,
		Currency:            t.Currency,
		Channel:             t.Channel,
		AuthorizationMethod: t.AuthorizationMethod,
		IsInternational:     t.IsInternational,
		IsNewPayee:          t.IsNewPayee,
		TxnCount24h:         t.TxnCount24h,
		SumAmount24h:        t.SumAmount24h,
		Hour:                t.Hour(),
		Weekday:             int(t.Weekday()),
		IPAddress:           t.IPAddress,
		DeviceFingerprint:   t.DeviceFingerprint,
	}
}

// RiskAssessor 外部风险评估能力
type RiskAssessor interface {
	Assess(ctx context.Context, req AssessmentRequest) (Assessment, error)
}

// RiskAssessorFunc 函数适配器
type RiskAssessorFunc func(ctx context.Context, req AssessmentRequest) (Assessment, error)

func (f RiskAssessorFunc) Assess(ctx context.Context, req AssessmentRequest) (Assessment, error) {
	return f(ctx, req)
}
