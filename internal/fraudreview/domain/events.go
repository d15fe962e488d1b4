package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

const (
	// TransactionSubmittedEventType 交易提交事件
	TransactionSubmittedEventType = "fraudreview.transaction.submitted"
	// TransactionStatusChangedEventType 交易审核状态变更事件
	TransactionStatusChangedEventType = "fraudreview.transaction.status_changed"
)

// TransactionSubmittedEvent 交易提交并完成初始定级
type TransactionSubmittedEvent struct {
	TransactionID     string          `json:"transaction_id"`
	SenderAccountID   string          `json:"sender_account_id"`
	ReceiverAccountID string          `json:"receiver_account_id"`
	Amount            decimal.Decimal `json:"amount"`
	Currency          string          `json:"currency"`
	Status            Status          `json:"status"`
	RiskScore         int             `json:"risk_score"`
	FraudProbability  float64         `json:"fraud_probability"`
	IsFraud           bool            `json:"is_fraud"`
	AssessmentFailed  bool            `json:"assessment_failed"`
	OccurredAt        time.Time       `json:"occurred_at"`
}

// TransactionStatusChangedEvent 审核动作导致的状态变更
type TransactionStatusChangedEvent struct {
	TransactionID string    `json:"transaction_id"`
	ActorID       string    `json:"actor_id"`
	Action        Action    `json:"action"`
	FromStatus    Status    `json:"from_status"`
	ToStatus      Status    `json:"to_status"`
	Version       int64     `json:"version"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// EventPublisher 领域事件发布接口
type EventPublisher interface {
	PublishTransactionSubmitted(ctx context.Context, event TransactionSubmittedEvent) error
	PublishTransactionStatusChanged(ctx context.Context, event TransactionStatusChangedEvent) error
}
