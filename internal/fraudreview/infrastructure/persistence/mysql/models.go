package mysql

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/fraudreview/internal/fraudreview/domain"
)

// TransactionModel 交易表映射
type TransactionModel struct {
	TxnID               string          `gorm:"column:txn_id;type:varchar(36);primaryKey"`
	SenderAccountID     string          `gorm:"column:sender_account_id;type:varchar(64);index:idx_sender_created,priority:1;not null"`
	SenderName          string          `gorm:"column:sender_name;type:varchar(128)"`
	ReceiverAccountID   string          `gorm:"column:receiver_account_id;type:varchar(64);index;not null"`
	ReceiverName        string          `gorm:"column:receiver_name;type:varchar(128)"`
	Amount              decimal.Decimal `gorm:"column:amount;type:decimal(15,2);not null"`
	Currency            string          `gorm:"column:currency;type:varchar(3);not null"`
	Description         string          `gorm:"column:description;type:text"`
	Channel             string          `gorm:"column:channel;type:varchar(16)"`
	AuthorizationMethod string          `gorm:"column:authorization_method;type:varchar(16)"`
	IPAddress           string          `gorm:"column:ip_address;type:varchar(64)"`
	DeviceFingerprint   string          `gorm:"column:device_fingerprint;type:varchar(128)"`
	IsInternational     bool            `gorm:"column:is_international;not null"`
	IsNewPayee          bool            `gorm:"column:is_new_payee;not null"`
	TxnCount24h         int             `gorm:"column:txn_count_24h;not null"`
	SumAmount24h        decimal.Decimal `gorm:"column:sum_amount_24h;type:decimal(15,2);not null"`
	RiskScore           int             `gorm:"column:risk_score;not null"`
	FraudProbability    float64         `gorm:"column:fraud_probability;not null"`
	IsFraud             bool            `gorm:"column:is_fraud;not null"`
	Status              string          `gorm:"column:status;type:varchar(20);index;not null"`
	Version             int64           `gorm:"column:version;not null"`
	CreatedAt           time.Time       `gorm:"column:created_at;index:idx_sender_created,priority:2;not null"`
	UpdatedAt           time.Time       `gorm:"column:updated_at;not null"`
}

func (TransactionModel) TableName() string { return "fraud_transactions" }

// ReviewActionModel 审核记录表映射，只插入
type ReviewActionModel struct {
	Seq             uint64    `gorm:"column:seq;primaryKey;autoIncrement"`
	ID              string    `gorm:"column:id;type:varchar(36);uniqueIndex;not null"`
	TransactionID   string    `gorm:"column:transaction_id;type:varchar(36);index;not null"`
	ActorID         string    `gorm:"column:actor_id;type:varchar(64);not null"`
	Action          string    `gorm:"column:action;type:varchar(20);not null"`
	FromStatus      string    `gorm:"column:from_status;type:varchar(20);not null"`
	ResultingStatus string    `gorm:"column:resulting_status;type:varchar(20);not null"`
	CreatedAt       time.Time `gorm:"column:created_at;not null"`
}

func (ReviewActionModel) TableName() string { return "fraud_review_actions" }

// --- mapping helpers ---

func toTransactionModel(t *domain.Transaction) *TransactionModel {
	return &TransactionModel{
		TxnID:               t.ID,
		SenderAccountID:     t.SenderAccountID,
		SenderName:          t.SenderName,
		ReceiverAccountID:   t.ReceiverAccountID,
		ReceiverName:        t.ReceiverName,
		Amount:              t.Amount,
		Currency:            t.Currency,
		Description:         t.Description,
		Channel:             string(t.Channel),
		AuthorizationMethod: string(t.AuthorizationMethod),
		IPAddress:           t.IPAddress,
		DeviceFingerprint:   t.DeviceFingerprint,
		IsInternational:     t.IsInternational,
		IsNewPayee:          t.IsNewPayee,
		TxnCount24h:         t.TxnCount24h,
		SumAmount24h:        t.SumAmount24h,
		RiskScore:           t.RiskScore,
		FraudProbability:    t.FraudProbability,
		IsFraud:             t.IsFraud,
		Status:              string(t.Status),
		Version:             t.Version,
		CreatedAt:           t.CreatedAt.UTC(),
		UpdatedAt:           t.UpdatedAt.UTC(),
	}
}

func toTransaction(m *TransactionModel) *domain.Transaction {
	return &domain.Transaction{
		ID:                  m.TxnID,
		SenderAccountID:     m.SenderAccountID,
		SenderName:          m.SenderName,
		ReceiverAccountID:   m.ReceiverAccountID,
		ReceiverName:        m.ReceiverName,
		Amount:              m.Amount,
		Currency:            m.Currency,
		Description:         m.Description,
		Channel:             domain.Channel(m.Channel),
		AuthorizationMethod: domain.AuthorizationMethod(m.AuthorizationMethod),
		IPAddress:           m.IPAddress,
		DeviceFingerprint:   m.DeviceFingerprint,
		IsInternational:     m.IsInternational,
		IsNewPayee:          m.IsNewPayee,
		TxnCount24h:         m.TxnCount24h,
		SumAmount24h:        m.SumAmount24h,
		RiskScore:           m.RiskScore,
		FraudProbability:    m.FraudProbability,
		IsFraud:             m.IsFraud,
		Status:              domain.Status(m.Status),
		Version:             m.Version,
		CreatedAt:           m.CreatedAt.UTC(),
		UpdatedAt:           m.UpdatedAt.UTC(),
	}
}

func toReviewActionModel(a *domain.ReviewAction) *ReviewActionModel {
	return &ReviewActionModel{
		ID:              a.ID,
		TransactionID:   a.TransactionID,
		ActorID:         a.ActorID,
		Action:          string(a.Action),
		FromStatus:      string(a.FromStatus),
		ResultingStatus: string(a.ResultingStatus),
		CreatedAt:       a.CreatedAt.UTC(),
	}
}

func toReviewAction(m *ReviewActionModel) *domain.ReviewAction {
	return &domain.ReviewAction{
		ID:              m.ID,
		TransactionID:   m.TransactionID,
		ActorID:         m.ActorID,
		Action:          domain.Action(m.Action),
		FromStatus:      domain.Status(m.FromStatus),
		ResultingStatus: domain.Status(m.ResultingStatus),
		CreatedAt:       m.CreatedAt.UTC(),
	}
}
