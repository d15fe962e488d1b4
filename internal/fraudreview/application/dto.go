package application

import (
	"time"

	"github.com/wyfcoding/fraudreview/internal/fraudreview/domain"
)

// SubmitTransferCommand 转账提交命令
// Channel 与 SendVia 为同一字段的两种命名，二者同时出现时必须一致
type SubmitTransferCommand struct {
	ReceiverAccountID   string `json:"receiver_account_id"`
	ReceiverName        string `json:"receiver_name"`
	Amount              string `json:"amount"`
	Currency            string `json:"currency"`
	Description         string `json:"description"`
	Channel             string `json:"channel"`
	SendVia             string `json:"send_via"`
	AuthorizationMethod string `json:"authorization_method"`
	IPAddress           string `json:"-"`
	DeviceFingerprint   string `json:"device_fingerprint"`
}

// TransferResultDTO 转账提交结果
type TransferResultDTO struct {
	TransactionID    string  `json:"transaction_id"`
	Status           string  `json:"status"`
	IsFraud          bool    `json:"is_fraud"`
	Accepted         bool    `json:"accepted"`
	Message          string  `json:"message"`
	RiskScore        int     `json:"risk_score"`
	FraudProbability float64 `json:"fraud_probability"`
}

// ApplyActionCommand 审核动作命令
type ApplyActionCommand struct {
	TransactionID string
	Action        string
	ActorID       string
}

// TransactionDTO 交易展示 DTO
type TransactionDTO struct {
	ID                  string  `json:"id"`
	SenderAccountID     string  `json:"sender_account_id"`
	SenderName          string  `json:"sender_name"`
	ReceiverAccountID   string  `json:"receiver_account_id"`
	ReceiverName        string  `json:"receiver_name"`
	Direction           string  `json:"direction,omitempty"`
	Amount              string  `json:"amount"`
	Currency            string  `json:"currency"`
	Description         string  `json:"description"`
	Channel             string  `json:"channel"`
	AuthorizationMethod string  `json:"authorization_method"`
	IsInternational     bool    `json:"is_international"`
	IsNewPayee          bool    `json:"is_new_payee"`
	TxnCount24h         int     `json:"txn_count_24h"`
	SumAmount24h        string  `json:"sum_amount_24h"`
	RiskScore           int     `json:"risk_score"`
	RiskLevel           string  `json:"risk_level"`
	FraudProbability    float64 `json:"fraud_probability"`
	IsFraud             bool    `json:"is_fraud"`
	Status              string  `json:"status"`
	Version             int64   `json:"version"`
	Hour                int     `json:"hour"`
	Weekday             string  `json:"weekday"`
	CreatedAt           int64   `json:"created_at"`
	UpdatedAt           int64   `json:"updated_at"`
}

// ReviewActionDTO 审核记录 DTO
type ReviewActionDTO struct {
	ID              string `json:"id"`
	TransactionID   string `json:"transaction_id"`
	ActorID         string `json:"actor_id"`
	Action          string `json:"action"`
	FromStatus      string `json:"from_status"`
	ResultingStatus string `json:"resulting_status"`
	CreatedAt       int64  `json:"created_at"`
}

// ReportDTO 汇总指标 DTO
type ReportDTO struct {
	TotalTransactions  int64   `json:"total_transactions"`
	UnderReview        int64   `json:"under_review"`
	BlockedOrFraud     int64   `json:"blocked_or_fraud"`
	TodaysTransactions int64   `json:"todays_transactions"`
	FraudRate          float64 `json:"fraud_rate"`
}

// ReconcileResultDTO 对账结果
type ReconcileResultDTO struct {
	Report  ReportDTO `json:"report"`
	Before  ReportDTO `json:"before"`
	Drifted bool      `json:"drifted"`
}

// riskLevel 风险徽标：>=80 高，>=60 中
func riskLevel(score int) string {
	switch {
	case score >= 80:
		return "high"
	case score >= 60:
		return "medium"
	default:
		return "low"
	}
}

// ToTransactionDTO 领域对象转 DTO，viewer 为空账户时不填方向
func ToTransactionDTO(t *domain.Transaction, viewer domain.Viewer) TransactionDTO {
	dto := TransactionDTO{
		ID:                  t.ID,
		SenderAccountID:     t.SenderAccountID,
		SenderName:          t.SenderName,
		ReceiverAccountID:   t.ReceiverAccountID,
		ReceiverName:        t.ReceiverName,
		Amount:              t.Amount.StringFixed(2),
		Currency:            t.Currency,
		Description:         t.Description,
		Channel:             string(t.Channel),
		AuthorizationMethod: string(t.AuthorizationMethod),
		IsInternational:     t.IsInternational,
		IsNewPayee:          t.IsNewPayee,
		TxnCount24h:         t.TxnCount24h,
		SumAmount24h:        t.SumAmount24h.StringFixed(2),
		RiskScore:           t.RiskScore,
		RiskLevel:           riskLevel(t.RiskScore),
		FraudProbability:    t.FraudProbability,
		IsFraud:             t.IsFraud,
		Status:              string(t.Status),
		Version:             t.Version,
		Hour:                t.Hour(),
		Weekday:             t.Weekday().String(),
		CreatedAt:           t.CreatedAt.Unix(),
		UpdatedAt:           unixOrZero(t.UpdatedAt),
	}
	if viewer.Participates(t) {
		dto.Direction = string(t.Direction(viewer))
	}
	return dto
}

// ToTransactionDTOs 批量转换
func ToTransactionDTOs(txns []*domain.Transaction, viewer domain.Viewer) []TransactionDTO {
	out := make([]TransactionDTO, 0, len(txns))
	for _, t := range txns {
		out = append(out, ToTransactionDTO(t, viewer))
	}
	return out
}

// ToReviewActionDTO 审核记录转 DTO
func ToReviewActionDTO(a *domain.ReviewAction) ReviewActionDTO {
	return ReviewActionDTO{
		ID:              a.ID,
		TransactionID:   a.TransactionID,
		ActorID:         a.ActorID,
		Action:          string(a.Action),
		FromStatus:      string(a.FromStatus),
		ResultingStatus: string(a.ResultingStatus),
		CreatedAt:       a.CreatedAt.Unix(),
	}
}

// ToReportDTO 汇总转 DTO
func ToReportDTO(r domain.Report) ReportDTO {
	return ReportDTO{
		TotalTransactions:  r.Total,
		UnderReview:        r.UnderReview,
		BlockedOrFraud:     r.BlockedOrFraud,
		TodaysTransactions: r.Today,
		FraudRate:          r.FraudRate(),
	}
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}
