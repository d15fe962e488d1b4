// Package domain 转账反欺诈审核的领域模型：交易、状态机、过滤、汇总与仓储接口
package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Status 交易状态
type Status string

const (
	StatusPending     Status = "PENDING"
	StatusFlagged     Status = "FLAGGED"
	StatusUnderReview Status = "UNDER_REVIEW"
	StatusApproved    Status = "APPROVED"
	StatusBlocked     Status = "BLOCKED"
	StatusCompleted   Status = "COMPLETED"
	StatusFailed      Status = "FAILED"
)

// AllStatuses 全部合法状态，按生命周期顺序
var AllStatuses = []Status{
	StatusPending, StatusFlagged, StatusUnderReview,
	StatusApproved, StatusBlocked, StatusCompleted, StatusFailed,
}

// IsValid 是否为已知状态
func (s Status) IsValid() bool {
	for _, v := range AllStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// IsTerminal 终态不接受任何审核动作
func (s Status) IsTerminal() bool {
	switch s {
	case StatusApproved, StatusBlocked, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// AwaitsReview 是否处于待人工审核队列
func (s Status) AwaitsReview() bool {
	return s == StatusFlagged || s == StatusUnderReview
}

// ParseStatus 大小写不敏感地解析状态
func ParseStatus(raw string) (Status, bool) {
	s := Status(strings.ToUpper(strings.TrimSpace(raw)))
	if !s.IsValid() {
		return "", false
	}
	return s, true
}

// Channel 发起渠道
type Channel string

const (
	ChannelMobile Channel = "mobile"
	ChannelWeb    Channel = "web"
)

// ParseChannel 解析渠道，大小写不敏感
func ParseChannel(raw string) (Channel, bool) {
	switch c := Channel(strings.ToLower(strings.TrimSpace(raw))); c {
	case ChannelMobile, ChannelWeb:
		return c, true
	}
	return "", false
}

// AuthorizationMethod 授权方式
type AuthorizationMethod string

const (
	AuthOTP       AuthorizationMethod = "OTP"
	AuthTwoFactor AuthorizationMethod = "2FA"
)

// ParseAuthorizationMethod 解析授权方式
func ParseAuthorizationMethod(raw string) (AuthorizationMethod, bool) {
	switch m := AuthorizationMethod(strings.ToUpper(strings.TrimSpace(raw))); m {
	case AuthOTP, AuthTwoFactor:
		return m, true
	}
	return "", false
}

// Transaction 转账交易实体
// 仓储中保存的是不可变快照，任何修改都必须经 Apply 生成新值
type Transaction struct {
	ID                  string              `json:"id"`
	SenderAccountID     string              `json:"sender_account_id"`
	SenderName          string              `json:"sender_name"`
	ReceiverAccountID   string              `json:"receiver_account_id"`
	ReceiverName        string              `json:"receiver_name"`
	Amount              decimal.Decimal     `json:"amount"`
	Currency            string              `json:"currency"`
	Description         string              `json:"description"`
	Channel             Channel             `json:"channel"`
	AuthorizationMethod AuthorizationMethod `json:"authorization_method"`
	IPAddress           string              `json:"ip_address"`
	DeviceFingerprint   string              `json:"device_fingerprint"`
	IsInternational     bool                `json:"is_international"`
	IsNewPayee          bool                `json:"is_new_payee"`
	TxnCount24h         int                 `json:"txn_count_24h"`
	SumAmount24h        decimal.Decimal     `json:"sum_amount_24h"`
	RiskScore           int                 `json:"risk_score"`
	FraudProbability    float64             `json:"fraud_probability"`
	IsFraud             bool                `json:"is_fraud"`
	Status              Status              `json:"status"`
	Version             int64               `json:"version"`
	CreatedAt           time.Time           `json:"created_at"`
	UpdatedAt           time.Time           `json:"updated_at"`
}

// Hour 交易发生的小时 (UTC)
func (t *Transaction) Hour() int { return t.CreatedAt.UTC().Hour() }

// Weekday 交易发生的星期 (UTC)
func (t *Transaction) Weekday() time.Weekday { return t.CreatedAt.UTC().Weekday() }

// Clone 返回值拷贝
func (t *Transaction) Clone() *Transaction {
	c := *t
	return &c
}

// IsOutgoingFor 对查看者而言是否为转出
func (t *Transaction) IsOutgoingFor(v Viewer) bool {
	return v.AccountID != "" && t.SenderAccountID == v.AccountID
}

// Direction 相对查看者的方向
func (t *Transaction) Direction(v Viewer) Direction {
	if t.IsOutgoingFor(v) {
		return DirectionOutgoing
	}
	return DirectionIncoming
}

// Validate 校验实体不变量
func (t *Transaction) Validate() error {
	if t.ID == "" {
		return NewValidationError("id", "must not be empty")
	}
	if !t.Amount.IsPositive() {
		return NewValidationError("amount", "must be positive")
	}
	if t.RiskScore < 0 || t.RiskScore > 100 {
		return NewValidationError("risk_score", "must be within [0,100]")
	}
	if t.FraudProbability < 0 || t.FraudProbability > 1 {
		return NewValidationError("fraud_probability", "must be within [0,1]")
	}
	if !t.Status.IsValid() {
		return NewValidationError("status", "unknown status "+string(t.Status))
	}
	return nil
}

// Apply 应用审核动作，返回版本号递增的新快照，原值不变
func (t *Transaction) Apply(action Action, now time.Time) (*Transaction, error) {
	next, err := Transition(t.Status, action)
	if err != nil {
		return nil, err
	}
	out := t.Clone()
	out.Status = next
	switch action {
	case ActionApprove:
		out.IsFraud = false
	case ActionBlock:
		out.IsFraud = true
	}
	out.Version = t.Version + 1
	out.UpdatedAt = now
	return out, nil
}
