package domain

import (
	"fmt"
	"slices"
	"strings"

	"github.com/shopspring/decimal"
)

// TransferLimits 付款方 24 小时限额，零值表示不限制
type TransferLimits struct {
	MaxDailyCount   int
	MaxSingleAmount decimal.Decimal
	MaxDailySum     decimal.Decimal
}

// DefaultTransferLimits 默认限额
func DefaultTransferLimits() TransferLimits {
	return TransferLimits{MaxDailyCount: 7, MaxSingleAmount: decimal.NewFromInt(60000)}
}

// Check 校验本次转账是否超限
func (l TransferLimits) Check(amount decimal.Decimal, a Activity) error {
	if l.MaxSingleAmount.IsPositive() && amount.GreaterThan(l.MaxSingleAmount) {
		return NewValidationError("amount", "exceeds single transfer limit of "+l.MaxSingleAmount.String())
	}
	if l.MaxDailyCount > 0 && a.Count >= l.MaxDailyCount {
		return NewValidationError("daily_count", fmt.Sprintf("daily transfer count limit of %d reached", l.MaxDailyCount))
	}
	if l.MaxDailySum.IsPositive() && a.Sum.Add(amount).GreaterThan(l.MaxDailySum) {
		return NewValidationError("amount", "exceeds daily transfer sum limit of "+l.MaxDailySum.String())
	}
	return nil
}

// TransferRequest 转账请求
type TransferRequest struct {
	ReceiverAccountID   string
	ReceiverName        string
	Amount              decimal.Decimal
	Currency            string
	Description         string
	Channel             Channel
	AuthorizationMethod AuthorizationMethod
	IPAddress           string
	DeviceFingerprint   string
}

// Validate 校验请求字段，币种需在允许列表内
func (r TransferRequest) Validate(sender Viewer, allowedCurrencies []string) error {
	if sender.AccountID == "" {
		return NewValidationError("sender_account_id", "must not be empty")
	}
	if strings.TrimSpace(r.ReceiverAccountID) == "" {
		return NewValidationError("receiver_account_id", "must not be empty")
	}
	if r.ReceiverAccountID == sender.AccountID {
		return NewValidationError("receiver_account_id", "must differ from sender")
	}
	if !r.Amount.IsPositive() {
		return NewValidationError("amount", "must be positive")
	}
	if !r.Amount.Equal(r.Amount.Truncate(2)) {
		return NewValidationError("amount", "at most two decimal places")
	}
	if len(allowedCurrencies) > 0 && !slices.Contains(allowedCurrencies, r.Currency) {
		return NewValidationError("currency", "unsupported currency "+r.Currency)
	}
	if _, ok := ParseChannel(string(r.Channel)); !ok {
		return NewValidationError("channel", "must be mobile or web")
	}
	if _, ok := ParseAuthorizationMethod(string(r.AuthorizationMethod)); !ok {
		return NewValidationError("authorization_method", "must be OTP or 2FA")
	}
	return nil
}
