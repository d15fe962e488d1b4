package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Direction 相对查看者的资金方向
type Direction string

const (
	DirectionIncoming Direction = "incoming"
	DirectionOutgoing Direction = "outgoing"
)

// FilterCriteria 交易过滤条件，nil 字段表示不限制
// 日期与金额区间均为闭区间
type FilterCriteria struct {
	Viewer              Viewer
	DateFrom            *time.Time
	DateTo              *time.Time
	Status              *Status
	Direction           *Direction
	AmountMin           *decimal.Decimal
	AmountMax           *decimal.Decimal
	Query               string
	RiskScoreMin        *int
	FraudProbabilityMin *float64
}

// IsEmpty 是否没有任何限制条件
func (c FilterCriteria) IsEmpty() bool {
	return c.DateFrom == nil && c.DateTo == nil && c.Status == nil && c.Direction == nil &&
		c.AmountMin == nil && c.AmountMax == nil && strings.TrimSpace(c.Query) == "" &&
		c.RiskScoreMin == nil && c.FraudProbabilityMin == nil
}

// Matches 单笔交易是否满足全部条件
func (c FilterCriteria) Matches(t *Transaction) bool {
	if c.DateFrom != nil && t.CreatedAt.Before(*c.DateFrom) {
		return false
	}
	if c.DateTo != nil && t.CreatedAt.After(*c.DateTo) {
		return false
	}
	if c.Status != nil && t.Status != *c.Status {
		return false
	}
	if c.Direction != nil && t.Direction(c.Viewer) != *c.Direction {
		return false
	}
	if c.AmountMin != nil && t.Amount.LessThan(*c.AmountMin) {
		return false
	}
	if c.AmountMax != nil && t.Amount.GreaterThan(*c.AmountMax) {
		return false
	}
	if c.RiskScoreMin != nil && t.RiskScore < *c.RiskScoreMin {
		return false
	}
	if c.FraudProbabilityMin != nil && t.FraudProbability < *c.FraudProbabilityMin {
		return false
	}
	if q := strings.ToLower(strings.TrimSpace(c.Query)); q != "" {
		if !strings.Contains(strings.ToLower(t.Description), q) &&
			!strings.Contains(strings.ToLower(t.SenderAccountID), q) &&
			!strings.Contains(strings.ToLower(t.ReceiverAccountID), q) {
			return false
		}
	}
	return true
}

// Apply 返回满足条件的新切片，保持输入顺序，不修改输入
func (c FilterCriteria) Apply(txns []*Transaction) []*Transaction {
	out := make([]*Transaction, 0, len(txns))
	for _, t := range txns {
		if c.Matches(t) {
			out = append(out, t)
		}
	}
	return out
}
