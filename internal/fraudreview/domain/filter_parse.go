package domain

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

// RawFilter 查询参数原始字符串
type RawFilter struct {
	DateFrom            string `form:"date_from" json:"date_from"`
	DateTo              string `form:"date_to" json:"date_to"`
	Status              string `form:"status" json:"status"`
	Direction           string `form:"direction" json:"direction"`
	AmountMin           string `form:"amount_min" json:"amount_min"`
	AmountMax           string `form:"amount_max" json:"amount_max"`
	Query               string `form:"q" json:"q"`
	RiskScoreMin        string `form:"risk_score_min" json:"risk_score_min"`
	FraudProbabilityMin string `form:"fraud_probability_min" json:"fraud_probability_min"`
}

// ParseFilterCriteria 解析原始参数
// 无法解析的字段一律视为未提供，不报错；"all" 表示不限制
func ParseFilterCriteria(raw RawFilter, viewer Viewer) FilterCriteria {
	c := FilterCriteria{Viewer: viewer, Query: strings.TrimSpace(raw.Query)}
	c.DateFrom = parseDate(raw.DateFrom, false)
	c.DateTo = parseDate(raw.DateTo, true)
	if s, ok := ParseStatus(raw.Status); ok {
		c.Status = &s
	}
	switch d := Direction(strings.ToLower(strings.TrimSpace(raw.Direction))); d {
	case DirectionIncoming, DirectionOutgoing:
		c.Direction = &d
	}
	c.AmountMin = parseDecimal(raw.AmountMin)
	c.AmountMax = parseDecimal(raw.AmountMax)
	if v, ok := parseScoreMin(raw.RiskScoreMin); ok {
		c.RiskScoreMin = &v
	}
	if v, err := strconv.ParseFloat(strings.TrimSpace(raw.FraudProbabilityMin), 64); err == nil && !math.IsNaN(v) && !math.IsInf(v, 0) {
		c.FraudProbabilityMin = &v
	}
	return c
}

// parseScoreMin 风险分为整数，小数下限向上取整；结果限制在 [0, 101]，101 不匹配任何交易
func parseScoreMin(raw string) (int, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(v) {
		return 0, false
	}
	return int(math.Min(math.Max(math.Ceil(v), 0), 101)), true
}

func parseDecimal(raw string) *decimal.Decimal {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return nil
	}
	return &d
}

// parseDate 支持 RFC3339 与 yyyy-mm-dd；纯日期作为上界时包含当天全天
func parseDate(raw string, upper bool) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return nil
	}
	if upper {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t
}
