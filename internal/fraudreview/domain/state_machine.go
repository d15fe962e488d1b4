package domain

import "strings"

// Action 人工审核动作
type Action string

const (
	ActionApprove     Action = "approve"
	ActionBlock       Action = "block"
	ActionRequestInfo Action = "request_info"
)

// ParseAction 解析审核动作
func ParseAction(raw string) (Action, error) {
	switch a := Action(strings.ToLower(strings.TrimSpace(raw))); a {
	case ActionApprove, ActionBlock, ActionRequestInfo:
		return a, nil
	}
	return "", NewValidationError("action", "must be one of approve, block, request_info")
}

// transitions 可审核状态下的合法动作表
var transitions = map[Status]map[Action]Status{
	StatusFlagged: {
		ActionApprove:     StatusApproved,
		ActionBlock:       StatusBlocked,
		ActionRequestInfo: StatusUnderReview,
	},
	StatusUnderReview: {
		ActionApprove:     StatusApproved,
		ActionBlock:       StatusBlocked,
		ActionRequestInfo: StatusUnderReview,
	},
}

// Transition 纯函数：计算动作作用后的状态，非法组合返回 InvalidTransitionError
func Transition(from Status, action Action) (Status, error) {
	if next, ok := transitions[from][action]; ok {
		return next, nil
	}
	return "", &InvalidTransitionError{From: from, Action: action}
}

// Threshold 风险阈值，分数或概率任一达到即命中
type Threshold struct {
	Score       int     `json:"score"`
	Probability float64 `json:"probability"`
}

// Reached 判断评估结果是否达到阈值
func (t Threshold) Reached(a Assessment) bool {
	return a.RiskScore >= t.Score || a.FraudProbability >= t.Probability
}

// Policy 提交时的初始状态策略
type Policy struct {
	Block  Threshold `json:"block"`
	Review Threshold `json:"review"`
}

// DefaultPolicy 默认阈值
func DefaultPolicy() Policy {
	return Policy{
		Block:  Threshold{Score: 90, Probability: 0.9},
		Review: Threshold{Score: 60, Probability: 0.6},
	}
}

// Validate 审核阈值不得高于拦截阈值
func (p Policy) Validate() error {
	if p.Block.Score < 0 || p.Block.Score > 100 || p.Review.Score < 0 || p.Review.Score > 100 {
		return NewValidationError("threshold.score", "must be within [0,100]")
	}
	if p.Block.Probability < 0 || p.Block.Probability > 1 || p.Review.Probability < 0 || p.Review.Probability > 1 {
		return NewValidationError("threshold.probability", "must be within [0,1]")
	}
	if p.Review.Score > p.Block.Score || p.Review.Probability > p.Block.Probability {
		return NewValidationError("threshold", "review threshold must not exceed block threshold")
	}
	return nil
}

// InitialStatus 根据评估结果确定提交后的状态以及是否判定为欺诈
func (p Policy) InitialStatus(a Assessment) (Status, bool) {
	switch {
	case p.Block.Reached(a):
		return StatusBlocked, true
	case p.Review.Reached(a):
		return StatusFlagged, false
	default:
		return StatusCompleted, false
	}
}
